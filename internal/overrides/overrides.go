// Package overrides loads and amends the key/value map that customizes a
// build beyond its fusion set defaults.
package overrides

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
)

// Overrides maps override keys to JSON-compatible values.
type Overrides map[string]any

// Load reads overrides from path. Files ending in .yaml or .yml are parsed as
// YAML, anything else as JSON. An empty path yields an empty map.
func Load(path string) (Overrides, error) {
	out := Overrides{}
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	default:
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse overrides file %s: %v", errpkg.ErrInvalidInput, path, err)
	}
	if out == nil {
		out = Overrides{}
	}
	return out, nil
}

// Clone returns a shallow copy so callers can amend overrides per step.
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// WithDiagnosticLogs enables the service's extended diagnostic logs.
func (o Overrides) WithDiagnosticLogs(enabled bool) Overrides {
	if enabled {
		o["extended_logs"] = true
	}
	return o
}

// WithGooglePlaySigning marks the build as signed by Google Play with the
// given SHA-1 fingerprint. upgrade is the optional second certificate used
// during a key upgrade.
func (o Overrides) WithGooglePlaySigning(fingerprint, upgrade string) Overrides {
	if fingerprint == "" {
		return o
	}
	o["signing_keystore_use_google_signing"] = true
	o["signing_keystore_google_signing_sha1_key"] = fingerprint
	if upgrade != "" {
		o["signing_keystore_google_signing_upgrade"] = true
		o["signing_keystore_google_signing_sha1_key_2nd_cert"] = upgrade
	}
	return o
}

// WithSigningFingerprint sets the Android signing certificate fingerprint
// used when signing happens outside the service.
func (o Overrides) WithSigningFingerprint(fingerprint string) Overrides {
	if fingerprint != "" {
		o["signing_sha1_fingerprint"] = fingerprint
	}
	return o
}

// WithEntitlementsMatching tells the service whether iOS entitlements come
// from uploaded entitlements files rather than the provisioning profiles.
func (o Overrides) WithEntitlementsMatching(manual bool) Overrides {
	o["manual_entitlements_matching"] = manual
	return o
}
