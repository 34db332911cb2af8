package service

import (
	"fmt"

	"github.com/veranemoloko/fusionctl/internal/config"
	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
	"github.com/veranemoloko/fusionctl/internal/mapping"
	"github.com/veranemoloko/fusionctl/internal/overrides"
	"github.com/veranemoloko/fusionctl/internal/poller"
	"github.com/veranemoloko/fusionctl/internal/validation"
)

// Signing methods accepted by the service.
const (
	SignOnService = "sign"
	SignPrivate   = "private_sign"
	SignAutoDev   = "auto_dev_sign"
)

// SignOptions selects how the fused artifact is signed. An empty Method skips
// signing.
type SignOptions struct {
	Method string `validate:"omitempty,oneof=sign private_sign auto_dev_sign"`

	KeystorePath  string `validate:"required_if=Method sign"`
	KeystorePass  string `validate:"required_if=Method sign"`
	KeystoreAlias string
	KeyPass       string

	// iOS only. Each file is sent as its own part under a shared field.
	ProvisioningProfiles []string
	Entitlements         []string

	SigningFingerprint    string
	GooglePlaySigning     bool
	GooglePlayFingerprint string `validate:"required_if=GooglePlaySigning true"`
	GooglePlayUpgrade     string
}

// Outputs names the local destination of each artifact. Empty paths are not
// downloaded.
type Outputs struct {
	Output          string
	Certificate     string
	CertificateJSON string
	Mapping         string
}

func (o Outputs) any() bool {
	return o.Output != "" || o.Certificate != "" || o.CertificateJSON != "" || o.Mapping != ""
}

// Request describes one workflow invocation.
type Request struct {
	AppPath     string `validate:"required_without=AppID"`
	AppID       string `validate:"required_without=AppPath"`
	FusionSetID string `validate:"required"`

	Overrides      overrides.Overrides
	DiagnosticLogs bool

	// BuildToTest routes the build through the build-to-test endpoint for
	// the named automation vendor.
	BuildToTest        overrides.Vendor
	BuildToTestMessage string

	Sign    SignOptions
	Outputs Outputs

	// MappingUploaders receive the downloaded mapping archive.
	MappingUploaders []mapping.Binding

	// Sink receives progress messages for the build and sign steps.
	Sink poller.Sink
}

// Validate checks field constraints and prepares every output path.
func (r Request) Validate() error {
	if err := validation.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", errpkg.ErrInvalidInput, err)
	}
	for _, p := range []string{r.Outputs.Output, r.Outputs.Certificate, r.Outputs.CertificateJSON, r.Outputs.Mapping} {
		if err := validation.ValidateOutputPath(p); err != nil {
			return fmt.Errorf("%w: %v", errpkg.ErrInvalidInput, err)
		}
	}
	return nil
}

func (r Request) buildOverrides() overrides.Overrides {
	o := r.Overrides.Clone().WithDiagnosticLogs(r.DiagnosticLogs)
	if r.BuildToTest != "" {
		o = o.WithBuildToTest(r.BuildToTest, r.BuildToTestMessage)
	}
	return o
}

func (r Request) signOverrides() overrides.Overrides {
	o := r.Overrides.Clone()
	if r.Sign.GooglePlaySigning {
		o = o.WithGooglePlaySigning(r.Sign.GooglePlayFingerprint, r.Sign.GooglePlayUpgrade)
	}
	if r.Sign.Method == SignPrivate || r.Sign.Method == SignAutoDev {
		o = o.WithSigningFingerprint(r.Sign.SigningFingerprint)
	}
	if r.iosSigning() {
		o = o.WithEntitlementsMatching(len(r.Sign.Entitlements) > 0)
	}
	return o
}

// iosSigning reports whether the sign step targets an iOS app. Without an
// artifact path the attachments are the only hint.
func (r Request) iosSigning() bool {
	if len(r.Sign.ProvisioningProfiles) > 0 || len(r.Sign.Entitlements) > 0 {
		return true
	}
	return r.AppPath != "" && config.PlatformOf(r.AppPath) == config.PlatformIOS
}
