package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformOf(t *testing.T) {
	tests := map[string]string{
		"app.apk":                 PlatformAndroid,
		"bundle.AAB":              PlatformAndroid,
		"lib/sdk.aar":             PlatformAndroid,
		"MyApp.ipa":               PlatformIOS,
		"Framework.xcarchive.zip": PlatformIOS,
		"noext":                   PlatformIOS,
	}
	for path, want := range tests {
		assert.Equal(t, want, PlatformOf(path), path)
	}
}

func TestConfig_FusionSetIDFor(t *testing.T) {
	cfg := &Config{AndroidFusionSetID: "fs-android", IOSFusionSetID: "fs-ios"}
	assert.Equal(t, "fs-android", cfg.FusionSetIDFor(PlatformOf("app.apk")))
	assert.Equal(t, "fs-ios", cfg.FusionSetIDFor(PlatformOf("app.ipa")))
}

func TestApplyPathDefaults(t *testing.T) {
	cfg := &Config{StateDB: "/tmp/custom.db"}
	applyPathDefaults(cfg)

	assert.Equal(t, filepath.Join(StateDir(), "state.json"), cfg.StateFile)
	assert.Equal(t, "/tmp/custom.db", cfg.StateDB)
	assert.Equal(t, "fusionctl", filepath.Base(StateDir()))
}
