package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/veranemoloko/fusionctl/internal/config"
	"github.com/veranemoloko/fusionctl/internal/domain"
	svc "github.com/veranemoloko/fusionctl/internal/service"
)

func testApp(stdout io.Writer) *App {
	return &App{
		cfg: &cfgpkg.Config{
			AndroidFusionSetID: "fs-android",
			IOSFusionSetID:     "fs-ios",
			FirebaseCLI:        "firebase",
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		stdout: stdout,
		stderr: io.Discard,
	}
}

func TestWorkflowFlags_Request(t *testing.T) {
	dir := t.TempDir()
	ov := filepath.Join(dir, "overrides.yaml")
	require.NoError(t, os.WriteFile(ov, []byte("obfuscate: true\n"), 0o644))
	logs := filepath.Join(dir, "logs", "workflow.txt")

	flags := WorkflowFlags{
		App:           `"` + filepath.Join(dir, "app.apk") + `"`,
		Overrides:     ov,
		Output:        filepath.Join(dir, "out", "secured.apk"),
		WorkflowLogs:  logs,
		FirebaseAppID: "1:2:android:3",
	}

	req, cleanup, err := flags.request(testApp(io.Discard))
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, filepath.Join(dir, "app.apk"), req.AppPath)
	assert.Equal(t, "fs-android", req.FusionSetID)
	assert.Equal(t, true, req.Overrides["obfuscate"])
	require.Len(t, req.MappingUploaders, 1)
	assert.Equal(t, "crashlytics", req.MappingUploaders[0].Uploader.Name())

	require.NoError(t, req.Sink.Start("build"))
	cleanup()
	data, err := os.ReadFile(logs)
	require.NoError(t, err)
	assert.Equal(t, "build:\n", string(data))
}

func TestWorkflowFlags_RequestIOSDefault(t *testing.T) {
	req, cleanup, err := WorkflowFlags{App: "MyApp.ipa"}.request(testApp(io.Discard))
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, "fs-ios", req.FusionSetID)
}

func TestWorkflowFlags_RequestAppIDDefaultsToAndroid(t *testing.T) {
	req, cleanup, err := WorkflowFlags{AppID: "A1"}.request(testApp(io.Discard))
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, "A1", req.AppID)
	assert.Equal(t, "fs-android", req.FusionSetID)
}

func TestSignFlags_Options(t *testing.T) {
	assert.Empty(t, SignFlags{Sign: "none"}.options().Method)

	opts := SignFlags{Sign: svc.SignPrivate, SigningFingerprint: "AB", Keystore: " 'ks.jks' "}.options()
	assert.Equal(t, svc.SignPrivate, opts.Method)
	assert.Equal(t, "AB", opts.SigningFingerprint)
	assert.Equal(t, "ks.jks", opts.KeystorePath)

	opts = SignFlags{
		Sign:                svc.SignOnService,
		ProvisioningProfile: []string{"dev.mobileprovision", " ", "'dist.mobileprovision'"},
		Entitlements:        []string{"app.entitlements"},
	}.options()
	assert.Equal(t, []string{"dev.mobileprovision", "dist.mobileprovision"}, opts.ProvisioningProfiles)
	assert.Equal(t, []string{"app.entitlements"}, opts.Entitlements)
}

func TestPrintRun(t *testing.T) {
	var out bytes.Buffer
	printRun(testApp(&out), &domain.Run{
		ID:     "r1",
		State:  domain.RunStateFailed,
		TaskID: "T1",
		Downloads: []domain.DownloadResult{
			{Kind: "output", Path: "/tmp/a.apk", Success: true, BytesRead: 4},
			{Kind: "certificate_pdf", Error: "boom"},
		},
	})

	assert.Equal(t, "run r1: failed (task T1)\n  output -> /tmp/a.apk (4 bytes)\n  certificate_pdf failed: boom\n", out.String())
}
