package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/run"

	h "github.com/veranemoloko/fusionctl/internal/api/http"
	cfgpkg "github.com/veranemoloko/fusionctl/internal/config"
	"github.com/veranemoloko/fusionctl/internal/domain"
	"github.com/veranemoloko/fusionctl/internal/mapping"
	"github.com/veranemoloko/fusionctl/internal/overrides"
	"github.com/veranemoloko/fusionctl/internal/poller"
	svc "github.com/veranemoloko/fusionctl/internal/service"
	"github.com/veranemoloko/fusionctl/internal/validation"
)

// WorkflowFlags are shared by run and build-to-test.
type WorkflowFlags struct {
	App            string `short:"a" help:"Path to the app artifact to upload." placeholder:"PATH"`
	AppID          string `help:"Id of an app already uploaded." placeholder:"ID"`
	FusionSetID    string `short:"f" help:"Fusion set id (default: FUSION_IOS_FS_ID for iOS artifacts, else FUSION_ANDROID_FS_ID)." placeholder:"ID"`
	Overrides      string `help:"JSON or YAML overrides file." placeholder:"PATH"`
	DiagnosticLogs bool   `help:"Build with extended diagnostic logs."`

	Output          string `short:"o" help:"Where to save the secured artifact." placeholder:"PATH"`
	Certificate     string `help:"Where to save the certified secure PDF." placeholder:"PATH"`
	CertificateJSON string `name:"certificate-json" help:"Where to save the certified secure JSON." placeholder:"PATH"`
	Deobfuscation   string `help:"Where to save the deobfuscation mapping archive." placeholder:"PATH"`
	WorkflowLogs    string `help:"Append build progress messages to this file." placeholder:"PATH"`

	FirebaseAppID string `help:"Upload the mapping file to Crashlytics for this Firebase app." placeholder:"ID"`
	DataDogAPIKey string `name:"datadog-api-key" help:"Upload the mapping file to DataDog with this API key." placeholder:"KEY"`
}

// SignFlags select how the built artifact is signed.
type SignFlags struct {
	Sign                  string   `help:"Signing method: sign, private_sign or auto_dev_sign." enum:"sign,private_sign,auto_dev_sign,none" default:"none"`
	Keystore              string   `help:"Keystore file for on-service signing." placeholder:"PATH"`
	KeystorePass          string   `help:"Keystore password." placeholder:"PASS"`
	KeystoreAlias         string   `help:"Key alias." placeholder:"ALIAS"`
	KeyPass               string   `help:"Key password." placeholder:"PASS"`
	ProvisioningProfile   []string `help:"iOS provisioning profile (repeatable)." placeholder:"PATH"`
	Entitlements          []string `help:"iOS entitlements file (repeatable)." placeholder:"PATH"`
	SigningFingerprint    string   `help:"SHA-1 fingerprint of the certificate used for private signing." placeholder:"SHA1"`
	GooglePlaySigning     bool     `help:"The app is signed by Google Play."`
	GooglePlayFingerprint string   `help:"SHA-1 fingerprint of the Google Play signing certificate." placeholder:"SHA1"`
	GooglePlayUpgrade     string   `help:"SHA-1 fingerprint of the upgraded Google Play certificate." placeholder:"SHA1"`
}

func (s SignFlags) options() svc.SignOptions {
	method := s.Sign
	if method == "none" {
		method = ""
	}
	return svc.SignOptions{
		Method:                method,
		KeystorePath:          validation.SanitizePath(s.Keystore),
		KeystorePass:          s.KeystorePass,
		KeystoreAlias:         s.KeystoreAlias,
		KeyPass:               s.KeyPass,
		ProvisioningProfiles:  sanitizePaths(s.ProvisioningProfile),
		Entitlements:          sanitizePaths(s.Entitlements),
		SigningFingerprint:    s.SigningFingerprint,
		GooglePlaySigning:     s.GooglePlaySigning,
		GooglePlayFingerprint: s.GooglePlayFingerprint,
		GooglePlayUpgrade:     s.GooglePlayUpgrade,
	}
}

func sanitizePaths(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p = validation.SanitizePath(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// request builds a workflow request. The returned cleanup closes the
// workflow logs file, if one was opened.
func (f WorkflowFlags) request(app *App) (svc.Request, func(), error) {
	noop := func() {}

	ov, err := overrides.Load(validation.SanitizePath(f.Overrides))
	if err != nil {
		return svc.Request{}, noop, err
	}

	appPath := validation.SanitizePath(f.App)
	fusionSetID := f.FusionSetID
	if fusionSetID == "" {
		// An app id alone carries no platform hint.
		platform := cfgpkg.PlatformAndroid
		if appPath != "" {
			platform = cfgpkg.PlatformOf(appPath)
		}
		fusionSetID = app.cfg.FusionSetIDFor(platform)
	}

	req := svc.Request{
		AppPath:        appPath,
		AppID:          f.AppID,
		FusionSetID:    fusionSetID,
		Overrides:      ov,
		DiagnosticLogs: f.DiagnosticLogs,
		Outputs: svc.Outputs{
			Output:          validation.SanitizePath(f.Output),
			Certificate:     validation.SanitizePath(f.Certificate),
			CertificateJSON: validation.SanitizePath(f.CertificateJSON),
			Mapping:         validation.SanitizePath(f.Deobfuscation),
		},
		MappingUploaders: mapping.Select(f.FirebaseAppID, f.DataDogAPIKey, app.cfg.FirebaseCLI, app.cfg.DataDogIntakeURL, nil),
	}

	sinks := poller.MultiSink{poller.NewWriterSink(app.stderr)}
	cleanup := noop
	if path := validation.SanitizePath(f.WorkflowLogs); path != "" {
		if err := validation.ValidateOutputPath(path); err != nil {
			return svc.Request{}, noop, err
		}
		fileSink, err := poller.OpenFileSink(path)
		if err != nil {
			return svc.Request{}, noop, err
		}
		sinks = append(sinks, fileSink)
		cleanup = func() { _ = fileSink.Close() }
	}
	req.Sink = sinks

	return req, cleanup, nil
}

func runWorkflow(ctx context.Context, app *App, req svc.Request) error {
	workflow, closeRuns, err := app.workflow()
	defer closeRuns()
	if err != nil {
		return err
	}

	result, err := workflow.Run(ctx, req)
	if result != nil {
		printRun(app, result)
	}
	return err
}

func printRun(app *App, r *domain.Run) {
	fmt.Fprintf(app.stdout, "run %s: %s (task %s)\n", r.ID, r.State, r.TaskID)
	for _, d := range r.Downloads {
		if d.Success {
			fmt.Fprintf(app.stdout, "  %s -> %s (%d bytes)\n", d.Kind, d.Path, d.BytesRead)
		} else {
			fmt.Fprintf(app.stdout, "  %s failed: %s\n", d.Kind, d.Error)
		}
	}
}

// RunCmd is 'fusionctl run'.
type RunCmd struct {
	WorkflowFlags `embed:""`
	SignFlags     `embed:""`
}

func (c *RunCmd) Run(ctx context.Context, app *App) error {
	req, cleanup, err := c.WorkflowFlags.request(app)
	if err != nil {
		return err
	}
	defer cleanup()

	req.Sign = c.SignFlags.options()
	return runWorkflow(ctx, app, req)
}

// BuildToTestCmd is 'fusionctl build-to-test'.
type BuildToTestCmd struct {
	WorkflowFlags `embed:""`

	Vendor  string `required:"" help:"Automation vendor: bitbar, saucelabs, browserstack or lambdatest." placeholder:"VENDOR"`
	Message string `help:"Message shown when the app runs outside the vendor's devices." placeholder:"TEXT"`
}

func (c *BuildToTestCmd) Run(ctx context.Context, app *App) error {
	vendor, err := overrides.ParseVendor(c.Vendor)
	if err != nil {
		return err
	}

	req, cleanup, err := c.WorkflowFlags.request(app)
	if err != nil {
		return err
	}
	defer cleanup()

	req.BuildToTest = vendor
	req.BuildToTestMessage = c.Message
	return runWorkflow(ctx, app, req)
}

// StatusCmd is 'fusionctl status'.
type StatusCmd struct {
	TaskID   string `arg:"" help:"Task id to wait on." name:"task-id"`
	Messages bool   `help:"Print progress messages while waiting."`
}

func (c *StatusCmd) Run(ctx context.Context, app *App) error {
	cl, err := app.client()
	if err != nil {
		return err
	}

	opts := poller.WaitOptions{Operation: "status"}
	if c.Messages {
		opts.Sink = poller.NewWriterSink(app.stderr)
	}

	res, err := app.poller(cl).Wait(ctx, c.TaskID, opts)
	if res != nil {
		task := res.Task()
		fmt.Fprintf(app.stdout, "%s %s (%s, %d messages)\n", task.ID, res.State, task.Status, len(task.Messages))
		if res.Response != nil && res.Response.ObfuscationMapExists {
			fmt.Fprintln(app.stdout, "deobfuscation mapping available")
		}
	}
	return err
}

// ReleaseFSCmd is 'fusionctl release-fs'.
type ReleaseFSCmd struct {
	FusionSetID  string `arg:"" help:"Fusion set id to release." name:"fusion-set-id"`
	TargetTeamID string `required:"" name:"to-team" help:"Team that receives the fusion set." placeholder:"ID"`
}

func (c *ReleaseFSCmd) Run(ctx context.Context, app *App) error {
	cl, err := app.client()
	if err != nil {
		return err
	}

	newID, err := cl.ReleaseFusionSet(ctx, c.FusionSetID, c.TargetTeamID)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.stdout, newID)
	return nil
}

// UploadMappingCmd is 'fusionctl upload-mapping'.
type UploadMappingCmd struct {
	Archive       string `arg:"" type:"existingfile" help:"Deobfuscation mapping archive (zip)."`
	FirebaseAppID string `help:"Firebase app id for Crashlytics." placeholder:"ID"`
	DataDogAPIKey string `name:"datadog-api-key" help:"DataDog API key." placeholder:"KEY"`
}

func (c *UploadMappingCmd) Run(ctx context.Context, app *App) error {
	bindings := mapping.Select(c.FirebaseAppID, c.DataDogAPIKey, app.cfg.FirebaseCLI, app.cfg.DataDogIntakeURL, nil)
	if len(bindings) == 0 {
		return errors.New("either --firebase-app-id or --datadog-api-key is required")
	}

	results, err := mapping.UploadArchive(ctx, c.Archive, bindings, app.logger)
	for backend, res := range results {
		fmt.Fprintf(app.stdout, "%s: %s\n", backend, res)
	}
	return err
}

// ServeCmd is 'fusionctl serve'.
type ServeCmd struct {
	Port int `help:"Listen port (default: FUSION_HTTP_PORT)."`
}

func (c *ServeCmd) Run(ctx context.Context, app *App) error {
	runs, closeRuns, err := app.runs()
	defer closeRuns()
	if err != nil {
		return err
	}

	port := c.Port
	if port == 0 {
		port = app.cfg.HTTPPort
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.NewRouter(runs, app.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group

	g.Add(
		func() error {
			app.logger.Info("server starting", "address", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
		func(_ error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				app.logger.Error("server shutdown failed", "error", err)
				return
			}
			app.logger.Info("server stopped gracefully")
		},
	)

	ctx, cancel := context.WithCancel(ctx)
	g.Add(
		func() error {
			<-ctx.Done()
			return nil
		},
		func(_ error) {
			cancel()
		},
	)

	return g.Run()
}

// VersionCmd is 'fusionctl version'.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("fusionctl " + version)
	return nil
}
