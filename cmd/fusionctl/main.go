package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/oklog/run"

	cfgpkg "github.com/veranemoloko/fusionctl/internal/config"
)

var version = "dev"

var errInterrupted = errors.New("interrupted by termination signal")

// CLI is the fusionctl command tree.
type CLI struct {
	EnvFile  []string `help:"Env files loaded before the environment (default: .env if present)." placeholder:"PATH"`
	LogLevel string   `help:"Override FUSION_LOG_LEVEL (debug, info, warn, error)." placeholder:"LEVEL"`

	Run           RunCmd           `cmd:"" help:"Upload, build, optionally sign, and download a secured app."`
	BuildToTest   BuildToTestCmd   `cmd:"" name:"build-to-test" help:"Build an app for an automation testing vendor."`
	Status        StatusCmd        `cmd:"" help:"Wait for a task to finish and report its status."`
	ReleaseFS     ReleaseFSCmd     `cmd:"" name:"release-fs" help:"Release a fusion set to another team."`
	UploadMapping UploadMappingCmd `cmd:"" name:"upload-mapping" help:"Upload a deobfuscation mapping archive to crash reporting backends."`
	Serve         ServeCmd         `cmd:"" help:"Serve run history, health and metrics over HTTP."`
	Version       VersionCmd       `cmd:"" help:"Show version information."`
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fusionctl: %s\n", strings.ReplaceAll(err.Error(), "\n", "; "))
		os.Exit(1)
	}
}

func execute() error {
	var cli CLI
	kongCtx := kong.Parse(&cli,
		kong.Name("fusionctl"),
		kong.Description("Drive secure build workflows on a remote fusion service."),
		kong.UsageOnError(),
	)

	cmdName := kongCtx.Command()
	if cmdName == "version" {
		return kongCtx.Run()
	}

	cfg, err := cfgpkg.Load(cli.EnvFile...)
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	logger := cfgpkg.SetupLogger(cfg, os.Stderr)

	app := &App{cfg: cfg, logger: logger, stdout: os.Stdout, stderr: os.Stderr}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				return errInterrupted
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		kongCtx.BindTo(ctx, (*context.Context)(nil))

		g.Add(
			func() error {
				if err := kongCtx.Run(app); err != nil {
					return fmt.Errorf("%s: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	err = g.Run()
	if errors.Is(err, errInterrupted) {
		logger.Debug("termination signal received", "command", cmdName)
		if strings.HasPrefix(cmdName, "serve") {
			return nil
		}
	}
	return err
}
