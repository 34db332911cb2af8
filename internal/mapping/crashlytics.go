package mapping

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// CrashlyticsMappingIDFile ties the uploaded mapping to a Firebase build.
const CrashlyticsMappingIDFile = "com_google_firebase_crashlytics_mappingfileid.xml"

// CommandRunner runs an external program.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

// Crashlytics uploads through the Firebase CLI. The credential is the
// Firebase app id.
type Crashlytics struct {
	CLI    string
	Runner CommandRunner
}

// NewCrashlytics returns a Crashlytics uploader invoking cli (default "firebase").
func NewCrashlytics(cli string, runner CommandRunner) *Crashlytics {
	if cli == "" {
		cli = "firebase"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Crashlytics{CLI: cli, Runner: runner}
}

func (c *Crashlytics) Name() string { return "crashlytics" }

func (c *Crashlytics) Upload(ctx context.Context, appID, dir string) (Result, error) {
	if err := requireFiles(dir, CrashlyticsMappingIDFile, MappingFile); err != nil {
		return ResultSkipped, err
	}

	err := c.Runner.Run(ctx, c.CLI,
		"crashlytics:mappingfile:upload",
		"--app="+appID,
		"--resource-file="+filepath.Join(dir, CrashlyticsMappingIDFile),
		filepath.Join(dir, MappingFile),
	)
	if err != nil {
		return "", err
	}
	return ResultUploaded, nil
}
