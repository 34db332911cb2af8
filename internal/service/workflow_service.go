package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/veranemoloko/fusionctl/internal/client"
	"github.com/veranemoloko/fusionctl/internal/domain"
	"github.com/veranemoloko/fusionctl/internal/mapping"
	"github.com/veranemoloko/fusionctl/internal/metrics"
	"github.com/veranemoloko/fusionctl/internal/poller"
	"github.com/veranemoloko/fusionctl/internal/repository"
	"github.com/veranemoloko/fusionctl/internal/worker"
)

const (
	actionFuse        = "fuse"
	keystoreField     = "keystore"
	profileField      = "provisioning_profile"
	entitlementsField = "entitlements_files"
)

// TaskAPI submits work to the remote service.
type TaskAPI interface {
	Upload(ctx context.Context, path string) (string, error)
	SubmitAction(ctx context.Context, ar client.ActionRequest) (string, error)
	BuildToTest(ctx context.Context, ar client.ActionRequest) (string, error)
}

// Waiter blocks until a remote task is terminal.
type Waiter interface {
	Wait(ctx context.Context, taskID string, opts poller.WaitOptions) (*poller.Result, error)
}

// Downloader fetches task artifacts.
type Downloader interface {
	DownloadAll(ctx context.Context, taskID string, targets []worker.Target) ([]domain.DownloadResult, error)
}

// WorkflowService chains upload, build, sign and download into one run.
type WorkflowService struct {
	tasks      TaskAPI
	waiter     Waiter
	downloader Downloader
	runs       repository.RunRepo
	logger     *slog.Logger
}

// NewWorkflowService creates a WorkflowService. runs may be nil, in which case
// runs are not recorded.
func NewWorkflowService(tasks TaskAPI, waiter Waiter, downloader Downloader, runs repository.RunRepo, logger *slog.Logger) *WorkflowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowService{
		tasks:      tasks,
		waiter:     waiter,
		downloader: downloader,
		runs:       runs,
		logger:     logger,
	}
}

// Run executes the workflow described by req. The returned run is populated
// even when an error is returned, unless the request itself was invalid.
func (s *WorkflowService) Run(ctx context.Context, req Request) (*domain.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	run := &domain.Run{
		ID:          ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		AppID:       req.AppID,
		FusionSetID: req.FusionSetID,
		State:       domain.RunStateRunning,
		Steps:       planSteps(req),
		CreatedAt:   now,
	}

	metrics.RunsStarted.Inc()
	s.record(ctx, run, true)
	s.logger.Info("workflow started", "run_id", run.ID, "fusion_set_id", run.FusionSetID, "steps", len(run.Steps))

	err := s.execute(ctx, run, req)
	if err != nil {
		run.State = domain.RunStateFailed
		run.Error = err.Error()
		metrics.RunsFailed.Inc()
		s.logger.Error("workflow failed", "run_id", run.ID, "task_id", run.TaskID, "error", err)
	} else {
		run.State = domain.RunStateSucceeded
		metrics.RunsSucceeded.Inc()
		s.logger.Info("workflow finished", "run_id", run.ID, "task_id", run.TaskID)
	}
	s.record(ctx, run, false)

	return run, err
}

func planSteps(req Request) []*domain.WorkflowStep {
	var steps []*domain.WorkflowStep
	if req.AppPath != "" {
		steps = append(steps, &domain.WorkflowStep{Name: domain.StepUpload, Status: domain.StepStatusPending})
	}

	steps = append(steps, &domain.WorkflowStep{
		Name:      domain.StepBuild,
		Action:    actionFuse,
		Overrides: req.buildOverrides(),
		Status:    domain.StepStatusPending,
	})

	if req.Sign.Method != "" {
		steps = append(steps, &domain.WorkflowStep{
			Name:      domain.StepSign,
			Action:    req.Sign.Method,
			Overrides: req.signOverrides(),
			Status:    domain.StepStatusPending,
		})
	}

	if req.Outputs.any() {
		steps = append(steps, &domain.WorkflowStep{Name: domain.StepDownload, Status: domain.StepStatusPending})
	}
	return steps
}

func (s *WorkflowService) execute(ctx context.Context, run *domain.Run, req Request) error {
	appID := req.AppID
	if step := run.Step(domain.StepUpload); step != nil {
		s.begin(run, step)
		id, err := s.tasks.Upload(ctx, req.AppPath)
		if err != nil {
			return s.fail(run, step, err)
		}
		step.TaskID = id
		s.complete(ctx, run, step)
		appID = id
		s.logger.Info("artifact uploaded", "run_id", run.ID, "app_id", id)
	}
	run.AppID = appID

	build := run.Step(domain.StepBuild)
	submit := s.tasks.SubmitAction
	if req.BuildToTest != "" {
		submit = s.tasks.BuildToTest
	}
	last, err := s.submitAndWait(ctx, run, build, nil, req, submit, client.ActionRequest{
		Action:      actionFuse,
		AppID:       appID,
		FusionSetID: req.FusionSetID,
		Overrides:   build.Overrides,
	})
	if err != nil {
		return err
	}

	if sign := run.Step(domain.StepSign); sign != nil {
		last, err = s.submitAndWait(ctx, run, sign, build, req, s.tasks.SubmitAction, signAction(req.Sign, sign, build.TaskID))
		if err != nil {
			return err
		}
	}

	download := run.Step(domain.StepDownload)
	if download == nil {
		return nil
	}
	return s.download(ctx, run, download, last, req)
}

type submitFunc func(ctx context.Context, ar client.ActionRequest) (string, error)

// submitAndWait submits one action step and blocks until its task is terminal.
// dependency, when set, must be completed before the step is submitted.
func (s *WorkflowService) submitAndWait(
	ctx context.Context,
	run *domain.Run,
	step, dependency *domain.WorkflowStep,
	req Request,
	submit submitFunc,
	ar client.ActionRequest,
) (*poller.Result, error) {
	if !step.Ready(dependency) {
		return nil, s.fail(run, step, fmt.Errorf("step %s submitted before %s completed", step.Name, dependency.Name))
	}
	if dependency != nil {
		step.InputTaskID = dependency.TaskID
	}

	s.begin(run, step)
	metrics.StepsSubmitted.WithLabelValues(string(step.Name)).Inc()

	taskID, err := submit(ctx, ar)
	if err != nil {
		return nil, s.fail(run, step, err)
	}
	step.TaskID = taskID
	run.TaskID = taskID
	s.logger.Info("task submitted", "run_id", run.ID, "step", step.Name, "action", step.Action, "task_id", taskID)
	s.record(ctx, run, false)

	res, err := s.waiter.Wait(ctx, taskID, poller.WaitOptions{Operation: string(step.Name), Sink: req.Sink})
	if err != nil {
		return res, s.fail(run, step, fmt.Errorf("%s task %s: %w", step.Name, taskID, err))
	}

	s.complete(ctx, run, step)
	return res, nil
}

func signAction(opts SignOptions, step *domain.WorkflowStep, parentTaskID string) client.ActionRequest {
	ar := client.ActionRequest{
		Action:       opts.Method,
		ParentTaskID: parentTaskID,
		Overrides:    step.Overrides,
	}

	if opts.Method == SignOnService {
		ar.Attachments = append(ar.Attachments, client.Attachment{Field: keystoreField, Path: opts.KeystorePath})
		ar.Fields = append(ar.Fields, client.Field{Name: "keystore_pass", Value: opts.KeystorePass})
		if opts.KeystoreAlias != "" {
			ar.Fields = append(ar.Fields, client.Field{Name: "keystore_alias", Value: opts.KeystoreAlias})
		}
		if opts.KeyPass != "" {
			ar.Fields = append(ar.Fields, client.Field{Name: "key_pass", Value: opts.KeyPass})
		}
	}

	for _, path := range opts.ProvisioningProfiles {
		ar.Attachments = append(ar.Attachments, client.Attachment{Field: profileField, Path: path})
	}
	for _, path := range opts.Entitlements {
		ar.Attachments = append(ar.Attachments, client.Attachment{Field: entitlementsField, Path: path})
	}
	return ar
}

func (s *WorkflowService) download(ctx context.Context, run *domain.Run, step *domain.WorkflowStep, last *poller.Result, req Request) error {
	var dependency *domain.WorkflowStep
	if sign := run.Step(domain.StepSign); sign != nil {
		dependency = sign
	} else {
		dependency = run.Step(domain.StepBuild)
	}
	if !step.Ready(dependency) {
		return s.fail(run, step, fmt.Errorf("download requested before %s completed", dependency.Name))
	}
	step.InputTaskID = dependency.TaskID
	s.begin(run, step)

	targets, err := downloadTargets(req.Outputs, last, s.logger)
	if err != nil {
		return s.fail(run, step, err)
	}

	results, err := s.downloader.DownloadAll(ctx, step.InputTaskID, targets)
	run.Downloads = results
	if err != nil {
		return s.fail(run, step, err)
	}
	s.complete(ctx, run, step)

	archive, ok := downloaded(results, worker.KindMapping)
	if ok && len(req.MappingUploaders) > 0 {
		// Mapping uploads never fail the run.
		if _, err := mapping.UploadArchive(ctx, archive, req.MappingUploaders, s.logger); err != nil {
			s.logger.Warn("deobfuscation mapping upload incomplete", "run_id", run.ID, "error", err)
		}
	}
	return nil
}

type artifactPath struct {
	kind string
	path string
}

func downloadTargets(out Outputs, last *poller.Result, logger *slog.Logger) ([]worker.Target, error) {
	paths := []artifactPath{
		{worker.KindOutput, out.Output},
		{worker.KindCertificatePDF, out.Certificate},
		{worker.KindCertificateJSON, out.CertificateJSON},
	}

	if out.Mapping != "" {
		if last != nil && last.Response != nil && last.Response.ObfuscationMapExists {
			paths = append(paths, artifactPath{worker.KindMapping, out.Mapping})
		} else {
			logger.Warn("deobfuscation mapping requested but the task reported none", "path", out.Mapping)
		}
	}

	var targets []worker.Target
	for _, p := range paths {
		if p.path == "" {
			continue
		}
		t, err := worker.NewTarget(p.kind, p.path)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// downloaded returns the local path of the successful download of kind.
func downloaded(results []domain.DownloadResult, kind string) (string, bool) {
	for _, r := range results {
		if r.Kind == kind && r.Success {
			return r.Path, true
		}
	}
	return "", false
}

func (s *WorkflowService) begin(run *domain.Run, step *domain.WorkflowStep) {
	step.Status = domain.StepStatusInProgress
	step.StartedAt = time.Now()
	s.logger.Debug("step started", "run_id", run.ID, "step", step.Name)
}

func (s *WorkflowService) complete(ctx context.Context, run *domain.Run, step *domain.WorkflowStep) {
	step.Status = domain.StepStatusCompleted
	step.FinishedAt = time.Now()
	s.record(ctx, run, false)
}

// fail marks step failed and every later pending step skipped.
func (s *WorkflowService) fail(run *domain.Run, step *domain.WorkflowStep, err error) error {
	step.Status = domain.StepStatusFailed
	step.Error = err.Error()
	step.FinishedAt = time.Now()
	for _, other := range run.Steps {
		if other.Status == domain.StepStatusPending {
			other.Status = domain.StepStatusSkipped
		}
	}
	return err
}

// record persists run. History failures are logged and never abort the run.
func (s *WorkflowService) record(ctx context.Context, run *domain.Run, create bool) {
	if s.runs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var err error
	if create {
		err = s.runs.CreateRun(ctx, run)
	} else {
		err = s.runs.UpdateRun(ctx, run)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
}
