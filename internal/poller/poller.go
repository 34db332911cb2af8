// Package poller waits for a remote task to reach a terminal status.
//
// A Poller repeatedly queries the task status, retries transport failures
// within a fixed budget, accumulates the time it slept against a timeout and
// optionally streams progress messages to a Sink.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veranemoloko/fusionctl/internal/client"
	"github.com/veranemoloko/fusionctl/internal/domain"
	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
	"github.com/veranemoloko/fusionctl/internal/metrics"
)

// State is the poller's view of a task.
type State string

const (
	StateWaiting     State = "WAITING"
	StateProgressing State = "PROGRESSING"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
	StateTimedOut    State = "TIMED_OUT"
	StateError       State = "ERROR"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = time.Hour
	DefaultRetries  = 3
)

// StatusFetcher performs a single status query.
type StatusFetcher interface {
	Status(ctx context.Context, taskID string, q client.StatusQuery) (*domain.StatusResponse, error)
}

// Clock blocks for d or until ctx is done.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config configures a Poller. Zero values take the defaults; RetryDelay
// defaults to Interval.
type Config struct {
	Interval   time.Duration
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Clock      Clock
	Logger     *slog.Logger
}

// Poller is stateless between calls; all progress lives in the per-call
// domain.PollState.
type Poller struct {
	fetcher    StatusFetcher
	interval   time.Duration
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	clock      Clock
	logger     *slog.Logger
}

// New creates a Poller querying fetcher.
func New(fetcher StatusFetcher, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = cfg.Interval
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Poller{
		fetcher:    fetcher,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// WaitOptions tunes one Wait call.
type WaitOptions struct {
	// Operation names the step being waited on ("build", "sign"...).
	Operation string
	// Sink receives progress messages. Upload waits never request messages.
	Sink Sink
}

// Result is the outcome of a Wait call.
type Result struct {
	TaskID       string
	State        State
	Response     *domain.StatusResponse
	Poll         domain.PollState
	TotalRetries int
	Sleeps       int
	Emitted      int
	// Messages holds every new message consumed, in order.
	Messages []domain.Message
}

// Task returns the client-side view of the polled task.
func (r *Result) Task() domain.Task {
	t := domain.Task{ID: r.TaskID, Messages: r.Messages}
	if r.Response != nil {
		t.Status = r.Response.Status
	}
	return t
}

// Wait polls taskID until it reaches a terminal status, the timeout budget is
// spent, or the status call fails permanently. The returned error is nil only
// for StateCompleted.
func (p *Poller) Wait(ctx context.Context, taskID string, opts WaitOptions) (*Result, error) {
	res := &Result{TaskID: taskID, State: StateWaiting}
	detailed := opts.Sink != nil && opts.Operation != string(domain.StepUpload)

	defer func() {
		metrics.PollOutcomes.WithLabelValues(string(res.State)).Inc()
		metrics.PollDuration.Observe(res.Poll.Elapsed.Seconds())
	}()

	if detailed {
		if err := opts.Sink.Start(opts.Operation); err != nil {
			p.logger.Warn("failed to write progress header", "task_id", taskID, "error", err)
		}
	}

	for res.Poll.Elapsed < p.timeout {
		if err := ctx.Err(); err != nil {
			return res, p.cancelled(res, err)
		}

		resp, err := p.fetch(ctx, taskID, detailed, res)
		if errors.Is(err, errBudgetSpent) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, p.cancelled(res, ctxErr)
			}
			res.State = StateError
			p.logger.Error("status polling failed", "task_id", taskID, "error", err)
			return res, err
		}
		res.Response = resp

		if resp.Status.IsTerminal() {
			return res, p.finish(res, resp)
		}

		res.State = StateProgressing
		if detailed {
			p.emit(taskID, opts.Sink, resp, res)
		}

		p.logger.Debug("task in progress", "task_id", taskID, "status", resp.Status, "elapsed", res.Poll.Elapsed)
		if res.Poll.Elapsed >= p.timeout {
			break
		}
		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return res, p.cancelled(res, err)
		}
		res.Sleeps++
		res.Poll.Elapsed += p.interval
	}

	res.State = StateTimedOut
	p.logger.Error("task did not complete in the specified timeout", "task_id", taskID, "timeout", p.timeout)
	return res, fmt.Errorf("%w: task %s, timeout %s", errpkg.ErrTimeoutExceeded, taskID, p.timeout)
}

// errBudgetSpent stops a status query whose retries used up the poll timeout.
var errBudgetSpent = errors.New("poll budget spent")

// fetch runs one status query with the transport retry budget. Retry delays
// count against the poll timeout. Validation failures are not retried.
func (p *Poller) fetch(ctx context.Context, taskID string, detailed bool, res *Result) (*domain.StatusResponse, error) {
	q := client.StatusQuery{}
	if detailed {
		q = client.StatusQuery{Messages: true, LastDate: res.Poll.Cursor}
	}

	res.Poll.Retries = 0
	for {
		metrics.PollRequests.Inc()
		resp, err := p.fetcher.Status(ctx, taskID, q)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, errpkg.ErrTransport) {
			return nil, err
		}

		if res.Poll.Retries+1 >= p.retries {
			return nil, fmt.Errorf("wait for status error after %d attempts: %w", p.retries, err)
		}

		if res.Poll.Elapsed >= p.timeout {
			return nil, errBudgetSpent
		}

		res.Poll.Retries++
		res.TotalRetries++
		metrics.PollRetries.Inc()
		p.logger.Debug("wait for status error, retrying", "task_id", taskID, "attempt", res.Poll.Retries, "error", err)

		if err := p.clock.Sleep(ctx, p.retryDelay); err != nil {
			return nil, err
		}
		res.Poll.Elapsed += p.retryDelay
	}
}

func (p *Poller) finish(res *Result, resp *domain.StatusResponse) error {
	if resp.Status == domain.TaskStatusCompleted {
		res.State = StateCompleted
		p.logger.Info("task completed", "task_id", res.TaskID, "elapsed", res.Poll.Elapsed)
		return nil
	}

	res.State = StateFailed
	p.logger.Error("task not completed successfully", "task_id", res.TaskID, "status", resp.Status, "message", resp.Message)
	return &errpkg.RemoteTaskError{TaskID: res.TaskID, Status: string(resp.Status), Message: resp.Message}
}

func (p *Poller) cancelled(res *Result, cause error) error {
	res.State = StateTimedOut
	p.logger.Warn("polling cancelled", "task_id", res.TaskID, "error", cause)
	return fmt.Errorf("%w: task %s: %w", errpkg.ErrTimeoutExceeded, res.TaskID, cause)
}

// emit forwards messages newer than the cursor and advances it. Sink errors
// are logged only.
func (p *Poller) emit(taskID string, sink Sink, resp *domain.StatusResponse, res *Result) {
	for _, wire := range resp.Messages {
		msg := wire.ToMessage()
		if msg.CreationTime != "" && res.Poll.Cursor != "" && !after(msg.CreationTime, res.Poll.Cursor) {
			continue
		}
		if msg.CreationTime != "" {
			res.Poll.Cursor = msg.CreationTime
		}
		if msg.Text == "" {
			continue
		}
		res.Messages = append(res.Messages, msg)
		if err := sink.Emit(msg); err != nil {
			p.logger.Warn("failed to emit progress message", "task_id", taskID, "error", err)
			continue
		}
		res.Emitted++
	}
}

// after reports whether timestamp a is later than b. RFC 3339 values are
// compared as times; anything else falls back to string order.
func after(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		return ta.After(tb)
	}
	return a > b
}
