package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/veranemoloko/fusionctl/internal/domain"
	"github.com/veranemoloko/fusionctl/internal/metrics"
	"github.com/veranemoloko/fusionctl/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Artifact kinds a completed task can provide.
const (
	KindOutput          = "output"
	KindCertificatePDF  = "certificate_pdf"
	KindCertificateJSON = "certificate_json"
	KindMapping         = "deobfuscation_mapping"
)

// ArtifactOpener returns a validated artifact stream for a task.
type ArtifactOpener interface {
	OpenArtifact(ctx context.Context, taskID, command, action string) (io.ReadCloser, error)
}

// Target is one artifact to fetch and where to persist it.
type Target struct {
	Kind    string
	Command string
	Action  string
	Path    string
	// PrettyJSON re-indents the payload before it is written.
	PrettyJSON bool
}

// NewTarget returns the target for a well-known artifact kind.
func NewTarget(kind, path string) (Target, error) {
	switch kind {
	case KindOutput:
		return Target{Kind: kind, Command: "output", Path: path}, nil
	case KindCertificatePDF:
		return Target{Kind: kind, Command: "certificate", Path: path}, nil
	case KindCertificateJSON:
		return Target{Kind: kind, Command: "certificate", Action: "certificate_json", Path: path, PrettyJSON: true}, nil
	case KindMapping:
		return Target{Kind: kind, Command: "deobfuscation_script", Path: path}, nil
	default:
		return Target{}, fmt.Errorf("unknown artifact kind %q", kind)
	}
}

// DownloadWorker fetches task artifacts and stores them in FileStorage.
type DownloadWorker struct {
	fileStorage *storage.FileStorage
	opener      ArtifactOpener
	concurrency int
	logger      *slog.Logger
}

// NewDownloadWorker creates a new DownloadWorker. concurrency bounds the
// number of parallel fetches.
func NewDownloadWorker(fileStorage *storage.FileStorage, opener ArtifactOpener, concurrency int, logger *slog.Logger) *DownloadWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &DownloadWorker{
		fileStorage: fileStorage,
		opener:      opener,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Download fetches a single artifact. The response is validated before the
// destination is touched and the file only appears once fully written.
func (w *DownloadWorker) Download(ctx context.Context, taskID string, target Target) (domain.DownloadResult, error) {
	result := domain.DownloadResult{
		Kind:    target.Kind,
		Path:    w.fileStorage.Path(target.Path),
		Success: false,
	}
	metrics.DownloadsTotal.Inc()

	body, err := w.opener.OpenArtifact(ctx, taskID, target.Command, target.Action)
	if err != nil {
		return w.fail(result, err)
	}
	defer body.Close()

	var src io.Reader = body
	if target.PrettyJSON {
		raw, err := io.ReadAll(body)
		if err != nil {
			return w.fail(result, fmt.Errorf("read %s: %w", target.Kind, err))
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "    "); err != nil {
			return w.fail(result, fmt.Errorf("format %s: %w", target.Kind, err))
		}
		src = &pretty
	}

	n, err := w.fileStorage.CommitFile(src, target.Path)
	if err != nil {
		return w.fail(result, err)
	}

	result.BytesRead = n
	result.Success = true
	metrics.DownloadsSuccess.Inc()
	metrics.DownloadBytes.Add(float64(n))
	w.logger.Info("artifact downloaded", "task_id", taskID, "kind", target.Kind, "path", result.Path, "bytes", n)

	return result, nil
}

func (w *DownloadWorker) fail(result domain.DownloadResult, err error) (domain.DownloadResult, error) {
	result.Error = err.Error()
	metrics.DownloadsFailed.Inc()
	w.logger.Error("download failed",
		"kind", result.Kind,
		"path", result.Path,
		"error", err,
	)
	return result, err
}

// DownloadAll fetches every target for taskID concurrently. Targets are
// independent: a failure neither cancels the others nor removes files
// already written. All failures are returned joined.
func (w *DownloadWorker) DownloadAll(ctx context.Context, taskID string, targets []Target) ([]domain.DownloadResult, error) {
	results := make([]domain.DownloadResult, len(targets))

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(w.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			result, err := w.Download(ctx, taskID, target)
			results[i] = result
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", target.Kind, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		w.logger.Error("task download failed",
			"task_id", taskID,
			"failed", len(errs),
			"total", len(targets),
		)
		return results, fmt.Errorf("download task artifacts: %w", err)
	}

	return results, nil
}
