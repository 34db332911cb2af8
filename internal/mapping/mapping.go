// Package mapping uploads deobfuscation mapping files produced by a build to
// crash-reporting backends. Uploads are best-effort: a missing file inside the
// extracted archive is reported as Skipped, never as a failure.
package mapping

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
	"github.com/veranemoloko/fusionctl/internal/metrics"
)

// MappingFile is the symbol map every backend uploads.
const MappingFile = "mapping.txt"

type Result string

const (
	ResultUploaded Result = "uploaded"
	ResultSkipped  Result = "skipped"
)

// Uploader sends the mapping file found in an extracted directory.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, credential, dir string) (Result, error)
}

// Binding pairs an uploader with the credential that selected it.
type Binding struct {
	Uploader   Uploader
	Credential string
}

// requireFiles returns ErrMalformedArtifact naming the first missing file.
func requireFiles(dir string, names ...string) error {
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("%w: missing %s", errpkg.ErrMalformedArtifact, name)
		}
	}
	return nil
}

// UploadArchive extracts archivePath into a temporary directory and runs every
// binding against it. The directory is removed on every exit path. Skips are
// logged; the first real upload error is returned after all bindings ran.
func UploadArchive(ctx context.Context, archivePath string, bindings []Binding, logger *slog.Logger) (map[string]Result, error) {
	results := make(map[string]Result, len(bindings))
	if len(bindings) == 0 {
		logger.Warn("no mapping file backend selected: a Firebase app id or a DataDog API key is required")
		return results, nil
	}

	dir, err := os.MkdirTemp("", "fusionctl-mapping-*")
	if err != nil {
		return results, fmt.Errorf("create temporary directory: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := extractZip(archivePath, dir); err != nil {
		return results, err
	}

	var errs []error
	for _, b := range bindings {
		name := b.Uploader.Name()
		logger.Info("uploading deobfuscation mapping file", "backend", name)

		res, err := b.Uploader.Upload(ctx, b.Credential, dir)
		switch {
		case errors.Is(err, errpkg.ErrMalformedArtifact):
			logger.Warn("skipping mapping file upload", "backend", name, "reason", err)
			res = ResultSkipped
		case err != nil:
			logger.Error("mapping file upload failed", "backend", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			metrics.MappingUploads.WithLabelValues(name, "error").Inc()
			continue
		}

		results[name] = res
		metrics.MappingUploads.WithLabelValues(name, string(res)).Inc()
		logger.Info("mapping file upload finished", "backend", name, "result", res)
	}

	return results, errors.Join(errs...)
}

func extractZip(archivePath, dir string) error {
	zr, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return fmt.Errorf("%w: %w", errpkg.ErrInvalidInput, err)
	}
	if err != nil {
		return fmt.Errorf("open mapping archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	root := filepath.Clean(dir) + string(os.PathSeparator)
	for _, f := range zr.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("%w: archive entry %q escapes extraction directory", errpkg.ErrInvalidInput, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
