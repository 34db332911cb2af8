package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/veranemoloko/fusionctl/internal/client"
	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
	"github.com/veranemoloko/fusionctl/internal/storage"
)

func makeTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "downloadworker_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T, handler http.Handler) (*DownloadWorker, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := client.New(client.Config{BaseURL: server.URL, APIKey: "k", Logger: newTestLogger()})
	if err != nil {
		t.Fatalf("client.New error: %v", err)
	}

	dir := makeTempDir(t)
	return NewDownloadWorker(storage.NewFileStorage(dir), c, 3, newTestLogger()), dir
}

func artifactRouter(t *testing.T) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/tasks/{taskID}/{command}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "taskID") != "T1" {
			http.NotFound(w, r)
			return
		}
		switch chi.URLParam(r, "command") {
		case "output":
			_, _ = w.Write([]byte{0x50, 0x4b, 0x03, 0x04})
		case "certificate":
			if r.URL.Query().Get("action") == "certificate_json" {
				_, _ = io.WriteString(w, `{"app":"demo","secure":true}`)
				return
			}
			_, _ = io.WriteString(w, "%PDF-1.7")
		default:
			http.Error(w, "unknown output", http.StatusBadRequest)
		}
	})
	return r
}

func TestDownloadWorker_Download(t *testing.T) {
	worker, dir := newTestWorker(t, artifactRouter(t))

	target, err := NewTarget(KindOutput, "app.apk")
	if err != nil {
		t.Fatalf("NewTarget error: %v", err)
	}

	result, err := worker.Download(context.Background(), "T1", target)
	if err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if !result.Success || result.BytesRead != 4 {
		t.Errorf("unexpected result: %+v", result)
	}

	data, err := os.ReadFile(filepath.Join(dir, "app.apk"))
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(data) != "PK\x03\x04" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestDownloadWorker_CertificateJSONIsIndented(t *testing.T) {
	worker, dir := newTestWorker(t, artifactRouter(t))

	target, _ := NewTarget(KindCertificateJSON, "cert.json")
	if _, err := worker.Download(context.Background(), "T1", target); err != nil {
		t.Fatalf("Download error: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "cert.json"))
	want := "{\n    \"app\": \"demo\",\n    \"secure\": true\n}"
	if string(data) != want {
		t.Errorf("expected indented JSON %q, got %q", want, data)
	}
}

func TestDownloadWorker_RejectedResponseNotPersisted(t *testing.T) {
	worker, dir := newTestWorker(t, artifactRouter(t))

	result, err := worker.Download(context.Background(), "missing", Target{Kind: KindOutput, Command: "output", Path: "app.apk"})
	if err == nil {
		t.Fatalf("expected error for 404 response")
	}
	if !errors.Is(err, errpkg.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if result.Success {
		t.Errorf("expected Success=false")
	}
	if _, err := os.Stat(filepath.Join(dir, "app.apk")); !os.IsNotExist(err) {
		t.Errorf("rejected artifact must not be written")
	}
}

func TestDownloadWorker_DownloadAllIndependent(t *testing.T) {
	worker, dir := newTestWorker(t, artifactRouter(t))

	output, _ := NewTarget(KindOutput, "app.apk")
	pdf, _ := NewTarget(KindCertificatePDF, "cert.pdf")
	mapping, _ := NewTarget(KindMapping, "mapping.zip")

	results, err := worker.DownloadAll(context.Background(), "T1", []Target{output, mapping, pdf})
	if err == nil {
		t.Fatalf("expected joined error for the failing mapping download")
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("unexpected results: %+v", results)
	}

	for _, name := range []string{"app.apk", "cert.pdf"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be kept: %v", name, err)
		}
	}
}

func TestNewTarget_Unknown(t *testing.T) {
	if _, err := NewTarget("apk", "x"); err == nil {
		t.Errorf("expected error for unknown kind")
	}
}
