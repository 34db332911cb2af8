package mapping

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

type recordingRunner struct {
	name string
	args []string
	seen map[string]bool
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.name = name
	r.args = args
	r.seen = make(map[string]bool)
	for _, a := range args {
		if _, err := os.Stat(a); err == nil {
			r.seen[a] = true
		}
	}
	return nil
}

func TestCrashlyticsUpload(t *testing.T) {
	archive := writeZip(t, map[string]string{
		CrashlyticsMappingIDFile: "<resources/>",
		MappingFile:              "a -> b",
	})
	runner := &recordingRunner{}
	bindings := []Binding{{Uploader: NewCrashlytics("", runner), Credential: "1:123:android:abc"}}

	results, err := UploadArchive(context.Background(), archive, bindings, testLogger())
	require.NoError(t, err)
	assert.Equal(t, ResultUploaded, results["crashlytics"])

	assert.Equal(t, "firebase", runner.name)
	require.Len(t, runner.args, 4)
	assert.Equal(t, "crashlytics:mappingfile:upload", runner.args[0])
	assert.Equal(t, "--app=1:123:android:abc", runner.args[1])
	assert.Contains(t, runner.args[2], "--resource-file=")
	assert.Equal(t, MappingFile, filepath.Base(runner.args[3]))
	assert.True(t, runner.seen[runner.args[3]], "mapping file must exist while the command runs")

	_, err = os.Stat(filepath.Dir(runner.args[3]))
	assert.True(t, os.IsNotExist(err), "temporary directory must be removed")
}

func TestCrashlyticsSkipsWithoutMappingFile(t *testing.T) {
	archive := writeZip(t, map[string]string{CrashlyticsMappingIDFile: "<resources/>"})
	runner := &recordingRunner{}
	bindings := []Binding{{Uploader: NewCrashlytics("firebase", runner), Credential: "app"}}

	results, err := UploadArchive(context.Background(), archive, bindings, testLogger())
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, results["crashlytics"])
	assert.Empty(t, runner.name)
}

func TestDataDogUpload(t *testing.T) {
	type captured struct {
		header http.Header
		event  map[string]string
		parts  map[string]string
		files  map[string]string
	}
	var got captured

	r := chi.NewRouter()
	r.Post("/api/v2/srcmap", func(w http.ResponseWriter, r *http.Request) {
		got.header = r.Header.Clone()
		got.parts = map[string]string{}
		got.files = map[string]string{}

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			body, _ := io.ReadAll(p)
			got.parts[p.FormName()] = string(body)
			got.files[p.FormName()] = p.FileName()
		}
		require.NoError(t, json.Unmarshal([]byte(got.parts["event"]), &got.event))
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	archive := writeZip(t, map[string]string{
		DataDogMetadataFile: `{"build_id":"b-1","service_name":"shop","version":"2.0"}`,
		MappingFile:         "a -> b",
	})
	bindings := []Binding{{Uploader: NewDataDog(srv.URL+"/api/v2/srcmap", srv.Client()), Credential: "dd-key"}}

	results, err := UploadArchive(context.Background(), archive, bindings, testLogger())
	require.NoError(t, err)
	assert.Equal(t, ResultUploaded, results["datadog"])

	assert.Equal(t, "dd-key", got.header.Get("dd-api-key"))
	assert.Equal(t, "dd-sdk-android-gradle-plugin", got.header.Get("dd-evp-origin"))
	assert.Equal(t, "1.13.0", got.header.Get("dd-evp-origin-version"))
	assert.Equal(t, map[string]string{
		"build_id": "b-1",
		"service":  "shop",
		"type":     "jvm_mapping_file",
		"version":  "2.0",
	}, got.event)
	assert.Equal(t, "a -> b", got.parts["jvm_mapping_file"])
	assert.Equal(t, "event.json", got.files["event"])
}

func TestDataDogRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	archive := writeZip(t, map[string]string{
		DataDogMetadataFile: `{"build_id":"b","service_name":"s","version":"1"}`,
		MappingFile:         "x",
	})
	bindings := []Binding{{Uploader: NewDataDog(srv.URL, srv.Client()), Credential: "k"}}

	results, err := UploadArchive(context.Background(), archive, bindings, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.NotContains(t, results, "datadog")
}

func TestUploadArchiveWithoutBindings(t *testing.T) {
	results, err := UploadArchive(context.Background(), "missing.zip", nil, testLogger())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUploadArchiveRejectsEscapingEntries(t *testing.T) {
	archive := writeZip(t, map[string]string{"../evil.txt": "x"})
	bindings := []Binding{{Uploader: NewCrashlytics("", &recordingRunner{}), Credential: "app"}}

	_, err := UploadArchive(context.Background(), archive, bindings, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, errpkg.ErrInvalidInput)
}

func TestSelect(t *testing.T) {
	assert.Empty(t, Select("", "", "", "", nil))

	bindings := Select("app", "key", "", "", nil)
	require.Len(t, bindings, 2)
	assert.Equal(t, "crashlytics", bindings[0].Uploader.Name())
	assert.Equal(t, "app", bindings[0].Credential)
	assert.Equal(t, "datadog", bindings[1].Uploader.Name())
	assert.Equal(t, "key", bindings[1].Credential)
}
