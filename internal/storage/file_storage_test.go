package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func makeTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "filestorage_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

func TestFileStorage_CommitFileReplaces(t *testing.T) {
	dir := makeTempDir(t)
	fs := NewFileStorage(dir)

	if _, err := fs.CommitFile(bytes.NewReader([]byte("first build")), "app.apk"); err != nil {
		t.Fatalf("CommitFile error: %v", err)
	}
	n, err := fs.CommitFile(bytes.NewReader([]byte("v2")), "app.apk")
	if err != nil {
		t.Fatalf("CommitFile error: %v", err)
	}

	info, err := os.Stat(fs.Path("app.apk"))
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if info.Size() != n || n != 2 {
		t.Errorf("expected size 2, got file %d, copied %d", info.Size(), n)
	}
}

func TestFileStorage_PathResolution(t *testing.T) {
	dir := makeTempDir(t)
	fs := NewFileStorage(dir)

	if got := fs.Path("app.apk"); got != filepath.Join(dir, "app.apk") {
		t.Errorf("unexpected relative resolution: %s", got)
	}

	abs := filepath.Join(makeTempDir(t), "out.apk")
	if got := fs.Path(abs); got != abs {
		t.Errorf("absolute path should be kept, got %s", got)
	}
}

func TestFileStorage_CommitFile(t *testing.T) {
	dir := makeTempDir(t)
	fs := NewFileStorage(dir)

	srcData := []byte{0x00, 0x01, 0xfe, 0xff}
	n, err := fs.CommitFile(bytes.NewReader(srcData), filepath.Join("nested", "app.apk"))
	if err != nil {
		t.Fatalf("CommitFile error: %v", err)
	}
	if n != int64(len(srcData)) {
		t.Errorf("expected copied bytes %d, got %d", len(srcData), n)
	}

	readBack, err := os.ReadFile(fs.Path(filepath.Join("nested", "app.apk")))
	if err != nil {
		t.Fatalf("failed to read committed file: %v", err)
	}
	if !bytes.Equal(readBack, srcData) {
		t.Errorf("committed content mismatch: got %v, want %v", readBack, srcData)
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestFileStorage_CommitFileFailureLeavesNothing(t *testing.T) {
	dir := makeTempDir(t)
	fs := NewFileStorage(dir)

	_, err := fs.CommitFile(io.MultiReader(bytes.NewReader([]byte("partial")), brokenReader{}), "app.apk")
	if err == nil {
		t.Fatalf("expected error from broken reader")
	}

	if _, err := os.Stat(fs.Path("app.apk")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no file after failed commit, stat error: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected temporary file to be removed, found %d entries", len(entries))
	}
}
