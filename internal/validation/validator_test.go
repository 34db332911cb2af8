package validation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "https", input: "https://fusion.appdome.com/"},
		{name: "http with port", input: "http://127.0.0.1:8080"},
		{name: "empty", input: "", wantErr: true},
		{name: "invalid scheme", input: "ftp://example.com", wantErr: true},
		{name: "missing host", input: "https:///path", wantErr: true},
		{name: "relative", input: "fusion.appdome.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.input)
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	dir := t.TempDir()

	if err := ValidateOutputPath(""); err != nil {
		t.Errorf("empty path should be accepted: %v", err)
	}

	if err := ValidateOutputPath(dir); err == nil {
		t.Errorf("expected error for directory output path")
	}

	nested := filepath.Join(dir, "out", "nested", "app.apk")
	if err := ValidateOutputPath(nested); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info, err := os.Stat(filepath.Dir(nested)); err != nil || !info.IsDir() {
		t.Errorf("expected parent directory to be created")
	}
}

func TestSanitizePath(t *testing.T) {
	if got := SanitizePath(`  "/tmp/my map.zip" `); got != "/tmp/my map.zip" {
		t.Errorf("unexpected sanitized path %q", got)
	}
}

func TestStruct(t *testing.T) {
	type req struct {
		Vendor string `validate:"oneof=bitbar saucelabs"`
	}
	if err := Struct(req{Vendor: "bitbar"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Struct(req{Vendor: "other"}); err == nil {
		t.Errorf("expected error for unknown vendor")
	}
}
