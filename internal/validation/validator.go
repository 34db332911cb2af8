package validation

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("base_url", validateBaseURL)
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return validate.Struct(s)
}

// ValidateBaseURL checks that raw is an absolute http(s) URL with a host.
func ValidateBaseURL(raw string) error {
	if err := validate.Var(raw, "required,base_url"); err != nil {
		return fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	return nil
}

func validateBaseURL(fl validator.FieldLevel) bool {
	urlStr := fl.Field().String()

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}

// ValidateOutputPath checks that path names a file rather than a directory
// and creates its parent directory when missing. An empty path is accepted.
func ValidateOutputPath(path string) error {
	if path == "" {
		return nil
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("output parameter [%s] should be a path to a file, not a directory", path)
	}

	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return nil
}

// SanitizePath strips surrounding whitespace and quotes from a user supplied path.
func SanitizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), `"'`)
}
