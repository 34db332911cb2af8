package config

import (
	"path/filepath"
	"strings"
)

const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// PlatformOf infers the target platform from an artifact file name.
// Android packages are .apk, .aab and .aar; everything else is iOS.
func PlatformOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".apk", ".aab", ".aar":
		return PlatformAndroid
	default:
		return PlatformIOS
	}
}
