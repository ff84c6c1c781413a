package cert

import (
	"path/filepath"
	"strings"
)

// Default certificate layout under the profile directory.
const (
	// DefaultDirName is the directory under the profile that holds TLS material.
	DefaultDirName = "tls"

	// DefaultFileExt is the certificate bundle file extension.
	DefaultFileExt = "pem"
)

// Locator resolves the certificate bundle path for an application profile.
// Resolution is pure: no filesystem access, no existence checks. Loading
// and its failures belong to the caller.
type Locator struct {
	// ProfileDir is the application profile directory.
	ProfileDir string

	// AppID names the bundle file (without extension).
	AppID string

	// DirName is the subdirectory holding TLS material. Empty means
	// DefaultDirName.
	DirName string

	// FileExt is the bundle extension without the dot. Empty means
	// DefaultFileExt.
	FileExt string
}

// NewLocator creates a Locator with the default directory name and
// extension filled in.
func NewLocator(profileDir, appID string) Locator {
	return Locator{
		ProfileDir: profileDir,
		AppID:      appID,
		DirName:    DefaultDirName,
		FileExt:    DefaultFileExt,
	}
}

// Resolve returns the bundle path to use. A non-empty override is returned
// verbatim, with no existence check and no fallback; otherwise the default
// profile layout applies: <profile>/<dir>/<appID>.<ext>.
func (l Locator) Resolve(override string) string {
	if override != "" {
		return override
	}

	dir := l.DirName
	if dir == "" {
		dir = DefaultDirName
	}
	ext := l.FileExt
	if ext == "" {
		ext = DefaultFileExt
	}
	ext = strings.TrimPrefix(ext, ".")

	return filepath.Join(l.ProfileDir, dir, l.AppID+"."+ext)
}
