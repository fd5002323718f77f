package containerfs

import (
	"path"
	"strings"

	"github.com/aisu-run/aisu-core/pkg/apperr"
)

const (
	// BasePath is the in-container root of the VFS, the unprivileged
	// account's home.
	BasePath = "/home/aisu"

	maxPathLen    = 4096
	maxSegmentLen = 255
)

// Normalize validates a client-supplied VFS path and returns its clean
// form. A valid path is absolute, fits the length limits, and contains
// no whole ".." segment. The substring ".." inside a segment is fine.
func Normalize(p string) (string, error) {
	if p == "" {
		return "", apperr.New(apperr.ValidationFailed, "Path must not be empty")
	}
	if !strings.HasPrefix(p, "/") {
		return "", apperr.New(apperr.ValidationFailed, "Path must be absolute")
	}
	if len(p) > maxPathLen {
		return "", apperr.New(apperr.ValidationFailed, "Path is too long")
	}
	if strings.ContainsRune(p, 0) {
		return "", apperr.New(apperr.ValidationFailed, "Path contains invalid characters")
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", apperr.New(apperr.ValidationFailed, "Path must not contain '..' segments")
		}
		if len(segment) > maxSegmentLen {
			return "", apperr.New(apperr.ValidationFailed, "Path segment is too long")
		}
	}
	return path.Clean(p), nil
}

// ContainerPath translates a normalized VFS path to its in-container
// location. Translation only prefixes, so a validated path can never
// address anything outside the base.
func ContainerPath(vfsPath string) string {
	if vfsPath == "/" {
		return BasePath
	}
	return BasePath + vfsPath
}

// VFSPath is the inverse of ContainerPath
func VFSPath(containerPath string) string {
	trimmed := strings.TrimPrefix(containerPath, BasePath)
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// Base returns the final segment of a VFS path
func Base(p string) string {
	return path.Base(p)
}

// Dir returns the parent of a VFS path
func Dir(p string) string {
	return path.Dir(p)
}

// Join joins VFS path segments
func Join(elem ...string) string {
	return path.Join(elem...)
}
