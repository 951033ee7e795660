package vfs

import (
	"errors"
	"strings"
)

// Common path-related errors.
var (
	ErrEmptyPath   = errors.New("vfs: empty path")
	ErrInvalidPath = errors.New("vfs: invalid path")
	ErrPathTooLong = errors.New("vfs: path too long")
)

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 4096

// Clean normalizes the path by removing unnecessary elements and resolving
// "." and "..". It operates on string paths without filesystem access.
func Clean(p string) string {
	if p == "" {
		return "/"
	}

	// Ensure we use forward slashes
	p = strings.ReplaceAll(p, "\\", "/")

	// Handle root
	if p[0] != '/' {
		p = "/" + p
	}

	// Split into components
	components := strings.Split(p, "/")
	var result []string

	for _, comp := range components {
		switch comp {
		case "", ".":
			// Skip empty and current directory
			continue
		case "..":
			// Go up one level, but not past root
			if len(result) > 0 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, comp)
		}
	}

	// Reconstruct path
	if len(result) == 0 {
		return "/"
	}

	return "/" + strings.Join(result, "/")
}

// IsAbs returns true if the path is absolute.
func IsAbs(p string) bool {
	return strings.HasPrefix(p, "/")
}

// DirName returns all but the last element of the path.
func DirName(p string) string {
	p = Clean(p)

	lastSlash := strings.LastIndex(p, "/")
	if lastSlash == 0 {
		return "/"
	}

	return p[:lastSlash]
}

// Base returns the last element of the path.
func Base(p string) string {
	p = Clean(p)

	lastSlash := strings.LastIndex(p, "/")
	if lastSlash == len(p)-1 {
		return ""
	}

	return p[lastSlash+1:]
}

// Split splits the path into directory and base components.
func Split(p string) (dir, base string) {
	p = Clean(p)

	lastSlash := strings.LastIndex(p, "/")
	if lastSlash == 0 {
		return "/", p[1:]
	}

	return p[:lastSlash], p[lastSlash+1:]
}

// Join joins any number of path elements into a single path.
func Join(elem ...string) string {
	return Clean(strings.Join(elem, "/"))
}

// ValidatePath checks if the path is valid for use in the VFS.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}

	if len(p) > MaxPathLength {
		return ErrPathTooLong
	}

	// Check for null bytes
	if strings.Contains(p, "\x00") {
		return ErrInvalidPath
	}

	return nil
}

// mountMatches reports whether mountpoint is a prefix of path aligned on a
// path component boundary: the matched prefix must be followed by '/' or
// end-of-string, or be the single-character root.
func mountMatches(mountpoint, path string) bool {
	if mountpoint == "/" {
		return IsAbs(path)
	}
	if !strings.HasPrefix(path, mountpoint) {
		return false
	}
	rest := path[len(mountpoint):]
	return rest == "" || rest[0] == '/'
}

// relativeTo strips mountpoint from path along with a single leading
// separator. The result is relative to the volume root; an empty string
// stands for the root itself.
func relativeTo(mountpoint, path string) string {
	rest := strings.TrimPrefix(path, mountpoint)
	rest = strings.TrimPrefix(rest, "/")
	return rest
}
