// Package vpath canonicalizes and validates virtual paths.
//
// A canonical virtual path uses forward slashes, starts with exactly one
// slash, has no trailing slash (except the root "/"), no repeated slashes,
// and no empty segments. Validation is pure: no filesystem access, no side
// effects. Every write that accepts a caller-supplied path runs through
// Normalize before touching the metadata store.
package vpath

import (
	"strings"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

const (
	// MaxPathLen is the maximum accepted length of a caller-supplied path.
	MaxPathLen = 4096

	// MaxCanonicalLen is the maximum length of a stored canonical path.
	MaxCanonicalLen = 2048

	// MaxNameLen is the maximum length of a single path segment.
	MaxNameLen = 255
)

// Root is the canonical root path.
const Root = "/"

// reservedNames are platform device names disallowed as segment names,
// matched case-insensitively against the segment base (before the first dot).
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// Normalize canonicalizes a caller-supplied path and validates every
// segment. It returns the canonical form or a StoreError with code
// ErrInvalidPath / ErrPathTooLong.
func Normalize(path string) (string, error) {
	if len(path) > MaxPathLen {
		return "", &metadata.StoreError{
			Code:    metadata.ErrPathTooLong,
			Message: "path exceeds maximum length",
		}
	}

	// Accept Windows-style separators from clients
	p := strings.ReplaceAll(path, "\\", "/")
	p = strings.Trim(p, "/")

	if p == "" {
		return Root, nil
	}

	// Consecutive separators collapse; only non-empty segments are validated.
	segments := make([]string, 0, strings.Count(p, "/")+1)
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		if err := ValidateName(seg); err != nil {
			if se, ok := err.(*metadata.StoreError); ok && se.Path == "" {
				se.Path = path
			}
			return "", err
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return Root, nil
	}

	canonical := "/" + strings.Join(segments, "/")
	if len(canonical) > MaxCanonicalLen {
		return "", &metadata.StoreError{
			Code:    metadata.ErrPathTooLong,
			Message: "canonical path exceeds maximum length",
			Path:    canonical[:64] + "...",
		}
	}

	return canonical, nil
}

// ValidateName validates a single path segment (a file or folder name).
func ValidateName(name string) error {
	if name == "" {
		return &metadata.StoreError{
			Code:    metadata.ErrInvalidPath,
			Message: "empty path segment",
		}
	}

	if len(name) > MaxNameLen {
		return &metadata.StoreError{
			Code:    metadata.ErrPathTooLong,
			Message: "path segment exceeds maximum length",
		}
	}

	if strings.Trim(name, ". ") == "" {
		// Covers ".", "..", "...", and all-space names; ".." doubles as the
		// traversal rejection.
		return &metadata.StoreError{
			Code:    metadata.ErrInvalidPath,
			Message: "path segment consists solely of dots or spaces",
			Path:    name,
		}
	}

	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidPath,
				Message: "path segment contains a disallowed character",
				Path:    name,
			}
		}
	}

	base := name
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if _, reserved := reservedNames[strings.ToLower(base)]; reserved {
		return &metadata.StoreError{
			Code:    metadata.ErrInvalidPath,
			Message: "path segment is a reserved device name",
			Path:    name,
		}
	}

	return nil
}

// Split breaks a canonical path into its segments. The root path yields an
// empty slice.
func Split(canonical string) []string {
	trimmed := strings.Trim(canonical, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Join appends a name to a canonical parent path.
func Join(parent, name string) string {
	if parent == Root || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

// Parent returns the canonical parent path ("/" for root-level paths).
func Parent(canonical string) string {
	i := strings.LastIndexByte(canonical, '/')
	if i <= 0 {
		return Root
	}
	return canonical[:i]
}

// Base returns the final segment of a canonical path ("" for the root).
func Base(canonical string) string {
	if canonical == Root {
		return ""
	}
	i := strings.LastIndexByte(canonical, '/')
	return canonical[i+1:]
}
