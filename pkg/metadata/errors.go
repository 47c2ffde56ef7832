package metadata

import "errors"

// StoreError represents a domain error from metadata operations.
//
// These are business logic errors (node not found, name conflict, move into
// own subtree, etc.) as opposed to infrastructure errors (disk failure,
// database corruption). Transport adapters translate StoreError codes into
// their own wire-level error kinds; the codes below are the stable contract.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the virtual path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrInvalidPath indicates a virtual path failed normalization or
	// validation (empty segment, reserved name, traversal, bad character).
	ErrInvalidPath ErrorCode = iota

	// ErrPathTooLong indicates the path or one of its segments exceeds the
	// configured length limits.
	ErrPathTooLong

	// ErrNotFound indicates the requested node, file or folder doesn't exist.
	ErrNotFound

	// ErrAlreadyExists indicates a non-deleted sibling with the same name
	// already exists under the target parent.
	ErrAlreadyExists

	// ErrNotADirectory indicates an operation expected a folder but the
	// existing node is a file.
	ErrNotADirectory

	// ErrDirectoryNotEmpty indicates a folder operation requires an empty
	// folder but children are present.
	ErrDirectoryNotEmpty

	// ErrAccessDenied indicates an attempt to observe or mutate a node that
	// belongs to a different owner.
	ErrAccessDenied

	// ErrCycleDetected indicates a move would relocate a folder into itself
	// or one of its own descendants.
	ErrCycleDetected

	// ErrSessionNotFound indicates an unknown or already-terminal transfer
	// session id.
	ErrSessionNotFound

	// ErrSessionExpired indicates a session was reclaimed after exceeding its
	// idle timeout.
	ErrSessionExpired

	// ErrChunkIndexOutOfRange indicates a chunk index outside [0, totalChunks).
	ErrChunkIndexOutOfRange

	// ErrChecksumMismatch indicates the assembled upload content does not
	// match the checksum supplied at completion.
	ErrChecksumMismatch

	// ErrDiskFull indicates the durable store ran out of space.
	ErrDiskFull

	// ErrInvalidArgument indicates invalid parameters were provided
	// (negative size, non-positive chunk size, bad limit, etc.).
	ErrInvalidArgument

	// ErrCancelled indicates the caller's context was cancelled between
	// discrete steps of an operation.
	ErrCancelled

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout

	// ErrUnknown indicates an unclassified internal failure.
	ErrUnknown
)

// String returns the stable name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidPath:
		return "InvalidPath"
	case ErrPathTooLong:
		return "PathTooLong"
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotADirectory:
		return "NotADirectory"
	case ErrDirectoryNotEmpty:
		return "DirectoryNotEmpty"
	case ErrAccessDenied:
		return "AccessDenied"
	case ErrCycleDetected:
		return "CycleDetected"
	case ErrSessionNotFound:
		return "SessionNotFound"
	case ErrSessionExpired:
		return "SessionExpired"
	case ErrChunkIndexOutOfRange:
		return "ChunkIndexOutOfRange"
	case ErrChecksumMismatch:
		return "ChecksumMismatch"
	case ErrDiskFull:
		return "DiskFull"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrCancelled:
		return "Cancelled"
	case ErrTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// CodeOf extracts the ErrorCode from an error chain. Errors without a
// StoreError in the chain map to ErrUnknown.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrUnknown
}

// IsCode reports whether the error chain contains a StoreError with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == code
}
