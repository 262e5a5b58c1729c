package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an ingestion error so callers can branch on it without
// string matching.
type Kind string

const (
	// InvalidFormat covers unsupported or unrecognized file-type
	// combinations, including uploads whose cost cannot be computed.
	InvalidFormat Kind = "INVALID_FORMAT"
	// ValidationFailed covers content that parsed but is semantically
	// wrong: a non-binary mask, mismatched frame counts between paired
	// videos.
	ValidationFailed Kind = "VALIDATION_FAILED"
	// NotFound means the target dataset does not exist.
	NotFound Kind = "NOT_FOUND"
	// ResourceConflict means a dataset with the same name already exists
	// for the user.
	ResourceConflict Kind = "RESOURCE_CONFLICT"
	// Unavailable means a required external engine (the frame decoder)
	// is unreachable.
	Unavailable Kind = "UNAVAILABLE"
	// Timeout means a decode exceeded its hard bound and was killed.
	Timeout Kind = "TIMEOUT"
	// PersistenceInconsistency means a post-write verification found the
	// stored state diverging from what was written.
	PersistenceInconsistency Kind = "PERSISTENCE_INCONSISTENCY"
	// Internal is everything unclassified.
	Internal Kind = "INTERNAL"
)

// Error is the tagged error variant used across the ingestion pipeline.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind and context message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, walking the wrap chain. Untagged
// errors report Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
