package tracker

import "errors"

var (
	// ErrUnitNotFound: only a script may originate a unit; every other
	// artifact requires an existing row.
	ErrUnitNotFound = errors.New("production unit not found")

	// ErrDuplicateArtifact: set-if-unset violated. Callers retrying must
	// check first; the stored ref is never silently overwritten.
	ErrDuplicateArtifact = errors.New("artifact already set")

	// ErrSlotsExhausted: the per-channel slot budget is spent for that date.
	ErrSlotsExhausted = errors.New("no free slot for channel")
)
