package flagger

import "errors"

var (
	// ErrRefAntInvalid is returned when the chosen reference antenna has no
	// finite gains for a polarisation. Nothing can be normalised against it,
	// so the run cannot proceed.
	ErrRefAntInvalid = errors.New("reference antenna has no valid data")

	// ErrOverFlagged is returned when more than the sanity bound of the final
	// array is non-finite. That much flagging signals an upstream defect, not
	// legitimate interference, so the result is never persisted.
	ErrOverFlagged = errors.New("solutions are over-flagged")
)
