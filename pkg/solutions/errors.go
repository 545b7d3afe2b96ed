package solutions

import "errors"

var (
	// ErrBadFormat is returned when a solutions file does not carry the
	// expected magic tag or file/structure type fields.
	ErrBadFormat = errors.New("malformed solutions file")

	// ErrShape is returned when the dimensions of a solution set are
	// inconsistent with its gain payload. This indicates a caller bug.
	ErrShape = errors.New("inconsistent solution shape")
)
