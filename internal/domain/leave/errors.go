package leave

import "errors"

var (
	// ErrBadForm is returned when an approval form carries no usable period.
	ErrBadForm = errors.New("unparseable leave form")
	// ErrIncomplete is returned when an approval event lacks user or period.
	ErrIncomplete = errors.New("incomplete leave information")
)
