package attendance

import "errors"

// Sentinel kinds for attendance errors.
var (
	ErrRecordQuery  = errors.New("fill record query failed")
	ErrInvalidRange = errors.New("invalid date range")
	ErrEmptyRoster  = errors.New("roster is empty")
)
