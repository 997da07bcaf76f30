package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrConnect = errors.New("redis connect failed")
)
