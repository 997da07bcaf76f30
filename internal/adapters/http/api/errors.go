package api

import "errors"

// Sentinel errors returned in webhook responses.
var (
	ErrBadCredentials = errors.New("malformed credential segment")
	ErrBadBody        = errors.New("unreadable webhook body")
	ErrBusy           = errors.New("event queue is full, retry later")
)
