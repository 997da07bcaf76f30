package service

import "errors"

// Sentinel errors.
var (
	ErrNoCredentials = errors.New("no platform credentials for task")
	ErrBadPayload    = errors.New("malformed event payload")
	ErrNoChat        = errors.New("no target chat configured")
)
