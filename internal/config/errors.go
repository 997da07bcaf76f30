package config

import (
	"errors"
)

// Sentinel errors returned by Load, Validate and RosterEntries.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
	ErrInvalidRoster = errors.New("invalid roster entry")
)
