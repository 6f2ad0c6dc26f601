package siridb

import "errors"

// Sentinel errors returned by the Heartbeat scheduler.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRegistryRequired is returned when the membership registry is nil.
	ErrRegistryRequired = errors.New("membership registry is required")

	// ErrConnectorRequired is returned when the connector is nil.
	ErrConnectorRequired = errors.New("connector is required")

	// ErrAlreadyStarted is returned when Start is called on a scheduler that
	// is already running.
	ErrAlreadyStarted = errors.New("heartbeat already started")

	// ErrCancelled is returned when Start is called after Cancel.
	ErrCancelled = errors.New("heartbeat cancelled")
)
