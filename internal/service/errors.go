package service

import "errors"

var (
	// ErrValidation indicates bad caller input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrProviderAuth indicates the provider rejected the credential or
	// authorization code. Requires re-authorization, never retried here.
	ErrProviderAuth = errors.New("provider rejected authorization")
	// ErrConnectionNotActive indicates the connection is revoked or errored.
	ErrConnectionNotActive = errors.New("connection is not active")
	// ErrSyncAlreadyRunning indicates an in-flight job already exists for the
	// connection. At most one job per connection runs at a time.
	ErrSyncAlreadyRunning = errors.New("a sync is already running for this connection")
)
