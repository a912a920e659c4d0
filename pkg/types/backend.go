package types

import "context"

// Backend is a Store with a lifecycle. Callers attach to a backend, use it,
// and detach when done.
type Backend interface {
	Store

	// Attach connects to the backend described by config, creating DataDir
	// if it does not exist. Returns ErrAlreadyAttached if already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent. Operations after Detach
	// return ErrBackendDetached.
	Detach() error

	// Export writes one JSONL file per table into dir.
	Export(ctx context.Context, dir string) error

	// Import replaces the contents of the backend with the JSONL files in
	// dir. All or nothing: on error the backend is unchanged.
	Import(ctx context.Context, dir string) error
}
