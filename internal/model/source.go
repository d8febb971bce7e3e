package model

import "context"

// Source is a stream of captured packets.
type Source interface {
	// Name identifies the source in logs and status output.
	Name() string

	// Open acquires the underlying capture resource. Errors returned here are
	// capture errors and abort detector start-up.
	Open() error

	// Run delivers packets to emit until ctx is cancelled or the source is
	// exhausted. emit must not block.
	Run(ctx context.Context, emit func(*Packet)) error

	// Close releases the capture resource.
	Close() error
}
