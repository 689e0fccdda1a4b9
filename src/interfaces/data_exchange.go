package interfaces

import "chart-hub/src/models"

// -----------------------------------------------------------------------------
// IConnection is one registered consumer as seen by the hub.
// -----------------------------------------------------------------------------

type IConnection interface {
	// ID is unique for the lifetime of the process.
	ID() string

	// -----------------------------------------------------------------------------
	// Send queues msg for this connection only. An error means the
	// connection is gone or cannot keep up; the hub prunes it.
	Send(msg *models.MServerMessage) error

	// -----------------------------------------------------------------------------
	// Close releases the underlying transport. Must be safe to call twice.
	Close() error
}

// -----------------------------------------------------------------------------
// IDataExchanger is the outward-facing server lifecycle.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
