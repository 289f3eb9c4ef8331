// Package client implements the rfstick client: a connection to the
// rfstickd service for discovering and controlling RF power devices.
//
// A Client owns two connections to the service. The command connection
// carries request/response exchanges, one request in flight at a time.
// The event connection carries asynchronous pushes (device state changes,
// raw transceiver data, registry changes) which a dedicated listener
// goroutine decodes and fans out to registered callbacks.
//
// Every public operation returns a Status (or a documented empty/negative
// sentinel) rather than an error; transport and protocol failures are
// normalized at this boundary.
//
// Thread Safety:
//   - All Client methods are safe for concurrent use.
//   - Callbacks are invoked on the listener goroutine, never on the
//     caller's goroutine. A slow callback delays all subsequent event
//     delivery; callback implementers must not block.
package client
