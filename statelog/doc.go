// Package statelog keeps a local SQLite journal of device commands and
// raw transceiver traffic.
//
// Attach a Journal to a client to record every device event and raw
// event push as it arrives; applications use the journal to answer
// "what happened to this device" without keeping their own history.
// Inserts run on a dedicated worker goroutine so the recording callbacks
// never block event delivery.
package statelog
