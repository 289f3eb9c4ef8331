// Package telemetry writes rfstick device activity to InfluxDB.
//
// A Sink attaches to a client and records every device state change as a
// time-series point (method, dim level), plus raw traffic volume per
// controller. Writes are batched and non-blocking; a full buffer drops
// points rather than delaying event delivery.
package telemetry
