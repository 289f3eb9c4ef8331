// Package mqttpub republishes rfstick events to an MQTT broker.
//
// A Publisher attaches to a client and forwards device state changes,
// raw transceiver data, and registry changes as JSON envelopes under a
// configurable topic prefix, so MQTT-speaking systems can follow the RF
// network without linking against the client library.
package mqttpub
