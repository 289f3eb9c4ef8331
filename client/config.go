package client

import (
	"fmt"
	"net/url"
	"time"
)

// Default timeouts for service communication.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second

	// defaultCommandAddress and defaultEventAddress are where rfstickd
	// listens by default.
	defaultCommandAddress = "unix:///tmp/RfstickClient"
	defaultEventAddress   = "unix:///tmp/RfstickEvents"
)

// Config holds client connection configuration.
type Config struct {
	// CommandAddress is the request/response socket of the service.
	// Supported formats:
	//   - "unix:///tmp/RfstickClient" (Unix socket)
	//   - "tcp://localhost:50800" (TCP)
	CommandAddress string

	// EventAddress is the asynchronous event socket of the service.
	// Same formats as CommandAddress.
	EventAddress string

	// ConnectTimeout is the maximum time to wait for a connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout bounds each wait for a response or event frame.
	// Default: 5 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds each request write. Default: 5 seconds.
	WriteTimeout time.Duration
}

// withDefaults fills unset fields with their defaults.
func (c Config) withDefaults() Config {
	if c.CommandAddress == "" {
		c.CommandAddress = defaultCommandAddress
	}
	if c.EventAddress == "" {
		c.EventAddress = defaultEventAddress
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// parseAddress parses a service address URL into network and address
// suitable for net.Dial.
func parseAddress(addr string) (network, address string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("invalid address: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("tcp address %q has no host", addr)
		}
		return "tcp", u.Host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// Logger is the optional logging interface accepted by the client.
// It matches log/slog method signatures.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger discards all log output. Used when no logger is set.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
