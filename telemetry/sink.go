package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/rfstick/client"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	msPerSecond = 1000
)

// Config contains InfluxDB connection options.
type Config struct {
	// Enabled gates the sink; Connect fails with ErrDisabled when false.
	Enabled bool

	// URL is the InfluxDB server URL, e.g. "http://localhost:8086".
	URL string

	// Token is the API token used for authentication.
	Token string

	// Org and Bucket select where points are written.
	Org    string
	Bucket string

	// BatchSize is the number of points per write batch. Default: 100.
	BatchSize int

	// FlushInterval is the maximum seconds a point waits in the batch
	// buffer. Default: 10.
	FlushInterval int
}

// Sink writes device activity points to InfluxDB.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Writes are non-blocking and batched; async write failures are
//     delivered to the SetOnError callback.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      Config

	connected bool
	mu        sync.RWMutex

	onError func(err error)
}

// Connect establishes the InfluxDB connection and verifies it with a
// ping before returning.
func Connect(cfg Config) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	influxClient := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*msPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := influxClient.Ping(ctx)
	if err != nil {
		influxClient.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		influxClient.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	s := &Sink{
		client:    influxClient,
		writeAPI:  influxClient.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
	}

	go s.handleWriteErrors(s.writeAPI.Errors())

	return s, nil
}

func (s *Sink) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		s.mu.RLock()
		callback := s.onError
		s.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets a callback for asynchronous write failures.
func (s *Sink) SetOnError(callback func(err error)) {
	s.mu.Lock()
	s.onError = callback
	s.mu.Unlock()
}

// IsConnected returns the last known connection state.
func (s *Sink) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Attach registers telemetry-recording callbacks with the client. The
// returned function unregisters them.
func (s *Sink) Attach(c *client.Client) func() {
	devReg := c.RegisterDeviceEvent(func(deviceID int, method client.Method, value string) {
		s.RecordCommand(deviceID, int(method), value)
	})
	rawReg := c.RegisterRawDeviceEvent(func(_ string, controllerID int) {
		s.RecordRawTraffic(controllerID)
	})

	return func() {
		c.Unregister(devReg)
		c.Unregister(rawReg)
	}
}

// RecordCommand writes one device command point.
//
// The point carries the method code and, for dim commands, the parsed
// level so dashboards can graph brightness over time.
func (s *Sink) RecordCommand(deviceID, method int, value string) {
	if !s.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"method": method,
	}
	if level, err := strconv.Atoi(value); err == nil {
		fields["level"] = level
	}

	point := write.NewPoint(
		"device_command",
		map[string]string{
			"device_id": strconv.Itoa(deviceID),
		},
		fields,
		time.Now(),
	)

	s.writeAPI.WritePoint(point)
}

// RecordRawTraffic counts one raw message from a controller.
func (s *Sink) RecordRawTraffic(controllerID int) {
	if !s.IsConnected() {
		return
	}

	point := write.NewPoint(
		"raw_traffic",
		map[string]string{
			"controller_id": strconv.Itoa(controllerID),
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	s.writeAPI.WritePoint(point)
}

// HealthCheck verifies the server is reachable.
func (s *Sink) HealthCheck(ctx context.Context) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := s.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("telemetry health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("telemetry health check failed: server not healthy")
	}
	return nil
}

// Flush forces pending points out. Safe to call after Close (no-op).
func (s *Sink) Flush() {
	if s.writeAPI == nil || !s.IsConnected() {
		return
	}
	s.writeAPI.Flush()
}

// Close flushes pending writes and shuts the connection down.
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	s.writeAPI.Flush()
	s.client.Close()
	return nil
}
