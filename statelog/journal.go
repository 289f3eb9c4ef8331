package statelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/rfstick/client"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// recordQueueSize bounds the insert queue fed by event callbacks.
	// When the queue is full, entries are dropped rather than blocking
	// event delivery.
	recordQueueSize = 256

	insertTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS command_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id   INTEGER NOT NULL,
	method      INTEGER NOT NULL,
	value       TEXT NOT NULL DEFAULT '',
	origin      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_log_device ON command_log(device_id, created_at);

CREATE TABLE IF NOT EXISTS raw_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	data          TEXT NOT NULL,
	controller_id INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_log_created ON raw_log(created_at);
`

// Config contains journal configuration options.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory is created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging for concurrent reads during
	// writes. Recommended: true.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock,
	// in seconds.
	BusyTimeout int
}

// Entry is one recorded device command.
type Entry struct {
	ID        int64
	DeviceID  int
	Method    int
	Value     string
	Origin    string
	CreatedAt time.Time
}

// RawEntry is one recorded raw transceiver message.
type RawEntry struct {
	ID           int64
	Data         string
	ControllerID int
	CreatedAt    time.Time
}

// record is one queued insert.
type record struct {
	deviceID     int
	method       int
	value        string
	origin       string
	raw          bool
	data         string
	controllerID int
}

// Journal records device commands and raw traffic in SQLite.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Recording via Attach is asynchronous; History sees an entry
//     shortly after the event, not necessarily immediately.
type Journal struct {
	db   *sql.DB
	path string

	queue  chan record
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

// Open creates the journal database, applying the schema if needed.
//
// SQLite is configured with a busy timeout, foreign keys, and optional
// WAL mode; the connection pool is limited to a single connection since
// SQLite supports one writer.
func Open(cfg Config) (*Journal, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying journal database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}

	// Owner read/write only. Best effort; the file may not exist until
	// the first write.
	_ = os.Chmod(cfg.Path, filePermissions)

	j := &Journal{
		db:     db,
		path:   cfg.Path,
		queue:  make(chan record, recordQueueSize),
		closed: make(chan struct{}),
	}

	j.wg.Add(1)
	go j.worker()

	return j, nil
}

// Path returns the filesystem path of the journal database.
func (j *Journal) Path() string {
	return j.path
}

// Attach registers journal-recording callbacks with the client.
//
// Device events and raw events are queued for insertion; the returned
// function unregisters both callbacks.
func (j *Journal) Attach(c *client.Client) func() {
	devReg := c.RegisterDeviceEvent(func(deviceID int, method client.Method, value string) {
		j.enqueue(record{deviceID: deviceID, method: int(method), value: value, origin: "event"})
	})
	rawReg := c.RegisterRawDeviceEvent(func(data string, controllerID int) {
		j.enqueue(record{raw: true, data: data, controllerID: controllerID})
	})

	return func() {
		c.Unregister(devReg)
		c.Unregister(rawReg)
	}
}

// RecordCommand inserts a command entry synchronously. Use for commands
// the application itself sends, with origin naming the initiator.
func (j *Journal) RecordCommand(ctx context.Context, deviceID, method int, value, origin string) error {
	if j.isClosed() {
		return ErrClosed
	}
	if origin == "" {
		origin = "command"
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO command_log (device_id, method, value, origin, created_at) VALUES (?, ?, ?, ?, ?)",
		deviceID, method, value, origin, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command entry: %w", err)
	}
	return nil
}

// History returns recent command entries for a device, newest first.
// limit defaults to 50 and is capped at 200.
func (j *Journal) History(ctx context.Context, deviceID, limit int) ([]Entry, error) {
	if j.isClosed() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, device_id, method, value, origin, created_at
		 FROM command_log
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Method, &e.Value, &e.Origin, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command entry: %w", err)
		}

		ts, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = ts

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command history: %w", err)
	}

	return entries, nil
}

// RawHistory returns recent raw traffic entries, newest first.
func (j *Journal) RawHistory(ctx context.Context, limit int) ([]RawEntry, error) {
	if j.isClosed() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, data, controller_id, created_at
		 FROM raw_log
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying raw history: %w", err)
	}
	defer rows.Close()

	entries := make([]RawEntry, 0, limit)
	for rows.Next() {
		var e RawEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Data, &e.ControllerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning raw entry: %w", err)
		}

		ts, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = ts

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating raw history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the given duration from both tables.
// Returns the number of rows deleted.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if j.isClosed() {
		return 0, ErrClosed
	}
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	var total int64
	for _, table := range []string{"command_log", "raw_log"} {
		res, err := j.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}

	return total, nil
}

// Close drains the insert queue and closes the database. Safe to call
// multiple times.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		close(j.closed)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

// enqueue queues one insert, dropping on overflow or after close.
func (j *Journal) enqueue(r record) {
	if j.isClosed() {
		return
	}
	select {
	case j.queue <- r:
	default:
		j.dropped.Add(1)
	}
}

// Dropped returns the number of entries discarded because the insert
// queue was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// worker drains the insert queue.
func (j *Journal) worker() {
	defer j.wg.Done()

	for {
		select {
		case <-j.closed:
			// Drain what is already queued before the database closes.
			for {
				select {
				case r := <-j.queue:
					j.insert(r)
				default:
					return
				}
			}
		case r := <-j.queue:
			j.insert(r)
		}
	}
}

func (j *Journal) insert(r record) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)

	if r.raw {
		_, _ = j.db.ExecContext(ctx,
			"INSERT INTO raw_log (data, controller_id, created_at) VALUES (?, ?, ?)",
			r.data, r.controllerID, now,
		)
		return
	}

	_, _ = j.db.ExecContext(ctx,
		"INSERT INTO command_log (device_id, method, value, origin, created_at) VALUES (?, ?, ?, ?, ?)",
		r.deviceID, r.method, r.value, r.origin, now,
	)
}

func (j *Journal) isClosed() bool {
	select {
	case <-j.closed:
		return true
	default:
		return false
	}
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return ts, nil
}
