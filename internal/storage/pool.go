package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// memDBCounter disambiguates concurrently opened in-memory databases
var memDBCounter uint64

const (
	// DefaultPoolSize is the number of idle connections kept for reuse
	DefaultPoolSize = 5
	// DefaultIdleTimeout is how long an idle connection may sit in the
	// pool before the next acquire/release sweeps it out
	DefaultIdleTimeout = 30 * time.Second
	// busyTimeout makes concurrent writers block-and-retry instead of
	// failing immediately with SQLITE_BUSY
	busyTimeout = 30 * time.Second
)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	// A plain :memory: DSN gives every connection its own private
	// database; a uniquely named shared-cache URI keeps the pool looking
	// at one store without colliding with other in-memory opens.
	if dbPath == ":memory:" {
		dbPath = fmt.Sprintf("file:memdb%d?mode=memory&cache=shared",
			atomic.AddUint64(&memDBCounter, 1))
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode so readers are not blocked during a write
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// NORMAL is durable enough under WAL and much cheaper than FULL
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	db.SetMaxOpenConns(DefaultPoolSize * 2)
	db.SetMaxIdleConns(DefaultPoolSize)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// Pool hands out configured SQLite connections and keeps a bounded free
// list so callers do not pay connection setup on every operation. The free
// list is the only shared mutable structure in the core and is guarded by
// a single mutex.
type Pool struct {
	db          *sql.DB
	capacity    int
	idleTimeout time.Duration

	mu     sync.Mutex
	free   []idleConn
	closed bool
}

type idleConn struct {
	conn      *sql.Conn
	idleSince time.Time
}

// NewPool wraps an opened database in a connection pool. A capacity <= 0
// selects DefaultPoolSize; an idleTimeout <= 0 selects DefaultIdleTimeout.
func NewPool(db *sql.DB, capacity int, idleTimeout time.Duration) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolSize
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Pool{
		db:          db,
		capacity:    capacity,
		idleTimeout: idleTimeout,
		free:        make([]idleConn, 0, capacity),
	}
}

// Acquire returns a validated pooled connection, or opens a new one
// configured with the per-connection pragmas. Callers must Release the
// connection on every exit path, including errors.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	for {
		conn, ok := p.popFree()
		if !ok {
			break
		}
		// Liveness probe; dead or stale connections are discarded
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			continue
		}
		return conn, nil
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	if err := configureConn(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Release returns a connection to the pool. When the pool is full or
// closed the connection is closed instead.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	p.sweepLocked(time.Now())
	if p.closed || len(p.free) >= p.capacity {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	p.free = append(p.free, idleConn{conn: conn, idleSince: time.Now()})
	p.mu.Unlock()
}

// popFree removes the most recently used idle connection, sweeping stale
// ones first.
func (p *Pool) popFree() (*sql.Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepLocked(time.Now())
	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	conn := p.free[n-1].conn
	p.free = p.free[:n-1]
	return conn, true
}

// sweepLocked evicts connections idle longer than the timeout. Caller
// holds p.mu.
func (p *Pool) sweepLocked(now time.Time) {
	kept := p.free[:0]
	for _, ic := range p.free {
		if now.Sub(ic.idleSince) > p.idleTimeout {
			_ = ic.conn.Close()
			continue
		}
		kept = append(kept, ic)
	}
	p.free = kept
}

// Close drains the free list and closes the underlying database.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	free := p.free
	p.free = nil
	p.mu.Unlock()

	for _, ic := range free {
		_ = ic.conn.Close()
	}
	return p.db.Close()
}

// IdleCount reports the current free-list size
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// configureConn applies per-connection pragmas
func configureConn(ctx context.Context, conn *sql.Conn) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-8000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}
