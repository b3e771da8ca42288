// Package pool implements the bounded Connection Pool (spec §4.E): a
// fixed-size sequence of backend connections gated by a counting
// semaphore, with a non-blocking scan to find a free connection.
// Grounded on original_source/src/sys/pool.rs and
// src/sys/db/adapter.rs, whose Vec<Arc<Mutex<DB>>> + tokio Semaphore
// pairing translates directly to a slice of mutex-guarded Conn plus
// golang.org/x/sync/semaphore.Weighted.
package pool

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const metricsNamespace = "tiny_web"
const metricsSubsystem = "pool"

var metrics = struct {
	inUse       prometheus.Gauge
	size        prometheus.Gauge
	acquireFail prometheus.Counter
}{
	inUse: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "connections_in_use",
		Help:      "Number of pool connections currently checked out.",
	}),
	size: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "size",
		Help:      "Number of connections successfully established at startup.",
	}),
	acquireFail: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "acquire_failures_total",
		Help:      "Times a permit was granted but the non-blocking scan found no free connection.",
	}),
}

// Row is one result row: column name to decoded value. A concrete Conn
// implementation (see Postgres in this package) fills this from its
// driver's native row type.
type Row map[string]any

// Conn is the interface a backend connection must satisfy to live in a
// Pool. It mirrors original_source's db/adapter.rs trait so the pool
// itself stays storage-engine agnostic; Postgres (github.com/jackc/pgx/v5)
// is the concrete implementation this module ships.
type Conn interface {
	// Query runs query with positional params and returns the result
	// rows, or an error.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// Dialer opens one new Conn. Implementations block until connected or
// return an error; New calls this once per pool slot at startup.
type Dialer func(ctx context.Context) (Conn, error)

type slot struct {
	mu   sync.Mutex
	conn Conn
}

// Pool is a bounded set of connections acquired via a non-blocking
// scan gated by a counting semaphore (spec §4.E). The zero value is
// not usable; construct with New.
type Pool struct {
	slots []*slot
	sem   *semaphore.Weighted
	log   *zap.Logger

	// Size is the number of connections that were actually established;
	// a dial failure during New reduces this below the requested count
	// (spec §4.E "failure to connect at startup ... reduces the
	// effective N"), it never grows back.
	Size int
}

// New dials up to n connections using dial and returns a Pool sized to
// however many succeeded. A connection that fails to dial is simply
// omitted — it is not retried and does not abort pool construction,
// matching original_source's "asize" accounting in DBPool::new.
func New(ctx context.Context, n int, dial Dialer, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{log: log}
	p.slots = make([]*slot, 0, n)
	for i := 0; i < n; i++ {
		conn, err := dial(ctx)
		if err != nil {
			log.Warn("pool: connection failed to dial, reducing effective pool size", zap.Int("index", i), zap.Error(err))
			continue
		}
		p.slots = append(p.slots, &slot{conn: conn})
	}
	p.Size = len(p.slots)
	p.sem = semaphore.NewWeighted(int64(p.Size))
	metrics.size.Set(float64(p.Size))
	return p
}

// ErrNoFreeConnection is returned by Query when the semaphore grants a
// permit but the non-blocking scan finds every connection already
// locked. Per spec §4.E this should be unreachable under correct
// semaphore accounting; it exists purely to preserve liveness instead
// of deadlocking if it ever happens.
var ErrNoFreeConnection = errNoFreeConnection{}

type errNoFreeConnection struct{}

func (errNoFreeConnection) Error() string { return "pool: semaphore granted but no free connection found" }

// Query acquires one connection, runs fn against it, and releases the
// connection and its permit before returning. It implements the
// acquire path from spec §4.E: block for a permit, scan for the first
// connection whose lock is free, use it, release lock then permit.
func (p *Pool) Query(ctx context.Context, fn func(Conn) ([]Row, error)) ([]Row, error) {
	if p.Size == 0 {
		return nil, ErrNoFreeConnection
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	metrics.inUse.Inc()
	defer metrics.inUse.Dec()

	for _, s := range p.slots {
		if s.mu.TryLock() {
			rows, err := fn(s.conn)
			s.mu.Unlock()
			return rows, err
		}
	}
	metrics.acquireFail.Inc()
	p.log.Warn("pool: no free connection found after acquiring a semaphore permit")
	return nil, ErrNoFreeConnection
}

// Close closes every connection in the pool.
func (p *Pool) Close(ctx context.Context) error {
	var first error
	for _, s := range p.slots {
		s.mu.Lock()
		if err := s.conn.Close(ctx); err != nil && first == nil {
			first = err
		}
		s.mu.Unlock()
	}
	return first
}
