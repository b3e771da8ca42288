package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeConn struct {
	closed  atomic.Bool
	queries atomic.Int32
	delay   time.Duration
}

func (f *fakeConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	f.queries.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return []Row{{"query": query}}, nil
}

func (f *fakeConn) Close(ctx context.Context) error {
	f.closed.Store(true)
	return nil
}

func newFakePool(t *testing.T, n int) (*Pool, []*fakeConn) {
	t.Helper()
	conns := make([]*fakeConn, n)
	i := 0
	dial := func(ctx context.Context) (Conn, error) {
		c := &fakeConn{}
		conns[i] = c
		i++
		return c, nil
	}
	p := New(context.Background(), n, dial, nil)
	if p.Size != n {
		t.Fatalf("Size = %d, want %d", p.Size, n)
	}
	return p, conns
}

func TestNewSkipsFailedDials(t *testing.T) {
	dial := func(ctx context.Context) (Conn, error) {
		return nil, errors.New("dial refused")
	}
	p := New(context.Background(), 3, dial, nil)
	if p.Size != 0 {
		t.Fatalf("Size = %d, want 0", p.Size)
	}
}

func TestNewReducesSizeOnPartialFailure(t *testing.T) {
	attempt := 0
	dial := func(ctx context.Context) (Conn, error) {
		attempt++
		if attempt == 2 {
			return nil, errors.New("dial refused")
		}
		return &fakeConn{}, nil
	}
	p := New(context.Background(), 3, dial, nil)
	if p.Size != 2 {
		t.Fatalf("Size = %d, want 2", p.Size)
	}
}

func TestQueryUsesAConnection(t *testing.T) {
	p, conns := newFakePool(t, 2)
	rows, err := p.Query(context.Background(), func(c Conn) ([]Row, error) {
		return c.Query(context.Background(), "select 1")
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || rows[0]["query"] != "select 1" {
		t.Fatalf("rows = %+v", rows)
	}
	total := conns[0].queries.Load() + conns[1].queries.Load()
	if total != 1 {
		t.Fatalf("total queries across connections = %d, want 1", total)
	}
}

func TestQueryOnEmptyPoolFails(t *testing.T) {
	p := &Pool{}
	if _, err := p.Query(context.Background(), func(c Conn) ([]Row, error) { return nil, nil }); err != ErrNoFreeConnection {
		t.Fatalf("err = %v, want ErrNoFreeConnection", err)
	}
}

func TestQueryBlocksBeyondCapacityThenProceeds(t *testing.T) {
	p, _ := newFakePool(t, 1)
	// Occupy the single connection for a short window on another
	// goroutine; a concurrent Query must wait for the semaphore permit
	// rather than reporting ErrNoFreeConnection immediately.
	var wg sync.WaitGroup
	wg.Add(2)
	start := time.Now()
	go func() {
		defer wg.Done()
		p.Query(context.Background(), func(c Conn) ([]Row, error) {
			time.Sleep(30 * time.Millisecond)
			return nil, nil
		})
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		if _, err := p.Query(context.Background(), func(c Conn) ([]Row, error) { return nil, nil }); err != nil {
			t.Errorf("Query: %v", err)
		}
	}()
	wg.Wait()
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("second Query should have waited for the first to release its permit")
	}
}

func TestCloseClosesEveryConnection(t *testing.T) {
	p, conns := newFakePool(t, 2)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for i, c := range conns {
		if !c.closed.Load() {
			t.Fatalf("connection %d was not closed", i)
		}
	}
}
