// Package pool implements the connection pool wrapper: checkout/checkin
// semantics with size bounds, a checkout timeout, retry on transient open
// failures, and a FIFO wait queue for callers blocked on saturation.
//
// The wait queue is channel-based rather than sync.Cond: a condition
// variable cannot be selected against a context deadline, and checkout
// must respect both pool.checkout_timeout and an inbound ctx cancellation.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/multidberr"
)

// Config bounds one adapter's connection pool, mirroring the pool.*
// options table.
type Config struct {
	MaxSize         int
	InitialSize     int
	MaxIdle         int
	CheckoutTimeout time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
}

// Stats is a readable snapshot of pool activity.
type Stats struct {
	InUse         int
	Available     int
	Total         int
	AvgCheckoutMs float64
}

// Pool maintains up to Config.MaxSize connections to a single adapter
// target, opened lazily via Opener.
type Pool struct {
	cfg    Config
	opener adapter.Opener
	dsn    string

	mu        sync.Mutex
	idle      []adapter.Conn
	total     int
	waiters   []chan adapter.Conn
	checkouts int64
	sumWaitMs float64
}

// New constructs a Pool. Connections are opened lazily; callers that want
// InitialSize eagerly opened should call Warm.
func New(cfg Config, dsn string, opener adapter.Opener) *Pool {
	return &Pool{cfg: cfg, dsn: dsn, opener: opener}
}

// Warm eagerly opens Config.InitialSize connections.
func (p *Pool) Warm(ctx context.Context) error {
	for i := 0; i < p.cfg.InitialSize; i++ {
		p.mu.Lock()
		p.total++
		p.mu.Unlock()
		conn, err := p.openWithRetry(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
	return nil
}

// openWithRetry opens a new physical connection, retrying transient
// failures up to RetryAttempts times with RetryDelay between attempts.
func (p *Pool) openWithRetry(ctx context.Context) (adapter.Conn, error) {
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryDelay), uint64(p.cfg.RetryAttempts))
	var conn adapter.Conn
	err := backoff.Retry(func() error {
		var openErr error
		conn, openErr = p.opener(ctx, p.dsn)
		if openErr != nil {
			return &multidberr.ConnectionError{Op: "open", Err: openErr}
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		p.mu.Lock()
		p.total-- // compensate the speculative increment made by the caller
		p.mu.Unlock()
		return nil, err
	}
	return conn, nil
}

// Checkout returns an available connection immediately if one is idle; if
// under MaxSize it opens a new one; otherwise it waits on the FIFO queue up
// to timeout (or Config.CheckoutTimeout if timeout is zero).
func (p *Pool) Checkout(ctx context.Context, timeout time.Duration) (adapter.Conn, func(), error) {
	if timeout <= 0 {
		timeout = p.cfg.CheckoutTimeout
	}
	start := time.Now()

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		p.recordWait(start)
		return conn, p.releaseFunc(conn), nil
	}
	if p.total < p.cfg.MaxSize {
		p.total++
		p.mu.Unlock()
		conn, err := p.openWithRetry(ctx)
		if err != nil {
			return nil, nil, err
		}
		p.recordWait(start)
		return conn, p.releaseFunc(conn), nil
	}

	ch := make(chan adapter.Conn, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case conn := <-ch:
		p.recordWait(start)
		return conn, p.releaseFunc(conn), nil
	case <-timer.C:
		p.removeWaiter(ch)
		return nil, nil, &multidberr.PoolTimeoutError{Waited: timeout}
	case <-ctx.Done():
		p.removeWaiter(ch)
		return nil, nil, ctx.Err()
	}
}

func (p *Pool) recordWait(start time.Time) {
	p.mu.Lock()
	p.checkouts++
	p.sumWaitMs += float64(time.Since(start).Milliseconds())
	p.mu.Unlock()
}

func (p *Pool) removeWaiter(target chan adapter.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ch := range p.waiters {
		if ch == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// releaseFunc returns a checkin closure handing conn to the next waiter
// (FIFO) if any, else returning it to the idle list (closing it instead if
// that would exceed MaxIdle).
func (p *Pool) releaseFunc(conn adapter.Conn) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.checkin(conn)
		})
	}
}

func (p *Pool) checkin(conn adapter.Conn) {
	p.mu.Lock()
	for len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		ch <- conn
		return
	}
	if len(p.idle) >= p.cfg.MaxIdle {
		p.total--
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Stats returns a readable snapshot of current pool activity.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	avg := 0.0
	if p.checkouts > 0 {
		avg = p.sumWaitMs / float64(p.checkouts)
	}
	return Stats{
		InUse:         p.total - len(p.idle),
		Available:     len(p.idle),
		Total:         p.total,
		AvgCheckoutMs: avg,
	}
}

// Close closes every idle connection and rejects future checkouts of
// freshly-opened connections by zeroing MaxSize. In-flight checkouts are
// left to their callers to release normally.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.idle {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing idle connection: %w", err)
		}
	}
	p.idle = nil
	p.total = 0
	p.cfg.MaxSize = 0
	return firstErr
}
