package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/multidberr"
)

type fakeConn struct {
	id     int64
	closed bool
}

func (f *fakeConn) ExecContext(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	return 0, nil
}
func (f *fakeConn) QueryContext(ctx context.Context, sql string, args ...interface{}) (*adapter.ResultSet, error) {
	return &adapter.ResultSet{}, nil
}
func (f *fakeConn) BeginTx(ctx context.Context, isolation adapter.Isolation, readOnly bool) (adapter.Tx, error) {
	return nil, nil
}
func (f *fakeConn) PingContext(ctx context.Context) error { return nil }
func (f *fakeConn) Close() error                          { f.closed = true; return nil }

func fakeOpener() (adapter.Opener, *int64) {
	var counter int64
	return func(ctx context.Context, dsn string) (adapter.Conn, error) {
		id := atomic.AddInt64(&counter, 1)
		return &fakeConn{id: id}, nil
	}, &counter
}

func TestPoolCeiling(t *testing.T) {
	opener, _ := fakeOpener()
	p := New(Config{MaxSize: 2, MaxIdle: 2, CheckoutTimeout: 50 * time.Millisecond, RetryAttempts: 1, RetryDelay: time.Millisecond}, "dsn", opener)

	ctx := context.Background()
	_, release1, err := p.Checkout(ctx, 0)
	require.NoError(t, err)
	_, release2, err := p.Checkout(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, p.Stats().InUse)

	_, _, err = p.Checkout(ctx, 0)
	require.Error(t, err)
	var timeoutErr *multidberr.PoolTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)

	release1()
	conn3, release3, err := p.Checkout(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, conn3)
	release2()
	release3()
}

func TestPoolFIFOWaiters(t *testing.T) {
	opener, _ := fakeOpener()
	p := New(Config{MaxSize: 1, MaxIdle: 1, CheckoutTimeout: time.Second, RetryAttempts: 1, RetryDelay: time.Millisecond}, "dsn", opener)

	ctx := context.Background()
	_, release, err := p.Checkout(ctx, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	order := make(chan int, 2)
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, rel, err := p.Checkout(ctx, 0)
			if err == nil {
				order <- i
				rel()
			}
		}()
		time.Sleep(10 * time.Millisecond) // stagger enqueue order
	}

	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()
	close(order)

	first := <-order
	assert.Equal(t, 1, first)
}
