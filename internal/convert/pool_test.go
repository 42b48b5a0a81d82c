package convert

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdesk/be-doc-approvals/internal/metrics"
	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
)

// fakeEngine is a scriptable Engine for pool tests.
type fakeEngine struct {
	out       []byte
	convErr   error
	probeErr  error
	delay     time.Duration
	hang      bool // block until the job context expires
	converts  atomic.Int64
	restarts  atomic.Int64
	inFlight  atomic.Int64
	maxSeen   atomic.Int64
	restarted chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{out: []byte("%PDF-fake"), restarted: make(chan struct{}, 8)}
}

func (f *fakeEngine) Convert(ctx context.Context, src []byte, ext string) ([]byte, error) {
	f.converts.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.hang {
		<-ctx.Done()
		return nil, ErrConversionTimeout
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ErrConversionTimeout
		}
	}
	if f.convErr != nil {
		return nil, f.convErr
	}
	return append([]byte(nil), f.out...), nil
}

func (f *fakeEngine) Probe(ctx context.Context) error { return f.probeErr }

func (f *fakeEngine) Restart(ctx context.Context) error {
	f.restarts.Add(1)
	f.restarted <- struct{}{}
	return nil
}

func newTestPool(t *testing.T, engines []Engine, jobTimeout time.Duration) *Pool {
	t.Helper()
	return NewPool(engines, jobTimeout, time.Second, metrics.NewNop(), logger.Nop())
}

func TestPoolStartProbesEngines(t *testing.T) {
	ok := newFakeEngine()
	pool := newTestPool(t, []Engine{ok}, time.Second)
	require.NoError(t, pool.Start(context.Background()))

	pdf, err := pool.Convert(context.Background(), []byte("doc"), "docx")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-fake"), pdf)
}

func TestPoolStartFailsWhenProbeFails(t *testing.T) {
	broken := newFakeEngine()
	broken.probeErr = ErrRendererUnavailable
	pool := newTestPool(t, []Engine{newFakeEngine(), broken}, time.Second)

	err := pool.Start(context.Background())
	require.ErrorIs(t, err, ErrRendererUnavailable)
}

func TestPoolTimeoutRestartsEngine(t *testing.T) {
	wedged := newFakeEngine()
	wedged.hang = true
	pool := newTestPool(t, []Engine{wedged}, 20*time.Millisecond)

	_, err := pool.Convert(context.Background(), []byte("doc"), "docx")
	require.ErrorIs(t, err, ErrConversionTimeout)

	select {
	case <-wedged.restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("engine was not restarted after a timeout")
	}

	// the slot comes back after the restart and accepts new work
	wedged.hang = false
	pdf, err := pool.Convert(context.Background(), []byte("doc2"), "docx")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-fake"), pdf)
	assert.Equal(t, int64(1), wedged.restarts.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	engine := newFakeEngine()
	engine.delay = 20 * time.Millisecond
	second := newFakeEngine()
	second.delay = 20 * time.Millisecond
	pool := newTestPool(t, []Engine{engine, second}, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// distinct payloads so singleflight cannot collapse them
			_, err := pool.Convert(context.Background(), []byte{byte(n)}, "docx")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// with two slots, neither engine ever runs more than one job at a time
	assert.LessOrEqual(t, engine.maxSeen.Load(), int64(1))
	assert.LessOrEqual(t, second.maxSeen.Load(), int64(1))
	assert.Equal(t, int64(16), engine.converts.Load()+second.converts.Load())
}

func TestPoolDeduplicatesIdenticalRequests(t *testing.T) {
	engine := newFakeEngine()
	engine.delay = 50 * time.Millisecond
	pool := newTestPool(t, []Engine{engine}, time.Second)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			pdf, err := pool.Convert(context.Background(), []byte("same-bytes"), "docx")
			assert.NoError(t, err)
			assert.Equal(t, []byte("%PDF-fake"), pdf)
		}()
	}
	close(start)
	wg.Wait()

	assert.LessOrEqual(t, engine.converts.Load(), int64(2),
		"identical concurrent requests must share renderer jobs")
}

func TestPoolConvertCanceledWhileQueued(t *testing.T) {
	engine := newFakeEngine()
	pool := newTestPool(t, []Engine{engine}, time.Second)

	// occupy the only slot
	held := <-pool.engines
	defer func() { pool.engines <- held }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Convert(ctx, []byte("doc"), "docx")
	require.Error(t, err)
	assert.Zero(t, engine.converts.Load())
}
