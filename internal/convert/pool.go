package convert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/paperdesk/be-doc-approvals/internal/metrics"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
)

// JobStatus tracks a conversion job through the pool.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Pool serializes access to the conversion engines. The renderer is the
// single shared constrained resource of the service, so concurrency is capped
// globally across all documents, never per document. Excess requests wait on
// a slot (or their context), they never spawn additional engine processes.
type Pool struct {
	engines    chan Engine
	jobTimeout time.Duration
	probeTime  time.Duration
	group      singleflight.Group
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewPool creates a pool over the given engine instances.
func NewPool(engines []Engine, jobTimeout, probeTimeout time.Duration, m *metrics.Metrics, log *logger.Logger) *Pool {
	slots := make(chan Engine, len(engines))
	for _, e := range engines {
		slots <- e
	}
	return &Pool{
		engines:    slots,
		jobTimeout: jobTimeout,
		probeTime:  probeTimeout,
		metrics:    m,
		log:        log,
	}
}

// Start probes every engine so a broken renderer installation fails the
// service at startup instead of queuing doomed work.
func (p *Pool) Start(ctx context.Context) error {
	probed := make([]Engine, 0, cap(p.engines))
	for i := 0; i < cap(p.engines); i++ {
		engine := <-p.engines
		probeCtx, cancel := context.WithTimeout(ctx, p.probeTime)
		err := engine.Probe(probeCtx)
		cancel()
		if err != nil {
			// put engines back so Shutdown semantics stay simple
			p.engines <- engine
			for _, e := range probed {
				p.engines <- e
			}
			return ErrRendererUnavailable
		}
		probed = append(probed, engine)
	}
	for _, e := range probed {
		p.engines <- e
	}
	return nil
}

// Convert renders src to PDF. Identical concurrent requests (same content,
// same extension) are deduplicated so a burst of preview requests for one
// document costs a single renderer job.
func (p *Pool) Convert(ctx context.Context, src []byte, ext string) ([]byte, error) {
	sum := sha256.Sum256(src)
	key := hex.EncodeToString(sum[:]) + ":" + ext

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		return p.convert(ctx, src, ext)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (p *Pool) convert(ctx context.Context, src []byte, ext string) ([]byte, error) {
	p.metrics.ConversionQueueDepth.Inc()
	var engine Engine
	select {
	case engine = <-p.engines:
		p.metrics.ConversionQueueDepth.Dec()
	case <-ctx.Done():
		p.metrics.ConversionQueueDepth.Dec()
		p.metrics.ConversionJobs.WithLabelValues(string(JobFailed)).Inc()
		return nil, errors.Wrap(ctx.Err(), errors.ErrCodeUnavailable, "gave up waiting for a renderer slot")
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	started := time.Now()
	pdf, err := engine.Convert(jobCtx, src, ext)
	p.metrics.ConversionDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		p.metrics.ConversionJobs.WithLabelValues(string(JobFailed)).Inc()
		if errors.Is(err, ErrConversionTimeout) {
			// The engine may be wedged; health-check and reset it before the
			// slot accepts further work. Uses a fresh context because jobCtx
			// is already expired.
			p.restartEngine(engine)
		} else {
			p.engines <- engine
		}
		return nil, err
	}

	p.engines <- engine
	p.metrics.ConversionJobs.WithLabelValues(string(JobSucceeded)).Inc()
	return pdf, nil
}

func (p *Pool) restartEngine(engine Engine) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.probeTime)
		defer cancel()
		if err := engine.Restart(ctx); err != nil {
			p.log.Error().Err(err).Msg("renderer restart failed; slot returned degraded")
		}
		p.engines <- engine
	}()
}
