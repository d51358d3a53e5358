// Package telemetry records metric batches and publishes them in the background.
//
// Service is what the rest of the application talks to. Publisher owns the
// single goroutine that drains the shared queue into the telemetry Client.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/and161185/toolkit-telemetry/internal/client"
	"github.com/and161185/toolkit-telemetry/internal/queue"
	"github.com/and161185/toolkit-telemetry/internal/sanitize"
	"github.com/and161185/toolkit-telemetry/model"
)

// Client is the outbound side of the pipeline.
type Client interface {
	PostMetrics(ctx context.Context, clientID uuid.UUID, batch []model.Metrics) client.Outcome
	SendFeedback(ctx context.Context, sentiment model.Sentiment, comment string, metadata []model.MetadataEntry) error
	Close() error
}

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("publisher already started")
	// ErrNotStarted is returned by SendFeedback before Start.
	ErrNotStarted = errors.New("publisher not started")
)

// PublisherConfig tunes when and how much the publisher sends.
type PublisherConfig struct {
	LoopInterval       time.Duration // pause between cycles
	MaxPublishInterval time.Duration // publish queued data at least this often
	QueueSizeThreshold int           // publish early once this many batches are queued
	MaxBatchSize       int           // batches per PostMetrics call
	MaxBackoffLevel    int           // cap on the pause multiplier after transient failures
	SendTimeout        time.Duration // per call, 0 leaves it to the client
}

// DefaultPublisherConfig returns the service defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		LoopInterval:       20 * time.Second,
		MaxPublishInterval: 5 * time.Minute,
		QueueSizeThreshold: 12,
		MaxBatchSize:       20,
		MaxBackoffLevel:    5,
	}
}

// Hooks are called from the publisher goroutine at the end of a cycle.
type Hooks struct {
	OnPublished func() // at least one send was attempted
	OnSkipped   func() // nothing was sent
}

// PublisherOption customises a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) PublisherOption {
	return func(p *Publisher) { p.logger = l }
}

// WithClock sets the clock that paces the loop and stamps publishes.
func WithClock(c clock.Clock) PublisherOption {
	return func(p *Publisher) { p.clock = c }
}

// WithMetrics sets the counters updated by the loop.
func WithMetrics(m *PublisherMetrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// WithHooks sets callbacks run at the end of each cycle.
func WithHooks(h Hooks) PublisherOption {
	return func(p *Publisher) { p.hooks = h }
}

// Publisher drains the queue into a Client on its own goroutine.
type Publisher struct {
	cfg      PublisherConfig
	queue    *queue.EventQueue
	clientID uuid.UUID
	clock    clock.Clock
	logger   *zap.SugaredLogger
	metrics  *PublisherMetrics
	hooks    Hooks
	enabled  atomic.Bool

	mu     sync.Mutex
	client Client
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the loop goroutine
	lastPublished time.Time
	backoffLevel  int
}

// NewPublisher creates a stopped publisher reading from q.
func NewPublisher(cfg PublisherConfig, q *queue.EventQueue, clientID uuid.UUID, opts ...PublisherOption) *Publisher {
	def := DefaultPublisherConfig()
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = def.LoopInterval
	}
	if cfg.MaxPublishInterval <= 0 {
		cfg.MaxPublishInterval = def.MaxPublishInterval
	}
	if cfg.QueueSizeThreshold <= 0 {
		cfg.QueueSizeThreshold = def.QueueSizeThreshold
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxBackoffLevel < 0 {
		cfg.MaxBackoffLevel = 0
	}

	p := &Publisher{
		cfg:      cfg,
		queue:    q,
		clientID: clientID,
		clock:    clock.WallClock,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics, _ = NewPublisherMetrics(nil, nil)
	}
	return p
}

// SetEnabled allows or suppresses sending. Queued data is kept either way.
func (p *Publisher) SetEnabled(v bool) {
	p.enabled.Store(v)
}

// Enabled reports whether sending is allowed.
func (p *Publisher) Enabled() bool {
	return p.enabled.Load()
}

// Start binds c and launches the publishing loop.
func (p *Publisher) Start(c Client) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.client = c
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)

	p.logger.Debug("telemetry publisher started")
	return nil
}

// Close stops the loop and waits for it to exit. A send already in
// flight is allowed to finish. Close is idempotent.
func (p *Publisher) Close() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// SendFeedback forwards feedback to the bound client.
func (p *Publisher) SendFeedback(ctx context.Context, sentiment model.Sentiment, comment string, metadata []model.MetadataEntry) error {
	p.mu.Lock()
	c := p.client
	p.mu.Unlock()

	if c == nil {
		return ErrNotStarted
	}
	return c.SendFeedback(ctx, sentiment, comment, metadata)
}

func (p *Publisher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("telemetry publisher stopped")
			return
		case <-p.clock.After(p.delay()):
		}
		p.safeCycle(ctx)
	}
}

func (p *Publisher) delay() time.Duration {
	return p.cfg.LoopInterval * time.Duration(1+p.backoffLevel)
}

func (p *Publisher) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("telemetry publish cycle panicked: %v", r)
		}
	}()
	p.cycle(ctx)
}

func (p *Publisher) cycle(ctx context.Context) {
	if !p.publishRequired() {
		p.backoffLevel = 0
		p.metrics.Cycles.WithLabelValues("skipped").Inc()
		if p.hooks.OnSkipped != nil {
			p.hooks.OnSkipped()
		}
		return
	}

	p.publish(ctx)

	p.metrics.Cycles.WithLabelValues("published").Inc()
	if p.hooks.OnPublished != nil {
		p.hooks.OnPublished()
	}
}

func (p *Publisher) publishRequired() bool {
	if !p.Enabled() {
		return false
	}
	n := p.queue.Len()
	if n == 0 {
		return false
	}
	if n >= p.cfg.QueueSizeThreshold {
		return true
	}
	if p.lastPublished.IsZero() {
		return true
	}
	return p.clock.Now().Sub(p.lastPublished) >= p.cfg.MaxPublishInterval
}

// publish sends queued data until the queue is empty, a transient failure
// occurs or the publisher is closed.
func (p *Publisher) publish(ctx context.Context) {
	for ctx.Err() == nil {
		batch, taken := p.nextBatch()
		if taken == 0 {
			return
		}
		if len(batch) == 0 {
			continue
		}

		out := p.send(ctx, batch)
		switch out.Status {
		case client.Success:
			p.lastPublished = p.clock.Now()
			p.backoffLevel = 0
			p.metrics.Sent.Add(float64(len(batch)))
			p.logger.Debugf("published %d metric batch(es)", len(batch))

		case client.PermanentFailure:
			p.backoffLevel = 0
			p.metrics.Dropped.Add(float64(len(batch)))
			p.logger.Errorf("telemetry service rejected %d batch(es), discarding: %v", len(batch), out.Err)

		default:
			if p.backoffLevel < p.cfg.MaxBackoffLevel {
				p.backoffLevel++
			}
			// Disable clears the queue; a batch that was in flight must not come back.
			if !p.queue.RequeueIf(p.Enabled, batch) {
				p.logger.Debugf("telemetry disabled during publish, %d batch(es) discarded", len(batch))
				return
			}
			p.metrics.Requeued.Add(float64(len(batch)))
			p.logger.Warnf("telemetry publish failed, %d batch(es) requeued: %v", len(batch), out.Err)
			return
		}
	}
}

func (p *Publisher) send(ctx context.Context, batch []model.Metrics) client.Outcome {
	sendCtx := context.WithoutCancel(ctx)
	if p.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, p.cfg.SendTimeout)
		defer cancel()
	}
	return p.client.PostMetrics(sendCtx, p.clientID, batch)
}

// nextBatch takes up to MaxBatchSize batches off the queue and returns the
// valid ones together with how many were taken.
func (p *Publisher) nextBatch() ([]model.Metrics, int) {
	taken := p.queue.Dequeue(p.cfg.MaxBatchSize)
	batch := taken[:0]
	for _, m := range taken {
		sanitize.Metrics(&m)
		if !m.IsValid() {
			continue
		}
		batch = append(batch, m)
	}
	return batch, len(taken)
}
