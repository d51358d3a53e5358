package telemetry

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/toolkit-telemetry/internal/queue"
	"github.com/and161185/toolkit-telemetry/internal/sanitize"
	"github.com/and161185/toolkit-telemetry/model"
)

// AccountMetadataKey is stamped on every recorded datum once an account id is known.
const AccountMetadataKey = "awsAccount"

var (
	ErrNotInitialized     = errors.New("telemetry service is not initialized")
	ErrAlreadyInitialized = errors.New("telemetry service is already initialized")
)

// Service is the entry point used by the rest of the application.
// All methods are safe for concurrent use.
type Service struct {
	queue  *queue.EventQueue
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	enabled   bool
	accountID string
	client    Client
	publisher *Publisher
}

// NewService creates a disabled, uninitialized service recording into q.
func NewService(q *queue.EventQueue, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{queue: q, logger: logger}
}

// Initialize starts p with c and binds both to the service. It succeeds
// once; after a failed Start the service stays unbound and may be retried.
func (s *Service) Initialize(c Client, p *Publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publisher != nil {
		return ErrAlreadyInitialized
	}
	p.SetEnabled(s.enabled)
	if err := p.Start(c); err != nil {
		return err
	}
	s.client = c
	s.publisher = p
	return nil
}

// Enable turns recording and publishing on.
func (s *Service) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = true
	if s.publisher != nil {
		s.publisher.SetEnabled(true)
	}
}

// Disable turns recording and publishing off and drops everything queued.
func (s *Service) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = false
	if s.publisher != nil {
		s.publisher.SetEnabled(false)
	}
	if n := s.queue.Clear(); n > 0 {
		s.logger.Debugf("telemetry disabled, %d queued batch(es) discarded", n)
	}
}

// Enabled reports whether Record currently accepts data.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetAccountID sets the account stamped on subsequently recorded data.
func (s *Service) SetAccountID(id string) {
	s.mu.Lock()
	s.accountID = id
	s.mu.Unlock()
}

// Record sanitizes m and queues it for publishing. It is a no-op while
// the service is disabled. The caller's slices are not modified.
func (s *Service) Record(m model.Metrics) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled {
		return
	}

	m = cloneMetrics(m)
	sanitize.Metrics(&m)
	if !m.IsValid() {
		s.logger.Debug("dropping metrics without valid data")
		return
	}

	if s.accountID != "" {
		for i := range m.Data {
			if _, ok := m.Data[i].MetadataValue(AccountMetadataKey); !ok {
				m.Data[i].AddMetadata(AccountMetadataKey, s.accountID)
			}
		}
	}

	if !s.queue.Enqueue(m) {
		s.logger.Warn("telemetry queue full, oldest batch evicted")
	}
}

// SendFeedback submits user feedback through the bound client.
func (s *Service) SendFeedback(ctx context.Context, sentiment model.Sentiment, comment string, metadata []model.MetadataEntry) error {
	s.mu.RLock()
	p := s.publisher
	s.mu.RUnlock()

	if p == nil {
		return ErrNotInitialized
	}
	return p.SendFeedback(ctx, sentiment, comment, metadata)
}

// Close stops the publisher and releases the client.
func (s *Service) Close() error {
	s.mu.RLock()
	p, c := s.publisher, s.client
	s.mu.RUnlock()

	if p == nil {
		return nil
	}
	return errors.Join(p.Close(), c.Close())
}

func cloneMetrics(m model.Metrics) model.Metrics {
	data := make([]model.MetricDatum, len(m.Data))
	for i, d := range m.Data {
		d.Metadata = append([]model.MetadataEntry(nil), d.Metadata...)
		data[i] = d
	}
	m.Data = data
	return m
}
