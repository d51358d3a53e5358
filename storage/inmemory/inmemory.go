// Package inmemory keeps telemetry submissions in process memory.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/toolkit-telemetry/model"
)

// MemStorage keeps submissions in memory, optionally snapshotting them to a file.
type MemStorage struct {
	mu       sync.RWMutex
	metrics  []model.PostMetricsRequest
	feedback []model.PostFeedbackRequest
	logger   *zap.SugaredLogger
}

type snapshot struct {
	Metrics  []model.PostMetricsRequest  `json:"metrics"`
	Feedback []model.PostFeedbackRequest `json:"feedback"`
}

func NewMemStorage(logger *zap.SugaredLogger) *MemStorage {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MemStorage{logger: logger}
}

func (store *MemStorage) SaveMetrics(ctx context.Context, req *model.PostMetricsRequest) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.metrics = append(store.metrics, *req)
	return nil
}

func (store *MemStorage) SaveFeedback(ctx context.Context, req *model.PostFeedbackRequest) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.feedback = append(store.feedback, *req)
	return nil
}

// Metrics returns a copy of every stored metrics request.
func (store *MemStorage) Metrics() []model.PostMetricsRequest {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return append([]model.PostMetricsRequest(nil), store.metrics...)
}

// Feedback returns a copy of every stored feedback request.
func (store *MemStorage) Feedback() []model.PostFeedbackRequest {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return append([]model.PostFeedbackRequest(nil), store.feedback...)
}

func (store *MemStorage) SaveToFile(ctx context.Context, filePath string) error {
	store.mu.RLock()
	snap := snapshot{Metrics: store.metrics, Feedback: store.feedback}
	data, err := json.MarshalIndent(snap, "", "  ")
	store.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	store.logger.Infof("saved %d metrics and %d feedback requests to %s", len(snap.Metrics), len(snap.Feedback), filePath)
	return nil
}

func (store *MemStorage) LoadFromFile(ctx context.Context, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	store.mu.Lock()
	store.metrics = append(store.metrics, snap.Metrics...)
	store.feedback = append(store.feedback, snap.Feedback...)
	store.mu.Unlock()

	store.logger.Infof("loaded snapshot from %s", filePath)
	return nil
}

func (store *MemStorage) Ping(ctx context.Context) error {
	return nil
}

func (store *MemStorage) Close() {}
