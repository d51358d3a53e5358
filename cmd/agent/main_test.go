package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/toolkit-telemetry/internal/clientid"
	"github.com/and161185/toolkit-telemetry/internal/config"
	"github.com/and161185/toolkit-telemetry/internal/heartbeat"
	"github.com/and161185/toolkit-telemetry/internal/ingest"
	"github.com/and161185/toolkit-telemetry/model"
	"github.com/and161185/toolkit-telemetry/storage/inmemory"
)

func newIngest(t *testing.T) (*httptest.Server, *inmemory.MemStorage) {
	t.Helper()
	st := inmemory.NewMemStorage(nil)
	srv, err := ingest.NewServer(st, &config.IngestConfig{Key: "k"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func testConfig(t *testing.T, endpoint string) *config.AgentConfig {
	return &config.AgentConfig{
		Endpoint:           endpoint,
		ClientTimeout:      time.Second,
		Key:                "k",
		TelemetryEnabled:   true,
		AccountID:          "123456789012",
		ClientIDFile:       filepath.Join(t.TempDir(), "clientid"),
		LoopInterval:       time.Second,
		MaxPublishInterval: time.Minute,
		QueueSizeThreshold: 12,
		MaxBatchSize:       20,
		QueueCapacity:      100,
		Product:            "Toolkit",
		Logger:             zap.NewNop().Sugar(),
	}
}

func TestAgent_PublishesSessionStart(t *testing.T) {
	ts, st := newIngest(t)
	cfg := testConfig(t, ts.URL)
	clk := testclock.NewClock(time.Now())

	a, err := newAgent(cfg, clk)
	require.NoError(t, err)
	require.NotEqual(t, clientid.OptedOut, a.clientID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	// session_start is recorded by run; keep ticking until a cycle picks it up.
	require.Eventually(t, func() bool {
		clk.Advance(cfg.LoopInterval)
		return len(st.Metrics()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := st.Metrics()[0]
	require.Equal(t, a.clientID.String(), got.ClientID)
	require.Equal(t, heartbeat.SessionStartMetric, got.MetricData[0].MetricName)

	account := ""
	for _, e := range got.MetricData[0].Metadata {
		if e.Key == "awsAccount" {
			account = e.Value
		}
	}
	require.Equal(t, "123456789012", account)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestAgent_DeliversHeartbeats(t *testing.T) {
	ts, st := newIngest(t)
	cfg := testConfig(t, ts.URL)
	clk := testclock.NewClock(time.Now())

	a, err := newAgent(cfg, clk)
	require.NoError(t, err)

	const beats = 3
	for i := 0; i < beats; i++ {
		a.service.Record(a.heartbeat.Collect())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	stored := func() map[string]int {
		names := map[string]int{}
		for _, req := range st.Metrics() {
			for _, d := range req.MetricData {
				names[d.MetricName]++
			}
		}
		return names
	}
	require.Eventually(t, func() bool {
		clk.Advance(cfg.LoopInterval)
		got := stored()
		return got[heartbeat.SessionHeartbeatMetric] == beats && got[heartbeat.SessionStartMetric] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, beats, stored()["runtime_goroutines"])
	for _, req := range st.Metrics() {
		require.LessOrEqual(t, len(req.MetricData), model.MaxMetricDataPerRequest)
	}

	cancel()
	require.NoError(t, <-done)
}

func TestAgent_DisabledSendsNothing(t *testing.T) {
	ts, st := newIngest(t)
	cfg := testConfig(t, ts.URL)
	cfg.TelemetryEnabled = false
	clk := testclock.NewClock(time.Now())

	a, err := newAgent(cfg, clk)
	require.NoError(t, err)
	require.Equal(t, clientid.OptedOut, a.clientID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	require.NoError(t, clk.WaitAdvance(cfg.LoopInterval, time.Second, 1))
	require.NoError(t, clk.WaitAdvance(cfg.LoopInterval, time.Second, 1))
	cancel()
	require.NoError(t, <-done)
	require.Empty(t, st.Metrics())
}

func TestAgent_Feedback(t *testing.T) {
	ts, st := newIngest(t)
	cfg := testConfig(t, ts.URL)
	cfg.Sentiment = "Negative"
	cfg.Comment = "slow"

	a, err := newAgent(cfg, testclock.NewClock(time.Now()))
	require.NoError(t, err)
	require.NoError(t, a.run(context.Background()))

	fb := st.Feedback()
	require.Len(t, fb, 1)
	require.Equal(t, "slow", fb[0].Comment)
	require.Equal(t, "Toolkit", fb[0].AWSProduct)
}
