package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/and161185/toolkit-telemetry/model"
)

type recorded struct {
	mu  sync.Mutex
	all []model.Metrics
	ch  chan struct{}
}

func (r *recorded) Record(m model.Metrics) {
	r.mu.Lock()
	r.all = append(r.all, m)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func valueOf(t *testing.T, m model.Metrics, name string) model.MetricDatum {
	t.Helper()
	for _, d := range m.Data {
		if d.MetricName == name {
			return d
		}
	}
	t.Fatalf("metric %s not found", name)
	return model.MetricDatum{}
}

func TestCollect(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	h := New(nil, clk, time.Minute)

	first := h.Collect()
	clk.Advance(90 * time.Second)
	second := h.Collect()

	for _, d := range first.Data {
		require.True(t, d.IsValid(), d.MetricName)
		require.True(t, d.Passive, d.MetricName)
	}
	require.Equal(t, 1.0, valueOf(t, first, SessionHeartbeatMetric).Value)
	require.Equal(t, 2.0, valueOf(t, second, SessionHeartbeatMetric).Value)
	require.Equal(t, 90000.0, valueOf(t, second, "session_uptime").Value)
	require.Equal(t, model.UnitBytes, valueOf(t, second, "runtime_heap_alloc").Unit)
	require.Positive(t, valueOf(t, second, "runtime_goroutines").Value)
	require.Equal(t, clk.Now(), second.CreatedOn)
}

func TestSessionStart(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	h := New(nil, clk, time.Minute)

	start := h.SessionStart("Toolkit", "1.2.3")
	require.Len(t, start.Data, 1)
	require.Equal(t, SessionStartMetric, start.Data[0].MetricName)
	v, ok := start.Data[0].MetadataValue("version")
	require.True(t, ok)
	require.Equal(t, "1.2.3", v)
	require.Equal(t, clk.Now(), start.CreatedOn)
}

func TestRun(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := &recorded{ch: make(chan struct{}, 2)}
	h := New(rec, clk, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
		select {
		case <-rec.ch:
		case <-time.After(time.Second):
			t.Fatal("heartbeat not recorded")
		}
	}

	cancel()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.all, 2)
}
