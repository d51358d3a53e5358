// Package heartbeat records session lifecycle events and periodic runtime
// samples for the host process.
package heartbeat

import (
	"context"
	"runtime"
	"time"

	"github.com/juju/clock"

	"github.com/and161185/toolkit-telemetry/model"
)

const (
	SessionStartMetric     = "session_start"
	SessionHeartbeatMetric = "session_heartbeat"
)

// Recorder accepts metric batches. telemetry.Service satisfies it.
type Recorder interface {
	Record(m model.Metrics)
}

// Heartbeat samples the process at a fixed interval.
type Heartbeat struct {
	recorder Recorder
	clock    clock.Clock
	interval time.Duration
	started  time.Time
	beats    int64
}

func New(r Recorder, clk clock.Clock, interval time.Duration) *Heartbeat {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Heartbeat{
		recorder: r,
		clock:    clk,
		interval: interval,
		started:  clk.Now(),
	}
}

// SessionStart returns the event recorded once when the host starts.
func (h *Heartbeat) SessionStart(product, version string) model.Metrics {
	d := model.MetricDatum{MetricName: SessionStartMetric, Unit: model.UnitNone, Value: 1}
	d.AddMetadata("product", product)
	d.AddMetadata("version", version)
	d.AddMetadata("os", runtime.GOOS)
	m := model.NewMetrics(d)
	m.CreatedOn = h.clock.Now()
	return m
}

// Collect samples the runtime once.
func (h *Heartbeat) Collect() model.Metrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.beats++

	data := []model.MetricDatum{
		{MetricName: SessionHeartbeatMetric, Unit: model.UnitCount, Value: float64(h.beats)},
		{MetricName: "session_uptime", Unit: model.UnitMilliseconds, Value: float64(h.uptime().Milliseconds())},
		{MetricName: "runtime_heap_alloc", Unit: model.UnitBytes, Value: float64(ms.HeapAlloc)},
		{MetricName: "runtime_heap_inuse", Unit: model.UnitBytes, Value: float64(ms.HeapInuse)},
		{MetricName: "runtime_sys", Unit: model.UnitBytes, Value: float64(ms.Sys)},
		{MetricName: "runtime_num_gc", Unit: model.UnitCount, Value: float64(ms.NumGC)},
		{MetricName: "runtime_gc_cpu", Unit: model.UnitPercent, Value: ms.GCCPUFraction * 100},
		{MetricName: "runtime_goroutines", Unit: model.UnitCount, Value: float64(runtime.NumGoroutine())},
	}
	for i := range data {
		data[i].Passive = true
	}
	m := model.NewMetrics(data...)
	m.CreatedOn = h.clock.Now()
	return m
}

// Run records a sample every interval until ctx is done.
func (h *Heartbeat) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.clock.After(h.interval):
			h.recorder.Record(h.Collect())
		}
	}
}

func (h *Heartbeat) uptime() time.Duration {
	return h.clock.Now().Sub(h.started)
}
