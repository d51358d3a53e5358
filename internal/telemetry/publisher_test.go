package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/and161185/toolkit-telemetry/internal/client"
	"github.com/and161185/toolkit-telemetry/internal/queue"
	"github.com/and161185/toolkit-telemetry/internal/telemetry/mocks"
	"github.com/and161185/toolkit-telemetry/model"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type batchLen int

func (n batchLen) Matches(x interface{}) bool {
	b, ok := x.([]model.Metrics)
	return ok && len(b) == int(n)
}

func (n batchLen) String() string { return fmt.Sprintf("batch of %d", int(n)) }

var (
	accepted  = client.Outcome{Status: client.Success, StatusCode: 200}
	rejected  = client.Outcome{Status: client.PermanentFailure, StatusCode: 400, Err: &client.StatusError{StatusCode: 400}}
	serverErr = client.Outcome{Status: client.TransientFailure, StatusCode: 500, Err: &client.StatusError{StatusCode: 500}}
	offline   = client.Outcome{Status: client.TransientFailure, Err: errors.New("connection refused")}
)

type fixture struct {
	p      *Publisher
	q      *queue.EventQueue
	client *mocks.MockClient
	clock  *testclock.Clock
	id     uuid.UUID

	published, skipped int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		q:      queue.New(0),
		client: mocks.NewMockClient(ctrl),
		clock:  testclock.NewClock(epoch),
		id:     uuid.New(),
	}
	f.p = NewPublisher(DefaultPublisherConfig(), f.q, f.id,
		WithClock(f.clock),
		WithHooks(Hooks{
			OnPublished: func() { f.published++ },
			OnSkipped:   func() { f.skipped++ },
		}))
	f.p.SetEnabled(true)
	f.p.client = f.client
	return f
}

func (f *fixture) fill(n int) {
	for i := 0; i < n; i++ {
		f.q.Enqueue(model.NewMetrics(model.MetricDatum{MetricName: fmt.Sprintf("metric_%d", i), Unit: model.UnitCount, Value: 1}))
	}
}

func TestCycle_FirstCyclePublishes(t *testing.T) {
	f := newFixture(t)
	f.fill(1)

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).Return(accepted)

	f.p.cycle(context.Background())

	require.Zero(t, f.q.Len())
	require.Equal(t, 1, f.published)
	require.Equal(t, epoch, f.p.lastPublished)
}

func TestCycle_DisabledKeepsQueue(t *testing.T) {
	f := newFixture(t)
	f.p.SetEnabled(false)
	f.fill(3)

	f.p.cycle(context.Background())

	require.Equal(t, 3, f.q.Len())
	require.Equal(t, 1, f.skipped)
	require.Zero(t, f.published)
}

func TestCycle_EmptyQueueSkips(t *testing.T) {
	f := newFixture(t)

	f.p.cycle(context.Background())

	require.Equal(t, 1, f.skipped)
}

func TestCycle_SizeThreshold(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).Return(accepted),
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(12)).Return(accepted),
	)

	f.fill(1)
	f.p.cycle(context.Background())

	f.fill(1)
	f.p.cycle(context.Background())
	require.Equal(t, 1, f.q.Len(), "below threshold and interval")

	f.fill(11)
	f.p.cycle(context.Background())
	require.Zero(t, f.q.Len())
	require.Equal(t, 2, f.published)
	require.Equal(t, 1, f.skipped)
}

func TestCycle_TimeThreshold(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).Return(accepted),
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).Return(accepted),
	)

	f.fill(1)
	f.p.cycle(context.Background())

	f.fill(1)
	f.clock.Advance(time.Minute)
	f.p.cycle(context.Background())
	require.Equal(t, 1, f.q.Len())

	f.clock.Advance(f.p.cfg.MaxPublishInterval)
	f.p.cycle(context.Background())
	require.Zero(t, f.q.Len())
}

func TestCycle_DrainsInBatches(t *testing.T) {
	f := newFixture(t)
	f.fill(45)

	gomock.InOrder(
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(20)).Return(accepted),
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(20)).Return(accepted),
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(5)).Return(accepted),
	)

	f.p.cycle(context.Background())

	require.Zero(t, f.q.Len())
	require.Equal(t, 1, f.published)
}

func TestCycle_PermanentFailureDiscards(t *testing.T) {
	f := newFixture(t)
	f.fill(20)

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(20)).Return(rejected)

	f.p.cycle(context.Background())

	require.Zero(t, f.q.Len())
	require.True(t, f.p.lastPublished.IsZero())
	require.Zero(t, f.p.backoffLevel)
}

func TestCycle_TransientFailureRequeues(t *testing.T) {
	f := newFixture(t)
	f.fill(12)

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(12)).Return(serverErr)

	f.p.cycle(context.Background())

	require.Equal(t, 12, f.q.Len())
	require.Equal(t, 1, f.p.backoffLevel)
	require.Equal(t, 1, f.published)
}

func TestCycle_TransientFailureAfterDisableDiscards(t *testing.T) {
	f := newFixture(t)
	f.fill(3)

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(3)).DoAndReturn(
		func(context.Context, uuid.UUID, []model.Metrics) client.Outcome {
			f.p.SetEnabled(false)
			f.q.Clear()
			return serverErr
		})

	f.p.cycle(context.Background())

	require.Zero(t, f.q.Len())
	require.Zero(t, testutil.ToFloat64(f.p.metrics.Requeued))
}

func TestCycle_FailureStopsDrainAndKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.fill(21)

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(20)).Return(offline)

	f.p.cycle(context.Background())

	require.Equal(t, 21, f.q.Len())
	head := f.q.Dequeue(21)
	for i, m := range head {
		require.Equal(t, fmt.Sprintf("metric_%d", i), m.Data[0].MetricName)
	}
}

func TestCycle_BackoffIsCapped(t *testing.T) {
	f := newFixture(t)
	f.fill(1)

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).Return(offline).Times(8)

	for i := 0; i < 8; i++ {
		f.p.cycle(context.Background())
	}
	require.Equal(t, f.p.cfg.MaxBackoffLevel, f.p.backoffLevel)
	require.Equal(t, 6*f.p.cfg.LoopInterval, f.p.delay())

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).Return(accepted)
	f.p.cycle(context.Background())
	require.Zero(t, f.p.backoffLevel)
}

func TestCycle_InvalidBatchesDropped(t *testing.T) {
	f := newFixture(t)
	f.q.Enqueue(model.NewMetrics(model.MetricDatum{MetricName: "", Value: 1}))
	f.q.Enqueue(model.NewMetrics(model.MetricDatum{MetricName: "ok metric", Value: 1}))

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, batch []model.Metrics) client.Outcome {
			require.Equal(t, "okmetric", batch[0].Data[0].MetricName)
			require.Equal(t, model.UnitNone, batch[0].Data[0].Unit)
			return accepted
		})

	f.p.cycle(context.Background())
	require.Zero(t, f.q.Len())
}

func TestCycle_CancelledContextStopsDrain(t *testing.T) {
	f := newFixture(t)
	f.fill(30)

	ctx, cancel := context.WithCancel(context.Background())
	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(20)).
		DoAndReturn(func(sendCtx context.Context, _ uuid.UUID, _ []model.Metrics) client.Outcome {
			cancel()
			require.NoError(t, sendCtx.Err(), "in-flight send is not cancelled")
			return accepted
		})

	f.p.cycle(ctx)
	require.Equal(t, 10, f.q.Len())
}

func TestSafeCycle_RecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.fill(1)

	f.client.EXPECT().PostMetrics(gomock.Any(), f.id, gomock.Any()).
		DoAndReturn(func(context.Context, uuid.UUID, []model.Metrics) client.Outcome {
			panic("boom")
		})

	require.NotPanics(t, func() { f.p.safeCycle(context.Background()) })
}

func TestPublisher_LoopPublishesAndBacksOff(t *testing.T) {
	f := newFixture(t)
	f.p.client = nil

	cycles := make(chan struct{}, 4)
	f.p.hooks.OnPublished = func() { cycles <- struct{}{} }
	f.fill(1)

	gomock.InOrder(
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).Return(serverErr),
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(1)).Return(accepted),
	)

	require.NoError(t, f.p.Start(f.client))
	interval := f.p.cfg.LoopInterval

	require.NoError(t, f.clock.WaitAdvance(interval, time.Second, 1))
	waitCycle(t, cycles)

	// Backed off to twice the interval.
	require.NoError(t, f.clock.WaitAdvance(interval, time.Second, 1))
	select {
	case <-cycles:
		t.Fatal("cycle ran before the backoff delay elapsed")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, f.clock.WaitAdvance(interval, time.Second, 1))
	waitCycle(t, cycles)

	require.NoError(t, f.p.Close())
	require.Zero(t, f.q.Len())
}

func waitCycle(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("publish cycle did not run")
	}
}

func TestPublisher_CloseCancelsDelay(t *testing.T) {
	f := newFixture(t)
	f.p.client = nil
	f.fill(1)

	require.NoError(t, f.p.Start(f.client))

	done := make(chan error, 1)
	go func() { done <- f.p.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked on the loop delay")
	}
	require.Equal(t, 1, f.q.Len())
	require.NoError(t, f.p.Close())
}

func TestPublisher_StartTwice(t *testing.T) {
	f := newFixture(t)
	f.p.client = nil

	require.NoError(t, f.p.Start(f.client))
	defer f.p.Close()
	require.ErrorIs(t, f.p.Start(f.client), ErrAlreadyStarted)
}

func TestPublisher_SendFeedback(t *testing.T) {
	f := newFixture(t)
	f.p.client = nil

	err := f.p.SendFeedback(context.Background(), model.Positive, "", nil)
	require.ErrorIs(t, err, ErrNotStarted)

	f.p.client = f.client
	f.client.EXPECT().SendFeedback(gomock.Any(), model.Positive, "nice", gomock.Nil()).Return(nil)
	require.NoError(t, f.p.SendFeedback(context.Background(), model.Positive, "nice", nil))
}

func TestPublisher_Metrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	m, err := NewPublisherMetrics(reg, f.q)
	require.NoError(t, err)
	f.p.metrics = m

	f.fill(25)
	gomock.InOrder(
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(20)).Return(accepted),
		f.client.EXPECT().PostMetrics(gomock.Any(), f.id, batchLen(5)).Return(offline),
	)
	f.p.cycle(context.Background())

	require.Equal(t, 20.0, testutil.ToFloat64(m.Sent))
	require.Equal(t, 5.0, testutil.ToFloat64(m.Requeued))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("published")))

	_, err = NewPublisherMetrics(reg, f.q)
	require.Error(t, err, "duplicate registration")
}
