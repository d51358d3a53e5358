package inmemory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/toolkit-telemetry/model"
)

func metricsRequest(name string) *model.PostMetricsRequest {
	return &model.PostMetricsRequest{
		AWSProduct: "Toolkit",
		ClientID:   "c1",
		MetricData: []model.MetricDatumPayload{{MetricName: name, Unit: model.UnitNone, Value: 1}},
	}
}

func TestMemStorage_SaveAndList(t *testing.T) {
	ctx := context.Background()
	st := NewMemStorage(nil)

	require.NoError(t, st.SaveMetrics(ctx, metricsRequest("a")))
	require.NoError(t, st.SaveMetrics(ctx, metricsRequest("b")))
	require.NoError(t, st.SaveFeedback(ctx, &model.PostFeedbackRequest{Sentiment: model.Positive, Comment: "hi"}))

	all := st.Metrics()
	require.Len(t, all, 2)
	require.Equal(t, "b", all[1].MetricData[0].MetricName)
	require.Len(t, st.Feedback(), 1)
	require.NoError(t, st.Ping(ctx))
}

func TestMemStorage_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "snapshot.json")

	st := NewMemStorage(nil)
	require.NoError(t, st.SaveMetrics(ctx, metricsRequest("restored")))
	require.NoError(t, st.SaveFeedback(ctx, &model.PostFeedbackRequest{Sentiment: model.Negative}))
	require.NoError(t, st.SaveToFile(ctx, file))

	loaded := NewMemStorage(nil)
	require.NoError(t, loaded.LoadFromFile(ctx, file))
	require.Equal(t, st.Metrics(), loaded.Metrics())
	require.Equal(t, model.Negative, loaded.Feedback()[0].Sentiment)
}

func TestMemStorage_LoadMissingFile(t *testing.T) {
	st := NewMemStorage(nil)
	require.NoError(t, st.LoadFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.json")))
	require.Empty(t, st.Metrics())
}
