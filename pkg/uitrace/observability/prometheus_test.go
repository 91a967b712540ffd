package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEventStarted(ctx, "load")
	m.RecordEventStarted(ctx, "load")
	m.RecordEventFinished(ctx, "load", "Ready")
	m.RecordEventDropped(ctx, "load", "no matching begin")
	m.RecordError(ctx)
	m.RecordBatch(ctx, 3, 512, 20*time.Millisecond, nil)
	m.RecordBatch(ctx, 1, 128, time.Millisecond, errors.New("offline"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsStarted.WithLabelValues("load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsFinished.WithLabelValues("load", "Ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped.WithLabelValues("load", "no matching begin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("false")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "uitrace_batch_size_bytes")
	assert.Contains(t, names, "uitrace_events_started_total")
}

func TestPrometheusMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)
	second, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	second.RecordError(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(first.errorsRecorded))
}
