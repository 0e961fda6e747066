package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine checks a Prometheus sample allowing extra OTel scope labels.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestSyncMetrics_Integration(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	m, err := NewSyncMetrics(provider.MeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEnqueue(ctx, "queued")
	m.RecordEnqueue(ctx, "queued")
	m.RecordEnqueue(ctx, "duplicate")
	m.RecordDelivery(ctx, "success")
	m.RecordDelivery(ctx, "transient")
	m.RecordDelivery(ctx, "transient")
	m.RecordReconciliation(ctx, 3)
	m.RecordPass(ctx, 120*time.Millisecond, 2)

	output := scrape(t, provider.Handler())

	assertMetricLine(t, output, `coachsync_sync_enqueued_total`, `result="queued"`, `2`)
	assertMetricLine(t, output, `coachsync_sync_enqueued_total`, `result="duplicate"`, `1`)
	assertMetricLine(t, output, `coachsync_sync_deliveries_total`, `outcome="transient"`, `2`)
	assertMetricLine(t, output, `coachsync_sync_deliveries_total`, `outcome="success"`, `1`)
	assert.Contains(t, output, "coachsync_sync_reconciliations_total")
	assert.Contains(t, output, "coachsync_sync_rewritten_items_total")
	assertMetricLine(t, output, `coachsync_sync_pass_duration_seconds_count`, `idle="false"`, `1`)
}

func TestNoOp(t *testing.T) {
	var m SyncMetrics = NoOp{}
	ctx := context.Background()

	m.RecordEnqueue(ctx, "queued")
	m.RecordDelivery(ctx, "success")
	m.RecordReconciliation(ctx, 1)
	m.RecordPass(ctx, time.Second, 0)
}

func TestServer_ServesMetrics(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)

	m, err := NewSyncMetrics(provider.MeterProvider())
	require.NoError(t, err)
	m.RecordDelivery(context.Background(), "permanent")

	srv := NewServer("127.0.0.1:0", provider, slog.New(slog.NewTextHandler(io.Discard, nil)))
	output := scrape(t, srv.Handler())
	assertMetricLine(t, output, `coachsync_sync_deliveries_total`, `outcome="permanent"`, `1`)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)

	srv := NewServer("127.0.0.1:0", provider, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
