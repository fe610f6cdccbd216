package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexq/internal/indexer"
	"github.com/Aman-CERP/indexq/internal/job"
	"github.com/Aman-CERP/indexq/internal/queue"
	"github.com/Aman-CERP/indexq/internal/store"
)

type staticStats queue.Stats

func (s staticStats) Stats() queue.Stats { return queue.Stats(s) }

type closedState struct{}

func (closedState) Metrics() *pebble.Metrics { return nil }

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestQueueCollector_ReadsStatsAtScrape(t *testing.T) {
	// Given a queue with pending jobs
	q, err := queue.New(5, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Add(job.NewIndex(job.DocID("w", "S", "A")).WithPriority(job.High)))
	require.NoError(t, q.Add(job.NewIndex(job.DocID("w", "S", "B"))))
	require.NoError(t, q.Add(job.NewIndex(job.DocID("w", "S", "B"))))
	m := New(q, nil)

	// When scraped
	body := scrape(t, m)

	// Then occupancy and counters reflect the queue right now
	assert.Contains(t, body, "indexq_queue_size 2")
	assert.Contains(t, body, "indexq_queue_capacity 5")
	assert.Contains(t, body, `indexq_queue_pending{priority="high"} 1`)
	assert.Contains(t, body, `indexq_queue_pending{priority="default"} 1`)
	assert.Contains(t, body, `indexq_queue_pending{priority="lowest"} 0`)
	assert.Contains(t, body, `indexq_queue_waiting_producers{priority="highest"} 0`)
	assert.Contains(t, body, "indexq_queue_added_total 2")
	assert.Contains(t, body, "indexq_queue_coalesced_total 1")

	_, err = q.Remove()
	require.NoError(t, err)
	assert.Contains(t, scrape(t, m), "indexq_queue_size 1")
}

func TestQueueCollector_ReportsUnnamedPriorities(t *testing.T) {
	stats := staticStats{
		Size:             1,
		Capacity:         1,
		Pending:          map[job.Priority]int{job.Priority(7): 1},
		WaitingProducers: map[job.Priority]int{job.Priority(-3): 2},
	}

	body := scrape(t, New(stats, nil))

	assert.Contains(t, body, `indexq_queue_pending{priority="rank(7)"} 1`)
	assert.Contains(t, body, `indexq_queue_waiting_producers{priority="rank(-3)"} 2`)
}

func TestMetrics_Observe(t *testing.T) {
	m := New(staticStats{}, nil)
	doc := job.NewIndex(job.DocID("w", "S", "D"))
	del := job.NewDelete(job.DocID("w", "S", "D"))

	m.Observe(doc, indexer.ResultIndexed, 10*time.Millisecond)
	m.Observe(doc, indexer.ResultIndexed, 20*time.Millisecond)
	m.Observe(doc, indexer.ResultSkipped, time.Millisecond)
	m.Observe(del, indexer.ResultDeleted, time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `indexq_jobs_total{action="index",result="indexed"} 2`)
	assert.Contains(t, body, `indexq_jobs_total{action="index",result="skipped"} 1`)
	assert.Contains(t, body, `indexq_jobs_total{action="delete",result="deleted"} 1`)
	assert.Contains(t, body, `indexq_job_duration_seconds_count{action="index"} 3`)
}

func TestStateCollector(t *testing.T) {
	state, err := store.OpenStateStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	require.NoError(t, state.Put(job.DocID("w", "S", "D"), "abc"))

	body := scrape(t, New(staticStats{}, state))
	assert.Contains(t, body, "indexq_state_disk_usage_bytes")
	assert.Contains(t, body, "indexq_state_wal_bytes_written_total")

	require.NoError(t, state.Close())
	assert.NotContains(t, scrape(t, New(staticStats{}, state)), "indexq_state_disk_usage_bytes")
	assert.NotContains(t, scrape(t, New(staticStats{}, closedState{})), "indexq_state_")
}

func TestMetrics_Serve(t *testing.T) {
	m := New(staticStats{Capacity: 3}, nil)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.serve(ctx, listener, nil) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "indexq_queue_capacity 3")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
