// Package metrics exposes queue, worker and state store metrics in the
// Prometheus format.
package metrics

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/indexq/internal/job"
	"github.com/Aman-CERP/indexq/internal/queue"
)

// StatsSource provides queue statistics at scrape time.
type StatsSource interface {
	Stats() queue.Stats
}

// QueueCollector reads queue statistics on every scrape rather than
// tracking them as they change.
type QueueCollector struct {
	source StatsSource

	size             *prometheus.Desc
	capacity         *prometheus.Desc
	pending          *prometheus.Desc
	waitingProducers *prometheus.Desc
	waitingConsumers *prometheus.Desc
	added            *prometheus.Desc
	coalesced        *prometheus.Desc
	removed          *prometheus.Desc
}

// NewQueueCollector creates a collector over source.
func NewQueueCollector(source StatsSource) *QueueCollector {
	return &QueueCollector{
		source: source,

		size: prometheus.NewDesc(
			"indexq_queue_size",
			"Number of pending jobs",
			nil, nil,
		),
		capacity: prometheus.NewDesc(
			"indexq_queue_capacity",
			"Number of pending jobs before producers are held back",
			nil, nil,
		),
		pending: prometheus.NewDesc(
			"indexq_queue_pending",
			"Pending jobs by priority",
			[]string{"priority"}, nil,
		),
		waitingProducers: prometheus.NewDesc(
			"indexq_queue_waiting_producers",
			"Producers blocked on a full queue, by priority",
			[]string{"priority"}, nil,
		),
		waitingConsumers: prometheus.NewDesc(
			"indexq_queue_waiting_consumers",
			"Consumers blocked on an empty queue",
			nil, nil,
		),
		added: prometheus.NewDesc(
			"indexq_queue_added_total",
			"Jobs inserted into the queue",
			nil, nil,
		),
		coalesced: prometheus.NewDesc(
			"indexq_queue_coalesced_total",
			"Submissions merged into an already pending job",
			nil, nil,
		),
		removed: prometheus.NewDesc(
			"indexq_queue_removed_total",
			"Jobs taken off the queue",
			nil, nil,
		),
	}
}

func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.capacity
	ch <- c.pending
	ch <- c.waitingProducers
	ch <- c.waitingConsumers
	ch <- c.added
	ch <- c.coalesced
	ch <- c.removed
}

func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(stats.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(stats.Capacity))
	ch <- prometheus.MustNewConstMetric(c.waitingConsumers, prometheus.GaugeValue, float64(stats.WaitingConsumers))
	ch <- prometheus.MustNewConstMetric(c.added, prometheus.CounterValue, float64(stats.Added))
	ch <- prometheus.MustNewConstMetric(c.coalesced, prometheus.CounterValue, float64(stats.Coalesced))
	ch <- prometheus.MustNewConstMetric(c.removed, prometheus.CounterValue, float64(stats.Removed))

	// Named levels are always reported so dashboards see zeros, not gaps.
	for _, p := range job.Levels() {
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(stats.Pending[p]), p.String())
		ch <- prometheus.MustNewConstMetric(c.waitingProducers, prometheus.GaugeValue, float64(stats.WaitingProducers[p]), p.String())
	}
	for p, n := range stats.Pending {
		if !isLevel(p) {
			ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(n), p.String())
		}
	}
	for p, n := range stats.WaitingProducers {
		if !isLevel(p) {
			ch <- prometheus.MustNewConstMetric(c.waitingProducers, prometheus.GaugeValue, float64(n), p.String())
		}
	}
}

func isLevel(p job.Priority) bool {
	for _, l := range job.Levels() {
		if l == p {
			return true
		}
	}
	return false
}

// PebbleSource provides state store metrics at scrape time. A nil result
// means the store is closed and nothing is reported.
type PebbleSource interface {
	Metrics() *pebble.Metrics
}

// StateCollector reports a subset of pebble's metrics for the index state
// store.
type StateCollector struct {
	source PebbleSource

	diskUsage       *prometheus.Desc
	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

// NewStateCollector creates a collector over source.
func NewStateCollector(source PebbleSource) *StateCollector {
	return &StateCollector{
		source: source,
		diskUsage: prometheus.NewDesc(
			"indexq_state_disk_usage_bytes",
			"Disk space used by the index state store",
			nil, nil,
		),
		compactionCount: prometheus.NewDesc(
			"indexq_state_compaction_count_total",
			"Compactions performed by the index state store",
			nil, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"indexq_state_compaction_estimated_debt_bytes",
			"Bytes that need compacting to reach a stable state",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"indexq_state_memtable_size_bytes",
			"Current size of the memtable",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"indexq_state_wal_size_bytes",
			"Size of live WAL data",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"indexq_state_wal_bytes_written_total",
			"Physical bytes written to the WAL",
			nil, nil,
		),
	}
}

func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.diskUsage
	ch <- c.compactionCount
	ch <- c.compactionDebt
	ch <- c.memtableSize
	ch <- c.walSize
	ch <- c.walBytesWritten
}

func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.source.Metrics()
	if m == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, float64(m.DiskSpaceUsage()))
	ch <- prometheus.MustNewConstMetric(c.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactionDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
}
