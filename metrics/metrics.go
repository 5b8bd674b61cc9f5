// Package metrics exposes prometheus counters/gauges for the replay
// core, grounded on the teacher's ingestion/evm/rpc/metrics/metrics.go:
// a package-level var block of metric objects, registered in init(),
// served from promhttp.Handler() mounted on its own mux.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkUnitsTotal counts work units executed by kind (genesis, blocks,
	// rupd, ewrap, estart, forced_stop).
	WorkUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolos_work_units_total",
			Help: "Total work units executed, by kind",
		},
		[]string{"kind"},
	)

	// RollbackDepthSlots is the slot depth of the most recent rollback.
	RollbackDepthSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dolos_rollback_depth_slots",
			Help: "Slot depth of the most recent chain rollback",
		},
	)

	// RollbacksTotal counts rollbacks handled since startup.
	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dolos_rollbacks_total",
			Help: "Total rollbacks handled",
		},
	)

	// StoreWriteSeconds histograms CommitState/CommitArchive latency by
	// phase (state, archive).
	StoreWriteSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dolos_store_write_seconds",
			Help:    "commit.Coordinator write latency by phase",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms..~4s
		},
		[]string{"phase"},
	)

	// EpochBoundarySeconds histograms RUPD/EWRAP/ESTART duration.
	EpochBoundarySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dolos_epoch_boundary_seconds",
			Help:    "Epoch-boundary phase duration",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"phase"},
	)

	// CurrentEpoch tracks the last epoch ESTART opened.
	CurrentEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dolos_current_epoch",
			Help: "Current epoch number",
		},
	)

	// TipSlot tracks the cursor slot committed to the WAL.
	TipSlot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dolos_tip_slot",
			Help: "Most recently committed chain tip slot",
		},
	)

	// WALSizeBytes and ArchiveSizeBytes are registered for on-disk store
	// size; no code in this module sets them.
	WALSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dolos_wal_size_bytes",
			Help: "Estimated on-disk size of the WAL store",
		},
	)
	ArchiveSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dolos_archive_size_bytes",
			Help: "Estimated on-disk size of the Archive store",
		},
	)

	// MempoolTxsByStage gauges live mempool membership per stage.
	MempoolTxsByStage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dolos_mempool_txs",
			Help: "Mempool transaction count by stage",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkUnitsTotal,
		RollbackDepthSlots,
		RollbacksTotal,
		StoreWriteSeconds,
		EpochBoundarySeconds,
		CurrentEpoch,
		TipSlot,
		WALSizeBytes,
		ArchiveSizeBytes,
		MempoolTxsByStage,
	)
}

// StartServer starts the metrics HTTP server on addr, mirroring the
// teacher's metrics.StartServer exactly (its own mux, /metrics only,
// logged and backgrounded).
func StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Printf("[metrics] listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}
