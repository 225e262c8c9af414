// Package metrics exposes the store's Prometheus instrumentation,
// registered at package load through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Inserts = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "entrystore_shard_inserts_total",
		Help: "Entries successfully inserted across all shards.",
	},
)

var Erases = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "entrystore_shard_erases_total",
		Help: "Entries removed across all shards.",
	},
)

var Splits = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "entrystore_shard_splits_total",
		Help: "Shard split operations performed.",
	},
)

var ShardOpened = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "entrystore_shard_opens_total",
		Help: "Lazy-open operations that successfully opened a shard's files.",
	},
)

var ShardClosed = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "entrystore_shard_closes_total",
		Help: "Shard close operations, including failure-driven closes.",
	},
)

var CacheSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "entrystore_shard_cache_size",
		Help: "Row count of the most recently touched shard's in-memory cache.",
	},
)

var ProofAttempts = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "entrystore_proof_attempts_total",
		Help: "Proof-of-work candidate trailers hashed during sign operations.",
	},
)

var OpenShards = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "entrystore_open_shards",
		Help: "Number of shards currently holding open file handles.",
	},
)
