// Package metrics exposes the Prometheus collectors of the sdk. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shieldsdk"

type Metrics struct {
	indexedTxs      prometheus.Counter
	droppedTxs      *prometheus.CounterVec
	fetchFailures   prometheus.Counter
	decryptAttempts prometheus.Counter
	decryptedUtxos  prometheus.Counter
	nullifierCache  *prometheus.CounterVec
	proofDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		indexedTxs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "transactions_total",
			Help:      "number of shielded transactions decoded by the indexer",
		}),
		droppedTxs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "dropped_transactions_total",
			Help:      "number of fetched transactions skipped by the indexer",
		}, []string{"reason"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "fetch_failures_total",
			Help:      "number of transaction batches dropped after exhausting retries",
		}),
		decryptAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "decryption_attempts_total",
			Help:      "number of leaves the decryption workers tried to open",
		}),
		decryptedUtxos: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "decrypted_utxos_total",
			Help:      "number of leaves owned by the local keypair",
		}),
		nullifierCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "nullifier_cache_total",
			Help:      "nullifier account lookups by cache result",
		}, []string{"result"}),
		proofDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "proof_duration_seconds",
			Help:      "time spent generating and verifying a proof",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.indexedTxs, m.droppedTxs, m.fetchFailures,
			m.decryptAttempts, m.decryptedUtxos, m.nullifierCache, m.proofDuration,
		)
	}
	return m
}

func (m *Metrics) IndexedTransactions(n int) {
	if m == nil {
		return
	}
	m.indexedTxs.Add(float64(n))
}

func (m *Metrics) DroppedTransaction(reason string) {
	if m == nil {
		return
	}
	m.droppedTxs.WithLabelValues(reason).Inc()
}

func (m *Metrics) FetchFailure() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

func (m *Metrics) DecryptionAttempt(owned bool) {
	if m == nil {
		return
	}
	m.decryptAttempts.Inc()
	if owned {
		m.decryptedUtxos.Inc()
	}
}

func (m *Metrics) NullifierCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.nullifierCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProof(start time.Time) {
	if m == nil {
		return
	}
	m.proofDuration.Observe(time.Since(start).Seconds())
}
