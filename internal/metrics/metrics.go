// Package metrics registers the Prometheus collectors of the key-gen node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SharesHeld tracks the number of live shares in memory.
	SharesHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oprf_keygen_shares_held",
		Help: "Number of OPRF key shares currently held in memory.",
	})

	// ShareRefreshes counts share swaps performed by the refresh loop.
	ShareRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oprf_keygen_share_refreshes_total",
		Help: "Number of shares reloaded after an external reshare.",
	})

	// TransactionRetries counts retried contribution submissions.
	TransactionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oprf_keygen_transaction_retries_total",
		Help: "Number of retried registry transactions.",
	})

	// ProofFailures counts round-2 submissions reverted by proof
	// verification.
	ProofFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oprf_keygen_proof_failures_total",
		Help: "Number of round-2 contributions rejected by the verifier.",
	})

	// CryptoFailures counts commitment-check failures in round 3; each one
	// is an alarm condition.
	CryptoFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oprf_keygen_crypto_failures_total",
		Help: "Number of decrypted shares failing their commitment check.",
	})
)
