package shieldsdk

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/indexer"
	"github.com/shieldpool/go-sdk/internal/metrics"
	"github.com/shieldpool/go-sdk/prover"
	"github.com/shieldpool/go-sdk/relayer"
)

type ClientOption func(*shieldClient)

// WithLedger replaces the json-rpc ledger built from the config.
func WithLedger(ledger indexer.Ledger) ClientOption {
	return func(c *shieldClient) {
		c.ledger = ledger
	}
}

// WithRelayer replaces the http relayer built from the config.
func WithRelayer(r relayer.Client) ClientOption {
	return func(c *shieldClient) {
		c.relayer = r
	}
}

// WithProver replaces the remote prover built from the config.
func WithProver(p prover.Prover) ClientOption {
	return func(c *shieldClient) {
		c.prover = p
	}
}

// WithProofVerifier sets the verifier every proof is checked against before
// submission. Transactions cannot be sent without one.
func WithProofVerifier(v prover.Verifier) ClientOption {
	return func(c *shieldClient) {
		c.proofVerifier = v
	}
}

// WithVerifyingKeys builds the proof verifier out of snarkjs verifying keys
// indexed by circuit name.
func WithVerifyingKeys(keys map[string][]byte) ClientOption {
	return func(c *shieldClient) {
		parsed := make(map[string]*prover.VerifyingKey, len(keys))
		for circuit, data := range keys {
			vk, err := prover.ParseVerifyingKey(data)
			if err != nil {
				c.optErr = fmt.Errorf("invalid verifying key for %s: %w", circuit, err)
				return
			}
			parsed[circuit] = vk
		}
		c.proofVerifier = prover.NewGroth16Verifier(parsed)
	}
}

// WithPayer sets the wallet paying for and signing shields.
func WithPayer(payer solana.PrivateKey) ClientOption {
	return func(c *shieldClient) {
		c.payer = payer
	}
}

// WithMetrics shares m with the indexer and the balance engine.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *shieldClient) {
		c.metrics = m
	}
}

// WithTransactionFeed keeps the history in sync in background once the
// client is unlocked: on every ledger notification and every poll interval.
func WithTransactionFeed(enabled bool) ClientOption {
	return func(c *shieldClient) {
		c.withTransactionFeed = enabled
	}
}

// WithIndexerOptions tunes the indexer the client builds, eg. its retry
// policy when fetching transaction bodies.
func WithIndexerOptions(opts ...indexer.Option) ClientOption {
	return func(c *shieldClient) {
		c.indexerOpts = append(c.indexerOpts, opts...)
	}
}

// WithProverTimeout bounds a single call to the remote prover.
func WithProverTimeout(timeout time.Duration) ClientOption {
	return func(c *shieldClient) {
		c.proverTimeout = timeout
	}
}
