// Package indexer reconstructs the shielded transaction history from the
// events the merkle tree program logs through the noop program.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/internal/metrics"
	"github.com/shieldpool/go-sdk/internal/utils"
	"github.com/shieldpool/go-sdk/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	signaturesPageSize   = 1000
	signaturesPerRequest = 5
	fetchRetryDelay      = 2 * time.Second
	fetchMaxRetries      = 3
	roundDelay           = 500 * time.Millisecond
	fetchParallelism     = 4
	defaultLimit         = 1000
)

var errIncompleteBatch = errors.New("incomplete transaction batch")

type Option func(*Indexer)

// WithRetry overrides the delay and the number of retries of a batch fetch.
func WithRetry(delay time.Duration, maxRetries int) Option {
	return func(i *Indexer) {
		i.retryDelay = delay
		i.maxRetries = maxRetries
	}
}

// WithRoundDelay sets the pause between two pages of signatures.
func WithRoundDelay(delay time.Duration) Option {
	return func(i *Indexer) {
		i.roundDelay = delay
	}
}

// WithParallelism bounds the number of batch fetches in flight.
func WithParallelism(n int) Option {
	return func(i *Indexer) {
		if n > 0 {
			i.parallelism = n
		}
	}
}

// WithMetrics records fetch failures and dropped transactions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Indexer) {
		i.metrics = m
	}
}

type Indexer struct {
	ledger            Ledger
	merkleTreeProgram solana.PublicKey
	noopProgram       solana.PublicKey
	verifierPrograms  map[solana.PublicKey]struct{}

	retryDelay  time.Duration
	maxRetries  int
	roundDelay  time.Duration
	parallelism int
	metrics     *metrics.Metrics
}

func New(ledger Ledger, cfg types.Config, opts ...Option) (*Indexer, error) {
	if ledger == nil {
		return nil, fmt.Errorf("missing ledger")
	}
	if cfg.MerkleTreeProgramID.IsZero() {
		return nil, fmt.Errorf("missing merkle tree program id")
	}
	if cfg.NoopProgramID.IsZero() {
		return nil, fmt.Errorf("missing noop program id")
	}
	verifiers := make(map[solana.PublicKey]struct{})
	for _, v := range cfg.VerifierPrograms() {
		verifiers[v] = struct{}{}
	}
	i := &Indexer{
		ledger:            ledger,
		merkleTreeProgram: cfg.MerkleTreeProgramID,
		noopProgram:       cfg.NoopProgramID,
		verifierPrograms:  verifiers,
		retryDelay:        fetchRetryDelay,
		maxRetries:        fetchMaxRetries,
		roundDelay:        roundDelay,
		parallelism:       fetchParallelism,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// IndexRecentTransactions walks the signatures of the merkle tree program
// newest first, at most opts.Limit of them, and returns the decoded events
// sorted by first leaf index. Batches that cannot be fetched are skipped
// and counted in Result.Dropped, running again is safe.
func (i *Indexer) IndexRecentTransactions(ctx context.Context, opts Options) (*Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	rounds := (limit + signaturesPageSize - 1) / signaturesPageSize

	result := &Result{}
	seen := make(map[string]struct{})
	before := opts.Before
	for round := 0; round < rounds; round++ {
		pageLimit := signaturesPageSize
		if round == rounds-1 {
			pageLimit = limit - round*signaturesPageSize
		}
		signatures, err := i.ledger.GetSignaturesForAddress(ctx, i.merkleTreeProgram, SignaturesOptions{
			Limit:  pageLimit,
			Before: before,
			Until:  opts.Until,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get signatures: %w", err)
		}
		if len(signatures) == 0 {
			break
		}
		if result.NewestSignature == "" {
			result.NewestSignature = signatures[0].Signature
		}
		before = signatures[len(signatures)-1].Signature
		result.OldestSignature = before

		toFetch := make([]string, 0, len(signatures))
		for _, sig := range signatures {
			if _, ok := seen[sig.Signature]; ok {
				continue
			}
			seen[sig.Signature] = struct{}{}
			if sig.Failed {
				i.metrics.DroppedTransaction("failed")
				continue
			}
			toFetch = append(toFetch, sig.Signature)
		}

		txs, dropped, err := i.fetchTransactions(ctx, toFetch)
		if err != nil {
			return nil, err
		}
		result.Dropped += dropped
		for _, tx := range txs {
			result.Transactions = append(result.Transactions, i.parseTransaction(tx)...)
		}
		log.Debugf(
			"indexer: round %d fetched %d signature(s), %d event(s) so far",
			round, len(signatures), len(result.Transactions),
		)

		if len(signatures) < pageLimit {
			break
		}
		if round == rounds-1 {
			result.HasMore = true
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(i.roundDelay):
		}
	}

	sort.SliceStable(result.Transactions, func(a, b int) bool {
		return result.Transactions[a].FirstLeafIndex < result.Transactions[b].FirstLeafIndex
	})
	i.metrics.IndexedTransactions(len(result.Transactions))
	return result, nil
}

// fetchTransactions fetches bodies in sub-batches. A sub-batch still
// incomplete after the retries is dropped, the number of signatures
// dropped is returned.
func (i *Indexer) fetchTransactions(
	ctx context.Context, signatures []string,
) ([]*RawTransaction, int, error) {
	batches := utils.Chunk(signatures, signaturesPerRequest)
	results := make([][]*RawTransaction, len(batches))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(i.parallelism)
	for idx, batch := range batches {
		eg.Go(func() error {
			handler := utils.NewRetryHandler(i.retryDelay, i.maxRetries, 1)
			txs, err := utils.Retry(egCtx, handler, func(ctx context.Context) ([]*RawTransaction, error) {
				txs, err := i.ledger.GetTransactions(ctx, batch)
				if err != nil {
					return nil, err
				}
				for _, tx := range txs {
					if tx == nil {
						return nil, errIncompleteBatch
					}
				}
				return txs, nil
			})
			if err != nil {
				if ctxErr := egCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.WithError(err).Warnf(
					"indexer: dropping batch of %d transaction(s) starting at %s", len(batch), batch[0],
				)
				i.metrics.FetchFailure()
				return nil
			}
			results[idx] = txs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	dropped := 0
	txs := make([]*RawTransaction, 0, len(signatures))
	for idx, batch := range results {
		if batch == nil {
			dropped += len(batches[idx])
			continue
		}
		txs = append(txs, batch...)
	}
	return txs, dropped, nil
}

// parseTransaction decodes every event a transaction emitted. Failed
// transactions and transactions that never touched the noop program are
// skipped.
func (i *Indexer) parseTransaction(tx *RawTransaction) []types.IndexedTransaction {
	if tx.Failed {
		i.metrics.DroppedTransaction("failed")
		return nil
	}
	if !i.touchesNoop(tx) {
		i.metrics.DroppedTransaction("no_event")
		return nil
	}

	verifierIx := i.findVerifierInstruction(tx)
	out := make([]types.IndexedTransaction, 0, 1)
	for _, ix := range tx.InnerInstructions {
		if !ix.ProgramID.Equals(i.noopProgram) || len(ix.Data) == 0 {
			continue
		}
		data, err := decodeInstructionData(ix.Data)
		if err != nil {
			continue
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			log.WithError(err).Debugf("indexer: skipping noop payload of %s", tx.Signature)
			continue
		}
		out = append(out, newIndexedTransaction(tx, ev, verifierIx))
	}
	if len(out) == 0 {
		i.metrics.DroppedTransaction("no_event")
	}
	return out
}

func (i *Indexer) touchesNoop(tx *RawTransaction) bool {
	for _, key := range tx.AccountKeys {
		if key.Equals(i.noopProgram) {
			return true
		}
	}
	return false
}

// findVerifierInstruction looks for the verifier call carrying the public
// accounts, the one with the most accounts, among the top level instructions
// first, then among the inner ones for programs calling the verifier through
// cpi.
func (i *Indexer) findVerifierInstruction(tx *RawTransaction) *RawInstruction {
	for _, ixs := range [][]RawInstruction{tx.Instructions, tx.InnerInstructions} {
		var found *RawInstruction
		for idx := range ixs {
			if _, ok := i.verifierPrograms[ixs[idx].ProgramID]; !ok {
				continue
			}
			if found == nil || len(ixs[idx].Accounts) > len(found.Accounts) {
				found = &ixs[idx]
			}
		}
		if found != nil {
			return found
		}
	}
	return nil
}
