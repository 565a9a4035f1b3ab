package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shieldpool/go-sdk/hasher"
	"github.com/shieldpool/go-sdk/internal/metrics"
	"github.com/shieldpool/go-sdk/internal/utils"
	"github.com/shieldpool/go-sdk/pda"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
	log "github.com/sirupsen/logrus"
)

const (
	defaultWorkers       = 4
	defaultCacheSize     = 10_000
	nullifierBatchLength = 100
)

// NullifierChecker reports whether nullifier accounts exist on chain. A
// utxo whose nullifier account exists is spent.
type NullifierChecker interface {
	AccountsExist(ctx context.Context, accounts []solana.PublicKey) ([]bool, error)
}

type Option func(*Engine)

// WithWorkers sets the number of decryption goroutines.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMetrics records decryption attempts and nullifier cache hits on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithCacheSize sets how many spent nullifiers are remembered between
// refreshes.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

type Engine struct {
	hasher            hasher.Hasher
	checker           NullifierChecker
	merkleTreeProgram solana.PublicKey
	assets            *utxo.AssetLookupTable
	verifiers         *utxo.VerifierLookupTable
	workers           int
	cacheSize         int
	metrics           *metrics.Metrics

	// spent nullifier pdas; an existing nullifier account never goes away.
	spent *lru.Cache[solana.PublicKey, struct{}]
}

func NewEngine(
	h hasher.Hasher, checker NullifierChecker, cfg types.Config, opts ...Option,
) (*Engine, error) {
	if h == nil {
		return nil, fmt.Errorf("missing hasher")
	}
	if checker == nil {
		return nil, fmt.Errorf("missing nullifier checker")
	}
	if cfg.MerkleTreeProgramID.IsZero() {
		return nil, fmt.Errorf("missing merkle tree program id")
	}
	e := &Engine{
		hasher:            h,
		checker:           checker,
		merkleTreeProgram: cfg.MerkleTreeProgramID,
		assets:            utxo.NewAssetLookupTable(cfg.AssetMints...),
		verifiers:         utxo.NewVerifierLookupTable(cfg.VerifierPrograms()...),
		workers:           defaultWorkers,
		cacheSize:         defaultCacheSize,
	}
	if cfg.DecryptionWorkers > 0 {
		e.workers = cfg.DecryptionWorkers
	}
	for _, opt := range opts {
		opt(e)
	}
	cache, err := lru.New[solana.PublicKey, struct{}](e.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create nullifier cache: %w", err)
	}
	e.spent = cache
	return e, nil
}

func (e *Engine) Assets() *utxo.AssetLookupTable {
	return e.assets
}

func (e *Engine) Verifiers() *utxo.VerifierLookupTable {
	return e.verifiers
}

type decryptJob struct {
	commitment *big.Int
	ciphertext []byte
	index      uint64
}

// RefreshBalance builds the balance of keypair from scratch out of txs.
func (e *Engine) RefreshBalance(
	ctx context.Context, keypair *utxo.Keypair, txs []types.IndexedTransaction,
) (*Balance, error) {
	balance := New()
	if err := e.Update(ctx, balance, keypair, txs); err != nil {
		return nil, err
	}
	return balance, nil
}

// Update decrypts every leaf of txs for keypair, then moves the owned utxos
// of balance to spendable or spent according to their nullifier accounts.
// Applying the same transactions twice leaves balance unchanged.
func (e *Engine) Update(
	ctx context.Context, balance *Balance, keypair *utxo.Keypair, txs []types.IndexedTransaction,
) error {
	if keypair == nil || !keypair.HasPrivateKey() {
		return utxo.ErrPrivateKeyUndefined
	}

	jobs := e.jobs(txs)
	owned, err := e.decrypt(ctx, keypair, jobs)
	if err != nil {
		return err
	}
	received := e.received(balance, owned, txs)

	// Known spendable utxos must be checked again, they may have been spent
	// by a transaction of this batch.
	candidates := make([]*utxo.Utxo, 0, len(owned))
	seen := make(map[string]struct{})
	known := append(balance.SpendableUtxos(), balance.InboxUtxos()...)
	for _, u := range append(owned, known...) {
		if _, ok := seen[u.Key()]; ok {
			continue
		}
		seen[u.Key()] = struct{}{}
		candidates = append(candidates, u)
	}
	spent, err := e.spentSet(ctx, candidates)
	if err != nil {
		return err
	}

	var added, inbox, removed int
	for i, u := range candidates {
		if spent[i] {
			if balance.markSpent(u) {
				removed++
			}
			continue
		}
		if _, ok := received[u.Key()]; ok {
			if balance.markInbox(u) {
				inbox++
			}
			continue
		}
		if balance.markSpendable(u) {
			added++
		}
	}
	log.Debugf(
		"balance updated: %d leaves scanned, %d owned, %d new spendable, %d new in inbox, %d spent",
		len(jobs), len(owned), added, inbox, removed,
	)
	return nil
}

// received returns the keys of the newly owned utxos created by a transfer
// or an unshield that revealed none of the nullifiers of the balance, ie.
// sent by another user. Shields are deposits and never land in the inbox.
func (e *Engine) received(
	balance *Balance, owned []*utxo.Utxo, txs []types.IndexedTransaction,
) map[string]struct{} {
	out := make(map[string]struct{})
	creators := make(map[string]int)
	for i, tx := range txs {
		for j := range tx.Leaves {
			creators[tx.LeafCommitment(j).String()] = i
		}
	}

	fresh := make([]*utxo.Utxo, 0)
	for _, u := range owned {
		if balance.has(u.Key()) {
			continue
		}
		i, ok := creators[u.Key()]
		if !ok || (txs[i].Type != types.ActionTransfer && txs[i].Type != types.ActionUnshield) {
			continue
		}
		fresh = append(fresh, u)
	}
	if len(fresh) == 0 {
		return out
	}

	nullifiers := make(map[string]struct{})
	for _, u := range append(owned, balance.allUtxos()...) {
		nullifier, err := u.Nullifier(e.hasher)
		if err != nil {
			continue
		}
		nullifiers[nullifier.String()] = struct{}{}
	}
	for _, u := range fresh {
		tx := txs[creators[u.Key()]]
		ours := false
		for k := range tx.Nullifiers {
			if _, ok := nullifiers[tx.NullifierValue(k).String()]; ok {
				ours = true
				break
			}
		}
		if !ours {
			out[u.Key()] = struct{}{}
		}
	}
	return out
}

func (e *Engine) jobs(txs []types.IndexedTransaction) []decryptJob {
	jobs := make([]decryptJob, 0)
	for _, tx := range txs {
		for j := range tx.Leaves {
			ciphertext, ok := tx.EncryptedUtxo(j, utxo.EncryptedUtxoLength)
			if !ok {
				log.Debugf("tx %s: no ciphertext for leaf %d", tx.Signature, j)
				continue
			}
			jobs = append(jobs, decryptJob{
				commitment: tx.LeafCommitment(j),
				ciphertext: ciphertext,
				index:      tx.LeafIndex(j),
			})
		}
	}
	return jobs
}

// decrypt fans the jobs out to the worker pool. Leaves that do not open
// for keypair are skipped, any other decoding failure is logged and skipped
// too since a malformed ciphertext must not block the balance.
func (e *Engine) decrypt(
	ctx context.Context, keypair *utxo.Keypair, jobs []decryptJob,
) ([]*utxo.Utxo, error) {
	jobCh := make(chan decryptJob)
	resultCh := make(chan *utxo.Utxo)

	wg := &sync.WaitGroup{}
	for range e.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				index := job.index
				u, err := utxo.Decrypt(
					e.hasher, keypair, job.ciphertext, job.commitment,
					e.assets, e.verifiers, &index,
				)
				e.metrics.DecryptionAttempt(err == nil)
				if err != nil {
					if !isNotOwned(err) {
						log.WithError(err).Warnf("failed to decode leaf %d", job.index)
					}
					continue
				}
				if u.IsEmpty() {
					continue
				}
				select {
				case resultCh <- u:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	owned := make([]*utxo.Utxo, 0)
	seen := make(map[string]struct{})
	for u := range resultCh {
		if _, ok := seen[u.Key()]; ok {
			continue
		}
		seen[u.Key()] = struct{}{}
		owned = append(owned, u)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return owned, nil
}

// spentSet returns, per utxo, whether its nullifier account exists.
func (e *Engine) spentSet(ctx context.Context, utxos []*utxo.Utxo) ([]bool, error) {
	spent := make([]bool, len(utxos))
	pdas := make([]solana.PublicKey, len(utxos))
	toCheck := make([]int, 0, len(utxos))

	for i, u := range utxos {
		nullifier, err := u.Nullifier(e.hasher)
		if err != nil {
			return nil, fmt.Errorf("failed to compute nullifier of %s: %w", u.Key(), err)
		}
		pdas[i], err = pda.Nullifier(nullifier, e.merkleTreeProgram)
		if err != nil {
			return nil, err
		}
		_, hit := e.spent.Get(pdas[i])
		e.metrics.NullifierCache(hit)
		if hit {
			spent[i] = true
			continue
		}
		toCheck = append(toCheck, i)
	}

	for _, batch := range utils.Chunk(toCheck, nullifierBatchLength) {
		accounts := make([]solana.PublicKey, 0, len(batch))
		for _, i := range batch {
			accounts = append(accounts, pdas[i])
		}
		exist, err := e.checker.AccountsExist(ctx, accounts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch nullifier accounts: %w", err)
		}
		if len(exist) != len(accounts) {
			return nil, fmt.Errorf(
				"got %d nullifier account results, expected %d", len(exist), len(accounts),
			)
		}
		for k, i := range batch {
			if exist[k] {
				spent[i] = true
				e.spent.Add(pdas[i], struct{}{})
			}
		}
	}
	return spent, nil
}

func isNotOwned(err error) bool {
	return errors.Is(err, utxo.ErrNotOwned) || errors.Is(err, utxo.ErrInvalidCiphertext)
}
