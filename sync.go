package shieldsdk

import (
	"context"
	"fmt"
	"time"

	"github.com/shieldpool/go-sdk/balance"
	"github.com/shieldpool/go-sdk/indexer"
	wslistener "github.com/shieldpool/go-sdk/indexer/ws"
	"github.com/shieldpool/go-sdk/merkletree"
	"github.com/shieldpool/go-sdk/types"
	"github.com/shieldpool/go-sdk/utxo"
	log "github.com/sirupsen/logrus"
)

// SyncHistory indexes the transactions newer than the stored history,
// then brings the tree mirror, the balance and the utxo store up to date.
func (a *shieldClient) SyncHistory(ctx context.Context) error {
	err := a.syncHistory(ctx, false)
	a.syncListeners.broadcast(err)
	return err
}

// syncHistory only trusts the part of the stored history whose leaves are
// contiguous from leaf 0. Indexing resumes after the last transaction of
// that part, so a batch the indexer dropped is fetched again by the next
// sync, and the transactions past a hole are held back from the tree and
// the balance until the hole is filled.
func (a *shieldClient) syncHistory(ctx context.Context, rebuildTree bool) error {
	keypair, err := a.safeCheck()
	if err != nil {
		return err
	}

	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	txStore := a.store.TransactionStore()
	stored, err := txStore.GetAllTransactions(ctx)
	if err != nil {
		return err
	}
	prefix, _ := merkletree.ContiguousPrefix(stored)
	opts := indexer.Options{}
	if len(prefix) > 0 {
		opts.Until = prefix[len(prefix)-1].Signature
	}

	fetched, err := a.indexHistory(ctx, opts)
	if err != nil {
		return err
	}
	if len(fetched) > 0 {
		count, err := txStore.AddTransactions(ctx, fetched)
		if err != nil {
			return fmt.Errorf("failed to store indexed transactions: %w", err)
		}
		if count > 0 {
			log.Debugf("added %d indexed transaction(s)", count)
		}
		if stored, err = txStore.GetAllTransactions(ctx); err != nil {
			return err
		}
	}
	prefix, leaves := merkletree.ContiguousPrefix(stored)
	if held := len(stored) - len(prefix); held > 0 {
		log.Warnf(
			"history has a hole at leaf %d, %d transaction(s) held back until it is indexed",
			leaves, held,
		)
	}

	a.mu.RLock()
	fullScan := a.fullScan
	current := a.balance
	a.mu.RUnlock()
	if current == nil {
		return ErrLocked
	}

	txs, err := a.updateTree(prefix, fullScan || rebuildTree)
	if err != nil {
		return err
	}

	next := current.Clone()
	if err := a.engine.Update(ctx, next, keypair, txs); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if err := a.saveUtxos(ctx, current, next, txs); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.keypair != keypair {
		return ErrLocked
	}
	a.balance = next
	a.fullScan = false
	return nil
}

// indexHistory walks the signatures newer than opts.Until page by page
// until the indexer reports nothing older is left.
func (a *shieldClient) indexHistory(
	ctx context.Context, opts indexer.Options,
) ([]types.IndexedTransaction, error) {
	fetched := make([]types.IndexedTransaction, 0)
	for {
		res, err := a.indexer.IndexRecentTransactions(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to index transactions: %w", err)
		}
		fetched = append(fetched, res.Transactions...)
		if res.Dropped > 0 {
			log.Warnf("%d transaction(s) could not be fetched, retrying on next sync", res.Dropped)
		}
		if !res.HasMore || res.OldestSignature == "" {
			return fetched, nil
		}
		opts.Before = res.OldestSignature
	}
}

// updateTree brings the mirror up to the contiguous history prefix and
// returns the transactions whose leaves it did not hold yet, the whole
// prefix when the mirror is rebuilt.
func (a *shieldClient) updateTree(
	prefix []types.IndexedTransaction, rebuild bool,
) ([]types.IndexedTransaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !rebuild && a.tree != nil {
		known := uint64(a.tree.Len())
		fresh := make([]types.IndexedTransaction, 0)
		for _, tx := range prefix {
			if tx.FirstLeafIndex+uint64(len(tx.Leaves)) > known {
				fresh = append(fresh, tx)
			}
		}
		err := a.tree.AddIndexed(fresh)
		if err == nil {
			return fresh, nil
		}
		log.WithError(err).Warn("merkle tree mirror out of order, rebuilding it")
	}

	tree, err := merkletree.BuildFromIndexed(a.hasher, a.MerkleTreeLevels, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild merkle tree mirror: %w", err)
	}
	a.tree = tree
	return prefix, nil
}

// saveUtxos persists the difference between two states of the balance.
func (a *shieldClient) saveUtxos(
	ctx context.Context, before, after *balance.Balance, txs []types.IndexedTransaction,
) error {
	prev := make(map[string]types.ShieldedUtxo)
	for _, u := range before.ShieldedUtxos() {
		prev[u.Commitment] = u
	}
	spenders := nullifierSpenders(txs)

	added := make([]types.ShieldedUtxo, 0)
	confirmed := make(map[string]uint64)
	spent := make(map[string]string)

	for _, u := range after.CommittedUtxos() {
		if _, ok := prev[u.Key()]; !ok {
			added = append(added, balance.ToShieldedUtxo(u, types.UtxoCommitted))
		}
	}
	for _, u := range after.SpendableUtxos() {
		old, ok := prev[u.Key()]
		if !ok {
			added = append(added, balance.ToShieldedUtxo(u, types.UtxoSpendable))
			continue
		}
		if old.Status == types.UtxoCommitted && u.Index != nil {
			confirmed[u.Key()] = *u.Index
		}
	}
	for _, u := range after.InboxUtxos() {
		if _, ok := prev[u.Key()]; !ok {
			added = append(added, balance.ToShieldedUtxo(u, types.UtxoInbox))
		}
	}
	for _, u := range after.SpentUtxos() {
		old, ok := prev[u.Key()]
		if ok && old.Status == types.UtxoSpent {
			continue
		}
		spentBy := a.spender(u, spenders)
		if !ok {
			su := balance.ToShieldedUtxo(u, types.UtxoSpent)
			su.SpentBy = spentBy
			added = append(added, su)
			continue
		}
		if old.Status == types.UtxoCommitted && u.Index != nil {
			confirmed[u.Key()] = *u.Index
		}
		spent[u.Key()] = spentBy
	}

	utxoStore := a.store.UtxoStore()
	if len(added) > 0 {
		count, err := utxoStore.AddUtxos(ctx, added)
		if err != nil {
			return fmt.Errorf("failed to add utxos: %w", err)
		}
		if count > 0 {
			log.Debugf("added %d utxo(s)", count)
		}
	}
	if len(confirmed) > 0 {
		count, err := utxoStore.ConfirmUtxos(ctx, confirmed)
		if err != nil {
			return fmt.Errorf("failed to confirm utxos: %w", err)
		}
		if count > 0 {
			log.Debugf("confirmed %d utxo(s)", count)
		}
	}
	if len(spent) > 0 {
		count, err := utxoStore.SpendUtxos(ctx, spent)
		if err != nil {
			return fmt.Errorf("failed to spend utxos: %w", err)
		}
		if count > 0 {
			log.Debugf("spent %d utxo(s)", count)
		}
	}
	return nil
}

// nullifierSpenders maps every nullifier revealed by txs to the signature
// of the transaction revealing it.
func nullifierSpenders(txs []types.IndexedTransaction) map[string]string {
	spenders := make(map[string]string)
	for _, tx := range txs {
		for i := range tx.Nullifiers {
			spenders[tx.NullifierValue(i).String()] = tx.Signature
		}
	}
	return spenders
}

func (a *shieldClient) spender(u *utxo.Utxo, spenders map[string]string) string {
	nullifier, err := u.Nullifier(a.hasher)
	if err != nil {
		return ""
	}
	return spenders[nullifier.String()]
}

func (a *shieldClient) listenForShieldedTxs(ctx context.Context, listener *wslistener.Listener) {
	if err := a.SyncHistory(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("failed to sync history")
	}

	var notifications <-chan wslistener.Notification
	if listener != nil {
		if err := listener.Start(ctx); err != nil {
			log.WithError(err).Warn("ledger listener unavailable, polling only")
		} else {
			notifications = listener.Subscribe(100)
		}
	}

	ticker := time.NewTicker(a.IndexerPollInterval)
	defer ticker.Stop()

	log.Debugf("listening for shielded txs")
	for {
		select {
		case <-ctx.Done():
			log.Debugf("stopping shielded tx listener")
			return
		case notification, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if notification.Failed {
				continue
			}
			log.Debugf("new shielded tx %s", notification.Signature)
		case <-ticker.C:
		}

		if err := a.SyncHistory(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("failed to sync history")
		}
	}
}
