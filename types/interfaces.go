package types

import (
	"context"
)

type Store interface {
	ConfigStore() ConfigStore
	TransactionStore() TransactionStore
	UtxoStore() UtxoStore
	Clean(ctx context.Context)
	Close()
}

type ConfigStore interface {
	GetType() string
	GetDatadir() string
	AddData(ctx context.Context, data StoredConfig) error
	GetData(ctx context.Context) (*StoredConfig, error)
	CleanData(ctx context.Context) error
	Close()
}

// TransactionStore caches indexed transactions keyed by signature so that
// indexing can resume from the latest one.
type TransactionStore interface {
	AddTransactions(ctx context.Context, txs []IndexedTransaction) (int, error)
	GetAllTransactions(ctx context.Context) ([]IndexedTransaction, error)
	GetTransactions(ctx context.Context, signatures []string) ([]IndexedTransaction, error)
	// GetLatestTransaction returns the transaction with the highest leaf
	// index, nil if the store is empty.
	GetLatestTransaction(ctx context.Context) (*IndexedTransaction, error)
	Clean(ctx context.Context) error
	GetEventChannel() <-chan TransactionEvent
	Close()
}

type UtxoStore interface {
	AddUtxos(ctx context.Context, utxos []ShieldedUtxo) (int, error)
	// ConfirmUtxos marks committed utxos as spendable at the given leaf
	// index, keyed by commitment.
	ConfirmUtxos(ctx context.Context, indexes map[string]uint64) (int, error)
	// SpendUtxos marks utxos as spent by the given transaction signature,
	// keyed by commitment.
	SpendUtxos(ctx context.Context, spentUtxos map[string]string) (int, error)
	GetAllUtxos(ctx context.Context) (spendable, spent []ShieldedUtxo, err error)
	GetUtxos(ctx context.Context, commitments []string) ([]ShieldedUtxo, error)
	Clean(ctx context.Context) error
	GetEventChannel() <-chan UtxoEvent
	Close()
}
