package shieldsdk

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/balance"
	"github.com/shieldpool/go-sdk/types"
)

var Version string

type ShieldClient interface {
	GetVersion() string
	GetConfigData(ctx context.Context) (*types.Config, error)
	Init(ctx context.Context, args InitArgs) error
	IsLocked(ctx context.Context) bool
	Unlock(ctx context.Context, password string) error
	Lock(ctx context.Context) error
	IsSynced(ctx context.Context) <-chan types.SyncEvent
	// Address returns the shielded address other users transfer to.
	Address(ctx context.Context) (string, error)
	Shield(ctx context.Context, args ShieldArgs) (string, error)
	Unshield(ctx context.Context, args UnshieldArgs) (string, error)
	Transfer(ctx context.Context, args TransferArgs) (string, error)
	// MergeUtxos accepts the utxos received for asset, the native asset when
	// empty, by spending them into a single utxo of the local keypair.
	MergeUtxos(ctx context.Context, asset solana.PublicKey) (string, error)
	GetBalance(ctx context.Context) (*balance.Balance, error)
	SyncHistory(ctx context.Context) error
	GetTransactionHistory(ctx context.Context) ([]types.IndexedTransaction, error)
	GetTransactionEventChannel(ctx context.Context) <-chan types.TransactionEvent
	GetUtxoEventChannel(ctx context.Context) <-chan types.UtxoEvent
	Reset(ctx context.Context)
	Stop()
}

type InitArgs struct {
	Config   types.Config
	Password string
	// Seed derives the shielded keypair deterministically, usually a wallet
	// signature. A random keypair is generated when empty.
	Seed []byte
	// PrivateKey imports an exported keypair, it takes precedence over Seed.
	PrivateKey string
}

// ShieldArgs moves public funds of the payer into the pool.
type ShieldArgs struct {
	AmountSol *big.Int
	Token     solana.PublicKey
	AmountSpl *big.Int
	// Recipient is a shielded address, the local keypair when empty.
	Recipient string
}

// UnshieldArgs moves shielded funds to a public account. Recipient is the
// wallet receiving the lamports, its associated token account receives the
// tokens.
type UnshieldArgs struct {
	AmountSol *big.Int
	Token     solana.PublicKey
	AmountSpl *big.Int
	Recipient solana.PublicKey
}

type TransferArgs struct {
	AmountSol *big.Int
	Token     solana.PublicKey
	AmountSpl *big.Int
	Recipient string
}
