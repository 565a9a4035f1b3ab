package indexer_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shieldpool/go-sdk/field"
	"github.com/shieldpool/go-sdk/indexer"
	"github.com/shieldpool/go-sdk/types"
	"github.com/stretchr/testify/require"
)

var (
	cfg          = types.DefaultConfig()
	verifierZero = cfg.VerifierProgramIDs[types.VerifierZero]
	signer       = solana.MustPublicKeyFromBase58("5bKhm8WGcNZbRC7gqn6A6E3A1npYuxg8CdX9VA5N4pv4")
	recipientSol = solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	recipientSpl = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
)

type fakeLedger struct {
	mu         sync.Mutex
	signatures []indexer.SignatureInfo
	txs        map[string]*indexer.RawTransaction
	// missing makes a transaction unavailable for the given number of calls,
	// forever when negative.
	missing  map[string]int
	fetched  map[string]int
	sigCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		txs:     make(map[string]*indexer.RawTransaction),
		missing: make(map[string]int),
		fetched: make(map[string]int),
	}
}

// add appends tx as the newest transaction.
func (l *fakeLedger) add(tx *indexer.RawTransaction) {
	l.signatures = append([]indexer.SignatureInfo{{
		Signature: tx.Signature, Slot: tx.Slot, Failed: tx.Failed,
	}}, l.signatures...)
	l.txs[tx.Signature] = tx
}

func (l *fakeLedger) GetSignaturesForAddress(
	_ context.Context, _ solana.PublicKey, opts indexer.SignaturesOptions,
) ([]indexer.SignatureInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sigCalls++

	start := 0
	if opts.Before != "" {
		for i, s := range l.signatures {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}
	out := make([]indexer.SignatureInfo, 0)
	for _, s := range l.signatures[start:] {
		if s.Signature == opts.Until || len(out) == opts.Limit {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

func (l *fakeLedger) GetTransactions(_ context.Context, signatures []string) ([]*indexer.RawTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*indexer.RawTransaction, 0, len(signatures))
	for _, sig := range signatures {
		l.fetched[sig]++
		if n := l.missing[sig]; n != 0 {
			l.missing[sig] = n - 1
			out = append(out, nil)
			continue
		}
		out = append(out, l.txs[sig])
	}
	return out, nil
}

func (l *fakeLedger) GetAccountInfo(context.Context, solana.PublicKey) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (l *fakeLedger) AccountsExist(_ context.Context, accounts []solana.PublicKey) ([]bool, error) {
	return make([]bool, len(accounts)), nil
}

func (l *fakeLedger) GetMerkleTreeRoots(context.Context, solana.PublicKey) ([][32]byte, error) {
	return nil, nil
}

func (l *fakeLedger) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}

func (l *fakeLedger) SendTransaction(context.Context, *solana.Transaction) (string, error) {
	return "", errors.New("not implemented")
}

func amount(v *big.Int) [32]byte {
	return field.ToBytesBE(v)
}

func leaf(i uint64) [32]byte {
	return field.ToBytesLE(new(big.Int).SetUint64(1000 + i))
}

func eventTx(t *testing.T, sig string, ev indexer.Event) *indexer.RawTransaction {
	data, err := indexer.EncodeEvent(ev)
	require.NoError(t, err)

	accounts := make([]solana.PublicKey, 15)
	accounts[0] = signer
	accounts[5] = signer
	accounts[7] = recipientSol
	accounts[11] = recipientSpl
	blockTime := int64(1_700_000_000)
	return &indexer.RawTransaction{
		Signature:   sig,
		BlockTime:   &blockTime,
		AccountKeys: []solana.PublicKey{signer, verifierZero, cfg.NoopProgramID},
		Instructions: []indexer.RawInstruction{
			{ProgramID: verifierZero, Accounts: []solana.PublicKey{signer, solana.SystemProgramID, signer}},
			{ProgramID: verifierZero, Accounts: accounts},
		},
		InnerInstructions: []indexer.RawInstruction{
			{ProgramID: cfg.MerkleTreeProgramID, Data: base58.Encode([]byte{1, 2, 3})},
			{ProgramID: cfg.NoopProgramID, Data: base58.Encode(data)},
		},
	}
}

func transferEvent(firstLeafIndex uint64) indexer.Event {
	return indexer.Event{
		Leaves:          [][32]byte{leaf(firstLeafIndex), leaf(firstLeafIndex + 1)},
		PublicAmountSol: amount(field.Negate(big.NewInt(100))),
		RpcFee:          100,
		EncryptedUtxos:  make([]byte, 512),
		Nullifiers:      [][32]byte{amount(big.NewInt(7)), amount(big.NewInt(8))},
		FirstLeafIndex:  firstLeafIndex,
	}
}

func newIndexer(t *testing.T, ledger indexer.Ledger) *indexer.Indexer {
	idx, err := indexer.New(
		ledger, cfg,
		indexer.WithRetry(time.Millisecond, 2),
		indexer.WithRoundDelay(time.Millisecond),
	)
	require.NoError(t, err)
	return idx
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		sol    *big.Int
		spl    *big.Int
		fee    uint64
		action types.Action
		outSol int64
		outSpl int64
	}{
		{"shield", big.NewInt(1_000_000), big.NewInt(0), 0, types.ActionShield, 1_000_000, 0},
		{"shield spl", big.NewInt(0), big.NewInt(30), 0, types.ActionShield, 0, 30},
		{"unshield sol", field.Negate(big.NewInt(600)), big.NewInt(0), 100, types.ActionUnshield, 500, 0},
		{"unshield spl", big.NewInt(0), field.Negate(big.NewInt(500)), 0, types.ActionUnshield, 0, 500},
		{"transfer", field.Negate(big.NewInt(100)), big.NewInt(0), 100, types.ActionTransfer, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := indexer.Event{PublicAmountSol: amount(tt.sol), PublicAmountSpl: amount(tt.spl), RpcFee: tt.fee}
			action, sol, spl := ev.Classify()
			require.Equal(t, tt.action, action)
			require.Equal(t, tt.outSol, sol.Int64())
			require.Equal(t, tt.outSpl, spl.Int64())
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	ev := transferEvent(4)
	ev.Message = []byte("hello")
	data, err := indexer.EncodeEvent(ev)
	require.NoError(t, err)

	decoded, err := indexer.DecodeEvent(data)
	require.NoError(t, err)
	require.Equal(t, ev, *decoded)

	ev.Leaves = ev.Leaves[:1]
	data, err = indexer.EncodeEvent(ev)
	require.NoError(t, err)
	_, err = indexer.DecodeEvent(data)
	require.Error(t, err)

	_, err = indexer.DecodeEvent([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestIndexRecentTransactions(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()

	ledger.add(eventTx(t, "sig-a", transferEvent(4)))

	shield := transferEvent(0)
	shield.PublicAmountSol = amount(big.NewInt(1_000_000))
	shield.RpcFee = 0
	ledger.add(eventTx(t, "sig-b", shield))

	failed := eventTx(t, "sig-failed", transferEvent(8))
	failed.Failed = true
	ledger.add(failed)

	noNoop := eventTx(t, "sig-no-noop", transferEvent(10))
	noNoop.AccountKeys = noNoop.AccountKeys[:2]
	ledger.add(noNoop)

	ledger.add(eventTx(t, "sig-c", transferEvent(2)))

	idx := newIndexer(t, ledger)
	res, err := idx.IndexRecentTransactions(ctx, indexer.Options{Limit: 100})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 3)
	require.Equal(t, "sig-c", res.NewestSignature)
	require.Equal(t, "sig-a", res.OldestSignature)
	require.Zero(t, ledger.fetched["sig-failed"])

	var indices []uint64
	for _, tx := range res.Transactions {
		indices = append(indices, tx.FirstLeafIndex)
	}
	require.Equal(t, []uint64{0, 2, 4}, indices)

	shieldTx := res.Transactions[0]
	require.Equal(t, "sig-b", shieldTx.Signature)
	require.Equal(t, types.ActionShield, shieldTx.Type)
	require.Equal(t, int64(1_000_000), shieldTx.PublicAmountSol.Int64())

	transfer := res.Transactions[2]
	require.Equal(t, types.ActionTransfer, transfer.Type)
	require.Equal(t, signer, transfer.Signer)
	require.Equal(t, signer, transfer.RelayerRecipientSol)
	require.Equal(t, recipientSol, transfer.To)
	require.Equal(t, recipientSpl, transfer.ToSpl)
	require.Equal(t, uint64(100), transfer.RelayerFee)
	require.Len(t, transfer.Leaves, 2)
	require.Len(t, transfer.EncryptedUtxos, 512)
	require.Equal(t, time.Unix(1_700_000_000, 0), transfer.BlockTime)
}

func TestIndexIncremental(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.add(eventTx(t, "sig-0", transferEvent(0)))
	ledger.add(eventTx(t, "sig-1", transferEvent(2)))

	idx := newIndexer(t, ledger)
	res, err := idx.IndexRecentTransactions(ctx, indexer.Options{})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)

	ledger.add(eventTx(t, "sig-2", transferEvent(4)))
	res, err = idx.IndexRecentTransactions(ctx, indexer.Options{Until: res.NewestSignature})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	require.Equal(t, "sig-2", res.Transactions[0].Signature)

	res, err = idx.IndexRecentTransactions(ctx, indexer.Options{Until: res.NewestSignature})
	require.NoError(t, err)
	require.Empty(t, res.Transactions)

	for sig, n := range ledger.fetched {
		require.Equal(t, 1, n, sig)
	}
}

func TestIndexRetries(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.add(eventTx(t, "sig-0", transferEvent(0)))
		ledger.missing["sig-0"] = 2

		res, err := newIndexer(t, ledger).IndexRecentTransactions(ctx, indexer.Options{})
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		require.Equal(t, 3, ledger.fetched["sig-0"])
	})

	t.Run("drops exhausted batch", func(t *testing.T) {
		ledger := newFakeLedger()
		for i := 0; i < 7; i++ {
			ledger.add(eventTx(t, fmt.Sprintf("sig-%d", i), transferEvent(uint64(2*i))))
		}
		// sig-6 is the newest, it lands in the first batch of five
		ledger.missing["sig-6"] = -1

		res, err := newIndexer(t, ledger).IndexRecentTransactions(ctx, indexer.Options{})
		require.NoError(t, err)
		require.Len(t, res.Transactions, 2)
		require.Equal(t, 3, ledger.fetched["sig-6"])
		require.Equal(t, "sig-0", res.OldestSignature)
		require.Equal(t, 5, res.Dropped)
		require.False(t, res.HasMore)
	})
}

func TestIndexPaging(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	for i := 0; i < 1200; i++ {
		tx := eventTx(t, fmt.Sprintf("sig-%d", i), transferEvent(uint64(2*i)))
		if i%100 != 0 {
			tx.AccountKeys = tx.AccountKeys[:2]
		}
		ledger.add(tx)
	}

	res, err := newIndexer(t, ledger).IndexRecentTransactions(ctx, indexer.Options{Limit: 1100})
	require.NoError(t, err)
	require.Equal(t, 2, ledger.sigCalls)
	require.Equal(t, "sig-1199", res.NewestSignature)
	require.Equal(t, "sig-100", res.OldestSignature)
	// sig-1100 down to sig-100
	require.Len(t, res.Transactions, 11)
	require.True(t, res.HasMore)
	require.Zero(t, res.Dropped)

	res, err = newIndexer(t, ledger).IndexRecentTransactions(ctx, indexer.Options{
		Limit: 1100, Before: res.OldestSignature,
	})
	require.NoError(t, err)
	require.False(t, res.HasMore)
	require.Equal(t, "sig-0", res.OldestSignature)
	require.Len(t, res.Transactions, 1)
}

func TestNewIndexer(t *testing.T) {
	_, err := indexer.New(nil, cfg)
	require.Error(t, err)

	bad := cfg
	bad.NoopProgramID = solana.PublicKey{}
	_, err = indexer.New(newFakeLedger(), bad)
	require.Error(t, err)
}
