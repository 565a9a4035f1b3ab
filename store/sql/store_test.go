package sqlstore_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	sqlstore "github.com/shieldpool/go-sdk/store/sql"
	"github.com/shieldpool/go-sdk/types"
	"github.com/stretchr/testify/require"
)

func TestUtxoStore(t *testing.T) {
	ctx := context.Background()
	db, err := sqlstore.OpenDb(t.TempDir())
	require.NoError(t, err)
	store := sqlstore.NewUtxoStore(db)
	defer store.Close()

	native := solana.SystemProgramID.String()
	utxos := []types.ShieldedUtxo{
		{
			Commitment:      "111",
			Amounts:         [2]uint64{100, 0},
			Assets:          [2]string{native, native},
			Blinding:        "7",
			PoolType:        "0",
			AppDataHash:     "0",
			VerifierAddress: native,
			Status:          types.UtxoCommitted,
		},
		{
			Commitment:      "222",
			Amounts:         [2]uint64{50, 300},
			Assets:          [2]string{native, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
			Blinding:        "8",
			PoolType:        "0",
			AppDataHash:     "0",
			VerifierAddress: native,
			Index:           3,
			Status:          types.UtxoSpendable,
		},
	}

	count, err := store.AddUtxos(ctx, utxos)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	count, err = store.AddUtxos(ctx, utxos)
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = store.ConfirmUtxos(ctx, map[string]uint64{"111": 6, "222": 3})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = store.SpendUtxos(ctx, map[string]string{"222": "sig", "999": "sig"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	spendable, spent, err := store.GetAllUtxos(ctx)
	require.NoError(t, err)
	require.Len(t, spendable, 1)
	require.Equal(t, uint64(6), spendable[0].Index)
	require.Equal(t, types.UtxoSpendable, spendable[0].Status)
	require.Len(t, spent, 1)
	require.Equal(t, "sig", spent[0].SpentBy)
	require.Equal(t, utxos[1].Assets, spent[0].Assets)

	require.NoError(t, store.Clean(ctx))
	got, err := store.GetUtxos(ctx, []string{"111", "222"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestTransactionStore(t *testing.T) {
	ctx := context.Background()
	db, err := sqlstore.OpenDb("")
	require.NoError(t, err)
	store := sqlstore.NewTransactionStore(db)
	defer store.Close()

	latest, err := store.GetLatestTransaction(ctx)
	require.NoError(t, err)
	require.Nil(t, latest)

	recipient := solana.MustPublicKeyFromBase58("EhtvYkp8yYbw1Kxk3BK2dB4HCC5hfaRJ9eTnbTZU6PqM")
	txs := []types.IndexedTransaction{
		{
			Signature:       "b",
			Type:            types.ActionUnshield,
			To:              recipient,
			FirstLeafIndex:  4,
			PublicAmountSol: big.NewInt(0),
			PublicAmountSpl: big.NewInt(500),
			RelayerFee:      10,
			Leaves:          [][32]byte{{1}, {2}},
			Nullifiers:      [][32]byte{{5}, {6}},
			BlockTime:       time.Unix(1700000000, 0),
		},
		{
			Signature:       "a",
			Type:            types.ActionShield,
			FirstLeafIndex:  2,
			PublicAmountSol: big.NewInt(1_000_000),
			PublicAmountSpl: big.NewInt(0),
			Leaves:          [][32]byte{{3}, {4}},
			EncryptedUtxos:  []byte{1, 2, 3},
			Message:         []byte("hi"),
		},
	}
	count, err := store.AddTransactions(ctx, txs)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	count, err = store.AddTransactions(ctx, txs)
	require.NoError(t, err)
	require.Zero(t, count)

	all, err := store.GetAllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].Signature)
	require.Equal(t, []byte{1, 2, 3}, all[0].EncryptedUtxos)
	require.Equal(t, []byte("hi"), all[0].Message)
	require.Empty(t, all[0].Nullifiers)

	latest, err = store.GetLatestTransaction(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", latest.Signature)
	require.Equal(t, recipient, latest.To)
	require.Equal(t, int64(500), latest.PublicAmountSpl.Int64())
	require.Equal(t, uint64(10), latest.RelayerFee)
	require.Equal(t, [][32]byte{{5}, {6}}, latest.Nullifiers)
	require.Equal(t, int64(1700000000), latest.BlockTime.Unix())

	got, err := store.GetTransactions(ctx, []string{"b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
