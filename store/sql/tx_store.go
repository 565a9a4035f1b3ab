package sqlstore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/types"
)

type txStore struct {
	db      *sql.DB
	querier *queries
	lock    *sync.Mutex
	eventCh chan types.TransactionEvent
}

func NewTransactionStore(db *sql.DB) types.TransactionStore {
	return &txStore{
		db:      db,
		querier: newQueries(db),
		lock:    &sync.Mutex{},
		eventCh: make(chan types.TransactionEvent, 100),
	}
}

func (v *txStore) AddTransactions(ctx context.Context, txs []types.IndexedTransaction) (int, error) {
	addedTxs := make([]types.IndexedTransaction, 0, len(txs))
	txBody := func(querierWithTx *queries) error {
		for i := range txs {
			tx := txs[i]
			row, err := txToRow(tx)
			if err != nil {
				return fmt.Errorf("tx %s: %w", tx.Signature, err)
			}
			inserted, err := querierWithTx.InsertTx(ctx, row)
			if err != nil {
				return err
			}
			if inserted {
				addedTxs = append(addedTxs, tx)
			}
		}
		return nil
	}
	if err := execTx(ctx, v.db, txBody); err != nil {
		return -1, err
	}

	if len(addedTxs) > 0 {
		go v.sendEvent(types.TransactionEvent{Type: types.TxsAdded, Txs: addedTxs})
	}

	return len(addedTxs), nil
}

func (v *txStore) GetAllTransactions(ctx context.Context) ([]types.IndexedTransaction, error) {
	rows, err := v.querier.SelectAllTxs(ctx)
	if err != nil {
		return nil, err
	}
	return readTxRows(rows)
}

func (v *txStore) GetTransactions(
	ctx context.Context, signatures []string,
) ([]types.IndexedTransaction, error) {
	rows, err := v.querier.SelectTxs(ctx, signatures)
	if err != nil {
		return nil, err
	}
	return readTxRows(rows)
}

func (v *txStore) GetLatestTransaction(ctx context.Context) (*types.IndexedTransaction, error) {
	rows, err := v.querier.SelectLatestTx(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := readTxRows(rows)
	if err != nil {
		return nil, err
	}
	if len(txs) <= 0 {
		return nil, nil
	}
	return &txs[0], nil
}

func (v *txStore) GetEventChannel() <-chan types.TransactionEvent {
	return v.eventCh
}

func (v *txStore) Clean(ctx context.Context) error {
	if err := v.querier.CleanTxs(ctx); err != nil {
		return err
	}
	// nolint:all
	v.db.ExecContext(ctx, "VACUUM")
	return nil
}

func (v *txStore) Close() {
	// nolint:all
	v.db.Close()
}

func (v *txStore) sendEvent(event types.TransactionEvent) {
	v.lock.Lock()
	defer v.lock.Unlock()

	select {
	case v.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}

func txToRow(tx types.IndexedTransaction) (txRow, error) {
	fee, err := safecast.ToInt64(tx.RelayerFee)
	if err != nil {
		return txRow{}, err
	}
	firstLeafIndex, err := safecast.ToInt64(tx.FirstLeafIndex)
	if err != nil {
		return txRow{}, err
	}
	var blockTime int64
	if !tx.BlockTime.IsZero() {
		blockTime = tx.BlockTime.Unix()
	}
	return txRow{
		Signature:           tx.Signature,
		BlockTime:           blockTime,
		Type:                int64(tx.Type),
		Signer:              tx.Signer.String(),
		FromSol:             tx.From.String(),
		ToSol:               tx.To.String(),
		FromSpl:             tx.FromSpl.String(),
		ToSpl:               tx.ToSpl.String(),
		RelayerRecipientSol: tx.RelayerRecipientSol.String(),
		PublicAmountSol:     amountString(tx.PublicAmountSol),
		PublicAmountSpl:     amountString(tx.PublicAmountSpl),
		RelayerFee:          fee,
		Leaves:              joinHashes(tx.Leaves),
		Nullifiers:          joinHashes(tx.Nullifiers),
		EncryptedUtxos:      tx.EncryptedUtxos,
		FirstLeafIndex:      firstLeafIndex,
		Message:             tx.Message,
	}, nil
}

func rowToTx(row txRow) (types.IndexedTransaction, error) {
	tx := types.IndexedTransaction{
		Signature:      row.Signature,
		Type:           types.Action(row.Type),
		RelayerFee:     uint64(row.RelayerFee),
		EncryptedUtxos: row.EncryptedUtxos,
		FirstLeafIndex: uint64(row.FirstLeafIndex),
		Message:        row.Message,
	}
	if row.BlockTime != 0 {
		tx.BlockTime = time.Unix(row.BlockTime, 0)
	}

	keys := []struct {
		src string
		dst *solana.PublicKey
	}{
		{row.Signer, &tx.Signer},
		{row.FromSol, &tx.From},
		{row.ToSol, &tx.To},
		{row.FromSpl, &tx.FromSpl},
		{row.ToSpl, &tx.ToSpl},
		{row.RelayerRecipientSol, &tx.RelayerRecipientSol},
	}
	for _, k := range keys {
		key, err := solana.PublicKeyFromBase58(k.src)
		if err != nil {
			return types.IndexedTransaction{}, err
		}
		*k.dst = key
	}

	var ok bool
	if tx.PublicAmountSol, ok = new(big.Int).SetString(row.PublicAmountSol, 10); !ok {
		return types.IndexedTransaction{}, fmt.Errorf("invalid public amount sol")
	}
	if tx.PublicAmountSpl, ok = new(big.Int).SetString(row.PublicAmountSpl, 10); !ok {
		return types.IndexedTransaction{}, fmt.Errorf("invalid public amount spl")
	}
	var err error
	if tx.Leaves, err = splitHashes(row.Leaves); err != nil {
		return types.IndexedTransaction{}, err
	}
	if tx.Nullifiers, err = splitHashes(row.Nullifiers); err != nil {
		return types.IndexedTransaction{}, err
	}
	return tx, nil
}

func readTxRows(rows []txRow) ([]types.IndexedTransaction, error) {
	txs := make([]types.IndexedTransaction, 0, len(rows))
	for _, row := range rows {
		tx, err := rowToTx(row)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tx %s: %w", row.Signature, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func joinHashes(hashes [][32]byte) string {
	encoded := make([]string, 0, len(hashes))
	for _, h := range hashes {
		encoded = append(encoded, hex.EncodeToString(h[:]))
	}
	return strings.Join(encoded, ",")
}

func splitHashes(s string) ([][32]byte, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([][32]byte, 0, len(parts))
	for _, p := range parts {
		buf, err := hex.DecodeString(p)
		if err != nil {
			return nil, err
		}
		if len(buf) != 32 {
			return nil, fmt.Errorf("invalid hash length %d", len(buf))
		}
		out = append(out, [32]byte(buf))
	}
	return out, nil
}
