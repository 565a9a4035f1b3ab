package sqlstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/shieldpool/go-sdk/types"
)

type utxoRepository struct {
	db      *sql.DB
	querier *queries
	lock    *sync.Mutex
	eventCh chan types.UtxoEvent
}

func NewUtxoStore(db *sql.DB) types.UtxoStore {
	return &utxoRepository{
		db:      db,
		querier: newQueries(db),
		lock:    &sync.Mutex{},
		eventCh: make(chan types.UtxoEvent, 100),
	}
}

func (r *utxoRepository) AddUtxos(ctx context.Context, utxos []types.ShieldedUtxo) (int, error) {
	addedUtxos := make([]types.ShieldedUtxo, 0, len(utxos))
	txBody := func(querierWithTx *queries) error {
		for i := range utxos {
			utxo := utxos[i]
			if utxo.CreatedAt.IsZero() {
				utxo.CreatedAt = time.Now()
			}
			row, err := utxoToRow(utxo)
			if err != nil {
				return err
			}
			inserted, err := querierWithTx.InsertUtxo(ctx, row)
			if err != nil {
				return err
			}
			if inserted {
				addedUtxos = append(addedUtxos, utxo)
			}
		}
		return nil
	}
	if err := execTx(ctx, r.db, txBody); err != nil {
		return -1, err
	}

	if len(addedUtxos) > 0 {
		go r.sendEvent(types.UtxoEvent{Type: types.UtxosAdded, Utxos: addedUtxos})
	}

	return len(addedUtxos), nil
}

func (r *utxoRepository) ConfirmUtxos(
	ctx context.Context, indexes map[string]uint64,
) (int, error) {
	commitments := make([]string, 0, len(indexes))
	for commitment := range indexes {
		commitments = append(commitments, commitment)
	}
	utxos, err := r.GetUtxos(ctx, commitments)
	if err != nil {
		return -1, err
	}

	confirmedUtxos := make([]types.ShieldedUtxo, 0, len(utxos))
	txBody := func(querierWithTx *queries) error {
		for _, utxo := range utxos {
			if utxo.Status != types.UtxoCommitted {
				continue
			}
			index, err := safecast.ToInt64(indexes[utxo.Commitment])
			if err != nil {
				return err
			}
			if err := querierWithTx.ConfirmUtxo(
				ctx, utxo.Commitment, int64(types.UtxoSpendable), index,
			); err != nil {
				return err
			}
			utxo.Status = types.UtxoSpendable
			utxo.Index = indexes[utxo.Commitment]
			confirmedUtxos = append(confirmedUtxos, utxo)
		}
		return nil
	}
	if err := execTx(ctx, r.db, txBody); err != nil {
		return -1, err
	}

	if len(confirmedUtxos) > 0 {
		go r.sendEvent(types.UtxoEvent{Type: types.UtxosConfirmed, Utxos: confirmedUtxos})
	}

	return len(confirmedUtxos), nil
}

func (r *utxoRepository) SpendUtxos(
	ctx context.Context, spentUtxoMap map[string]string,
) (int, error) {
	commitments := make([]string, 0, len(spentUtxoMap))
	for commitment := range spentUtxoMap {
		commitments = append(commitments, commitment)
	}
	utxos, err := r.GetUtxos(ctx, commitments)
	if err != nil {
		return -1, err
	}

	spentUtxos := make([]types.ShieldedUtxo, 0, len(utxos))
	txBody := func(querierWithTx *queries) error {
		for _, utxo := range utxos {
			if utxo.Status == types.UtxoSpent {
				continue
			}
			spentBy := spentUtxoMap[utxo.Commitment]
			if err := querierWithTx.SpendUtxo(
				ctx, utxo.Commitment, int64(types.UtxoSpent), spentBy,
			); err != nil {
				return err
			}
			utxo.Status = types.UtxoSpent
			utxo.SpentBy = spentBy
			spentUtxos = append(spentUtxos, utxo)
		}
		return nil
	}
	if err := execTx(ctx, r.db, txBody); err != nil {
		return -1, err
	}

	if len(spentUtxos) > 0 {
		go r.sendEvent(types.UtxoEvent{Type: types.UtxosSpent, Utxos: spentUtxos})
	}

	return len(spentUtxos), nil
}

func (r *utxoRepository) GetAllUtxos(
	ctx context.Context,
) (spendable, spent []types.ShieldedUtxo, err error) {
	rows, err := r.querier.SelectAllUtxos(ctx)
	if err != nil {
		return nil, nil, err
	}

	for _, row := range rows {
		utxo := rowToUtxo(row)
		if utxo.Status == types.UtxoSpent {
			spent = append(spent, utxo)
		} else {
			spendable = append(spendable, utxo)
		}
	}
	return
}

func (r *utxoRepository) GetUtxos(
	ctx context.Context, commitments []string,
) ([]types.ShieldedUtxo, error) {
	rows, err := r.querier.SelectUtxos(ctx, commitments)
	if err != nil {
		return nil, err
	}
	utxos := make([]types.ShieldedUtxo, 0, len(rows))
	for _, row := range rows {
		utxos = append(utxos, rowToUtxo(row))
	}
	return utxos, nil
}

func (r *utxoRepository) GetEventChannel() <-chan types.UtxoEvent {
	return r.eventCh
}

func (r *utxoRepository) Clean(ctx context.Context) error {
	if err := r.querier.CleanUtxos(ctx); err != nil {
		return err
	}
	// nolint:all
	r.db.ExecContext(ctx, "VACUUM")
	return nil
}

func (r *utxoRepository) Close() {
	// nolint:all
	r.db.Close()
}

func (r *utxoRepository) sendEvent(event types.UtxoEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()

	select {
	case r.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}

func utxoToRow(utxo types.ShieldedUtxo) (utxoRow, error) {
	amountSol, err := safecast.ToInt64(utxo.Amounts[0])
	if err != nil {
		return utxoRow{}, err
	}
	amountSpl, err := safecast.ToInt64(utxo.Amounts[1])
	if err != nil {
		return utxoRow{}, err
	}
	index, err := safecast.ToInt64(utxo.Index)
	if err != nil {
		return utxoRow{}, err
	}
	return utxoRow{
		Commitment:      utxo.Commitment,
		AmountSol:       amountSol,
		AmountSpl:       amountSpl,
		AssetSol:        utxo.Assets[0],
		AssetSpl:        utxo.Assets[1],
		Blinding:        utxo.Blinding,
		PoolType:        utxo.PoolType,
		AppDataHash:     utxo.AppDataHash,
		VerifierAddress: utxo.VerifierAddress,
		LeafIndex:       index,
		Status:          int64(utxo.Status),
		SpentBy:         sql.NullString{String: utxo.SpentBy, Valid: utxo.SpentBy != ""},
		CreatedAt:       utxo.CreatedAt.Unix(),
	}, nil
}

func rowToUtxo(row utxoRow) types.ShieldedUtxo {
	return types.ShieldedUtxo{
		Commitment:      row.Commitment,
		Amounts:         [2]uint64{uint64(row.AmountSol), uint64(row.AmountSpl)},
		Assets:          [2]string{row.AssetSol, row.AssetSpl},
		Blinding:        row.Blinding,
		PoolType:        row.PoolType,
		AppDataHash:     row.AppDataHash,
		VerifierAddress: row.VerifierAddress,
		Index:           uint64(row.LeafIndex),
		Status:          types.UtxoStatus(row.Status),
		SpentBy:         row.SpentBy.String,
		CreatedAt:       time.Unix(row.CreatedAt, 0),
	}
}
