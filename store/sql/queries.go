package sqlstore

import (
	"context"
	"database/sql"
	"strings"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db}
}

type utxoRow struct {
	Commitment      string
	AmountSol       int64
	AmountSpl       int64
	AssetSol        string
	AssetSpl        string
	Blinding        string
	PoolType        string
	AppDataHash     string
	VerifierAddress string
	LeafIndex       int64
	Status          int64
	SpentBy         sql.NullString
	CreatedAt       int64
}

const utxoColumns = `commitment, amount_sol, amount_spl, asset_sol, asset_spl, blinding,
pool_type, app_data_hash, verifier_address, leaf_index, status, spent_by, created_at`

const insertUtxo = `INSERT OR IGNORE INTO utxo (` + utxoColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertUtxo reports whether a row was inserted.
func (q *queries) InsertUtxo(ctx context.Context, row utxoRow) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertUtxo,
		row.Commitment, row.AmountSol, row.AmountSpl, row.AssetSol, row.AssetSpl,
		row.Blinding, row.PoolType, row.AppDataHash, row.VerifierAddress,
		row.LeafIndex, row.Status, row.SpentBy, row.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const confirmUtxo = `UPDATE utxo SET status = ?, leaf_index = ? WHERE commitment = ?`

func (q *queries) ConfirmUtxo(ctx context.Context, commitment string, status, index int64) error {
	_, err := q.db.ExecContext(ctx, confirmUtxo, status, index, commitment)
	return err
}

const spendUtxo = `UPDATE utxo SET status = ?, spent_by = ? WHERE commitment = ?`

func (q *queries) SpendUtxo(ctx context.Context, commitment string, status int64, spentBy string) error {
	_, err := q.db.ExecContext(ctx, spendUtxo, status, sql.NullString{String: spentBy, Valid: spentBy != ""}, commitment)
	return err
}

func (q *queries) SelectAllUtxos(ctx context.Context) ([]utxoRow, error) {
	return q.selectUtxos(ctx, `SELECT `+utxoColumns+` FROM utxo ORDER BY leaf_index`)
}

func (q *queries) SelectUtxos(ctx context.Context, commitments []string) ([]utxoRow, error) {
	if len(commitments) <= 0 {
		return nil, nil
	}
	query := `SELECT ` + utxoColumns + ` FROM utxo WHERE commitment IN (` +
		placeholders(len(commitments)) + `) ORDER BY leaf_index`
	return q.selectUtxos(ctx, query, toArgs(commitments)...)
}

func (q *queries) CleanUtxos(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM utxo`)
	return err
}

func (q *queries) selectUtxos(ctx context.Context, query string, args ...any) ([]utxoRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []utxoRow
	for rows.Next() {
		var i utxoRow
		if err := rows.Scan(
			&i.Commitment, &i.AmountSol, &i.AmountSpl, &i.AssetSol, &i.AssetSpl,
			&i.Blinding, &i.PoolType, &i.AppDataHash, &i.VerifierAddress,
			&i.LeafIndex, &i.Status, &i.SpentBy, &i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type txRow struct {
	Signature           string
	BlockTime           int64
	Type                int64
	Signer              string
	FromSol             string
	ToSol               string
	FromSpl             string
	ToSpl               string
	RelayerRecipientSol string
	PublicAmountSol     string
	PublicAmountSpl     string
	RelayerFee          int64
	Leaves              string
	Nullifiers          string
	EncryptedUtxos      []byte
	FirstLeafIndex      int64
	Message             []byte
}

const txColumns = `signature, block_time, type, signer, from_sol, to_sol, from_spl, to_spl,
relayer_recipient_sol, public_amount_sol, public_amount_spl, relayer_fee, leaves,
nullifiers, encrypted_utxos, first_leaf_index, message`

const insertTx = `INSERT OR IGNORE INTO indexed_tx (` + txColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *queries) InsertTx(ctx context.Context, row txRow) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertTx,
		row.Signature, row.BlockTime, row.Type, row.Signer, row.FromSol, row.ToSol,
		row.FromSpl, row.ToSpl, row.RelayerRecipientSol, row.PublicAmountSol,
		row.PublicAmountSpl, row.RelayerFee, row.Leaves, row.Nullifiers,
		row.EncryptedUtxos, row.FirstLeafIndex, row.Message,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *queries) SelectAllTxs(ctx context.Context) ([]txRow, error) {
	return q.selectTxs(ctx, `SELECT `+txColumns+` FROM indexed_tx ORDER BY first_leaf_index`)
}

func (q *queries) SelectTxs(ctx context.Context, signatures []string) ([]txRow, error) {
	if len(signatures) <= 0 {
		return nil, nil
	}
	query := `SELECT ` + txColumns + ` FROM indexed_tx WHERE signature IN (` +
		placeholders(len(signatures)) + `) ORDER BY first_leaf_index`
	return q.selectTxs(ctx, query, toArgs(signatures)...)
}

func (q *queries) SelectLatestTx(ctx context.Context) ([]txRow, error) {
	return q.selectTxs(
		ctx, `SELECT `+txColumns+` FROM indexed_tx ORDER BY first_leaf_index DESC LIMIT 1`,
	)
}

func (q *queries) CleanTxs(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM indexed_tx`)
	return err
}

func (q *queries) selectTxs(ctx context.Context, query string, args ...any) ([]txRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []txRow
	for rows.Next() {
		var i txRow
		if err := rows.Scan(
			&i.Signature, &i.BlockTime, &i.Type, &i.Signer, &i.FromSol, &i.ToSol,
			&i.FromSpl, &i.ToSpl, &i.RelayerRecipientSol, &i.PublicAmountSol,
			&i.PublicAmountSpl, &i.RelayerFee, &i.Leaves, &i.Nullifiers,
			&i.EncryptedUtxos, &i.FirstLeafIndex, &i.Message,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return args
}
