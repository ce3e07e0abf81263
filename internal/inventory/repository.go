package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	InsertTransactionLines(ctx context.Context, txID int64, lines []TransactionLine) error
	GetBalanceForUpdate(ctx context.Context, key StockKey) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertCardEntry(ctx context.Context, card StockCardEntry, key StockKey, txID int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT tx_code, tx_type, posted_at, qty_in, qty_out, balance_qty, unit_cost, balance_cost, note
FROM inventory_cards
WHERE brand_name = $1 AND model_no = $2 AND location = $3
	AND ($4::timestamptz IS NULL OR posted_at >= $4)
	AND ($5::timestamptz IS NULL OR posted_at <= $5)
ORDER BY posted_at, id
LIMIT $6`, filter.Key.BrandName, filter.Key.ModelNo, filter.Key.Location, nullableTime(filter.From), nullableTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []StockCardEntry
	for rows.Next() {
		var (
			entry  StockCardEntry
			txType string
		)
		if err := rows.Scan(&entry.TxCode, &txType, &entry.PostedAt, &entry.QtyIn, &entry.QtyOut, &entry.BalanceQty, &entry.UnitCost, &entry.BalanceCost, &entry.Note); err != nil {
			return nil, err
		}
		entry.TxType = TransactionType(txType)
		cards = append(cards, entry)
	}
	return cards, rows.Err()
}

func (r *Repository) ListBalances(ctx context.Context, location string, limit, offset int) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT brand_name, model_no, location, qty, avg_cost, updated_at
FROM inventory_balances
WHERE ($1 = '' OR location = $1)
ORDER BY location, brand_name, model_no
LIMIT $2 OFFSET $3`, location, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Balance, error) {
		var b Balance
		err := row.Scan(&b.Key.BrandName, &b.Key.ModelNo, &b.Key.Location, &b.Qty, &b.AvgCost, &b.UpdatedAt)
		return b, err
	})
}

func (r *txRepo) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_tx (code, tx_type, location, ref_module, ref_id, note, posted_at, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, NULLIF($8, 0))
RETURNING id`, tx.Code, string(tx.Type), tx.Location, tx.RefModule, tx.RefID, tx.Note, tx.PostedAt, tx.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepo) InsertTransactionLines(ctx context.Context, txID int64, lines []TransactionLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO inventory_tx_lines (tx_id, brand_name, model_no, qty, unit_cost) VALUES ($1, $2, $3, $4, $5)`,
			txID, line.BrandName, line.ModelNo, line.Qty, line.UnitCost)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, key StockKey) (Balance, error) {
	b := Balance{Key: key}
	err := r.tx.QueryRow(ctx, `SELECT qty, avg_cost, updated_at FROM inventory_balances
WHERE brand_name = $1 AND model_no = $2 AND location = $3 FOR UPDATE`, key.BrandName, key.ModelNo, key.Location).Scan(&b.Qty, &b.AvgCost, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{Key: key}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepo) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (brand_name, model_no, location, qty, avg_cost, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (brand_name, model_no, location) DO UPDATE SET qty = EXCLUDED.qty, avg_cost = EXCLUDED.avg_cost, updated_at = EXCLUDED.updated_at`,
		balance.Key.BrandName, balance.Key.ModelNo, balance.Key.Location, balance.Qty, balance.AvgCost, balance.UpdatedAt)
	return err
}

func (r *txRepo) InsertCardEntry(ctx context.Context, card StockCardEntry, key StockKey, txID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_cards (brand_name, model_no, location, tx_id, tx_code, tx_type,
	qty_in, qty_out, balance_qty, unit_cost, balance_cost, posted_at, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		key.BrandName, key.ModelNo, key.Location, txID, card.TxCode, string(card.TxType),
		card.QtyIn, card.QtyOut, card.BalanceQty, card.UnitCost, card.BalanceCost, card.PostedAt, card.Note)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
