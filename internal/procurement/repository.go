package procurement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/fulfillment"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	// GetPOForUpdate reads the order and locks its row until the
	// transaction ends.
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	// SavePO writes header and lines, failing with ErrConcurrentUpdate when
	// the stored version no longer matches po.Version.
	SavePO(ctx context.Context, po PurchaseOrder) error
	CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error)
	DeleteGRN(ctx context.Context, id int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const poColumns = `id, number, vendor_id, status, status_overridden, approved_at,
	transaction_type, purchase_type, project_id, warehouse_location,
	delivery_address, order_date, delivery_date,
	advance_percent, against_delivery_percent, after_completion_percent, credit_period_days,
	remark, total_amount, total_tax, grand_total, version, created_at, updated_at`

// GetPO returns purchase order and lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPO(ctx, r.pool, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id)
}

func (tx *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPO(ctx, tx.tx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id)
}

func loadPO(ctx context.Context, q rowQuerier, sql string, id int64) (PurchaseOrder, error) {
	var (
		po           PurchaseOrder
		status       string
		deliveryDate *time.Time
	)
	err := q.QueryRow(ctx, sql, id).Scan(
		&po.ID, &po.Number, &po.VendorID, &status, &po.StatusOverridden, &po.ApprovedAt,
		&po.Sourcing.TransactionType, &po.Sourcing.PurchaseType, &po.Sourcing.ProjectID, &po.Sourcing.WarehouseLocation,
		&po.DeliveryAddress, &po.OrderDate, &deliveryDate,
		&po.PaymentTerms.AdvancePercent, &po.PaymentTerms.AgainstDeliveryPercent, &po.PaymentTerms.AfterCompletionPercent, &po.PaymentTerms.CreditPeriodDays,
		&po.Remark, &po.Totals.Amount, &po.Totals.Tax, &po.Totals.GrandTotal, &po.Version, &po.CreatedAt, &po.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = fulfillment.Status(status)
	if deliveryDate != nil {
		po.DeliveryDate = *deliveryDate
	}

	rows, err := q.Query(ctx, `SELECT brand_name, model_no, description, unit, base_uom,
		ordered_qty, price, discount_percent, tax_percent, received_qty
	FROM po_lines WHERE po_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l fulfillment.OrderLine
		if err := rows.Scan(&l.BrandName, &l.ModelNo, &l.Description, &l.Unit, &l.BaseUOM,
			&l.OrderedQuantity, &l.Price, &l.DiscountPercent, &l.TaxPercent, &l.ReceivedQuantity); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (tx *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, vendor_id, status, status_overridden, approved_at,
		transaction_type, purchase_type, project_id, warehouse_location,
		delivery_address, order_date, delivery_date,
		advance_percent, against_delivery_percent, after_completion_percent, credit_period_days,
		remark, total_amount, total_tax, grand_total, version, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,NOW(),NOW())
	RETURNING id`,
		po.Number, po.VendorID, string(po.Status), po.StatusOverridden, po.ApprovedAt,
		po.Sourcing.TransactionType, po.Sourcing.PurchaseType, po.Sourcing.ProjectID, po.Sourcing.WarehouseLocation,
		po.DeliveryAddress, po.OrderDate, nullableTime(po.DeliveryDate),
		po.PaymentTerms.AdvancePercent, po.PaymentTerms.AgainstDeliveryPercent, po.PaymentTerms.AfterCompletionPercent, po.PaymentTerms.CreditPeriodDays,
		po.Remark, po.Totals.Amount, po.Totals.Tax, po.Totals.GrandTotal, po.Version,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, tx.insertPOLines(ctx, id, po.Lines)
}

func (tx *txRepo) insertPOLines(ctx context.Context, poID int64, lines []fulfillment.OrderLine) error {
	batch := &pgx.Batch{}
	for i, l := range lines {
		batch.Queue(`INSERT INTO po_lines (po_id, line_no, brand_name, model_no, description, unit, base_uom,
			ordered_qty, price, discount_percent, tax_percent, received_qty)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			poID, i+1, l.BrandName, l.ModelNo, l.Description, l.Unit, l.BaseUOM,
			l.OrderedQuantity, l.Price, l.DiscountPercent, l.TaxPercent, l.ReceivedQuantity)
	}
	return tx.tx.SendBatch(ctx, batch).Close()
}

func (tx *txRepo) SavePO(ctx context.Context, po PurchaseOrder) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET number=$1, vendor_id=$2, status=$3, status_overridden=$4, approved_at=$5,
		transaction_type=$6, purchase_type=$7, project_id=$8, warehouse_location=$9,
		delivery_address=$10, order_date=$11, delivery_date=$12,
		advance_percent=$13, against_delivery_percent=$14, after_completion_percent=$15, credit_period_days=$16,
		remark=$17, total_amount=$18, total_tax=$19, grand_total=$20,
		version = version + 1, updated_at = NOW()
	WHERE id = $21 AND version = $22`,
		po.Number, po.VendorID, string(po.Status), po.StatusOverridden, po.ApprovedAt,
		po.Sourcing.TransactionType, po.Sourcing.PurchaseType, po.Sourcing.ProjectID, po.Sourcing.WarehouseLocation,
		po.DeliveryAddress, po.OrderDate, nullableTime(po.DeliveryDate),
		po.PaymentTerms.AdvancePercent, po.PaymentTerms.AgainstDeliveryPercent, po.PaymentTerms.AfterCompletionPercent, po.PaymentTerms.CreditPeriodDays,
		po.Remark, po.Totals.Amount, po.Totals.Tax, po.Totals.GrandTotal,
		po.ID, po.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	if _, err := tx.tx.Exec(ctx, `DELETE FROM po_lines WHERE po_id = $1`, po.ID); err != nil {
		return err
	}
	return tx.insertPOLines(ctx, po.ID, po.Lines)
}

const grnColumns = `id, number, mode, COALESCE(po_id, 0), vendor_id,
	transaction_type, purchase_type, project_id, warehouse_location,
	received_at, remark, total_amount, total_tax, grand_total, created_at`

// GetGRN returns goods receipt and lines.
func (r *Repository) GetGRN(ctx context.Context, id int64) (GoodsReceipt, error) {
	var (
		grn  GoodsReceipt
		mode string
	)
	err := r.pool.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receipts WHERE id = $1`, id).Scan(
		&grn.ID, &grn.Number, &mode, &grn.PurchaseOrderID, &grn.VendorID,
		&grn.Sourcing.TransactionType, &grn.Sourcing.PurchaseType, &grn.Sourcing.ProjectID, &grn.Sourcing.WarehouseLocation,
		&grn.Date, &grn.Remark, &grn.Totals.Amount, &grn.Totals.Tax, &grn.Totals.GrandTotal, &grn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, ErrNotFound
		}
		return GoodsReceipt{}, err
	}
	grn.Mode = fulfillment.Mode(mode)

	rows, err := r.pool.Query(ctx, `SELECT source, brand_name, model_no, description, unit,
		qty, price, discount_percent, tax_percent
	FROM grn_lines WHERE grn_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l      fulfillment.ReceiptLine
			source string
		)
		if err := rows.Scan(&source, &l.BrandName, &l.ModelNo, &l.Description, &l.Unit,
			&l.Quantity, &l.Price, &l.DiscountPercent, &l.TaxPercent); err != nil {
			return GoodsReceipt{}, err
		}
		l.Source = fulfillment.LineSourceDirect
		if source == fulfillment.LineSourceOrder.String() {
			l.Source = fulfillment.LineSourceOrder
		}
		grn.Lines = append(grn.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return GoodsReceipt{}, err
	}
	return grn, nil
}

func (tx *txRepo) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	var poID *int64
	if grn.PurchaseOrderID != 0 {
		poID = &grn.PurchaseOrderID
	}
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, mode, po_id, vendor_id,
		transaction_type, purchase_type, project_id, warehouse_location,
		received_at, remark, total_amount, total_tax, grand_total, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())
	RETURNING id`,
		grn.Number, string(grn.Mode), poID, grn.VendorID,
		grn.Sourcing.TransactionType, grn.Sourcing.PurchaseType, grn.Sourcing.ProjectID, grn.Sourcing.WarehouseLocation,
		grn.Date, grn.Remark, grn.Totals.Amount, grn.Totals.Tax, grn.Totals.GrandTotal,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	batch := &pgx.Batch{}
	for i, l := range grn.Lines {
		batch.Queue(`INSERT INTO grn_lines (grn_id, line_no, source, brand_name, model_no, description, unit,
			qty, price, discount_percent, tax_percent, net_value)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			id, i+1, l.Source.String(), l.BrandName, l.ModelNo, l.Description, l.Unit,
			l.Quantity, l.Price, l.DiscountPercent, l.TaxPercent, fulfillment.RoundMoney(l.NetValue()))
	}
	if err := tx.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return id, nil
}

func (tx *txRepo) DeleteGRN(ctx context.Context, id int64) error {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM goods_receipts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReconcileCandidates returns every order that is not cancelled.
func (r *Repository) ListReconcileCandidates(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM purchase_orders WHERE status <> $1 ORDER BY id`, string(fulfillment.StatusCancelled))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListPOs returns purchase orders with vendor name and total.
func (r *Repository) ListPOs(ctx context.Context, limit, offset int, filters ListFilters) ([]POListItem, int, error) {
	where, args := poWhere(filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders p WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT p.id, p.number, p.vendor_id, COALESCE(v.name, '') AS vendor_name,
		p.status, p.purchase_type, p.order_date, p.grand_total, p.created_at
	FROM purchase_orders p
	LEFT JOIN vendors v ON v.id = p.vendor_id
	WHERE 1=1` + where
	n := len(args)
	dataSQL += ` ORDER BY ` + sortOrderPO(filters.SortBy, filters.SortDir) + ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []POListItem
	for rows.Next() {
		var (
			item   POListItem
			status string
		)
		if err := rows.Scan(&item.ID, &item.Number, &item.VendorID, &item.VendorName,
			&status, &item.PurchaseType, &item.OrderDate, &item.GrandTotal, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		item.Status = fulfillment.Status(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func poWhere(filters ListFilters) (string, []any) {
	var (
		where string
		args  []any
	)
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += ` AND p.status = $` + strconv.Itoa(len(args))
	}
	if filters.Incomplete {
		args = append(args, string(fulfillment.StatusReceived))
		where += ` AND p.status <> $` + strconv.Itoa(len(args))
	}
	if filters.VendorID > 0 {
		args = append(args, filters.VendorID)
		where += ` AND p.vendor_id = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND p.number ILIKE $` + strconv.Itoa(len(args))
	}
	return where, args
}

// ListGRNs returns goods receipts with order number and vendor name.
func (r *Repository) ListGRNs(ctx context.Context, limit, offset int, filters ListFilters) ([]GRNListItem, int, error) {
	var (
		where string
		args  []any
	)
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += ` AND g.mode = $` + strconv.Itoa(len(args))
	}
	if filters.VendorID > 0 {
		args = append(args, filters.VendorID)
		where += ` AND g.vendor_id = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND g.number ILIKE $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM goods_receipts g WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT g.id, g.number, g.mode, COALESCE(g.po_id, 0), COALESCE(p.number, '') AS po_number,
		g.vendor_id, COALESCE(v.name, '') AS vendor_name, g.warehouse_location,
		g.received_at, g.grand_total, g.created_at
	FROM goods_receipts g
	LEFT JOIN purchase_orders p ON p.id = g.po_id
	LEFT JOIN vendors v ON v.id = g.vendor_id
	WHERE 1=1` + where
	n := len(args)
	dataSQL += ` ORDER BY ` + sortOrderGRN(filters.SortBy, filters.SortDir) + ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []GRNListItem
	for rows.Next() {
		var (
			item GRNListItem
			mode string
		)
		if err := rows.Scan(&item.ID, &item.Number, &mode, &item.PurchaseOrderID, &item.PONumber,
			&item.VendorID, &item.VendorName, &item.WarehouseLocation,
			&item.ReceivedAt, &item.GrandTotal, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		item.Mode = fulfillment.Mode(mode)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func sortOrderPO(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "p.number " + dir
	case "vendor":
		return "vendor_name " + dir
	case "status":
		return "p.status " + dir
	case "total":
		return "p.grand_total " + dir
	case "order_date":
		return "p.order_date " + dir
	default:
		return "p.created_at " + dir
	}
}

func sortOrderGRN(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "g.number " + dir
	case "vendor":
		return "vendor_name " + dir
	case "received_at":
		return "g.received_at " + dir
	default:
		return "g.created_at " + dir
	}
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
