package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
	ListBalances(ctx context.Context, location string, limit, offset int) ([]Balance, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort rejects a movement code that was already posted.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	allowNeg    bool
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
	Clock              func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, allowNeg: cfg.AllowNegativeStock, now: clock}
}

// PostInbound posts an inbound movement (e.g. GRN).
func (s *Service) PostInbound(ctx context.Context, input MovementInput) (StockCardEntry, error) {
	if !input.Qty.IsPositive() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return StockCardEntry{}, ErrInvalidUnitCost
	}
	return s.postMovement(ctx, movementParams{
		Code:      input.Code,
		Key:       input.Key,
		QtyChange: input.Qty,
		UnitCost:  input.UnitCost,
		TxType:    TransactionTypeIn,
		Note:      input.Note,
		ActorID:   input.ActorID,
		RefModule: input.RefModule,
		RefID:     input.RefID,
	})
}

// PostOutbound takes stock out at the current average cost. Used when a
// receipt is deleted.
func (s *Service) PostOutbound(ctx context.Context, input MovementInput) (StockCardEntry, error) {
	if !input.Qty.IsPositive() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, movementParams{
		Code:      input.Code,
		Key:       input.Key,
		QtyChange: input.Qty.Neg(),
		TxType:    TransactionTypeOut,
		Note:      input.Note,
		ActorID:   input.ActorID,
		RefModule: input.RefModule,
		RefID:     input.RefID,
	})
}

// PostAdjustment posts an adjustment which may be positive or negative.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (StockCardEntry, error) {
	if input.Qty.IsZero() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if input.Qty.IsPositive() && input.UnitCost.IsNegative() {
		return StockCardEntry{}, ErrInvalidUnitCost
	}
	return s.postMovement(ctx, movementParams{
		Code:      input.Code,
		Key:       input.Key,
		QtyChange: input.Qty,
		UnitCost:  input.UnitCost,
		TxType:    TransactionTypeAdjust,
		Note:      input.Note,
		ActorID:   input.ActorID,
		RefModule: "INVENTORY",
	})
}

// GetStockCard lists stock card entries.
func (s *Service) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	filter.Key = normalizeKey(filter.Key)
	if !filter.Key.valid() {
		return nil, ErrInvalidKey
	}
	return s.repo.GetStockCard(ctx, filter)
}

// ListBalances lists on-hand balances, optionally for one location.
func (s *Service) ListBalances(ctx context.Context, location string, limit, offset int) ([]Balance, error) {
	return s.repo.ListBalances(ctx, strings.TrimSpace(location), limit, offset)
}

type movementParams struct {
	Code      string
	Key       StockKey
	QtyChange decimal.Decimal
	UnitCost  decimal.Decimal
	TxType    TransactionType
	Note      string
	ActorID   int64
	RefModule string
	RefID     string
}

func (s *Service) postMovement(ctx context.Context, params movementParams) (StockCardEntry, error) {
	if params.QtyChange.IsZero() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	params.Key = normalizeKey(params.Key)
	if !params.Key.valid() {
		return StockCardEntry{}, ErrInvalidKey
	}
	now := s.now().UTC()
	code := params.Code
	if code == "" {
		code = fmt.Sprintf("INV-%d", now.UnixNano())
	}
	if params.RefID != "" {
		if _, err := uuid.Parse(params.RefID); err != nil {
			return StockCardEntry{}, fmt.Errorf("inventory: invalid ref id: %w", err)
		}
	}
	var card StockCardEntry
	key := fmt.Sprintf("%s:%s:%s", params.TxType, code, params.Key)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return StockCardEntry{}, err
		}
		insertedKey = true
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, params.Key)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{Key: params.Key}
		}
		qtyChange := params.QtyChange
		newQty := balance.Qty.Add(qtyChange)
		if !s.allowNeg && newQty.IsNegative() {
			return ErrNegativeStock
		}
		var unitCost, newAvg decimal.Decimal
		if qtyChange.IsPositive() {
			unitCost = params.UnitCost
			totalCost := balance.Qty.Mul(balance.AvgCost).Add(qtyChange.Mul(unitCost))
			if !newQty.IsZero() {
				newAvg = totalCost.DivRound(newQty, 4)
			}
		} else {
			unitCost = balance.AvgCost
			if newQty.IsPositive() {
				newAvg = balance.AvgCost
			}
		}
		txID, err := tx.InsertTransaction(ctx, Transaction{
			Code:      code,
			Type:      params.TxType,
			Location:  params.Key.Location,
			RefModule: params.RefModule,
			RefID:     params.RefID,
			Note:      params.Note,
			PostedAt:  now,
			CreatedBy: params.ActorID,
		})
		if err != nil {
			return err
		}
		line := TransactionLine{
			TransactionID: txID,
			BrandName:     params.Key.BrandName,
			ModelNo:       params.Key.ModelNo,
			Qty:           qtyChange,
			UnitCost:      unitCost,
		}
		if err := tx.InsertTransactionLines(ctx, txID, []TransactionLine{line}); err != nil {
			return err
		}
		balance.Qty = newQty
		balance.AvgCost = newAvg
		balance.UpdatedAt = now
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}
		card = StockCardEntry{
			TxCode:      code,
			TxType:      params.TxType,
			PostedAt:    now,
			QtyIn:       decimal.Max(qtyChange, decimal.Zero),
			QtyOut:      decimal.Max(qtyChange.Neg(), decimal.Zero),
			BalanceQty:  newQty,
			UnitCost:    unitCost,
			BalanceCost: newAvg,
			Note:        params.Note,
		}
		return tx.InsertCardEntry(ctx, card, params.Key, txID)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return StockCardEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  params.ActorID,
			Action:   fmt.Sprintf("inventory:%s", params.TxType),
			Entity:   "inventory_tx",
			EntityID: code,
			Meta: map[string]any{
				"brand_name": params.Key.BrandName,
				"model_no":   params.Key.ModelNo,
				"location":   params.Key.Location,
				"qty":        params.QtyChange.String(),
				"note":       params.Note,
			},
			At: now,
		})
	}
	return card, nil
}

func normalizeKey(k StockKey) StockKey {
	return StockKey{
		BrandName: strings.TrimSpace(k.BrandName),
		ModelNo:   strings.TrimSpace(k.ModelNo),
		Location:  strings.TrimSpace(k.Location),
	}
}
