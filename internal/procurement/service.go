package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/fulfillment"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	GetGRN(ctx context.Context, id int64) (GoodsReceipt, error)
	ListPOs(ctx context.Context, limit, offset int, filters ListFilters) ([]POListItem, int, error)
	ListGRNs(ctx context.Context, limit, offset int, filters ListFilters) ([]GRNListItem, int, error)
	ListReconcileCandidates(ctx context.Context) ([]int64, error)
}

// ServiceDeps groups the optional collaborators of Service. Nil ports are
// skipped.
type ServiceDeps struct {
	Vendors     VendorPort
	Inventory   InventoryPort
	Locker      LockerPort
	Audit       AuditPort
	Trail       AuditTrailPort
	Idempotency IdempotencyPort
	Events      EventPublisher
	Metrics     MetricsPort
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service orchestrates purchase order and goods receipt flows around the
// fulfillment engine.
type Service struct {
	repo        RepositoryPort
	vendors     VendorPort
	inventory   InventoryPort
	locker      LockerPort
	audit       AuditPort
	idempotency IdempotencyPort
	trail       AuditTrailPort
	events      EventPublisher
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:        repo,
		vendors:     deps.Vendors,
		inventory:   deps.Inventory,
		locker:      deps.Locker,
		audit:       deps.Audit,
		trail:       deps.Trail,
		idempotency: deps.Idempotency,
		events:      deps.Events,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         clock,
	}
}

// CreatePurchaseOrder validates and stores a new order in Pending status.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input OrderInput) (PurchaseOrder, error) {
	po, err := s.buildOrder(ctx, input)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Number == "" {
		po.Number = generateNumber("PO")
	}
	po.Status = fulfillment.StatusPending
	po.Version = 1
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "PO_CREATE", "purchase_order", po.ID, map[string]any{"number": po.Number, "grand_total": po.Totals.GrandTotal.String()})
	return po, nil
}

// UpdatePurchaseOrder replaces header and lines of an order that has not
// received anything yet.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, id int64, input OrderInput) (PurchaseOrder, error) {
	next, err := s.buildOrder(ctx, input)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var saved PurchaseOrder
	err = s.withOrderLock(ctx, id, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetPOForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if current.Status == fulfillment.StatusCancelled || hasReceipts(current.PurchaseOrder) {
				return fmt.Errorf("%w: order %s already has receipts or is cancelled", ErrInvalidState, current.Number)
			}
			next.ID = current.ID
			next.Number = defaultString(next.Number, current.Number)
			next.Status = current.Status
			next.StatusOverridden = current.StatusOverridden
			next.ApprovedAt = current.ApprovedAt
			next.Version = current.Version
			next.CreatedAt = current.CreatedAt
			next.Status = fulfillment.DeriveStatus(next.PurchaseOrder)
			if err := tx.SavePO(ctx, next); err != nil {
				return err
			}
			next.Version++
			saved = next
			return nil
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "PO_UPDATE", "purchase_order", id, map[string]any{"number": saved.Number})
	return saved, nil
}

// ApprovePurchaseOrder moves a Pending order to Approved.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, id int64, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, "PO_APPROVE", func(order PurchaseOrder) (fulfillment.PurchaseOrder, error) {
		if fulfillment.DeriveStatus(order.PurchaseOrder) != fulfillment.StatusPending {
			return order.PurchaseOrder, fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.Number, order.Status)
		}
		return fulfillment.OverrideStatus(order.PurchaseOrder, fulfillment.StatusApproved, s.now())
	})
}

// OverrideStatus applies an administrative status change.
func (s *Service) OverrideStatus(ctx context.Context, id int64, target fulfillment.Status, actorID int64) (PurchaseOrder, error) {
	if !target.IsValid() {
		return PurchaseOrder{}, validationError("unknown status %q", target)
	}
	return s.transition(ctx, id, actorID, "PO_STATUS_OVERRIDE", func(order PurchaseOrder) (fulfillment.PurchaseOrder, error) {
		return fulfillment.OverrideStatus(order.PurchaseOrder, target, s.now())
	})
}

// CancelPurchaseOrder cancels an order that has not received anything.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id int64, actorID int64) (PurchaseOrder, error) {
	return s.OverrideStatus(ctx, id, fulfillment.StatusCancelled, actorID)
}

func (s *Service) transition(ctx context.Context, id int64, actorID int64, action string, apply func(PurchaseOrder) (fulfillment.PurchaseOrder, error)) (PurchaseOrder, error) {
	var (
		saved PurchaseOrder
		from  fulfillment.Status
	)
	err := s.withOrderLock(ctx, id, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetPOForUpdate(ctx, id)
			if err != nil {
				return err
			}
			from = current.Status
			next, err := apply(current)
			if err != nil {
				if errors.Is(err, fulfillment.ErrInvalidOverride) {
					return fmt.Errorf("%w: %v", ErrInvalidState, err)
				}
				return err
			}
			current.PurchaseOrder = next
			if err := tx.SavePO(ctx, current); err != nil {
				return err
			}
			current.Version++
			saved = current
			return nil
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.observeTransition(from, saved.Status)
	s.recordAudit(ctx, actorID, action, "purchase_order", id, map[string]any{"from": string(from), "to": string(saved.Status)})
	return saved, nil
}

// GetPurchaseOrder returns the order with its status projected from the lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.PurchaseOrder = fulfillment.Project(po.PurchaseOrder)
	return po, nil
}

// Remaining reports ordered, received and remaining quantity per line.
func (s *Service) Remaining(ctx context.Context, id int64) ([]RemainingLine, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]RemainingLine, 0, len(po.Lines))
	for i, line := range po.Lines {
		rem := fulfillment.ComputeRemaining(line)
		out = append(out, RemainingLine{
			Line:            i + 1,
			BrandName:       line.BrandName,
			ModelNo:         line.ModelNo,
			Ordered:         line.OrderedQuantity,
			AlreadyReceived: rem.AlreadyReceived,
			Remaining:       rem.Remaining,
		})
	}
	return out, nil
}

// DraftReceipt prefills a receipt against the order with the remaining
// quantity of every line.
func (s *Service) DraftReceipt(ctx context.Context, id int64) (fulfillment.Receipt, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return fulfillment.Receipt{}, err
	}
	if !fulfillment.IsIncomplete(po.PurchaseOrder) || po.Status == fulfillment.StatusCancelled {
		return fulfillment.Receipt{}, fmt.Errorf("%w: order %s cannot take receipts", ErrPrecondition, po.Number)
	}
	return fulfillment.DraftReceipt(po.PurchaseOrder, s.now()), nil
}

// ListPOs returns purchase orders with vendor name and total.
func (s *Service) ListPOs(ctx context.Context, limit, offset int, filters ListFilters) ([]POListItem, int, error) {
	return s.repo.ListPOs(ctx, limit, offset, filters)
}

// ListGRNs returns goods receipts.
func (s *Service) ListGRNs(ctx context.Context, limit, offset int, filters ListFilters) ([]GRNListItem, int, error) {
	return s.repo.ListGRNs(ctx, limit, offset, filters)
}

// GetGoodsReceipt returns a receipt with its lines.
func (s *Service) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, error) {
	return s.repo.GetGRN(ctx, id)
}

// ValidateGoodsReceipt runs every receipt rule without applying anything.
func (s *Service) ValidateGoodsReceipt(ctx context.Context, input ReceiptInput) (fulfillment.ValidationResult, error) {
	receipt := s.buildReceipt(input)
	var order *fulfillment.PurchaseOrder
	if receipt.Mode == fulfillment.ModeAgainstPO && receipt.PurchaseOrderID != 0 {
		po, err := s.repo.GetPO(ctx, receipt.PurchaseOrderID)
		if err != nil {
			return fulfillment.ValidationResult{}, err
		}
		receipt.Lines = fulfillment.MirrorOrderLines(po.PurchaseOrder, receipt.Lines)
		receipt.Sourcing = po.Sourcing
		order = &po.PurchaseOrder
	}
	if result, ok := s.checkVendor(ctx, receipt); !ok {
		return result, nil
	}
	return fulfillment.ValidateReceipt(order, receipt, s.now()), nil
}

// CreateGoodsReceipt validates a receipt and, when accepted, stores it and
// applies it to its order in one transaction. A rejected receipt changes
// nothing.
func (s *Service) CreateGoodsReceipt(ctx context.Context, input ReceiptInput) (GoodsReceipt, error) {
	receipt := s.buildReceipt(input)
	mode := string(receipt.Mode)

	inserted := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "procurement.grn"); err != nil {
			return GoodsReceipt{}, err
		}
		inserted = true
	}

	grn, change, err := s.applyReceipt(ctx, receipt, input.Number)
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		var rejected *ReceiptRejectedError
		if errors.As(err, &rejected) {
			s.observeReceipt(mode, "rejected")
		} else {
			s.observeReceipt(mode, "error")
		}
		return GoodsReceipt{}, err
	}
	s.observeReceipt(mode, "accepted")

	meta := map[string]any{"number": grn.Number, "mode": mode, "grand_total": grn.Totals.GrandTotal.String()}
	if grn.Mode == fulfillment.ModeAgainstPO {
		meta["purchase_order_id"] = grn.PurchaseOrderID
		meta["po_status"] = string(change.to)
		s.observeTransition(change.from, change.to)
	}
	s.recordAudit(ctx, input.ActorID, "GRN_CREATE", "goods_receipt", grn.ID, meta)
	s.postStock(ctx, grn, false)
	if grn.Mode == fulfillment.ModeAgainstPO && s.events != nil {
		evt := ReceiptAppliedEvent{GRNID: grn.ID, GRNNumber: grn.Number, PurchaseOrderID: grn.PurchaseOrderID, Status: string(change.to), AppliedAt: s.now()}
		if err := s.events.PublishReceiptApplied(ctx, evt); err != nil {
			s.logger.Warn("publish receipt applied", slog.Any("error", err), slog.Int64("grn_id", grn.ID))
		}
	}
	return grn, nil
}

type statusChange struct {
	from fulfillment.Status
	to   fulfillment.Status
}

func (s *Service) applyReceipt(ctx context.Context, receipt fulfillment.Receipt, number string) (GoodsReceipt, statusChange, error) {
	grn := GoodsReceipt{Number: defaultString(number, generateNumber("GRN"))}
	now := s.now()

	if receipt.Mode != fulfillment.ModeAgainstPO || receipt.PurchaseOrderID == 0 {
		if result, ok := s.checkVendor(ctx, receipt); !ok {
			return GoodsReceipt{}, statusChange{}, &ReceiptRejectedError{Result: result}
		}
		if _, result := fulfillment.ApplyReceipt(nil, receipt, now); !result.OK {
			return GoodsReceipt{}, statusChange{}, &ReceiptRejectedError{Result: result}
		}
		grn.Receipt = receipt
		grn.Totals = receiptTotals(receipt)
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.CreateGRN(ctx, grn)
			if err != nil {
				return err
			}
			grn.ID = id
			return nil
		})
		return grn, statusChange{}, err
	}

	var change statusChange
	err := s.withOrderLock(ctx, receipt.PurchaseOrderID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			po, err := tx.GetPOForUpdate(ctx, receipt.PurchaseOrderID)
			if err != nil {
				return err
			}
			receipt.Lines = fulfillment.MirrorOrderLines(po.PurchaseOrder, receipt.Lines)
			receipt.Sourcing = po.Sourcing
			updated, result := fulfillment.ApplyReceipt(&po.PurchaseOrder, receipt, now)
			if !result.OK {
				return &ReceiptRejectedError{Result: result}
			}
			change = statusChange{from: po.Status, to: updated.Status}
			po.PurchaseOrder = *updated
			if err := tx.SavePO(ctx, po); err != nil {
				return err
			}
			grn.Receipt = receipt
			grn.Totals = receiptTotals(receipt)
			id, err := tx.CreateGRN(ctx, grn)
			if err != nil {
				return err
			}
			grn.ID = id
			return nil
		})
	})
	if err != nil {
		return GoodsReceipt{}, statusChange{}, err
	}
	return grn, change, nil
}

// DeleteGoodsReceipt removes a receipt and takes its quantities back off the
// order.
func (s *Service) DeleteGoodsReceipt(ctx context.Context, id int64, actorID int64) error {
	grn, err := s.repo.GetGRN(ctx, id)
	if err != nil {
		return err
	}
	var change statusChange
	if grn.Mode == fulfillment.ModeAgainstPO && grn.PurchaseOrderID != 0 {
		err = s.withOrderLock(ctx, grn.PurchaseOrderID, func() error {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				po, err := tx.GetPOForUpdate(ctx, grn.PurchaseOrderID)
				if err != nil {
					return err
				}
				if po.Status == fulfillment.StatusCancelled {
					return fmt.Errorf("%w: order %s is cancelled", ErrInvalidState, po.Number)
				}
				reversed := fulfillment.ReverseReceipt(po.PurchaseOrder, grn.Receipt)
				change = statusChange{from: po.Status, to: reversed.Status}
				po.PurchaseOrder = reversed
				if err := tx.SavePO(ctx, po); err != nil {
					return err
				}
				return tx.DeleteGRN(ctx, id)
			})
		})
		if err != nil {
			return err
		}
		s.observeTransition(change.from, change.to)
	} else {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.DeleteGRN(ctx, id)
		})
		if err != nil {
			return err
		}
	}
	s.recordAudit(ctx, actorID, "GRN_DELETE", "goods_receipt", id, map[string]any{"number": grn.Number, "purchase_order_id": grn.PurchaseOrderID})
	s.postStock(ctx, grn, true)
	return nil
}

// ReconcileCandidates lists orders the consistency scan should inspect.
func (s *Service) ReconcileCandidates(ctx context.Context) ([]int64, error) {
	return s.repo.ListReconcileCandidates(ctx)
}

// History lists the audit trail of an order, newest first.
func (s *Service) History(ctx context.Context, id int64, limit int) ([]shared.AuditLog, error) {
	if _, err := s.repo.GetPO(ctx, id); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []shared.AuditLog{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.trail.Trail(ctx, "purchase_order", strconv.FormatInt(id, 10), limit)
}

// CheckOrder runs the consistency check on a stored order.
func (s *Service) CheckOrder(ctx context.Context, id int64) (PurchaseOrder, []fulfillment.Issue, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, fulfillment.CheckConsistency(po.PurchaseOrder), nil
}

func (s *Service) buildOrder(ctx context.Context, input OrderInput) (PurchaseOrder, error) {
	if input.VendorID == 0 {
		return PurchaseOrder{}, validationError("select a vendor")
	}
	if issue, ok := fulfillment.CheckSourcing(input.Sourcing); !ok {
		return PurchaseOrder{}, validationError("%s", issue.Message)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, validationError("add at least one item")
	}
	if err := input.PaymentTerms.Validate(); err != nil {
		return PurchaseOrder{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	lines := make([]fulfillment.OrderLine, 0, len(input.Lines))
	for i, line := range input.Lines {
		if strings.TrimSpace(line.BrandName) == "" || strings.TrimSpace(line.ModelNo) == "" {
			return PurchaseOrder{}, validationError("line %d: brand name and model number are required", i+1)
		}
		if line.Quantity.LessThan(decimal.NewFromInt(1)) {
			return PurchaseOrder{}, validationError("line %d: quantity must be at least 1", i+1)
		}
		if err := fulfillment.CheckAmounts(line.Quantity, line.Price, line.DiscountPercent, line.TaxPercent); err != nil {
			return PurchaseOrder{}, fmt.Errorf("%w: line %d: %v", ErrValidation, i+1, err)
		}
		if err := fulfillment.CheckScale(line.Quantity, line.Price, line.DiscountPercent, line.TaxPercent); err != nil {
			return PurchaseOrder{}, fmt.Errorf("%w: line %d: %v", ErrValidation, i+1, err)
		}
		lines = append(lines, fulfillment.OrderLine{
			BrandName:        strings.TrimSpace(line.BrandName),
			ModelNo:          strings.TrimSpace(line.ModelNo),
			Description:      line.Description,
			Unit:             line.Unit,
			BaseUOM:          line.BaseUOM,
			OrderedQuantity:  line.Quantity,
			Price:            line.Price,
			DiscountPercent:  line.DiscountPercent,
			TaxPercent:       line.TaxPercent,
			ReceivedQuantity: decimal.Zero,
		})
	}
	if s.vendors != nil {
		ok, err := s.vendors.Exists(ctx, input.VendorID)
		if err != nil {
			return PurchaseOrder{}, err
		}
		if !ok {
			return PurchaseOrder{}, validationError("vendor %d not found", input.VendorID)
		}
	}
	po := PurchaseOrder{
		PurchaseOrder: fulfillment.PurchaseOrder{
			Number:   strings.TrimSpace(input.Number),
			VendorID: input.VendorID,
			Lines:    lines,
			Sourcing: input.Sourcing,
		},
		DeliveryAddress: input.DeliveryAddress,
		OrderDate:       defaultTime(input.OrderDate, s.now()),
		DeliveryDate:    input.DeliveryDate,
		PaymentTerms:    input.PaymentTerms,
		Remark:          input.Remark,
	}
	totals, err := fulfillment.OrderTotals(po.PurchaseOrder)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	po.Totals = totals.Rounded()
	return po, nil
}

func (s *Service) buildReceipt(input ReceiptInput) fulfillment.Receipt {
	receipt := fulfillment.Receipt{
		Mode:            input.Mode,
		PurchaseOrderID: input.PurchaseOrderID,
		VendorID:        input.VendorID,
		Sourcing:        input.Sourcing,
		Date:            defaultTime(input.Date, s.now()),
		Remark:          input.Remark,
		Lines:           make([]fulfillment.ReceiptLine, 0, len(input.Lines)),
	}
	for _, line := range input.Lines {
		var rl fulfillment.ReceiptLine
		if input.Mode == fulfillment.ModeAgainstPO {
			rl = fulfillment.ReceiptLine{Source: fulfillment.LineSourceOrder, BrandName: strings.TrimSpace(line.BrandName), ModelNo: strings.TrimSpace(line.ModelNo), Quantity: line.Quantity}
		} else {
			rl = fulfillment.DirectReceiptLine(strings.TrimSpace(line.BrandName), strings.TrimSpace(line.ModelNo), line.Quantity, line.Price, line.DiscountPercent, line.TaxPercent)
			rl.Description = line.Description
			rl.Unit = line.Unit
		}
		receipt.Lines = append(receipt.Lines, rl)
	}
	return receipt
}

// checkVendor confirms a direct-material vendor exists. Receipts against an
// order are checked against the order's vendor by the engine.
func (s *Service) checkVendor(ctx context.Context, receipt fulfillment.Receipt) (fulfillment.ValidationResult, bool) {
	if s.vendors == nil || receipt.Mode != fulfillment.ModeDirectMaterial || receipt.VendorID == 0 {
		return fulfillment.ValidationResult{OK: true}, true
	}
	ok, err := s.vendors.Exists(ctx, receipt.VendorID)
	if err != nil {
		s.logger.Warn("vendor lookup", slog.Any("error", err), slog.Int64("vendor_id", receipt.VendorID))
		return fulfillment.ValidationResult{OK: true}, true
	}
	if !ok {
		return fulfillment.ValidationResult{Errors: []fulfillment.Issue{{Kind: fulfillment.KindValidation, Message: fmt.Sprintf("vendor %d not found", receipt.VendorID)}}}, false
	}
	return fulfillment.ValidationResult{OK: true}, true
}

// postStock records inbound stock for Stock receipts, or takes it back out
// when the receipt is deleted. The receipt is already committed, so failures
// are logged for the operator rather than returned.
func (s *Service) postStock(ctx context.Context, grn GoodsReceipt, reverse bool) {
	if s.inventory == nil || grn.Sourcing.PurchaseType != fulfillment.PurchaseTypeStock {
		return
	}
	for i, line := range grn.Lines {
		if !line.Quantity.IsPositive() {
			continue
		}
		unit, err := fulfillment.ComputeLineAmounts(decimal.NewFromInt(1), line.Price, line.DiscountPercent, decimal.Zero)
		if err != nil {
			continue
		}
		refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("GRN:%d:%d", grn.ID, i+1)))
		input := inventory.MovementInput{
			Code:      fmt.Sprintf("%s-%d", grn.Number, i+1),
			Key:       inventory.StockKey{BrandName: line.BrandName, ModelNo: line.ModelNo, Location: grn.Sourcing.WarehouseLocation},
			Qty:       line.Quantity,
			UnitCost:  unit.AfterDiscount,
			Note:      fmt.Sprintf("GRN %s", grn.Number),
			RefModule: "PROCUREMENT",
			RefID:     refID.String(),
		}
		if reverse {
			input.Code += "-REV"
			_, err = s.inventory.PostOutbound(ctx, input)
		} else {
			_, err = s.inventory.PostInbound(ctx, input)
		}
		if err != nil {
			s.logger.Error("post stock movement", slog.Any("error", err), slog.String("grn", grn.Number), slog.Int("line", i+1), slog.Bool("reverse", reverse))
		}
	}
}

func (s *Service) withOrderLock(ctx context.Context, id int64, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	lease, err := s.locker.Acquire(ctx, shared.PurchaseOrderLockKey(id))
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return ErrLocked
		}
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release order lock", slog.Any("error", err), slog.Int64("po_id", id))
		}
	}()
	return fn()
}

func (s *Service) observeReceipt(mode, result string) {
	if s.metrics != nil {
		s.metrics.ObserveReceipt(mode, result)
	}
}

func (s *Service) observeTransition(from, to fulfillment.Status) {
	if s.metrics != nil && from != to {
		s.metrics.ObserveStatusTransition(string(from), string(to))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: strconv.FormatInt(entityID, 10), Meta: meta, At: s.now()}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err), slog.String("action", action))
	}
}

func receiptTotals(receipt fulfillment.Receipt) fulfillment.Totals {
	totals, err := fulfillment.ReceiptTotals(receipt)
	if err != nil {
		return fulfillment.Totals{}
	}
	return totals.Rounded()
}

func hasReceipts(order fulfillment.PurchaseOrder) bool {
	for _, line := range order.Lines {
		if line.ReceivedQuantity.IsPositive() {
			return true
		}
	}
	return false
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.NewString()[:8]))
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultTime(value time.Time, fallback time.Time) time.Time {
	if value.IsZero() {
		return fallback
	}
	return value
}
