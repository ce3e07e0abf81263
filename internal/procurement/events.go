package procurement

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// ReceiptAppliedEvent is published after a receipt against an order commits.
type ReceiptAppliedEvent struct {
	GRNID           int64
	GRNNumber       string
	PurchaseOrderID int64
	Status          string
	AppliedAt       time.Time
}

// VendorPort checks vendors referenced by orders and receipts.
type VendorPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// InventoryPort posts stock movements for Stock receipts.
type InventoryPort interface {
	PostInbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error)
	PostOutbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditTrailPort reads recorded audit entries back.
type AuditTrailPort interface {
	Trail(ctx context.Context, entity, entityID string, limit int) ([]shared.AuditLog, error)
}

// IdempotencyPort guards receipt submissions against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// LockerPort serialises writers of a single order.
type LockerPort interface {
	Acquire(ctx context.Context, key string) (*shared.Lease, error)
}

// EventPublisher hands receipt events to the background worker.
type EventPublisher interface {
	PublishReceiptApplied(ctx context.Context, evt ReceiptAppliedEvent) error
}

// MetricsPort records domain counters.
type MetricsPort interface {
	ObserveReceipt(mode, result string)
	ObserveStatusTransition(from, to string)
}
