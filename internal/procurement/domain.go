package procurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement/fulfillment"
)

// PurchaseOrder is the stored order: the engine snapshot plus header fields
// the engine never reads.
type PurchaseOrder struct {
	fulfillment.PurchaseOrder
	DeliveryAddress string
	OrderDate       time.Time
	DeliveryDate    time.Time
	PaymentTerms    fulfillment.PaymentTerms
	Remark          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GoodsReceipt is an applied receipt. It is never edited after creation.
type GoodsReceipt struct {
	ID     int64
	Number string
	fulfillment.Receipt
	Totals    fulfillment.Totals
	CreatedAt time.Time
}

// POListItem is a row of the purchase order listing.
type POListItem struct {
	ID           int64              `json:"id"`
	Number       string             `json:"number"`
	VendorID     int64              `json:"vendor_id"`
	VendorName   string             `json:"vendor_name"`
	Status       fulfillment.Status `json:"status"`
	PurchaseType string             `json:"purchase_type"`
	OrderDate    time.Time          `json:"order_date"`
	GrandTotal   decimal.Decimal    `json:"grand_total"`
	CreatedAt    time.Time          `json:"created_at"`
}

// GRNListItem is a row of the goods receipt listing.
type GRNListItem struct {
	ID                int64            `json:"id"`
	Number            string           `json:"number"`
	Mode              fulfillment.Mode `json:"mode"`
	PurchaseOrderID   int64            `json:"purchase_order_id,omitempty"`
	PONumber          string           `json:"po_number,omitempty"`
	VendorID          int64            `json:"vendor_id"`
	VendorName        string           `json:"vendor_name"`
	WarehouseLocation string           `json:"warehouse_location,omitempty"`
	ReceivedAt        time.Time        `json:"received_at"`
	GrandTotal        decimal.Decimal  `json:"grand_total"`
	CreatedAt         time.Time        `json:"created_at"`
}

// ListFilters narrows listings. Incomplete keeps orders that may still take
// receipts.
type ListFilters struct {
	Status     string
	VendorID   int64
	Search     string
	Incomplete bool
	SortBy     string
	SortDir    string
}

// OrderLineInput is a purchase order line as submitted.
type OrderLineInput struct {
	BrandName       string
	ModelNo         string
	Description     string
	Unit            string
	BaseUOM         string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// OrderInput creates or replaces a purchase order.
type OrderInput struct {
	Number          string
	VendorID        int64
	Sourcing        fulfillment.Sourcing
	DeliveryAddress string
	OrderDate       time.Time
	DeliveryDate    time.Time
	PaymentTerms    fulfillment.PaymentTerms
	Remark          string
	Lines           []OrderLineInput
	ActorID         int64
}

// ReceiptLineInput is a received line as submitted. Pricing is ignored for
// receipts against an order.
type ReceiptLineInput struct {
	BrandName       string
	ModelNo         string
	Description     string
	Unit            string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// ReceiptInput submits a goods receipt.
type ReceiptInput struct {
	Number          string
	Mode            fulfillment.Mode
	PurchaseOrderID int64
	VendorID        int64
	Sourcing        fulfillment.Sourcing
	Date            time.Time
	Remark          string
	Lines           []ReceiptLineInput
	IdempotencyKey  string
	ActorID         int64
}

// RemainingLine reports progress of one order line.
type RemainingLine struct {
	Line            int
	BrandName       string
	ModelNo         string
	Ordered         decimal.Decimal
	AlreadyReceived decimal.Decimal
	Remaining       decimal.Decimal
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrPrecondition indicates the order cannot take the requested receipt.
	ErrPrecondition = errors.New("procurement: precondition failed")
	// ErrLocked is returned while another request holds the order.
	ErrLocked = errors.New("procurement: order is locked")
	// ErrConcurrentUpdate is returned when the order changed since it was read.
	ErrConcurrentUpdate = errors.New("procurement: concurrent update")
)

// ReceiptRejectedError carries every issue found on a rejected receipt.
type ReceiptRejectedError struct {
	Result fulfillment.ValidationResult
}

func (e *ReceiptRejectedError) Error() string {
	return fmt.Sprintf("procurement: receipt rejected: %s", e.Result.String())
}

// Unwrap lets callers test the rejection against ErrPrecondition or
// ErrValidation.
func (e *ReceiptRejectedError) Unwrap() error {
	if e.Result.HasKind(fulfillment.KindPrecondition) {
		return ErrPrecondition
	}
	return ErrValidation
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
