// Package fulfillment reconciles purchase orders against the goods receipts
// applied to them. Every function here is synchronous and free of I/O; the
// caller owns loading the order snapshot and persisting the result.
package fulfillment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the purchase order lifecycle status.
type Status string

const (
	StatusPending           Status = "Pending"
	StatusApproved          Status = "Approved"
	StatusPartiallyReceived Status = "PartiallyReceived"
	StatusReceived          Status = "Received"
	StatusCancelled         Status = "Cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPartiallyReceived, StatusReceived, StatusCancelled:
		return true
	default:
		return false
	}
}

// Mode selects how a goods receipt relates to purchase orders.
type Mode string

const (
	ModeAgainstPO      Mode = "AgainstPO"
	ModeDirectMaterial Mode = "DirectMaterial"
)

// IsValid reports whether m is a known receipt mode.
func (m Mode) IsValid() bool {
	return m == ModeAgainstPO || m == ModeDirectMaterial
}

// Purchase types that carry extra required fields.
const (
	PurchaseTypeProject = "Project Purchase"
	PurchaseTypeStock   = "Stock"
)

// Sourcing holds the classification fields shared by orders and receipts.
// Receipts against an order inherit them from the order.
type Sourcing struct {
	TransactionType   string
	PurchaseType      string
	ProjectID         int64
	WarehouseLocation string
}

// OrderLine is a single purchase order line. ReceivedQuantity is cumulative
// across every receipt applied to the order and only changes through
// ApplyReceipt and ReverseReceipt.
type OrderLine struct {
	BrandName        string
	ModelNo          string
	Description      string
	Unit             string
	BaseUOM          string
	OrderedQuantity  decimal.Decimal
	Price            decimal.Decimal
	DiscountPercent  decimal.Decimal
	TaxPercent       decimal.Decimal
	ReceivedQuantity decimal.Decimal
}

// Key returns the (brand, model) pair used to match receipt lines.
func (l OrderLine) Key() LineKey {
	return LineKey{BrandName: l.BrandName, ModelNo: l.ModelNo}
}

// Priced returns the pricing inputs of the line at its ordered quantity.
func (l OrderLine) Priced() PricedLine {
	return PricedLine{Quantity: l.OrderedQuantity, Price: l.Price, DiscountPercent: l.DiscountPercent, TaxPercent: l.TaxPercent}
}

// LineKey identifies a line by brand and model.
type LineKey struct {
	BrandName string
	ModelNo   string
}

func (k LineKey) String() string {
	return k.BrandName + "/" + k.ModelNo
}

// PurchaseOrder is the order snapshot the engine works on.
type PurchaseOrder struct {
	ID       int64
	Number   string
	VendorID int64
	Lines    []OrderLine
	Status   Status
	// StatusOverridden marks a Received status set by an administrator
	// rather than derived from line quantities.
	StatusOverridden bool
	ApprovedAt       *time.Time
	Sourcing         Sourcing
	Totals           Totals
	Version          int64
}

// Clone returns a copy whose lines can be mutated independently.
func (o PurchaseOrder) Clone() PurchaseOrder {
	out := o
	out.Lines = append([]OrderLine(nil), o.Lines...)
	if o.ApprovedAt != nil {
		at := *o.ApprovedAt
		out.ApprovedAt = &at
	}
	return out
}

// LineSource tags where a receipt line came from.
type LineSource int

const (
	// LineSourceOrder lines mirror a purchase order line; pricing is copied
	// from the order and only the quantity is supplied by the receiver.
	LineSourceOrder LineSource = iota + 1
	// LineSourceDirect lines are freeform direct-material entries.
	LineSourceDirect
)

func (s LineSource) String() string {
	switch s {
	case LineSourceOrder:
		return "order"
	case LineSourceDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// ReceiptLine is one received item. Build it with OrderReceiptLine or
// DirectReceiptLine so Source is always set.
type ReceiptLine struct {
	Source          LineSource
	BrandName       string
	ModelNo         string
	Description     string
	Unit            string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// OrderReceiptLine mirrors an order line with the quantity received now.
func OrderReceiptLine(line OrderLine, qty decimal.Decimal) ReceiptLine {
	return ReceiptLine{
		Source:          LineSourceOrder,
		BrandName:       line.BrandName,
		ModelNo:         line.ModelNo,
		Description:     line.Description,
		Unit:            line.Unit,
		Quantity:        qty,
		Price:           line.Price,
		DiscountPercent: line.DiscountPercent,
		TaxPercent:      line.TaxPercent,
	}
}

// DirectReceiptLine builds a freeform direct-material line.
func DirectReceiptLine(brand, model string, qty, price, discountPercent, taxPercent decimal.Decimal) ReceiptLine {
	return ReceiptLine{
		Source:          LineSourceDirect,
		BrandName:       brand,
		ModelNo:         model,
		Quantity:        qty,
		Price:           price,
		DiscountPercent: discountPercent,
		TaxPercent:      taxPercent,
	}
}

// Key returns the (brand, model) pair of the line.
func (l ReceiptLine) Key() LineKey {
	return LineKey{BrandName: l.BrandName, ModelNo: l.ModelNo}
}

// Priced returns the pricing inputs of the line at the received quantity.
func (l ReceiptLine) Priced() PricedLine {
	return PricedLine{Quantity: l.Quantity, Price: l.Price, DiscountPercent: l.DiscountPercent, TaxPercent: l.TaxPercent}
}

// NetValue is the line total after the discount and tax cascade. Invalid
// amounts yield zero; validation reports them separately.
func (l ReceiptLine) NetValue() decimal.Decimal {
	net, err := ComputeNetValue(l.Quantity, l.Price, l.DiscountPercent, l.TaxPercent)
	if err != nil {
		return decimal.Zero
	}
	return net
}

// Receipt is a goods receipt submission.
type Receipt struct {
	Mode            Mode
	PurchaseOrderID int64
	VendorID        int64
	Sourcing        Sourcing
	Date            time.Time
	Remark          string
	Lines           []ReceiptLine
}

// MirrorOrderLines rewrites submitted lines of an AgainstPO receipt so their
// pricing comes from the matching order line. Lines without a match keep
// their brand, model and quantity and are reported by validation.
func MirrorOrderLines(order PurchaseOrder, lines []ReceiptLine) []ReceiptLine {
	out := make([]ReceiptLine, 0, len(lines))
	for _, line := range lines {
		idx, ok := MatchLine(order.Lines, line.BrandName, line.ModelNo)
		if !ok {
			out = append(out, ReceiptLine{Source: LineSourceOrder, BrandName: line.BrandName, ModelNo: line.ModelNo, Quantity: line.Quantity})
			continue
		}
		out = append(out, OrderReceiptLine(order.Lines[idx], line.Quantity))
	}
	return out
}

// DraftReceipt prefills an AgainstPO receipt with every order line set to
// its remaining quantity.
func DraftReceipt(order PurchaseOrder, at time.Time) Receipt {
	lines := make([]ReceiptLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderReceiptLine(line, ComputeRemaining(line).Remaining))
	}
	return Receipt{
		Mode:            ModeAgainstPO,
		PurchaseOrderID: order.ID,
		VendorID:        order.VendorID,
		Sourcing:        order.Sourcing,
		Date:            at,
		Lines:           lines,
	}
}
