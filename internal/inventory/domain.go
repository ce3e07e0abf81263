package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported inventory movements.
type TransactionType string

const (
	// TransactionTypeIn represents an inbound movement.
	TransactionTypeIn TransactionType = "IN"
	// TransactionTypeOut represents an outbound movement.
	TransactionTypeOut TransactionType = "OUT"
	// TransactionTypeAdjust indicates manual adjustments.
	TransactionTypeAdjust TransactionType = "ADJUST"
)

// StockKey identifies a stocked item at a warehouse location. Items are
// keyed the way purchase lines are: by brand and model.
type StockKey struct {
	BrandName string `json:"brand_name"`
	ModelNo   string `json:"model_no"`
	Location  string `json:"location"`
}

func (k StockKey) String() string {
	return k.BrandName + "/" + k.ModelNo + "@" + k.Location
}

func (k StockKey) valid() bool {
	return k.BrandName != "" && k.ModelNo != "" && k.Location != ""
}

// Transaction models the header of inventory transaction.
type Transaction struct {
	ID        int64
	Code      string
	Type      TransactionType
	Location  string
	RefModule string
	RefID     string
	Note      string
	PostedAt  time.Time
	CreatedBy int64
}

// TransactionLine models each item movement line.
type TransactionLine struct {
	TransactionID int64
	BrandName     string
	ModelNo       string
	Qty           decimal.Decimal
	UnitCost      decimal.Decimal
}

// Balance summarises stock of one item at one location.
type Balance struct {
	Key       StockKey        `json:"key"`
	Qty       decimal.Decimal `json:"qty"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StockCardEntry describes inventory card entry for reports.
type StockCardEntry struct {
	TxCode      string          `json:"tx_code"`
	TxType      TransactionType `json:"tx_type"`
	PostedAt    time.Time       `json:"posted_at"`
	QtyIn       decimal.Decimal `json:"qty_in"`
	QtyOut      decimal.Decimal `json:"qty_out"`
	BalanceQty  decimal.Decimal `json:"balance_qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	BalanceCost decimal.Decimal `json:"balance_cost"`
	Note        string          `json:"note,omitempty"`
}

// MovementInput posts stock in or out of a location. Qty is always positive;
// the direction comes from the call.
type MovementInput struct {
	Code      string
	Key       StockKey
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Note      string
	ActorID   int64
	RefModule string
	RefID     string
}

// AdjustmentInput describes request to adjust stock. Qty is signed.
type AdjustmentInput struct {
	Code     string
	Key      StockKey
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
	Note     string
	ActorID  int64
}

// StockCardFilter filters card entries.
type StockCardFilter struct {
	Key   StockKey
	From  time.Time
	To    time.Time
	Limit int
}

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")

// ErrInvalidUnitCost indicates invalid cost value.
var ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")

// ErrInvalidKey indicates a movement without brand, model or location.
var ErrInvalidKey = errors.New("inventory: brand, model and location required")
