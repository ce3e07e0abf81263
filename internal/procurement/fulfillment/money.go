package fulfillment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for negative amounts and percentages outside
// 0..100. Inputs are rejected, never clamped.
var ErrInvalidAmount = errors.New("fulfillment: invalid amount")

var hundred = decimal.NewFromInt(100)

// PricedLine carries the inputs of the discount and tax cascade.
type PricedLine struct {
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// LineAmounts holds every intermediate value of the cascade.
type LineAmounts struct {
	Base          decimal.Decimal
	Discount      decimal.Decimal
	AfterDiscount decimal.Decimal
	Tax           decimal.Decimal
	Net           decimal.Decimal
}

// Totals summarises an order or a receipt.
type Totals struct {
	Amount     decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

// CheckAmounts validates cascade inputs.
func CheckAmounts(quantity, price, discountPercent, taxPercent decimal.Decimal) error {
	switch {
	case quantity.IsNegative():
		return fmt.Errorf("%w: quantity %s is negative", ErrInvalidAmount, quantity)
	case price.IsNegative():
		return fmt.Errorf("%w: price %s is negative", ErrInvalidAmount, price)
	case !isPercent(discountPercent):
		return fmt.Errorf("%w: discount %s%% outside 0..100", ErrInvalidAmount, discountPercent)
	case !isPercent(taxPercent):
		return fmt.Errorf("%w: tax %s%% outside 0..100", ErrInvalidAmount, taxPercent)
	}
	return nil
}

// Decimal places kept by storage. CheckScale rejects finer inputs so a stored
// line prices the same as the submitted one.
const (
	QuantityScale int32 = 4
	MoneyScale    int32 = 2
)

// CheckScale rejects quantities with more than QuantityScale decimal places
// and prices or percentages with more than MoneyScale.
func CheckScale(quantity, price, discountPercent, taxPercent decimal.Decimal) error {
	switch {
	case !fitsScale(quantity, QuantityScale):
		return fmt.Errorf("%w: quantity %s has more than %d decimal places", ErrInvalidAmount, quantity, QuantityScale)
	case !fitsScale(price, MoneyScale):
		return fmt.Errorf("%w: price %s has more than %d decimal places", ErrInvalidAmount, price, MoneyScale)
	case !fitsScale(discountPercent, MoneyScale):
		return fmt.Errorf("%w: discount %s%% has more than %d decimal places", ErrInvalidAmount, discountPercent, MoneyScale)
	case !fitsScale(taxPercent, MoneyScale):
		return fmt.Errorf("%w: tax %s%% has more than %d decimal places", ErrInvalidAmount, taxPercent, MoneyScale)
	}
	return nil
}

func fitsScale(v decimal.Decimal, places int32) bool {
	return v.Equal(v.Truncate(places))
}

func isPercent(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(hundred)
}

// ComputeLineAmounts runs the cascade in its fixed order: base, discount on
// base, tax on the discounted amount. Intermediate values are not rounded.
func ComputeLineAmounts(quantity, price, discountPercent, taxPercent decimal.Decimal) (LineAmounts, error) {
	if err := CheckAmounts(quantity, price, discountPercent, taxPercent); err != nil {
		return LineAmounts{}, err
	}
	base := quantity.Mul(price)
	discount := base.Mul(discountPercent.Div(hundred))
	afterDiscount := base.Sub(discount)
	tax := afterDiscount.Mul(taxPercent.Div(hundred))
	return LineAmounts{
		Base:          base,
		Discount:      discount,
		AfterDiscount: afterDiscount,
		Tax:           tax,
		Net:           afterDiscount.Add(tax),
	}, nil
}

// ComputeNetValue returns the line total after discount and tax.
func ComputeNetValue(quantity, price, discountPercent, taxPercent decimal.Decimal) (decimal.Decimal, error) {
	amounts, err := ComputeLineAmounts(quantity, price, discountPercent, taxPercent)
	if err != nil {
		return decimal.Zero, err
	}
	return amounts.Net, nil
}

// ComputeOrderTotals sums the discounted amount and tax of every line.
func ComputeOrderTotals(lines []PricedLine) (Totals, error) {
	totals := Totals{Amount: decimal.Zero, Tax: decimal.Zero}
	for i, line := range lines {
		amounts, err := ComputeLineAmounts(line.Quantity, line.Price, line.DiscountPercent, line.TaxPercent)
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		totals.Amount = totals.Amount.Add(amounts.AfterDiscount)
		totals.Tax = totals.Tax.Add(amounts.Tax)
	}
	totals.GrandTotal = totals.Amount.Add(totals.Tax)
	return totals, nil
}

// OrderTotals computes totals over the ordered quantities of an order.
func OrderTotals(order PurchaseOrder) (Totals, error) {
	priced := make([]PricedLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		priced = append(priced, line.Priced())
	}
	return ComputeOrderTotals(priced)
}

// ReceiptTotals computes totals over the received quantities of a receipt.
func ReceiptTotals(receipt Receipt) (Totals, error) {
	priced := make([]PricedLine, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		priced = append(priced, line.Priced())
	}
	return ComputeOrderTotals(priced)
}

// RoundMoney rounds a stored or displayed amount to two places.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// Rounded returns totals rounded for storage.
func (t Totals) Rounded() Totals {
	return Totals{Amount: RoundMoney(t.Amount), Tax: RoundMoney(t.Tax), GrandTotal: RoundMoney(t.GrandTotal)}
}

// PaymentTerms splits the order value into payment milestones, in percent.
type PaymentTerms struct {
	AdvancePercent         decimal.Decimal
	AgainstDeliveryPercent decimal.Decimal
	AfterCompletionPercent decimal.Decimal
	CreditPeriodDays       int
}

// Retention is what remains of 100% after the milestones, never negative.
func (p PaymentTerms) Retention() decimal.Decimal {
	rest := hundred.Sub(p.AdvancePercent).Sub(p.AgainstDeliveryPercent).Sub(p.AfterCompletionPercent)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// Validate rejects negative milestones and splits above 100%.
func (p PaymentTerms) Validate() error {
	for _, v := range []decimal.Decimal{p.AdvancePercent, p.AgainstDeliveryPercent, p.AfterCompletionPercent} {
		if !isPercent(v) {
			return fmt.Errorf("%w: payment milestone %s%% outside 0..100", ErrInvalidAmount, v)
		}
	}
	sum := p.AdvancePercent.Add(p.AgainstDeliveryPercent).Add(p.AfterCompletionPercent)
	if sum.GreaterThan(hundred) {
		return fmt.Errorf("%w: payment milestones add up to %s%%", ErrInvalidAmount, sum)
	}
	if p.CreditPeriodDays < 0 {
		return fmt.Errorf("%w: credit period %d days", ErrInvalidAmount, p.CreditPeriodDays)
	}
	return nil
}
