package fulfillment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidateReceipt checks a receipt submission against the order it targets.
// Header rules stop at the first failure. Line rules report every offending
// line. Nothing is applied unless the whole receipt is accepted.
func ValidateReceipt(order *PurchaseOrder, receipt Receipt, now time.Time) ValidationResult {
	if !receipt.Mode.IsValid() {
		return rejected(Issue{Kind: KindValidation, Message: "select a receipt mode (AgainstPO or DirectMaterial)"})
	}
	if receipt.Mode == ModeDirectMaterial && receipt.PurchaseOrderID != 0 {
		return rejected(Issue{Kind: KindValidation, Message: "direct material receipts cannot reference a purchase order"})
	}
	if receipt.Mode == ModeAgainstPO {
		if order == nil {
			return rejected(Issue{Kind: KindValidation, Message: "select a purchase order"})
		}
		if issue, ok := orderPrecondition(*order); !ok {
			return rejected(issue)
		}
	}
	if receipt.VendorID == 0 {
		return rejected(Issue{Kind: KindValidation, Message: "select a vendor"})
	}
	if receipt.Mode == ModeAgainstPO && receipt.VendorID != order.VendorID {
		return rejected(Issue{Kind: KindValidation, Message: fmt.Sprintf("vendor %d does not match purchase order %s", receipt.VendorID, order.Number)})
	}
	if receipt.Mode == ModeDirectMaterial {
		if issue, ok := CheckSourcing(receipt.Sourcing); !ok {
			return rejected(issue)
		}
	}
	if !receipt.Date.IsZero() && receipt.Date.After(now) {
		return rejected(Issue{Kind: KindValidation, Message: "receipt date cannot be in the future"})
	}
	if len(receipt.Lines) == 0 {
		return rejected(Issue{Kind: KindValidation, Message: "add at least one item"})
	}
	if issues := checkLines(receipt); len(issues) > 0 {
		return rejected(issues...)
	}
	if receipt.Mode == ModeAgainstPO {
		if issues := checkCeilings(*order, receipt.Lines); len(issues) > 0 {
			return rejected(issues...)
		}
	}
	return accepted()
}

func orderPrecondition(order PurchaseOrder) (Issue, bool) {
	switch DeriveStatus(order) {
	case StatusCancelled:
		return Issue{Kind: KindPrecondition, Message: fmt.Sprintf("purchase order %s is cancelled", order.Number)}, false
	case StatusReceived:
		return Issue{Kind: KindPrecondition, Message: fmt.Sprintf("purchase order %s is already fully received", order.Number)}, false
	}
	return Issue{}, true
}

// CheckSourcing applies to direct-material receipts and to new orders;
// receipts against an order inherit these fields from it.
func CheckSourcing(s Sourcing) (Issue, bool) {
	if strings.TrimSpace(s.TransactionType) == "" || strings.TrimSpace(s.PurchaseType) == "" {
		return Issue{Kind: KindValidation, Message: "transaction type and purchase type are required"}, false
	}
	switch s.PurchaseType {
	case PurchaseTypeProject:
		if s.ProjectID == 0 {
			return Issue{Kind: KindValidation, Message: "select a project"}, false
		}
	case PurchaseTypeStock:
		if strings.TrimSpace(s.WarehouseLocation) == "" {
			return Issue{Kind: KindValidation, Message: "enter a warehouse location"}, false
		}
	}
	return Issue{}, true
}

func checkLines(receipt Receipt) []Issue {
	var issues []Issue
	for i, line := range receipt.Lines {
		n := i + 1
		if strings.TrimSpace(line.BrandName) == "" || strings.TrimSpace(line.ModelNo) == "" {
			issues = append(issues, Issue{Kind: KindValidation, Line: n, Message: "brand name and model number are required"})
			continue
		}
		if receipt.Mode == ModeDirectMaterial && line.Source != LineSourceDirect {
			issues = append(issues, Issue{Kind: KindValidation, Line: n, Message: fmt.Sprintf("%s is not a direct material line", line.Key())})
			continue
		}
		if receipt.Mode == ModeAgainstPO && line.Source != LineSourceOrder {
			issues = append(issues, Issue{Kind: KindValidation, Line: n, Message: fmt.Sprintf("%s does not mirror a purchase order line", line.Key())})
			continue
		}
		err := CheckAmounts(line.Quantity, line.Price, line.DiscountPercent, line.TaxPercent)
		if err == nil {
			err = CheckScale(line.Quantity, line.Price, line.DiscountPercent, line.TaxPercent)
		}
		if err != nil {
			issues = append(issues, Issue{Kind: KindValidation, Line: n, Message: strings.TrimPrefix(err.Error(), ErrInvalidAmount.Error()+": ")})
		}
	}
	return issues
}

// checkCeilings bounds each matched order line by its remaining quantity.
// Receipt lines that hit the same order line are added up first.
func checkCeilings(order PurchaseOrder, lines []ReceiptLine) []Issue {
	var issues []Issue
	claimed := make(map[int]decimal.Decimal, len(lines))
	for i, line := range lines {
		idx, ok := MatchLine(order.Lines, line.BrandName, line.ModelNo)
		if !ok {
			issues = append(issues, Issue{Kind: KindDataConsistency, Line: i + 1, Message: fmt.Sprintf("no purchase order line for %s", line.Key())})
			continue
		}
		total := claimed[idx].Add(line.Quantity)
		claimed[idx] = total
		remaining := ComputeRemaining(order.Lines[idx]).Remaining
		if total.GreaterThan(remaining) {
			issues = append(issues, Issue{
				Kind:    KindValidation,
				Line:    i + 1,
				Message: fmt.Sprintf("receiving %s exceeds remaining quantity for %s (remaining %s)", total, line.Key(), remaining),
			})
		}
	}
	return issues
}

// ApplyReceipt validates the receipt and, when accepted, returns the order
// with received quantities incremented and its status re-derived. The order
// passed in is never modified. Direct-material receipts return a nil order.
func ApplyReceipt(order *PurchaseOrder, receipt Receipt, now time.Time) (*PurchaseOrder, ValidationResult) {
	result := ValidateReceipt(order, receipt, now)
	if !result.OK || receipt.Mode != ModeAgainstPO {
		return nil, result
	}
	updated := order.Clone()
	for _, line := range receipt.Lines {
		idx, _ := MatchLine(updated.Lines, line.BrandName, line.ModelNo)
		updated.Lines[idx].ReceivedQuantity = updated.Lines[idx].ReceivedQuantity.Add(line.Quantity)
	}
	updated.Status = DeriveStatus(updated)
	return &updated, result
}

// ReverseReceipt undoes a previously applied AgainstPO receipt, used when a
// receipt is deleted. Quantities never drop below zero.
func ReverseReceipt(order PurchaseOrder, receipt Receipt) PurchaseOrder {
	updated := order.Clone()
	if receipt.Mode != ModeAgainstPO {
		return updated
	}
	for _, line := range receipt.Lines {
		idx, ok := MatchLine(updated.Lines, line.BrandName, line.ModelNo)
		if !ok {
			continue
		}
		next := updated.Lines[idx].ReceivedQuantity.Sub(line.Quantity)
		if next.IsNegative() {
			next = decimal.Zero
		}
		updated.Lines[idx].ReceivedQuantity = next
	}
	updated.Status = DeriveStatus(updated)
	return updated
}
