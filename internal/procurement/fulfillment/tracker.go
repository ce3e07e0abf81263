package fulfillment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Remaining describes how much of a line is received and how much is left.
type Remaining struct {
	AlreadyReceived decimal.Decimal
	Remaining       decimal.Decimal
}

// ComputeRemaining returns the received and remaining quantity of a line.
// Remaining never goes below zero; CheckConsistency reports lines where it
// would.
func ComputeRemaining(line OrderLine) Remaining {
	received := line.ReceivedQuantity
	left := line.OrderedQuantity.Sub(received)
	if left.IsNegative() {
		left = decimal.Zero
	}
	return Remaining{AlreadyReceived: received, Remaining: left}
}

// IsOrderFullyReceived reports whether nothing is left to receive. An order
// closed as Received by an administrator counts as fully received whatever
// its line quantities say; any other stored status is recomputed from the
// lines. An order without lines is never fully received.
func IsOrderFullyReceived(order PurchaseOrder) bool {
	if order.StatusOverridden && order.Status == StatusReceived {
		return true
	}
	if len(order.Lines) == 0 {
		return false
	}
	for _, line := range order.Lines {
		if !ComputeRemaining(line).Remaining.IsZero() {
			return false
		}
	}
	return true
}

func anyReceived(order PurchaseOrder) bool {
	for _, line := range order.Lines {
		if line.ReceivedQuantity.IsPositive() {
			return true
		}
	}
	return false
}

// MatchLine finds the order line with the given brand and model. The first
// match wins when the pair is duplicated.
func MatchLine(lines []OrderLine, brandName, modelNo string) (int, bool) {
	for i, line := range lines {
		if line.BrandName == brandName && line.ModelNo == modelNo {
			return i, true
		}
	}
	return -1, false
}

// DuplicateLineKeys lists brand/model pairs that appear on more than one line,
// in order of first appearance.
func DuplicateLineKeys(lines []OrderLine) []LineKey {
	seen := make(map[LineKey]int, len(lines))
	var dups []LineKey
	for _, line := range lines {
		key := line.Key()
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, key)
		}
	}
	return dups
}

// CheckConsistency inspects an order without changing it and reports
// over-received lines, negative quantities, duplicated keys and a stored
// status that disagrees with the projection.
func CheckConsistency(order PurchaseOrder) []Issue {
	var issues []Issue
	for i, line := range order.Lines {
		if line.ReceivedQuantity.IsNegative() {
			issues = append(issues, Issue{Kind: KindDataConsistency, Line: i + 1, Message: fmt.Sprintf("received quantity %s is negative for %s", line.ReceivedQuantity, line.Key())})
		}
		if line.ReceivedQuantity.GreaterThan(line.OrderedQuantity) {
			issues = append(issues, Issue{Kind: KindDataConsistency, Line: i + 1, Message: fmt.Sprintf("received %s exceeds ordered %s for %s", line.ReceivedQuantity, line.OrderedQuantity, line.Key())})
		}
	}
	for _, key := range DuplicateLineKeys(order.Lines) {
		issues = append(issues, Issue{Kind: KindDataConsistency, Message: fmt.Sprintf("duplicate line %s; receipts match the first occurrence", key)})
	}
	if derived := DeriveStatus(order); derived != order.Status {
		issues = append(issues, Issue{Kind: KindDataConsistency, Message: fmt.Sprintf("stored status %s differs from derived %s", order.Status, derived)})
	}
	return issues
}
