package fulfillment

import (
	"errors"
	"time"
)

// ErrInvalidOverride is returned when an administrator requests a status
// that cannot be set by hand.
var ErrInvalidOverride = errors.New("fulfillment: invalid status override")

// DeriveStatus projects the order status from its lines. Cancelled is
// terminal. Receipt-driven statuses are recomputed; without any receipt the
// order keeps its approval state.
func DeriveStatus(order PurchaseOrder) Status {
	if order.Status == StatusCancelled {
		return StatusCancelled
	}
	if IsOrderFullyReceived(order) {
		return StatusReceived
	}
	if anyReceived(order) {
		return StatusPartiallyReceived
	}
	if order.ApprovedAt != nil || order.Status == StatusApproved {
		return StatusApproved
	}
	return StatusPending
}

// Project returns a copy of the order with its status re-derived.
func Project(order PurchaseOrder) PurchaseOrder {
	out := order.Clone()
	out.Status = DeriveStatus(out)
	return out
}

// IsIncomplete reports whether the order may still take AgainstPO receipts.
func IsIncomplete(order PurchaseOrder) bool {
	return DeriveStatus(order) != StatusReceived
}

// FilterIncomplete keeps the orders for which IsIncomplete holds. Cancelled
// orders stay in the result; receipts against them fail the precondition
// check instead.
func FilterIncomplete(orders []PurchaseOrder) []PurchaseOrder {
	out := make([]PurchaseOrder, 0, len(orders))
	for _, order := range orders {
		if IsIncomplete(order) {
			out = append(out, order)
		}
	}
	return out
}

// OverrideStatus applies an administrative status change.
//
//   - Cancelled: only while nothing has been received; terminal afterwards.
//   - Received: closes the order short; later receipts are refused.
//   - Approved: records the approval time and re-derives.
//   - Pending: withdraws the approval and re-derives.
//
// PartiallyReceived is never set by hand.
func OverrideStatus(order PurchaseOrder, target Status, at time.Time) (PurchaseOrder, error) {
	if order.Status == StatusCancelled {
		return order, ErrInvalidOverride
	}
	out := order.Clone()
	switch target {
	case StatusCancelled:
		if anyReceived(out) {
			return order, ErrInvalidOverride
		}
		out.Status = StatusCancelled
		out.StatusOverridden = true
		return out, nil
	case StatusReceived:
		out.Status = StatusReceived
		out.StatusOverridden = true
		return out, nil
	case StatusApproved:
		if out.ApprovedAt == nil {
			approved := at
			out.ApprovedAt = &approved
		}
		out.Status = StatusApproved
	case StatusPending:
		out.ApprovedAt = nil
		out.Status = StatusPending
	default:
		return order, ErrInvalidOverride
	}
	out.StatusOverridden = false
	out.Status = DeriveStatus(out)
	return out, nil
}
