package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeRemaining(t *testing.T) {
	got := ComputeRemaining(OrderLine{OrderedQuantity: dec("10"), ReceivedQuantity: dec("4")})
	require.True(t, got.AlreadyReceived.Equal(dec("4")))
	require.True(t, got.Remaining.Equal(dec("6")))

	over := ComputeRemaining(OrderLine{OrderedQuantity: dec("10"), ReceivedQuantity: dec("12")})
	require.True(t, over.Remaining.IsZero())
	require.True(t, over.AlreadyReceived.Equal(dec("12")))

	untouched := ComputeRemaining(OrderLine{OrderedQuantity: dec("2.5")})
	require.True(t, untouched.AlreadyReceived.IsZero())
	require.True(t, untouched.Remaining.Equal(dec("2.5")))
}

func TestIsOrderFullyReceived(t *testing.T) {
	require.False(t, IsOrderFullyReceived(PurchaseOrder{}))
	require.False(t, IsOrderFullyReceived(PurchaseOrder{Status: StatusReceived}))

	order := PurchaseOrder{Lines: []OrderLine{
		{BrandName: "A", ModelNo: "1", OrderedQuantity: dec("5"), ReceivedQuantity: dec("5")},
		{BrandName: "A", ModelNo: "2", OrderedQuantity: dec("3"), ReceivedQuantity: dec("1")},
	}}
	require.False(t, IsOrderFullyReceived(order))

	order.Status = StatusReceived
	require.False(t, IsOrderFullyReceived(order), "stored status alone does not close an order")

	order.StatusOverridden = true
	require.True(t, IsOrderFullyReceived(order))

	order.StatusOverridden = false
	order.Lines[1].ReceivedQuantity = dec("3")
	require.True(t, IsOrderFullyReceived(order))
}

func TestMatchLineFirstWins(t *testing.T) {
	lines := []OrderLine{
		{BrandName: "A", ModelNo: "1"},
		{BrandName: "B", ModelNo: "1"},
		{BrandName: "A", ModelNo: "1"},
	}
	idx, ok := MatchLine(lines, "A", "1")
	require.True(t, ok)
	require.Equal(t, 0, idx)

	idx, ok = MatchLine(lines, "B", "1")
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = MatchLine(lines, "a", "1")
	require.False(t, ok)

	require.Equal(t, []LineKey{{BrandName: "A", ModelNo: "1"}}, DuplicateLineKeys(lines))
	require.Empty(t, DuplicateLineKeys(lines[:2]))
}

func TestCheckConsistency(t *testing.T) {
	clean := PurchaseOrder{Status: StatusPartiallyReceived, Lines: []OrderLine{
		{BrandName: "A", ModelNo: "1", OrderedQuantity: dec("5"), ReceivedQuantity: dec("2")},
	}}
	require.Empty(t, CheckConsistency(clean))

	broken := PurchaseOrder{Status: StatusApproved, Lines: []OrderLine{
		{BrandName: "A", ModelNo: "1", OrderedQuantity: dec("5"), ReceivedQuantity: dec("7")},
		{BrandName: "A", ModelNo: "1", OrderedQuantity: dec("2"), ReceivedQuantity: dec("-1")},
	}}
	issues := CheckConsistency(broken)
	require.Len(t, issues, 4)
	for _, issue := range issues {
		require.Equal(t, KindDataConsistency, issue.Kind)
	}
	require.Equal(t, 1, issues[0].Line)
	require.Contains(t, issues[0].Message, "received 7 exceeds ordered 5")
	require.Equal(t, 2, issues[1].Line)
	require.Contains(t, issues[1].Message, "negative")
	require.Contains(t, issues[2].Message, "duplicate line A/1")
	require.Contains(t, issues[3].Message, "stored status Approved differs from derived PartiallyReceived")
}
