package procurement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/fulfillment"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type memoryRepo struct {
	mu     sync.Mutex
	pos    map[int64]PurchaseOrder
	grns   map[int64]GoodsReceipt
	nextID int64
	// beforeSave runs inside SavePO before the version check.
	beforeSave func(*memoryRepo, int64)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{pos: make(map[int64]PurchaseOrder), grns: make(map[int64]GoodsReceipt)}
}

type memoryTx struct {
	repo *memoryRepo
	pos  map[int64]PurchaseOrder
	grns map[int64]GoodsReceipt
	del  []int64
}

func clonePO(po PurchaseOrder) PurchaseOrder {
	po.PurchaseOrder = po.PurchaseOrder.Clone()
	return po
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, pos: make(map[int64]PurchaseOrder), grns: make(map[int64]GoodsReceipt)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, po := range tx.pos {
		r.pos[id] = po
	}
	for id, grn := range tx.grns {
		r.grns[id] = grn
	}
	for _, id := range tx.del {
		delete(r.grns, id)
	}
	return nil
}

func (r *memoryRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return clonePO(po), nil
}

func (r *memoryRepo) GetGRN(ctx context.Context, id int64) (GoodsReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grn, ok := r.grns[id]
	if !ok {
		return GoodsReceipt{}, ErrNotFound
	}
	return grn, nil
}

func (r *memoryRepo) ListPOs(ctx context.Context, limit, offset int, filters ListFilters) ([]POListItem, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []POListItem
	for _, po := range r.pos {
		if filters.Incomplete && po.Status == fulfillment.StatusReceived {
			continue
		}
		if filters.Status != "" && string(po.Status) != filters.Status {
			continue
		}
		items = append(items, POListItem{ID: po.ID, Number: po.Number, VendorID: po.VendorID, Status: po.Status, GrandTotal: po.Totals.GrandTotal})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (r *memoryRepo) ListGRNs(ctx context.Context, limit, offset int, filters ListFilters) ([]GRNListItem, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []GRNListItem
	for _, grn := range r.grns {
		items = append(items, GRNListItem{ID: grn.ID, Number: grn.Number, Mode: grn.Mode, PurchaseOrderID: grn.PurchaseOrderID, VendorID: grn.VendorID})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (r *memoryRepo) ListReconcileCandidates(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, po := range r.pos {
		if po.Status != fulfillment.StatusCancelled {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (tx *memoryTx) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	tx.repo.mu.Lock()
	tx.repo.nextID++
	id := tx.repo.nextID
	tx.repo.mu.Unlock()
	po.ID = id
	po.CreatedAt = testNow
	tx.pos[id] = clonePO(po)
	return id, nil
}

func (tx *memoryTx) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	if po, ok := tx.pos[id]; ok {
		return clonePO(po), nil
	}
	return tx.repo.GetPO(ctx, id)
}

func (tx *memoryTx) SavePO(ctx context.Context, po PurchaseOrder) error {
	if tx.repo.beforeSave != nil {
		tx.repo.beforeSave(tx.repo, po.ID)
	}
	tx.repo.mu.Lock()
	stored, ok := tx.repo.pos[po.ID]
	tx.repo.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if stored.Version != po.Version {
		return ErrConcurrentUpdate
	}
	po.Version++
	tx.pos[po.ID] = clonePO(po)
	return nil
}

// grnRowError mirrors the goods_receipts and grn_lines CHECK constraints.
func grnRowError(grn GoodsReceipt) error {
	if !grn.Mode.IsValid() {
		return fmt.Errorf("goods_receipts: mode %q violates check", grn.Mode)
	}
	if (grn.Mode == fulfillment.ModeAgainstPO) != (grn.PurchaseOrderID != 0) {
		return errors.New("goods_receipts: mode and po_id disagree")
	}
	for i, line := range grn.Lines {
		if line.Quantity.IsNegative() {
			return fmt.Errorf("grn_lines: line %d qty violates check", i+1)
		}
	}
	return nil
}

func (tx *memoryTx) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	if err := grnRowError(grn); err != nil {
		return 0, err
	}
	tx.repo.mu.Lock()
	tx.repo.nextID++
	id := tx.repo.nextID
	tx.repo.mu.Unlock()
	grn.ID = id
	tx.grns[id] = grn
	return id, nil
}

func (tx *memoryTx) DeleteGRN(ctx context.Context, id int64) error {
	if _, err := tx.repo.GetGRN(ctx, id); err != nil {
		return err
	}
	tx.del = append(tx.del, id)
	return nil
}

type stubVendors struct {
	known map[int64]bool
}

func (s stubVendors) Exists(ctx context.Context, id int64) (bool, error) {
	return s.known[id], nil
}

type stubInventory struct {
	mu       sync.Mutex
	inbound  []inventory.MovementInput
	outbound []inventory.MovementInput
}

func (s *stubInventory) PostInbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = append(s.inbound, input)
	return inventory.StockCardEntry{TxCode: input.Code}, nil
}

func (s *stubInventory) PostOutbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbound = append(s.outbound, input)
	return inventory.StockCardEntry{TxCode: input.Code}, nil
}

type stubAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (s *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func (s *stubAudit) Trail(_ context.Context, entity, entityID string, limit int) ([]shared.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []shared.AuditLog{}
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.logs[i].Entity == entity && s.logs[i].EntityID == entityID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

func (s *stubAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l.Action)
	}
	return out
}

type stubIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (s *stubIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]string)
	}
	if _, ok := s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = module
	return nil
}

func (s *stubIdempotency) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

type stubEvents struct {
	events []ReceiptAppliedEvent
}

func (s *stubEvents) PublishReceiptApplied(ctx context.Context, evt ReceiptAppliedEvent) error {
	s.events = append(s.events, evt)
	return nil
}

type stubMetrics struct {
	receipts    map[string]int
	transitions map[string]int
}

func (s *stubMetrics) ObserveReceipt(mode, result string) {
	if s.receipts == nil {
		s.receipts = make(map[string]int)
	}
	s.receipts[mode+"/"+result]++
}

func (s *stubMetrics) ObserveStatusTransition(from, to string) {
	if s.transitions == nil {
		s.transitions = make(map[string]int)
	}
	s.transitions[from+"->"+to]++
}

type fixture struct {
	svc         *Service
	repo        *memoryRepo
	locker      *shared.RedisLocker
	inventory   *stubInventory
	audit       *stubAudit
	idempotency *stubIdempotency
	events      *stubEvents
	metrics     *stubMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		repo:        newMemoryRepo(),
		locker:      shared.NewRedisLocker(client, time.Second),
		inventory:   &stubInventory{},
		audit:       &stubAudit{},
		idempotency: &stubIdempotency{},
		events:      &stubEvents{},
		metrics:     &stubMetrics{},
	}
	f.svc = NewService(f.repo, ServiceDeps{
		Vendors:     stubVendors{known: map[int64]bool{42: true, 43: true}},
		Inventory:   f.inventory,
		Locker:      f.locker,
		Audit:       f.audit,
		Trail:       f.audit,
		Idempotency: f.idempotency,
		Events:      f.events,
		Metrics:     f.metrics,
		Clock:       func() time.Time { return testNow },
	})
	return f
}

func stockOrderInput() OrderInput {
	return OrderInput{
		VendorID: 42,
		Sourcing: fulfillment.Sourcing{TransactionType: "Local", PurchaseType: fulfillment.PurchaseTypeStock, WarehouseLocation: "WH-A"},
		PaymentTerms: fulfillment.PaymentTerms{
			AdvancePercent:         dec("30"),
			AgainstDeliveryPercent: dec("60"),
		},
		Lines: []OrderLineInput{{
			BrandName:       "Acme",
			ModelNo:         "X1",
			Unit:            "pcs",
			Quantity:        dec("10"),
			Price:           dec("100"),
			DiscountPercent: dec("10"),
			TaxPercent:      dec("18"),
		}},
		ActorID: 5,
	}
}

func (f *fixture) approvedOrder(t *testing.T) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := f.svc.CreatePurchaseOrder(ctx, stockOrderInput())
	require.NoError(t, err)
	po, err = f.svc.ApprovePurchaseOrder(ctx, po.ID, 5)
	require.NoError(t, err)
	return po
}

func againstPO(po PurchaseOrder, qty string) ReceiptInput {
	return ReceiptInput{
		Mode:            fulfillment.ModeAgainstPO,
		PurchaseOrderID: po.ID,
		VendorID:        po.VendorID,
		Lines:           []ReceiptLineInput{{BrandName: "Acme", ModelNo: "X1", Quantity: dec(qty)}},
		ActorID:         5,
	}
}

func TestCreatePurchaseOrder(t *testing.T) {
	f := newFixture(t)
	po, err := f.svc.CreatePurchaseOrder(context.Background(), stockOrderInput())
	require.NoError(t, err)

	require.NotZero(t, po.ID)
	require.Regexp(t, `^PO-[0-9A-F]{8}$`, po.Number)
	require.Equal(t, fulfillment.StatusPending, po.Status)
	require.Equal(t, int64(1), po.Version)
	require.True(t, po.Totals.Amount.Equal(dec("900")))
	require.True(t, po.Totals.Tax.Equal(dec("162")))
	require.True(t, po.Totals.GrandTotal.Equal(dec("1062")))
	require.True(t, po.OrderDate.Equal(testNow))
	require.True(t, po.Lines[0].ReceivedQuantity.IsZero())
	require.Equal(t, []string{"PO_CREATE"}, f.audit.actions())
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*OrderInput)
		want   string
	}{
		{"no vendor", func(in *OrderInput) { in.VendorID = 0 }, "select a vendor"},
		{"unknown vendor", func(in *OrderInput) { in.VendorID = 99 }, "vendor 99 not found"},
		{"stock without warehouse", func(in *OrderInput) { in.Sourcing.WarehouseLocation = "" }, "enter a warehouse location"},
		{"no lines", func(in *OrderInput) { in.Lines = nil }, "add at least one item"},
		{"missing model", func(in *OrderInput) { in.Lines[0].ModelNo = " " }, "line 1: brand name and model number are required"},
		{"zero quantity", func(in *OrderInput) { in.Lines[0].Quantity = decimal.Zero }, "line 1: quantity must be at least 1"},
		{"discount over 100", func(in *OrderInput) { in.Lines[0].DiscountPercent = dec("120") }, "line 1"},
		{"discount finer than storage", func(in *OrderInput) { in.Lines[0].DiscountPercent = dec("12.345") }, "line 1: fulfillment: invalid amount: discount 12.345% has more than 2 decimal places"},
		{"milestones over 100", func(in *OrderInput) { in.PaymentTerms.AfterCompletionPercent = dec("20") }, "payment milestones add up to 110%"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			in := stockOrderInput()
			tc.mutate(&in)
			_, err := f.svc.CreatePurchaseOrder(context.Background(), in)
			require.ErrorIs(t, err, ErrValidation)
			require.Contains(t, err.Error(), tc.want)
			require.Empty(t, f.repo.pos)
		})
	}
}

func TestReceiptFlowAgainstOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)
	require.Equal(t, fulfillment.StatusApproved, po.Status)

	first, err := f.svc.CreateGoodsReceipt(ctx, againstPO(po, "4"))
	require.NoError(t, err)
	require.Regexp(t, `^GRN-`, first.Number)
	require.True(t, first.Totals.GrandTotal.Equal(dec("424.8")))
	stored, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusPartiallyReceived, stored.Status)
	require.True(t, stored.Lines[0].ReceivedQuantity.Equal(dec("4")))

	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "7"))
	var rejected *ReceiptRejectedError
	require.ErrorAs(t, err, &rejected)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, rejected.Result.Errors[0].Message, "remaining 6")
	unchanged, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.True(t, unchanged.Lines[0].ReceivedQuantity.Equal(dec("4")))
	require.Equal(t, stored.Version, unchanged.Version)

	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "6"))
	require.NoError(t, err)
	done, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusReceived, done.Status)

	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "1"))
	require.ErrorIs(t, err, ErrPrecondition)
	require.ErrorAs(t, err, &rejected)
	require.Contains(t, rejected.Result.Errors[0].Message, "already fully received")

	incomplete, _, err := f.svc.ListPOs(ctx, 20, 0, ListFilters{Incomplete: true})
	require.NoError(t, err)
	require.Empty(t, incomplete)

	require.Equal(t, 2, f.metrics.receipts["AgainstPO/accepted"])
	require.Equal(t, 2, f.metrics.receipts["AgainstPO/rejected"])
	require.Equal(t, 1, f.metrics.transitions["Approved->PartiallyReceived"])
	require.Equal(t, 1, f.metrics.transitions["PartiallyReceived->Received"])
	require.Len(t, f.events.events, 2)
	require.Equal(t, "Received", f.events.events[1].Status)
}

func TestReceiptPricingComesFromOrder(t *testing.T) {
	f := newFixture(t)
	po := f.approvedOrder(t)

	in := againstPO(po, "2")
	in.Lines[0].Price = dec("1")
	in.Lines[0].TaxPercent = dec("0")
	grn, err := f.svc.CreateGoodsReceipt(context.Background(), in)
	require.NoError(t, err)
	require.True(t, grn.Lines[0].Price.Equal(dec("100")))
	require.True(t, grn.Lines[0].NetValue().Equal(dec("212.4")))
	require.Equal(t, po.Sourcing, grn.Sourcing)
}

func TestStockReceiptPostsInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	grn, err := f.svc.CreateGoodsReceipt(ctx, againstPO(po, "4"))
	require.NoError(t, err)
	require.Len(t, f.inventory.inbound, 1)
	move := f.inventory.inbound[0]
	require.Equal(t, grn.Number+"-1", move.Code)
	require.Equal(t, inventory.StockKey{BrandName: "Acme", ModelNo: "X1", Location: "WH-A"}, move.Key)
	require.True(t, move.Qty.Equal(dec("4")))
	require.True(t, move.UnitCost.Equal(dec("90")))
	require.Equal(t, "PROCUREMENT", move.RefModule)
}

func TestDeleteGoodsReceiptReversesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	grn, err := f.svc.CreateGoodsReceipt(ctx, againstPO(po, "10"))
	require.NoError(t, err)
	received, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusReceived, received.Status)

	require.NoError(t, f.svc.DeleteGoodsReceipt(ctx, grn.ID, 5))
	reverted, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusApproved, reverted.Status)
	require.True(t, reverted.Lines[0].ReceivedQuantity.IsZero())

	_, err = f.svc.GetGoodsReceipt(ctx, grn.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, f.inventory.outbound, 1)
	require.Equal(t, grn.Number+"-1-REV", f.inventory.outbound[0].Code)
	require.Contains(t, f.audit.actions(), "GRN_DELETE")

	require.ErrorIs(t, f.svc.DeleteGoodsReceipt(ctx, grn.ID, 5), ErrNotFound)
}

func TestCreateGoodsReceiptIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	bad := againstPO(po, "11")
	bad.IdempotencyKey = "grn-1"
	_, err := f.svc.CreateGoodsReceipt(ctx, bad)
	require.ErrorIs(t, err, ErrValidation)
	require.NotContains(t, f.idempotency.keys, "grn-1")

	good := againstPO(po, "3")
	good.IdempotencyKey = "grn-1"
	_, err = f.svc.CreateGoodsReceipt(ctx, good)
	require.NoError(t, err)
	require.Equal(t, "procurement.grn", f.idempotency.keys["grn-1"])

	_, err = f.svc.CreateGoodsReceipt(ctx, good)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	stored, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.True(t, stored.Lines[0].ReceivedQuantity.Equal(dec("3")))
}

func TestLockedOrderRefusesWriters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	lease, err := f.locker.Acquire(ctx, shared.PurchaseOrderLockKey(po.ID))
	require.NoError(t, err)

	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "1"))
	require.ErrorIs(t, err, ErrLocked)
	_, err = f.svc.CancelPurchaseOrder(ctx, po.ID, 5)
	require.ErrorIs(t, err, ErrLocked)
	require.Equal(t, 1, f.metrics.receipts["AgainstPO/error"])

	require.NoError(t, lease.Release(ctx))
	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "1"))
	require.NoError(t, err)
}

func TestConcurrentUpdateIsDetected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	f.repo.beforeSave = func(r *memoryRepo, id int64) {
		r.mu.Lock()
		defer r.mu.Unlock()
		stored := r.pos[id]
		stored.Version++
		r.pos[id] = stored
	}
	_, err := f.svc.CreateGoodsReceipt(ctx, againstPO(po, "2"))
	require.ErrorIs(t, err, ErrConcurrentUpdate)

	f.repo.beforeSave = nil
	grns, total, err := f.svc.ListGRNs(ctx, 20, 0, ListFilters{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, grns)
}

func TestUpdatePurchaseOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	in := stockOrderInput()
	in.Lines[0].Quantity = dec("12")
	updated, err := f.svc.UpdatePurchaseOrder(ctx, po.ID, in)
	require.NoError(t, err)
	require.Equal(t, po.Number, updated.Number)
	require.Equal(t, fulfillment.StatusApproved, updated.Status)
	require.Equal(t, po.Version+1, updated.Version)
	require.True(t, updated.Totals.GrandTotal.Equal(dec("1274.4")))

	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "1"))
	require.NoError(t, err)
	_, err = f.svc.UpdatePurchaseOrder(ctx, po.ID, in)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStatusOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po, err := f.svc.CreatePurchaseOrder(ctx, stockOrderInput())
	require.NoError(t, err)
	_, err = f.svc.OverrideStatus(ctx, po.ID, fulfillment.Status("Closed"), 5)
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.OverrideStatus(ctx, po.ID, fulfillment.StatusPartiallyReceived, 5)
	require.ErrorIs(t, err, ErrInvalidState)

	approved, err := f.svc.ApprovePurchaseOrder(ctx, po.ID, 5)
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAt)
	_, err = f.svc.ApprovePurchaseOrder(ctx, po.ID, 5)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "2"))
	require.NoError(t, err)
	_, err = f.svc.CancelPurchaseOrder(ctx, po.ID, 5)
	require.ErrorIs(t, err, ErrInvalidState)

	closed, err := f.svc.OverrideStatus(ctx, po.ID, fulfillment.StatusReceived, 5)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusReceived, closed.Status)
	require.True(t, closed.StatusOverridden)

	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "1"))
	require.ErrorIs(t, err, ErrPrecondition)
	_, err = f.svc.DraftReceipt(ctx, po.ID)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Equal(t, 1, f.metrics.transitions["PartiallyReceived->Received"])
}

func TestCancelledOrderRejectsReceipts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	cancelled, err := f.svc.CancelPurchaseOrder(ctx, po.ID, 5)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusCancelled, cancelled.Status)

	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "1"))
	require.ErrorIs(t, err, ErrPrecondition)
	_, err = f.svc.ApprovePurchaseOrder(ctx, po.ID, 5)
	require.ErrorIs(t, err, ErrInvalidState)

	ids, err := f.svc.ReconcileCandidates(ctx)
	require.NoError(t, err)
	require.NotContains(t, ids, po.ID)
}

func TestRemainingAndDraftReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)
	_, err := f.svc.CreateGoodsReceipt(ctx, againstPO(po, "4"))
	require.NoError(t, err)

	lines, err := f.svc.Remaining(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 1, lines[0].Line)
	require.True(t, lines[0].AlreadyReceived.Equal(dec("4")))
	require.True(t, lines[0].Remaining.Equal(dec("6")))

	draft, err := f.svc.DraftReceipt(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.ModeAgainstPO, draft.Mode)
	require.True(t, draft.Lines[0].Quantity.Equal(dec("6")))

	_, err = f.svc.Remaining(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDirectMaterialReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := ReceiptInput{
		Mode:     fulfillment.ModeDirectMaterial,
		VendorID: 99,
		Sourcing: fulfillment.Sourcing{TransactionType: "Local", PurchaseType: "Consumable"},
		Lines: []ReceiptLineInput{{
			BrandName: "Bolt",
			ModelNo:   "M8",
			Quantity:  dec("50"),
			Price:     dec("2"),
		}},
	}

	_, err := f.svc.CreateGoodsReceipt(ctx, in)
	var rejected *ReceiptRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "vendor 99 not found", rejected.Result.Errors[0].Message)

	in.VendorID = 43
	grn, err := f.svc.CreateGoodsReceipt(ctx, in)
	require.NoError(t, err)
	require.Zero(t, grn.PurchaseOrderID)
	require.True(t, grn.Totals.GrandTotal.Equal(dec("100")))
	require.Empty(t, f.events.events)
	require.Empty(t, f.inventory.inbound)
	require.Equal(t, 1, f.metrics.receipts["DirectMaterial/accepted"])

	require.NoError(t, f.svc.DeleteGoodsReceipt(ctx, grn.ID, 5))
	require.Empty(t, f.inventory.outbound)
}

func TestDirectMaterialReceiptCannotNameOrder(t *testing.T) {
	f := newFixture(t)
	po := f.approvedOrder(t)
	in := ReceiptInput{
		Mode:            fulfillment.ModeDirectMaterial,
		PurchaseOrderID: po.ID,
		VendorID:        42,
		Sourcing:        fulfillment.Sourcing{TransactionType: "Local", PurchaseType: "Consumable"},
		Lines:           []ReceiptLineInput{{BrandName: "Bolt", ModelNo: "M8", Quantity: dec("5"), Price: dec("2")}},
	}

	_, err := f.svc.CreateGoodsReceipt(context.Background(), in)
	var rejected *ReceiptRejectedError
	require.ErrorAs(t, err, &rejected)
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, "direct material receipts cannot reference a purchase order", rejected.Result.Errors[0].Message)
	require.Empty(t, f.repo.grns)
}

func TestSubmittingDraftWithFinishedLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := stockOrderInput()
	in.Lines = append(in.Lines, OrderLineInput{BrandName: "Acme", ModelNo: "X2", Quantity: dec("5"), Price: dec("40")})
	po, err := f.svc.CreatePurchaseOrder(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.CreateGoodsReceipt(ctx, againstPO(po, "10"))
	require.NoError(t, err)

	draft, err := f.svc.DraftReceipt(ctx, po.ID)
	require.NoError(t, err)
	submit := ReceiptInput{Mode: draft.Mode, PurchaseOrderID: draft.PurchaseOrderID, VendorID: draft.VendorID, ActorID: 5}
	for _, line := range draft.Lines {
		submit.Lines = append(submit.Lines, ReceiptLineInput{BrandName: line.BrandName, ModelNo: line.ModelNo, Quantity: line.Quantity})
	}
	require.True(t, submit.Lines[0].Quantity.IsZero())

	grn, err := f.svc.CreateGoodsReceipt(ctx, submit)
	require.NoError(t, err)
	require.Len(t, grn.Lines, 2)

	done, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusReceived, done.Status)
	require.Len(t, f.inventory.inbound, 2, "zero lines post no stock")
}

func TestValidateGoodsReceiptIsDryRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	result, err := f.svc.ValidateGoodsReceipt(ctx, againstPO(po, "11"))
	require.NoError(t, err)
	require.False(t, result.OK)

	result, err = f.svc.ValidateGoodsReceipt(ctx, againstPO(po, "10"))
	require.NoError(t, err)
	require.True(t, result.OK, result.String())

	stored, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.True(t, stored.Lines[0].ReceivedQuantity.IsZero())
	require.Empty(t, f.repo.grns)
}

func TestCheckOrderFlagsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approvedOrder(t)

	f.repo.mu.Lock()
	stored := f.repo.pos[po.ID]
	stored.Lines[0].ReceivedQuantity = dec("12")
	f.repo.pos[po.ID] = stored
	f.repo.mu.Unlock()

	_, issues, err := f.svc.CheckOrder(ctx, po.ID)
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	for _, issue := range issues {
		require.Equal(t, fulfillment.KindDataConsistency, issue.Kind)
	}

	_, _, err = f.svc.CheckOrder(ctx, 999)
	require.True(t, errors.Is(err, ErrNotFound))
}
