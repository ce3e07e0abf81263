package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

type memoryRepo struct {
	balances map[StockKey]Balance
	cards    map[StockKey][]StockCardEntry
	nextID   int64
	failCard bool
}

type memoryTx struct {
	repo     *memoryRepo
	balances map[StockKey]Balance
	cards    map[StockKey][]StockCardEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[StockKey]Balance), cards: make(map[StockKey][]StockCardEntry)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, balances: make(map[StockKey]Balance), cards: make(map[StockKey][]StockCardEntry)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, b := range tx.balances {
		r.balances[k] = b
	}
	for k, c := range tx.cards {
		r.cards[k] = append(r.cards[k], c...)
	}
	return nil
}

func (r *memoryRepo) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	return append([]StockCardEntry(nil), r.cards[filter.Key]...), nil
}

func (r *memoryRepo) ListBalances(ctx context.Context, location string, limit, offset int) ([]Balance, error) {
	var out []Balance
	for k, b := range r.balances {
		if location == "" || k.Location == location {
			out = append(out, b)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, _ Transaction) (int64, error) {
	tx.repo.nextID++
	return tx.repo.nextID, nil
}

func (tx *memoryTx) InsertTransactionLines(ctx context.Context, txID int64, lines []TransactionLine) error {
	return nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, key StockKey) (Balance, error) {
	if bal, ok := tx.balances[key]; ok {
		return bal, nil
	}
	if bal, ok := tx.repo.balances[key]; ok {
		return bal, nil
	}
	return Balance{Key: key}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.balances[balance.Key] = balance
	return nil
}

func (tx *memoryTx) InsertCardEntry(ctx context.Context, card StockCardEntry, key StockKey, txID int64) error {
	if tx.repo.failCard {
		return errors.New("card table unavailable")
	}
	tx.cards[key] = append(tx.cards[key], card)
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

var widgetA = StockKey{BrandName: "Acme", ModelNo: "X1", Location: "WH-A"}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestAverageMovingCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{})
	ctx := context.Background()

	entry, err := svc.PostInbound(ctx, MovementInput{Key: widgetA, Qty: dec("10"), UnitCost: dec("100000"), Note: "GRN#1"})
	require.NoError(t, err)
	require.True(t, entry.BalanceQty.Equal(dec("10")))
	require.True(t, entry.BalanceCost.Equal(dec("100000")))

	entry, err = svc.PostInbound(ctx, MovementInput{Key: widgetA, Qty: dec("5"), UnitCost: dec("120000"), Note: "GRN#2"})
	require.NoError(t, err)
	require.True(t, entry.BalanceQty.Equal(dec("15")))
	require.Equal(t, "106666.6667", entry.BalanceCost.String())

	entry, err = svc.PostOutbound(ctx, MovementInput{Key: widgetA, Qty: dec("8"), Note: "GRN#2 deleted"})
	require.NoError(t, err)
	require.True(t, entry.BalanceQty.Equal(dec("7")))
	require.True(t, entry.QtyOut.Equal(dec("8")))
	require.Equal(t, "106666.6667", entry.UnitCost.String())
	require.Equal(t, "106666.6667", entry.BalanceCost.String())

	entry, err = svc.PostAdjustment(ctx, AdjustmentInput{Key: widgetA, Qty: dec("-7"), Note: "write off"})
	require.NoError(t, err)
	require.True(t, entry.BalanceQty.IsZero())
	require.True(t, entry.BalanceCost.IsZero())

	cards, err := svc.GetStockCard(ctx, StockCardFilter{Key: StockKey{BrandName: " Acme ", ModelNo: "X1", Location: "WH-A"}})
	require.NoError(t, err)
	require.Len(t, cards, 4)
}

func TestNegativeStockGuard(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.PostAdjustment(ctx, AdjustmentInput{Key: widgetA, Qty: dec("-1"), Note: "negative"})
	require.ErrorIs(t, err, ErrNegativeStock)

	allow := NewService(repo, nil, nil, ServiceConfig{AllowNegativeStock: true})
	entry, err := allow.PostOutbound(ctx, MovementInput{Key: widgetA, Qty: dec("2")})
	require.NoError(t, err)
	require.True(t, entry.BalanceQty.Equal(dec("-2")))
}

func TestMovementInputChecks(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.PostInbound(ctx, MovementInput{Key: widgetA, Qty: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.PostInbound(ctx, MovementInput{Key: widgetA, Qty: dec("1"), UnitCost: dec("-1")})
	require.ErrorIs(t, err, ErrInvalidUnitCost)
	_, err = svc.PostInbound(ctx, MovementInput{Key: StockKey{BrandName: "Acme", ModelNo: "X1"}, Qty: dec("1")})
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = svc.PostInbound(ctx, MovementInput{Key: widgetA, Qty: dec("1"), RefID: "not-a-uuid"})
	require.Error(t, err)
	_, err = svc.GetStockCard(ctx, StockCardFilter{})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestMovementCodeIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := NewService(repo, nil, idem, ServiceConfig{})
	ctx := context.Background()
	in := MovementInput{Code: "GRN-1-1", Key: widgetA, Qty: dec("3"), UnitCost: dec("90"), RefID: uuid.NewString()}

	_, err := svc.PostInbound(ctx, in)
	require.NoError(t, err)
	_, err = svc.PostInbound(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.True(t, repo.balances[widgetA].Qty.Equal(dec("3")))

	repo.failCard = true
	in.Code = "GRN-2-1"
	_, err = svc.PostInbound(ctx, in)
	require.Error(t, err)
	require.Len(t, idem.keys, 1, "failed movement releases its key")
	require.True(t, repo.balances[widgetA].Qty.Equal(dec("3")))
}

func TestHandlerAdjustmentAndCard(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, ServiceConfig{})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)

	body := `{"brand_name": "Acme", "model_no": "X1", "location": "WH-A", "qty": "4", "unit_cost": "12.5"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/adjustments", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/adjustments", strings.NewReader(`{"brand_name": "Acme", "model_no": "X1", "location": "WH-A", "qty": "-9"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock-card?brand=Acme&model=X1&location=WH-A", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"balance_qty":"4"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock-card?brand=Acme", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/balances?location=WH-A", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"avg_cost":"12.5"`)
}
