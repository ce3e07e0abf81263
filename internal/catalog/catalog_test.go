package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, ttl time.Duration) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(NewRedisStore(client), ttl), mr
}

func TestBrandsSeedDefaults(t *testing.T) {
	svc, _ := newTestService(t, 0)
	brands, err := svc.Brands(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Apple", "Dell", "LG", "Microsoft", "Samsung", "Sony"}, brands)
}

func TestNamesAreCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	name, err := svc.AddCategory(ctx, "  Power   Tools ")
	require.NoError(t, err)
	require.Equal(t, "Power Tools", name)
	_, err = svc.AddCategory(ctx, "POWER TOOLS")
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = svc.AddCategory(ctx, "   ")
	require.ErrorIs(t, err, ErrInvalidName)

	require.NoError(t, svc.RemoveCategory(ctx, "power tools"))
	require.ErrorIs(t, svc.RemoveCategory(ctx, "power tools"), ErrNotFound)
}

func TestModelsBelongToBrand(t *testing.T) {
	svc, mr := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.AddModel(ctx, "Acme", "X1")
	require.NoError(t, err)
	_, err = svc.AddModel(ctx, "ACME", "X2")
	require.NoError(t, err)

	models, err := svc.Models(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, []string{"X1", "X2"}, models)

	brands, err := svc.Brands(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Acme"}, brands, "an existing list is not reseeded")

	require.NoError(t, svc.RemoveModel(ctx, "Acme", "x1"))
	require.NoError(t, svc.RemoveBrand(ctx, "Acme"))
	require.False(t, mr.Exists(modelsKey("acme")))
	_, err = svc.Models(ctx, "Acme")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCacheServesUntilWriteOrExpiry(t *testing.T) {
	svc, mr := newTestService(t, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.AddCategory(ctx, "Cables")
	require.NoError(t, err)
	cats, err := svc.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Cables"}, cats)

	mr.HSet(categoriesKey, "fittings", "Fittings")
	cats, err = svc.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Cables"}, cats)

	now = now.Add(2 * time.Minute)
	cats, err = svc.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Cables", "Fittings"}, cats)

	_, err = svc.AddCategory(ctx, "Adhesives")
	require.NoError(t, err)
	cats, err = svc.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Adhesives", "Cables", "Fittings"}, cats)
}

func TestConcurrentReads(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			brands, err := svc.Brands(ctx)
			assert.NoError(t, err)
			assert.Len(t, brands, len(DefaultBrands))
		}()
	}
	wg.Wait()
}

func TestCancelledReaderDoesNotFailSharedRead(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)
	_, err := svc.AddCategory(context.Background(), "Cables")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.load(first, categoriesKey, func(ctx context.Context) error {
			close(entered)
			<-release
			return ctx.Err()
		})
		firstErr <- err
	}()
	<-entered
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		values []string
		err    error
	}
	second := make(chan result, 1)
	go func() {
		// joins the read in flight, or hits the cache it filled
		values, err := svc.load(context.Background(), categoriesKey, func(context.Context) error {
			return errors.New("second read")
		})
		second <- result{values, err}
	}()
	close(release)
	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, []string{"Cables"}, res.values)
}

func TestHandler(t *testing.T) {
	svc, _ := newTestService(t, 0)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/brands/Big%20Co/models", strings.NewReader(`{"name": "M 100"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brands/big%20co/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"items": ["M 100"]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name": ""}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/categories/none", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/brands/Big%20Co", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
