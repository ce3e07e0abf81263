package vendors

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	vendors []Vendor
}

func (m *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Vendor, int, error) {
	var out []Vendor
	for _, v := range m.vendors {
		if filters.Search == "" || strings.Contains(strings.ToLower(v.Name), strings.ToLower(filters.Search)) {
			out = append(out, v)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Vendor, error) {
	for _, v := range m.vendors {
		if v.ID == id {
			return v, nil
		}
	}
	return Vendor{}, ErrNotFound
}

func (m *memoryRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := m.Get(ctx, id)
	return err == nil, nil
}

func (m *memoryRepo) Create(ctx context.Context, vendor Vendor) (Vendor, error) {
	for _, v := range m.vendors {
		if v.Code == vendor.Code {
			return Vendor{}, ErrDuplicate
		}
	}
	vendor.ID = int64(len(m.vendors) + 1)
	m.vendors = append(m.vendors, vendor)
	return vendor, nil
}

func TestServiceCreateAndExists(t *testing.T) {
	svc := NewService(&memoryRepo{})
	ctx := context.Background()

	v, err := svc.Create(ctx, Vendor{Code: " acme ", Name: "Acme Supplies"})
	require.NoError(t, err)
	require.Equal(t, "ACME", v.Code)

	ok, err := svc.Exists(ctx, v.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.Exists(ctx, 0)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.Create(ctx, Vendor{Code: "ACME", Name: "Other"})
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = svc.Create(ctx, Vendor{Code: "X", Name: " "})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Get(ctx, -1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestHandlerRoutes(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(&memoryRepo{}))
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code": "acme", "name": "Acme Supplies", "email": "ops@acme.test"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"ACME"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code": "b", "name": "B", "email": "nope"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code": "ACME", "name": "Again"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/9", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?search=acme", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1`)
}
