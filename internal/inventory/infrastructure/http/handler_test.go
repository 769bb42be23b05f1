package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/foodshare/internal/inventory/application"
	"github.com/dmehra2102/foodshare/internal/inventory/domain"
	"github.com/dmehra2102/foodshare/internal/order/infrastructure/memory"
)

func newRoutes(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	store.SetStock("rice", 40)
	store.SetStock("beans", 7)
	store.SetStock("milk", 2)
	return NewHandler(log, application.NewService(log, store, 10)).Routes(), store
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestDonate(t *testing.T) {
	h, store := newRoutes(t)

	rec := serve(h, http.MethodPost, "/donations", `{"item_name":" beans ","quantity":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var d domain.Donation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, domain.AnonymousDonor, d.DonorID)
	assert.Equal(t, 12, store.Quantity("beans"))

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/donations", `{"item_name":"beans","quantity":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/donations", `nope`).Code)
}

func TestLowStock(t *testing.T) {
	h, _ := newRoutes(t)

	rec := serve(h, http.MethodGet, "/inventory/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []domain.LowStockItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "milk", items[0].Name)
	assert.Equal(t, domain.LevelCritical, items[0].Level)
	assert.Equal(t, domain.LevelLow, items[1].Level)

	rec = serve(h, http.MethodGet, "/inventory/low-stock?threshold=50", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 3)

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/inventory/low-stock?threshold=x", "").Code)
}

func TestGetAndList(t *testing.T) {
	h, _ := newRoutes(t)

	rec := serve(h, http.MethodGet, "/inventory/rice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var it domain.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &it))
	assert.Equal(t, 40, it.Quantity)

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/inventory/caviar", "").Code)

	rec = serve(h, http.MethodGet, "/inventory", "")
	var all []domain.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 3)
	assert.Equal(t, "beans", all[0].Name)
}
