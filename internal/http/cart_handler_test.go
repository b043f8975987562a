package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/cart-local/internal/cart"
	"github.com/fjod/go_cart/cart-local/internal/domain"
	"github.com/fjod/go_cart/cart-local/internal/storage"
	"github.com/fjod/go_cart/cart-local/pkg/logger"
)

type syncerMock struct {
	m     sync.Mutex
	calls int
	err   error
}

func (s *syncerMock) Sync(context.Context, []domain.ServerItem) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.calls++
	return s.err
}

type rejection struct{}

func (rejection) Error() string   { return "status 401" }
func (rejection) Message() string { return "Usuario no autenticado" }

func setupRouter(t *testing.T, syncErr error) (http.Handler, *cart.Store, *syncerMock) {
	t.Helper()
	syncer := &syncerMock{err: syncErr}
	badge := &cart.Badge{}
	store := cart.NewStore(storage.NewMemoryStorage(), syncer, cart.WithBadge(badge))
	handler := NewCartHandler(store, badge, logger.Nop(), 5*time.Second)

	return NewRouter(RouterConfig{
		Cart:           handler,
		Log:            logger.Nop(),
		RequestTimeout: 5 * time.Second,
		MaxBodySize:    1 << 20,
	}), store, syncer
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponseDTO {
	t.Helper()
	var resp CartResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	h, _, _ := setupRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	h, _, _ := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestGetCart_Empty(t *testing.T) {
	h, _, _ := setupRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, 0, resp.TotalItems)
	assert.Equal(t, float64(0), resp.Total)
}

func TestAddItem_Success(t *testing.T) {
	h, store, _ := setupRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items",
		`{"productId":1,"productName":"Shirt","price":100,"discount":20,"imageUrl":"/s.png","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeCart(t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.TotalItems)
	assert.Equal(t, float64(160), resp.Total)
	assert.Equal(t, 2, store.TotalItems(context.Background()))
}

func TestAddItem_DefaultQuantity(t *testing.T) {
	h, store, _ := setupRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"productId":3,"price":10}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, store.TotalItems(context.Background()))
}

func TestAddItem_Validation(t *testing.T) {
	h, store, _ := setupRouter(t, nil)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{"productId":`, "invalid_request"},
		{"missing product", `{"price":10}`, "validation_failed"},
		{"negative price", `{"productId":1,"price":-1}`, "validation_failed"},
		{"discount too high", `{"productId":1,"price":1,"discount":120}`, "validation_failed"},
		{"negative quantity", `{"productId":1,"price":1,"quantity":-2}`, "validation_failed"},
		{"quantity too large", `{"productId":1,"price":1,"quantity":100}`, "validation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/cart/items", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
	assert.Equal(t, 0, store.TotalItems(context.Background()))
}

func TestAddItem_BodyTooLarge(t *testing.T) {
	syncer := &syncerMock{}
	badge := &cart.Badge{}
	store := cart.NewStore(storage.NewMemoryStorage(), syncer, cart.WithBadge(badge))
	h := NewRouter(RouterConfig{
		Cart:        NewCartHandler(store, badge, logger.Nop(), time.Second),
		Log:         logger.Nop(),
		MaxBodySize: 16,
	})

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"productId":1,"productName":"`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateQuantity(t *testing.T) {
	h, store, _ := setupRouter(t, nil)
	ctx := context.Background()
	store.AddItem(ctx, domain.NewItem{ProductID: 1, Price: 10, Quantity: 1})

	rec := do(t, h, http.MethodPut, "/api/v1/cart/items/1", `{"quantity":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decodeCart(t, rec).TotalItems)

	rec = do(t, h, http.MethodPut, "/api/v1/cart/items/1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Items)
}

func TestUpdateQuantity_Errors(t *testing.T) {
	h, _, _ := setupRouter(t, nil)

	rec := do(t, h, http.MethodPut, "/api/v1/cart/items/7", `{"quantity":2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/cart/items/abc", `{"quantity":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/cart/items/7", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/cart/items/7", `{"quantity":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveItem(t *testing.T) {
	h, store, _ := setupRouter(t, nil)
	ctx := context.Background()
	store.AddItem(ctx, domain.NewItem{ProductID: 1, Price: 10, Quantity: 1})
	store.AddItem(ctx, domain.NewItem{ProductID: 2, Price: 10, Quantity: 1})

	rec := do(t, h, http.MethodDelete, "/api/v1/cart/items/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(2), resp.Items[0].ProductID)

	rec = do(t, h, http.MethodDelete, "/api/v1/cart/items/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/cart/items/0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearCartAndBadge(t *testing.T) {
	h, store, _ := setupRouter(t, nil)
	store.AddItem(context.Background(), domain.NewItem{ProductID: 1, Price: 10, Quantity: 3})

	rec := do(t, h, http.MethodGet, "/api/v1/cart/badge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3,"visible":true}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Items)

	rec = do(t, h, http.MethodGet, "/api/v1/cart/badge", "")
	assert.JSONEq(t, `{"count":0,"visible":false}`, rec.Body.String())
}

func TestSync_Success(t *testing.T) {
	h, store, syncer := setupRouter(t, nil)
	store.AddItem(context.Background(), domain.NewItem{ProductID: 1, Price: 10, Quantity: 3})

	rec := do(t, h, http.MethodPost, "/api/v1/cart/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res domain.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, 1, syncer.calls)
	assert.Empty(t, store.GetCart(context.Background()))
}

func TestSync_Failure(t *testing.T) {
	h, store, _ := setupRouter(t, rejection{})
	store.AddItem(context.Background(), domain.NewItem{ProductID: 1, Price: 10, Quantity: 3})

	rec := do(t, h, http.MethodPost, "/api/v1/cart/sync", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Usuario no autenticado"}`, rec.Body.String())
	assert.Equal(t, 3, store.TotalItems(context.Background()))
}

func TestSync_EmptyCart(t *testing.T) {
	h, _, syncer := setupRouter(t, errors.New("must not be called"))

	rec := do(t, h, http.MethodPost, "/api/v1/cart/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, syncer.calls)
}

func TestMetricsMounted(t *testing.T) {
	syncer := &syncerMock{}
	badge := &cart.Badge{}
	store := cart.NewStore(storage.NewMemoryStorage(), syncer)
	h := NewRouter(RouterConfig{
		Cart: NewCartHandler(store, badge, logger.Nop(), time.Second),
		Log:  logger.Nop(),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}),
	})

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}
