package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/cart-local/internal/domain"
	"github.com/fjod/go_cart/cart-local/pkg/logger"
)

// CartStore is the part of cart.Store the handlers use.
type CartStore interface {
	GetCart(ctx context.Context) []domain.LineItem
	AddItem(ctx context.Context, item domain.NewItem) bool
	UpdateQuantity(ctx context.Context, productID int64, quantity int) bool
	RemoveItem(ctx context.Context, productID int64) bool
	ClearCart(ctx context.Context) bool
	SyncWithServer(ctx context.Context) domain.SyncResult
}

// BadgeReader exposes the cart-count indicator.
type BadgeReader interface {
	Count() int
	Visible() bool
}

type CartHandler struct {
	store    CartStore
	badge    BadgeReader
	validate *validator.Validate
	log      *logger.Logger
	timeout  time.Duration
}

func NewCartHandler(store CartStore, badge BadgeReader, log *logger.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		store:    store,
		badge:    badge,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		timeout:  timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID   int64   `json:"productId" validate:"required,gt=0"`
	ProductName string  `json:"productName" validate:"max=255"`
	Price       float64 `json:"price" validate:"gte=0"`
	Discount    float64 `json:"discount" validate:"gte=0,lte=100"`
	ImageURL    string  `json:"imageUrl" validate:"max=2048"`
	Quantity    int     `json:"quantity" validate:"omitempty,gte=1,lte=99"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required,lte=99"`
}

type CartResponseDTO struct {
	Items      []domain.LineItem `json:"items"`
	TotalItems int               `json:"totalItems"`
	Total      float64           `json:"total"`
}

type BadgeResponseDTO struct {
	Count   int  `json:"count"`
	Visible bool `json:"visible"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.respondJSON(w, http.StatusOK, cartResponse(h.store.GetCart(ctx)))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	h.store.AddItem(ctx, domain.NewItem{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		Price:       req.Price,
		Discount:    req.Discount,
		ImageURL:    req.ImageURL,
		Quantity:    req.Quantity,
	})

	h.respondJSON(w, http.StatusCreated, cartResponse(h.store.GetCart(ctx)))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := h.productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	if !h.store.UpdateQuantity(ctx, productID, *req.Quantity) {
		h.respondError(w, http.StatusNotFound, "not_found", "product is not in the cart")
		return
	}

	h.respondJSON(w, http.StatusOK, cartResponse(h.store.GetCart(ctx)))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := h.productIDParam(w, r)
	if !ok {
		return
	}

	h.store.RemoveItem(ctx, productID)
	h.respondJSON(w, http.StatusOK, cartResponse(h.store.GetCart(ctx)))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.store.ClearCart(ctx)
	h.respondJSON(w, http.StatusOK, cartResponse(h.store.GetCart(ctx)))
}

func (h *CartHandler) Badge(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, BadgeResponseDTO{
		Count:   h.badge.Count(),
		Visible: h.badge.Visible(),
	})
}

// Sync is called by the login and registration success handlers once a session exists.
func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res := h.store.SyncWithServer(ctx)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	h.respondJSON(w, status, res)
}

func (h *CartHandler) productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

func cartResponse(items []domain.LineItem) CartResponseDTO {
	resp := CartResponseDTO{Items: items}
	total := decimal.Zero
	for _, item := range items {
		resp.TotalItems += item.Quantity
		total = total.Add(item.Subtotal())
	}
	resp.Total = total.InexactFloat64()
	return resp
}

func (h *CartHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error(context.Background(), err).Msg("failed to encode response")
	}
}

func (h *CartHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
