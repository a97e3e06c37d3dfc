package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/rocketshoes-cart/internal/api/middleware"
	"github.com/example/rocketshoes-cart/internal/domain/cart"
	"github.com/example/rocketshoes-cart/internal/domain/catalog"
	"github.com/example/rocketshoes-cart/internal/format"
)

type Handlers struct {
	registry *cart.Registry
	catalog  *catalog.Catalog
	logger   *zap.Logger
}

func NewHandlers(registry *cart.Registry, catalog *catalog.Catalog, logger *zap.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		catalog:  catalog,
		logger:   logger,
	}
}

type cartItemResponse struct {
	cart.CartItem
	FormattedPrice    string          `json:"formattedPrice"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	FormattedSubtotal string          `json:"formattedSubtotal"`
}

type cartResponse struct {
	Items          []cartItemResponse `json:"items"`
	Total          decimal.Decimal    `json:"total"`
	FormattedTotal string             `json:"formattedTotal"`
}

type operationResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Cart    cartResponse `json:"cart"`
}

type addItemRequest struct {
	ProductID int `json:"product_id"`
}

type updateAmountRequest struct {
	Amount int `json:"amount"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetProducts lists the catalog with each product's amount in the
// shopper's cart.
func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	holder := h.registry.ForUser(r.Context(), shopperID(r))
	entries := h.catalog.Entries(holder.Cart().AmountsByProduct())
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	holder := h.registry.ForUser(r.Context(), shopperID(r))
	respondJSON(w, http.StatusOK, toCartResponse(holder.Cart()))
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := readJSON(w, r, &req); err != nil {
		h.logger.Debug("rejected add to cart", zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	holder := h.registry.ForUser(r.Context(), shopperID(r))
	respondResult(w, holder.AddProduct(r.Context(), req.ProductID))
}

func (h *Handlers) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	productID, err := productIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateAmountRequest
	if err := readJSON(w, r, &req); err != nil {
		h.logger.Debug("rejected amount update", zap.Int("product_id", productID), zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	holder := h.registry.ForUser(r.Context(), shopperID(r))
	respondResult(w, holder.UpdateProductAmount(r.Context(), cart.AmountUpdate{
		ProductID: productID,
		Amount:    req.Amount,
	}))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	productID, err := productIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	holder := h.registry.ForUser(r.Context(), shopperID(r))
	respondResult(w, holder.RemoveProduct(r.Context(), productID))
}

// Helper functions

func toCartResponse(c cart.Cart) cartResponse {
	items := c.Items()
	out := make([]cartItemResponse, len(items))
	for i, item := range items {
		subtotal := item.Subtotal()
		out[i] = cartItemResponse{
			CartItem:          item,
			FormattedPrice:    format.PriceFloat(item.Price),
			Subtotal:          subtotal,
			FormattedSubtotal: format.Price(subtotal),
		}
	}
	total := c.Total()
	return cartResponse{
		Items:          out,
		Total:          total,
		FormattedTotal: format.Price(total),
	}
}

func statusCode(s cart.Status) int {
	switch s {
	case cart.StatusOK:
		return http.StatusOK
	case cart.StatusInsufficientStock:
		return http.StatusConflict
	case cart.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func respondResult(w http.ResponseWriter, result cart.Result) {
	respondJSON(w, statusCode(result.Status), operationResponse{
		Status:  result.Status.String(),
		Message: result.Message,
		Cart:    toCartResponse(result.Cart),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes a single JSON value of at most 1MB from the request body.
func readJSON(w http.ResponseWriter, r *http.Request, data any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must have only a single JSON value")
	}
	return nil
}

func productIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid product id")
	}
	return id, nil
}

func shopperID(r *http.Request) string {
	return middleware.GetShopperID(r.Context())
}
