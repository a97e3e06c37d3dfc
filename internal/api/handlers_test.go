package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/rocketshoes-cart/internal/api/middleware"
	"github.com/example/rocketshoes-cart/internal/auth"
	"github.com/example/rocketshoes-cart/internal/domain/cart"
	"github.com/example/rocketshoes-cart/internal/domain/catalog"
	"github.com/example/rocketshoes-cart/internal/domain/product"
	"github.com/example/rocketshoes-cart/internal/infrastructure/store/mocks"
)

// ============================================
// Test Helpers
// ============================================

type fakeProductAPI struct {
	mu       sync.Mutex
	products map[int]product.Product
	stock    map[int]int
	stockErr error
}

func newFakeProductAPI() *fakeProductAPI {
	return &fakeProductAPI{
		products: map[int]product.Product{
			1: {ID: 1, Title: "Tênis de Caminhada Leve Confortável", Price: 179.9, Image: "1.jpg"},
			2: {ID: 2, Title: "Tênis VR Caminhada Confortável", Price: 139.9, Image: "2.jpg"},
		},
		stock: map[int]int{1: 3, 2: 5},
	}
}

func (f *fakeProductAPI) ListProducts(context.Context) ([]product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []product.Product{f.products[1], f.products[2]}, nil
}

func (f *fakeProductAPI) GetProduct(_ context.Context, id int) (*product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, product.ErrProductNotFound)
	}
	return &p, nil
}

func (f *fakeProductAPI) GetStock(_ context.Context, id int) (*product.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stockErr != nil {
		return nil, f.stockErr
	}
	amount, ok := f.stock[id]
	if !ok {
		return nil, errors.New("stock not found")
	}
	return &product.Stock{ID: id, Amount: amount}, nil
}

type testServer struct {
	handler http.Handler
	api     *fakeProductAPI
	storage *mocks.MockKeyValueStore
	jwt     *auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithAuth(t, auth.NewJWTService("test-secret-key", 15*time.Minute))
}

// newTestServerWithAuth builds the router with jwtService, which may be nil
// to identify shoppers by header.
func newTestServerWithAuth(t *testing.T, jwtService *auth.JWTService) *testServer {
	t.Helper()

	api := newFakeProductAPI()
	storage := mocks.NewMockKeyValueStore()
	logger := zap.NewNop()

	cat := catalog.NewCatalog(api, logger)
	require.NoError(t, cat.Load(context.Background()))

	registry := cart.NewRegistry(cart.Dependencies{
		Catalog: cat,
		API:     api,
		Storage: storage,
		Logger:  logger,
	})

	return &testServer{
		handler: NewRouter(RouterConfig{
			Handlers:   NewHandlers(registry, cat, logger),
			JWTService: jwtService,
			Logger:     logger,
		}),
		api:     api,
		storage: storage,
		jwt:     jwtService,
	}
}

func (s *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type itemBody struct {
	ID                int    `json:"id"`
	Title             string `json:"title"`
	Amount            int    `json:"amount"`
	FormattedPrice    string `json:"formattedPrice"`
	FormattedSubtotal string `json:"formattedSubtotal"`
}

type cartBody struct {
	Items          []itemBody `json:"items"`
	FormattedTotal string     `json:"formattedTotal"`
}

type operationBody struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Cart    cartBody `json:"cart"`
}

func decodeOperation(t *testing.T, rec *httptest.ResponseRecorder) operationBody {
	t.Helper()
	var body operationBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ============================================
// Read Endpoints
// ============================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetCart_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/cart", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Items)
	assert.Equal(t, "R$ 0,00", body.FormattedTotal)
}

func TestGetCart_LoadsStoredCart(t *testing.T) {
	s := newTestServer(t)
	s.storage.SetData(cart.StorageKey, `[{"id":2,"title":"Tênis VR Caminhada Confortável","price":139.9,"image":"2.jpg","amount":2}]`)

	rec := s.do(http.MethodGet, "/cart", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, 2, body.Items[0].Amount)
	assert.Equal(t, "R$ 139,90", body.Items[0].FormattedPrice)
	assert.Equal(t, "R$ 279,80", body.Items[0].FormattedSubtotal)
	assert.Equal(t, "R$ 279,80", body.FormattedTotal)
}

func TestGetProducts_IncludesCartAmounts(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/cart/items", `{"product_id":2}`, nil)
	s.do(http.MethodPost, "/cart/items", `{"product_id":2}`, nil)

	rec := s.do(http.MethodGet, "/products", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []catalog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].CartAmount)
	assert.Equal(t, 2, entries[1].CartAmount)
	assert.Equal(t, "R$ 179,90", entries[0].FormattedPrice)
}

// ============================================
// Mutations
// ============================================

func TestAddToCart_Success(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOperation(t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Message)
	require.Len(t, body.Cart.Items, 1)
	assert.Equal(t, 1, body.Cart.Items[0].ID)
	assert.Equal(t, 1, body.Cart.Items[0].Amount)

	stored, ok := s.storage.GetData(cart.StorageKey)
	require.True(t, ok)
	assert.Contains(t, stored, `"amount":1`)
}

func TestAddToCart_OutOfStock(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, nil)
	}

	rec := s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeOperation(t, rec)
	assert.Equal(t, "insufficient_stock", body.Status)
	assert.Equal(t, cart.MsgOutOfStock, body.Message)
	require.Len(t, body.Cart.Items, 1)
	assert.Equal(t, 3, body.Cart.Items[0].Amount)
}

func TestAddToCart_StockFailure(t *testing.T) {
	s := newTestServer(t)
	s.api.stockErr = errors.New("connection refused")

	rec := s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeOperation(t, rec)
	assert.Equal(t, "fault", body.Status)
	assert.Equal(t, cart.MsgAddFault, body.Message)
	assert.Empty(t, body.Cart.Items)
	assert.Empty(t, s.storage.SetCalls)
}

func TestAddToCart_BadRequest(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"product_id":`},
		{"missing product id", `{}`},
		{"trailing value", `{"product_id":1}{"product_id":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/cart/items", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, s.storage.SetCalls)
}

func TestUpdateAmount_Success(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/cart/items", `{"product_id":2}`, nil)

	rec := s.do(http.MethodPatch, "/cart/items/2", `{"amount":4}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOperation(t, rec)
	require.Len(t, body.Cart.Items, 1)
	assert.Equal(t, 4, body.Cart.Items[0].Amount)
	assert.Equal(t, "R$ 559,60", body.Cart.FormattedTotal)
}

func TestUpdateAmount_NotInCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPatch, "/cart/items/2", `{"amount":4}`, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeOperation(t, rec)
	assert.Equal(t, "not_found", body.Status)
	assert.Equal(t, cart.MsgUpdateFault, body.Message)
}

func TestUpdateAmount_OutOfStock(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/cart/items", `{"product_id":2}`, nil)

	rec := s.do(http.MethodPatch, "/cart/items/2", `{"amount":6}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeOperation(t, rec)
	assert.Equal(t, cart.MsgOutOfStock, body.Message)
	assert.Equal(t, 1, body.Cart.Items[0].Amount)
}

func TestUpdateAmount_NonPositiveIsIgnored(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/cart/items", `{"product_id":2}`, nil)
	writes := len(s.storage.SetCalls)

	rec := s.do(http.MethodPatch, "/cart/items/2", `{"amount":0}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOperation(t, rec)
	assert.Equal(t, 1, body.Cart.Items[0].Amount)
	assert.Len(t, s.storage.SetCalls, writes)
}

func TestUpdateAmount_InvalidID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPatch, "/cart/items/abc", `{"amount":1}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveFromCart(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, nil)
	s.do(http.MethodPost, "/cart/items", `{"product_id":2}`, nil)

	rec := s.do(http.MethodDelete, "/cart/items/1", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOperation(t, rec)
	require.Len(t, body.Cart.Items, 1)
	assert.Equal(t, 2, body.Cart.Items[0].ID)
}

func TestRemoveFromCart_NotInCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodDelete, "/cart/items/1", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeOperation(t, rec)
	assert.Equal(t, cart.MsgRemoveFault, body.Message)
	assert.Empty(t, s.storage.SetCalls)
}

// ============================================
// Shopper Identity
// ============================================

func TestShopperCartsAreSeparate(t *testing.T) {
	s := newTestServerWithAuth(t, nil)

	s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, map[string]string{middleware.UserIDHeader: "alice"})

	rec := s.do(http.MethodGet, "/cart", "", map[string]string{middleware.UserIDHeader: "bob"})
	var bob cartBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bob))
	assert.Empty(t, bob.Items)

	_, ok := s.storage.GetData(cart.StorageKeyFor("alice"))
	assert.True(t, ok)
	_, ok = s.storage.GetData(cart.StorageKey)
	assert.False(t, ok)
}

func TestShopperFromTokenWinsOverHeader(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.jwt.GenerateToken("user-123")
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, map[string]string{
		"Authorization":         "Bearer " + token,
		middleware.UserIDHeader: "someone-else",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := s.storage.GetData(cart.StorageKeyFor("user-123"))
	assert.True(t, ok)
	_, ok = s.storage.GetData(cart.StorageKeyFor("someone-else"))
	assert.False(t, ok)
}

func TestHeaderCannotReachTokenUsersCart(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.jwt.GenerateToken("user-123")
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	spoofed := map[string]string{middleware.UserIDHeader: "user-123"}

	rec = s.do(http.MethodGet, "/cart", "", spoofed)
	require.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Items)

	rec = s.do(http.MethodDelete, "/cart/items/1", "", spoofed)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stored, ok := s.storage.GetData(cart.StorageKeyFor("user-123"))
	require.True(t, ok)
	assert.Contains(t, stored, `"id":1`)
}

func TestHeaderIgnoredWhenAuthEnabled(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/cart/items", `{"product_id":1}`, map[string]string{middleware.UserIDHeader: "alice"})

	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := s.storage.GetData(cart.StorageKey)
	assert.True(t, ok)
	_, ok = s.storage.GetData(cart.StorageKeyFor("alice"))
	assert.False(t, ok)
}

func TestRouter_RateLimitsMutationsOnly(t *testing.T) {
	s := newTestServer(t)
	cat := catalog.NewCatalog(s.api, nil)
	require.NoError(t, cat.Load(context.Background()))
	registry := cart.NewRegistry(cart.Dependencies{Catalog: cat, API: s.api, Storage: s.storage})
	handler := NewRouter(RouterConfig{
		Handlers:    NewHandlers(registry, cat, zap.NewNop()),
		Logger:      zap.NewNop(),
		RateLimiter: middleware.NewRateLimiter(0.001, 1),
	})

	serve := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(http.MethodPost, "/cart/items", `{"product_id":1}`))
	assert.Equal(t, http.StatusTooManyRequests, serve(http.MethodPost, "/cart/items", `{"product_id":1}`))
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/cart", ""))
}

// ============================================
// Status Mapping
// ============================================

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusCode(cart.StatusOK))
	assert.Equal(t, http.StatusConflict, statusCode(cart.StatusInsufficientStock))
	assert.Equal(t, http.StatusNotFound, statusCode(cart.StatusNotFound))
	assert.Equal(t, http.StatusBadGateway, statusCode(cart.StatusFault))
}
