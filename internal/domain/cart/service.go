package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/rocketshoes-cart/internal/domain/product"
	"github.com/example/rocketshoes-cart/internal/infrastructure/store"
)

// StorageKey is the key the anonymous shopper's cart is persisted under.
const StorageKey = "@RocketShoes:cart"

// StorageKeyFor returns the storage key of a shopper's cart.
func StorageKeyFor(userID string) string {
	if userID == "" {
		return StorageKey
	}
	return StorageKey + ":" + userID
}

// ProductLookup resolves products already loaded in the catalog.
type ProductLookup interface {
	Find(id int) (product.Product, bool)
}

// ProductAPI is the remote product and stock service.
type ProductAPI interface {
	GetProduct(ctx context.Context, id int) (*product.Product, error)
	GetStock(ctx context.Context, id int) (*product.Stock, error)
}

type Dependencies struct {
	Catalog   ProductLookup
	API       ProductAPI
	Storage   store.KeyValueStore
	Publisher Publisher
	Logger    *zap.Logger
}

// AmountUpdate asks for a product's amount to be set to an exact value.
type AmountUpdate struct {
	ProductID int `json:"product_id"`
	Amount    int `json:"amount"`
}

// Holder owns one shopper's cart. Mutations are serialized; each one that
// succeeds replaces the snapshot and overwrites the stored copy.
type Holder struct {
	key    string
	deps   Dependencies
	logger *zap.Logger

	// opMu is held for a whole operation, stock lookup included. Events are
	// published after it is released.
	opMu sync.Mutex

	mu   sync.RWMutex
	cart Cart
}

// NewHolder loads the cart stored under key. A missing, unreadable or
// unparseable value yields an empty cart.
func NewHolder(ctx context.Context, key string, deps Dependencies) *Holder {
	if deps.Publisher == nil {
		deps.Publisher = NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	h := &Holder{
		key:    key,
		deps:   deps,
		logger: deps.Logger.With(zap.String("cart_key", key)),
	}
	h.cart = h.load(ctx)
	return h
}

func (h *Holder) Key() string {
	return h.key
}

// Cart returns the current snapshot.
func (h *Holder) Cart() Cart {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cart
}

func (h *Holder) load(ctx context.Context) Cart {
	raw, found, err := h.deps.Storage.Get(ctx, h.key)
	if err != nil {
		h.logger.Warn("could not read stored cart, starting empty", zap.Error(err))
		return Cart{}
	}
	if !found {
		return Cart{}
	}

	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		h.logger.Warn("stored cart is not valid JSON, starting empty", zap.Error(err))
		return Cart{}
	}
	return c
}

// pendingEvent is published once the operation has released the cart.
type pendingEvent struct {
	eventType string
	data      any
}

// AddProduct puts one more unit of productID in the cart, or adds the product
// with amount 1 if it is not there yet.
func (h *Holder) AddProduct(ctx context.Context, productID int) Result {
	result, event := h.addProduct(ctx, productID)
	h.publish(ctx, event)
	return result
}

func (h *Holder) addProduct(ctx context.Context, productID int) (Result, *pendingEvent) {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	current := h.Cart()
	index := current.IndexOf(productID)

	newAmount := 1
	if index >= 0 {
		newAmount = current.items[index].Amount + 1
	}

	available, err := h.hasAvailableStock(ctx, productID, newAmount)
	if err != nil {
		return h.fault(current, "add product", productID, MsgAddFault, err), nil
	}
	if !available {
		return h.outOfStock(current, productID, newAmount), nil
	}

	var next Cart
	if index >= 0 {
		next = current.withAmount(index, newAmount)
	} else {
		p, err := h.lookupProduct(ctx, productID)
		if err != nil {
			return h.fault(current, "add product", productID, MsgAddFault, err), nil
		}
		next = current.withItem(CartItem{Product: p, Amount: newAmount})
	}

	if err := h.commit(ctx, next); err != nil {
		return h.fault(current, "add product", productID, MsgAddFault, err), nil
	}

	return Result{Status: StatusOK, Cart: next}, &pendingEvent{
		eventType: EventItemAdded,
		data: ItemAddedToCart{
			ProductID: productID,
			Amount:    newAmount,
			AddedAt:   time.Now().UTC(),
		},
	}
}

// RemoveProduct drops productID from the cart. Removing a product that is not
// in the cart is reported as NotFound.
func (h *Holder) RemoveProduct(ctx context.Context, productID int) Result {
	result, event := h.removeProduct(ctx, productID)
	h.publish(ctx, event)
	return result
}

func (h *Holder) removeProduct(ctx context.Context, productID int) (Result, *pendingEvent) {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	current := h.Cart()
	index := current.IndexOf(productID)
	if index < 0 {
		h.logger.Warn("remove of product not in cart", zap.Int("product_id", productID))
		return Result{Status: StatusNotFound, Message: MsgRemoveFault, Cart: current}, nil
	}

	next := current.without(index)
	if err := h.commit(ctx, next); err != nil {
		return h.fault(current, "remove product", productID, MsgRemoveFault, err), nil
	}

	return Result{Status: StatusOK, Cart: next}, &pendingEvent{
		eventType: EventItemRemoved,
		data: ItemRemovedFromCart{
			ProductID: productID,
			RemovedAt: time.Now().UTC(),
		},
	}
}

// UpdateProductAmount sets the amount of a product already in the cart.
// Non-positive amounts are ignored: the cart is returned unchanged and
// nothing is written.
func (h *Holder) UpdateProductAmount(ctx context.Context, req AmountUpdate) Result {
	result, event := h.updateProductAmount(ctx, req)
	h.publish(ctx, event)
	return result
}

func (h *Holder) updateProductAmount(ctx context.Context, req AmountUpdate) (Result, *pendingEvent) {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	current := h.Cart()
	index := current.IndexOf(req.ProductID)
	if index < 0 {
		h.logger.Warn("amount update of product not in cart", zap.Int("product_id", req.ProductID))
		return Result{Status: StatusNotFound, Message: MsgUpdateFault, Cart: current}, nil
	}

	if req.Amount <= 0 {
		return Result{Status: StatusOK, Cart: current}, nil
	}

	available, err := h.hasAvailableStock(ctx, req.ProductID, req.Amount)
	if err != nil {
		return h.fault(current, "update amount", req.ProductID, MsgUpdateFault, err), nil
	}
	if !available {
		return h.outOfStock(current, req.ProductID, req.Amount), nil
	}

	previous := current.items[index].Amount
	next := current.withAmount(index, req.Amount)
	if err := h.commit(ctx, next); err != nil {
		return h.fault(current, "update amount", req.ProductID, MsgUpdateFault, err), nil
	}

	return Result{Status: StatusOK, Cart: next}, &pendingEvent{
		eventType: EventItemAmountUpdated,
		data: ItemAmountUpdated{
			ProductID:      req.ProductID,
			PreviousAmount: previous,
			Amount:         req.Amount,
			UpdatedAt:      time.Now().UTC(),
		},
	}
}

func (h *Holder) hasAvailableStock(ctx context.Context, productID, amount int) (bool, error) {
	stock, err := h.deps.API.GetStock(ctx, productID)
	if err != nil {
		return false, err
	}
	return amount <= stock.Amount, nil
}

// lookupProduct prefers the loaded catalog and falls back to the product API.
func (h *Holder) lookupProduct(ctx context.Context, productID int) (product.Product, error) {
	if h.deps.Catalog != nil {
		if p, ok := h.deps.Catalog.Find(productID); ok {
			return p, nil
		}
	}

	p, err := h.deps.API.GetProduct(ctx, productID)
	if err != nil {
		return product.Product{}, err
	}
	return *p, nil
}

func (h *Holder) commit(ctx context.Context, next Cart) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := h.deps.Storage.Set(ctx, h.key, string(data)); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}

	h.mu.Lock()
	h.cart = next
	h.mu.Unlock()
	return nil
}

func (h *Holder) publish(ctx context.Context, pending *pendingEvent) {
	if pending == nil {
		return
	}
	event, err := NewEvent(h.key, pending.eventType, pending.data)
	if err != nil {
		h.logger.Error("failed to build cart event", zap.String("event_type", pending.eventType), zap.Error(err))
		return
	}
	if err := h.deps.Publisher.Publish(ctx, h.key, event); err != nil {
		h.logger.Warn("failed to publish cart event",
			zap.String("event_type", pending.eventType),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}

func (h *Holder) outOfStock(current Cart, productID, amount int) Result {
	h.logger.Info("requested amount exceeds stock",
		zap.Int("product_id", productID),
		zap.Int("amount", amount),
	)
	return Result{Status: StatusInsufficientStock, Message: MsgOutOfStock, Cart: current}
}

func (h *Holder) fault(current Cart, op string, productID int, message string, err error) Result {
	h.logger.Error("cart operation failed",
		zap.String("op", op),
		zap.Int("product_id", productID),
		zap.Error(err),
	)
	return Result{Status: StatusFault, Message: message, Cart: current}
}

// Registry hands out one Holder per shopper, creating it on first use.
// Holders unused for a while can be dropped with Evict; the next request
// for that shopper reloads the cart from storage.
type Registry struct {
	deps Dependencies

	mu      sync.Mutex
	holders map[string]*registryEntry
}

type registryEntry struct {
	holder   *Holder
	lastSeen time.Time
}

func NewRegistry(deps Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		deps:    deps,
		holders: make(map[string]*registryEntry),
	}
}

// ForUser returns the holder of userID's cart. An empty userID is the
// anonymous shopper. The stored cart is read without holding the registry
// lock.
func (r *Registry) ForUser(ctx context.Context, userID string) *Holder {
	key := StorageKeyFor(userID)
	if h := r.lookup(key); h != nil {
		return h
	}

	loaded := NewHolder(ctx, key, r.deps)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.holders[key]; ok {
		e.lastSeen = time.Now()
		return e.holder
	}
	r.holders[key] = &registryEntry{holder: loaded, lastSeen: time.Now()}
	return loaded
}

func (r *Registry) lookup(key string) *Holder {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.holders[key]
	if !ok {
		return nil
	}
	e.lastSeen = time.Now()
	return e.holder
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}

// Evict drops holders last used before cutoff and returns how many went.
// A holder with an operation in flight is kept.
func (r *Registry) Evict(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for key, e := range r.holders {
		if !e.lastSeen.Before(cutoff) {
			continue
		}
		if !e.holder.opMu.TryLock() {
			continue
		}
		delete(r.holders, key)
		e.holder.opMu.Unlock()
		evicted++
	}
	return evicted
}

// StartEviction evicts holders idle for longer than idle, checking every
// interval, until ctx is done.
func (r *Registry) StartEviction(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Evict(now.Add(-idle)); n > 0 {
				r.deps.Logger.Debug("evicted idle carts", zap.Int("count", n))
			}
		}
	}
}
