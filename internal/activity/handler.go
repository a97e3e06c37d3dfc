package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/rocketshoes-cart/internal/domain/cart"
)

// Handler logs cart activity read from the event topic and keeps running
// counts per event type.
type Handler struct {
	logger *zap.Logger

	mu     sync.Mutex
	counts map[string]int
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
		counts: make(map[string]int),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event cart.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("cart_key", event.CartKey),
		zap.Time("timestamp", event.Timestamp),
	}

	switch event.EventType {
	case cart.EventItemAdded:
		var e cart.ItemAddedToCart
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("unmarshal %s: %w", event.EventType, err)
		}
		h.logger.Info("product added to cart",
			append(fields, zap.Int("product_id", e.ProductID), zap.Int("amount", e.Amount))...)
	case cart.EventItemRemoved:
		var e cart.ItemRemovedFromCart
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("unmarshal %s: %w", event.EventType, err)
		}
		h.logger.Info("product removed from cart",
			append(fields, zap.Int("product_id", e.ProductID))...)
	case cart.EventItemAmountUpdated:
		var e cart.ItemAmountUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("unmarshal %s: %w", event.EventType, err)
		}
		h.logger.Info("cart amount changed",
			append(fields,
				zap.Int("product_id", e.ProductID),
				zap.Int("previous_amount", e.PreviousAmount),
				zap.Int("amount", e.Amount),
			)...)
	default:
		h.logger.Debug("ignoring unknown event type", append(fields, zap.String("event_type", event.EventType))...)
		return nil
	}

	h.mu.Lock()
	h.counts[event.EventType]++
	h.mu.Unlock()
	return nil
}

// Counts returns how many events of each type were handled.
func (h *Handler) Counts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}
