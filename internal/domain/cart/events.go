package cart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventItemAdded         = "ItemAddedToCart"
	EventItemRemoved       = "ItemRemovedFromCart"
	EventItemAmountUpdated = "ItemAmountUpdated"
)

// Event is the envelope published for every successful cart mutation.
type Event struct {
	ID        string          `json:"id"`
	CartKey   string          `json:"cart_key"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEvent(cartKey, eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.New().String(),
		CartKey:   cartKey,
		EventType: eventType,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

type ItemAddedToCart struct {
	ProductID int       `json:"product_id"`
	Amount    int       `json:"amount"`
	AddedAt   time.Time `json:"added_at"`
}

type ItemRemovedFromCart struct {
	ProductID int       `json:"product_id"`
	RemovedAt time.Time `json:"removed_at"`
}

type ItemAmountUpdated struct {
	ProductID      int       `json:"product_id"`
	PreviousAmount int       `json:"previous_amount"`
	Amount         int       `json:"amount"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Publisher sends cart events to an event bus, keyed by cart storage key.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
