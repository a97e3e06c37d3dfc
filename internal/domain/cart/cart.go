package cart

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/example/rocketshoes-cart/internal/domain/product"
)

// CartItem is a product together with the amount selected. It serializes
// flat: {"id","title","price","image","amount"}.
type CartItem struct {
	product.Product
	Amount int `json:"amount"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Price).Mul(decimal.NewFromInt(int64(i.Amount)))
}

// Cart is an immutable snapshot of the cart: an ordered list of items,
// unique by product id, every amount positive. Mutating methods return a new
// Cart and never touch the receiver's backing array.
type Cart struct {
	items []CartItem
}

// NewCart builds a snapshot from raw items. Items with a non-positive amount
// are dropped and duplicate ids keep their first occurrence.
func NewCart(items []CartItem) Cart {
	out := make([]CartItem, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		if item.Amount <= 0 {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return Cart{items: out}
}

// Items returns a copy of the items in cart order.
func (c Cart) Items() []CartItem {
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c Cart) Len() int {
	return len(c.items)
}

func (c Cart) IndexOf(productID int) int {
	for i, item := range c.items {
		if item.ID == productID {
			return i
		}
	}
	return -1
}

func (c Cart) Find(productID int) (CartItem, bool) {
	if i := c.IndexOf(productID); i >= 0 {
		return c.items[i], true
	}
	return CartItem{}, false
}

// AmountsByProduct maps product id to the amount in the cart.
func (c Cart) AmountsByProduct() map[int]int {
	amounts := make(map[int]int, len(c.items))
	for _, item := range c.items {
		amounts[item.ID] = item.Amount
	}
	return amounts
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c Cart) withItem(item CartItem) Cart {
	out := make([]CartItem, len(c.items), len(c.items)+1)
	copy(out, c.items)
	return Cart{items: append(out, item)}
}

func (c Cart) withAmount(index, amount int) Cart {
	out := c.Items()
	out[index].Amount = amount
	return Cart{items: out}
}

func (c Cart) without(index int) Cart {
	out := make([]CartItem, 0, len(c.items)-1)
	out = append(out, c.items[:index]...)
	out = append(out, c.items[index+1:]...)
	return Cart{items: out}
}

// MarshalJSON encodes the cart as a JSON array; an empty cart is "[]".
func (c Cart) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var items []CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*c = NewCart(items)
	return nil
}
