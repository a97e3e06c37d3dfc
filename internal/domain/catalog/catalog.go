package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/rocketshoes-cart/internal/domain/product"
	"github.com/example/rocketshoes-cart/internal/format"
)

// Source lists every product the storefront sells.
type Source interface {
	ListProducts(ctx context.Context) ([]product.Product, error)
}

// Catalog holds the product list fetched at startup. It is never refreshed.
type Catalog struct {
	source Source
	logger *zap.Logger

	mu       sync.RWMutex
	products []product.Product
}

func NewCatalog(source Source, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		source:   source,
		logger:   logger,
		products: []product.Product{},
	}
}

// Load fetches the product list. On error the catalog keeps what it had.
func (c *Catalog) Load(ctx context.Context) error {
	products, err := c.source.ListProducts(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.products = products
	c.mu.Unlock()

	c.logger.Info("catalog loaded", zap.Int("products", len(products)))
	return nil
}

// Products returns a copy of the catalog in API order.
func (c *Catalog) Products() []product.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]product.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Find(id int) (product.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return product.Product{}, false
}

// Entry is a catalog product as shown on the storefront home page.
type Entry struct {
	product.Product
	FormattedPrice string `json:"formattedPrice"`
	CartAmount     int    `json:"cartAmount"`
}

// Entries decorates every product with its formatted price and the amount
// already in a cart; products absent from amounts get 0.
func (c *Catalog) Entries(amounts map[int]int) []Entry {
	products := c.Products()
	entries := make([]Entry, len(products))
	for i, p := range products {
		entries[i] = Entry{
			Product:        p,
			FormattedPrice: format.PriceFloat(p.Price),
			CartAmount:     amounts[p.ID],
		}
	}
	return entries
}
