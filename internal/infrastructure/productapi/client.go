package productapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/rocketshoes-cart/internal/domain/product"
)

var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnexpectedStatus = errors.New("unexpected status from product api")
)

// Client reads products and stock from the storefront product API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListProducts fetches the whole catalog.
func (c *Client) ListProducts(ctx context.Context) ([]product.Product, error) {
	var products []product.Product
	if err := c.get(ctx, "/products", &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []product.Product{}
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id int) (*product.Product, error) {
	var p product.Product
	if err := c.get(ctx, "/products/"+strconv.Itoa(id), &p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("get product %d: %w", id, product.ErrProductNotFound)
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

func (c *Client) GetStock(ctx context.Context, id int) (*product.Stock, error) {
	var s product.Stock
	if err := c.get(ctx, "/stock/"+strconv.Itoa(id), &s); err != nil {
		return nil, fmt.Errorf("get stock %d: %w", id, err)
	}
	return &s, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
