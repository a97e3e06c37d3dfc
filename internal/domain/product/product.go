package product

import "errors"

var ErrProductNotFound = errors.New("product not found")

// Product is a catalog entry as served by the product API.
type Product struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Stock is the available amount of a product at lookup time.
type Stock struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}
