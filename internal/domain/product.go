package domain

import "time"

// Product is the read model served by the catalog. The cart never mutates it.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Unit        string    `json:"unit"`
	Images      []string  `json:"images"`
	SellerID    string    `json:"seller_id"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Inventory   int       `json:"inventory"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductIndex maps product ids to products.
type ProductIndex map[string]*Product

func NewProductIndex(products []*Product) ProductIndex {
	idx := make(ProductIndex, len(products))
	for _, p := range products {
		if p != nil {
			idx[p.ID] = p
		}
	}
	return idx
}

func (idx ProductIndex) Lookup(id string) (*Product, bool) {
	p, ok := idx[id]
	return p, ok
}
