package repository

import (
	"context"
	"errors"

	"github.com/fjod/cartsync/internal/domain"
)

var (
	ErrItemNotFound     = errors.New("cart item not found")
	ErrInvalidQuantity  = errors.New("quantity must be greater than 0")
	ErrStoreUnavailable = errors.New("cart store unavailable")
)

// CartStore is the remote source of truth for authenticated carts.
// Rows are addressed by their row id; the (user, product) pair is unique.
type CartStore interface {
	GetCartItems(ctx context.Context, userID string) ([]domain.CartRow, error)
	// UpsertItem sets the quantity of the user's row for productID. When no
	// row exists a new one is inserted under rowID.
	UpsertItem(ctx context.Context, userID, productID string, quantity int, rowID string) (*domain.CartRow, error)
	UpdateQuantity(ctx context.Context, rowID string, quantity int) error
	RemoveItem(ctx context.Context, rowID string) error
	ClearCart(ctx context.Context, userID string) error
}
