package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/repository"
	"go.uber.org/zap"
)

// Repository is where a session loads its items from and forwards its
// mutations to. Guests and users get different implementations so the
// session never checks who it belongs to.
type Repository interface {
	Load(ctx context.Context, products domain.ProductIndex) ([]domain.LineItem, error)
	// Add persists item, whose Quantity is the new total for its product,
	// and returns the id the item is stored under.
	Add(ctx context.Context, item domain.LineItem) (string, error)
	Update(ctx context.Context, itemID string, quantity int) error
	Remove(ctx context.Context, itemID string) error
	Clear(ctx context.Context) error
	// CanEmpty reports whether EmptyCart applies to this cart.
	CanEmpty() bool
}

// GuestRepository keeps guest carts in local storage only. The session's
// mirror write is the persistence, so mutations have nothing to forward.
type GuestRepository struct {
	storage cache.LocalStorage
	log     *zap.Logger
}

func NewGuestRepository(storage cache.LocalStorage, log *zap.Logger) *GuestRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &GuestRepository{storage: storage, log: log}
}

func (g *GuestRepository) Load(ctx context.Context, products domain.ProductIndex) ([]domain.LineItem, error) {
	key := domain.Guest().StorageKey()

	data, err := g.storage.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return []domain.LineItem{}, nil
	}
	if err != nil {
		// Local storage being unreadable is not fatal; start empty.
		g.log.Error("failed to read guest cart", zap.String("key", key), zap.Error(err))
		return []domain.LineItem{}, nil
	}

	items, err := decodeStored(data, products, g.log)
	if err != nil {
		g.log.Error("malformed guest cart in local storage, deleting",
			zap.String("key", key), zap.Error(err))
		if errDel := g.storage.Delete(ctx, key); errDel != nil {
			g.log.Error("failed to delete malformed guest cart", zap.String("key", key), zap.Error(errDel))
		}
		return []domain.LineItem{}, nil
	}
	return items, nil
}

func (g *GuestRepository) Add(_ context.Context, item domain.LineItem) (string, error) {
	return item.ID, nil
}

func (g *GuestRepository) Update(context.Context, string, int) error { return nil }

func (g *GuestRepository) Remove(context.Context, string) error { return nil }

func (g *GuestRepository) Clear(context.Context) error { return nil }

// CanEmpty is false: emptying a guest cart has never been supported.
// Changing it is a product decision.
func (g *GuestRepository) CanEmpty() bool { return false }

// RemoteRepository forwards a user's cart to the remote store, which is the
// source of truth for that user.
type RemoteRepository struct {
	store  repository.CartStore
	userID string
	log    *zap.Logger
}

func NewRemoteRepository(store repository.CartStore, userID string, log *zap.Logger) *RemoteRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteRepository{store: store, userID: userID, log: log}
}

func (r *RemoteRepository) Load(ctx context.Context, products domain.ProductIndex) ([]domain.LineItem, error) {
	rows, err := r.store.GetCartItems(ctx, r.userID)
	if err != nil {
		return nil, fmt.Errorf("get cart items for %s: %w", r.userID, err)
	}
	return reconcileRows(rows, products, r.log), nil
}

// Add upserts the row for item's product. If the user already had a row for
// it, that row keeps its id and the id is returned.
func (r *RemoteRepository) Add(ctx context.Context, item domain.LineItem) (string, error) {
	row, err := r.store.UpsertItem(ctx, r.userID, item.ProductID, item.Quantity, item.ID)
	if err != nil {
		return "", fmt.Errorf("upsert cart item: %w", err)
	}
	return row.ID, nil
}

func (r *RemoteRepository) Update(ctx context.Context, itemID string, quantity int) error {
	if err := r.store.UpdateQuantity(ctx, itemID, quantity); err != nil {
		return fmt.Errorf("update cart item %s: %w", itemID, err)
	}
	return nil
}

func (r *RemoteRepository) Remove(ctx context.Context, itemID string) error {
	if err := r.store.RemoveItem(ctx, itemID); err != nil {
		return fmt.Errorf("remove cart item %s: %w", itemID, err)
	}
	return nil
}

func (r *RemoteRepository) Clear(ctx context.Context) error {
	if err := r.store.ClearCart(ctx, r.userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *RemoteRepository) CanEmpty() bool { return true }
