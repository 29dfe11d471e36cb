package repository

import (
	"context"
	"errors"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/pkg/circuitbreaker"
	"go.uber.org/zap"
)

type breakerStore struct {
	next CartStore
	cb   *circuitbreaker.Breaker[any]
}

// NewBreakerStore guards next with a circuit breaker. While open every call
// fails fast with ErrStoreUnavailable. Not-found and validation errors are
// answers from a healthy store and never trip it.
func NewBreakerStore(next CartStore, cfg circuitbreaker.Config, log *zap.Logger) CartStore {
	cfg.Ignore = func(err error) bool {
		return errors.Is(err, ErrItemNotFound) ||
			errors.Is(err, ErrInvalidQuantity) ||
			errors.Is(err, context.Canceled)
	}
	return &breakerStore{
		next: next,
		cb:   circuitbreaker.New[any](cfg, log),
	}
}

func (b *breakerStore) GetCartItems(ctx context.Context, userID string) ([]domain.CartRow, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.GetCartItems(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.CartRow), nil
}

func (b *breakerStore) UpsertItem(ctx context.Context, userID, productID string, quantity int, rowID string) (*domain.CartRow, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.UpsertItem(ctx, userID, productID, quantity, rowID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.CartRow), nil
}

func (b *breakerStore) UpdateQuantity(ctx context.Context, rowID string, quantity int) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.UpdateQuantity(ctx, rowID, quantity)
	})
	return err
}

func (b *breakerStore) RemoveItem(ctx context.Context, rowID string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.RemoveItem(ctx, rowID)
	})
	return err
}

func (b *breakerStore) ClearCart(ctx context.Context, userID string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.ClearCart(ctx, userID)
	})
	return err
}

func (b *breakerStore) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, ErrStoreUnavailable
	}
	return res, err
}
