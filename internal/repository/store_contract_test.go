package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCartStoreContract exercises behaviour every CartStore must share.
// newStore must return an empty store.
func runCartStoreContract(t *testing.T, newStore func(t *testing.T) CartStore) {
	t.Run("GetCartItems_Empty", func(t *testing.T) {
		store := newStore(t)

		rows, err := store.GetCartItems(context.Background(), "nobody")
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	})

	t.Run("UpsertItem_Insert", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		row, err := store.UpsertItem(ctx, "user-1", "P1", 3, "row-1")
		require.NoError(t, err)
		assert.Equal(t, "row-1", row.ID)
		assert.Equal(t, "user-1", row.UserID)
		assert.Equal(t, "P1", row.ProductID)
		assert.Equal(t, 3, row.Quantity)

		rows, err := store.GetCartItems(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "row-1", rows[0].ID)
	})

	t.Run("UpsertItem_GeneratesRowID", func(t *testing.T) {
		store := newStore(t)

		row, err := store.UpsertItem(context.Background(), "user-1", "P1", 1, "")
		require.NoError(t, err)
		assert.NotEmpty(t, row.ID)
	})

	t.Run("UpsertItem_ExistingSetsQuantity", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user-1", "P1", 2, "row-1")
		require.NoError(t, err)

		// Second upsert keeps the original row id and overwrites the quantity.
		row, err := store.UpsertItem(ctx, "user-1", "P1", 5, "row-2")
		require.NoError(t, err)
		assert.Equal(t, "row-1", row.ID)
		assert.Equal(t, 5, row.Quantity)

		rows, err := store.GetCartItems(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 5, rows[0].Quantity)
	})

	t.Run("UpsertItem_InvalidQuantity", func(t *testing.T) {
		store := newStore(t)

		_, err := store.UpsertItem(context.Background(), "user-1", "P1", 0, "row-1")
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("UpdateQuantity", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user-1", "P1", 2, "row-1")
		require.NoError(t, err)

		require.NoError(t, store.UpdateQuantity(ctx, "row-1", 10))

		rows, err := store.GetCartItems(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 10, rows[0].Quantity)
	})

	t.Run("UpdateQuantity_NotFound", func(t *testing.T) {
		store := newStore(t)

		err := store.UpdateQuantity(context.Background(), "missing", 1)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("UpdateQuantity_Invalid", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user-1", "P1", 2, "row-1")
		require.NoError(t, err)

		assert.ErrorIs(t, store.UpdateQuantity(ctx, "row-1", -1), ErrInvalidQuantity)
	})

	t.Run("RemoveItem", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user-1", "P1", 1, "row-1")
		require.NoError(t, err)
		_, err = store.UpsertItem(ctx, "user-1", "P2", 1, "row-2")
		require.NoError(t, err)

		require.NoError(t, store.RemoveItem(ctx, "row-1"))

		rows, err := store.GetCartItems(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "P2", rows[0].ProductID)
	})

	t.Run("RemoveItem_NotFound", func(t *testing.T) {
		store := newStore(t)

		assert.ErrorIs(t, store.RemoveItem(context.Background(), "missing"), ErrItemNotFound)
	})

	t.Run("ClearCart_OnlyTouchesOwner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user-1", "P1", 1, "row-1")
		require.NoError(t, err)
		_, err = store.UpsertItem(ctx, "user-1", "P2", 1, "row-2")
		require.NoError(t, err)
		_, err = store.UpsertItem(ctx, "user-2", "P1", 4, "row-3")
		require.NoError(t, err)

		require.NoError(t, store.ClearCart(ctx, "user-1"))

		rows, err := store.GetCartItems(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, rows)

		rows, err = store.GetCartItems(ctx, "user-2")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 4, rows[0].Quantity)
	})

	t.Run("ClearCart_EmptyIsNoop", func(t *testing.T) {
		store := newStore(t)

		assert.NoError(t, store.ClearCart(context.Background(), "nobody"))
	})

	t.Run("GetCartItems_InsertionOrder", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, p := range []string{"P3", "P1", "P2"} {
			_, err := store.UpsertItem(ctx, "user-1", p, 1, "")
			require.NoError(t, err)
		}

		rows, err := store.GetCartItems(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "P3", rows[0].ProductID)
		assert.Equal(t, "P1", rows[1].ProductID)
		assert.Equal(t, "P2", rows[2].ProductID)
	})
}
