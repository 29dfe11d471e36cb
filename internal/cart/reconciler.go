package cart

import (
	"encoding/json"
	"fmt"

	"github.com/fjod/cartsync/internal/domain"
	"go.uber.org/zap"
)

// State is the load state of a session. The only transition is
// StateUninitialized -> StateLoaded and it happens once.
type State int

const (
	StateUninitialized State = iota
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// reconcileRows builds line items from remote rows. Rows pointing at a
// product missing from the catalog are logged and dropped.
func reconcileRows(rows []domain.CartRow, products domain.ProductIndex, log *zap.Logger) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(rows))
	for _, row := range rows {
		product, ok := products.Lookup(row.ProductID)
		if !ok {
			log.Error("cart row references unknown product",
				zap.String("row_id", row.ID),
				zap.String("user_id", row.UserID),
				zap.String("product_id", row.ProductID))
			continue
		}
		userID := row.UserID
		items = append(items, domain.LineItem{
			ID:        row.ID,
			ProductID: row.ProductID,
			UserID:    &userID,
			Quantity:  row.Quantity,
			Product:   product,
		})
	}
	return items
}

// decodeStored parses a local storage value and keeps the entries whose
// product still exists. Entries with a non-positive quantity are dropped.
func decodeStored(data []byte, products domain.ProductIndex, log *zap.Logger) ([]domain.LineItem, error) {
	var stored []domain.StoredItem
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode stored cart: %w", err)
	}

	items := make([]domain.LineItem, 0, len(stored))
	for _, s := range stored {
		product, ok := products.Lookup(s.ProductID)
		if !ok {
			log.Info("dropping stored item for removed product", zap.String("product_id", s.ProductID))
			continue
		}
		if s.Quantity < 1 {
			log.Warn("dropping stored item with invalid quantity",
				zap.String("product_id", s.ProductID), zap.Int("quantity", s.Quantity))
			continue
		}
		items = append(items, domain.LineItem{
			ID:        s.ID,
			ProductID: s.ProductID,
			UserID:    s.UserID,
			Quantity:  s.Quantity,
			Product:   product,
		})
	}
	return items, nil
}

func encodeStored(items []domain.LineItem) ([]byte, error) {
	stored := make([]domain.StoredItem, 0, len(items))
	for _, item := range items {
		stored = append(stored, item.Stored())
	}
	return json.Marshal(stored)
}
