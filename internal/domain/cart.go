package domain

import (
	"fmt"
	"time"
)

const guestStorageKey = "cart-guest"

// Identity is the user a cart belongs to. The zero value is a guest.
type Identity struct {
	UserID string
}

func Guest() Identity { return Identity{} }

func User(userID string) Identity { return Identity{UserID: userID} }

func (i Identity) IsGuest() bool { return i.UserID == "" }

// StorageKey is the local storage key that mirrors this identity's cart.
func (i Identity) StorageKey() string {
	if i.IsGuest() {
		return guestStorageKey
	}
	return fmt.Sprintf("cart-%s", i.UserID)
}

func (i Identity) String() string {
	if i.IsGuest() {
		return "guest"
	}
	return "user:" + i.UserID
}

// CartRow is one cart item as stored by the remote store.
type CartRow struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	ProductID string    `bson:"product_id" json:"product_id"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// LineItem is a display-ready cart entry. Product may be nil when the
// catalog entry has gone away since the item was created.
type LineItem struct {
	ID        string   `json:"id"`
	ProductID string   `json:"product_id"`
	UserID    *string  `json:"user_id"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// UnitPrice is the product price, or zero when the product is unknown.
func (li LineItem) UnitPrice() float64 {
	if li.Product == nil {
		return 0
	}
	return li.Product.Price
}

// StoredItem is the shape persisted to local storage.
type StoredItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	UserID    *string `json:"user_id"`
	Quantity  int     `json:"quantity"`
}

func (li LineItem) Stored() StoredItem {
	return StoredItem{
		ID:        li.ID,
		ProductID: li.ProductID,
		UserID:    li.UserID,
		Quantity:  li.Quantity,
	}
}
