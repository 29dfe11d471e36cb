package cart

import (
	"context"
	"sync"

	"github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/repository"
	"go.uber.org/zap"
)

var testProducts = []*domain.Product{
	{ID: "P1", Name: "Heirloom Tomatoes", Price: 10},
	{ID: "P2", Name: "Sourdough Loaf", Price: 7.5},
	{ID: "P3", Name: "Raw Honey", Price: 15},
	{ID: "P5", Name: "Olive Oil", Price: 30},
}

func testIndex() domain.ProductIndex {
	return domain.NewProductIndex(testProducts)
}

type mockCatalog struct {
	m        sync.RWMutex
	products []*domain.Product
	err      error
	calls    int
	gate     chan struct{}
}

func (c *mockCatalog) GetAllProducts(ctx context.Context) ([]*domain.Product, error) {
	if c.gate != nil {
		<-c.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.products, nil
}

func (c *mockCatalog) setErr(err error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.err = err
}

func (c *mockCatalog) callCount() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.calls
}

// mockStore is a CartStore over a slice. err fails every call; a non-nil
// block holds UpsertItem until it is closed.
type mockStore struct {
	m     sync.RWMutex
	rows  []domain.CartRow
	err   error
	block chan struct{}
}

func (s *mockStore) GetCartItems(_ context.Context, userID string) ([]domain.CartRow, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []domain.CartRow{}
	for _, r := range s.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *mockStore) UpsertItem(_ context.Context, userID, productID string, quantity int, rowID string) (*domain.CartRow, error) {
	if s.block != nil {
		<-s.block
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.rows {
		if s.rows[i].UserID == userID && s.rows[i].ProductID == productID {
			s.rows[i].Quantity = quantity
			row := s.rows[i]
			return &row, nil
		}
	}
	row := domain.CartRow{ID: rowID, UserID: userID, ProductID: productID, Quantity: quantity}
	s.rows = append(s.rows, row)
	return &row, nil
}

func (s *mockStore) UpdateQuantity(_ context.Context, rowID string, quantity int) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return s.err
	}
	for i := range s.rows {
		if s.rows[i].ID == rowID {
			s.rows[i].Quantity = quantity
			return nil
		}
	}
	return repository.ErrItemNotFound
}

func (s *mockStore) RemoveItem(_ context.Context, rowID string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return s.err
	}
	for i := range s.rows {
		if s.rows[i].ID == rowID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrItemNotFound
}

func (s *mockStore) ClearCart(_ context.Context, userID string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return s.err
	}
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

func (s *mockStore) setErr(err error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.err = err
}

func (s *mockStore) rowsFor(userID string) []domain.CartRow {
	s.m.RLock()
	defer s.m.RUnlock()
	out := []domain.CartRow{}
	for _, r := range s.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// mockStorage is one device's local storage.
type mockStorage struct {
	m      sync.RWMutex
	values map[string][]byte
	err    error
}

func newMockStorage() *mockStorage {
	return &mockStorage{values: make(map[string][]byte)}
}

func (s *mockStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.values[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (s *mockStorage) Set(_ context.Context, key string, value []byte) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return s.err
	}
	s.values[key] = value
	return nil
}

func (s *mockStorage) Delete(_ context.Context, key string) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.values, key)
	return nil
}

func (s *mockStorage) raw(key string) ([]byte, bool) {
	s.m.RLock()
	defer s.m.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// mockDevices hands out one mockStorage per device.
type mockDevices struct {
	m       sync.Mutex
	devices map[string]*mockStorage
}

func newMockDevices() *mockDevices {
	return &mockDevices{devices: make(map[string]*mockStorage)}
}

func (d *mockDevices) ForDevice(deviceID string) cache.LocalStorage {
	return d.device(deviceID)
}

func (d *mockDevices) device(deviceID string) *mockStorage {
	d.m.Lock()
	defer d.m.Unlock()
	s, ok := d.devices[deviceID]
	if !ok {
		s = newMockStorage()
		d.devices[deviceID] = s
	}
	return s
}

func zapNop() *zap.Logger { return zap.NewNop() }
