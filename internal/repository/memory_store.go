package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/google/uuid"
)

const (
	// RowTTL matches the expiry index on the mongo collection.
	RowTTL = 90 * 24 * time.Hour

	// CleanupInterval is how often the background cleanup runs
	CleanupInterval = time.Hour
)

type memoryRow struct {
	row domain.CartRow
	seq uint64
}

// MemoryStore implements CartStore in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[string]*memoryRow // rowID -> row
	byPair map[string]string     // userID|productID -> rowID
	seq    uint64

	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		rows:        make(map[string]*memoryRow),
		byPair:      make(map[string]string),
		now:         func() time.Time { return time.Now().UTC() },
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expireRows()
		case <-s.stopCleanup:
			return
		}
	}
}

// expireRows drops rows not touched within RowTTL.
func (s *MemoryStore) expireRows() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-RowTTL)
	for id, r := range s.rows {
		if r.row.UpdatedAt.Before(cutoff) {
			s.deleteLocked(id)
		}
	}
}

func (s *MemoryStore) GetCartItems(ctx context.Context, userID string) ([]domain.CartRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := make([]*memoryRow, 0)
	for _, r := range s.rows {
		if r.row.UserID == userID {
			owned = append(owned, r)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].seq < owned[j].seq })

	result := make([]domain.CartRow, 0, len(owned))
	for _, r := range owned {
		result = append(result, r.row)
	}
	return result, nil
}

func (s *MemoryStore) UpsertItem(ctx context.Context, userID, productID string, quantity int, rowID string) (*domain.CartRow, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byPair[pairKey(userID, productID)]; ok {
		r := s.rows[id]
		r.row.Quantity = quantity
		r.row.UpdatedAt = now
		row := r.row
		return &row, nil
	}

	if rowID == "" {
		rowID = uuid.NewString()
	}
	s.seq++
	r := &memoryRow{
		row: domain.CartRow{
			ID:        rowID,
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
			AddedAt:   now,
			UpdatedAt: now,
		},
		seq: s.seq,
	}
	s.rows[rowID] = r
	s.byPair[pairKey(userID, productID)] = rowID

	row := r.row
	return &row, nil
}

func (s *MemoryStore) UpdateQuantity(ctx context.Context, rowID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[rowID]
	if !ok {
		return ErrItemNotFound
	}
	r.row.Quantity = quantity
	r.row.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) RemoveItem(ctx context.Context, rowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[rowID]; !ok {
		return ErrItemNotFound
	}
	s.deleteLocked(rowID)
	return nil
}

func (s *MemoryStore) ClearCart(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.rows {
		if r.row.UserID == userID {
			s.deleteLocked(id)
		}
	}
	return nil
}

// Len returns the number of stored rows across all users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	s.wg.Wait()
}

// deleteLocked must be called with s.mu held.
func (s *MemoryStore) deleteLocked(rowID string) {
	r, ok := s.rows[rowID]
	if !ok {
		return
	}
	delete(s.byPair, pairKey(r.row.UserID, r.row.ProductID))
	delete(s.rows, rowID)
}

func pairKey(userID, productID string) string {
	return userID + "|" + productID
}
