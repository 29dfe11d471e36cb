package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotLoaded = errors.New("cart session not loaded")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
)

const defaultRemoteTimeout = 30 * time.Second

// Snapshot is what callers render from.
type Snapshot struct {
	CartItems  []domain.LineItem `json:"cartItems"`
	CartTotals Totals            `json:"cartTotals"`
	IsLoading  bool              `json:"isLoading"`
}

// Session is the cart of one identity on one device. Local changes are
// applied synchronously under mu. Remote calls run in the background and
// report their outcome as notifications; they are never rolled back.
type Session struct {
	identity domain.Identity
	repo     Repository
	storage  cache.LocalStorage
	inbox    *notify.Buffer
	notifier notify.Notifier
	log      *zap.Logger

	remoteTimeout time.Duration
	newID         func() string
	now           func() time.Time

	mu       sync.Mutex
	state    State
	items    []domain.LineItem
	products domain.ProductIndex

	inflight sync.WaitGroup
	tracker  *sync.WaitGroup
	pending  atomic.Int64
	lastUsed atomic.Int64 // unix nanos
}

type SessionConfig struct {
	Identity domain.Identity
	Repo     Repository
	Storage  cache.LocalStorage
	// Publisher receives every notification in addition to the session inbox.
	Publisher     notify.Notifier
	Log           *zap.Logger
	RemoteTimeout time.Duration
	// Tracker, when set, also counts the session's background calls so an
	// owner can wait on them after dropping the session.
	Tracker *sync.WaitGroup
}

func NewSession(cfg SessionConfig) *Session {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.Stringer("identity", cfg.Identity))

	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}

	inbox := notify.NewBuffer(notify.DefaultBufferSize, log)
	s := &Session{
		identity:      cfg.Identity,
		repo:          cfg.Repo,
		storage:       cfg.Storage,
		inbox:         inbox,
		notifier:      notify.Multi{inbox, cfg.Publisher},
		log:           log,
		remoteTimeout: timeout,
		newID:         uuid.NewString,
		now:           time.Now,
		state:         StateUninitialized,
		tracker:       cfg.Tracker,
	}
	s.touch(s.now())
	return s
}

func (s *Session) Identity() domain.Identity { return s.identity }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Loaded() bool { return s.State() == StateLoaded }

// Load establishes the item list from the repository. It runs once; later
// calls return immediately and leave local edits alone. On failure the
// session stays uninitialized and Load may be retried.
func (s *Session) Load(ctx context.Context, products domain.ProductIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateLoaded {
		return nil
	}

	items, err := s.repo.Load(ctx, products)
	if err != nil {
		return fmt.Errorf("load %s cart: %w", s.identity, err)
	}

	s.products = products
	s.items = items
	s.state = StateLoaded
	s.log.Debug("cart session loaded", zap.Int("items", len(items)))
	s.mirrorLocked(ctx)
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.LineItem, len(s.items))
	copy(items, s.items)
	return Snapshot{
		CartItems:  items,
		CartTotals: CalculateTotals(items),
		IsLoading:  s.state != StateLoaded,
	}
}

// AddItem adds quantity of productID, merging into an existing line for the
// same product. An unknown product is reported as a notification.
func (s *Session) AddItem(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoaded {
		return ErrSessionNotLoaded
	}

	product, ok := s.products.Lookup(productID)
	if !ok {
		s.log.Info("add item: product not found", zap.String("product_id", productID))
		s.notify(ctx, domain.NotificationError, "Product not found")
		return nil
	}

	var item domain.LineItem
	if idx := s.indexByProduct(productID); idx >= 0 {
		s.items[idx].Quantity += quantity
		item = s.items[idx]
	} else {
		item = domain.LineItem{
			ID:        s.newID(),
			ProductID: productID,
			UserID:    s.ownerRef(),
			Quantity:  quantity,
			Product:   product,
		}
		s.items = append(s.items, item)
	}
	s.mirrorLocked(ctx)

	s.dispatch(ctx, "add", func(ctx context.Context) error {
		rowID, err := s.repo.Add(ctx, item)
		if err != nil {
			return err
		}
		if rowID != "" && rowID != item.ID {
			s.adoptID(ctx, item.ID, rowID)
		}
		return nil
	}, fmt.Sprintf("%s added to cart", product.Name), "Failed to add item to cart")
	return nil
}

// UpdateItem sets the quantity of a line. A quantity of zero or less
// removes it.
func (s *Session) UpdateItem(ctx context.Context, itemID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, itemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoaded {
		return ErrSessionNotLoaded
	}

	idx := s.indexByID(itemID)
	if idx < 0 {
		s.notify(ctx, domain.NotificationError, "Cart item not found")
		return nil
	}
	s.items[idx].Quantity = quantity
	s.mirrorLocked(ctx)

	s.dispatch(ctx, "update", func(ctx context.Context) error {
		return s.repo.Update(ctx, itemID, quantity)
	}, "Cart updated", "Failed to update cart")
	return nil
}

func (s *Session) RemoveItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoaded {
		return ErrSessionNotLoaded
	}

	idx := s.indexByID(itemID)
	if idx < 0 {
		s.notify(ctx, domain.NotificationError, "Cart item not found")
		return nil
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.mirrorLocked(ctx)

	s.dispatch(ctx, "remove", func(ctx context.Context) error {
		return s.repo.Remove(ctx, itemID)
	}, "Item removed from cart", "Failed to remove item from cart")
	return nil
}

// EmptyCart clears the cart and its local storage entry. Guest carts are
// left untouched.
func (s *Session) EmptyCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoaded {
		return ErrSessionNotLoaded
	}
	if !s.repo.CanEmpty() {
		s.log.Debug("empty cart ignored")
		return nil
	}

	s.items = []domain.LineItem{}
	key := s.identity.StorageKey()
	if err := s.storage.Delete(ctx, key); err != nil {
		s.log.Error("failed to delete local cart", zap.String("key", key), zap.Error(err))
	}

	s.dispatch(ctx, "clear", s.repo.Clear, "Cart cleared", "Failed to clear cart")
	return nil
}

// Notifications drains the notifications produced since the last call.
func (s *Session) Notifications() []domain.Notification {
	return s.inbox.Drain()
}

// Wait blocks until every background remote call has finished.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// dispatch runs call in the background, detached from ctx's cancellation.
func (s *Session) dispatch(ctx context.Context, op string, call func(context.Context) error, success, failure string) {
	remoteCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	s.pending.Add(1)
	if s.tracker != nil {
		s.tracker.Add(1)
	}
	go func() {
		defer func() {
			s.pending.Add(-1)
			s.inflight.Done()
			if s.tracker != nil {
				s.tracker.Done()
			}
		}()

		ctx, cancel := context.WithTimeout(remoteCtx, s.remoteTimeout)
		defer cancel()

		if err := call(ctx); err != nil {
			s.log.Error("remote cart operation failed", zap.String("op", op), zap.Error(err))
			s.notify(ctx, domain.NotificationError, failure)
			return
		}
		s.notify(ctx, domain.NotificationSuccess, success)
	}()
}

// adoptID renames a line to the id the remote store keeps it under.
func (s *Session) adoptID(ctx context.Context, localID, remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(localID)
	if idx < 0 {
		return
	}
	s.log.Debug("adopting remote row id",
		zap.String("local_id", localID), zap.String("row_id", remoteID))
	s.items[idx].ID = remoteID
	s.mirrorLocked(ctx)
}

func (s *Session) touch(t time.Time) {
	s.lastUsed.Store(t.UnixNano())
}

func (s *Session) lastUsedAt() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// busy reports whether remote calls are still running.
func (s *Session) busy() bool {
	return s.pending.Load() > 0
}

func (s *Session) notify(ctx context.Context, kind domain.NotificationKind, msg string) {
	s.notifier.Notify(ctx, domain.Notification{
		Kind:      kind,
		Message:   msg,
		Identity:  s.identity.String(),
		CreatedAt: s.now().UTC(),
	})
}

// mirrorLocked writes the list to local storage. An empty list is not
// written so it cannot overwrite a stored cart.
func (s *Session) mirrorLocked(ctx context.Context) {
	if len(s.items) == 0 {
		return
	}
	key := s.identity.StorageKey()
	data, err := encodeStored(s.items)
	if err != nil {
		s.log.Error("failed to encode cart", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, key, data); err != nil {
		s.log.Error("failed to write local cart", zap.String("key", key), zap.Error(err))
	}
}

func (s *Session) ownerRef() *string {
	if s.identity.IsGuest() {
		return nil
	}
	id := s.identity.UserID
	return &id
}

func (s *Session) indexByProduct(productID string) int {
	for i := range s.items {
		if s.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Session) indexByID(itemID string) int {
	for i := range s.items {
		if s.items[i].ID == itemID {
			return i
		}
	}
	return -1
}
