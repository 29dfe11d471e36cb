package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/cartsync/internal/domain"
	r "github.com/fjod/cartsync/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic   = "checkout-outbox"
	GroupID = "cart-service-consumer"
)

var ErrInvalidPayload = errors.New("invalid checkout payload")

// StorageSweeper removes a local storage key from every device.
type StorageSweeper interface {
	DeleteEverywhere(ctx context.Context, key string) (int, error)
}

// SessionEvicter drops the live sessions of a user.
type SessionEvicter interface {
	EvictUser(userID string) int
}

// Poller empties a user's cart everywhere once their checkout completes.
type Poller struct {
	store    r.CartStore
	storage  StorageSweeper
	sessions SessionEvicter
	reader   *kafka.Reader
	log      *zap.Logger
}

func NewPoller(store r.CartStore, storage StorageSweeper, sessions SessionEvicter, log *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		store:    store,
		storage:  storage,
		sessions: sessions,
		reader:   reader,
		log:      log.With(zap.String("component", "checkout-poller")),
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.getMessageAndEmptyCart(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", zap.Error(err))
	}
}

func (p *Poller) getMessageAndEmptyCart(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("error reading message", zap.Error(err))
		}
		return
	}

	if err := p.HandleMessage(ctx, m.Value); err != nil {
		p.log.Error("failed to handle checkout message",
			zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

type checkoutCompleted struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

// HandleMessage clears the remote rows, every device's mirrored copy and the
// live sessions of the user named in a checkout payload. Each step runs even
// if an earlier one failed; the first error is returned.
func (p *Poller) HandleMessage(ctx context.Context, value []byte) error {
	var payload checkoutCompleted
	if err := json.Unmarshal(value, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}

	var firstErr error
	if err := p.store.ClearCart(ctx, payload.UserID); err != nil && !errors.Is(err, r.ErrItemNotFound) {
		p.log.Error("failed to clear remote cart", zap.String("user_id", payload.UserID), zap.Error(err))
		firstErr = fmt.Errorf("clear remote cart: %w", err)
	}

	key := domain.User(payload.UserID).StorageKey()
	n, err := p.storage.DeleteEverywhere(ctx, key)
	if err != nil {
		p.log.Error("failed to delete local carts", zap.String("key", key), zap.Error(err))
		if firstErr == nil {
			firstErr = fmt.Errorf("delete local carts: %w", err)
		}
	}

	evicted := p.sessions.EvictUser(payload.UserID)
	p.log.Info("cart emptied after checkout",
		zap.String("checkout_id", payload.CheckoutID),
		zap.String("user_id", payload.UserID),
		zap.Int("local_copies", n),
		zap.Int("sessions", evicted))
	return firstErr
}
