package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/notify"
	"github.com/fjod/cartsync/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Catalog is the read side of the product catalog.
type Catalog interface {
	GetAllProducts(ctx context.Context) ([]*domain.Product, error)
}

// DeviceStorage hands out the local storage of a device.
type DeviceStorage interface {
	ForDevice(deviceID string) cache.LocalStorage
}

type sessionKey struct {
	deviceID string
	identity domain.Identity
}

func (k sessionKey) String() string {
	return k.deviceID + "/" + k.identity.String()
}

const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Manager owns the live cart sessions. A guest and a user on the same device
// get separate sessions with separate storage keys; nothing is merged.
type Manager struct {
	catalog       Catalog
	store         repository.CartStore
	storage       DeviceStorage
	publisher     notify.Notifier
	log           *zap.Logger
	remoteTimeout time.Duration
	now           func() time.Time

	mu       sync.RWMutex
	sessions map[sessionKey]*Session
	sfg      singleflight.Group // one load per session key
	inflight sync.WaitGroup     // background calls of every session, live or dropped
}

func NewManager(
	catalog Catalog,
	store repository.CartStore,
	storage DeviceStorage,
	publisher notify.Notifier,
	log *zap.Logger,
	remoteTimeout time.Duration,
) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if remoteTimeout <= 0 {
		remoteTimeout = defaultRemoteTimeout
	}
	return &Manager{
		catalog:       catalog,
		store:         store,
		storage:       storage,
		publisher:     publisher,
		log:           log,
		remoteTimeout: remoteTimeout,
		now:           time.Now,
		sessions:      make(map[sessionKey]*Session),
	}
}

// Session returns the loaded session for identity on deviceID, creating and
// loading it on first use. If loading fails the unloaded session is returned
// together with the error so callers can still render a loading state.
//
// Concurrent callers share one load. The load runs detached from any single
// caller and is bounded by the remote timeout; each caller only waits on it
// for as long as its own ctx allows.
func (m *Manager) Session(ctx context.Context, deviceID string, identity domain.Identity) (*Session, error) {
	key := sessionKey{deviceID: deviceID, identity: identity}
	s := m.getOrCreate(key)
	s.touch(m.now())
	if s.Loaded() {
		return s, nil
	}

	ch := m.sfg.DoChan(key.String(), func() (interface{}, error) {
		if s.Loaded() {
			return nil, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.remoteTimeout)
		defer cancel()

		products, err := m.catalog.GetAllProducts(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("get products: %w", err)
		}
		return nil, s.Load(loadCtx, domain.NewProductIndex(products))
	})

	var err error
	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil && !s.Loaded() {
		// joined a load of a session that was expired and replaced meanwhile
		err = ErrSessionNotLoaded
	}
	if err != nil {
		m.log.Warn("cart session load failed",
			zap.String("device_id", deviceID),
			zap.Stringer("identity", identity),
			zap.Error(err))
		return s, err
	}
	return s, nil
}

func (m *Manager) getOrCreate(key sessionKey) *Session {
	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}

	storage := m.storage.ForDevice(key.deviceID)
	s = NewSession(SessionConfig{
		Identity:      key.identity,
		Repo:          m.repositoryFor(key.identity, storage),
		Storage:       storage,
		Publisher:     m.publisher,
		Log:           m.log.With(zap.String("device_id", key.deviceID)),
		RemoteTimeout: m.remoteTimeout,
		Tracker:       &m.inflight,
	})
	m.sessions[key] = s
	return s
}

func (m *Manager) repositoryFor(identity domain.Identity, storage cache.LocalStorage) Repository {
	if identity.IsGuest() {
		return NewGuestRepository(storage, m.log)
	}
	return NewRemoteRepository(m.store, identity.UserID, m.log)
}

// EvictUser drops every session of userID so the next request reloads from
// the remote store. It returns the number of sessions dropped.
func (m *Manager) EvictUser(userID string) int {
	if userID == "" {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key := range m.sessions {
		if key.identity.UserID == userID {
			delete(m.sessions, key)
			evicted++
		}
	}
	return evicted
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ExpireIdle drops sessions not used for idleTTL and returns how many were
// dropped. Sessions with remote calls still running are kept. A dropped
// session is rebuilt from storage on its next request.
func (m *Manager) ExpireIdle(idleTTL time.Duration) int {
	cutoff := m.now().Add(-idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for key, s := range m.sessions {
		if s.busy() || s.lastUsedAt().After(cutoff) {
			continue
		}
		delete(m.sessions, key)
		expired++
	}
	return expired
}

// RunCleanup expires idle sessions every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval, idleTTL time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.ExpireIdle(idleTTL); n > 0 {
				m.log.Debug("expired idle cart sessions", zap.Int("count", n), zap.Int("live", m.Len()))
			}
		}
	}
}

// Wait blocks until the background calls of every session finish, including
// sessions already evicted or expired.
func (m *Manager) Wait() {
	m.inflight.Wait()
}
