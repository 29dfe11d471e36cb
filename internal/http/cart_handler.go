package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/cartsync/internal/cart"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SessionProvider hands out loaded cart sessions.
type SessionProvider interface {
	Session(ctx context.Context, deviceID string, identity domain.Identity) (*cart.Session, error)
}

type CartHandler struct {
	sessions SessionProvider
	timeout  time.Duration
	log      *zap.Logger
}

func NewCartHandler(sessions SessionProvider, timeout time.Duration, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{
		sessions: sessions,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity,omitempty"`
}

type UpdateItemRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type NotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.AddItem(r.Context(), req.ProductID, quantity); err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")

	var req UpdateItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.UpdateItem(r.Context(), itemID, *req.Quantity); err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.RemoveItem(r.Context(), itemID); err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *CartHandler) EmptyCart(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.EmptyCart(r.Context()); err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *CartHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, NotificationsResponse{Notifications: session.Notifications()})
}

// session resolves the caller's session. On a load failure it writes a 503
// with the loading snapshot and reports false.
func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (*cart.Session, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deviceID := deviceIDFromContext(r.Context())
	identity := identityFromContext(r.Context())

	session, err := h.sessions.Session(ctx, deviceID, identity)
	if err != nil {
		h.log.Warn("cart not available",
			zap.String("device_id", deviceID),
			zap.Stringer("identity", identity),
			zap.Error(err))
		if session != nil {
			respondJSON(w, http.StatusServiceUnavailable, session.Snapshot())
			return nil, false
		}
		respondError(w, http.StatusServiceUnavailable, "cart_unavailable", "cart could not be loaded")
		return nil, false
	}
	return session, true
}

func (h *CartHandler) handleCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, cart.ErrSessionNotLoaded):
		respondError(w, http.StatusServiceUnavailable, "cart_loading", err.Error())
	default:
		h.log.Error("cart operation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}
