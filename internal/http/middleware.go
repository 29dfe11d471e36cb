package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	DeviceIDHeader = "X-Device-ID"
	UserIDHeader   = "X-User-ID"
)

type ctxKey int

const (
	deviceIDKey ctxKey = iota
	identityKey
)

// IdentityMiddleware resolves who is calling. X-Device-ID names the browser
// profile and is required. X-User-ID is trusted as-is; without it the
// caller is a guest. Ids may not contain ':' or glob characters since both
// end up inside local storage keys.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get(DeviceIDHeader)
		if deviceID == "" {
			respondError(w, http.StatusBadRequest, "missing_device_id", "X-Device-ID header is required")
			return
		}
		if !cache.ValidID(deviceID) {
			respondError(w, http.StatusBadRequest, "invalid_device_id", "X-Device-ID contains invalid characters")
			return
		}

		identity := domain.Guest()
		if userID := r.Header.Get(UserIDHeader); userID != "" {
			if !cache.ValidID(userID) {
				respondError(w, http.StatusBadRequest, "invalid_user_id", "X-User-ID contains invalid characters")
				return
			}
			identity = domain.User(userID)
		}

		ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
		ctx = context.WithValue(ctx, identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceIDFromContext(ctx context.Context) string {
	if deviceID, ok := ctx.Value(deviceIDKey).(string); ok {
		return deviceID
	}
	return ""
}

func identityFromContext(ctx context.Context) domain.Identity {
	if identity, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return identity
	}
	return domain.Guest()
}

// RequestLogger logs one line per request through log.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
