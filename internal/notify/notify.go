// Package notify delivers the transient success and failure messages that
// cart operations produce.
package notify

import (
	"context"

	"github.com/fjod/cartsync/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// Multi fans a notification out to every non-nil notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n domain.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
