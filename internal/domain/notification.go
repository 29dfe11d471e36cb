package domain

import "time"

type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Notification is a transient user-facing message, the server-side
// equivalent of a toast.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Identity  string           `json:"identity"`
	CreatedAt time.Time        `json:"created_at"`
}
