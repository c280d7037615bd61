package alerts

import (
	"time"

	"github.com/opay-dz/opay/internal/telegram"
)

// Task type constants
const (
	TaskTelegramNotify = "telegram:notify"
)

// Queue names
const (
	QueueNotify = "notify"
	QueueAlerts = "alerts"
)

// TelegramPayload is the body of a telegram:notify task.
type TelegramPayload struct {
	Type     string          `json:"type"`
	Record   telegram.Record `json:"record"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Notification is an in-app notification row.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference string     `json:"reference,omitempty"`
	Metadata  string     `json:"metadata,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}
