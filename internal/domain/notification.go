package domain

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationSuccess, NotificationError, NotificationWarning, NotificationInfo:
		return true
	}
	return false
}

// Notification es un mensaje efimero visible para el usuario (toast).
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	Title     string           `json:"title,omitempty"`
	Duration  time.Duration    `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
}

type notificationJSON struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	Title      string           `json:"title,omitempty"`
	DurationMS int64            `json:"duration,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// MarshalJSON expone duration en milisegundos enteros.
func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(notificationJSON{
		ID:         n.ID,
		Type:       n.Type,
		Message:    n.Message,
		Title:      n.Title,
		DurationMS: n.Duration.Milliseconds(),
		CreatedAt:  n.CreatedAt,
	})
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw notificationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Notification{
		ID:        raw.ID,
		Type:      raw.Type,
		Message:   raw.Message,
		Title:     raw.Title,
		Duration:  time.Duration(raw.DurationMS) * time.Millisecond,
		CreatedAt: raw.CreatedAt,
	}
	return nil
}
