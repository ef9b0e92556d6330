// Package notifier defines the notification port (interface) and capabilities.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Levels accepted in Notification.Level.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Level   string            `json:"level"`
	Source  string            `json:"source"` // e.g. "deploy.completed", "security.high_risk"
	Fields  map[string]string `json:"fields,omitempty"`
}

// Capabilities declares which features a notifier supports.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	Threads        bool `json:"threads"`
}

// Notifier delivers notifications to one channel. Delivery is best effort.
type Notifier interface {
	// Name returns the channel name (e.g. "slack", "email").
	Name() string

	Capabilities() Capabilities

	Send(ctx context.Context, notification Notification) error
}
