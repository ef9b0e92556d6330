// Package service contains the OpsForge application services: the deployment
// lifecycle controller, the agent task pipeline and its workflows, the intent
// router and notification fan-out.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/OpsForge/internal/port/notifier"
)

// Notification sources emitted by the workflows.
const (
	SourceDeployCompleted      = "deploy.completed"
	SourceRollbackCompleted    = "rollback.completed"
	SourceRollbackConfirmation = "rollback.confirmation_required"
	SourceReviewCompleted      = "review.completed"
	SourceSecurityHighRisk     = "security.high_risk"
	SourceIncidentOpened       = "incident.opened"
	SourceMonitorUnhealthy     = "monitor.unhealthy"
	SourceTaskFailed           = "task.failed"
)

// NotificationService dispatches notifications to the configured channels.
type NotificationService struct {
	notifiers     []notifier.Notifier
	byName        map[string]notifier.Notifier
	enabledEvents map[string]bool
}

// NewNotificationService creates a NotificationService with the given notifiers
// and list of enabled sources (e.g., "deploy.completed", "task.failed").
// If enabledEvents is nil or empty, all sources are enabled.
func NewNotificationService(notifiers []notifier.Notifier, enabledEvents []string) *NotificationService {
	enabled := make(map[string]bool, len(enabledEvents))
	for _, e := range enabledEvents {
		enabled[e] = true
	}
	byName := make(map[string]notifier.Notifier, len(notifiers))
	for _, n := range notifiers {
		byName[n.Name()] = n
	}
	return &NotificationService{
		notifiers:     notifiers,
		byName:        byName,
		enabledEvents: enabled,
	}
}

func (s *NotificationService) enabled(source string) bool {
	return len(s.enabledEvents) == 0 || s.enabledEvents[source]
}

// Notify sends a notification to all registered notifiers.
// Errors are logged but do not interrupt delivery to other notifiers.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) {
	if s == nil || !s.enabled(n.Source) {
		return
	}

	for _, provider := range s.notifiers {
		if err := provider.Send(ctx, n); err != nil {
			slog.WarnContext(ctx, "notification send failed",
				"provider", provider.Name(),
				"title", n.Title,
				"error", err,
			)
			continue
		}
		slog.DebugContext(ctx, "notification sent", "provider", provider.Name(), "title", n.Title)
	}
}

// Send delivers n to a single named channel. An empty channel falls back to Notify.
func (s *NotificationService) Send(ctx context.Context, channel string, n notifier.Notification) error {
	if s == nil || !s.enabled(n.Source) {
		return nil
	}
	if channel == "" {
		s.Notify(ctx, n)
		return nil
	}
	provider, ok := s.byName[channel]
	if !ok {
		return fmt.Errorf("notification channel %q: %w", channel, notifier.ErrNotConfigured)
	}
	if err := provider.Send(ctx, n); err != nil {
		return fmt.Errorf("send via %s: %w", channel, err)
	}
	return nil
}

// NotifierCount returns the number of registered notifiers.
func (s *NotificationService) NotifierCount() int {
	if s == nil {
		return 0
	}
	return len(s.notifiers)
}
