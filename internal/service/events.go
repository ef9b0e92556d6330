package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/event"
	"github.com/Strob0t/OpsForge/internal/logger"
	"github.com/Strob0t/OpsForge/internal/port/eventlog"
)

// appendEvent writes ev to the event log. Failures are logged, never returned.
func appendEvent(ctx context.Context, log eventlog.Log, ev *event.Event, payload any) {
	if log == nil {
		return
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	if ev.RequestID == "" {
		ev.RequestID = logger.RequestID(ctx)
	}
	if ev.TaskID == "" {
		ev.TaskID = logger.TaskID(ctx)
	}
	if err := log.Append(ctx, ev); err != nil {
		slog.WarnContext(ctx, "event log append failed", "type", ev.Type, "subject", ev.Subject, "error", err)
	}
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
