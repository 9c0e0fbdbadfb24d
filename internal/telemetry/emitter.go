package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"perfreview/backend/internal/telemetry/domain"
)

// EventEmitter emits security events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.SecurityEvent) error
}

// Fanout emits each event to every non-nil emitter and joins their errors.
type Fanout []EventEmitter

func (f Fanout) Emit(ctx context.Context, event *domain.SecurityEvent) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewEvent returns an event with ID, Source and CreatedAt filled in.
func NewEvent(eventType, userID, sessionID, ip, detail string) *domain.SecurityEvent {
	return &domain.SecurityEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ip,
		Detail:    detail,
		Source:    "auth_service",
		CreatedAt: time.Now().UTC(),
	}
}
