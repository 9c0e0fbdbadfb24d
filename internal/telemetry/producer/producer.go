// Package producer ships security events to Kafka and reads them back for the worker.
package producer

import (
	"context"

	"perfreview/backend/internal/telemetry/domain"
)

// Producer emits security events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	Emit(ctx context.Context, event *domain.SecurityEvent) error
	// Close releases the underlying writer. Safe to call if already closed.
	Close() error
}

// Message is one consumed event: the raw JSON value plus its position for committing.
type Message struct {
	Key       string
	Value     []byte
	Partition int
	Offset    int64
}
