package audit

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"perfreview/backend/internal/audit/domain"
	auditrepo "perfreview/backend/internal/audit/repository"
)

const unknownIP = "unknown"

// IPExtractor returns the client IP stored on the request context.
type IPExtractor func(context.Context) string

// AuditLogger records one audit row. Recording never fails the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger persists audit rows through an audit repository.
type Logger struct {
	repo  auditrepo.Repository
	ip    IPExtractor
	now   func() time.Time
	newID func() string
}

// NewLogger returns a Logger writing to repo. A nil ip extractor records every row as "unknown".
func NewLogger(repo auditrepo.Repository, ip IPExtractor) *Logger {
	return &Logger{
		repo:  repo,
		ip:    ip,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// LogEvent builds the row and stores it. Metadata that is not a JSON object is wrapped as {"raw": ...}
// so the column always holds an object.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        l.newID(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        l.clientIP(ctx),
		Metadata:  normalizeMetadata(metadata),
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: %s on %s for user %q not recorded: %v", action, resource, userID, err)
	}
}

func (l *Logger) clientIP(ctx context.Context) string {
	if l.ip == nil {
		return unknownIP
	}
	raw := strings.TrimSpace(l.ip(ctx))
	if raw == "" {
		return unknownIP
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	return raw
}

func normalizeMetadata(metadata string) string {
	metadata = strings.TrimSpace(metadata)
	if metadata == "" {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(metadata), &obj); err == nil {
		return metadata
	}
	b, err := json.Marshal(map[string]string{"raw": metadata})
	if err != nil {
		return ""
	}
	return string(b)
}
