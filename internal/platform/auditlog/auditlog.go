package auditlog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

// Recorder appends audit events for registry mutations. Append failures are
// logged and swallowed so auditing never fails the request itself.
type Recorder struct {
	appender repo.AuditEventAppender
	logger   *slog.Logger
}

func NewRecorder(appender repo.AuditEventAppender, logger *slog.Logger) *Recorder {
	return &Recorder{appender: appender, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, actor, action, resourceType, resourceID, requestID string, payload domain.Metadata) {
	if r == nil || r.appender == nil {
		return
	}
	if strings.TrimSpace(actor) == "" {
		actor = "anonymous"
	}

	event := domain.AuditEvent{
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    requestID,
		Payload:      payload,
	}
	if err := r.appender.Append(ctx, event); err != nil && r.logger != nil {
		r.logger.Warn("audit append failed",
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"request_id", requestID,
			"error", err.Error(),
		)
	}
}
