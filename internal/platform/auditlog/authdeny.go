package auditlog

import (
	"context"
	"strings"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/platform/auth"
	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

func AppendAuthDeny(ctx context.Context, appender repo.AuditEventAppender, service string, event auth.DenyEvent) error {
	actor := "anonymous"
	if strings.TrimSpace(event.Subject) != "" {
		actor = strings.TrimSpace(event.Subject)
	}

	return appender.Append(ctx, domain.AuditEvent{
		OccurredAt:   event.Time,
		Actor:        actor,
		Action:       "auth." + strings.TrimSpace(event.Reason),
		ResourceType: "http",
		ResourceID:   event.Method + " " + event.Path,
		RequestID:    event.RequestID,
		Payload: domain.Metadata{
			"service":     service,
			"status":      event.Status,
			"reason":      event.Reason,
			"error":       event.Error,
			"subject":     event.Subject,
			"email":       event.Email,
			"roles":       event.Roles,
			"remote_addr": event.RemoteAddr,
			"user_agent":  event.UserAgent,
		},
	})
}
