package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

// AuditEventStore appends immutable audit records for registry mutations.
type AuditEventStore struct {
	db DB
}

const insertAuditEventQuery = `INSERT INTO audit_events (
	event_id,
	occurred_at,
	actor,
	action,
	resource_type,
	resource_id,
	request_id,
	payload
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

func NewAuditEventStore(db DB) *AuditEventStore {
	if db == nil {
		return nil
	}
	return &AuditEventStore{db: db}
}

func (s *AuditEventStore) Append(ctx context.Context, event domain.AuditEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit event store not initialized")
	}
	if err := event.Validate(); err != nil {
		return err
	}

	id := strings.TrimSpace(event.EventID)
	if id == "" {
		id = uuid.NewString()
	}

	var payload []byte
	if event.Payload != nil {
		encoded, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("encode audit payload: %w", err)
		}
		payload = encoded
	}

	_, err := s.db.ExecContext(
		ctx,
		insertAuditEventQuery,
		id,
		normalizeTime(event.OccurredAt),
		event.Actor,
		event.Action,
		event.ResourceType,
		event.ResourceID,
		event.RequestID,
		payload,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
