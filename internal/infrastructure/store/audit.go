package store

import (
	"context"
	"fmt"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

func (s *Store) AppendAudit(ctx context.Context, r *domain.AuditRecord) error {
	before, err := jsonValue(r.Before)
	if err != nil {
		return fmt.Errorf("encode audit before: %w", err)
	}
	after, err := jsonValue(r.After)
	if err != nil {
		return fmt.Errorf("encode audit after: %w", err)
	}
	var metadata any
	if len(r.Metadata) > 0 {
		if metadata, err = jsonValue(r.Metadata); err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_records (id, tenant_id, entity_type, entity_id, action,
		before_state, after_state, actor_id, actor_kind, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.EntityType, r.EntityID, r.Action, before, after, r.ActorID, string(r.ActorKind),
		metadata, r.CreatedAt.UTC())
	return translate(err, "append audit record")
}
