package domain

import "time"

type ActorKind string

const (
	ActorAdmin    ActorKind = "admin"
	ActorEmployee ActorKind = "employee"
	ActorSystem   ActorKind = "system"
)

// Audit actions.
const (
	AuditCreate               = "create"
	AuditUpdate               = "update"
	AuditCorrectionRequest    = "correction_request"
	AuditCorrectionApprove    = "correction_approve"
	AuditCorrectionReject     = "correction_reject"
	AuditAutoComplete         = "auto_complete"
	AuditTenantSettingsUpdate = "tenant_settings_update"
	AuditTenantActivate       = "tenant_activate"
	AuditTenantDeactivate     = "tenant_deactivate"
)

// Audit entity types.
const (
	EntityAttendance = "attendance"
	EntityCorrection = "correction"
	EntityTenant     = "tenant"
)

// AuditRecord is append-only.
type AuditRecord struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Before     any            `json:"before,omitempty"`
	After      any            `json:"after,omitempty"`
	ActorID    string         `json:"actor_id"`
	ActorKind  ActorKind      `json:"actor_kind"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
