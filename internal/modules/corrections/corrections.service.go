package corrections

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/modules/attendance"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"github.com/waqasmani/attendance-scheduler/internal/shared/keylock"
	"github.com/waqasmani/attendance-scheduler/internal/shared/validator"
	"go.uber.org/zap"
)

const (
	minReasonLength = 10
	minNotesLength  = 5
)

// Service runs the correction workflow: pending -> approved | rejected.
type Service struct {
	store       domain.Store
	auditLogger *observability.AuditLogger
	notifier    domain.Notifier
	clock       calendar.Clock
	locks       *keylock.KeyLock
	validator   *validator.Validator
	logger      *observability.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// NewService wires the workflow. locks must be the per-employee lock shared
// with the attendance service.
func NewService(
	store domain.Store,
	auditLogger *observability.AuditLogger,
	notifier domain.Notifier,
	clock calendar.Clock,
	locks *keylock.KeyLock,
	validator *validator.Validator,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		store:       store,
		auditLogger: auditLogger,
		notifier:    notifier,
		clock:       clock,
		locks:       locks,
		validator:   validator,
		logger:      logger,
		metrics:     metrics,
		tracer:      observability.NewTracer("corrections"),
	}
}

func longEnough(s string, n int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= n
}

// Submit files a pending correction for one of the caller's ledger entries.
func (s *Service) Submit(ctx context.Context, p domain.EmployeePrincipal, req SubmitRequest) (*domain.Correction, error) {
	ctx, span := s.tracer.Start(ctx, "corrections.Submit")
	defer span.End()

	requestType := domain.CorrectionType(req.RequestType)
	if !requestType.Valid() {
		return nil, ErrInvalidRequestType
	}
	if !longEnough(req.Reason, minReasonLength) {
		return nil, ErrInvalidReason
	}

	entry, err := s.store.GetAttendance(ctx, req.AttendanceID)
	if stderrors.Is(err, domain.ErrRecordNotFound) ||
		(err == nil && (entry.EmployeeID != p.EmployeeID || entry.TenantID != p.TenantID)) {
		return nil, ErrAttendanceNotFound
	}
	if err != nil {
		return nil, wrapInternal(err, "Failed to load attendance entry")
	}

	if _, err := s.store.FindPendingCorrection(ctx, entry.ID); err == nil {
		return nil, ErrDuplicatePending
	} else if !stderrors.Is(err, domain.ErrRecordNotFound) {
		return nil, wrapInternal(err, "Failed to look up pending corrections")
	}

	tenant, err := s.tenant(ctx, entry.TenantID)
	if err != nil {
		return nil, err
	}
	if err := validateRequestedTimes(tenant, entry, requestType, req.RequestedCheckIn, req.RequestedCheckOut); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	correction := &domain.Correction{
		ID:           uuid.NewString(),
		AttendanceID: entry.ID,
		EmployeeID:   entry.EmployeeID,
		TenantID:     entry.TenantID,
		RequestType:  requestType,
		Reason:       strings.TrimSpace(req.Reason),
		Status:       domain.CorrectionPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if entry.CheckIn != nil {
		t := entry.CheckIn.Time
		correction.OriginalCheckIn = &t
	}
	if entry.CheckOut != nil {
		t := entry.CheckOut.Time
		correction.OriginalCheckOut = &t
	}
	if requestType.TouchesCheckIn() {
		t := req.RequestedCheckIn.UTC()
		correction.RequestedCheckIn = &t
	}
	if requestType.TouchesCheckOut() {
		t := req.RequestedCheckOut.UTC()
		correction.RequestedCheckOut = &t
	}

	if err := s.store.CreateCorrection(ctx, correction); err != nil {
		if stderrors.Is(err, domain.ErrDuplicateRecord) {
			return nil, ErrDuplicatePending
		}
		return nil, wrapInternal(err, "Failed to store correction request")
	}

	s.count(correction)
	s.recordAudit(ctx, &domain.AuditRecord{
		TenantID:   correction.TenantID,
		EntityType: domain.EntityCorrection,
		EntityID:   correction.ID,
		Action:     domain.AuditCorrectionRequest,
		After:      correction.Clone(),
		ActorID:    p.EmployeeID,
		ActorKind:  domain.ActorEmployee,
		Metadata:   map[string]any{"attendance_id": entry.ID},
	})
	s.notify(ctx, domain.Notification{
		RecipientID:   correction.TenantID,
		RecipientKind: domain.RecipientAdmin,
		Type:          domain.NotifyCorrectionRequest,
		Title:         "Attendance correction requested",
		Message:       fmt.Sprintf("Employee %s requested a %s correction for %s: %s", entry.EmployeeID, requestType, entry.WorkDate, correction.Reason),
		Data: map[string]any{
			"correction_id": correction.ID,
			"attendance_id": entry.ID,
			"employee_id":   entry.EmployeeID,
		},
		CreatedAt: now,
	})

	return correction, nil
}

// validateRequestedTimes checks the times the request type needs are present,
// fall on the entry's tenant-local day, and leave check-out after check-in.
func validateRequestedTimes(tenant *domain.Tenant, entry *domain.Attendance, typ domain.CorrectionType, in, out *time.Time) error {
	loc, err := tenant.Location()
	if err != nil {
		return wrapInternal(err, "Invalid tenant timezone")
	}

	var effectiveIn *time.Time
	if entry.CheckIn != nil {
		t := entry.CheckIn.Time
		effectiveIn = &t
	}
	if typ.TouchesCheckIn() {
		if in == nil {
			return ErrMissingCheckIn
		}
		if calendar.DateKey(*in, loc) != entry.WorkDate {
			return ErrDifferentDay
		}
		effectiveIn = in
	}

	if typ.TouchesCheckOut() {
		if out == nil {
			return ErrMissingCheckOut
		}
		if calendar.DateKey(*out, loc) != entry.WorkDate {
			return ErrDifferentDay
		}
		if effectiveIn == nil || !out.After(*effectiveIn) {
			return ErrCheckOutBeforeIn
		}
		return nil
	}

	// Check-in only: the existing check-out must stay after it.
	if entry.CheckOut != nil && !entry.CheckOut.Time.After(*effectiveIn) {
		return ErrCheckOutBeforeIn
	}
	return nil
}

// Approve applies the requested times to the ledger entry and re-derives its
// lateness, working hours and overtime.
func (s *Service) Approve(ctx context.Context, admin domain.AdminPrincipal, id, notes string) (*domain.Correction, *domain.Attendance, error) {
	ctx, span := s.tracer.Start(ctx, "corrections.Approve")
	defer span.End()

	correction, err := s.reviewable(ctx, admin, id)
	if err != nil {
		return nil, nil, err
	}
	tenant, err := s.tenant(ctx, correction.TenantID)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.locks.Lock(correction.EmployeeID)
	now := s.clock.Now().UTC()
	var before, after *domain.Attendance
	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		current, err := tx.GetCorrection(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != domain.CorrectionPending {
			return ErrNotPending
		}
		correction = current

		entry, err := tx.GetAttendance(ctx, correction.AttendanceID)
		if err != nil {
			return err
		}
		before = entry.Clone()
		if err := applyCorrection(entry, correction, tenant); err != nil {
			return err
		}
		entry.UpdatedAt = now
		if err := tx.UpdateAttendance(ctx, entry); err != nil {
			return err
		}
		after = entry

		correction.Status = domain.CorrectionApproved
		correction.ReviewedBy = admin.AdminID
		correction.ReviewedAt = &now
		correction.ReviewNotes = strings.TrimSpace(notes)
		correction.UpdatedAt = now
		return tx.ResolveCorrection(ctx, correction)
	})
	unlock()
	if err != nil {
		return nil, nil, translateReviewError(err, "Failed to approve correction")
	}

	s.count(correction)
	s.recordAudit(ctx, &domain.AuditRecord{
		TenantID:   correction.TenantID,
		EntityType: domain.EntityAttendance,
		EntityID:   after.ID,
		Action:     domain.AuditCorrectionApprove,
		Before:     before,
		After:      after.Clone(),
		ActorID:    admin.AdminID,
		ActorKind:  domain.ActorAdmin,
		Metadata: map[string]any{
			"correction_id": correction.ID,
			"request_type":  string(correction.RequestType),
		},
	})
	s.notify(ctx, domain.Notification{
		RecipientID:   correction.EmployeeID,
		RecipientKind: domain.RecipientEmployee,
		Type:          domain.NotifyCorrectionApproved,
		Title:         "Correction approved",
		Message:       fmt.Sprintf("Your %s correction for %s was approved.", correction.RequestType, after.WorkDate),
		Data: map[string]any{
			"correction_id": correction.ID,
			"attendance_id": after.ID,
		},
		CreatedAt: now,
	})

	return correction, after, nil
}

// applyCorrection writes the requested times onto entry. The entry may have
// gained a check-out since the request was filed, so ordering is checked
// again against what is stored now.
func applyCorrection(entry *domain.Attendance, c *domain.Correction, tenant *domain.Tenant) error {
	if c.RequestType.TouchesCheckIn() && c.RequestedCheckIn != nil {
		if entry.CheckIn == nil {
			entry.CheckIn = &domain.Punch{}
		}
		entry.CheckIn.Time = *c.RequestedCheckIn
		if err := attendance.ApplyLateness(entry, tenant); err != nil {
			return err
		}
	}
	if c.RequestType.TouchesCheckOut() && c.RequestedCheckOut != nil {
		if entry.CheckOut == nil {
			entry.CheckOut = &domain.Punch{}
		}
		entry.CheckOut.Time = *c.RequestedCheckOut
	}
	if entry.CheckOut != nil && (entry.CheckIn == nil || !entry.CheckOut.Time.After(entry.CheckIn.Time)) {
		return ErrCheckOutBeforeIn
	}
	if c.RequestType.TouchesCheckOut() && c.RequestedCheckOut != nil {
		return attendance.ApplyCheckOut(entry, tenant)
	}
	entry.RecomputeWorkingHours()
	return nil
}

// Reject closes a pending correction without touching the ledger.
func (s *Service) Reject(ctx context.Context, admin domain.AdminPrincipal, id, notes string) (*domain.Correction, error) {
	ctx, span := s.tracer.Start(ctx, "corrections.Reject")
	defer span.End()

	if !longEnough(notes, minNotesLength) {
		return nil, ErrInvalidNotes
	}
	correction, err := s.reviewable(ctx, admin, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	before := correction.Clone()
	correction.Status = domain.CorrectionRejected
	correction.ReviewedBy = admin.AdminID
	correction.ReviewedAt = &now
	correction.ReviewNotes = strings.TrimSpace(notes)
	correction.UpdatedAt = now
	if err := s.store.ResolveCorrection(ctx, correction); err != nil {
		// Approve may have resolved it since reviewable ran.
		if stderrors.Is(err, domain.ErrStaleRecord) {
			return nil, ErrNotPending
		}
		return nil, wrapInternal(err, "Failed to reject correction")
	}

	s.count(correction)
	s.recordAudit(ctx, &domain.AuditRecord{
		TenantID:   correction.TenantID,
		EntityType: domain.EntityCorrection,
		EntityID:   correction.ID,
		Action:     domain.AuditCorrectionReject,
		Before:     before,
		After:      correction.Clone(),
		ActorID:    admin.AdminID,
		ActorKind:  domain.ActorAdmin,
		Metadata:   map[string]any{"attendance_id": correction.AttendanceID},
	})
	s.notify(ctx, domain.Notification{
		RecipientID:   correction.EmployeeID,
		RecipientKind: domain.RecipientEmployee,
		Type:          domain.NotifyCorrectionRejected,
		Title:         "Correction rejected",
		Message:       "Your correction request was rejected: " + correction.ReviewNotes,
		Data: map[string]any{
			"correction_id": correction.ID,
			"attendance_id": correction.AttendanceID,
			"notes":         correction.ReviewNotes,
		},
		CreatedAt: now,
	})

	return correction, nil
}

// ListPending returns the admin's tenant's pending corrections, oldest first.
func (s *Service) ListPending(ctx context.Context, admin domain.AdminPrincipal) ([]domain.Correction, error) {
	list, err := s.store.ListPendingCorrections(ctx, admin.TenantID)
	if err != nil {
		return nil, wrapInternal(err, "Failed to list pending corrections")
	}
	return list, nil
}

// Get returns a correction visible to p: employees see only their own,
// admins only their tenant's.
func (s *Service) Get(ctx context.Context, p domain.Principal, id string) (*domain.Correction, error) {
	correction, err := s.store.GetCorrection(ctx, id)
	if stderrors.Is(err, domain.ErrRecordNotFound) {
		return nil, ErrCorrectionNotFound
	}
	if err != nil {
		return nil, wrapInternal(err, "Failed to load correction")
	}

	switch caller := p.(type) {
	case domain.AdminPrincipal:
		if correction.TenantID != caller.TenantID {
			return nil, ErrForbidden
		}
	case domain.EmployeePrincipal:
		if correction.EmployeeID != caller.EmployeeID || correction.TenantID != caller.TenantID {
			return nil, ErrCorrectionNotFound
		}
	}
	return correction, nil
}

// reviewable loads a correction and runs the ownership and status checks shared by approve and reject.
func (s *Service) reviewable(ctx context.Context, admin domain.AdminPrincipal, id string) (*domain.Correction, error) {
	correction, err := s.store.GetCorrection(ctx, id)
	if stderrors.Is(err, domain.ErrRecordNotFound) {
		return nil, ErrCorrectionNotFound
	}
	if err != nil {
		return nil, wrapInternal(err, "Failed to load correction")
	}
	if correction.TenantID != admin.TenantID {
		return nil, ErrForbidden
	}
	if correction.Status != domain.CorrectionPending {
		return nil, ErrNotPending
	}
	return correction, nil
}

func (s *Service) tenant(ctx context.Context, id string) (*domain.Tenant, error) {
	tenant, err := s.store.GetTenant(ctx, id)
	if stderrors.Is(err, domain.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, wrapInternal(err, "Failed to load tenant")
	}
	return tenant, nil
}

func translateReviewError(err error, message string) error {
	switch {
	case stderrors.Is(err, ErrNotPending):
		return ErrNotPending
	case stderrors.Is(err, ErrCheckOutBeforeIn):
		return ErrCheckOutBeforeIn
	case stderrors.Is(err, domain.ErrStaleRecord):
		// Either the correction was resolved or the entry changed underneath us.
		return ErrConcurrentUpdate
	case stderrors.Is(err, domain.ErrRecordNotFound):
		return ErrAttendanceNotFound
	}
	return wrapInternal(err, message)
}

func (s *Service) count(c *domain.Correction) {
	if s.metrics != nil {
		s.metrics.CorrectionsTotal.WithLabelValues(string(c.RequestType), string(c.Status)).Inc()
	}
}

func (s *Service) recordAudit(ctx context.Context, rec *domain.AuditRecord) {
	if err := s.auditLogger.Record(ctx, rec); err != nil {
		s.logger.Error(ctx, "Failed to append audit record",
			zap.String("entity_id", rec.EntityID),
			zap.String("action", rec.Action),
			zap.Error(err),
		)
	}
}

func (s *Service) notify(ctx context.Context, n domain.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn(ctx, "Failed to deliver notification",
			zap.String("type", n.Type),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err),
		)
	}
}
