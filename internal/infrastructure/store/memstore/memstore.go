// Package memstore is an in-process domain.Store. It backs the service tests
// and STORE_DRIVER=memory deployments.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

type tables struct {
	tenants     map[string]*domain.Tenant
	employees   map[string]*domain.Employee
	holidays    map[string]domain.Holiday // tenantID/date
	attendance  map[string]*domain.Attendance
	dayIndex    map[string]string // employeeID/workDate -> attendance id
	corrections map[string]*domain.Correction
	audit       []*domain.AuditRecord
}

func newTables() *tables {
	return &tables{
		tenants:     make(map[string]*domain.Tenant),
		employees:   make(map[string]*domain.Employee),
		holidays:    make(map[string]domain.Holiday),
		attendance:  make(map[string]*domain.Attendance),
		dayIndex:    make(map[string]string),
		corrections: make(map[string]*domain.Correction),
	}
}

// clone copies the maps; stored values are never mutated in place so they can be shared.
func (t *tables) clone() *tables {
	return &tables{
		tenants:     maps.Clone(t.tenants),
		employees:   maps.Clone(t.employees),
		holidays:    maps.Clone(t.holidays),
		attendance:  maps.Clone(t.attendance),
		dayIndex:    maps.Clone(t.dayIndex),
		corrections: maps.Clone(t.corrections),
		audit:       slices.Clone(t.audit),
	}
}

type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *tables
	// FailAudit makes AppendAudit fail, for exercising swallowed side effects.
	FailAudit error
}

var _ domain.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: newTables()}
}

// WithinTx serializes transactions and restores the previous state when fn
// fails. Writes outside a transaction also take txMu so a rollback never
// discards them.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(txView{s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// txView is the Store handed to WithinTx callbacks; its writes skip txMu,
// which the transaction already holds.
type txView struct{ *Store }

func (v txView) UpdateTenant(_ context.Context, t *domain.Tenant) error { return v.updateTenant(t) }
func (v txView) UpsertHoliday(_ context.Context, h domain.Holiday) error { return v.upsertHoliday(h) }
func (v txView) CreateAttendance(_ context.Context, a *domain.Attendance) error { return v.createAttendance(a) }
func (v txView) UpdateAttendance(_ context.Context, a *domain.Attendance) error { return v.updateAttendance(a) }
func (v txView) CreateCorrection(_ context.Context, c *domain.Correction) error { return v.createCorrection(c) }
func (v txView) ResolveCorrection(_ context.Context, c *domain.Correction) error { return v.resolveCorrection(c) }
func (v txView) AppendAudit(_ context.Context, r *domain.AuditRecord) error { return v.appendAudit(r) }

func (v txView) WithinTx(_ context.Context, fn func(domain.Store) error) error { return fn(v) }

// Writes.

func (s *Store) UpdateTenant(_ context.Context, t *domain.Tenant) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.updateTenant(t)
}

func (s *Store) UpsertHoliday(_ context.Context, h domain.Holiday) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.upsertHoliday(h)
}

func (s *Store) CreateAttendance(_ context.Context, a *domain.Attendance) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createAttendance(a)
}

func (s *Store) UpdateAttendance(_ context.Context, a *domain.Attendance) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.updateAttendance(a)
}

func (s *Store) CreateCorrection(_ context.Context, c *domain.Correction) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createCorrection(c)
}

func (s *Store) ResolveCorrection(_ context.Context, c *domain.Correction) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.resolveCorrection(c)
}

func (s *Store) AppendAudit(_ context.Context, r *domain.AuditRecord) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.appendAudit(r)
}


// Seeding helpers.

func (s *Store) PutTenant(t domain.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.tenants[t.ID] = t.Clone()
}

func (s *Store) PutEmployee(e domain.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.data.employees[e.ID] = &cp
}

// AuditTrail returns every appended audit record in order.
func (s *Store) AuditTrail() []domain.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditRecord, 0, len(s.data.audit))
	for _, r := range s.data.audit {
		out = append(out, *r)
	}
	return out
}

// Corrections returns every stored correction for an attendance entry.
func (s *Store) Corrections(attendanceID string) []domain.Correction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Correction
	for _, c := range s.data.corrections {
		if c.AttendanceID == attendanceID {
			out = append(out, *c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Tenants

func (s *Store) GetTenant(_ context.Context, id string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data.tenants[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return t.Clone(), nil
}

func (s *Store) ListActiveTenants(context.Context) ([]domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Tenant, 0, len(s.data.tenants))
	for _, t := range s.data.tenants {
		if t.Active {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) updateTenant(t *domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.tenants[t.ID]; !ok {
		return domain.ErrRecordNotFound
	}
	s.data.tenants[t.ID] = t.Clone()
	return nil
}

// Holidays

func holidayKey(tenantID, date string) string { return tenantID + "/" + date }

func (s *Store) IsHoliday(_ context.Context, tenantID, date string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.holidays[holidayKey(tenantID, date)]
	return ok, nil
}

func (s *Store) ListHolidays(_ context.Context, tenantID, from, to string) ([]domain.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Holiday
	for _, h := range s.data.holidays {
		if h.TenantID == tenantID && h.Date >= from && h.Date <= to {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) upsertHoliday(h domain.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.holidays[holidayKey(h.TenantID, h.Date)] = h
	return nil
}

// Employees

func (s *Store) GetEmployee(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data.employees[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListActiveEmployees(_ context.Context, tenantID string) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Employee
	for _, e := range s.data.employees {
		if e.TenantID == tenantID && e.Active {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Attendance

func dayKey(employeeID, workDate string) string { return employeeID + "/" + workDate }

func (s *Store) GetAttendance(_ context.Context, id string) (*domain.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data.attendance[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return a.Clone(), nil
}

func (s *Store) GetAttendanceForDay(_ context.Context, employeeID, workDate string) (*domain.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.data.dayIndex[dayKey(employeeID, workDate)]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return s.data.attendance[id].Clone(), nil
}

func (s *Store) createAttendance(a *domain.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey(a.EmployeeID, a.WorkDate)
	if _, exists := s.data.dayIndex[key]; exists {
		return domain.ErrDuplicateRecord
	}
	if _, exists := s.data.attendance[a.ID]; exists {
		return domain.ErrDuplicateRecord
	}
	a.Version = 1
	s.data.attendance[a.ID] = a.Clone()
	s.data.dayIndex[key] = a.ID
	return nil
}

func (s *Store) updateAttendance(a *domain.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data.attendance[a.ID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if current.Version != a.Version {
		return domain.ErrStaleRecord
	}
	a.Version++
	s.data.attendance[a.ID] = a.Clone()
	return nil
}

func (s *Store) ListAttendanceForDay(_ context.Context, tenantID, workDate string) ([]domain.Attendance, error) {
	return s.listAttendance(tenantID, workDate, false), nil
}

func (s *Store) ListOpenAttendance(_ context.Context, tenantID, workDate string) ([]domain.Attendance, error) {
	return s.listAttendance(tenantID, workDate, true), nil
}

func (s *Store) listAttendance(tenantID, workDate string, openOnly bool) []domain.Attendance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attendance
	for _, a := range s.data.attendance {
		if a.TenantID != tenantID || a.WorkDate != workDate {
			continue
		}
		if openOnly && !a.IsOpen() {
			continue
		}
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out
}

// Corrections

func (s *Store) createCorrection(c *domain.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.corrections[c.ID]; exists {
		return domain.ErrDuplicateRecord
	}
	if c.Status == domain.CorrectionPending {
		for _, existing := range s.data.corrections {
			if existing.AttendanceID == c.AttendanceID && existing.Status == domain.CorrectionPending {
				return domain.ErrDuplicateRecord
			}
		}
	}
	s.data.corrections[c.ID] = c.Clone()
	return nil
}

func (s *Store) GetCorrection(_ context.Context, id string) (*domain.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.corrections[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return c.Clone(), nil
}

func (s *Store) FindPendingCorrection(_ context.Context, attendanceID string) (*domain.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.corrections {
		if c.AttendanceID == attendanceID && c.Status == domain.CorrectionPending {
			return c.Clone(), nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (s *Store) resolveCorrection(c *domain.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data.corrections[c.ID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if current.Status != domain.CorrectionPending {
		return domain.ErrStaleRecord
	}
	s.data.corrections[c.ID] = c.Clone()
	return nil
}

func (s *Store) ListPendingCorrections(_ context.Context, tenantID string) ([]domain.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Correction
	for _, c := range s.data.corrections {
		if c.TenantID == tenantID && c.Status == domain.CorrectionPending {
			out = append(out, *c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Audit

func (s *Store) appendAudit(r *domain.AuditRecord) error {
	if s.FailAudit != nil {
		return s.FailAudit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.data.audit = append(s.data.audit, &cp)
	return nil
}
