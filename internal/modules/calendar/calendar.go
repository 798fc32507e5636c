package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Clock provides the current instant.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ParseHHMM splits a "HH:MM" wall-clock string.
func ParseHHMM(s string) (hour, minute int, err error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// StartOfDay returns local midnight in loc of the calendar day containing instant.
func StartOfDay(instant time.Time, loc *time.Location) time.Time {
	local := instant.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DateKey formats the loc-local calendar date of instant as YYYY-MM-DD.
func DateKey(instant time.Time, loc *time.Location) string {
	return instant.In(loc).Format(DateLayout)
}

// ParseDateKey returns local midnight of a YYYY-MM-DD date in loc.
func ParseDateKey(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// Combine anchors a "HH:MM" wall-clock time to the loc-local calendar day of
// day. Times that fall in a DST gap are normalized by time.Date.
func Combine(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc), nil
}

// NextOccurrenceOfLocalTime returns the first instant strictly after from at
// which the wall clock in loc reads hhmm.
func NextOccurrenceOfLocalTime(loc *time.Location, hhmm string, from time.Time) (time.Time, error) {
	candidate, err := Combine(from, hhmm, loc)
	if err != nil {
		return time.Time{}, err
	}
	for !candidate.After(from) {
		next := StartOfDay(candidate, loc).AddDate(0, 0, 1)
		if candidate, err = Combine(next, hhmm, loc); err != nil {
			return time.Time{}, err
		}
	}
	return candidate, nil
}

// EndOfDay is the last whole second of the loc-local day containing instant.
func EndOfDay(instant time.Time, loc *time.Location) time.Time {
	local := instant.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc)
}

// WholeMinutes floors d to whole minutes, never below zero.
func WholeMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

type HolidayChecker interface {
	IsHoliday(ctx context.Context, tenantID, date string) (bool, error)
}

// Calendar answers working-day questions for tenants.
type Calendar struct {
	holidays HolidayChecker
}

func New(holidays HolidayChecker) *Calendar {
	return &Calendar{holidays: holidays}
}

// IsWorkingDay reports whether the tenant-local day containing instant is one
// of the tenant's working weekdays and not one of its holidays.
func (c *Calendar) IsWorkingDay(ctx context.Context, tenant *domain.Tenant, instant time.Time) (bool, error) {
	loc, err := tenant.Location()
	if err != nil {
		return false, fmt.Errorf("tenant %s timezone: %w", tenant.ID, err)
	}
	local := instant.In(loc)
	if !tenant.WorksOn(local.Weekday()) {
		return false, nil
	}
	holiday, err := c.holidays.IsHoliday(ctx, tenant.ID, local.Format(DateLayout))
	if err != nil {
		return false, fmt.Errorf("holiday lookup for tenant %s: %w", tenant.ID, err)
	}
	return !holiday, nil
}
