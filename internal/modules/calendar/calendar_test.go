package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

type holidaySet map[string]bool

func (h holidaySet) IsHoliday(_ context.Context, tenantID, date string) (bool, error) {
	if tenantID == "broken" {
		return false, errors.New("store down")
	}
	return h[tenantID+"/"+date], nil
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestStartOfDayAndDateKey(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	// 2024-03-04 16:30 UTC is 2024-03-05 01:30 in Tokyo.
	instant := time.Date(2024, 3, 4, 16, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-05", DateKey(instant, tokyo))
	assert.Equal(t, "2024-03-04", DateKey(instant, time.UTC))

	sod := StartOfDay(instant, tokyo)
	assert.True(t, sod.Equal(time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)))

	parsed, err := ParseDateKey("2024-03-05", tokyo)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(sod))

	_, err = ParseDateKey("05/03/2024", tokyo)
	assert.Error(t, err)
}

func TestCombine(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	day := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	got, err := Combine(day, "09:00", ny)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 7, 1, 13, 0, 0, 0, time.UTC)))

	// Winter offset differs from summer.
	got, err = Combine(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), "09:00", ny)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)))

	_, err = Combine(day, "9am", ny)
	assert.Error(t, err)
	_, err = Combine(day, "24:00", ny)
	assert.Error(t, err)
}

func TestNextOccurrenceOfLocalTime(t *testing.T) {
	from := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

	next, err := NextOccurrenceOfLocalTime(time.UTC, "09:00", from)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)))

	next, err = NextOccurrenceOfLocalTime(time.UTC, "08:00", from)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC)), "exact match moves to the next day")

	next, err = NextOccurrenceOfLocalTime(time.UTC, "07:30", from)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 5, 11, 7, 30, 0, 0, time.UTC)))
}

func TestNextOccurrenceAcrossDST(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	// Clocks go forward on 2024-03-31; 09:00 local is 07:00 UTC afterwards.
	from := time.Date(2024, 3, 30, 10, 0, 0, 0, time.UTC)

	next, err := NextOccurrenceOfLocalTime(berlin, "09:00", from)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 3, 31, 7, 0, 0, 0, time.UTC)))
}

func TestEndOfDayAndWholeMinutes(t *testing.T) {
	eod := EndOfDay(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), time.UTC)
	assert.True(t, eod.Equal(time.Date(2024, 5, 10, 23, 59, 59, 0, time.UTC)))

	assert.Equal(t, 0, WholeMinutes(-time.Minute))
	assert.Equal(t, 0, WholeMinutes(59*time.Second))
	assert.Equal(t, 20, WholeMinutes(20*time.Minute+59*time.Second))
}

func TestIsWorkingDay(t *testing.T) {
	cal := New(holidaySet{"t1/2024-05-08": true})
	tenant := &domain.Tenant{ID: "t1", Timezone: "UTC", WorkingDays: []int{1, 2, 3, 4, 5}}
	ctx := context.Background()

	tests := []struct {
		name    string
		instant time.Time
		want    bool
	}{
		{"weekday", time.Date(2024, 5, 7, 10, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2024, 5, 11, 10, 0, 0, 0, time.UTC), false},
		{"holiday on a wednesday", time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.IsWorkingDay(ctx, tenant, tt.instant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsWorkingDay_UsesTenantLocalWeekday(t *testing.T) {
	cal := New(holidaySet{})
	tenant := &domain.Tenant{ID: "t1", Timezone: "Pacific/Auckland", WorkingDays: []int{1, 2, 3, 4, 5}}

	// Friday 20:00 UTC is already Saturday in Auckland.
	ok, err := cal.IsWorkingDay(context.Background(), tenant, time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsWorkingDay_Errors(t *testing.T) {
	cal := New(holidaySet{})

	_, err := cal.IsWorkingDay(context.Background(), &domain.Tenant{ID: "t1", Timezone: "Mars/Olympus"}, time.Now())
	assert.Error(t, err)

	broken := &domain.Tenant{ID: "broken", Timezone: "UTC", WorkingDays: []int{0, 1, 2, 3, 4, 5, 6}}
	_, err = cal.IsWorkingDay(context.Background(), broken, time.Now())
	assert.Error(t, err)
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}
