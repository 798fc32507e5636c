package tenants

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"gopkg.in/yaml.v3"
)

// HolidayCalendar is the YAML document read by the holiday importer:
//
//	tenants:
//	  - tenant_id: acme
//	    holidays:
//	      - date: "2026-01-01"
//	        description: New Year
type HolidayCalendar struct {
	Tenants []TenantHolidays `yaml:"tenants"`
}

type TenantHolidays struct {
	TenantID string         `yaml:"tenant_id"`
	Holidays []HolidayEntry `yaml:"holidays"`
}

type HolidayEntry struct {
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
}

// ParseHolidayCalendar decodes and validates a holiday calendar.
func ParseHolidayCalendar(r io.Reader) (*HolidayCalendar, error) {
	var cal HolidayCalendar
	if err := yaml.NewDecoder(r).Decode(&cal); err != nil {
		return nil, fmt.Errorf("holidays: parse yaml: %w", err)
	}

	for i, t := range cal.Tenants {
		if t.TenantID == "" {
			return nil, fmt.Errorf("holidays: tenants[%d].tenant_id must be set", i)
		}
		for j, h := range t.Holidays {
			if _, err := calendar.ParseDateKey(h.Date, time.UTC); err != nil {
				return nil, fmt.Errorf("holidays: tenants[%d].holidays[%d]: %w", i, j, err)
			}
		}
	}
	return &cal, nil
}

// ImportHolidays upserts every holiday of the calendar, one transaction per
// tenant. Unknown tenants fail the import before anything is written for them.
// It returns the number of holidays written.
func ImportHolidays(ctx context.Context, store domain.Store, cal *HolidayCalendar) (int, error) {
	written := 0
	for _, t := range cal.Tenants {
		if _, err := store.GetTenant(ctx, t.TenantID); err != nil {
			if stderrors.Is(err, domain.ErrRecordNotFound) {
				return written, fmt.Errorf("tenant %s: %w", t.TenantID, ErrTenantNotFound)
			}
			return written, fmt.Errorf("tenant %s: %w", t.TenantID, err)
		}

		err := store.WithinTx(ctx, func(tx domain.Store) error {
			for _, h := range t.Holidays {
				if err := tx.UpsertHoliday(ctx, domain.Holiday{
					TenantID:    t.TenantID,
					Date:        h.Date,
					Description: h.Description,
				}); err != nil {
					return fmt.Errorf("holiday %s: %w", h.Date, err)
				}
			}
			return nil
		})
		if err != nil {
			return written, fmt.Errorf("tenant %s: %w", t.TenantID, err)
		}
		written += len(t.Holidays)
	}
	return written, nil
}
