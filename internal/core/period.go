package core

import (
	"errors"
	"fmt"
	"time"
)

// Period is the calendar-month window scoping all aggregation queries.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) Validate() error {
	if p.Year < 1 {
		return errors.New("invalid year")
	}
	if p.Month < time.January || p.Month > time.December {
		return errors.New("invalid month")
	}
	return nil
}

// Start returns the first instant of the month in loc.
func (p Period) Start(loc *time.Location) time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
}

// Range returns the inclusive [start, end] window of the month as unix
// milliseconds: the first instant through the last millisecond, in loc.
func (p Period) Range(loc *time.Location) (start, end int64) {
	s := p.Start(loc)
	e := s.AddDate(0, 1, 0).Add(-time.Millisecond)
	return s.UnixMilli(), e.UnixMilli()
}

// Contains reports whether the unix-millisecond timestamp falls in the
// period's window.
func (p Period) Contains(millis int64, loc *time.Location) bool {
	start, end := p.Range(loc)
	return millis >= start && millis <= end
}

func (p Period) Next() Period {
	return PeriodOf(p.Start(time.UTC).AddDate(0, 1, 0))
}

func (p Period) Prev() Period {
	return PeriodOf(p.Start(time.UTC).AddDate(0, -1, 0))
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
