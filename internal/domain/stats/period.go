// Package stats содержит агрегацию учебной статистики группы: окна периодов,
// снимок GroupStatsSnapshot, перцентили и правило устаревания.
// Всё в пакете детерминировано и не обращается к хранилищам.
package stats

import (
	"fmt"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/pkg/timeutil"
)

// Period - тип периода, за который считается снимок.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

// AllPeriods возвращает все периоды.
func AllPeriods() []Period {
	return []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime}
}

// IsValid проверяет, что период известен.
func (p Period) IsValid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime:
		return true
	default:
		return false
	}
}

// ParsePeriod разбирает строку. Пустая строка означает weekly.
func ParsePeriod(s string) (Period, error) {
	if s == "" {
		return PeriodWeekly, nil
	}
	if s == "all-time" || s == "alltime" {
		return PeriodAllTime, nil
	}
	p := Period(s)
	if !p.IsValid() {
		return "", shared.NewDomainError("stats", "ParsePeriod", shared.ErrInvalidInput, fmt.Sprintf("unknown period %q", s))
	}
	return p, nil
}

// AllTimeStart - начало окна all_time.
var AllTimeStart = time.Unix(0, 0).UTC()

// DateRange - полуинтервал [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains проверяет, что t попадает в окно.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// WindowFor вычисляет окно периода для момента now.
// Дневное, недельное (с воскресенья) и месячное окна закрываются концом
// календарного интервала; all_time - моментом now.
func WindowFor(p Period, now time.Time, cal timeutil.Calendar) (DateRange, error) {
	switch p {
	case PeriodDaily:
		return DateRange{Start: cal.StartOfDay(now), End: cal.NextDay(now)}, nil
	case PeriodWeekly:
		return DateRange{Start: cal.StartOfWeek(now), End: cal.NextWeek(now)}, nil
	case PeriodMonthly:
		return DateRange{Start: cal.StartOfMonth(now), End: cal.NextMonth(now)}, nil
	case PeriodAllTime:
		return DateRange{Start: AllTimeStart, End: now.Add(time.Nanosecond)}, nil
	default:
		return DateRange{}, shared.NewDomainError("stats", "WindowFor", shared.ErrInvalidInput, fmt.Sprintf("unknown period %q", p))
	}
}
