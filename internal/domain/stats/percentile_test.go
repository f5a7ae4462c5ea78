package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/pkg/timeutil"
)

func TestPercentile_NearestRank(t *testing.T) {
	values := []float64{40, 10, 30, 20}

	got := ComputePercentiles(values)
	assert.Equal(t, 20.0, got.P50)
	assert.Equal(t, 10.0, got.P25)
	assert.Equal(t, 30.0, got.P75)
	assert.Equal(t, 40.0, got.P90)
	assert.Equal(t, 10.0, nearestRank([]float64{10, 20, 30, 40}, 0))

	// Input order untouched.
	assert.Equal(t, []float64{40, 10, 30, 20}, values)
}

func TestPercentile_Edges(t *testing.T) {
	assert.Equal(t, PercentileSet{}, ComputePercentiles(nil))
	assert.Equal(t, PercentileSet{P25: 7, P50: 7, P75: 7, P90: 7}, ComputePercentiles([]float64{7}))
	assert.Equal(t, 7.0, nearestRank([]float64{7}, 1))
}

func TestComputePercentiles(t *testing.T) {
	got := ComputePercentiles([]float64{10, 20, 30, 40})
	assert.Equal(t, PercentileSet{P25: 10, P50: 20, P75: 30, P90: 40}, got)
	assert.Equal(t, PercentileSet{}, ComputePercentiles(nil))
}

func TestPercentileSet_Band(t *testing.T) {
	set := PercentileSet{P25: 10, P50: 20, P75: 30, P90: 40}
	assert.Equal(t, 90, set.Band(45))
	assert.Equal(t, 75, set.Band(30))
	assert.Equal(t, 50, set.Band(25))
	assert.Equal(t, 25, set.Band(10))
	assert.Equal(t, 0, set.Band(5))
}

func TestWindowFor(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	daily, err := WindowFor(PeriodDaily, now, cal)
	require.NoError(t, err)
	assert.Equal(t, DateRange{Start: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)}, daily)

	weekly, err := WindowFor(PeriodWeekly, now, cal)
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, weekly.Start.Weekday())
	assert.Equal(t, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), weekly.Start)

	monthly, err := WindowFor(PeriodMonthly, now, cal)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), monthly.Start)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), monthly.End)

	all, err := WindowFor(PeriodAllTime, now, cal)
	require.NoError(t, err)
	assert.Equal(t, AllTimeStart, all.Start)
	assert.True(t, all.Contains(now))

	_, err = WindowFor(Period("yearly"), now, cal)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeekly, p)

	p, err = ParsePeriod("all-time")
	require.NoError(t, err)
	assert.Equal(t, PeriodAllTime, p)

	_, err = ParsePeriod("hourly")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	assert.True(t, NeedsRefresh(nil, now, time.Hour))

	fresh := &Snapshot{LastComputedAt: now.Add(-30 * time.Minute)}
	assert.False(t, NeedsRefresh(fresh, now, time.Hour))

	edge := &Snapshot{LastComputedAt: now.Add(-time.Hour)}
	assert.False(t, NeedsRefresh(edge, now, time.Hour))

	stale := &Snapshot{LastComputedAt: now.Add(-61 * time.Minute)}
	assert.True(t, NeedsRefresh(stale, now, time.Hour))

	// Zero max age falls back to the default hour.
	assert.False(t, NeedsRefresh(fresh, now, 0))
}
