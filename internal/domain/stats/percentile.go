package stats

import (
	"math"
	"sort"
)

// PercentileSet - перцентили распределения одной метрики.
type PercentileSet struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// ComputePercentiles считает p25, p50, p75 и p90 за одну сортировку.
// Срез values не изменяется; для пустого набора все значения равны 0.
func ComputePercentiles(values []float64) PercentileSet {
	if len(values) == 0 {
		return PercentileSet{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return PercentileSet{
		P25: nearestRank(sorted, 25),
		P50: nearestRank(sorted, 50),
		P75: nearestRank(sorted, 75),
		P90: nearestRank(sorted, 90),
	}
}

// nearestRank - метод ближайшего ранга над отсортированным срезом:
// index = ceil(p/100 * n) - 1, не меньше нуля.
func nearestRank(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Band возвращает наибольший перцентиль из набора, которого достигает value:
// 90, 75, 50, 25 или 0.
func (s PercentileSet) Band(value float64) int {
	switch {
	case value >= s.P90:
		return 90
	case value >= s.P75:
		return 75
	case value >= s.P50:
		return 50
	case value >= s.P25:
		return 25
	default:
		return 0
	}
}
