package stats

import (
	"math"
	"sort"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/leaderboard"
)

// UncategorizedSubject подставляется для сессий без предмета.
const UncategorizedSubject = "uncategorized"

// Input - всё, что нужно для расчёта одного снимка.
type Input struct {
	SnapshotID string
	GroupID    string
	Period     Period
	Window     DateRange
	// Members в порядке источника; он же порядок при равных значениях в рейтингах.
	Members []group.Member
	// Sessions в порядке источника; он же порядок предметов при равных часах.
	Sessions        []group.Session
	Profiles        map[string]group.Profile
	ComputedAt      time.Time
	LeaderboardSize int
}

type memberAcc struct {
	minutes      int
	sessions     int
	productivity float64
	subjects     map[string]int
}

type subjectAcc struct {
	name         string
	minutes      int
	members      map[string]struct{}
	productivity float64
	sessions     int
}

// Compute строит снимок. Функция детерминирована и не изменяет Input:
// одинаковый вход даёт одинаковые memberStats, subjectStats, рейтинги и перцентили.
func Compute(in Input) (*Snapshot, error) {
	members := activeMembers(in.Members)

	accs := make(map[string]*memberAcc, len(members))
	for _, m := range members {
		accs[m.UserID] = &memberAcc{subjects: make(map[string]int)}
	}

	var subjectOrder []*subjectAcc
	subjects := make(map[string]*subjectAcc)

	for _, s := range in.Sessions {
		acc, ok := accs[s.UserID]
		if !ok || s.DurationMinutes < 0 || !in.Window.Contains(s.StartedAt) {
			continue
		}
		name := s.Subject
		if name == "" {
			name = UncategorizedSubject
		}

		acc.minutes += s.DurationMinutes
		acc.sessions++
		acc.productivity += s.ProductivityScore
		acc.subjects[name] += s.DurationMinutes

		sa, ok := subjects[name]
		if !ok {
			sa = &subjectAcc{name: name, members: make(map[string]struct{})}
			subjects[name] = sa
			subjectOrder = append(subjectOrder, sa)
		}
		sa.minutes += s.DurationMinutes
		sa.members[s.UserID] = struct{}{}
		sa.productivity += s.ProductivityScore
		sa.sessions++
	}

	aggregates := make([]MemberAggregate, 0, len(members))
	var (
		totalMinutes int
		streakSum    int
		longest      int
		goals        int
	)
	for _, m := range members {
		acc := accs[m.UserID]
		profile := in.Profiles[m.UserID]

		agg := MemberAggregate{
			UserID:         m.UserID,
			StudyHours:     round2(hours(acc.minutes)),
			SessionCount:   acc.sessions,
			Streak:         profile.CurrentStreak,
			GoalsCompleted: profile.GoalsCompleted,
		}
		if acc.sessions > 0 {
			agg.Productivity = round2(acc.productivity / float64(acc.sessions))
		}
		if len(acc.subjects) > 0 {
			agg.SubjectHours = make(map[string]float64, len(acc.subjects))
			for name, mins := range acc.subjects {
				agg.SubjectHours[name] = round2(hours(mins))
			}
		}
		aggregates = append(aggregates, agg)

		totalMinutes += acc.minutes
		streakSum += profile.CurrentStreak
		if profile.CurrentStreak > longest {
			longest = profile.CurrentStreak
		}
		goals += profile.GoalsCompleted
	}

	memberStats := MemberStats{
		ActiveMemberCount:   len(members),
		TotalStudyHours:     round2(hours(totalMinutes)),
		LongestStreak:       longest,
		TotalGoalsCompleted: goals,
	}
	if n := len(members); n > 0 {
		memberStats.AverageStudyHours = round2(hours(totalMinutes) / float64(n))
		memberStats.AverageStreak = round2(float64(streakSum) / float64(n))
	}

	snapshot := &Snapshot{
		ID:             in.SnapshotID,
		GroupID:        in.GroupID,
		Period:         in.Period,
		DateRange:      in.Window,
		MemberStats:    memberStats,
		SubjectStats:   subjectStats(subjectOrder),
		Percentiles:    percentilesOf(aggregates),
		Members:        aggregates,
		LastComputedAt: in.ComputedAt,
	}

	board, err := leaderboard.NewBuilder(in.LeaderboardSize).Build(snapshot.Participants())
	if err != nil {
		return nil, err
	}
	snapshot.Leaderboards = board

	return snapshot, nil
}

// activeMembers оставляет активных участников без повторов, сохраняя порядок.
func activeMembers(all []group.Member) []group.Member {
	out := make([]group.Member, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, m := range all {
		if !m.IsActive() {
			continue
		}
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, m)
	}
	return out
}

func subjectStats(order []*subjectAcc) []SubjectStat {
	sorted := make([]*subjectAcc, len(order))
	copy(sorted, order)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].minutes > sorted[j].minutes
	})

	out := make([]SubjectStat, 0, len(sorted))
	for i, sa := range sorted {
		stat := SubjectStat{
			Subject:             sa.name,
			TotalHours:          round2(hours(sa.minutes)),
			DistinctMemberCount: len(sa.members),
			PopularityRank:      i + 1,
		}
		if sa.sessions > 0 {
			stat.AverageProductivity = round2(sa.productivity / float64(sa.sessions))
		}
		out = append(out, stat)
	}
	return out
}

func percentilesOf(aggs []MemberAggregate) Percentiles {
	hoursV := make([]float64, 0, len(aggs))
	streakV := make([]float64, 0, len(aggs))
	prodV := make([]float64, 0, len(aggs))
	for _, a := range aggs {
		hoursV = append(hoursV, a.StudyHours)
		streakV = append(streakV, float64(a.Streak))
		prodV = append(prodV, a.Productivity)
	}
	return Percentiles{
		StudyHours:   ComputePercentiles(hoursV),
		Streak:       ComputePercentiles(streakV),
		Productivity: ComputePercentiles(prodV),
	}
}

func hours(minutes int) float64 {
	return float64(minutes) / 60
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
