package stats

import (
	"context"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/leaderboard"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

// DefaultMaxAge - после этого возраста снимок пересчитывается при чтении.
const DefaultMaxAge = time.Hour

// ErrSnapshotNotFound возвращается, когда снимок ещё не считался.
var ErrSnapshotNotFound = shared.NewDomainError("stats", "FindSnapshot", shared.ErrNotFound, "snapshot not found")

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT PARTS
// ══════════════════════════════════════════════════════════════════════════════

// MemberStats - групповые показатели по активным участникам.
type MemberStats struct {
	ActiveMemberCount   int     `json:"activeMemberCount"`
	AverageStudyHours   float64 `json:"averageStudyHours"`
	TotalStudyHours     float64 `json:"totalStudyHours"`
	AverageStreak       float64 `json:"averageStreak"`
	LongestStreak       int     `json:"longestStreak"`
	TotalGoalsCompleted int     `json:"totalGoalsCompleted"`
}

// SubjectStat - показатели по одному предмету.
type SubjectStat struct {
	Subject             string  `json:"subject"`
	TotalHours          float64 `json:"totalHours"`
	DistinctMemberCount int     `json:"distinctMemberCount"`
	AverageProductivity float64 `json:"averageProductivity"`
	PopularityRank      int     `json:"popularityRank"`
}

// Percentiles - распределения основных метрик.
type Percentiles struct {
	StudyHours   PercentileSet `json:"studyHours"`
	Streak       PercentileSet `json:"streak"`
	Productivity PercentileSet `json:"productivity"`
}

// MemberAggregate - показатели одного участника за период.
type MemberAggregate struct {
	UserID         string             `json:"userId"`
	StudyHours     float64            `json:"studyHours"`
	SessionCount   int                `json:"sessionCount"`
	Productivity   float64            `json:"productivity"`
	Streak         int                `json:"streak"`
	GoalsCompleted int                `json:"goalsCompleted"`
	SubjectHours   map[string]float64 `json:"subjectHours,omitempty"`
}

// Score возвращает значение метрики лидерборда.
func (m MemberAggregate) Score(t leaderboard.Type) float64 {
	switch t {
	case leaderboard.TypeStudyHours:
		return m.StudyHours
	case leaderboard.TypeStreak:
		return float64(m.Streak)
	case leaderboard.TypeProductivity:
		return m.Productivity
	case leaderboard.TypeGoalsCompleted:
		return float64(m.GoalsCompleted)
	default:
		return 0
	}
}

// Participant превращает агрегат в участника рейтинга.
func (m MemberAggregate) Participant() leaderboard.Participant {
	scores := make(map[leaderboard.Type]float64, 4)
	for _, t := range leaderboard.AllTypes() {
		scores[t] = m.Score(t)
	}
	return leaderboard.Participant{MemberID: m.UserID, Scores: scores}
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT (aggregate root)
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - GroupStatsSnapshot: статистика группы за один период.
// После сохранения снимок не меняется; пересчёт создаёт новый и заменяет старый целиком.
type Snapshot struct {
	ID             string            `json:"id"`
	GroupID        string            `json:"groupId"`
	Period         Period            `json:"periodType"`
	DateRange      DateRange         `json:"dateRange"`
	MemberStats    MemberStats       `json:"memberStats"`
	SubjectStats   []SubjectStat     `json:"subjectStats"`
	Leaderboards   leaderboard.Board `json:"leaderboards"`
	Percentiles    Percentiles       `json:"percentiles"`
	Members        []MemberAggregate `json:"members"`
	LastComputedAt time.Time         `json:"lastComputedAt"`
}

// Age возвращает возраст снимка на момент now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.LastComputedAt)
}

// NeedsRefresh возвращает true, если снимка нет или он старше maxAge.
func NeedsRefresh(s *Snapshot, now time.Time, maxAge time.Duration) bool {
	if s == nil {
		return true
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return s.Age(now) > maxAge
}

// Member возвращает агрегат участника.
func (s *Snapshot) Member(userID string) (MemberAggregate, bool) {
	for _, m := range s.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return MemberAggregate{}, false
}

// Participants возвращает участников рейтинга в порядке Members.
func (s *Snapshot) Participants() []leaderboard.Participant {
	out := make([]leaderboard.Participant, 0, len(s.Members))
	for _, m := range s.Members {
		out = append(out, m.Participant())
	}
	return out
}

// Key - ключ хранения снимка.
type Key struct {
	GroupID string
	Period  Period
}

// SnapshotRepository хранит последний снимок для каждой пары (группа, период).
type SnapshotRepository interface {
	// Get возвращает снимок или ErrSnapshotNotFound.
	Get(ctx context.Context, key Key) (*Snapshot, error)

	// Save атомарно заменяет снимок. Читатели видят либо старый, либо новый
	// снимок целиком. При гонке побеждает последняя запись.
	Save(ctx context.Context, snapshot *Snapshot) error
}
