// Package leaderboard содержит доменную модель рейтингов учебной группы.
// Рейтинг строится по одной метрике, сортировка стабильная: при равных значениях
// сохраняется исходный порядок участников.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSize - длина публикуемого лидерборда.
const DefaultSize = 10

// Rank представляет позицию участника в лидерборде.
// Rank начинается с 1 (первое место).
type Rank int

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// Type - метрика, по которой строится лидерборд.
type Type string

const (
	TypeStudyHours     Type = "study_hours"
	TypeStreak         Type = "streak"
	TypeProductivity   Type = "productivity"
	TypeGoalsCompleted Type = "goals_completed"
)

// AllTypes возвращает все типы в порядке отображения.
func AllTypes() []Type {
	return []Type{TypeStudyHours, TypeStreak, TypeProductivity, TypeGoalsCompleted}
}

// IsValid проверяет, что тип известен.
func (t Type) IsValid() bool {
	switch t {
	case TypeStudyHours, TypeStreak, TypeProductivity, TypeGoalsCompleted:
		return true
	default:
		return false
	}
}

// typeAliases - альтернативные написания типов рейтинга.
var typeAliases = map[string]Type{
	"hours":          TypeStudyHours,
	"studyHours":     TypeStudyHours,
	"goalsCompleted": TypeGoalsCompleted,
}

// ParseType разбирает строку в Type.
func ParseType(s string) (Type, error) {
	if t, ok := typeAliases[s]; ok {
		return t, nil
	}
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - запись лидерборда. Идентичность участника сюда не входит:
// её добавляет фильтр видимости для конкретного зрителя.
type Entry struct {
	MemberID string  `json:"memberId"`
	Value    float64 `json:"value"`
	Rank     Rank    `json:"rank"`
}

// Participant - участник со значениями всех метрик.
type Participant struct {
	MemberID string
	Scores   map[Type]float64
}

// Score возвращает значение метрики (0, если нет).
func (p Participant) Score(t Type) float64 {
	return p.Scores[t]
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking - полный отсортированный список участников по одной метрике.
type Ranking struct {
	metric  Type
	entries []Entry
	byID    map[string]int
}

// NewRanking сортирует участников по убыванию метрики и присваивает ранги
// по позиции (1-based). Срез participants не изменяется.
func NewRanking(metric Type, participants []Participant) (*Ranking, error) {
	if !metric.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, metric)
	}

	entries := make([]Entry, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if _, dup := seen[p.MemberID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMember, p.MemberID)
		}
		seen[p.MemberID] = struct{}{}
		entries = append(entries, Entry{MemberID: p.MemberID, Value: p.Score(metric)})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value > entries[j].Value
	})

	byID := make(map[string]int, len(entries))
	for i := range entries {
		entries[i].Rank = Rank(i + 1)
		byID[entries[i].MemberID] = i
	}

	return &Ranking{metric: metric, entries: entries, byID: byID}, nil
}

// Top возвращает копию первых n записей.
func (r *Ranking) Top(n int) []Entry {
	if n <= 0 {
		return []Entry{}
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	result := make([]Entry, n)
	copy(result, r.entries[:n])
	return result
}

// RankOf возвращает ранг участника во всём рейтинге.
func (r *Ranking) RankOf(memberID string) (Rank, bool) {
	i, ok := r.byID[memberID]
	if !ok {
		return 0, false
	}
	return r.entries[i].Rank, true
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrUnknownType     = errors.New("unknown leaderboard type")
	ErrDuplicateMember = errors.New("member already in ranking")
)
