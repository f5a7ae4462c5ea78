// Package privacy содержит модель настроек приватности участника группы:
// кто может видеть каждую категорию его статистики и список учебных партнёров.
package privacy

import (
	"fmt"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Category - категория данных, для которой задаётся видимость.
type Category string

const (
	CategoryStudyHours      Category = "study_hours"
	CategoryStudyStreak     Category = "study_streak"
	CategorySubjectProgress Category = "subject_progress"
	CategoryGoalCompletion  Category = "goal_completion"
	CategoryTestScores      Category = "test_scores"
	CategoryAchievements    Category = "achievements"
	CategoryStudySchedule   Category = "study_schedule"
)

// AllCategories возвращает все категории в каноническом порядке.
func AllCategories() []Category {
	return []Category{
		CategoryStudyHours,
		CategoryStudyStreak,
		CategorySubjectProgress,
		CategoryGoalCompletion,
		CategoryTestScores,
		CategoryAchievements,
		CategoryStudySchedule,
	}
}

// IsValid проверяет, что категория известна.
func (c Category) IsValid() bool {
	switch c {
	case CategoryStudyHours, CategoryStudyStreak, CategorySubjectProgress,
		CategoryGoalCompletion, CategoryTestScores, CategoryAchievements,
		CategoryStudySchedule:
		return true
	default:
		return false
	}
}

// categoryAliases - camelCase написания, которые принимает API.
var categoryAliases = map[string]Category{
	"studyHours":      CategoryStudyHours,
	"studyStreak":     CategoryStudyStreak,
	"subjectProgress": CategorySubjectProgress,
	"goalCompletion":  CategoryGoalCompletion,
	"testScores":      CategoryTestScores,
	"studySchedule":   CategoryStudySchedule,
}

// ParseCategory разбирает имя категории; camelCase равнозначен snake_case.
func ParseCategory(s string) (Category, error) {
	if c, ok := categoryAliases[s]; ok {
		return c, nil
	}
	c := Category(s)
	if !c.IsValid() {
		return "", shared.NewDomainError("privacy", "ParseCategory", shared.ErrInvalidInput, fmt.Sprintf("unknown category %q", s))
	}
	return c, nil
}

// Visibility - уровень видимости категории.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityGroup    Visibility = "group"
	VisibilityPartners Visibility = "partners"
)

// IsValid проверяет, что уровень известен.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPrivate, VisibilityGroup, VisibilityPartners:
		return true
	default:
		return false
	}
}

// DefaultVisibility возвращает уровень по умолчанию для категории.
// Результаты тестов и расписание по умолчанию видны только партнёрам.
func DefaultVisibility(c Category) Visibility {
	switch c {
	case CategoryTestScores, CategoryStudySchedule:
		return VisibilityPartners
	default:
		return VisibilityGroup
	}
}

// DisplayPreferences - настройки отображения. Фильтр видимости их не читает.
type DisplayPreferences struct {
	ShowRealName        bool `json:"showRealName"`
	ShowInLeaderboard   bool `json:"showInLeaderboard"`
	AllowDataComparison bool `json:"allowDataComparison"`
	ShowMilestones      bool `json:"showMilestones"`
}

// DefaultDisplayPreferences возвращает настройки по умолчанию.
func DefaultDisplayPreferences() DisplayPreferences {
	return DisplayPreferences{
		ShowRealName:        true,
		ShowInLeaderboard:   true,
		AllowDataComparison: true,
		ShowMilestones:      true,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTNER
// ══════════════════════════════════════════════════════════════════════════════

// PartnerStatus - состояние запроса на партнёрство.
type PartnerStatus string

const (
	PartnerStatusPending  PartnerStatus = "pending"
	PartnerStatusAccepted PartnerStatus = "accepted"
	PartnerStatusDeclined PartnerStatus = "declined"
)

// IsValid проверяет, что статус известен.
func (s PartnerStatus) IsValid() bool {
	switch s {
	case PartnerStatusPending, PartnerStatusAccepted, PartnerStatusDeclined:
		return true
	default:
		return false
	}
}

// Partner - запись в списке партнёров владельца политики.
type Partner struct {
	UserID      string        `json:"partnerUserId"`
	Status      PartnerStatus `json:"status"`
	RequestedAt time.Time     `json:"requestedAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
	// PartneredAt заполняется при переходе в accepted.
	PartneredAt *time.Time `json:"partneredAt,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARE POLICY (aggregate root)
// ══════════════════════════════════════════════════════════════════════════════

// SharePolicy - настройки приватности пользователя в одной группе.
// Инвариант: Partners не содержит владельца и не более одной записи на партнёра.
type SharePolicy struct {
	UserID             string                  `json:"userId"`
	GroupID            string                  `json:"groupId"`
	Visibility         map[Category]Visibility `json:"visibility"`
	DisplayPreferences DisplayPreferences      `json:"displayPreferences"`
	Partners           []Partner               `json:"partners"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
}

// NewDefaultPolicy создаёт политику со значениями по умолчанию.
func NewDefaultPolicy(userID, groupID string, now time.Time) *SharePolicy {
	vis := make(map[Category]Visibility, len(AllCategories()))
	for _, c := range AllCategories() {
		vis[c] = DefaultVisibility(c)
	}
	return &SharePolicy{
		UserID:             userID,
		GroupID:            groupID,
		Visibility:         vis,
		DisplayPreferences: DefaultDisplayPreferences(),
		Partners:           []Partner{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// VisibilityOf возвращает уровень для категории, подставляя значение
// по умолчанию для отсутствующих ключей.
func (p *SharePolicy) VisibilityOf(c Category) Visibility {
	if v, ok := p.Visibility[c]; ok && v.IsValid() {
		return v
	}
	return DefaultVisibility(c)
}

// SetVisibility меняет уровень одной категории.
func (p *SharePolicy) SetVisibility(c Category, v Visibility, now time.Time) error {
	if !c.IsValid() {
		return shared.NewDomainError("privacy", "SetVisibility", shared.ErrInvalidInput, fmt.Sprintf("unknown category %q", c))
	}
	if !v.IsValid() {
		return shared.NewDomainError("privacy", "SetVisibility", shared.ErrInvalidInput, fmt.Sprintf("unknown visibility %q", v))
	}
	if p.Visibility == nil {
		p.Visibility = make(map[Category]Visibility)
	}
	p.Visibility[c] = v
	p.UpdatedAt = now
	return nil
}

// SetDisplayPreferences заменяет настройки отображения.
func (p *SharePolicy) SetDisplayPreferences(prefs DisplayPreferences, now time.Time) {
	p.DisplayPreferences = prefs
	p.UpdatedAt = now
}

// Partner возвращает запись о партнёре, если она есть.
func (p *SharePolicy) Partner(userID string) (Partner, bool) {
	for _, e := range p.Partners {
		if e.UserID == userID {
			return e, true
		}
	}
	return Partner{}, false
}

// IsAcceptedPartner проверяет, что userID - принятый партнёр владельца.
func (p *SharePolicy) IsAcceptedPartner(userID string) bool {
	e, ok := p.Partner(userID)
	return ok && e.Status == PartnerStatusAccepted
}

// PartnersWithStatus возвращает записи с указанным статусом в исходном порядке.
func (p *SharePolicy) PartnersWithStatus(status PartnerStatus) []Partner {
	out := make([]Partner, 0)
	for _, e := range p.Partners {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// Clone возвращает глубокую копию политики.
func (p *SharePolicy) Clone() *SharePolicy {
	if p == nil {
		return nil
	}
	c := *p
	c.Visibility = make(map[Category]Visibility, len(p.Visibility))
	for k, v := range p.Visibility {
		c.Visibility[k] = v
	}
	c.Partners = make([]Partner, len(p.Partners))
	copy(c.Partners, p.Partners)
	return &c
}
