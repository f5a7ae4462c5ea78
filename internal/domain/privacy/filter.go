package privacy

import (
	"context"
	"fmt"

	"github.com/alem-hub/studygroup-stats/internal/domain/leaderboard"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

// PlaceholderName показывается вместо имени скрытого участника.
const PlaceholderName = "Private User"

// CategoryFor возвращает категорию приватности для метрики лидерборда.
func CategoryFor(t leaderboard.Type) (Category, error) {
	switch t {
	case leaderboard.TypeStudyHours:
		return CategoryStudyHours, nil
	case leaderboard.TypeStreak:
		return CategoryStudyStreak, nil
	case leaderboard.TypeProductivity:
		return CategorySubjectProgress, nil
	case leaderboard.TypeGoalsCompleted:
		return CategoryGoalCompletion, nil
	default:
		return "", fmt.Errorf("%w: %q", leaderboard.ErrUnknownType, t)
	}
}

// Identity - как участник показан зрителю.
type Identity struct {
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Anonymized  bool   `json:"anonymized"`
}

// Placeholder возвращает обезличенную идентичность.
func Placeholder() Identity {
	return Identity{DisplayName: PlaceholderName, Anonymized: true}
}

// IdentityResolver возвращает имена и аватары пользователей.
type IdentityResolver interface {
	ResolveIdentities(ctx context.Context, userIDs []string) (map[string]Identity, error)
}

// VisibleEntry - запись лидерборда глазами конкретного зрителя.
// Значение и ранг сохраняются даже у скрытых участников.
type VisibleEntry struct {
	Identity
	Value    float64          `json:"value"`
	Rank     leaderboard.Rank `json:"rank"`
	IsViewer bool             `json:"isViewer"`
}

// PolicySet - политики участников, загруженные для одного запроса.
type PolicySet map[string]*SharePolicy

// CanView применяет CanView к политике владельца (nil, если её нет).
func (s PolicySet) CanView(ownerID, viewerID string, c Category) bool {
	return CanView(s[ownerID], ownerID, viewerID, c)
}

// Filter применяет настройки приватности к данным статистики.
type Filter struct {
	policies   PolicyRepository
	identities IdentityResolver
}

// NewFilter создаёт фильтр видимости.
func NewFilter(policies PolicyRepository, identities IdentityResolver) *Filter {
	return &Filter{policies: policies, identities: identities}
}

// LoadPolicies читает актуальные политики указанных участников.
func (f *Filter) LoadPolicies(ctx context.Context, groupID string, userIDs []string) (PolicySet, error) {
	policies, err := f.policies.ListByGroup(ctx, groupID, userIDs)
	if err != nil {
		return nil, shared.Upstream("privacy", "LoadPolicies", err)
	}
	return PolicySet(policies), nil
}

// ResolveIdentities читает имена участников.
func (f *Filter) ResolveIdentities(ctx context.Context, userIDs []string) (map[string]Identity, error) {
	ids, err := f.identities.ResolveIdentities(ctx, userIDs)
	if err != nil {
		return nil, shared.Upstream("privacy", "ResolveIdentities", err)
	}
	return ids, nil
}

// Leaderboards фильтрует лидерборды для viewerID. Для каждой записи видимость
// проверяется по категории её метрики; скрытые записи получают Placeholder.
func (f *Filter) Leaderboards(ctx context.Context, groupID, viewerID string, board leaderboard.Board, types []leaderboard.Type) (map[leaderboard.Type][]VisibleEntry, error) {
	memberIDs := uniqueMembers(board, types)

	policies, err := f.LoadPolicies(ctx, groupID, memberIDs)
	if err != nil {
		return nil, err
	}
	identities, err := f.ResolveIdentities(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[leaderboard.Type][]VisibleEntry, len(types))
	for _, t := range types {
		category, err := CategoryFor(t)
		if err != nil {
			return nil, shared.WrapError("privacy", "Leaderboards", shared.ErrInvalidInput, "unknown leaderboard type", err)
		}
		entries := board.Get(t)
		visible := make([]VisibleEntry, 0, len(entries))
		for _, e := range entries {
			visible = append(visible, VisibleEntry{
				Identity: identityFor(policies, identities, e.MemberID, viewerID, category),
				Value:    e.Value,
				Rank:     e.Rank,
				IsViewer: e.MemberID == viewerID,
			})
		}
		out[t] = visible
	}
	return out, nil
}

func identityFor(policies PolicySet, identities map[string]Identity, ownerID, viewerID string, c Category) Identity {
	if !policies.CanView(ownerID, viewerID, c) {
		return Placeholder()
	}
	if id, ok := identities[ownerID]; ok {
		id.UserID = ownerID
		id.Anonymized = false
		return id
	}
	return Identity{UserID: ownerID, DisplayName: ownerID}
}

func uniqueMembers(board leaderboard.Board, types []leaderboard.Type) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, t := range types {
		for _, e := range board.Get(t) {
			if _, ok := seen[e.MemberID]; ok {
				continue
			}
			seen[e.MemberID] = struct{}{}
			ids = append(ids, e.MemberID)
		}
	}
	return ids
}
