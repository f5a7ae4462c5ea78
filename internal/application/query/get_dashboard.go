package query

import (
	"context"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/leaderboard"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// Главный экран группы: общая статистика, лидерборды, показатели каждого
// участника (с учётом приватности) и личная статистика зрителя.
// ══════════════════════════════════════════════════════════════════════════════

// GetDashboardQuery содержит параметры запроса.
type GetDashboardQuery struct {
	GroupID  string
	ViewerID string

	// Period - строка периода; пустая означает weekly.
	Period string
}

// Validate проверяет корректность параметров запроса.
func (q GetDashboardQuery) Validate() error {
	if q.GroupID == "" || q.ViewerID == "" {
		return shared.NewDomainError("stats", "GetDashboard", shared.ErrInvalidInput, "group_id and viewer_id are required")
	}
	return nil
}

// SnapshotDTO - снимок без сырых данных участников.
// Лидерборды уже отфильтрованы для зрителя.
type SnapshotDTO struct {
	ID             string                                      `json:"id"`
	GroupID        string                                      `json:"groupId"`
	Period         stats.Period                                `json:"periodType"`
	DateRange      stats.DateRange                             `json:"dateRange"`
	MemberStats    stats.MemberStats                           `json:"memberStats"`
	SubjectStats   []stats.SubjectStat                         `json:"subjectStats"`
	Leaderboards   map[leaderboard.Type][]privacy.VisibleEntry `json:"leaderboards"`
	Percentiles    stats.Percentiles                           `json:"percentiles"`
	LastComputedAt time.Time                                   `json:"lastComputedAt"`
}

// MemberViewDTO - показатели одного участника глазами зрителя.
// Поле равно nil, если владелец скрыл соответствующую категорию.
type MemberViewDTO struct {
	privacy.Identity

	StudyHours     *float64           `json:"studyHours"`
	SessionCount   *int               `json:"sessionCount"`
	Streak         *int               `json:"streak"`
	Productivity   *float64           `json:"productivity"`
	SubjectHours   map[string]float64 `json:"subjectHours"`
	GoalsCompleted *int               `json:"goalsCompleted"`
	IsViewer       bool               `json:"isViewer"`
}

// PersonalStatsDTO - личная статистика зрителя.
type PersonalStatsDTO struct {
	stats.MemberAggregate

	// Ranks - место зрителя в полном рейтинге по каждой метрике.
	Ranks map[leaderboard.Type]leaderboard.Rank `json:"ranks"`

	// Bands - наибольший достигнутый перцентиль (0, 25, 50, 75, 90).
	Bands PercentileBandsDTO `json:"percentileBands"`
}

// PercentileBandsDTO - перцентильные полосы по основным метрикам.
type PercentileBandsDTO struct {
	StudyHours   int `json:"studyHours"`
	Streak       int `json:"streak"`
	Productivity int `json:"productivity"`
}

// DashboardDTO - ответ на запрос.
type DashboardDTO struct {
	Snapshot            SnapshotDTO      `json:"snapshot"`
	PerMemberView       []MemberViewDTO  `json:"perMemberView"`
	ViewerPersonalStats PersonalStatsDTO `json:"viewerPersonalStats"`
	Stale               bool             `json:"stale"`
}

// GetDashboardHandler обрабатывает запрос.
type GetDashboardHandler struct {
	members   group.MembershipSource
	snapshots *SnapshotProvider
	filter    *privacy.Filter
	log       *logger.Logger
}

// NewGetDashboardHandler создаёт обработчик.
func NewGetDashboardHandler(
	members group.MembershipSource,
	snapshots *SnapshotProvider,
	filter *privacy.Filter,
	log *logger.Logger,
) *GetDashboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetDashboardHandler{
		members:   members,
		snapshots: snapshots,
		filter:    filter,
		log:       log.With(logger.Component("get_dashboard")),
	}
}

// Handle выполняет запрос.
func (h *GetDashboardHandler) Handle(ctx context.Context, q GetDashboardQuery) (*DashboardDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	period, err := stats.ParsePeriod(q.Period)
	if err != nil {
		return nil, err
	}
	if err := group.RequireActiveMembers(ctx, h.members, q.GroupID, q.ViewerID); err != nil {
		return nil, err
	}

	res, err := h.snapshots.Get(ctx, q.GroupID, period)
	if err != nil {
		return nil, err
	}
	snap := res.Snapshot

	boards, err := h.filter.Leaderboards(ctx, q.GroupID, q.ViewerID, snap.Leaderboards, leaderboard.AllTypes())
	if err != nil {
		return nil, err
	}

	memberIDs := make([]string, 0, len(snap.Members))
	for _, m := range snap.Members {
		memberIDs = append(memberIDs, m.UserID)
	}
	policies, err := h.filter.LoadPolicies(ctx, q.GroupID, memberIDs)
	if err != nil {
		return nil, err
	}
	identities, err := h.filter.ResolveIdentities(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	personal, err := personalStats(snap, q.ViewerID)
	if err != nil {
		return nil, err
	}

	if res.Stale {
		h.log.Warn("dashboard served from stale snapshot",
			logger.GroupID(q.GroupID), logger.Period(string(period)))
	}

	return &DashboardDTO{
		Snapshot: SnapshotDTO{
			ID:             snap.ID,
			GroupID:        snap.GroupID,
			Period:         snap.Period,
			DateRange:      snap.DateRange,
			MemberStats:    snap.MemberStats,
			SubjectStats:   snap.SubjectStats,
			Leaderboards:   boards,
			Percentiles:    snap.Percentiles,
			LastComputedAt: snap.LastComputedAt,
		},
		PerMemberView:       memberViews(snap.Members, policies, identities, q.ViewerID),
		ViewerPersonalStats: personal,
		Stale:               res.Stale,
	}, nil
}

// memberViews применяет CanView к каждому полю каждого участника.
// Имя показывается всегда: участники группы и так знают друг друга.
func memberViews(members []stats.MemberAggregate, policies privacy.PolicySet, identities map[string]privacy.Identity, viewerID string) []MemberViewDTO {
	out := make([]MemberViewDTO, 0, len(members))
	for _, m := range members {
		id, ok := identities[m.UserID]
		if !ok {
			id = privacy.Identity{DisplayName: m.UserID}
		}
		id.UserID = m.UserID
		id.Anonymized = false

		can := func(c privacy.Category) bool {
			return policies.CanView(m.UserID, viewerID, c)
		}

		view := MemberViewDTO{Identity: id, IsViewer: m.UserID == viewerID}
		if can(privacy.CategoryStudyHours) {
			hours, count := m.StudyHours, m.SessionCount
			view.StudyHours = &hours
			view.SessionCount = &count
		}
		if can(privacy.CategoryStudyStreak) {
			streak := m.Streak
			view.Streak = &streak
		}
		if can(privacy.CategorySubjectProgress) {
			prod := m.Productivity
			view.Productivity = &prod
			view.SubjectHours = m.SubjectHours
			if view.SubjectHours == nil {
				view.SubjectHours = map[string]float64{}
			}
		}
		if can(privacy.CategoryGoalCompletion) {
			goals := m.GoalsCompleted
			view.GoalsCompleted = &goals
		}
		out = append(out, view)
	}
	return out
}

// personalStats собирает статистику зрителя. Если зрителя нет в снимке
// (вступил после расчёта), агрегат нулевой, рангов и полос нет.
func personalStats(snap *stats.Snapshot, viewerID string) (PersonalStatsDTO, error) {
	agg, ok := snap.Member(viewerID)
	if !ok {
		agg = stats.MemberAggregate{UserID: viewerID}
	}

	dto := PersonalStatsDTO{
		MemberAggregate: agg,
		Ranks:           make(map[leaderboard.Type]leaderboard.Rank, len(leaderboard.AllTypes())),
	}
	if !ok {
		return dto, nil
	}
	dto.Bands = PercentileBandsDTO{
		StudyHours:   snap.Percentiles.StudyHours.Band(agg.StudyHours),
		Streak:       snap.Percentiles.Streak.Band(float64(agg.Streak)),
		Productivity: snap.Percentiles.Productivity.Band(agg.Productivity),
	}

	rankings, err := leaderboard.RankAll(snap.Participants())
	if err != nil {
		return PersonalStatsDTO{}, err
	}
	for t, r := range rankings {
		if rank, found := r.RankOf(viewerID); found {
			dto.Ranks[t] = rank
		}
	}
	return dto, nil
}
