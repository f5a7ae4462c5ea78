package query

import (
	"context"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/leaderboard"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARDS QUERY
// Лидерборды группы глазами конкретного участника: скрытые участники
// обезличены, но их значения и ранги сохранены.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardsQuery содержит параметры запроса.
type GetLeaderboardsQuery struct {
	GroupID  string
	ViewerID string

	// Period - строка периода; пустая означает weekly.
	Period string

	// Type - один тип лидерборда; пустая строка означает все четыре.
	Type string
}

// parse разбирает период и список типов.
func (q GetLeaderboardsQuery) parse() (stats.Period, []leaderboard.Type, error) {
	if q.GroupID == "" || q.ViewerID == "" {
		return "", nil, shared.NewDomainError("leaderboard", "GetLeaderboards", shared.ErrInvalidInput, "group_id and viewer_id are required")
	}
	period, err := stats.ParsePeriod(q.Period)
	if err != nil {
		return "", nil, err
	}
	if q.Type == "" {
		return period, leaderboard.AllTypes(), nil
	}
	t, err := leaderboard.ParseType(q.Type)
	if err != nil {
		return "", nil, shared.WrapError("leaderboard", "GetLeaderboards", shared.ErrInvalidInput, "unknown leaderboard type", err)
	}
	return period, []leaderboard.Type{t}, nil
}

// LeaderboardsDTO - ответ на запрос.
type LeaderboardsDTO struct {
	GroupID        string                                      `json:"groupId"`
	Period         stats.Period                                `json:"periodType"`
	Leaderboards   map[leaderboard.Type][]privacy.VisibleEntry `json:"leaderboards"`
	LastComputedAt time.Time                                   `json:"lastComputedAt"`
	Stale          bool                                        `json:"stale"`
}

// GetLeaderboardsHandler обрабатывает запрос.
type GetLeaderboardsHandler struct {
	members   group.MembershipSource
	snapshots *SnapshotProvider
	filter    *privacy.Filter
}

// NewGetLeaderboardsHandler создаёт обработчик.
func NewGetLeaderboardsHandler(members group.MembershipSource, snapshots *SnapshotProvider, filter *privacy.Filter) *GetLeaderboardsHandler {
	return &GetLeaderboardsHandler{members: members, snapshots: snapshots, filter: filter}
}

// Handle выполняет запрос.
func (h *GetLeaderboardsHandler) Handle(ctx context.Context, q GetLeaderboardsQuery) (*LeaderboardsDTO, error) {
	period, types, err := q.parse()
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

	// Политики читаются заново на каждом запросе.
	boards, err := h.filter.Leaderboards(ctx, q.GroupID, q.ViewerID, res.Snapshot.Leaderboards, types)
	if err != nil {
		return nil, err
	}

	return &LeaderboardsDTO{
		GroupID:        q.GroupID,
		Period:         period,
		Leaderboards:   boards,
		LastComputedAt: res.Snapshot.LastComputedAt,
		Stale:          res.Stale,
	}, nil
}
