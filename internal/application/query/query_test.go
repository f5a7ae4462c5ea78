package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/leaderboard"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/service"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// Среда, 15 мая 2024.
var base = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) GenerateID() string {
	return fmt.Sprintf("snap-%d", s.n.Add(1))
}

// switchableSessions ломается по флагу и считает вызовы.
// gate, если задан, задерживает ответ до закрытия канала.
type switchableSessions struct {
	inner group.SessionSource
	fail  atomic.Bool
	calls atomic.Int64
	gate  chan struct{}
}

func (s *switchableSessions) ListSessions(ctx context.Context, ids []string, from, to time.Time) ([]group.Session, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.fail.Load() {
		return nil, errors.New("sessions: timeout")
	}
	return s.inner.ListSessions(ctx, ids, from, to)
}

type env struct {
	clock     *testClock
	dir       *memory.Directory
	sessions  *switchableSessions
	policies  *memory.PolicyStore
	snapshots *memory.SnapshotStore
	provider  *SnapshotProvider
	dashboard *GetDashboardHandler
	boards    *GetLeaderboardsHandler
	partners  *GetPartnersHandler
	policy    *GetSharePolicyHandler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := &testClock{now: base}
	dir := memory.NewDirectory()
	dir.AddGroup(group.Group{ID: "g1", Name: "Physics"})

	// alice 5h, bob 3h, carol 8h за текущую неделю.
	hours := map[string]int{"alice": 300, "bob": 180, "carol": 480}
	for i, id := range []string{"alice", "bob", "carol"} {
		dir.AddMember(group.Member{GroupID: "g1", UserID: id, Status: group.MemberStatusActive, JoinedAt: base.AddDate(0, -1, i)})
		dir.AddSession(group.Session{
			ID: "s-" + id, UserID: id, Subject: "mechanics",
			DurationMinutes: hours[id], ProductivityScore: float64(60 + 10*i),
			StartedAt: base.Add(-time.Hour),
		})
		dir.PutProfile(group.Profile{UserID: id, DisplayName: "Name " + id, CurrentStreak: 3 + i, GoalsCompleted: 2 * i})
	}

	sessions := &switchableSessions{inner: dir}
	policies := memory.NewPolicyStore(clk.Now)
	snapshots := memory.NewSnapshotStore()
	log := logger.Nop()

	provider := NewSnapshotProvider(dir, sessions, dir, snapshots, &seqIDs{},
		ProviderConfig{MaxAge: time.Hour, Now: clk.Now}, log)
	filter := privacy.NewFilter(policies, service.NewProfileIdentityResolver(dir))

	return &env{
		clock:     clk,
		dir:       dir,
		sessions:  sessions,
		policies:  policies,
		snapshots: snapshots,
		provider:  provider,
		dashboard: NewGetDashboardHandler(dir, provider, filter, log),
		boards:    NewGetLeaderboardsHandler(dir, provider, filter),
		partners:  NewGetPartnersHandler(dir, policies),
		policy:    NewGetSharePolicyHandler(dir, policies),
	}
}

func (e *env) setVisibility(t *testing.T, userID string, c privacy.Category, v privacy.Visibility) {
	t.Helper()
	_, err := e.policies.Update(context.Background(), userID, "g1", func(p *privacy.SharePolicy) error {
		return p.SetVisibility(c, v, base)
	})
	require.NoError(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT PROVIDER
// ══════════════════════════════════════════════════════════════════════════════

func TestSnapshotProvider_ComputesOnceWhileFresh(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.provider.Get(ctx, "g1", stats.PeriodWeekly)
	require.NoError(t, err)
	assert.True(t, first.Recomputed)
	assert.InDelta(t, 5.33, first.Snapshot.MemberStats.AverageStudyHours, 0.001)

	e.clock.Advance(30 * time.Minute)
	second, err := e.provider.Get(ctx, "g1", stats.PeriodWeekly)
	require.NoError(t, err)
	assert.False(t, second.Recomputed)
	assert.Equal(t, first.Snapshot.ID, second.Snapshot.ID)
	assert.Equal(t, 1, e.snapshots.Saves())
}

func TestSnapshotProvider_RecomputesWhenStale(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.provider.Get(ctx, "g1", stats.PeriodWeekly)
	require.NoError(t, err)

	e.clock.Advance(61 * time.Minute)
	second, err := e.provider.Get(ctx, "g1", stats.PeriodWeekly)
	require.NoError(t, err)
	assert.True(t, second.Recomputed)
	assert.NotEqual(t, first.Snapshot.ID, second.Snapshot.ID)
	assert.Equal(t, e.clock.Now(), second.Snapshot.LastComputedAt)
}

func TestSnapshotProvider_ServesStaleOnFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.provider.Get(ctx, "g1", stats.PeriodWeekly)
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)
	e.sessions.fail.Store(true)

	res, err := e.provider.Get(ctx, "g1", stats.PeriodWeekly)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, first.Snapshot.ID, res.Snapshot.ID)

	// Старый снимок не стёрт.
	stored, err := e.snapshots.Get(ctx, stats.Key{GroupID: "g1", Period: stats.PeriodWeekly})
	require.NoError(t, err)
	assert.Equal(t, first.Snapshot.ID, stored.ID)
}

func TestSnapshotProvider_NoSnapshotAndFailureIsUpstream(t *testing.T) {
	e := newEnv(t)
	e.sessions.fail.Store(true)

	_, err := e.provider.Get(context.Background(), "g1", stats.PeriodDaily)
	assert.ErrorIs(t, err, shared.ErrUpstreamUnavailable)
}

func TestSnapshotProvider_ConcurrentStaleReadsComputeOnce(t *testing.T) {
	e := newEnv(t)
	e.sessions.gate = make(chan struct{})

	const readers = 8
	var wg sync.WaitGroup
	results := make([]*SnapshotResult, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.provider.Get(context.Background(), "g1", stats.PeriodMonthly)
		}(i)
	}

	require.Eventually(t, func() bool { return e.sessions.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(e.sessions.gate)
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Snapshot.ID, results[i].Snapshot.ID)
	}
	assert.Equal(t, int64(1), e.sessions.calls.Load())
	assert.Equal(t, 1, e.snapshots.Saves())
}

func TestSnapshotProvider_UnknownGroup(t *testing.T) {
	e := newEnv(t)

	_, err := e.provider.Get(context.Background(), "missing", stats.PeriodWeekly)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetLeaderboards_RankingAndAnonymization(t *testing.T) {
	e := newEnv(t)
	e.setVisibility(t, "carol", privacy.CategoryStudyHours, privacy.VisibilityPrivate)

	dto, err := e.boards.Handle(context.Background(), GetLeaderboardsQuery{GroupID: "g1", ViewerID: "alice", Type: "study_hours"})
	require.NoError(t, err)
	require.Len(t, dto.Leaderboards, 1)

	entries := dto.Leaderboards[leaderboard.TypeStudyHours]
	require.Len(t, entries, 3)

	assert.True(t, entries[0].Anonymized)
	assert.Equal(t, privacy.PlaceholderName, entries[0].DisplayName)
	assert.Empty(t, entries[0].UserID)
	assert.Equal(t, 8.0, entries[0].Value)
	assert.Equal(t, leaderboard.Rank(1), entries[0].Rank)

	assert.Equal(t, "alice", entries[1].UserID)
	assert.True(t, entries[1].IsViewer)
	assert.Equal(t, "bob", entries[2].UserID)
	assert.Equal(t, 3.0, entries[2].Value)
}

func TestGetLeaderboards_PartnersOnlyStreak(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	streak, err := privacy.ParseCategory("studyStreak")
	require.NoError(t, err)
	e.setVisibility(t, "carol", streak, privacy.VisibilityPartners)

	// carol просит alice, alice принимает.
	_, err = e.policies.Update(ctx, "carol", "g1", func(p *privacy.SharePolicy) error {
		return p.RequestPartner("alice", base)
	})
	require.NoError(t, err)
	_, err = e.policies.Update(ctx, "alice", "g1", func(p *privacy.SharePolicy) error {
		return p.AcceptReciprocal("carol", base)
	})
	require.NoError(t, err)
	_, err = e.policies.Update(ctx, "carol", "g1", func(p *privacy.SharePolicy) error {
		return p.ResolveRequest("alice", privacy.PartnerStatusAccepted, base)
	})
	require.NoError(t, err)

	partner, err := e.boards.Handle(ctx, GetLeaderboardsQuery{GroupID: "g1", ViewerID: "alice", Type: "streak"})
	require.NoError(t, err)
	outsider, err := e.boards.Handle(ctx, GetLeaderboardsQuery{GroupID: "g1", ViewerID: "bob", Type: "streak"})
	require.NoError(t, err)

	seen := partner.Leaderboards[leaderboard.TypeStreak]
	hidden := outsider.Leaderboards[leaderboard.TypeStreak]
	require.Len(t, seen, 3)
	require.Len(t, hidden, 3)
	for i := range seen {
		assert.Equal(t, seen[i].Value, hidden[i].Value, "entry %d", i)
		assert.Equal(t, seen[i].Rank, hidden[i].Rank, "entry %d", i)
	}

	// carol с серией 5 на первом месте.
	assert.Equal(t, "carol", seen[0].UserID)
	assert.False(t, seen[0].Anonymized)
	assert.Equal(t, 5.0, seen[0].Value)
	assert.Equal(t, leaderboard.Rank(1), seen[0].Rank)

	assert.True(t, hidden[0].Anonymized)
	assert.Empty(t, hidden[0].UserID)
	assert.Equal(t, privacy.PlaceholderName, hidden[0].DisplayName)

	// Записи bob и alice открыты группе.
	assert.Equal(t, "bob", hidden[1].UserID)
	assert.True(t, hidden[1].IsViewer)
	assert.Equal(t, "alice", hidden[2].UserID)
}

func TestGetLeaderboards_OwnerSeesOwnPrivateEntry(t *testing.T) {
	e := newEnv(t)
	e.setVisibility(t, "carol", privacy.CategoryStudyHours, privacy.VisibilityPrivate)

	dto, err := e.boards.Handle(context.Background(), GetLeaderboardsQuery{GroupID: "g1", ViewerID: "carol", Type: "study_hours"})
	require.NoError(t, err)
	top := dto.Leaderboards[leaderboard.TypeStudyHours][0]
	assert.Equal(t, "carol", top.UserID)
	assert.False(t, top.Anonymized)
}

func TestGetLeaderboards_AllTypesAndValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	dto, err := e.boards.Handle(ctx, GetLeaderboardsQuery{GroupID: "g1", ViewerID: "bob", Period: "all_time"})
	require.NoError(t, err)
	assert.Len(t, dto.Leaderboards, 4)
	assert.Equal(t, stats.PeriodAllTime, dto.Period)

	_, err = e.boards.Handle(ctx, GetLeaderboardsQuery{GroupID: "g1", ViewerID: "bob", Type: "karma"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = e.boards.Handle(ctx, GetLeaderboardsQuery{GroupID: "g1", ViewerID: "bob", Period: "yearly"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = e.boards.Handle(ctx, GetLeaderboardsQuery{GroupID: "g1", ViewerID: "mallory"})
	assert.ErrorIs(t, err, shared.ErrNotMember)
}

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD
// ══════════════════════════════════════════════════════════════════════════════

func TestGetDashboard_RedactsHiddenFields(t *testing.T) {
	e := newEnv(t)
	e.setVisibility(t, "bob", privacy.CategoryStudyStreak, privacy.VisibilityPrivate)
	e.setVisibility(t, "bob", privacy.CategoryGoalCompletion, privacy.VisibilityPartners)

	dto, err := e.dashboard.Handle(context.Background(), GetDashboardQuery{GroupID: "g1", ViewerID: "alice"})
	require.NoError(t, err)
	require.Len(t, dto.PerMemberView, 3)

	var bob MemberViewDTO
	for _, v := range dto.PerMemberView {
		if v.UserID == "bob" {
			bob = v
		}
	}
	assert.Equal(t, "Name bob", bob.DisplayName)
	require.NotNil(t, bob.StudyHours)
	assert.Equal(t, 3.0, *bob.StudyHours)
	assert.Nil(t, bob.Streak)
	assert.Nil(t, bob.GoalsCompleted)
	assert.NotNil(t, bob.Productivity)

	assert.Equal(t, 3, dto.Snapshot.MemberStats.ActiveMemberCount)
	assert.InDelta(t, 5.33, dto.Snapshot.MemberStats.AverageStudyHours, 0.001)
}

func TestGetDashboard_PartnerSeesPartnerFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setVisibility(t, "bob", privacy.CategoryStudyStreak, privacy.VisibilityPartners)

	_, err := e.policies.Update(ctx, "bob", "g1", func(p *privacy.SharePolicy) error {
		return p.AcceptReciprocal("alice", base)
	})
	require.NoError(t, err)

	dto, err := e.dashboard.Handle(ctx, GetDashboardQuery{GroupID: "g1", ViewerID: "alice"})
	require.NoError(t, err)
	for _, v := range dto.PerMemberView {
		if v.UserID == "bob" {
			require.NotNil(t, v.Streak)
			assert.Equal(t, 4, *v.Streak)
		}
	}

	dto, err = e.dashboard.Handle(ctx, GetDashboardQuery{GroupID: "g1", ViewerID: "carol"})
	require.NoError(t, err)
	for _, v := range dto.PerMemberView {
		if v.UserID == "bob" {
			assert.Nil(t, v.Streak)
		}
	}
}

func TestGetDashboard_ViewerPersonalStats(t *testing.T) {
	e := newEnv(t)
	e.setVisibility(t, "alice", privacy.CategoryStudyHours, privacy.VisibilityPrivate)

	dto, err := e.dashboard.Handle(context.Background(), GetDashboardQuery{GroupID: "g1", ViewerID: "alice", Period: "weekly"})
	require.NoError(t, err)

	ps := dto.ViewerPersonalStats
	assert.Equal(t, "alice", ps.UserID)
	assert.Equal(t, 5.0, ps.StudyHours)
	assert.Equal(t, leaderboard.Rank(2), ps.Ranks[leaderboard.TypeStudyHours])
	assert.Equal(t, leaderboard.Rank(3), ps.Ranks[leaderboard.TypeStreak])
	// hours = [3,5,8]: p50 = 5.
	assert.Equal(t, 50, ps.Bands.StudyHours)
	assert.False(t, dto.Stale)

	for _, v := range dto.PerMemberView {
		if v.IsViewer {
			require.NotNil(t, v.StudyHours, "viewer always sees own numbers")
		}
	}
}

func TestGetDashboard_StaleFlag(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.dashboard.Handle(ctx, GetDashboardQuery{GroupID: "g1", ViewerID: "alice"})
	require.NoError(t, err)

	e.clock.Advance(3 * time.Hour)
	e.sessions.fail.Store(true)

	dto, err := e.dashboard.Handle(ctx, GetDashboardQuery{GroupID: "g1", ViewerID: "alice"})
	require.NoError(t, err)
	assert.True(t, dto.Stale)
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARE POLICY & PARTNERS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetSharePolicy_CreatesDefaults(t *testing.T) {
	e := newEnv(t)

	p, err := e.policy.Handle(context.Background(), GetSharePolicyQuery{UserID: "bob", GroupID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, privacy.VisibilityGroup, p.VisibilityOf(privacy.CategoryStudyHours))
	assert.Equal(t, privacy.VisibilityPartners, p.VisibilityOf(privacy.CategoryStudySchedule))
	assert.True(t, p.DisplayPreferences.ShowInLeaderboard)

	_, err = e.policy.Handle(context.Background(), GetSharePolicyQuery{UserID: "mallory", GroupID: "g1"})
	assert.ErrorIs(t, err, shared.ErrNotMember)
}

func TestGetPartners_ListsAllThreeKinds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.policies.Update(ctx, "alice", "g1", func(p *privacy.SharePolicy) error {
		if err := p.RequestPartner("bob", base); err != nil {
			return err
		}
		return p.AcceptReciprocal("carol", base)
	})
	require.NoError(t, err)
	_, err = e.policies.Update(ctx, "carol", "g1", func(p *privacy.SharePolicy) error {
		return p.AcceptReciprocal("alice", base)
	})
	require.NoError(t, err)

	alice, err := e.partners.Handle(ctx, GetPartnersQuery{UserID: "alice", GroupID: "g1"})
	require.NoError(t, err)
	require.Len(t, alice.Partners, 1)
	assert.Equal(t, "carol", alice.Partners[0].UserID)
	require.Len(t, alice.PendingRequests, 1)
	assert.Equal(t, "bob", alice.PendingRequests[0].UserID)
	assert.Empty(t, alice.IncomingRequests)

	bob, err := e.partners.Handle(ctx, GetPartnersQuery{UserID: "bob", GroupID: "g1"})
	require.NoError(t, err)
	assert.Empty(t, bob.Partners)
	require.Len(t, bob.IncomingRequests, 1)
	assert.Equal(t, "alice", bob.IncomingRequests[0].RequesterID)
}
