package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
)

var now = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestPolicyStore_GetOrCreateDefaults(t *testing.T) {
	s := NewPolicyStore(clock)
	ctx := context.Background()

	_, err := s.Get(ctx, "u1", "g1")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	p, err := s.GetOrCreate(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.Equal(t, privacy.VisibilityPartners, p.VisibilityOf(privacy.CategoryTestScores))
	assert.Equal(t, now, p.CreatedAt)

	// Mutating the returned copy does not touch the stored policy.
	p.Visibility[privacy.CategoryStudyHours] = privacy.VisibilityPrivate
	stored, err := s.Get(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.Equal(t, privacy.VisibilityGroup, stored.VisibilityOf(privacy.CategoryStudyHours))
}

func TestPolicyStore_UpdateIsAllOrNothing(t *testing.T) {
	s := NewPolicyStore(clock)
	ctx := context.Background()

	_, err := s.Update(ctx, "u1", "g1", func(p *privacy.SharePolicy) error {
		_ = p.SetVisibility(privacy.CategoryStudyHours, privacy.VisibilityPrivate, now)
		return errors.New("abort")
	})
	require.Error(t, err)

	p, err := s.Get(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.Equal(t, privacy.VisibilityGroup, p.VisibilityOf(privacy.CategoryStudyHours))
}

func TestPolicyStore_ListIncoming(t *testing.T) {
	s := NewPolicyStore(clock)
	ctx := context.Background()

	for _, requester := range []string{"b", "a"} {
		_, err := s.Update(ctx, requester, "g1", func(p *privacy.SharePolicy) error {
			return p.RequestPartner("target", now)
		})
		require.NoError(t, err)
	}
	_, err := s.Update(ctx, "c", "g2", func(p *privacy.SharePolicy) error {
		return p.RequestPartner("target", now)
	})
	require.NoError(t, err)

	incoming, err := s.ListIncoming(ctx, "g1", "target")
	require.NoError(t, err)
	require.Len(t, incoming, 2)
	assert.Equal(t, "a", incoming[0].UserID)
	assert.Equal(t, "b", incoming[1].UserID)
}

func TestSnapshotStore_LastWriterWins(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()
	key := stats.Key{GroupID: "g1", Period: stats.PeriodWeekly}

	_, err := s.Get(ctx, key)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, s.Save(ctx, &stats.Snapshot{ID: "1", GroupID: "g1", Period: stats.PeriodWeekly}))
	require.NoError(t, s.Save(ctx, &stats.Snapshot{ID: "2", GroupID: "g1", Period: stats.PeriodWeekly}))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "2", got.ID)
	assert.Equal(t, 2, s.Saves())
}

func TestDirectory_Sources(t *testing.T) {
	d := NewDirectory()
	ctx := context.Background()
	d.AddGroup(group.Group{ID: "g1"})
	d.AddMember(group.Member{GroupID: "g1", UserID: "a", Status: group.MemberStatusActive})
	d.AddMember(group.Member{GroupID: "g1", UserID: "b", Status: group.MemberStatusLeft})
	d.AddSession(group.Session{ID: "2", UserID: "a", StartedAt: now})
	d.AddSession(group.Session{ID: "1", UserID: "a", StartedAt: now})
	d.AddSession(group.Session{ID: "3", UserID: "a", StartedAt: now.Add(time.Hour)})

	_, err := d.GetGroup(ctx, "nope")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	members, err := d.ListActiveMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, group.MemberIDs(members))

	ok, err := d.IsActiveMember(ctx, "g1", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	sessions, err := d.ListSessions(ctx, []string{"a"}, now, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "1", sessions[0].ID)
}
