package privacy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/studygroup-stats/internal/domain/leaderboard"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

type stubPolicies struct {
	PolicyRepository
	byUser map[string]*SharePolicy
	err    error
}

func (s *stubPolicies) ListByGroup(_ context.Context, _ string, userIDs []string) (map[string]*SharePolicy, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]*SharePolicy)
	for _, id := range userIDs {
		if p, ok := s.byUser[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type stubIdentities map[string]Identity

func (s stubIdentities) ResolveIdentities(_ context.Context, userIDs []string) (map[string]Identity, error) {
	out := make(map[string]Identity)
	for _, id := range userIDs {
		if v, ok := s[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func TestCategoryFor(t *testing.T) {
	cases := map[leaderboard.Type]Category{
		leaderboard.TypeStudyHours:     CategoryStudyHours,
		leaderboard.TypeStreak:         CategoryStudyStreak,
		leaderboard.TypeProductivity:   CategorySubjectProgress,
		leaderboard.TypeGoalsCompleted: CategoryGoalCompletion,
	}
	for typ, want := range cases {
		got, err := CategoryFor(typ)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFilter_AnonymizesButKeepsValueAndRank(t *testing.T) {
	hidden := NewDefaultPolicy("a", "g1", now)
	require.NoError(t, hidden.SetVisibility(CategoryStudyHours, VisibilityPrivate, now))

	f := NewFilter(
		&stubPolicies{byUser: map[string]*SharePolicy{"a": hidden}},
		stubIdentities{
			"a": {DisplayName: "Aigerim", AvatarURL: "https://cdn/a.png"},
			"b": {DisplayName: "Bauyrzhan"},
		},
	)

	board := leaderboard.Board{
		leaderboard.TypeStudyHours: {
			{MemberID: "a", Value: 8, Rank: 1},
			{MemberID: "b", Value: 5, Rank: 2},
		},
		leaderboard.TypeStreak: {
			{MemberID: "a", Value: 12, Rank: 1},
		},
	}

	got, err := f.Leaderboards(context.Background(), "g1", "viewer", board, leaderboard.AllTypes())
	require.NoError(t, err)

	hours := got[leaderboard.TypeStudyHours]
	require.Len(t, hours, 2)
	assert.Equal(t, VisibleEntry{Identity: Placeholder(), Value: 8, Rank: 1}, hours[0])
	assert.Empty(t, hours[0].AvatarURL)
	assert.Empty(t, hours[0].UserID)
	assert.Equal(t, "Bauyrzhan", hours[1].DisplayName)
	assert.Equal(t, "b", hours[1].UserID)

	// Same member, different category: streak stays visible.
	streak := got[leaderboard.TypeStreak]
	require.Len(t, streak, 1)
	assert.Equal(t, "Aigerim", streak[0].DisplayName)
	assert.False(t, streak[0].Anonymized)

	assert.Empty(t, got[leaderboard.TypeGoalsCompleted])
}

func TestFilter_OwnerSeesThemselves(t *testing.T) {
	hidden := NewDefaultPolicy("a", "g1", now)
	require.NoError(t, hidden.SetVisibility(CategoryStudyHours, VisibilityPrivate, now))

	f := NewFilter(&stubPolicies{byUser: map[string]*SharePolicy{"a": hidden}}, stubIdentities{"a": {DisplayName: "Aigerim"}})
	board := leaderboard.Board{leaderboard.TypeStudyHours: {{MemberID: "a", Value: 8, Rank: 1}}}

	got, err := f.Leaderboards(context.Background(), "g1", "a", board, []leaderboard.Type{leaderboard.TypeStudyHours})
	require.NoError(t, err)
	assert.Equal(t, "Aigerim", got[leaderboard.TypeStudyHours][0].DisplayName)
}

func TestFilter_StoreFailureIsUpstream(t *testing.T) {
	f := NewFilter(&stubPolicies{err: errors.New("connection reset")}, stubIdentities{})
	board := leaderboard.Board{leaderboard.TypeStudyHours: {{MemberID: "a", Value: 1, Rank: 1}}}

	_, err := f.Leaderboards(context.Background(), "g1", "v", board, leaderboard.AllTypes())
	assert.ErrorIs(t, err, shared.ErrUpstreamUnavailable)
}
