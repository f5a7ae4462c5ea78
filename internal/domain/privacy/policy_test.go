package privacy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

var now = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func TestNewDefaultPolicy(t *testing.T) {
	p := NewDefaultPolicy("u1", "g1", now)

	for _, c := range AllCategories() {
		want := VisibilityGroup
		if c == CategoryTestScores || c == CategoryStudySchedule {
			want = VisibilityPartners
		}
		assert.Equal(t, want, p.VisibilityOf(c), c)
	}
	assert.Equal(t, DefaultDisplayPreferences(), p.DisplayPreferences)
	assert.Empty(t, p.Partners)
}

func TestCanView_NoPolicy(t *testing.T) {
	for _, c := range AllCategories() {
		want := c != CategoryTestScores
		assert.Equal(t, want, CanView(nil, "owner", "viewer", c), c)
	}
	// The owner always sees their own data.
	assert.True(t, CanView(nil, "owner", "owner", CategoryTestScores))
}

func TestCanView_DefaultAsymmetry(t *testing.T) {
	// Without a policy study_schedule is visible, with a default policy it is not.
	assert.True(t, CanView(nil, "owner", "viewer", CategoryStudySchedule))
	assert.False(t, CanView(NewDefaultPolicy("owner", "g1", now), "owner", "viewer", CategoryStudySchedule))
}

func TestCanView_Levels(t *testing.T) {
	p := NewDefaultPolicy("owner", "g1", now)
	require.NoError(t, p.SetVisibility(CategoryStudyHours, VisibilityPrivate, now))
	require.NoError(t, p.SetVisibility(CategoryStudyStreak, VisibilityPartners, now))
	require.NoError(t, p.RequestPartner("friend", now))
	require.NoError(t, p.ResolveRequest("friend", PartnerStatusAccepted, now))
	require.NoError(t, p.RequestPartner("maybe", now))

	tests := []struct {
		name     string
		viewer   string
		category Category
		want     bool
	}{
		{"private hidden from group member", "stranger", CategoryStudyHours, false},
		{"private hidden from partner", "friend", CategoryStudyHours, false},
		{"private visible to owner", "owner", CategoryStudyHours, true},
		{"partners visible to accepted partner", "friend", CategoryStudyStreak, true},
		{"partners hidden from pending partner", "maybe", CategoryStudyStreak, false},
		{"partners hidden from stranger", "stranger", CategoryStudyStreak, false},
		{"group visible to anyone", "stranger", CategoryGoalCompletion, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanView(p, "owner", tt.viewer, tt.category))
		})
	}
}

func TestSetVisibility_RejectsUnknown(t *testing.T) {
	p := NewDefaultPolicy("u1", "g1", now)
	assert.ErrorIs(t, p.SetVisibility(Category("mood"), VisibilityGroup, now), shared.ErrInvalidInput)
	assert.ErrorIs(t, p.SetVisibility(CategoryStudyHours, Visibility("world"), now), shared.ErrInvalidInput)
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"study_hours":     CategoryStudyHours,
		"studyHours":      CategoryStudyHours,
		"studyStreak":     CategoryStudyStreak,
		"testScores":      CategoryTestScores,
		"goalCompletion":  CategoryGoalCompletion,
		"subjectProgress": CategorySubjectProgress,
		"studySchedule":   CategoryStudySchedule,
		"achievements":    CategoryAchievements,
	}
	for in, want := range tests {
		got, err := ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCategory("StudyHours")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRequestPartner(t *testing.T) {
	p := NewDefaultPolicy("a", "g1", now)

	assert.ErrorIs(t, p.RequestPartner("a", now), shared.ErrSelfReference)

	require.NoError(t, p.RequestPartner("b", now))
	e, ok := p.Partner("b")
	require.True(t, ok)
	assert.Equal(t, PartnerStatusPending, e.Status)
	assert.Nil(t, e.PartneredAt)

	assert.ErrorIs(t, p.RequestPartner("b", now), shared.ErrDuplicatePartnership)
	assert.Len(t, p.Partners, 1)
}

func TestResolveRequest(t *testing.T) {
	p := NewDefaultPolicy("a", "g1", now)
	require.NoError(t, p.RequestPartner("b", now))

	assert.ErrorIs(t, p.ResolveRequest("b", PartnerStatusPending, now), shared.ErrInvalidStatus)
	assert.ErrorIs(t, p.ResolveRequest("c", PartnerStatusAccepted, now), shared.ErrPartnershipNotFound)

	require.NoError(t, p.ResolveRequest("b", PartnerStatusDeclined, now))
	e, _ := p.Partner("b")
	assert.Equal(t, PartnerStatusDeclined, e.Status)
	assert.Nil(t, e.PartneredAt)

	// Terminal states do not move.
	assert.ErrorIs(t, p.ResolveRequest("b", PartnerStatusAccepted, now), shared.ErrPartnershipNotFound)
}

func TestAcceptReciprocal(t *testing.T) {
	p := NewDefaultPolicy("b", "g1", now)

	require.NoError(t, p.AcceptReciprocal("a", now))
	require.NoError(t, p.AcceptReciprocal("a", now))
	require.Len(t, p.Partners, 1)
	assert.True(t, p.IsAcceptedPartner("a"))
	assert.NotNil(t, p.Partners[0].PartneredAt)

	// An existing pending entry is flipped rather than duplicated.
	q := NewDefaultPolicy("b", "g1", now)
	require.NoError(t, q.RequestPartner("a", now))
	require.NoError(t, q.AcceptReciprocal("a", now))
	require.Len(t, q.Partners, 1)
	assert.True(t, q.IsAcceptedPartner("a"))

	assert.ErrorIs(t, p.AcceptReciprocal("b", now), shared.ErrSelfReference)
}

func TestReopenRequest(t *testing.T) {
	p := NewDefaultPolicy("a", "g1", now)
	require.NoError(t, p.RequestPartner("b", now))
	require.NoError(t, p.ResolveRequest("b", PartnerStatusAccepted, now))

	require.NoError(t, p.ReopenRequest("b", now))
	e, _ := p.Partner("b")
	assert.Equal(t, PartnerStatusPending, e.Status)
	assert.Nil(t, e.PartneredAt)
}

func TestClone_IsDeep(t *testing.T) {
	p := NewDefaultPolicy("a", "g1", now)
	require.NoError(t, p.RequestPartner("b", now))

	c := p.Clone()
	require.NoError(t, c.SetVisibility(CategoryStudyHours, VisibilityPrivate, now))
	c.Partners[0].Status = PartnerStatusAccepted

	assert.Equal(t, VisibilityGroup, p.VisibilityOf(CategoryStudyHours))
	assert.Equal(t, PartnerStatusPending, p.Partners[0].Status)
}
