// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE SHARE POLICY COMMAND
// Partially updates a member's share policy in one group. Categories that are
// not mentioned keep their level; display preferences change field by field.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateSharePolicyCommand contains the data to update a share policy.
type UpdateSharePolicyCommand struct {
	// UserID is the owner of the policy and the caller.
	UserID string

	// GroupID is the group the policy applies to.
	GroupID string

	// Visibility maps category names to visibility levels. Names may be
	// snake_case or camelCase. Raw strings so that unknown values surface
	// as InvalidInput.
	Visibility map[string]string

	// DisplayPreferences contains optional updates; nil means "don't change".
	DisplayPreferences *DisplayPreferenceUpdates
}

// DisplayPreferenceUpdates contains optional display preference updates.
type DisplayPreferenceUpdates struct {
	ShowRealName        *bool `json:"showRealName"`
	ShowInLeaderboard   *bool `json:"showInLeaderboard"`
	AllowDataComparison *bool `json:"allowDataComparison"`
	ShowMilestones      *bool `json:"showMilestones"`
}

func (u *DisplayPreferenceUpdates) apply(p privacy.DisplayPreferences) privacy.DisplayPreferences {
	if u.ShowRealName != nil {
		p.ShowRealName = *u.ShowRealName
	}
	if u.ShowInLeaderboard != nil {
		p.ShowInLeaderboard = *u.ShowInLeaderboard
	}
	if u.AllowDataComparison != nil {
		p.AllowDataComparison = *u.AllowDataComparison
	}
	if u.ShowMilestones != nil {
		p.ShowMilestones = *u.ShowMilestones
	}
	return p
}

// Validate validates the command and every category/level pair.
func (c UpdateSharePolicyCommand) Validate() error {
	if c.UserID == "" || c.GroupID == "" {
		return shared.NewDomainError("privacy", "UpdateSharePolicy", shared.ErrInvalidInput, "user_id and group_id are required")
	}
	_, err := c.visibility()
	return err
}

// visibility resolves category aliases. Two spellings of one category in the
// same command are rejected.
func (c UpdateSharePolicyCommand) visibility() (map[privacy.Category]privacy.Visibility, error) {
	out := make(map[privacy.Category]privacy.Visibility, len(c.Visibility))
	for name, vis := range c.Visibility {
		cat, err := privacy.ParseCategory(name)
		if err != nil {
			return nil, shared.NewDomainError("privacy", "UpdateSharePolicy", shared.ErrInvalidInput, fmt.Sprintf("unknown category %q", name))
		}
		if !privacy.Visibility(vis).IsValid() {
			return nil, shared.NewDomainError("privacy", "UpdateSharePolicy", shared.ErrInvalidInput, fmt.Sprintf("unknown visibility %q for %s", vis, name))
		}
		if _, dup := out[cat]; dup {
			return nil, shared.NewDomainError("privacy", "UpdateSharePolicy", shared.ErrInvalidInput, fmt.Sprintf("category %s given twice", cat))
		}
		out[cat] = privacy.Visibility(vis)
	}
	return out, nil
}

// UpdateSharePolicyResult contains the stored policy after the update.
type UpdateSharePolicyResult struct {
	Policy *privacy.SharePolicy `json:"policy"`

	// ChangedCategories lists categories whose level actually changed.
	ChangedCategories []privacy.Category `json:"changedCategories"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateSharePolicyHandler handles the UpdateSharePolicyCommand.
type UpdateSharePolicyHandler struct {
	members  group.MembershipSource
	policies privacy.PolicyRepository
	log      *logger.Logger
	now      func() time.Time
}

// NewUpdateSharePolicyHandler creates a new UpdateSharePolicyHandler.
func NewUpdateSharePolicyHandler(
	members group.MembershipSource,
	policies privacy.PolicyRepository,
	log *logger.Logger,
	now func() time.Time,
) *UpdateSharePolicyHandler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &UpdateSharePolicyHandler{
		members:  members,
		policies: policies,
		log:      log.With(logger.Component("update_share_policy")),
		now:      now,
	}
}

// Handle executes the update share policy command.
func (h *UpdateSharePolicyHandler) Handle(ctx context.Context, cmd UpdateSharePolicyCommand) (*UpdateSharePolicyResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	visibility, err := cmd.visibility()
	if err != nil {
		return nil, err
	}
	if err := group.RequireActiveMembers(ctx, h.members, cmd.GroupID, cmd.UserID); err != nil {
		return nil, err
	}

	// Sorted so that the change list is stable.
	cats := make([]privacy.Category, 0, len(visibility))
	for c := range visibility {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	var changed []privacy.Category
	policy, err := h.policies.Update(ctx, cmd.UserID, cmd.GroupID, func(p *privacy.SharePolicy) error {
		now := h.now()
		changed = changed[:0]
		for _, cat := range cats {
			next := visibility[cat]
			if p.VisibilityOf(cat) != next {
				changed = append(changed, cat)
			}
			if err := p.SetVisibility(cat, next, now); err != nil {
				return err
			}
		}
		if cmd.DisplayPreferences != nil {
			p.SetDisplayPreferences(cmd.DisplayPreferences.apply(p.DisplayPreferences), now)
		}
		return nil
	})
	if err != nil {
		return nil, shared.Upstream("privacy", "UpdateSharePolicy", err)
	}

	h.log.Info("share policy updated",
		logger.UserID(cmd.UserID),
		logger.GroupID(cmd.GroupID),
		logger.Int("changed_categories", len(changed)),
	)

	return &UpdateSharePolicyResult{Policy: policy, ChangedCategories: changed}, nil
}
