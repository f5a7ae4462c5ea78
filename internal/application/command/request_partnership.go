package command

import (
	"context"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST PARTNERSHIP COMMAND
// Records an outgoing pending request in the requester's policy. The target's
// policy is untouched until they respond.
// ══════════════════════════════════════════════════════════════════════════════

// RequestPartnershipCommand contains the data to request a partnership.
type RequestPartnershipCommand struct {
	GroupID     string
	RequesterID string
	TargetID    string
}

// Validate validates the command.
func (c RequestPartnershipCommand) Validate() error {
	if c.GroupID == "" || c.RequesterID == "" || c.TargetID == "" {
		return shared.NewDomainError("partnership", "Request", shared.ErrInvalidInput, "group_id, requester_id and target_id are required")
	}
	if c.RequesterID == c.TargetID {
		return privacy.ErrSelfPartnership
	}
	return nil
}

// RequestPartnershipResult contains the new pending entry.
type RequestPartnershipResult struct {
	Policy  *privacy.SharePolicy `json:"policy"`
	Request privacy.Partner       `json:"request"`
}

// RequestPartnershipHandler handles the RequestPartnershipCommand.
type RequestPartnershipHandler struct {
	members  group.MembershipSource
	policies privacy.PolicyRepository
	log      *logger.Logger
	now      func() time.Time
}

// NewRequestPartnershipHandler creates a new RequestPartnershipHandler.
func NewRequestPartnershipHandler(
	members group.MembershipSource,
	policies privacy.PolicyRepository,
	log *logger.Logger,
	now func() time.Time,
) *RequestPartnershipHandler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RequestPartnershipHandler{
		members:  members,
		policies: policies,
		log:      log.With(logger.Component("request_partnership")),
		now:      now,
	}
}

// Handle executes the request partnership command.
func (h *RequestPartnershipHandler) Handle(ctx context.Context, cmd RequestPartnershipCommand) (*RequestPartnershipResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := group.RequireActiveMembers(ctx, h.members, cmd.GroupID, cmd.RequesterID, cmd.TargetID); err != nil {
		return nil, err
	}

	policy, err := h.policies.Update(ctx, cmd.RequesterID, cmd.GroupID, func(p *privacy.SharePolicy) error {
		return p.RequestPartner(cmd.TargetID, h.now())
	})
	if err != nil {
		return nil, shared.Upstream("partnership", "Request", err)
	}

	entry, _ := policy.Partner(cmd.TargetID)
	h.log.Info("partnership requested",
		logger.GroupID(cmd.GroupID),
		logger.String("requester_id", cmd.RequesterID),
		logger.String("target_id", cmd.TargetID),
	)

	return &RequestPartnershipResult{Policy: policy, Request: entry}, nil
}
