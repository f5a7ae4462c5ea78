package command

import (
	"context"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/application/saga"
	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPOND PARTNERSHIP COMMAND
// The target of a pending request accepts or declines it.
// Decline touches only the requester's policy. Accept runs the acceptance
// saga so both policies end up with an accepted entry.
// ══════════════════════════════════════════════════════════════════════════════

// RespondPartnershipCommand contains the data to respond to a request.
type RespondPartnershipCommand struct {
	GroupID     string
	RequesterID string
	// ResponderID is the caller, the target of the original request.
	ResponderID string
	Status      privacy.PartnerStatus
}

// Validate validates the command. The status is checked before anything else.
func (c RespondPartnershipCommand) Validate() error {
	if err := privacy.ValidateResponse(c.Status); err != nil {
		return err
	}
	if c.GroupID == "" || c.RequesterID == "" || c.ResponderID == "" {
		return shared.NewDomainError("partnership", "Respond", shared.ErrInvalidInput, "group_id, requester_id and responder_id are required")
	}
	if c.RequesterID == c.ResponderID {
		return privacy.ErrSelfPartnership
	}
	return nil
}

// RespondPartnershipResult contains the policies after the response.
// ResponderPolicy is nil on decline.
type RespondPartnershipResult struct {
	Status          privacy.PartnerStatus `json:"status"`
	RequesterPolicy *privacy.SharePolicy  `json:"requesterPolicy"`
	ResponderPolicy *privacy.SharePolicy  `json:"responderPolicy,omitempty"`
}

// RespondPartnershipHandler handles the RespondPartnershipCommand.
type RespondPartnershipHandler struct {
	members    group.MembershipSource
	policies   privacy.PolicyRepository
	acceptance *saga.PartnershipAcceptanceSaga
	log        *logger.Logger
	now        func() time.Time
}

// NewRespondPartnershipHandler creates a new RespondPartnershipHandler.
func NewRespondPartnershipHandler(
	members group.MembershipSource,
	policies privacy.PolicyRepository,
	acceptance *saga.PartnershipAcceptanceSaga,
	log *logger.Logger,
	now func() time.Time,
) *RespondPartnershipHandler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	if acceptance == nil {
		acceptance = saga.NewPartnershipAcceptanceSaga(policies, nil, log, now)
	}
	return &RespondPartnershipHandler{
		members:    members,
		policies:   policies,
		acceptance: acceptance,
		log:        log.With(logger.Component("respond_partnership")),
		now:        now,
	}
}

// Handle executes the respond partnership command.
func (h *RespondPartnershipHandler) Handle(ctx context.Context, cmd RespondPartnershipCommand) (*RespondPartnershipResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := group.RequireActiveMembers(ctx, h.members, cmd.GroupID, cmd.ResponderID); err != nil {
		return nil, err
	}

	if cmd.Status == privacy.PartnerStatusDeclined {
		return h.decline(ctx, cmd)
	}

	res, err := h.acceptance.Execute(ctx, saga.AcceptanceInput{
		GroupID:     cmd.GroupID,
		RequesterID: cmd.RequesterID,
		ResponderID: cmd.ResponderID,
	})
	if err != nil {
		return nil, err
	}
	return &RespondPartnershipResult{
		Status:          privacy.PartnerStatusAccepted,
		RequesterPolicy: res.RequesterPolicy,
		ResponderPolicy: res.ResponderPolicy,
	}, nil
}

func (h *RespondPartnershipHandler) decline(ctx context.Context, cmd RespondPartnershipCommand) (*RespondPartnershipResult, error) {
	policy, err := h.policies.Update(ctx, cmd.RequesterID, cmd.GroupID, func(p *privacy.SharePolicy) error {
		return p.ResolveRequest(cmd.ResponderID, privacy.PartnerStatusDeclined, h.now())
	})
	if err != nil {
		return nil, shared.Upstream("partnership", "Decline", err)
	}

	h.log.Info("partnership declined",
		logger.GroupID(cmd.GroupID),
		logger.String("requester_id", cmd.RequesterID),
		logger.String("responder_id", cmd.ResponderID),
	)
	return &RespondPartnershipResult{
		Status:          privacy.PartnerStatusDeclined,
		RequesterPolicy: policy,
	}, nil
}
