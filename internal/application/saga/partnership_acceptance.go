// Package saga contains business processes that span more than one aggregate
// and therefore cannot be committed in a single write.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
	"github.com/alem-hub/studygroup-stats/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTNERSHIP ACCEPTANCE SAGA
// Accepting a request touches two share policies: the requester's entry flips
// to accepted and the responder gets a reciprocal accepted entry.
// Flow: Accept Request → Create Reciprocal (with retries) → Complete
//
//	on failure: Reopen Request (compensation)
//
// Outcomes:
//   - both writes applied: success
//   - nothing applied, or compensated back to pending: UpstreamUnavailable
//   - requester accepted, reciprocal missing, compensation failed: PartialFailure
// ══════════════════════════════════════════════════════════════════════════════

// AcceptanceStep represents a step in the acceptance flow.
type AcceptanceStep string

const (
	StepAcceptRequest    AcceptanceStep = "accept_request"
	StepCreateReciprocal AcceptanceStep = "create_reciprocal"
	StepReopenRequest    AcceptanceStep = "reopen_request"
	StepAcceptComplete   AcceptanceStep = "complete"
)

// AcceptanceInput identifies the request being accepted.
type AcceptanceInput struct {
	GroupID     string
	RequesterID string
	ResponderID string
}

// Validate checks if the input is valid.
func (i AcceptanceInput) Validate() error {
	if i.GroupID == "" || i.RequesterID == "" || i.ResponderID == "" {
		return shared.NewDomainError("partnership", "Accept", shared.ErrInvalidInput, "group, requester and responder are required")
	}
	if i.RequesterID == i.ResponderID {
		return privacy.ErrSelfPartnership
	}
	return nil
}

// AcceptanceState tracks the progress of one saga run.
type AcceptanceState struct {
	Input          AcceptanceInput
	CurrentStep    AcceptanceStep
	CompletedSteps []AcceptanceStep
	StartedAt      time.Time
	CompletedAt    *time.Time
	Error          error
	FailedStep     AcceptanceStep
}

func (s *AcceptanceState) complete(step AcceptanceStep) {
	s.CompletedSteps = append(s.CompletedSteps, step)
}

// AcceptanceResult contains both sides after a successful run.
type AcceptanceResult struct {
	RequesterPolicy *privacy.SharePolicy
	ResponderPolicy *privacy.SharePolicy
	State           *AcceptanceState
}

// PartnershipAcceptanceSaga performs the two-sided accept.
type PartnershipAcceptanceSaga struct {
	policies privacy.PolicyRepository
	retrier  *retry.Retrier
	log      *logger.Logger
	now      func() time.Time
}

// NewPartnershipAcceptanceSaga creates the saga. A nil retrier uses retry.StoreRetrier.
func NewPartnershipAcceptanceSaga(policies privacy.PolicyRepository, retrier *retry.Retrier, log *logger.Logger, now func() time.Time) *PartnershipAcceptanceSaga {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	if retrier == nil {
		retrier = retry.StoreRetrier(retry.WithRetryIf(isStoreFailure))
	}
	return &PartnershipAcceptanceSaga{
		policies: policies,
		retrier:  retrier,
		log:      log.With(logger.Component("partnership_acceptance")),
		now:      now,
	}
}

// isStoreFailure reports errors that may go away on retry. Domain answers
// (not found, invalid status) never do.
func isStoreFailure(err error) bool {
	kind := shared.KindOf(err)
	return kind == shared.KindInternal || kind == shared.KindUpstreamUnavailable
}

// Execute runs the saga.
func (s *PartnershipAcceptanceSaga) Execute(ctx context.Context, input AcceptanceInput) (*AcceptanceResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	state := &AcceptanceState{
		Input:       input,
		CurrentStep: StepAcceptRequest,
		StartedAt:   s.now(),
	}
	log := s.log.With(
		logger.GroupID(input.GroupID),
		logger.String("requester_id", input.RequesterID),
		logger.String("responder_id", input.ResponderID),
	)

	// Step 1: requester side. Nothing to undo if this fails.
	requesterPolicy, err := s.policies.Update(ctx, input.RequesterID, input.GroupID, func(p *privacy.SharePolicy) error {
		return p.ResolveRequest(input.ResponderID, privacy.PartnerStatusAccepted, s.now())
	})
	if err != nil {
		return nil, s.fail(state, err)
	}
	state.complete(StepAcceptRequest)

	// Step 2: reciprocal side, retried until it lands or retries run out.
	state.CurrentStep = StepCreateReciprocal
	var responderPolicy *privacy.SharePolicy
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		var uerr error
		responderPolicy, uerr = s.policies.Update(ctx, input.ResponderID, input.GroupID, func(p *privacy.SharePolicy) error {
			return p.AcceptReciprocal(input.RequesterID, s.now())
		})
		return uerr
	})
	if err != nil {
		log.Warn("reciprocal partner entry failed, compensating", logger.Err(err))
		return nil, s.compensate(ctx, state, err, log)
	}
	state.complete(StepCreateReciprocal)

	state.CurrentStep = StepAcceptComplete
	done := s.now()
	state.CompletedAt = &done
	log.Info("partnership accepted")

	return &AcceptanceResult{
		RequesterPolicy: requesterPolicy,
		ResponderPolicy: responderPolicy,
		State:           state,
	}, nil
}

// compensate puts the requester entry back to pending so the pair is
// consistent again and the responder can retry the acceptance.
func (s *PartnershipAcceptanceSaga) compensate(ctx context.Context, state *AcceptanceState, cause error, log *logger.Logger) error {
	state.FailedStep = state.CurrentStep
	state.CurrentStep = StepReopenRequest

	// Compensation runs even if the caller gave up on ctx.
	cctx := context.WithoutCancel(ctx)
	err := s.retrier.Do(cctx, func(ctx context.Context) error {
		_, uerr := s.policies.Update(ctx, state.Input.RequesterID, state.Input.GroupID, func(p *privacy.SharePolicy) error {
			return p.ReopenRequest(state.Input.ResponderID, s.now())
		})
		return uerr
	})
	if err != nil {
		log.Error("compensation failed, partnership left one-sided",
			logger.Err(err),
			logger.String("cause", cause.Error()),
		)
		state.Error = err
		return &AcceptanceError{
			Step:  state.FailedStep,
			Input: state.Input,
			Cause: shared.WrapError("partnership", "Accept", shared.ErrPartialFailure,
				"requester entry accepted but reciprocal entry missing", errors.Join(cause, err)),
		}
	}
	state.complete(StepReopenRequest)
	state.Error = cause
	return &AcceptanceError{
		Step:  state.FailedStep,
		Input: state.Input,
		Cause: shared.Upstream("partnership", "Accept", cause),
	}
}

func (s *PartnershipAcceptanceSaga) fail(state *AcceptanceState, err error) error {
	state.FailedStep = state.CurrentStep
	state.Error = err
	return &AcceptanceError{
		Step:  state.FailedStep,
		Input: state.Input,
		Cause: shared.Upstream("partnership", "Accept", err),
	}
}

// AcceptanceError represents an error during the acceptance flow.
// errors.Is sees through it to the kind of Cause.
type AcceptanceError struct {
	Step  AcceptanceStep
	Input AcceptanceInput
	Cause error
}

// Error implements the error interface.
func (e *AcceptanceError) Error() string {
	return fmt.Sprintf("partnership acceptance failed at step '%s': %v", e.Step, e.Cause)
}

// Unwrap returns the underlying error.
func (e *AcceptanceError) Unwrap() error {
	return e.Cause
}
