package service

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/pkg/circuitbreaker"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
	"github.com/alem-hub/studygroup-stats/pkg/retry"
)

// GuardedSources wraps the external study-data sources with a circuit breaker
// and retries. Failures come out as shared.ErrUpstreamUnavailable; domain
// errors such as a missing group pass through untouched and are not retried.
type GuardedSources struct {
	members  group.MembershipSource
	sessions group.SessionSource
	profiles group.ProfileSource

	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
}

// NewGuardedSources creates the wrapper. One breaker is shared by all three
// sources since they usually live behind the same database.
func NewGuardedSources(members group.MembershipSource, sessions group.SessionSource, profiles group.ProfileSource, log *logger.Logger) *GuardedSources {
	onChange := func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.Component(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	return &GuardedSources{
		members:  members,
		sessions: sessions,
		profiles: profiles,
		breaker: circuitbreaker.UpstreamBreaker("study-data", onChange,
			circuitbreaker.WithIsFailure(func(err error) bool { return !retry.IsPermanent(err) }),
		),
		retrier: retry.UpstreamRetrier(retry.WithRetryIf(isTransient)),
	}
}

func isTransient(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	return shared.KindOf(err) == shared.KindInternal || shared.IsRetryable(err)
}

func guard[T any](ctx context.Context, g *GuardedSources, op string, call func(context.Context) (T, error)) (T, error) {
	out, err := retry.DoWithData(ctx, g.retrier, func(ctx context.Context) (T, error) {
		var v T
		err := g.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			v, err = call(ctx)
			if err != nil && shared.KindOf(err) != shared.KindInternal && !shared.IsRetryable(err) {
				// Domain answers are not outages.
				return retry.Permanent(err)
			}
			return err
		})
		return v, err
	})
	if err != nil {
		var zero T
		return zero, shared.Upstream("sources", op, err)
	}
	return out, nil
}

func (g *GuardedSources) GetGroup(ctx context.Context, groupID string) (*group.Group, error) {
	return guard(ctx, g, "GetGroup", func(ctx context.Context) (*group.Group, error) {
		return g.members.GetGroup(ctx, groupID)
	})
}

func (g *GuardedSources) ListActiveMembers(ctx context.Context, groupID string) ([]group.Member, error) {
	return guard(ctx, g, "ListActiveMembers", func(ctx context.Context) ([]group.Member, error) {
		return g.members.ListActiveMembers(ctx, groupID)
	})
}

func (g *GuardedSources) IsActiveMember(ctx context.Context, groupID, userID string) (bool, error) {
	return guard(ctx, g, "IsActiveMember", func(ctx context.Context) (bool, error) {
		return g.members.IsActiveMember(ctx, groupID, userID)
	})
}

func (g *GuardedSources) ListSessions(ctx context.Context, userIDs []string, from, to time.Time) ([]group.Session, error) {
	return guard(ctx, g, "ListSessions", func(ctx context.Context) ([]group.Session, error) {
		return g.sessions.ListSessions(ctx, userIDs, from, to)
	})
}

func (g *GuardedSources) GetProfiles(ctx context.Context, userIDs []string) (map[string]group.Profile, error) {
	return guard(ctx, g, "GetProfiles", func(ctx context.Context) (map[string]group.Profile, error) {
		return g.profiles.GetProfiles(ctx, userIDs)
	})
}
