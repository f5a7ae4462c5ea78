package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
	"github.com/alem-hub/studygroup-stats/pkg/retry"
)

var fixedNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

// faultyPolicies fails Update for chosen users. failFrom skips that many
// successful calls for the user before failing.
type faultyPolicies struct {
	*memory.PolicyStore
	failUser  map[string]int
	callsUser map[string]int
}

func newFaulty() *faultyPolicies {
	return &faultyPolicies{
		PolicyStore: memory.NewPolicyStore(func() time.Time { return fixedNow }),
		failUser:    map[string]int{},
		callsUser:   map[string]int{},
	}
}

func (f *faultyPolicies) failAfter(userID string, okCalls int) {
	f.failUser[userID] = okCalls
}

func (f *faultyPolicies) Update(ctx context.Context, userID, groupID string, fn privacy.MutateFunc) (*privacy.SharePolicy, error) {
	f.callsUser[userID]++
	if ok, set := f.failUser[userID]; set && f.callsUser[userID] > ok {
		return nil, errors.New("store: connection reset")
	}
	return f.PolicyStore.Update(ctx, userID, groupID, fn)
}

func fastRetrier() *retry.Retrier {
	return retry.New(retry.WithMaxAttempts(2), retry.WithInitialDelay(0), retry.WithJitter(0),
		retry.WithRetryIf(isStoreFailure))
}

func seedRequest(t *testing.T, store privacy.PolicyRepository) {
	t.Helper()
	_, err := store.Update(context.Background(), "alice", "g1", func(p *privacy.SharePolicy) error {
		return p.RequestPartner("bob", fixedNow)
	})
	require.NoError(t, err)
}

func newSaga(store privacy.PolicyRepository) *PartnershipAcceptanceSaga {
	return NewPartnershipAcceptanceSaga(store, fastRetrier(), logger.Nop(), func() time.Time { return fixedNow })
}

func TestAcceptance_Success(t *testing.T) {
	store := newFaulty()
	seedRequest(t, store)

	res, err := newSaga(store).Execute(context.Background(), AcceptanceInput{GroupID: "g1", RequesterID: "alice", ResponderID: "bob"})
	require.NoError(t, err)

	assert.True(t, res.RequesterPolicy.IsAcceptedPartner("bob"))
	assert.True(t, res.ResponderPolicy.IsAcceptedPartner("alice"))
	assert.Equal(t, []AcceptanceStep{StepAcceptRequest, StepCreateReciprocal}, res.State.CompletedSteps)
	require.NotNil(t, res.State.CompletedAt)

	alice, err := store.Get(context.Background(), "alice", "g1")
	require.NoError(t, err)
	e, _ := alice.Partner("bob")
	require.NotNil(t, e.PartneredAt)
	assert.Equal(t, fixedNow, *e.PartneredAt)
}

func TestAcceptance_NoPendingRequest(t *testing.T) {
	store := newFaulty()

	_, err := newSaga(store).Execute(context.Background(), AcceptanceInput{GroupID: "g1", RequesterID: "alice", ResponderID: "bob"})
	assert.ErrorIs(t, err, shared.ErrPartnershipNotFound)

	var aerr *AcceptanceError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, StepAcceptRequest, aerr.Step)
}

func TestAcceptance_SelfReference(t *testing.T) {
	_, err := newSaga(newFaulty()).Execute(context.Background(), AcceptanceInput{GroupID: "g1", RequesterID: "bob", ResponderID: "bob"})
	assert.ErrorIs(t, err, shared.ErrSelfReference)
}

func TestAcceptance_ReciprocalFailureIsCompensated(t *testing.T) {
	store := newFaulty()
	seedRequest(t, store)
	store.failAfter("bob", 0)

	_, err := newSaga(store).Execute(context.Background(), AcceptanceInput{GroupID: "g1", RequesterID: "alice", ResponderID: "bob"})
	require.Error(t, err)
	assert.Equal(t, shared.KindUpstreamUnavailable, shared.KindOf(err))
	assert.NotErrorIs(t, err, shared.ErrPartialFailure)
	assert.Equal(t, 2, store.callsUser["bob"], "reciprocal write is retried")

	alice, err := store.Get(context.Background(), "alice", "g1")
	require.NoError(t, err)
	e, ok := alice.Partner("bob")
	require.True(t, ok)
	assert.Equal(t, privacy.PartnerStatusPending, e.Status)
	assert.Nil(t, e.PartneredAt)

	_, err = store.Get(context.Background(), "bob", "g1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAcceptance_RetryAfterCompensationSucceeds(t *testing.T) {
	store := newFaulty()
	seedRequest(t, store)
	store.failAfter("bob", 0)
	s := newSaga(store)
	input := AcceptanceInput{GroupID: "g1", RequesterID: "alice", ResponderID: "bob"}

	_, err := s.Execute(context.Background(), input)
	require.Error(t, err)

	delete(store.failUser, "bob")
	res, err := s.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, res.ResponderPolicy.IsAcceptedPartner("alice"))
}

func TestAcceptance_CompensationFailureIsPartial(t *testing.T) {
	store := newFaulty()
	seedRequest(t, store)
	store.callsUser["alice"] = 0
	store.failAfter("bob", 0)
	// The first alice update (step one) passes, the compensating ones fail.
	store.failAfter("alice", 1)

	_, err := newSaga(store).Execute(context.Background(), AcceptanceInput{GroupID: "g1", RequesterID: "alice", ResponderID: "bob"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrPartialFailure)
	assert.Equal(t, shared.KindPartialFailure, shared.KindOf(err))

	alice, err := store.Get(context.Background(), "alice", "g1")
	require.NoError(t, err)
	assert.True(t, alice.IsAcceptedPartner("bob"))
}
