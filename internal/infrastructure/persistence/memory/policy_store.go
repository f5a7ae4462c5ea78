// Package memory provides in-process implementations of the repositories and
// external sources. It backs the `serve --storage=memory` mode and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
)

type policyKey struct {
	userID  string
	groupID string
}

// PolicyStore implements privacy.PolicyRepository.
// Stored policies are never handed out directly; callers get clones.
type PolicyStore struct {
	mu       sync.Mutex
	policies map[policyKey]*privacy.SharePolicy
	now      func() time.Time
}

// NewPolicyStore creates an empty store.
func NewPolicyStore(now func() time.Time) *PolicyStore {
	if now == nil {
		now = time.Now
	}
	return &PolicyStore{
		policies: make(map[policyKey]*privacy.SharePolicy),
		now:      now,
	}
}

func (s *PolicyStore) Get(_ context.Context, userID, groupID string) (*privacy.SharePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[policyKey{userID, groupID}]
	if !ok {
		return nil, privacy.ErrPolicyNotFound
	}
	return p.Clone(), nil
}

func (s *PolicyStore) GetOrCreate(_ context.Context, userID, groupID string) (*privacy.SharePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreateLocked(userID, groupID).Clone(), nil
}

// Update runs fn on a copy and swaps it in only if fn succeeds.
func (s *PolicyStore) Update(_ context.Context, userID, groupID string, fn privacy.MutateFunc) (*privacy.SharePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.getOrCreateLocked(userID, groupID)
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.policies[policyKey{userID, groupID}] = next
	return next.Clone(), nil
}

func (s *PolicyStore) ListByGroup(_ context.Context, groupID string, userIDs []string) (map[string]*privacy.SharePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*privacy.SharePolicy, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.policies[policyKey{id, groupID}]; ok {
			out[id] = p.Clone()
		}
	}
	return out, nil
}

func (s *PolicyStore) ListIncoming(_ context.Context, groupID, partnerID string) ([]*privacy.SharePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*privacy.SharePolicy, 0)
	for key, p := range s.policies {
		if key.groupID != groupID {
			continue
		}
		if e, ok := p.Partner(partnerID); ok && e.Status == privacy.PartnerStatusPending {
			out = append(out, p.Clone())
		}
	}
	sortPolicies(out)
	return out, nil
}

func (s *PolicyStore) getOrCreateLocked(userID, groupID string) *privacy.SharePolicy {
	key := policyKey{userID, groupID}
	p, ok := s.policies[key]
	if !ok {
		p = privacy.NewDefaultPolicy(userID, groupID, s.now())
		s.policies[key] = p
	}
	return p
}

func sortPolicies(ps []*privacy.SharePolicy) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].UserID < ps[j].UserID })
}
