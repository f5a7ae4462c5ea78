package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
)

// Directory holds groups, memberships, sessions and profiles in memory.
// It implements group.MembershipSource, group.SessionSource and group.ProfileSource.
type Directory struct {
	mu       sync.RWMutex
	groups   map[string]group.Group
	members  map[string][]group.Member
	sessions []group.Session
	profiles map[string]group.Profile
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		groups:   make(map[string]group.Group),
		members:  make(map[string][]group.Member),
		profiles: make(map[string]group.Profile),
	}
}

// AddGroup registers a group.
func (d *Directory) AddGroup(g group.Group) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[g.ID] = g
}

// AddMember adds or replaces a membership. Members keep insertion order.
func (d *Directory) AddMember(m group.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.members[m.GroupID]
	for i := range list {
		if list[i].UserID == m.UserID {
			list[i] = m
			return
		}
	}
	d.members[m.GroupID] = append(list, m)
}

// AddSession records a study session.
func (d *Directory) AddSession(s group.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = append(d.sessions, s)
}

// PutProfile adds or replaces a profile.
func (d *Directory) PutProfile(p group.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.UserID] = p
}

func (d *Directory) GetGroup(_ context.Context, groupID string) (*group.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[groupID]
	if !ok {
		return nil, group.ErrGroupNotFound
	}
	return &g, nil
}

func (d *Directory) ListActiveMembers(_ context.Context, groupID string) ([]group.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.groups[groupID]; !ok {
		return nil, group.ErrGroupNotFound
	}
	out := make([]group.Member, 0, len(d.members[groupID]))
	for _, m := range d.members[groupID] {
		if m.IsActive() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *Directory) IsActiveMember(_ context.Context, groupID, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, m := range d.members[groupID] {
		if m.UserID == userID {
			return m.IsActive(), nil
		}
	}
	return false, nil
}

func (d *Directory) ListSessions(_ context.Context, userIDs []string, from, to time.Time) ([]group.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	out := make([]group.Session, 0)
	for _, s := range d.sessions {
		if _, ok := wanted[s.UserID]; !ok {
			continue
		}
		if s.StartedAt.Before(from) || !s.StartedAt.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *Directory) GetProfiles(_ context.Context, userIDs []string) (map[string]group.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]group.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
