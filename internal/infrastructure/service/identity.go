package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
)

// UUIDGenerator produces snapshot and request ids.
type UUIDGenerator struct{}

func NewIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) GenerateID() string {
	return uuid.New().String()
}

// ProfileIdentityResolver adapts group.ProfileSource to privacy.IdentityResolver.
type ProfileIdentityResolver struct {
	profiles group.ProfileSource
}

func NewProfileIdentityResolver(profiles group.ProfileSource) *ProfileIdentityResolver {
	return &ProfileIdentityResolver{profiles: profiles}
}

func (r *ProfileIdentityResolver) ResolveIdentities(ctx context.Context, userIDs []string) (map[string]privacy.Identity, error) {
	profiles, err := r.profiles.GetProfiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]privacy.Identity, len(profiles))
	for id, p := range profiles {
		name := p.DisplayName
		if name == "" {
			name = id
		}
		out[id] = privacy.Identity{UserID: id, DisplayName: name, AvatarURL: p.AvatarURL}
	}
	return out, nil
}
