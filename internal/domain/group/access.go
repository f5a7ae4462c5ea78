package group

import (
	"context"

	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

// Ошибки доступа.
var (
	ErrGroupNotFound = shared.NewDomainError("group", "Find", shared.ErrNotFound, "group not found")
	ErrNotMember     = shared.NewDomainError("group", "CheckMember", shared.ErrNotMember, "user is not an active member of the group")
)

// RequireActiveMembers проверяет, что группа существует и каждый из userIDs
// в ней активен. Сбой источника превращается в UpstreamUnavailable.
func RequireActiveMembers(ctx context.Context, src MembershipSource, groupID string, userIDs ...string) error {
	if _, err := src.GetGroup(ctx, groupID); err != nil {
		if shared.IsNotFound(err) {
			return ErrGroupNotFound
		}
		return shared.Upstream("group", "GetGroup", err)
	}

	for _, id := range userIDs {
		ok, err := src.IsActiveMember(ctx, groupID, id)
		if err != nil {
			return shared.Upstream("group", "IsActiveMember", err)
		}
		if !ok {
			return ErrNotMember
		}
	}
	return nil
}
