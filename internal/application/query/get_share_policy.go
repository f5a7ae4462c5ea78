package query

import (
	"context"
	"errors"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SHARE POLICY QUERY
// Возвращает настройки приватности пользователя в группе.
// При первом обращении политика создаётся со значениями по умолчанию.
// ══════════════════════════════════════════════════════════════════════════════

// GetSharePolicyQuery содержит параметры запроса.
type GetSharePolicyQuery struct {
	UserID  string
	GroupID string
}

// Validate проверяет корректность параметров запроса.
func (q GetSharePolicyQuery) Validate() error {
	if q.UserID == "" || q.GroupID == "" {
		return shared.WrapError("privacy", "GetSharePolicy", shared.ErrInvalidInput, "bad query",
			errors.New("user_id and group_id are required"))
	}
	return nil
}

// GetSharePolicyHandler обрабатывает запрос.
type GetSharePolicyHandler struct {
	members  group.MembershipSource
	policies privacy.PolicyRepository
}

// NewGetSharePolicyHandler создаёт обработчик.
func NewGetSharePolicyHandler(members group.MembershipSource, policies privacy.PolicyRepository) *GetSharePolicyHandler {
	return &GetSharePolicyHandler{members: members, policies: policies}
}

// Handle выполняет запрос.
func (h *GetSharePolicyHandler) Handle(ctx context.Context, q GetSharePolicyQuery) (*privacy.SharePolicy, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := group.RequireActiveMembers(ctx, h.members, q.GroupID, q.UserID); err != nil {
		return nil, err
	}

	policy, err := h.policies.GetOrCreate(ctx, q.UserID, q.GroupID)
	if err != nil {
		return nil, shared.Upstream("privacy", "GetSharePolicy", err)
	}
	return policy, nil
}
