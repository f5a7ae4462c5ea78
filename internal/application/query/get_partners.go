package query

import (
	"context"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PARTNERS QUERY
// Партнёры пользователя, его исходящие запросы и входящие запросы,
// адресованные ему другими участниками группы.
// ══════════════════════════════════════════════════════════════════════════════

// GetPartnersQuery содержит параметры запроса.
type GetPartnersQuery struct {
	UserID  string
	GroupID string
}

// IncomingRequestDTO - входящий запрос на партнёрство.
type IncomingRequestDTO struct {
	RequesterID string    `json:"requesterId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// PartnersDTO - ответ на запрос.
type PartnersDTO struct {
	// Partners - принятые партнёры.
	Partners []privacy.Partner `json:"partners"`

	// PendingRequests - исходящие запросы без ответа.
	PendingRequests []privacy.Partner `json:"pendingRequests"`

	// IncomingRequests - запросы других участников к пользователю.
	IncomingRequests []IncomingRequestDTO `json:"incomingRequests"`
}

// GetPartnersHandler обрабатывает запрос.
type GetPartnersHandler struct {
	members  group.MembershipSource
	policies privacy.PolicyRepository
}

// NewGetPartnersHandler создаёт обработчик.
func NewGetPartnersHandler(members group.MembershipSource, policies privacy.PolicyRepository) *GetPartnersHandler {
	return &GetPartnersHandler{members: members, policies: policies}
}

// Handle выполняет запрос.
func (h *GetPartnersHandler) Handle(ctx context.Context, q GetPartnersQuery) (*PartnersDTO, error) {
	if q.UserID == "" || q.GroupID == "" {
		return nil, shared.NewDomainError("partnership", "GetPartners", shared.ErrInvalidInput, "user_id and group_id are required")
	}
	if err := group.RequireActiveMembers(ctx, h.members, q.GroupID, q.UserID); err != nil {
		return nil, err
	}

	policy, err := h.policies.GetOrCreate(ctx, q.UserID, q.GroupID)
	if err != nil {
		return nil, shared.Upstream("partnership", "GetPartners", err)
	}
	incoming, err := h.policies.ListIncoming(ctx, q.GroupID, q.UserID)
	if err != nil {
		return nil, shared.Upstream("partnership", "ListIncoming", err)
	}

	dto := &PartnersDTO{
		Partners:         policy.PartnersWithStatus(privacy.PartnerStatusAccepted),
		PendingRequests:  policy.PartnersWithStatus(privacy.PartnerStatusPending),
		IncomingRequests: make([]IncomingRequestDTO, 0, len(incoming)),
	}
	for _, p := range incoming {
		entry, ok := p.Partner(q.UserID)
		if !ok {
			continue
		}
		dto.IncomingRequests = append(dto.IncomingRequests, IncomingRequestDTO{
			RequesterID: p.UserID,
			RequestedAt: entry.RequestedAt,
		})
	}
	return dto, nil
}
