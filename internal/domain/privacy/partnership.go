package privacy

import (
	"fmt"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

// Ошибки партнёрства.
var (
	ErrSelfPartnership      = shared.NewDomainError("partnership", "Request", shared.ErrSelfReference, "cannot partner with self")
	ErrDuplicatePartnership = shared.NewDomainError("partnership", "Request", shared.ErrDuplicatePartnership, "partnership request already exists")
	ErrPartnershipNotFound  = shared.NewDomainError("partnership", "Respond", shared.ErrPartnershipNotFound, "no pending partnership request")
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// Состояния для упорядоченной пары (владелец, партнёр):
//   none → pending → accepted | declined
// accepted и declined - терминальные.
// ══════════════════════════════════════════════════════════════════════════════

// RequestPartner добавляет исходящий запрос в состоянии pending.
func (p *SharePolicy) RequestPartner(targetID string, now time.Time) error {
	if targetID == p.UserID {
		return ErrSelfPartnership
	}
	if _, exists := p.Partner(targetID); exists {
		return ErrDuplicatePartnership
	}
	p.Partners = append(p.Partners, Partner{
		UserID:      targetID,
		Status:      PartnerStatusPending,
		RequestedAt: now,
	})
	p.UpdatedAt = now
	return nil
}

// ValidateResponse проверяет статус ответа на запрос.
func ValidateResponse(status PartnerStatus) error {
	if status != PartnerStatusAccepted && status != PartnerStatusDeclined {
		return shared.NewDomainError("partnership", "Respond", shared.ErrInvalidStatus,
			fmt.Sprintf("status must be accepted or declined, got %q", status))
	}
	return nil
}

// ResolveRequest переводит ожидающий запрос к targetID в accepted или declined.
// Меняется только эта политика; ответная запись создаётся отдельно.
func (p *SharePolicy) ResolveRequest(targetID string, status PartnerStatus, now time.Time) error {
	if err := ValidateResponse(status); err != nil {
		return err
	}
	for i := range p.Partners {
		e := &p.Partners[i]
		if e.UserID != targetID {
			continue
		}
		if e.Status != PartnerStatusPending {
			return ErrPartnershipNotFound
		}
		e.Status = status
		at := now
		e.RespondedAt = &at
		if status == PartnerStatusAccepted {
			e.PartneredAt = &at
		}
		p.UpdatedAt = now
		return nil
	}
	return ErrPartnershipNotFound
}

// AcceptReciprocal создаёт или переводит в accepted запись о requesterID.
// Вызывается для политики того, кто принял запрос. Повторный вызов безопасен.
func (p *SharePolicy) AcceptReciprocal(requesterID string, now time.Time) error {
	if requesterID == p.UserID {
		return ErrSelfPartnership
	}
	at := now
	for i := range p.Partners {
		e := &p.Partners[i]
		if e.UserID != requesterID {
			continue
		}
		if e.Status == PartnerStatusAccepted {
			return nil
		}
		e.Status = PartnerStatusAccepted
		e.RespondedAt = &at
		e.PartneredAt = &at
		p.UpdatedAt = now
		return nil
	}
	p.Partners = append(p.Partners, Partner{
		UserID:      requesterID,
		Status:      PartnerStatusAccepted,
		RequestedAt: now,
		RespondedAt: &at,
		PartneredAt: &at,
	})
	p.UpdatedAt = now
	return nil
}

// ReopenRequest возвращает принятую запись в pending.
// Используется только для компенсации незавершённого принятия.
func (p *SharePolicy) ReopenRequest(targetID string, now time.Time) error {
	for i := range p.Partners {
		e := &p.Partners[i]
		if e.UserID != targetID {
			continue
		}
		e.Status = PartnerStatusPending
		e.RespondedAt = nil
		e.PartneredAt = nil
		p.UpdatedAt = now
		return nil
	}
	return ErrPartnershipNotFound
}
