// Package group описывает внешних коллабораторов сервиса статистики:
// членство в учебных группах, сырые учебные сессии и профили пользователей.
// Сервис их только читает; владельцы данных находятся за пределами модуля.
package group

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// MemberStatus - статус участия в группе.
type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "active"
	MemberStatusInvited MemberStatus = "invited"
	MemberStatusLeft    MemberStatus = "left"
	MemberStatusBanned  MemberStatus = "banned"
)

// Group - учебная группа.
type Group struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Member - участник группы.
type Member struct {
	GroupID  string
	UserID   string
	Role     string
	Status   MemberStatus
	JoinedAt time.Time
}

// IsActive возвращает true, если участник учитывается в статистике.
func (m Member) IsActive() bool {
	return m.Status == MemberStatusActive
}

// Session - одна учебная сессия пользователя.
// DurationMinutes и ProductivityScore приходят из внешнего хранилища как есть.
type Session struct {
	ID                string
	UserID            string
	Subject           string
	DurationMinutes   int
	ProductivityScore float64
	StartedAt         time.Time
}

// Profile - данные профиля, которые нужны статистике и отображению.
// Streak и GoalsCompleted считаются вне сервиса.
type Profile struct {
	UserID         string
	DisplayName    string
	AvatarURL      string
	CurrentStreak  int
	GoalsCompleted int
}

// ══════════════════════════════════════════════════════════════════════════════
// SOURCES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// MembershipSource отвечает на вопросы о составе групп.
type MembershipSource interface {
	// GetGroup возвращает группу.
	// Возвращает ошибку вида shared.ErrNotFound, если группы нет.
	GetGroup(ctx context.Context, groupID string) (*Group, error)

	// ListActiveMembers возвращает активных участников в стабильном порядке
	// (по времени вступления, затем по user id).
	ListActiveMembers(ctx context.Context, groupID string) ([]Member, error)

	// IsActiveMember проверяет, что пользователь - активный участник группы.
	IsActiveMember(ctx context.Context, groupID, userID string) (bool, error)
}

// SessionSource отдаёт сырые учебные сессии.
type SessionSource interface {
	// ListSessions возвращает сессии указанных пользователей,
	// начавшиеся в полуинтервале [from, to), упорядоченные по StartedAt, затем по ID.
	ListSessions(ctx context.Context, userIDs []string, from, to time.Time) ([]Session, error)
}

// ProfileSource отдаёт профили пользователей.
type ProfileSource interface {
	// GetProfiles возвращает профили по user id. Отсутствующих пользователей
	// в результате нет; это не ошибка.
	GetProfiles(ctx context.Context, userIDs []string) (map[string]Profile, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// MemberIDs возвращает user id участников в исходном порядке.
func MemberIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}
