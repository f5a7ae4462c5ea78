package privacy

import (
	"context"

	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
)

// ErrPolicyNotFound возвращается, когда пользователь ещё не открывал настройки.
var ErrPolicyNotFound = shared.NewDomainError("privacy", "Find", shared.ErrNotFound, "share policy not found")

// MutateFunc изменяет политику внутри атомарного обновления.
// Если функция вернула ошибку, изменения не сохраняются.
type MutateFunc func(policy *SharePolicy) error

// PolicyRepository определяет операции хранилища политик.
// Ключ - пара (userID, groupID); политики никогда не удаляются.
type PolicyRepository interface {
	// Get возвращает политику.
	// Возвращает ErrPolicyNotFound, если политики нет.
	Get(ctx context.Context, userID, groupID string) (*SharePolicy, error)

	// GetOrCreate возвращает политику, создавая её со значениями по умолчанию.
	GetOrCreate(ctx context.Context, userID, groupID string) (*SharePolicy, error)

	// Update атомарно читает политику (создавая по умолчанию, если её нет),
	// применяет fn и сохраняет результат. Параллельные Update одного ключа
	// выполняются последовательно.
	Update(ctx context.Context, userID, groupID string, fn MutateFunc) (*SharePolicy, error)

	// ListByGroup возвращает существующие политики участников группы.
	ListByGroup(ctx context.Context, groupID string, userIDs []string) (map[string]*SharePolicy, error)

	// ListIncoming возвращает политики группы, где partnerID записан
	// со статусом pending.
	ListIncoming(ctx context.Context, groupID, partnerID string) ([]*SharePolicy, error)
}
