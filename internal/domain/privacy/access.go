package privacy

// CanView решает, может ли viewerID видеть категорию category данных ownerID.
//
// Без политики всё открыто группе, кроме результатов тестов: их видит только
// владелец. Это намеренно расходится с DefaultVisibility, где
// study_schedule тоже закрыт до партнёров.
//
// Функция чистая; результат нельзя кэшировать между запросами, потому что
// политика и список партнёров могут измениться в любой момент.
func CanView(policy *SharePolicy, ownerID, viewerID string, category Category) bool {
	if ownerID == viewerID {
		return true
	}
	if policy == nil {
		return category != CategoryTestScores
	}

	switch policy.VisibilityOf(category) {
	case VisibilityPrivate:
		return false
	case VisibilityGroup:
		return true
	case VisibilityPartners:
		return policy.IsAcceptedPartner(viewerID)
	default:
		return false
	}
}
