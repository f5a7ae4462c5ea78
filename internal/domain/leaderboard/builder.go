package leaderboard

// Board - набор лидербордов группы по всем метрикам.
type Board map[Type][]Entry

// Get возвращает записи лидерборда; пустой срез, если типа нет.
func (b Board) Get(t Type) []Entry {
	if entries, ok := b[t]; ok {
		return entries
	}
	return []Entry{}
}

// Builder строит лидерборды фиксированной длины.
type Builder struct {
	size int
}

// NewBuilder создаёт Builder. size <= 0 означает DefaultSize.
func NewBuilder(size int) *Builder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Builder{size: size}
}

// Build строит все четыре лидерборда по одному и тому же списку участников.
func (b *Builder) Build(participants []Participant) (Board, error) {
	board := make(Board, len(AllTypes()))
	for _, t := range AllTypes() {
		ranking, err := NewRanking(t, participants)
		if err != nil {
			return nil, err
		}
		board[t] = ranking.Top(b.size)
	}
	return board, nil
}

// RankAll возвращает полные рейтинги по всем метрикам.
// Используется для персональной статистики зрителя, который не попал в топ.
func RankAll(participants []Participant) (map[Type]*Ranking, error) {
	out := make(map[Type]*Ranking, len(AllTypes()))
	for _, t := range AllTypes() {
		ranking, err := NewRanking(t, participants)
		if err != nil {
			return nil, err
		}
		out[t] = ranking
	}
	return out, nil
}
