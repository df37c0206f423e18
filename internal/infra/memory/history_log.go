package memory

import (
	"context"
	"sync"

	"trivia-room-service/internal/domain"
)

// HistoryLog keeps finished game summaries in memory, newest last.
type HistoryLog struct {
	mu    sync.RWMutex
	games []domain.GameStats
	limit int
}

// NewHistoryLog keeps at most limit summaries; limit <= 0 means unbounded.
func NewHistoryLog(limit int) *HistoryLog {
	return &HistoryLog{limit: limit}
}

func (h *HistoryLog) Record(_ context.Context, stats domain.GameStats) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.games = append(h.games, stats)
	if h.limit > 0 && len(h.games) > h.limit {
		h.games = h.games[len(h.games)-h.limit:]
	}
	return nil
}

// ListByQuiz returns up to limit summaries of quizID, newest first.
func (h *HistoryLog) ListByQuiz(_ context.Context, quizID string, limit int) ([]domain.GameStats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []domain.GameStats
	for i := len(h.games) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if h.games[i].QuizID == quizID {
			out = append(out, h.games[i])
		}
	}
	return out, nil
}
