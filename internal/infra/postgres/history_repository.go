package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-room-service/internal/domain"
)

// HistoryRepository writes finished games to the game_history table.
// Records are write-once; a replayed summary is ignored.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func (r *HistoryRepository) Record(ctx context.Context, stats domain.GameStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal game stats: %w", err)
	}
	winner := ""
	if len(stats.Users) > 0 {
		winner = stats.Users[0].Username
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO game_history (id, quiz_id, title, started_at, duration_seconds, winner, players, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		ON CONFLICT (id) DO NOTHING`,
		stats.ID, stats.QuizID, stats.Title, stats.StartedAt, stats.DurationSeconds, winner, len(stats.Users), string(data))
	if err != nil {
		return fmt.Errorf("insert game history: %w", err)
	}
	return nil
}

// ListByQuiz returns the most recent games played on a quiz.
func (r *HistoryRepository) ListByQuiz(ctx context.Context, quizID string, limit int) ([]domain.GameStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT stats FROM game_history WHERE quiz_id=$1 ORDER BY started_at DESC LIMIT $2`, quizID, limit)
	if err != nil {
		return nil, fmt.Errorf("query game history: %w", err)
	}
	defer rows.Close()

	var games []domain.GameStats
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan game history: %w", err)
		}
		var stats domain.GameStats
		if err := json.Unmarshal(raw, &stats); err != nil {
			return nil, fmt.Errorf("unmarshal game history: %w", err)
		}
		games = append(games, stats)
	}
	return games, rows.Err()
}
