package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

const (
	maxReconnects = 10
	reconnectWait = 2 * time.Second

	// DefaultSubject receives one message per finished game.
	DefaultSubject = "trivia.games.ended"
)

// Connect dials NATS with reconnect handling and logging.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("trivia-room-service"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// HistoryPublisher announces finished games on a NATS subject so downstream
// consumers (leaderboards, analytics) can pick them up.
type HistoryPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewHistoryPublisher(conn *nats.Conn, subject string) *HistoryPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &HistoryPublisher{conn: conn, subject: subject}
}

func (p *HistoryPublisher) Record(ctx context.Context, stats domain.GameStats) error {
	msg, err := p.message(stats)
	if err != nil {
		return err
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish game %s: %w", stats.ID, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush game %s: %w", stats.ID, err)
	}
	log.Debug().Str("game_id", stats.ID).Str("subject", p.subject).Msg("game summary published")
	return nil
}

func (p *HistoryPublisher) message(stats domain.GameStats) (*nats.Msg, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("marshal game stats: %w", err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Game-Id", stats.ID)
	msg.Header.Set("Quiz-Id", stats.QuizID)
	return msg, nil
}
