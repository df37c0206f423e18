package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// ErrHistoryFull is returned when the recorder queue cannot take another summary.
var ErrHistoryFull = errors.New("history queue full")

const (
	historyQueueSize    = 64
	historyWriteTimeout = 10 * time.Second
)

// HistoryRecorder queues game summaries and writes them to every sink from a
// background goroutine, keeping persistence off the gameplay path.
type HistoryRecorder struct {
	sinks []HistoryWriter
	queue chan domain.GameStats

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewHistoryRecorder(sinks ...HistoryWriter) *HistoryRecorder {
	return &HistoryRecorder{
		sinks:  sinks,
		queue:  make(chan domain.GameStats, historyQueueSize),
		stopCh: make(chan struct{}),
	}
}

// Record enqueues stats without blocking.
func (h *HistoryRecorder) Record(_ context.Context, stats domain.GameStats) error {
	select {
	case h.queue <- stats:
		return nil
	default:
		return ErrHistoryFull
	}
}

func (h *HistoryRecorder) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("history recorder already running")
	}
	h.running = true

	h.wg.Add(1)
	go h.run(ctx)
	log.Info().Int("sinks", len(h.sinks)).Msg("history recorder started")
	return nil
}

// Stop drains queued summaries and waits for the worker to exit.
func (h *HistoryRecorder) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.stopCh)
	h.wg.Wait()
	log.Info().Msg("history recorder stopped")
}

func (h *HistoryRecorder) run(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case stats := <-h.queue:
			h.write(stats)
		case <-h.stopCh:
			h.drain()
			return
		case <-ctx.Done():
			h.drain()
			return
		}
	}
}

// drain writes whatever is still queued.
func (h *HistoryRecorder) drain() {
	for {
		select {
		case stats := <-h.queue:
			h.write(stats)
		default:
			return
		}
	}
}

func (h *HistoryRecorder) write(stats domain.GameStats) {
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	for _, sink := range h.sinks {
		if err := sink.Record(ctx, stats); err != nil {
			log.Error().Err(err).Str("game_id", stats.ID).Str("quiz_id", stats.QuizID).Msg("failed to write game history")
		}
	}
}
