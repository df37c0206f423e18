package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository is the process-local quiz lookup for rooms and correction.
// Only playable quizzes are cached; each entry lives for the TTL plus up to
// 10% jitter. Cached quizzes are shared and must be treated as read-only.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  clockwork.Clock
	loads  singleflight.Group

	mu      sync.RWMutex
	entries map[string]quizEntry
	rnd     *rand.Rand
}

type quizEntry struct {
	quiz    domain.Quiz
	expires time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   clockwork.NewRealClock(),
		entries: make(map[string]quizEntry),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID); ok {
		return quiz, nil
	}
	v, err, shared := r.loads.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.lookup(quizID); ok {
			return quiz, nil
		}
		return r.load(ctx, quizID)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	if shared {
		log.Debug().Str("quiz_id", quizID).Msg("quiz load shared")
	}
	return v.(domain.Quiz), nil
}

// Invalidate drops a cached quiz so the next lookup reloads it.
func (r *QuizRepository) Invalidate(quizID string) {
	r.mu.Lock()
	delete(r.entries, quizID)
	r.mu.Unlock()
}

func (r *QuizRepository) load(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := r.loader.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := quiz.Validate(); err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("refusing unplayable quiz")
		return domain.Quiz{}, err
	}

	r.mu.Lock()
	r.entries[quizID] = quizEntry{quiz: quiz, expires: r.clock.Now().Add(r.lifetime())}
	r.mu.Unlock()
	log.Debug().Str("quiz_id", quizID).Int("questions", len(quiz.Questions)).Msg("quiz cached")
	return quiz, nil
}

func (r *QuizRepository) lookup(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[quizID]
	if !ok || !r.clock.Now().Before(entry.expires) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// lifetime is the TTL plus up to 10% jitter. Callers hold mu.
func (r *QuizRepository) lifetime() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	return r.ttl + time.Duration(r.rnd.Int63n(int64(r.ttl)/10+1))
}
