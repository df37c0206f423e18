package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/timer"
)

// Options configures the pacing of rooms.
type Options struct {
	TickInterval         time.Duration
	QuestionDuration     time.Duration // used when the quiz does not set one
	OpenQuestionDuration time.Duration
	Clock                clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.QuestionDuration <= 0 {
		o.QuestionDuration = 20 * time.Second
	}
	if o.OpenQuestionDuration <= 0 {
		o.OpenQuestionDuration = 60 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

const subscriberBuffer = 32

// Room is one live game. All of its state is owned by a single goroutine
// (run); every mutation is submitted through do and executes there, as do
// timer ticks, so events for one room are handled strictly in arrival order.
type Room struct {
	code  string
	quiz  domain.Quiz
	opts  Options
	clock clockwork.Clock
	log   zerolog.Logger

	players         map[string]*domain.Player
	order           []string
	banned          map[string]struct{}
	isOpen          bool
	isStarted       bool
	currentQuestion int
	questionEnded   bool
	panicking       bool
	pendingOpen     map[string]string
	stats           domain.GameStats
	startedAt       time.Time
	tickInterval    time.Duration
	timer           *timer.Countdown

	subMu       sync.Mutex
	subscribers map[chan domain.Event]string
	subsClosed  bool

	inbox    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	closing  bool
}

func newRoom(code string, quiz domain.Quiz, opts Options) *Room {
	opts = opts.withDefaults()
	return &Room{
		code:         code,
		quiz:         quiz,
		opts:         opts,
		clock:        opts.Clock,
		log:          log.With().Str("room", code).Str("quiz_id", quiz.ID).Logger(),
		players:      make(map[string]*domain.Player),
		banned:       make(map[string]struct{}),
		isOpen:       true,
		pendingOpen:  make(map[string]string),
		stats:        newGameStats(quiz),
		tickInterval: opts.TickInterval,
		timer:        timer.New(opts.Clock, opts.TickInterval),
		subscribers:  make(map[chan domain.Event]string),
		inbox:        make(chan func(), 64),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

// Done is closed once the room's loop has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Stop terminates the room loop and waits for it to exit. Safe to call repeatedly.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.done
}

func (r *Room) run() {
	defer close(r.done)
	defer r.shutdown()

	r.log.Debug().Msg("room loop started")
	for {
		select {
		case fn := <-r.inbox:
			fn()
			if r.closing {
				return
			}
		case <-r.timer.C():
			r.onTick()
		case <-r.quit:
			return
		}
	}
}

func (r *Room) shutdown() {
	r.timer.Stop()
	r.broadcast(domain.Event{Type: domain.EventRoomClosed})

	r.subMu.Lock()
	for ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = make(map[chan domain.Event]string)
	r.subsClosed = true
	r.subMu.Unlock()
	r.log.Debug().Msg("room loop stopped")
}

// do runs fn on the room goroutine and returns its error.
func (r *Room) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case r.inbox <- func() { errc <- fn() }:
	case <-r.done:
		return domain.ErrRoomNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-r.done:
		// fn may have been the command that closed the room.
		select {
		case err := <-errc:
			return err
		default:
			return domain.ErrRoomNotFound
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) subscribe(username string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, subscriberBuffer)

	r.subMu.Lock()
	if r.subsClosed {
		r.subMu.Unlock()
		return nil, nil, domain.ErrRoomNotFound
	}
	r.subscribers[ch] = normalize(username)
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.subMu.Unlock()
	}
	return ch, cancel, nil
}

// broadcast delivers evt to the room, or only to evt.Target when set.
func (r *Room) broadcast(evt domain.Event) {
	target := normalize(evt.Target)

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch, owner := range r.subscribers {
		if target != "" && owner != target {
			continue
		}
		select {
		case ch <- evt:
		default:
			// Slow subscriber: drop its oldest event to keep the room loop moving.
			select {
			case <-ch:
			default:
			}
			ch <- evt
		}
	}
}

func (r *Room) sendTo(username string, evt domain.Event) {
	evt.Target = username
	r.broadcast(evt)
}

func (r *Room) player(username string) (*domain.Player, bool) {
	p, ok := r.players[normalize(username)]
	return p, ok
}

func (r *Room) activePlayers() []*domain.Player {
	active := make([]*domain.Player, 0, len(r.players))
	for _, key := range r.order {
		if p, ok := r.players[key]; ok && !p.HasLeft {
			active = append(active, p)
		}
	}
	return active
}

func (r *Room) removePlayer(key string) {
	delete(r.players, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Room) question() domain.Question {
	return r.quiz.Questions[r.currentQuestion]
}

func (r *Room) questionDuration(q domain.Question) time.Duration {
	if q.Type == domain.QuestionQRL {
		return r.opts.OpenQuestionDuration
	}
	if r.quiz.DurationSeconds > 0 {
		return time.Duration(r.quiz.DurationSeconds) * time.Second
	}
	return r.opts.QuestionDuration
}

// startQuestion arms the countdown for the current question and announces it.
func (r *Room) startQuestion() {
	q := r.question()
	duration := r.questionDuration(q)

	r.questionEnded = false
	r.panicking = false
	r.pendingOpen = make(map[string]string)
	for _, p := range r.players {
		p.HasAnswered = false
	}

	r.timer.Arm(duration)
	r.resetTimer(r.opts.TickInterval)

	payload := domain.QuestionPayload{
		Index:           r.currentQuestion,
		Count:           len(r.quiz.Questions),
		Type:            q.Type,
		Text:            q.Text,
		Points:          q.Points,
		DurationSeconds: int(duration / time.Second),
	}
	for _, c := range q.Choices {
		payload.Choices = append(payload.Choices, c.Text)
	}
	r.broadcast(domain.Event{Type: domain.EventQuestion, Payload: payload})
	r.broadcast(domain.Event{Type: domain.EventTick, Payload: r.tickPayload()})
	r.log.Info().Int("question", r.currentQuestion).Dur("duration", duration).Msg("question started")
}

// endQuestion closes the answer window of the current question.
func (r *Room) endQuestion() {
	if r.questionEnded {
		return
	}
	r.questionEnded = true
	r.panicking = false
	r.timer.Stop()
	r.broadcast(domain.Event{Type: domain.EventQuestionEnded, Payload: cloneQuestionStats(r.stats.Questions[r.currentQuestion])})
}

func (r *Room) answerProgress() {
	active := r.activePlayers()
	answered := 0
	for _, p := range active {
		if p.HasAnswered {
			answered++
		}
	}
	r.broadcast(domain.Event{Type: domain.EventAnswerCount, Payload: domain.AnswerCountPayload{
		Answered: answered,
		Active:   len(active),
	}})
	if r.isStarted && !r.questionEnded && r.question().Type != domain.QuestionQRL &&
		len(active) > 0 && answered == len(active) {
		r.endQuestion()
	}
}

func (r *Room) snapshot() domain.RoomSnapshot {
	snap := domain.RoomSnapshot{
		Code:                 r.code,
		QuizID:               r.quiz.ID,
		IsOpen:               r.isOpen,
		IsStarted:            r.isStarted,
		IsPaused:             r.timer.Paused(),
		CurrentQuestionIndex: r.currentQuestion,
		TickIntervalMs:       r.tickInterval.Milliseconds(),
		RemainingSeconds:     r.timer.RemainingSeconds(),
		Players:              make([]domain.Player, 0, len(r.order)),
	}
	for _, key := range r.order {
		snap.Players = append(snap.Players, *r.players[key])
	}
	return snap
}

// finalStats snapshots the game for history, ranking users by score.
func (r *Room) finalStats() domain.GameStats {
	stats := r.stats
	stats.Questions = make([]domain.QuestionStats, len(r.stats.Questions))
	for i, qs := range r.stats.Questions {
		stats.Questions[i] = cloneQuestionStats(qs)
	}
	stats.StartedAt = r.startedAt
	if r.isStarted {
		stats.DurationSeconds = int(r.clock.Since(r.startedAt) / time.Second)
	}
	stats.Users = make([]domain.Player, 0, len(r.players))
	for _, key := range r.order {
		stats.Users = append(stats.Users, *r.players[key])
	}
	sort.SliceStable(stats.Users, func(i, j int) bool {
		if stats.Users[i].Score != stats.Users[j].Score {
			return stats.Users[i].Score > stats.Users[j].Score
		}
		return stats.Users[i].Username < stats.Users[j].Username
	})
	return stats
}

func newGameStats(quiz domain.Quiz) domain.GameStats {
	stats := domain.GameStats{
		QuizID:    quiz.ID,
		Title:     quiz.Title,
		Questions: make([]domain.QuestionStats, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		qs := domain.QuestionStats{Title: q.Text, Type: q.Type, Points: q.Points}
		if q.Type == domain.QuestionQRL {
			for _, label := range gradeLabels {
				qs.StatLines = append(qs.StatLines, domain.StatsLine{Label: label, Users: []string{}})
			}
		} else {
			for _, c := range q.Choices {
				correct := c.IsCorrect
				qs.StatLines = append(qs.StatLines, domain.StatsLine{Label: c.Text, Users: []string{}, IsCorrect: &correct})
			}
		}
		stats.Questions = append(stats.Questions, qs)
	}
	return stats
}

// cloneQuestionStats copies qs so it can leave the room goroutine.
func cloneQuestionStats(qs domain.QuestionStats) domain.QuestionStats {
	out := qs
	out.StatLines = make([]domain.StatsLine, len(qs.StatLines))
	for i, line := range qs.StatLines {
		out.StatLines[i] = line
		out.StatLines[i].Users = append([]string(nil), line.Users...)
	}
	return out
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
