package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/correction"
	"trivia-room-service/internal/domain"
)

// RoomRepository is the room registry (in-memory, Redis-marked, etc).
type RoomRepository interface {
	Add(room *Room) error
	Get(code string) (*Room, bool)
	Delete(code string)
	Codes() []string
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Corrector decides whether submitted choices answer a question.
type Corrector interface {
	Check(ctx context.Context, submitted []string, questionText, quizID string) (bool, error)
}

// HistoryWriter receives the summary of every finished game.
type HistoryWriter interface {
	Record(ctx context.Context, stats domain.GameStats) error
}

var gradeLabels = []string{"0", "50", "100"}

const maxCodeAttempts = 32

// GameService orchestrates rooms: it is the only mutator of the registry
// and of room state.
type GameService struct {
	rooms     RoomRepository
	quizzes   QuizRepository
	corrector Corrector
	history   HistoryWriter
	opts      Options

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewGameService(rooms RoomRepository, quizzes QuizRepository, history HistoryWriter, opts Options) *GameService {
	return &GameService{
		rooms:     rooms,
		quizzes:   quizzes,
		corrector: correction.NewEngine(quizzes),
		history:   history,
		opts:      opts.withDefaults(),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewRoom is exported for infrastructure layers that need to seed rooms; the
// returned room is not running until it is registered through CreateRoom.
func NewRoom(code string, quiz domain.Quiz, opts Options) *Room {
	return newRoom(code, quiz, opts)
}

// CreateRoom loads the quiz and registers a new room under code.
func (s *GameService) CreateRoom(ctx context.Context, code, quizID string) (domain.RoomSnapshot, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}

	room := newRoom(code, quiz, s.opts)
	if err := s.rooms.Add(room); err != nil {
		return domain.RoomSnapshot{}, err
	}
	go room.run()

	log.Info().Str("room", code).Str("quiz_id", quizID).Msg("room created")
	return s.Snapshot(ctx, code)
}

// OpenRoom creates a room under a free random four-digit code.
func (s *GameService) OpenRoom(ctx context.Context, quizID string) (domain.RoomSnapshot, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		snap, err := s.CreateRoom(ctx, s.nextCode(), quizID)
		if errors.Is(err, domain.ErrRoomExists) {
			continue
		}
		return snap, err
	}
	return domain.RoomSnapshot{}, domain.ErrRoomExists
}

// Join admits a player into an open room.
func (s *GameService) Join(ctx context.Context, code, username string) (domain.RoomSnapshot, error) {
	room, err := s.room(code)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	key := normalize(username)
	if key == "" {
		return domain.RoomSnapshot{}, domain.ErrPlayerNotFound
	}

	var snap domain.RoomSnapshot
	err = room.do(ctx, func() error {
		if _, banned := room.banned[key]; banned {
			return domain.ErrBanned
		}
		if !room.isOpen {
			return domain.ErrRoomClosed
		}
		if _, taken := room.players[key]; taken {
			return domain.ErrNameTaken
		}
		room.players[key] = &domain.Player{Username: strings.TrimSpace(username)}
		room.order = append(room.order, key)
		room.broadcast(domain.Event{Type: domain.EventPlayerJoined, Payload: domain.PlayerPayload{Username: username}})
		snap = room.snapshot()
		return nil
	})
	return snap, err
}

// Leave marks a player as gone. In the lobby the record is dropped and the
// name is free again. Once started the record stays for stats and the room is
// torn down when no active player remains.
func (s *GameService) Leave(ctx context.Context, code, username string) {
	room, err := s.room(code)
	if err != nil {
		return
	}

	teardown := false
	err = room.do(ctx, func() error {
		p, ok := room.player(username)
		if !ok || p.HasLeft {
			return domain.ErrPlayerNotFound
		}
		if !room.isStarted {
			room.removePlayer(normalize(username))
			room.broadcast(domain.Event{Type: domain.EventPlayerLeft, Payload: domain.PlayerPayload{Username: p.Username}})
			return nil
		}
		p.HasLeft = true
		delete(room.pendingOpen, normalize(username))
		room.broadcast(domain.Event{Type: domain.EventPlayerLeft, Payload: domain.PlayerPayload{Username: p.Username}})

		if len(room.activePlayers()) == 0 {
			room.closing = true
			teardown = true
			return nil
		}
		room.answerProgress()
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("room", code).Str("username", username).Msg("leave ignored")
	}
	if teardown {
		s.rooms.Delete(code)
		log.Info().Str("room", code).Msg("room closed: last player left")
	}
}

// Ban removes a player and refuses any later join under that username.
func (s *GameService) Ban(ctx context.Context, code, username string) error {
	room, err := s.room(code)
	if err != nil {
		return err
	}
	key := normalize(username)

	teardown := false
	err = room.do(ctx, func() error {
		p, ok := room.players[key]
		if !ok {
			return domain.ErrPlayerNotFound
		}
		wasActive := !p.HasLeft
		room.banned[key] = struct{}{}
		room.removePlayer(key)
		delete(room.pendingOpen, key)

		room.sendTo(key, domain.Event{Type: domain.EventBanned, Payload: domain.PlayerPayload{Username: p.Username}})
		room.broadcast(domain.Event{Type: domain.EventPlayerBanned, Payload: domain.PlayerPayload{Username: p.Username}})

		if wasActive && len(room.activePlayers()) == 0 {
			room.closing = true
			teardown = true
			return nil
		}
		room.answerProgress()
		return nil
	})
	if teardown {
		s.rooms.Delete(code)
		log.Info().Str("room", code).Msg("room closed: last player banned")
	}
	return err
}

// StartGame closes the room to new players and starts the first question.
func (s *GameService) StartGame(ctx context.Context, code string) error {
	room, err := s.room(code)
	if err != nil {
		return err
	}
	return room.do(ctx, func() error {
		if room.isStarted {
			return domain.ErrGameAlreadyStarted
		}
		if len(room.quiz.Questions) == 0 {
			return domain.ErrQuestionNotFound
		}
		room.isStarted = true
		room.isOpen = false
		room.startedAt = room.clock.Now()
		room.currentQuestion = 0
		room.broadcast(domain.Event{Type: domain.EventGameStarted, Payload: room.snapshot()})
		room.startQuestion()
		return nil
	})
}

// SubmitAnswer corrects a player's answer to the current question and
// updates score and stats. Correction happens off the room goroutine; the
// result is dropped as stale if the room moved to another question meanwhile.
func (s *GameService) SubmitAnswer(ctx context.Context, code, username string, submission domain.AnswerSubmission) (domain.AnswerResult, error) {
	room, err := s.room(code)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	key := normalize(username)

	var (
		index    int
		question domain.Question
		result   domain.AnswerResult
		done     bool
	)
	err = room.do(ctx, func() error {
		p, err := room.answerable(key)
		if err != nil {
			return err
		}
		index = room.currentQuestion
		question = room.question()
		if question.Type != domain.QuestionQRL {
			return nil
		}

		p.HasAnswered = true
		room.pendingOpen[key] = submission.Text
		result = domain.AnswerResult{QuestionIndex: index, Pending: true, TotalScore: p.Score}
		done = true
		room.sendTo(key, domain.Event{Type: domain.EventAnswerResult, Payload: result})
		room.answerProgress()
		return nil
	})
	if err != nil || done {
		return result, err
	}

	correct, err := s.corrector.Check(ctx, submission.Choices, question.Text, room.quiz.ID)
	if err != nil {
		log.Warn().Err(err).Str("room", code).Str("username", username).Msg("answer rejected")
		return domain.AnswerResult{}, fmt.Errorf("%w: %v", domain.ErrAnswerRejected, err)
	}

	err = room.do(ctx, func() error {
		if room.currentQuestion != index {
			return domain.ErrStaleAnswer
		}
		p, err := room.answerable(key)
		if err != nil {
			return err
		}

		awarded := 0
		if correct {
			awarded = question.Points
		}
		p.Score += awarded
		p.HasAnswered = true
		room.recordChoices(index, p.Username, submission.Choices)

		result = domain.AnswerResult{QuestionIndex: index, Correct: correct, Awarded: awarded, TotalScore: p.Score}
		room.sendTo(key, domain.Event{Type: domain.EventAnswerResult, Payload: result})
		room.answerProgress()
		return nil
	})
	return result, err
}

// GradeOpenAnswer scores a pending open-ended answer with ratio 0, 0.5 or 1
// of the question's points.
func (s *GameService) GradeOpenAnswer(ctx context.Context, code, username string, ratio float64) (domain.AnswerResult, error) {
	room, err := s.room(code)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	label, ok := gradeLabel(ratio)
	if !ok {
		return domain.AnswerResult{}, domain.ErrInvalidGrade
	}
	key := normalize(username)

	var result domain.AnswerResult
	err = room.do(ctx, func() error {
		if !room.isStarted {
			return domain.ErrGameNotStarted
		}
		question := room.question()
		if question.Type != domain.QuestionQRL {
			return domain.ErrNotOpenQuestion
		}
		p, ok := room.players[key]
		if !ok {
			return domain.ErrPlayerNotFound
		}
		if _, pending := room.pendingOpen[key]; !pending {
			return domain.ErrPlayerNotFound
		}
		delete(room.pendingOpen, key)

		awarded := int(math.Round(float64(question.Points) * ratio))
		p.Score += awarded
		lines := room.stats.Questions[room.currentQuestion].StatLines
		for i := range lines {
			if lines[i].Label == label {
				lines[i].Users = append(lines[i].Users, p.Username)
			}
		}

		result = domain.AnswerResult{QuestionIndex: room.currentQuestion, Correct: ratio == 1, Awarded: awarded, TotalScore: p.Score}
		room.sendTo(key, domain.Event{Type: domain.EventAnswerResult, Payload: result})
		return nil
	})
	return result, err
}

// AdvanceQuestion moves to the next question. It reports false without
// changing anything when the current question is the last one.
func (s *GameService) AdvanceQuestion(ctx context.Context, code string) (bool, error) {
	room, err := s.room(code)
	if err != nil {
		return false, err
	}
	advanced := false
	err = room.do(ctx, func() error {
		if !room.isStarted {
			return domain.ErrGameNotStarted
		}
		if room.currentQuestion >= len(room.quiz.Questions)-1 {
			return nil
		}
		room.currentQuestion++
		room.startQuestion()
		advanced = true
		return nil
	})
	return advanced, err
}

// RequestPause toggles the pause state and reports whether the room is now paused.
func (s *GameService) RequestPause(ctx context.Context, code string) (bool, error) {
	room, err := s.room(code)
	if err != nil {
		return false, err
	}
	paused := false
	err = room.do(ctx, func() error {
		if !room.isStarted {
			return domain.ErrGameNotStarted
		}
		paused = room.pauseTimer()
		return nil
	})
	return paused, err
}

// RequestPanic switches the current question to the accelerated cadence,
// based on the authoritative remaining time.
func (s *GameService) RequestPanic(ctx context.Context, code string) (bool, error) {
	room, err := s.room(code)
	if err != nil {
		return false, err
	}
	activated := false
	err = room.do(ctx, func() error {
		if !room.isStarted {
			return domain.ErrGameNotStarted
		}
		if room.questionEnded {
			return nil
		}
		activated = room.panicTimer(room.timer.RemainingSeconds(), room.currentQuestion)
		if activated {
			room.broadcast(domain.Event{Type: domain.EventPanic, Payload: room.tickPayload()})
		}
		return nil
	})
	return activated, err
}

// ToggleLock opens or closes the lobby and reports whether it is now open.
func (s *GameService) ToggleLock(ctx context.Context, code string) (bool, error) {
	room, err := s.room(code)
	if err != nil {
		return false, err
	}
	open := false
	err = room.do(ctx, func() error {
		if room.isStarted {
			return domain.ErrGameAlreadyStarted
		}
		room.isOpen = !room.isOpen
		open = room.isOpen
		room.broadcast(domain.Event{Type: domain.EventRoomLocked, Payload: room.snapshot()})
		return nil
	})
	return open, err
}

// ToggleMute flips a player's muted flag and reports the new value.
func (s *GameService) ToggleMute(ctx context.Context, code, username string) (bool, error) {
	room, err := s.room(code)
	if err != nil {
		return false, err
	}
	muted := false
	err = room.do(ctx, func() error {
		p, ok := room.player(username)
		if !ok {
			return domain.ErrPlayerNotFound
		}
		p.IsMuted = !p.IsMuted
		muted = p.IsMuted
		room.sendTo(username, domain.Event{Type: domain.EventMute, Payload: *p})
		return nil
	})
	return muted, err
}

// EndGame finishes the game, hands its stats to history and tears the room down.
func (s *GameService) EndGame(ctx context.Context, code string) (domain.GameStats, error) {
	room, err := s.room(code)
	if err != nil {
		return domain.GameStats{}, err
	}

	var (
		stats   domain.GameStats
		started bool
	)
	err = room.do(ctx, func() error {
		room.timer.Stop()
		stats = room.finalStats()
		stats.ID = uuid.NewString()
		started = room.isStarted
		room.broadcast(domain.Event{Type: domain.EventGameEnded, Payload: stats})
		room.closing = true
		return nil
	})
	if err != nil {
		return domain.GameStats{}, err
	}
	s.rooms.Delete(code)

	if started && s.history != nil {
		if err := s.history.Record(ctx, stats); err != nil {
			log.Error().Err(err).Str("room", code).Msg("failed to record game history")
		}
	}
	log.Info().Str("room", code).Str("game_id", stats.ID).Msg("game ended")
	return stats, nil
}

// Subscribe returns a channel receiving the room's events; events targeted at
// another username are filtered out. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *GameService) Subscribe(_ context.Context, code, username string) (<-chan domain.Event, func(), error) {
	room, err := s.room(code)
	if err != nil {
		return nil, nil, err
	}
	return room.subscribe(username)
}

// Snapshot returns the current state of a room.
func (s *GameService) Snapshot(ctx context.Context, code string) (domain.RoomSnapshot, error) {
	room, err := s.room(code)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	var snap domain.RoomSnapshot
	err = room.do(ctx, func() error {
		snap = room.snapshot()
		return nil
	})
	return snap, err
}

// Close stops every live room.
func (s *GameService) Close() {
	for _, code := range s.rooms.Codes() {
		if room, ok := s.rooms.Get(code); ok {
			s.rooms.Delete(code)
			room.Stop()
		}
	}
}

func (s *GameService) room(code string) (*Room, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *GameService) nextCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return fmt.Sprintf("%04d", s.rnd.Intn(10000))
}

// answerable returns the player if they may answer the current question.
func (r *Room) answerable(key string) (*domain.Player, error) {
	if !r.isStarted {
		return nil, domain.ErrGameNotStarted
	}
	p, ok := r.players[key]
	if !ok || p.HasLeft {
		return nil, domain.ErrPlayerNotFound
	}
	if p.HasAnswered {
		return nil, domain.ErrAlreadyAnswered
	}
	if !r.questionEnded && r.timer.Active() {
		// The deadline is authoritative even if its last tick is still queued.
		if _, expired := r.timer.Tick(); expired {
			r.expire()
		}
	}
	if r.questionEnded {
		return nil, domain.ErrAnswerWindowClosed
	}
	return p, nil
}

func (r *Room) recordChoices(index int, username string, choices []string) {
	lines := r.stats.Questions[index].StatLines
	seen := make(map[string]struct{}, len(choices))
	for _, choice := range choices {
		if _, dup := seen[choice]; dup {
			continue
		}
		seen[choice] = struct{}{}
		for i := range lines {
			if lines[i].Label == choice {
				lines[i].Users = append(lines[i].Users, username)
			}
		}
	}
}

func gradeLabel(ratio float64) (string, bool) {
	switch ratio {
	case 0:
		return gradeLabels[0], true
	case 0.5:
		return gradeLabels[1], true
	case 1:
		return gradeLabels[2], true
	}
	return "", false
}
