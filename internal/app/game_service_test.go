package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"trivia-room-service/internal/domain"
)

type testRooms struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func newTestRooms() *testRooms {
	return &testRooms{rooms: make(map[string]*Room)}
}

func (s *testRooms) Add(room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code()]; ok {
		return domain.ErrRoomExists
	}
	s.rooms[room.Code()] = room
	return nil
}

func (s *testRooms) Get(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *testRooms) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

func (s *testRooms) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

type testQuizzes map[string]domain.Quiz

func (q testQuizzes) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := q[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

type recordingHistory struct {
	mu    sync.Mutex
	games []domain.GameStats
}

func (h *recordingHistory) Record(_ context.Context, stats domain.GameStats) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.games = append(h.games, stats)
	return nil
}

func (h *recordingHistory) list() []domain.GameStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.GameStats(nil), h.games...)
}

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		Title:           "Basics",
		DurationSeconds: 20,
		Questions: []domain.Question{
			{
				Type:   domain.QuestionQCM,
				Text:   "Pick the even numbers",
				Points: 10,
				Choices: []domain.Choice{
					{Text: "2", IsCorrect: true},
					{Text: "3"},
					{Text: "4", IsCorrect: true},
				},
			},
			{
				Type:   domain.QuestionQCM,
				Text:   "Pick the primes",
				Points: 20,
				Choices: []domain.Choice{
					{Text: "2", IsCorrect: true},
					{Text: "3", IsCorrect: true},
					{Text: "4"},
				},
			},
		},
	}
}

func openQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-open",
		Title:           "Open",
		DurationSeconds: 20,
		Questions: []domain.Question{
			{Type: domain.QuestionQRL, Text: "Explain recursion", Points: 20},
			{
				Type:    domain.QuestionQCM,
				Text:    "Is 1 prime?",
				Points:  5,
				Choices: []domain.Choice{{Text: "yes"}, {Text: "no", IsCorrect: true}},
			},
		},
	}
}

type fixture struct {
	service *GameService
	rooms   *testRooms
	history *recordingHistory
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rooms := newTestRooms()
	history := &recordingHistory{}
	quizzes := testQuizzes{"quiz-1": twoQuestionQuiz(), "quiz-open": openQuiz()}
	service := NewGameService(rooms, quizzes, history, Options{
		TickInterval:         time.Second,
		OpenQuestionDuration: 60 * time.Second,
		Clock:                clock,
	})
	t.Cleanup(service.Close)
	return &fixture{service: service, rooms: rooms, history: history, clock: clock}
}

// startedRoom creates a room, joins players and starts the game.
func (f *fixture) startedRoom(t *testing.T, code, quizID string, players ...string) *Room {
	t.Helper()
	ctx := context.Background()
	if _, err := f.service.CreateRoom(ctx, code, quizID); err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, p := range players {
		if _, err := f.service.Join(ctx, code, p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	if err := f.service.StartGame(ctx, code); err != nil {
		t.Fatalf("start game: %v", err)
	}
	room, ok := f.rooms.Get(code)
	if !ok {
		t.Fatalf("room %s not registered", code)
	}
	return room
}

func drain(ch <-chan domain.Event) []domain.Event {
	var out []domain.Event
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

func waitFor(t *testing.T, ch <-chan domain.Event, match func(domain.Event) bool) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed before match")
			}
			if match(evt) {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event")
		}
	}
}

func ofType(typ string) func(domain.Event) bool {
	return func(evt domain.Event) bool { return evt.Type == typ }
}

func TestJoinThenBanRefusesRejoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.CreateRoom(ctx, "1234", "quiz-1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, name := range []string{"alice", "bob"} {
		if _, err := f.service.Join(ctx, "1234", name); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}

	if err := f.service.Ban(ctx, "1234", "alice"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := f.service.Join(ctx, "1234", "Alice"); !errors.Is(err, domain.ErrBanned) {
		t.Fatalf("expected ErrBanned on rejoin, got %v", err)
	}

	snap, err := f.service.Snapshot(ctx, "1234")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Players) != 1 || snap.Players[0].Username != "bob" {
		t.Fatalf("expected only bob left, got %+v", snap.Players)
	}
}

func TestJoinRejectsTakenNameAndClosedRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.CreateRoom(ctx, "1234", "quiz-1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := f.service.Join(ctx, "1234", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.service.Join(ctx, "1234", " bob "); !errors.Is(err, domain.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}

	open, err := f.service.ToggleLock(ctx, "1234")
	if err != nil || open {
		t.Fatalf("expected room locked, open=%v err=%v", open, err)
	}
	if _, err := f.service.Join(ctx, "1234", "carol"); !errors.Is(err, domain.ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
	if _, err := f.service.Join(ctx, "9999", "carol"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestCreateRoomRefusesDuplicateCodeAndUnknownQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.CreateRoom(ctx, "1234", "quiz-1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := f.service.CreateRoom(ctx, "1234", "quiz-1"); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
	if _, err := f.service.CreateRoom(ctx, "4321", "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	snap, err := f.service.OpenRoom(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("open room: %v", err)
	}
	if len(snap.Code) != 4 || snap.Code == "1234" {
		t.Fatalf("expected a fresh four digit code, got %q", snap.Code)
	}
}

func TestScoringRequiresExactChoiceSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-1", "alice", "bob")

	res, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Choices: []string{"4", "2"}})
	if err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if !res.Correct || res.Awarded != 10 || res.TotalScore != 10 {
		t.Fatalf("expected full set to score 10, got %+v", res)
	}

	res, err = f.service.SubmitAnswer(ctx, "1234", "bob", domain.AnswerSubmission{Choices: []string{"2"}})
	if err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if res.Correct || res.Awarded != 0 || res.TotalScore != 0 {
		t.Fatalf("expected strict subset to score nothing, got %+v", res)
	}

	if _, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Choices: []string{"2", "4"}}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	advanced, err := f.service.AdvanceQuestion(ctx, "1234")
	if err != nil || !advanced {
		t.Fatalf("expected advance to question 2, advanced=%v err=%v", advanced, err)
	}
	res, err = f.service.SubmitAnswer(ctx, "1234", "bob", domain.AnswerSubmission{Choices: []string{"2", "3"}})
	if err != nil {
		t.Fatalf("submit bob q2: %v", err)
	}
	if res.QuestionIndex != 1 || res.TotalScore != 20 {
		t.Fatalf("expected bob at 20 after question 2, got %+v", res)
	}
}

func TestAllAnsweredEndsQuestionEarly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.startedRoom(t, "1234", "quiz-1", "alice", "bob")

	events, cancel, err := f.service.Subscribe(ctx, "1234", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for _, name := range []string{"alice", "bob"} {
		if _, err := f.service.SubmitAnswer(ctx, "1234", name, domain.AnswerSubmission{Choices: []string{"3"}}); err != nil {
			t.Fatalf("submit %s: %v", name, err)
		}
	}

	var ended, active bool
	if err := room.do(ctx, func() error {
		ended = room.questionEnded
		active = room.timer.Active()
		return nil
	}); err != nil {
		t.Fatalf("inspect room: %v", err)
	}
	if !ended || active {
		t.Fatalf("expected question ended with timer stopped, ended=%v active=%v", ended, active)
	}

	evt := waitFor(t, events, ofType(domain.EventQuestionEnded))
	stats := evt.Payload.(domain.QuestionStats)
	for _, line := range stats.StatLines {
		if line.Label == "3" && len(line.Users) != 2 {
			t.Fatalf("expected both players on choice 3, got %+v", line)
		}
	}
}

func TestAnswerResultOnlyReachesAnsweringPlayer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-1", "alice", "bob")

	aliceEvents, cancelAlice, err := f.service.Subscribe(ctx, "1234", "alice")
	if err != nil {
		t.Fatalf("subscribe alice: %v", err)
	}
	defer cancelAlice()
	bobEvents, cancelBob, err := f.service.Subscribe(ctx, "1234", "bob")
	if err != nil {
		t.Fatalf("subscribe bob: %v", err)
	}
	defer cancelBob()

	if _, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Choices: []string{"2", "4"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, aliceEvents, ofType(domain.EventAnswerResult))
	for _, evt := range drain(bobEvents) {
		if evt.Type == domain.EventAnswerResult {
			t.Fatalf("bob must not receive alice's answer result")
		}
	}
}

func TestAdvanceAtLastQuestionIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-1", "alice")

	if advanced, err := f.service.AdvanceQuestion(ctx, "1234"); err != nil || !advanced {
		t.Fatalf("expected first advance, advanced=%v err=%v", advanced, err)
	}
	advanced, err := f.service.AdvanceQuestion(ctx, "1234")
	if err != nil || advanced {
		t.Fatalf("expected no-op at last question, advanced=%v err=%v", advanced, err)
	}
	snap, err := f.service.Snapshot(ctx, "1234")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.CurrentQuestionIndex != 1 {
		t.Fatalf("expected index to stay at 1, got %d", snap.CurrentQuestionIndex)
	}
}

func TestStartGameTwiceAndJoinAfterStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-1", "alice")

	if err := f.service.StartGame(ctx, "1234"); !errors.Is(err, domain.ErrGameAlreadyStarted) {
		t.Fatalf("expected ErrGameAlreadyStarted, got %v", err)
	}
	if _, err := f.service.Join(ctx, "1234", "late"); !errors.Is(err, domain.ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed after start, got %v", err)
	}
}

func TestOpenAnswerIsGradedByRatio(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-open", "alice", "bob")

	res, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Text: "a function calling itself"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Pending || res.Awarded != 0 {
		t.Fatalf("expected pending open answer, got %+v", res)
	}

	if _, err := f.service.GradeOpenAnswer(ctx, "1234", "alice", 0.3); !errors.Is(err, domain.ErrInvalidGrade) {
		t.Fatalf("expected ErrInvalidGrade, got %v", err)
	}
	graded, err := f.service.GradeOpenAnswer(ctx, "1234", "alice", 0.5)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if graded.Awarded != 10 || graded.TotalScore != 10 || graded.Correct {
		t.Fatalf("expected half of 20 points, got %+v", graded)
	}
	if _, err := f.service.GradeOpenAnswer(ctx, "1234", "alice", 1); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected second grade to be refused, got %v", err)
	}
	if _, err := f.service.GradeOpenAnswer(ctx, "1234", "bob", 1); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected grading without answer to be refused, got %v", err)
	}
}

func TestAnswerAfterDeadlineIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-1", "alice", "bob")

	f.clock.Advance(21 * time.Second)
	if _, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Choices: []string{"2", "4"}}); !errors.Is(err, domain.ErrAnswerWindowClosed) {
		t.Fatalf("expected ErrAnswerWindowClosed, got %v", err)
	}
}

type blockingCorrector struct {
	entered chan struct{}
	release chan struct{}
	err     error
}

func (c *blockingCorrector) Check(context.Context, []string, string, string) (bool, error) {
	if c.entered != nil {
		close(c.entered)
		<-c.release
	}
	return true, c.err
}

func TestLateCorrectionIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-1", "alice", "bob")
	corrector := &blockingCorrector{entered: make(chan struct{}), release: make(chan struct{})}
	f.service.corrector = corrector

	errc := make(chan error, 1)
	go func() {
		_, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Choices: []string{"2", "4"}})
		errc <- err
	}()

	<-corrector.entered
	if _, err := f.service.AdvanceQuestion(ctx, "1234"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	close(corrector.release)

	if err := <-errc; !errors.Is(err, domain.ErrStaleAnswer) {
		t.Fatalf("expected ErrStaleAnswer, got %v", err)
	}
}

func TestCorrectorFailureRejectsAnswerAndAllowsRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-1", "alice", "bob")
	f.service.corrector = &blockingCorrector{err: errors.New("cache down")}

	if _, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Choices: []string{"2", "4"}}); !errors.Is(err, domain.ErrAnswerRejected) {
		t.Fatalf("expected ErrAnswerRejected, got %v", err)
	}

	f.service.corrector = &blockingCorrector{}
	res, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Choices: []string{"2", "4"}})
	if err != nil || !res.Correct {
		t.Fatalf("expected retry to succeed, res=%+v err=%v", res, err)
	}
}

func TestLastPlayerLeavingTearsRoomDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.startedRoom(t, "1234", "quiz-1", "alice", "bob")

	f.service.Leave(ctx, "1234", "alice")
	snap, err := f.service.Snapshot(ctx, "1234")
	if err != nil {
		t.Fatalf("snapshot after first leave: %v", err)
	}
	if !snap.Players[0].HasLeft {
		t.Fatalf("expected alice kept with hasLeft, got %+v", snap.Players)
	}

	f.service.Leave(ctx, "1234", "bob")
	select {
	case <-room.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("room loop still running after last leave")
	}
	if _, err := f.service.Snapshot(ctx, "1234"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room removed, got %v", err)
	}
}

func TestBanningLastPlayerTearsRoomDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.CreateRoom(ctx, "1234", "quiz-1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := f.service.Join(ctx, "1234", "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.service.Ban(ctx, "1234", "alice"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := f.service.Snapshot(ctx, "1234"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room removed, got %v", err)
	}
}

func TestToggleMuteFlipsFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.CreateRoom(ctx, "1234", "quiz-1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := f.service.Join(ctx, "1234", "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if muted, err := f.service.ToggleMute(ctx, "1234", "alice"); err != nil || !muted {
		t.Fatalf("expected muted, got %v %v", muted, err)
	}
	if muted, err := f.service.ToggleMute(ctx, "1234", "alice"); err != nil || muted {
		t.Fatalf("expected unmuted, got %v %v", muted, err)
	}
	if _, err := f.service.ToggleMute(ctx, "1234", "ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestEndGameRecordsHistoryAndClosesSubscribers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.startedRoom(t, "1234", "quiz-1", "alice", "bob")
	if _, err := f.service.SubmitAnswer(ctx, "1234", "bob", domain.AnswerSubmission{Choices: []string{"2", "4"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	events, cancel, err := f.service.Subscribe(ctx, "1234", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	stats, err := f.service.EndGame(ctx, "1234")
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if stats.ID == "" || stats.QuizID != "quiz-1" || len(stats.Questions) != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Users[0].Username != "bob" || stats.Users[0].Score != 10 {
		t.Fatalf("expected bob ranked first, got %+v", stats.Users)
	}

	var types []string
	timeout := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case evt, ok := <-events:
			if !ok {
				open = false
				break
			}
			types = append(types, evt.Type)
		case <-timeout:
			t.Fatalf("subscriber channel not closed, got %v", types)
		}
	}
	if len(types) < 2 || types[0] != domain.EventGameEnded || types[len(types)-1] != domain.EventRoomClosed {
		t.Fatalf("expected gameEnded then roomClosed, got %v", types)
	}

	recorded := f.history.list()
	if len(recorded) != 1 || recorded[0].ID != stats.ID {
		t.Fatalf("expected stats recorded once, got %+v", recorded)
	}
	if _, err := f.service.Snapshot(ctx, "1234"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room removed, got %v", err)
	}
}

func TestEndGameInLobbySkipsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.CreateRoom(ctx, "1234", "quiz-1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := f.service.EndGame(ctx, "1234"); err != nil {
		t.Fatalf("end game: %v", err)
	}
	if got := f.history.list(); len(got) != 0 {
		t.Fatalf("expected no history for unstarted game, got %d", len(got))
	}
}

func TestOpenQuestionRunsUntilDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.startedRoom(t, "1234", "quiz-open", "alice")

	events, cancel, err := f.service.Subscribe(ctx, "1234", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := f.service.SubmitAnswer(ctx, "1234", "alice", domain.AnswerSubmission{Text: "a function calling itself"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, events, ofType(domain.EventAnswerCount))
	if err := room.do(ctx, func() error {
		if room.questionEnded || !room.timer.Active() {
			t.Errorf("open question ended before its deadline")
		}
		return nil
	}); err != nil {
		t.Fatalf("inspect room: %v", err)
	}

	f.clock.Advance(60 * time.Second)
	waitFor(t, events, ofType(domain.EventQuestionEnded))
}

func TestLeavingLobbyFreesName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.CreateRoom(ctx, "1234", "quiz-1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := f.service.Join(ctx, "1234", "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	f.service.Leave(ctx, "1234", "alice")
	snap, err := f.service.Snapshot(ctx, "1234")
	if err != nil {
		t.Fatalf("expected lobby to survive the last leave, got %v", err)
	}
	if len(snap.Players) != 0 {
		t.Fatalf("expected lobby record dropped, got %+v", snap.Players)
	}

	snap, err = f.service.Join(ctx, "1234", "Alice")
	if err != nil {
		t.Fatalf("rejoin after leave: %v", err)
	}
	if len(snap.Players) != 1 || snap.Players[0].HasLeft {
		t.Fatalf("expected one active player, got %+v", snap.Players)
	}
}
