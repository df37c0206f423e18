package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"trivia-room-service/internal/domain"
)

// GameService is the part of the orchestrator exposed to clients.
type GameService interface {
	OpenRoom(ctx context.Context, quizID string) (domain.RoomSnapshot, error)
	Snapshot(ctx context.Context, code string) (domain.RoomSnapshot, error)
	Join(ctx context.Context, code, username string) (domain.RoomSnapshot, error)
	Leave(ctx context.Context, code, username string)
	Subscribe(ctx context.Context, code, username string) (<-chan domain.Event, func(), error)
	SubmitAnswer(ctx context.Context, code, username string, submission domain.AnswerSubmission) (domain.AnswerResult, error)
	GradeOpenAnswer(ctx context.Context, code, username string, ratio float64) (domain.AnswerResult, error)
	StartGame(ctx context.Context, code string) error
	AdvanceQuestion(ctx context.Context, code string) (bool, error)
	RequestPause(ctx context.Context, code string) (bool, error)
	RequestPanic(ctx context.Context, code string) (bool, error)
	ToggleLock(ctx context.Context, code string) (bool, error)
	ToggleMute(ctx context.Context, code, username string) (bool, error)
	Ban(ctx context.Context, code, username string) error
	EndGame(ctx context.Context, code string) (domain.GameStats, error)
}

// HistoryReader serves finished game summaries, newest first.
type HistoryReader interface {
	ListByQuiz(ctx context.Context, quizID string, limit int) ([]domain.GameStats, error)
}

// Config tunes the client-facing transport.
type Config struct {
	MessagesPerSecond float64
	Burst             int
	AllowedOrigins    []string
}

const (
	roleHost   = "host"
	rolePlayer = "player"

	sendBuffer   = 32
	closeTimeout = time.Second

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Handler serves the room REST endpoints and the /ws game socket.
type Handler struct {
	service  GameService
	history  HistoryReader
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
}

func NewHandler(service GameService, history HistoryReader, cfg Config) *Handler {
	limit := rate.Limit(cfg.MessagesPerSecond)
	if cfg.MessagesPerSecond <= 0 {
		limit = rate.Limit(10)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Handler{
		service: service,
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		limit: limit,
		burst: burst,
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", h.CreateRoom)
	mux.HandleFunc("GET /rooms/{code}", h.GetRoom)
	mux.HandleFunc("GET /quizzes/{id}/history", h.ListHistory)
	mux.HandleFunc("/ws", h.ServeWS)
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Choices []string `json:"choices"`
	Text    string   `json:"text"`
}

type playerPayload struct {
	Username string `json:"username"`
}

type gradePayload struct {
	Username string  `json:"username"`
	Ratio    float64 `json:"ratio"`
}

type createRoomRequest struct {
	QuizID string `json:"quizId"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// outbound is one frame for the writer goroutine; close asks it to end the
// socket after writing the frame. A zero event writes nothing.
type outbound struct {
	event domain.Event
	close bool
}

// CreateRoom opens a room for the quiz named in the body.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "quizId is required"})
		return
	}
	snap, err := h.service.OpenRoom(r.Context(), req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GetRoom returns the snapshot of a live room.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListHistory returns the latest finished games of a quiz.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	games, err := h.history.ListByQuiz(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if games == nil {
		games = []domain.GameStats{}
	}
	writeJSON(w, http.StatusOK, games)
}

// ServeWS upgrades HTTP requests to websockets and wires them into the room use cases.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("room")
	username := r.URL.Query().Get("username")
	role := r.URL.Query().Get("role")
	if role == "" {
		role = rolePlayer
	}
	if code == "" || (role == rolePlayer && username == "") || (role != rolePlayer && role != roleHost) {
		http.Error(w, "missing room, username, or role", http.StatusBadRequest)
		return
	}
	if role == roleHost {
		username = ""
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	var snap domain.RoomSnapshot
	if role == rolePlayer {
		snap, err = h.service.Join(ctx, code, username)
	} else {
		snap, err = h.service.Snapshot(ctx, code)
	}
	if err != nil {
		_ = conn.WriteJSON(errorEvent(err))
		return
	}
	if role == rolePlayer {
		defer h.service.Leave(context.WithoutCancel(ctx), code, username)
	}

	events, cancel, err := h.service.Subscribe(ctx, code, username)
	if err != nil {
		_ = conn.WriteJSON(errorEvent(err))
		return
	}
	defer cancel()

	logger := log.With().Str("room", code).Str("username", username).Str("role", role).Logger()
	logger.Info().Msg("client connected")

	send := make(chan outbound, sendBuffer)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	forwardDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if msg.event.Type != "" {
				if err := conn.WriteJSON(msg.event); err != nil {
					logger.Debug().Err(err).Msg("ws write error")
					conn.Close()
					return
				}
			}
			if msg.close {
				deadline := time.Now().Add(closeTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				conn.Close()
				return
			}
		}
	}()

	push := func(msg outbound) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		case <-closeSignals:
			return false
		}
	}

	push(outbound{event: domain.Event{Type: "joined", Payload: snap}})

	go func() {
		defer close(forwardDone)
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					push(outbound{close: true})
					return
				}
				terminal := evt.Type == domain.EventBanned || evt.Type == domain.EventRoomClosed
				if !push(outbound{event: evt, close: terminal}) || terminal {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	limiter := rate.NewLimiter(h.limit, h.burst)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !limiter.Allow() {
			push(outbound{event: domain.Event{Type: "error", Payload: errorPayload{Code: "rate_limited", Message: "too many messages"}}})
			continue
		}
		if reply, ok := h.dispatch(ctx, code, username, role, inbound); ok {
			push(outbound{event: reply})
		}
	}

	close(closeSignals)
	<-forwardDone
	close(send)
	<-writerDone
	logger.Info().Msg("client disconnected")
}

// dispatch runs one client command. It returns a direct reply when there is
// one; most outcomes reach the client as room events instead.
func (h *Handler) dispatch(ctx context.Context, code, username, role string, msg inboundMessage) (domain.Event, bool) {
	if role == rolePlayer && msg.Type != "answer" {
		if _, known := hostCommands[msg.Type]; known {
			return domain.Event{Type: "error", Payload: errorPayload{Code: "forbidden", Message: "host only command"}}, true
		}
	}

	var err error
	switch msg.Type {
	case "answer":
		if role != rolePlayer {
			return domain.Event{Type: "error", Payload: errorPayload{Code: "forbidden", Message: "players only"}}, true
		}
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return domain.Event{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid answer payload"}}, true
		}
		_, err = h.service.SubmitAnswer(ctx, code, username, domain.AnswerSubmission{Choices: payload.Choices, Text: payload.Text})
	case "start":
		err = h.service.StartGame(ctx, code)
	case "pause":
		_, err = h.service.RequestPause(ctx, code)
	case "panic":
		var on bool
		on, err = h.service.RequestPanic(ctx, code)
		if err == nil && !on {
			return domain.Event{Type: "error", Payload: errorPayload{Code: "panic_refused", Message: "not enough time left for panic"}}, true
		}
	case "next":
		var advanced bool
		advanced, err = h.service.AdvanceQuestion(ctx, code)
		if err == nil && !advanced {
			return domain.Event{Type: "lastQuestion"}, true
		}
	case "lock":
		_, err = h.service.ToggleLock(ctx, code)
	case "ban", "mute":
		var payload playerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Username == "" {
			return domain.Event{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "username is required"}}, true
		}
		if msg.Type == "ban" {
			err = h.service.Ban(ctx, code, payload.Username)
		} else {
			_, err = h.service.ToggleMute(ctx, code, payload.Username)
		}
	case "grade":
		var payload gradePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Username == "" {
			return domain.Event{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid grade payload"}}, true
		}
		_, err = h.service.GradeOpenAnswer(ctx, code, payload.Username, payload.Ratio)
	case "end":
		_, err = h.service.EndGame(ctx, code)
	default:
		return domain.Event{Type: "error", Payload: errorPayload{Code: "unsupported", Message: "unsupported message type"}}, true
	}
	if err != nil {
		return errorEvent(err), true
	}
	return domain.Event{}, false
}

var hostCommands = map[string]struct{}{
	"start": {}, "pause": {}, "panic": {}, "next": {}, "lock": {},
	"ban": {}, "mute": {}, "grade": {}, "end": {},
}

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrRoomNotFound, "room_not_found", http.StatusNotFound},
	{domain.ErrQuizNotFound, "quiz_not_found", http.StatusNotFound},
	{domain.ErrInvalidQuiz, "invalid_quiz", http.StatusUnprocessableEntity},
	{domain.ErrQuestionNotFound, "question_not_found", http.StatusNotFound},
	{domain.ErrPlayerNotFound, "player_not_found", http.StatusNotFound},
	{domain.ErrRoomExists, "room_exists", http.StatusConflict},
	{domain.ErrRoomClosed, "room_closed", http.StatusConflict},
	{domain.ErrNameTaken, "name_taken", http.StatusConflict},
	{domain.ErrBanned, "banned", http.StatusForbidden},
	{domain.ErrGameNotStarted, "game_not_started", http.StatusConflict},
	{domain.ErrGameAlreadyStarted, "game_started", http.StatusConflict},
	{domain.ErrAlreadyAnswered, "already_answered", http.StatusConflict},
	{domain.ErrAnswerWindowClosed, "answer_window_closed", http.StatusConflict},
	{domain.ErrStaleAnswer, "stale_answer", http.StatusConflict},
	{domain.ErrNotOpenQuestion, "not_open_question", http.StatusConflict},
	{domain.ErrInvalidGrade, "invalid_grade", http.StatusBadRequest},
	{domain.ErrAnswerRejected, "answer_rejected", http.StatusServiceUnavailable},
}

func classify(err error) (string, int) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code, ec.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func errorEvent(err error) domain.Event {
	code, _ := classify(err)
	return domain.Event{Type: "error", Payload: errorPayload{Code: code, Message: err.Error()}}
}

func writeError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
