package domain

// Event types broadcast into a room.
const (
	EventPlayerJoined  = "playerJoined"
	EventPlayerLeft    = "playerLeft"
	EventPlayerBanned  = "playerBanned"
	EventBanned        = "banned"
	EventRoomLocked    = "roomLocked"
	EventGameStarted   = "gameStarted"
	EventQuestion      = "question"
	EventTick          = "tick"
	EventTimerPaused   = "timerPaused"
	EventTimerResumed  = "timerResumed"
	EventPanic         = "panic"
	EventTimerExpired  = "timerExpired"
	EventAnswerResult  = "answerResult"
	EventAnswerCount   = "answerCount"
	EventQuestionEnded = "questionEnded"
	EventMute          = "mute"
	EventGameEnded     = "gameEnded"
	EventRoomClosed    = "roomClosed"
)

// Event is a notification emitted into a room. An empty Target reaches every
// subscriber; otherwise only the subscriber registered under that username.
type Event struct {
	Type    string `json:"type"`
	Target  string `json:"-"`
	Payload any    `json:"payload,omitempty"`
}

// TickPayload is carried by tick events.
type TickPayload struct {
	RemainingSeconds int   `json:"remainingSeconds"`
	IntervalMs       int64 `json:"intervalMs"`
	Paused           bool  `json:"paused"`
	Panic            bool  `json:"panic"`
}

// QuestionPayload announces the current question without its correct flags.
type QuestionPayload struct {
	Index           int          `json:"index"`
	Count           int          `json:"count"`
	Type            QuestionType `json:"type"`
	Text            string       `json:"text"`
	Points          int          `json:"points"`
	Choices         []string     `json:"choices,omitempty"`
	DurationSeconds int          `json:"durationSeconds"`
}

// AnswerCountPayload reports progress of the current question.
type AnswerCountPayload struct {
	Answered int `json:"answered"`
	Active   int `json:"active"`
}

// PlayerPayload names the player an event is about.
type PlayerPayload struct {
	Username string `json:"username"`
}
