package domain

import "time"

// QuestionType distinguishes multiple-choice from open-ended questions.
type QuestionType string

const (
	QuestionQCM QuestionType = "QCM"
	QuestionQRL QuestionType = "QRL"
)

// Choice represents a possible answer for a QCM question. Its text is its identity.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
}

// Question models a quiz question. QRL questions carry no choices.
type Question struct {
	Type    QuestionType `json:"type"`
	Text    string       `json:"text"`
	Points  int          `json:"points"`
	Choices []Choice     `json:"choices,omitempty"`
}

// Quiz is a collection of questions sharing a per-question duration.
type Quiz struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationSeconds int        `json:"duration"`
	Questions       []Question `json:"questions"`
}

// Player is a participant of a room and their accumulated score.
type Player struct {
	Username    string `json:"username"`
	Score       int    `json:"score"`
	HasAnswered bool   `json:"hasAnswered"`
	IsMuted     bool   `json:"isMuted"`
	HasLeft     bool   `json:"hasLeft"`
}

// StatsLine lists the users who picked one choice (or grading bucket) of a question.
type StatsLine struct {
	Label     string   `json:"label"`
	Users     []string `json:"users"`
	IsCorrect *bool    `json:"isCorrect,omitempty"`
}

// QuestionStats aggregates the answers given to one question.
type QuestionStats struct {
	Title     string       `json:"title"`
	Type      QuestionType `json:"type"`
	Points    int          `json:"points"`
	StatLines []StatsLine  `json:"statLines"`
}

// GameStats is the summary of a played game, written once to history.
type GameStats struct {
	ID              string          `json:"id"`
	QuizID          string          `json:"quizId"`
	Title           string          `json:"title"`
	StartedAt       time.Time       `json:"startedAt"`
	DurationSeconds int             `json:"durationSeconds"`
	Questions       []QuestionStats `json:"questions"`
	Users           []Player        `json:"users"`
}

// AnswerSubmission is what a player sends for the current question.
// Choices are used for QCM questions, Text for QRL questions.
type AnswerSubmission struct {
	Choices []string `json:"choices,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Pending       bool `json:"pending,omitempty"`
	Awarded       int  `json:"awarded"`
	TotalScore    int  `json:"totalScore"`
}

// RoomSnapshot is a read-only view of a room.
type RoomSnapshot struct {
	Code                 string   `json:"code"`
	QuizID               string   `json:"quizId"`
	IsOpen               bool     `json:"isOpen"`
	IsStarted            bool     `json:"isStarted"`
	IsPaused             bool     `json:"isPaused"`
	CurrentQuestionIndex int      `json:"currentQuestionIndex"`
	TickIntervalMs       int64    `json:"tickIntervalMs"`
	RemainingSeconds     int      `json:"remainingSeconds"`
	Players              []Player `json:"players"`
}
