// Package correction decides whether a set of submitted choices fully answers
// a quiz question. It holds no mutable state and is safe for concurrent use.
package correction

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// QuizLookup loads quiz content by id.
type QuizLookup interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

type Engine struct {
	quizzes QuizLookup
}

func NewEngine(quizzes QuizLookup) *Engine {
	return &Engine{quizzes: quizzes}
}

// CorrectQuiz reports whether submitted matches the correct choices of the
// question named questionText in quiz quizID. It fails closed: missing input,
// unknown quiz or question, and lookup failures all yield false.
func (e *Engine) CorrectQuiz(ctx context.Context, submitted []string, questionText, quizID string) bool {
	ok, err := e.Check(ctx, submitted, questionText, quizID)
	if err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("correction failed closed")
		return false
	}
	return ok
}

// Check is CorrectQuiz with lookup failures surfaced. Not-found conditions are
// not errors; they report false with a nil error.
func (e *Engine) Check(ctx context.Context, submitted []string, questionText, quizID string) (bool, error) {
	if questionText == "" || quizID == "" {
		return false, nil
	}

	quiz, err := e.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup quiz %s: %w", quizID, err)
	}

	question, ok := FindQuestion(quiz, questionText)
	if !ok {
		return false, nil
	}
	return Matches(question, submitted), nil
}

// FindQuestion locates a question by its text.
func FindQuestion(quiz domain.Quiz, text string) (domain.Question, bool) {
	for _, q := range quiz.Questions {
		if q.Text == text {
			return q, true
		}
	}
	return domain.Question{}, false
}

// CorrectChoices returns the set of choice texts flagged correct.
func CorrectChoices(question domain.Question) map[string]struct{} {
	set := make(map[string]struct{}, len(question.Choices))
	for _, c := range question.Choices {
		if c.IsCorrect {
			set[c.Text] = struct{}{}
		}
	}
	return set
}

// Matches reports whether submitted equals the question's correct set.
// Order does not matter; a submission naming the same choice twice is rejected.
// A question without choices only matches an empty submission.
func Matches(question domain.Question, submitted []string) bool {
	if len(question.Choices) == 0 {
		return len(submitted) == 0
	}

	correct := CorrectChoices(question)
	if len(submitted) != len(correct) {
		return false
	}
	seen := make(map[string]struct{}, len(submitted))
	for _, choice := range submitted {
		if _, dup := seen[choice]; dup {
			return false
		}
		seen[choice] = struct{}{}
		if _, ok := correct[choice]; !ok {
			return false
		}
	}
	return true
}
