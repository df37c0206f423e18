package domain

import "fmt"

// Validate checks that a quiz can be played: at least one question, QCM
// questions with unique choice texts and a correct choice, QRL questions
// without choices.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: %s has no questions", ErrInvalidQuiz, q.ID)
	}
	for i, question := range q.Questions {
		if question.Points < 0 {
			return fmt.Errorf("%w: question %d has negative points", ErrInvalidQuiz, i)
		}
		switch question.Type {
		case QuestionQRL:
			if len(question.Choices) > 0 {
				return fmt.Errorf("%w: open question %d has choices", ErrInvalidQuiz, i)
			}
		case QuestionQCM:
			seen := make(map[string]struct{}, len(question.Choices))
			correct := 0
			for _, c := range question.Choices {
				if _, dup := seen[c.Text]; dup {
					return fmt.Errorf("%w: question %d repeats choice %q", ErrInvalidQuiz, i, c.Text)
				}
				seen[c.Text] = struct{}{}
				if c.IsCorrect {
					correct++
				}
			}
			if correct == 0 {
				return fmt.Errorf("%w: question %d has no correct choice", ErrInvalidQuiz, i)
			}
		default:
			return fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidQuiz, i, question.Type)
		}
	}
	return nil
}
