package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no live room has the given code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when creating a room under a code already in use.
	ErrRoomExists = errors.New("room code already in use")
	// ErrRoomClosed rejects joins on a locked or started room.
	ErrRoomClosed = errors.New("room is closed")
	// ErrNameTaken rejects joins with a username already present in the room.
	ErrNameTaken = errors.New("username already taken")
	// ErrBanned rejects joins from a banned username.
	ErrBanned = errors.New("username is banned from this room")
	// ErrPlayerNotFound is returned when a user tries to act before joining.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz rejects quiz content that cannot be played.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrQuestionNotFound indicates the question is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	ErrGameNotStarted     = errors.New("game has not started")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrAlreadyAnswered    = errors.New("player already answered this question")
	// ErrAnswerWindowClosed rejects answers once the question timer expired.
	ErrAnswerWindowClosed = errors.New("answer window closed")
	// ErrStaleAnswer rejects answers that target a question no longer current.
	ErrStaleAnswer     = errors.New("answer targets a previous question")
	ErrNotOpenQuestion = errors.New("current question is not open-ended")
	ErrInvalidGrade    = errors.New("grade must be 0, 0.5 or 1")
	// ErrAnswerRejected is returned when the answer could not be corrected
	// because a collaborator failed; the player may submit again.
	ErrAnswerRejected = errors.New("answer rejected")
)
