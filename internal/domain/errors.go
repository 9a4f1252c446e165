package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz id does not resolve to a quiz.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question id does not resolve within a quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidTransition is returned for operator commands issued from a
	// state that forbids them (e.g. starting an already-running quiz).
	ErrInvalidTransition = errors.New("invalid quiz state for this command")
)
