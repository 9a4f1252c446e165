package events

import "live-quiz-service/internal/domain"

// Kind identifies a lifecycle event emitted by the engine.
type Kind string

const (
	KindQuizInitialized   Kind = "quiz-initialized"
	KindParticipantJoined Kind = "participant-joined"
	KindQuestionStarted   Kind = "question-started"
	KindAnswerCreated     Kind = "answer-created"
	KindAnswerUpdated     Kind = "answer-updated"
	KindQuestionEnded     Kind = "question-ended"
	KindQuizEnded         Kind = "quiz-ended"
)

// Event is the envelope delivered to subscribers. Payload is one of the
// typed payload structs below, matching Kind.
type Event struct {
	Kind    Kind `json:"type"`
	Payload any  `json:"payload"`
}

// QuizInitialized is emitted once a quiz has been resolved and the previous
// run's answer state cleared.
type QuizInitialized struct {
	Quiz             domain.Quiz `json:"quiz"`
	ParticipantCount string      `json:"participantCount"`
}

// ParticipantJoined is a lobby event: it fires only for first-time joins
// while a run is initialized but not yet started.
type ParticipantJoined struct {
	Participant      domain.Participant `json:"participant"`
	ParticipantCount string             `json:"participantCount"`
}

// QuestionStarted carries the sanitized question and its absolute expiry in
// Unix milliseconds.
type QuestionStarted struct {
	Question  domain.QuestionView `json:"question"`
	ExpiresAt int64               `json:"expiresAt"`
	Index     int                 `json:"index"`
	Total     int                 `json:"total"`
}

// AnswerReceived is the payload of both answer-created and answer-updated.
// Selected holds one boolean per answer option, in question order; the
// correctness of the set is deliberately absent.
type AnswerReceived struct {
	ParticipantID string `json:"participantId"`
	Selected      []bool `json:"selected"`
}

// QuestionEnded carries the closing statistics.
type QuestionEnded struct {
	Stats  domain.QuestionStats `json:"stats"`
	QuizID int64                `json:"quizId"`
}

// QuizEnded carries the final ranked scoreboard.
type QuizEnded struct {
	Scoreboard []domain.ScoreboardEntry `json:"scoreboard"`
}
