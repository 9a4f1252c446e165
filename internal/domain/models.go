package domain

// Running modes for a quiz. Sequential runs walk questions by ascending
// position; randomized runs draw a one-time permutation when the run starts.
const (
	RunSequential = "sequential"
	RunRandomized = "randomized"
)

// Quiz is the authored quiz definition, minus its questions.
type Quiz struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Level       int    `json:"level"`
	RunningMode string `json:"runningMode"`
	Visible     bool   `json:"visible"`
}

// Answer is one selectable option of a question.
type Answer struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Position int    `json:"position"`
	Correct  bool   `json:"correct"`
}

// Question models an MCQ question; several answers may be correct at once.
// Duration is the answering window in seconds.
type Question struct {
	ID       int64    `json:"id"`
	QuizID   int64    `json:"quizId"`
	Title    string   `json:"title"`
	Duration int      `json:"duration"`
	Position int      `json:"position"`
	Visible  bool     `json:"visible"`
	Answers  []Answer `json:"answers"`
}

// AnswerOption is the participant-facing view of an answer: no correct flag.
type AnswerOption struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the participant-facing view of a question. It is what
// leaves the engine while the question is still open, so it must never
// carry correctness information.
type QuestionView struct {
	ID       int64          `json:"id"`
	Title    string         `json:"title"`
	Duration int            `json:"duration"`
	Answers  []AnswerOption `json:"answers"`
}

// View strips a question down to what participants may see.
func (q Question) View() QuestionView {
	opts := make([]AnswerOption, 0, len(q.Answers))
	for _, a := range q.Answers {
		opts = append(opts, AnswerOption{ID: a.ID, Text: a.Text})
	}
	return QuestionView{ID: q.ID, Title: q.Title, Duration: q.Duration, Answers: opts}
}

// Participant is a joined user identity.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// ParticipantRecord is the per-run state persisted for one participant.
// AnswerIDs and Correct refer to the question identified by LastQuestionID.
type ParticipantRecord struct {
	Score          int     `json:"score"`
	LastQuestionID int64   `json:"lastQuestionId"`
	AnswerIDs      []int64 `json:"answerIds,omitempty"`
	Correct        bool    `json:"correct"`
}

// ScoreboardEntry is one row of the final scoreboard. Rank is strictly
// positional by descending score; the order among tied scores is unspecified.
type ScoreboardEntry struct {
	Participant
	Score int `json:"score"`
	Rank  int `json:"rank"`
}

// AnswerSpread reports how many respondents selected one answer option.
type AnswerSpread struct {
	AnswerID int64 `json:"answerId"`
	Count    int   `json:"count"`
	Percent  int   `json:"percent"`
}

// QuestionStats is computed when a question closes. Spreads and Statuses
// follow the question's answer order; Leaders is a random sample of the
// current near-top scorers, not the final ranking.
type QuestionStats struct {
	Spreads        []AnswerSpread `json:"spreads"`
	Statuses       []bool         `json:"statuses"`
	CorrectCount   int            `json:"correctCount"`
	CorrectPercent int            `json:"correctPercent"`
	Leaders        []Participant  `json:"leaders"`
}
