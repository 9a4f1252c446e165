package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuestionSource loads quiz definitions from the relational store. The store
// is owned by the (external) authoring interface; the engine only reads.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (s *QuestionSource) QuizByID(ctx context.Context, id int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, COALESCE(description, ''), level, running_mode, visible
		FROM quizzes WHERE id = $1`, id).
		Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.Level, &quiz.RunningMode, &quiz.Visible)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %d: %w", id, err)
	}
	return quiz, nil
}

// Questions returns the visible questions of a quiz ordered by position,
// with answers nested in answer-position order.
func (s *QuestionSource) Questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.quiz_id, q.title, q.duration, q.position, q.visible,
		       a.id, a.text, a.position, a.correct
		FROM questions q
		LEFT JOIN answers a ON a.question_id = q.id
		WHERE q.quiz_id = $1 AND q.visible
		ORDER BY q.position, a.position`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions for quiz %d: %w", quizID, err)
	}
	defer rows.Close()

	var out []domain.Question
	index := make(map[int64]int)
	for rows.Next() {
		var q domain.Question
		var answerID, answerPos *int64
		var answerText *string
		var answerCorrect *bool
		err := rows.Scan(&q.ID, &q.QuizID, &q.Title, &q.Duration, &q.Position, &q.Visible,
			&answerID, &answerText, &answerPos, &answerCorrect)
		if err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}

		i, ok := index[q.ID]
		if !ok {
			i = len(out)
			index[q.ID] = i
			out = append(out, q)
		}
		if answerID != nil {
			out[i].Answers = append(out[i].Answers, domain.Answer{
				ID:       *answerID,
				Text:     *answerText,
				Position: int(*answerPos),
				Correct:  *answerCorrect,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions for quiz %d: %w", quizID, err)
	}
	return out, nil
}

func (s *QuestionSource) CountQuestions(ctx context.Context, quizID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(id) FROM questions WHERE quiz_id = $1 AND visible`, quizID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count questions for quiz %d: %w", quizID, err)
	}
	return count, nil
}
