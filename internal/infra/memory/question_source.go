package memory

import (
	"context"
	"sort"

	"live-quiz-service/internal/domain"
)

// StaticQuestionSource serves quiz content from in-memory maps (tests and
// the no-database demo mode).
type StaticQuestionSource struct {
	quizzes   map[int64]domain.Quiz
	questions map[int64][]domain.Question
}

func NewStaticQuestionSource(quizzes []domain.Quiz, questions []domain.Question) *StaticQuestionSource {
	s := &StaticQuestionSource{
		quizzes:   make(map[int64]domain.Quiz, len(quizzes)),
		questions: make(map[int64][]domain.Question),
	}
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
	}
	for _, q := range questions {
		s.questions[q.QuizID] = append(s.questions[q.QuizID], q)
	}
	for quizID := range s.questions {
		qs := s.questions[quizID]
		sort.Slice(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })
		for k := range qs {
			answers := qs[k].Answers
			sort.Slice(answers, func(i, j int) bool { return answers[i].Position < answers[j].Position })
		}
	}
	return s
}

func (s *StaticQuestionSource) QuizByID(_ context.Context, id int64) (domain.Quiz, error) {
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *StaticQuestionSource) Questions(_ context.Context, quizID int64) ([]domain.Question, error) {
	if _, ok := s.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	out := make([]domain.Question, 0, len(s.questions[quizID]))
	for _, q := range s.questions[quizID] {
		if q.Visible {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *StaticQuestionSource) CountQuestions(ctx context.Context, quizID int64) (int, error) {
	qs, err := s.Questions(ctx, quizID)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}
