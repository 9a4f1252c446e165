package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// Source is the backing quiz catalog a cache decorates. Declared here so the
// cache depends only on what it consumes.
type Source interface {
	QuizByID(ctx context.Context, id int64) (domain.Quiz, error)
	Questions(ctx context.Context, quizID int64) ([]domain.Question, error)
	CountQuestions(ctx context.Context, quizID int64) (int, error)
}

// QuestionCache decorates a Source with a TTL cache so a run does not hammer
// the relational store. Quiz metadata and the question list are cached as one
// unit per quiz; singleflight collapses concurrent misses.
type QuestionCache struct {
	source Source
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(source Source, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedQuiz),
	}
}

func (c *QuestionCache) QuizByID(ctx context.Context, id int64) (domain.Quiz, error) {
	entry, err := c.load(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	return entry.quiz, nil
}

func (c *QuestionCache) Questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	entry, err := c.load(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return entry.questions, nil
}

func (c *QuestionCache) CountQuestions(ctx context.Context, quizID int64) (int, error) {
	entry, err := c.load(ctx, quizID)
	if err != nil {
		return 0, err
	}
	return len(entry.questions), nil
}

func (c *QuestionCache) load(ctx context.Context, quizID int64) (cachedQuiz, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(keyFor(quizID), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry, nil
		}
		c.mu.RUnlock()

		quiz, err := c.source.QuizByID(ctx, quizID)
		if err != nil {
			return cachedQuiz{}, err
		}
		questions, err := c.source.Questions(ctx, quizID)
		if err != nil {
			return cachedQuiz{}, err
		}

		entry := cachedQuiz{
			quiz:      quiz,
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Lock()
		c.cache[quizID] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return cachedQuiz{}, err
	}
	return result.(cachedQuiz), nil
}

func keyFor(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
