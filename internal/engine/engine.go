package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/events"
)

// QuestionSource resolves quiz content (relational store behind a cache).
type QuestionSource interface {
	QuizByID(ctx context.Context, id int64) (domain.Quiz, error)
	// Questions returns the quiz's visible questions ordered by position,
	// with answers nested in answer-position order.
	Questions(ctx context.Context, quizID int64) ([]domain.Question, error)
	CountQuestions(ctx context.Context, quizID int64) (int, error)
}

// RunStateStore is the durable key-value store for run-time state. It is
// written only by the engine; external readers must tolerate slightly stale
// snapshots.
type RunStateStore interface {
	JoinParticipant(ctx context.Context, p domain.Participant, joinedAt time.Time) (isNew bool, count int, err error)
	IsJoined(ctx context.Context, participantID string) (bool, error)
	Participants(ctx context.Context) ([]domain.Participant, error)
	CountParticipants(ctx context.Context) (int, error)

	Record(ctx context.Context, participantID string) (domain.ParticipantRecord, bool, error)
	SaveRecord(ctx context.Context, participantID string, rec domain.ParticipantRecord) error
	Records(ctx context.Context) (map[string]domain.ParticipantRecord, error)
	ClearRecords(ctx context.Context) error

	SetCurrentQuestion(ctx context.Context, questionID int64, remaining time.Duration) error
	UpdateRemaining(ctx context.Context, remaining time.Duration) error
	ClearCurrentQuestion(ctx context.Context) error

	SaveScoreboard(ctx context.Context, entries []domain.ScoreboardEntry) error
	LatestScoreboard(ctx context.Context) ([]domain.ScoreboardEntry, error)

	Reset(ctx context.Context) error
}

// Options tunes engine behaviour. Zero values fall back to the product
// defaults.
type Options struct {
	TickInterval     time.Duration
	LeaderScoreGap   int
	LeaderSampleSize int
	Logger           *slog.Logger
	Clock            func() time.Time
	Rand             *rand.Rand
}

// snapshot is the immutable copy of the active question, captured at
// activation. correctIDs is computed once and cached for its lifetime.
type snapshot struct {
	question   domain.Question
	correctIDs []int64
	expiresAt  time.Time
	gen        uint64
	closed     bool
}

// Engine is the authoritative quiz-run state machine. All state-mutating
// operations serialize on mu: timer callbacks, answer submissions and
// operator commands never interleave partial mutations.
type Engine struct {
	source QuestionSource
	store  RunStateStore
	bus    *events.Bus
	log    *slog.Logger
	now    func() time.Time
	rnd    *rand.Rand

	tickInterval     time.Duration
	leaderScoreGap   int
	leaderSampleSize int

	mu            sync.Mutex
	runID         string
	quiz          *domain.Quiz
	startedAt     time.Time
	questions     []domain.Question
	order         []int64
	randomized    bool
	questionIndex int
	questionCount int
	lastPosition  int
	cur           *snapshot
	gen           uint64
	timer         *time.Timer
	tickStop      chan struct{}
	countText     string
}

// New builds an engine around the injected collaborators. One engine runs at
// most one quiz at a time.
func New(source QuestionSource, store RunStateStore, bus *events.Bus, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.LeaderScoreGap <= 0 {
		opts.LeaderScoreGap = 4
	}
	if opts.LeaderSampleSize <= 0 {
		opts.LeaderSampleSize = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		source:           source,
		store:            store,
		bus:              bus,
		log:              opts.Logger,
		now:              opts.Clock,
		rnd:              opts.Rand,
		tickInterval:     opts.TickInterval,
		leaderScoreGap:   opts.LeaderScoreGap,
		leaderSampleSize: opts.LeaderSampleSize,
		countText:        countText(0),
	}
}

// Initialize resolves the quiz and opens the pre-game lobby. Any previous
// run's answer state is cleared; the join registry is preserved so returning
// participants keep their original join order.
func (e *Engine) Initialize(ctx context.Context, quizID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	quiz, err := e.source.QuizByID(ctx, quizID)
	if err != nil {
		return err
	}

	e.resetRunLocked()
	if err := e.store.ClearRecords(ctx); err != nil {
		return fmt.Errorf("clear participant records: %w", err)
	}
	if err := e.store.ClearCurrentQuestion(ctx); err != nil {
		e.log.Warn("clear stale current question", "err", err)
	}

	e.quiz = &quiz
	e.runID = uuid.NewString()

	// On a failed count, keep the last known text rather than announcing an
	// empty lobby to a full one.
	if count, err := e.store.CountParticipants(ctx); err != nil {
		e.log.Warn("count participants", "err", err)
	} else {
		e.countText = countText(count)
	}

	e.log.Info("quiz initialized", "quiz", quiz.Title, "run", e.runID)
	e.bus.Publish(events.Event{Kind: events.KindQuizInitialized, Payload: events.QuizInitialized{
		Quiz:             quiz,
		ParticipantCount: e.countText,
	}})
	return nil
}

// Start begins the run. Valid only from the initialized state. Randomized
// quizzes draw their one-time question permutation here; it is consumed in
// order and never reshuffled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.quiz == nil || !e.startedAt.IsZero() {
		return domain.ErrInvalidTransition
	}

	questions, err := e.source.Questions(ctx, e.quiz.ID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	var count int
	var order []int64
	randomized := e.quiz.RunningMode == domain.RunRandomized
	if randomized {
		order = make([]int64, len(questions))
		for i, q := range questions {
			order[i] = q.ID
		}
		e.rnd.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		count = len(order)
		e.log.Info("quiz starts", "mode", "randomized", "order", order)
	} else {
		count, err = e.source.CountQuestions(ctx, e.quiz.ID)
		if err != nil {
			return fmt.Errorf("count questions: %w", err)
		}
		e.log.Info("quiz starts", "mode", "sequential", "questions", count)
	}

	e.startedAt = e.now()
	e.questions = questions
	e.order = order
	e.randomized = randomized
	e.questionIndex = 0
	e.questionCount = count
	e.lastPosition = 0

	return e.advanceLocked(ctx)
}

// NextQuestion is the operator override: it short-circuits the active
// question through the exact close procedure the timer uses, then advances.
func (e *Engine) NextQuestion(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.quiz == nil || e.startedAt.IsZero() || e.cur == nil {
		return domain.ErrInvalidTransition
	}
	if err := e.closeQuestionLocked(ctx); err != nil {
		return err
	}
	return e.advanceLocked(ctx)
}

// Join registers a participant, keyed by first-seen time so re-joins never
// reorder the registry. The joined event is a lobby feature: it fires only
// for new participants while a run is initialized but not started.
func (e *Engine) Join(ctx context.Context, p domain.Participant) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	isNew, count, err := e.store.JoinParticipant(ctx, p, e.now())
	if err != nil {
		return fmt.Errorf("register participant: %w", err)
	}
	e.countText = countText(count)

	if isNew && e.quiz != nil && e.startedAt.IsZero() {
		e.log.Debug("participant joined", "participant", p.Name, "count", e.countText)
		e.bus.Publish(events.Event{Kind: events.KindParticipantJoined, Payload: events.ParticipantJoined{
			Participant:      p,
			ParticipantCount: e.countText,
		}})
	}
	return nil
}

// SubmitAnswer records a participant's current answer set for the active
// question. Submissions outside an active question are expected client noise
// and silently ignored. Resubmissions overwrite: only the set in place when
// the question closes is scored.
func (e *Engine) SubmitAnswer(ctx context.Context, participantID string, answerIDs []int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.cur
	if snap == nil || snap.closed {
		return nil
	}

	// Unknown submitters are expected client noise too, and must never
	// surface on the scoreboard.
	joined, err := e.store.IsJoined(ctx, participantID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !joined {
		return nil
	}

	ids := normalizeIDs(answerIDs)
	rec, _, err := e.store.Record(ctx, participantID)
	if err != nil {
		return fmt.Errorf("load participant record: %w", err)
	}

	first := rec.LastQuestionID != snap.question.ID
	rec.LastQuestionID = snap.question.ID
	rec.AnswerIDs = ids
	rec.Correct = equalIDSets(ids, snap.correctIDs)
	if err := e.store.SaveRecord(ctx, participantID, rec); err != nil {
		return fmt.Errorf("save participant record: %w", err)
	}

	selected := make([]bool, len(snap.question.Answers))
	for i, a := range snap.question.Answers {
		selected[i] = containsID(ids, a.ID)
	}
	kind := events.KindAnswerUpdated
	if first {
		kind = events.KindAnswerCreated
	}
	e.bus.Publish(events.Event{Kind: kind, Payload: events.AnswerReceived{
		ParticipantID: participantID,
		Selected:      selected,
	}})
	return nil
}

// ResetParticipants wipes the registry and all run state, for reuse between
// unrelated game sessions.
func (e *Engine) ResetParticipants(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetRunLocked()
	if err := e.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset run state: %w", err)
	}
	e.countText = countText(0)
	e.log.Info("participants reset")
	return nil
}

// LatestScoreboard returns the most recently persisted final scoreboard.
func (e *Engine) LatestScoreboard(ctx context.Context) ([]domain.ScoreboardEntry, error) {
	return e.store.LatestScoreboard(ctx)
}

// IsRunning reports whether a question is currently open for answers.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil && !e.cur.closed
}

// Status is a point-in-time view for the operator.
type Status struct {
	State            string               `json:"state"`
	RunID            string               `json:"runId,omitempty"`
	Quiz             *domain.Quiz         `json:"quiz,omitempty"`
	QuestionIndex    int                  `json:"questionIndex"`
	QuestionCount    int                  `json:"questionCount"`
	Question         *domain.QuestionView `json:"question,omitempty"`
	ExpiresAt        int64                `json:"expiresAt,omitempty"`
	Remaining        string               `json:"remaining,omitempty"`
	ParticipantCount string               `json:"participantCount"`
}

// Status reports the engine's current lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:            e.stateLocked(),
		RunID:            e.runID,
		Quiz:             e.quiz,
		QuestionIndex:    e.questionIndex,
		QuestionCount:    e.questionCount,
		ParticipantCount: e.countText,
	}
	if e.cur != nil {
		view := e.cur.question.View()
		st.Question = &view
		st.ExpiresAt = e.cur.expiresAt.UnixMilli()
		st.Remaining = remainingText(e.cur.expiresAt, e.now())
	}
	return st
}

func (e *Engine) stateLocked() string {
	switch {
	case e.quiz == nil:
		return "idle"
	case e.startedAt.IsZero():
		return "initialized"
	default:
		return "question-active"
	}
}

// advanceLocked selects and activates the next eligible question, or wraps
// the quiz up when none remains.
func (e *Engine) advanceLocked(ctx context.Context) error {
	var next *domain.Question
	if e.randomized {
		if len(e.order) == 0 {
			return e.wrapUpLocked(ctx)
		}
		id := e.order[0]
		e.order = e.order[1:]
		for i := range e.questions {
			if e.questions[i].ID == id {
				next = &e.questions[i]
				break
			}
		}
		if next == nil {
			return fmt.Errorf("question %d: %w", id, domain.ErrQuestionNotFound)
		}
	} else {
		for i := range e.questions {
			if e.questions[i].Position > e.lastPosition {
				next = &e.questions[i]
				break
			}
		}
		if next == nil {
			return e.wrapUpLocked(ctx)
		}
	}

	q := *next
	duration := time.Duration(q.Duration) * time.Second
	e.gen++
	snap := &snapshot{
		question:   q,
		correctIDs: correctIDSet(q),
		expiresAt:  e.now().Add(duration),
		gen:        e.gen,
	}
	e.cur = snap
	e.lastPosition = q.Position
	e.questionIndex++

	var storeErr error
	if err := e.store.SetCurrentQuestion(ctx, q.ID, duration); err != nil {
		storeErr = fmt.Errorf("persist current question: %w", err)
		e.log.Error("persist current question", "err", err)
	}

	gen := snap.gen
	e.timer = time.AfterFunc(duration, func() { e.questionExpires(gen) })
	e.startTickerLocked(snap)

	e.log.Info("question starts", "question", q.Title, "duration", duration,
		"index", e.questionIndex, "total", e.questionCount)
	e.bus.Publish(events.Event{Kind: events.KindQuestionStarted, Payload: events.QuestionStarted{
		Question:  q.View(),
		ExpiresAt: snap.expiresAt.UnixMilli(),
		Index:     e.questionIndex,
		Total:     e.questionCount,
	}})
	return storeErr
}

// questionExpires is the timer callback. The generation check makes closing
// idempotent against the race between a firing timer and a manual advance.
func (e *Engine) questionExpires(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || e.cur.gen != gen || e.cur.closed {
		return
	}
	ctx := context.Background()
	if err := e.closeQuestionLocked(ctx); err != nil {
		e.log.Error("close expired question", "err", err)
		return
	}
	if err := e.advanceLocked(ctx); err != nil {
		e.log.Error("advance after expiry", "err", err)
	}
}

// closeQuestionLocked runs the shared close procedure: cancel timers, clear
// the persisted question, apply score increments for fully-correct
// respondents, compute stats and emit question-ended. Calling it again for
// an already-closed question is a no-op.
func (e *Engine) closeQuestionLocked(ctx context.Context) error {
	snap := e.cur
	if snap == nil || snap.closed {
		return nil
	}

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.stopTickerLocked()

	// The scoring read must succeed before the close commits; on failure the
	// question stays open so the operator can retry with NextQuestion.
	records, err := e.store.Records(ctx)
	if err != nil {
		return fmt.Errorf("load participant records: %w", err)
	}

	snap.closed = true
	e.cur = nil

	if err := e.store.ClearCurrentQuestion(ctx); err != nil {
		e.log.Warn("clear current question", "err", err)
	}

	respondents := make(map[string]domain.ParticipantRecord)
	for id, rec := range records {
		if rec.LastQuestionID == snap.question.ID {
			respondents[id] = rec
		}
	}

	var saveErr error
	for id, rec := range respondents {
		if !rec.Correct {
			continue
		}
		rec.Score++
		respondents[id] = rec
		records[id] = rec
		if err := e.store.SaveRecord(ctx, id, rec); err != nil && saveErr == nil {
			saveErr = fmt.Errorf("save score for %s: %w", id, err)
		}
	}

	participants, err := e.store.Participants(ctx)
	if err != nil {
		e.log.Warn("load participants for stats", "err", err)
	}
	stats := computeStats(snap.question, respondents, records, participants, e.rnd, e.leaderScoreGap, e.leaderSampleSize)

	e.log.Info("question ends", "question", snap.question.Title,
		"respondents", len(respondents), "correctPercent", stats.CorrectPercent)
	e.log.Debug("answers spread", "spread", spreadText(stats))
	if len(stats.Leaders) > 0 {
		names := make([]string, len(stats.Leaders))
		for i, p := range stats.Leaders {
			names[i] = p.Name
		}
		e.log.Debug("currently leading", "leaders", strings.Join(names, ", "))
	}

	e.bus.Publish(events.Event{Kind: events.KindQuestionEnded, Payload: events.QuestionEnded{
		Stats:  stats,
		QuizID: e.quiz.ID,
	}})
	return saveErr
}

// wrapUpLocked computes and persists the final scoreboard, resets the run to
// idle and emits quiz-ended.
func (e *Engine) wrapUpLocked(ctx context.Context) error {
	records, err := e.store.Records(ctx)
	if err != nil {
		return fmt.Errorf("load participant records: %w", err)
	}
	participants, err := e.store.Participants(ctx)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}

	board := buildScoreboard(records, participants)

	var saveErr error
	if err := e.store.SaveScoreboard(ctx, board); err != nil {
		saveErr = fmt.Errorf("persist scoreboard: %w", err)
		e.log.Error("persist scoreboard", "err", err)
	}

	title := ""
	if e.quiz != nil {
		title = e.quiz.Title
	}
	e.resetRunLocked()
	if err := e.store.ClearRecords(ctx); err != nil {
		e.log.Warn("clear participant records", "err", err)
	}

	e.log.Info("quiz ends", "quiz", title, "ranked", len(board))
	e.bus.Publish(events.Event{Kind: events.KindQuizEnded, Payload: events.QuizEnded{Scoreboard: board}})
	return saveErr
}

// resetRunLocked drops every piece of in-memory run state and cancels timers.
func (e *Engine) resetRunLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.stopTickerLocked()
	e.runID = ""
	e.quiz = nil
	e.startedAt = time.Time{}
	e.questions = nil
	e.order = nil
	e.randomized = false
	e.questionIndex = 0
	e.questionCount = 0
	e.lastPosition = 0
	e.cur = nil
}

// startTickerLocked persists remaining time roughly every second. The write
// is a best-effort progress indicator, so failures are logged and skipped.
func (e *Engine) startTickerLocked(snap *snapshot) {
	stop := make(chan struct{})
	e.tickStop = stop
	interval := e.tickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				remaining := snap.expiresAt.Sub(now)
				if remaining < 0 {
					remaining = 0
				}
				if err := e.store.UpdateRemaining(context.Background(), remaining); err != nil {
					e.log.Warn("persist remaining time", "err", err)
					continue
				}
				e.log.Debug("question progresses", "remaining", remaining.Round(time.Second))
			}
		}
	}()
}

func (e *Engine) stopTickerLocked() {
	if e.tickStop != nil {
		close(e.tickStop)
		e.tickStop = nil
	}
}

// spreadText formats stats the way the on-call log reads them: option
// letters, a star for correct options, then count and percentage.
func spreadText(stats domain.QuestionStats) string {
	var b strings.Builder
	for i, s := range stats.Spreads {
		if i > 0 {
			b.WriteString(" / ")
		}
		b.WriteByte(byte('A' + i))
		if i < len(stats.Statuses) && stats.Statuses[i] {
			b.WriteByte('*')
		} else {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, ": %d (%d%%)", s.Count, s.Percent)
	}
	return b.String()
}

func countText(n int) string {
	switch {
	case n <= 0:
		return "no participants yet"
	case n == 1:
		return "one participant"
	default:
		return fmt.Sprintf("%d participants", n)
	}
}

// remainingText renders a mm:ss countdown, floored at zero.
func remainingText(expiresAt, now time.Time) string {
	secs := int(expiresAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
