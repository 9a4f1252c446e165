package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/engine"
)

// ProgressReader exposes the persisted remaining-time snapshot. It reads the
// shared run-state store directly, so values may trail the engine by up to
// one tick.
type ProgressReader interface {
	CurrentQuestion(ctx context.Context) (questionID int64, remaining time.Duration, ok bool, err error)
}

// OperatorAPI is the command surface for the person running the quiz.
// Authoring CRUD lives elsewhere; this only drives the live run.
type OperatorAPI struct {
	engine   *engine.Engine
	progress ProgressReader
	log      *slog.Logger
}

func NewOperatorAPI(eng *engine.Engine, progress ProgressReader, log *slog.Logger) *OperatorAPI {
	return &OperatorAPI{engine: eng, progress: progress, log: log}
}

// Register mounts the operator routes on the router.
func (a *OperatorAPI) Register(r *mux.Router) {
	r.HandleFunc("/quizzes/{id:[0-9]+}/initialize", a.initialize).Methods(http.MethodPost)
	r.HandleFunc("/run/start", a.start).Methods(http.MethodPost)
	r.HandleFunc("/run/next", a.next).Methods(http.MethodPost)
	r.HandleFunc("/run/reset", a.reset).Methods(http.MethodPost)
	r.HandleFunc("/run/status", a.status).Methods(http.MethodGet)
	r.HandleFunc("/run/progress", a.runProgress).Methods(http.MethodGet)
	r.HandleFunc("/run/scoreboard", a.scoreboard).Methods(http.MethodGet)
}

func (a *OperatorAPI) initialize(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quiz id")
		return
	}
	if err := a.engine.Initialize(r.Context(), quizID); err != nil {
		a.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.engine.Status())
}

func (a *OperatorAPI) start(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Start(r.Context()); err != nil {
		a.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.engine.Status())
}

func (a *OperatorAPI) next(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.NextQuestion(r.Context()); err != nil {
		a.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.engine.Status())
}

func (a *OperatorAPI) reset(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.ResetParticipants(r.Context()); err != nil {
		a.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.engine.Status())
}

func (a *OperatorAPI) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Status())
}

// runProgress serves the store's best-effort progress snapshot, independent
// of the engine's in-memory view.
func (a *OperatorAPI) runProgress(w http.ResponseWriter, r *http.Request) {
	questionID, remaining, ok, err := a.progress.CurrentQuestion(r.Context())
	if err != nil {
		a.log.Error("read progress", "err", err)
		writeError(w, http.StatusInternalServerError, "progress unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":          ok,
		"questionId":      questionID,
		"remainingMillis": remaining.Milliseconds(),
	})
}

func (a *OperatorAPI) scoreboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.engine.LatestScoreboard(r.Context())
	if err != nil {
		a.log.Error("read scoreboard", "err", err)
		writeError(w, http.StatusInternalServerError, "scoreboard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *OperatorAPI) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		a.log.Error("operator command failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
