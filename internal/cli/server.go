package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/engine"
	"live-quiz-service/internal/events"
	"live-quiz-service/internal/infra/memory"
	pgsource "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(logging.NewHandler(os.Stdout, logging.ParseLevel(cfg.Log.Level)))
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	// Run-state store: Redis when configured, in-memory otherwise.
	var store engine.RunStateStore
	var progress transport.ProgressReader
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs := redisstore.NewRunStateStore(client)
		store, progress = rs, rs
	} else {
		logger.Warn("no redis configured, run state will not survive restarts")
		ms := memory.NewRunStateStore()
		store, progress = ms, ms
	}

	// Question source: Postgres behind a TTL cache, or the built-in sample
	// quiz when no database is configured.
	var source engine.QuestionSource
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		cacheTTL := config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute)
		source = memory.NewQuestionCache(pgsource.NewQuestionSource(pool), cacheTTL)
	} else {
		logger.Warn("no postgres configured, serving the built-in sample quiz")
		source = sampleSource()
	}

	bus := events.NewBus(cfg.Engine.EventBacklog)
	eng := engine.New(source, store, bus, engine.Options{
		TickInterval:     config.Duration(cfg.Engine.Tick, time.Second),
		LeaderScoreGap:   cfg.Engine.LeaderScoreGap,
		LeaderSampleSize: cfg.Engine.LeaderSampleSize,
		Logger:           logger,
	})

	wsHandler := transport.NewWSHandler(eng, bus, logger)
	operatorAPI := transport.NewOperatorAPI(eng, progress, logger)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.HandleFunc("/ws", wsHandler.ServeWS)
	operatorAPI.Register(router.PathPrefix("/api").Subrouter())

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handlers.CombinedLoggingHandler(os.Stdout, router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting live quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleSource provides a minimal quiz for running without a database.
func sampleSource() *memory.StaticQuestionSource {
	return memory.NewStaticQuestionSource(
		[]domain.Quiz{
			{ID: 1, Title: "Warm-up quiz", Level: 3, RunningMode: domain.RunSequential, Visible: true},
		},
		[]domain.Question{
			{
				ID: 1, QuizID: 1, Title: "What is 2 + 2?", Duration: 20, Position: 1, Visible: true,
				Answers: []domain.Answer{
					{ID: 1, Text: "3", Position: 1},
					{ID: 2, Text: "4", Position: 2, Correct: true},
					{ID: 3, Text: "5", Position: 3},
				},
			},
			{
				ID: 2, QuizID: 1, Title: "Which of these are prime?", Duration: 20, Position: 2, Visible: true,
				Answers: []domain.Answer{
					{ID: 4, Text: "2", Position: 1, Correct: true},
					{ID: 5, Text: "4", Position: 2},
					{ID: 6, Text: "5", Position: 3, Correct: true},
					{ID: 7, Text: "6", Position: 4},
				},
			},
		},
	)
}
