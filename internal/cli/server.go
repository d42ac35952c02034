package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	amqppub "quiz-session-service/internal/infra/amqp"
	"quiz-session-service/internal/infra/memory"
	pgstore "quiz-session-service/internal/infra/postgres"
	redisstore "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/session"
	transport "quiz-session-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session server",
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if pool != nil {
		loader = pgstore.NewQuestionLoader(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions session.QuestionRepository
	if redisClient != nil {
		questions = redisstore.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, questionTTL)
	}

	var registry session.Registry
	if redisClient != nil {
		registry = redisstore.NewRegistry(redisClient, redisTTL)
	} else {
		registry = memory.NewRegistry()
	}

	var scores session.ScoreStore
	switch {
	case pool != nil:
		scores = pgstore.NewScoreStore(pool)
	case redisClient != nil:
		scores = redisstore.NewScoreStore(redisClient, redisTTL)
	}

	sessionCfg := session.DefaultConfig()
	sessionCfg.Feedback = config.TTLDuration(cfg.Session.Feedback, sessionCfg.Feedback)
	sessionCfg.QuestionGap = config.TTLDuration(cfg.Session.QuestionGap, sessionCfg.QuestionGap)
	sessionCfg.Grace = config.TTLDuration(cfg.Session.Grace, sessionCfg.Grace)

	service := session.NewService(registry, questions, scores, sessionCfg)

	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "session.events"
		}
		publisher, err := amqppub.NewPublisher(cfg.AMQP.URL, exchange)
		if err != nil {
			log.Printf("amqp disabled: %v", err)
		} else {
			defer publisher.Close()
			service.SetPublisher(publisher)
		}
	}

	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions provides a minimal catalog; swap this loader with the
// Postgres-backed one in production.
func sampleQuestions() map[string]domain.Question {
	return map[string]domain.Question{
		"q1": {
			ID:   "q1",
			Text: "What is 2 + 2?",
			Type: domain.QuestionSingle,
			Options: []domain.Option{
				{Text: "3"},
				{Text: "4", Correct: true},
				{Text: "5"},
			},
			Seconds: 20,
		},
		"q2": {
			ID:   "q2",
			Text: "Select the even numbers.",
			Type: domain.QuestionMulti,
			Options: []domain.Option{
				{Text: "2", Correct: true},
				{Text: "3"},
				{Text: "4", Correct: true},
				{Text: "5"},
			},
			Seconds: 30,
		},
	}
}
