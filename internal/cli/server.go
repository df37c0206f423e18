package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/config"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
	natsinfra "trivia-room-service/internal/infra/nats"
	pginfra "trivia-room-service/internal/infra/postgres"
	redisinfra "trivia-room-service/internal/infra/redis"
	transport "trivia-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia room server",
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
	setupLogging(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
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
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader quizStore = memory.NewStaticQuizLoader(nil)
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}
	for _, quiz := range sampleQuizzes() {
		if err := loader.SaveQuiz(ctx, quiz); err != nil {
			log.Warn().Err(err).Str("quiz_id", quiz.ID).Msg("failed to seed sample quiz")
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var (
		rooms      app.RoomRepository
		redisRooms *redisinfra.RoomStore
	)
	if redisClient != nil {
		redisRooms = redisinfra.NewRoomStore(redisClient, redisTTL)
		rooms = redisRooms
	} else {
		rooms = memory.NewRoomStore()
	}

	historyLog := memory.NewHistoryLog(100)
	sinks := []app.HistoryWriter{historyLog}
	var historyReader transport.HistoryReader = historyLog
	if pool != nil {
		pgHistory := pginfra.NewHistoryRepository(pool)
		sinks = append(sinks, pgHistory)
		historyReader = pgHistory
	}
	if cfg.NATS.URL != "" {
		nc, err := natsinfra.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Close()
		sinks = append(sinks, natsinfra.NewHistoryPublisher(nc, cfg.NATS.Subject))
	}
	recorder := app.NewHistoryRecorder(sinks...)
	if err := recorder.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer recorder.Stop()

	service := app.NewGameService(rooms, quizRepo, recorder, app.Options{
		TickInterval:         config.TTLDuration(cfg.Game.TickInterval, time.Second),
		QuestionDuration:     config.TTLDuration(cfg.Game.QuestionDuration, 20*time.Second),
		OpenQuestionDuration: config.TTLDuration(cfg.Game.OpenQuestionDuration, 60*time.Second),
	})
	defer service.Close()

	handler := transport.NewHandler(service, historyReader, transport.Config{
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     c.Handler(mux),
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Msg("starting trivia room service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if redisRooms != nil {
		g.Go(func() error {
			keepRoomsAlive(gctx, redisRooms, redisTTL/2)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// keepRoomsAlive refreshes the Redis liveness keys of local rooms until ctx ends.
func keepRoomsAlive(ctx context.Context, store *redisinfra.RoomStore, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Touch(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to refresh room keys")
			}
		}
	}
}

// quizStore is a quiz source that can also be seeded.
type quizStore interface {
	memory.QuizLoader
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// sampleQuizzes are seeded into the quiz store at startup.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:              "quiz-1",
			Title:           "Warm-up",
			Description:     "Two quick questions and an open one",
			DurationSeconds: 20,
			Questions: []domain.Question{
				{
					Type:   domain.QuestionQCM,
					Text:   "What is 2 + 2?",
					Points: 10,
					Choices: []domain.Choice{
						{Text: "3"},
						{Text: "4", IsCorrect: true},
						{Text: "5"},
					},
				},
				{
					Type:   domain.QuestionQCM,
					Text:   "Which of these are primary colors?",
					Points: 20,
					Choices: []domain.Choice{
						{Text: "Red", IsCorrect: true},
						{Text: "Green"},
						{Text: "Blue", IsCorrect: true},
						{Text: "Yellow", IsCorrect: true},
					},
				},
				{
					Type:   domain.QuestionQRL,
					Text:   "Describe your favourite algorithm in one sentence.",
					Points: 30,
				},
			},
		},
	}
}
