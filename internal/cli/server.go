package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"secure-quiz-service/internal/app"
	"secure-quiz-service/internal/config"
	"secure-quiz-service/internal/infra/memory"
	pgseed "secure-quiz-service/internal/infra/postgres"
	redisblob "secure-quiz-service/internal/infra/redis"
	"secure-quiz-service/internal/realtime"
	"secure-quiz-service/internal/store"
	transport "secure-quiz-service/internal/transport/http"
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

	var blobs store.BlobStore = memory.NewBlobStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		blobs = redisblob.NewBlobStore(client)
	}

	st := store.New(blobs)
	hub := realtime.NewHub()

	audit := app.NewAuditService(st)
	questions := app.NewQuestionService(st, audit, hub)
	settings := app.NewSettingsService(st, audit, hub)
	sessions := app.NewSessionService(st, audit, hub)
	users := app.NewUserService(st, audit, hub)
	backups := app.NewBackupService(st, audit, hub)
	flow := app.NewQuizFlowService(st, users, sessions, audit, hub)

	if cfg.Postgres.URL != "" && cfg.Postgres.BankID != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		bank, err := pgseed.NewBankLoader(pool).LoadBank(ctx, cfg.Postgres.BankID)
		if err != nil {
			log.Printf("seed bank %s not loaded: %v", cfg.Postgres.BankID, err)
		} else if len(st.Questions(ctx)) == 0 {
			if err := questions.ReplaceAll(ctx, bank, "System"); err != nil {
				return err
			}
			log.Printf("seeded %d questions from bank %s", len(bank), cfg.Postgres.BankID)
		}
	}

	pollInterval := config.DurationOr(cfg.Realtime.PollInterval, 500*time.Millisecond)
	watcher := realtime.StartWatcher(ctx, st, hub, pollInterval)
	defer watcher.Stop()

	handler := transport.NewHandler(questions, settings, sessions, users, backups, flow, audit)
	wsHandler := transport.NewWSHandler(hub, flow)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting secure quiz service on :%s", finalPort)
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
