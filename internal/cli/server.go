package cli

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flashquiz-server/internal/app"
	"flashquiz-server/internal/config"
	"flashquiz-server/internal/domain"
	"flashquiz-server/internal/infra/bankfile"
	"flashquiz-server/internal/infra/memory"
	pgloader "flashquiz-server/internal/infra/postgres"
	redisbank "flashquiz-server/internal/infra/redis"
	wstransport "flashquiz-server/internal/transport/http"
	"flashquiz-server/internal/transport/tcp"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *addr)
		},
	}
}

func runServer(ctx context.Context, configPath, addrFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalAddr := addrFlag
	if finalAddr == "" {
		finalAddr = cfg.Server.Addr
	}
	if finalAddr == "" {
		finalAddr = ":12345"
	}

	var loader memory.BankLoader
	switch {
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgloader.NewBankLoader(pool)
	case cfg.Quiz.QuestionsFile != "":
		questions, err := bankfile.Load(cfg.Quiz.QuestionsFile)
		if err != nil {
			return err
		}
		loader = memory.NewStaticBankLoader(questions)
	default:
		loader = memory.NewStaticBankLoader(sampleBank())
	}

	bankTTL := config.Duration(cfg.Bank.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bank = redisbank.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		bank = memory.NewBankRepository(loader, bankTTL)
	}

	// A bank that cannot list topics is fatal before any connection is accepted.
	topics, err := bank.Topics(ctx)
	if err != nil {
		return err
	}

	engine := app.NewEngine(app.NewRegistry(), bank, app.Options{
		QuizLength:        cfg.Quiz.Length,
		NextQuestionDelay: config.Duration(cfg.Quiz.NextQuestionDelay, 2*time.Second),
	})

	ln, err := net.Listen("tcp", finalAddr)
	if err != nil {
		return err
	}
	log.Printf("quiz server listening on %s", finalAddr)
	log.Printf("available topics: %s", strings.Join(topics, ", "))

	tcpServer := tcp.NewServer(engine)
	go func() {
		if err := tcpServer.Serve(ln); err != nil {
			log.Printf("tcp serve: %v", err)
		}
	}()

	var httpServer *http.Server
	if cfg.HTTP.Port != "" {
		wsHandler := wstransport.NewWSHandler(engine)
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ws", wsHandler.ServeWS)

		httpServer = &http.Server{
			Addr:         ":" + cfg.HTTP.Port,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			log.Printf("websocket endpoint on :%s/ws", cfg.HTTP.Port)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start http server: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	_ = ln.Close()
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
	return nil
}

// sampleBank provides a minimal built-in question bank so the server runs
// without a questions file or database; swap in real content for production.
func sampleBank() map[string][]domain.Question {
	return map[string][]domain.Question{
		"Geography": {
			{Prompt: "What is the capital of France?", Choices: []string{"Paris", "London", "Berlin", "Madrid"}, Answer: "Paris"},
			{Prompt: "Which continent is Egypt in?", Choices: []string{"Asia", "Africa", "Europe"}, Answer: "Africa"},
		},
		"Science": {
			{Prompt: "What planet is known as the Red Planet?", Choices: []string{"Venus", "Mars", "Jupiter"}, Answer: "Mars"},
			{Prompt: "What gas do plants absorb from the atmosphere?", Choices: []string{"Oxygen", "Nitrogen", "Carbon dioxide"}, Answer: "Carbon dioxide"},
		},
		"Math": {
			{Prompt: "What is 7 x 8?", Choices: []string{"54", "56", "64"}, Answer: "56"},
			{Prompt: "What is the square root of 81?", Choices: []string{"8", "9", "11"}, Answer: "9"},
		},
	}
}
