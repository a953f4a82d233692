package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/roboverse/bookqa-go/internal/agent"
	"github.com/roboverse/bookqa-go/internal/auth"
	"github.com/roboverse/bookqa-go/internal/logging"
	"github.com/roboverse/bookqa-go/internal/provider"
	"github.com/roboverse/bookqa-go/internal/rag"
	"github.com/roboverse/bookqa-go/internal/server"
	"github.com/roboverse/bookqa-go/internal/tracing"
)

// NewServeCmd constructs the `bookqa serve` command, which starts the HTTP
// API for chat, streaming chat, history, health, and metrics.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bookqa HTTP API",
		Long: `Start the bookqa HTTP API on localhost.

The server exposes POST /chat and POST /chat/stream for retrieval-augmented
answers over the book corpus, GET /history/{session_id} for conversation
history, plus /health and /metrics.

Examples:
  bookqa serve
  bookqa serve --port 9000
  MODEL_PROVIDER=openai bookqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags win over env; env wins over YAML (applied in config.Load).
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SERVER_PORT", port)
			}

			log.Info("serve starting", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "gemini")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			vstore, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer vstore.Close()

			searcher, err := rag.NewService(emb, vstore)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			sessionStore, storeName, err := openSessionStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = sessionStore.Close() }()

			qa, err := agent.New(&agent.Config{
				ChatModel:  chatModel,
				Searcher:   searcher,
				Thresholds: confidenceThresholds(),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			var verifier server.TokenVerifier
			if jwksURL := os.Getenv("AUTH_JWKS_URL"); jwksURL != "" {
				v, err := auth.NewVerifier(jwksURL)
				if err != nil {
					return fmt.Errorf("serve: failed to initialise token verifier: %w", err)
				}
				verifier = v
				log.Info("jwt auth enabled", slog.String("jwks_url", jwksURL))
			}

			srv, err := server.New(qa, sessionStore, &server.Config{
				Host:     host,
				Port:     port,
				Logger:   log,
				Verifier: verifier,
				Checks: []server.Pinger{
					server.NewQdrantPinger(vstore),
					server.NewStorePinger(sessionStore, storeName),
				},
				MaxConcurrentChats: getEnvInt("MAX_CONCURRENT_CHATS", 0),
				RateLimit:          getEnvFloat("RATE_LIMIT_RPS", 0),
				RateBurst:          getEnvInt("RATE_LIMIT_BURST", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on")

	return cmd
}
