// Command chatwarden is the main entrypoint for the chat moderation bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres, runs idempotent migrations, and warms the
//     in-memory moderation cache from the repository.
//   - Connects to Twitch chat and moderates every cached channel.
//   - Consumes administrative commands from the control-plane stream.
//   - Exposes an HTTP server with health, status, metrics, OAuth, and
//     admin endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/joho/godotenv"

	"github.com/onnwee/chatwarden/chat"
	"github.com/onnwee/chatwarden/config"
	"github.com/onnwee/chatwarden/controlplane"
	"github.com/onnwee/chatwarden/db"
	"github.com/onnwee/chatwarden/moderation"
	"github.com/onnwee/chatwarden/oauth"
	"github.com/onnwee/chatwarden/server"
	"github.com/onnwee/chatwarden/telemetry"
	"github.com/onnwee/chatwarden/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("chat credentials missing", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chatwarden", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations: versioned migrations (golang-migrate) first,
	// embedded idempotent SQL as fallback for deployments without the
	// schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the moderation cache from the repository before touching chat.
	store := db.NewStore(database)
	state := moderation.NewState()
	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	if err := state.LoadFromStore(loadCtx, store); err != nil {
		cancelLoad()
		slog.Error("failed to load moderation state", slog.Any("err", err))
		os.Exit(1)
	}
	cancelLoad()

	// Twitch clients: IRC for chat, Helix for moderation actions.
	ircClient := twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
	helix := &twitchapi.HelixClient{
		ClientID:        cfg.TwitchClientID,
		AppTokenSource:  &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
		UserTokenSource: &twitchapi.StoredTokenSource{DB: database, Provider: "twitch", Fallback: cfg.TwitchOAuthToken},
	}
	transport := chat.NewTransport(ircClient, helix, cfg.TwitchBotUsername)

	processor := moderation.NewProcessor(state, store, transport, moderation.ProcessorConfig{
		BanReason:      cfg.BanReason,
		TimeoutSeconds: cfg.TimeoutSeconds,
	})

	bot := chat.NewBot(ircClient, processor, cfg.TwitchBotUsername)
	go func() {
		if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("chat connection failed", slog.Any("err", err))
			stop()
		}
	}()

	// Control-plane consumer and publisher (optional; requires NATS_URL).
	var publisher *controlplane.Publisher
	if cfg.NATSURL != "" {
		natsCfg := controlplane.NATSConfig{URL: cfg.NATSURL, DurableName: "chatwarden", QueueGroup: "chatwarden"}
		sub, err := controlplane.NewNATSSubscriber(natsCfg, nil)
		if err != nil {
			slog.Error("failed to create control-plane subscriber", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := sub.Close(); err != nil {
				slog.Warn("control-plane subscriber close failed", slog.Any("err", err))
			}
		}()
		pub, err := controlplane.NewNATSPublisher(natsCfg, nil)
		if err != nil {
			slog.Error("failed to create control-plane publisher", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := pub.Close(); err != nil {
				slog.Warn("control-plane publisher close failed", slog.Any("err", err))
			}
		}()
		publisher = controlplane.NewPublisher(pub, cfg.ControlTopic)

		consumer := controlplane.NewConsumer(sub, cfg.ControlTopic, processor)
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("control-plane consumer exited", slog.Any("err", err))
			}
		}()
	} else {
		slog.Warn("NATS_URL not set, control-plane consumer disabled")
	}

	// OAuth token refresher keeps the moderation user token fresh.
	oauth.StartRefresher(ctx, database, "twitch", 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		res, err := twitchapi.RefreshToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return res.AccessToken, res.RefreshToken, twitchapi.ComputeExpiry(res.ExpiresIn), strings.Join(res.Scope, " "), nil
	})

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/admin)
	var cmdPublisher server.CommandPublisher
	if publisher != nil {
		cmdPublisher = publisher
	}
	handlers := server.NewHandlers(database, store, processor, state, bot.Connected, cmdPublisher)
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
