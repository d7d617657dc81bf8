// Command leaguebot is the main entrypoint for the league operations bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Builds the league registry from the leagues file and the spreadsheet,
//     rating and chat collaborators.
//   - Starts background jobs: per-league roster/schedule refresh and, for
//     leagues with live tracking enabled, the game-stream watcher.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/castling-club/leaguebot/config"
	"github.com/castling-club/leaguebot/games"
	"github.com/castling-club/leaguebot/league"
	"github.com/castling-club/leaguebot/lichess"
	"github.com/castling-club/leaguebot/notify"
	"github.com/castling-club/leaguebot/server"
	"github.com/castling-club/leaguebot/sheets"
	"github.com/castling-club/leaguebot/telemetry"
	"github.com/castling-club/leaguebot/watch"
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
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	leagueCfgs, err := config.LoadLeagues(cfg.LeaguesFile)
	if err != nil {
		slog.Error("leagues config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if len(leagueCfgs) == 0 {
		slog.Error("no leagues configured", slog.String("file", cfg.LeaguesFile))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()
	shutdown, err := telemetry.InitTracing("leaguebot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Collaborators
	chess := &lichess.Client{BaseURL: cfg.LichessBaseURL}
	var notifier notify.Sayer = notify.LogNotifier{}
	if cfg.SlackToken != "" {
		notifier = notify.NewSlack(cfg.SlackToken)
	} else {
		slog.Info("no slack token configured; notifications are log-only")
	}

	// Leagues. Each league may use its own service account file.
	leagues := make([]*league.League, 0, len(leagueCfgs))
	for _, lc := range leagueCfgs {
		rows, err := sheets.New(ctx, lc.Spreadsheet.CredentialsFile)
		if err != nil {
			slog.Error("sheets client failed", slog.String("league", lc.Name), slog.Any("err", err))
			os.Exit(1)
		}
		leagues = append(leagues, league.New(lc, rows, chess))
	}
	registry := league.NewRegistry(leagues...)

	// Watchers must subscribe before the first refresh so the initial roster
	// counts as a change.
	rules := &games.Service{GamelinkBase: cfg.LichessBaseURL}
	watchers := watch.WatchAllLeagues(ctx, registry, chess, rules, rules, notifier)

	for _, lg := range registry.All() {
		go league.StartRefreshJob(ctx, lg, cfg.RefreshInterval)
	}

	// HTTP server (health/status/metrics)
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, registry, watchers); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
