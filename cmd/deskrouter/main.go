// ABOUTME: Entry point for the deskrouter assignment service
// ABOUTME: Routes inbound conversations to agents and broadcasts ownership changes

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/deskhive/deskrouter/internal/api"
	"github.com/deskhive/deskrouter/internal/assignment"
	"github.com/deskhive/deskrouter/internal/config"
	"github.com/deskhive/deskrouter/internal/directory"
	"github.com/deskhive/deskrouter/internal/notify"
	"github.com/deskhive/deskrouter/internal/queue"
	"github.com/deskhive/deskrouter/internal/selector"
	"github.com/deskhive/deskrouter/internal/store"
)

// version is overridden at build time via -ldflags.
var version = "dev"

const banner = `
     _           _                    _
  __| | ___  ___| | ___ __ ___  _   _| |_ ___ _ __
 / _' |/ _ \/ __| |/ / '__/ _ \| | | | __/ _ \ '__|
| (_| |  __/\__ \   <| | | (_) | |_| | ||  __/ |
 \__,_|\___||___/_|\_\_|  \___/ \__,_|\__\___|_|
`

// getConfigPath returns the path to the deskrouter config file.
// Priority: DESKROUTER_CONFIG env var > XDG_CONFIG_HOME/deskrouter/deskrouter.yaml > ~/.config/deskrouter/deskrouter.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DESKROUTER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "deskrouter.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "deskrouter", "deskrouter.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: deskrouter <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the assignment service")
		fmt.Println("  init     Create a new config file")
		fmt.Println("  health   Check service health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger configures the default slog logger from config.
func setupLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	color.Cyan(banner)
	color.White("deskrouter %s", version)
	fmt.Println()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	setupLogger(cfg)
	logger := slog.Default()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	broadcaster := notify.NewBroadcaster(logger)
	defer broadcaster.Close()

	notifier := notify.Fanout{broadcaster}
	if cfg.AMQP.Enabled {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return fmt.Errorf("connecting to AMQP broker: %w", err)
		}
		defer amqpNotifier.Close()
		notifier = append(notifier, amqpNotifier)
		logger.Info("AMQP notifier enabled", "exchange", cfg.AMQP.Exchange)
	}

	dir := directory.New(st, logger)
	engine := assignment.New(st, dir, notifier, logger)
	view := queue.New(st, logger)

	defaultMode := selector.ModeManual
	if cfg.Routing.DefaultMode != "" {
		defaultMode, _ = selector.ParseMode(cfg.Routing.DefaultMode)
	}

	server := api.NewServer(api.Options{
		Engine:         engine,
		Queue:          view,
		Directory:      dir,
		Broadcaster:    broadcaster,
		JWTSecret:      cfg.Auth.JWTSecret,
		DefaultMode:    defaultMode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

const sampleConfig = `server:
  http_addr: ":8080"
  shutdown_timeout: "10s"
  # allowed_origins:
  #   - "https://app.example.com"

database:
  path: "data/deskrouter.db"

auth:
  jwt_secret: "${DESKROUTER_JWT_SECRET}"

routing:
  # manual, round_robin, load_balanced or team_based
  default_mode: "load_balanced"

amqp:
  enabled: false
  url: "${DESKROUTER_AMQP_URL}"
  exchange: "deskrouter.events"

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.Green("Created config file at %s", configPath)
	fmt.Println("Edit it, export DESKROUTER_JWT_SECRET, then run: deskrouter serve")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+addr+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	color.Green("OK")
	return nil
}
