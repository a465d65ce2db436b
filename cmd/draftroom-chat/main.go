// ABOUTME: Entry point for draftroom-chat, the terminal assistant client.
// ABOUTME: Wires config, storage, API client, realtime feed, and the chat loop.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/draftroom/draftroom-client/internal/api"
	"github.com/draftroom/draftroom-client/internal/assistant"
	"github.com/draftroom/draftroom-client/internal/config"
	"github.com/draftroom/draftroom-client/internal/identity"
	"github.com/draftroom/draftroom-client/internal/realtime"
	"github.com/draftroom/draftroom-client/internal/storage"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _            __ _
  __| |_ __ __ _ / _| |_ _ __ ___   ___  _ __ ___
 / _' | '__/ _' | |_| __| '__/ _ \ / _ \| '_ ' _ \
| (_| | | | (_| |  _| |_| | | (_) | (_) | | | | | |
 \__,_|_|  \__,_|_|  \__|_|  \___/ \___/|_| |_| |_|
`

// getConfigPath returns the path to the client config file.
// Priority: DRAFTROOM_CONFIG env var > XDG_CONFIG_HOME/draftroom/config.yaml > ~/.config/draftroom/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DRAFTROOM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "draftroom", "config.yaml")
}

// getPrefsPath returns the path to the per-user chat preferences file.
func getPrefsPath() string {
	if envPath := os.Getenv("DRAFTROOM_PREFS"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "draftroom", "chat.toml")
}

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+getConfigPath()+")")
	project := flag.String("project", "", "Project ID to open")
	channel := flag.String("channel", "", "Channel ID to open")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *project, *channel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath, project, channel string) error {
	if configPath == "" {
		configPath = getConfigPath()
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	viewer, err := identity.FromToken(cfg.Auth.Token)
	if err != nil {
		logger.Warn("could not read viewer identity from token, peer echo suppression disabled", "error", err)
		viewer = nil
	}

	var store storage.Store
	if cfg.Storage.Path != "" {
		store, err = storage.NewSQLite(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening snapshot store: %w", err)
		}
	} else {
		logger.Info("no storage path configured, history will not survive restarts")
		store = storage.NewMemory()
	}
	defer store.Close()

	client := api.New(cfg.Server.BaseURL, cfg.Auth.Token, logger)

	ctrl := assistant.NewController(client, store, viewer, logger)
	ctrl.Streaming = cfg.Assistant.Streaming
	if cfg.Assistant.MinRevealDelay > 0 {
		ctrl.MinRevealDelay = cfg.Assistant.MinRevealDelay
	}
	if cfg.Assistant.MaxRevealDelay > 0 {
		ctrl.MaxRevealDelay = cfg.Assistant.MaxRevealDelay
	}

	prefs, err := loadPrefs(getPrefsPath())
	if err != nil {
		logger.Warn("ignoring unreadable prefs file", "error", err)
		prefs = &Prefs{}
	}
	if project == "" {
		project = prefs.Session.Project
	}
	if channel == "" {
		channel = prefs.Session.Channel
	}

	if cfg.Server.FeedURL != "" {
		feed := realtime.NewFeed(cfg.Server.FeedURL, cfg.Auth.Token, realtime.NewDispatcher(logger), logger)
		ctrl.BindFeed(feed)
		go func() {
			err := feed.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, realtime.ErrFeedClosed) {
				logger.Warn("event feed stopped", "error", err)
			}
		}()
		defer feed.Close()
	}

	if cfg.Assistant.HistoryPollInterval > 0 {
		go pollHistory(ctx, ctrl, cfg.Assistant.HistoryPollInterval, logger)
	}

	app := &chatApp{
		cfg:       cfg,
		prefs:     prefs,
		logger:    logger,
		client:    client,
		ctrl:      ctrl,
		reasoning: prefs.Session.Reasoning,
	}

	green := color.New(color.FgGreen)
	green.Printf("Connected to %s\n", cfg.Server.BaseURL)
	if viewer != nil {
		gray.Printf("Signed in as %s\n", viewer.Name)
	}
	fmt.Println("Type a question and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if project != "" && channel != "" {
		app.useChannel(ctx, project, channel)
	} else {
		fmt.Println("No channel selected. Use: /use <project> <channel>")
	}

	return app.loop(ctx)
}

// pollHistory keeps the active channel reconciled with server history.
func pollHistory(ctx context.Context, ctrl *assistant.Controller, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, channelID := ctrl.ActiveChannel(); channelID == "" {
				continue
			}
			if err := ctrl.RefreshHistory(ctx); err != nil && ctx.Err() == nil {
				logger.Debug("history poll failed", "error", err)
			}
		}
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
