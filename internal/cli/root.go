// Package cli implements the polymath CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/broadcast"
	"github.com/rcliao/polymath/internal/config"
	"github.com/rcliao/polymath/internal/connectivity"
	"github.com/rcliao/polymath/internal/logging"
	"github.com/rcliao/polymath/internal/remote"
	"github.com/rcliao/polymath/internal/store"
)

var (
	configPath string
	dbPath     string
	formatFlag string
	offline    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:          "polymath",
	Short:        "Offline-first cache for your knowledge base",
	Long:         "Mirrors projects, memories, lists, connections and the reading list into a local SQLite cache, with full offline article content.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/polymath/config.toml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (overrides config and $POLYMATH_DB)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "", "Output format: json or text (default: text on a terminal, json otherwise)")
	RootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Do not contact the remote API")
}

// app holds the dependencies shared by commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.SQLiteStore
	api    *remote.Client
	online *connectivity.Flag
	bus    *broadcast.Bus

	logCloser io.Closer
}

func loadConfig() *config.Config {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.Paths.DB = dbPath
	}
	return cfg
}

// newApp loads config, opens the store and probes connectivity once.
func newApp(ctx context.Context) *app {
	cfg := loadConfig()
	logger, closer, err := logging.NewFromConfig(cfg)
	if err != nil {
		exitErr("init logging", err)
	}

	s, err := store.NewSQLiteStore(cfg.Paths.DB)
	if err != nil {
		exitErr("open store", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		online:    connectivity.NewFlag(false),
		bus:       broadcast.NewBus(),
		logCloser: closer,
	}
	if cfg.API.BaseURL != "" {
		a.api = remote.NewClient(remote.Options{
			BaseURL: cfg.API.BaseURL,
			Token:   cfg.API.Token,
			Timeout: cfg.APITimeout(),
		})
		if !offline {
			a.prober().Check(ctx)
		}
	}
	return a
}

func (a *app) prober() *connectivity.Prober {
	return &connectivity.Prober{
		URL:    a.cfg.API.BaseURL,
		Flag:   a.online,
		Logger: a.logger,
	}
}

func (a *app) close() {
	a.bus.Close()
	a.store.Close()
	a.logCloser.Close()
}

// requireAPI exits when no remote API is configured.
func (a *app) requireAPI() {
	if a.api == nil {
		exitErr("remote api", fmt.Errorf("api.base_url is not configured (set POLYMATH_API_URL)"))
	}
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(loadConfig().Paths.DB)
}

func outputFormat() string {
	switch strings.ToLower(formatFlag) {
	case "json":
		return "json"
	case "text":
		return "text"
	}
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "text"
	}
	return "json"
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t).Round(time.Second)
	if d < time.Minute {
		return "just now"
	}
	return d.String() + " ago"
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
