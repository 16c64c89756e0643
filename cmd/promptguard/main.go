package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bluesky-social/promptguard/gate"
	"github.com/bluesky-social/promptguard/gate/ledger"
	"github.com/bluesky-social/promptguard/gate/settings"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "promptguard",
		Usage:   "inline message gate: rate limits and content blocks for chat users",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "settings-file",
			Usage:   "path to YAML or JSON gate settings; defaults are used when not set",
			EnvVars: []string{"PROMPTGUARD_SETTINGS_FILE"},
		},
		&cli.StringFlag{
			Name:    "ledger-url",
			Usage:   "user ledger location: file://, pebble://, redis://, sqlite:// or postgres:// URL",
			Value:   "file://data/promptguard/ledger.json",
			EnvVars: []string{"PROMPTGUARD_LEDGER_URL"},
		},
		&cli.IntFlag{
			Name:    "ledger-cache-size",
			Usage:   "number of user records cached in process (0 disables the cache)",
			Value:   10_000,
			EnvVars: []string{"PROMPTGUARD_LEDGER_CACHE_SIZE"},
		},
		&cli.IntFlag{
			Name:    "max-ledger-db-connections",
			EnvVars: []string{"PROMPTGUARD_MAX_LEDGER_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"PROMPTGUARD_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		serveCmd,
		evaluateCmd,
		inspectCmd,
		checkSettingsCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func loadSettings(cctx *cli.Context) (*settings.Settings, error) {
	p := cctx.String("settings-file")
	if p == "" {
		return settings.Default(), nil
	}
	return settings.LoadFile(p)
}

func openLedger(cctx *cli.Context, logger *slog.Logger) (ledger.Store, error) {
	store, err := ledger.Open(cctx.Context, cctx.String("ledger-url"), cctx.Int("max-ledger-db-connections"))
	if err != nil {
		return nil, fmt.Errorf("opening user ledger: %w", err)
	}
	if size := cctx.Int("ledger-cache-size"); size > 0 {
		cached, err := ledger.NewCachedStore(store, size)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Debug("ledger cache enabled", "size", size)
		return cached, nil
	}
	return store, nil
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the gate HTTP API daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":4100",
			EnvVars: []string{"PROMPTGUARD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":4101",
			EnvVars: []string{"PROMPTGUARD_METRICS_LISTEN"},
		},
		&cli.Float64Flag{
			Name:    "api-rate-limit",
			Usage:   "max API requests per second per client IP (0 disables)",
			Value:   0,
			EnvVars: []string{"PROMPTGUARD_API_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)
		shutdownOTEL := configOTEL(cctx.Context, "promptguard")
		defer shutdownOTEL()

		var source SettingsSource
		if p := cctx.String("settings-file"); p != "" {
			w, err := settings.NewWatcher(p, logger)
			if err != nil {
				return err
			}
			source = w
		} else {
			logger.Info("no settings file configured, using defaults")
			source = staticSettings{s: settings.Default()}
		}

		store, err := openLedger(cctx, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		srv := NewServer(Config{
			Logger:       logger,
			Gate:         gate.NewGate(store, logger),
			Settings:     source,
			Bind:         cctx.String("bind"),
			APIRateLimit: cctx.Float64("api-rate-limit"),
		})
		return srv.Run(cctx.Context, cctx.String("metrics-listen"))
	},
}

var evaluateCmd = &cli.Command{
	Name:      "evaluate",
	Usage:     "evaluate a single message against the gate, recording the result",
	ArgsUsage: "<user-id> <text>",
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stderr)
		if cctx.Args().Len() != 2 {
			return fmt.Errorf("expected exactly two arguments: user ID and message text")
		}
		s, err := loadSettings(cctx)
		if err != nil {
			return err
		}
		store, err := openLedger(cctx, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		g := gate.NewGate(store, logger)
		v, err := g.Evaluate(cctx.Context, cctx.Args().Get(0), cctx.Args().Get(1), time.Now(), s)
		if err != nil {
			return err
		}
		return printJSON(v)
	},
}

var inspectCmd = &cli.Command{
	Name:      "inspect",
	Usage:     "print the stored state of a user",
	ArgsUsage: "<user-id>",
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stderr)
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected exactly one argument: user ID")
		}
		store, err := openLedger(cctx, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := gate.NewGate(store, logger).Inspect(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var checkSettingsCmd = &cli.Command{
	Name:  "check-settings",
	Usage: "load and validate the settings file, printing the effective settings",
	Action: func(cctx *cli.Context) error {
		configLogger(cctx, os.Stderr)
		s, err := loadSettings(cctx)
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// SettingsSource supplies the settings snapshot for each decision.
type SettingsSource interface {
	Current() *settings.Settings
}

type staticSettings struct {
	s *settings.Settings
}

func (s staticSettings) Current() *settings.Settings {
	return s.s
}
