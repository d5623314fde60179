package logger

import (
	"log/slog"
	"os"

	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/golang-cz/devslog"
)

// Setup creates a new logger based on settings
func Setup(cfg *types.Settings) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.IncludeCaller,
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "dev":
		handler = devslog.NewHandler(os.Stdout, &devslog.Options{
			HandlerOptions: opts,
		})
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a settings level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
