package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/target/report-runner/config"
)

// LoggerOptions controls InitLogger.
type LoggerOptions struct {
	Level  string
	Format string
	// Verbose forces debug level and, on a terminal, the text handler.
	Verbose bool
	Out     io.Writer
}

// InitLogger initializes the structured logger and installs it as the default.
func InitLogger(opts LoggerOptions) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	level := parseLevel(opts.Level)
	format := opts.Format
	if opts.Verbose {
		level = slog.LevelDebug
		if isTerminal(out) {
			format = "text"
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}
