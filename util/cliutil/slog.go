package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LogOptions struct {
	// info|debug|warn|error
	LogLevel string

	// text|json
	LogFormat string

	// defaults to stdout
	Writer io.Writer
}

func firstenv(env_var_names ...string) string {
	for _, env_var_name := range env_var_names {
		val := os.Getenv(env_var_name)
		if val != "" {
			return val
		}
	}
	return ""
}

// SetupSlog integrates passed in options and env vars, and installs the result as the default logger.
//
// passing default cliutil.LogOptions{} is ok.
//
// SCANCACHE_LOG_LEVEL (or LOG_LEVEL) = info|debug|warn|error
//
// SCANCACHE_LOG_FMT (or LOG_FMT) = text|json
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	var hopts slog.HandlerOptions
	if options.LogLevel == "" {
		options.LogLevel = firstenv("SCANCACHE_LOG_LEVEL", "LOG_LEVEL")
	}
	switch strings.ToLower(options.LogLevel) {
	case "", "info":
		hopts.Level = slog.LevelInfo
	case "debug":
		hopts.Level = slog.LevelDebug
	case "warn":
		hopts.Level = slog.LevelWarn
	case "error":
		hopts.Level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %#v", options.LogLevel)
	}

	if options.LogFormat == "" {
		options.LogFormat = firstenv("SCANCACHE_LOG_FMT", "LOG_FMT")
	}
	out := options.Writer
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	switch strings.ToLower(options.LogFormat) {
	case "", "json":
		handler = slog.NewJSONHandler(out, &hopts)
	case "text":
		handler = slog.NewTextHandler(out, &hopts)
	default:
		return nil, fmt.Errorf("invalid log format: %#v", options.LogFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
