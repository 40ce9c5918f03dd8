// Package logger configures the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Init builds the logger described by cfg, installs it as the slog default
// and returns it with a function that releases the log file, if any.
func Init(cfg Config) (*slog.Logger, func() error, error) {
	if cfg.Env == "" {
		cfg.Env = ParseEnv(os.Getenv("APP_ENV"))
	}
	if cfg.Service == "" {
		cfg.Service = "app"
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)

	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	closeFn := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closeFn = f.Close
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg, out)
	case BackendStd:
		h = newStdHandler(cfg, out)
	default:
		_ = closeFn()
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}

	l := slog.New(h.WithAttrs(commonAttr(cfg)))
	slog.SetDefault(l)
	return l, closeFn, nil
}
