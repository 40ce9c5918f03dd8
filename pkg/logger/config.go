package logger

import (
	"io"
	"log/slog"
)

type Backend string

const (
	BackendStd Backend = "std" // text in dev, JSON elsewhere
	BackendZap Backend = "zap"
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // default: std in dev, zap otherwise

	// Output defaults to os.Stdout. File, when set, receives a copy.
	Output io.Writer
	File   string

	// Zap sampling per second.
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}
