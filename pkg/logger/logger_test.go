package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	l, closeFn, err := Init(Config{
		Service: "relay",
		Version: "1.2.3",
		Env:     EnvProd,
		Backend: BackendZap,
		Level:   slog.LevelInfo,
		Output:  &buf,
	})
	req.NoError(err)
	defer closeFn()

	l.Info("booted", slog.String("k", "v"))

	var m map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &m), buf.String())
	req.Equal("booted", m["msg"])
	req.Equal("INFO", m["level"])
	req.Equal("relay", m["service"])
	req.Equal("prod", m["env"])
	req.Equal("1.2.3", m["version"])
	req.Equal("v", m["k"])
	req.NotEmpty(m["instance_id"])
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	l, _, err := Init(Config{Service: "relay", Env: EnvDev, Level: slog.LevelDebug, Output: &buf})
	req.NoError(err)

	l.Debug("hello world")

	out := buf.String()
	req.False(strings.HasPrefix(out, "{"), out)
	req.Contains(out, "hello world")
	req.Contains(out, "service=relay")
	req.Contains(out, "env=dev")
}

func TestInit_LevelFilters(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	l, _, err := Init(Config{Env: EnvStage, Backend: BackendStd, Level: slog.LevelWarn, Output: &buf})
	req.NoError(err)

	l.Info("hidden")
	l.Warn("shown")

	req.NotContains(buf.String(), "hidden")
	req.Contains(buf.String(), `"msg":"shown"`)
}

func TestInit_File(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "relay.log")
	var buf bytes.Buffer

	l, closeFn, err := Init(Config{Env: EnvDev, Output: &buf, File: path})
	req.NoError(err)
	l.Info("to both")
	req.NoError(closeFn())

	data, err := os.ReadFile(path)
	req.NoError(err)
	req.Contains(string(data), "to both")
	req.Contains(buf.String(), "to both")
}

func TestInit_UnknownBackend(t *testing.T) {
	_, _, err := Init(Config{Backend: "syslog", Output: &bytes.Buffer{}})
	require.Error(t, err)
}

func TestParseEnv(t *testing.T) {
	tests := map[string]Env{
		"":           EnvDev,
		"dev":        EnvDev,
		"staging":    EnvStage,
		"Production": EnvProd,
		" prod ":     EnvProd,
	}
	for raw, want := range tests {
		require.Equal(t, want, ParseEnv(raw), raw)
	}
}

func TestParseLevel(t *testing.T) {
	req := require.New(t)

	lvl, err := ParseLevel("")
	req.NoError(err)
	req.Equal(slog.LevelInfo, lvl)

	lvl, err = ParseLevel("debug")
	req.NoError(err)
	req.Equal(slog.LevelDebug, lvl)

	lvl, err = ParseLevel("WARN")
	req.NoError(err)
	req.Equal(slog.LevelWarn, lvl)

	_, err = ParseLevel("loud")
	req.Error(err)
}
