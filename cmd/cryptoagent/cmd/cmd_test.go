package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoagent/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cryptoagent version")
}

func TestConfigInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")

	out, err := execute(t, "config", "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = execute(t, "config", "validate", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "XETHZUSD -> ETH")
}

func TestConfigValidate_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.UpdateInterval = 0
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	_, err := execute(t, "config", "validate", "--file", path)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBuild_DebugMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := build(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer rt.close()

	assert.NotNil(t, rt.deps.Market)
	assert.NotNil(t, rt.deps.Broker)
	assert.Nil(t, rt.deps.Advisor, "no advisory strategy selected")
	assert.Len(t, rt.deps.Publishers, 1)
}

func TestBuild_DebugSQLiteWithAdvisory(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "data", "agent.db")
	cfg.Strategies.Buy = "advisory"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := build(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer rt.close()

	assert.NotNil(t, rt.deps.Journal)
	assert.NotNil(t, rt.deps.Advisor)
}
