package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestSeedAndAdminCommands(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "clinical.db")

	_, err := run(t, "seed", filepath.Join("..", "..", "seed", "cases.yaml"), "--db-dsn", dsn)
	require.NoError(t, err)
	_, err = run(t, "seed", filepath.Join("..", "..", "seed", "cases.yaml"), "--db-dsn", dsn)
	require.NoError(t, err, "re-import replaces cases")

	out, err := run(t, "useradd", "--username", "dr.grey", "--role", "instructor",
		"--password", "long enough", "--db-dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "created dr.grey (instructor)")

	_, err = run(t, "useradd", "--username", "dr.grey", "--password", "long enough", "--db-dsn", dsn)
	assert.Error(t, err)

	_, err = run(t, "reset-session", "--learner", "nobody", "--case", "CASE_001", "--db-dsn", dsn)
	assert.Error(t, err)

	_, err = run(t, "reset-session", "--db-dsn", dsn)
	assert.ErrorContains(t, err, "--learner and --case are required")
}
