package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupCLITest(t *testing.T) {
	t.Helper()
	t.Setenv("BELIEF_ENV", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "beliefs.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestCLI_LearnAndCompare(t *testing.T) {
	setupCLITest(t)

	_, err := runCommand(t, "learn", "baseball", "diameter", "7.5 cm")
	require.NoError(t, err)
	_, err = runCommand(t, "learn", "basketball", "diameter", "24", "--unit", "cm", "--session", "01")
	require.NoError(t, err)

	out, err := runCommand(t, "compare", "basketball", "baseball", "diameter")
	require.NoError(t, err)
	var cmp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cmp))
	assert.Equal(t, "a_greater", cmp["outcome"])
	assert.InDelta(t, 3.2, cmp["ratio"], 1e-9)

	out, err = runCommand(t, "ask", "basketball")
	require.NoError(t, err)
	assert.Contains(t, out, `"source": "user_01"`)
}

func TestCLI_Members(t *testing.T) {
	setupCLITest(t)

	_, err := runCommand(t, "learn", "ball", "instance_of", "toy")
	require.NoError(t, err)
	_, err = runCommand(t, "learn", "baseball", "instance_of", "ball")
	require.NoError(t, err)

	out, err := runCommand(t, "members", "toy")
	require.NoError(t, err)
	var members []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &members))
	assert.Len(t, members, 2)
	assert.Contains(t, out, `"subject": "baseball"`)
}

func TestCLI_RejectsContradiction(t *testing.T) {
	setupCLITest(t)

	_, err := runCommand(t, "learn", "ball", "shape", "square")
	assert.Error(t, err)

	out, err := runCommand(t, "audit", "ball")
	require.NoError(t, err)
	assert.Contains(t, out, "contradicts_constant")
}

func TestCLI_SeedIsIdempotent(t *testing.T) {
	setupCLITest(t)

	out, err := runCommand(t, "seed")
	require.NoError(t, err)
	var first map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Positive(t, first["added"])

	out, err = runCommand(t, "seed")
	require.NoError(t, err)
	var second map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Zero(t, second["added"])
	assert.Equal(t, first["added"], second["existing"])
}

func TestCLI_UnknownDriver(t *testing.T) {
	setupCLITest(t)

	_, err := runCommand(t, "ask", "ball", "--store", "cassandra")
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestCLI_Version(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "go_version")
}

func TestCLI_VersionShort(t *testing.T) {
	out, err := runCommand(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev (unknown)\n", out)
}
