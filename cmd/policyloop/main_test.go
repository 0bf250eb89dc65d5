package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-policy/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

func writeConfig(t *testing.T, driver, storePath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policyloop.yaml")
	body := fmt.Sprintf("store:\n  driver: %s\n  path: %s\nlog:\n  level: error\n", driver, storePath)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_FileStoreJSON(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "policy.json")
	cfg := writeConfig(t, "file", storePath)

	out, err := execute(t, "run", "--config", cfg, "--json")
	require.NoError(t, err)

	var rep orchestrator.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 2, rep.Runs)
	assert.Len(t, rep.RoundAverages, 2)
	assert.InDelta(t, 0.2205, rep.Policy.Epsilon, 1e-9)

	_, err = os.Stat(storePath)
	assert.NoError(t, err)
}

func TestRun_ConsoleMarkers(t *testing.T) {
	cfg := writeConfig(t, "sqlite", filepath.Join(t.TempDir(), "policy.db"))

	out, err := execute(t, "run", "-c", cfg)
	require.NoError(t, err)
	for _, marker := range []string{"ROUND 1 avg=", "ROUND 2 avg=", "POLICY", "STRATEGY STATS", "OBJECTION POLICY", "SUMMARY", "ESCALATIONS"} {
		assert.Contains(t, out, marker)
	}
}

func TestRun_LeadsFile(t *testing.T) {
	dir := t.TempDir()
	leadsPath := filepath.Join(dir, "leads.yaml")
	require.NoError(t, os.WriteFile(leadsPath, []byte(`
- id: l1
  name: Dana
  channel: email
  message: "too expensive"
`), 0o644))
	cfg := writeConfig(t, "file", filepath.Join(dir, "policy.json"))

	out, err := execute(t, "run", "-c", cfg, "--leads", leadsPath, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"leadId": "l1"`)
	assert.Contains(t, out, `"objection": "price"`)
}

func TestRun_PersistenceFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg := writeConfig(t, "file", filepath.Join(blocker, "policy.json"))

	_, err := execute(t, "run", "-c", cfg)
	var pe *state.PersistenceError
	assert.True(t, errors.As(err, &pe), "got %v", err)
}

func TestReset_ThenInspect(t *testing.T) {
	cfg := writeConfig(t, "sqlite", filepath.Join(t.TempDir(), "policy.db"))

	out, err := execute(t, "reset", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "epsilon=0.4500")

	out, err = execute(t, "inspect", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "VERSIONS")
}

func TestReset_FileStoreReportsPath(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "nested", "policy.json")
	cfg := writeConfig(t, "file", storePath)

	out, err := execute(t, "reset", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "reset at "+storePath)
	_, err = os.Stat(storePath)
	assert.NoError(t, err)
}

func TestInspect_NoState(t *testing.T) {
	cfg := writeConfig(t, "file", filepath.Join(t.TempDir(), "policy.json"))

	out, err := execute(t, "inspect", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "no policy memory saved yet")
}

func TestInspect_RollbackNeedsSQLite(t *testing.T) {
	cfg := writeConfig(t, "file", filepath.Join(t.TempDir(), "policy.json"))

	_, err := execute(t, "inspect", "-c", cfg, "--rollback", "abc")
	assert.ErrorContains(t, err, "rollback requires")
}

func TestReset_Clear(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "policy.json")
	cfg := writeConfig(t, "file", storePath)

	_, err := execute(t, "run", "-c", cfg)
	require.NoError(t, err)

	out, err := execute(t, "reset", "-c", cfg, "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared at "+storePath)
	_, err = os.Stat(storePath)
	assert.True(t, os.IsNotExist(err))
}

func TestBadConfig(t *testing.T) {
	cfg := writeConfig(t, "postgres", "x")
	_, err := execute(t, "run", "-c", cfg)
	assert.Error(t, err)
}
