package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-portal/internal/clients"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useTempDB(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "dev")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "portal.db"))
}

func TestClientsAddAndList(t *testing.T) {
	useTempDB(t)

	out, err := run(t, "clients", "add", "--name", "Jane Doe", "--case-id", "CASE-1", "--email", "jane@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "added client 1")

	out, err = run(t, "clients", "list", "--json")
	require.NoError(t, err)
	var roster []clients.Client
	require.NoError(t, json.Unmarshal([]byte(out), &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, "Jane Doe", roster[0].Name)
	assert.Equal(t, "CASE-1", roster[0].CaseID)
}

func TestFilesListEmptyRosterEntry(t *testing.T) {
	useTempDB(t)

	_, err := run(t, "clients", "add", "--name", "Jane Doe")
	require.NoError(t, err)

	out, err := run(t, "files", "list", "--client", "1", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestFilesListUnknownClient(t *testing.T) {
	useTempDB(t)

	_, err := run(t, "files", "list", "--client", "42")
	assert.ErrorIs(t, err, clients.ErrNotFound)
}

func TestFilesListRequiresClientFlag(t *testing.T) {
	useTempDB(t)

	_, err := run(t, "files", "list")
	assert.Error(t, err)
}

func TestAnalysesGetUnknown(t *testing.T) {
	useTempDB(t)

	_, err := run(t, "analyses", "get", "missing")
	assert.Error(t, err)
}
