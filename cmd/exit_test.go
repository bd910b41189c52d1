package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesm/argh/internal/models"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"general", errors.New("boom"), ExitFailure},
		{"transport only", &models.TransportError{Err: errors.New("timeout")}, ExitFailure},
		{"no data", fmt.Errorf("load: %w", models.ErrNoData), ExitNoData},
		{"malformed", fmt.Errorf("load: %w", models.ErrMalformedInput), ExitMalformedInput},
		{"schema", fmt.Errorf("%w: issues row 1", models.ErrSchemaViolation), ExitStoreFailure},
		{"store", models.ErrStore, ExitStoreFailure},
		{"query", models.ErrQuery, ExitStoreFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_LoadAndSummary(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "issues.json")
	require.NoError(t, os.WriteFile(input, []byte(`[
		{"id":1,"number":1,"title":"a","state":"open","created_at":"2024-01-05T00:00:00Z",
		 "labels":[{"id":10,"name":"bug","color":"f00"}]},
		{"id":2,"number":2,"title":"b","state":"closed","created_at":"2024-01-20T00:00:00Z",
		 "pull_request":{},"draft":false,"labels":[{"id":10,"name":"bug","color":"f00"}]}
	]`), 0644))
	common := []string{"--repo", "octo/widgets", "--output-dir", dir, "--log-level", "error"}

	out, err := run(t, append([]string{"load", "--input", input}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 1 issues, 1 pull requests, 1 labels, 2 label links")
	assert.FileExists(t, filepath.Join(dir, "db", "octo_widgets.db"))

	t.Setenv("NO_COLOR", "1")
	out, err = run(t, append([]string{"summary", "--print"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 8 summary files")
	assert.Contains(t, out, "Top labels: issues")
	assert.FileExists(t, filepath.Join(dir, "summaries", "octo_widgets_issues.label_counts.csv"))
}

func TestCommands_LoadWithLabels(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "issues.json")
	require.NoError(t, os.WriteFile(input, []byte(`[
		{"id":1,"number":1,"state":"open","labels":[{"id":10,"name":"bug","color":"f00"}]}
	]`), 0644))
	labels := filepath.Join(dir, "labels.json")
	require.NoError(t, os.WriteFile(labels, []byte(`[
		{"id":10,"name":"bug","color":"f00"},
		{"id":11,"name":"help wanted","color":"008672"}
	]`), 0644))
	common := []string{"--repo", "octo/widgets", "--output-dir", dir, "--log-level", "error"}

	out, err := run(t, append([]string{"load", "--input", input, "--labels", labels}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 1 issues, 0 pull requests, 2 labels, 1 label links")

	require.NoError(t, os.WriteFile(labels, []byte(`[{"name":"bug"}]`), 0644))
	_, err = run(t, append([]string{"load", "--input", input, "--labels", labels}, common...)...)
	assert.Equal(t, ExitMalformedInput, ExitCode(err))
}

func TestCommands_ErrorKinds(t *testing.T) {
	dir := t.TempDir()
	common := []string{"--repo", "octo/widgets", "--output-dir", dir, "--log-level", "error"}

	t.Run("Should report a missing archive as no data", func(t *testing.T) {
		_, err := run(t, append([]string{"load"}, common...)...)
		assert.Equal(t, ExitNoData, ExitCode(err))
	})

	t.Run("Should report a malformed archive", func(t *testing.T) {
		input := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(input, []byte(`{"id":1}`), 0644))
		_, err := run(t, append([]string{"load", "--input", input}, common...)...)
		assert.Equal(t, ExitMalformedInput, ExitCode(err))
	})

	t.Run("Should report duplicate ids as a store failure", func(t *testing.T) {
		input := filepath.Join(dir, "dup.json")
		require.NoError(t, os.WriteFile(input, []byte(`[{"id":1},{"id":1}]`), 0644))
		_, err := run(t, append([]string{"load", "--input", input}, common...)...)
		assert.Equal(t, ExitStoreFailure, ExitCode(err))
	})

	t.Run("Should report a missing store as no data", func(t *testing.T) {
		_, err := run(t, append([]string{"summary", "--db", filepath.Join(dir, "none.db")}, common...)...)
		assert.Equal(t, ExitNoData, ExitCode(err))
	})

	t.Run("Should require a token for GitHub commands", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")
		t.Setenv("ARGH_GITHUB_TOKEN", "")
		_, err := run(t, append([]string{"fetch-issues"}, common...)...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "github_token is required")
	})
}

func TestCommands_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "argh.yaml")

	out, err := run(t, "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	out, err = run(t, "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}
