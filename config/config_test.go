package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load looks at; t.Setenv restores them afterwards
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
			require.NoError(t, os.Unsetenv(env))
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("GITHUB_REPOSITORY", "vectordotdev/vector")

	cfg, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, "vectordotdev", cfg.RepoOwner)
	assert.Equal(t, "vector", cfg.RepoName)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, uint64(0), cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, "meta: awaiting author", cfg.StalePRLabel)
	assert.Equal(t, 180*24*time.Hour, cfg.StalePRAge)
	assert.Equal(t, 4*365*24*time.Hour, cfg.BranchMaxAge)
	assert.Equal(t, []string{"main", "master"}, cfg.KeepBranches)
	assert.Equal(t, DefaultStaleComment, cfg.StalePRComment)
	require.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateForGitHubOperations())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "plain-token")
	t.Setenv(EnvGithubToken, "argh-token")
	t.Setenv("REPO_OWNER", "octo")
	t.Setenv("REPO_NAME", "widgets")
	t.Setenv("ARGH_PAGE_SIZE", "500")
	t.Setenv("ARGH_MAX_RETRIES", "3")
	t.Setenv("ARGH_KEEP_BRANCHES", "main,develop")

	cfg, err := Load(LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "argh-token", cfg.GitHubToken)
	assert.Equal(t, "octo/widgets", cfg.Slug())
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	assert.Equal(t, []string{"main", "develop"}, cfg.KeepBranches)
	assert.NoError(t, cfg.ValidateForGitHubOperations())
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := "repository: octo/widgets\noutput_dir: reports\npage_size: 25\nstale_pr_age: 720h\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0644))

	cfg, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "octo", cfg.RepoOwner)
	assert.Equal(t, "reports", cfg.OutputDir)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, 30*24*time.Hour, cfg.StalePRAge)

	t.Run("Should fail on a missing explicit config file", func(t *testing.T) {
		_, err := Load(LoadOptions{Dir: dir, ConfigFile: filepath.Join(dir, "missing.yaml")})
		assert.Error(t, err)
	})
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REPO_OWNER=dotenv\nREPO_NAME=repo\n"), 0644))

	t.Run("Should not override variables that are already set", func(t *testing.T) {
		t.Setenv("REPO_OWNER", "shell")
		cfg, err := Load(LoadOptions{Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, "shell", cfg.RepoOwner)
		assert.Equal(t, "repo", cfg.RepoName)
	})

	t.Run("Should override with an explicit env file", func(t *testing.T) {
		t.Setenv("REPO_OWNER", "shell")
		explicit := filepath.Join(dir, "custom.env")
		require.NoError(t, os.WriteFile(explicit, []byte("REPO_OWNER=custom\nREPO_NAME=other\n"), 0644))

		cfg, err := Load(LoadOptions{Dir: dir, EnvFile: explicit})
		require.NoError(t, err)
		assert.Equal(t, "custom", cfg.RepoOwner)
		assert.Equal(t, "other", cfg.RepoName)
	})
}

func TestPopulateRepositoryDefaultsFallsBackToGitRemote(t *testing.T) {
	tmp := t.TempDir()
	repo, err := git.PlainInit(tmp, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(
		&gitconfig.RemoteConfig{Name: "origin", URLs: []string{"git@github.com:octo/widget.git"}},
	)
	require.NoError(t, err)

	cfg := Config{}
	require.NoError(t, populateRepositoryDefaults(&cfg, tmp))
	assert.Equal(t, "octo", cfg.RepoOwner)
	assert.Equal(t, "widget", cfg.RepoName)

	t.Run("Should leave identity empty outside a clone", func(t *testing.T) {
		cfg := Config{}
		require.NoError(t, populateRepositoryDefaults(&cfg, t.TempDir()))
		assert.Empty(t, cfg.RepoOwner)
		assert.Error(t, cfg.Validate())
	})

	t.Run("Should reject a bad repository slug", func(t *testing.T) {
		cfg := Config{Repository: "nope"}
		assert.Error(t, populateRepositoryDefaults(&cfg, tmp))
	})
}

func TestParseGitRemoteURL(t *testing.T) {
	cases := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
	}{
		{name: "https clone", url: "https://github.com/org/project.git", wantOwner: "org", wantRepo: "project"},
		{name: "ssh", url: "git@github.com:org/project.git", wantOwner: "org", wantRepo: "project"},
		{name: "ssh url", url: "ssh://git@github.com/org/project.git", wantOwner: "org", wantRepo: "project"},
		{name: "ssh without suffix", url: "git@github.com:org/project", wantOwner: "org", wantRepo: "project"},
		{name: "file path", url: filepath.Join("tmp", "org", "project"), wantOwner: "org", wantRepo: "project"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			owner, repo, err := parseGitRemoteURL(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.wantOwner, owner)
			assert.Equal(t, tc.wantRepo, repo)
		})
	}

	_, _, err := parseGitRemoteURL("https://github.com/")
	assert.Error(t, err)
}

func TestValidateGitHubOwnerRepo(t *testing.T) {
	assert.NoError(t, ValidateGitHubOwnerRepo("vectordotdev", "vector"))
	assert.Error(t, ValidateGitHubOwnerRepo("", "vector"))
	assert.Error(t, ValidateGitHubOwnerRepo("octo", ""))
	assert.Error(t, ValidateGitHubOwnerRepo("-octo", "vector"))
	assert.Error(t, ValidateGitHubOwnerRepo("octo", "bad name"))
}

func TestCreateDefaultConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)

	require.NoError(t, CreateDefaultConfig(path))
	assert.ErrorIs(t, CreateDefaultConfig(path), ErrConfigExists)

	t.Setenv("REPO_OWNER", "octo")
	t.Setenv("REPO_NAME", "widgets")
	cfg, err := Load(LoadOptions{ConfigFile: path, Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "meta: awaiting author", cfg.StalePRLabel)
	assert.Equal(t, 180*24*time.Hour, cfg.StalePRAge)
	assert.Equal(t, []string{"main", "master"}, cfg.KeepBranches)
}
