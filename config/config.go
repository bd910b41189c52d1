package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wesm/argh/internal/api"
	"github.com/wesm/argh/internal/sync"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "ARGH_GITHUB_TOKEN"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "ARGH"

	// DefaultConfigName is looked up in the working directory when no --config is given
	DefaultConfigName = "argh"

	// DefaultConfigFile is what `argh init` writes
	DefaultConfigFile = DefaultConfigName + ".yaml"

	// DefaultStaleComment is posted on a pull request before it is closed for inactivity
	DefaultStaleComment = "Thank you for your contribution! To keep the repository tidy and focused, " +
		"we are closing this PR due to inactivity. We greatly appreciate the time and effort you've put into it. " +
		"If you'd like to continue working on it, please re-open the PR and we would be delighted to review it again. " +
		"Before re-opening, please merge the default branch to resolve any conflicts."
)

// ErrConfigExists is returned by CreateDefaultConfig when the file is already there
var ErrConfigExists = errors.New("config file already exists")

// Config represents the application configuration
type Config struct {
	// GitHub API token for authentication (optional, can be set via ARGH_GITHUB_TOKEN or GITHUB_TOKEN)
	GitHubToken string `mapstructure:"github_token"`

	RepoOwner string `mapstructure:"repo_owner"`
	RepoName  string `mapstructure:"repo_name"`
	// Repository is "owner/name"; RepoOwner and RepoName take precedence
	Repository string `mapstructure:"repository"`

	// OutputDir holds historical/, db/ and summaries/
	OutputDir string `mapstructure:"output_dir"`

	PageSize   int           `mapstructure:"page_size"`
	MaxRetries uint64        `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	StalePRLabel   string        `mapstructure:"stale_pr_label"`
	StalePRAge     time.Duration `mapstructure:"stale_pr_age"`
	StalePRComment string        `mapstructure:"stale_pr_comment"`

	BranchMaxAge time.Duration `mapstructure:"branch_max_age"`
	KeepBranches []string      `mapstructure:"keep_branches"`
}

// LoadOptions says where configuration comes from
type LoadOptions struct {
	// ConfigFile is an explicit config path; it must exist when set
	ConfigFile string
	// EnvFile is loaded with override semantics when set
	EnvFile string
	// Dir is searched for argh.yaml, .env and the git remote; defaults to "."
	Dir string
}

// envBindings maps each key to the environment variables that can set it, in priority order
var envBindings = map[string][]string{
	"github_token":     {EnvGithubToken, "GITHUB_TOKEN"},
	"repo_owner":       {"ARGH_REPO_OWNER", "REPO_OWNER"},
	"repo_name":        {"ARGH_REPO_NAME", "REPO_NAME"},
	"repository":       {"ARGH_REPOSITORY", "GITHUB_REPOSITORY"},
	"output_dir":       {"ARGH_OUTPUT_DIR"},
	"page_size":        {"ARGH_PAGE_SIZE"},
	"max_retries":      {"ARGH_MAX_RETRIES"},
	"retry_delay":      {"ARGH_RETRY_DELAY"},
	"log_level":        {"ARGH_LOG_LEVEL"},
	"log_json":         {"ARGH_LOG_JSON"},
	"stale_pr_label":   {"ARGH_STALE_PR_LABEL"},
	"stale_pr_age":     {"ARGH_STALE_PR_AGE"},
	"stale_pr_comment": {"ARGH_STALE_PR_COMMENT"},
	"branch_max_age":   {"ARGH_BRANCH_MAX_AGE"},
	"keep_branches":    {"ARGH_KEEP_BRANCHES"},
}

// defaults are written by `argh init`, so every key is listed
func defaults() map[string]any {
	return map[string]any{
		"github_token":     "",
		"repo_owner":       "",
		"repo_name":        "",
		"repository":       "",
		"output_dir":       "out",
		"page_size":        api.MaxPageSize,
		"max_retries":      0,
		"retry_delay":      "1s",
		"log_level":        "info",
		"log_json":         false,
		"stale_pr_label":   "meta: awaiting author",
		"stale_pr_age":     "4320h",
		"stale_pr_comment": DefaultStaleComment,
		"branch_max_age":   "35040h",
		"keep_branches":    []string{"main", "master"},
	}
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s env: %w", key, err)
		}
	}
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	return v, nil
}

// Load builds the configuration from the config file, .env and the
// environment, then fills the repository identity from the git remote if
// it is still unknown
func Load(opts LoadOptions) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	if err := loadEnvFile(opts.EnvFile, dir); err != nil {
		return nil, err
	}

	v, err := newViper()
	if err != nil {
		return nil, err
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := populateRepositoryDefaults(&cfg, dir); err != nil {
		return nil, err
	}
	cfg.PageSize = api.ClampPageSize(cfg.PageSize)

	return &cfg, nil
}

func loadEnvFile(envFile, dir string) error {
	if envFile != "" {
		if err := godotenv.Overload(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		return nil
	}

	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// populateRepositoryDefaults resolves owner and name from the repository
// slug, then from the origin remote of the git repository at dir
func populateRepositoryDefaults(cfg *Config, dir string) error {
	if cfg.RepoOwner != "" && cfg.RepoName != "" {
		return nil
	}

	if cfg.Repository != "" {
		owner, name, err := sync.ParseRepositoryString(cfg.Repository)
		if err != nil {
			return fmt.Errorf("invalid repository: %w", err)
		}
		fillRepository(cfg, owner, name)
		return nil
	}

	owner, name, err := repositoryFromGit(dir)
	if err != nil {
		// Not inside a clone, or no usable origin: leave it to Validate
		return nil
	}
	fillRepository(cfg, owner, name)
	return nil
}

func fillRepository(cfg *Config, owner, name string) {
	if cfg.RepoOwner == "" {
		cfg.RepoOwner = owner
	}
	if cfg.RepoName == "" {
		cfg.RepoName = name
	}
}

func repositoryFromGit(dir string) (string, string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", err
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", "", err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", "", fmt.Errorf("origin has no url")
	}
	return parseGitRemoteURL(urls[0])
}

// parseGitRemoteURL extracts owner and repository from https, ssh, scp-style
// and plain path remotes
func parseGitRemoteURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	path := raw

	switch {
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("invalid remote url %q: %w", raw, err)
		}
		path = u.Path
	case strings.Contains(raw, "@") && strings.Contains(raw, ":"):
		path = raw[strings.Index(raw, ":")+1:]
	}

	path = strings.TrimSuffix(strings.Trim(filepath.ToSlash(path), "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("cannot derive owner/repository from remote %q", raw)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// Slug returns "owner/name"
func (c *Config) Slug() string {
	return c.RepoOwner + "/" + c.RepoName
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := ValidateGitHubOwnerRepo(c.RepoOwner, c.RepoName); err != nil {
		return fmt.Errorf("invalid repository configuration: %w", err)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative")
	}
	return nil
}

// ValidateForGitHubOperations validates that GitHub token is present for operations that require it
func (c *Config) ValidateForGitHubOperations() error {
	if strings.TrimSpace(c.GitHubToken) == "" {
		return fmt.Errorf("github_token is required for GitHub operations (set %s or GITHUB_TOKEN)", EnvGithubToken)
	}
	return c.Validate()
}

var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-_.]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateGitHubOwnerRepo validates GitHub owner and repository names
func ValidateGitHubOwnerRepo(owner, repo string) error {
	if owner == "" {
		return fmt.Errorf("owner cannot be empty")
	}
	if repo == "" {
		return fmt.Errorf("repository cannot be empty")
	}
	if !validName.MatchString(owner) {
		return fmt.Errorf("invalid owner format: %s", owner)
	}
	if len(owner) > 39 {
		return fmt.Errorf("owner too long: maximum 39 characters")
	}
	if !validName.MatchString(repo) {
		return fmt.Errorf("invalid repository format: %s", repo)
	}
	if len(repo) > 100 {
		return fmt.Errorf("repository too long: maximum 100 characters")
	}
	return nil
}

// CreateDefaultConfig writes a config file holding every key with its
// default value. An existing file is never overwritten.
func CreateDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, value := range defaults() {
		v.Set(key, value)
	}
	if err := v.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
