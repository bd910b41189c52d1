package main

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/wesm/argh/config"
	"github.com/wesm/argh/internal/api"
	"github.com/wesm/argh/internal/logging"
	"github.com/wesm/argh/internal/sync"
	"go.uber.org/zap"
)

// skipConfig marks commands that run without a loaded configuration
const skipConfig = "skip-config"

// app is the state shared by every command of one invocation
type app struct {
	out io.Writer
	fs  afero.Fs

	configFile string
	envFile    string
	logLevel   string
	logJSON    bool
	outputDir  string
	repository string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, fs: afero.NewOsFs(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "argh",
		Short: "Snapshot a GitHub repository's issues into SQLite and report on them",
		Long: `argh fetches a repository's issues, pull requests and discussions, archives the raw
listings, loads them into a fresh SQLite store and exports monthly and per-label
summaries as CSV. It also carries the housekeeping jobs for stale pull requests
and branches.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Path to configuration file (default ./"+config.DefaultConfigFile+" if present)")
	flags.StringVar(&a.envFile, "env-file", "", "Path to a .env file whose values override the environment")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&a.logJSON, "log-json", false, "Log as JSON instead of console text")
	flags.StringVar(&a.outputDir, "output-dir", "", "Directory for archives, the store and summaries")
	flags.StringVarP(&a.repository, "repo", "R", "", "Repository as owner/name (overrides configuration)")

	root.AddCommand(
		newInitCmd(a),
		newFetchIssuesCmd(a),
		newFetchLabelsCmd(a),
		newFetchDiscussionsCmd(a),
		newLoadCmd(a),
		newSummaryCmd(a),
		newSnapshotCmd(a),
		newCloseStalePRsCmd(a),
		newPruneBranchesCmd(a),
	)
	return root
}

// setup loads the configuration once and builds the logger every command shares
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: a.configFile, EnvFile: a.envFile})
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-json") {
		cfg.LogJSON = a.logJSON
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = a.outputDir
	}
	if a.repository != "" {
		owner, name, err := sync.ParseRepositoryString(a.repository)
		if err != nil {
			return err
		}
		cfg.RepoOwner, cfg.RepoName = owner, name
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.WithRunID(logger).With(zap.String("command", cmd.Name()))
	return nil
}

func (a *app) githubClient() (*api.GitHubClient, error) {
	if err := a.cfg.ValidateForGitHubOperations(); err != nil {
		return nil, err
	}
	return api.NewGitHubClient(a.cfg.GitHubToken,
		api.WithLogger(a.logger),
		api.WithFetchPageSize(a.cfg.PageSize),
		api.WithFetchRetries(a.cfg.MaxRetries, a.cfg.RetryDelay),
	), nil
}

func (a *app) graphQLClient() (*api.GraphQLClient, error) {
	if err := a.cfg.ValidateForGitHubOperations(); err != nil {
		return nil, err
	}
	client := api.NewGraphQLClient(a.cfg.GitHubToken, a.logger)
	client.SetRetries(a.cfg.MaxRetries, a.cfg.RetryDelay)
	return client, nil
}

// syncer builds the pipeline. Fetchers are only wired when the command talks to GitHub.
func (a *app) syncer(issues sync.IssueFetcher, discussions sync.DiscussionFetcher) *sync.Syncer {
	return sync.New(issues, discussions, a.fs, a.cfg.OutputDir, a.cfg.RepoOwner, a.cfg.RepoName, a.logger)
}
