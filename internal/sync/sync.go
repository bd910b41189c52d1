package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/spf13/afero"
	"github.com/wesm/argh/internal/api"
	"github.com/wesm/argh/internal/archive"
	"github.com/wesm/argh/internal/db"
	"github.com/wesm/argh/internal/models"
	"github.com/wesm/argh/internal/normalize"
	"github.com/wesm/argh/internal/report"
	"go.uber.org/zap"
)

// IssueFetcher lists the REST issues endpoint, which returns issues and pull
// requests together, and the repository's label definitions
type IssueFetcher interface {
	ListIssues(ctx context.Context, owner, name, state string) ([]*github.Issue, api.FetchStatus)
	ListLabels(ctx context.Context, owner, name string) ([]*github.Label, api.FetchStatus)
}

// DiscussionFetcher lists repository discussions
type DiscussionFetcher interface {
	ListDiscussions(ctx context.Context, owner, name string, limit int) ([]models.Discussion, api.FetchStatus)
}

// Syncer runs the snapshot pipeline for one repository: fetch, archive,
// normalize, build the store, export the summaries. Every step finishes
// before the next one starts.
type Syncer struct {
	issues      IssueFetcher
	discussions DiscussionFetcher
	archive     *archive.Store
	exporter    *report.Exporter
	owner       string
	name        string
	outputDir   string
	logger      *zap.Logger
	now         func() time.Time
}

// New creates a new syncer. fs holds the archives and CSV exports; the
// store itself always lives on the local disk.
func New(issues IssueFetcher, discussions DiscussionFetcher, fs afero.Fs, outputDir, owner, name string, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("repository", owner+"/"+name))
	return &Syncer{
		issues:      issues,
		discussions: discussions,
		archive:     archive.New(fs, outputDir),
		exporter:    report.NewExporter(fs, outputDir, owner, name, logger),
		owner:       owner,
		name:        name,
		outputDir:   outputDir,
		logger:      logger,
		now:         time.Now,
	}
}

// Archive returns the archive store the syncer writes to
func (s *Syncer) Archive() *archive.Store {
	return s.archive
}

// StorePath is the fixed location of the repository's store file
func (s *Syncer) StorePath() string {
	return filepath.Join(s.outputDir, "db", fmt.Sprintf("%s_%s.db", s.owner, s.name))
}

// FetchIssues lists every issue and pull request in the given state and
// archives the raw listing. A listing that halted early is still archived;
// a listing that halted before returning anything leaves the previous
// archive in place.
func (s *Syncer) FetchIssues(ctx context.Context, state string) (string, api.FetchStatus, error) {
	s.logger.Info("Fetching issues", zap.String("state", state))
	issues, status := s.issues.ListIssues(ctx, s.owner, s.name, state)
	if status.Truncated() {
		if len(issues) == 0 {
			return "", status, fmt.Errorf("%w: issue listing failed before the first page: %w", models.ErrNoData, status.Err)
		}
		s.logger.Warn("Issue listing stopped early, keeping partial results",
			zap.Int("fetched", len(issues)),
			zap.Error(status.Err))
	}

	path, err := s.archive.WriteIssues(s.owner, s.name, issues)
	if err != nil {
		return "", status, err
	}
	s.logger.Info("Archived issues", zap.String("path", path), zap.Int("count", len(issues)))
	return path, status, nil
}

// FetchLabels lists every label defined on the repository and archives the
// listing. Like FetchIssues, it only keeps the previous archive when the
// listing failed before returning anything.
func (s *Syncer) FetchLabels(ctx context.Context) (string, int, api.FetchStatus, error) {
	s.logger.Info("Fetching labels")
	labels, status := s.issues.ListLabels(ctx, s.owner, s.name)
	if status.Truncated() {
		if len(labels) == 0 {
			return "", 0, status, fmt.Errorf("%w: label listing failed before the first page: %w", models.ErrNoData, status.Err)
		}
		s.logger.Warn("Label listing stopped early, keeping partial results",
			zap.Int("fetched", len(labels)),
			zap.Error(status.Err))
	}

	path, err := s.archive.WriteLabels(s.owner, s.name, labels)
	if err != nil {
		return "", 0, status, err
	}
	s.logger.Info("Archived labels", zap.String("path", path), zap.Int("count", len(labels)))
	return path, len(labels), status, nil
}

// FetchDiscussions lists discussions and archives them under a timestamped name
func (s *Syncer) FetchDiscussions(ctx context.Context, limit int) (string, int, api.FetchStatus, error) {
	if s.discussions == nil {
		return "", 0, api.FetchStatus{}, fmt.Errorf("no discussion client configured")
	}

	s.logger.Info("Fetching discussions", zap.Int("page_size", limit))
	discussions, status := s.discussions.ListDiscussions(ctx, s.owner, s.name, limit)
	if status.Truncated() {
		s.logger.Warn("Discussion listing stopped early, keeping partial results",
			zap.Int("fetched", len(discussions)),
			zap.Error(status.Err))
	}

	path, err := s.archive.WriteDiscussions(s.owner, s.name, s.now(), discussions)
	if err != nil {
		return "", 0, status, err
	}
	s.logger.Info("Archived discussions", zap.String("path", path), zap.Int("count", len(discussions)))
	return path, len(discussions), status, nil
}

// LoadInputs names the archives one store is built from. Only Issues is required.
type LoadInputs struct {
	Issues      string
	Labels      string
	Discussions string
}

// BuildStore reads the archives, normalizes them and builds a fresh store at
// StorePath. Labels from the label listing are added after the records, so a
// label carried by a record keeps that definition.
func (s *Syncer) BuildStore(ctx context.Context, in LoadInputs) (models.LoadStats, error) {
	issues, err := s.archive.ReadIssues(in.Issues)
	if err != nil {
		return models.LoadStats{}, err
	}

	var labels []*github.Label
	if in.Labels != "" {
		if labels, err = s.archive.ReadLabels(in.Labels); err != nil {
			return models.LoadStats{}, err
		}
	}

	var discussions []models.Discussion
	if in.Discussions != "" {
		if discussions, err = s.archive.ReadDiscussions(in.Discussions); err != nil {
			return models.LoadStats{}, err
		}
	}

	n := normalize.New(s.logger)
	for _, issue := range issues {
		if err := n.Add(issue); err != nil {
			return models.LoadStats{}, err
		}
	}
	for _, label := range labels {
		if err := n.AddLabel(label); err != nil {
			return models.LoadStats{}, err
		}
	}
	for _, d := range discussions {
		n.AddDiscussion(d)
	}

	snap := n.Snapshot()
	s.logger.Info("Normalized records",
		zap.Int("issues", len(snap.Issues)),
		zap.Int("pull_requests", len(snap.PullRequests)),
		zap.Int("labels", len(snap.Labels)))

	return db.Build(ctx, s.StorePath(), snap, s.logger)
}

// Summarize exports every aggregate view of the store at path
func (s *Syncer) Summarize(ctx context.Context, path string) ([]string, error) {
	store, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return s.exporter.ExportAll(ctx, store)
}

// SnapshotOptions selects what a snapshot run fetches
type SnapshotOptions struct {
	State           string
	Labels          bool
	Discussions     bool
	DiscussionLimit int
}

// SnapshotResult summarizes one snapshot run
type SnapshotResult struct {
	IssuesPath      string
	LabelsPath      string
	DiscussionsPath string
	StorePath       string
	Stats           models.LoadStats
	Summaries       []string
	Truncated       bool
}

// Snapshot runs the whole pipeline once
func (s *Syncer) Snapshot(ctx context.Context, opts SnapshotOptions) (*SnapshotResult, error) {
	start := s.now()
	result := &SnapshotResult{StorePath: s.StorePath()}

	issuesPath, status, err := s.FetchIssues(ctx, opts.State)
	if err != nil {
		return result, err
	}
	result.IssuesPath = issuesPath
	result.Truncated = status.Truncated()

	if opts.Labels {
		path, count, status, err := s.FetchLabels(ctx)
		if err != nil {
			return result, err
		}
		result.Truncated = result.Truncated || status.Truncated()
		if count > 0 {
			result.LabelsPath = path
		}
	}

	if opts.Discussions {
		path, count, status, err := s.FetchDiscussions(ctx, opts.DiscussionLimit)
		if err != nil {
			return result, err
		}
		result.Truncated = result.Truncated || status.Truncated()
		if count > 0 {
			result.DiscussionsPath = path
		}
	}

	if result.Stats, err = s.BuildStore(ctx, LoadInputs{
		Issues:      result.IssuesPath,
		Labels:      result.LabelsPath,
		Discussions: result.DiscussionsPath,
	}); err != nil {
		return result, err
	}

	result.Summaries, err = s.Summarize(ctx, result.StorePath)
	if err != nil {
		return result, err
	}

	s.logger.Info("Snapshot completed",
		zap.Duration("duration", s.now().Sub(start)),
		zap.Bool("truncated", result.Truncated))
	return result, nil
}

// ParseRepositoryString parses a repository string in the format "owner/name"
func ParseRepositoryString(repoStr string) (string, string, error) {
	parts := strings.Split(repoStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", repoStr)
	}
	return parts[0], parts[1], nil
}
