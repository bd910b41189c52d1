// Package maintenance holds the repository housekeeping jobs: closing pull
// requests that have waited on their author for too long and deleting
// branches nobody has committed to in years.
package maintenance

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/go-github/v57/github"
	"github.com/wesm/argh/internal/api"
	"go.uber.org/zap"
)

// PullRequestService is the slice of the GitHub client the stale closer needs
type PullRequestService interface {
	ListOpenPullRequests(ctx context.Context, owner, name string) ([]*github.PullRequest, api.FetchStatus)
	AddComment(ctx context.Context, owner, name string, number int, body string) error
	ClosePullRequest(ctx context.Context, owner, name string, number int) error
}

// StaleOptions configures one stale pull request sweep
type StaleOptions struct {
	Owner   string
	Name    string
	Label   string
	MaxAge  time.Duration
	Comment string
	DryRun  bool
}

// StalePR is a pull request picked by the sweep
type StalePR struct {
	Number    int
	Title     string
	CreatedAt time.Time
	Err       error
}

// StaleReport is the outcome of one sweep
type StaleReport struct {
	DryRun bool
	Cutoff time.Time
	Closed []StalePR
	Failed []StalePR
	// Fetch is set when the open pull request listing stopped early
	Fetch api.FetchStatus
}

// StaleCloser comments on and closes stale pull requests
type StaleCloser struct {
	svc    PullRequestService
	logger *zap.Logger
	now    func() time.Time
}

// NewStaleCloser creates a stale closer
func NewStaleCloser(svc PullRequestService, logger *zap.Logger) *StaleCloser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaleCloser{svc: svc, logger: logger, now: time.Now}
}

// Run closes every open pull request created before now-MaxAge that carries
// the label. In dry run nothing is written upstream.
func (s *StaleCloser) Run(ctx context.Context, opts StaleOptions) (*StaleReport, error) {
	if opts.Label == "" {
		return nil, fmt.Errorf("stale pull request label is required")
	}
	if opts.MaxAge <= 0 {
		return nil, fmt.Errorf("stale pull request age must be positive, got %s", opts.MaxAge)
	}

	report := &StaleReport{DryRun: opts.DryRun, Cutoff: s.now().Add(-opts.MaxAge)}

	s.logger.Info("Fetching open pull requests",
		zap.String("repository", opts.Owner+"/"+opts.Name),
		zap.Time("cutoff", report.Cutoff))
	prs, status := s.svc.ListOpenPullRequests(ctx, opts.Owner, opts.Name)
	report.Fetch = status
	if status.Truncated() {
		s.logger.Warn("Open pull request listing stopped early, sweeping what was fetched",
			zap.Int("fetched", len(prs)),
			zap.Error(status.Err))
	}

	for _, pr := range prs {
		if !IsStale(pr, opts.Label, report.Cutoff) {
			continue
		}
		candidate := StalePR{
			Number:    pr.GetNumber(),
			Title:     pr.GetTitle(),
			CreatedAt: pr.GetCreatedAt().Time,
		}

		if opts.DryRun {
			s.logger.Info("Would close pull request", zap.Int("number", candidate.Number))
			report.Closed = append(report.Closed, candidate)
			continue
		}

		if err := s.close(ctx, opts, candidate.Number); err != nil {
			s.logger.Error("Failed to close pull request", zap.Int("number", candidate.Number), zap.Error(err))
			candidate.Err = err
			report.Failed = append(report.Failed, candidate)
			continue
		}
		s.logger.Info("Closed pull request", zap.Int("number", candidate.Number))
		report.Closed = append(report.Closed, candidate)
	}

	if len(report.Failed) > 0 {
		return report, fmt.Errorf("failed to close %d pull requests", len(report.Failed))
	}
	return report, nil
}

func (s *StaleCloser) close(ctx context.Context, opts StaleOptions, number int) error {
	if opts.Comment != "" {
		if err := s.svc.AddComment(ctx, opts.Owner, opts.Name, number, opts.Comment); err != nil {
			return err
		}
	}
	return s.svc.ClosePullRequest(ctx, opts.Owner, opts.Name, number)
}

// IsStale reports whether an open pull request was created before cutoff and carries label
func IsStale(pr *github.PullRequest, label string, cutoff time.Time) bool {
	if pr == nil || pr.CreatedAt == nil || !pr.GetCreatedAt().Before(cutoff) {
		return false
	}
	return slices.ContainsFunc(pr.Labels, func(l *github.Label) bool {
		return l.GetName() == label
	})
}

// String renders the sweep report for the terminal
func (r *StaleReport) String() string {
	var b strings.Builder
	verb := "closed"
	if r.DryRun {
		verb = "that would be closed"
	}
	fmt.Fprintf(&b, "Report:\nTotal PRs %s: %d\n", verb, len(r.Closed))
	for _, pr := range r.Closed {
		fmt.Fprintf(&b, "- PR #%d: %s (created %s, %s)\n",
			pr.Number, pr.Title, pr.CreatedAt.UTC().Format(time.DateOnly), humanize.Time(pr.CreatedAt))
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", len(r.Failed))
		for _, pr := range r.Failed {
			fmt.Fprintf(&b, "- PR #%d: %s (%v)\n", pr.Number, pr.Title, pr.Err)
		}
	}
	if r.Fetch.Truncated() {
		fmt.Fprintf(&b, "Warning: listing stopped after %d pull requests: %v\n", r.Fetch.Records, r.Fetch.Err)
	}
	return b.String()
}
