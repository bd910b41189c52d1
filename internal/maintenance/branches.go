package maintenance

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	humanize "github.com/dustin/go-humanize"
	"github.com/google/go-github/v57/github"
	"github.com/wesm/argh/internal/api"
	"go.uber.org/zap"
)

// BranchService is the slice of the GitHub client the pruner needs
type BranchService interface {
	ListBranches(ctx context.Context, owner, name string) ([]*github.Branch, api.FetchStatus)
	LastCommitDate(ctx context.Context, owner, name, branch string) (*time.Time, error)
	DeleteBranch(ctx context.Context, owner, name, branch string) error
}

// BranchOptions configures one prune run
type BranchOptions struct {
	Owner  string
	Name   string
	MaxAge time.Duration
	Keep   []string
	DryRun bool
}

// Branch outcome
const (
	BranchSkipped = "skipped"
	BranchActive  = "active"
	BranchUnknown = "unknown"
	BranchDeleted = "deleted"
	BranchFailed  = "failed"
)

// BranchResult records what happened to one branch
type BranchResult struct {
	Name       string
	Outcome    string
	Reason     string
	LastCommit *time.Time
	Err        error
}

// PruneReport is the outcome of one prune run
type PruneReport struct {
	DryRun   bool
	Cutoff   time.Time
	Branches []BranchResult
	Fetch    api.FetchStatus
}

// Count returns the number of branches with the given outcome
func (r *PruneReport) Count(outcome string) int {
	n := 0
	for _, b := range r.Branches {
		if b.Outcome == outcome {
			n++
		}
	}
	return n
}

// BranchPruner deletes branches without recent commits
type BranchPruner struct {
	svc    BranchService
	logger *zap.Logger
	now    func() time.Time
}

// NewBranchPruner creates a branch pruner
func NewBranchPruner(svc BranchService, logger *zap.Logger) *BranchPruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchPruner{svc: svc, logger: logger, now: time.Now}
}

// IsReleaseBranch reports whether a branch name is "v" followed by a full semantic version
func IsReleaseBranch(name string) bool {
	rest, ok := strings.CutPrefix(name, "v")
	if !ok {
		return false
	}
	_, err := semver.StrictNewVersion(rest)
	return err == nil
}

// Run walks every branch. Protected, kept and release branches are skipped;
// a branch is deleted only when its last commit is known and older than
// MaxAge.
func (p *BranchPruner) Run(ctx context.Context, opts BranchOptions) (*PruneReport, error) {
	if opts.MaxAge <= 0 {
		return nil, fmt.Errorf("branch age must be positive, got %s", opts.MaxAge)
	}

	report := &PruneReport{DryRun: opts.DryRun, Cutoff: p.now().Add(-opts.MaxAge)}

	branches, status := p.svc.ListBranches(ctx, opts.Owner, opts.Name)
	report.Fetch = status
	if status.Truncated() {
		p.logger.Warn("Branch listing stopped early, pruning what was fetched",
			zap.Int("fetched", len(branches)),
			zap.Error(status.Err))
	}

	for _, branch := range branches {
		result := p.prune(ctx, opts, report.Cutoff, branch)
		report.Branches = append(report.Branches, result)
	}

	if failed := report.Count(BranchFailed); failed > 0 {
		return report, fmt.Errorf("failed to delete %d branches", failed)
	}
	return report, nil
}

func (p *BranchPruner) prune(ctx context.Context, opts BranchOptions, cutoff time.Time, branch *github.Branch) BranchResult {
	name := branch.GetName()
	result := BranchResult{Name: name}
	log := p.logger.With(zap.String("branch", name))

	switch {
	case branch.GetProtected():
		result.Outcome, result.Reason = BranchSkipped, "protected"
	case slices.Contains(opts.Keep, name):
		result.Outcome, result.Reason = BranchSkipped, "kept"
	case IsReleaseBranch(name):
		result.Outcome, result.Reason = BranchSkipped, "release"
	}
	if result.Outcome != "" {
		log.Debug("Skipping special branch", zap.String("reason", result.Reason))
		return result
	}

	last, err := p.svc.LastCommitDate(ctx, opts.Owner, opts.Name, name)
	if err != nil || last == nil {
		result.Outcome, result.Err = BranchUnknown, err
		log.Warn("Could not determine activity for branch", zap.Error(err))
		return result
	}
	result.LastCommit = last

	if !last.Before(cutoff) {
		result.Outcome = BranchActive
		log.Debug("Keeping active branch", zap.Time("last_commit", *last))
		return result
	}

	if opts.DryRun {
		result.Outcome, result.Reason = BranchDeleted, "dry run"
		log.Info("Would delete stale branch", zap.Time("last_commit", *last))
		return result
	}

	if err := p.svc.DeleteBranch(ctx, opts.Owner, opts.Name, name); err != nil {
		result.Outcome, result.Err = BranchFailed, err
		log.Error("Failed to delete branch", zap.Error(err))
		return result
	}
	result.Outcome = BranchDeleted
	log.Info("Deleted stale branch", zap.Time("last_commit", *last))
	return result
}

// String renders the prune report for the terminal
func (r *PruneReport) String() string {
	var b strings.Builder
	verb := "Deleted"
	if r.DryRun {
		verb = "Would delete"
	}
	fmt.Fprintf(&b, "%s %d stale branches (last commit before %s)\n",
		verb, r.Count(BranchDeleted), r.Cutoff.UTC().Format(time.DateOnly))
	for _, br := range r.Branches {
		switch br.Outcome {
		case BranchDeleted:
			fmt.Fprintf(&b, "- %s (last commit %s)\n", br.Name, humanize.Time(*br.LastCommit))
		case BranchFailed:
			fmt.Fprintf(&b, "! %s: %v\n", br.Name, br.Err)
		case BranchUnknown:
			fmt.Fprintf(&b, "? %s: last commit unknown, kept\n", br.Name)
		}
	}
	fmt.Fprintf(&b, "Active: %d, skipped: %d, unknown: %d\n",
		r.Count(BranchActive), r.Count(BranchSkipped), r.Count(BranchUnknown))
	if r.Fetch.Truncated() {
		fmt.Fprintf(&b, "Warning: listing stopped after %d branches: %v\n", r.Fetch.Records, r.Fetch.Err)
	}
	return b.String()
}
