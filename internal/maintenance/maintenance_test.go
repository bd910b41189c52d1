package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wesm/argh/internal/api"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type mockGitHub struct {
	mock.Mock
}

func (m *mockGitHub) ListOpenPullRequests(ctx context.Context, owner, name string) ([]*github.PullRequest, api.FetchStatus) {
	args := m.Called(ctx, owner, name)
	return args.Get(0).([]*github.PullRequest), args.Get(1).(api.FetchStatus)
}

func (m *mockGitHub) AddComment(ctx context.Context, owner, name string, number int, body string) error {
	return m.Called(ctx, owner, name, number, body).Error(0)
}

func (m *mockGitHub) ClosePullRequest(ctx context.Context, owner, name string, number int) error {
	return m.Called(ctx, owner, name, number).Error(0)
}

func (m *mockGitHub) ListBranches(ctx context.Context, owner, name string) ([]*github.Branch, api.FetchStatus) {
	args := m.Called(ctx, owner, name)
	return args.Get(0).([]*github.Branch), args.Get(1).(api.FetchStatus)
}

func (m *mockGitHub) LastCommitDate(ctx context.Context, owner, name, branch string) (*time.Time, error) {
	args := m.Called(ctx, owner, name, branch)
	date, _ := args.Get(0).(*time.Time)
	return date, args.Error(1)
}

func (m *mockGitHub) DeleteBranch(ctx context.Context, owner, name, branch string) error {
	return m.Called(ctx, owner, name, branch).Error(0)
}

func pullRequest(number int, age time.Duration, labels ...string) *github.PullRequest {
	pr := &github.PullRequest{
		Number:    github.Int(number),
		Title:     github.String("PR"),
		CreatedAt: &github.Timestamp{Time: now.Add(-age)},
	}
	for _, l := range labels {
		pr.Labels = append(pr.Labels, &github.Label{Name: github.String(l)})
	}
	return pr
}

const awaiting = "meta: awaiting author"

func staleOptions(dryRun bool) StaleOptions {
	return StaleOptions{
		Owner:   "octo",
		Name:    "widgets",
		Label:   awaiting,
		MaxAge:  180 * 24 * time.Hour,
		Comment: "Closing due to inactivity.",
		DryRun:  dryRun,
	}
}

func TestStaleCloser_Run(t *testing.T) {
	ctx := context.Background()
	prs := []*github.PullRequest{
		pullRequest(1, 200*24*time.Hour, awaiting),
		pullRequest(2, 200*24*time.Hour, "bug"),
		pullRequest(3, 10*24*time.Hour, awaiting),
		pullRequest(4, 365*24*time.Hour, "bug", awaiting),
	}

	t.Run("Should comment on and close old labeled pull requests", func(t *testing.T) {
		svc := new(mockGitHub)
		svc.On("ListOpenPullRequests", ctx, "octo", "widgets").Return(prs, api.FetchStatus{Pages: 1, Records: 4})
		for _, n := range []int{1, 4} {
			svc.On("AddComment", ctx, "octo", "widgets", n, "Closing due to inactivity.").Return(nil).Once()
			svc.On("ClosePullRequest", ctx, "octo", "widgets", n).Return(nil).Once()
		}

		closer := NewStaleCloser(svc, nil)
		closer.now = func() time.Time { return now }
		report, err := closer.Run(ctx, staleOptions(false))

		require.NoError(t, err)
		svc.AssertExpectations(t)
		require.Len(t, report.Closed, 2)
		assert.Equal(t, 1, report.Closed[0].Number)
		assert.Equal(t, 4, report.Closed[1].Number)
		assert.Contains(t, report.String(), "Total PRs closed: 2")
	})

	t.Run("Should not write anything in dry run", func(t *testing.T) {
		svc := new(mockGitHub)
		svc.On("ListOpenPullRequests", ctx, "octo", "widgets").Return(prs, api.FetchStatus{})

		closer := NewStaleCloser(svc, nil)
		closer.now = func() time.Time { return now }
		report, err := closer.Run(ctx, staleOptions(true))

		require.NoError(t, err)
		svc.AssertNotCalled(t, "AddComment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		svc.AssertNotCalled(t, "ClosePullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Len(t, report.Closed, 2)
		assert.Contains(t, report.String(), "Total PRs that would be closed: 2")
	})

	t.Run("Should keep going when one close fails", func(t *testing.T) {
		svc := new(mockGitHub)
		svc.On("ListOpenPullRequests", ctx, "octo", "widgets").Return(prs, api.FetchStatus{})
		svc.On("AddComment", ctx, "octo", "widgets", 1, mock.Anything).Return(errors.New("forbidden"))
		svc.On("AddComment", ctx, "octo", "widgets", 4, mock.Anything).Return(nil)
		svc.On("ClosePullRequest", ctx, "octo", "widgets", 4).Return(nil)

		closer := NewStaleCloser(svc, nil)
		closer.now = func() time.Time { return now }
		report, err := closer.Run(ctx, staleOptions(false))

		require.Error(t, err)
		require.Len(t, report.Failed, 1)
		assert.Equal(t, 1, report.Failed[0].Number)
		assert.Len(t, report.Closed, 1)
		svc.AssertNotCalled(t, "ClosePullRequest", ctx, "octo", "widgets", 1)
	})

	t.Run("Should require a label", func(t *testing.T) {
		opts := staleOptions(true)
		opts.Label = ""
		_, err := NewStaleCloser(new(mockGitHub), nil).Run(ctx, opts)
		assert.Error(t, err)
	})
}

func TestIsStale(t *testing.T) {
	cutoff := now.Add(-time.Hour)
	assert.True(t, IsStale(pullRequest(1, 2*time.Hour, awaiting), awaiting, cutoff))
	assert.False(t, IsStale(pullRequest(1, 2*time.Hour, "Meta: Awaiting Author"), awaiting, cutoff))
	assert.False(t, IsStale(pullRequest(1, time.Minute, awaiting), awaiting, cutoff))
	assert.False(t, IsStale(&github.PullRequest{Number: github.Int(1)}, awaiting, cutoff))
}

func TestIsReleaseBranch(t *testing.T) {
	tests := map[string]bool{
		"v1.2.3":        true,
		"v0.40.0-rc.1":  true,
		"v1.2":          false,
		"1.2.3":         false,
		"version-2":     false,
		"v1.2.3.4":      false,
		"vector-branch": false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsReleaseBranch(name), name)
	}
}

func TestBranchPruner_Run(t *testing.T) {
	ctx := context.Background()
	old := now.Add(-5 * 365 * 24 * time.Hour)
	recent := now.Add(-30 * 24 * time.Hour)
	branches := []*github.Branch{
		{Name: github.String("main")},
		{Name: github.String("release-train"), Protected: github.Bool(true)},
		{Name: github.String("v0.34.1")},
		{Name: github.String("stale-feature")},
		{Name: github.String("fresh-feature")},
		{Name: github.String("mystery")},
	}
	opts := BranchOptions{
		Owner:  "octo",
		Name:   "widgets",
		MaxAge: 4 * 365 * 24 * time.Hour,
		Keep:   []string{"main", "master"},
	}

	setup := func() *mockGitHub {
		svc := new(mockGitHub)
		svc.On("ListBranches", ctx, "octo", "widgets").Return(branches, api.FetchStatus{Pages: 1, Records: len(branches)})
		svc.On("LastCommitDate", ctx, "octo", "widgets", "stale-feature").Return(&old, nil)
		svc.On("LastCommitDate", ctx, "octo", "widgets", "fresh-feature").Return(&recent, nil)
		svc.On("LastCommitDate", ctx, "octo", "widgets", "mystery").Return(nil, errors.New("not found"))
		return svc
	}

	t.Run("Should delete only branches with a known old last commit", func(t *testing.T) {
		svc := setup()
		svc.On("DeleteBranch", ctx, "octo", "widgets", "stale-feature").Return(nil).Once()

		pruner := NewBranchPruner(svc, nil)
		pruner.now = func() time.Time { return now }
		report, err := pruner.Run(ctx, opts)

		require.NoError(t, err)
		svc.AssertExpectations(t)
		svc.AssertNotCalled(t, "LastCommitDate", ctx, "octo", "widgets", "main")

		outcomes := map[string]string{}
		for _, b := range report.Branches {
			outcomes[b.Name] = b.Outcome
		}
		assert.Equal(t, map[string]string{
			"main":          BranchSkipped,
			"release-train": BranchSkipped,
			"v0.34.1":       BranchSkipped,
			"stale-feature": BranchDeleted,
			"fresh-feature": BranchActive,
			"mystery":       BranchUnknown,
		}, outcomes)
		assert.Contains(t, report.String(), "Deleted 1 stale branches")
	})

	t.Run("Should not delete in dry run", func(t *testing.T) {
		svc := setup()
		dry := opts
		dry.DryRun = true

		pruner := NewBranchPruner(svc, nil)
		pruner.now = func() time.Time { return now }
		report, err := pruner.Run(ctx, dry)

		require.NoError(t, err)
		svc.AssertNotCalled(t, "DeleteBranch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, 1, report.Count(BranchDeleted))
		assert.Contains(t, report.String(), "Would delete 1 stale branches")
	})

	t.Run("Should report failed deletions", func(t *testing.T) {
		svc := setup()
		svc.On("DeleteBranch", ctx, "octo", "widgets", "stale-feature").Return(errors.New("protected by ruleset"))

		pruner := NewBranchPruner(svc, nil)
		pruner.now = func() time.Time { return now }
		report, err := pruner.Run(ctx, opts)

		require.Error(t, err)
		assert.Equal(t, 1, report.Count(BranchFailed))
	})
}
