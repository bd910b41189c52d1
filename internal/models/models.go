package models

import (
	"time"
)

// Kind identifies one of the resource kinds the normalizer knows about
type Kind string

const (
	KindIssue       Kind = "issue"
	KindPullRequest Kind = "pull_request"
	KindLabel       Kind = "label"
	KindDiscussion  Kind = "discussion"
)

// ReportKinds are the resource kinds that get aggregate views, in export order
var ReportKinds = []Kind{KindIssue, KindPullRequest}

// Table returns the store table backing a resource kind
func (k Kind) Table() string {
	switch k {
	case KindIssue:
		return "issues"
	case KindPullRequest:
		return "pull_requests"
	case KindLabel:
		return "labels"
	case KindDiscussion:
		return "discussions"
	default:
		return ""
	}
}

// Resource is an issue or pull request row
type Resource struct {
	ID        int64
	Number    int
	Title     string
	State     string
	CreatedAt *time.Time
	UpdatedAt *time.Time
	ClosedAt  *time.Time
	// Author is nil when the upstream account is gone, which is not the same as an empty login
	Author *string
	// IsDraft is only meaningful for pull requests
	IsDraft bool
}

// Label represents a GitHub label
type Label struct {
	ID          int64
	Name        string
	Color       string
	Description *string
}

// ResourceLabel represents a many-to-many relationship between resources and labels
type ResourceLabel struct {
	ResourceID int64
	LabelID    int64
}

// Discussion represents a GitHub discussion
type Discussion struct {
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	BodyText     string    `json:"bodyText"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	IsAnswered   *bool     `json:"isAnswered"`
	Locked       bool      `json:"locked"`
	Author       *string   `json:"author"`
	Category     string    `json:"category"`
	CommentCount int       `json:"commentCount"`
	UpvoteCount  int       `json:"upvoteCount"`
}

// Snapshot is one full set of normalized rows ready to be loaded into a fresh store
type Snapshot struct {
	Issues         []Resource
	PullRequests   []Resource
	Labels         []Label
	ResourceLabels []ResourceLabel
	Discussions    []Discussion
}

// Empty reports whether the snapshot has nothing to load
func (s *Snapshot) Empty() bool {
	return len(s.Issues) == 0 && len(s.PullRequests) == 0 && len(s.Discussions) == 0
}

// LoadStats counts the rows written by one snapshot load
type LoadStats struct {
	Issues         int
	PullRequests   int
	Labels         int
	ResourceLabels int
	Discussions    int
}

// MonthlyBucket is one row of the monthly open/closed view
type MonthlyBucket struct {
	Month  string
	Open   int
	Closed int
	Labels map[string]int
}

// MonthlySummary is the monthly view for one resource kind. Labels holds the
// data-driven label columns in output order.
type MonthlySummary struct {
	Kind    Kind
	Labels  []string
	Buckets []MonthlyBucket
}

// LabelFrequency is the total number of associations for one label name
type LabelFrequency struct {
	Label string
	Count int
}

// LabelMonthCount is the number of associations for one (month, label) pair
type LabelMonthCount struct {
	Month string
	Label string
	Count int
}

// LabelStateCount is the open/closed split of resources carrying one label
type LabelStateCount struct {
	Label  string
	Open   int
	Closed int
}
