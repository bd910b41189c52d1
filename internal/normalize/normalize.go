// Package normalize turns raw GitHub listing records into the rows of a store snapshot.
//
// The issues listing returns issues and pull requests together; a record is a
// pull request exactly when it carries a non-null pull_request marker, so
// "pull_request": null counts as an issue even though the key is present.
// Labels are identified by their numeric id and the first definition seen
// wins, whether it came from a record or from the repository's label listing.
package normalize

import (
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/argh/internal/models"
	"go.uber.org/zap"
)

// Normalizer accumulates rows for one snapshot
type Normalizer struct {
	logger   *zap.Logger
	snapshot models.Snapshot
	labels   map[int64]models.Label
	pairs    map[models.ResourceLabel]struct{}
	kinds    map[int64]models.Kind
}

// New creates an empty normalizer
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		logger: logger,
		labels: make(map[int64]models.Label),
		pairs:  make(map[models.ResourceLabel]struct{}),
		kinds:  make(map[int64]models.Kind),
	}
}

// Classify returns the resource kind of a listing record
func Classify(issue *github.Issue) models.Kind {
	if issue.IsPullRequest() {
		return models.KindPullRequest
	}
	return models.KindIssue
}

// Add normalizes one listing record. A record without an id is malformed input.
func (n *Normalizer) Add(issue *github.Issue) error {
	if issue == nil {
		return fmt.Errorf("%w: null record", models.ErrMalformedInput)
	}
	if issue.ID == nil {
		return fmt.Errorf("%w: record #%d has no id", models.ErrMalformedInput, issue.GetNumber())
	}

	kind := Classify(issue)
	if prev, ok := n.kinds[issue.GetID()]; ok && prev != kind {
		return fmt.Errorf("%w: id %d appears as both %s and %s", models.ErrMalformedInput, issue.GetID(), prev, kind)
	}
	n.kinds[issue.GetID()] = kind

	row := ConvertResource(issue)
	switch kind {
	case models.KindPullRequest:
		n.snapshot.PullRequests = append(n.snapshot.PullRequests, row)
	default:
		n.snapshot.Issues = append(n.snapshot.Issues, row)
	}

	for _, label := range issue.Labels {
		if label == nil || label.ID == nil {
			n.logger.Debug("Skipping label without id", zap.Int64("resource_id", row.ID))
			continue
		}
		n.addLabel(ConvertLabel(label))
		pair := models.ResourceLabel{ResourceID: row.ID, LabelID: label.GetID()}
		if _, ok := n.pairs[pair]; ok {
			continue
		}
		n.pairs[pair] = struct{}{}
		n.snapshot.ResourceLabels = append(n.snapshot.ResourceLabels, pair)
	}
	return nil
}

// AddLabel adds a label from the repository's label listing. Labels no record
// carries still get a row; a label already seen keeps its first definition.
func (n *Normalizer) AddLabel(label *github.Label) error {
	if label == nil {
		return fmt.Errorf("%w: null label", models.ErrMalformedInput)
	}
	if label.ID == nil {
		return fmt.Errorf("%w: label %q has no id", models.ErrMalformedInput, label.GetName())
	}
	n.addLabel(ConvertLabel(label))
	return nil
}

// AddDiscussion adds a discussion row
func (n *Normalizer) AddDiscussion(d models.Discussion) {
	n.snapshot.Discussions = append(n.snapshot.Discussions, d)
}

// Snapshot returns the rows accumulated so far
func (n *Normalizer) Snapshot() *models.Snapshot {
	snap := n.snapshot
	return &snap
}

func (n *Normalizer) addLabel(label models.Label) {
	existing, ok := n.labels[label.ID]
	if !ok {
		n.labels[label.ID] = label
		n.snapshot.Labels = append(n.snapshot.Labels, label)
		return
	}
	if !sameLabel(existing, label) {
		n.logger.Warn("Conflicting label definitions, keeping the first",
			zap.Int64("label_id", label.ID),
			zap.String("kept", existing.Name),
			zap.String("ignored", label.Name))
	}
}

func sameLabel(a, b models.Label) bool {
	if a.Name != b.Name || a.Color != b.Color {
		return false
	}
	if (a.Description == nil) != (b.Description == nil) {
		return false
	}
	return a.Description == nil || *a.Description == *b.Description
}

// Normalize classifies every record and returns the snapshot rows
func Normalize(issues []*github.Issue, discussions []models.Discussion, logger *zap.Logger) (*models.Snapshot, error) {
	n := New(logger)
	for _, issue := range issues {
		if err := n.Add(issue); err != nil {
			return nil, err
		}
	}
	for _, d := range discussions {
		n.AddDiscussion(d)
	}
	return n.Snapshot(), nil
}

// ConvertResource converts a listing record to a store row
func ConvertResource(issue *github.Issue) models.Resource {
	var author *string
	if issue.User != nil && issue.User.Login != nil {
		login := issue.User.GetLogin()
		author = &login
	}

	return models.Resource{
		ID:        issue.GetID(),
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		State:     issue.GetState(),
		CreatedAt: timestamp(issue.CreatedAt),
		UpdatedAt: timestamp(issue.UpdatedAt),
		ClosedAt:  timestamp(issue.ClosedAt),
		Author:    author,
		IsDraft:   issue.GetDraft(),
	}
}

// ConvertLabel converts a GitHub label to our model
func ConvertLabel(label *github.Label) models.Label {
	return models.Label{
		ID:          label.GetID(),
		Name:        label.GetName(),
		Color:       label.GetColor(),
		Description: label.Description,
	}
}

func timestamp(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}
