// Package archive reads and writes the raw JSON listings kept under the
// output directory's historical/ tree.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/spf13/afero"
	"github.com/wesm/argh/internal/models"
)

// StampLayout prefixes timestamped archive names
const StampLayout = "20060102_150405"

// Store reads and writes archives on a filesystem
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates an archive store rooted at outputDir
func New(fs afero.Fs, outputDir string) *Store {
	return &Store{fs: fs, dir: outputDir}
}

// IssuesPath is where the raw issues listing for a repository is archived
func (s *Store) IssuesPath(owner, name string) string {
	return filepath.Join(s.dir, "historical", "issues", fmt.Sprintf("%s_%s_issues.json", owner, name))
}

// LabelsPath is where the repository's label listing is archived
func (s *Store) LabelsPath(owner, name string) string {
	return filepath.Join(s.dir, "historical", "labels", fmt.Sprintf("%s_%s_labels.json", owner, name))
}

// DiscussionsPath is where a discussions listing fetched at the given time is archived
func (s *Store) DiscussionsPath(owner, name string, at time.Time) string {
	return filepath.Join(s.dir, "historical", "discussions",
		fmt.Sprintf("%s_%s_%s_discussions.json", at.UTC().Format(StampLayout), owner, name))
}

// WriteIssues archives a raw issues listing and returns its path
func (s *Store) WriteIssues(owner, name string, issues []*github.Issue) (string, error) {
	if issues == nil {
		issues = []*github.Issue{}
	}
	path := s.IssuesPath(owner, name)
	return path, s.writeJSON(path, issues)
}

// WriteLabels archives the repository's label listing and returns its path
func (s *Store) WriteLabels(owner, name string, labels []*github.Label) (string, error) {
	if labels == nil {
		labels = []*github.Label{}
	}
	path := s.LabelsPath(owner, name)
	return path, s.writeJSON(path, labels)
}

// WriteDiscussions archives a discussions listing and returns its path
func (s *Store) WriteDiscussions(owner, name string, at time.Time, discussions []models.Discussion) (string, error) {
	if discussions == nil {
		discussions = []models.Discussion{}
	}
	path := s.DiscussionsPath(owner, name, at)
	return path, s.writeJSON(path, discussions)
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadIssues reads a raw issues listing. Every record must carry an id.
func (s *Store) ReadIssues(path string) ([]*github.Issue, error) {
	var issues []*github.Issue
	raw, err := s.readArray(path, &issues)
	if err != nil {
		return nil, err
	}
	for i, issue := range issues {
		if issue == nil || bytes.Equal(raw[i], []byte("null")) {
			return nil, fmt.Errorf("%w: %s: record %d is null", models.ErrMalformedInput, path, i)
		}
		if issue.ID == nil {
			return nil, fmt.Errorf("%w: %s: record %d has no id", models.ErrMalformedInput, path, i)
		}
	}
	return issues, nil
}

// ReadLabels reads a label listing. Labels are identified by id, so every
// record must carry one.
func (s *Store) ReadLabels(path string) ([]*github.Label, error) {
	var labels []*github.Label
	if _, err := s.readArray(path, &labels); err != nil {
		return nil, err
	}
	for i, label := range labels {
		if label == nil {
			return nil, fmt.Errorf("%w: %s: label %d is null", models.ErrMalformedInput, path, i)
		}
		if label.ID == nil {
			return nil, fmt.Errorf("%w: %s: label %q has no id", models.ErrMalformedInput, path, label.GetName())
		}
	}
	return labels, nil
}

// ReadDiscussions reads a discussions archive
func (s *Store) ReadDiscussions(path string) ([]models.Discussion, error) {
	var discussions []models.Discussion
	raw, err := s.readArray(path, &discussions)
	if err != nil {
		return nil, err
	}
	for i := range discussions {
		if bytes.Equal(raw[i], []byte("null")) {
			return nil, fmt.Errorf("%w: %s: record %d is null", models.ErrMalformedInput, path, i)
		}
		if discussions[i].Number == 0 {
			return nil, fmt.Errorf("%w: %s: record %d has no number", models.ErrMalformedInput, path, i)
		}
	}
	return discussions, nil
}

// readArray decodes a top-level JSON array into out and returns the raw
// elements alongside it
func (s *Store) readArray(path string, out any) ([]json.RawMessage, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", models.ErrNoData, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s is not a JSON array: %v", models.ErrMalformedInput, path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s is not a JSON array", models.ErrMalformedInput, path)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", models.ErrNoData, path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedInput, path, err)
	}
	return raw, nil
}
