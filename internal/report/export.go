// Package report exports the aggregate views of a store as CSV files and
// renders them for the terminal.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/wesm/argh/internal/models"
	"go.uber.org/zap"
)

// View file suffixes, in export order
const (
	ViewOpenByLabel    = "open_by_label"
	ViewMonthlySummary = "monthly_summary"
	ViewLabelBreakdown = "label_breakdown"
	ViewLabelCounts    = "label_counts"
)

// Views lists every exported view in the order they are written
var Views = []string{ViewOpenByLabel, ViewMonthlySummary, ViewLabelBreakdown, ViewLabelCounts}

// Querier runs the aggregate views. *db.DB satisfies it.
type Querier interface {
	MonthlySummary(ctx context.Context, kind models.Kind) (*models.MonthlySummary, error)
	LabelFrequency(ctx context.Context, kind models.Kind) ([]models.LabelFrequency, error)
	LabelMonthSeries(ctx context.Context, kind models.Kind) ([]models.LabelMonthCount, error)
	LabelStateBreakdown(ctx context.Context, kind models.Kind) ([]models.LabelStateCount, error)
}

// Exporter writes one CSV per view per report kind
type Exporter struct {
	fs     afero.Fs
	dir    string
	owner  string
	name   string
	logger *zap.Logger
}

// NewExporter creates an exporter writing under <outputDir>/summaries
func NewExporter(fs afero.Fs, outputDir, owner, name string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{fs: fs, dir: outputDir, owner: owner, name: name, logger: logger}
}

// Path returns the CSV path of one view
func (e *Exporter) Path(kind models.Kind, view string) string {
	return filepath.Join(e.dir, "summaries", fmt.Sprintf("%s_%s_%s.%s.csv", e.owner, e.name, kind.Table(), view))
}

// ExportAll writes every view for every report kind. A view that fails to
// query still gets a header-only file and the remaining views are written;
// the returned error then wraps models.ErrQuery.
func (e *Exporter) ExportAll(ctx context.Context, q Querier) ([]string, error) {
	var written []string
	var failed []string

	for _, kind := range models.ReportKinds {
		for _, view := range Views {
			path, err := e.Export(ctx, q, kind, view)
			if path != "" {
				written = append(written, path)
			}
			if err != nil {
				failed = append(failed, fmt.Sprintf("%s.%s", kind.Table(), view))
				e.logger.Warn("Aggregate view failed",
					zap.String("table", kind.Table()),
					zap.String("view", view),
					zap.Error(err))
			}
		}
	}

	if len(failed) > 0 {
		return written, fmt.Errorf("%w: %d of %d views failed: %v",
			models.ErrQuery, len(failed), len(models.ReportKinds)*len(Views), failed)
	}
	e.logger.Info("All summaries written", zap.Int("files", len(written)))
	return written, nil
}

// Export writes a single view. The returned path is set whenever a file was written.
func (e *Exporter) Export(ctx context.Context, q Querier, kind models.Kind, view string) (string, error) {
	var header []string
	var rows [][]string
	var queryErr error

	switch view {
	case ViewOpenByLabel:
		header, rows, queryErr = openByLabel(ctx, q, kind)
	case ViewMonthlySummary:
		header, rows, queryErr = e.monthlySummary(ctx, q, kind)
	case ViewLabelBreakdown:
		header, rows, queryErr = labelBreakdown(ctx, q, kind)
	case ViewLabelCounts:
		header, rows, queryErr = labelCounts(ctx, q, kind)
	default:
		return "", fmt.Errorf("%w: unknown view %q", models.ErrQuery, view)
	}
	if queryErr != nil {
		rows = nil
	}

	path := e.Path(kind, view)
	if err := e.writeCSV(path, header, rows); err != nil {
		return "", err
	}

	if queryErr == nil && len(rows) == 0 {
		e.logger.Warn("View has no rows, wrote header only",
			zap.String("table", kind.Table()),
			zap.String("view", view))
	} else if queryErr == nil {
		e.logger.Info("Wrote summary", zap.String("path", path), zap.Int("rows", len(rows)))
	}
	return path, queryErr
}

func (e *Exporter) writeCSV(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := e.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summaries directory: %w", err)
	}
	if err := afero.WriteFile(e.fs, path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func openByLabel(ctx context.Context, q Querier, kind models.Kind) ([]string, [][]string, error) {
	header := []string{"label_name", "open_count", "closed_count"}
	counts, err := q.LabelStateBreakdown(ctx, kind)
	if err != nil {
		return header, nil, err
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Label, strconv.Itoa(c.Open), strconv.Itoa(c.Closed)})
	}
	return header, rows, nil
}

// labelColumnPrefix is prepended to a label column whose name would repeat
// another header
const labelColumnPrefix = "label:"

// monthlySummary flattens the bucket label maps into one column per label,
// in the order the summary lists them
func (e *Exporter) monthlySummary(ctx context.Context, q Querier, kind models.Kind) ([]string, [][]string, error) {
	table := kind.Table()
	header := []string{"month", "open_" + table, "closed_" + table}
	summary, err := q.MonthlySummary(ctx, kind)
	if err != nil {
		return header, nil, err
	}

	seen := make(map[string]struct{}, len(header)+len(summary.Labels))
	for _, column := range header {
		seen[column] = struct{}{}
	}
	for _, label := range summary.Labels {
		column := label
		for {
			if _, ok := seen[column]; !ok {
				break
			}
			column = labelColumnPrefix + column
		}
		if column != label {
			e.logger.Warn("Label name collides with a summary column, renaming it",
				zap.String("table", table),
				zap.String("label", label),
				zap.String("column", column))
		}
		seen[column] = struct{}{}
		header = append(header, column)
	}

	rows := make([][]string, 0, len(summary.Buckets))
	for _, b := range summary.Buckets {
		row := []string{b.Month, strconv.Itoa(b.Open), strconv.Itoa(b.Closed)}
		for _, label := range summary.Labels {
			row = append(row, strconv.Itoa(b.Labels[label]))
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func labelBreakdown(ctx context.Context, q Querier, kind models.Kind) ([]string, [][]string, error) {
	header := []string{"label_name", "count"}
	freq, err := q.LabelFrequency(ctx, kind)
	if err != nil {
		return header, nil, err
	}
	rows := make([][]string, 0, len(freq))
	for _, f := range freq {
		rows = append(rows, []string{f.Label, strconv.Itoa(f.Count)})
	}
	return header, rows, nil
}

func labelCounts(ctx context.Context, q Querier, kind models.Kind) ([]string, [][]string, error) {
	header := []string{"month", "label_name", "count"}
	series, err := q.LabelMonthSeries(ctx, kind)
	if err != nil {
		return header, nil, err
	}
	rows := make([][]string, 0, len(series))
	for _, c := range series {
		rows = append(rows, []string{c.Month, c.Label, strconv.Itoa(c.Count)})
	}
	return header, rows, nil
}
