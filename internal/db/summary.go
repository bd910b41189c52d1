package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wesm/argh/internal/models"
)

// Table names and filters below come from the closed set of report kinds;
// label names only ever travel as row values, never as query text.

func reportSource(kind models.Kind) (table, draftFilter string, err error) {
	switch kind {
	case models.KindIssue:
		return "issues", "", nil
	case models.KindPullRequest:
		return "pull_requests", " AND r.is_draft = 0", nil
	default:
		return "", "", fmt.Errorf("%w: no aggregate views for %q", models.ErrQuery, kind)
	}
}

// labeledFrom joins resources of one kind to their label names
func labeledFrom(table string) string {
	return ` FROM issue_labels il
		JOIN labels l ON l.id = il.label_id
		JOIN ` + table + ` r ON r.id = il.issue_id`
}

// DistinctLabels returns the label names attached to at least one resource of
// the given kind, alphabetically
func (db *DB) DistinctLabels(ctx context.Context, kind models.Kind) ([]string, error) {
	table, draft, err := reportSource(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT DISTINCT l.name` + labeledFrom(table) + `
		WHERE 1 = 1` + draft + `
		ORDER BY l.name ASC`

	var labels []string
	err = db.queryRows(ctx, "distinct labels", query, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		labels = append(labels, name)
		return nil
	})
	return labels, err
}

// MonthlySummary buckets resources of one kind by creation month. Each bucket
// counts open and closed resources plus, for every label in Labels, the
// resources in that bucket carrying it. Resources without a creation time
// fall in no bucket.
func (db *DB) MonthlySummary(ctx context.Context, kind models.Kind) (*models.MonthlySummary, error) {
	table, draft, err := reportSource(kind)
	if err != nil {
		return nil, err
	}

	labels, err := db.DistinctLabels(ctx, kind)
	if err != nil {
		return nil, err
	}
	summary := &models.MonthlySummary{Kind: kind, Labels: labels}

	query := `SELECT substr(r.created_at, 1, 7) AS month,
			SUM(CASE WHEN r.state = 'open' THEN 1 ELSE 0 END),
			SUM(CASE WHEN r.state = 'closed' THEN 1 ELSE 0 END)
		FROM ` + table + ` r
		WHERE r.created_at IS NOT NULL` + draft + `
		GROUP BY month
		ORDER BY month ASC`

	index := make(map[string]int)
	err = db.queryRows(ctx, "monthly summary", query, func(rows *sql.Rows) error {
		bucket := models.MonthlyBucket{Labels: make(map[string]int, len(labels))}
		if err := rows.Scan(&bucket.Month, &bucket.Open, &bucket.Closed); err != nil {
			return err
		}
		for _, name := range labels {
			bucket.Labels[name] = 0
		}
		index[bucket.Month] = len(summary.Buckets)
		summary.Buckets = append(summary.Buckets, bucket)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return summary, nil
	}

	query = `SELECT substr(r.created_at, 1, 7) AS month, l.name, COUNT(DISTINCT r.id)` + labeledFrom(table) + `
		WHERE r.created_at IS NOT NULL` + draft + `
		GROUP BY month, l.name`

	err = db.queryRows(ctx, "monthly label counts", query, func(rows *sql.Rows) error {
		var month, name string
		var count int
		if err := rows.Scan(&month, &name, &count); err != nil {
			return err
		}
		if i, ok := index[month]; ok {
			summary.Buckets[i].Labels[name] = count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// LabelFrequency counts resource-label associations per label name, most used first
func (db *DB) LabelFrequency(ctx context.Context, kind models.Kind) ([]models.LabelFrequency, error) {
	table, draft, err := reportSource(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT l.name, COUNT(*) AS count` + labeledFrom(table) + `
		WHERE 1 = 1` + draft + `
		GROUP BY l.name
		ORDER BY count DESC, l.name ASC`

	var out []models.LabelFrequency
	err = db.queryRows(ctx, "label frequency", query, func(rows *sql.Rows) error {
		var f models.LabelFrequency
		if err := rows.Scan(&f.Label, &f.Count); err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

// LabelMonthSeries counts resource-label associations per (month, label name)
func (db *DB) LabelMonthSeries(ctx context.Context, kind models.Kind) ([]models.LabelMonthCount, error) {
	table, draft, err := reportSource(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT substr(r.created_at, 1, 7) AS month, l.name, COUNT(*) AS count` + labeledFrom(table) + `
		WHERE r.created_at IS NOT NULL` + draft + `
		GROUP BY month, l.name
		ORDER BY month ASC, count DESC, l.name ASC`

	var out []models.LabelMonthCount
	err = db.queryRows(ctx, "label month series", query, func(rows *sql.Rows) error {
		var c models.LabelMonthCount
		if err := rows.Scan(&c.Month, &c.Label, &c.Count); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// LabelStateBreakdown splits the resources carrying each label name by state
func (db *DB) LabelStateBreakdown(ctx context.Context, kind models.Kind) ([]models.LabelStateCount, error) {
	table, draft, err := reportSource(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT l.name,
			COUNT(DISTINCT CASE WHEN r.state = 'open' THEN r.id END) AS open_count,
			COUNT(DISTINCT CASE WHEN r.state = 'closed' THEN r.id END) AS closed_count` + labeledFrom(table) + `
		WHERE 1 = 1` + draft + `
		GROUP BY l.name
		ORDER BY open_count DESC, closed_count DESC, l.name ASC`

	var out []models.LabelStateCount
	err = db.queryRows(ctx, "label state breakdown", query, func(rows *sql.Rows) error {
		var c models.LabelStateCount
		if err := rows.Scan(&c.Label, &c.Open, &c.Closed); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (db *DB) queryRows(ctx context.Context, view, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: failed to query %s: %v", models.ErrQuery, view, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("%w: failed to scan %s: %v", models.ErrQuery, view, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: failed to read %s: %v", models.ErrQuery, view, err)
	}
	return nil
}
