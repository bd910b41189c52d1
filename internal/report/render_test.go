package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wesm/argh/internal/models"
)

func TestRenderLabelFrequency(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got := RenderLabelFrequency(models.KindIssue, []models.LabelFrequency{
		{Label: "bug", Count: 1200},
		{Label: "docs", Count: 3},
		{Label: "api", Count: 1},
	}, 2)

	assert.True(t, strings.HasPrefix(got, "Top labels: issues\n"))
	assert.Contains(t, got, "1st")
	assert.Contains(t, got, "1,200")
	assert.Contains(t, got, "docs")
	assert.NotContains(t, got, "api")
}

func TestRenderStateBreakdown(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got := RenderStateBreakdown(models.KindPullRequest, []models.LabelStateCount{
		{Label: "bug", Open: 1, Closed: 3},
	}, 0)

	assert.Contains(t, got, "Open vs closed by label: pull_requests")
	assert.Contains(t, got, "25%")

	empty := RenderStateBreakdown(models.KindIssue, nil, 0)
	assert.Contains(t, empty, "No labeled issues.")
}

func TestPercentOpen(t *testing.T) {
	assert.Equal(t, "-", percentOpen(0, 0))
	assert.Equal(t, "33.3%", percentOpen(1, 2))
	assert.Equal(t, "100%", percentOpen(4, 0))
}
