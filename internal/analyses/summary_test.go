package analyses

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"intake-portal/internal/docintel"
)

func TestBuildSummaryTruncatesAndDropsPairsWithoutValue(t *testing.T) {
	content := strings.Repeat("é", 800)
	sum := BuildSummary(docintel.Result{
		Content: content,
		KeyValuePairs: []docintel.KeyValue{
			{Key: "Name", Value: "Jane Doe", HasValue: true},
			{Key: "Signature"},
			{Key: "", Value: "orphan", HasValue: true},
			{Key: "Case", Value: "CASE-1", HasValue: true},
			{Key: "Notes", Value: "", HasValue: true},
		},
	})

	assert.Equal(t, SummaryTextLimit, utf8.RuneCountInString(sum.Text))
	assert.True(t, utf8.ValidString(sum.Text))
	assert.Equal(t, map[string]string{"Name": "Jane Doe", "Case": "CASE-1", "Notes": ""}, sum.KeyValues)
}

func TestBuildSummaryKeepsShortText(t *testing.T) {
	sum := BuildSummary(docintel.Result{Content: "short"})
	assert.Equal(t, "short", sum.Text)
	assert.NotNil(t, sum.KeyValues)
	assert.Empty(t, sum.KeyValues)
}

func TestProcessedKey(t *testing.T) {
	assert.Equal(t, "processed/7/doc.pdf.json", ProcessedKey(7, "7/doc.pdf"))
	assert.Equal(t, "processed/12/scan.png.json", ProcessedKey(12, "12/nested/scan.png"))
}
