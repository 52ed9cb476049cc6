// Package local analyzes documents in-process for development and tests.
package local

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"intake-portal/internal/docintel"
	"intake-portal/internal/extract"
)

const maxKeyLength = 64

// Analyzer extracts text with the extract package and derives key/value pairs from
// "Label: value" lines.
type Analyzer struct{}

// New returns a local Analyzer.
func New() *Analyzer { return &Analyzer{} }

// Analyze extracts text from a PDF, DOCX or plain text payload.
func (a *Analyzer) Analyze(ctx context.Context, data []byte, contentType string) (docintel.Result, error) {
	text, err := extract.Text(ctx, data, contentType, "")
	if err != nil {
		return docintel.Result{}, &docintel.ServiceError{
			StatusCode: 422,
			Code:       "UnsupportedContent",
			Message:    fmt.Sprintf("local analysis: %v", err),
		}
	}
	return docintel.Result{Content: text, KeyValuePairs: KeyValues(text)}, nil
}

// KeyValues returns one pair per line shaped like "Label: value". Labels longer than 64 characters
// are treated as prose. A label with nothing after the colon yields a pair without a value.
func KeyValues(text string) []docintel.KeyValue {
	out := []docintel.KeyValue{}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || len(key) > maxKeyLength || strings.Contains(key, "://") || strings.HasPrefix(value, "//") {
			continue
		}
		value = strings.TrimSpace(value)
		out = append(out, docintel.KeyValue{Key: key, Value: value, HasValue: value != ""})
	}
	return out
}

var _ docintel.Analyzer = (*Analyzer)(nil)
