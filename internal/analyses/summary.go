package analyses

import (
	"path"
	"strconv"

	"intake-portal/internal/docintel"
)

// SummaryTextLimit caps the number of characters of extracted text kept in a summary.
const SummaryTextLimit = 500

// Summary is the document digest written to the processed container.
type Summary struct {
	Text      string            `json:"text"`
	KeyValues map[string]string `json:"key_values"`
}

// BuildSummary keeps the first SummaryTextLimit characters of the content and every key/value
// pair that has a key and a value element, even an empty one. A repeated key keeps its last value.
func BuildSummary(res docintel.Result) Summary {
	text := res.Content
	if runes := []rune(text); len(runes) > SummaryTextLimit {
		text = string(runes[:SummaryTextLimit])
	}
	kv := make(map[string]string, len(res.KeyValuePairs))
	for _, p := range res.KeyValuePairs {
		if p.Key == "" || !p.HasValue {
			continue
		}
		kv[p.Key] = p.Value
	}
	return Summary{Text: text, KeyValues: kv}
}

// ProcessedKey is where the summary of blobName is stored in the processed container.
func ProcessedKey(clientID int64, blobName string) string {
	return "processed/" + strconv.FormatInt(clientID, 10) + "/" + path.Base(blobName) + ".json"
}
