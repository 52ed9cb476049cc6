package object

import (
	"fmt"
	"strings"
)

// ConnectionInfo is the parsed form of a storage connection string
// ("AccountName=...;AccountKey=...;Endpoint=...;Region=...").
type ConnectionInfo struct {
	AccountName string
	AccountKey  string
	Endpoint    string
	Region      string
}

// ParseConnectionString parses semicolon separated key=value pairs. Keys are case-insensitive,
// unknown keys are ignored and BlobEndpoint is accepted as an alias for Endpoint.
func ParseConnectionString(raw string) (ConnectionInfo, error) {
	var info ConnectionInfo
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return ConnectionInfo{}, fmt.Errorf("parse connection string: segment %q has no '='", redactSegment(part))
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "accountname":
			info.AccountName = value
		case "accountkey":
			info.AccountKey = value
		case "endpoint", "blobendpoint":
			info.Endpoint = strings.TrimRight(value, "/")
		case "region":
			info.Region = value
		}
	}
	return info, nil
}

func redactSegment(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
