// Package docintel defines the document analysis contract: extracted text plus key/value pairs.
package docintel

import (
	"context"
	"fmt"
)

// KeyValue is one extracted field. HasValue is false when the analyzer found a label with no value
// element; a present value may still be empty.
type KeyValue struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	HasValue bool   `json:"hasValue"`
}

// Result is the outcome of analyzing one document.
type Result struct {
	Content       string     `json:"content"`
	KeyValuePairs []KeyValue `json:"keyValuePairs"`
}

// Analyzer extracts text and key/value pairs from a document.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, contentType string) (Result, error)
}

// ServiceError reports a rejected or failed call to a remote analysis service.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("document analysis failed status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("document analysis failed status=%d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the call may succeed if repeated.
func (e *ServiceError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
