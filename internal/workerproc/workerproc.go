package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"intake-portal/internal/analyses"
	"intake-portal/internal/queue"
	"intake-portal/internal/shared/telemetry"
)

// Body identifies a raw queue payload in logs without printing it.
type Body struct {
	Len    int
	SHA256 string
}

// Fingerprint returns the length and SHA-256 of body.
func Fingerprint(body string) Body {
	if body == "" {
		return Body{}
	}
	sum := sha256.Sum256([]byte(body))
	return Body{Len: len(body), SHA256: hex.EncodeToString(sum[:])}
}

// Reasons a payload is rejected before any job runs.
const (
	ReasonEmpty     = "empty_body"
	ReasonDecode    = "decode"
	ReasonNoJobID   = "missing_analysis_id"
	reasonUnhandled = "unhandled"
)

// BadMessageError is a payload that can never be processed. It is always dropped.
type BadMessageError struct {
	Reason string
	Body   Body
	Err    error
}

func (e *BadMessageError) Error() string {
	if e.Err == nil {
		return "bad analysis message: " + e.Reason
	}
	return "bad analysis message: " + e.Reason + ": " + e.Err.Error()
}

func (e *BadMessageError) Unwrap() error { return e.Err }

// JobError is a failure while running a decoded job. Drop is set when delivering the same message
// again cannot help, such as a job that no longer exists.
type JobError struct {
	AnalysisID string
	RequestID  string
	Drop       bool
	Err        error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("analysis %s: %v", e.AnalysisID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Decode validates a queue payload.
func Decode(body string) (queue.Message, error) {
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, &BadMessageError{Reason: ReasonEmpty}
	}
	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, &BadMessageError{Reason: ReasonDecode, Body: Fingerprint(body), Err: err}
	}
	if strings.TrimSpace(msg.AnalysisID) == "" {
		return msg, &BadMessageError{Reason: ReasonNoJobID, Body: Fingerprint(body)}
	}
	return msg, nil
}

// Processor runs one analysis job; *analyses.Service satisfies it.
type Processor interface {
	Process(ctx context.Context, analysisID string) error
}

// Handler adapts a Processor to queue.Handler.
func Handler(p Processor) queue.Handler {
	return func(ctx context.Context, body string) error {
		msg, err := Decode(body)
		if err != nil {
			return err
		}
		return Run(ctx, p, msg)
	}
}

// Run processes a decoded message under its request id.
func Run(ctx context.Context, p Processor, msg queue.Message) error {
	if p == nil {
		return &BadMessageError{Reason: reasonUnhandled, Err: errors.New("analysis service not configured")}
	}
	if err := p.Process(telemetry.WithRequestID(ctx, msg.RequestID), msg.AnalysisID); err != nil {
		return &JobError{
			AnalysisID: msg.AnalysisID,
			RequestID:  msg.RequestID,
			Drop:       errors.Is(err, analyses.ErrNotFound),
			Err:        err,
		}
	}
	return nil
}

// Retryable reports whether a failed message should be delivered again.
func Retryable(err error) bool {
	var job *JobError
	if errors.As(err, &job) {
		return !job.Drop
	}
	return false
}
