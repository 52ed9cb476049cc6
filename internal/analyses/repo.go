package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analysis jobs. Every status change is conditional on
// the current status and returns ErrInvalidTransition when the job is in the wrong state.
type Repo interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	ListByClient(ctx context.Context, clientID int64, limit int) ([]Job, error)
	// MarkProcessing moves queued -> processing.
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	// Complete moves processing -> completed.
	Complete(ctx context.Context, id string, summary Summary, processedKey string, completedAt time.Time) error
	// Fail moves queued|processing -> failed.
	Fail(ctx context.Context, id, code, message string, completedAt time.Time) error
	// Cancel moves queued|processing -> canceled.
	Cancel(ctx context.Context, id string, completedAt time.Time) error
	// FailUnfinished fails every queued or processing job and returns how many changed.
	FailUnfinished(ctx context.Context, code, message string, completedAt time.Time) (int64, error)
}
