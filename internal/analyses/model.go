package analyses

import "time"

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Job is one asynchronous analysis of an uploaded blob.
type Job struct {
	ID           string     `json:"id"`
	ClientID     int64      `json:"clientId"`
	BlobName     string     `json:"blobName"`
	Status       string     `json:"status"`
	Summary      *Summary   `json:"summary,omitempty"`
	ProcessedKey string     `json:"processedKey,omitempty"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the job can no longer change status.
func (j Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}
