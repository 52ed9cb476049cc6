package files

import "context"

// Repo defines persistence operations for file records.
type Repo interface {
	Create(ctx context.Context, f FileRecord) (FileRecord, error)
	ListByClient(ctx context.Context, clientID int64) ([]FileRecord, error)
}
