package files

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLRepo implements Repo on database/sql.
type SQLRepo struct {
	DB *sql.DB
}

// Create inserts a file record and returns it with the assigned id.
func (r *SQLRepo) Create(ctx context.Context, f FileRecord) (FileRecord, error) {
	const query = `
INSERT INTO files (client_id, blob_name, size_bytes, content_type, uploaded_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	err := r.DB.QueryRowContext(ctx, query, f.ClientID, f.BlobName, f.SizeBytes, f.ContentType, f.UploadedAt).Scan(&f.ID)
	if err != nil {
		return FileRecord{}, fmt.Errorf("insert file client_id=%d blob=%s: %w", f.ClientID, f.BlobName, err)
	}
	return f, nil
}

// ListByClient returns a client's records oldest first.
func (r *SQLRepo) ListByClient(ctx context.Context, clientID int64) ([]FileRecord, error) {
	const query = `
SELECT id, client_id, blob_name, size_bytes, content_type, uploaded_at
FROM files
WHERE client_id = $1
ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("list files client_id=%d: %w", clientID, err)
	}
	defer rows.Close()

	out := []FileRecord{}
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.ClientID, &f.BlobName, &f.SizeBytes, &f.ContentType, &f.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

var _ Repo = (*SQLRepo)(nil)
