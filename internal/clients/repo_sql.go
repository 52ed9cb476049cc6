package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLRepo implements Repo on database/sql. Queries run unchanged on SQLite and Postgres.
type SQLRepo struct {
	DB *sql.DB
}

// Create inserts a client and returns it with the assigned id.
func (r *SQLRepo) Create(ctx context.Context, c Client) (Client, error) {
	const query = `
INSERT INTO clients (name, case_id, email, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`
	if err := r.DB.QueryRowContext(ctx, query, c.Name, c.CaseID, c.Email, c.CreatedAt).Scan(&c.ID); err != nil {
		return Client{}, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

// Get fetches a client by id.
func (r *SQLRepo) Get(ctx context.Context, id int64) (Client, error) {
	const query = `
SELECT id, name, case_id, email, created_at
FROM clients
WHERE id = $1`
	var c Client
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.CaseID, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, fmt.Errorf("get client id=%d: %w", id, err)
	}
	return c, nil
}

// List returns every client ordered by id.
func (r *SQLRepo) List(ctx context.Context) ([]Client, error) {
	const query = `
SELECT id, name, case_id, email, created_at
FROM clients
ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	out := []Client{}
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.CaseID, &c.Email, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Repo = (*SQLRepo)(nil)
