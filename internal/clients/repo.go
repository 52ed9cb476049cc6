package clients

import "context"

// Repo defines persistence operations for clients.
type Repo interface {
	Create(ctx context.Context, c Client) (Client, error)
	Get(ctx context.Context, id int64) (Client, error)
	List(ctx context.Context) ([]Client, error)
}
