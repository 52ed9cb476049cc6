package clients

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("client not found")
	ErrInvalidInput = errors.New("invalid client input")
)

// Client is a person or company the firm represents. Clients are never updated or deleted.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CaseID    string    `json:"caseId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
