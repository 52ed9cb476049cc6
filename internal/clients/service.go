package clients

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"intake-portal/internal/shared/telemetry"
)

// Service contains business logic for the client roster.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

// Add records a new client. Empty strings are accepted; duplicates are allowed.
func (s *Service) Add(ctx context.Context, name, caseID, email string) (Client, error) {
	c, err := s.Repo.Create(ctx, Client{
		Name:      name,
		CaseID:    caseID,
		Email:     email,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Client{}, err
	}
	telemetry.Info("clients.added", map[string]any{"client_id": c.ID})
	return c, nil
}

// Get returns a client or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (Client, error) {
	return s.Repo.Get(ctx, id)
}

// List returns the full roster.
func (s *Service) List(ctx context.Context) ([]Client, error) {
	return s.Repo.List(ctx)
}

// ParseID parses a client id form value.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: client_id must be a positive integer", ErrInvalidInput)
	}
	return id, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
