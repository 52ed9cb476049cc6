package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"intake-portal/internal/clients"
	"intake-portal/internal/shared/metrics"
	"intake-portal/internal/shared/storage/object"
	"intake-portal/internal/shared/telemetry"
	"intake-portal/internal/shared/util"
)

// ClientLookup resolves client ids; *clients.Service satisfies it.
type ClientLookup interface {
	Get(ctx context.Context, id int64) (clients.Client, error)
}

// Service stores client uploads and mints download links for them.
type Service struct {
	Repo      Repo
	Clients   ClientLookup
	Store     object.Store
	Container string
	LinkTTL   time.Duration
	Now       func() time.Time
}

// BlobName returns the storage key for a client's file.
func BlobName(clientID int64, fileName string) string {
	return strconv.FormatInt(clientID, 10) + "/" + fileName
}

// Upload writes r to the incoming container at {clientID}/{fileName}, overwriting any previous
// object with that key, and appends a FileRecord. If the record cannot be written the blob stays
// in storage.
func (s *Service) Upload(ctx context.Context, clientID int64, fileName, contentType string, r io.Reader) (FileRecord, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return FileRecord{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.Clients.Get(ctx, clientID); err != nil {
		return FileRecord{}, err
	}

	blobName := BlobName(clientID, name)
	size, err := s.Store.Put(ctx, s.Container, blobName, contentType, r)
	if err != nil {
		return FileRecord{}, fmt.Errorf("store upload blob=%s: %w", blobName, err)
	}

	rec, err := s.Repo.Create(ctx, FileRecord{
		ClientID:    clientID,
		BlobName:    blobName,
		SizeBytes:   size,
		ContentType: contentType,
		UploadedAt:  s.now(),
	})
	if err != nil {
		telemetry.Error("files.upload.orphaned_blob", map[string]any{
			"client_id": clientID,
			"blob_name": blobName,
			"error":     err,
		})
		return FileRecord{}, err
	}

	metrics.IncUploads()
	telemetry.Info("files.upload.ok", map[string]any{
		"client_id":  clientID,
		"blob_name":  blobName,
		"size_bytes": size,
	})
	return rec, nil
}

// ListLinks returns every file of an existing client with a read-only link valid for LinkTTL.
func (s *Service) ListLinks(ctx context.Context, clientID int64) ([]Link, error) {
	if _, err := s.Clients.Get(ctx, clientID); err != nil {
		return nil, err
	}
	records, err := s.Repo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	links := make([]Link, 0, len(records))
	for _, rec := range records {
		u, err := s.Store.SignedURL(ctx, s.Container, rec.BlobName, s.ttl())
		if err != nil {
			if errors.Is(err, object.ErrSigningKeyUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("sign blob=%s: %w", rec.BlobName, err)
		}
		links = append(links, Link{File: rec, URL: u})
	}
	metrics.AddSignedLinks(len(links))
	return links, nil
}

func (s *Service) ttl() time.Duration {
	if s.LinkTTL > 0 {
		return s.LinkTTL
	}
	return time.Hour
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
