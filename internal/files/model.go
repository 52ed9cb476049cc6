package files

import (
	"errors"
	"time"

	"intake-portal/internal/shared/storage/object"
)

var ErrInvalidInput = errors.New("invalid file input")

// FileRecord is the metadata row written for every successful upload.
type FileRecord struct {
	ID          int64     `json:"id"`
	ClientID    int64     `json:"clientId"`
	BlobName    string    `json:"blobName"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Link pairs a record with a freshly minted download link.
type Link struct {
	File FileRecord       `json:"file"`
	URL  object.SignedURL `json:"link"`
}
