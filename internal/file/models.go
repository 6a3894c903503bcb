package file

import (
	"time"

	id "frametruth/pkg/domain"
)

// File is the metadata record for one piece of stored evidence. The
// SHA-256 fingerprint is computed once at upload and pinned here; the
// content itself lives in the blob store under StorageRef.
type File struct {
	ID         id.FileID
	OwnerID    id.UserID
	Filename   string
	StorageRef string
	Size       int64
	MimeType   string
	SHA256     string
	CreatedAt  time.Time
}

// Stats summarizes the evidence corpus for the admin dashboard.
type Stats struct {
	TotalFiles int64
	TotalBytes int64
}
