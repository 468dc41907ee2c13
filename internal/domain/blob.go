package domain

import (
	"context"
	"io"
	"time"
)

// ObjectInfo is one listed object. The S3 snapshot source compares ETag
// (or LastModified when the store returns none) between polls to spot
// rewritten refined snapshots.
type ObjectInfo struct {
	Path         string
	Size         int64
	ETag         string
	LastModified time.Time
}

// BlobReader reads refined snapshot files written by ingestion.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// BlobWriter stores resolver output such as settlement evidence.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// EvidenceArchiver keeps the snapshot that decided a wager next to the
// resolution, for dispute review.
type EvidenceArchiver interface {
	Archive(ctx context.Context, res Resolution, snap GameSnapshot) error
}
