package jobs

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the raw listing from the upstream API.
type Fetcher interface {
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// BlobStore writes output artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// PostingStore persists newly seen postings outside the master file.
type PostingStore interface {
	InsertPostings(ctx context.Context, records []Record) (int64, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
