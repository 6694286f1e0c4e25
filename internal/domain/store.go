package domain

import (
	"context"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for journal queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventJournal is the durable, append-only record of emitted events that
// off-chain consumers index.
type EventJournal interface {
	Append(ctx context.Context, ev Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	ListByType(ctx context.Context, t EventType, opts ListOpts) ([]Event, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CandidateSource supplies candidate-solver lists for auction settlement,
// typically by indexing bid_revealed events.
type CandidateSource interface {
	RevealedSolvers(ctx context.Context, auctionID uint64) ([]common.Address, error)
}

// StreamMessage is one entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// StreamBus fans events out to live consumers: ephemeral pub/sub for the
// WebSocket feed and durable streams for indexers that replay.
type StreamBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides distributed mutual exclusion. Acquire returns
// ErrLockHeld immediately when the lock is taken; it never blocks.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter persists archive objects.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo describes a stored archive object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// BlobReader retrieves and lists archive objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}
