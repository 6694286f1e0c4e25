package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// archiveBatchSize bounds how many events one archive object holds. Large
// backlogs drain across several Archive calls.
const archiveBatchSize = 10_000

// Archiver drains old events out of the journal into JSON-lines objects in
// S3 and prunes the journal afterwards. Pruning only happens once the
// uploaded object is confirmed to exist, so a failed upload never loses
// events.
type Archiver struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	journal domain.EventJournal
	logger  *slog.Logger
}

// NewArchiver creates an Archiver over the given journal and blob store.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, journal domain.EventJournal, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		reader:  reader,
		journal: journal,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// Archive moves events older than the cutoff into S3 and deletes them from
// the journal. It returns how many events were archived. A second call with
// the same cutoff is a no-op once the backlog has drained.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for {
		events, err := a.journal.ListBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(events)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		// Key on the batch's last event so successive batches land in
		// distinct objects.
		path := archivePath(events[len(events)-1].At)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		ok, err := a.reader.Exists(ctx, path)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive verify: %w", err)
		}
		if !ok {
			return total, fmt.Errorf("s3blob: archive object %s missing after upload", path)
		}

		cutoff := events[len(events)-1].At.Add(time.Nanosecond)
		if cutoff.After(before) {
			cutoff = before
		}
		deleted, err := a.journal.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive prune: %w", err)
		}

		total += int64(len(events))
		a.logger.Info("archived events",
			slog.String("path", path),
			slog.Int("count", len(events)),
			slog.Int64("pruned", deleted))

		if len(events) < archiveBatchSize {
			return total, nil
		}
	}
}

// archivePath builds the S3 key for an archive object, partitioned by day:
//
//	archive/events/2026-08-30/1756500000000000000.jsonl
func archivePath(last time.Time) string {
	return fmt.Sprintf("archive/events/%s/%d.jsonl", last.Format("2006-01-02"), last.UnixNano())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
