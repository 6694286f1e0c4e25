package s3blob

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

type memJournal struct {
	events []domain.Event
}

func (j *memJournal) Append(_ context.Context, ev domain.Event) error {
	j.events = append(j.events, ev)
	return nil
}

func (j *memJournal) List(_ context.Context, _ domain.ListOpts) ([]domain.Event, error) {
	return j.events, nil
}

func (j *memJournal) ListByType(_ context.Context, t domain.EventType, _ domain.ListOpts) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range j.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (j *memJournal) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range j.events {
		if ev.At.Before(cutoff) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].At.Before(out[b].At) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *memJournal) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.Event
	var deleted int64
	for _, ev := range j.events {
		if ev.At.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	j.events = kept
	return deleted, nil
}

type memBlob struct {
	objects map[string][]byte
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte)}
}

func (b *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = buf
	return nil
}

func (b *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	buf, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(buf))), nil
}

func (b *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, buf := range b.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(buf))})
		}
	}
	return infos, nil
}

func (b *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveDrainsOldEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	journal := &memJournal{}
	for i := 0; i < 5; i++ {
		ev := domain.NewEvent(domain.EventIntentResolved, map[string]any{"n": i})
		ev.At = now.Add(time.Duration(i-10) * time.Hour) // all old
		journal.events = append(journal.events, ev)
	}
	fresh := domain.NewEvent(domain.EventIntentSubmitted, nil)
	fresh.At = now.Add(time.Hour)
	journal.events = append(journal.events, fresh)

	blob := newMemBlob()
	a := NewArchiver(blob, blob, journal, testLogger())

	count, err := a.Archive(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("archived %d events, want 5", count)
	}
	if len(journal.events) != 1 {
		t.Errorf("journal holds %d events, want only the fresh one", len(journal.events))
	}

	infos, err := blob.List(ctx, "archive/events/")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d archive objects, want 1", len(infos))
	}
	// Five JSON lines in the object.
	buf := blob.objects[infos[0].Path]
	if lines := strings.Count(string(buf), "\n"); lines != 5 {
		t.Errorf("archive object holds %d lines, want 5", lines)
	}

	// Nothing left to drain.
	count, err = a.Archive(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("second archive moved %d events, want 0", count)
	}
}
