package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// EventJournal implements domain.EventJournal using PostgreSQL. It is the
// durable record behind the live feed: indexers that miss stream messages
// replay from here.
type EventJournal struct {
	pool *pgxpool.Pool
}

var _ domain.EventJournal = (*EventJournal)(nil)
var _ domain.CandidateSource = (*EventJournal)(nil)

// NewEventJournal creates an EventJournal backed by the given connection pool.
func NewEventJournal(pool *pgxpool.Pool) *EventJournal {
	return &EventJournal{pool: pool}
}

// Append inserts one event. The fields map is stored as JSONB.
func (s *EventJournal) Append(ctx context.Context, ev domain.Event) error {
	fieldsJSON, err := json.Marshal(ev.Fields)
	if err != nil {
		return fmt.Errorf("postgres: marshal event fields: %w", err)
	}

	const query = `INSERT INTO events (id, type, fields, at) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, ev.ID, string(ev.Type), fieldsJSON, ev.At); err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.Type, err)
	}
	return nil
}

// List returns events with pagination and optional time filtering, newest
// first.
func (s *EventJournal) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	return s.list(ctx, "", opts)
}

// ListByType is List restricted to a single event type.
func (s *EventJournal) ListByType(ctx context.Context, t domain.EventType, opts domain.ListOpts) ([]domain.Event, error) {
	return s.list(ctx, t, opts)
}

func (s *EventJournal) list(ctx context.Context, t domain.EventType, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT id, type, fields, at FROM events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if t != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(t))
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListBefore returns up to limit events older than cutoff, oldest first, for
// the archiver to drain in stable batches.
func (s *EventJournal) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Event, error) {
	const query = `SELECT id, type, fields, at FROM events WHERE at < $1 ORDER BY at ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DeleteBefore prunes events older than cutoff and reports how many rows
// were removed.
func (s *EventJournal) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// RevealedSolvers implements domain.CandidateSource: every solver with a
// recorded bid_revealed event for the auction. This is the indexer-supplied
// candidate list consumed at settlement.
func (s *EventJournal) RevealedSolvers(ctx context.Context, auctionID uint64) ([]common.Address, error) {
	const query = `
		SELECT DISTINCT fields->>'solver'
		FROM events
		WHERE type = $1 AND (fields->>'auction_id')::BIGINT = $2`
	rows, err := s.pool.Query(ctx, query, string(domain.EventBidRevealed), int64(auctionID))
	if err != nil {
		return nil, fmt.Errorf("postgres: revealed solvers for auction %d: %w", auctionID, err)
	}
	defer rows.Close()

	var solvers []common.Address
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("postgres: scan solver: %w", err)
		}
		solvers = append(solvers, common.HexToAddress(hex))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: revealed solvers rows: %w", err)
	}
	return solvers, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows rowScanner) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			ev         domain.Event
			typ        string
			fieldsJSON []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &fieldsJSON, &ev.At); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Type = domain.EventType(typ)
		if fieldsJSON != nil {
			if err := json.Unmarshal(fieldsJSON, &ev.Fields); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event fields: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
