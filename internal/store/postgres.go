package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL as the durable source
// of truth. The engine's persisted unit is one JSON document rather than
// a row per market/trade, so unlike the teacher's columnar NUMERIC
// fields, each section is marshaled to JSON text and cast to JSONB on the
// way in, TEXT on the way out — the same "round-trip through TEXT rather
// than trust the driver's native type" discipline the teacher applies to
// money, applied here to the document as a whole.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store. Callers are
// responsible for having run the schema migration that creates the
// engine_snapshots table (id smallint primary key, markets jsonb,
// accounts jsonb, mapper jsonb, updated_at timestamptz).
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// snapshotRowId is the sole row id this table ever uses. The engine has
// exactly one snapshot, not one per market, so there is nothing to key
// multiple rows on.
const snapshotRowId = 1

func (s *PostgresStore) SaveSnapshot(ctx context.Context, doc Document) error {
	marketsJSON, err := json.Marshal(doc.Markets)
	if err != nil {
		return fmt.Errorf("store: marshal markets: %w", err)
	}
	accountsJSON, err := json.Marshal(doc.Accounts)
	if err != nil {
		return fmt.Errorf("store: marshal accounts: %w", err)
	}
	mapperJSON, err := json.Marshal(doc.Mapper)
	if err != nil {
		return fmt.Errorf("store: marshal mapper: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO engine_snapshots (id, markets, accounts, mapper, updated_at)
		 VALUES ($1, $2::JSONB, $3::JSONB, $4::JSONB, now())
		 ON CONFLICT (id) DO UPDATE SET
		   markets = EXCLUDED.markets,
		   accounts = EXCLUDED.accounts,
		   mapper = EXCLUDED.mapper,
		   updated_at = EXCLUDED.updated_at`,
		snapshotRowId, string(marketsJSON), string(accountsJSON), string(mapperJSON),
	)
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context) (Document, bool, error) {
	var marketsJSON, accountsJSON, mapperJSON string

	err := s.pool.QueryRow(ctx,
		`SELECT markets::TEXT, accounts::TEXT, mapper::TEXT
		 FROM engine_snapshots WHERE id = $1`, snapshotRowId).
		Scan(&marketsJSON, &accountsJSON, &mapperJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("store: load snapshot: %w", err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(marketsJSON), &doc.Markets); err != nil {
		return Document{}, false, fmt.Errorf("store: unmarshal markets: %w", err)
	}
	if err := json.Unmarshal([]byte(accountsJSON), &doc.Accounts); err != nil {
		return Document{}, false, fmt.Errorf("store: unmarshal accounts: %w", err)
	}
	if err := json.Unmarshal([]byte(mapperJSON), &doc.Mapper); err != nil {
		return Document{}, false, fmt.Errorf("store: unmarshal mapper: %w", err)
	}

	return doc, true, nil
}
