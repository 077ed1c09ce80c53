package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"restakeLedger/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	sequence BIGINT PRIMARY KEY,
	kind TEXT NOT NULL,
	ts BIGINT NOT NULL,
	staker TEXT,
	operator TEXT,
	authority TEXT,
	pool TEXT,
	amount NUMERIC(78, 0),
	forfeited BOOLEAN NOT NULL DEFAULT false,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pools (
	asset TEXT PRIMARY KEY,
	weight NUMERIC(20, 0) NOT NULL,
	total_shares NUMERIC(78, 0) NOT NULL,
	forfeited NUMERIC(78, 0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS staker_shares (
	staker TEXT NOT NULL,
	pool TEXT NOT NULL,
	shares NUMERIC(78, 0) NOT NULL,
	PRIMARY KEY (staker, pool)
);
CREATE TABLE IF NOT EXISTS delegations (
	staker TEXT PRIMARY KEY,
	operator TEXT NOT NULL,
	pending_ready_at BIGINT
);
CREATE TABLE IF NOT EXISTS operators (
	operator TEXT PRIMARY KEY,
	registered BOOLEAN NOT NULL,
	unbonding_secs BIGINT NOT NULL,
	slashed_at BIGINT,
	authorities TEXT[] NOT NULL
);
CREATE TABLE IF NOT EXISTS operator_shares (
	operator TEXT NOT NULL,
	pool TEXT NOT NULL,
	shares NUMERIC(78, 0) NOT NULL,
	PRIMARY KEY (operator, pool)
);
CREATE TABLE IF NOT EXISTS ledger_state (
	name TEXT PRIMARY KEY,
	last_sequence BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for the event journal and snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// InsertEvents appends events; rows already stored under the same sequence are kept.
func (s *Store) InsertEvents(ctx context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		row, err := eventRow(ev)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO ledger_events (
				sequence, kind, ts, staker, operator, authority, pool, amount, forfeited, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10, now())
			ON CONFLICT (sequence) DO NOTHING
		`, row...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertSnapshot replaces the materialized ledger tables with snap in one transaction.
func (s *Store) UpsertSnapshot(ctx context.Context, snap model.LedgerSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, table := range []string{"staker_shares", "operator_shares", "delegations", "operators"} {
		batch.Queue(`DELETE FROM ` + table)
	}
	for _, p := range snap.Pools {
		batch.Queue(`
			INSERT INTO pools (asset, weight, total_shares, forfeited, updated_at)
			VALUES ($1, $2::text::numeric, $3::text::numeric, $4::text::numeric, now())
			ON CONFLICT (asset)
			DO UPDATE SET
				weight = EXCLUDED.weight,
				total_shares = EXCLUDED.total_shares,
				forfeited = EXCLUDED.forfeited,
				updated_at = now()
		`, p.Asset, strconv.FormatUint(p.Weight, 10), p.TotalShares, p.Forfeited)
	}
	for _, st := range snap.Stakers {
		for _, pos := range st.Positions {
			batch.Queue(`INSERT INTO staker_shares (staker, pool, shares) VALUES ($1, $2, $3::text::numeric)`,
				st.Staker, pos.Pool, pos.Shares)
		}
		if st.Delegate == "" && st.Pending == nil {
			continue
		}
		var readyAt *int64
		if st.Pending != nil {
			readyAt = &st.Pending.ReadyAt
		}
		batch.Queue(`INSERT INTO delegations (staker, operator, pending_ready_at) VALUES ($1, $2, $3)`,
			st.Staker, st.Delegate, readyAt)
	}
	for _, op := range snap.Operators {
		op := op // per-iteration copy: &op.SlashedAt is queued and read at SendBatch
		var slashedAt *int64
		if op.Slashed {
			slashedAt = &op.SlashedAt
		}
		authorities := op.Authorities
		if authorities == nil {
			authorities = []string{}
		}
		batch.Queue(`
			INSERT INTO operators (operator, registered, unbonding_secs, slashed_at, authorities)
			VALUES ($1, $2, $3, $4, $5)
		`, op.Operator, op.Registered, op.UnbondingSecs, slashedAt, authorities)
		for _, pos := range op.Positions {
			batch.Queue(`INSERT INTO operator_shares (operator, pool, shares) VALUES ($1, $2, $3::text::numeric)`,
				op.Operator, pos.Pool, pos.Shares)
		}
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("snapshot statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LoadState returns the last persisted sequence for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq int64
	row := s.pool.QueryRow(ctx, `SELECT last_sequence FROM ledger_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(seq), true, nil
}

// SaveState upserts the last persisted sequence for a name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_state (name, last_sequence, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_sequence = EXCLUDED.last_sequence, updated_at = now()
	`, name, int64(seq))
	return err
}
