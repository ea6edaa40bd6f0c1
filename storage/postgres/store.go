package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/vpnkit/entitlements"
)

// Store persists the entitlement ledger in Postgres. The schema defaults to
// "vpn"; see migrations/postgres for the table definition.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func New(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "vpn"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) table() string { return s.schema + ".entitlements" }

func (s *Store) Get(ctx context.Context, clientID string) (*entitlements.Record, error) {
	var rec entitlements.Record
	err := s.pg.QueryRow(ctx,
		`SELECT client_id, email, expires_at FROM `+s.table()+` WHERE client_id=$1`,
		clientID,
	).Scan(&rec.ClientID, &rec.Email, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get %s: %w", clientID, err)
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return &rec, nil
}

func (s *Store) Upsert(ctx context.Context, rec entitlements.Record) error {
	_, err := s.pg.Exec(ctx,
		`INSERT INTO `+s.table()+` (client_id, email, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (client_id) DO UPDATE SET email=EXCLUDED.email, expires_at=EXCLUDED.expires_at`,
		rec.ClientID, rec.Email, rec.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("pgstore: upsert %s: %w", rec.ClientID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, clientID string) (bool, error) {
	tag, err := s.pg.Exec(ctx, `DELETE FROM `+s.table()+` WHERE client_id=$1`, clientID)
	if err != nil {
		return false, fmt.Errorf("pgstore: delete %s: %w", clientID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Snapshot(ctx context.Context) ([]entitlements.Record, error) {
	rows, err := s.pg.Query(ctx, `SELECT client_id, email, expires_at FROM `+s.table())
	if err != nil {
		return nil, fmt.Errorf("pgstore: snapshot: %w", err)
	}
	defer rows.Close()
	var out []entitlements.Record
	for rows.Next() {
		var rec entitlements.Record
		if err := rows.Scan(&rec.ClientID, &rec.Email, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("pgstore: snapshot scan: %w", err)
		}
		rec.ExpiresAt = rec.ExpiresAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: snapshot rows: %w", err)
	}
	return out, nil
}
