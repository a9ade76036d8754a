package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TransportKind identifies which transport a session was created on.
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportHTTP      TransportKind = "http"
	TransportWebSocket TransportKind = "websocket"
)

// ErrSessionNotFound is returned when a session id has no matching row.
var ErrSessionNotFound = errors.New("store: session not found")

// SessionRow is the persisted form of a Session (spec.md §3), used by the
// stateless-HTTP session persistence requirement of spec.md §4.1: "Sessions
// for stateless HTTP are persisted and periodically swept."
type SessionRow struct {
	ID              string
	Transport       TransportKind
	Capabilities    []byte
	Subscriptions   []byte
	Principal       *string
	ProtocolVersion string
	CreatedAt       time.Time
	LastSeenAt      time.Time
}

// PutSession upserts a session row (insert on connect, update on every touch).
func (s *Store) PutSession(ctx context.Context, row SessionRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_sessions (id, transport, capabilities, subscriptions, principal, protocol_version, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			capabilities = excluded.capabilities,
			subscriptions = excluded.subscriptions,
			principal = excluded.principal,
			protocol_version = excluded.protocol_version,
			last_seen_at = excluded.last_seen_at`,
		row.ID, row.Transport, row.Capabilities, row.Subscriptions, nullableString(row.Principal),
		row.ProtocolVersion, row.CreatedAt, row.LastSeenAt)
	return err
}

// TouchSession updates last_seen_at for a session, used on every request.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE mcp_sessions SET last_seen_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transport, capabilities, subscriptions, principal, protocol_version, created_at, last_seen_at
		FROM mcp_sessions WHERE id = ?`, id)
	var r SessionRow
	var principal sql.NullString
	if err := row.Scan(&r.ID, &r.Transport, &r.Capabilities, &r.Subscriptions, &principal,
		&r.ProtocolVersion, &r.CreatedAt, &r.LastSeenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if principal.Valid {
		r.Principal = &principal.String
	}
	return &r, nil
}

// DeleteSession removes a session row (disconnect, or TTL sweep).
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_sessions WHERE id = ?`, id)
	return err
}

// ListSessions returns every active session, most recently seen first, for
// the session_list tool.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transport, capabilities, subscriptions, principal, protocol_version, created_at, last_seen_at
		FROM mcp_sessions ORDER BY last_seen_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var principal sql.NullString
		if err := rows.Scan(&r.ID, &r.Transport, &r.Capabilities, &r.Subscriptions, &principal,
			&r.ProtocolVersion, &r.CreatedAt, &r.LastSeenAt); err != nil {
			return nil, err
		}
		if principal.Valid {
			r.Principal = &principal.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SweepExpiredSessions deletes every session whose last_seen_at is older
// than ttl and returns the deleted ids, per spec.md §4.1 "Session sweep".
func (s *Store) SweepExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM mcp_sessions WHERE last_seen_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mcp_sessions WHERE last_seen_at < ?`, cutoff); err != nil {
		return nil, err
	}
	return ids, nil
}
