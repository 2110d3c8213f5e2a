package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/tripcents/authcore/pgpool"
)

// Schema is the DDL for the sessions table. Applied idempotently by
// [PGStore.EnsureSchema].
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id   text PRIMARY KEY,
	user_id      text NOT NULL,
	login_type   text NOT NULL,
	refresh_hash bytea NOT NULL,
	created_at   timestamptz NOT NULL,
	last_seen_at timestamptz NOT NULL,
	expires_at   timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id);
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
`

const sessionColumns = "session_id, user_id, login_type, refresh_hash, created_at, last_seen_at, expires_at"

// PGStore is the SQL-backed [Store]. Every call leases one pooled
// connection for its duration; a connection that errors during use is
// discarded rather than returned.
type PGStore struct {
	pool *pgpool.Pool
	log  zerolog.Logger
}

// NewPGStore creates a [PGStore] over the given pool.
func NewPGStore(pool *pgpool.Pool, log zerolog.Logger) *PGStore {
	return &PGStore{pool: pool, log: log}
}

// EnsureSchema applies the sessions DDL.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	return s.withConn(ctx, func(conn pgpool.Conn) error {
		_, err := conn.Exec(ctx, Schema)
		return err
	})
}

// Create persists a new session row.
func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	return s.withConn(ctx, func(conn pgpool.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sess.SessionID, sess.UserID, string(sess.LoginType), sess.RefreshHash[:],
			sess.CreatedAt, sess.LastSeenAt, sess.ExpiresAt,
		)
		return err
	})
}

// Get returns a live session or [ErrNotFound].
func (s *PGStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	var sess *Session
	err := s.withConn(ctx, func(conn pgpool.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1 AND expires_at > now()`,
			sessionID,
		)
		var scanErr error
		sess, scanErr = scanSession(row)
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// TouchLastSeen updates LastSeenAt and returns current metadata in one
// round trip. Expired and absent sessions are indistinguishable.
func (s *PGStore) TouchLastSeen(ctx context.Context, sessionID string) (*Session, error) {
	var sess *Session
	err := s.withConn(ctx, func(conn pgpool.Conn) error {
		row := conn.QueryRow(ctx,
			`UPDATE sessions SET last_seen_at = now()
			 WHERE session_id = $1 AND expires_at > now()
			 RETURNING `+sessionColumns,
			sessionID,
		)
		var scanErr error
		sess, scanErr = scanSession(row)
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Invalidate destroys a session. Idempotent.
func (s *PGStore) Invalidate(ctx context.Context, sessionID string) error {
	return s.withConn(ctx, func(conn pgpool.Conn) error {
		_, err := conn.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
		return err
	})
}

// InvalidateAllForUser destroys every session owned by a user.
func (s *PGStore) InvalidateAllForUser(ctx context.Context, userID string) (int, error) {
	var removed int
	err := s.withConn(ctx, func(conn pgpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
		if err != nil {
			return err
		}
		removed = int(tag.RowsAffected())
		return nil
	})
	return removed, err
}

// SessionIDsForUser lists live session IDs owned by a user.
func (s *PGStore) SessionIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.withConn(ctx, func(conn pgpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT session_id FROM sessions WHERE user_id = $1 AND expires_at > now()`,
			userID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RotateRefreshHash is a single conditional UPDATE: exactly one of N
// concurrent rotations with the same provided digest can win. A mismatch
// against a live session destroys it and reports replay.
func (s *PGStore) RotateRefreshHash(ctx context.Context, sessionID string, provided, next [32]byte, extendTo time.Time) (*Session, error) {
	var sess *Session
	err := s.withConn(ctx, func(conn pgpool.Conn) error {
		var row pgx.Row
		if extendTo.IsZero() {
			row = conn.QueryRow(ctx,
				`UPDATE sessions SET refresh_hash = $2, last_seen_at = now()
				 WHERE session_id = $1 AND refresh_hash = $3 AND expires_at > now()
				 RETURNING `+sessionColumns,
				sessionID, next[:], provided[:],
			)
		} else {
			row = conn.QueryRow(ctx,
				`UPDATE sessions SET refresh_hash = $2, last_seen_at = now(), expires_at = $4
				 WHERE session_id = $1 AND refresh_hash = $3 AND expires_at > now()
				 RETURNING `+sessionColumns,
				sessionID, next[:], provided[:], extendTo,
			)
		}

		var scanErr error
		sess, scanErr = scanSession(row)
		if scanErr == nil {
			return nil
		}
		if !errors.Is(scanErr, ErrNotFound) {
			return scanErr
		}

		// Lost the CAS. Classify: absent/expired session vs. replay of an
		// already-rotated token against a live session.
		var live bool
		check := conn.QueryRow(ctx,
			`SELECT expires_at > now() FROM sessions WHERE session_id = $1`,
			sessionID,
		)
		if err := check.Scan(&live); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !live {
			return ErrNotFound
		}

		// Replay detected: the whole refresh chain is compromised, destroy
		// the session so the stolen successor stops working too.
		if _, err := conn.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		return ErrRefreshHashMismatch
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// DeleteExpired removes expired session rows.
func (s *PGStore) DeleteExpired(ctx context.Context) (int, error) {
	var removed int
	err := s.withConn(ctx, func(conn pgpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
		if err != nil {
			return err
		}
		removed = int(tag.RowsAffected())
		return nil
	})
	return removed, err
}

// Ping round-trips the backing store through the pool.
func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// withConn leases a connection for one store call. Sentinel results pass
// through untouched; infrastructure errors discard the lease and surface
// as [ErrStoreUnavailable] so the engine can fail closed.
func (s *PGStore) withConn(ctx context.Context, fn func(pgpool.Conn) error) error {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	err = fn(lease.Conn())
	switch {
	case err == nil,
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrRefreshHashMismatch):
		lease.Release()
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		lease.Discard()
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		lease.Discard()
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess      Session
		loginType string
		hash      []byte
	)
	err := row.Scan(&sess.SessionID, &sess.UserID, &loginType, &hash,
		&sess.CreatedAt, &sess.LastSeenAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess.LoginType = LoginType(loginType)
	copy(sess.RefreshHash[:], hash)
	return &sess, nil
}
