package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type SessionRow struct {
	SessionID    string
	UserID       int64
	LoginTime    time.Time
	LastActivity time.Time
	IP           string
}

// SessionRepo is the narrow surface over the active_sessions table.
// The table holds at most one row per user; Create enforces that by
// deleting any prior row inside the same transaction.
type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create installs a fresh session row for the user, superseding any
// existing one atomically.
func (r *SessionRepo) Create(ctx context.Context, token string, userID int64, ip string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		r.db.log.Error("create session: begin", zap.Error(err))
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM active_sessions WHERE user_id = $1`, userID,
	); err != nil {
		r.db.log.Error("create session: delete prior", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO active_sessions (session_id, user_id, login_time, last_activity, ip_address)
		 VALUES ($1, $2, NOW(), NOW(), $3)`,
		token, userID, ip,
	); err != nil {
		r.db.log.Error("create session: insert", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	return tx.Commit(ctx)
}

// Verify reports whether the token exists. The database is the
// authority; the in-memory cache defers to this answer.
func (r *SessionRepo) Verify(ctx context.Context, token string) (bool, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM active_sessions WHERE session_id = $1`, token,
	).Scan(&n)
	if err != nil {
		r.db.log.Error("verify session", zap.Error(err))
		return false, err
	}
	return n > 0, nil
}

// Touch refreshes last_activity to now.
func (r *SessionRepo) Touch(ctx context.Context, token string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE active_sessions SET last_activity = NOW() WHERE session_id = $1`, token)
	if err != nil {
		r.db.log.Error("touch session", zap.Error(err))
	}
	return err
}

func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM active_sessions WHERE session_id = $1`, token)
	if err != nil {
		r.db.log.Error("delete session", zap.Error(err))
	}
	return err
}

func (r *SessionRepo) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM active_sessions WHERE user_id = $1`, userID)
	if err != nil {
		r.db.log.Error("delete session by user", zap.Int64("user_id", userID), zap.Error(err))
	}
	return err
}

// Cleanup deletes sessions idle longer than timeout and returns how
// many rows were removed.
func (r *SessionRepo) Cleanup(ctx context.Context, timeout time.Duration) (int, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM active_sessions
		 WHERE EXTRACT(EPOCH FROM (NOW() - last_activity)) > $1`,
		timeout.Seconds(),
	)
	if err != nil {
		r.db.log.Error("cleanup sessions", zap.Error(err))
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *SessionRepo) HasActive(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM active_sessions WHERE user_id = $1`, userID,
	).Scan(&n)
	if err != nil {
		r.db.log.Error("has active session", zap.Int64("user_id", userID), zap.Error(err))
		return false, err
	}
	return n > 0, nil
}

// TokenByUser returns the user's session token, or "" when none exists.
func (r *SessionRepo) TokenByUser(ctx context.Context, userID int64) (string, error) {
	var token string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT session_id FROM active_sessions WHERE user_id = $1`, userID,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		r.db.log.Error("token by user", zap.Int64("user_id", userID), zap.Error(err))
		return "", err
	}
	return token, nil
}

func (r *SessionRepo) Info(ctx context.Context, token string) (*SessionRow, error) {
	s := &SessionRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT session_id, user_id, login_time, last_activity, COALESCE(ip_address,'')
		 FROM active_sessions WHERE session_id = $1`, token,
	).Scan(&s.SessionID, &s.UserID, &s.LoginTime, &s.LastActivity, &s.IP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.db.log.Error("session info", zap.Error(err))
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM active_sessions`).Scan(&n)
	if err != nil {
		r.db.log.Error("count sessions", zap.Error(err))
		return 0, err
	}
	return n, nil
}
