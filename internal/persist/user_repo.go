package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserRow struct {
	UserID       int64
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
	Wins         int
	Losses       int
	Draws        int
	Rating       int
}

// UserStats is the per-user aggregate over finished games.
type UserStats struct {
	Total  int
	Wins   int
	Losses int
	Draws  int
}

// UserRepo is the narrow surface over the users table. Passwords are
// stored as bcrypt hashes; Authenticate does the comparison.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a new user and returns its id. The credential is
// stored as a bcrypt hash; an empty email is stored as NULL.
func (r *UserRepo) Create(ctx context.Context, username, credential, email string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return -1, err
	}
	var emailArg any
	if email != "" {
		emailArg = email
	}
	var id int64
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, email)
		 VALUES ($1, $2, $3) RETURNING user_id`,
		username, string(hash), emailArg,
	).Scan(&id)
	if err != nil {
		r.db.log.Error("create user", zap.Error(err))
		return -1, err
	}
	return id, nil
}

func (r *UserRepo) ByID(ctx context.Context, id int64) (*UserRow, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectUser+`WHERE user_id = $1`, id))
}

func (r *UserRepo) ByUsername(ctx context.Context, name string) (*UserRow, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectUser+`WHERE username = $1`, name))
}

// Authenticate returns the user id when the credential matches the
// stored bcrypt hash, or -1 when the user is unknown or the password
// is wrong.
func (r *UserRepo) Authenticate(ctx context.Context, name, credential string) (int64, error) {
	var id int64
	var hash string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT user_id, password_hash FROM users WHERE username = $1`,
		name,
	).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		r.db.log.Error("authenticate user", zap.Error(err))
		return -1, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) != nil {
		return -1, nil
	}
	return id, nil
}

func (r *UserRepo) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE username = $1`, name,
	).Scan(&n)
	if err != nil {
		r.db.log.Error("user exists", zap.Error(err))
		return false, err
	}
	return n > 0, nil
}

func (r *UserRepo) IncrementWins(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE users SET wins = wins + 1 WHERE user_id = $1`, id)
}

func (r *UserRepo) IncrementLosses(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE users SET losses = losses + 1 WHERE user_id = $1`, id)
}

func (r *UserRepo) IncrementDraws(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE users SET draws = draws + 1 WHERE user_id = $1`, id)
}

func (r *UserRepo) UpdateRating(ctx context.Context, id int64, rating int) error {
	return r.exec(ctx, `UPDATE users SET rating = $2 WHERE user_id = $1`, id, rating)
}

// TopByRating returns up to limit users ordered by rating descending.
func (r *UserRepo) TopByRating(ctx context.Context, limit int) ([]UserRow, error) {
	return r.scanMany(ctx, selectUser+`ORDER BY rating DESC LIMIT $1`, limit)
}

// AllByRating returns every user ordered by rating descending.
func (r *UserRepo) AllByRating(ctx context.Context) ([]UserRow, error) {
	return r.scanMany(ctx, selectUser+`ORDER BY rating DESC`)
}

const selectUser = `SELECT user_id, username, password_hash, COALESCE(email,''),
       created_at, wins, losses, draws, rating
FROM users `

func (r *UserRepo) scanOne(row pgx.Row) (*UserRow, error) {
	u := &UserRow{}
	err := row.Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.Email,
		&u.CreatedAt, &u.Wins, &u.Losses, &u.Draws, &u.Rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.db.log.Error("load user", zap.Error(err))
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) scanMany(ctx context.Context, query string, args ...any) ([]UserRow, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		r.db.log.Error("query users", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []UserRow
	for rows.Next() {
		var u UserRow
		if err := rows.Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.Email,
			&u.CreatedAt, &u.Wins, &u.Losses, &u.Draws, &u.Rating); err != nil {
			r.db.log.Error("scan user", zap.Error(err))
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.Pool.Exec(ctx, query, args...); err != nil {
		r.db.log.Error("exec users", zap.Error(err))
		return err
	}
	return nil
}
