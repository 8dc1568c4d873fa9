package persist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type GameRow struct {
	GameID    int64
	WhiteID   int64
	BlackID   int64
	WhiteName string
	BlackName string
	Result    string // empty until the game ends
	Moves     string // JSON array of move tokens
	StartTime time.Time
	EndTime   *time.Time
	Duration  *int // seconds
}

// GameRepo is the narrow surface over the game_history table. A row is
// created at match start with an empty move log and finalized once when
// the game ends.
type GameRepo struct {
	db *DB
}

func NewGameRepo(db *DB) *GameRepo {
	return &GameRepo{db: db}
}

// Create allocates a game row for the two players and returns its id.
func (r *GameRepo) Create(ctx context.Context, whiteID, blackID int64) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO game_history (white_player_id, black_player_id, moves, start_time)
		 VALUES ($1, $2, '[]', NOW()) RETURNING game_id`,
		whiteID, blackID,
	).Scan(&id)
	if err != nil {
		r.db.log.Error("create game", zap.Error(err))
		return -1, err
	}
	return id, nil
}

// AppendMove appends one move token to the stored JSON array. The
// read-modify-write runs in a single transaction.
func (r *GameRepo) AppendMove(ctx context.Context, gameID int64, move string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		r.db.log.Error("append move: begin", zap.Error(err))
		return err
	}
	defer tx.Rollback(ctx)

	var movesJSON string
	if err := tx.QueryRow(ctx,
		`SELECT moves FROM game_history WHERE game_id = $1 FOR UPDATE`, gameID,
	).Scan(&movesJSON); err != nil {
		r.db.log.Error("append move: load", zap.Int64("game_id", gameID), zap.Error(err))
		return err
	}

	var moves []string
	if err := json.Unmarshal([]byte(movesJSON), &moves); err != nil {
		moves = nil
	}
	moves = append(moves, move)
	updated, err := json.Marshal(moves)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE game_history SET moves = $2 WHERE game_id = $1`,
		gameID, string(updated),
	); err != nil {
		r.db.log.Error("append move: update", zap.Int64("game_id", gameID), zap.Error(err))
		return err
	}
	return tx.Commit(ctx)
}

// End finalizes the row: result, full move log, end time, and duration
// in seconds since start_time.
func (r *GameRepo) End(ctx context.Context, gameID int64, result, movesJSON string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE game_history
		 SET result = $2, moves = $3, end_time = NOW(),
		     duration = EXTRACT(EPOCH FROM (NOW() - start_time))::INT
		 WHERE game_id = $1`,
		gameID, result, movesJSON,
	)
	if err != nil {
		r.db.log.Error("end game", zap.Int64("game_id", gameID), zap.Error(err))
	}
	return err
}

func (r *GameRepo) ByID(ctx context.Context, gameID int64) (*GameRow, error) {
	row := r.db.Pool.QueryRow(ctx, selectGame+`WHERE g.game_id = $1`, gameID)
	g, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.db.log.Error("load game", zap.Int64("game_id", gameID), zap.Error(err))
		return nil, err
	}
	return g, nil
}

// ByUser returns the user's most recent games, newest first.
func (r *GameRepo) ByUser(ctx context.Context, userID int64, limit int) ([]GameRow, error) {
	return r.scanMany(ctx,
		selectGame+`WHERE g.white_player_id = $1 OR g.black_player_id = $1
		 ORDER BY g.start_time DESC LIMIT $2`, userID, limit)
}

// Recent returns the most recently started games across all users.
func (r *GameRepo) Recent(ctx context.Context, limit int) ([]GameRow, error) {
	return r.scanMany(ctx, selectGame+`ORDER BY g.start_time DESC LIMIT $1`, limit)
}

// Between returns all games the two users played against each other.
func (r *GameRepo) Between(ctx context.Context, a, b int64) ([]GameRow, error) {
	return r.scanMany(ctx,
		selectGame+`WHERE (g.white_player_id = $1 AND g.black_player_id = $2)
		    OR (g.white_player_id = $2 AND g.black_player_id = $1)
		 ORDER BY g.start_time DESC`, a, b)
}

func (r *GameRepo) Exists(ctx context.Context, gameID int64) (bool, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM game_history WHERE game_id = $1`, gameID,
	).Scan(&n)
	if err != nil {
		r.db.log.Error("game exists", zap.Error(err))
		return false, err
	}
	return n > 0, nil
}

func (r *GameRepo) Delete(ctx context.Context, gameID int64) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM game_history WHERE game_id = $1`, gameID)
	if err != nil {
		r.db.log.Error("delete game", zap.Int64("game_id", gameID), zap.Error(err))
	}
	return err
}

// Stats aggregates the user's finished games.
func (r *GameRepo) Stats(ctx context.Context, userID int64) (*UserStats, error) {
	s := &UserStats{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE (result = 'WHITE_WIN' AND white_player_id = $1)
		                             OR (result = 'BLACK_WIN' AND black_player_id = $1)),
		        COUNT(*) FILTER (WHERE (result = 'WHITE_WIN' AND black_player_id = $1)
		                             OR (result = 'BLACK_WIN' AND white_player_id = $1)),
		        COUNT(*) FILTER (WHERE result = 'DRAW')
		 FROM game_history
		 WHERE (white_player_id = $1 OR black_player_id = $1) AND result IS NOT NULL`,
		userID,
	).Scan(&s.Total, &s.Wins, &s.Losses, &s.Draws)
	if err != nil {
		r.db.log.Error("game stats", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return s, nil
}

const selectGame = `SELECT g.game_id, g.white_player_id, g.black_player_id,
       COALESCE(wu.username,''), COALESCE(bu.username,''),
       COALESCE(g.result,''), g.moves, g.start_time, g.end_time, g.duration
FROM game_history g
LEFT JOIN users wu ON wu.user_id = g.white_player_id
LEFT JOIN users bu ON bu.user_id = g.black_player_id
`

func scanGame(row pgx.Row) (*GameRow, error) {
	g := &GameRow{}
	err := row.Scan(&g.GameID, &g.WhiteID, &g.BlackID, &g.WhiteName, &g.BlackName,
		&g.Result, &g.Moves, &g.StartTime, &g.EndTime, &g.Duration)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *GameRepo) scanMany(ctx context.Context, query string, args ...any) ([]GameRow, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		r.db.log.Error("query games", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []GameRow
	for rows.Next() {
		g := GameRow{}
		if err := rows.Scan(&g.GameID, &g.WhiteID, &g.BlackID, &g.WhiteName, &g.BlackName,
			&g.Result, &g.Moves, &g.StartTime, &g.EndTime, &g.Duration); err != nil {
			r.db.log.Error("scan game", zap.Error(err))
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
