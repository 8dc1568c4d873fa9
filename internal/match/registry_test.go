package match

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lehau007/NetworkProgramming/internal/ai"
	"github.com/lehau007/NetworkProgramming/internal/chess"
	"github.com/lehau007/NetworkProgramming/internal/persist"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
)

type fakeGameStore struct {
	mu      sync.Mutex
	nextID  int64
	moves   map[int64][]string
	ended   map[int64]string
	endedAt int // total End calls
}

func newFakeGameStore() *fakeGameStore {
	return &fakeGameStore{moves: make(map[int64][]string), ended: make(map[int64]string)}
}

func (s *fakeGameStore) Create(ctx context.Context, whiteID, blackID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *fakeGameStore) AppendMove(ctx context.Context, gameID int64, move string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves[gameID] = append(s.moves[gameID], move)
	return nil
}

func (s *fakeGameStore) End(ctx context.Context, gameID int64, result, movesJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[gameID] = result
	s.endedAt++
	return nil
}

type fakeUserStore struct {
	mu     sync.Mutex
	rows   map[int64]*persist.UserRow
	wins   map[int64]int
	losses map[int64]int
	draws  map[int64]int
}

func newFakeUserStore(ids ...int64) *fakeUserStore {
	s := &fakeUserStore{
		rows:   make(map[int64]*persist.UserRow),
		wins:   make(map[int64]int),
		losses: make(map[int64]int),
		draws:  make(map[int64]int),
	}
	for _, id := range ids {
		s.rows[id] = &persist.UserRow{UserID: id, Username: "user" + strconv.FormatInt(id, 10), Rating: 1500}
	}
	return s
}

func (s *fakeUserStore) ByID(ctx context.Context, id int64) (*persist.UserRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *fakeUserStore) IncrementWins(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wins[id]++
	return nil
}

func (s *fakeUserStore) IncrementLosses(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.losses[id]++
	return nil
}

func (s *fakeUserStore) IncrementDraws(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draws[id]++
	return nil
}

func (s *fakeUserStore) UpdateRating(ctx context.Context, id int64, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		row.Rating = rating
	}
	return nil
}

func (s *fakeUserStore) rating(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Rating
}

// sink records broadcasts in delivery order.
type sink struct {
	mu   sync.Mutex
	msgs []outMsg
}

func (s *sink) record(userID int64, msg protocol.M) {
	s.mu.Lock()
	s.msgs = append(s.msgs, outMsg{userID, msg})
	s.mu.Unlock()
}

func (s *sink) all() []outMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outMsg, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// ofType returns recorded messages with the given type, in order.
func (s *sink) ofType(msgType string) []outMsg {
	var out []outMsg
	for _, m := range s.all() {
		if m.msg["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func newTestRegistry() (*Registry, *fakeGameStore, *fakeUserStore, *sink) {
	games := newFakeGameStore()
	users := newFakeUserStore(1, 2, ai.UserID)
	r := NewRegistry(games, users, zap.NewNop())
	out := &sink{}
	r.SetBroadcaster(out.record)
	return r, games, users, out
}

// startGame runs the challenge flow with the challenger as white.
func startGame(t *testing.T, r *Registry) int64 {
	t.Helper()
	id, err := r.CreateChallenge(1, "user1", 2, "user2", "white")
	require.NoError(t, err)
	gameID, err := r.AcceptChallenge(context.Background(), id)
	require.NoError(t, err)
	return gameID
}

func TestCreateChallengeNotifiesTarget(t *testing.T) {
	r, _, _, out := newTestRegistry()

	id, err := r.CreateChallenge(1, "user1", 2, "user2", "white")
	require.NoError(t, err)
	assert.Len(t, id, ChallengeIDLength)

	msgs := out.ofType(protocol.TypeChallengeReceived)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(2), msgs[0].userID)
	assert.Equal(t, id, msgs[0].msg["challenge_id"])
	assert.Equal(t, "user1", msgs[0].msg["from_username"])
	assert.Equal(t, "white", msgs[0].msg["preferred_color"])
}

func TestSecondChallengeRejected(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	_, err := r.CreateChallenge(1, "user1", 2, "user2", "white")
	require.NoError(t, err)

	_, err = r.CreateChallenge(1, "user1", 2, "user2", "black")
	assert.ErrorIs(t, err, ErrChallengePending)
}

func TestAcceptChallengeStartsGame(t *testing.T) {
	r, _, _, out := newTestRegistry()
	gameID := startGame(t, r)

	started := out.ofType(protocol.TypeMatchStarted)
	require.Len(t, started, 2)
	assert.Equal(t, int64(1), started[0].userID, "white notified first")
	assert.Equal(t, "white", started[0].msg["your_color"])
	assert.Equal(t, "user2", started[0].msg["opponent_username"])
	assert.Equal(t, int64(2), started[1].userID)
	assert.Equal(t, "black", started[1].msg["your_color"])

	assert.True(t, r.IsUserInGame(1))
	assert.True(t, r.IsUserInGame(2))
	assert.False(t, r.HasPendingChallenge(1), "challenge consumed")

	snap, ok := r.GameSnapshot(gameID)
	require.True(t, ok)
	assert.Equal(t, "user1", snap.WhiteName)
	assert.Equal(t, "user2", snap.BlackName)
}

// gatedGameStore blocks Create until released, simulating a slow
// database write.
type gatedGameStore struct {
	*fakeGameStore
	gate chan struct{}
}

func (s *gatedGameStore) Create(ctx context.Context, whiteID, blackID int64) (int64, error) {
	<-s.gate
	return s.fakeGameStore.Create(ctx, whiteID, blackID)
}

func TestCreateGameClaimsSeatsBeforeStoreWrite(t *testing.T) {
	games := &gatedGameStore{fakeGameStore: newFakeGameStore(), gate: make(chan struct{})}
	users := newFakeUserStore(1, 2, 3)
	r := NewRegistry(games, users, zap.NewNop())
	r.SetBroadcaster((&sink{}).record)

	done := make(chan error, 1)
	go func() {
		_, err := r.createGame(context.Background(), 1, "user1", 2, "user2", nil)
		done <- err
	}()

	// Both seats are claimed before the row write finishes, so a
	// racing create for either player is turned away.
	require.Eventually(t, func() bool { return r.IsUserInGame(1) && r.IsUserInGame(2) },
		time.Second, 5*time.Millisecond)
	_, err := r.createGame(context.Background(), 2, "user2", 3, "user3", nil)
	assert.ErrorIs(t, err, ErrAlreadyInGame)

	close(games.gate)
	require.NoError(t, <-done)
	assert.True(t, r.IsUserInGame(1))
}

type failingGameStore struct {
	*fakeGameStore
}

func (s *failingGameStore) Create(ctx context.Context, whiteID, blackID int64) (int64, error) {
	return -1, context.DeadlineExceeded
}

func TestCreateGameReleasesSeatsOnStoreError(t *testing.T) {
	users := newFakeUserStore(1, 2)
	r := NewRegistry(&failingGameStore{newFakeGameStore()}, users, zap.NewNop())
	r.SetBroadcaster((&sink{}).record)

	_, err := r.createGame(context.Background(), 1, "user1", 2, "user2", nil)
	require.Error(t, err)
	assert.False(t, r.IsUserInGame(1), "failed create leaves no reservation behind")
	assert.False(t, r.IsUserInGame(2))
}

func TestAcceptChallengeBlackPreference(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	id, err := r.CreateChallenge(1, "user1", 2, "user2", "black")
	require.NoError(t, err)
	gameID, err := r.AcceptChallenge(context.Background(), id)
	require.NoError(t, err)

	snap, _ := r.GameSnapshot(gameID)
	assert.Equal(t, "user2", snap.WhiteName, "challenger asked for black")
	assert.Equal(t, "user1", snap.BlackName)
}

func TestDeclineChallenge(t *testing.T) {
	r, _, _, out := newTestRegistry()
	id, _ := r.CreateChallenge(1, "user1", 2, "user2", "random")

	require.NoError(t, r.DeclineChallenge(id))

	msgs := out.ofType(protocol.TypeChallengeDeclined)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].userID, "challenger is told")
	assert.Equal(t, "user2", msgs[0].msg["target_username"])
	assert.False(t, r.HasPendingChallenge(1))

	assert.ErrorIs(t, r.DeclineChallenge(id), ErrChallengeNotFound)
}

func TestCancelChallenge(t *testing.T) {
	r, _, _, out := newTestRegistry()
	id, _ := r.CreateChallenge(1, "user1", 2, "user2", "random")

	require.NoError(t, r.CancelChallenge(id))

	msgs := out.ofType(protocol.TypeChallengeCancelled)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(2), msgs[0].userID, "target is told")
	assert.Equal(t, "user_cancelled", msgs[0].msg["reason"])
}

func TestMakeMoveBroadcastOrder(t *testing.T) {
	r, games, _, out := newTestRegistry()
	gameID := startGame(t, r)

	require.NoError(t, r.MakeMove(context.Background(), gameID, 1, "e2e4"))

	var seq []outMsg
	for _, m := range out.all() {
		tp := m.msg["type"]
		if tp == protocol.TypeMoveAccepted || tp == protocol.TypeOpponentMove {
			seq = append(seq, m)
		}
	}
	require.Len(t, seq, 2)
	assert.Equal(t, protocol.TypeMoveAccepted, seq[0].msg["type"])
	assert.Equal(t, int64(1), seq[0].userID, "mover confirmed first")
	assert.Equal(t, protocol.TypeOpponentMove, seq[1].msg["type"])
	assert.Equal(t, int64(2), seq[1].userID)

	assert.Equal(t, "e2e4", seq[0].msg["move"])
	assert.Equal(t, "black", seq[0].msg["current_turn"])
	assert.Equal(t, false, seq[0].msg["is_check"])
	assert.Contains(t, seq[1].msg, "captured_piece")
	assert.Equal(t, "user1", seq[1].msg["white_player"])

	games.mu.Lock()
	defer games.mu.Unlock()
	assert.Equal(t, []string{"e2e4"}, games.moves[gameID])
}

func TestMakeMoveTurnAndLegality(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	gameID := startGame(t, r)
	ctx := context.Background()

	assert.ErrorIs(t, r.MakeMove(ctx, gameID, 2, "e7e5"), ErrNotYourTurn)
	assert.ErrorIs(t, r.MakeMove(ctx, gameID, 1, "e2e5"), ErrIllegalMove)
	assert.ErrorIs(t, r.MakeMove(ctx, gameID, 99, "e2e4"), ErrNotInGame)
	assert.ErrorIs(t, r.MakeMove(ctx, 555, 1, "e2e4"), ErrGameNotFound)

	require.NoError(t, r.MakeMove(ctx, gameID, 1, "e2e4"))
	require.NoError(t, r.MakeMove(ctx, gameID, 2, "e7e5"))
}

func TestCheckmateSettlesGame(t *testing.T) {
	r, games, users, out := newTestRegistry()
	gameID := startGame(t, r)
	ctx := context.Background()

	line := []struct {
		player int64
		move   string
	}{
		{1, "e2e4"}, {2, "e7e5"},
		{1, "f1c4"}, {2, "b8c6"},
		{1, "d1h5"}, {2, "g8f6"},
		{1, "h5f7"},
	}
	for _, step := range line {
		require.NoError(t, r.MakeMove(ctx, gameID, step.player, step.move))
	}

	ended := out.ofType(protocol.TypeGameEnded)
	require.Len(t, ended, 2)
	assert.Equal(t, int64(1), ended[0].userID, "white first")
	assert.Equal(t, chess.WhiteWin, ended[0].msg["result"])
	assert.Equal(t, "checkmate", ended[0].msg["reason"])
	assert.Equal(t, "user1", ended[0].msg["winner"])
	assert.Equal(t, "user2", ended[0].msg["loser"])
	assert.Equal(t, 7, ended[0].msg["move_count"])

	// GAME_ENDED is the last message each player sees
	all := out.all()
	assert.Equal(t, protocol.TypeGameEnded, all[len(all)-1].msg["type"])

	assert.Equal(t, chess.WhiteWin, games.ended[gameID])
	assert.Equal(t, 1503, users.rating(1))
	assert.Equal(t, 1497, users.rating(2))
	assert.Equal(t, 1, users.wins[1])
	assert.Equal(t, 1, users.losses[2])

	assert.False(t, r.IsUserInGame(1))
	assert.False(t, r.IsUserInGame(2))
	assert.ErrorIs(t, r.MakeMove(ctx, gameID, 1, "a2a3"), ErrGameNotFound)
}

func TestResign(t *testing.T) {
	r, games, users, out := newTestRegistry()
	gameID := startGame(t, r)

	require.NoError(t, r.Resign(context.Background(), gameID, 1))

	ended := out.ofType(protocol.TypeGameEnded)
	require.Len(t, ended, 2)
	assert.Equal(t, chess.BlackWin, ended[0].msg["result"])
	assert.Equal(t, "resignation", ended[0].msg["reason"])
	assert.Equal(t, "user2", ended[0].msg["winner"])

	assert.Equal(t, 1, games.endedAt)
	assert.Equal(t, 1497, users.rating(1))
	assert.Equal(t, 1503, users.rating(2))
}

func TestEndGameExactlyOnce(t *testing.T) {
	r, games, _, _ := newTestRegistry()
	gameID := startGame(t, r)
	ctx := context.Background()

	require.NoError(t, r.EndGame(ctx, gameID, chess.WhiteWin, "resignation"))
	assert.ErrorIs(t, r.EndGame(ctx, gameID, chess.BlackWin, "resignation"), ErrGameInactive)
	assert.Equal(t, 1, games.endedAt)
}

func TestDrawOfferAndAccept(t *testing.T) {
	r, _, users, out := newTestRegistry()
	gameID := startGame(t, r)
	ctx := context.Background()

	require.NoError(t, r.OfferDraw(ctx, gameID, 1))
	offers := out.ofType(protocol.TypeDrawOfferReceived)
	require.Len(t, offers, 1)
	assert.Equal(t, int64(2), offers[0].userID)
	assert.Equal(t, "user1", offers[0].msg["from_username"])

	assert.True(t, r.HasDrawOffer(gameID, 2))
	assert.False(t, r.HasDrawOffer(gameID, 1), "own offer is not an offer to answer")

	require.NoError(t, r.RespondToDraw(ctx, gameID, 2, true))

	ended := out.ofType(protocol.TypeGameEnded)
	require.Len(t, ended, 2)
	assert.Equal(t, chess.Draw, ended[0].msg["result"])
	assert.Equal(t, "draw_agreement", ended[0].msg["reason"])
	assert.NotContains(t, ended[0].msg, "winner")

	assert.Equal(t, 1500, users.rating(1), "draws leave ratings alone")
	assert.Equal(t, 1500, users.rating(2))
	assert.Equal(t, 1, users.draws[1])
	assert.Equal(t, 1, users.draws[2])
}

func TestDrawDecline(t *testing.T) {
	r, _, _, out := newTestRegistry()
	gameID := startGame(t, r)
	ctx := context.Background()

	require.NoError(t, r.OfferDraw(ctx, gameID, 1))
	require.NoError(t, r.RespondToDraw(ctx, gameID, 2, false))

	declined := out.ofType(protocol.TypeDrawDeclined)
	require.Len(t, declined, 1)
	assert.Equal(t, int64(1), declined[0].userID, "offerer is told")

	snap, ok := r.GameSnapshot(gameID)
	require.True(t, ok)
	assert.True(t, snap.Active, "game continues")
	assert.False(t, r.HasDrawOffer(gameID, 2), "offer cleared either way")
}

func TestDrawResponseWithoutOffer(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	gameID := startGame(t, r)
	assert.ErrorIs(t, r.RespondToDraw(context.Background(), gameID, 2, true), ErrNoDrawOffer)
}

func TestDisconnectForfeitsToSurvivor(t *testing.T) {
	r, games, users, out := newTestRegistry()
	gameID := startGame(t, r)

	r.HandlePlayerDisconnect(context.Background(), 1)

	ended := out.ofType(protocol.TypeGameEnded)
	require.Len(t, ended, 1, "only the survivor is notified")
	assert.Equal(t, int64(2), ended[0].userID)
	assert.Equal(t, chess.BlackWin, ended[0].msg["result"])
	assert.Equal(t, "opponent_disconnected", ended[0].msg["reason"])

	assert.Equal(t, chess.BlackWin, games.ended[gameID])
	assert.Equal(t, 1503, users.rating(2))
	assert.Equal(t, 1497, users.rating(1))
	assert.False(t, r.IsUserInGame(2))
}

func TestDisconnectDropsPendingChallenge(t *testing.T) {
	r, _, _, out := newTestRegistry()
	_, err := r.CreateChallenge(1, "user1", 2, "user2", "white")
	require.NoError(t, err)

	r.HandlePlayerDisconnect(context.Background(), 1)

	cancelled := out.ofType(protocol.TypeChallengeCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, int64(2), cancelled[0].userID)
	assert.Equal(t, "user_disconnected", cancelled[0].msg["reason"])
	assert.False(t, r.HasPendingChallenge(2))
}

func TestDisconnectWithoutGame(t *testing.T) {
	r, _, _, out := newTestRegistry()
	r.HandlePlayerDisconnect(context.Background(), 1)
	assert.Empty(t, out.all())
}

func TestAIGameRepliesToHumanMove(t *testing.T) {
	r, _, _, out := newTestRegistry()
	ctx := context.Background()

	gameID, err := r.AcceptAIChallenge(ctx, 1, "user1", "white", 1)
	require.NoError(t, err)

	started := out.ofType(protocol.TypeMatchStarted)
	require.Len(t, started, 2)
	assert.Equal(t, ai.Username, started[0].msg["black_player"])

	require.NoError(t, r.MakeMove(ctx, gameID, 1, "e2e4"))

	// the adversary answers from its own goroutine
	require.Eventually(t, func() bool {
		for _, m := range out.ofType(protocol.TypeOpponentMove) {
			if m.userID == 1 {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	snap, ok := r.GameSnapshot(gameID)
	require.True(t, ok)
	assert.Len(t, snap.Moves, 2)
	assert.Equal(t, "white", snap.CurrentTurn)
}

func TestAIPlaysWhiteOpeningMove(t *testing.T) {
	r, _, _, out := newTestRegistry()

	gameID, err := r.AcceptAIChallenge(context.Background(), 1, "user1", "black", 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, ok := r.GameSnapshot(gameID)
		return ok && len(snap.Moves) == 1
	}, 5*time.Second, 10*time.Millisecond)

	moves := out.ofType(protocol.TypeOpponentMove)
	require.NotEmpty(t, moves)
	assert.Equal(t, int64(1), moves[0].userID, "the human hears the adversary's move")
}
