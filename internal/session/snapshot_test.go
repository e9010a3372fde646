package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
	"github.com/rocketscienceinc/crictactoe/internal/dataset"
	"github.com/rocketscienceinc/crictactoe/internal/entity"
	"github.com/rocketscienceinc/crictactoe/internal/repository"
	"github.com/rocketscienceinc/crictactoe/internal/session"
	"github.com/rocketscienceinc/crictactoe/testing/suite"
)

const stubRoomID = "room-1"

// stubStore - a room store whose snapshots are pushed by the test.
type stubStore struct {
	mu       sync.Mutex
	room     *entity.RoomState
	callback func(*entity.RoomState, error)
	updates  []repository.RoomUpdate
}

func (that *stubStore) CreateRoom(_ context.Context, _ *entity.RoomState) (string, error) {
	return "", errors.New("not supported")
}

func (that *stubStore) JoinRoom(_ context.Context, _, _ string) (*entity.RoomState, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.room, nil
}

func (that *stubStore) UpdateRoom(_ context.Context, _ string, update repository.RoomUpdate) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.updates = append(that.updates, update)

	return nil
}

func (that *stubStore) SubscribeToRoom(
	_ context.Context,
	_ string,
	callback func(*entity.RoomState, error),
) (func(), error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.callback = callback

	return func() {}, nil
}

func (that *stubStore) deliver(room *entity.RoomState, err error) {
	that.mu.Lock()
	callback := that.callback
	that.mu.Unlock()

	callback(room, err)
}

func (that *stubStore) lastUpdate(t *testing.T) repository.RoomUpdate {
	t.Helper()

	that.mu.Lock()
	defer that.mu.Unlock()

	require.NotEmpty(t, that.updates)

	return that.updates[len(that.updates)-1]
}

// activeRoom - a running match between userX and userO with X to move.
func activeRoom(t *testing.T) *entity.RoomState {
	t.Helper()

	game, err := entity.NewGameState(entity.ModeCountryTeam, rows, cols)
	require.NoError(t, err)

	room := entity.NewRoomState(game, userX)
	room.ID = stubRoomID
	room.Players.O = userO
	room.Status = entity.StatusActive
	room.Version = 1

	return room
}

// seatedPlayer - X already sitting in the stub store's room.
func seatedPlayer(t *testing.T, store *stubStore) *player {
	t.Helper()

	ctx, st := suite.New(t)

	squad, err := dataset.Default()
	require.NoError(t, err)

	clk := clock.NewMock()
	controller := session.New(st.Logger, store, &mockSelector{}, squad, clk, userX, session.Options{
		TurnTimeout:      turnTimeout,
		QuestionTimeout:  questionTimeout,
		LobbyReturnDelay: lobbyDelay,
	})
	t.Cleanup(controller.Close)

	_, err = controller.JoinRoom(ctx, stubRoomID)
	require.NoError(t, err)

	x := &player{Controller: controller, clock: clk}
	x.await(t, myTurn)

	return x
}

func TestController_SnapshotErrors(t *testing.T) {
	t.Run("Lost connection pauses the turn until the next snapshot", func(t *testing.T) {
		// Given: X is five seconds into the turn
		store := &stubStore{room: activeRoom(t)}
		x := seatedPlayer(t, store)
		x.clock.Add(5 * time.Second)

		// When: the subscription reports a network failure
		store.deliver(nil, apperror.Wrap(apperror.KindNetwork, "subscribe", errors.New("connection reset")))

		// Then: X is disconnected with the turn clock frozen
		event := x.awaitEvent(t, session.EventError)
		assert.ErrorIs(t, event.Err, apperror.ErrNetwork)

		view := x.View()
		assert.Equal(t, session.ConnectionDisconnected, view.Connection)
		assert.Equal(t, 10*time.Second, view.TurnRemaining)

		x.clock.Add(20 * time.Second)
		assert.Equal(t, 10*time.Second, x.View().TurnRemaining)

		// And: clicks are refused
		_, err := x.SelectCell(0, 0)
		assert.ErrorIs(t, err, apperror.ErrNotConnected)

		// When: the subscription resyncs
		store.deliver(store.room, nil)

		// Then: the clock resumes where it stopped
		view = x.View()
		assert.Equal(t, session.ConnectionConnected, view.Connection)
		assert.Equal(t, 10*time.Second, view.TurnRemaining)

		_, err = x.SelectCell(0, 0)
		assert.NoError(t, err)
	})

	t.Run("Timeouts count as a lost connection", func(t *testing.T) {
		// Given: X on turn
		store := &stubStore{room: activeRoom(t)}
		x := seatedPlayer(t, store)

		// When: a delivery times out
		store.deliver(nil, apperror.Wrap(apperror.KindTimeout, "subscribe", context.DeadlineExceeded))

		// Then: X is disconnected rather than failed
		x.awaitEvent(t, session.EventError)
		assert.Equal(t, session.ConnectionDisconnected, x.View().Connection)
	})

	t.Run("Denied access asks for a new login", func(t *testing.T) {
		// Given: X on turn
		store := &stubStore{room: activeRoom(t)}
		x := seatedPlayer(t, store)

		// When: the store refuses access to the room
		store.deliver(nil, apperror.New(apperror.KindPermissionDenied, "subscribe", "NOPERM"))

		// Then: an error is shown first
		event := x.awaitEvent(t, session.EventError)
		assert.ErrorIs(t, event.Err, apperror.ErrPermissionDenied)
		assert.Equal(t, session.ConnectionError, x.View().Connection)

		// And: after the pause the player is sent to log in again without a room
		x.clock.Add(lobbyDelay)
		x.awaitEvent(t, session.EventReauthenticate)

		view := x.View()
		assert.Equal(t, session.PhaseNoRoom, view.Phase)
		assert.Empty(t, view.RoomID)
	})

	t.Run("Corrupt snapshot marks the connection as failed", func(t *testing.T) {
		// Given: X on turn
		store := &stubStore{room: activeRoom(t)}
		x := seatedPlayer(t, store)

		// When: a snapshot with a broken board arrives
		store.deliver(nil, apperror.New(apperror.KindCorruptData, "read", "board size out of range"))

		// Then: the connection is in error and the room is kept
		event := x.awaitEvent(t, session.EventError)
		assert.ErrorIs(t, event.Err, apperror.ErrCorruptData)

		view := x.View()
		assert.Equal(t, session.ConnectionError, view.Connection)
		assert.Equal(t, stubRoomID, view.RoomID)

		_, err := x.SelectCell(0, 0)
		assert.ErrorIs(t, err, apperror.ErrNotConnected)
	})
}

func TestController_DrawWrite(t *testing.T) {
	// Given: eight claimed cells with no line and X to fill (2,2)
	room := activeRoom(t)
	room.Scores = entity.Scores{X: 1, O: 1}

	claimed := map[entity.Mark][][2]int{
		entity.MarkX: {{0, 0}, {0, 2}, {1, 0}, {2, 1}},
		entity.MarkO: {{0, 1}, {1, 1}, {1, 2}, {2, 0}},
	}
	for mark, positions := range claimed {
		for _, pos := range positions {
			cell := &room.Board.Cells[pos[0]][pos[1]]
			cell.Value = mark
			cell.Player = "someone"
			cell.IsLocked = false
		}
	}

	store := &stubStore{room: room}
	x := seatedPlayer(t, store)

	squad, err := dataset.Default()
	require.NoError(t, err)

	answers := squad.PlayersOf(cols[2], rows[2])
	require.NotEmpty(t, answers)

	// When: X answers the last cell correctly
	_, err = x.SelectCell(2, 2)
	require.NoError(t, err)

	result, err := x.SubmitAnswer(context.Background(), answers[0])
	require.NoError(t, err)

	// Then: the game is reported as a draw
	assert.True(t, result.Correct)
	assert.True(t, result.GameOver)
	assert.Equal(t, entity.OutcomeDraw, result.Winner)

	// And: one write finishes the room without scoring
	update := store.lastUpdate(t)
	require.NotNil(t, update.Status)
	assert.Equal(t, entity.StatusFinished, *update.Status)
	require.NotNil(t, update.GameOver)
	assert.True(t, *update.GameOver)
	require.NotNil(t, update.Winner)
	assert.Equal(t, entity.OutcomeDraw, *update.Winner)
	require.NotNil(t, update.Scores)
	assert.Equal(t, entity.Scores{X: 1, O: 1}, *update.Scores)
	require.NotNil(t, update.CurrentPlayer)
	assert.Equal(t, entity.MarkO, *update.CurrentPlayer)
	require.NotNil(t, update.Board)
	assert.Equal(t, entity.MarkX, update.Board.Cells[2][2].Value)
	assert.Equal(t, int64(1), update.ExpectedVersion)
}
