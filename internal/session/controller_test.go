package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
	"github.com/rocketscienceinc/crictactoe/internal/dataset"
	"github.com/rocketscienceinc/crictactoe/internal/entity"
	"github.com/rocketscienceinc/crictactoe/internal/repository"
	"github.com/rocketscienceinc/crictactoe/internal/selector"
	"github.com/rocketscienceinc/crictactoe/internal/session"
	"github.com/rocketscienceinc/crictactoe/testing/suite"
)

const (
	userX = "guest-x"
	userO = "guest-o"

	turnTimeout     = 15 * time.Second
	questionTimeout = 30 * time.Second
	lobbyDelay      = 2 * time.Second
	waitFor         = 2 * time.Second
	tick            = 5 * time.Millisecond
)

var (
	rows = []string{"IND", "AUS", "ENG"}
	cols = []string{"CSK", "MI", "RCB"}
)

type mockSelector struct {
	mock.Mock
}

func (that *mockSelector) Select(ctx context.Context, mode entity.GameMode) (*selector.Selection, error) {
	args := that.Called(ctx, mode)

	selection, _ := args.Get(0).(*selector.Selection)

	return selection, args.Error(1)
}

type fixture struct {
	ctx   context.Context
	st    *suite.Suite
	repo  *repository.RoomRepository
	squad *dataset.Dataset
}

type player struct {
	*session.Controller
	clock *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx, st := suite.New(t)

	squad, err := dataset.Default()
	require.NoError(t, err)

	repo := repository.NewRoomRepository(st.Logger, st.Storage, repository.RoomOptions{
		TTL:   time.Hour,
		Retry: repository.RetryPolicy{Retries: 2, BaseDelay: time.Millisecond},
	})

	return &fixture{
		ctx:   ctx,
		st:    st,
		repo:  repo,
		squad: squad,
	}
}

func (that *fixture) newPlayer(t *testing.T, userID string) *player {
	t.Helper()

	categories := &mockSelector{}
	categories.On("Select", mock.Anything, mock.Anything).
		Return(&selector.Selection{Mode: entity.ModeCountryTeam, Rows: rows, Cols: cols}, nil).
		Maybe()

	clk := clock.NewMock()
	controller := session.New(that.st.Logger, that.repo, categories, that.squad, clk, userID, session.Options{
		TurnTimeout:      turnTimeout,
		QuestionTimeout:  questionTimeout,
		LobbyReturnDelay: lobbyDelay,
	})
	t.Cleanup(controller.Close)

	return &player{Controller: controller, clock: clk}
}

// answerFor - a correct answer for the cell at (row, col) of the fixed board.
func (that *fixture) answerFor(t *testing.T, row, col int) string {
	t.Helper()

	players := that.squad.PlayersOf(cols[col], rows[row])
	require.NotEmpty(t, players)

	return players[0]
}

func (that *player) await(t *testing.T, condition func(session.View) bool) session.View {
	t.Helper()

	require.Eventually(t, func() bool {
		return condition(that.View())
	}, waitFor, tick)

	return that.View()
}

func (that *player) awaitEvent(t *testing.T, eventType session.EventType) session.Event {
	t.Helper()

	deadline := time.After(waitFor)
	for {
		select {
		case event := <-that.Events():
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("no %s event", eventType)
			return session.Event{}
		}
	}
}

func myTurn(view session.View) bool {
	return view.Connection == session.ConnectionConnected && view.MyTurn()
}

// startMatch - X creates a room and O joins it.
func startMatch(t *testing.T, fx *fixture) (string, *player, *player) {
	t.Helper()

	x := fx.newPlayer(t, userX)
	o := fx.newPlayer(t, userO)

	roomID, err := x.CreateRoom(fx.ctx, entity.ModeCountryTeam)
	require.NoError(t, err)

	_, err = o.JoinRoom(fx.ctx, roomID)
	require.NoError(t, err)

	x.await(t, myTurn)
	o.await(t, func(view session.View) bool { return view.Phase == session.PhaseActive })

	return roomID, x, o
}

func TestController_CreateAndJoin(t *testing.T) {
	fx := newFixture(t)
	x := fx.newPlayer(t, userX)
	o := fx.newPlayer(t, userO)

	// When: X creates a room
	roomID, err := x.CreateRoom(fx.ctx, entity.ModeCountryTeam)
	require.NoError(t, err)

	// Then: X waits in it holding X
	view := x.await(t, func(view session.View) bool { return view.Connection == session.ConnectionConnected })
	assert.Equal(t, session.PhaseWaiting, view.Phase)
	assert.Equal(t, entity.MarkX, view.Mark)
	assert.Equal(t, roomID, view.RoomID)
	assert.Equal(t, rows, view.Room.Board.RowLabels())

	// And: no move is possible yet
	_, err = x.SelectCell(0, 0)
	assert.ErrorIs(t, err, apperror.ErrGameIsNotStarted)

	// When: O joins
	room, err := o.JoinRoom(fx.ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusActive, room.Status)

	// Then: X learns about the opponent and gets the first turn
	event := x.awaitEvent(t, session.EventOpponentJoined)
	assert.Equal(t, userO, event.Room.Players.O)

	view = x.await(t, myTurn)
	assert.Equal(t, session.PhaseActive, view.Phase)
	assert.Equal(t, turnTimeout, view.TurnRemaining)

	oView := o.await(t, func(view session.View) bool { return view.Phase == session.PhaseActive })
	assert.Equal(t, entity.MarkO, oView.Mark)
	assert.False(t, oView.MyTurn())

	// And: a second room cannot be opened meanwhile
	_, err = x.CreateRoom(fx.ctx, entity.ModeCountryTeam)
	assert.ErrorIs(t, err, apperror.ErrAlreadyInRoom)
}

func TestController_HappyPath(t *testing.T) {
	fx := newFixture(t)
	_, x, o := startMatch(t, fx)

	// Given: X picks the top left cell
	question, err := x.SelectCell(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "IND", question.Cell.Country)
	assert.Equal(t, "CSK", question.Cell.Team)

	// When: X names a matching player in sloppy spelling
	answer := fx.answerFor(t, 0, 0)
	result, err := x.SubmitAnswer(fx.ctx, "  "+answer+"\t")
	require.NoError(t, err)

	// Then: the cell is claimed with the canonical name and the turn passes
	assert.True(t, result.Correct)
	assert.Equal(t, answer, result.Player)
	assert.False(t, result.GameOver)

	view := o.await(t, myTurn)
	cell := view.Room.Board.Cells[0][0]
	assert.Equal(t, entity.MarkX, cell.Value)
	assert.Equal(t, answer, cell.Player)
	assert.False(t, cell.IsLocked)
	assert.Equal(t, 0, view.Room.Scores.X)

	// And: X cannot move out of turn
	x.await(t, func(view session.View) bool { return view.Room.CurrentPlayer == entity.MarkO })
	_, err = x.SelectCell(0, 1)
	assert.ErrorIs(t, err, apperror.ErrNotYourTurn)

	// When: O answers wrong
	_, err = o.SelectCell(0, 1)
	require.NoError(t, err)
	result, err = o.SubmitAnswer(fx.ctx, "Nobody You Know")
	require.NoError(t, err)

	// Then: the board is untouched and X is up again
	assert.False(t, result.Correct)

	view = x.await(t, myTurn)
	assert.True(t, view.Room.Board.Cells[0][1].IsOpen())

	// And: claimed cells cannot be picked again
	_, err = x.SelectCell(0, 0)
	assert.ErrorIs(t, err, apperror.ErrCellOccupied)
}

func TestController_Win(t *testing.T) {
	fx := newFixture(t)
	_, x, o := startMatch(t, fx)

	diagonal := [][2]int{{0, 0}, {1, 1}, {2, 2}}
	misses := [][2]int{{0, 1}, {0, 2}}

	for i, pos := range diagonal {
		// X claims the next diagonal cell
		x.await(t, myTurn)
		_, err := x.SelectCell(pos[0], pos[1])
		require.NoError(t, err)

		result, err := x.SubmitAnswer(fx.ctx, fx.answerFor(t, pos[0], pos[1]))
		require.NoError(t, err)
		require.True(t, result.Correct)

		if i == len(diagonal)-1 {
			// Then: the third claim wins the game
			assert.True(t, result.GameOver)
			assert.Equal(t, entity.OutcomeX, result.Winner)
			break
		}

		// O misses in between
		o.await(t, myTurn)
		_, err = o.SelectCell(misses[i][0], misses[i][1])
		require.NoError(t, err)
		_, err = o.SubmitAnswer(fx.ctx, "Wrong Guess")
		require.NoError(t, err)
	}

	event := o.awaitEvent(t, session.EventGameOver)
	assert.Equal(t, entity.OutcomeX, event.Room.Winner)

	view := o.await(t, func(view session.View) bool { return view.Phase == session.PhaseFinished })
	assert.Equal(t, entity.StatusFinished, view.Room.Status)
	assert.True(t, view.Room.GameOver)
	assert.Equal(t, 1, view.Room.Scores.X)

	x.await(t, func(view session.View) bool { return view.Phase == session.PhaseFinished })
	_, err := x.SelectCell(2, 0)
	assert.ErrorIs(t, err, apperror.ErrGameFinished)
}

func TestController_DisconnectAndReconnect(t *testing.T) {
	fx := newFixture(t)
	x := fx.newPlayer(t, userX)

	// Given: an active room where O plays from another client
	roomID, err := x.CreateRoom(fx.ctx, entity.ModeCountryTeam)
	require.NoError(t, err)
	_, err = fx.repo.JoinRoom(fx.ctx, roomID, userO)
	require.NoError(t, err)
	x.awaitEvent(t, session.EventOpponentJoined)

	// When: O's seat is cleared without a courteous leave
	require.NoError(t, fx.repo.UpdateRoom(fx.ctx, roomID, repository.RoomUpdate{
		Players: map[entity.Mark]string{entity.MarkO: ""},
	}))

	// Then: X notices and marks the room as abandoned by O
	x.awaitEvent(t, session.EventOpponentLeft)
	view := x.await(t, func(view session.View) bool { return view.Phase == session.PhaseOpponentLeft })
	assert.Equal(t, entity.MarkO, view.Room.LeftBy)
	assert.Equal(t, turnTimeout, view.TurnRemaining)

	_, err = x.SelectCell(0, 0)
	assert.ErrorIs(t, err, apperror.ErrOpponentAway)

	// When: O comes back with the same identity
	room, err := fx.repo.JoinRoom(fx.ctx, roomID, userO)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusActive, room.Status)

	// Then: X is told the opponent rejoined and play resumes
	x.awaitEvent(t, session.EventOpponentRejoined)
	view = x.await(t, myTurn)
	assert.Equal(t, entity.MarkNone, view.Room.LeftBy)
}

func TestController_LeaveRoom(t *testing.T) {
	fx := newFixture(t)
	roomID, x, o := startMatch(t, fx)

	// When: O leaves an active game
	require.NoError(t, o.LeaveRoom(fx.ctx))

	// Then: O is back in the lobby
	assert.Equal(t, session.PhaseNoRoom, o.View().Phase)

	// And: the room records the departure
	room, err := fx.repo.GetRoom(fx.ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusOpponentLeft, room.Status)
	assert.Equal(t, entity.MarkO, room.LeftBy)
	assert.Empty(t, room.Players.O)

	// And: X is notified
	x.awaitEvent(t, session.EventOpponentLeft)

	// And: leaving twice is refused
	assert.ErrorIs(t, o.LeaveRoom(fx.ctx), apperror.ErrNotInRoom)
}

func TestController_TurnTimer(t *testing.T) {
	fx := newFixture(t)
	_, x, o := startMatch(t, fx)

	// When: X lets the turn clock run out
	x.clock.Add(turnTimeout)

	// Then: the turn passes without touching the board
	x.awaitEvent(t, session.EventTurnTimeout)
	view := o.await(t, myTurn)
	assert.Equal(t, 0, view.Room.Scores.X)
	assert.Equal(t, 9, countOpen(view.Room.Board))

	// And: O's clock runs, X's does not
	view = x.await(t, func(view session.View) bool { return view.Room.CurrentPlayer == entity.MarkO })
	assert.Equal(t, turnTimeout, view.TurnRemaining)
	assert.Equal(t, turnTimeout, o.View().TurnRemaining)
}

func TestController_QuestionTimer(t *testing.T) {
	fx := newFixture(t)
	_, x, o := startMatch(t, fx)

	// Given: X spent part of the turn and opened a question
	x.clock.Add(5 * time.Second)
	_, err := x.SelectCell(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, x.View().TurnRemaining)

	// When: the question goes unanswered
	x.clock.Add(questionTimeout)

	// Then: it counts as a miss
	x.awaitEvent(t, session.EventQuestionTimeout)
	view := o.await(t, myTurn)
	assert.True(t, view.Room.Board.Cells[1][1].IsOpen())
	assert.Nil(t, x.View().Question)
}

func TestController_CancelQuestion(t *testing.T) {
	fx := newFixture(t)
	_, x, _ := startMatch(t, fx)

	// Given: an open question after five seconds of thinking
	x.clock.Add(5 * time.Second)
	_, err := x.SelectCell(2, 2)
	require.NoError(t, err)

	x.clock.Add(10 * time.Second)
	assert.Equal(t, 20*time.Second, x.View().QuestionRemaining)

	// When: the window is closed without answering
	require.NoError(t, x.CancelQuestion())

	// Then: the turn clock picks up where it stopped
	view := x.View()
	assert.Nil(t, view.Question)
	assert.Equal(t, 10*time.Second, view.TurnRemaining)
	assert.True(t, view.MyTurn())

	// And: it still expires
	x.clock.Add(10 * time.Second)
	x.awaitEvent(t, session.EventTurnTimeout)

	assert.ErrorIs(t, x.CancelQuestion(), apperror.ErrNoOpenQuestion)
}

func TestController_SubmitAnswer(t *testing.T) {
	fx := newFixture(t)
	_, x, _ := startMatch(t, fx)

	t.Run("Without a question", func(t *testing.T) {
		_, err := x.SubmitAnswer(fx.ctx, "Anyone")
		assert.ErrorIs(t, err, apperror.ErrNoOpenQuestion)
	})

	t.Run("Empty answer keeps the question open", func(t *testing.T) {
		_, err := x.SelectCell(0, 0)
		require.NoError(t, err)

		_, err = x.SubmitAnswer(fx.ctx, " \n ")
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
		assert.NotNil(t, x.View().Question)

		_, err = x.SelectCell(0, 1)
		assert.ErrorIs(t, err, apperror.ErrQuestionOpen)
	})

	t.Run("Out of range cell", func(t *testing.T) {
		require.NoError(t, x.CancelQuestion())

		_, err := x.SelectCell(3, 0)
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	})
}

func TestController_RoomVanishes(t *testing.T) {
	fx := newFixture(t)
	x := fx.newPlayer(t, userX)

	// Given: a followed room
	roomID, err := x.CreateRoom(fx.ctx, entity.ModeCountryTeam)
	require.NoError(t, err)
	x.await(t, func(view session.View) bool { return view.Connection == session.ConnectionConnected })

	// When: the document disappears and a change notice arrives
	fx.st.Server.Del("room:" + roomID)
	fx.st.Server.Publish("room:"+roomID+":changes", "changed")

	// Then: the player is told and sent back to the lobby after a pause
	event := x.awaitEvent(t, session.EventError)
	assert.ErrorIs(t, event.Err, apperror.ErrNotFound)
	assert.Equal(t, session.ConnectionError, x.View().Connection)

	x.clock.Add(lobbyDelay)
	x.awaitEvent(t, session.EventReturnToLobby)
	assert.Equal(t, session.PhaseNoRoom, x.View().Phase)
}

func TestController_JoinErrors(t *testing.T) {
	fx := newFixture(t)
	roomID, _, _ := startMatch(t, fx)

	t.Run("Full room", func(t *testing.T) {
		_, err := fx.newPlayer(t, "guest-third").JoinRoom(fx.ctx, roomID)
		assert.ErrorIs(t, err, apperror.ErrFull)
	})

	t.Run("Unknown room", func(t *testing.T) {
		_, err := fx.newPlayer(t, "guest-third").JoinRoom(fx.ctx, "no-such-room")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})
}

func countOpen(board *entity.Board) int {
	open := 0
	for _, row := range board.Cells {
		for _, cell := range row {
			if cell.IsOpen() {
				open++
			}
		}
	}

	return open
}
