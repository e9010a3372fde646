// Package session reconciles the shared room document with the local player's view of the match.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
	"github.com/rocketscienceinc/crictactoe/internal/entity"
	"github.com/rocketscienceinc/crictactoe/internal/repository"
	"github.com/rocketscienceinc/crictactoe/internal/selector"
	"github.com/rocketscienceinc/crictactoe/internal/timer"
)

const (
	defaultTurnTimeout      = 15 * time.Second
	defaultQuestionTimeout  = 30 * time.Second
	defaultLobbyReturnDelay = 2 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultEventBuffer      = 64
)

type roomStore interface {
	CreateRoom(ctx context.Context, room *entity.RoomState) (string, error)
	JoinRoom(ctx context.Context, roomID, userID string) (*entity.RoomState, error)
	UpdateRoom(ctx context.Context, roomID string, update repository.RoomUpdate) error
	SubscribeToRoom(ctx context.Context, roomID string, callback func(*entity.RoomState, error)) (func(), error)
}

type categorySelector interface {
	Select(ctx context.Context, mode entity.GameMode) (*selector.Selection, error)
}

type answerChecker interface {
	Check(mode entity.GameMode, cell entity.BoardCell, answer string) (string, bool, error)
}

type Options struct {
	TurnTimeout      time.Duration
	QuestionTimeout  time.Duration
	LobbyReturnDelay time.Duration
	// WriteTimeout - bound for writes not tied to a caller, such as timer expiry.
	WriteTimeout time.Duration
	EventBuffer  int
}

func (that Options) withDefaults() Options {
	if that.TurnTimeout <= 0 {
		that.TurnTimeout = defaultTurnTimeout
	}
	if that.QuestionTimeout <= 0 {
		that.QuestionTimeout = defaultQuestionTimeout
	}
	if that.LobbyReturnDelay <= 0 {
		that.LobbyReturnDelay = defaultLobbyReturnDelay
	}
	if that.WriteTimeout <= 0 {
		that.WriteTimeout = defaultWriteTimeout
	}
	if that.EventBuffer <= 0 {
		that.EventBuffer = defaultEventBuffer
	}

	return that
}

// Controller - one player's side of an online match. Remote snapshots drive the phase,
// edge notifications and timers; local actions are validated against the latest snapshot
// and written back with its version as a precondition.
type Controller struct {
	logger     *slog.Logger
	store      roomStore
	categories categorySelector
	answers    answerChecker
	clock      clock.Clock
	opts       Options
	userID     string

	eventsMu sync.Mutex
	events   chan Event
	closed   bool

	mu sync.Mutex

	// generation invalidates subscription callbacks and delayed actions of a previous room.
	generation  uint64
	roomID      string
	mark        entity.Mark
	phase       Phase
	connection  ConnectionStatus
	room        *entity.RoomState
	unsubscribe func()
	lobbyTimer  *clock.Timer

	// edge detection state
	opponentPresent bool
	prevOpponent    string
	departed        string
	prevStatus      entity.Status
	prevTurn        entity.Mark

	question      *Question
	turnTimer     *timer.Countdown
	questionTimer *timer.Countdown
}

func New(
	logger *slog.Logger,
	store roomStore,
	categories categorySelector,
	answers answerChecker,
	clk clock.Clock,
	userID string,
	opts Options,
) *Controller {
	opts = opts.withDefaults()

	controller := &Controller{
		logger:     logger.With("component", "session", "user_id", userID),
		store:      store,
		categories: categories,
		answers:    answers,
		clock:      clk,
		opts:       opts,
		userID:     userID,
		events:     make(chan Event, opts.EventBuffer),
		phase:      PhaseNoRoom,
		connection: ConnectionDisconnected,
	}

	controller.turnTimer = timer.NewCountdown(clk, opts.TurnTimeout, controller.onTurnExpired)
	controller.questionTimer = timer.NewCountdown(clk, opts.QuestionTimeout, controller.onQuestionExpired)

	return controller
}

// Events - notifications for the player. Events are dropped when nobody keeps up with them.
func (that *Controller) Events() <-chan Event {
	return that.events
}

func (that *Controller) UserID() string {
	return that.userID
}

// CreateRoom - picks categories for mode, stores a new room seated by this player as X
// and starts following it.
func (that *Controller) CreateRoom(ctx context.Context, mode entity.GameMode) (string, error) {
	log := that.logger.With("method", "CreateRoom")

	if err := that.confirmNoRoom(); err != nil {
		return "", err
	}

	selection, err := that.categories.Select(ctx, mode)
	if err != nil {
		return "", fmt.Errorf("failed to select categories: %w", err)
	}

	game, err := entity.NewGameState(mode, selection.Rows, selection.Cols)
	if err != nil {
		return "", fmt.Errorf("failed to initialize game: %w", err)
	}

	roomID, err := that.store.CreateRoom(ctx, entity.NewRoomState(game, that.userID))
	if err != nil {
		return "", fmt.Errorf("failed to create room: %w", err)
	}

	if err = that.attach(ctx, roomID, entity.MarkX, nil); err != nil {
		return "", err
	}

	log.Info("room created", "room_id", roomID, "mode", mode)

	return roomID, nil
}

// JoinRoom - takes a seat in roomID, or reconnects to the seat this player already holds.
func (that *Controller) JoinRoom(ctx context.Context, roomID string) (*entity.RoomState, error) {
	log := that.logger.With("method", "JoinRoom")

	if err := that.confirmNoRoom(); err != nil {
		return nil, err
	}

	room, err := that.store.JoinRoom(ctx, roomID, that.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	mark := room.Players.MarkOf(that.userID)
	if err = that.attach(ctx, room.ID, mark, room); err != nil {
		return nil, err
	}

	log.Info("room joined", "room_id", room.ID, "mark", mark)

	return room, nil
}

// SelectCell - opens the answer window for (row, col) when the move is allowed.
func (that *Controller) SelectCell(row, col int) (*Question, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.confirmTurn(); err != nil {
		return nil, err
	}

	if that.question != nil {
		return nil, apperror.ErrQuestionOpen
	}

	cell, err := that.room.Board.Cell(row, col)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidInput, "select cell", err)
	}

	if !cell.IsOpen() {
		return nil, apperror.ErrCellOccupied
	}

	that.question = &Question{Row: row, Col: col, Cell: cell}
	that.turnTimer.Pause()
	that.questionTimer.Start()

	question := *that.question

	return &question, nil
}

// SubmitAnswer - checks answer against the open question and writes the resolved turn.
// An empty answer keeps the window open.
func (that *Controller) SubmitAnswer(ctx context.Context, answer string) (*AnswerResult, error) {
	log := that.logger.With("method", "SubmitAnswer")

	that.mu.Lock()

	question := that.question
	if question == nil {
		that.mu.Unlock()
		return nil, apperror.ErrNoOpenQuestion
	}

	player, correct, err := that.answers.Check(that.room.GameMode, question.Cell, answer)
	if err != nil {
		that.mu.Unlock()
		return nil, fmt.Errorf("failed to check answer: %w", err)
	}

	that.closeQuestion()

	// the snapshot may have moved on since the cell was picked
	if err = that.confirmTurn(); err != nil {
		that.syncTurnTimer()
		that.mu.Unlock()
		return nil, err
	}

	result, err := that.room.Game().ResolveAnswer(question.Row, question.Col, that.mark, player, correct)
	if err != nil {
		that.syncTurnTimer()
		that.mu.Unlock()
		return nil, err
	}

	generation, roomID, version := that.generation, that.roomID, that.room.Version
	that.mu.Unlock()

	if err = that.store.UpdateRoom(ctx, roomID, turnUpdate(result, version)); err != nil {
		that.mu.Lock()
		if that.generation == generation {
			that.syncTurnTimer()
		}
		that.mu.Unlock()

		return nil, fmt.Errorf("failed to submit answer: %w", err)
	}

	log.Debug("answer submitted", "room_id", roomID, "correct", correct, "game_over", result.GameOver)

	return &AnswerResult{
		Correct:  correct,
		Player:   player,
		GameOver: result.GameOver,
		Winner:   result.Winner,
	}, nil
}

// CancelQuestion - closes the answer window without passing the turn.
func (that *Controller) CancelQuestion() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.question == nil {
		return apperror.ErrNoOpenQuestion
	}

	that.closeQuestion()
	that.syncTurnTimer()

	return nil
}

// LeaveRoom - stops following the room and gives up this player's seat.
func (that *Controller) LeaveRoom(ctx context.Context) error {
	log := that.logger.With("method", "LeaveRoom")

	that.mu.Lock()
	if that.phase == PhaseNoRoom {
		that.mu.Unlock()
		return apperror.ErrNotInRoom
	}

	roomID, mark, room := that.roomID, that.mark, that.room
	that.detach()
	that.mu.Unlock()

	update, ok := leaveUpdate(room, mark)
	if !ok {
		log.Info("left room", "room_id", roomID)
		return nil
	}

	if err := that.store.UpdateRoom(ctx, roomID, update); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	log.Info("left room", "room_id", roomID, "mark", mark)

	return nil
}

// Close - leaves the current room on a best-effort basis and closes the event stream.
func (that *Controller) Close() {
	log := that.logger.With("method", "Close")

	ctx, cancel := context.WithTimeout(context.Background(), that.opts.WriteTimeout)
	defer cancel()

	if err := that.LeaveRoom(ctx); err != nil && !errors.Is(err, apperror.ErrNotInRoom) {
		log.Warn("failed to leave room on close", "error", err)
	}

	that.eventsMu.Lock()
	defer that.eventsMu.Unlock()

	if !that.closed {
		that.closed = true
		close(that.events)
	}
}

// View - the current state for rendering.
func (that *Controller) View() View {
	that.mu.Lock()
	defer that.mu.Unlock()

	view := View{
		UserID:            that.userID,
		RoomID:            that.roomID,
		Mark:              that.mark,
		Phase:             that.phase,
		Connection:        that.connection,
		Room:              that.room,
		TurnRemaining:     that.turnTimer.Remaining(),
		QuestionRemaining: that.questionTimer.Remaining(),
	}

	if that.question != nil {
		question := *that.question
		view.Question = &question
	}

	return view
}

func (that *Controller) confirmNoRoom() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.phase != PhaseNoRoom {
		return apperror.ErrAlreadyInRoom
	}

	return nil
}

// confirmTurn - nil when the local player may act on the current snapshot. Caller holds mu.
func (that *Controller) confirmTurn() error {
	if that.phase == PhaseNoRoom || that.room == nil {
		return apperror.ErrNotInRoom
	}

	if that.connection != ConnectionConnected {
		return apperror.ErrNotConnected
	}

	if err := that.room.ConfirmActiveState(); err != nil {
		return err
	}

	if that.room.GameOver {
		return apperror.ErrGameFinished
	}

	if that.room.CurrentPlayer != that.mark {
		return apperror.ErrNotYourTurn
	}

	return nil
}

func (that *Controller) closeQuestion() {
	that.question = nil
	that.questionTimer.Stop()
}

// attach - starts following roomID. joined is the state returned by a join, if any.
func (that *Controller) attach(ctx context.Context, roomID string, mark entity.Mark, joined *entity.RoomState) error {
	that.mu.Lock()
	that.generation++
	generation := that.generation
	that.roomID = roomID
	that.mark = mark
	that.phase = PhaseWaiting
	that.connection = ConnectionDisconnected
	that.resetEdges()
	that.mu.Unlock()

	if joined != nil {
		that.onSnapshot(generation, joined, nil)
	}

	// the subscription outlives the call that started it
	unsubscribe, err := that.store.SubscribeToRoom(context.WithoutCancel(ctx), roomID, func(room *entity.RoomState, err error) {
		that.onSnapshot(generation, room, err)
	})

	that.mu.Lock()
	defer that.mu.Unlock()

	if err != nil {
		if that.generation == generation {
			that.detach()
		}
		return fmt.Errorf("failed to subscribe to room: %w", err)
	}

	if that.generation != generation {
		unsubscribe()
		return nil
	}

	that.unsubscribe = unsubscribe

	return nil
}

// detach - forgets the room and stops everything tied to it. Caller holds mu.
func (that *Controller) detach() {
	that.generation++

	if that.unsubscribe != nil {
		that.unsubscribe()
		that.unsubscribe = nil
	}

	if that.lobbyTimer != nil {
		that.lobbyTimer.Stop()
		that.lobbyTimer = nil
	}

	that.closeQuestion()
	that.turnTimer.Stop()

	that.roomID = ""
	that.mark = entity.MarkNone
	that.phase = PhaseNoRoom
	that.connection = ConnectionDisconnected
	that.room = nil
	that.resetEdges()
}

func (that *Controller) resetEdges() {
	that.room = nil
	that.opponentPresent = false
	that.prevOpponent = ""
	that.departed = ""
	that.prevStatus = ""
	that.prevTurn = entity.MarkNone
}

// emit - hands events to the consumer without blocking.
func (that *Controller) emit(events ...Event) {
	that.eventsMu.Lock()
	defer that.eventsMu.Unlock()

	if that.closed {
		return
	}

	for _, event := range events {
		select {
		case that.events <- event:
		default:
			that.logger.Warn("event dropped, consumer is not keeping up", "event", event.Type)
		}
	}
}

func turnUpdate(result *entity.TurnResult, version int64) repository.RoomUpdate {
	update := repository.RoomUpdate{
		Board:           result.Board,
		CurrentPlayer:   &result.CurrentPlayer,
		ExpectedVersion: version,
	}

	if result.GameOver {
		finished := entity.StatusFinished
		update.GameOver = &result.GameOver
		update.Winner = &result.Winner
		update.Scores = &result.Scores
		update.Status = &finished
	}

	return update
}

// leaveUpdate - the courteous departure write for mark, if any is needed.
func leaveUpdate(room *entity.RoomState, mark entity.Mark) (repository.RoomUpdate, bool) {
	if !mark.IsValid() || (room != nil && room.IsFinished()) {
		return repository.RoomUpdate{}, false
	}

	update := repository.RoomUpdate{
		Players: map[entity.Mark]string{mark: ""},
	}

	if room != nil && room.IsActive() {
		status := entity.StatusOpponentLeft
		update.Status = &status
		update.LeftBy = &mark
	}

	return update, true
}
