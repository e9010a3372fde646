package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
)

// Status - lifecycle of a shared room.
type Status string

const (
	StatusWaiting      Status = "waiting"
	StatusActive       Status = "active"
	StatusFinished     Status = "finished"
	StatusOpponentLeft Status = "opponent-left"
)

var ErrUnknownRoomStatus = errors.New("unknown room status")

func (that Status) IsValid() bool {
	switch that {
	case StatusWaiting, StatusActive, StatusFinished, StatusOpponentLeft:
		return true
	default:
		return false
	}
}

// RoomState - the shared document of one online match.
type RoomState struct {
	ID string
	GameState

	Players   Players
	Status    Status
	LeftBy    Mark
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRoomState - a room in the waiting state around game, seated by creatorID as X.
func NewRoomState(game *GameState, creatorID string) *RoomState {
	return &RoomState{
		GameState: *game,
		Players:   Players{X: creatorID},
		Status:    StatusWaiting,
	}
}

func (that *RoomState) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *RoomState) IsActive() bool {
	return that.Status == StatusActive
}

func (that *RoomState) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *RoomState) IsOpponentLeft() bool {
	return that.Status == StatusOpponentLeft
}

// ConfirmActiveState - nil only when moves may be played.
func (that *RoomState) ConfirmActiveState() error {
	switch {
	case that.IsActive():
		return nil
	case that.IsWaiting():
		return apperror.ErrGameIsNotStarted
	case that.IsFinished():
		return apperror.ErrGameFinished
	case that.IsOpponentLeft():
		return apperror.ErrOpponentAway
	default:
		return fmt.Errorf("%w: %s", ErrUnknownRoomStatus, that.Status)
	}
}

// Game - a detached copy of the game portion of the room.
func (that *RoomState) Game() *GameState {
	game := that.GameState
	if that.Board != nil {
		game.Board = that.Board.Clone()
	}

	return &game
}
