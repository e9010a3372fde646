package repository

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/crictactoe/internal/entity"
)

var ErrEmptyUpdate = errors.New("update has no fields")

// RoomUpdate - a partial write. Nil fields are left untouched.
// Board is serialized on write; SerializedBoard is written as is. Set at most one of them.
type RoomUpdate struct {
	Board           *entity.Board
	SerializedBoard *SerializedBoard
	CurrentPlayer   *entity.Mark
	Scores          *entity.Scores
	GameOver        *bool
	Winner          *entity.Outcome
	Status          *entity.Status
	LeftBy          *entity.Mark
	// Players - slot writes; an empty id frees the slot.
	Players map[entity.Mark]string

	// ExpectedVersion - when positive, the write only applies to a document still at this version.
	ExpectedVersion int64
}

func (that RoomUpdate) fields() (map[string]any, error) {
	fields := map[string]any{}
	values := map[string]any{}

	switch {
	case that.Board != nil && that.SerializedBoard != nil:
		return nil, errors.New("both a board and a serialized board were given")
	case that.Board != nil:
		board, err := encodeBoard(that.Board)
		if err != nil {
			return nil, err
		}
		fields[fieldBoard] = board
	case that.SerializedBoard != nil:
		if _, err := DeserializeBoard(*that.SerializedBoard); err != nil {
			return nil, err
		}

		board, err := encodeSerializedBoard(*that.SerializedBoard)
		if err != nil {
			return nil, err
		}
		fields[fieldBoard] = board
	}

	if that.CurrentPlayer != nil {
		if !that.CurrentPlayer.IsValid() {
			return nil, fmt.Errorf("%w: current player %q", entity.ErrInvalidMark, *that.CurrentPlayer)
		}
		values[fieldCurrentPlayer] = *that.CurrentPlayer
	}

	if that.Scores != nil {
		values[fieldScores] = *that.Scores
	}

	if that.GameOver != nil {
		values[fieldGameOver] = *that.GameOver
	}

	if that.Winner != nil {
		if !that.Winner.IsValid() {
			return nil, fmt.Errorf("invalid winner %q", *that.Winner)
		}
		values[fieldWinner] = *that.Winner
	}

	if that.Status != nil {
		if !that.Status.IsValid() {
			return nil, fmt.Errorf("%w: %q", entity.ErrUnknownRoomStatus, *that.Status)
		}
		values[fieldStatus] = *that.Status
	}

	if that.LeftBy != nil {
		if *that.LeftBy != entity.MarkNone && !that.LeftBy.IsValid() {
			return nil, fmt.Errorf("%w: left by %q", entity.ErrInvalidMark, *that.LeftBy)
		}
		values[fieldLeftBy] = *that.LeftBy
	}

	for mark, userID := range that.Players {
		if !mark.IsValid() {
			return nil, fmt.Errorf("%w: player slot %q", entity.ErrInvalidMark, mark)
		}
		values[playerField(mark)] = userID
	}

	if err := putJSON(fields, values); err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		return nil, ErrEmptyUpdate
	}

	return fields, nil
}
