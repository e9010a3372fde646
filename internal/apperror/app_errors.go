package apperror

import "errors"

var (
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrCellOccupied     = errors.New("cell is already occupied")
	ErrOpponentAway     = errors.New("opponent is disconnected")
	ErrNotConnected     = errors.New("room connection is not established")
	ErrAlreadyInRoom    = errors.New("already in a room, leave it first")
	ErrNotInRoom        = errors.New("not in a room")
	ErrQuestionOpen     = errors.New("a question is already open")
	ErrNoOpenQuestion   = errors.New("no question is open")
)
