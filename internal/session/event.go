package session

import (
	"time"

	"github.com/rocketscienceinc/crictactoe/internal/entity"
)

// Phase - where this client stands in the room lifecycle.
type Phase string

const (
	PhaseNoRoom       Phase = "no-room"
	PhaseWaiting      Phase = "waiting"
	PhaseActive       Phase = "active"
	PhaseOpponentLeft Phase = "opponent-left"
	PhaseFinished     Phase = "finished"
)

func phaseOf(status entity.Status) Phase {
	switch status {
	case entity.StatusActive:
		return PhaseActive
	case entity.StatusOpponentLeft:
		return PhaseOpponentLeft
	case entity.StatusFinished:
		return PhaseFinished
	default:
		return PhaseWaiting
	}
}

// ConnectionStatus - health of the room subscription.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)

type EventType string

const (
	EventRoomUpdated      EventType = "room-updated"
	EventOpponentJoined   EventType = "opponent-joined"
	EventOpponentLeft     EventType = "opponent-left"
	EventOpponentRejoined EventType = "opponent-rejoined"
	EventGameOver         EventType = "game-over"
	EventTurnTimeout      EventType = "turn-timeout"
	EventQuestionTimeout  EventType = "question-timeout"
	EventError            EventType = "error"
	EventReturnToLobby    EventType = "return-to-lobby"
	EventReauthenticate   EventType = "reauthenticate"
)

// Event - something the player should be told about. Room is shared and must not be modified.
type Event struct {
	Type EventType
	Room *entity.RoomState
	Err  error
}

// Question - an open answer window for one cell.
type Question struct {
	Row  int
	Col  int
	Cell entity.BoardCell
}

// View - a consistent snapshot of the controller for rendering.
type View struct {
	UserID     string
	RoomID     string
	Mark       entity.Mark
	Phase      Phase
	Connection ConnectionStatus
	Room       *entity.RoomState
	Question   *Question

	TurnRemaining     time.Duration
	QuestionRemaining time.Duration
}

// MyTurn - whether a cell may be picked right now.
func (that View) MyTurn() bool {
	return that.Phase == PhaseActive && that.Room != nil && !that.Room.GameOver && that.Room.CurrentPlayer == that.Mark
}

// AnswerResult - outcome of a submitted answer.
type AnswerResult struct {
	Correct  bool
	Player   string
	GameOver bool
	Winner   entity.Outcome
}
