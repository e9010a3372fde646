package session

import (
	"context"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
	"github.com/rocketscienceinc/crictactoe/internal/entity"
	"github.com/rocketscienceinc/crictactoe/internal/repository"
	"github.com/rocketscienceinc/crictactoe/internal/timer"
)

// onSnapshot - applies one delivery of the room subscription.
func (that *Controller) onSnapshot(generation uint64, room *entity.RoomState, err error) {
	that.mu.Lock()

	if generation != that.generation {
		that.mu.Unlock()
		return
	}

	if err != nil {
		events := that.onSnapshotError(err)
		that.mu.Unlock()
		that.emit(events...)
		return
	}

	if that.room != nil && room.Version < that.room.Version {
		that.mu.Unlock()
		return
	}

	events, ghost := that.reconcile(room)
	roomID := that.roomID
	that.mu.Unlock()

	that.emit(events...)

	if ghost != nil {
		that.markOpponentGone(generation, roomID, *ghost)
	}
}

func (that *Controller) onSnapshotError(err error) []Event {
	log := that.logger.With("method", "onSnapshotError", "room_id", that.roomID)

	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		log.Info("room is gone, returning to lobby", "error", err)
		that.leaveLater(EventReturnToLobby)
	case apperror.KindPermissionDenied:
		log.Warn("room access denied", "error", err)
		that.leaveLater(EventReauthenticate)
	case apperror.KindNetwork, apperror.KindTimeout:
		log.Warn("room subscription lost", "error", err)
		that.connection = ConnectionDisconnected
		that.syncTurnTimer()
	default:
		log.Error("bad room snapshot", "error", err)
		that.connection = ConnectionError
		that.syncTurnTimer()
	}

	return []Event{{Type: EventError, Room: that.room, Err: err}}
}

// reconcile - adopts room as the latest snapshot and derives the edges it implies.
// The returned update, if any, must be written to mark a vanished opponent. Caller holds mu.
func (that *Controller) reconcile(room *entity.RoomState) ([]Event, *repository.RoomUpdate) {
	that.room = room
	that.connection = ConnectionConnected

	events := []Event{{Type: EventRoomUpdated, Room: room}}

	mark := room.Players.MarkOf(that.userID)
	if mark == entity.MarkNone {
		if that.lobbyTimer == nil {
			that.logger.Warn("seat lost", "method", "reconcile", "room_id", that.roomID)
			events = append(events, Event{Type: EventError, Room: room, Err: apperror.ErrNotInRoom})
			that.leaveLater(EventReturnToLobby)
		}
		return events, nil
	}
	that.mark = mark

	opponentMark := mark.Other()
	opponent := room.Players.Of(opponentMark)
	present := opponent != "" && !(room.IsOpponentLeft() && room.LeftBy == opponentMark)

	switch {
	case present && !that.opponentPresent:
		if that.departed != "" && opponent == that.departed {
			events = append(events, Event{Type: EventOpponentRejoined, Room: room})
		} else {
			events = append(events, Event{Type: EventOpponentJoined, Room: room})
		}
		that.departed = ""
	case !present && that.opponentPresent:
		events = append(events, Event{Type: EventOpponentLeft, Room: room})
		that.departed = that.prevOpponent
	}

	that.opponentPresent = present
	if present {
		that.prevOpponent = opponent
	}

	if room.IsFinished() && that.prevStatus != entity.StatusFinished {
		events = append(events, Event{Type: EventGameOver, Room: room})
	}
	that.prevStatus = room.Status
	that.phase = phaseOf(room.Status)

	if that.question != nil && that.confirmTurn() != nil {
		that.closeQuestion()
	}
	that.syncTurnTimer()
	that.prevTurn = room.CurrentPlayer

	// a seat emptied without the courtesy write leaves a ghost in an active room
	var ghost *repository.RoomUpdate
	if room.IsActive() && opponent == "" && that.prevOpponent != "" {
		status := entity.StatusOpponentLeft
		ghost = &repository.RoomUpdate{
			Status:          &status,
			LeftBy:          &opponentMark,
			ExpectedVersion: room.Version,
		}
	}

	return events, ghost
}

func (that *Controller) markOpponentGone(generation uint64, roomID string, update repository.RoomUpdate) {
	log := that.logger.With("method", "markOpponentGone", "room_id", roomID)

	ctx, cancel := context.WithTimeout(context.Background(), that.opts.WriteTimeout)
	defer cancel()

	that.mu.Lock()
	stale := generation != that.generation
	that.mu.Unlock()
	if stale {
		return
	}

	if err := that.store.UpdateRoom(ctx, roomID, update); err != nil {
		// someone else moved the room on; the next snapshot tells us what happened
		log.Debug("could not mark opponent as gone", "error", err)
	}
}

// syncTurnTimer - the turn timer runs only on the local player's turn while connected
// and with no question open. Caller holds mu.
func (that *Controller) syncTurnTimer() {
	room := that.room
	if that.phase != PhaseActive || room == nil || room.GameOver || room.CurrentPlayer != that.mark {
		that.turnTimer.Stop()
		return
	}

	if that.connection != ConnectionConnected || that.question != nil {
		that.turnTimer.Pause()
		return
	}

	switch state := that.turnTimer.State(); {
	case that.prevTurn != that.mark, state == timer.StateIdle, state == timer.StateExpired:
		that.turnTimer.Start()
	case state == timer.StatePaused:
		that.turnTimer.Resume()
	}
}

// leaveLater - stops following the room now and tells the player to move on after a delay.
// Caller holds mu.
func (that *Controller) leaveLater(eventType EventType) {
	if that.unsubscribe != nil {
		that.unsubscribe()
		that.unsubscribe = nil
	}

	that.connection = ConnectionError
	that.closeQuestion()
	that.turnTimer.Stop()

	if that.lobbyTimer != nil {
		return
	}

	generation := that.generation
	that.lobbyTimer = that.clock.AfterFunc(that.opts.LobbyReturnDelay, func() {
		that.mu.Lock()
		if generation != that.generation {
			that.mu.Unlock()
			return
		}
		that.lobbyTimer = nil
		that.detach()
		that.mu.Unlock()

		that.emit(Event{Type: eventType})
	})
}

func (that *Controller) onTurnExpired() {
	that.passTurn("onTurnExpired", EventTurnTimeout, false)
}

func (that *Controller) onQuestionExpired() {
	that.passTurn("onQuestionExpired", EventQuestionTimeout, true)
}

// passTurn - hands the turn over after a timeout. A question timeout resolves the open
// question as a miss; a turn timeout only applies while no question is open.
func (that *Controller) passTurn(method string, eventType EventType, question bool) {
	log := that.logger.With("method", method)

	that.mu.Lock()

	if question != (that.question != nil) {
		that.mu.Unlock()
		return
	}

	var (
		result *entity.TurnResult
		err    error
	)

	if question {
		open := that.question
		that.closeQuestion()
		if err = that.confirmTurn(); err == nil {
			result, err = that.room.Game().ResolveAnswer(open.Row, open.Col, that.mark, "", false)
		}
	} else if err = that.confirmTurn(); err == nil {
		result, err = that.room.Game().PassTurn(that.mark)
	}

	if err != nil {
		that.syncTurnTimer()
		that.mu.Unlock()
		log.Debug("timeout ignored", "error", err)
		return
	}

	generation, roomID, room := that.generation, that.roomID, that.room
	that.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), that.opts.WriteTimeout)
	defer cancel()

	if err = that.store.UpdateRoom(ctx, roomID, turnUpdate(result, room.Version)); err != nil {
		log.Warn("failed to pass the turn", "room_id", roomID, "error", err)

		that.mu.Lock()
		if generation == that.generation {
			that.syncTurnTimer()
		}
		that.mu.Unlock()

		that.emit(Event{Type: EventError, Room: room, Err: err})
		return
	}

	that.emit(Event{Type: eventType, Room: room})
}
