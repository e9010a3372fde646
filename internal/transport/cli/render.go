package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rocketscienceinc/crictactoe/internal/entity"
	"github.com/rocketscienceinc/crictactoe/internal/session"
)

func (that *Server) printEvent(event session.Event) {
	switch event.Type {
	case session.EventRoomUpdated:
		that.printBoard(that.controller.View())
	case session.EventOpponentJoined:
		that.printf("Opponent joined.\n")
	case session.EventOpponentLeft:
		that.printf("Opponent left. Waiting for them to come back.\n")
	case session.EventOpponentRejoined:
		that.printf("Opponent is back.\n")
	case session.EventGameOver:
		that.printGameOver(event.Room)
	case session.EventTurnTimeout:
		that.printf("Time is up, turn passed.\n")
	case session.EventQuestionTimeout:
		that.printf("No answer in time, turn passed.\n")
	case session.EventError:
		that.printf("error: %v\n", event.Err)
	case session.EventReturnToLobby:
		that.printf("Back in the lobby.\n")
	case session.EventReauthenticate:
		that.printf("Access was denied. Check the user id and credentials, then join again.\n")
	}
}

func (that *Server) printGameOver(room *entity.RoomState) {
	if room == nil {
		return
	}

	if room.Winner == entity.OutcomeDraw {
		that.printf("Draw. Score X %d : %d O\n", room.Scores.X, room.Scores.O)
		return
	}

	that.printf("%s wins. Score X %d : %d O\n", room.Winner, room.Scores.X, room.Scores.O)
}

func (that *Server) printBoard(view session.View) {
	room := view.Room
	if room == nil || room.Board == nil {
		that.printf("Not in a room.\n")
		return
	}

	var sb strings.Builder
	writer := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	header := []string{""}
	for _, code := range room.Board.ColLabels() {
		header = append(header, that.catalog.TeamName(code))
	}
	fmt.Fprintln(writer, strings.Join(header, "\t"))

	for i, row := range room.Board.Cells {
		line := []string{fmt.Sprintf("%d %s", i+1, that.rowName(row[0].Country))}
		for _, cell := range row {
			line = append(line, cellText(cell))
		}
		fmt.Fprintln(writer, strings.Join(line, "\t"))
	}
	_ = writer.Flush()

	that.printf("Room %s, %s. You are %s, %s to move.\n%s", view.RoomID, view.Phase, view.Mark, room.CurrentPlayer, sb.String())

	if view.MyTurn() && view.Question == nil {
		that.printf("Your turn, %s left.\n", view.TurnRemaining)
	}
}

// rowName - rows hold countries in one mode and teams in the other.
func (that *Server) rowName(code string) string {
	if name := that.catalog.CountryName(code); name != code {
		return name
	}

	return that.catalog.TeamName(code)
}

func cellText(cell entity.BoardCell) string {
	if cell.IsOpen() {
		return "."
	}

	return fmt.Sprintf("%s (%s)", cell.Value, cell.Player)
}
