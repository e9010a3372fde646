package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rocketscienceinc/crictactoe/internal/entity"
)

const suggestionLimit = 10

func (that *Server) handleCreate(ctx context.Context, args []string) error {
	mode := entity.ModeCountryTeam
	if len(args) > 0 {
		parsed, err := entity.ParseGameMode(args[0])
		if err != nil {
			return err
		}
		mode = parsed
	}

	roomID, err := that.controller.CreateRoom(ctx, mode)
	if err != nil {
		return err
	}

	that.printf("Room %s created. Share the id with your opponent; you play X.\n", roomID)

	return nil
}

func (that *Server) handleJoin(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: join <room>", errUsage)
	}

	room, err := that.controller.JoinRoom(ctx, args[0])
	if err != nil {
		return err
	}

	that.printf("Joined room %s as %s.\n", room.ID, room.Players.MarkOf(that.controller.View().UserID))

	return nil
}

func (that *Server) handlePick(_ context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: pick <row> <col>", errUsage)
	}

	row, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: row %q is not a number", errUsage, args[0])
	}

	col, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: column %q is not a number", errUsage, args[1])
	}

	question, err := that.controller.SelectCell(row-1, col-1)
	if err != nil {
		return err
	}

	that.printf("Name a player for %s and %s, or cancel. %s left.\n",
		that.rowName(question.Cell.Country), that.catalog.TeamName(question.Cell.Team),
		that.controller.View().QuestionRemaining)

	return nil
}

func (that *Server) handleAnswer(ctx context.Context, args []string) error {
	result, err := that.controller.SubmitAnswer(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	switch {
	case !result.Correct:
		that.printf("Wrong, %q does not fit. Turn passed.\n", result.Player)
	case result.GameOver:
		that.printf("Correct, %s. Game over.\n", result.Player)
	default:
		that.printf("Correct, %s.\n", result.Player)
	}

	return nil
}

func (that *Server) handleCancel(_ context.Context, _ []string) error {
	if err := that.controller.CancelQuestion(); err != nil {
		return err
	}

	that.printf("Question closed, still your turn.\n")

	return nil
}

func (that *Server) handleSuggest(_ context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: suggest <text>", errUsage)
	}

	suggestions := that.catalog.Suggest(strings.Join(args, " "), suggestionLimit)
	if len(suggestions) == 0 {
		that.printf("No players match.\n")
		return nil
	}

	that.printf("%s\n", strings.Join(suggestions, "\n"))

	return nil
}

func (that *Server) handleBoard(_ context.Context, _ []string) error {
	that.printBoard(that.controller.View())
	return nil
}

func (that *Server) handleLeave(ctx context.Context, _ []string) error {
	if err := that.controller.LeaveRoom(ctx); err != nil {
		return err
	}

	that.printf("Left the room.\n")

	return nil
}

func (that *Server) handleHelp(_ context.Context, _ []string) error {
	that.printf(`Commands:
  create [%s|%s]  start a room
  join <room>                      join a room by id
  pick <row> <col>                 choose a cell, 1 to 3
  answer <player name>             answer the open question
  cancel                           close the question, keep the turn
  suggest <text>                   look up player names
  board                            show the board
  leave                            leave the room
  quit                             exit
`, entity.ModeCountryTeam, entity.ModeTeamTeam)

	return nil
}
