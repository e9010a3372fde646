package entity

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
)

// GameMode - which category axes populate the board.
type GameMode string

const (
	ModeCountryTeam GameMode = "country-x-ipl"
	ModeTeamTeam    GameMode = "ipl-x-ipl"
)

var ErrUnknownGameMode = errors.New("unknown game mode")

func (that GameMode) IsValid() bool {
	return that == ModeCountryTeam || that == ModeTeamTeam
}

// ParseGameMode - accepts the wire names of both modes.
func ParseGameMode(value string) (GameMode, error) {
	mode := GameMode(value)
	if !mode.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownGameMode, value)
	}

	return mode, nil
}

type Scores struct {
	X int `json:"X"`
	O int `json:"O"`
}

// Add - tally a finished game; draws leave scores unchanged.
func (that Scores) Add(outcome Outcome) Scores {
	switch outcome {
	case OutcomeX:
		that.X++
	case OutcomeO:
		that.O++
	}

	return that
}

func (that Scores) Of(mark Mark) int {
	if mark == MarkO {
		return that.O
	}

	return that.X
}

// GameState - the local view of one match.
type GameState struct {
	Board             *Board
	CurrentPlayer     Mark
	SelectedTeams     []string
	SelectedCountries []string
	TeamOrder         []string
	CountryOrder      []string
	Scores            Scores
	GameOver          bool
	Winner            Outcome
	GameMode          GameMode
}

// NewGameState - a fresh game where X moves first.
// In ModeCountryTeam rows are countries and columns teams; in ModeTeamTeam both axes are teams.
func NewGameState(mode GameMode, rowLabels, colLabels []string) (*GameState, error) {
	board, err := InitializeBoard(rowLabels, colLabels, mode)
	if err != nil {
		return nil, err
	}

	state := &GameState{
		Board:         board,
		CurrentPlayer: MarkX,
		TeamOrder:     append([]string(nil), colLabels...),
		CountryOrder:  append([]string(nil), rowLabels...),
		GameMode:      mode,
	}

	switch mode {
	case ModeCountryTeam:
		state.SelectedCountries = append([]string(nil), rowLabels...)
		state.SelectedTeams = append([]string(nil), colLabels...)
	case ModeTeamTeam:
		state.SelectedTeams = append(append([]string(nil), rowLabels...), colLabels...)
	}

	return state, nil
}

// TurnResult - the fields a resolved turn changes. Board is nil when the board is untouched.
type TurnResult struct {
	Board         *Board
	CurrentPlayer Mark
	Scores        Scores
	GameOver      bool
	Winner        Outcome
}

func (that *GameState) confirmTurn(mark Mark) error {
	if that.GameOver {
		return apperror.ErrGameFinished
	}

	if that.CurrentPlayer != mark {
		return apperror.ErrNotYourTurn
	}

	return nil
}

// ResolveAnswer - applies an answered question for (row,col).
// A correct answer claims the cell and may finish the game; either way the turn passes.
func (that *GameState) ResolveAnswer(row, col int, mark Mark, playerName string, correct bool) (*TurnResult, error) {
	if err := that.confirmTurn(mark); err != nil {
		return nil, err
	}

	cell, err := that.Board.Cell(row, col)
	if err != nil {
		return nil, err
	}

	if !cell.IsOpen() {
		return nil, apperror.ErrCellOccupied
	}

	result := &TurnResult{
		CurrentPlayer: mark.Other(),
		Scores:        that.Scores,
	}

	if !correct {
		return result, nil
	}

	board, err := MakeMove(that.Board, row, col, mark, playerName)
	if err != nil {
		return nil, err
	}

	result.Board = board
	result.Winner = CheckWinner(board)
	if result.Winner != OutcomeNone {
		result.GameOver = true
		result.Scores = that.Scores.Add(result.Winner)
	}

	return result, nil
}

// PassTurn - gives the turn away without touching the board.
func (that *GameState) PassTurn(mark Mark) (*TurnResult, error) {
	if err := that.confirmTurn(mark); err != nil {
		return nil, err
	}

	return &TurnResult{
		CurrentPlayer: mark.Other(),
		Scores:        that.Scores,
	}, nil
}
