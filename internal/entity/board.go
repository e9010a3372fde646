package entity

import (
	"errors"
	"fmt"
)

// Mark - a player's symbol on the board.
type Mark string

const (
	MarkX    Mark = "X"
	MarkO    Mark = "O"
	MarkNone Mark = ""
)

// Outcome - result of scanning a board.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeX    Outcome = "X"
	OutcomeO    Outcome = "O"
	OutcomeDraw Outcome = "draw"
)

const (
	BoardSize    = 3
	MaxBoardSize = 10
)

var (
	ErrInvalidCell   = errors.New("invalid cell index")
	ErrInvalidLabels = errors.New("row and column labels must match the board size")
	ErrInvalidMark   = errors.New("invalid mark")
)

func (that Mark) Other() Mark {
	switch that {
	case MarkX:
		return MarkO
	case MarkO:
		return MarkX
	default:
		return MarkNone
	}
}

func (that Mark) IsValid() bool {
	return that == MarkX || that == MarkO
}

// Mark - the winning mark, or MarkNone for draws and unfinished boards.
func (that Outcome) Mark() Mark {
	switch that {
	case OutcomeX:
		return MarkX
	case OutcomeO:
		return MarkO
	default:
		return MarkNone
	}
}

func (that Outcome) IsValid() bool {
	switch that {
	case OutcomeNone, OutcomeX, OutcomeO, OutcomeDraw:
		return true
	default:
		return false
	}
}

// BoardCell - one grid position. IsLocked means the cell still awaits a correct answer.
type BoardCell struct {
	Value    Mark   `json:"value"`
	Country  string `json:"country"`
	Team     string `json:"team"`
	Player   string `json:"player"`
	IsLocked bool   `json:"isLocked"`
}

// NewCell - an open cell constrained by the given row and column labels.
func NewCell(country, team string) BoardCell {
	return BoardCell{
		Country:  country,
		Team:     team,
		IsLocked: true,
	}
}

// IsOpen - the cell can still be claimed.
func (that BoardCell) IsOpen() bool {
	return that.IsLocked && that.Value == MarkNone
}

type Board struct {
	Cells [][]BoardCell `json:"cells"`
	Size  int           `json:"size"`
}

// InitializeBoard - lays out a fresh grid where cell (i,j) is constrained by rowLabels[i] and colLabels[j].
func InitializeBoard(rowLabels, colLabels []string, mode GameMode) (*Board, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameMode, mode)
	}

	if len(rowLabels) != BoardSize || len(colLabels) != BoardSize {
		return nil, fmt.Errorf("%w: got %d rows and %d columns", ErrInvalidLabels, len(rowLabels), len(colLabels))
	}

	cells := make([][]BoardCell, BoardSize)
	for i := range cells {
		cells[i] = make([]BoardCell, BoardSize)
		for j := range cells[i] {
			cells[i][j] = NewCell(rowLabels[i], colLabels[j])
		}
	}

	return &Board{Cells: cells, Size: BoardSize}, nil
}

func (that *Board) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < len(that.Cells) && col < len(that.Cells[row])
}

func (that *Board) Cell(row, col int) (BoardCell, error) {
	if !that.InBounds(row, col) {
		return BoardCell{}, fmt.Errorf("%w: (%d,%d)", ErrInvalidCell, row, col)
	}

	return that.Cells[row][col], nil
}

// Clone - deep copy of the board.
func (that *Board) Clone() *Board {
	cells := make([][]BoardCell, len(that.Cells))
	for i, row := range that.Cells {
		cells[i] = make([]BoardCell, len(row))
		copy(cells[i], row)
	}

	return &Board{Cells: cells, Size: that.Size}
}

// RowLabels - the row category of each row, read from the first column.
func (that *Board) RowLabels() []string {
	labels := make([]string, 0, len(that.Cells))
	for _, row := range that.Cells {
		if len(row) == 0 {
			labels = append(labels, "")
			continue
		}
		labels = append(labels, row[0].Country)
	}

	return labels
}

// ColLabels - the column category of each column, read from the first row.
func (that *Board) ColLabels() []string {
	if len(that.Cells) == 0 {
		return nil
	}

	labels := make([]string, 0, len(that.Cells[0]))
	for _, cell := range that.Cells[0] {
		labels = append(labels, cell.Team)
	}

	return labels
}

// markAt tolerates ragged or short grids.
func (that *Board) markAt(row, col int) Mark {
	if !that.InBounds(row, col) {
		return MarkNone
	}

	return that.Cells[row][col].Value
}

func (that *Board) isFull() bool {
	for i := range that.Size {
		for j := range that.Size {
			if that.markAt(i, j) == MarkNone {
				return false
			}
		}
	}

	return true
}

// winningLines - rows, then columns, then both diagonals.
func winningLines(size int) [][][2]int {
	lines := make([][][2]int, 0, 2*size+2)

	for i := range size {
		line := make([][2]int, 0, size)
		for j := range size {
			line = append(line, [2]int{i, j})
		}
		lines = append(lines, line)
	}

	for j := range size {
		line := make([][2]int, 0, size)
		for i := range size {
			line = append(line, [2]int{i, j})
		}
		lines = append(lines, line)
	}

	diagonal := make([][2]int, 0, size)
	antiDiagonal := make([][2]int, 0, size)
	for i := range size {
		diagonal = append(diagonal, [2]int{i, i})
		antiDiagonal = append(antiDiagonal, [2]int{i, size - 1 - i})
	}

	return append(lines, diagonal, antiDiagonal)
}

// CheckWinner - the mark owning a full line, draw when the board is full, none otherwise.
func CheckWinner(board *Board) Outcome {
	if board == nil || board.Size <= 0 {
		return OutcomeNone
	}

	for _, line := range winningLines(board.Size) {
		first := board.markAt(line[0][0], line[0][1])
		if !first.IsValid() {
			continue
		}

		won := true
		for _, pos := range line[1:] {
			if board.markAt(pos[0], pos[1]) != first {
				won = false
				break
			}
		}

		if won {
			return Outcome(first)
		}
	}

	if board.isFull() {
		return OutcomeDraw
	}

	return OutcomeNone
}

// MakeMove - returns a copy of board with (row,col) claimed by mark. The input is never mutated.
func MakeMove(board *Board, row, col int, mark Mark, playerName string) (*Board, error) {
	if !mark.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMark, mark)
	}

	if !board.InBounds(row, col) {
		return nil, fmt.Errorf("%w: (%d,%d)", ErrInvalidCell, row, col)
	}

	next := board.Clone()
	cell := &next.Cells[row][col]
	cell.Value = mark
	cell.Player = playerName
	cell.IsLocked = false

	return next, nil
}
