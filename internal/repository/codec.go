package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
	"github.com/rocketscienceinc/crictactoe/internal/entity"
)

const opDecodeBoard = "decode board"

// SerializedBoard - the flat wire form of a board, cells keyed by "row,col".
type SerializedBoard struct {
	Cells map[string]entity.BoardCell `json:"cells"`
	Size  int                         `json:"size"`
}

func cellKey(row, col int) string {
	return strconv.Itoa(row) + "," + strconv.Itoa(col)
}

// SerializeBoard - flattens board into its wire form.
func SerializeBoard(board *entity.Board) SerializedBoard {
	cells := make(map[string]entity.BoardCell, board.Size*board.Size)
	for i, row := range board.Cells {
		for j, cell := range row {
			cells[cellKey(i, j)] = cell
		}
	}

	return SerializedBoard{Cells: cells, Size: board.Size}
}

// DeserializeBoard - rebuilds the grid. Missing cells become open and empty;
// a nil cell map or a size outside 1..MaxBoardSize is corrupt data.
func DeserializeBoard(serialized SerializedBoard) (*entity.Board, error) {
	if serialized.Cells == nil {
		return nil, apperror.New(apperror.KindCorruptData, opDecodeBoard, "board cells are missing")
	}

	if serialized.Size < 1 || serialized.Size > entity.MaxBoardSize {
		return nil, apperror.New(apperror.KindCorruptData, opDecodeBoard, fmt.Sprintf("board size %d out of range", serialized.Size))
	}

	cells := make([][]entity.BoardCell, serialized.Size)
	for i := range cells {
		cells[i] = make([]entity.BoardCell, serialized.Size)
		for j := range cells[i] {
			cell, ok := serialized.Cells[cellKey(i, j)]
			if !ok {
				cell = entity.BoardCell{IsLocked: true}
			}
			cells[i][j] = cell
		}
	}

	return &entity.Board{Cells: cells, Size: serialized.Size}, nil
}

// DecodeBoard - parses a stored board, rejecting containers that are not map-shaped
// and sizes that are absent or not a whole number.
func DecodeBoard(data []byte) (*entity.Board, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, apperror.New(apperror.KindCorruptData, opDecodeBoard, "board is not an object")
	}

	rawSize, ok := fields["size"]
	if !ok {
		return nil, apperror.New(apperror.KindCorruptData, opDecodeBoard, "board size is missing")
	}

	var size float64
	if err := json.Unmarshal(rawSize, &size); err != nil || size != math.Trunc(size) {
		return nil, apperror.New(apperror.KindCorruptData, opDecodeBoard, fmt.Sprintf("board size %s is not a number", rawSize))
	}

	rawCells, ok := fields["cells"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(rawCells), []byte("{")) {
		return nil, apperror.New(apperror.KindCorruptData, opDecodeBoard, "board cells are not a map")
	}

	var cells map[string]entity.BoardCell
	if err := json.Unmarshal(rawCells, &cells); err != nil {
		return nil, apperror.Wrap(apperror.KindCorruptData, opDecodeBoard, err)
	}

	if size < 1 || size > entity.MaxBoardSize {
		return nil, apperror.New(apperror.KindCorruptData, opDecodeBoard, fmt.Sprintf("board size %v out of range", size))
	}

	return DeserializeBoard(SerializedBoard{Cells: cells, Size: int(size)})
}

func encodeBoard(board *entity.Board) (string, error) {
	return encodeSerializedBoard(SerializeBoard(board))
}

func encodeSerializedBoard(serialized SerializedBoard) (string, error) {
	data, err := json.Marshal(serialized)
	if err != nil {
		return "", fmt.Errorf("failed to marshal board: %w", err)
	}

	return string(data), nil
}
