package game

import (
	"strings"
)

type Mark string

const (
	MarkX Mark = "X"
	MarkO Mark = "O"
	Empty Mark = ""
)

// MarkFor returns the mark played by the player at index i of a room's
// player list. The creator (index 0) always plays X.
func MarkFor(i int) Mark {
	if i == 0 {
		return MarkX
	}
	return MarkO
}

type Board [3][3]Mark

// Set returns a copy of the board with (row, col) marked. The receiver is untouched.
func (b Board) Set(row, col int, m Mark) Board {
	b[row][col] = m
	return b
}

func (b Board) At(row, col int) Mark {
	return b[row][col]
}

func InBounds(row, col int) bool {
	return row >= 0 && row < 3 && col >= 0 && col < 3
}

func (b Board) Full() bool {
	for _, row := range b {
		for _, cell := range row {
			if cell == Empty {
				return false
			}
		}
	}
	return true
}

// Strings converts the board for JSON payloads.
func (b Board) Strings() [3][3]string {
	var out [3][3]string
	for i, row := range b {
		for j, cell := range row {
			out[i][j] = string(cell)
		}
	}
	return out
}

func (b Board) String() string {
	var sb strings.Builder
	for i, row := range b {
		for j, cell := range row {
			if cell == Empty {
				sb.WriteByte('-')
			} else {
				sb.WriteString(string(cell))
			}
			if j < 2 {
				sb.WriteByte(' ')
			}
		}
		if i < 2 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// Result is the terminal state of a board.
type Result int

const (
	InProgress Result = iota
	Win
	Draw
)

func (r Result) String() string {
	switch r {
	case Win:
		return "win"
	case Draw:
		return "draw"
	default:
		return "in_progress"
	}
}

// lines lists the winning lines in evaluation order: rows, columns, diagonals.
var lines = [8][3][2]int{
	{{0, 0}, {0, 1}, {0, 2}}, {{1, 0}, {1, 1}, {1, 2}}, {{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}}, {{0, 1}, {1, 1}, {2, 1}}, {{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}}, {{0, 2}, {1, 1}, {2, 0}},
}

// Evaluate checks the board for a terminal condition. The first complete
// line wins; a full board without one is a draw.
func Evaluate(b Board) (Result, Mark) {
	for _, line := range lines {
		first := b[line[0][0]][line[0][1]]
		if first != Empty &&
			first == b[line[1][0]][line[1][1]] &&
			first == b[line[2][0]][line[2][1]] {
			return Win, first
		}
	}
	if b.Full() {
		return Draw, Empty
	}
	return InProgress, Empty
}
