// Package address converts between A1-style cell references and grid coordinates.
package address

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	alphabetSize = 26
	// maxColumnPrefix is the largest value that can take one more letter without overflowing int.
	maxColumnPrefix = (math.MaxInt - alphabetSize) / alphabetSize
)

var (
	// ErrMalformedAddress is returned when a reference has no column letters or no row number.
	ErrMalformedAddress = errors.New("malformed address")
	// ErrInvalidShift is returned when a shift would move a cell outside the grid.
	ErrInvalidShift = errors.New("invalid shift")
)

// Cell is a 1-indexed grid coordinate.
type Cell struct {
	Column int
	Row    int
}

// Parse reads the first cell of an A1-style reference. A sheet prefix ("Sheet1!"),
// absolute anchors ("$B$7") and a trailing range part (":D9") are ignored.
func Parse(s string) (Cell, error) {
	ref := StripSheet(s)
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.ReplaceAll(strings.TrimSpace(ref), "$", "")

	split := 0
	for split < len(ref) && isLetter(ref[split]) {
		split++
	}
	letters, digits := ref[:split], ref[split:]
	if letters == "" || digits == "" {
		return Cell{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Cell{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
		}
	}

	column, err := ColumnNumber(letters)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return Cell{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}

	return Cell{Column: column, Row: row}, nil
}

// MustParse is like Parse but panics on malformed input. Meant for constants.
func MustParse(s string) Cell {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// StripSheet drops the "Sheet!" qualifier the remote puts in front of addresses.
func StripSheet(s string) string {
	if i := strings.LastIndexByte(s, '!'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ColumnLetters encodes a positive column number in bijective base-26 (1=A, 27=AA).
// Non-positive numbers have no letters and yield "".
func ColumnLetters(n int) string {
	var buf []byte
	for n > 0 {
		n--
		buf = append(buf, byte('A'+n%alphabetSize))
		n /= alphabetSize
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// ColumnNumber decodes column letters, case-insensitively.
func ColumnNumber(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("%w: empty column", ErrMalformedAddress)
	}
	n := 0
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		if !isLetter(c) {
			return 0, fmt.Errorf("%w: invalid column %q", ErrMalformedAddress, letters)
		}
		if n > maxColumnPrefix {
			return 0, fmt.Errorf("%w: column %q out of range", ErrMalformedAddress, letters)
		}
		n = n*alphabetSize + int(upper(c)-'A') + 1
	}
	return n, nil
}

// Shift returns the cell moved by the given deltas.
func (c Cell) Shift(rowDelta, columnDelta int) (Cell, error) {
	shifted := Cell{Column: c.Column + columnDelta, Row: c.Row + rowDelta}
	if shifted.Column < 1 || shifted.Row < 1 {
		return Cell{}, fmt.Errorf("%w: %s by %d rows, %d columns", ErrInvalidShift, c, rowDelta, columnDelta)
	}
	return shifted, nil
}

// Letters returns the column part of the reference.
func (c Cell) Letters() string {
	return ColumnLetters(c.Column)
}

func (c Cell) String() string {
	return fmt.Sprintf("%s%d", c.Letters(), c.Row)
}

// Range is a rectangular block between two corner cells.
type Range struct {
	Start Cell
	End   Cell
}

// Span returns the range that starts at topLeft and covers rows x cols cells.
func Span(topLeft Cell, rows, cols int) (Range, error) {
	if rows < 1 || cols < 1 {
		return Range{}, fmt.Errorf("%w: span of %dx%d", ErrInvalidShift, rows, cols)
	}
	end, err := topLeft.Shift(rows-1, cols-1)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: topLeft, End: end}, nil
}

// ParseRange reads "B2:D9" style references. A single cell is a one-cell range.
func ParseRange(s string) (Range, error) {
	ref := StripSheet(s)
	first, second, found := strings.Cut(ref, ":")

	start, err := Parse(first)
	if err != nil {
		return Range{}, err
	}
	if !found {
		return Range{Start: start, End: start}, nil
	}

	end, err := Parse(second)
	if err != nil {
		return Range{}, err
	}
	if end.Row < start.Row || end.Column < start.Column {
		return Range{}, fmt.Errorf("%w: %q is not ordered top-left to bottom-right", ErrMalformedAddress, s)
	}
	return Range{Start: start, End: end}, nil
}

// Rows is the number of rows covered by the range.
func (r Range) Rows() int {
	return r.End.Row - r.Start.Row + 1
}

// Columns is the number of columns covered by the range.
func (r Range) Columns() int {
	return r.End.Column - r.Start.Column + 1
}

func (r Range) String() string {
	return r.Start.String() + ":" + r.End.String()
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
