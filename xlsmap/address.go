package xlsmap

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// CellAddress is a zero-based cell position on a sheet.
//
// Row and Col count from zero, so "A1" is CellAddress{0, 0}.
type CellAddress struct {
	// Row is the zero-based row index.
	Row int

	// Col is the zero-based column index.
	Col int
}

// Addr is shorthand for CellAddress{Row: row, Col: col}.
func Addr(row, col int) CellAddress {
	return CellAddress{Row: row, Col: col}
}

// ParseAddress parses an A1-style reference such as "B3".
func ParseAddress(ref string) (CellAddress, error) {
	col, row, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return CellAddress{}, fmt.Errorf("invalid cell address %q: %w", ref, err)
	}
	return CellAddress{Row: row - 1, Col: col - 1}, nil
}

// MustParseAddress is like ParseAddress but panics on a malformed reference.
func MustParseAddress(ref string) CellAddress {
	a, err := ParseAddress(ref)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the A1-style reference, or "R{row}C{col}" when the address
// is outside the range a worksheet can hold.
func (a CellAddress) String() string {
	if a.Row < 0 || a.Col < 0 {
		return fmt.Sprintf("R%dC%d", a.Row, a.Col)
	}
	name, err := excelize.CoordinatesToCellName(a.Col+1, a.Row+1)
	if err != nil {
		return fmt.Sprintf("R%dC%d", a.Row, a.Col)
	}
	return name
}

// Offset returns the address moved by dr rows and dc columns.
func (a CellAddress) Offset(dr, dc int) CellAddress {
	return CellAddress{Row: a.Row + dr, Col: a.Col + dc}
}

// Valid reports whether both coordinates are non-negative.
func (a CellAddress) Valid() bool {
	return a.Row >= 0 && a.Col >= 0
}

// ColumnName returns the letters of a zero-based column index ("A" for 0).
func ColumnName(col int) string {
	name, err := excelize.ColumnNumberToName(col + 1)
	if err != nil {
		return ""
	}
	return name
}

// Region is a rectangular block of cells. Both corners are inclusive and
// End is never above or left of Start.
type Region struct {
	// Start is the top-left cell.
	Start CellAddress

	// End is the bottom-right cell.
	End CellAddress
}

// NewRegion builds a Region from two corners in any order.
func NewRegion(a, b CellAddress) Region {
	r := Region{Start: a, End: b}
	if r.Start.Row > r.End.Row {
		r.Start.Row, r.End.Row = r.End.Row, r.Start.Row
	}
	if r.Start.Col > r.End.Col {
		r.Start.Col, r.End.Col = r.End.Col, r.Start.Col
	}
	return r
}

// ParseRegion parses a reference such as "A1:C3" or a single cell "B2".
func ParseRegion(ref string) (Region, error) {
	for i := 0; i < len(ref); i++ {
		if ref[i] != ':' {
			continue
		}
		a, err := ParseAddress(ref[:i])
		if err != nil {
			return Region{}, err
		}
		b, err := ParseAddress(ref[i+1:])
		if err != nil {
			return Region{}, err
		}
		return NewRegion(a, b), nil
	}
	a, err := ParseAddress(ref)
	if err != nil {
		return Region{}, err
	}
	return Region{Start: a, End: a}, nil
}

// Contains reports whether a lies inside the region.
func (r Region) Contains(a CellAddress) bool {
	return a.Row >= r.Start.Row && a.Row <= r.End.Row &&
		a.Col >= r.Start.Col && a.Col <= r.End.Col
}

// Overlaps reports whether the two regions share at least one cell.
func (r Region) Overlaps(o Region) bool {
	return r.Start.Row <= o.End.Row && o.Start.Row <= r.End.Row &&
		r.Start.Col <= o.End.Col && o.Start.Col <= r.End.Col
}

// Rows is the number of rows covered.
func (r Region) Rows() int {
	return r.End.Row - r.Start.Row + 1
}

// Cols is the number of columns covered.
func (r Region) Cols() int {
	return r.End.Col - r.Start.Col + 1
}

// Single reports whether the region is a single cell.
func (r Region) Single() bool {
	return r.Start == r.End
}

func (r Region) String() string {
	if r.Single() {
		return r.Start.String()
	}
	return r.Start.String() + ":" + r.End.String()
}
