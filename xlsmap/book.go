package xlsmap

import (
	"errors"
	"fmt"
)

// ErrSheetNotFound is returned by Book.Sheet when no sheet has the name.
var ErrSheetNotFound = errors.New("sheet not found")

// Side names one edge of a cell.
type Side int

// Cell edges.
const (
	SideTop Side = iota
	SideBottom
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideTop:
		return "top"
	case SideBottom:
		return "bottom"
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Book is the spreadsheet document a Mapper reads from and writes to.
//
// Opening, parsing and writing the underlying file is the implementation's
// business; the mapper only needs sheet enumeration and cell access.
type Book interface {
	// SheetNames lists the sheets in workbook order.
	SheetNames() []string

	// Sheet returns the named sheet. It returns an error wrapping
	// ErrSheetNotFound when the sheet does not exist.
	Sheet(name string) (Sheet, error)
}

// Sheet is one worksheet of a Book.
//
// In all methods row and col are zero-based. Reads never fail: a cell
// outside the used range is blank.
type Sheet interface {
	// Name is the sheet name.
	Name() string

	// Dimension returns the number of rows and columns in use.
	Dimension() (rows, cols int)

	// CellText returns the display text of a cell, "" for a blank cell.
	CellText(row, col int) string

	// SetCellValue writes a value. v is one of string, float64, int64,
	// bool, or nil to clear the content while keeping the formatting.
	SetCellValue(row, col int, v any) error

	// CellFormula returns the formula of a cell without the leading "=".
	CellFormula(row, col int) string

	// SetCellFormula writes a formula, given without the leading "=".
	SetCellFormula(row, col int, formula string) error

	// Comment returns the text of the comment attached to a cell.
	Comment(row, col int) string

	// SetComment attaches a comment to a cell, replacing any existing one.
	SetComment(row, col int, text string) error

	// MergedRegion returns the merged region containing a cell.
	MergedRegion(row, col int) (Region, bool)

	// MergedRegions lists every merged region of the sheet.
	MergedRegions() []Region

	// MergeCells merges a region.
	MergeCells(r Region) error

	// UnmergeCells removes a merged region that exactly matches r.
	UnmergeCells(r Region) error

	// HasBorder reports whether the given edge of a cell has a border.
	HasBorder(row, col int, side Side) bool

	// CopyCellStyle copies the formatting of src onto dst.
	CopyCellStyle(src, dst CellAddress) error

	// InsertRows inserts n blank rows before row at, shifting later rows down.
	InsertRows(at, n int) error

	// DeleteRows removes n rows starting at row at, shifting later rows up.
	DeleteRows(at, n int) error

	// InsertCols inserts n blank columns before column at.
	InsertCols(at, n int) error

	// DeleteCols removes n columns starting at column at.
	DeleteCols(at, n int) error
}

// isBlank reports whether a cell holds no text.
func isBlank(sh Sheet, a CellAddress) bool {
	if !a.Valid() {
		return true
	}
	return sh.CellText(a.Row, a.Col) == ""
}

// cellText reads a cell. When mergeAware is set and the cell is a blank
// member of a merged region, the region anchor's text is returned.
func cellText(sh Sheet, a CellAddress, mergeAware bool) string {
	if !a.Valid() {
		return ""
	}
	text := sh.CellText(a.Row, a.Col)
	if text != "" || !mergeAware {
		return text
	}
	if r, ok := sh.MergedRegion(a.Row, a.Col); ok && r.Start != a {
		return sh.CellText(r.Start.Row, r.Start.Col)
	}
	return text
}

// selectSheet finds the sheet a model is bound to.
func selectSheet(book Book, sd *SheetDirective) (Sheet, error) {
	names := book.SheetNames()
	if sd == nil {
		if len(names) == 0 {
			return nil, fmt.Errorf("workbook has no sheets: %w", ErrSheetNotFound)
		}
		return book.Sheet(names[0])
	}
	switch {
	case sd.Name != "":
		return book.Sheet(sd.Name)
	case sd.Pattern != nil:
		for _, name := range names {
			if sd.Pattern.MatchString(name) {
				return book.Sheet(name)
			}
		}
		return nil, fmt.Errorf("no sheet matches /%s/: %w", sd.Pattern, ErrSheetNotFound)
	default:
		if sd.Index < 0 || sd.Index >= len(names) {
			return nil, fmt.Errorf("sheet index %d out of range: %w", sd.Index, ErrSheetNotFound)
		}
		return book.Sheet(names[sd.Index])
	}
}
