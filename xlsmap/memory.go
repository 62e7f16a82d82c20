package xlsmap

import (
	"fmt"
	"strconv"
)

// MemoryBook is an in-memory Book. It is handy for building sheets in code
// and is what the package tests run against.
type MemoryBook struct {
	sheets []*MemorySheet
}

// NewMemoryBook returns a Book with the given sheets, created empty.
func NewMemoryBook(names ...string) *MemoryBook {
	b := &MemoryBook{}
	for _, name := range names {
		b.AddSheet(name)
	}
	return b
}

// AddSheet appends an empty sheet and returns it. An existing sheet with
// the same name is returned unchanged.
func (b *MemoryBook) AddSheet(name string) *MemorySheet {
	for _, s := range b.sheets {
		if s.name == name {
			return s
		}
	}
	s := &MemorySheet{name: name}
	b.sheets = append(b.sheets, s)
	return s
}

// SheetNames implements Book.
func (b *MemoryBook) SheetNames() []string {
	names := make([]string, len(b.sheets))
	for i, s := range b.sheets {
		names[i] = s.name
	}
	return names
}

// Sheet implements Book.
func (b *MemoryBook) Sheet(name string) (Sheet, error) {
	s := b.MemorySheet(name)
	if s == nil {
		return nil, fmt.Errorf("sheet %q: %w", name, ErrSheetNotFound)
	}
	return s, nil
}

// MemorySheet returns the named sheet, or nil.
func (b *MemoryBook) MemorySheet(name string) *MemorySheet {
	for _, s := range b.sheets {
		if s.name == name {
			return s
		}
	}
	return nil
}

type memStyle struct {
	borders [4]bool
}

type memCell struct {
	text    string
	formula string
	comment string
	style   memStyle
}

// MemorySheet is the Sheet of a MemoryBook. Rows are stored ragged.
type MemorySheet struct {
	name   string
	rows   [][]memCell
	merged []Region
}

// Name implements Sheet.
func (s *MemorySheet) Name() string { return s.name }

// Dimension implements Sheet.
func (s *MemorySheet) Dimension() (rows, cols int) {
	for _, r := range s.rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	return len(s.rows), cols
}

func (s *MemorySheet) cell(row, col int) *memCell {
	if row < 0 || col < 0 || row >= len(s.rows) || col >= len(s.rows[row]) {
		return nil
	}
	return &s.rows[row][col]
}

func (s *MemorySheet) ensure(row, col int) *memCell {
	for len(s.rows) <= row {
		s.rows = append(s.rows, nil)
	}
	for len(s.rows[row]) <= col {
		s.rows[row] = append(s.rows[row], memCell{})
	}
	return &s.rows[row][col]
}

// CellText implements Sheet.
func (s *MemorySheet) CellText(row, col int) string {
	if c := s.cell(row, col); c != nil {
		return c.text
	}
	return ""
}

// Set writes text into a cell. It is the test-friendly form of SetCellValue.
func (s *MemorySheet) Set(row, col int, text string) *MemorySheet {
	s.ensure(row, col).text = text
	return s
}

// SetRow writes consecutive cells of one row starting at col.
func (s *MemorySheet) SetRow(row, col int, texts ...string) *MemorySheet {
	for i, t := range texts {
		s.ensure(row, col+i).text = t
	}
	return s
}

// SetA1 writes text into the cell named by an A1 reference.
func (s *MemorySheet) SetA1(ref, text string) *MemorySheet {
	a := MustParseAddress(ref)
	return s.Set(a.Row, a.Col, text)
}

// SetCellValue implements Sheet.
func (s *MemorySheet) SetCellValue(row, col int, v any) error {
	if row < 0 || col < 0 {
		return fmt.Errorf("cell %s: negative coordinate", Addr(row, col))
	}
	var text string
	switch x := v.(type) {
	case nil:
	case string:
		text = x
	case float64:
		text = strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		text = strconv.FormatInt(x, 10)
	case int:
		text = strconv.Itoa(x)
	case bool:
		text = "TRUE"
		if !x {
			text = "FALSE"
		}
	default:
		return fmt.Errorf("cell %s: unsupported value type %T", Addr(row, col), v)
	}
	c := s.ensure(row, col)
	c.text = text
	c.formula = ""
	return nil
}

// CellFormula implements Sheet.
func (s *MemorySheet) CellFormula(row, col int) string {
	if c := s.cell(row, col); c != nil {
		return c.formula
	}
	return ""
}

// SetCellFormula implements Sheet. The cached text of the cell is cleared.
func (s *MemorySheet) SetCellFormula(row, col int, formula string) error {
	if row < 0 || col < 0 {
		return fmt.Errorf("cell %s: negative coordinate", Addr(row, col))
	}
	c := s.ensure(row, col)
	c.formula = formula
	c.text = ""
	return nil
}

// Comment implements Sheet.
func (s *MemorySheet) Comment(row, col int) string {
	if c := s.cell(row, col); c != nil {
		return c.comment
	}
	return ""
}

// SetComment implements Sheet.
func (s *MemorySheet) SetComment(row, col int, text string) error {
	if row < 0 || col < 0 {
		return fmt.Errorf("cell %s: negative coordinate", Addr(row, col))
	}
	s.ensure(row, col).comment = text
	return nil
}

// MergedRegion implements Sheet.
func (s *MemorySheet) MergedRegion(row, col int) (Region, bool) {
	a := Addr(row, col)
	for _, r := range s.merged {
		if r.Contains(a) {
			return r, true
		}
	}
	return Region{}, false
}

// MergedRegions implements Sheet.
func (s *MemorySheet) MergedRegions() []Region {
	return append([]Region(nil), s.merged...)
}

// MergeCells implements Sheet. Merging a region that overlaps an existing
// merge is an error.
func (s *MemorySheet) MergeCells(r Region) error {
	if r.Single() {
		return nil
	}
	for _, m := range s.merged {
		if m.Overlaps(r) {
			return fmt.Errorf("merge %s overlaps %s", r, m)
		}
	}
	s.merged = append(s.merged, r)
	return nil
}

// Merge is MergeCells for an A1 range such as "A1:C1"; it panics on a bad
// reference or overlap.
func (s *MemorySheet) Merge(ref string) *MemorySheet {
	r, err := ParseRegion(ref)
	if err != nil {
		panic(err)
	}
	if err := s.MergeCells(r); err != nil {
		panic(err)
	}
	return s
}

// UnmergeCells implements Sheet.
func (s *MemorySheet) UnmergeCells(r Region) error {
	for i, m := range s.merged {
		if m == r {
			s.merged = append(s.merged[:i], s.merged[i+1:]...)
			return nil
		}
	}
	return nil
}

// HasBorder implements Sheet.
func (s *MemorySheet) HasBorder(row, col int, side Side) bool {
	if c := s.cell(row, col); c != nil && side >= SideTop && side <= SideRight {
		return c.style.borders[side]
	}
	return false
}

// SetBorders draws all four borders on every cell of an A1 range.
func (s *MemorySheet) SetBorders(ref string) *MemorySheet {
	r, err := ParseRegion(ref)
	if err != nil {
		panic(err)
	}
	for row := r.Start.Row; row <= r.End.Row; row++ {
		for col := r.Start.Col; col <= r.End.Col; col++ {
			s.ensure(row, col).style.borders = [4]bool{true, true, true, true}
		}
	}
	return s
}

// CopyCellStyle implements Sheet.
func (s *MemorySheet) CopyCellStyle(src, dst CellAddress) error {
	if !dst.Valid() {
		return fmt.Errorf("cell %s: negative coordinate", dst)
	}
	var style memStyle
	if c := s.cell(src.Row, src.Col); c != nil {
		style = c.style
	}
	s.ensure(dst.Row, dst.Col).style = style
	return nil
}

// InsertRows implements Sheet.
func (s *MemorySheet) InsertRows(at, n int) error {
	if at < 0 || n < 0 {
		return fmt.Errorf("insert rows at %d count %d: invalid range", at, n)
	}
	if n == 0 || at >= len(s.rows) {
		s.shiftMerges(true, at, n)
		return nil
	}
	blank := make([][]memCell, n)
	s.rows = append(s.rows[:at], append(blank, s.rows[at:]...)...)
	s.shiftMerges(true, at, n)
	return nil
}

// DeleteRows implements Sheet.
func (s *MemorySheet) DeleteRows(at, n int) error {
	if at < 0 || n < 0 {
		return fmt.Errorf("delete rows at %d count %d: invalid range", at, n)
	}
	if at < len(s.rows) {
		end := at + n
		if end > len(s.rows) {
			end = len(s.rows)
		}
		s.rows = append(s.rows[:at], s.rows[end:]...)
	}
	s.shiftMerges(true, at, -n)
	return nil
}

// InsertCols implements Sheet.
func (s *MemorySheet) InsertCols(at, n int) error {
	if at < 0 || n < 0 {
		return fmt.Errorf("insert columns at %d count %d: invalid range", at, n)
	}
	for i, r := range s.rows {
		if at >= len(r) {
			continue
		}
		blank := make([]memCell, n)
		s.rows[i] = append(r[:at], append(blank, r[at:]...)...)
	}
	s.shiftMerges(false, at, n)
	return nil
}

// DeleteCols implements Sheet.
func (s *MemorySheet) DeleteCols(at, n int) error {
	if at < 0 || n < 0 {
		return fmt.Errorf("delete columns at %d count %d: invalid range", at, n)
	}
	for i, r := range s.rows {
		if at >= len(r) {
			continue
		}
		end := at + n
		if end > len(r) {
			end = len(r)
		}
		s.rows[i] = append(r[:at], r[end:]...)
	}
	s.shiftMerges(false, at, -n)
	return nil
}

// shiftMerges moves merged regions after an insert (delta > 0) or delete
// (delta < 0) of rows or columns at index at. Regions that lose every cell
// are dropped, partially deleted ones shrink.
func (s *MemorySheet) shiftMerges(rows bool, at, delta int) {
	kept := s.merged[:0]
	for _, m := range s.merged {
		lo, hi := m.Start.Col, m.End.Col
		if rows {
			lo, hi = m.Start.Row, m.End.Row
		}
		if delta > 0 {
			if lo >= at {
				lo += delta
				hi += delta
			} else if hi >= at {
				hi += delta
			}
		} else {
			end := at - delta
			switch {
			case lo >= end:
				lo += delta
				hi += delta
			case hi < at:
			case lo >= at && hi < end:
				continue
			default:
				removed := min(hi, end-1) - max(lo, at) + 1
				if lo >= at {
					lo = at
				}
				hi = lo + (m.extent(rows) - removed) - 1
			}
		}
		if rows {
			m.Start.Row, m.End.Row = lo, hi
		} else {
			m.Start.Col, m.End.Col = lo, hi
		}
		if !m.Single() {
			kept = append(kept, m)
		}
	}
	s.merged = kept
}

func (r Region) extent(rows bool) int {
	if rows {
		return r.Rows()
	}
	return r.Cols()
}
