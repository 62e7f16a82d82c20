package xlsxgrid

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/yamitzky/xlsmap-go/xlsmap"
)

// Sheet is one worksheet of a Book. Merged regions, comments and the
// dimension are cached and refreshed after every structural change.
type Sheet struct {
	f      *excelize.File
	name   string
	merges []xlsmap.Region
	loaded bool
	styles map[int]*excelize.Style

	// comments is nil until loaded.
	comments map[string]string

	dimLoaded  bool
	rows, cols int
}

// rawValues reads numbers as stored instead of General-formatted, which
// rounds to 15 significant digits.
var rawValues = excelize.Options{RawCellValue: true}

var _ xlsmap.Sheet = (*Sheet)(nil)

func cellName(row, col int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return ""
	}
	return name
}

// Name implements xlsmap.Sheet.
func (s *Sheet) Name() string { return s.name }

// Dimension implements xlsmap.Sheet. It covers cells with values, the
// recorded sheet dimension and every merged region.
func (s *Sheet) Dimension() (rows, cols int) {
	if !s.dimLoaded {
		s.rows, s.cols = s.dimension()
		s.dimLoaded = true
	}
	return s.rows, s.cols
}

func (s *Sheet) dimension() (rows, cols int) {
	if all, err := s.f.GetRows(s.name, rawValues); err == nil {
		rows = len(all)
		for _, r := range all {
			cols = max(cols, len(r))
		}
	}
	if ref, err := s.f.GetSheetDimension(s.name); err == nil && ref != "" {
		if r, err := xlsmap.ParseRegion(ref); err == nil {
			rows = max(rows, r.End.Row+1)
			cols = max(cols, r.End.Col+1)
		} else if a, err := xlsmap.ParseAddress(ref); err == nil {
			rows = max(rows, a.Row+1)
			cols = max(cols, a.Col+1)
		}
	}
	for _, r := range s.MergedRegions() {
		rows = max(rows, r.End.Row+1)
		cols = max(cols, r.End.Col+1)
	}
	return rows, cols
}

// CellText implements xlsmap.Sheet.
func (s *Sheet) CellText(row, col int) string {
	name := cellName(row, col)
	if name == "" {
		return ""
	}
	v, err := s.f.GetCellValue(s.name, name, rawValues)
	if err != nil {
		return ""
	}
	return v
}

// grow widens the cached dimension to cover a written cell.
func (s *Sheet) grow(row, col int) {
	if s.dimLoaded {
		s.rows = max(s.rows, row+1)
		s.cols = max(s.cols, col+1)
	}
}

// SetCellValue implements xlsmap.Sheet. A nil value clears the content
// and any formula, keeping the style.
func (s *Sheet) SetCellValue(row, col int, v any) error {
	name := cellName(row, col)
	if name == "" {
		return fmt.Errorf("cell %s: out of range", xlsmap.Addr(row, col))
	}
	if v == nil {
		if err := s.f.SetCellFormula(s.name, name, ""); err != nil {
			return err
		}
		return s.f.SetCellValue(s.name, name, "")
	}
	s.grow(row, col)
	return s.f.SetCellValue(s.name, name, v)
}

// CellFormula implements xlsmap.Sheet.
func (s *Sheet) CellFormula(row, col int) string {
	name := cellName(row, col)
	if name == "" {
		return ""
	}
	v, err := s.f.GetCellFormula(s.name, name)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(v, "=")
}

// SetCellFormula implements xlsmap.Sheet.
func (s *Sheet) SetCellFormula(row, col int, formula string) error {
	name := cellName(row, col)
	if name == "" {
		return fmt.Errorf("cell %s: out of range", xlsmap.Addr(row, col))
	}
	s.grow(row, col)
	return s.f.SetCellFormula(s.name, name, formula)
}

func (s *Sheet) loadComments() {
	if s.comments != nil {
		return
	}
	s.comments = map[string]string{}
	comments, err := s.f.GetComments(s.name)
	if err != nil {
		return
	}
	for _, c := range comments {
		if len(c.Paragraph) == 0 {
			s.comments[c.Cell] = c.Text
			continue
		}
		var b strings.Builder
		for _, run := range c.Paragraph {
			b.WriteString(run.Text)
		}
		s.comments[c.Cell] = b.String()
	}
}

// Comment implements xlsmap.Sheet.
func (s *Sheet) Comment(row, col int) string {
	s.loadComments()
	return s.comments[cellName(row, col)]
}

// SetComment implements xlsmap.Sheet.
func (s *Sheet) SetComment(row, col int, text string) error {
	name := cellName(row, col)
	if name == "" {
		return fmt.Errorf("cell %s: out of range", xlsmap.Addr(row, col))
	}
	s.loadComments()
	if _, ok := s.comments[name]; ok {
		if err := s.f.DeleteComment(s.name, name); err != nil {
			return err
		}
		delete(s.comments, name)
	}
	if err := s.f.AddComment(s.name, excelize.Comment{
		Cell:      name,
		Paragraph: []excelize.RichTextRun{{Text: text}},
	}); err != nil {
		return err
	}
	s.comments[name] = text
	return nil
}

func (s *Sheet) loadMerges() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.merges = nil
	cells, err := s.f.GetMergeCells(s.name)
	if err != nil {
		return
	}
	for _, mc := range cells {
		start, err1 := xlsmap.ParseAddress(mc.GetStartAxis())
		end, err2 := xlsmap.ParseAddress(mc.GetEndAxis())
		if err1 != nil || err2 != nil {
			continue
		}
		s.merges = append(s.merges, xlsmap.NewRegion(start, end))
	}
}

func (s *Sheet) invalidate() {
	s.loaded = false
	s.dimLoaded = false
	s.comments = nil
}

// MergedRegion implements xlsmap.Sheet.
func (s *Sheet) MergedRegion(row, col int) (xlsmap.Region, bool) {
	s.loadMerges()
	a := xlsmap.Addr(row, col)
	for _, r := range s.merges {
		if r.Contains(a) {
			return r, true
		}
	}
	return xlsmap.Region{}, false
}

// MergedRegions implements xlsmap.Sheet.
func (s *Sheet) MergedRegions() []xlsmap.Region {
	s.loadMerges()
	return append([]xlsmap.Region(nil), s.merges...)
}

// MergeCells implements xlsmap.Sheet.
func (s *Sheet) MergeCells(r xlsmap.Region) error {
	defer s.invalidate()
	return s.f.MergeCell(s.name, r.Start.String(), r.End.String())
}

// UnmergeCells implements xlsmap.Sheet.
func (s *Sheet) UnmergeCells(r xlsmap.Region) error {
	defer s.invalidate()
	return s.f.UnmergeCell(s.name, r.Start.String(), r.End.String())
}

func (s *Sheet) style(row, col int) *excelize.Style {
	name := cellName(row, col)
	if name == "" {
		return nil
	}
	id, err := s.f.GetCellStyle(s.name, name)
	if err != nil || id == 0 {
		return nil
	}
	if st, ok := s.styles[id]; ok {
		return st
	}
	st, err := s.f.GetStyle(id)
	if err != nil {
		return nil
	}
	s.styles[id] = st
	return st
}

// HasBorder implements xlsmap.Sheet.
func (s *Sheet) HasBorder(row, col int, side xlsmap.Side) bool {
	st := s.style(row, col)
	if st == nil {
		return false
	}
	want := side.String()
	for _, b := range st.Border {
		if b.Type == want && b.Style > 0 {
			return true
		}
	}
	return false
}

// CopyCellStyle implements xlsmap.Sheet.
func (s *Sheet) CopyCellStyle(src, dst xlsmap.CellAddress) error {
	from, to := cellName(src.Row, src.Col), cellName(dst.Row, dst.Col)
	if from == "" || to == "" {
		return fmt.Errorf("copy style %s to %s: out of range", src, dst)
	}
	id, err := s.f.GetCellStyle(s.name, from)
	if err != nil {
		return err
	}
	return s.f.SetCellStyle(s.name, to, to, id)
}

// InsertRows implements xlsmap.Sheet.
func (s *Sheet) InsertRows(at, n int) error {
	if n == 0 {
		return nil
	}
	defer s.invalidate()
	return s.f.InsertRows(s.name, at+1, n)
}

// DeleteRows implements xlsmap.Sheet.
func (s *Sheet) DeleteRows(at, n int) error {
	defer s.invalidate()
	for range n {
		if err := s.f.RemoveRow(s.name, at+1); err != nil {
			return err
		}
	}
	return nil
}

// InsertCols implements xlsmap.Sheet.
func (s *Sheet) InsertCols(at, n int) error {
	if n == 0 {
		return nil
	}
	defer s.invalidate()
	return s.f.InsertCols(s.name, xlsmap.ColumnName(at), n)
}

// DeleteCols implements xlsmap.Sheet.
func (s *Sheet) DeleteCols(at, n int) error {
	defer s.invalidate()
	for range n {
		if err := s.f.RemoveCol(s.name, xlsmap.ColumnName(at)); err != nil {
			return err
		}
	}
	return nil
}
