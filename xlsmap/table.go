package xlsmap

import (
	"fmt"
	"reflect"
)

// tableView addresses a sheet along a record axis and a field axis, so one
// implementation serves both table orientations. A horizontal table has a
// record per row; a vertical table has a record per column.
type tableView struct {
	sh       Sheet
	vertical bool
}

func (v tableView) addr(rec, fld int) CellAddress {
	if v.vertical {
		return Addr(fld, rec)
	}
	return Addr(rec, fld)
}

func (v tableView) split(a CellAddress) (rec, fld int) {
	if v.vertical {
		return a.Col, a.Row
	}
	return a.Row, a.Col
}

func (v tableView) text(rec, fld int, mergeAware bool) string {
	return cellText(v.sh, v.addr(rec, fld), mergeAware)
}

// extent is the merged region around a cell in view coordinates.
type extent struct {
	rec0, rec1 int
	fld0, fld1 int
	merged     bool
}

func (e extent) records() int { return e.rec1 - e.rec0 + 1 }

func (v tableView) extent(rec, fld int) extent {
	a := v.addr(rec, fld)
	r, ok := v.sh.MergedRegion(a.Row, a.Col)
	if !ok {
		return extent{rec0: rec, rec1: rec, fld0: fld, fld1: fld}
	}
	r0, f0 := v.split(r.Start)
	r1, f1 := v.split(r.End)
	return extent{rec0: r0, rec1: r1, fld0: f0, fld1: f1, merged: true}
}

// region builds a sheet region from view coordinates.
func (v tableView) region(rec0, fld0, rec1, fld1 int) Region {
	return NewRegion(v.addr(rec0, fld0), v.addr(rec1, fld1))
}

func (v tableView) limits() (recs, flds int) {
	rows, cols := v.sh.Dimension()
	if v.vertical {
		return cols, rows
	}
	return rows, cols
}

func (v tableView) leadingSide() Side {
	if v.vertical {
		return SideTop
	}
	return SideLeft
}

func (v tableView) insert(at, n int) error {
	if v.vertical {
		return v.sh.InsertCols(at, n)
	}
	return v.sh.InsertRows(at, n)
}

func (v tableView) remove(at, n int) error {
	if v.vertical {
		return v.sh.DeleteCols(at, n)
	}
	return v.sh.DeleteRows(at, n)
}

// header is one header cell of a table.
type header struct {
	text  string
	fld   int
	width int
}

// tableLayout is a located table.
type tableLayout struct {
	view      tableView
	headerRec int
	headers   []header
	depth     int
	dataStart int

	// dataEnd is exclusive.
	dataEnd int

	// endFound is false when a label terminal was not found.
	endFound bool
}

func (tl *tableLayout) firstField() int { return tl.headers[0].fld }

func (tl *tableLayout) lastField() int {
	h := tl.headers[len(tl.headers)-1]
	return h.fld + h.width - 1
}

// column finds the header matching a label.
func (tl *tableLayout) column(l Label, cfg *Config) (header, bool) {
	for _, h := range tl.headers {
		if l.Matches(h.text, cfg) {
			return h, true
		}
	}
	return header{}, false
}

func (tl *tableLayout) columnIndex(l Label, cfg *Config, from int) int {
	for i := from; i < len(tl.headers); i++ {
		if l.Matches(tl.headers[i].text, cfg) {
			return i
		}
	}
	return -1
}

// bounds is the data body in sheet coordinates, given its record count.
func (tl *tableLayout) bounds(records int) Region {
	if records < 1 {
		records = 1
	}
	return tl.view.region(tl.dataStart, tl.firstField(), tl.dataStart+records-1, tl.lastField())
}

// errTableMissing means the table's label or header could not be found.
type errTableMissing struct {
	cell    *CellAddress
	message string
}

func (e *errTableMissing) Error() string { return e.message }

// locateTable finds the header of a table and reads its header cells.
func locateTable(sh Sheet, td *TableDirective, cfg *Config) (*tableLayout, *errTableMissing) {
	view := tableView{sh: sh, vertical: td.Vertical}
	var origin CellAddress
	if td.HasHeaderAddress {
		origin = td.HeaderAddress
	} else {
		hit, ok := findLabelCell(sh, td.Label, sheetBounds(sh), true, cfg)
		if !ok {
			return nil, &errTableMissing{message: fmt.Sprintf("table label %q not found", td.Label)}
		}
		if td.Vertical {
			origin = Addr(hit.Span.Start.Row, hit.Span.End.Col+td.Offset)
		} else {
			origin = Addr(hit.Span.End.Row+td.Offset, hit.Span.Start.Col)
		}
	}
	tl := &tableLayout{view: view, depth: 1}
	rec, fld := view.split(origin)
	tl.headerRec = rec
	_, fldLimit := view.limits()
	for fld < fldLimit {
		if td.HeaderLimit > 0 && len(tl.headers) == td.HeaderLimit {
			break
		}
		text := view.text(rec, fld, true)
		if text == "" {
			break
		}
		e := view.extent(rec, fld)
		h := header{text: text, fld: fld, width: 1}
		if e.merged {
			h.width = e.fld1 - fld + 1
			if depth := e.rec1 - rec + 1; depth > tl.depth {
				tl.depth = depth
			}
		}
		tl.headers = append(tl.headers, h)
		fld += h.width
	}
	if len(tl.headers) == 0 {
		return nil, &errTableMissing{cell: &origin, message: fmt.Sprintf("no table header at %s", origin)}
	}
	tl.dataStart = rec + tl.depth - 1 + td.DataOffset
	return tl, nil
}

// findEnd applies the terminal policy and sets dataEnd.
func (tl *tableLayout) findEnd(td *TableDirective, cfg *Config) {
	view := tl.view
	recLimit, _ := view.limits()
	rec := tl.dataStart
	tl.endFound = true
	for ; rec < recLimit; rec++ {
		if tl.terminates(rec, td, cfg) {
			tl.dataEnd = rec
			return
		}
	}
	tl.dataEnd = rec
	if td.Terminal == TerminalLabel {
		tl.endFound = false
	}
}

// blankRecords counts the records from rec on with every field blank,
// stopping at limit.
func (tl *tableLayout) blankRecords(rec, limit int) int {
	for n := 0; n < limit; n++ {
		for fld := tl.firstField(); fld <= tl.lastField(); fld++ {
			if tl.view.text(rec+n, fld, true) != "" {
				return n
			}
		}
	}
	return limit
}

func (tl *tableLayout) terminates(rec int, td *TableDirective, cfg *Config) bool {
	view := tl.view
	switch td.Terminal {
	case TerminalBorder:
		a := view.addr(rec, tl.firstField())
		return !view.sh.HasBorder(a.Row, a.Col, view.leadingSide())
	case TerminalEmpty:
		for fld := tl.firstField(); fld <= tl.lastField(); fld++ {
			if view.text(rec, fld, true) != "" {
				return false
			}
		}
		return true
	case TerminalLabel:
		for fld := tl.firstField(); fld <= tl.lastField(); fld++ {
			if td.TerminalLabel.Matches(view.text(rec, fld, false), cfg) {
				return true
			}
		}
	}
	return false
}

// Table is a table read without a model: its headers and the cell text
// of every record.
type Table struct {
	// Headers are the header texts in field order.
	Headers []string

	// Records hold one text per header. Merged header cells contribute
	// one value, read from their first field.
	Records [][]string

	// Region is the data body, or the header row when the table is empty.
	Region Region
}

// ReadTable reads the table described by td from a sheet.
func (m *Mapper) ReadTable(sh Sheet, td TableDirective) (*Table, error) {
	if td.Offset == 0 {
		td.Offset = 1
	}
	if td.DataOffset == 0 {
		td.DataOffset = 1
	}
	if !td.HasHeaderAddress && td.Label.IsZero() {
		return nil, &DirectiveError{Type: "Table", Message: "table needs a label or a header address"}
	}
	tl, missing := locateTable(sh, &td, m.cfg)
	if missing != nil {
		b := newBinder(m.cfg, sh, reflect.Value{})
		return nil, b.fail(CellNotFound, "", missing.cell, nil, "%s", missing.message)
	}
	tl.findEnd(&td, m.cfg)
	if !tl.endFound {
		a := tl.view.addr(tl.dataStart, tl.firstField())
		b := newBinder(m.cfg, sh, reflect.Value{})
		return nil, b.fail(CellNotFound, "", &a, nil, "terminal label %q not found", td.TerminalLabel)
	}
	t := &Table{}
	for _, h := range tl.headers {
		t.Headers = append(t.Headers, h.text)
	}
	for rec := tl.dataStart; rec < tl.dataEnd; rec++ {
		row := make([]string, len(tl.headers))
		blank := true
		for i, h := range tl.headers {
			row[i] = tl.view.text(rec, h.fld, true)
			if row[i] != "" {
				blank = false
			}
		}
		if blank && !td.KeepEmpty {
			continue
		}
		t.Records = append(t.Records, row)
	}
	if tl.dataEnd > tl.dataStart {
		t.Region = tl.bounds(tl.dataEnd - tl.dataStart)
	} else {
		t.Region = tl.view.region(tl.headerRec, tl.firstField(), tl.headerRec, tl.lastField())
	}
	m.cfg.Logger.Debug("read table", "sheet", sh.Name(), "headers", len(t.Headers), "records", len(t.Records))
	return t, nil
}
