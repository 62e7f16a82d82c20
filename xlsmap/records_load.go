package xlsmap

import (
	"fmt"
	"reflect"
	"strings"
)

func (b *binder) loadTable(s scope, d *Directive) error {
	path := s.at(d.Field)
	td := d.Table
	tl, missing := locateTable(b.sh, td, b.cfg)
	if missing != nil {
		if td.Optional {
			b.absent(path, missing.cell, missing.message)
			return nil
		}
		return b.fail(CellNotFound, path, missing.cell, nil, "%s", missing.message)
	}
	tl.findEnd(td, b.cfg)
	if !tl.endFound {
		if td.Optional {
			b.absent(path, nil, fmt.Sprintf("terminal label %q not found", td.TerminalLabel))
			return nil
		}
		a := tl.view.addr(tl.dataStart, tl.firstField())
		return b.fail(CellNotFound, path, &a, nil, "terminal label %q not found", td.TerminalLabel)
	}
	v, err := b.loadRecords(tl, td, d, path, tl.dataStart, tl.dataEnd, 1)
	if err != nil {
		return err
	}
	s.field(d).Set(v)
	b.cfg.Logger.Debug("loaded table", "sheet", b.sh.Name(), "path", path,
		"headers", len(tl.headers), "records", v.Len())
	return nil
}

func (b *binder) depthGuard(path string, depth int) error {
	if depth <= b.cfg.MaxNestingDepth {
		return nil
	}
	return b.fail(DirectiveInvalid, path, nil, nil, "records nest deeper than %d levels", b.cfg.MaxNestingDepth)
}

// loadRecords reads the records of d lying in [start, end) on the record
// axis. Each record spans as many records as its tallest merged column.
func (b *binder) loadRecords(tl *tableLayout, td *TableDirective, d *Directive, path string, start, end, depth int) (reflect.Value, error) {
	if err := b.depthGuard(path, depth); err != nil {
		return reflect.Value{}, err
	}
	out := reflect.Zero(d.typ)
	ptr := d.typ.Elem().Kind() == reflect.Pointer
	for rec := start; rec < end; {
		h := b.recordHeight(tl, d.elem, rec, end)
		recPath := indexPath(path, out.Len())
		rv := reflect.New(d.elemType).Elem()
		if err := b.loadRecord(tl, td, scope{v: rv, spec: d.elem, path: recPath}, rec, rec+h, depth); err != nil {
			return reflect.Value{}, err
		}
		if !td.KeepEmpty && recordEmpty(d.elem, rv) {
			b.cfg.Logger.Debug("skipped empty record", "sheet", b.sh.Name(), "path", path, "at", tl.view.addr(rec, tl.firstField()).String())
			b.dropPaths(recPath)
		} else if ptr {
			out = reflect.Append(out, rv.Addr())
		} else {
			out = reflect.Append(out, rv)
		}
		rec += h
	}
	return out, nil
}

// dropPaths forgets the metadata recorded for a discarded record.
func (b *binder) dropPaths(prefix string) {
	for _, m := range []map[string]string{b.res.Labels, b.res.Comments} {
		for k := range m {
			if hasPathPrefix(k, prefix) {
				delete(m, k)
			}
		}
	}
	for k := range b.res.Positions {
		if hasPathPrefix(k, prefix) {
			delete(b.res.Positions, k)
		}
	}
}

func hasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '.' || rest[0] == '['
}

// recordHeight is the record-axis span of the record starting at rec: the
// tallest merged region anchored on that record among its own columns.
func (b *binder) recordHeight(tl *tableLayout, spec *modelSpec, rec, end int) int {
	h := 1
	for _, d := range spec.fields {
		if d.Kind != KindColumn && d.Kind != KindArrayColumns {
			continue
		}
		col, ok := tl.column(d.Column, b.cfg)
		if !ok {
			continue
		}
		fld := col.fld
		if d.Kind == KindColumn {
			fld += d.HeaderMerged
		}
		e := tl.view.extent(rec, fld)
		if e.merged && e.rec0 == rec && e.records() > h {
			h = e.records()
		}
	}
	if rec+h > end {
		h = end - rec
	}
	return max(h, 1)
}

func recordEmpty(spec *modelSpec, rv reflect.Value) bool {
	if spec.emptier {
		if e, ok := rv.Interface().(Emptier); ok {
			return e.IsEmpty()
		}
		return rv.Addr().Interface().(Emptier).IsEmpty()
	}
	for _, d := range spec.fields {
		if d.Key {
			continue
		}
		if !isEmptyValue(rv.FieldByIndex(d.index)) {
			return false
		}
	}
	return true
}

// missingColumn reports a column header that is not in the table.
func (b *binder) missingColumn(tl *tableLayout, d *Directive, path string, name Label) error {
	if d.Optional {
		b.absent(path, nil, fmt.Sprintf("column %q not found", name))
		return nil
	}
	a := tl.view.addr(tl.headerRec, tl.firstField())
	return b.fail(CellNotFound, path, &a, nil, "column %q not found in table header", name)
}

// loadRecord reads one record spanning [rec0, rec1) on the record axis.
func (b *binder) loadRecord(tl *tableLayout, td *TableDirective, s scope, rec0, rec1, depth int) error {
	view := tl.view
	for _, d := range s.spec.fields {
		path := s.at(d.Field)
		switch d.Kind {
		case KindColumn:
			col, ok := tl.column(d.Column, b.cfg)
			if !ok {
				if err := b.missingColumn(tl, d, path, d.Column); err != nil {
					return err
				}
				continue
			}
			if d.HeaderMerged >= col.width {
				if err := b.missingColumn(tl, d, path, d.Column); err != nil {
					return err
				}
				continue
			}
			a := view.addr(rec0, col.fld+d.HeaderMerged)
			if err := b.read(path, a, s.field(d), d.Merged, d.Converter); err != nil {
				return err
			}
			b.mark(s, path, a)
			b.markLabel(s, path, col.text)

		case KindArrayColumns:
			col, ok := tl.column(d.Column, b.cfg)
			if !ok {
				if err := b.missingColumn(tl, d, path, d.Column); err != nil {
					return err
				}
				continue
			}
			dst := s.field(d)
			if dst.Kind() == reflect.Slice {
				dst.Set(reflect.MakeSlice(dst.Type(), d.Size, d.Size))
			}
			fld := col.fld
			for i := 0; i < d.Size; i++ {
				a := view.addr(rec0, fld)
				elemPath := indexPath(path, i)
				if err := b.read(elemPath, a, dst.Index(i), d.Merged, d.Converter); err != nil {
					return err
				}
				b.mark(s, elemPath, a)
				fld = nextField(view, rec0, fld, d.ElementMerged)
			}
			b.markLabel(s, path, col.text)

		case KindMapColumns:
			first, last, ok := mapColumnRange(tl, d, b.cfg)
			if !ok {
				name := d.Previous
				if first >= 0 {
					name = d.Next
				}
				if err := b.missingColumn(tl, d, path, name); err != nil {
					return err
				}
				continue
			}
			if err := b.loadMapColumns(tl, s, d, path, rec0, first, last); err != nil {
				return err
			}

		case KindNestedRecords:
			dst := s.field(d)
			if d.plural {
				v, err := b.loadRecords(tl, td, d, path, rec0, rec1, depth+1)
				if err != nil {
					return err
				}
				dst.Set(v)
				continue
			}
			if err := b.depthGuard(path, depth+1); err != nil {
				return err
			}
			child := reflect.New(d.elemType)
			if err := b.loadRecord(tl, td, scope{v: child.Elem(), spec: d.elem, path: path}, rec0, rec1, depth+1); err != nil {
				return err
			}
			if dst.Kind() == reflect.Pointer {
				dst.Set(child)
			} else {
				dst.Set(child.Elem())
			}
		}
	}
	return nil
}

// nextField steps to the next element cell along the field axis.
func nextField(view tableView, rec, fld int, elementMerged bool) int {
	if elementMerged {
		if e := view.extent(rec, fld); e.merged {
			return e.fld1 + 1
		}
	}
	return fld + 1
}

// mapColumnRange returns the header indexes strictly between the previous
// and next headers. When the previous header is missing first is -1.
func mapColumnRange(tl *tableLayout, d *Directive, cfg *Config) (first, last int, ok bool) {
	prev := tl.columnIndex(d.Previous, cfg, 0)
	if prev < 0 {
		return -1, -1, false
	}
	end := len(tl.headers)
	if !d.Next.IsZero() {
		end = tl.columnIndex(d.Next, cfg, prev+1)
		if end < 0 {
			return prev + 1, -1, false
		}
	}
	return prev + 1, end, true
}

func (b *binder) loadMapColumns(tl *tableLayout, s scope, d *Directive, path string, rec, first, last int) error {
	dst := s.field(d)
	var om orderedMap
	if d.ordered {
		dst.Set(reflect.Zero(dst.Type()))
		om = dst.Addr().Interface().(orderedMap)
	} else {
		dst.Set(reflect.MakeMapWithSize(dst.Type(), last-first))
	}
	for _, h := range tl.headers[first:last] {
		a := tl.view.addr(rec, h.fld)
		keyPath := path + "[" + h.text + "]"
		v := reflect.New(d.elemType).Elem()
		if err := b.read(keyPath, a, v, d.Merged, d.Converter); err != nil {
			return err
		}
		if om != nil {
			om.setValue(h.text, v)
		} else {
			dst.SetMapIndex(reflect.ValueOf(h.text).Convert(dst.Type().Key()), v)
		}
		b.mark(s, keyPath, a)
		b.markLabel(s, keyPath, h.text)
	}
	return nil
}
