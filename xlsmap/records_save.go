package xlsmap

import (
	"fmt"
	"reflect"
)

// ReconciliationPlan is how Save fitted the supplied records into a
// template table. Counts are in record-axis cells: rows for a horizontal
// table, columns for a vertical one.
type ReconciliationPlan struct {
	// Capacity is the room between the data start and the terminal.
	Capacity int

	// Supplied is the room the records need.
	Supplied int

	// Excess is Supplied beyond Capacity.
	Excess int

	// Shortfall is Capacity left unused.
	Shortfall int

	// Over and Remained are the policies applied.
	Over     OverPolicy
	Remained RemainedPolicy

	// OpenEnded is set for tables ending at the first empty record. Their
	// capacity runs on over the blank records below the template, up to
	// the first record holding content.
	OpenEnded bool

	// Written is the number of records written.
	Written int
}

func newPlan(capacity, supplied int, td *TableDirective) ReconciliationPlan {
	p := ReconciliationPlan{
		Capacity:  capacity,
		Supplied:  supplied,
		Over:      td.Over,
		Remained:  td.Remained,
		OpenEnded: td.Terminal == TerminalEmpty,
	}
	if supplied > capacity {
		p.Excess = supplied - capacity
	} else {
		p.Shortfall = capacity - supplied
	}
	return p
}

// pendingFormula is a formula waiting for its table extent.
type pendingFormula struct {
	d      *Directive
	path   string
	cell   CellAddress
	index  int
	record reflect.Value
}

type tableWrite struct {
	tl      *tableLayout
	td      *TableDirective
	pending []pendingFormula
}

func (b *binder) saveTable(s scope, d *Directive) error {
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

	recs := s.field(d)
	n := recs.Len()
	heights := make([]int, n)
	supplied := 0
	for i := range n {
		heights[i] = saveHeight(d.elem, recs.Index(i))
		supplied += heights[i]
	}
	template := tl.dataEnd - tl.dataStart
	capacity := template
	if td.Terminal == TerminalEmpty && supplied > capacity {
		capacity += tl.blankRecords(tl.dataEnd, supplied-capacity)
	}
	plan := newPlan(capacity, supplied, td)
	view := tl.view

	if plan.OpenEnded && td.Over == OverCopy {
		if err := b.copyRecordStyle(tl, template, template, min(capacity, supplied)); err != nil {
			return err
		}
	}
	if plan.Excess > 0 {
		switch td.Over {
		case OverInsert:
			if err := view.insert(tl.dataStart+capacity, plan.Excess); err != nil {
				return fmt.Errorf("insert records into %s: %w", path, err)
			}
			if err := b.copyRecordStyle(tl, template, capacity, supplied); err != nil {
				return err
			}
		case OverError:
			a := view.addr(tl.dataStart, tl.firstField())
			return b.fail(SizeMismatch, path, &a, nil, "table capacity is %d, %d supplied", capacity, supplied)
		case OverBreak:
			used, kept := 0, 0
			for kept < n && used+heights[kept] <= capacity {
				used += heights[kept]
				kept++
			}
			b.cfg.Logger.Debug("dropped records beyond table capacity", "sheet", b.sh.Name(), "path", path,
				"capacity", capacity, "supplied", supplied, "kept", kept)
			n = kept
		case OverCopy:
			if err := b.copyRecordStyle(tl, template, capacity, supplied); err != nil {
				return err
			}
		}
	}

	w := &tableWrite{tl: tl, td: td}
	cursor := tl.dataStart
	for i := range n {
		rv := recs.Index(i)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				cursor += heights[i]
				continue
			}
			rv = rv.Elem()
		}
		sc := scope{v: rv, spec: d.elem, path: indexPath(path, i)}
		if err := b.saveRecord(w, sc, cursor, heights[i], i, 1); err != nil {
			return err
		}
		cursor += heights[i]
	}
	used := cursor - tl.dataStart
	plan.Written = n

	if used < capacity {
		if err := b.applyRemained(tl, td, used, capacity); err != nil {
			return fmt.Errorf("reconcile %s: %w", path, err)
		}
	}
	b.res.Plans[path] = plan

	extent := tl.bounds(used)
	for _, p := range w.pending {
		fc := FormulaContext{Cell: p.cell, InTable: true, RecordIndex: p.index, Table: extent, Record: p.record.Interface()}
		if err := b.writeFormula(p.path, p.d, fc); err != nil {
			return err
		}
	}
	b.cfg.Logger.Debug("saved table", "sheet", b.sh.Name(), "path", path,
		"capacity", plan.Capacity, "supplied", plan.Supplied, "written", plan.Written)
	return nil
}

// copyRecordStyle copies the formatting of the last of the template
// records onto the records in [from, to).
func (b *binder) copyRecordStyle(tl *tableLayout, template, from, to int) error {
	if template == 0 {
		return nil
	}
	src := tl.dataStart + template - 1
	for rec := tl.dataStart + from; rec < tl.dataStart+to; rec++ {
		for fld := tl.firstField(); fld <= tl.lastField(); fld++ {
			if err := b.sh.CopyCellStyle(tl.view.addr(src, fld), tl.view.addr(rec, fld)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *binder) applyRemained(tl *tableLayout, td *TableDirective, used, capacity int) error {
	switch td.Remained {
	case RemainedClear:
		for rec := tl.dataStart + used; rec < tl.dataStart+capacity; rec++ {
			for fld := tl.firstField(); fld <= tl.lastField(); fld++ {
				a := tl.view.addr(rec, fld)
				if err := b.sh.SetCellValue(a.Row, a.Col, nil); err != nil {
					return err
				}
			}
		}
	case RemainedDelete:
		return tl.view.remove(tl.dataStart+used, capacity-used)
	}
	return nil
}

// saveHeight is the record-axis room a record needs: one, or the total of
// its tallest nested list.
func saveHeight(spec *modelSpec, rv reflect.Value) int {
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return 1
		}
		rv = rv.Elem()
	}
	h := 1
	for _, d := range spec.fields {
		if d.Kind != KindNestedRecords {
			continue
		}
		fv := rv.FieldByIndex(d.index)
		if !d.plural {
			h = max(h, saveHeight(d.elem, fv))
			continue
		}
		sum := 0
		for i := range fv.Len() {
			sum += saveHeight(d.elem, fv.Index(i))
		}
		h = max(h, sum)
	}
	return h
}

// saved records where a field was written and writes its comment, if the
// model carries one for it.
func (b *binder) saved(s scope, path string, a CellAddress) error {
	b.res.Positions[path] = a
	if text, ok := metaString(s, s.spec.comments, s.relKey(path)); ok {
		if err := b.sh.SetComment(a.Row, a.Col, text); err != nil {
			return fmt.Errorf("comment %s!%s: %w", b.sh.Name(), a, err)
		}
	}
	return nil
}

// mergeSpan merges a region, replacing template merges it overlaps.
func (b *binder) mergeSpan(r Region) error {
	if r.Single() {
		return nil
	}
	for _, m := range b.sh.MergedRegions() {
		if m.Overlaps(r) {
			if err := b.sh.UnmergeCells(m); err != nil {
				return err
			}
		}
	}
	return b.sh.MergeCells(r)
}

func (b *binder) saveRecord(w *tableWrite, s scope, rec, height, index, depth int) error {
	if err := b.depthGuard(s.path, depth); err != nil {
		return err
	}
	tl := w.tl
	view := tl.view
	for _, d := range s.spec.fields {
		path := s.at(d.Field)
		fv := s.field(d)
		switch d.Kind {
		case KindColumn:
			col, ok := tl.column(d.Column, b.cfg)
			if !ok || d.HeaderMerged >= col.width {
				if err := b.missingColumn(tl, d, path, d.Column); err != nil {
					return err
				}
				continue
			}
			fld := col.fld + d.HeaderMerged
			a := view.addr(rec, fld)
			if b.wantsFormula(d, fv) {
				w.pending = append(w.pending, pendingFormula{d: d, path: path, cell: a, index: index, record: s.v})
			} else if err := b.write(path, a, fv, d.Converter); err != nil {
				return err
			}
			if height > 1 && d.Merged {
				if err := b.mergeSpan(view.region(rec, fld, rec+height-1, fld)); err != nil {
					return fmt.Errorf("merge %s: %w", path, err)
				}
			}
			if err := b.saved(s, path, a); err != nil {
				return err
			}

		case KindArrayColumns:
			col, ok := tl.column(d.Column, b.cfg)
			if !ok {
				if err := b.missingColumn(tl, d, path, d.Column); err != nil {
					return err
				}
				continue
			}
			if fv.Len() > d.Size {
				a := view.addr(rec, col.fld)
				return b.fail(SizeMismatch, path, &a, nil, "%d elements for %d columns", fv.Len(), d.Size)
			}
			fld := col.fld
			for i := 0; i < d.Size; i++ {
				a := view.addr(rec, fld)
				elemPath := indexPath(path, i)
				if i < fv.Len() {
					if err := b.write(elemPath, a, fv.Index(i), d.Converter); err != nil {
						return err
					}
				} else if err := b.sh.SetCellValue(a.Row, a.Col, nil); err != nil {
					return err
				}
				if err := b.saved(s, elemPath, a); err != nil {
					return err
				}
				fld = nextField(view, rec, fld, d.ElementMerged)
			}

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
			for _, h := range tl.headers[first:last] {
				v, ok := mapLookup(fv, d, h.text)
				if !ok {
					continue
				}
				a := view.addr(rec, h.fld)
				keyPath := path + "[" + h.text + "]"
				if err := b.write(keyPath, a, v, d.Converter); err != nil {
					return err
				}
				if err := b.saved(s, keyPath, a); err != nil {
					return err
				}
			}

		case KindNestedRecords:
			if !d.plural {
				child := fv
				if child.Kind() == reflect.Pointer {
					if child.IsNil() {
						continue
					}
					child = child.Elem()
				}
				if err := b.saveRecord(w, scope{v: child, spec: d.elem, path: path}, rec, height, index, depth+1); err != nil {
					return err
				}
				continue
			}
			cursor := rec
			for i := range fv.Len() {
				child := fv.Index(i)
				h := saveHeight(d.elem, child)
				if child.Kind() == reflect.Pointer {
					if child.IsNil() {
						cursor += h
						continue
					}
					child = child.Elem()
				}
				if err := b.saveRecord(w, scope{v: child, spec: d.elem, path: indexPath(path, i)}, cursor, h, i, depth+1); err != nil {
					return err
				}
				cursor += h
			}
		}
	}
	return nil
}

func mapLookup(m reflect.Value, d *Directive, key string) (reflect.Value, bool) {
	if d.ordered {
		if !m.CanAddr() {
			c := reflect.New(m.Type()).Elem()
			c.Set(m)
			m = c
		}
		return m.Addr().Interface().(orderedMap).lookup(key)
	}
	if m.IsNil() {
		return reflect.Value{}, false
	}
	v := m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key()))
	return v, v.IsValid()
}
