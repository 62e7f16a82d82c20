package xlsmap

import (
	"fmt"
	"reflect"
)

func (b *binder) loadModel(s scope) error {
	for _, d := range s.spec.fields {
		var err error
		switch d.Kind {
		case KindCell:
			err = b.loadCell(s, d)
		case KindLabelledCell:
			err = b.loadLabelled(s, d)
		case KindArrayCells, KindLabelledArrayCells:
			err = b.loadArray(s, d)
		case KindComment:
			err = b.loadComment(s, d)
		case KindHorizontalRecords, KindVerticalRecords:
			err = b.loadTable(s, d)
		}
		if err != nil {
			return err
		}
	}
	if sd := s.spec.sheet; sd != nil && sd.Field != "_" {
		s.field(sd).SetString(b.sh.Name())
	}
	return nil
}

func (b *binder) saveModel(s scope) error {
	for _, d := range s.spec.fields {
		var err error
		switch d.Kind {
		case KindCell, KindLabelledCell:
			err = b.saveCell(s, d)
		case KindArrayCells, KindLabelledArrayCells:
			err = b.saveArray(s, d)
		case KindComment:
			err = b.saveComment(s, d)
		case KindHorizontalRecords, KindVerticalRecords:
			err = b.saveTable(s, d)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// locate finds the label of a labelled directive. found is false, with a
// nil error, for an optional label that is absent.
func (b *binder) locate(s scope, d *Directive, path string) (hit labelHit, found bool, err error) {
	hit, ok := findLabelCell(b.sh, d.Label, sheetBounds(b.sh), d.LabelMerged, b.cfg)
	if !ok {
		if d.Optional {
			b.absent(path, nil, fmt.Sprintf("label %q not found", d.Label))
			return hit, false, nil
		}
		return hit, false, b.fail(CellNotFound, path, nil, nil, "label %q not found", d.Label)
	}
	b.markLabel(s, path, hit.Text)
	return hit, true, nil
}

// valueCell resolves the cell a cell or labelled directive binds to.
func (b *binder) valueCell(s scope, d *Directive, path string) (CellAddress, bool, error) {
	if d.Kind == KindCell {
		return d.Address, true, nil
	}
	hit, found, err := b.locate(s, d, path)
	if !found {
		return CellAddress{}, false, err
	}
	a, ok := resolveValueCell(b.sh, hit, d.Direction, d.Skip, d.Range)
	if !ok {
		return a, false, b.fail(CellNotFound, path, &hit.Cell, nil, "no cell %s of label %q", d.Direction, d.Label)
	}
	return a, true, nil
}

func (b *binder) loadCell(s scope, d *Directive) error {
	path := s.at(d.Field)
	a, _, err := b.valueCell(s, d, path)
	if err != nil {
		return err
	}
	if err := b.read(path, a, s.field(d), true, d.Converter); err != nil {
		return err
	}
	b.mark(s, path, a)
	return nil
}

func (b *binder) loadLabelled(s scope, d *Directive) error {
	path := s.at(d.Field)
	a, found, err := b.valueCell(s, d, path)
	if !found {
		return err
	}
	if err := b.read(path, a, s.field(d), d.Merged, d.Converter); err != nil {
		return err
	}
	b.mark(s, path, a)
	return nil
}

// arrayStart resolves the first element cell of an array directive.
func (b *binder) arrayStart(s scope, d *Directive, path string) (CellAddress, bool, error) {
	if d.Kind == KindArrayCells {
		return d.Address, true, nil
	}
	hit, found, err := b.locate(s, d, path)
	if !found {
		return CellAddress{}, false, err
	}
	a, ok := resolveValueCell(b.sh, hit, d.Direction, d.Skip, 0)
	if !ok {
		return a, false, b.fail(CellNotFound, path, &hit.Cell, nil, "no cell %s of label %q", d.Direction, d.Label)
	}
	return a, true, nil
}

// runDirection is the way array elements follow each other.
func (d *Directive) runDirection() Direction {
	if d.Kind == KindLabelledArrayCells {
		return d.ArrayDirection
	}
	return d.Direction
}

// arrayCells lists n element cells from start. With elementMerged a merged
// element occupies its whole region.
func arrayCells(sh Sheet, start CellAddress, dir Direction, n int, elementMerged bool) []CellAddress {
	dr, dc := dir.step()
	cells := make([]CellAddress, 0, n)
	a := start
	for len(cells) < n {
		cells = append(cells, a)
		if r, ok := sh.MergedRegion(a.Row, a.Col); ok && elementMerged && a.Valid() {
			switch dir {
			case Right:
				a = Addr(a.Row, r.End.Col+1)
			case Left:
				a = Addr(a.Row, r.Start.Col-1)
			case Down:
				a = Addr(r.End.Row+1, a.Col)
			case Up:
				a = Addr(r.Start.Row-1, a.Col)
			}
			continue
		}
		a = a.Offset(dr, dc)
	}
	return cells
}

func (b *binder) loadArray(s scope, d *Directive) error {
	path := s.at(d.Field)
	start, found, err := b.arrayStart(s, d, path)
	if !found {
		return err
	}
	dst := s.field(d)
	if dst.Kind() == reflect.Slice {
		dst.Set(reflect.MakeSlice(dst.Type(), d.Size, d.Size))
	}
	for i, a := range arrayCells(b.sh, start, d.runDirection(), d.Size, d.ElementMerged) {
		elemPath := indexPath(path, i)
		if !a.Valid() {
			return b.fail(CellNotFound, path, &start, nil, "element %d lies outside the sheet", i)
		}
		if err := b.read(elemPath, a, dst.Index(i), true, d.Converter); err != nil {
			return err
		}
		b.mark(s, elemPath, a)
	}
	return nil
}

func (b *binder) commentCell(s scope, d *Directive, path string) (CellAddress, bool, error) {
	if d.HasAddress {
		return d.Address, true, nil
	}
	hit, found, err := b.locate(s, d, path)
	return hit.Cell, found, err
}

func (b *binder) loadComment(s scope, d *Directive) error {
	path := s.at(d.Field)
	a, found, err := b.commentCell(s, d, path)
	if !found {
		return err
	}
	s.field(d).SetString(b.sh.Comment(a.Row, a.Col))
	b.res.Positions[path] = a
	return nil
}

func (b *binder) saveCell(s scope, d *Directive) error {
	path := s.at(d.Field)
	a, ok := metaPosition(s, s.relKey(path))
	if !ok {
		var found bool
		var err error
		a, found, err = b.valueCell(s, d, path)
		if !found {
			return err
		}
	}
	fv := s.field(d)
	if b.wantsFormula(d, fv) {
		if err := b.writeFormula(path, d, FormulaContext{Cell: a, RecordIndex: -1}); err != nil {
			return err
		}
	} else if err := b.write(path, a, fv, d.Converter); err != nil {
		return err
	}
	return b.saved(s, path, a)
}

func (b *binder) saveArray(s scope, d *Directive) error {
	path := s.at(d.Field)
	start, found, err := b.arrayStart(s, d, path)
	if !found {
		return err
	}
	fv := s.field(d)
	if fv.Len() > d.Size {
		return b.fail(SizeMismatch, path, &start, nil, "%d elements for %d cells", fv.Len(), d.Size)
	}
	for i, a := range arrayCells(b.sh, start, d.runDirection(), d.Size, d.ElementMerged) {
		elemPath := indexPath(path, i)
		if !a.Valid() {
			return b.fail(CellNotFound, path, &start, nil, "element %d lies outside the sheet", i)
		}
		if i < fv.Len() {
			err = b.write(elemPath, a, fv.Index(i), d.Converter)
		} else {
			err = b.sh.SetCellValue(a.Row, a.Col, nil)
		}
		if err != nil {
			return err
		}
		if err := b.saved(s, elemPath, a); err != nil {
			return err
		}
	}
	return nil
}

func (b *binder) saveComment(s scope, d *Directive) error {
	path := s.at(d.Field)
	a, found, err := b.commentCell(s, d, path)
	if !found {
		return err
	}
	b.res.Positions[path] = a
	text := s.field(d).String()
	if text == "" {
		return nil
	}
	return b.sh.SetComment(a.Row, a.Col, text)
}
