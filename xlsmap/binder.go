package xlsmap

import (
	"fmt"
	"reflect"
	"strconv"
)

// Result reports what one Load or Save call did.
type Result struct {
	// Sheet is the name of the sheet bound.
	Sheet string

	// Failures are the failures tolerated during the call. A fatal failure
	// is returned as the error instead.
	Failures Failures

	// Positions maps every bound field path to the cell it was bound to.
	Positions map[string]CellAddress

	// Labels maps labelled field paths to the label text that matched.
	Labels map[string]string

	// Comments maps field paths to the comment found on their cell.
	Comments map[string]string

	// Plans maps table field paths to the reconciliation applied on save.
	Plans map[string]ReconciliationPlan
}

func newResult(sheet string) *Result {
	return &Result{
		Sheet:     sheet,
		Positions: map[string]CellAddress{},
		Labels:    map[string]string{},
		Comments:  map[string]string{},
		Plans:     map[string]ReconciliationPlan{},
	}
}

// binder carries the state of one Load or Save call.
type binder struct {
	cfg   *Config
	sh    Sheet
	model reflect.Value
	res   *Result

	// saving stops the model's metadata maps from being written.
	saving bool
}

func newBinder(cfg *Config, sh Sheet, model reflect.Value) *binder {
	return &binder{cfg: cfg, sh: sh, model: model, res: newResult(sh.Name())}
}

// scope is one struct value being bound and the path leading to it.
type scope struct {
	v    reflect.Value
	spec *modelSpec
	path string
}

func (s scope) at(field string) string {
	if s.path == "" {
		return field
	}
	return s.path + "." + field
}

func (s scope) field(d *Directive) reflect.Value {
	return s.v.FieldByIndex(d.index)
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

// relKey strips the scope prefix from a full path, giving the key used in
// the struct's own metadata maps.
func (s scope) relKey(path string) string {
	if s.path == "" {
		return path
	}
	return path[len(s.path)+1:]
}

// fail records a failure. It returns the failure when the call must stop,
// and nil when the failure is tolerated.
func (b *binder) fail(kind FailureKind, path string, cell *CellAddress, err error, format string, args ...any) error {
	f := &Failure{
		Kind:    kind,
		Path:    path,
		Sheet:   b.sh.Name(),
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
	if cell != nil {
		f.Cell, f.HasCell = *cell, true
	}
	if kind == TypeConversion && b.cfg.TolerateTypeFailures {
		b.res.Failures = append(b.res.Failures, f)
		b.cfg.Logger.Warn("tolerated failure", "kind", kind.String(), "path", path, "error", f.Error())
		return nil
	}
	return f
}

// absent notes an optional field that could not be located. Tolerant
// calls also report it as a CellNotFound failure.
func (b *binder) absent(path string, cell *CellAddress, message string) {
	b.cfg.Logger.Debug("optional field absent", "sheet", b.sh.Name(), "path", path, "missing", message)
	if !b.cfg.TolerateTypeFailures {
		return
	}
	f := &Failure{Kind: CellNotFound, Path: path, Sheet: b.sh.Name(), Message: message}
	if cell != nil {
		f.Cell, f.HasCell = *cell, true
	}
	b.res.Failures = append(b.res.Failures, f)
}

// mark records where a field was bound, in the result and in the scope's
// metadata maps.
func (b *binder) mark(s scope, path string, a CellAddress) {
	b.res.Positions[path] = a
	if s.spec.positions != nil {
		putMeta(s.field(s.spec.positions), s.relKey(path), reflect.ValueOf(a))
	}
	if text := b.sh.Comment(a.Row, a.Col); text != "" {
		b.res.Comments[path] = text
		if s.spec.comments != nil {
			putMeta(s.field(s.spec.comments), s.relKey(path), reflect.ValueOf(text))
		}
	}
}

func (b *binder) markLabel(s scope, path, text string) {
	b.res.Labels[path] = text
	if s.spec.labels != nil && !b.saving {
		putMeta(s.field(s.spec.labels), s.relKey(path), reflect.ValueOf(text))
	}
}

func putMeta(m reflect.Value, key string, v reflect.Value) {
	if m.IsNil() {
		m.Set(reflect.MakeMap(m.Type()))
	}
	m.SetMapIndex(reflect.ValueOf(key), v)
}

// metaString looks up a key in one of the scope's string metadata maps.
func metaString(s scope, d *Directive, key string) (string, bool) {
	if d == nil {
		return "", false
	}
	m := s.field(d)
	if m.IsNil() {
		return "", false
	}
	v := m.MapIndex(reflect.ValueOf(key))
	if !v.IsValid() {
		return "", false
	}
	return v.String(), true
}

// metaPosition looks up a saved position override.
func metaPosition(s scope, key string) (CellAddress, bool) {
	if s.spec.positions == nil {
		return CellAddress{}, false
	}
	m := s.field(s.spec.positions)
	if m.IsNil() {
		return CellAddress{}, false
	}
	v := m.MapIndex(reflect.ValueOf(key))
	if !v.IsValid() {
		return CellAddress{}, false
	}
	return v.Interface().(CellAddress), true
}

// read converts the text of a cell into dst.
func (b *binder) read(path string, a CellAddress, dst reflect.Value, mergeAware bool, conv *ConverterDirective) error {
	text := cellText(b.sh, a, mergeAware)
	v, err := b.cfg.toModelValue(text, dst.Type(), conv)
	if err != nil {
		return b.fail(TypeConversion, path, &a, err, "cannot convert %q to %s", text, dst.Type())
	}
	dst.Set(v)
	return nil
}

// write converts src and stores it in a cell.
func (b *binder) write(path string, a CellAddress, src reflect.Value, conv *ConverterDirective) error {
	content, err := b.cfg.toCellContent(src, conv)
	if err != nil {
		return b.fail(TypeConversion, path, &a, err, "cannot convert %s value", src.Type())
	}
	if err := b.sh.SetCellValue(a.Row, a.Col, content); err != nil {
		return fmt.Errorf("write %s!%s: %w", b.sh.Name(), a, err)
	}
	return nil
}

// wantsFormula reports whether a field's formula should be written.
func (b *binder) wantsFormula(d *Directive, v reflect.Value) bool {
	if d.Formula == nil || b.cfg.SkipFormulas {
		return false
	}
	return d.Formula.Primary || isEmptyValue(v)
}

func (b *binder) writeFormula(path string, d *Directive, fc FormulaContext) error {
	fc.Sheet = b.sh.Name()
	if b.model.IsValid() {
		fc.Model = b.model.Interface()
	}
	formula, err := d.Formula.tmpl.render(fc)
	if err != nil {
		return b.fail(DirectiveInvalid, path, &fc.Cell, err, "formula template %q", d.Formula.Template)
	}
	if err := b.sh.SetCellFormula(fc.Cell.Row, fc.Cell.Col, formula); err != nil {
		return fmt.Errorf("write formula %s!%s: %w", b.sh.Name(), fc.Cell, err)
	}
	return nil
}

// isEmptyValue treats empty slices and maps as empty, unlike IsZero.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	case reflect.Struct:
		if isOrderedMap(v.Type()) {
			if !v.CanAddr() {
				c := reflect.New(v.Type()).Elem()
				c.Set(v)
				v = c
			}
			return v.Addr().Interface().(orderedMap).Len() == 0
		}
	}
	return v.IsZero()
}
