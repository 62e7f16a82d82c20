package xlsmap

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Mapper binds models to sheets. It compiles each model type once and is
// safe for concurrent use; the Book passed to each call is not.
type Mapper struct {
	cfg       *Config
	overrides OverrideSource
	cache     DirectiveCache
}

// NewMapper returns a Mapper configured by opts. A nil opts uses defaults.
func NewMapper(opts *Options) *Mapper {
	m := &Mapper{cfg: newConfig(opts)}
	if opts != nil {
		m.overrides = opts.Overrides
	}
	return m
}

// Config returns a copy of the mapper's settings. Changing it does not
// affect the mapper.
func (m *Mapper) Config() Config {
	return *m.cfg
}

var defaultMapper = NewMapper(nil)

// Load reads a model from a book with the default options.
func Load(book Book, v any) (*Result, error) {
	return defaultMapper.Load(book, v)
}

// Save writes a model to a book with the default options.
func Save(book Book, v any) (*Result, error) {
	return defaultMapper.Save(book, v)
}

func structPointer(v any, op string) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("xlsmap: %s needs a non-nil pointer to a struct, got %T", op, v)
	}
	return rv.Elem(), nil
}

// Load reads the model v points to from its sheet.
func (m *Mapper) Load(book Book, v any) (*Result, error) {
	rv, err := structPointer(v, "Load")
	if err != nil {
		return nil, err
	}
	spec, err := m.resolve(rv.Type())
	if err != nil {
		return nil, err
	}
	sh, err := selectSheet(book, spec.sheetDirective())
	if err != nil {
		return m.sheetMissing(spec, err)
	}
	return m.load(sh, rv, spec)
}

func (m *Mapper) load(sh Sheet, rv reflect.Value, spec *modelSpec) (*Result, error) {
	b := newBinder(m.cfg, sh, rv)
	if err := b.loadModel(scope{v: rv, spec: spec}); err != nil {
		return b.res, err
	}
	m.cfg.Logger.Debug("loaded model", "type", spec.name(), "sheet", sh.Name(), "failures", len(b.res.Failures))
	return b.res, nil
}

func (m *Mapper) sheetMissing(spec *modelSpec, err error) (*Result, error) {
	if errors.Is(err, ErrSheetNotFound) && m.cfg.IgnoreSheetNotFound {
		m.cfg.Logger.Debug("sheet not found, ignored", "type", spec.name(), "error", err)
		return newResult(""), nil
	}
	return nil, fmt.Errorf("xlsmap: %s: %w", spec.name(), err)
}

// Save writes the model v, a struct or a pointer to one, into its sheet.
func (m *Mapper) Save(book Book, v any) (*Result, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("xlsmap: Save needs a struct or a pointer to one, got %T", v)
	}
	if !rv.CanAddr() {
		c := reflect.New(rv.Type()).Elem()
		c.Set(rv)
		rv = c
	}
	spec, err := m.resolve(rv.Type())
	if err != nil {
		return nil, err
	}
	sh, err := selectSheet(book, spec.sheetDirective())
	if err != nil {
		return m.sheetMissing(spec, err)
	}
	b := newBinder(m.cfg, sh, rv)
	b.saving = true
	if err := b.saveModel(scope{v: rv, spec: spec}); err != nil {
		return b.res, err
	}
	m.cfg.Logger.Debug("saved model", "type", spec.name(), "sheet", sh.Name(), "failures", len(b.res.Failures))
	return b.res, nil
}

// LoadAll reads one model per matching sheet and appends them to the slice
// ptr points to. The sheets matched are those the model's sheet directive
// names or matches; a model with no sheet directive matches every sheet.
func (m *Mapper) LoadAll(book Book, ptr any) ([]*Result, error) {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Elem().Kind() != reflect.Slice {
		return nil, fmt.Errorf("xlsmap: LoadAll needs a pointer to a slice, got %T", ptr)
	}
	slice := pv.Elem()
	elemType := slice.Type().Elem()
	structType := elemType
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	spec, err := m.resolve(structType)
	if err != nil {
		return nil, err
	}
	var results []*Result
	for _, name := range matchingSheets(book.SheetNames(), spec.sheetDirective()) {
		sh, err := book.Sheet(name)
		if err != nil {
			return results, err
		}
		rv := reflect.New(structType)
		res, err := m.load(sh, rv.Elem(), spec)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if elemType.Kind() == reflect.Pointer {
			slice.Set(reflect.Append(slice, rv))
		} else {
			slice.Set(reflect.Append(slice, rv.Elem()))
		}
	}
	if len(results) == 0 && !m.cfg.IgnoreSheetNotFound {
		return nil, fmt.Errorf("xlsmap: %s: no sheet matches: %w", spec.name(), ErrSheetNotFound)
	}
	return results, nil
}

func matchingSheets(names []string, sd *SheetDirective) []string {
	if sd == nil {
		return names
	}
	var out []string
	for i, name := range names {
		switch {
		case sd.Name != "":
			if name == sd.Name {
				out = append(out, name)
			}
		case sd.Pattern != nil:
			if sd.Pattern.MatchString(name) {
				out = append(out, name)
			}
		case i == sd.Index:
			out = append(out, name)
		}
	}
	return out
}

func (s *modelSpec) sheetDirective() *SheetDirective {
	if s.sheet == nil {
		return nil
	}
	return s.sheet.Sheet
}

// Directives returns the compiled directives of a model type, overrides
// applied, in field order. Column directives of record types are reached
// through Elem.
func (m *Mapper) Directives(t reflect.Type) ([]Directive, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	spec, err := m.resolve(t)
	if err != nil {
		return nil, err
	}
	var out []Directive
	for _, d := range []*Directive{spec.sheet, spec.positions, spec.labels, spec.comments} {
		if d != nil {
			out = append(out, *d)
		}
	}
	for _, d := range spec.fields {
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].index[0] < out[j].index[0] })
	return out, nil
}

// Elem returns the directives of the record type of a table or nested
// directive, or nil for other kinds.
func (d Directive) Elem() []Directive {
	if d.elem == nil {
		return nil
	}
	out := make([]Directive, 0, len(d.elem.fields))
	for _, f := range d.elem.fields {
		out = append(out, *f)
	}
	return out
}
