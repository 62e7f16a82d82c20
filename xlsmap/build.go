package xlsmap

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// DirectiveCache holds the compiled directive table of every model type a
// Mapper has seen. Entries are built lazily and never change afterwards;
// two goroutines building the same entry produce identical tables, so the
// last store wins.
type DirectiveCache struct {
	specs sync.Map // reflect.Type -> *modelSpec
}

// specBuilder compiles one root type and every record type it reaches.
type specBuilder struct {
	cfg       *Config
	overrides OverrideSource
	building  map[reflect.Type]*modelSpec
	uses      []*Directive
}

func (m *Mapper) resolve(t reflect.Type) (*modelSpec, error) {
	if v, ok := m.cache.specs.Load(t); ok {
		return v.(*modelSpec), nil
	}
	b := &specBuilder{cfg: m.cfg, overrides: m.overrides, building: map[reflect.Type]*modelSpec{}}
	spec, err := b.build(t)
	if err != nil {
		return nil, err
	}
	if err := b.checkRecords(); err != nil {
		return nil, err
	}
	m.cfg.Logger.Debug("compiled directive table", "type", typeName(t), "fields", len(spec.fields))
	m.cache.specs.Store(t, spec)
	return spec, nil
}

func (b *specBuilder) build(t reflect.Type) (*modelSpec, error) {
	if s, ok := b.building[t]; ok {
		return s, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, &DirectiveError{Type: typeName(t), Message: "model must be a struct type"}
	}
	spec := &modelSpec{typ: t}
	b.building[t] = spec
	spec.emptier = t.Implements(emptierType) || reflect.PointerTo(t).Implements(emptierType)

	ovs, err := b.overridesFor(t)
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		d, err := b.field(spec, sf, ovs)
		if err != nil {
			return nil, err
		}
		if d == nil {
			continue
		}
		switch {
		case d.Kind == KindSheet:
			if spec.sheet != nil {
				return nil, b.errorf(t, sf.Name, d.Kind.String(), "", "", "more than one sheet directive")
			}
			spec.sheet = d
		case d.Kind == KindPositions:
			spec.positions = d
		case d.Kind == KindLabels:
			spec.labels = d
		case d.Kind == KindComments:
			spec.comments = d
		default:
			if d.Kind.isColumn() {
				spec.hasColumn = true
			} else {
				spec.hasOther = true
			}
			spec.fields = append(spec.fields, d)
		}
	}
	return spec, nil
}

func (b *specBuilder) overridesFor(t reflect.Type) (map[overrideKey]Override, error) {
	if b.overrides == nil {
		return nil, nil
	}
	list, err := b.overrides.Overrides(t)
	if err != nil {
		return nil, fmt.Errorf("overrides for %s: %w", typeName(t), err)
	}
	out := make(map[overrideKey]Override, len(list))
	for _, o := range list {
		sf, ok := t.FieldByName(o.Field)
		if !ok || len(sf.Index) != 1 {
			return nil, b.errorf(t, o.Field, string(o.Section), "", "", "override names a field the type does not have")
		}
		switch o.Section {
		case SectionBinding, SectionConverter, SectionFormula:
		default:
			return nil, b.errorf(t, o.Field, string(o.Section), "", "", "unknown override section")
		}
		out[overrideKey{field: o.Field, section: o.Section}] = o
	}
	return out, nil
}

func (b *specBuilder) errorf(t reflect.Type, field, directive, attr, value, format string, args ...any) *DirectiveError {
	return &DirectiveError{
		Type:      typeName(t),
		Field:     field,
		Directive: directive,
		Attribute: attr,
		Value:     value,
		Message:   fmt.Sprintf(format, args...),
	}
}

// section returns the raw tag section of a field, preferring an override.
func (b *specBuilder) section(t reflect.Type, sf reflect.StructField, ovs map[overrideKey]Override, sec Section, tag string, withKind bool) (rawDirective, bool, error) {
	if o, ok := ovs[overrideKey{field: sf.Name, section: sec}]; ok {
		raw := o.raw()
		if sec == SectionBinding && raw.Kind == "" {
			return raw, false, b.errorf(t, sf.Name, string(sec), "kind", "", "override has no directive kind")
		}
		return raw, true, nil
	}
	value, ok := sf.Tag.Lookup(tag)
	if !ok {
		return rawDirective{}, false, nil
	}
	if sec == SectionFormula {
		return rawDirective{Attrs: map[string]string{"template": value}}, true, nil
	}
	raw, err := parseTag(value, withKind)
	if err != nil {
		return raw, false, b.errorf(t, sf.Name, string(sec), "", value, "%v", err)
	}
	return raw, true, nil
}

func (b *specBuilder) field(spec *modelSpec, sf reflect.StructField, ovs map[overrideKey]Override) (*Directive, error) {
	t := spec.typ
	raw, ok, err := b.section(t, sf, ovs, SectionBinding, tagBinding, true)
	if err != nil || !ok {
		return nil, err
	}
	if raw.Kind == "-" {
		return nil, nil
	}
	kind, known := parseKind(raw.Kind)
	if !known {
		return nil, b.errorf(t, sf.Name, raw.Kind, "", "", "unknown directive kind %q", raw.Kind)
	}
	if !sf.IsExported() && !(sf.Name == "_" && kind == KindSheet) {
		return nil, b.errorf(t, sf.Name, raw.Kind, "", "", "field is not exported")
	}
	d := &Directive{
		Field:       sf.Name,
		Kind:        kind,
		LabelMerged: true,
		Merged:      true,
		index:       sf.Index,
		typ:         sf.Type,
		owner:       t,
	}
	a := &attrSet{b: b, t: t, field: sf.Name, section: raw.Kind, attrs: raw.Attrs, used: map[string]bool{}}
	if err := b.binding(spec, d, a, sf); err != nil {
		return nil, err
	}
	if err := a.finish(); err != nil {
		return nil, err
	}

	craw, hasConv, err := b.section(t, sf, ovs, SectionConverter, tagConverter, false)
	if err != nil {
		return nil, err
	}
	if hasConv {
		if err := b.converter(d, craw); err != nil {
			return nil, err
		}
	}
	fraw, hasFormula, err := b.section(t, sf, ovs, SectionFormula, tagFormula, false)
	if err != nil {
		return nil, err
	}
	if hasFormula {
		if err := b.formula(d, fraw); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// scalarType is the type conversions apply to: the field itself for
// single-cell kinds, the element for array and map kinds.
func (d *Directive) scalarType() reflect.Type {
	switch d.Kind {
	case KindArrayCells, KindLabelledArrayCells, KindArrayColumns, KindMapColumns:
		return d.elemType
	case KindCell, KindLabelledCell, KindColumn:
		return d.typ
	}
	return nil
}

func (b *specBuilder) binding(spec *modelSpec, d *Directive, a *attrSet, sf reflect.StructField) error {
	switch d.Kind {
	case KindSheet:
		sd := &SheetDirective{}
		sd.Name, _ = a.str("name")
		if p, ok := a.str("regex"); ok {
			re, err := regexp.Compile(p)
			if err != nil {
				a.fail("regex", p, "invalid pattern: %v", err)
			}
			sd.Pattern = re
		}
		sd.Index = a.int("index", 0, 0)
		d.Sheet = sd
		if sf.Name != "_" && sf.Type.Kind() != reflect.String {
			a.fail("", "", "sheet directive needs a string field, got %s", sf.Type)
		}

	case KindCell:
		b.fixedAddress(d, a)
		a.scalar(d)

	case KindLabelledCell:
		d.Label = a.requiredLabel("label")
		d.Direction = a.direction("dir", Right)
		d.Skip = a.int("skip", 0, 0)
		d.Range = a.int("range", 0, 0)
		d.LabelMerged = a.flag("labelMerged", true)
		d.Merged = a.flag("merged", true)
		d.Optional = a.flag("optional", false)
		a.scalar(d)

	case KindArrayCells:
		b.fixedAddress(d, a)
		d.Direction = a.direction("dir", Right)
		d.ElementMerged = a.flag("elementMerged", false)
		a.array(d)

	case KindLabelledArrayCells:
		d.Label = a.requiredLabel("label")
		d.Direction = a.direction("dir", Right)
		d.ArrayDirection = a.direction("arrayDir", Right)
		d.Skip = a.int("skip", 0, 0)
		d.LabelMerged = a.flag("labelMerged", true)
		d.ElementMerged = a.flag("elementMerged", false)
		d.Optional = a.flag("optional", false)
		a.array(d)

	case KindComment:
		if _, ok := a.peek("label"); ok {
			d.Label = a.requiredLabel("label")
		} else {
			b.fixedAddress(d, a)
		}
		d.LabelMerged = a.flag("labelMerged", true)
		d.Optional = a.flag("optional", false)
		if sf.Type.Kind() != reflect.String {
			a.fail("", "", "comment directive needs a string field, got %s", sf.Type)
		}

	case KindHorizontalRecords, KindVerticalRecords:
		td := &TableDirective{Vertical: d.Kind == KindVerticalRecords}
		if ref, ok := a.str("headerAddress"); ok {
			addr, err := ParseAddress(ref)
			if err != nil {
				a.fail("headerAddress", ref, "malformed address")
			}
			td.HeaderAddress, td.HasHeaderAddress = addr, true
		}
		if _, ok := a.peek("tableLabel"); ok {
			td.Label = a.requiredLabel("tableLabel")
		}
		if !td.HasHeaderAddress && td.Label.IsZero() && a.err == nil {
			a.fail("", "", "table needs tableLabel or headerAddress")
		}
		td.Offset = a.int("offset", 1, 1)
		td.Terminal = a.terminal("terminal")
		if _, ok := a.peek("terminalLabel"); ok {
			td.TerminalLabel = a.requiredLabel("terminalLabel")
			if _, explicit := a.peek("terminal"); !explicit {
				td.Terminal = TerminalLabel
			}
		}
		if td.Terminal == TerminalLabel && td.TerminalLabel.IsZero() && a.err == nil {
			a.fail("terminal", "label", "terminal=label needs terminalLabel")
		}
		td.HeaderLimit = a.int("headerLimit", 0, 0)
		td.DataOffset = a.int("dataOffset", 1, 1)
		td.Optional = a.flag("optional", false)
		td.Over = a.over("over")
		td.Remained = a.remained("remained")
		td.KeepEmpty = a.flag("keepEmpty", false)
		d.Table = td
		d.Optional = td.Optional
		b.records(d, a, false)

	case KindColumn:
		d.Column = a.requiredLabel("name")
		d.HeaderMerged = a.int("headerMerged", 0, 0)
		d.Merged = a.flag("merged", true)
		d.Optional = a.flag("optional", false)
		d.Key = a.flag("key", false)
		a.scalar(d)

	case KindMapColumns:
		d.Previous = a.requiredLabel("previous")
		if _, ok := a.peek("next"); ok {
			d.Next = a.requiredLabel("next")
		}
		d.Optional = a.flag("optional", false)
		d.Key = a.flag("key", false)
		switch {
		case isOrderedMap(sf.Type):
			d.ordered = true
			d.elemType = reflect.New(sf.Type).Interface().(orderedMap).valueType()
		case sf.Type.Kind() == reflect.Map && sf.Type.Key().Kind() == reflect.String:
			d.elemType = sf.Type.Elem()
		default:
			a.fail("", "", "mapcolumns needs a map[string]V or OrderedMap[V] field, got %s", sf.Type)
		}
		if d.elemType != nil && a.err == nil && !b.cfg.convertible(d.elemType) {
			a.fail("", "", "unsupported map value type %s", d.elemType)
		}

	case KindArrayColumns:
		d.Column = a.requiredLabel("name")
		d.ElementMerged = a.flag("elementMerged", false)
		d.Merged = a.flag("merged", true)
		d.Optional = a.flag("optional", false)
		d.Key = a.flag("key", false)
		a.array(d)

	case KindNestedRecords:
		b.records(d, a, true)

	case KindPositions:
		if sf.Type != reflect.TypeFor[map[string]CellAddress]() {
			a.fail("", "", "positions needs a map[string]CellAddress field, got %s", sf.Type)
		}
	case KindLabels, KindComments:
		if sf.Type != reflect.TypeFor[map[string]string]() {
			a.fail("", "", "%s needs a map[string]string field, got %s", d.Kind, sf.Type)
		}
	}
	return a.err
}

func (b *specBuilder) fixedAddress(d *Directive, a *attrSet) {
	if ref, ok := a.str("address"); ok {
		addr, err := ParseAddress(ref)
		if err != nil {
			a.fail("address", ref, "malformed address")
			return
		}
		d.Address, d.HasAddress = addr, true
		return
	}
	_, hasRow := a.peek("row")
	_, hasCol := a.peek("col")
	if !hasRow || !hasCol {
		a.fail("", "", "%s needs address or both row and col", d.Kind)
		return
	}
	d.Address = Addr(a.int("row", 0, 0), a.int("col", 0, 0))
	d.HasAddress = true
}

// records validates a table or nested field and compiles its record type.
func (b *specBuilder) records(d *Directive, a *attrSet, nested bool) {
	if a.err != nil {
		return
	}
	t := d.typ
	switch {
	case t.Kind() == reflect.Slice:
		d.plural = true
		t = t.Elem()
	case nested && (t.Kind() == reflect.Struct || t.Kind() == reflect.Pointer):
	default:
		a.fail("", "", "%s needs a slice of structs, got %s", d.Kind, d.typ)
		return
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType || isOrderedMap(t) {
		a.fail("", "", "%s needs struct records, got %s", d.Kind, d.typ)
		return
	}
	d.elemType = t
	elem, err := b.build(t)
	if err != nil {
		a.setErr(err)
		return
	}
	d.elem = elem
	b.uses = append(b.uses, d)
}

// checkRecords runs once every type is compiled: record types may hold only
// column kinds, and top-level models none.
func (b *specBuilder) checkRecords() error {
	isRecord := map[*modelSpec]bool{}
	for _, d := range b.uses {
		isRecord[d.elem] = true
	}
	for _, spec := range b.building {
		for _, d := range spec.fields {
			if isRecord[spec] && !d.Kind.isColumn() {
				return b.errorf(spec.typ, d.Field, d.Kind.String(), "", "", "%s is not allowed in a record type", d.Kind)
			}
			if !isRecord[spec] && d.Kind.isColumn() {
				return b.errorf(spec.typ, d.Field, d.Kind.String(), "", "", "%s is only allowed in a record type", d.Kind)
			}
		}
	}
	return nil
}

func (b *specBuilder) converter(d *Directive, raw rawDirective) error {
	st := d.scalarType()
	if st == nil {
		return b.errorf(d.owner, d.Field, string(SectionConverter), "", "", "converter does not apply to %s", d.Kind)
	}
	a := &attrSet{b: b, t: d.owner, field: d.Field, section: string(SectionConverter), attrs: raw.Attrs, used: map[string]bool{}}
	cd := &ConverterDirective{}
	cd.Trim = a.flag("trim", false)
	if v, ok := a.str("default"); ok {
		cd.Default, cd.HasDefault = v, true
	}
	if v, ok := a.str("true"); ok {
		cd.TrueTokens = splitList(v)
	}
	if v, ok := a.str("false"); ok {
		cd.FalseTokens = splitList(v)
	}
	cd.SaveTrue, _ = a.str("saveTrue")
	cd.SaveFalse, _ = a.str("saveFalse")
	cd.CaseSensitive = a.flag("caseSensitive", false)
	if v, ok := a.str("layout"); ok {
		cd.Layouts = splitList(v)
	}
	cd.Format, _ = a.str("format")
	if v, ok := a.str("locale"); ok {
		tag, err := language.Parse(v)
		if err != nil {
			a.fail("locale", v, "unknown locale: %v", err)
		}
		cd.Locale, cd.HasLocale = tag, true
	}
	if v, ok := a.str("pattern"); ok {
		nf, err := parseNumberPattern(v)
		if err != nil {
			a.fail("pattern", v, "%v", err)
		}
		cd.Pattern, cd.number = v, nf
	}
	cd.FormulaPrimary = a.flag("formulaPrimary", false)
	if err := a.finish(); err != nil {
		return err
	}
	if cd.HasDefault {
		if _, err := b.cfg.toModelValue(cd.Default, st, cd); err != nil {
			return b.errorf(d.owner, d.Field, string(SectionConverter), "default", cd.Default, "default does not convert to %s: %v", st, err)
		}
	}
	d.Converter = cd
	return nil
}

func (b *specBuilder) formula(d *Directive, raw rawDirective) error {
	switch d.Kind {
	case KindCell, KindLabelledCell, KindColumn:
	default:
		return b.errorf(d.owner, d.Field, string(SectionFormula), "", "", "formula does not apply to %s", d.Kind)
	}
	a := &attrSet{b: b, t: d.owner, field: d.Field, section: string(SectionFormula), attrs: raw.Attrs, used: map[string]bool{}}
	tmpl, _ := a.str("template")
	primary := a.flag("primary", false)
	if err := a.finish(); err != nil {
		return err
	}
	if strings.TrimSpace(tmpl) == "" {
		return b.errorf(d.owner, d.Field, string(SectionFormula), "template", tmpl, "empty formula template")
	}
	ft, err := compileFormula(tmpl)
	if err != nil {
		return b.errorf(d.owner, d.Field, string(SectionFormula), "template", tmpl, "%v", err)
	}
	d.Formula = &FormulaDirective{Template: tmpl, Primary: primary, tmpl: ft}
	if d.Converter != nil && d.Converter.FormulaPrimary {
		d.Formula.Primary = true
	}
	return nil
}

// attrSet reads the attributes of one tag section and remembers the first
// problem it meets.
type attrSet struct {
	b       *specBuilder
	t       reflect.Type
	field   string
	section string
	attrs   map[string]string
	used    map[string]bool
	err     error
}

func (a *attrSet) setErr(err error) {
	if a.err == nil {
		a.err = err
	}
}

func (a *attrSet) fail(attr, value, format string, args ...any) {
	a.setErr(a.b.errorf(a.t, a.field, a.section, attr, value, format, args...))
}

func (a *attrSet) peek(key string) (string, bool) {
	v, ok := a.attrs[key]
	return v, ok
}

func (a *attrSet) str(key string) (string, bool) {
	v, ok := a.attrs[key]
	if ok {
		a.used[key] = true
	}
	return v, ok
}

func (a *attrSet) int(key string, def, min int) int {
	v, ok := a.str(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		a.fail(key, v, "not an integer")
		return def
	}
	if n < min {
		a.fail(key, v, "must be at least %d", min)
		return def
	}
	return n
}

func (a *attrSet) flag(key string, def bool) bool {
	v, ok := a.str(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		a.fail(key, v, "not a boolean")
		return def
	}
	return b
}

func (a *attrSet) requiredLabel(key string) Label {
	v, ok := a.str(key)
	if !ok || v == "" {
		a.fail(key, v, "%s is required", key)
		return Label{}
	}
	l, err := ParseLabel(v)
	if err != nil {
		a.fail(key, v, "%v", err)
	}
	return l
}

func (a *attrSet) direction(key string, def Direction) Direction {
	v, ok := a.str(key)
	if !ok {
		return def
	}
	d, ok := parseDirection(v)
	if !ok {
		a.fail(key, v, "direction must be right, left, down or up")
		return def
	}
	return d
}

func (a *attrSet) terminal(key string) Terminal {
	v, ok := a.str(key)
	if !ok {
		return TerminalBorder
	}
	switch strings.ToLower(v) {
	case "border":
		return TerminalBorder
	case "empty":
		return TerminalEmpty
	case "label":
		return TerminalLabel
	}
	a.fail(key, v, "terminal must be border, empty or label")
	return TerminalBorder
}

func (a *attrSet) over(key string) OverPolicy {
	v, ok := a.str(key)
	if !ok {
		return OverBreak
	}
	switch strings.ToLower(v) {
	case "break":
		return OverBreak
	case "copy":
		return OverCopy
	case "insert":
		return OverInsert
	case "error":
		return OverError
	}
	a.fail(key, v, "over must be break, copy, insert or error")
	return OverBreak
}

func (a *attrSet) remained(key string) RemainedPolicy {
	v, ok := a.str(key)
	if !ok {
		return RemainedNone
	}
	switch strings.ToLower(v) {
	case "none":
		return RemainedNone
	case "clear":
		return RemainedClear
	case "delete":
		return RemainedDelete
	}
	a.fail(key, v, "remained must be none, clear or delete")
	return RemainedNone
}

// scalar checks that a single-cell field type can be converted.
func (a *attrSet) scalar(d *Directive) {
	if a.err == nil && !a.b.cfg.convertible(d.typ) {
		a.fail("", "", "unsupported field type %s for %s", d.typ, d.Kind)
	}
}

// array checks an array-shaped field and reads its size.
func (a *attrSet) array(d *Directive) {
	t := d.typ
	switch t.Kind() {
	case reflect.Slice:
		d.Size = a.int("size", 0, 1)
		if _, ok := a.peek("size"); !ok && a.err == nil {
			a.fail("size", "", "size is required for slice fields")
		}
	case reflect.Array:
		d.Size = a.int("size", t.Len(), 1)
		if d.Size > t.Len() {
			a.fail("size", strconv.Itoa(d.Size), "size exceeds array length %d", t.Len())
		}
	default:
		a.fail("", "", "%s needs a slice or array field, got %s", d.Kind, t)
		return
	}
	d.elemType = t.Elem()
	if a.err == nil && !a.b.cfg.convertible(d.elemType) {
		a.fail("", "", "unsupported element type %s for %s", d.elemType, d.Kind)
	}
}

func (a *attrSet) finish() error {
	if a.err != nil {
		return a.err
	}
	for _, k := range (rawDirective{Attrs: a.attrs}).sortedKeys() {
		if !a.used[k] {
			a.fail(k, a.attrs[k], "unknown attribute for %s", a.section)
			break
		}
	}
	return a.err
}
