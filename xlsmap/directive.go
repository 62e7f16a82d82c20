package xlsmap

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Kind is the kind of a binding directive.
type Kind int

// Directive kinds.
const (
	KindSheet Kind = iota + 1
	KindCell
	KindLabelledCell
	KindArrayCells
	KindLabelledArrayCells
	KindComment
	KindHorizontalRecords
	KindVerticalRecords
	KindColumn
	KindMapColumns
	KindArrayColumns
	KindNestedRecords
	KindPositions
	KindLabels
	KindComments
)

var kindNames = map[Kind]string{
	KindSheet:              "sheet",
	KindCell:               "cell",
	KindLabelledCell:       "labelled",
	KindArrayCells:         "array",
	KindLabelledArrayCells: "labelledarray",
	KindComment:            "comment",
	KindHorizontalRecords:  "horizontal",
	KindVerticalRecords:    "vertical",
	KindColumn:             "column",
	KindMapColumns:         "mapcolumns",
	KindArrayColumns:       "arraycolumns",
	KindNestedRecords:      "nested",
	KindPositions:          "positions",
	KindLabels:             "labels",
	KindComments:           "comments",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func parseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// isColumn reports whether the kind only makes sense inside a record type.
func (k Kind) isColumn() bool {
	switch k {
	case KindColumn, KindMapColumns, KindArrayColumns, KindNestedRecords:
		return true
	}
	return false
}

func (k Kind) isMetadata() bool {
	return k == KindPositions || k == KindLabels || k == KindComments
}

// Terminal is the policy deciding where a table's data region ends.
type Terminal int

// Terminal policies.
const (
	// TerminalBorder ends the table at the first record whose first cell
	// has no leading border.
	TerminalBorder Terminal = iota
	// TerminalEmpty ends the table at the first fully blank record.
	TerminalEmpty
	// TerminalLabel ends the table at the record holding the terminal label.
	TerminalLabel
)

func (t Terminal) String() string {
	switch t {
	case TerminalBorder:
		return "border"
	case TerminalEmpty:
		return "empty"
	case TerminalLabel:
		return "label"
	}
	return fmt.Sprintf("Terminal(%d)", int(t))
}

// OverPolicy decides what Save does with records beyond template capacity.
type OverPolicy int

// Over policies.
const (
	OverBreak OverPolicy = iota
	OverCopy
	OverInsert
	OverError
)

func (p OverPolicy) String() string {
	switch p {
	case OverBreak:
		return "break"
	case OverCopy:
		return "copy"
	case OverInsert:
		return "insert"
	case OverError:
		return "error"
	}
	return fmt.Sprintf("OverPolicy(%d)", int(p))
}

// RemainedPolicy decides what Save does with template records left unused.
type RemainedPolicy int

// Remained policies.
const (
	RemainedNone RemainedPolicy = iota
	RemainedClear
	RemainedDelete
)

func (p RemainedPolicy) String() string {
	switch p {
	case RemainedNone:
		return "none"
	case RemainedClear:
		return "clear"
	case RemainedDelete:
		return "delete"
	}
	return fmt.Sprintf("RemainedPolicy(%d)", int(p))
}

// SheetDirective selects the sheet of a model: by name, by pattern, or by
// index, in that order of precedence.
type SheetDirective struct {
	Name    string
	Pattern *regexp.Regexp
	Index   int
}

// TableDirective describes a table of records.
type TableDirective struct {
	// Vertical tables have their header down a column and one record per
	// column; horizontal tables have one record per row.
	Vertical bool

	// Label locates the table; the header starts Offset cells below it
	// (horizontal) or to its right (vertical).
	Label Label

	// HeaderAddress fixes the first header cell and takes precedence over
	// Label.
	HeaderAddress    CellAddress
	HasHeaderAddress bool

	// Offset is the distance from the table label to the header.
	Offset int

	// Terminal ends the data region.
	Terminal Terminal

	// TerminalLabel is searched when Terminal is TerminalLabel.
	TerminalLabel Label

	// HeaderLimit caps the number of header cells; zero reads them all.
	HeaderLimit int

	// DataOffset is the distance from the header to the first record.
	DataOffset int

	// Optional leaves the field unset when the table is missing.
	Optional bool

	// Over and Remained reconcile record counts on save.
	Over     OverPolicy
	Remained RemainedPolicy

	// KeepEmpty keeps empty records on load.
	KeepEmpty bool
}

// FormulaDirective is a formula template applied on save.
type FormulaDirective struct {
	// Template is the formula with {expression} placeholders.
	Template string

	// Primary writes the formula even when the field holds a value.
	Primary bool

	tmpl *formulaTemplate
}

// Directive is the compiled binding of one model field.
// Directives are immutable once built.
type Directive struct {
	// Field is the Go field name.
	Field string

	// Kind is the directive kind.
	Kind Kind

	// Label is the anchor text for labelled kinds and comments.
	Label Label

	// Address is the fixed cell for cell, array and comment kinds.
	Address    CellAddress
	HasAddress bool

	// Direction is the way from the label (or array start) to the value.
	Direction Direction

	// ArrayDirection is the run direction of labelled arrays.
	ArrayDirection Direction

	// Skip is the number of cells passed over between label and value.
	Skip int

	// Range widens the value search to the first non-blank cell.
	Range int

	// LabelMerged lets merged labels match through their anchor.
	LabelMerged bool

	// ElementMerged steps array elements over merged spans.
	ElementMerged bool

	// Merged reads blank cells of a merged region from the region anchor.
	Merged bool

	// HeaderMerged selects a column inside a merged header.
	HeaderMerged int

	// Optional makes a missing label or column an absence, not a failure.
	Optional bool

	// Key columns are ignored when deciding whether a record is empty.
	Key bool

	// Size is the element count of array kinds.
	Size int

	// Column is the header text of column and array-column kinds.
	Column Label

	// Previous and Next bound a map-column run; both are exclusive.
	Previous Label
	Next     Label

	// Sheet is set for KindSheet.
	Sheet *SheetDirective

	// Table is set for record kinds.
	Table *TableDirective

	// Converter holds conversion rules for the field.
	Converter *ConverterDirective

	// Formula is set when the field carries a formula directive.
	Formula *FormulaDirective

	index    []int
	typ      reflect.Type
	owner    reflect.Type
	elemType reflect.Type
	elem     *modelSpec
	plural   bool
	ordered  bool
}

// modelSpec is the directive table of one struct type.
type modelSpec struct {
	typ       reflect.Type
	sheet     *Directive
	fields    []*Directive
	positions *Directive
	labels    *Directive
	comments  *Directive
	emptier   bool
	hasColumn bool
	hasOther  bool
}

func (s *modelSpec) name() string {
	return typeName(s.typ)
}

func typeName(t reflect.Type) string {
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// Section names one tag of a field: its binding, converter or formula.
type Section string

// Override sections.
const (
	SectionBinding   Section = "binding"
	SectionConverter Section = "converter"
	SectionFormula   Section = "formula"
)

// Override replaces one section of a field's static declaration.
type Override struct {
	// Type is the model type name as reported by reflect.Type.Name.
	Type string

	// Field is the Go field name.
	Field string

	// Section is the tag section replaced.
	Section Section

	// Kind is the binding kind; only used by SectionBinding.
	Kind string

	// Attrs are the section attributes, in tag attribute vocabulary. A
	// formula override carries its template under "template".
	Attrs map[string]string
}

// OverrideSource supplies overrides for a model type. It returns nil when
// it has none.
type OverrideSource interface {
	Overrides(t reflect.Type) ([]Override, error)
}

// StaticOverrides is an in-code OverrideSource.
type StaticOverrides []Override

// Overrides implements OverrideSource.
func (s StaticOverrides) Overrides(t reflect.Type) ([]Override, error) {
	var out []Override
	for _, o := range s {
		if o.Type == t.Name() {
			out = append(out, o)
		}
	}
	return out, nil
}

// MultiSource merges several sources; later sources win for the same key.
type MultiSource []OverrideSource

// Overrides implements OverrideSource.
func (m MultiSource) Overrides(t reflect.Type) ([]Override, error) {
	var out []Override
	for _, src := range m {
		if src == nil {
			continue
		}
		ovs, err := src.Overrides(t)
		if err != nil {
			return nil, err
		}
		out = append(out, ovs...)
	}
	return out, nil
}

type overrideKey struct {
	field   string
	section Section
}

func (o Override) raw() rawDirective {
	attrs := make(map[string]string, len(o.Attrs))
	for k, v := range o.Attrs {
		attrs[k] = v
	}
	return rawDirective{Kind: strings.TrimSpace(o.Kind), Attrs: attrs}
}
