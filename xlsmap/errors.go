package xlsmap

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies a binding failure.
type FailureKind int

// Failure kinds.
const (
	// CellNotFound means a required label, anchor, header or terminal was
	// not found on the sheet.
	CellNotFound FailureKind = iota + 1

	// TypeConversion means cell content could not be converted to or from
	// the field type.
	TypeConversion

	// DirectiveInvalid means a directive is structurally malformed.
	DirectiveInvalid

	// SizeMismatch means more records were supplied than a template holds
	// under the Error over-policy, or more elements than an array holds.
	SizeMismatch
)

// Sentinel errors matched by errors.Is against a *Failure or *DirectiveError.
var (
	ErrCellNotFound     = errors.New("cell not found")
	ErrTypeConversion   = errors.New("type conversion failed")
	ErrDirectiveInvalid = errors.New("invalid directive")
	ErrSizeMismatch     = errors.New("size mismatch")
)

func (k FailureKind) String() string {
	switch k {
	case CellNotFound:
		return "cell-not-found"
	case TypeConversion:
		return "type-conversion"
	case DirectiveInvalid:
		return "directive-invalid"
	case SizeMismatch:
		return "size-mismatch"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

func (k FailureKind) sentinel() error {
	switch k {
	case CellNotFound:
		return ErrCellNotFound
	case TypeConversion:
		return ErrTypeConversion
	case DirectiveInvalid:
		return ErrDirectiveInvalid
	case SizeMismatch:
		return ErrSizeMismatch
	}
	return nil
}

// Failure is one binding failure, tied to a field path and, when known,
// the cell involved.
type Failure struct {
	// Kind classifies the failure.
	Kind FailureKind

	// Path is the logical field path, e.g. "Members[2].Name".
	Path string

	// Sheet is the name of the sheet being bound.
	Sheet string

	// Cell is the cell involved. It is only meaningful when HasCell is set.
	Cell CellAddress

	// HasCell reports whether Cell is set.
	HasCell bool

	// Message describes the failure.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Kind.String())
	if f.Path != "" {
		b.WriteString(" at ")
		b.WriteString(f.Path)
	}
	if f.HasCell {
		b.WriteString(" (")
		if f.Sheet != "" {
			b.WriteString(f.Sheet)
			b.WriteByte('!')
		}
		b.WriteString(f.Cell.String())
		b.WriteByte(')')
	}
	b.WriteString(": ")
	b.WriteString(f.Message)
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

// Unwrap returns the sentinel for the kind and the underlying error.
func (f *Failure) Unwrap() []error {
	errs := []error{f.Kind.sentinel()}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

// Failures is the list of failures accumulated by one Load or Save call.
type Failures []*Failure

func (fs Failures) Error() string {
	msgs := make([]string, len(fs))
	for i, f := range fs {
		msgs[i] = f.Error()
	}
	return strings.Join(msgs, "; ")
}

// OfKind returns the failures of one kind.
func (fs Failures) OfKind(kind FailureKind) Failures {
	var out Failures
	for _, f := range fs {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// DirectiveError reports a malformed directive. It is raised while a model
// type is compiled, before any cell is read.
type DirectiveError struct {
	// Type is the model type name.
	Type string

	// Field is the Go field name.
	Field string

	// Directive is the directive kind or tag section.
	Directive string

	// Attribute is the offending attribute, if any.
	Attribute string

	// Value is the offending value, if any.
	Value string

	// Message describes the problem.
	Message string
}

func (e *DirectiveError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid directive %s.%s", e.Type, e.Field)
	if e.Directive != "" {
		fmt.Fprintf(&b, " [%s]", e.Directive)
	}
	if e.Attribute != "" {
		fmt.Fprintf(&b, " attribute %s=%q", e.Attribute, e.Value)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Is matches ErrDirectiveInvalid.
func (e *DirectiveError) Is(target error) bool {
	return target == ErrDirectiveInvalid
}
