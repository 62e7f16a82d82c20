package xlsmap

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// formulaTemplate is a compiled formula directive: literal text with
// {expression} placeholders. "{{" and "}}" stand for literal braces.
type formulaTemplate struct {
	parts []formulaPart
}

type formulaPart struct {
	text    string
	src     string
	program *vm.Program
}

func compileFormula(tmpl string) (*formulaTemplate, error) {
	ft := &formulaTemplate{}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			ft.parts = append(ft.parts, formulaPart{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch {
		case ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("formula %q: unterminated placeholder at offset %d", tmpl, i)
			}
			src := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if src == "" {
				return nil, fmt.Errorf("formula %q: empty placeholder at offset %d", tmpl, i)
			}
			program, err := expr.Compile(src)
			if err != nil {
				return nil, fmt.Errorf("formula %q: placeholder {%s}: %w", tmpl, src, err)
			}
			flush()
			ft.parts = append(ft.parts, formulaPart{src: src, program: program})
			i += end + 1
		case ch == '}':
			return nil, fmt.Errorf("formula %q: unmatched '}' at offset %d", tmpl, i)
		default:
			lit.WriteByte(ch)
		}
	}
	flush()
	return ft, nil
}

// FormulaContext is what a formula template can see about the cell it is
// written to.
type FormulaContext struct {
	// Cell is the target cell.
	Cell CellAddress

	// Sheet is the sheet name.
	Sheet string

	// InTable is set for fields of table records.
	InTable bool

	// RecordIndex is the zero-based record index within its table.
	RecordIndex int

	// Table is the data body of the table after reconciliation.
	Table Region

	// Record is the record being written, or nil.
	Record any

	// Model is the top-level model being saved.
	Model any
}

func (fc FormulaContext) env() map[string]any {
	env := map[string]any{
		"rowIndex":     fc.Cell.Row,
		"rowNumber":    fc.Cell.Row + 1,
		"columnIndex":  fc.Cell.Col,
		"columnNumber": fc.Cell.Col + 1,
		"columnAlpha":  ColumnName(fc.Cell.Col),
		"address":      fc.Cell.String(),
		"sheetName":    fc.Sheet,
		"record":       fc.Record,
		"model":        fc.Model,
		"recordIndex":  -1,
		"recordNumber": 0,
		"colAlpha":     func(n int) string { return ColumnName(n - 1) },
		"cellName":     func(row, col int) string { return Addr(row-1, col-1).String() },
	}
	if fc.InTable {
		env["recordIndex"] = fc.RecordIndex
		env["recordNumber"] = fc.RecordIndex + 1
		env["tableTopRowNumber"] = fc.Table.Start.Row + 1
		env["tableBottomRowNumber"] = fc.Table.End.Row + 1
		env["tableLeftColumnNumber"] = fc.Table.Start.Col + 1
		env["tableRightColumnNumber"] = fc.Table.End.Col + 1
		env["tableLeftColumnAlpha"] = ColumnName(fc.Table.Start.Col)
		env["tableRightColumnAlpha"] = ColumnName(fc.Table.End.Col)
	}
	return env
}

func (ft *formulaTemplate) render(fc FormulaContext) (string, error) {
	env := fc.env()
	var b strings.Builder
	for _, p := range ft.parts {
		if p.program == nil {
			b.WriteString(p.text)
			continue
		}
		out, err := expr.Run(p.program, env)
		if err != nil {
			return "", fmt.Errorf("placeholder {%s}: %w", p.src, err)
		}
		if out != nil {
			fmt.Fprint(&b, out)
		}
	}
	return strings.TrimPrefix(b.String(), "="), nil
}

// BuildFormula renders a formula template for a cell.
func BuildFormula(template string, fc FormulaContext) (string, error) {
	ft, err := compileFormula(template)
	if err != nil {
		return "", err
	}
	return ft.render(fc)
}
