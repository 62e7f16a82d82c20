package xlsmap

import "testing"

func TestBuildFormula(t *testing.T) {
	cell := MustParseAddress("B5")
	table := Region{Start: MustParseAddress("A3"), End: MustParseAddress("D9")}
	tests := []struct {
		name string
		tmpl string
		fc   FormulaContext
		want string
	}{
		{"literal", "SUM(A1:A3)", FormulaContext{Cell: cell}, "SUM(A1:A3)"},
		{"leading equals", "=A1", FormulaContext{Cell: cell}, "A1"},
		{"row", "SUM(A{rowNumber}:A{rowNumber+2})", FormulaContext{Cell: cell}, "SUM(A5:A7)"},
		{"column", "{columnAlpha}{rowNumber-1}", FormulaContext{Cell: cell}, "B4"},
		{"helpers", "{colAlpha(28)}1+{cellName(2, 3)}", FormulaContext{Cell: cell}, "AB1+C2"},
		{"braces", "{{x}}", FormulaContext{Cell: cell}, "{x}"},
		{"sheet", "'{sheetName}'!A1", FormulaContext{Cell: cell, Sheet: "Data"}, "'Data'!A1"},
		{"outside a table", "{recordIndex}", FormulaContext{Cell: cell}, "-1"},
		{
			"table extent",
			"SUM({tableLeftColumnAlpha}{tableTopRowNumber}:{tableRightColumnAlpha}{tableBottomRowNumber})",
			FormulaContext{Cell: cell, InTable: true, RecordIndex: 2, Table: table},
			"SUM(A3:D9)",
		},
		{"record number", "{recordNumber}", FormulaContext{Cell: cell, InTable: true, RecordIndex: 2, Table: table}, "3"},
		{
			"record fields",
			"{record.Name}*{model.Rate}",
			FormulaContext{Cell: cell, Record: map[string]any{"Name": "B5"}, Model: map[string]any{"Rate": 2}},
			"B5*2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildFormula(tt.tmpl, tt.fc)
			if err != nil {
				t.Fatalf("BuildFormula(%q) error = %v", tt.tmpl, err)
			}
			if got != tt.want {
				t.Errorf("BuildFormula(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestCompileFormulaErrors(t *testing.T) {
	for _, tmpl := range []string{"{rowNumber", "A1}", "{}", "{ }", "{1 +}"} {
		if _, err := compileFormula(tmpl); err == nil {
			t.Errorf("compileFormula(%q) expected an error", tmpl)
		}
	}
}

func TestFormulaRuntimeError(t *testing.T) {
	if _, err := BuildFormula("{colAlpha(\"x\")}", FormulaContext{}); err == nil {
		t.Fatalf("expected a runtime error")
	}
}
