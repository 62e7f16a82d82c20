package main

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
)

func TestRunDefault(t *testing.T) {
	out, errOut, code := runCLI([]string{"-t", "Members", "-l", "\\n", samplePath(t)})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	records := readAll(t, out, ',')
	want := [][]string{{"Name", "Age"}, {"Alice", "30"}, {"Bob, Jr.", "41"}}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d: %q", len(records), len(want), out)
	}
	for i := range want {
		if strings.Join(records[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("record %d = %v, want %v", i, records[i], want[i])
		}
	}
}

func TestRunHeaderAddressNoHeader(t *testing.T) {
	out, errOut, code := runCLI([]string{"-H", "A2", "--no-header", "-l", "\\n", samplePath(t)})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if got := firstLine(out); got != `Alice,30` {
		t.Fatalf("first line = %q, want %q", got, "Alice,30")
	}
}

func TestRunQuotingNonNumeric(t *testing.T) {
	out, errOut, code := runCLI([]string{"-t", "Members", "-q", "nonnumeric", "--no-header", "-l", "\\n", samplePath(t)})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if got := firstLine(out); got != `"Alice",30` {
		t.Fatalf("first line = %q, want %q", got, `"Alice",30`)
	}
}

func TestRunDelimiterTab(t *testing.T) {
	out, errOut, code := runCLI([]string{"-t", "Members", "-d", "tab", samplePath(t)})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	record := readAll(t, out, '\t')[0]
	if len(record) != 2 || record[0] != "Name" {
		t.Fatalf("unexpected first record: %v", record)
	}
}

func TestRunOutputEncoding(t *testing.T) {
	out, errOut, code := runCLI([]string{"-n", "名簿", "-t", "社員", "-c", "shift_jis", "-l", "\\n", samplePath(t)})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().String(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := firstLine(decoded); got != "氏名,所属" {
		t.Fatalf("header = %q, want %q", got, "氏名,所属")
	}
}

func TestRunAllSheetsSkipsMissingTable(t *testing.T) {
	out, errOut, code := runCLI([]string{"-a", "-t", "社員", "-l", "\\n", samplePath(t)})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if strings.Contains(out, defaultSheetDelimiter) {
		t.Fatalf("unexpected sheet delimiter in %q", out)
	}
	if got := firstLine(out); got != "氏名,所属" {
		t.Fatalf("first line = %q", got)
	}
}

func TestRunMissingTable(t *testing.T) {
	_, errOut, code := runCLI([]string{"-t", "Nowhere", samplePath(t)})
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(errOut, "Nowhere") {
		t.Fatalf("stderr %q does not name the label", errOut)
	}
}

func TestRunRequiresTable(t *testing.T) {
	_, _, code := runCLI([]string{samplePath(t)})
	if code != 2 {
		t.Fatalf("exit code %d, want 2", code)
	}
}

func TestRunTerminalLabel(t *testing.T) {
	out, errOut, code := runCLI([]string{"-t", "Members", "--terminal-label", "Bob, Jr.", "-l", "\\n", samplePath(t)})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if n := len(readAll(t, out, ',')); n != 2 {
		t.Fatalf("got %d lines, want header and one record: %q", n, out)
	}
}

func TestParseDelimiter(t *testing.T) {
	for in, want := range map[string]rune{",": ',', "tab": '\t', "x3b": ';', "|": '|'} {
		got, err := parseDelimiter(in)
		if err != nil {
			t.Fatalf("parseDelimiter(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseDelimiter(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := parseDelimiter(""); err == nil {
		t.Fatalf("expected error for empty delimiter")
	}
}

func runCLI(args []string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(""), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// samplePath writes a two-sheet workbook: "Sheet1" holds a bordered
// "Members" table, "名簿" a Japanese one.
func samplePath(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	border, err := f.NewStyle(&excelize.Style{Border: []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}})
	if err != nil {
		t.Fatalf("new style: %v", err)
	}
	cells := map[string]any{
		"A1": "Members",
		"A2": "Name", "B2": "Age",
		"A3": "Alice", "B3": 30,
		"A4": "Bob, Jr.", "B4": 41,
		"A6": "Notes",
	}
	for ref, v := range cells {
		if err := f.SetCellValue("Sheet1", ref, v); err != nil {
			t.Fatalf("set %s: %v", ref, err)
		}
	}
	if err := f.SetCellStyle("Sheet1", "A2", "B4", border); err != nil {
		t.Fatalf("set style: %v", err)
	}
	if _, err := f.NewSheet("名簿"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	for ref, v := range map[string]any{
		"B2": "社員",
		"B3": "氏名", "C3": "所属",
		"B4": "山田", "C4": "開発",
	} {
		if err := f.SetCellValue("名簿", ref, v); err != nil {
			t.Fatalf("set %s: %v", ref, err)
		}
	}
	if err := f.SetCellStyle("名簿", "B3", "C4", border); err != nil {
		t.Fatalf("set style: %v", err)
	}
	path := filepath.Join(t.TempDir(), "sample.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func readAll(t *testing.T, output string, delimiter rune) [][]string {
	t.Helper()
	reader := csv.NewReader(strings.NewReader(output))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return records
}

func firstLine(output string) string {
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		return strings.TrimSuffix(output[:idx], "\r")
	}
	return output
}
