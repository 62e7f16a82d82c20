package xlsxgrid

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

func zipWith(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		if _, err := zw.Create(n); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestInspectFormat(t *testing.T) {
	var xlsx bytes.Buffer
	if err := New().Write(&xlsx); err != nil {
		t.Fatalf("write: %v", err)
	}
	tests := []struct {
		name    string
		content []byte
		want    Format
	}{
		{"xlsx", xlsx.Bytes(), FormatXLSX},
		{"xlsx backslash", zipWith(t, `XL\Workbook.xml`), FormatXLSX},
		{"xlsb", zipWith(t, "xl/workbook.bin"), FormatXLSB},
		{"ods", zipWith(t, "content.xml"), FormatODS},
		{"zip", zipWith(t, "readme.txt"), FormatZIP},
		{"ole", append(append([]byte{}, oleSignature...), 0, 0), FormatXLS},
		{"short", []byte("PK"), FormatUnknown},
		{"text", []byte("name,age\n"), FormatUnknown},
	}
	for _, tt := range tests {
		if got := InspectFormat(tt.content); got != tt.want {
			t.Errorf("%s: InspectFormat() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestOpenReaderRejectsOtherFormats(t *testing.T) {
	for _, content := range [][]byte{zipWith(t, "content.xml"), []byte("a,b\n1,2\n"), oleSignature} {
		_, err := OpenReader(bytes.NewReader(content))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("OpenReader() error = %v, want ErrUnsupportedFormat", err)
		}
	}
}
