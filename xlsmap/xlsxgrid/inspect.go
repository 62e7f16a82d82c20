package xlsxgrid

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
)

// ErrUnsupportedFormat is returned when a document is not an xlsx
// workbook.
var ErrUnsupportedFormat = errors.New("unsupported workbook format")

// Format is a spreadsheet container format found by InspectFormat.
type Format string

// Formats recognised by InspectFormat.
const (
	FormatUnknown Format = ""
	FormatXLS     Format = "xls"
	FormatXLSX    Format = "xlsx"
	FormatXLSB    Format = "xlsb"
	FormatODS     Format = "ods"
	FormatZIP     Format = "zip"
)

var formatDescriptions = map[Format]string{
	FormatXLS:     "Excel xls or encrypted workbook",
	FormatXLSX:    "Excel xlsx file",
	FormatXLSB:    "Excel 2007 xlsb file",
	FormatODS:     "Openoffice.org ODS file",
	FormatZIP:     "Unknown ZIP file",
	FormatUnknown: "Unknown file type",
}

// Description returns a human readable name for the format.
func (f Format) Description() string {
	if d, ok := formatDescriptions[f]; ok {
		return d
	}
	return formatDescriptions[FormatUnknown]
}

var (
	oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipSignature = []byte("PK\x03\x04")
)

// InspectFormat sniffs the container format of a document.
func InspectFormat(content []byte) Format {
	switch {
	case bytes.HasPrefix(content, oleSignature):
		return FormatXLS
	case !bytes.HasPrefix(content, zipSignature):
		return FormatUnknown
	}
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return FormatUnknown
	}
	// Some writers use backslashes or odd casing in part names.
	parts := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		parts[strings.ToLower(strings.ReplaceAll(f.Name, "\\", "/"))] = true
	}
	switch {
	case parts["xl/workbook.xml"]:
		return FormatXLSX
	case parts["xl/workbook.bin"]:
		return FormatXLSB
	case parts["content.xml"]:
		return FormatODS
	}
	return FormatZIP
}
