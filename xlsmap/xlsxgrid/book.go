// Package xlsxgrid adapts excelize workbooks to the xlsmap Book and Sheet
// interfaces.
package xlsxgrid

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/yamitzky/xlsmap-go/xlsmap"
)

// Book is an xlsx workbook.
type Book struct {
	f      *excelize.File
	sheets map[string]*Sheet
}

// Open opens an xlsx file.
func Open(path string) (*Book, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	b, err := openBytes(content)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return b, nil
}

// OpenReader reads an xlsx document from r.
func OpenReader(r io.Reader) (*Book, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	b, err := openBytes(content)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	return b, nil
}

// openBytes rejects containers excelize cannot read. An OLE document may
// be an encrypted xlsx, so excelize gets a try before it is refused.
func openBytes(content []byte) (*Book, error) {
	format := InspectFormat(content)
	switch format {
	case FormatXLSX, FormatXLS:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Description())
	}
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		if format == FormatXLS {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, format.Description(), err)
		}
		return nil, err
	}
	return Wrap(f), nil
}

// New returns an empty workbook holding one sheet, "Sheet1".
func New() *Book {
	return Wrap(excelize.NewFile())
}

// Wrap adapts an open excelize file.
func Wrap(f *excelize.File) *Book {
	return &Book{f: f, sheets: map[string]*Sheet{}}
}

// File returns the underlying excelize file.
func (b *Book) File() *excelize.File {
	return b.f
}

// SheetNames implements xlsmap.Book.
func (b *Book) SheetNames() []string {
	return b.f.GetSheetList()
}

// Sheet implements xlsmap.Book.
func (b *Book) Sheet(name string) (xlsmap.Sheet, error) {
	idx, err := b.f.GetSheetIndex(name)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q: %w", name, xlsmap.ErrSheetNotFound)
	}
	if sh, ok := b.sheets[name]; ok {
		return sh, nil
	}
	sh := &Sheet{f: b.f, name: name, styles: map[int]*excelize.Style{}}
	b.sheets[name] = sh
	return sh, nil
}

// AddSheet creates a sheet, or returns the existing one of that name.
func (b *Book) AddSheet(name string) (xlsmap.Sheet, error) {
	if idx, err := b.f.GetSheetIndex(name); err == nil && idx >= 0 {
		return b.Sheet(name)
	}
	if _, err := b.f.NewSheet(name); err != nil {
		return nil, fmt.Errorf("add sheet %q: %w", name, err)
	}
	return b.Sheet(name)
}

// SaveAs writes the workbook to path.
func (b *Book) SaveAs(path string) error {
	return b.f.SaveAs(path)
}

// Write writes the workbook to w.
func (b *Book) Write(w io.Writer) error {
	return b.f.Write(w)
}

// Close releases the workbook's temporary files.
func (b *Book) Close() error {
	return b.f.Close()
}
