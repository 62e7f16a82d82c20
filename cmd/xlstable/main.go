package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/yamitzky/xlsmap-go/xlsmap"
	"github.com/yamitzky/xlsmap-go/xlsmap/xlsxgrid"
)

const defaultSheetDelimiter = "--------"

var version = "dev"

type quotingMode int

const (
	quotingNone quotingMode = iota
	quotingMinimal
	quotingNonNumeric
	quotingAll
)

type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

type options struct {
	allSheets           bool
	sheetID             int
	sheetName           string
	includeSheetPattern []*regexp.Regexp
	excludeSheetPattern []*regexp.Regexp
	sheetDelimiter      string
	table               xlsmap.TableDirective
	noHeader            bool
	delimiter           rune
	lineTerminator      string
	outputEncoding      string
	escape              bool
	quoting             quotingMode
}

type csvWriter struct {
	w              io.Writer
	delimiter      rune
	lineTerminator string
	quoting        quotingMode
}

type field struct {
	text      string
	isNumeric bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var includePatterns stringList
	var excludePatterns stringList

	fs := flag.NewFlagSet("xlstable", flag.ContinueOnError)
	fs.SetOutput(stderr)

	showVersion := fs.Bool("v", false, "show version")
	fs.BoolVar(showVersion, "version", false, "show version")
	allSheets := fs.Bool("a", false, "read the table from all sheets")
	fs.BoolVar(allSheets, "all", false, "read the table from all sheets")

	sheetID := fs.Int("s", 0, "sheet number to read, counting from 1")
	fs.IntVar(sheetID, "sheet", 0, "sheet number to read, counting from 1")
	sheetName := fs.String("n", "", "sheet name to read")
	fs.StringVar(sheetName, "sheetname", "", "sheet name to read")
	fs.Var(&includePatterns, "I", "include sheet patterns")
	fs.Var(&includePatterns, "include_sheet_pattern", "include sheet patterns")
	fs.Var(&excludePatterns, "E", "exclude sheet patterns")
	fs.Var(&excludePatterns, "exclude_sheet_pattern", "exclude sheet patterns")
	sheetDelimiter := fs.String("p", defaultSheetDelimiter, "sheet delimiter")
	fs.StringVar(sheetDelimiter, "sheetdelimiter", defaultSheetDelimiter, "sheet delimiter")

	tableLabel := fs.String("t", "", "table label")
	fs.StringVar(tableLabel, "table", "", "table label")
	headerAddress := fs.String("H", "", "header address")
	fs.StringVar(headerAddress, "header", "", "header address")
	vertical := fs.Bool("vertical", false, "records run down columns")
	offset := fs.Int("offset", 1, "distance from the table label to the header")
	dataOffset := fs.Int("dataoffset", 1, "distance from the header to the first record")
	terminal := fs.String("terminal", "border", "table end: border, empty or label")
	terminalLabel := fs.String("terminal-label", "", "label ending the table")
	headerLimit := fs.Int("header-limit", 0, "maximum number of header cells")
	keepEmpty := fs.Bool("keep-empty", false, "keep empty records")
	regexLabels := fs.Bool("regex", false, "treat /.../ labels as patterns")
	normalize := fs.Bool("normalize", false, "normalize labels before comparing")
	noHeader := fs.Bool("no-header", false, "omit the header line")

	outputEncoding := fs.String("c", "utf-8", "output CSV encoding")
	fs.StringVar(outputEncoding, "outputencoding", "utf-8", "output CSV encoding")
	delimiterFlag := fs.String("d", ",", "delimiter")
	fs.StringVar(delimiterFlag, "delimiter", ",", "delimiter")
	lineTerminatorFlag := fs.String("l", "", "line terminator")
	fs.StringVar(lineTerminatorFlag, "lineterminator", "", "line terminator")
	escape := fs.Bool("e", false, "escape \\r\\n\\t characters")
	fs.BoolVar(escape, "escape", false, "escape \\r\\n\\t characters")
	quotingFlag := fs.String("q", "minimal", "field quoting")
	fs.StringVar(quotingFlag, "quoting", "minimal", "field quoting")

	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn or error")
	logFormat := fs.String("log-format", "text", "log format: text or json")

	fs.Usage = func() {
		fmt.Fprint(stderr, usageText())
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	rest := fs.Args()
	if len(rest) < 1 {
		fs.Usage()
		return 2
	}

	if *sheetName != "" && (*allSheets || *sheetID > 0) {
		fmt.Fprintln(stderr, "cannot combine --sheetname with --sheet or --all")
		return 2
	}

	td, err := tableDirective(*tableLabel, *headerAddress, *terminal, *terminalLabel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	td.Vertical = *vertical
	td.Offset = *offset
	td.DataOffset = *dataOffset
	td.HeaderLimit = *headerLimit
	td.KeepEmpty = *keepEmpty

	if _, err := htmlindex.Get(*outputEncoding); err != nil {
		fmt.Fprintf(stderr, "unsupported output encoding: %s\n", *outputEncoding)
		return 2
	}

	delimiter, err := parseDelimiter(*delimiterFlag)
	if err != nil {
		fmt.Fprintf(stderr, "invalid delimiter: %v\n", err)
		return 2
	}

	lineTerminator := *lineTerminatorFlag
	if lineTerminator == "" {
		lineTerminator = osLineSep()
	} else {
		lineTerminator, err = parseEscapedString(lineTerminator)
		if err != nil {
			fmt.Fprintf(stderr, "invalid line terminator: %v\n", err)
			return 2
		}
	}

	sheetDelimiterValue := *sheetDelimiter
	if sheetDelimiterValue != "" {
		sheetDelimiterValue, err = parseSheetDelimiter(sheetDelimiterValue)
		if err != nil {
			fmt.Fprintf(stderr, "invalid sheet delimiter: %v\n", err)
			return 2
		}
	}

	quoting, err := parseQuoting(*quotingFlag)
	if err != nil {
		fmt.Fprintf(stderr, "invalid quoting: %v\n", err)
		return 2
	}

	includeRegex, err := compilePatterns(includePatterns)
	if err != nil {
		fmt.Fprintf(stderr, "invalid include pattern: %v\n", err)
		return 2
	}
	excludeRegex, err := compilePatterns(excludePatterns)
	if err != nil {
		fmt.Fprintf(stderr, "invalid exclude pattern: %v\n", err)
		return 2
	}

	opts := options{
		allSheets:           *allSheets,
		sheetID:             *sheetID,
		sheetName:           *sheetName,
		includeSheetPattern: includeRegex,
		excludeSheetPattern: excludeRegex,
		sheetDelimiter:      sheetDelimiterValue,
		table:               td,
		noHeader:            *noHeader,
		delimiter:           delimiter,
		lineTerminator:      lineTerminator,
		outputEncoding:      *outputEncoding,
		escape:              *escape,
		quoting:             quoting,
	}

	mapper := xlsmap.NewMapper(&xlsmap.Options{
		RegexLabels:     *regexLabels,
		NormalizeLabels: *normalize,
		Logger:          newLogger(*logLevel, *logFormat, stderr),
	})

	inputPath := rest[0]
	outputPath := ""
	if len(rest) > 1 {
		outputPath = rest[1]
	}

	var book *xlsxgrid.Book
	if inputPath == "-" {
		book, err = xlsxgrid.OpenReader(stdin)
	} else {
		book, err = xlsxgrid.Open(inputPath)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer book.Close()

	if err := convertBook(book, mapper, outputPath, opts, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func usageText() string {
	return `Usage:

 xlstable [-h] [-v] [-a] [-s SHEETID] [-n SHEETNAME]
          [-I INCLUDE_SHEET_PATTERN] [-E EXCLUDE_SHEET_PATTERN] [-p SHEETDELIMITER]
          (-t LABEL | -H ADDRESS) [--vertical] [--offset N] [--dataoffset N]
          [--terminal border|empty|label] [--terminal-label LABEL]
          [--header-limit N] [--keep-empty] [--regex] [--normalize] [--no-header]
          [-c OUTPUTENCODING] [-d DELIMITER] [-l LINETERMINATOR] [-e] [-q QUOTING]
          [--log-level LEVEL] [--log-format text|json]
          xlsxfile [outfile]
positional arguments:

  xlsxfile              xlsx file path, use '-' to read from STDIN
  outfile               output csv file path (default: STDOUT)
optional arguments:

  -h, --help            show this help message and exit
  -v, --version         show program's version number and exit
  -a, --all             read the table from every sheet that has it
  -s SHEETID, --sheet SHEETID
                        sheet number to read, counting from 1 (default: first sheet)
  -n SHEETNAME, --sheetname SHEETNAME
                        sheet name to read
  -I INCLUDE_SHEET_PATTERN, --include_sheet_pattern INCLUDE_SHEET_PATTERN
                        only include sheets matching the pattern, with -a
  -E EXCLUDE_SHEET_PATTERN, --exclude_sheet_pattern EXCLUDE_SHEET_PATTERN
                        exclude sheets matching the pattern, with -a
  -p SHEETDELIMITER, --sheetdelimiter SHEETDELIMITER
                        line written between sheets with -a, pass '' for none
                        (default: '--------')
  -t LABEL, --table LABEL
                        label of the table; /pattern/ with --regex
  -H ADDRESS, --header ADDRESS
                        address of the first header cell, e.g. B3
  --vertical            records run down columns instead of across rows
  --offset N            distance from the table label to the header (default: 1)
  --dataoffset N        distance from the header to the first record (default: 1)
  --terminal POLICY     where the table ends: 'border' 'empty' or 'label' (default: 'border')
  --terminal-label LABEL
                        label ending the table, implies --terminal label
  --header-limit N      read at most N header cells
  --keep-empty          keep empty records
  --regex               treat /.../ labels as regular expressions
  --normalize           compare labels after folding width and white space
  --no-header           omit the header line
  -c OUTPUTENCODING, --outputencoding OUTPUTENCODING
                        encoding of output CSV, e.g. shift_jis (default: utf-8)
  -d DELIMITER, --delimiter DELIMITER
                        column delimiter, 'tab' or 'x09' for a tab (default: comma ',')
  -l LINETERMINATOR, --lineterminator LINETERMINATOR
                        line terminator, '\n' '\r\n' or '\r' (default: os.linesep)
  -e, --escape          escape \r\n\t characters
  -q QUOTING, --quoting QUOTING
                        field quoting, 'none' 'minimal' 'nonnumeric' or 'all' (default: 'minimal')
  --log-level LEVEL     'debug' 'info' 'warn' or 'error' (default: 'warn')
  --log-format FORMAT   'text' or 'json' (default: 'text')
`
}

func tableDirective(label, header, terminal, terminalLabel string) (xlsmap.TableDirective, error) {
	var td xlsmap.TableDirective
	switch {
	case header != "":
		a, err := xlsmap.ParseAddress(header)
		if err != nil {
			return td, err
		}
		td.HeaderAddress, td.HasHeaderAddress = a, true
	case label != "":
		l, err := xlsmap.ParseLabel(label)
		if err != nil {
			return td, err
		}
		td.Label = l
	default:
		return td, fmt.Errorf("one of --table or --header is required")
	}
	switch strings.ToLower(terminal) {
	case "border":
		td.Terminal = xlsmap.TerminalBorder
	case "empty":
		td.Terminal = xlsmap.TerminalEmpty
	case "label":
		td.Terminal = xlsmap.TerminalLabel
	default:
		return td, fmt.Errorf("unsupported terminal: %s", terminal)
	}
	if terminalLabel != "" {
		l, err := xlsmap.ParseLabel(terminalLabel)
		if err != nil {
			return td, err
		}
		td.TerminalLabel = l
		td.Terminal = xlsmap.TerminalLabel
	}
	if td.Terminal == xlsmap.TerminalLabel && td.TerminalLabel.IsZero() {
		return td, fmt.Errorf("--terminal label needs --terminal-label")
	}
	return td, nil
}

// newLogger builds the diagnostics logger; it writes to stderr so the CSV
// on stdout stays clean.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

func parseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", "x09":
		return '\t', nil
	}
	if value == "" {
		return 0, fmt.Errorf("delimiter cannot be empty")
	}
	if strings.HasPrefix(value, "x") && len(value) == 3 {
		decoded, err := strconv.ParseUint(value[1:], 16, 8)
		if err != nil {
			return 0, err
		}
		return rune(decoded), nil
	}
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError && size == 1 {
		return rune(value[0]), nil
	}
	return r, nil
}

func parseSheetDelimiter(value string) (string, error) {
	if value == "\\f" {
		return "\f", nil
	}
	if strings.HasPrefix(value, "x") && len(value) == 3 {
		decoded, err := strconv.ParseUint(value[1:], 16, 8)
		if err != nil {
			return "", err
		}
		return string([]byte{byte(decoded)}), nil
	}
	return value, nil
}

func parseEscapedString(value string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] != '\\' {
			b.WriteByte(value[i])
			continue
		}
		if i+1 >= len(value) {
			return "", fmt.Errorf("dangling escape")
		}
		i++
		switch value[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("unknown escape \\%c", value[i])
		}
	}
	return b.String(), nil
}

func parseQuoting(value string) (quotingMode, error) {
	switch strings.ToLower(value) {
	case "none":
		return quotingNone, nil
	case "minimal":
		return quotingMinimal, nil
	case "nonnumeric":
		return quotingNonNumeric, nil
	case "all":
		return quotingAll, nil
	default:
		return quotingMinimal, fmt.Errorf("unsupported quoting: %s", value)
	}
}

func compilePatterns(values []string) ([]*regexp.Regexp, error) {
	if len(values) == 0 {
		return nil, nil
	}
	patterns := make([]*regexp.Regexp, 0, len(values))
	for _, value := range values {
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func osLineSep() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

func convertBook(book xlsmap.Book, mapper *xlsmap.Mapper, outputPath string, opts options, stdout io.Writer) error {
	names, err := selectSheets(book, opts)
	if err != nil {
		return err
	}
	if outputPath == "" {
		return writeOutput(stdout, book, mapper, names, opts)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()
	return writeOutput(file, book, mapper, names, opts)
}

func writeOutput(out io.Writer, book xlsmap.Book, mapper *xlsmap.Mapper, names []string, opts options) error {
	var enc io.Writer = out
	var closer io.Closer
	if e := strings.ToLower(opts.outputEncoding); e != "utf-8" && e != "utf8" {
		encoding, err := htmlindex.Get(opts.outputEncoding)
		if err != nil {
			return err
		}
		tw := transform.NewWriter(out, encoding.NewEncoder())
		enc, closer = tw, tw
	}
	writer := bufio.NewWriter(enc)
	if err := writeSheets(writer, book, mapper, names, opts); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}

func selectSheets(book xlsmap.Book, opts options) ([]string, error) {
	names := book.SheetNames()
	if opts.sheetName != "" {
		for _, name := range names {
			if name == opts.sheetName {
				return []string{name}, nil
			}
		}
		return nil, fmt.Errorf("sheet %s not found", opts.sheetName)
	}

	if opts.allSheets {
		selected := make([]string, 0, len(names))
		for _, name := range names {
			if matchPatterns(name, opts.includeSheetPattern, opts.excludeSheetPattern) {
				selected = append(selected, name)
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Errorf("no sheets matched selection")
		}
		return selected, nil
	}

	if opts.sheetID > 0 {
		if opts.sheetID > len(names) {
			return nil, fmt.Errorf("sheet index %d out of range", opts.sheetID)
		}
		return []string{names[opts.sheetID-1]}, nil
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no sheets found")
	}
	return names[:1], nil
}

func matchPatterns(name string, include, exclude []*regexp.Regexp) bool {
	if len(include) > 0 {
		matched := false
		for _, re := range include {
			if re.MatchString(name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range exclude {
		if re.MatchString(name) {
			return false
		}
	}
	return true
}

func writeSheets(w io.Writer, book xlsmap.Book, mapper *xlsmap.Mapper, names []string, opts options) error {
	cw := &csvWriter{
		w:              w,
		delimiter:      opts.delimiter,
		lineTerminator: opts.lineTerminator,
		quoting:        opts.quoting,
	}

	written := 0
	for _, name := range names {
		sheet, err := book.Sheet(name)
		if err != nil {
			return err
		}
		table, err := mapper.ReadTable(sheet, opts.table)
		if err != nil {
			// With -a a sheet without the table is skipped.
			if opts.allSheets && errors.Is(err, xlsmap.ErrCellNotFound) {
				continue
			}
			return fmt.Errorf("sheet %s: %w", name, err)
		}
		if written > 0 && opts.sheetDelimiter != "" {
			if _, err := fmt.Fprint(w, opts.sheetDelimiter, opts.lineTerminator); err != nil {
				return err
			}
		}
		if err := writeTable(cw, table, opts); err != nil {
			return err
		}
		written++
	}
	if written == 0 {
		return fmt.Errorf("table not found in any selected sheet")
	}
	return nil
}

func writeTable(cw *csvWriter, table *xlsmap.Table, opts options) error {
	if !opts.noHeader {
		if err := cw.writeRow(textFields(table.Headers, opts)); err != nil {
			return err
		}
	}
	for _, rec := range table.Records {
		if err := cw.writeRow(textFields(rec, opts)); err != nil {
			return err
		}
	}
	return nil
}

func textFields(texts []string, opts options) []field {
	fields := make([]field, len(texts))
	for i, text := range texts {
		_, err := strconv.ParseFloat(text, 64)
		fields[i] = field{text: maybeEscape(text, opts.escape), isNumeric: err == nil}
	}
	return fields
}

func maybeEscape(value string, enabled bool) string {
	if !enabled || value == "" {
		return value
	}
	replacer := strings.NewReplacer("\r", "\\r", "\n", "\\n", "\t", "\\t")
	return replacer.Replace(value)
}

func (cw *csvWriter) writeRow(fields []field) error {
	var buf bytes.Buffer
	for i, field := range fields {
		if i > 0 {
			buf.WriteRune(cw.delimiter)
		}
		buf.WriteString(cw.formatField(field))
	}
	buf.WriteString(cw.lineTerminator)
	_, err := cw.w.Write(buf.Bytes())
	return err
}

func (cw *csvWriter) formatField(f field) string {
	if !cw.needsQuote(f) {
		return f.text
	}
	escaped := strings.ReplaceAll(f.text, `"`, `""`)
	return `"` + escaped + `"`
}

func (cw *csvWriter) needsQuote(f field) bool {
	switch cw.quoting {
	case quotingAll:
		return true
	case quotingNonNumeric:
		return !f.isNumeric
	case quotingMinimal:
		return strings.ContainsRune(f.text, cw.delimiter) || strings.ContainsAny(f.text, "\"\r\n")
	default:
		return false
	}
}
