package xlsmap

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// numberFormat is a compiled number pattern like "#,##0.00" or "¥#,##0".
type numberFormat struct {
	prefix   string
	suffix   string
	grouping bool
	minFrac  int
	maxFrac  int
	percent  bool
}

// parseNumberPattern compiles the subset of spreadsheet number patterns
// made of '#', '0', ',' and '.', with literal prefix and suffix text and an
// optional '%'.
func parseNumberPattern(p string) (*numberFormat, error) {
	start := strings.IndexAny(p, "#0")
	end := strings.LastIndexAny(p, "#0")
	if start < 0 {
		return nil, fmt.Errorf("number pattern %q has no digit placeholder", p)
	}
	for start > 0 && (p[start-1] == ',' || p[start-1] == '.') {
		start--
	}
	core := p[start : end+1]
	if strings.Count(core, ".") > 1 {
		return nil, fmt.Errorf("number pattern %q has more than one decimal point", p)
	}
	for _, r := range core {
		if !strings.ContainsRune("#0,.", r) {
			return nil, fmt.Errorf("number pattern %q: unexpected %q", p, r)
		}
	}
	nf := &numberFormat{
		prefix:   p[:start],
		suffix:   p[end+1:],
		grouping: strings.Contains(core, ","),
	}
	if i := strings.IndexByte(core, '.'); i >= 0 {
		frac := core[i+1:]
		nf.minFrac = strings.Count(frac, "0")
		nf.maxFrac = nf.minFrac + strings.Count(frac, "#")
	}
	if strings.Contains(nf.prefix, "%") || strings.Contains(nf.suffix, "%") {
		nf.percent = true
	}
	return nf, nil
}

type separators struct {
	group   string
	decimal string
}

var separatorCache sync.Map // language.Tag -> separators

// localeSeparators derives a locale's grouping and decimal separators by
// formatting a sample value with x/text.
func localeSeparators(tag language.Tag) separators {
	if v, ok := separatorCache.Load(tag); ok {
		return v.(separators)
	}
	sample := message.NewPrinter(tag).Sprintf("%v", number.Decimal(1234567.5, number.MinFractionDigits(1)))
	var runs []string
	var cur strings.Builder
	for _, r := range sample {
		if unicode.IsDigit(r) {
			if cur.Len() > 0 {
				runs = append(runs, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	seps := separators{group: ",", decimal: "."}
	if len(runs) > 0 {
		seps.decimal = runs[len(runs)-1]
		if len(runs) > 1 {
			seps.group = runs[0]
		} else {
			seps.group = ""
		}
	}
	separatorCache.Store(tag, seps)
	return seps
}

func (d *ConverterDirective) locale() language.Tag {
	if d.HasLocale {
		return d.Locale
	}
	return language.English
}

// normalizeNumber strips the directive's pattern text and the locale's
// grouping from text and returns it with a '.' decimal point.
func normalizeNumber(text string, d *ConverterDirective) (s string, percent bool) {
	s = strings.TrimSpace(text)
	if nf := d.number; nf != nil {
		s = strings.TrimSpace(strings.TrimPrefix(s, strings.TrimSpace(nf.prefix)))
		s = strings.TrimSpace(strings.TrimSuffix(s, strings.TrimSpace(nf.suffix)))
		percent = nf.percent
	}
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		percent = true
	}
	seps := localeSeparators(d.locale())
	if seps.group != "" {
		s = strings.ReplaceAll(s, seps.group, "")
		if strings.TrimSpace(seps.group) == "" {
			s = strings.Map(func(r rune) rune {
				if unicode.IsSpace(r) {
					return -1
				}
				return r
			}, s)
		}
	}
	if seps.decimal != "." {
		s = strings.ReplaceAll(s, seps.decimal, ".")
	}
	return s, percent
}

// parseNumber parses text under the directive's locale and pattern.
func parseNumber(text string, d *ConverterDirective) (float64, error) {
	s, percent := normalizeNumber(text, d)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", text)
	}
	if percent {
		f /= 100
	}
	return f, nil
}

// integerText returns the digits of a normalized number with an all-zero
// fraction, like "1234.00", and false for anything else.
func integerText(text string, d *ConverterDirective) (string, bool) {
	s, percent := normalizeNumber(text, d)
	if percent {
		return "", false
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return "", false
		}
		s = s[:i]
	}
	return s, s != ""
}

func numberOptions(nf *numberFormat) []number.Option {
	if nf == nil {
		return []number.Option{number.MaxFractionDigits(15)}
	}
	opts := []number.Option{number.MinFractionDigits(nf.minFrac), number.MaxFractionDigits(nf.maxFrac)}
	if !nf.grouping {
		opts = append(opts, number.NoSeparator())
	}
	return opts
}

// formatNumber renders f under the directive's locale and pattern.
func formatNumber(f float64, d *ConverterDirective) string {
	nf := d.number
	if nf != nil && nf.percent {
		f *= 100
	}
	return d.decorate(message.NewPrinter(d.locale()).Sprintf("%v", number.Decimal(f, numberOptions(nf)...)))
}

// formatInteger renders an int64 or uint64 without passing it through
// float64.
func formatInteger(n any, d *ConverterDirective) string {
	nf := d.number
	if nf != nil && nf.percent {
		switch x := n.(type) {
		case int64:
			return formatNumber(float64(x), d)
		case uint64:
			return formatNumber(float64(x), d)
		}
	}
	return d.decorate(message.NewPrinter(d.locale()).Sprintf("%v", number.Decimal(n, numberOptions(nf)...)))
}

func (d *ConverterDirective) decorate(out string) string {
	if d.number != nil {
		return d.number.prefix + out + d.number.suffix
	}
	return out
}
