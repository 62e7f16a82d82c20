package xlsmap

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Converter converts between cell text and values of one field type.
// Register implementations in Options.Converters.
type Converter interface {
	// FromCell converts non-blank cell text into a value of type t.
	FromCell(text string, t reflect.Type, d *ConverterDirective) (reflect.Value, error)

	// ToCell converts a value into cell content: string, float64, int64,
	// bool, or nil for a blank cell.
	ToCell(v reflect.Value, d *ConverterDirective) (any, error)
}

// ConverterFuncs adapts a pair of functions to Converter.
type ConverterFuncs struct {
	From func(text string, t reflect.Type, d *ConverterDirective) (reflect.Value, error)
	To   func(v reflect.Value, d *ConverterDirective) (any, error)
}

// FromCell implements Converter.
func (f ConverterFuncs) FromCell(text string, t reflect.Type, d *ConverterDirective) (reflect.Value, error) {
	return f.From(text, t, d)
}

// ToCell implements Converter.
func (f ConverterFuncs) ToCell(v reflect.Value, d *ConverterDirective) (any, error) {
	return f.To(v, d)
}

// ConverterDirective holds the conversion rules declared for a field.
type ConverterDirective struct {
	// Trim strips surrounding white space before conversion.
	Trim bool

	// Default is converted in place of a blank cell when HasDefault is set.
	Default    string
	HasDefault bool

	// TrueTokens and FalseTokens are the texts accepted for booleans.
	TrueTokens  []string
	FalseTokens []string

	// SaveTrue and SaveFalse are written for booleans; empty writes a
	// boolean cell.
	SaveTrue  string
	SaveFalse string

	// CaseSensitive disables case folding of boolean tokens.
	CaseSensitive bool

	// Layouts are tried in order when parsing times.
	Layouts []string

	// Format is the layout used when writing times. "serial" writes an
	// Excel serial number instead of text.
	Format string

	// Locale selects decimal and grouping separators for numbers.
	Locale    language.Tag
	HasLocale bool

	// Pattern is a number pattern such as "#,##0.00" or "0.0%".
	Pattern string

	// FormulaPrimary lets a formula directive win over a supplied value.
	FormulaPrimary bool

	number *numberFormat
}

var (
	defaultTrueTokens  = []string{"true", "1", "yes", "on", "y", "t"}
	defaultFalseTokens = []string{"false", "0", "no", "off", "n", "f"}

	timeType           = reflect.TypeFor[time.Time]()
	durationType       = reflect.TypeFor[time.Duration]()
	textUnmarshalerTyp = reflect.TypeFor[encoding.TextUnmarshaler]()
	textMarshalerTyp   = reflect.TypeFor[encoding.TextMarshaler]()
)

var defaultConverter = &ConverterDirective{}

// convertible reports whether a scalar field of type t can be bound.
func (c *Config) convertible(t reflect.Type) bool {
	if _, ok := c.converters[t]; ok {
		return true
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		if _, ok := c.converters[t]; ok {
			return true
		}
	}
	if t == timeType || t == durationType {
		return true
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerTyp) {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// toModelValue converts cell text into a value of type t. A blank cell
// yields the declared default, or the zero value.
func (c *Config) toModelValue(text string, t reflect.Type, d *ConverterDirective) (reflect.Value, error) {
	if d == nil {
		d = defaultConverter
	}
	if d.Trim {
		text = strings.TrimSpace(text)
	}
	if text == "" {
		if !d.HasDefault {
			return reflect.Zero(t), nil
		}
		text = d.Default
	}
	if conv, ok := c.converters[t]; ok {
		return conv.FromCell(text, t, d)
	}
	if t.Kind() == reflect.Pointer {
		v, err := c.toModelValue(text, t.Elem(), d)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, nil
	}
	return c.parseScalar(text, t, d)
}

func (c *Config) parseScalar(text string, t reflect.Type, d *ConverterDirective) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	switch {
	case t == timeType:
		tm, err := parseTime(text, d)
		if err != nil {
			return reflect.Value{}, err
		}
		v.Set(reflect.ValueOf(tm))
		return v, nil
	case t == durationType:
		dur, err := parseDuration(text)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetInt(int64(dur))
		return v, nil
	case reflect.PointerTo(t).Implements(textUnmarshalerTyp):
		u := v.Addr().Interface().(encoding.TextUnmarshaler)
		if err := u.UnmarshalText([]byte(text)); err != nil {
			return reflect.Value{}, err
		}
		return v, nil
	}
	switch t.Kind() {
	case reflect.String:
		v.SetString(text)
	case reflect.Bool:
		b, err := parseBool(text, d)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := parseInt(text, d)
		if err != nil {
			return reflect.Value{}, err
		}
		if v.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%s overflows %s", text, t)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := parseUint(text, d)
		if err != nil {
			return reflect.Value{}, err
		}
		if v.OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("%s overflows %s", text, t)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := parseFloat(text, d)
		if err != nil {
			return reflect.Value{}, err
		}
		if v.OverflowFloat(f) {
			return reflect.Value{}, fmt.Errorf("%s overflows %s", text, t)
		}
		v.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("unsupported field type %s", t)
	}
	return v, nil
}

// toCellContent converts a field value into cell content.
func (c *Config) toCellContent(v reflect.Value, d *ConverterDirective) (any, error) {
	if d == nil {
		d = defaultConverter
	}
	t := v.Type()
	if conv, ok := c.converters[t]; ok {
		return conv.ToCell(v, d)
	}
	if t.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		return c.toCellContent(v.Elem(), d)
	}
	switch {
	case t == timeType:
		tm := v.Interface().(time.Time)
		if tm.IsZero() {
			return nil, nil
		}
		if d.Format == "serial" {
			return DatetimeAsXldate(tm, Datemode1900)
		}
		return formatTime(tm, d), nil
	case t == durationType:
		return time.Duration(v.Int()).String(), nil
	case t.Implements(textMarshalerTyp):
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, err
		}
		return string(text), nil
	}
	switch t.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		b := v.Bool()
		if b && d.SaveTrue != "" {
			return d.SaveTrue, nil
		}
		if !b && d.SaveFalse != "" {
			return d.SaveFalse, nil
		}
		return b, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if d.number != nil || d.HasLocale {
			return formatInteger(v.Int(), d), nil
		}
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := v.Uint()
		if d.number != nil || d.HasLocale {
			return formatInteger(n, d), nil
		}
		if n > math.MaxInt64 {
			return strconv.FormatUint(n, 10), nil
		}
		return int64(n), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if d.number != nil || d.HasLocale {
			return formatNumber(f, d), nil
		}
		if t.Kind() == reflect.Float32 {
			f, _ = strconv.ParseFloat(strconv.FormatFloat(f, 'g', -1, 32), 64)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported field type %s", t)
}

func parseBool(text string, d *ConverterDirective) (bool, error) {
	trues, falses := d.TrueTokens, d.FalseTokens
	if len(trues) == 0 {
		trues = defaultTrueTokens
	}
	if len(falses) == 0 {
		falses = defaultFalseTokens
	}
	s := strings.TrimSpace(text)
	eq := strings.EqualFold
	if d.CaseSensitive {
		eq = func(a, b string) bool { return a == b }
	}
	for _, tok := range trues {
		if eq(s, tok) {
			return true, nil
		}
	}
	for _, tok := range falses {
		if eq(s, tok) {
			return false, nil
		}
	}
	return false, fmt.Errorf("%q is not one of the accepted boolean tokens", text)
}

func parseInt(text string, d *ConverterDirective) (int64, error) {
	digits := strings.TrimSpace(text)
	if d.number != nil || d.HasLocale {
		digits, _ = integerText(text, d)
	}
	if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
		return n, nil
	} else if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%q overflows int64", text)
	}
	f, err := parseFloat(text, d)
	if err != nil {
		return 0, err
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%q is not an integer", text)
	}
	return int64(f), nil
}

func parseUint(text string, d *ConverterDirective) (uint64, error) {
	digits := strings.TrimSpace(text)
	if d.number != nil || d.HasLocale {
		digits, _ = integerText(text, d)
	}
	if n, err := strconv.ParseUint(digits, 10, 64); err == nil {
		return n, nil
	} else if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%q overflows uint64", text)
	}
	f, err := parseFloat(text, d)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
		return 0, fmt.Errorf("%q is not an unsigned integer", text)
	}
	return uint64(f), nil
}

func parseFloat(text string, d *ConverterDirective) (float64, error) {
	if d.number == nil && !d.HasLocale {
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", text)
		}
		return f, nil
	}
	return parseNumber(text, d)
}
