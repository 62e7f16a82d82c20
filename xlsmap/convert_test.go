package xlsmap

import (
	"fmt"
	"math"
	"net/netip"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func mustPattern(t *testing.T, p string) *numberFormat {
	t.Helper()
	nf, err := parseNumberPattern(p)
	require.NoError(t, err)
	return nf
}

func fromCell[T any](t *testing.T, cfg *Config, text string, d *ConverterDirective) T {
	t.Helper()
	v, err := cfg.toModelValue(text, reflect.TypeFor[T](), d)
	require.NoError(t, err, "convert %q", text)
	return v.Interface().(T)
}

func TestConvertScalars(t *testing.T) {
	cfg := newConfig(nil)

	require.Equal(t, "abc", fromCell[string](t, cfg, "abc", nil))
	require.Equal(t, 42, fromCell[int](t, cfg, "42", nil))
	require.Equal(t, int64(3), fromCell[int64](t, cfg, "3.0", nil))
	require.Equal(t, uint16(9), fromCell[uint16](t, cfg, "9", nil))
	require.InDelta(t, 1.25, fromCell[float64](t, cfg, " 1.25 ", nil), 1e-9)
	require.Equal(t, 0, fromCell[int](t, cfg, "", nil))

	for _, text := range []string{"abc", "1.5"} {
		_, err := cfg.toModelValue(text, reflect.TypeFor[int](), nil)
		require.Error(t, err, text)
	}
	_, err := cfg.toModelValue("300", reflect.TypeFor[int8](), nil)
	require.ErrorContains(t, err, "overflows")
	_, err = cfg.toModelValue("-1", reflect.TypeFor[uint](), nil)
	require.Error(t, err)
}

func TestConvertDefaultAndTrim(t *testing.T) {
	cfg := newConfig(nil)
	d := &ConverterDirective{Trim: true, Default: "7", HasDefault: true}
	require.Equal(t, 7, fromCell[int](t, cfg, "   ", d))
	require.Equal(t, 8, fromCell[int](t, cfg, " 8 ", d))
	require.Equal(t, "x", fromCell[string](t, cfg, "  x ", &ConverterDirective{Trim: true}))
	require.Equal(t, "  x ", fromCell[string](t, cfg, "  x ", nil))
}

func TestConvertBool(t *testing.T) {
	cfg := newConfig(nil)
	for _, text := range []string{"TRUE", "yes", "1", "On"} {
		require.True(t, fromCell[bool](t, cfg, text, nil), text)
	}
	for _, text := range []string{"false", "No", "0", "off"} {
		require.False(t, fromCell[bool](t, cfg, text, nil), text)
	}
	_, err := cfg.toModelValue("maybe", reflect.TypeFor[bool](), nil)
	require.Error(t, err)

	d := &ConverterDirective{TrueTokens: []string{"○"}, FalseTokens: []string{"×"}, SaveTrue: "○", SaveFalse: "×"}
	require.True(t, fromCell[bool](t, cfg, "○", d))
	require.False(t, fromCell[bool](t, cfg, "×", d))
	_, err = cfg.toModelValue("true", reflect.TypeFor[bool](), d)
	require.Error(t, err)

	got, err := cfg.toCellContent(reflect.ValueOf(true), d)
	require.NoError(t, err)
	require.Equal(t, "○", got)
	got, err = cfg.toCellContent(reflect.ValueOf(false), nil)
	require.NoError(t, err)
	require.Equal(t, false, got)

	strict := &ConverterDirective{TrueTokens: []string{"Y"}, FalseTokens: []string{"N"}, CaseSensitive: true}
	_, err = cfg.toModelValue("y", reflect.TypeFor[bool](), strict)
	require.Error(t, err)
}

func TestConvertLocaleNumbers(t *testing.T) {
	cfg := newConfig(nil)
	de := &ConverterDirective{Locale: language.German, HasLocale: true, number: mustPattern(t, "#,##0.00")}

	require.InDelta(t, 1234.56, fromCell[float64](t, cfg, "1.234,56", de), 1e-9)
	require.Equal(t, 1234, fromCell[int](t, cfg, "1.234,00", de))

	got, err := cfg.toCellContent(reflect.ValueOf(1234.5), de)
	require.NoError(t, err)
	require.Equal(t, "1.234,50", got)

	en := &ConverterDirective{number: mustPattern(t, "#,##0.00")}
	require.InDelta(t, 1234567.8, fromCell[float64](t, cfg, "1,234,567.80", en), 1e-9)
	got, err = cfg.toCellContent(reflect.ValueOf(1234.5), en)
	require.NoError(t, err)
	require.Equal(t, "1,234.50", got)
}

func TestNumberPattern(t *testing.T) {
	yen := mustPattern(t, "¥#,##0")
	require.Equal(t, "¥", yen.prefix)
	require.True(t, yen.grouping)
	require.Equal(t, 0, yen.maxFrac)

	pct := mustPattern(t, "0.0%")
	require.True(t, pct.percent)
	require.Equal(t, 1, pct.minFrac)

	cfg := newConfig(nil)
	d := &ConverterDirective{number: pct}
	require.InDelta(t, 0.125, fromCell[float64](t, cfg, "12.5%", d), 1e-9)
	got, err := cfg.toCellContent(reflect.ValueOf(0.125), d)
	require.NoError(t, err)
	require.Equal(t, "12.5%", got)

	got, err = cfg.toCellContent(reflect.ValueOf(1500), &ConverterDirective{number: yen})
	require.NoError(t, err)
	require.Equal(t, "¥1,500", got)

	for _, bad := range []string{"abc", "0.0.0", "#,#x0"} {
		_, err := parseNumberPattern(bad)
		require.Error(t, err, bad)
	}
}

func TestConvertTime(t *testing.T) {
	cfg := newConfig(nil)

	want := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, want, fromCell[time.Time](t, cfg, "2024-04-01", nil))
	require.Equal(t, want, fromCell[time.Time](t, cfg, "2024/4/1", nil))
	require.Equal(t, want, fromCell[time.Time](t, cfg, "45383", nil))

	jp := &ConverterDirective{Layouts: []string{"2006年1月2日"}}
	require.Equal(t, want, fromCell[time.Time](t, cfg, "2024年4月1日", jp))
	_, err := cfg.toModelValue("April 1", timeType, jp)
	require.Error(t, err)

	got, err := cfg.toCellContent(reflect.ValueOf(want), jp)
	require.NoError(t, err)
	require.Equal(t, "2024年4月1日", got)

	got, err = cfg.toCellContent(reflect.ValueOf(want), nil)
	require.NoError(t, err)
	require.Equal(t, "2024-04-01", got)

	got, err = cfg.toCellContent(reflect.ValueOf(want.Add(90*time.Minute)), nil)
	require.NoError(t, err)
	require.Equal(t, "2024-04-01 01:30:00", got)

	got, err = cfg.toCellContent(reflect.ValueOf(want), &ConverterDirective{Format: "serial"})
	require.NoError(t, err)
	require.Equal(t, 45383.0, got)

	got, err = cfg.toCellContent(reflect.ValueOf(time.Time{}), nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestConvertDuration(t *testing.T) {
	cfg := newConfig(nil)
	require.Equal(t, 90*time.Minute, fromCell[time.Duration](t, cfg, "1:30", nil))
	require.Equal(t, 90*time.Minute+5*time.Second, fromCell[time.Duration](t, cfg, "1:30:05", nil))
	require.Equal(t, 2*time.Hour, fromCell[time.Duration](t, cfg, "2h", nil))
	_, err := cfg.toModelValue("soon", durationType, nil)
	require.Error(t, err)

	got, err := cfg.toCellContent(reflect.ValueOf(90*time.Minute), nil)
	require.NoError(t, err)
	require.Equal(t, "1h30m0s", got)
}

func TestConvertPointerAndText(t *testing.T) {
	cfg := newConfig(nil)

	p := fromCell[*int](t, cfg, "5", nil)
	require.NotNil(t, p)
	require.Equal(t, 5, *p)
	require.Nil(t, fromCell[*int](t, cfg, "", nil))

	got, err := cfg.toCellContent(reflect.ValueOf((*int)(nil)), nil)
	require.NoError(t, err)
	require.Nil(t, got)

	addr := fromCell[netip.Addr](t, cfg, "192.168.0.1", nil)
	require.Equal(t, netip.MustParseAddr("192.168.0.1"), addr)
	got, err = cfg.toCellContent(reflect.ValueOf(addr), nil)
	require.NoError(t, err)
	require.Equal(t, "192.168.0.1", got)

	require.True(t, cfg.convertible(reflect.TypeFor[netip.Addr]()))
	require.True(t, cfg.convertible(reflect.TypeFor[*float64]()))
	require.False(t, cfg.convertible(reflect.TypeFor[[]int]()))
}

type upper string

func TestCustomConverter(t *testing.T) {
	conv := ConverterFuncs{
		From: func(text string, t reflect.Type, _ *ConverterDirective) (reflect.Value, error) {
			return reflect.ValueOf(upper(strings.ToUpper(text))).Convert(t), nil
		},
		To: func(v reflect.Value, _ *ConverterDirective) (any, error) {
			return fmt.Sprintf("<%s>", v.String()), nil
		},
	}
	cfg := newConfig(&Options{Converters: map[reflect.Type]Converter{reflect.TypeFor[upper](): conv}})

	require.Equal(t, upper("ABC"), fromCell[upper](t, cfg, "abc", nil))
	got, err := cfg.toCellContent(reflect.ValueOf(upper("x")), nil)
	require.NoError(t, err)
	require.Equal(t, "<x>", got)
}

func TestConvertRoundTrip(t *testing.T) {
	cfg := newConfig(nil)
	jst := time.FixedZone("JST", 9*60*60)
	de := &ConverterDirective{Locale: language.German, HasLocale: true}
	dePattern := &ConverterDirective{Locale: language.German, HasLocale: true, number: mustPattern(t, "#,##0.00")}
	en := &ConverterDirective{number: mustPattern(t, "#,##0")}
	marks := &ConverterDirective{TrueTokens: []string{"○"}, FalseTokens: []string{"×"}, SaveTrue: "○", SaveFalse: "×"}
	n := 7
	s := "x"

	tests := []struct {
		name string
		v    any
		d    *ConverterDirective
	}{
		{"string", "  spaced  ", nil},
		{"int", -12, nil},
		{"max int64", int64(math.MaxInt64), nil},
		{"min int64 de", int64(math.MinInt64), de},
		{"max int64 de", int64(math.MaxInt64), de},
		{"above 2^53 de", int64(9007199254740993), de},
		{"max int64 pattern", int64(math.MaxInt64), dePattern},
		{"max uint64", uint64(math.MaxUint64), nil},
		{"max uint64 en", uint64(math.MaxUint64), en},
		{"int8", int8(-128), nil},
		{"float32", float32(0.1), nil},
		{"float64", 1.0 / 3, nil},
		{"bool", true, nil},
		{"bool marks", false, marks},
		{"duration", 90 * time.Minute, nil},
		{"int pointer", &n, nil},
		{"string pointer", &s, nil},
		{"date", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), nil},
		{"datetime", time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC), nil},
		{"fraction", time.Date(2024, 4, 1, 10, 0, 0, 500_000_000, time.UTC), nil},
		{"zoned", time.Date(2024, 4, 1, 10, 0, 0, 0, jst), nil},
		{"zoned midnight", time.Date(2024, 4, 1, 0, 0, 0, 0, jst), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := NewMemoryBook("S").MemorySheet("S")
			content, err := cfg.toCellContent(reflect.ValueOf(tt.v), tt.d)
			require.NoError(t, err)
			require.NoError(t, sh.SetCellValue(0, 0, content))

			text := sh.CellText(0, 0)
			got, err := cfg.toModelValue(text, reflect.TypeOf(tt.v), tt.d)
			require.NoError(t, err, "cell text %q", text)
			if want, ok := tt.v.(time.Time); ok {
				if !want.Equal(got.Interface().(time.Time)) {
					t.Fatalf("round trip of %v through %q = %v", want, text, got.Interface())
				}
				return
			}
			require.Equal(t, tt.v, got.Interface(), "cell text %q", text)
		})
	}
}

func TestConvertIntegerOverflowWithLocale(t *testing.T) {
	cfg := newConfig(nil)
	de := &ConverterDirective{Locale: language.German, HasLocale: true}
	_, err := cfg.toModelValue("9.223.372.036.854.775.808", reflect.TypeFor[int64](), de)
	require.ErrorContains(t, err, "overflows")
	require.Equal(t, int64(1234), fromCell[int64](t, cfg, "1.234,00", de))
	_, err = cfg.toModelValue("1.234,50", reflect.TypeFor[int64](), de)
	require.Error(t, err)
}
