package xlsmap

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type columnRecord struct {
	Name string `xls:"column,name=Name"`
}

type cellInRecord struct {
	Name string `xls:"cell,address=A1"`
}

type cellRecordTable struct {
	Rows []cellInRecord `xls:"horizontal,tableLabel=T"`
}

type sheetTwice struct {
	A string `xls:"sheet,name=a"`
	B string `xls:"sheet,name=b"`
}

func TestDirectiveErrors(t *testing.T) {
	tests := []struct {
		name  string
		model any
		attr  string
	}{
		{"unknown kind", struct {
			X int `xls:"bogus"`
		}{}, ""},
		{"unknown attribute", struct {
			X int `xls:"cell,address=A1,colour=red"`
		}{}, "colour"},
		{"cell without address", struct {
			X int `xls:"cell"`
		}{}, ""},
		{"cell with only row", struct {
			X int `xls:"cell,row=1"`
		}{}, ""},
		{"malformed address", struct {
			X int `xls:"cell,address=11"`
		}{}, "address"},
		{"labelled without label", struct {
			X int `xls:"labelled"`
		}{}, "label"},
		{"bad direction", struct {
			X int `xls:"labelled,label=X,dir=sideways"`
		}{}, "dir"},
		{"negative skip", struct {
			X int `xls:"labelled,label=X,skip=-1"`
		}{}, "skip"},
		{"bad flag", struct {
			X int `xls:"labelled,label=X,optional=maybe"`
		}{}, "optional"},
		{"bad pattern label", struct {
			X int `xls:"labelled,label=/(/"`
		}{}, "label"},
		{"slice array without size", struct {
			X []int `xls:"array,address=A1"`
		}{}, "size"},
		{"array size beyond length", struct {
			X [2]int `xls:"array,address=A1,size=3"`
		}{}, "size"},
		{"unsupported field type", struct {
			X chan int `xls:"cell,address=A1"`
		}{}, ""},
		{"comment on non-string", struct {
			X int `xls:"comment,address=A1"`
		}{}, ""},
		{"table without anchor", struct {
			X []columnRecord `xls:"horizontal"`
		}{}, ""},
		{"table of scalars", struct {
			X []int `xls:"horizontal,tableLabel=T"`
		}{}, ""},
		{"label terminal without label", struct {
			X []columnRecord `xls:"horizontal,tableLabel=T,terminal=label"`
		}{}, "terminal"},
		{"unknown over policy", struct {
			X []columnRecord `xls:"horizontal,tableLabel=T,over=stretch"`
		}{}, "over"},
		{"column at top level", struct {
			X string `xls:"column,name=X"`
		}{}, ""},
		{"mapcolumns with int keys", struct {
			X []struct {
				M map[int]string `xls:"mapcolumns,previous=A"`
			} `xls:"horizontal,tableLabel=T"`
		}{}, ""},
		{"positions of wrong type", struct {
			P map[string]string `xls:"positions"`
		}{}, ""},
		{"default that does not convert", struct {
			X int `xls:"cell,address=A1" xlsconv:"default=abc"`
		}{}, "default"},
		{"unknown locale", struct {
			X float64 `xls:"cell,address=A1" xlsconv:"locale=xx-!!"`
		}{}, "locale"},
		{"bad number pattern", struct {
			X float64 `xls:"cell,address=A1" xlsconv:"pattern=abc"`
		}{}, "pattern"},
		{"converter on a table", struct {
			X []columnRecord `xls:"horizontal,tableLabel=T" xlsconv:"trim"`
		}{}, ""},
		{"formula on an array", struct {
			X [2]int `xls:"array,address=A1" xlsformula:"A1"`
		}{}, ""},
		{"broken formula", struct {
			X int `xls:"cell,address=A1" xlsformula:"SUM({rowNumber +})"`
		}{}, "template"},
		{"unexported field", struct {
			x int `xls:"cell,address=A1"`
		}{}, ""},
		{"malformed tag", struct {
			X int `xls:"cell,address='A1"`
		}{}, ""},
		{"two sheet directives", sheetTwice{}, ""},
		{"cell inside a record", cellRecordTable{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMapper(nil)
			_, err := m.Directives(reflect.TypeOf(tt.model))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrDirectiveInvalid), "error %v should match ErrDirectiveInvalid", err)
			var de *DirectiveError
			require.True(t, errors.As(err, &de))
			if tt.attr != "" {
				require.Equal(t, tt.attr, de.Attribute, de.Error())
			}
		})
	}
}

func TestDirectivesCompiled(t *testing.T) {
	type model struct {
		_     struct{}               `xls:"sheet,regex=^Q[0-9]$"`
		Title string                 `xls:"cell,row=0,col=1"`
		Name  string                 `xls:"labelled,label='Name, full',dir=down,skip=1"`
		Skip  string                 `xls:"-"`
		Plain string
		Rows  []columnRecord         `xls:"vertical,headerAddress=B2,terminalLabel=End,over=insert,remained=delete"`
		Pos   map[string]CellAddress `xls:"positions"`
	}
	m := NewMapper(nil)
	ds, err := m.Directives(reflect.TypeFor[*model]())
	require.NoError(t, err)

	var fields []string
	for _, d := range ds {
		fields = append(fields, d.Field)
	}
	require.Equal(t, []string{"_", "Title", "Name", "Rows", "Pos"}, fields)

	require.Equal(t, "^Q[0-9]$", ds[0].Sheet.Pattern.String())
	require.Equal(t, MustParseAddress("B1"), ds[1].Address)
	require.Equal(t, "Name, full", ds[2].Label.Text)
	require.Equal(t, Down, ds[2].Direction)
	require.Equal(t, 1, ds[2].Skip)
	require.True(t, ds[2].LabelMerged)

	td := ds[3].Table
	require.True(t, td.Vertical)
	require.True(t, td.HasHeaderAddress)
	require.Equal(t, TerminalLabel, td.Terminal)
	require.Equal(t, OverInsert, td.Over)
	require.Equal(t, RemainedDelete, td.Remained)
	require.Equal(t, 1, td.DataOffset)
	elem := ds[3].Elem()
	require.Len(t, elem, 1)
	require.Equal(t, KindColumn, elem[0].Kind)
	require.Nil(t, ds[1].Elem())
}

func TestDirectiveCacheReuse(t *testing.T) {
	m := NewMapper(nil)
	a, err := m.resolve(reflect.TypeFor[cellRecordTable2]())
	require.NoError(t, err)
	b, err := m.resolve(reflect.TypeFor[cellRecordTable2]())
	require.NoError(t, err)
	require.Same(t, a, b)
}

type cellRecordTable2 struct {
	Rows []columnRecord `xls:"horizontal,tableLabel=T"`
}

type overridden struct {
	Name  string `xls:"cell,address=A1"`
	Count int    `xls:"cell,address=A2"`
}

func TestOverridesReplaceSections(t *testing.T) {
	src := StaticOverrides{
		{Type: "overridden", Field: "Name", Section: SectionBinding, Kind: "labelled", Attrs: map[string]string{"label": "氏名"}},
		{Type: "overridden", Field: "Count", Section: SectionConverter, Attrs: map[string]string{"default": "5"}},
		{Type: "other", Field: "Name", Section: SectionBinding, Kind: "cell", Attrs: map[string]string{"address": "Z9"}},
	}
	m := NewMapper(&Options{Overrides: src})
	ds, err := m.Directives(reflect.TypeFor[overridden]())
	require.NoError(t, err)
	require.Equal(t, KindLabelledCell, ds[0].Kind)
	require.Equal(t, "氏名", ds[0].Label.Text)
	require.True(t, ds[1].Converter.HasDefault)

	book := NewMemoryBook("S")
	book.MemorySheet("S").SetA1("C3", "氏名").SetA1("D3", "山田")
	var v overridden
	_, err = m.Load(book, &v)
	require.NoError(t, err)
	require.Equal(t, overridden{Name: "山田", Count: 5}, v)

	// The static declaration is untouched for a mapper without overrides.
	ds, err = NewMapper(nil).Directives(reflect.TypeFor[overridden]())
	require.NoError(t, err)
	require.Equal(t, KindCell, ds[0].Kind)
}

func TestOverrideErrors(t *testing.T) {
	tests := []StaticOverrides{
		{{Type: "overridden", Field: "Missing", Section: SectionBinding, Kind: "cell"}},
		{{Type: "overridden", Field: "Name", Section: "layout", Kind: "cell"}},
		{{Type: "overridden", Field: "Name", Section: SectionBinding}},
		{{Type: "overridden", Field: "Name", Section: SectionBinding, Kind: "cell", Attrs: map[string]string{"address": "A1", "bogus": "1"}}},
	}
	for i, src := range tests {
		_, err := NewMapper(&Options{Overrides: src}).Directives(reflect.TypeFor[overridden]())
		require.ErrorIs(t, err, ErrDirectiveInvalid, "case %d", i)
	}
}

type failingSource struct{}

func (failingSource) Overrides(reflect.Type) ([]Override, error) {
	return nil, errors.New("boom")
}

func TestOverrideSourceError(t *testing.T) {
	m := NewMapper(&Options{Overrides: MultiSource{nil, failingSource{}}})
	_, err := m.Directives(reflect.TypeFor[overridden]())
	require.ErrorContains(t, err, "boom")
}
