package xlsmap

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type member struct {
	Name   string `xls:"column,name=Name"`
	Age    int    `xls:"column,name=Age"`
	Active bool   `xls:"column,name=Active"`
}

type roster struct {
	Members []member `xls:"horizontal,tableLabel=Members"`
}

// rosterBook lays out a bordered table with a blank record in the middle
// and a "Total" line below.
func rosterBook() *MemoryBook {
	book := NewMemoryBook("S")
	sh := book.MemorySheet("S")
	sh.SetA1("A1", "Members")
	sh.SetRow(1, 0, "Name", "Age", "Active")
	sh.SetRow(2, 0, "Alice", "30", "yes")
	sh.SetRow(3, 0, "Bob", "41", "no")
	sh.SetRow(5, 0, "Carol", "25", "yes")
	sh.SetBorders("A2:C6")
	sh.SetA1("A8", "Total")
	return book
}

func TestLoadTableBorderTerminal(t *testing.T) {
	var v roster
	res, err := Load(rosterBook(), &v)
	require.NoError(t, err)

	want := []member{
		{Name: "Alice", Age: 30, Active: true},
		{Name: "Bob", Age: 41},
		{Name: "Carol", Age: 25, Active: true},
	}
	if diff := cmp.Diff(want, v.Members); diff != "" {
		t.Fatalf("Members mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, MustParseAddress("A6"), res.Positions["Members[2].Name"])
	require.Equal(t, "Age", res.Labels["Members[0].Age"])
}

func TestLoadTableKeepEmpty(t *testing.T) {
	type model struct {
		Members []member `xls:"horizontal,tableLabel=Members,keepEmpty"`
	}
	var v model
	_, err := Load(rosterBook(), &v)
	require.NoError(t, err)
	require.Len(t, v.Members, 4)
	require.Equal(t, member{}, v.Members[2])
}

func TestLoadTableEmptyTerminal(t *testing.T) {
	type model struct {
		Members []*member `xls:"horizontal,tableLabel=Members,terminal=empty"`
	}
	var v model
	_, err := Load(rosterBook(), &v)
	require.NoError(t, err)
	require.Len(t, v.Members, 2)
	require.Equal(t, "Bob", v.Members[1].Name)
}

func TestLoadTableLabelTerminal(t *testing.T) {
	type model struct {
		Members []member `xls:"horizontal,tableLabel=Members,terminalLabel=Total,keepEmpty"`
	}
	var v model
	_, err := Load(rosterBook(), &v)
	require.NoError(t, err)
	// Rows 3 to 7; the blank rows 5 and 7 are kept.
	require.Len(t, v.Members, 5)
	require.Equal(t, "Carol", v.Members[3].Name)

	type missing struct {
		Members []member `xls:"horizontal,tableLabel=Members,terminalLabel=Sum"`
	}
	_, err = Load(rosterBook(), &missing{})
	require.ErrorIs(t, err, ErrCellNotFound)
}

func TestLoadTableMissing(t *testing.T) {
	type required struct {
		Rows []member `xls:"horizontal,tableLabel=Nowhere"`
	}
	_, err := Load(rosterBook(), &required{})
	require.ErrorIs(t, err, ErrCellNotFound)

	type optional struct {
		Rows []member `xls:"horizontal,tableLabel=Nowhere,optional"`
	}
	var v optional
	res, err := Load(rosterBook(), &v)
	require.NoError(t, err)
	require.Nil(t, v.Rows)
	require.Empty(t, res.Failures)
}

func TestLoadTableMissingColumn(t *testing.T) {
	type strict struct {
		Name  string `xls:"column,name=Name"`
		Email string `xls:"column,name=Email"`
	}
	type model struct {
		Rows []strict `xls:"horizontal,tableLabel=Members"`
	}
	_, err := Load(rosterBook(), &model{})
	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, CellNotFound, f.Kind)
	require.Equal(t, "Rows[0].Email", f.Path)

	type lenient struct {
		Name  string `xls:"column,name=Name"`
		Email string `xls:"column,name=Email,optional"`
	}
	type model2 struct {
		Rows []lenient `xls:"horizontal,tableLabel=Members"`
	}
	var v model2
	_, err = Load(rosterBook(), &v)
	require.NoError(t, err)
	require.Len(t, v.Rows, 3)
}

func TestLoadTableHeaderAddress(t *testing.T) {
	type model struct {
		Members []member `xls:"horizontal,headerAddress=A2,headerLimit=2"`
	}
	var v model
	_, err := Load(rosterBook(), &v)
	// Active lies beyond the header limit.
	require.ErrorIs(t, err, ErrCellNotFound)

	type short struct {
		Name string `xls:"column,name=Name"`
		Age  int    `xls:"column,name=Age"`
	}
	type model2 struct {
		Rows []short `xls:"horizontal,headerAddress=A2,headerLimit=2,terminal=empty"`
	}
	var v2 model2
	_, err = Load(rosterBook(), &v2)
	require.NoError(t, err)
	require.Equal(t, []short{{"Alice", 30}, {"Bob", 41}}, v2.Rows)
}

type person struct {
	Name string `xls:"column,name=Name"`
	Age  int    `xls:"column,name=Age"`
}

func TestLoadVerticalTable(t *testing.T) {
	type model struct {
		People []person `xls:"vertical,tableLabel=People,terminal=empty"`
	}
	book := NewMemoryBook("S")
	sh := book.MemorySheet("S")
	sh.SetA1("A1", "People").SetA1("B1", "Name").SetA1("B2", "Age")
	sh.SetA1("C1", "Alice").SetA1("C2", "30")
	sh.SetA1("D1", "Bob").SetA1("D2", "41")

	var v model
	res, err := Load(book, &v)
	require.NoError(t, err)
	require.Equal(t, []person{{"Alice", 30}, {"Bob", 41}}, v.People)
	require.Equal(t, MustParseAddress("D2"), res.Positions["People[1].Age"])
}

func TestLoadTableOffsets(t *testing.T) {
	type model struct {
		People []person `xls:"horizontal,tableLabel=List,offset=2,dataOffset=2,terminal=empty"`
	}
	book := NewMemoryBook("S")
	sh := book.MemorySheet("S")
	sh.SetA1("A1", "List")
	sh.SetRow(2, 0, "Name", "Age")
	sh.SetRow(3, 0, "(units)", "years")
	sh.SetRow(4, 0, "Dana", "52")

	var v model
	_, err := Load(book, &v)
	require.NoError(t, err)
	require.Equal(t, []person{{"Dana", 52}}, v.People)
}

type attendance struct {
	Name string                 `xls:"column,name=氏名"`
	Days OrderedMap[bool]       `xls:"mapcolumns,previous=氏名,next=備考" xlsconv:"true=○,false=×,saveTrue=○,saveFalse=×"`
	Raw  map[string]string      `xls:"mapcolumns,previous=/4月1日/,next=備考"`
	Note string                 `xls:"column,name=備考"`
	Pos  map[string]CellAddress `xls:"positions"`
}

type attendanceSheet struct {
	Rows []attendance `xls:"horizontal,tableLabel=出欠,terminal=empty"`
}

func attendanceBook() *MemoryBook {
	book := NewMemoryBook("S")
	sh := book.MemorySheet("S")
	sh.SetA1("A1", "出欠")
	sh.SetRow(1, 0, "氏名", "4月1日", "4月2日", "4月3日", "備考")
	sh.SetRow(2, 0, "山田", "○", "×", "○", "遅刻")
	sh.SetRow(3, 0, "佐藤", "○", "○", "○")
	return book
}

func TestLoadMapColumns(t *testing.T) {
	var v attendanceSheet
	m := NewMapper(&Options{RegexLabels: true})
	res, err := m.Load(attendanceBook(), &v)
	require.NoError(t, err)
	require.Len(t, v.Rows, 2)

	yamada := v.Rows[0]
	require.Equal(t, []string{"4月1日", "4月2日", "4月3日"}, yamada.Days.Keys())
	got, ok := yamada.Days.Get("4月2日")
	require.True(t, ok)
	require.False(t, got)
	require.Equal(t, "遅刻", yamada.Note)
	require.Equal(t, map[string]string{"4月2日": "×", "4月3日": "○"}, yamada.Raw)

	require.Equal(t, MustParseAddress("C3"), yamada.Pos["Days[4月2日]"])
	require.Equal(t, MustParseAddress("D4"), res.Positions["Rows[1].Days[4月3日]"])
	require.Equal(t, "4月1日", res.Labels["Rows[0].Days[4月1日]"])
}

func TestLoadMapColumnsWithoutNext(t *testing.T) {
	type row struct {
		Name string            `xls:"column,name=氏名"`
		Rest map[string]any    `xls:"-"`
		Tail map[string]string `xls:"mapcolumns,previous=4月3日"`
	}
	type model struct {
		Rows []row `xls:"horizontal,tableLabel=出欠,terminal=empty"`
	}
	var v model
	_, err := Load(attendanceBook(), &v)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"備考": "遅刻"}, v.Rows[0].Tail)
	require.Equal(t, map[string]string{"備考": ""}, v.Rows[1].Tail)
}

func TestLoadMapColumnsMissingBound(t *testing.T) {
	type row struct {
		Days map[string]string `xls:"mapcolumns,previous=氏名,next=Notes"`
	}
	type model struct {
		Rows []row `xls:"horizontal,tableLabel=出欠,terminal=empty"`
	}
	_, err := Load(attendanceBook(), &model{})
	require.ErrorIs(t, err, ErrCellNotFound)
	require.ErrorContains(t, err, "Notes")
}

func TestLoadArrayColumns(t *testing.T) {
	type row struct {
		Name   string `xls:"column,name=Name"`
		Scores []int  `xls:"arraycolumns,name=Q,size=3"`
		Second int    `xls:"column,name=Q,headerMerged=1"`
	}
	type model struct {
		Rows []row `xls:"horizontal,tableLabel=Scores,terminal=empty"`
	}
	book := NewMemoryBook("S")
	sh := book.MemorySheet("S")
	sh.SetA1("A1", "Scores")
	sh.SetRow(1, 0, "Name", "Q").Merge("B2:D2")
	sh.SetRow(2, 0, "Alice", "1", "2", "3")
	sh.SetRow(3, 0, "Bob", "4", "5", "6")

	var v model
	res, err := Load(book, &v)
	require.NoError(t, err)
	require.Equal(t, []row{{"Alice", []int{1, 2, 3}, 2}, {"Bob", []int{4, 5, 6}, 5}}, v.Rows)
	require.Equal(t, MustParseAddress("D4"), res.Positions["Rows[1].Scores[2]"])
}

func TestLoadMergedHeaderDepth(t *testing.T) {
	type row struct {
		Name string `xls:"column,name=Name"`
		Math int    `xls:"column,name=Score"`
		Eng  int    `xls:"column,name=Score,headerMerged=1"`
	}
	type model struct {
		Rows []row `xls:"horizontal,tableLabel=Results,terminal=empty"`
	}
	book := NewMemoryBook("S")
	sh := book.MemorySheet("S")
	sh.SetA1("A1", "Results")
	sh.SetA1("A2", "Name").Merge("A2:A3")
	sh.SetA1("B2", "Score").Merge("B2:C2").SetA1("B3", "math").SetA1("C3", "eng")
	sh.SetRow(3, 0, "Alice", "90", "80")

	var v model
	_, err := Load(book, &v)
	require.NoError(t, err)
	require.Equal(t, []row{{"Alice", 90, 80}}, v.Rows)
}

type trimmedRecord struct {
	Name string `xls:"column,name=Name"`
	Age  int    `xls:"column,name=Age"`
}

// IsEmpty treats placeholder names as empty records.
func (r trimmedRecord) IsEmpty() bool { return r.Name == "" || r.Name == "-" }

func TestLoadTableEmptier(t *testing.T) {
	type model struct {
		Rows []trimmedRecord `xls:"horizontal,tableLabel=Members"`
	}
	book := rosterBook()
	book.MemorySheet("S").SetRow(3, 0, "-", "0")
	var v model
	_, err := Load(book, &v)
	require.NoError(t, err)
	require.Equal(t, []trimmedRecord{{"Alice", 30}, {"Carol", 25}}, v.Rows)
}

type org struct {
	Depts []dept `xls:"horizontal,tableLabel=Orgs,terminal=empty"`
}

type dept struct {
	Name  string `xls:"column,name=Dept"`
	Teams []team `xls:"nested"`
}

type team struct {
	Name    string  `xls:"column,name=Team"`
	Lead    *lead   `xls:"nested"`
	Members []staff `xls:"nested"`
}

type lead struct {
	Name string `xls:"column,name=Lead"`
}

type staff struct {
	Name string `xls:"column,name=Member"`
}

func orgTemplate() *MemoryBook {
	book := NewMemoryBook("S")
	sh := book.MemorySheet("S")
	sh.SetA1("A1", "Orgs")
	sh.SetRow(1, 0, "Dept", "Team", "Lead", "Member")
	return book
}

func orgBook() *MemoryBook {
	book := orgTemplate()
	sh := book.MemorySheet("S")
	sh.SetRow(2, 0, "Dev", "Core", "Kim", "Ann").Merge("A3:A5").Merge("B3:B4").Merge("C3:C4")
	sh.SetRow(3, 3, "Ben")
	sh.SetRow(4, 1, "UI", "Lee", "Cy")
	sh.SetRow(5, 0, "Ops", "SRE", "Max", "Dan")
	return book
}

func TestLoadNestedRecords(t *testing.T) {
	var v org
	res, err := Load(orgBook(), &v)
	require.NoError(t, err)

	want := []dept{
		{Name: "Dev", Teams: []team{
			{Name: "Core", Lead: &lead{"Kim"}, Members: []staff{{"Ann"}, {"Ben"}}},
			{Name: "UI", Lead: &lead{"Lee"}, Members: []staff{{"Cy"}}},
		}},
		{Name: "Ops", Teams: []team{
			{Name: "SRE", Lead: &lead{"Max"}, Members: []staff{{"Dan"}}},
		}},
	}
	if diff := cmp.Diff(want, v.Depts); diff != "" {
		t.Fatalf("Depts mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, MustParseAddress("D4"), res.Positions["Depts[0].Teams[0].Members[1].Name"])
	require.Equal(t, MustParseAddress("C3"), res.Positions["Depts[0].Teams[0].Lead.Name"])
	require.Equal(t, MustParseAddress("B5"), res.Positions["Depts[0].Teams[1].Name"])
}

func TestNestingDepthLimit(t *testing.T) {
	m := NewMapper(&Options{MaxNestingDepth: 2})
	_, err := m.Load(orgBook(), &org{})
	require.ErrorIs(t, err, ErrDirectiveInvalid)
}

func TestReadTable(t *testing.T) {
	m := NewMapper(nil)
	sh := rosterBook().MemorySheet("S")

	members, _ := ParseLabel("Members")
	tbl, err := m.ReadTable(sh, TableDirective{Label: members})
	require.NoError(t, err)
	require.Equal(t, []string{"Name", "Age", "Active"}, tbl.Headers)
	require.Equal(t, [][]string{
		{"Alice", "30", "yes"},
		{"Bob", "41", "no"},
		{"Carol", "25", "yes"},
	}, tbl.Records)
	require.Equal(t, "A3:C6", tbl.Region.String())

	tbl, err = m.ReadTable(sh, TableDirective{HeaderAddress: MustParseAddress("A2"), HasHeaderAddress: true, KeepEmpty: true})
	require.NoError(t, err)
	require.Len(t, tbl.Records, 4)

	nowhere, _ := ParseLabel("Nowhere")
	_, err = m.ReadTable(sh, TableDirective{Label: nowhere})
	require.ErrorIs(t, err, ErrCellNotFound)

	_, err = m.ReadTable(sh, TableDirective{})
	require.ErrorIs(t, err, ErrDirectiveInvalid)
}
