package xlsmap

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		ref  string
		want CellAddress
	}{
		{"A1", Addr(0, 0)},
		{"B3", Addr(2, 1)},
		{"AA10", Addr(9, 26)},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.ref)
		if err != nil {
			t.Fatalf("ParseAddress(%q) error = %v", tt.ref, err)
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %v, want %v", tt.ref, got, tt.want)
		}
		if s := got.String(); s != tt.ref {
			t.Errorf("String() = %q, want %q", s, tt.ref)
		}
	}
	if _, err := ParseAddress("1A"); err == nil {
		t.Errorf("ParseAddress(1A) expected an error")
	}
	if s := Addr(-1, 2).String(); s != "R-1C2" {
		t.Errorf("String() = %q, want R-1C2", s)
	}
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("C3:A1")
	if err != nil {
		t.Fatalf("ParseRegion error = %v", err)
	}
	if r.Start != Addr(0, 0) || r.End != Addr(2, 2) {
		t.Errorf("ParseRegion(C3:A1) = %v, want A1:C3", r)
	}
	if r.Rows() != 3 || r.Cols() != 3 {
		t.Errorf("Rows, Cols = %d, %d, want 3, 3", r.Rows(), r.Cols())
	}
	if !r.Contains(Addr(1, 1)) || r.Contains(Addr(3, 0)) {
		t.Errorf("Contains gives wrong answers for %v", r)
	}
	single, _ := ParseRegion("B2")
	if !single.Single() || single.String() != "B2" {
		t.Errorf("ParseRegion(B2) = %v", single)
	}
	if !r.Overlaps(single) {
		t.Errorf("%v should overlap %v", r, single)
	}
	far, _ := ParseRegion("D4:E5")
	if r.Overlaps(far) {
		t.Errorf("%v should not overlap %v", r, far)
	}
}

func TestColumnName(t *testing.T) {
	for col, want := range map[int]string{0: "A", 25: "Z", 26: "AA", 701: "ZZ"} {
		if got := ColumnName(col); got != want {
			t.Errorf("ColumnName(%d) = %q, want %q", col, got, want)
		}
	}
}
