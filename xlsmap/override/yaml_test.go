package override

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/yamitzky/xlsmap-go/xlsmap"
)

func TestParseYAML(t *testing.T) {
	src := `
models:
  Roster:
    Members:
      binding:
        kind: horizontal
        tableLabel: Members
        headerLimit: 4
        keepEmpty: true
    Rate:
      converter: {default: 0.5, locale: de}
      formula: {template: "B{rowNumber}*2"}
`
	set, err := ParseYAML([]byte(src), "roster.yaml")
	require.NoError(t, err)

	want := []xlsmap.Override{
		{Type: "Roster", Field: "Members", Section: xlsmap.SectionBinding, Kind: "horizontal",
			Attrs: map[string]string{"tableLabel": "Members", "headerLimit": "4", "keepEmpty": "true"}},
		{Type: "Roster", Field: "Rate", Section: xlsmap.SectionConverter,
			Attrs: map[string]string{"default": "0.5", "locale": "de"}},
		{Type: "Roster", Field: "Rate", Section: xlsmap.SectionFormula,
			Attrs: map[string]string{"template": "B{rowNumber}*2"}},
	}
	if diff := cmp.Diff(want, set.byType["Roster"]); diff != "" {
		t.Fatalf("ParseYAML mismatch (-want +got):\n%s", diff)
	}
}

func TestParseYAMLEmpty(t *testing.T) {
	set, err := ParseYAML(nil, "empty.yaml")
	require.NoError(t, err)
	require.Zero(t, set.Len())
}

func TestParseYAMLErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":     "model: {}",
		"unknown section": "models: {A: {B: {layout: {x: 1}}}}",
		"missing kind":    "models: {A: {B: {binding: {label: x}}}}",
		"nested value":    "models: {A: {B: {converter: {x: {y: 1}}}}}",
		"syntax":          "models: [",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAML([]byte(src), "bad.yaml")
			require.Error(t, err)
		})
	}
}
