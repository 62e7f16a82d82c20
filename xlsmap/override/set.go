// Package override loads directive overrides from HCL and YAML files.
//
// An override file replaces the binding, converter or formula section of
// model fields without touching their struct tags. Both formats describe
// the same thing; in HCL:
//
//	model "Roster" {
//	  field "Members" {
//	    binding "horizontal" {
//	      tableLabel = "Members"
//	      over       = "insert"
//	    }
//	  }
//	  field "Total" {
//	    formula {
//	      template = "SUM(C2:C{rowIndex})"
//	    }
//	  }
//	}
//
// and in YAML:
//
//	models:
//	  Roster:
//	    Members:
//	      binding: {kind: horizontal, tableLabel: Members, over: insert}
package override

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/yamitzky/xlsmap-go/xlsmap"
)

// Set is a collection of overrides keyed by model type name. It
// implements xlsmap.OverrideSource.
type Set struct {
	byType map[string][]xlsmap.Override
}

var _ xlsmap.OverrideSource = (*Set)(nil)

// NewSet returns a Set holding overrides.
func NewSet(overrides ...xlsmap.Override) *Set {
	s := &Set{byType: map[string][]xlsmap.Override{}}
	s.Add(overrides...)
	return s
}

// Add appends overrides. A later override for the same field and section
// replaces an earlier one.
func (s *Set) Add(overrides ...xlsmap.Override) {
	for _, o := range overrides {
		s.byType[o.Type] = append(s.byType[o.Type], o)
	}
}

// Merge adds every override of other.
func (s *Set) Merge(other *Set) {
	for _, t := range other.Types() {
		s.Add(other.byType[t]...)
	}
}

// Types lists the model type names with overrides, sorted.
func (s *Set) Types() []string {
	out := make([]string, 0, len(s.byType))
	for t := range s.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of overrides.
func (s *Set) Len() int {
	n := 0
	for _, ovs := range s.byType {
		n += len(ovs)
	}
	return n
}

// Overrides implements xlsmap.OverrideSource.
func (s *Set) Overrides(t reflect.Type) ([]xlsmap.Override, error) {
	return s.byType[t.Name()], nil
}

// LoadFile reads an override file, choosing the format by extension:
// .hcl for HCL, .yaml or .yml for YAML.
func LoadFile(path string) (*Set, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read override file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return ParseHCL(src, path)
	case ".yaml", ".yml":
		return ParseYAML(src, path)
	}
	return nil, fmt.Errorf("override file %s: unknown format %q", path, filepath.Ext(path))
}

// LoadFiles reads several override files into one Set. Later files win.
func LoadFiles(paths ...string) (*Set, error) {
	all := NewSet()
	for _, p := range paths {
		s, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		all.Merge(s)
	}
	return all, nil
}

func sectionOf(name string) (xlsmap.Section, error) {
	switch xlsmap.Section(name) {
	case xlsmap.SectionBinding, xlsmap.SectionConverter, xlsmap.SectionFormula:
		return xlsmap.Section(name), nil
	}
	return "", fmt.Errorf("unknown section %q", name)
}
