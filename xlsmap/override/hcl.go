package override

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/yamitzky/xlsmap-go/xlsmap"
)

type hclRoot struct {
	Models []*hclModel `hcl:"model,block"`
}

type hclModel struct {
	Type   string      `hcl:"type,label"`
	Fields []*hclField `hcl:"field,block"`
}

type hclField struct {
	Name      string      `hcl:"name,label"`
	Binding   *hclBinding `hcl:"binding,block"`
	Converter *hclSection `hcl:"converter,block"`
	Formula   *hclSection `hcl:"formula,block"`
}

type hclBinding struct {
	Kind string   `hcl:"kind,label"`
	Body hcl.Body `hcl:",remain"`
}

type hclSection struct {
	Body hcl.Body `hcl:",remain"`
}

// ParseHCL parses an HCL override document. filename is only used in
// diagnostics.
func ParseHCL(src []byte, filename string) (*Set, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	set := NewSet()
	for _, m := range root.Models {
		for _, f := range m.Fields {
			if f.Binding != nil {
				attrs, err := hclAttrs(f.Binding.Body)
				if err != nil {
					return nil, fmt.Errorf("%s: %s.%s binding: %w", filename, m.Type, f.Name, err)
				}
				set.Add(xlsmap.Override{Type: m.Type, Field: f.Name, Section: xlsmap.SectionBinding, Kind: f.Binding.Kind, Attrs: attrs})
			}
			for _, sec := range []struct {
				name xlsmap.Section
				body *hclSection
			}{{xlsmap.SectionConverter, f.Converter}, {xlsmap.SectionFormula, f.Formula}} {
				if sec.body == nil {
					continue
				}
				attrs, err := hclAttrs(sec.body.Body)
				if err != nil {
					return nil, fmt.Errorf("%s: %s.%s %s: %w", filename, m.Type, f.Name, sec.name, err)
				}
				set.Add(xlsmap.Override{Type: m.Type, Field: f.Name, Section: sec.name, Attrs: attrs})
			}
		}
	}
	return set, nil
}

func hclAttrs(body hcl.Body) (map[string]string, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	out := make(map[string]string, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		s, err := ctyString(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// ctyString renders an attribute value in tag vocabulary. Lists become
// "a|b|c".
func ctyString(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	case ty == cty.Bool:
		if v.True() {
			return "true", nil
		}
		return "false", nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		var parts []string
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			s, err := ctyString(elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, "|"), nil
	}
	return "", fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
