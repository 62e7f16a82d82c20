package override

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yamitzky/xlsmap-go/xlsmap"
)

type yamlRoot struct {
	Models map[string]map[string]map[string]map[string]any `yaml:"models"`
}

// ParseYAML parses a YAML override document. filename is only used in
// messages.
func ParseYAML(src []byte, filename string) (*Set, error) {
	var root yamlRoot
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&root); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", filename, err)
	}
	set := NewSet()
	for _, typ := range sortedKeys(root.Models) {
		fields := root.Models[typ]
		for _, field := range sortedKeys(fields) {
			sections := fields[field]
			for _, name := range sortedKeys(sections) {
				sec, err := sectionOf(name)
				if err != nil {
					return nil, fmt.Errorf("%s: %s.%s: %w", filename, typ, field, err)
				}
				o := xlsmap.Override{Type: typ, Field: field, Section: sec, Attrs: map[string]string{}}
				for key, v := range sections[name] {
					s, err := yamlString(v)
					if err != nil {
						return nil, fmt.Errorf("%s: %s.%s %s.%s: %w", filename, typ, field, name, key, err)
					}
					if key == "kind" && sec == xlsmap.SectionBinding {
						o.Kind = s
						continue
					}
					o.Attrs[key] = s
				}
				if sec == xlsmap.SectionBinding && o.Kind == "" {
					return nil, fmt.Errorf("%s: %s.%s binding: kind is required", filename, typ, field)
				}
				set.Add(o)
			}
		}
	}
	return set, nil
}

func yamlString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			s, err := yamlString(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, "|"), nil
	}
	return "", fmt.Errorf("unsupported value %v of type %T", v, v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
