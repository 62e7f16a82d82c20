package xlsmap

import (
	"fmt"
	"sort"
	"strings"
)

// Struct tag keys.
const (
	tagBinding   = "xls"
	tagConverter = "xlsconv"
	tagFormula   = "xlsformula"
)

// rawDirective is one tag section before validation: an optional leading
// kind followed by attributes. A bare attribute is stored as "true".
type rawDirective struct {
	Kind  string
	Attrs map[string]string
}

// parseTag parses the `kind,attr=value,flag` mini language. Values may be
// wrapped in single quotes to carry commas; a doubled quote inside a quoted
// value is a literal quote.
func parseTag(tag string, withKind bool) (rawDirective, error) {
	raw := rawDirective{Attrs: map[string]string{}}
	tokens, err := splitTag(tag)
	if err != nil {
		return raw, err
	}
	for i, tok := range tokens {
		if i == 0 && withKind {
			if strings.Contains(tok, "=") {
				return raw, fmt.Errorf("tag %q must start with a directive kind", tag)
			}
			raw.Kind = tok
			continue
		}
		if tok == "" {
			continue
		}
		key, value, ok := strings.Cut(tok, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return raw, fmt.Errorf("tag %q has an attribute without a name", tag)
		}
		if !ok {
			value = "true"
		} else {
			value = unquoteTagValue(strings.TrimSpace(value))
		}
		if _, dup := raw.Attrs[key]; dup {
			return raw, fmt.Errorf("tag %q repeats attribute %s", tag, key)
		}
		raw.Attrs[key] = value
	}
	return raw, nil
}

func splitTag(tag string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(tag); i++ {
		ch := tag[i]
		switch {
		case ch == '\'' && inQuote && i+1 < len(tag) && tag[i+1] == '\'':
			cur.WriteString("''")
			i++
		case ch == '\'':
			inQuote = !inQuote
			cur.WriteByte(ch)
		case ch == ',' && !inQuote:
			tokens = append(tokens, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("tag %q has an unterminated quote", tag)
	}
	tokens = append(tokens, strings.TrimSpace(cur.String()))
	return tokens, nil
}

func unquoteTagValue(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}

// sortedKeys returns the attribute names in a stable order for messages.
func (r rawDirective) sortedKeys() []string {
	keys := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// splitList splits a "a|b|c" attribute value.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
