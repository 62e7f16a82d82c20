package xlsmap

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// Label is the text a directive searches for. It is either a literal or a
// compiled pattern; the choice is made once, when the directive is built.
type Label struct {
	// Text is the label as declared. For a pattern it includes the slashes.
	Text string

	// Pattern is set for labels declared as /pattern/. It matches the whole
	// cell text.
	Pattern *regexp.Regexp
}

// ParseLabel builds a Label. Text wrapped in slashes becomes a pattern.
func ParseLabel(text string) (Label, error) {
	if len(text) >= 2 && strings.HasPrefix(text, "/") && strings.HasSuffix(text, "/") {
		re, err := regexp.Compile("^(?:" + text[1:len(text)-1] + ")$")
		if err != nil {
			return Label{}, fmt.Errorf("label %s: %w", text, err)
		}
		return Label{Text: text, Pattern: re}, nil
	}
	return Label{Text: text}, nil
}

// IsZero reports whether no label was declared.
func (l Label) IsZero() bool {
	return l.Text == ""
}

func (l Label) String() string {
	return l.Text
}

// Matches reports whether cell text matches the label under cfg.
func (l Label) Matches(text string, cfg *Config) bool {
	if text == "" || l.IsZero() {
		return false
	}
	if l.Pattern != nil && cfg.RegexLabels {
		if l.Pattern.MatchString(text) {
			return true
		}
		return cfg.NormalizeLabels && l.Pattern.MatchString(NormalizeLabel(text))
	}
	if text == l.Text {
		return true
	}
	return cfg.NormalizeLabels && NormalizeLabel(text) == NormalizeLabel(l.Text)
}

// NormalizeLabel folds full-width and half-width forms, removes line breaks
// and collapses runs of white space into one space.
func NormalizeLabel(s string) string {
	s = width.Fold.String(s)
	s = strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// labelHit is a located label cell.
type labelHit struct {
	// Cell is the matched address; the region anchor for merged labels.
	Cell CellAddress

	// Span is the region the label occupies.
	Span Region

	// Text is the cell text that matched.
	Text string
}

// findLabelCell scans bounds in row-major order and returns the first cell
// whose text matches the label. With labelMerged, a member of a merged
// region matches through its anchor's text and the hit is the anchor.
func findLabelCell(sh Sheet, l Label, bounds Region, labelMerged bool, cfg *Config) (labelHit, bool) {
	for row := bounds.Start.Row; row <= bounds.End.Row; row++ {
		for col := bounds.Start.Col; col <= bounds.End.Col; col++ {
			a := Addr(row, col)
			text := sh.CellText(row, col)
			region, merged := sh.MergedRegion(row, col)
			if merged && labelMerged && text == "" && region.Start != a {
				text = sh.CellText(region.Start.Row, region.Start.Col)
			}
			if !l.Matches(text, cfg) {
				continue
			}
			if merged && labelMerged {
				return labelHit{Cell: region.Start, Span: region, Text: text}, true
			}
			return labelHit{Cell: a, Span: Region{Start: a, End: a}, Text: text}, true
		}
	}
	return labelHit{}, false
}

// sheetBounds is the whole used range of a sheet.
func sheetBounds(sh Sheet) Region {
	rows, cols := sh.Dimension()
	return Region{Start: Addr(0, 0), End: Addr(rows-1, cols-1)}
}

// Direction is the way a value lies relative to its label.
type Direction int

// Directions.
const (
	Right Direction = iota
	Left
	Down
	Up
)

func (d Direction) String() string {
	switch d {
	case Right:
		return "right"
	case Left:
		return "left"
	case Down:
		return "down"
	case Up:
		return "up"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func parseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "right", "horizontal":
		return Right, true
	case "left":
		return Left, true
	case "down", "bottom", "vertical":
		return Down, true
	case "up", "upper":
		return Up, true
	}
	return 0, false
}

// step is the unit offset of a direction.
func (d Direction) step() (dr, dc int) {
	switch d {
	case Left:
		return 0, -1
	case Down:
		return 1, 0
	case Up:
		return -1, 0
	}
	return 0, 1
}

// resolveValueCell steps 1+skip cells from the label's edge in direction
// d. With rng > 1 it widens the search to the first non-blank cell within
// rng steps, falling back to the first candidate.
func resolveValueCell(sh Sheet, hit labelHit, d Direction, skip, rng int) (CellAddress, bool) {
	var base CellAddress
	switch d {
	case Right:
		base = Addr(hit.Span.Start.Row, hit.Span.End.Col+1+skip)
	case Left:
		base = Addr(hit.Span.Start.Row, hit.Span.Start.Col-1-skip)
	case Down:
		base = Addr(hit.Span.End.Row+1+skip, hit.Span.Start.Col)
	case Up:
		base = Addr(hit.Span.Start.Row-1-skip, hit.Span.Start.Col)
	}
	if !base.Valid() {
		return CellAddress{}, false
	}
	if rng <= 1 {
		return base, true
	}
	dr, dc := d.step()
	cand := base
	for i := 0; i < rng && cand.Valid(); i++ {
		if !isBlank(sh, cand) {
			return cand, true
		}
		cand = cand.Offset(dr, dc)
	}
	return base, true
}
