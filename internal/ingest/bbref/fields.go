// Package bbref extracts player data from basketball-reference.com pages.
package bbref

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sentinel is the placeholder stored in a field that could not be extracted.
const Sentinel = "N/A"

// FieldName identifies one labeled field of the player info block.
type FieldName string

const (
	FieldPlayerName   FieldName = "name"
	FieldPosition     FieldName = "position"
	FieldHeightWeight FieldName = "height_weight"
	FieldBirthdate    FieldName = "birthdate"
	FieldDebut        FieldName = "debut"
)

const infoParagraphQuery = "div#info p"

// Field is an extracted text value. Found is false when Value is the sentinel.
type Field struct {
	Value string
	Found bool
}

func found(v string) Field { return Field{Value: v, Found: true} }

func missing() Field { return Field{Value: Sentinel} }

// NullString converts the field for the normalizer; a defaulted field is NULL.
func (f Field) NullString() sql.NullString {
	return sql.NullString{String: f.Value, Valid: f.Found}
}

// RawFields holds the labeled text fields of a player page.
type RawFields struct {
	Name         Field
	Position     Field
	HeightWeight Field
	Birthdate    Field
	Debut        Field
}

// Defaulted lists the fields that carry the sentinel, in declaration order.
func (r RawFields) Defaulted() []FieldName {
	var out []FieldName
	for _, f := range []struct {
		name  FieldName
		field Field
	}{
		{FieldPlayerName, r.Name},
		{FieldPosition, r.Position},
		{FieldHeightWeight, r.HeightWeight},
		{FieldBirthdate, r.Birthdate},
		{FieldDebut, r.Debut},
	} {
		if !f.field.Found {
			out = append(out, f.name)
		}
	}
	return out
}

// Height is the part of the height-weight text before the first comma.
func (r RawFields) Height() Field {
	if !r.HeightWeight.Found {
		return missing()
	}
	h, _, _ := strings.Cut(r.HeightWeight.Value, ",")
	if h = strings.TrimSpace(h); h == "" {
		return missing()
	}
	return found(h)
}

// Weight is the part of the height-weight text after the first comma,
// e.g. "216lb (98kg)".
func (r RawFields) Weight() Field {
	if !r.HeightWeight.Found {
		return missing()
	}
	_, w, ok := strings.Cut(r.HeightWeight.Value, ",")
	if w = strings.TrimSpace(w); !ok || w == "" {
		return missing()
	}
	return found(w)
}

// Rule locates one field inside the info block. Paragraph is the index the
// field is expected at; Start/End delimit the value within the paragraph.
// A rule without Start matches the paragraph by Shape instead.
type Rule struct {
	Field     FieldName
	Paragraph int
	Start     string
	End       string
	Shape     *regexp.Regexp
}

// Layout is a validated set of rules.
type Layout struct {
	rules []Rule
}

// NewLayout validates rules: each field appears once, indexes are
// non-negative, and every rule has either a Start label or a Shape.
func NewLayout(rules ...Rule) (Layout, error) {
	seen := make(map[FieldName]bool, len(rules))
	for _, r := range rules {
		if r.Paragraph < 0 {
			return Layout{}, fmt.Errorf("rule %s: negative paragraph index %d", r.Field, r.Paragraph)
		}
		if r.Start == "" && r.Shape == nil {
			return Layout{}, fmt.Errorf("rule %s: needs a start label or a shape", r.Field)
		}
		if seen[r.Field] {
			return Layout{}, fmt.Errorf("rule %s: duplicate field", r.Field)
		}
		seen[r.Field] = true
	}
	return Layout{rules: append([]Rule(nil), rules...)}, nil
}

// MustLayout is NewLayout for package-level layouts.
func MustLayout(rules ...Rule) Layout {
	l, err := NewLayout(rules...)
	if err != nil {
		panic(err)
	}
	return l
}

var heightWeightShape = regexp.MustCompile(`^\d+-\d+\s*,\s*\d+\s*lb`)

// DefaultLayout matches the player info block as currently published.
var DefaultLayout = MustLayout(
	Rule{Field: FieldPosition, Paragraph: 3, Start: "Position:", End: "Shoots:"},
	Rule{Field: FieldHeightWeight, Paragraph: 4, Shape: heightWeightShape},
	Rule{Field: FieldBirthdate, Paragraph: 5, Start: "Born:", End: " in "},
	Rule{Field: FieldDebut, Paragraph: 9, Start: "NBA Debut:"},
)

// Extractor reads RawFields using a Layout.
type Extractor struct {
	layout Layout
}

// NewExtractor creates an extractor. A zero Layout falls back to DefaultLayout.
func NewExtractor(layout Layout) *Extractor {
	if len(layout.rules) == 0 {
		layout = DefaultLayout
	}
	return &Extractor{layout: layout}
}

// Extract reads the labeled fields. It never fails: fields that cannot be
// located carry the sentinel.
func (e *Extractor) Extract(doc *goquery.Document) RawFields {
	paragraphs := infoParagraphs(doc)

	raw := RawFields{
		Name:         extractName(doc),
		Position:     missing(),
		HeightWeight: missing(),
		Birthdate:    missing(),
		Debut:        missing(),
	}
	for _, rule := range e.layout.rules {
		v := locate(paragraphs, rule)
		switch rule.Field {
		case FieldPosition:
			raw.Position = v
		case FieldHeightWeight:
			raw.HeightWeight = v
		case FieldBirthdate:
			raw.Birthdate = v
		case FieldDebut:
			raw.Debut = v
		case FieldPlayerName:
			if !raw.Name.Found {
				raw.Name = v
			}
		}
	}
	return raw
}

// Extract uses DefaultLayout.
func Extract(doc *goquery.Document) RawFields {
	return NewExtractor(DefaultLayout).Extract(doc)
}

func extractName(doc *goquery.Document) Field {
	for _, sel := range []string{"h1 span", "h1"} {
		if name := cleanText(doc.Find(sel).First().Text()); name != "" {
			return found(name)
		}
	}
	return missing()
}

func infoParagraphs(doc *goquery.Document) []string {
	var out []string
	doc.Find(infoParagraphQuery).Each(func(_ int, p *goquery.Selection) {
		out = append(out, cleanText(p.Text()))
	})
	return out
}

// cleanText flattens a paragraph to one line and drops the ▪ separators.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "▪", " ")
	return strings.Join(strings.Fields(s), " ")
}

// paragraph is a checked lookup into the info block.
func paragraph(paragraphs []string, index int) (string, bool) {
	if index < 0 || index >= len(paragraphs) {
		return "", false
	}
	return paragraphs[index], true
}

// locate tries the expected paragraph first, then every other paragraph.
func locate(paragraphs []string, rule Rule) Field {
	if text, ok := paragraph(paragraphs, rule.Paragraph); ok {
		if v, ok := apply(text, rule); ok {
			return found(v)
		}
	}
	for i, text := range paragraphs {
		if i == rule.Paragraph {
			continue
		}
		if v, ok := apply(text, rule); ok {
			return found(v)
		}
	}
	return missing()
}

func apply(text string, rule Rule) (string, bool) {
	if rule.Start == "" {
		if rule.Shape.MatchString(text) {
			return text, true
		}
		return "", false
	}
	return between(text, rule.Start, rule.End)
}

// between slices text after start and before end. An empty end means the
// rest of the line. Missing tokens or an empty value report false.
func between(text, start, end string) (string, bool) {
	_, rest, ok := strings.Cut(text, start)
	if !ok {
		return "", false
	}
	if end != "" {
		rest, _, ok = strings.Cut(rest, end)
		if !ok {
			return "", false
		}
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}
