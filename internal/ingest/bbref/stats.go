package bbref

import (
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	// AwardsColumn is the only statistic column kept as free text when empty.
	AwardsColumn = "awards"

	// TotalsRegionID is the container of the per-season totals table.
	TotalsRegionID = "div_totals_stats"
)

// StatValue is a table cell: a decimal number or free text.
type StatValue struct {
	Raw     string
	Number  float64
	Numeric bool
}

// Text returns the cell text; numeric cells defaulted from empty render "0".
func (v StatValue) Text() string {
	if v.Numeric && v.Raw == "" {
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
	return v.Raw
}

// StatRow is one season of per-column statistics. Columns preserves the
// table's column order (row label excluded).
type StatRow struct {
	Season  string
	Columns []string
	Values  map[string]StatValue
}

// Get returns the value of a column.
func (r StatRow) Get(column string) (StatValue, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// ParseStatValue applies the empty-cell rules: awards stays text, everything
// else becomes 0.0 when empty. Only finite decimals are numeric.
func ParseStatValue(column, text string) StatValue {
	if column == AwardsColumn {
		return StatValue{Raw: text}
	}
	if text == "" {
		return StatValue{Numeric: true}
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return StatValue{Raw: text, Number: n, Numeric: true}
	}
	return StatValue{Raw: text}
}

// ExtractStats reads the totals table. A missing region, header or body
// yields an empty list; stats are optional.
func ExtractStats(doc *goquery.Document) []StatRow {
	return ExtractTable(doc, TotalsRegionID)
}

// ExtractTable reads the table inside the region with the given element id.
// The site ships secondary tables inside HTML comments, so those are searched
// too when the region is not part of the live DOM.
func ExtractTable(doc *goquery.Document, regionID string) []StatRow {
	region := findRegion(doc.Selection, regionID)
	if region == nil {
		return nil
	}

	headers := tableHeaders(region.Find("thead").First())
	if len(headers) == 0 {
		return nil
	}
	body := region.Find("tbody").First()
	if body.Length() == 0 {
		return nil
	}

	var rows []StatRow
	body.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.HasClass("thead") || tr.HasClass("over_header") || tr.HasClass("spacer") {
			return
		}
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() == 0 {
			return
		}

		row := StatRow{
			Season: strings.TrimSpace(cells.First().Text()),
			Values: make(map[string]StatValue, len(headers)),
		}
		cells.Each(func(i int, cell *goquery.Selection) {
			// The first cell is the row label.
			if i == 0 || i >= len(headers) {
				return
			}
			key := headers[i]
			row.Columns = append(row.Columns, key)
			row.Values[key] = ParseStatValue(key, strings.TrimSpace(cell.Text()))
		})
		rows = append(rows, row)
	})
	return rows
}

// tableHeaders returns the column keys of the last header row, preferring
// the data-stat attribute over the visible label.
func tableHeaders(thead *goquery.Selection) []string {
	if thead.Length() == 0 {
		return nil
	}
	var headers []string
	thead.Find("tr").Last().ChildrenFiltered("th, td").Each(func(_ int, th *goquery.Selection) {
		key, ok := th.Attr("data-stat")
		if !ok || key == "" {
			key = strings.ToLower(strings.TrimSpace(th.Text()))
		}
		headers = append(headers, key)
	})
	return headers
}

func findRegion(root *goquery.Selection, id string) *goquery.Selection {
	if s := root.Find("#" + id); s.Length() > 0 {
		return s.First()
	}

	var region *goquery.Selection
	root.Find("*").Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n := s.Get(0)
		if n.Type != html.CommentNode || !strings.Contains(n.Data, id) {
			return true
		}
		inner, err := goquery.NewDocumentFromReader(strings.NewReader(n.Data))
		if err != nil {
			return true
		}
		if r := inner.Find("#" + id); r.Length() > 0 {
			region = r.First()
			return false
		}
		return true
	})
	return region
}
