package bbref

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IndexEntry is one player row of a letter index page.
type IndexEntry struct {
	ID       string
	Name     string
	URL      string
	YearFrom int
	YearTo   int
}

// ParseIndex reads the players table of a letter index page. Relative links
// are resolved against base. It returns the entries and the number of rows
// that were skipped because they could not be parsed.
func ParseIndex(doc *goquery.Document, base *url.URL) ([]IndexEntry, int) {
	var (
		entries []IndexEntry
		skipped int
	)
	doc.Find("#players tbody tr").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("thead") {
			return
		}
		entry, err := parseIndexRow(row, base)
		if err != nil {
			skipped++
			return
		}
		entries = append(entries, entry)
	})
	return entries, skipped
}

func parseIndexRow(row *goquery.Selection, base *url.URL) (IndexEntry, error) {
	link := row.Find(`th[data-stat="player"] a`).First()
	if link.Length() == 0 {
		return IndexEntry{}, fmt.Errorf("player link not found")
	}
	name := strings.TrimSpace(link.Text())
	href, ok := link.Attr("href")
	if !ok || name == "" || href == "" {
		return IndexEntry{}, fmt.Errorf("player link incomplete")
	}

	ref, err := url.Parse(href)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("parse href %q: %w", href, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}

	yearFrom, err := strconv.Atoi(strings.TrimSpace(row.Find(`td[data-stat="year_min"]`).First().Text()))
	if err != nil {
		return IndexEntry{}, fmt.Errorf("parse year_min for %s: %w", name, err)
	}
	// year_max is informative only.
	yearTo, _ := strconv.Atoi(strings.TrimSpace(row.Find(`td[data-stat="year_max"]`).First().Text()))

	return IndexEntry{
		ID:       PlayerID(ref.String()),
		Name:     name,
		URL:      ref.String(),
		YearFrom: yearFrom,
		YearTo:   yearTo,
	}, nil
}

// PlayerID derives the stable identifier from a player link:
// ".../players/a/abdulka01.html" → "abdulka01".
func PlayerID(link string) string {
	p := link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return strings.TrimSuffix(path.Base(p), ".html")
}
