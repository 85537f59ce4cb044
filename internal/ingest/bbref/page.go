package bbref

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML converts raw HTML to a goquery Document for parsing.
func ParseHTML(content string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// Page is everything extracted from one player page.
type Page struct {
	Fields RawFields
	Stats  []StatRow
}

// ExtractPage parses content and extracts fields and stats.
func (e *Extractor) ExtractPage(content string) (Page, error) {
	doc, err := ParseHTML(content)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Fields: e.Extract(doc),
		Stats:  ExtractStats(doc),
	}, nil
}
