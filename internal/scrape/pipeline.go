// Package scrape runs the fetch → extract → normalize pipeline per player and
// drives it over the letter index pages.
package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/clio/internal/ingest/bbref"
	"github.com/fortuna/clio/internal/ingest/fetch"
	"github.com/fortuna/clio/internal/normalize"
	"go.uber.org/zap"
)

// Pipeline turns one index entry into a Player.
type Pipeline struct {
	source    fetch.Source
	extractor *bbref.Extractor
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline constructs a Pipeline. A nil extractor uses the default layout.
func NewPipeline(source fetch.Source, extractor *bbref.Extractor, logger *zap.Logger) *Pipeline {
	if extractor == nil {
		extractor = bbref.NewExtractor(bbref.DefaultLayout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:    source,
		extractor: extractor,
		logger:    logger.Named("pipeline"),
		now:       time.Now,
	}
}

// Scrape fetches, extracts and normalizes one player. A fetch failure is
// returned as *fetch.Error; a malformed date aborts the record with an error
// wrapping normalize.ErrDateFormat.
func (p *Pipeline) Scrape(ctx context.Context, entry bbref.IndexEntry) (*Player, error) {
	res := p.source.Fetch(ctx, entry.URL)
	if !res.OK() {
		return nil, res.Failure()
	}

	page, err := p.extractor.ExtractPage(res.Body)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", entry.URL, err)
	}

	if defaulted := page.Fields.Defaulted(); len(defaulted) > 0 {
		p.logger.Debug("fields defaulted",
			zap.String("player_id", entry.ID),
			zap.Any("fields", defaulted))
	}

	return BuildPlayer(entry, page, p.now())
}

// BuildPlayer normalizes an extracted page into a Player.
func BuildPlayer(entry bbref.IndexEntry, page bbref.Page, scrapedAt time.Time) (*Player, error) {
	raw := page.Fields

	birth, err := normalize.ParseOptionalDate(raw.Birthdate.NullString())
	if err != nil {
		return nil, fmt.Errorf("player %s birthdate: %w", entry.ID, err)
	}
	debut, err := normalize.ParseOptionalDate(raw.Debut.NullString())
	if err != nil {
		return nil, fmt.Errorf("player %s debut: %w", entry.ID, err)
	}

	pounds, kilograms := normalize.SplitWeight(raw.Weight().NullString()).Values()

	id := entry.ID
	if id == "" {
		id = bbref.PlayerID(entry.URL)
	}
	name := entry.Name
	if raw.Name.Found {
		name = raw.Name.Value
	}

	return &Player{
		ID:              id,
		Name:            name,
		URL:             entry.URL,
		Positions:       normalize.SplitPositions(raw.Position.NullString()),
		HeightMeters:    normalize.ConvertHeight(raw.Height().NullString()),
		WeightPounds:    pounds,
		WeightKilograms: kilograms,
		BirthDate:       birth,
		DebutDate:       debut,
		YearFrom:        entry.YearFrom,
		YearTo:          entry.YearTo,
		Stats:           page.Stats,
		Defaulted:       raw.Defaulted(),
		ScrapedAt:       scrapedAt,
	}, nil
}
