package scrape

import (
	"context"
	"database/sql"
	"time"

	"github.com/fortuna/clio/internal/ingest/bbref"
)

// Player is the normalized record built from one player page. It is not
// modified after construction; a later scrape produces a new record.
type Player struct {
	ID              string
	Name            string
	URL             string
	Positions       []string
	HeightMeters    sql.NullFloat64
	WeightPounds    sql.NullFloat64
	WeightKilograms sql.NullFloat64
	BirthDate       sql.NullTime
	DebutDate       sql.NullTime
	YearFrom        int
	YearTo          int
	Stats           []bbref.StatRow
	Defaulted       []bbref.FieldName
	ScrapedAt       time.Time
}

// Payload renders the player for JSON consumers (REST, streams).
func (p *Player) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"id":         p.ID,
		"name":       p.Name,
		"url":        p.URL,
		"positions":  p.Positions,
		"year_from":  p.YearFrom,
		"year_to":    p.YearTo,
		"stat_rows":  len(p.Stats),
		"scraped_at": p.ScrapedAt,
	}
	if p.HeightMeters.Valid {
		payload["height_m"] = p.HeightMeters.Float64
	}
	if p.WeightPounds.Valid {
		payload["weight_lb"] = p.WeightPounds.Float64
	}
	if p.WeightKilograms.Valid {
		payload["weight_kg"] = p.WeightKilograms.Float64
	}
	if p.BirthDate.Valid {
		payload["birthdate"] = p.BirthDate.Time.Format("2006-01-02")
	}
	if p.DebutDate.Valid {
		payload["nba_debut"] = p.DebutDate.Time.Format("2006-01-02")
	}
	if len(p.Defaulted) > 0 {
		payload["defaulted"] = p.Defaulted
	}
	return payload
}

// RunSpec describes one pass over the letter index pages.
type RunSpec struct {
	Letters        []string
	CutoffYear     int
	PerLetterLimit int
	DryRun         bool
}

// Summary counts what a run did.
type Summary struct {
	Letters       int `json:"letters"`
	LettersFailed int `json:"letters_failed"`
	Processed     int `json:"processed"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	StatRows      int `json:"stat_rows"`
}

// Sink receives every successfully scraped player.
type Sink interface {
	Save(ctx context.Context, p *Player) error
}

// Flusher is implemented by sinks that buffer until the run ends.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnRunStart(spec RunSpec)
	OnLetterStart(letter string, index int, total int)
	OnEntityScraped(p *Player)
	OnEntitySkipped(entry bbref.IndexEntry, reason string)
	OnEntityFailed(entry bbref.IndexEntry, err error)
	OnProgress(message string, current int, total int)
	OnRunComplete(summary Summary)
}
