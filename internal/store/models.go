package store

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Player is a row of the players table
type Player struct {
	PlayerID        string          `json:"player_id" db:"player_id"`
	FullName        string          `json:"full_name" db:"full_name"`
	SourceURL       string          `json:"source_url" db:"source_url"`
	Positions       pq.StringArray  `json:"positions" db:"positions"`
	HeightMeters    sql.NullFloat64 `json:"height_m,omitempty" db:"height_m"`
	WeightPounds    sql.NullFloat64 `json:"weight_lb,omitempty" db:"weight_lb"`
	WeightKilograms sql.NullFloat64 `json:"weight_kg,omitempty" db:"weight_kg"`
	BirthDate       sql.NullTime    `json:"birth_date,omitempty" db:"birth_date"`
	DebutDate       sql.NullTime    `json:"debut_date,omitempty" db:"debut_date"`
	YearFrom        int             `json:"year_from" db:"year_from"`
	YearTo          sql.NullInt32   `json:"year_to,omitempty" db:"year_to"`
	DefaultedFields pq.StringArray  `json:"defaulted_fields" db:"defaulted_fields"`
	ScrapedAt       time.Time       `json:"scraped_at" db:"scraped_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// SeasonStats is one row of player_season_stats. Values holds the
// column → value object as stored in JSONB.
type SeasonStats struct {
	ID        int64          `json:"id" db:"id"`
	PlayerID  string         `json:"player_id" db:"player_id"`
	RowIndex  int            `json:"row_index" db:"row_index"`
	Season    string         `json:"season" db:"season"`
	Columns   pq.StringArray `json:"columns" db:"columns"`
	Values    []byte         `json:"-" db:"stat_values"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
