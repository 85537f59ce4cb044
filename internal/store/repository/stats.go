package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fortuna/clio/internal/ingest/bbref"
	"github.com/fortuna/clio/internal/scrape"
	"github.com/fortuna/clio/internal/store"
	"github.com/lib/pq"
)

// StatsRepository handles player season stats data access
type StatsRepository struct {
	db *store.Database
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *store.Database) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetByPlayer returns a player's season rows in table order
func (r *StatsRepository) GetByPlayer(ctx context.Context, playerID string) ([]*store.SeasonStats, error) {
	query := `
		SELECT id, player_id, row_index, season, columns, stat_values, created_at
		FROM player_season_stats
		WHERE player_id = $1
		ORDER BY row_index
	`

	rows, err := r.db.DB().QueryContext(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("querying season stats: %w", err)
	}
	defer rows.Close()

	var out []*store.SeasonStats
	for rows.Next() {
		s := &store.SeasonStats{}
		if err := rows.Scan(&s.ID, &s.PlayerID, &s.RowIndex, &s.Season, &s.Columns, &s.Values, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning season stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StatRows returns a player's season rows decoded back into extractor rows
func (r *StatsRepository) StatRows(ctx context.Context, playerID string) ([]bbref.StatRow, error) {
	stored, err := r.GetByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	rows := make([]bbref.StatRow, 0, len(stored))
	for _, s := range stored {
		row, err := DecodeSeason(s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SeasonRows converts a player's stats into table rows. Numeric cells are
// stored as JSON numbers and text cells as JSON strings.
func SeasonRows(p *scrape.Player) ([]*store.SeasonStats, error) {
	out := make([]*store.SeasonStats, 0, len(p.Stats))
	for i, row := range p.Stats {
		values := make(map[string]interface{}, len(row.Values))
		for col, v := range row.Values {
			if v.Numeric {
				values[col] = v.Number
			} else {
				values[col] = v.Raw
			}
		}
		encoded, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("encoding season %s: %w", row.Season, err)
		}
		out = append(out, &store.SeasonStats{
			PlayerID: p.ID,
			RowIndex: i,
			Season:   row.Season,
			Columns:  pq.StringArray(row.Columns),
			Values:   encoded,
		})
	}
	return out, nil
}

// DecodeSeason converts a stored row back into a StatRow
func DecodeSeason(s *store.SeasonStats) (bbref.StatRow, error) {
	var values map[string]interface{}
	if err := json.Unmarshal(s.Values, &values); err != nil {
		return bbref.StatRow{}, fmt.Errorf("decoding season %s: %w", s.Season, err)
	}

	row := bbref.StatRow{
		Season:  s.Season,
		Columns: []string(s.Columns),
		Values:  make(map[string]bbref.StatValue, len(values)),
	}
	for col, raw := range values {
		switch v := raw.(type) {
		case float64:
			row.Values[col] = bbref.StatValue{Raw: strconv.FormatFloat(v, 'f', -1, 64), Number: v, Numeric: true}
		case string:
			row.Values[col] = bbref.StatValue{Raw: v}
		default:
			return bbref.StatRow{}, fmt.Errorf("season %s column %s: unexpected %T", s.Season, col, raw)
		}
	}
	return row, nil
}
