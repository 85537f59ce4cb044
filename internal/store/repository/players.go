package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fortuna/clio/internal/scrape"
	"github.com/fortuna/clio/internal/store"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

const playerColumns = `player_id, full_name, source_url, positions, height_m, weight_lb, weight_kg,
	birth_date, debut_date, year_from, year_to, defaulted_fields, scraped_at, created_at, updated_at`

// PlayerRepository handles player data access
type PlayerRepository struct {
	db *store.Database
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db *store.Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// Save upserts the player and replaces its season rows in one transaction.
// It implements scrape.Sink.
func (r *PlayerRepository) Save(ctx context.Context, p *scrape.Player) error {
	row := PlayerRow(p)
	seasons, err := SeasonRows(p)
	if err != nil {
		return err
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin player tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO players (player_id, full_name, source_url, positions, height_m, weight_lb, weight_kg,
			birth_date, debut_date, year_from, year_to, defaulted_fields, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (player_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			source_url = EXCLUDED.source_url,
			positions = EXCLUDED.positions,
			height_m = EXCLUDED.height_m,
			weight_lb = EXCLUDED.weight_lb,
			weight_kg = EXCLUDED.weight_kg,
			birth_date = EXCLUDED.birth_date,
			debut_date = EXCLUDED.debut_date,
			year_from = EXCLUDED.year_from,
			year_to = EXCLUDED.year_to,
			defaulted_fields = EXCLUDED.defaulted_fields,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = NOW()
	`
	if _, err := tx.ExecContext(ctx, query,
		row.PlayerID, row.FullName, row.SourceURL, row.Positions, row.HeightMeters, row.WeightPounds,
		row.WeightKilograms, row.BirthDate, row.DebutDate, row.YearFrom, row.YearTo,
		row.DefaultedFields, row.ScrapedAt,
	); err != nil {
		return fmt.Errorf("upserting player %s: %w", p.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM player_season_stats WHERE player_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clearing season stats for %s: %w", p.ID, err)
	}

	insert := `
		INSERT INTO player_season_stats (player_id, row_index, season, columns, stat_values)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, s := range seasons {
		if _, err := tx.ExecContext(ctx, insert, s.PlayerID, s.RowIndex, s.Season, s.Columns, s.Values); err != nil {
			return fmt.Errorf("inserting season %s for %s: %w", s.Season, p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit player %s: %w", p.ID, err)
	}
	return nil
}

// GetByID finds a player by its basketball-reference id
func (r *PlayerRepository) GetByID(ctx context.Context, playerID string) (*store.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE player_id = $1`

	player, err := scanPlayer(r.db.DB().QueryRowContext(ctx, query, playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying player: %w", err)
	}

	return player, nil
}

// Search finds players by name (case-insensitive partial match)
func (r *PlayerRepository) Search(ctx context.Context, name string, limit int) ([]*store.Player, error) {
	query := `SELECT ` + playerColumns + `
		FROM players
		WHERE full_name ILIKE $1
		ORDER BY full_name
		LIMIT $2
	`

	rows, err := r.db.DB().QueryContext(ctx, query, "%"+escapeLike(name)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("querying players: %w", err)
	}
	defer rows.Close()

	return scanPlayers(rows)
}

// ListByLetter returns players whose id starts with letter. Ids are derived
// from the last name, so this mirrors the site's letter index.
func (r *PlayerRepository) ListByLetter(ctx context.Context, letter string, limit int) ([]*store.Player, error) {
	query := `SELECT ` + playerColumns + `
		FROM players
		WHERE player_id LIKE $1
		ORDER BY player_id
		LIMIT $2
	`

	rows, err := r.db.DB().QueryContext(ctx, query, escapeLike(strings.ToLower(letter))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("querying players by letter: %w", err)
	}
	defer rows.Close()

	return scanPlayers(rows)
}

// Count returns the number of stored players
func (r *PlayerRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting players: %w", err)
	}
	return n, nil
}

// PlayerRow converts a scraped player into its table row.
func PlayerRow(p *scrape.Player) *store.Player {
	defaulted := make(pq.StringArray, 0, len(p.Defaulted))
	for _, f := range p.Defaulted {
		defaulted = append(defaulted, string(f))
	}
	positions := pq.StringArray(p.Positions)
	if positions == nil {
		positions = pq.StringArray{}
	}
	var yearTo sql.NullInt32
	if p.YearTo > 0 {
		yearTo = sql.NullInt32{Int32: int32(p.YearTo), Valid: true}
	}
	return &store.Player{
		PlayerID:        p.ID,
		FullName:        p.Name,
		SourceURL:       p.URL,
		Positions:       positions,
		HeightMeters:    p.HeightMeters,
		WeightPounds:    p.WeightPounds,
		WeightKilograms: p.WeightKilograms,
		BirthDate:       p.BirthDate,
		DebutDate:       p.DebutDate,
		YearFrom:        p.YearFrom,
		YearTo:          yearTo,
		DefaultedFields: defaulted,
		ScrapedAt:       p.ScrapedAt,
	}
}

func scanPlayer(scanner interface {
	Scan(dest ...interface{}) error
}) (*store.Player, error) {
	player := &store.Player{}
	err := scanner.Scan(
		&player.PlayerID, &player.FullName, &player.SourceURL, &player.Positions,
		&player.HeightMeters, &player.WeightPounds, &player.WeightKilograms,
		&player.BirthDate, &player.DebutDate, &player.YearFrom, &player.YearTo,
		&player.DefaultedFields, &player.ScrapedAt, &player.CreatedAt, &player.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return player, nil
}

// scanPlayers is a helper to scan multiple player rows
func scanPlayers(rows *sql.Rows) ([]*store.Player, error) {
	var players []*store.Player
	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players = append(players, player)
	}

	return players, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
