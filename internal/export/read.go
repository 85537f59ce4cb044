package export

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/clio/internal/ingest/bbref"
	"github.com/fortuna/clio/internal/scrape"
)

// Load reads players.csv and player_stats.csv from dir. A missing stats file
// leaves every player without stats.
func Load(dir string) ([]*scrape.Player, error) {
	pf, err := os.Open(filepath.Join(dir, PlayersFile))
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	players, err := ReadPlayers(pf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PlayersFile, err)
	}

	sf, err := os.Open(filepath.Join(dir, StatsFile))
	if errors.Is(err, os.ErrNotExist) {
		return players, nil
	}
	if err != nil {
		return nil, err
	}
	defer sf.Close()

	stats, err := ReadStats(sf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StatsFile, err)
	}
	for _, p := range players {
		p.Stats = stats[p.ID]
	}
	return players, nil
}

// ReadPlayers parses a file written by WritePlayers.
func ReadPlayers(r io.Reader) ([]*scrape.Player, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(PlayerColumns, ",") {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var players []*scrape.Player
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := parsePlayer(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		players = append(players, p)
	}
	return players, nil
}

func parsePlayer(rec []string) (*scrape.Player, error) {
	p := &scrape.Player{ID: rec[0], Name: rec[1], URL: rec[2]}
	if rec[3] != "" {
		p.Positions = strings.Split(rec[3], positionSeparator)
	}

	var err error
	if p.HeightMeters, err = parseFloat(rec[4]); err != nil {
		return nil, fmt.Errorf("height_m: %w", err)
	}
	if p.WeightPounds, err = parseFloat(rec[5]); err != nil {
		return nil, fmt.Errorf("weight_lb: %w", err)
	}
	if p.WeightKilograms, err = parseFloat(rec[6]); err != nil {
		return nil, fmt.Errorf("weight_kg: %w", err)
	}
	if p.BirthDate, err = parseDate(rec[7]); err != nil {
		return nil, fmt.Errorf("birthdate: %w", err)
	}
	if p.DebutDate, err = parseDate(rec[8]); err != nil {
		return nil, fmt.Errorf("nba_debut: %w", err)
	}
	if p.YearFrom, err = strconv.Atoi(rec[9]); err != nil {
		return nil, fmt.Errorf("year_from: %w", err)
	}
	if rec[10] != "" {
		if p.YearTo, err = strconv.Atoi(rec[10]); err != nil {
			return nil, fmt.Errorf("year_to: %w", err)
		}
	}
	return p, nil
}

// ReadStats parses a file written by WriteStats into rows keyed by player id.
// Empty cells are treated as columns the row did not have.
func ReadStats(r io.Reader) (map[string][]bbref.StatRow, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 || header[0] != "id" || header[1] != "season" {
		return nil, fmt.Errorf("unexpected header %v", header)
	}
	columns := header[2:]

	out := make(map[string][]bbref.StatRow)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := bbref.StatRow{Season: rec[1], Values: make(map[string]bbref.StatValue)}
		for i, c := range columns {
			text := rec[i+2]
			if text == "" && c != bbref.AwardsColumn {
				continue
			}
			row.Columns = append(row.Columns, c)
			row.Values[c] = bbref.ParseStatValue(c, text)
		}
		out[rec[0]] = append(out[rec[0]], row)
	}
	return out, nil
}

func parseFloat(s string) (sql.NullFloat64, error) {
	if s == "" {
		return sql.NullFloat64{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, err
	}
	return sql.NullFloat64{Float64: f, Valid: true}, nil
}

func parseDate(s string) (sql.NullTime, error) {
	if s == "" {
		return sql.NullTime{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}
