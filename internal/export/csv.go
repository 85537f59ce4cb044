// Package export writes scraped players and season statistics as CSV files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fortuna/clio/internal/scrape"
	"go.uber.org/zap"
)

const (
	PlayersFile = "players.csv"
	StatsFile   = "player_stats.csv"

	dateLayout        = "2006-01-02"
	positionSeparator = " and "
)

// PlayerColumns is the header of the players file.
var PlayerColumns = []string{
	"id", "name", "url", "position", "height_m", "weight_lb", "weight_kg",
	"birthdate", "nba_debut", "year_from", "year_to",
}

// CSVSink buffers players for the run and writes both files on Flush.
// The stats header is the union of all seen columns, so nothing is written
// before the run ends.
type CSVSink struct {
	dir     string
	logger  *zap.Logger
	mu      sync.Mutex
	players []*scrape.Player
}

// NewCSVSink writes into dir, created on flush if missing.
func NewCSVSink(dir string, logger *zap.Logger) *CSVSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSink{dir: dir, logger: logger.Named("export")}
}

// Save implements scrape.Sink.
func (s *CSVSink) Save(_ context.Context, p *scrape.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = append(s.players, p)
	return nil
}

// Flush writes players.csv and player_stats.csv.
func (s *CSVSink) Flush(_ context.Context) error {
	s.mu.Lock()
	players := append([]*scrape.Player(nil), s.players...)
	s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeFile(filepath.Join(s.dir, PlayersFile), func(w io.Writer) error {
		return WritePlayers(w, players)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(s.dir, StatsFile), func(w io.Writer) error {
		return WriteStats(w, players)
	}); err != nil {
		return err
	}

	s.logger.Info("csv written", zap.String("dir", s.dir), zap.Int("players", len(players)))
	return nil
}

// writeFile writes to a temp file and renames it over path.
func writeFile(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// WritePlayers writes one row per player under PlayerColumns.
func WritePlayers(w io.Writer, players []*scrape.Player) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PlayerColumns); err != nil {
		return err
	}
	for _, p := range players {
		record := []string{
			p.ID,
			p.Name,
			p.URL,
			strings.Join(p.Positions, positionSeparator),
			formatFloat(p.HeightMeters.Float64, p.HeightMeters.Valid),
			formatFloat(p.WeightPounds.Float64, p.WeightPounds.Valid),
			formatFloat(p.WeightKilograms.Float64, p.WeightKilograms.Valid),
			formatDate(p.BirthDate.Time, p.BirthDate.Valid),
			formatDate(p.DebutDate.Time, p.DebutDate.Valid),
			strconv.Itoa(p.YearFrom),
			formatYear(p.YearTo),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// StatColumns returns the union of stat columns in first-seen order.
func StatColumns(players []*scrape.Player) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, p := range players {
		for _, row := range p.Stats {
			for _, c := range row.Columns {
				if !seen[c] {
					seen[c] = true
					columns = append(columns, c)
				}
			}
		}
	}
	return columns
}

// WriteStats writes one row per player season, prefixed with the player id
// and season. Columns a row lacks are left empty.
func WriteStats(w io.Writer, players []*scrape.Player) error {
	columns := StatColumns(players)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"id", "season"}, columns...)); err != nil {
		return err
	}
	for _, p := range players {
		for _, row := range p.Stats {
			record := make([]string, 0, len(columns)+2)
			record = append(record, p.ID, row.Season)
			for _, c := range columns {
				if v, ok := row.Get(c); ok {
					record = append(record, v.Text())
				} else {
					record = append(record, "")
				}
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64, valid bool) string {
	if !valid {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(t time.Time, valid bool) string {
	if !valid {
		return ""
	}
	return t.Format(dateLayout)
}

func formatYear(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}
