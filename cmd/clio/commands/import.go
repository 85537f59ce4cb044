package commands

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fortuna/clio/internal/export"
	"github.com/fortuna/clio/internal/store/repository"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importFlags struct {
	dir     string
	workers int
}

func init() {
	importCmd.Flags().StringVar(&importFlags.dir, "dir", "", "Directory holding players.csv and player_stats.csv (default: CLIO_OUTPUT_DIR).")
	importCmd.Flags().IntVar(&importFlags.workers, "workers", 4, "Concurrent database writers.")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import [--dir <path/to/csv>]",
	Short: "Loads a previous CSV export into Postgres.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := importFlags.dir
		if dir == "" {
			dir = cfg.Scrape.OutputDir
		}
		if importFlags.workers < 1 {
			return fmt.Errorf("--workers must be at least 1")
		}

		players, err := export.Load(dir)
		if err != nil {
			return fmt.Errorf("load export: %w", err)
		}

		ctx := cmd.Context()
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := repository.NewPlayerRepository(db)

		var saved atomic.Int64
		p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(importFlags.workers)
		for _, player := range players {
			player := player
			p.Go(func(ctx context.Context) error {
				if err := repo.Save(ctx, player); err != nil {
					return err
				}
				saved.Add(1)
				return nil
			})
		}
		err = p.Wait()

		logger.Info("import finished",
			zap.String("dir", dir),
			zap.Int("players", len(players)),
			zap.Int64("saved", saved.Load()))
		return err
	},
}
