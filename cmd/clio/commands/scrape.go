package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/clio/internal/cache"
	"github.com/fortuna/clio/internal/export"
	"github.com/fortuna/clio/internal/ingest/bbref"
	"github.com/fortuna/clio/internal/ingest/fetch"
	"github.com/fortuna/clio/internal/publisher"
	"github.com/fortuna/clio/internal/scrape"
	"github.com/fortuna/clio/internal/store"
	"github.com/fortuna/clio/internal/store/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scrapeFlags struct {
	letters  []string
	cutoff   int
	limit    int
	dryRun   bool
	out      string
	headless bool
	cache    bool
	publish  bool
	db       bool
}

func init() {
	f := scrapeCmd.Flags()
	f.StringSliceVar(&scrapeFlags.letters, "letters", nil, "Index letters to scrape (default: CLIO_LETTERS or a-z).")
	f.IntVar(&scrapeFlags.cutoff, "cutoff", scrape.DefaultCutoffYear, "Skip players whose first season is before this year.")
	f.IntVar(&scrapeFlags.limit, "limit", 0, "Maximum players per letter, 0 for no limit.")
	f.BoolVar(&scrapeFlags.dryRun, "dry-run", false, "Read the index pages only.")
	f.StringVar(&scrapeFlags.out, "out", "", "Directory for players.csv and player_stats.csv.")
	f.BoolVar(&scrapeFlags.headless, "headless", false, "Render pages in headless Chrome.")
	f.BoolVar(&scrapeFlags.cache, "cache", false, "Cache fetched pages in Redis (REDIS_URL).")
	f.BoolVar(&scrapeFlags.publish, "publish", false, "Publish scraped players to Redis streams (REDIS_URL).")
	f.BoolVar(&scrapeFlags.db, "db", false, "Upsert scraped players into Postgres (ATLAS_DSN).")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--letters a,b] [--cutoff 1980] [--limit n] [--out dir]",
	Short: "Scrapes the player index and writes normalized records.",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyScrapeFlags(cmd)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var closers []func() error
		defer func() {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}()

		var fetchOpts []fetch.Option
		if scrapeFlags.cache {
			pageCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.PageCacheTTL)
			if err != nil {
				return fmt.Errorf("connect redis cache: %w", err)
			}
			closers = append(closers, pageCache.Close)
			fetchOpts = append(fetchOpts, fetch.WithCache(pageCache))
		}

		source, err := newSource(fetchOpts)
		if err != nil {
			return err
		}
		closers = append(closers, source.Close)

		sinks := scrape.MultiSink{export.NewCSVSink(cfg.Scrape.OutputDir, logger)}

		var runEvents *publisher.RedisPublisher
		if scrapeFlags.publish {
			runEvents, err = publisher.NewRedisPublisher(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("connect redis publisher: %w", err)
			}
			closers = append(closers, runEvents.Close)
			sinks = append(sinks, runEvents)
		}

		if scrapeFlags.db {
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			closers = append(closers, db.Close)
			sinks = append(sinks, repository.NewPlayerRepository(db))
		}

		pipeline := scrape.NewPipeline(source, nil, logger)
		runner := scrape.NewRunner(source, pipeline, sinks, cfg.Scrape.BaseURL, logger)

		spec := cfg.RunSpec()
		spec.DryRun = scrapeFlags.dryRun

		started := time.Now()
		summary, err := runner.Run(ctx, spec, &consoleReporter{logger: logger})
		if runEvents != nil {
			publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if perr := runEvents.PublishRunEvent(publishCtx, "run_complete", summary); perr != nil {
				logger.Warn("publish run summary failed", zap.Error(perr))
			}
			cancel()
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warn("scrape interrupted",
					zap.Int("processed", summary.Processed),
					zap.String("out", cfg.Scrape.OutputDir))
			}
			return err
		}

		logger.Info("scrape finished",
			zap.Duration("elapsed", time.Since(started)),
			zap.String("out", cfg.Scrape.OutputDir))
		return nil
	},
}

// applyScrapeFlags lets explicit flags override the environment.
func applyScrapeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("letters") {
		cfg.Scrape.Letters = scrapeFlags.letters
	}
	if flags.Changed("cutoff") {
		cfg.Scrape.CutoffYear = scrapeFlags.cutoff
	}
	if flags.Changed("limit") {
		cfg.Scrape.PerLetterLimit = scrapeFlags.limit
	}
	if flags.Changed("out") {
		cfg.Scrape.OutputDir = scrapeFlags.out
	}
	if flags.Changed("headless") {
		cfg.Fetch.Headless = scrapeFlags.headless
	}
}

func newSource(opts []fetch.Option) (*fetch.Fetcher, error) {
	if cfg.Fetch.Headless {
		f, err := fetch.NewBrowser(cfg.FetchOptions(), logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("start headless browser: %w", err)
		}
		return f, nil
	}
	return fetch.New(cfg.FetchOptions(), logger, opts...), nil
}

func openDatabase(ctx context.Context) (*store.Database, error) {
	if cfg.Store.AtlasDSN == "" {
		return nil, fmt.Errorf("ATLAS_DSN is required")
	}
	db, err := store.NewDatabase(cfg.Store.AtlasDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// consoleReporter logs runner callbacks.
type consoleReporter struct {
	logger *zap.Logger
}

func (r *consoleReporter) OnRunStart(spec scrape.RunSpec) {
	r.logger.Info("scraping", zap.Strings("letters", spec.Letters), zap.Int("cutoff_year", spec.CutoffYear))
}

func (r *consoleReporter) OnLetterStart(letter string, index int, total int) {
	r.logger.Info("letter", zap.String("letter", letter), zap.Int("index", index+1), zap.Int("total", total))
}

func (r *consoleReporter) OnEntityScraped(p *scrape.Player) {
	r.logger.Info("scraped",
		zap.String("player_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("seasons", len(p.Stats)))
}

func (r *consoleReporter) OnEntitySkipped(entry bbref.IndexEntry, reason string) {
	r.logger.Debug("skipped", zap.String("player_id", entry.ID), zap.String("reason", reason))
}

func (r *consoleReporter) OnEntityFailed(entry bbref.IndexEntry, err error) {
	r.logger.Warn("failed", zap.String("player_id", entry.ID), zap.String("url", entry.URL), zap.Error(err))
}

func (r *consoleReporter) OnProgress(message string, current int, total int) {
	r.logger.Info(message, zap.Int("current", current), zap.Int("total", total))
}

func (r *consoleReporter) OnRunComplete(summary scrape.Summary) {
	r.logger.Info("summary",
		zap.Int("letters", summary.Letters),
		zap.Int("letters_failed", summary.LettersFailed),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("stat_rows", summary.StatRows))
}
