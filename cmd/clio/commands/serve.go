package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/clio/internal/api/rest"
	"github.com/fortuna/clio/internal/api/websocket"
	"github.com/fortuna/clio/internal/cache"
	"github.com/fortuna/clio/internal/ingest/fetch"
	"github.com/fortuna/clio/internal/jobs"
	"github.com/fortuna/clio/internal/publisher"
	"github.com/fortuna/clio/internal/scheduler"
	"github.com/fortuna/clio/internal/scrape"
	"github.com/fortuna/clio/internal/store/repository"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	connectAttempts = 30
	connectDelay    = 2 * time.Second
	shutdownTimeout = 15 * time.Second
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the REST API, websocket progress feed and scrape job worker.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireServices(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("starting", zap.String("version", serviceVersion))

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("connected to database, migrations applied")

		var redisCache *cache.RedisCache
		err = connectWithRetry(ctx, "redis", func() error {
			var err error
			redisCache, err = cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.PageCacheTTL)
			return err
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisCache.Close()
		logger.Info("connected to redis")

		source, err := newSource([]fetch.Option{fetch.WithCache(redisCache)})
		if err != nil {
			return err
		}
		defer source.Close()

		players := repository.NewPlayerRepository(db)
		stats := repository.NewStatsRepository(db)
		streams := publisher.NewRedisStreamPublisher(redisCache.Client())

		pipeline := scrape.NewPipeline(source, nil, logger)
		runner := scrape.NewRunner(source, pipeline, scrape.MultiSink{players, streams}, cfg.Scrape.BaseURL, logger)

		hub := websocket.NewHub(logger)
		jobService := jobs.NewService(jobs.NewRepository(db), runner, cfg.RunSpec(), logger, hub, runEventSink(streams))
		jobService.Start()
		logger.Info("job worker started")

		handler := rest.NewHandler(players, stats, map[string]rest.HealthChecker{
			"database": db,
			"redis":    redisCache,
		})
		restServer := rest.NewServer(cfg.Server.RESTPort, handler, jobService, logger)
		wsServer := websocket.NewServer(cfg.Server.WSPort, hub, logger)

		p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
		p.Go(func(ctx context.Context) error {
			return restServer.Start()
		})
		p.Go(func(ctx context.Context) error {
			return wsServer.Start()
		})
		if cfg.Schedule.Enabled {
			daily := scheduler.New(jobService, cfg.Schedule.Hour, logger)
			p.Go(func(ctx context.Context) error {
				daily.Run(ctx)
				return nil
			})
		}
		p.Go(func(ctx context.Context) error {
			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := jobService.Shutdown(shutdownCtx); err != nil {
				logger.Warn("job worker shutdown", zap.Error(err))
			}
			if err := restServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("REST server shutdown", zap.Error(err))
			}
			if err := wsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("websocket server shutdown", zap.Error(err))
			}
			return nil
		})

		logger.Info("started",
			zap.String("rest", fmt.Sprintf("http://0.0.0.0:%s", cfg.Server.RESTPort)),
			zap.String("websocket", fmt.Sprintf("ws://0.0.0.0:%s/ws/scrape", cfg.Server.WSPort)))

		if err := p.Wait(); err != nil {
			return err
		}
		logger.Info("stopped")
		return nil
	},
}

// runEventSink forwards job lifecycle events to the run stream.
func runEventSink(streams *publisher.RedisPublisher) jobs.EventSink {
	return jobs.EventSinkFunc(func(e jobs.Event) {
		if e.Type != jobs.EventRunComplete && e.Type != jobs.EventJobFailed && e.Type != jobs.EventJobQueued {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := streams.PublishRunEvent(ctx, e.Type, e); err != nil {
			logger.Warn("publish run event failed", zap.String("type", e.Type), zap.Error(err))
		}
	})
}

func connectWithRetry(ctx context.Context, name string, connect func() error) error {
	var err error
	for i := 0; i < connectAttempts; i++ {
		if err = connect(); err == nil {
			return nil
		}
		if i == connectAttempts-1 {
			break
		}
		logger.Warn("connection attempt failed",
			zap.String("target", name),
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", connectAttempts),
			zap.Duration("retry_in", connectDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	return err
}
