package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fortuna/clio/internal/ingest/bbref"
	"github.com/fortuna/clio/internal/ingest/fetch"
	"go.uber.org/zap"
)

const (
	// LetterPlaceholder is substituted in the index URL template.
	LetterPlaceholder = "{letter}"
	// DefaultIndexURL lists players by the first letter of their last name.
	DefaultIndexURL = "https://www.basketball-reference.com/players/{letter}/"
	// DefaultCutoffYear skips players whose first season predates it.
	DefaultCutoffYear = 1980

	flushTimeout = 30 * time.Second
)

// DefaultLetters covers the whole index.
var DefaultLetters = strings.Split("abcdefghijklmnopqrstuvwxyz", "")

// Runner drives the pipeline over the letter index pages, one entity at a time.
type Runner struct {
	source   fetch.Source
	pipeline *Pipeline
	sink     Sink
	indexURL string
	logger   *zap.Logger
}

// NewRunner constructs a runner. An empty indexURL uses DefaultIndexURL and a
// nil sink discards records.
func NewRunner(source fetch.Source, pipeline *Pipeline, sink Sink, indexURL string, logger *zap.Logger) *Runner {
	if indexURL == "" {
		indexURL = DefaultIndexURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pipeline == nil {
		pipeline = NewPipeline(source, nil, logger)
	}
	return &Runner{
		source:   source,
		pipeline: pipeline,
		sink:     sink,
		indexURL: indexURL,
		logger:   logger.Named("runner"),
	}
}

// NormalizeLetters lowercases and validates letters. Empty input means all letters.
func NormalizeLetters(letters []string) ([]string, error) {
	if len(letters) == 0 {
		return DefaultLetters, nil
	}
	out := make([]string, 0, len(letters))
	for _, l := range letters {
		l = strings.ToLower(strings.TrimSpace(l))
		if len(l) != 1 || l[0] < 'a' || l[0] > 'z' {
			return nil, fmt.Errorf("invalid letter %q", l)
		}
		out = append(out, l)
	}
	return out, nil
}

// IndexURL returns the index page URL for a letter.
func (r *Runner) IndexURL(letter string) string {
	return strings.ReplaceAll(r.indexURL, LetterPlaceholder, letter)
}

// Run scrapes the requested letters, reporting progress via the Reporter if provided.
// Entity failures are counted and the run continues; only cancellation or a
// sink flush failure stops it with an error. Records saved before a
// cancellation are still flushed.
func (r *Runner) Run(ctx context.Context, spec RunSpec, reporter Reporter) (Summary, error) {
	var summary Summary

	letters, err := NormalizeLetters(spec.Letters)
	if err != nil {
		return summary, err
	}
	spec.Letters = letters

	if reporter != nil {
		reporter.OnRunStart(spec)
	}
	r.logger.Info("run started",
		zap.Strings("letters", letters),
		zap.Int("cutoff_year", spec.CutoffYear),
		zap.Int("per_letter_limit", spec.PerLetterLimit),
		zap.Bool("dry_run", spec.DryRun))

	runErr := r.walkLetters(ctx, spec, reporter, &summary)

	if err := r.flush(ctx, spec); err != nil {
		return summary, errors.Join(runErr, fmt.Errorf("flush sink: %w", err))
	}
	if runErr != nil {
		r.logger.Warn("run interrupted",
			zap.Int("processed", summary.Processed),
			zap.Error(runErr))
		return summary, runErr
	}

	r.logger.Info("run complete",
		zap.Int("letters", summary.Letters),
		zap.Int("letters_failed", summary.LettersFailed),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("stat_rows", summary.StatRows))
	if reporter != nil {
		reporter.OnRunComplete(summary)
	}
	return summary, nil
}

// walkLetters walks the index pages. It returns an error only on cancellation.
func (r *Runner) walkLetters(ctx context.Context, spec RunSpec, reporter Reporter, summary *Summary) error {
	total := len(spec.Letters)
	for idx, letter := range spec.Letters {
		if err := ctx.Err(); err != nil {
			return err
		}

		if reporter != nil {
			reporter.OnLetterStart(letter, idx, total)
		}
		summary.Letters++

		entries, err := r.index(ctx, letter)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			summary.LettersFailed++
			r.logger.Error("index page failed", zap.String("letter", letter), zap.Error(err))
			if reporter != nil {
				reporter.OnProgress(fmt.Sprintf("Index %s failed: %v", letter, err), idx+1, total)
			}
			continue
		}

		if spec.PerLetterLimit > 0 && len(entries) > spec.PerLetterLimit {
			entries = entries[:spec.PerLetterLimit]
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.entity(ctx, spec, entry, reporter, summary); err != nil {
				return err
			}
		}

		if reporter != nil {
			reporter.OnProgress(fmt.Sprintf("Processed letter %s", letter), idx+1, total)
		}
	}
	return nil
}

// flush writes out buffering sinks. A cancelled run gets a fresh deadline so
// partial results survive.
func (r *Runner) flush(ctx context.Context, spec RunSpec) error {
	f, ok := r.sink.(Flusher)
	if !ok || spec.DryRun {
		return nil
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
	}
	return f.Flush(ctx)
}

// entity processes one index entry. It returns an error only on cancellation.
func (r *Runner) entity(ctx context.Context, spec RunSpec, entry bbref.IndexEntry, reporter Reporter, summary *Summary) error {
	if entry.YearFrom < spec.CutoffYear {
		summary.Skipped++
		if reporter != nil {
			reporter.OnEntitySkipped(entry, fmt.Sprintf("first season %d before %d", entry.YearFrom, spec.CutoffYear))
		}
		return nil
	}
	if spec.DryRun {
		summary.Skipped++
		if reporter != nil {
			reporter.OnEntitySkipped(entry, "dry run")
		}
		return nil
	}

	player, err := r.pipeline.Scrape(ctx, entry)
	if err == nil && r.sink != nil {
		err = r.sink.Save(ctx, player)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		summary.Failed++
		r.logger.Warn("entity failed",
			zap.String("player_id", entry.ID),
			zap.String("url", entry.URL),
			zap.Error(err))
		if reporter != nil {
			reporter.OnEntityFailed(entry, err)
		}
		return nil
	}

	summary.Processed++
	summary.StatRows += len(player.Stats)
	if reporter != nil {
		reporter.OnEntityScraped(player)
	}
	return nil
}

func (r *Runner) index(ctx context.Context, letter string) ([]bbref.IndexEntry, error) {
	pageURL := r.IndexURL(letter)
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse index url %q: %w", pageURL, err)
	}

	res := r.source.Fetch(ctx, pageURL)
	if !res.OK() {
		return nil, res.Failure()
	}

	doc, err := bbref.ParseHTML(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse index %s: %w", pageURL, err)
	}
	entries, skipped := bbref.ParseIndex(doc, base)
	if skipped > 0 {
		r.logger.Debug("malformed index rows", zap.String("letter", letter), zap.Int("skipped", skipped))
	}
	return entries, nil
}
