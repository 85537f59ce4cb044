// Package jobs queues scrape runs in Postgres and executes them one at a time
// in a background worker.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortuna/clio/internal/ingest/bbref"
	"github.com/fortuna/clio/internal/scrape"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner executes a scrape run. *scrape.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, spec scrape.RunSpec, reporter scrape.Reporter) (scrape.Summary, error)
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo     JobStore
	runner   Runner
	defaults scrape.RunSpec
	sinks    []EventSink

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a Service. Call Start to launch the worker. defaults
// fills the fields a Request leaves unset.
func NewService(repo JobStore, runner Runner, defaults scrape.RunSpec, logger *zap.Logger, sinks ...EventSink) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:         repo,
		runner:       runner,
		defaults:     defaults,
		sinks:        sinks,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.Named("jobs"),
		now:          time.Now,
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.logger.Warn("failed to reset jobs", zap.Error(err))
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops workers and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue validates the request and stores a queued job.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	letters := req.Letters
	if len(letters) == 0 {
		letters = s.defaults.Letters
	}
	letters, err := scrape.NormalizeLetters(letters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	cutoff := s.defaults.CutoffYear
	if req.CutoffYear != nil {
		cutoff = *req.CutoffYear
	}

	limit := s.defaults.PerLetterLimit
	if req.PerLetterLimit != nil {
		limit = *req.PerLetterLimit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: per_letter_limit must not be negative", ErrInvalidRequest)
	}

	job := &Job{
		JobID:          uuid.New().String(),
		Letters:        letters,
		CutoffYear:     cutoff,
		PerLetterLimit: limit,
		DryRun:         req.DryRun,
		Status:         JobStatusQueued,
		StatusMessage:  sql.NullString{String: "Queued", Valid: true},
		ProgressTotal:  len(letters),
	}

	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	_ = s.repo.AppendEvent(ctx, stored.JobID, EventJobQueued, "Job queued", "")
	s.emit(Event{Type: EventJobQueued, JobID: stored.JobID, Total: stored.ProgressTotal})

	return stored, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

// RunOnce claims and executes the next queued job. It reports whether a job
// was found.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	job, err := s.repo.MarkNextJobRunning(ctx)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	s.executeJob(ctx, job)
	return true, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			found, err := s.RunOnce(s.ctx)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Error("claim job error", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if !found {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					continue
				}
			}
		}
	}
}

func (s *Service) executeJob(ctx context.Context, job *Job) {
	logger := s.logger.With(zap.String("job_id", job.JobID))
	logger.Info("job started", zap.Strings("letters", job.Letters))

	reporter := &jobReporter{
		ctx:     ctx,
		repo:    s.repo,
		service: s,
		jobID:   job.JobID,
		total:   len(job.Letters),
	}

	summary, err := s.runner.Run(ctx, job.Spec(), reporter)

	// Persist the final state even when the run context is gone.
	finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = s.repo.UpdateCounts(finalCtx, job.JobID, summary)

	switch {
	case err == nil:
		_ = s.repo.UpdateStatus(finalCtx, job.JobID, JobStatusCompleted, "Job completed", nil)
		logger.Info("job completed",
			zap.Int("processed", summary.Processed),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed))
	case errors.Is(err, context.Canceled):
		_ = s.repo.UpdateStatus(finalCtx, job.JobID, JobStatusCancelled, "Job cancelled", err)
		logger.Warn("job cancelled")
	default:
		_ = s.repo.UpdateStatus(finalCtx, job.JobID, JobStatusFailed, "Job failed", err)
		_ = s.repo.AppendEvent(finalCtx, job.JobID, EventJobFailed, err.Error(), "")
		s.emit(Event{Type: EventJobFailed, JobID: job.JobID, Message: err.Error()})
		logger.Error("job failed", zap.Error(err))
	}
}

func (s *Service) emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	for _, sink := range s.sinks {
		if sink != nil {
			sink.Publish(e)
		}
	}
}

// jobReporter persists runner callbacks against a job row and forwards them
// to the event sinks.
type jobReporter struct {
	ctx     context.Context
	repo    JobStore
	service *Service
	jobID   string
	total   int
	letter  string
	current int
	counts  scrape.Summary
}

func (r *jobReporter) OnRunStart(spec scrape.RunSpec) {
	r.total = len(spec.Letters)
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, 0, r.total, "Job starting")
	r.service.emit(Event{Type: EventRunStart, JobID: r.jobID, Total: r.total})
}

func (r *jobReporter) OnLetterStart(letter string, index int, total int) {
	r.letter = letter
	r.current = index
	msg := fmt.Sprintf("Processing letter %s (%d/%d)", letter, index+1, total)
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, index, valueOr(total, r.total), msg)
	r.service.emit(Event{Type: EventLetterStart, JobID: r.jobID, Letter: letter, Message: msg, Current: index, Total: valueOr(total, r.total)})
}

func (r *jobReporter) OnEntityScraped(p *scrape.Player) {
	r.counts.Processed++
	r.counts.StatRows += len(p.Stats)
	_ = r.repo.AppendEvent(r.ctx, r.jobID, EventPlayerScraped, fmt.Sprintf("Player %s scraped", p.Name), p.ID)
	r.service.emit(Event{Type: EventPlayerScraped, JobID: r.jobID, Letter: r.letter, PlayerID: p.ID, Message: p.Name, Current: r.current, Total: r.total})
}

func (r *jobReporter) OnEntitySkipped(entry bbref.IndexEntry, reason string) {
	r.counts.Skipped++
	r.service.emit(Event{Type: EventPlayerSkipped, JobID: r.jobID, Letter: r.letter, PlayerID: entry.ID, Message: reason, Current: r.current, Total: r.total})
}

func (r *jobReporter) OnEntityFailed(entry bbref.IndexEntry, err error) {
	r.counts.Failed++
	id := entry.ID
	_ = r.repo.AppendEvent(r.ctx, r.jobID, EventPlayerFailed, err.Error(), id)
	r.service.emit(Event{Type: EventPlayerFailed, JobID: r.jobID, Letter: r.letter, PlayerID: id, Message: err.Error(), Current: r.current, Total: r.total})
}

func (r *jobReporter) OnProgress(message string, current int, total int) {
	r.current = current
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, current, valueOr(total, r.total), message)
	_ = r.repo.UpdateCounts(r.ctx, r.jobID, r.counts)
	r.service.emit(Event{Type: EventProgress, JobID: r.jobID, Letter: r.letter, Message: message, Current: current, Total: valueOr(total, r.total)})
}

func (r *jobReporter) OnRunComplete(summary scrape.Summary) {
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, r.total, r.total, "Job complete")
	r.service.emit(Event{Type: EventRunComplete, JobID: r.jobID, Current: r.total, Total: r.total, Summary: &summary})
}

func valueOr(val, fallback int) int {
	if val > 0 {
		return val
	}
	return fallback
}
