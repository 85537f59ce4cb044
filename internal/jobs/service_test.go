package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/clio/internal/ingest/bbref"
	"github.com/fortuna/clio/internal/scrape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ JobStore = (*Repository)(nil)

type memoryStore struct {
	mu        sync.Mutex
	jobs      []*Job
	events    []string
	createErr error
}

func (m *memoryStore) find(id string) *Job {
	for _, j := range m.jobs {
		if j.JobID == id {
			return j
		}
	}
	return nil
}

func (m *memoryStore) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	stored := job.Copy()
	stored.CreatedAt = time.Now()
	m.jobs = append(m.jobs, stored)
	return stored.Copy(), nil
}

func (m *memoryStore) UpdateStatus(ctx context.Context, jobID string, status JobStatus, message string, lastErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(jobID)
	j.Status = status
	j.StatusMessage.String, j.StatusMessage.Valid = message, true
	if lastErr != nil {
		j.LastError.String, j.LastError.Valid = lastErr.Error(), true
	}
	return nil
}

func (m *memoryStore) UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(jobID)
	j.ProgressCurrent, j.ProgressTotal = current, total
	return nil
}

func (m *memoryStore) UpdateCounts(ctx context.Context, jobID string, summary scrape.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(jobID)
	j.Processed, j.Skipped, j.Failed = summary.Processed, summary.Skipped, summary.Failed
	return nil
}

func (m *memoryStore) AppendEvent(ctx context.Context, jobID, eventType, message, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	return nil
}

func (m *memoryStore) ResetStuckJobs(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == JobStatusRunning {
			j.Status = JobStatusQueued
		}
	}
	return nil
}

func (m *memoryStore) MarkNextJobRunning(ctx context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == JobStatusQueued {
			j.Status = JobStatusRunning
			return j.Copy(), nil
		}
	}
	return nil, nil
}

func (m *memoryStore) GetActiveJob(ctx context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == JobStatusRunning {
			return j.Copy(), nil
		}
	}
	return nil, nil
}

func (m *memoryStore) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for i := len(m.jobs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.jobs[i].Copy())
	}
	return out, nil
}

func (m *memoryStore) job(id string) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.find(id)
}

// scriptedRunner drives the reporter through a fixed run.
type scriptedRunner struct {
	spec scrape.RunSpec
	err  error
}

func (r *scriptedRunner) Run(ctx context.Context, spec scrape.RunSpec, reporter scrape.Reporter) (scrape.Summary, error) {
	r.spec = spec
	reporter.OnRunStart(spec)
	reporter.OnLetterStart(spec.Letters[0], 0, len(spec.Letters))
	reporter.OnEntityScraped(&scrape.Player{ID: "abdulka01", Name: "Kareem Abdul-Jabbar"})
	reporter.OnEntitySkipped(bbref.IndexEntry{ID: "abdelal01"}, "before cutoff")
	reporter.OnEntityFailed(bbref.IndexEntry{ID: "zzz01"}, errors.New("timeout"))
	reporter.OnProgress("Processed letter a", 1, len(spec.Letters))
	if r.err != nil {
		return scrape.Summary{Letters: 1, Processed: 1}, r.err
	}
	summary := scrape.Summary{Letters: 1, Processed: 1, Skipped: 1, Failed: 1}
	reporter.OnRunComplete(summary)
	return summary, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestEnqueueAppliesDefaults(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, &scriptedRunner{}, scrape.RunSpec{Letters: []string{"a", "b"}, CutoffYear: 1980}, nil)

	job, err := svc.Enqueue(context.Background(), Request{})
	require.NoError(t, err)

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, []string{"a", "b"}, []string(job.Letters))
	assert.Equal(t, 1980, job.CutoffYear)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, 2, job.ProgressTotal)
	assert.Equal(t, []string{EventJobQueued}, store.events)
}

func TestEnqueueOverrides(t *testing.T) {
	svc := NewService(&memoryStore{}, &scriptedRunner{}, scrape.RunSpec{CutoffYear: 1980}, nil)

	job, err := svc.Enqueue(context.Background(), Request{
		Letters:        []string{"Z"},
		CutoffYear:     intPtr(1950),
		PerLetterLimit: intPtr(5),
		DryRun:         true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"z"}, []string(job.Letters))
	assert.Equal(t, 1950, job.CutoffYear)
	assert.Equal(t, 5, job.PerLetterLimit)
	assert.True(t, job.DryRun)
}

func TestEnqueueRejectsInvalidRequests(t *testing.T) {
	svc := NewService(&memoryStore{}, &scriptedRunner{}, scrape.RunSpec{}, nil)

	_, err := svc.Enqueue(context.Background(), Request{Letters: []string{"ab"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Enqueue(context.Background(), Request{Letters: []string{"a"}, PerLetterLimit: intPtr(-1)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEnqueueStoreFailureIsNotInvalidRequest(t *testing.T) {
	dbDown := errors.New("connection refused")
	svc := NewService(&memoryStore{createErr: dbDown}, &scriptedRunner{}, scrape.RunSpec{}, nil)

	_, err := svc.Enqueue(context.Background(), Request{Letters: []string{"a"}})

	assert.ErrorIs(t, err, dbDown)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
}

func TestRunOnceCompletesJob(t *testing.T) {
	store := &memoryStore{}
	runner := &scriptedRunner{}
	events := &eventLog{}
	svc := NewService(store, runner, scrape.RunSpec{CutoffYear: 1980}, nil, events)

	job, err := svc.Enqueue(context.Background(), Request{Letters: []string{"a"}})
	require.NoError(t, err)

	found, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, found)

	assert.Equal(t, []string{"a"}, runner.spec.Letters)
	assert.Equal(t, 1980, runner.spec.CutoffYear)

	stored := store.job(job.JobID)
	assert.Equal(t, JobStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.Processed)
	assert.Equal(t, 1, stored.Skipped)
	assert.Equal(t, 1, stored.Failed)
	assert.Equal(t, 1, stored.ProgressCurrent)

	assert.Equal(t, []string{
		EventJobQueued,
		EventRunStart,
		EventLetterStart,
		EventPlayerScraped,
		EventPlayerSkipped,
		EventPlayerFailed,
		EventProgress,
		EventRunComplete,
	}, events.types())
	assert.Contains(t, store.events, EventPlayerFailed)

	found, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunOnceMarksFailedAndCancelled(t *testing.T) {
	store := &memoryStore{}
	runner := &scriptedRunner{err: errors.New("flush sink: disk full")}
	events := &eventLog{}
	svc := NewService(store, runner, scrape.RunSpec{}, nil, events)

	job, err := svc.Enqueue(context.Background(), Request{Letters: []string{"a"}})
	require.NoError(t, err)
	_, err = svc.RunOnce(context.Background())
	require.NoError(t, err)

	stored := store.job(job.JobID)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, "flush sink: disk full", stored.LastError.String)
	assert.Contains(t, events.types(), EventJobFailed)

	runner.err = context.Canceled
	job, err = svc.Enqueue(context.Background(), Request{Letters: []string{"b"}})
	require.NoError(t, err)
	_, err = svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, JobStatusCancelled, store.job(job.JobID).Status)
}

func TestGetStatus(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, &scriptedRunner{}, scrape.RunSpec{}, nil)

	first, err := svc.Enqueue(context.Background(), Request{Letters: []string{"a"}})
	require.NoError(t, err)
	_, err = svc.Enqueue(context.Background(), Request{Letters: []string{"b"}})
	require.NoError(t, err)
	_, err = store.MarkNextJobRunning(context.Background())
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)

	require.NotNil(t, status.ActiveJob)
	assert.Equal(t, first.JobID, status.ActiveJob.JobID)
	assert.Len(t, status.History, 2)
}

func TestStartAndShutdown(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, &scriptedRunner{}, scrape.RunSpec{}, nil)
	svc.pollInterval = 10 * time.Millisecond

	job, err := svc.Enqueue(context.Background(), Request{Letters: []string{"a"}})
	require.NoError(t, err)

	svc.Start()
	assert.Eventually(t, func() bool {
		return store.job(job.JobID).Status == JobStatusCompleted
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, svc.Shutdown(ctx))
}
