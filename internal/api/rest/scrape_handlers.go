package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fortuna/clio/internal/jobs"
)

// JobService is the part of jobs.Service the API drives.
type JobService interface {
	Enqueue(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	GetStatus(ctx context.Context) (*jobs.StatusSummary, error)
}

// ScrapeHandler proxies API calls to the job service.
type ScrapeHandler struct {
	service JobService
}

// NewScrapeHandler wires the REST layer to the job service.
func NewScrapeHandler(service JobService) *ScrapeHandler {
	return &ScrapeHandler{service: service}
}

type apiScrapeRequest struct {
	Letters        []string `json:"letters"`
	Letter         string   `json:"letter"`
	CutoffYear     *int     `json:"cutoff_year"`
	PerLetterLimit *int     `json:"per_letter_limit"`
	DryRun         bool     `json:"dry_run"`
}

// HandleScrapeRequest handles POST /api/v1/scrape. An empty body queues a
// run with the configured defaults.
func (h *ScrapeHandler) HandleScrapeRequest(w http.ResponseWriter, r *http.Request) {
	var req apiScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	jobReq := jobs.Request{
		CutoffYear:     req.CutoffYear,
		PerLetterLimit: req.PerLetterLimit,
		DryRun:         req.DryRun,
	}
	jobReq.Letters = append(jobReq.Letters, req.Letters...)
	if req.Letter != "" {
		jobReq.Letters = append(jobReq.Letters, req.Letter)
	}

	job, err := h.service.Enqueue(r.Context(), jobReq)
	if errors.Is(err, jobs.ErrInvalidRequest) {
		respondError(w, http.StatusBadRequest, "Invalid scrape request", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue scrape job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job": jobPayload(job),
	})
}

// HandleScrapeStatus handles GET /api/v1/scrape/status
func (h *ScrapeHandler) HandleScrapeStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

func buildStatusPayload(summary *jobs.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active jobs",
		"history": []map[string]interface{}{},
	}

	if summary.ActiveJob != nil {
		response["status"] = summary.ActiveJob.Status
		if summary.ActiveJob.StatusMessage.Valid {
			response["message"] = summary.ActiveJob.StatusMessage.String
		}
		response["active_job"] = jobPayload(summary.ActiveJob)
	}

	history := make([]map[string]interface{}, 0, len(summary.History))
	for _, job := range summary.History {
		history = append(history, jobPayload(job))
	}

	response["history"] = history
	return response
}

func jobPayload(job *jobs.Job) map[string]interface{} {
	if job == nil {
		return nil
	}

	payload := map[string]interface{}{
		"job_id":           job.JobID,
		"letters":          []string(job.Letters),
		"cutoff_year":      job.CutoffYear,
		"per_letter_limit": job.PerLetterLimit,
		"dry_run":          job.DryRun,
		"status":           job.Status,
		"progress_current": job.ProgressCurrent,
		"progress_total":   job.ProgressTotal,
		"processed":        job.Processed,
		"skipped":          job.Skipped,
		"failed":           job.Failed,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}

	if job.StatusMessage.Valid {
		payload["status_message"] = job.StatusMessage.String
	}
	if job.StartedAt.Valid {
		payload["started_at"] = job.StartedAt.Time
	}
	if job.CompletedAt.Valid {
		payload["completed_at"] = job.CompletedAt.Time
	}
	if job.LastError.Valid {
		payload["last_error"] = job.LastError.String
	}

	return payload
}
