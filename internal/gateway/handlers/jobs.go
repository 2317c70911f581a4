package handlers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tinunadno/stm32-emulator/internal/gateway/middleware"
	"github.com/tinunadno/stm32-emulator/internal/gateway/models"
	"github.com/tinunadno/stm32-emulator/internal/gateway/service"
)

// maxFirmwareSize matches the emulator's Flash capacity.
const maxFirmwareSize = 64 * 1024

const (
	defaultTimeoutSeconds = 30
	minTimeoutSeconds     = 5
	maxTimeoutSeconds     = 300
)

// JobsHandler handles job-related HTTP requests.
type JobsHandler struct {
	jobService service.JobService
	baseURL    string
}

// NewJobsHandler returns a jobs handler.
func NewJobsHandler(jobService service.JobService, baseURL string) *JobsHandler {
	return &JobsHandler{
		jobService: jobService,
		baseURL:    baseURL,
	}
}

// CreateJob handles POST /v1/jobs.
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = render.Render(w, r, ErrBadRequest(err, "invalid request body"))
		return
	}

	if req.BinaryB64 == "" {
		_ = render.Render(w, r, ErrBadRequest(errors.New("binary_b64 is required"), "missing required field"))
		return
	}

	binary, err := base64.StdEncoding.DecodeString(req.BinaryB64)
	if err != nil {
		_ = render.Render(w, r, ErrBadRequest(err, "invalid base64 encoding"))
		return
	}
	if len(binary) == 0 || len(binary) > maxFirmwareSize {
		_ = render.Render(w, r, ErrBadRequest(
			fmt.Errorf("firmware must be 1..%d bytes, got %d", maxFirmwareSize, len(binary)),
			"invalid firmware size"))
		return
	}

	hash := sha256.Sum256(binary)

	if req.TimeoutSeconds < minTimeoutSeconds || req.TimeoutSeconds > maxTimeoutSeconds {
		req.TimeoutSeconds = defaultTimeoutSeconds
	}

	job := &models.Job{
		JobID:          uuid.NewString(),
		UserID:         middleware.UserID(r),
		SHA256:         hex.EncodeToString(hash[:]),
		State:          models.StateQueued,
		CreatedAt:      time.Now(),
		TimeoutSeconds: req.TimeoutSeconds,
		DebugMode:      req.Debug,
	}

	if err := h.jobService.CreateJob(r.Context(), job); err != nil {
		_ = render.Render(w, r, ErrInternal(err))
		return
	}

	jobsCreated.WithLabelValues(string(models.StateQueued)).Inc()

	resp := &models.CreateJobResponse{
		JobID:     job.JobID,
		SHA256:    job.SHA256,
		Debug:     job.DebugMode,
		StatusURL: h.baseURL + "/v1/jobs/" + job.JobID,
		EventsURL: h.baseURL + "/v1/jobs/" + job.JobID + "/events",
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}

// GetJob handles GET /v1/jobs/{job_id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.authorizedJob(w, r)
	if !ok {
		return
	}

	resp := &models.JobStatusResponse{
		JobID:      job.JobID,
		State:      job.State,
		WorkerID:   job.WorkerID,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		DebugMode:  job.DebugMode,
		ErrorText:  job.ErrorText,
	}
	render.JSON(w, r, resp)
}

// ListJobs handles GET /v1/jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	jobs, err := h.jobService.ListJobsByUser(r.Context(), middleware.UserID(r), limit, offset)
	if err != nil {
		_ = render.Render(w, r, ErrInternal(err))
		return
	}

	resp := make([]*models.JobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, &models.JobStatusResponse{
			JobID:      job.JobID,
			State:      job.State,
			WorkerID:   job.WorkerID,
			CreatedAt:  job.CreatedAt,
			StartedAt:  job.StartedAt,
			FinishedAt: job.FinishedAt,
			DebugMode:  job.DebugMode,
			ErrorText:  job.ErrorText,
		})
	}
	render.JSON(w, r, resp)
}

// CancelJob handles DELETE /v1/jobs/{job_id}.
func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.authorizedJob(w, r)
	if !ok {
		return
	}

	if err := h.jobService.CancelJob(r.Context(), job.JobID); err != nil {
		if errors.Is(err, service.ErrJobCannotBeCancelled) {
			_ = render.Render(w, r, ErrConflict("job cannot be cancelled"))
			return
		}
		_ = render.Render(w, r, ErrInternal(err))
		return
	}

	render.JSON(w, r, &models.CancelJobResponse{
		JobID:     job.JobID,
		Cancelled: true,
		Message:   "cancellation requested",
	})
}

// GetGDBInfo handles GET /v1/jobs/{job_id}/gdb-info.
func (h *JobsHandler) GetGDBInfo(w http.ResponseWriter, r *http.Request) {
	job, ok := h.authorizedJob(w, r)
	if !ok {
		return
	}

	resp := &models.GDBInfoResponse{
		JobID:        job.JobID,
		DebugEnabled: job.DebugMode,
		GDBHost:      job.GDBHost,
		GDBPort:      job.GDBPort,
		Status:       string(job.State),
		Connected:    job.GDBConnected,
	}
	if job.DebugMode && job.GDBHost != nil && job.GDBPort != nil {
		resp.ConnectionString = fmt.Sprintf("target remote %s:%d", *job.GDBHost, *job.GDBPort)
	}
	render.JSON(w, r, resp)
}

// authorizedJob loads the job in the URL and enforces ownership.
func (h *JobsHandler) authorizedJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		_ = render.Render(w, r, ErrBadRequest(errors.New("job_id required"), "missing job_id"))
		return nil, false
	}

	job, err := h.jobService.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			_ = render.Render(w, r, ErrNotFound)
			return nil, false
		}
		_ = render.Render(w, r, ErrInternal(err))
		return nil, false
	}

	if job.UserID != middleware.UserID(r) {
		_ = render.Render(w, r, ErrForbidden)
		return nil, false
	}
	return job, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositive(v); err == nil && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := parsePositive(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}

func parsePositive(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}
