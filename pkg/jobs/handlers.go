package jobs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// GetJobHandler handles GET /api/v1/jobs/{jobId}
func GetJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadJob(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, ToResponse(job))
	}
}

// GetResultHandler handles GET /api/v1/jobs/{jobId}/result. Only succeeded
// jobs have a result; others answer 409 with their status.
func GetResultHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadJob(w, r, store)
		if !ok {
			return
		}
		if job.Status != StatusSucceeded || len(job.Result) == 0 {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":        fmt.Sprintf("job %d has no result", job.ID),
				"status":       job.Status.String(),
				"errorCode":    job.ErrorCode,
				"errorMessage": job.ErrorMessage,
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(job.Result)
	}
}

// ListJobsHandler handles GET /api/v1/jobs
// Query params: taskKind, status, createdBy, spiderTaskId, pageSize, pageToken
func ListJobsHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := JobListFilter{TaskKind: q.Get("taskKind")}
		if s := q.Get("status"); s != "" {
			st, err := ParseStatus(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Status = &st
		}
		for param, dst := range map[string]*int64{"createdBy": &filter.CreatedBy, "spiderTaskId": &filter.SpiderTaskID} {
			if v := q.Get(param); v != "" {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", param, v))
					return
				}
				*dst = n
			}
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := store.List(r.Context(), filter, pageSize, q.Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
			return
		}

		jobs := make([]JobResponse, len(records))
		for i := range records {
			jobs[i] = ToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":          jobs,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// CancelJobHandler handles POST /api/v1/jobs/{jobId}:cancel
func CancelJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}
		if err := store.Cancel(r.Context(), id); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to cancel job: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "canceled",
			"jobId":  id,
		})
	}
}

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "jobId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid job ID %q", raw))
		return 0, false
	}
	return id, true
}

func loadJob(w http.ResponseWriter, r *http.Request, store *JobStore) (*AnalysisJob, bool) {
	id, ok := jobID(w, r)
	if !ok {
		return nil, false
	}
	job, err := store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
		return nil, false
	}
	if job == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
		return nil, false
	}
	return job, true
}

// JobResponse is the API view of an analysis job.
type JobResponse struct {
	ID           int64  `json:"jobId" yaml:"jobId"`
	JobType      int    `json:"jobType" yaml:"jobType"`
	TaskKind     string `json:"taskKind" yaml:"taskKind"`
	Status       string `json:"status" yaml:"status"`
	StatusCode   int    `json:"statusCode" yaml:"statusCode"`
	SpiderTaskID int64  `json:"spiderTaskId,omitempty" yaml:"spiderTaskId,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	CreatedBy    int64  `json:"createdBy" yaml:"createdBy"`
	CreatedAt    string `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    string `json:"updatedAt" yaml:"updatedAt"`
	StartedAt    string `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`
	HasResult    bool   `json:"hasResult" yaml:"hasResult"`
}

// ToResponse renders a job the way the API does.
func ToResponse(job *AnalysisJob) JobResponse {
	resp := JobResponse{
		ID:           job.ID,
		JobType:      job.JobType,
		TaskKind:     job.TaskKind,
		Status:       job.Status.String(),
		StatusCode:   int(job.Status),
		SpiderTaskID: job.SpiderTaskID,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		CreatedBy:    job.CreatedBy,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
		DurationMs:   job.DurationMs,
		HasResult:    len(job.Result) > 0,
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
