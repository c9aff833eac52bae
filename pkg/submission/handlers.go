package submission

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsinsight/reportcore/pkg/analyzer"
	"github.com/opsinsight/reportcore/pkg/authz"
	"github.com/opsinsight/reportcore/pkg/jobs"
	"github.com/opsinsight/reportcore/pkg/spider"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// AmazonRouter serves POST /{slug} for every task kind. Mount it at
// /api/v1/amazon.
func AmazonRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	for _, kind := range analyzer.Kinds() {
		r.Post("/"+kind.Slug(), SubmitHandler(svc, kind))
	}
	return r
}

// SpiderRouter serves the crawler callbacks. Mount it at /api/v1/spider.
// Reporting outcomes requires the admin group.
func SpiderRouter(svc *Service, tasks *spider.Store) chi.Router {
	r := chi.NewRouter()
	r.Get("/tasks/{taskId}", GetTaskHandler(tasks))
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireGroup(authz.GroupAdmin))
		r.Post("/tasks/{taskId}/ready", ReadyHandler(svc))
		r.Post("/tasks/{taskId}/failed", FailedHandler(svc))
	})
	return r
}

type submitResponse struct {
	Job          jobs.JobResponse `json:"job"`
	SpiderTaskID int64            `json:"spiderTaskId"`
	Reused       bool             `json:"reused"`
}

// SubmitHandler handles POST /api/v1/amazon/{slug}.
func SubmitHandler(svc *Service, kind analyzer.TaskKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err))
			return
		}

		id, _ := authz.IdentityFromContext(r.Context())
		receipt, err := svc.Submit(r.Context(), kind, body, id.UserID)
		if err != nil {
			if errors.Is(err, analyzer.ErrInvalidRequest) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to submit analysis: %v", err))
			return
		}

		writeJSON(w, http.StatusAccepted, submitResponse{
			Job:          jobs.ToResponse(receipt.Job),
			SpiderTaskID: receipt.SpiderTask.ID,
			Reused:       receipt.Reused,
		})
	}
}

type readyRequest struct {
	ResultLocator map[string]any `json:"result_locator"`
}

type failedRequest struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// ReadyHandler handles POST /api/v1/spider/tasks/{taskId}/ready.
func ReadyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}
		var req readyRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		task, err := svc.ReportReady(r.Context(), id, req.ResultLocator)
		writeReport(w, id, task, err)
	}
}

// FailedHandler handles POST /api/v1/spider/tasks/{taskId}/failed.
func FailedHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}
		var req failedRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.ErrorMessage == "" {
			writeError(w, http.StatusBadRequest, "error_message is required")
			return
		}
		task, err := svc.ReportFailed(r.Context(), id, req.ErrorCode, req.ErrorMessage)
		writeReport(w, id, task, err)
	}
}

// GetTaskHandler handles GET /api/v1/spider/tasks/{taskId}.
func GetTaskHandler(tasks *spider.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(w, r)
		if !ok {
			return
		}
		task, err := tasks.Get(r.Context(), id)
		writeReport(w, id, task, err)
	}
}

func writeReport(w http.ResponseWriter, id int64, task *spider.Task, err error) {
	switch {
	case errors.Is(err, spider.ErrInvalidLocator):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, spider.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to update spider task: %v", err))
	case task == nil:
		writeError(w, http.StatusNotFound, fmt.Sprintf("spider task %d not found", id))
	default:
		writeJSON(w, http.StatusOK, toTaskResponse(task))
	}
}

func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "taskId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid spider task id")
		return 0, false
	}
	return id, true
}

// TaskResponse is the API view of a spider task.
type TaskResponse struct {
	ID            int64          `json:"taskId"`
	TaskKey       string         `json:"taskKey"`
	Status        string         `json:"status"`
	StatusCode    int            `json:"statusCode"`
	ResultLocator map[string]any `json:"resultLocator,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	UpdatedAt     string         `json:"updatedAt"`
}

func toTaskResponse(t *spider.Task) TaskResponse {
	return TaskResponse{
		ID:            t.ID,
		TaskKey:       t.TaskKey,
		Status:        t.Status.String(),
		StatusCode:    int(t.Status),
		ResultLocator: map[string]any(t.ResultLocator),
		ErrorCode:     t.ErrorCode,
		ErrorMessage:  t.ErrorMessage,
		UpdatedAt:     t.UpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
