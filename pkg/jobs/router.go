package jobs

import (
	"github.com/go-chi/chi/v5"

	"github.com/opsinsight/reportcore/pkg/cache"
)

// Router creates a chi.Router for the job API, mounted at /api/v1/jobs.
// When results is non-nil, finished results are served from it.
func Router(store *JobStore, results *cache.LRU[string, cache.Response]) chi.Router {
	r := chi.NewRouter()

	r.Get("/", ListJobsHandler(store))
	r.Get("/{jobId}", GetJobHandler(store))
	r.Post("/{jobId}:cancel", CancelJobHandler(store))

	if results != nil {
		r.With(cache.Middleware(results)).Get("/{jobId}/result", GetResultHandler(store))
	} else {
		r.Get("/{jobId}/result", GetResultHandler(store))
	}
	return r
}
