package audit

import (
	"net/http"
	"strings"
)

// target describes what an audited request acted on.
type target struct {
	Action       string
	ResourceType string
	ResourceIDs  []string
}

// targetOf maps an API path to its audited action. Paths are of the form
//
//	/api/v1/amazon/{slug}
//	/api/v1/spider/tasks/{id}/ready
//	/api/v1/spider/tasks/{id}/failed
//	/api/v1/jobs/{id}:cancel
func targetOf(method, path string) target {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "api" {
		parts = parts[2:]
	}

	switch {
	case len(parts) == 2 && parts[0] == "amazon":
		return target{Action: "submit", ResourceType: "analysis", ResourceIDs: []string{parts[1]}}
	case len(parts) == 4 && parts[0] == "spider" && parts[1] == "tasks":
		return target{Action: "spider-" + parts[3], ResourceType: "spider_task", ResourceIDs: []string{parts[2]}}
	case len(parts) == 2 && parts[0] == "jobs":
		if id, verb, ok := strings.Cut(parts[1], ":"); ok {
			return target{Action: verb, ResourceType: "job", ResourceIDs: []string{id}}
		}
		return target{Action: methodVerb(method), ResourceType: "job", ResourceIDs: []string{parts[1]}}
	}

	t := target{Action: methodVerb(method)}
	if len(parts) > 0 {
		t.ResourceType = parts[0]
	}
	return t
}

func methodVerb(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		return "patch"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}

// audited reports whether a request changes state. Reads are not recorded.
func audited(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz":
		return true
	}
	return false
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusForbidden:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
