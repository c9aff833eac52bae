package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/opsinsight/reportcore/pkg/database"
	"github.com/opsinsight/reportcore/pkg/jobs"
)

// execute runs reportd with args against the sqlite database at dsn and
// returns what it printed to stdout.
func execute(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db-driver", "sqlite", "--db-dsn", dsn, "--log-level", "warn"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newDSN(t *testing.T) string {
	t.Helper()
	return "file:" + filepath.Join(t.TempDir(), "reportd.db") + "?_pragma=busy_timeout(5000)"
}

func seedJob(t *testing.T, dsn string) int64 {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.DSN = dsn
	db, err := database.Open(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = database.Close(db) }()

	job, err := jobs.NewJobStore(db).Create(context.Background(), &jobs.AnalysisJob{
		Biz:          "amazon",
		TaskKind:     "AOA-04",
		SpiderTaskID: 404,
		Payload:      datatypes.JSON(`{"task_kind":"AOA-04","request":{"task_kind":"AOA-04","time_window":{"as_of":20250101},"query":{"asin":"B001"}}}`),
		CreatedBy:    7,
	})
	require.NoError(t, err)
	return job.ID
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, []string{"id", "status"}, [][]string{{"1", "ready"}, {"22", "failed"}}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID  STATUS", lines[0])
	assert.Equal(t, "1   ready", lines[1])
	assert.Equal(t, "22  failed", lines[2])
}

func TestPrintOutput(t *testing.T) {
	v := jobs.JobResponse{ID: 3, TaskKind: "AOA-01", Status: "ready"}

	var buf bytes.Buffer
	require.NoError(t, printOutput(&buf, "yaml", v))
	assert.Contains(t, buf.String(), "jobId: 3")
	assert.Contains(t, buf.String(), "taskKind: AOA-01")

	buf.Reset()
	require.NoError(t, printOutput(&buf, "json", v))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "ready", decoded["status"])

	assert.Error(t, printOutput(&buf, "table", v))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\tc", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "ab", truncate("abcdefghij", 2))
}

func TestMigrateAndJobCommands(t *testing.T) {
	dsn := newDSN(t)

	_, err := execute(t, dsn, "migrate")
	require.NoError(t, err)
	id := seedJob(t, dsn)

	out, err := execute(t, dsn, "jobs", "list", "-o", "json")
	require.NoError(t, err)
	var list struct {
		Jobs      []jobs.JobResponse `json:"jobs"`
		TotalSize int                `json:"totalSize"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, id, list.Jobs[0].ID)
	assert.Equal(t, "pending", list.Jobs[0].Status)

	out, err = execute(t, dsn, "jobs", "list", "--task-kind", "listing-audit")
	require.NoError(t, err)
	assert.Contains(t, out, "AOA-04")
	assert.True(t, strings.HasPrefix(out, "ID"))

	out, err = execute(t, dsn, "jobs", "list", "--status", "ready")
	require.NoError(t, err)
	assert.NotContains(t, out, "AOA-04")

	out, err = execute(t, dsn, "jobs", "cancel", "1")
	require.NoError(t, err)
	assert.Equal(t, "job 1 canceled\n", out)

	out, err = execute(t, dsn, "jobs", "get", "1", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "status: failed")
	assert.Contains(t, out, "errorCode: job.canceled")

	_, err = execute(t, dsn, "jobs", "get", "1", "--result")
	assert.ErrorContains(t, err, "has no result")

	_, err = execute(t, dsn, "jobs", "get", "99")
	assert.ErrorContains(t, err, "job 99 not found")
}

func TestRunReportsWorkflowFailure(t *testing.T) {
	dsn := newDSN(t)
	_, err := execute(t, dsn, "migrate")
	require.NoError(t, err)
	id := seedJob(t, dsn)

	_, err = execute(t, dsn, "run", "--job-id", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 1 failed")

	_, err = execute(t, dsn, "run", "--job-id", "42")
	assert.ErrorContains(t, err, "job 42 not found")

	// run leaves the job untouched.
	out, err := execute(t, dsn, "jobs", "get", "1", "-o", "json")
	require.NoError(t, err)
	var resp jobs.JobResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "pending", resp.Status)
}

func TestKBIndexAndSearch(t *testing.T) {
	dsn := newDSN(t)
	_, err := execute(t, dsn, "migrate")
	require.NoError(t, err)

	doc := filepath.Join(t.TempDir(), "policy.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Listing titles must not exceed 200 characters. Avoid promotional phrases in bullet points."), 0o600))

	out, err := execute(t, dsn, "kb", "index", "--kb-space", "ops", "--doc-id", "policy", "--file", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed ops/policy")

	out, err = execute(t, dsn, "kb", "search", "title characters", "--kb-space", "ops", "--mode", "keyword", "-o", "json")
	require.NoError(t, err)
	var res struct {
		Hits []struct {
			DocumentID string `json:"document_id"`
		} `json:"hits"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "policy", res.Hits[0].DocumentID)

	_, err = execute(t, dsn, "kb", "search", "title", "--kb-space", "ops", "--top-k", "0")
	assert.Error(t, err)
}

func TestSetupRejectsBadOptions(t *testing.T) {
	dsn := newDSN(t)

	_, err := execute(t, dsn, "migrate", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = execute(t, dsn, "migrate", "--log-format", "logfmt")
	assert.ErrorContains(t, err, "unsupported log format")

	_, err = execute(t, dsn, "--db-driver", "oracle", "migrate")
	assert.ErrorContains(t, err, "failed to load config")
}

func TestHealthCommand(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/healthz":
			_, _ = w.Write([]byte(`{"status":"alive","uptime":"3s"}`))
		case "/readyz":
			if !ready.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"not_ready"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"ready"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := execute(t, newDSN(t), "health", "--server", srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, out, "CHECK")
	assert.Contains(t, out, "readiness  ready")

	ready.Store(false)
	out, err = execute(t, newDSN(t), "health", "--server", srv.URL, "-o", "json")
	assert.ErrorContains(t, err, "server not ready (status 503)")
	assert.Contains(t, out, `"not_ready"`)
}
