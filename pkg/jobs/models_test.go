package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusReady, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			job := &AnalysisJob{Status: tt.status}
			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("ready")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st)

	st, err = ParseStatus("40")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st)

	_, err = ParseStatus("queued")
	assert.Error(t, err)
	assert.Equal(t, "status(99)", Status(99).String())
}

func TestWorkflowJob(t *testing.T) {
	job := &AnalysisJob{
		ID:           4,
		JobType:      JobTypeAmazonAnalysis,
		Status:       StatusRunning,
		SpiderTaskID: 12,
		CreatedBy:    3,
		Payload:      []byte(`{"task_kind":"AOA-02","request":{"site":"us"}}`),
	}
	wj, err := job.WorkflowJob()
	require.NoError(t, err)
	assert.Equal(t, int64(4), wj.ID)
	assert.Equal(t, int(StatusRunning), wj.Status)
	assert.Equal(t, int64(12), wj.SourceTaskID)
	assert.Equal(t, "AOA-02", wj.Payload.TaskKind)
	assert.JSONEq(t, `{"site":"us"}`, string(wj.Payload.Request))

	job.Payload = []byte(`[1,2]`)
	_, err = job.WorkflowJob()
	assert.Error(t, err)
}
