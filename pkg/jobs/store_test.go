package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opsinsight/reportcore/pkg/spider"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&AnalysisJob{}, &spider.Task{}))
	return db
}

func newTestJob(kind string, spiderTaskID int64) *AnalysisJob {
	return &AnalysisJob{
		Biz:          "amazon",
		TaskKind:     kind,
		SpiderTaskID: spiderTaskID,
		Payload:      []byte(`{"task_kind":"` + kind + `","request":{}}`),
		CreatedBy:    1,
	}
}

func createJob(t *testing.T, store *JobStore, job *AnalysisJob) *AnalysisJob {
	t.Helper()
	created, err := store.Create(context.Background(), job)
	require.NoError(t, err)
	return created
}

func TestCreateDefaults(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	job := createJob(t, store, newTestJob("AOA-01", 1))

	assert.NotZero(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, JobTypeAmazonAnalysis, job.JobType)
}

func TestGetReturnsNilForMissing(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	job, err := store.Get(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestPromoteBySpiderTask(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))
	a := createJob(t, store, newTestJob("AOA-01", 7))
	b := createJob(t, store, newTestJob("AOA-02", 7))
	other := createJob(t, store, newTestJob("AOA-02", 8))

	n, err := store.PromoteBySpiderTask(ctx, &spider.Task{ID: 7, Status: spider.StatusEnqueued})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.PromoteBySpiderTask(ctx, &spider.Task{ID: 7, Status: spider.StatusReady})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []int64{a.ID, b.ID} {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusReady, got.Status)
	}
	got, err := store.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	n, err = store.PromoteBySpiderTask(ctx, &spider.Task{ID: 8, Status: spider.StatusFailed, ErrorMessage: "captcha"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = store.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "spider.failed", got.ErrorCode)
	assert.Equal(t, "captcha", got.ErrorMessage)
	assert.NotNil(t, got.FinishedAt)
}

func TestPromotePending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewJobStore(db)
	tasks := spider.NewStore(db)

	ready, err := tasks.Create(ctx, &spider.Task{TaskType: spider.TaskTypeAmazonCollect, TaskKey: "ready", Biz: "amazon"})
	require.NoError(t, err)
	require.NoError(t, tasks.MarkReady(ctx, ready.ID, spider.Locator{BatchNo: 1, Site: "us"}))
	failed, err := tasks.Create(ctx, &spider.Task{TaskType: spider.TaskTypeAmazonCollect, TaskKey: "failed", Biz: "amazon"})
	require.NoError(t, err)
	require.NoError(t, tasks.MarkFailed(ctx, failed.ID, "crawler.blocked", "blocked"))
	waiting, err := tasks.Create(ctx, &spider.Task{TaskType: spider.TaskTypeAmazonCollect, TaskKey: "waiting", Biz: "amazon"})
	require.NoError(t, err)

	j1 := createJob(t, store, newTestJob("AOA-01", ready.ID))
	j2 := createJob(t, store, newTestJob("AOA-01", failed.ID))
	j3 := createJob(t, store, newTestJob("AOA-01", waiting.ID))

	n, err := store.PromotePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	want := map[int64]Status{j1.ID: StatusReady, j2.ID: StatusFailed, j3.ID: StatusPending}
	for id, status := range want {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status, "job %d", id)
	}
	got, _ := store.Get(ctx, j2.ID)
	assert.Equal(t, "crawler.blocked", got.ErrorCode)
}

func TestClaimReturnsOldestReadyJob(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))
	createJob(t, store, newTestJob("AOA-01", 1))
	first := createJob(t, store, &AnalysisJob{TaskKind: "AOA-01", Biz: "amazon", SpiderTaskID: 2, Status: StatusReady})
	createJob(t, store, &AnalysisJob{TaskKind: "AOA-02", Biz: "amazon", SpiderTaskID: 3, Status: StatusReady})

	claimed, err := store.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, StatusRunning, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)
}

func TestClaimReturnsNilWhenEmpty(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	createJob(t, store, newTestJob("AOA-01", 1))

	claimed, err := store.Claim(context.Background())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestCompleteStoresResult(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))
	job := createJob(t, store, &AnalysisJob{TaskKind: "AOA-01", Biz: "amazon", SpiderTaskID: 1, Status: StatusReady})

	assert.Error(t, store.Complete(ctx, job.ID, []byte(`{}`), time.Second), "job is not running yet")

	_, err := store.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, job.ID, []byte(`{"biz":"amazon"}`), 1500*time.Millisecond))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.JSONEq(t, `{"biz":"amazon"}`, string(got.Result))
	assert.Equal(t, int64(1500), got.DurationMs)
	assert.NotNil(t, got.FinishedAt)
}

func TestFailIsFinal(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))
	job := createJob(t, store, &AnalysisJob{TaskKind: "AOA-01", Biz: "amazon", SpiderTaskID: 1, Status: StatusReady})
	_, err := store.Claim(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, job.ID, "spider.not_ready", "not ready", time.Second))
	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "spider.not_ready", got.ErrorCode)

	assert.Error(t, store.Fail(ctx, job.ID, "again", "again", 0))

	claimed, err := store.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed, "failed jobs are not retried")
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))
	pending := createJob(t, store, newTestJob("AOA-01", 1))
	running := createJob(t, store, &AnalysisJob{TaskKind: "AOA-01", Biz: "amazon", SpiderTaskID: 1, Status: StatusRunning})

	require.NoError(t, store.Cancel(ctx, pending.ID))
	got, _ := store.Get(ctx, pending.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, CodeCanceled, got.ErrorCode)

	err := store.Cancel(ctx, running.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is running")

	err = store.Cancel(ctx, 999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListWithFilters(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))
	createJob(t, store, newTestJob("AOA-01", 1))
	createJob(t, store, newTestJob("AOA-02", 1))
	createJob(t, store, &AnalysisJob{TaskKind: "AOA-02", Biz: "amazon", SpiderTaskID: 2, Status: StatusReady, CreatedBy: 9})

	jobs, _, total, err := store.List(ctx, JobListFilter{TaskKind: "AOA-02"}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, jobs, 2)

	ready := StatusReady
	jobs, _, total, err = store.List(ctx, JobListFilter{Status: &ready}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(9), jobs[0].CreatedBy)

	_, _, total, err = store.List(ctx, JobListFilter{SpiderTaskID: 1, CreatedBy: 1}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, createJob(t, store, newTestJob("AOA-01", 1)).ID)
	}

	page1, token, total, err := store.List(ctx, JobListFilter{}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[4], page1[0].ID)
	assert.NotEmpty(t, token)

	page2, token, _, err := store.List(ctx, JobListFilter{}, 2, token)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, ids[2], page2[0].ID)

	page3, token, _, err := store.List(ctx, JobListFilter{}, 2, token)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, ids[0], page3[0].ID)
	assert.Empty(t, token)

	_, _, _, err = store.List(ctx, JobListFilter{}, 2, "abc")
	assert.Error(t, err)
}

func TestCleanupStuckJobs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewJobStore(db)

	stale := time.Now().Add(-time.Hour)
	fresh := time.Now()
	stuck := createJob(t, store, &AnalysisJob{TaskKind: "AOA-01", Biz: "amazon", SpiderTaskID: 1, Status: StatusRunning, StartedAt: &stale})
	alive := createJob(t, store, &AnalysisJob{TaskKind: "AOA-01", Biz: "amazon", SpiderTaskID: 1, Status: StatusRunning, StartedAt: &fresh})

	n, err := store.CleanupStuckJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := store.Get(ctx, stuck.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, CodeStuck, got.ErrorCode)
	got, _ = store.Get(ctx, alive.ID)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(setupTestDB(t))

	old := time.Now().AddDate(0, 0, -30)
	recent := time.Now()
	createJob(t, store, &AnalysisJob{TaskKind: "AOA-01", Biz: "amazon", Status: StatusSucceeded, FinishedAt: &old})
	createJob(t, store, &AnalysisJob{TaskKind: "AOA-01", Biz: "amazon", Status: StatusFailed, FinishedAt: &recent})
	createJob(t, store, newTestJob("AOA-01", 1))

	n, err := store.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _, total, err := store.List(ctx, JobListFilter{}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
