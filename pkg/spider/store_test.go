package spider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Task{}))
	return db
}

func newTestTask(key string) *Task {
	return &Task{
		TaskType:     TaskTypeAmazonCollect,
		TaskKey:      key,
		Biz:          "amazon",
		Payload:      map[string]any{"site": "us"},
		ResultTables: []string{"src_amazon_reviews"},
		CreatedBy:    1,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	created, err := store.Create(ctx, newTestTask("k1"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, StatusCreated, created.Status)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "k1", got.TaskKey)
	assert.Equal(t, "us", got.Payload["site"])
	assert.Equal(t, []string{"src_amazon_reviews"}, []string(got.ResultTables))
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := NewStore(setupTestDB(t))
	got, err := store.Get(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateReusesKey(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	first, err := store.Create(ctx, newTestTask("same"))
	require.NoError(t, err)
	second, err := store.Create(ctx, newTestTask("same"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestLifecycleTransitions(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	task, err := store.Create(ctx, newTestTask("life"))
	require.NoError(t, err)

	moved, err := store.MarkEnqueued(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = store.MarkEnqueued(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	require.NoError(t, store.MarkReady(ctx, task.ID, Locator{BatchNo: 42, Site: "us"}))
	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)

	loc, err := ParseLocator(got.ResultLocator)
	require.NoError(t, err)
	assert.Equal(t, int64(42), loc.BatchNo)
	assert.Equal(t, "us", loc.Site)

	err = store.MarkFailed(ctx, task.ID, "x", "late")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is ready")
}

func TestMarkFailedDefaultsCode(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	task, err := store.Create(ctx, newTestTask("fail"))
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, task.ID, "", "captcha"))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "spider.failed", got.ErrorCode)
	assert.Equal(t, "captcha", got.ErrorMessage)
}

func TestParseLocator(t *testing.T) {
	loc, err := ParseLocator(map[string]any{"crawl_batch_no": float64(7), "site": "de", "run": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), loc.BatchNo)
	assert.Equal(t, "de", loc.Site)
	assert.Equal(t, map[string]any{"crawl_batch_no": int64(7), "site": "de", "run": "x"}, loc.Map())

	loc, err = ParseLocator(map[string]any{"crawl_batch_no": json.Number("8"), "site": "us"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), loc.BatchNo)

	for _, bad := range []map[string]any{
		nil,
		{"site": "us"},
		{"crawl_batch_no": 1.5, "site": "us"},
		{"crawl_batch_no": 1},
		{"crawl_batch_no": 1, "site": "  "},
	} {
		_, err := ParseLocator(bad)
		assert.True(t, errors.Is(err, ErrInvalidLocator), "locator %v", bad)
	}
}

func TestTaskKeyIsStable(t *testing.T) {
	a, err := TaskKey("AOA-01", map[string]any{"site": "us", "filters": map[string]any{"top_n": 50, "price_min": nil}})
	require.NoError(t, err)
	b, err := TaskKey("AOA-01", map[string]any{"filters": map[string]any{"price_min": nil, "top_n": 50}, "site": "us"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Regexp(t, `^amazon:AOA-01:[0-9a-f]{40}$`, a)

	c, err := TaskKey("AOA-02", map[string]any{"site": "us"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
