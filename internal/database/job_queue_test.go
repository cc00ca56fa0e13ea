package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showsync/internal/models"
)

func newJob(id, kind string, entityID int64) *models.SyncJob {
	return &models.SyncJob{
		ID:         id,
		Kind:       kind,
		EntityType: models.EntityShow,
		EntityID:   entityID,
		Payload:    `{"rating":8}`,
		Status:     models.JobStatusPending,
	}
}

func TestJobQueueFIFOOrder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.CreateSyncJob(ctx, newJob("a", "rate", 1)))
	require.NoError(t, db.CreateSyncJob(ctx, newJob("b", "rate", 2)))
	require.NoError(t, db.CreateSyncJob(ctx, newJob("c", "rate", 3)))

	jobs, err := db.NextPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)
	assert.Equal(t, "c", jobs[2].ID)
	assert.Less(t, jobs[0].Seq, jobs[1].Seq)
}

func TestJobQueueLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.CreateSyncJob(ctx, newJob("a", "rate", 1)))

	require.NoError(t, db.MarkJobRunning(ctx, "a"))
	job, err := db.GetSyncJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)

	require.NoError(t, db.MarkJobCompleted(ctx, "a"))
	job, err = db.GetSyncJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.ProcessedAt)
	assert.Nil(t, job.LastError)

	// Completed jobs are invisible to the dispatcher.
	jobs, err := db.NextPendingJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 0)
}

func TestJobQueueRetryGating(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.CreateSyncJob(ctx, newJob("a", "rate", 1)))

	require.NoError(t, db.MarkJobRetry(ctx, "a", "temporary error", time.Now().Add(time.Hour)))
	job, err := db.GetSyncJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRetry, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "temporary error", *job.LastError)

	jobs, err := db.NextPendingJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 0, "future retry must not be pending")

	require.NoError(t, db.MarkJobRetry(ctx, "a", "temporary error", time.Now().Add(-time.Minute)))
	jobs, err = db.NextPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].Attempts)
}

func TestNextPendingJobsHoldsEntitySuccessors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	first := newJob("a", "rate", 1)
	second := newJob("b", "rate", 1)
	second.Payload = `{"rating":3}`
	other := newJob("c", "rate", 2)
	require.NoError(t, db.CreateSyncJob(ctx, first))
	require.NoError(t, db.CreateSyncJob(ctx, second))
	require.NoError(t, db.CreateSyncJob(ctx, other))

	// While the head of entity 1 waits out its backoff, its successor must
	// not become due; other entities are unaffected.
	require.NoError(t, db.MarkJobRetry(ctx, "a", "temporary error", time.Now().Add(time.Hour)))
	jobs, err := db.NextPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "c", jobs[0].ID)

	// Once the backoff elapses the head runs first.
	require.NoError(t, db.MarkJobRetry(ctx, "a", "temporary error", time.Now().Add(-time.Minute)))
	jobs, err = db.NextPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "c", jobs[1].ID)

	// Its completion releases the successor.
	require.NoError(t, db.MarkJobCompleted(ctx, "a"))
	jobs, err = db.NextPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].ID)

	seq, err := db.OldestActiveJobSeq(ctx, models.EntityShow, 1)
	require.NoError(t, err)
	assert.Equal(t, second.Seq, seq)
}

func TestJobQueueFailedList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.CreateSyncJob(ctx, newJob("a", "rate", 1)))
	require.NoError(t, db.CreateSyncJob(ctx, newJob("b", "rate", 2)))
	require.NoError(t, db.MarkJobFailed(ctx, "a", "boom"))

	failed, err := db.GetFailedSyncJobs(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "a", failed[0].ID)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "boom", *failed[0].LastError)

	count, err := db.CountActiveJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRequeueRunningJobs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.CreateSyncJob(ctx, newJob("a", "rate", 1)))
	require.NoError(t, db.CreateSyncJob(ctx, newJob("b", "rate", 2)))
	require.NoError(t, db.MarkJobRunning(ctx, "a"))

	recovered, err := db.RequeueRunningJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	job, err := db.GetSyncJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestFindDuplicateJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.CreateSyncJob(ctx, newJob("a", "rate", 1)))

	dup, err := db.FindDuplicateJob(ctx, newJob("x", "rate", 1))
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "a", dup.ID)

	// Different entity is not a duplicate.
	dup, err = db.FindDuplicateJob(ctx, newJob("y", "rate", 2))
	require.NoError(t, err)
	assert.Nil(t, dup)

	// Different payload is not a duplicate.
	other := newJob("z", "rate", 1)
	other.Payload = `{"rating":3}`
	dup, err = db.FindDuplicateJob(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, dup)

	// Terminal jobs never suppress new work.
	require.NoError(t, db.MarkJobCompleted(ctx, "a"))
	dup, err = db.FindDuplicateJob(ctx, newJob("x", "rate", 1))
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestGetSyncJobUnknownID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job, err := db.GetSyncJob(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}
