package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/testutil"
)

func TestJobRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	job := &model.PuppetJob{
		UserID:     1,
		ProfileURL: "https://www.linkedin.com/in/jane-doe",
		Priority:   5,
		Status:     model.JobStatusPending,
	}

	err := repo.Create(job)
	require.NoError(t, err)
	assert.NotZero(t, job.ID)
	assert.False(t, job.ScheduledAt.IsZero()) // defaults to now
}

func TestJobRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	created := testutil.TestJob(t, db, 1)

	found, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, model.JobStatusPending, found.Status)
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	_, err := repo.GetByID(99999)
	assert.Error(t, err)
}

func TestJobRepository_GetDueJobs_Ordering(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	base := time.Now().UTC().Add(-time.Hour)

	low := testutil.TestJob(t, db, 1, testutil.WithPriority(1), testutil.WithCreatedAt(base))
	highOld := testutil.TestJob(t, db, 1, testutil.WithPriority(9), testutil.WithCreatedAt(base.Add(time.Minute)))
	highNew := testutil.TestJob(t, db, 1, testutil.WithPriority(9), testutil.WithCreatedAt(base.Add(2*time.Minute)))

	jobs, err := repo.GetDueJobs(time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// priority DESC, then created_at ASC within same priority
	assert.Equal(t, highOld.ID, jobs[0].ID)
	assert.Equal(t, highNew.ID, jobs[1].ID)
	assert.Equal(t, low.ID, jobs[2].ID)
}

func TestJobRepository_GetDueJobs_ExcludesFutureAndNonPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	due := testutil.TestJob(t, db, 1)
	testutil.TestJob(t, db, 1, testutil.WithScheduledAt(time.Now().UTC().Add(time.Hour)))
	testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusCompleted))

	jobs, err := repo.GetDueJobs(time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, due.ID, jobs[0].ID)
}

func TestJobRepository_GetDueJobs_Limit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	for i := 0; i < 5; i++ {
		testutil.TestJob(t, db, 1)
	}

	jobs, err := repo.GetDueJobs(time.Now().UTC(), 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestJobRepository_MarkRunning(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db, 1)
	now := time.Now().UTC()

	claimed, err := repo.MarkRunning(job.ID, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, found.Status)
	require.NotNil(t, found.StartedAt)
}

func TestJobRepository_MarkRunning_AlreadyClaimed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db, 1)
	now := time.Now().UTC()

	claimed, err := repo.MarkRunning(job.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	// Second claim must lose the race
	claimed, err = repo.MarkRunning(job.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestJobRepository_Complete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	now := time.Now().UTC()

	err := repo.Complete(job.ID, `{"connection_sent":true}`, now)
	require.NoError(t, err)

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, found.Status)
	assert.Equal(t, `{"connection_sent":true}`, found.ResultData)
	require.NotNil(t, found.CompletedAt)
}

func TestJobRepository_Complete_OnlyFromRunning(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusCancelled))

	err := repo.Complete(job.ID, "", time.Now().UTC())
	require.NoError(t, err)

	// Terminal status must not be overwritten
	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, found.Status)
}

func TestJobRepository_Fail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))

	err := repo.Fail(job.ID, "executor unreachable", time.Now().UTC())
	require.NoError(t, err)

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, found.Status)
	assert.Equal(t, "executor unreachable", found.ErrorMessage)
}

func TestJobRepository_MarkWarning(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))

	err := repo.MarkWarning(job.ID, model.DetectionCaptcha, "https://oss.example.com/evidence.png", "captcha detected", time.Now().UTC())
	require.NoError(t, err)

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusWarning, found.Status)
	assert.Equal(t, model.DetectionCaptcha, found.DetectionType)
	assert.Equal(t, "https://oss.example.com/evidence.png", found.EvidenceURL)
}

func TestJobRepository_CancelPendingByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	testutil.TestJob(t, db, 1)
	testutil.TestJob(t, db, 1)
	running := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	other := testutil.TestJob(t, db, 2)

	n, err := repo.CancelPendingByUser(1, "security cooldown", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Running job and other users untouched
	found, _ := repo.GetByID(running.ID)
	assert.Equal(t, model.JobStatusRunning, found.Status)
	found, _ = repo.GetByID(other.ID)
	assert.Equal(t, model.JobStatusPending, found.Status)
}

func TestJobRepository_ResetStuckJobs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	stuck := testutil.TestJob(t, db, 1,
		testutil.WithStatus(model.JobStatusRunning),
		testutil.WithStartedAt(time.Now().UTC().Add(-10*time.Minute)))
	fresh := testutil.TestJob(t, db, 1,
		testutil.WithStatus(model.JobStatusRunning),
		testutil.WithStartedAt(time.Now().UTC().Add(-time.Minute)))

	n, err := repo.ResetStuckJobs(time.Now().UTC().Add(-5 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, _ := repo.GetByID(stuck.ID)
	assert.Equal(t, model.JobStatusPending, found.Status)
	assert.Nil(t, found.StartedAt)

	found, _ = repo.GetByID(fresh.ID)
	assert.Equal(t, model.JobStatusRunning, found.Status)
}

func TestJobRepository_DeleteTerminalBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	expired := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	require.NoError(t, repo.Complete(expired.ID, "", old))
	kept := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	require.NoError(t, repo.Complete(kept.ID, "", recent))
	pending := testutil.TestJob(t, db, 1)

	n, err := repo.DeleteTerminalBefore(time.Now().UTC().Add(-30 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByID(expired.ID)
	assert.Error(t, err)
	_, err = repo.GetByID(kept.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(pending.ID)
	assert.NoError(t, err)
}

func TestJobRepository_ListByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	testutil.TestJob(t, db, 1)
	testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusCompleted))
	testutil.TestJob(t, db, 2)

	all, err := repo.ListByUser(1, "", 50)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := repo.ListByUser(1, model.JobStatusCompleted, 50)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}

func TestJobRepository_CountByStatusSince(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	testutil.TestJob(t, db, 1)
	testutil.TestJob(t, db, 1)
	testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusFailed))

	counts, err := repo.CountByStatusSince(time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.JobStatusPending])
	assert.Equal(t, int64(1), counts[model.JobStatusFailed])
}
