package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/testutil"
)

func TestStatsRepository_Increment_Insert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewStatsRepository(db)
	today := model.StatDateOf(time.Now())

	err := repo.Increment(1, today, StatDelta{ConnectionsSent: 1, JobsCompleted: 1})
	require.NoError(t, err)

	stat, err := repo.Get(1, today)
	require.NoError(t, err)
	assert.Equal(t, 1, stat.ConnectionsSent)
	assert.Equal(t, 1, stat.JobsCompleted)
	assert.Equal(t, 0, stat.MessagesSent)
}

func TestStatsRepository_Increment_Accumulates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewStatsRepository(db)
	today := model.StatDateOf(time.Now())

	require.NoError(t, repo.Increment(1, today, StatDelta{ConnectionsSent: 1, MessagesSent: 1, JobsCompleted: 1}))
	require.NoError(t, repo.Increment(1, today, StatDelta{ConnectionsSent: 1, JobsCompleted: 1}))
	require.NoError(t, repo.Increment(1, today, StatDelta{JobsWarned: 1, SecurityWarnings: 1, CaptchaDetections: 1}))

	stat, err := repo.Get(1, today)
	require.NoError(t, err)
	assert.Equal(t, 2, stat.ConnectionsSent)
	assert.Equal(t, 1, stat.MessagesSent)
	assert.Equal(t, 2, stat.JobsCompleted)
	assert.Equal(t, 1, stat.JobsWarned)
	assert.Equal(t, 1, stat.SecurityWarnings)
	assert.Equal(t, 1, stat.CaptchaDetections)
}

func TestStatsRepository_Increment_SeparateDaysAndUsers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewStatsRepository(db)

	require.NoError(t, repo.Increment(1, "2026-08-27", StatDelta{ConnectionsSent: 3}))
	require.NoError(t, repo.Increment(1, "2026-08-28", StatDelta{ConnectionsSent: 1}))
	require.NoError(t, repo.Increment(2, "2026-08-28", StatDelta{ConnectionsSent: 5}))

	stat, err := repo.Get(1, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, 1, stat.ConnectionsSent)

	stat, err = repo.Get(2, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, 5, stat.ConnectionsSent)
}

func TestStatsRepository_Get_NoRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewStatsRepository(db)

	stat, err := repo.Get(1, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.UserID)
	assert.Equal(t, 0, stat.ConnectionsSent)
}

func TestStatsRepository_DeleteBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewStatsRepository(db)

	testutil.TestStat(t, db, 1, "2026-07-01", testutil.WithConnectionsSent(3))
	testutil.TestStat(t, db, 1, "2026-08-27", testutil.WithConnectionsSent(2))

	n, err := repo.DeleteBefore("2026-08-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stat, err := repo.Get(1, "2026-08-27")
	require.NoError(t, err)
	assert.Equal(t, 2, stat.ConnectionsSent)
}
