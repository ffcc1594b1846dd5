package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/repository"
	"github.com/puppetops/puppet_go_server/internal/testutil"
)

func TestCleanupService_Run(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	jobRepo := repository.NewJobRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cfg := &config.Config{Recovery: config.RecoveryConfig{RetentionDays: 30}}
	service := NewCleanupService(jobRepo, incidentRepo, statsRepo, cfg)

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)

	// Expired terminal job
	expired := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	require.NoError(t, jobRepo.Complete(expired.ID, "", old))

	// Recent terminal job stays
	kept := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	require.NoError(t, jobRepo.Complete(kept.ID, "", now.Add(-time.Hour)))

	// Expired resolved incident
	resolvedIncident := testutil.TestIncident(t, db, 1)
	_, err := incidentRepo.ResolveAllByUser(1, 42, "admin_manual_resume", "")
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.Incident{}).Where("id = ?", resolvedIncident.ID).Update("resolved_at", old).Error)

	// Open incident stays regardless of age
	openIncident := testutil.TestIncident(t, db, 2)

	// Old audit record
	require.NoError(t, incidentRepo.LogAction(&model.RecoveryAction{
		UserID:     1,
		ActionType: model.ActionUserCooldown,
		Success:    true,
		CreatedAt:  old,
	}))

	// Old daily stat
	testutil.TestStat(t, db, 1, model.StatDateOf(old), testutil.WithConnectionsSent(3))
	testutil.TestStat(t, db, 1, model.StatDateOf(now))

	summary := service.Run(now)

	assert.Equal(t, int64(1), summary.Jobs)
	assert.Equal(t, int64(1), summary.Incidents)
	assert.Equal(t, int64(1), summary.Actions)
	assert.Equal(t, int64(1), summary.Stats)

	_, err = jobRepo.GetByID(expired.ID)
	assert.Error(t, err)
	_, err = jobRepo.GetByID(kept.ID)
	assert.NoError(t, err)
	_, err = incidentRepo.GetByID(openIncident.ID)
	assert.NoError(t, err)
}

func TestCleanupService_Run_DefaultRetention(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	jobRepo := repository.NewJobRepository(db)
	cfg := &config.Config{} // retention unset falls back to the default
	service := NewCleanupService(jobRepo, repository.NewIncidentRepository(db), repository.NewStatsRepository(db), cfg)

	now := time.Now().UTC()
	recent := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	require.NoError(t, jobRepo.Complete(recent.ID, "", now.AddDate(0, 0, -config.DefaultRetentionDays+1)))

	summary := service.Run(now)
	assert.Equal(t, int64(0), summary.Jobs)

	_, err := jobRepo.GetByID(recent.ID)
	assert.NoError(t, err)
}
