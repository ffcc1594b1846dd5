package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/puppetops/puppet_go_server/config"
	"github.com/puppetops/puppet_go_server/internal/model"
	"github.com/puppetops/puppet_go_server/internal/repository"
	"github.com/puppetops/puppet_go_server/internal/testutil"
)

func setupRecoveryService(t *testing.T, rotate bool) (*RecoveryService, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		Recovery: config.RecoveryConfig{
			CooldownHours:     24,
			ProxyDisableHours: 24,
			RotateProxy:       rotate,
		},
	}
	service := NewRecoveryService(
		repository.NewJobRepository(db),
		repository.NewIncidentRepository(db),
		repository.NewProxyRepository(db),
		repository.NewSettingsRepository(db),
		nil, // publisher
		nil, // notifier
		cfg,
	)
	return service, db
}

func TestRecoveryService_HandleIncident_FullFlow(t *testing.T) {
	service, db := setupRecoveryService(t, false)
	ctx := context.Background()

	proxy := testutil.TestProxy(t, db)
	testutil.TestAssignment(t, db, 1, proxy.ID)
	testutil.TestSettings(t, db, 1, testutil.WithProxy(proxy.ID))
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	pending := testutil.TestJob(t, db, 1)
	incident := testutil.TestIncident(t, db, 1,
		testutil.WithIncidentJob(job.ID),
		testutil.WithIncidentProxy(proxy.ID))

	outcome := service.HandleIncident(ctx, job, incident)

	assert.True(t, outcome.JobHalted)
	assert.True(t, outcome.ProxyDisabled)
	assert.True(t, outcome.UserCooldownSet)
	assert.Equal(t, int64(1), outcome.JobsCancelled)
	assert.True(t, outcome.AutomationPaused)
	assert.False(t, outcome.ProxyRotated)

	// Job goes to warning, pending job cancelled
	jobRepo := repository.NewJobRepository(db)
	found, err := jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusWarning, found.Status)
	assert.Equal(t, incident.DetectionType, found.DetectionType)

	found, err = jobRepo.GetByID(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, found.Status)

	// Assignment disabled for 24h
	proxyRepo := repository.NewProxyRepository(db)
	a, err := proxyRepo.GetAssignment(1, proxy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentStatusDisabledCaptcha, a.Status)
	require.NotNil(t, a.DisabledUntil)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *a.DisabledUntil, time.Minute)

	// Cooldown set on the incident
	incidentRepo := repository.NewIncidentRepository(db)
	cooling, err := incidentRepo.ActiveCooldown(1, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, cooling)
	assert.Equal(t, incident.ID, cooling.ID)
	assert.True(t, cooling.ProxyDisabled)

	// Automation paused
	settingsRepo := repository.NewSettingsRepository(db)
	settings, err := settingsRepo.GetByUserID(1)
	require.NoError(t, err)
	assert.False(t, settings.AutomationEnabled)

	// Audit trail covers both automatic actions
	counts, _, err := incidentRepo.ActionStats(time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.ActionProxyDisable])
	assert.Equal(t, int64(1), counts[model.ActionUserCooldown])
}

func TestRecoveryService_HandleIncident_DestructiveCancelsJob(t *testing.T) {
	service, db := setupRecoveryService(t, true)

	proxy := testutil.TestProxy(t, db)
	testutil.TestProxy(t, db) // alternate exists but rotation must be skipped
	testutil.TestAssignment(t, db, 1, proxy.ID)
	testutil.TestSettings(t, db, 1)
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	incident := testutil.TestIncident(t, db, 1,
		testutil.WithDetectionType(model.DetectionAccountRestriction),
		testutil.WithIncidentJob(job.ID),
		testutil.WithIncidentProxy(proxy.ID))

	outcome := service.HandleIncident(context.Background(), job, incident)

	assert.True(t, outcome.JobHalted)
	assert.False(t, outcome.ProxyRotated)

	found, err := repository.NewJobRepository(db).GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, found.Status)
}

func TestRecoveryService_HandleIncident_SecondIncidentIdempotent(t *testing.T) {
	service, db := setupRecoveryService(t, false)
	ctx := context.Background()

	proxy := testutil.TestProxy(t, db)
	testutil.TestAssignment(t, db, 1, proxy.ID)
	testutil.TestSettings(t, db, 1)

	first := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	firstIncident := testutil.TestIncident(t, db, 1,
		testutil.WithIncidentJob(first.ID), testutil.WithIncidentProxy(proxy.ID))
	service.HandleIncident(ctx, first, firstIncident)

	second := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	secondIncident := testutil.TestIncident(t, db, 1,
		testutil.WithIncidentJob(second.ID), testutil.WithIncidentProxy(proxy.ID))
	outcome := service.HandleIncident(ctx, second, secondIncident)

	assert.True(t, outcome.JobHalted)
	assert.True(t, outcome.UserCooldownSet)

	// Disable window still belongs to the first incident
	a, err := repository.NewProxyRepository(db).GetAssignment(1, proxy.ID)
	require.NoError(t, err)
	assert.Contains(t, a.DisabledReason, "incident")
	assert.Contains(t, a.DisabledReason, "captcha")
}

func TestRecoveryService_HandleIncident_RotatesProxy(t *testing.T) {
	service, db := setupRecoveryService(t, true)

	current := testutil.TestProxy(t, db)
	alternate := testutil.TestProxy(t, db)
	testutil.TestAssignment(t, db, 1, current.ID)
	testutil.TestSettings(t, db, 1, testutil.WithProxy(current.ID))
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	incident := testutil.TestIncident(t, db, 1,
		testutil.WithIncidentJob(job.ID), testutil.WithIncidentProxy(current.ID))

	outcome := service.HandleIncident(context.Background(), job, incident)

	assert.True(t, outcome.ProxyRotated)

	proxyRepo := repository.NewProxyRepository(db)
	old, err := proxyRepo.GetAssignment(1, current.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentStatusRotated, old.Status)

	fresh, err := proxyRepo.GetAssignment(1, alternate.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentStatusActive, fresh.Status)

	settings, err := repository.NewSettingsRepository(db).GetByUserID(1)
	require.NoError(t, err)
	require.NotNil(t, settings.ProxyID)
	assert.Equal(t, alternate.ID, *settings.ProxyID)
}

func TestRecoveryService_HandleIncident_NoAlternateDegradesToCooldown(t *testing.T) {
	service, db := setupRecoveryService(t, true)

	current := testutil.TestProxy(t, db)
	testutil.TestAssignment(t, db, 1, current.ID)
	testutil.TestSettings(t, db, 1, testutil.WithProxy(current.ID))
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	incident := testutil.TestIncident(t, db, 1,
		testutil.WithIncidentJob(job.ID), testutil.WithIncidentProxy(current.ID))

	outcome := service.HandleIncident(context.Background(), job, incident)

	assert.False(t, outcome.ProxyRotated)
	assert.True(t, outcome.UserCooldownSet)

	// Failed rotation still leaves an audit record
	var actions []model.RecoveryAction
	require.NoError(t, db.Where("action_type = ?", model.ActionProxyRotation).Find(&actions).Error)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Success)
}

func TestRecoveryService_HandleIncident_NoAutoPauseKeepsAutomation(t *testing.T) {
	service, db := setupRecoveryService(t, false)

	testutil.TestSettings(t, db, 1, testutil.WithAutoPause(false))
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	incident := testutil.TestIncident(t, db, 1, testutil.WithIncidentJob(job.ID))

	outcome := service.HandleIncident(context.Background(), job, incident)

	assert.False(t, outcome.AutomationPaused)

	settings, err := repository.NewSettingsRepository(db).GetByUserID(1)
	require.NoError(t, err)
	assert.True(t, settings.AutomationEnabled)
}

func TestRecoveryService_ResumeUser(t *testing.T) {
	service, db := setupRecoveryService(t, false)
	ctx := context.Background()

	proxy := testutil.TestProxy(t, db)
	testutil.TestAssignment(t, db, 1, proxy.ID)
	testutil.TestSettings(t, db, 1)
	job := testutil.TestJob(t, db, 1, testutil.WithStatus(model.JobStatusRunning))
	incident := testutil.TestIncident(t, db, 1,
		testutil.WithIncidentJob(job.ID), testutil.WithIncidentProxy(proxy.ID))

	service.HandleIncident(ctx, job, incident)

	result, err := service.ResumeUser(ctx, 1, 42, "verified with user")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.IncidentsResolved)
	assert.Equal(t, 1, result.ProxiesReactivated)
	assert.True(t, result.AutomationEnabled)

	incidentRepo := repository.NewIncidentRepository(db)
	found, err := incidentRepo.GetByID(incident.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IncidentStatusResolved, found.Status)
	assert.Equal(t, ResolutionAdminManualResume, found.ResolutionMethod)
	assert.Nil(t, found.CooldownUntil)

	a, err := repository.NewProxyRepository(db).GetAssignment(1, proxy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentStatusActive, a.Status)

	settings, err := repository.NewSettingsRepository(db).GetByUserID(1)
	require.NoError(t, err)
	assert.True(t, settings.AutomationEnabled)

	cooling, err := incidentRepo.ActiveCooldown(1, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, cooling)
}

func TestRecoveryService_ResumeUser_NothingOpen(t *testing.T) {
	service, db := setupRecoveryService(t, false)

	testutil.TestSettings(t, db, 1)

	result, err := service.ResumeUser(context.Background(), 1, 42, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.IncidentsResolved)
	assert.Equal(t, 0, result.ProxiesReactivated)
}
