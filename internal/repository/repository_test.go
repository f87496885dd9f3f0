package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/pkg/config"
)

// testDB connects to TEST_DATABASE_URL; tests skip without it. Each test
// gets a private schema so runs do not interfere.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := Open(&config.Config{DatabaseType: "postgres", DatabaseURL: url})
	require.NoError(t, err)

	schema := "test_" + uuid.New().String()[:8]
	require.NoError(t, db.Exec(`CREATE SCHEMA "`+schema+`"`).Error)
	require.NoError(t, db.Exec(`SET search_path TO "`+schema+`"`).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // search_path is per connection

	require.NoError(t, NewPostgreSQLProvider(db).Migrate(&models.MonitoringEvent{}, &models.FeedbackRecord{}))

	t.Cleanup(func() {
		db.Exec(`DROP SCHEMA "` + schema + `" CASCADE`)
		sqlDB.Close()
	})
	return db
}

func seedEvent(t *testing.T, repo *EventRepository, userID string, createdAt time.Time) *models.MonitoringEvent {
	t.Helper()
	ev, err := models.NewMonitoringEvent(models.EventTypeUIError, map[string]interface{}{"message": "boom"}, createdAt)
	require.NoError(t, err)
	ev.UserID = &userID
	ev.SourceIP = "203.0.113.9"
	ev.UserAgent = "Firefox"
	require.NoError(t, repo.Create(context.Background(), ev))
	return ev
}

func TestEventRepository_RetentionLifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	old := seedEvent(t, repo, "u1", now.Add(-400*24*time.Hour))
	mid := seedEvent(t, repo, "u1", now.Add(-100*24*time.Hour))
	fresh := seedEvent(t, repo, "u2", now.Add(-time.Hour))

	anonCutoff := now.Add(-90 * 24 * time.Hour)
	purgeCutoff := now.Add(-365 * 24 * time.Hour)

	stats, err := repo.Stats(ctx, anonCutoff, purgeCutoff)
	require.NoError(t, err)
	assert.Equal(t, models.RetentionStats{Total: 3, NotAnonymized: 3, AnonymizeDue: 2, PurgeDue: 1}, stats)

	n, err := repo.AnonymizeBatch(ctx, anonCutoff, now, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "batch size is honored")

	got, err := repo.FindByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID, "oldest row goes first")
	assert.Empty(t, got.SourceIP)
	assert.NotNil(t, got.AnonymizedAt)

	n, err = repo.AnonymizeBatch(ctx, anonCutoff, now, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.AnonymizeBatch(ctx, anonCutoff, now, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "anonymization is idempotent")

	n, err = repo.PurgeBatch(ctx, purgeCutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindByID(ctx, old.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.FindByID(ctx, mid.ID)
	assert.NoError(t, err)

	subject, err := repo.FindBySubject(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, subject, 1)
	assert.Equal(t, fresh.ID, subject[0].ID)

	n, err = repo.AnonymizeSubject(ctx, "u2", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	subject, err = repo.FindBySubject(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, subject)

	counts, err := repo.CountByType(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.EventTypeUIError])
	assert.Equal(t, int64(0), counts[models.EventTypeUIEvent])
}

func TestFeedbackRepository_ResolveAndCount(t *testing.T) {
	db := testDB(t)
	repo := NewFeedbackRepository(db)
	ctx := context.Background()
	uid := "u1"

	a := &models.FeedbackRecord{FeedbackType: models.FeedbackTypeBugReport, Message: "a", UserID: &uid, Browser: "Safari", CreatedAt: time.Now()}
	b := &models.FeedbackRecord{FeedbackType: models.FeedbackTypeGeneral, Message: "b", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	a.Resolve("op-1", "fixed", time.Now())
	require.NoError(t, repo.UpdateResolution(ctx, a))

	resolved, open, err := repo.CountByResolution(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resolved)
	assert.Equal(t, int64(1), open)

	yes := true
	list, err := repo.List(ctx, FeedbackFilter{Resolved: &yes})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	n, err := repo.AnonymizeSubject(ctx, uid, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)
	assert.Empty(t, got.Browser)
	assert.Equal(t, "op-1", *got.ResolvedBy, "resolver is an operator and is kept")
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "postgres://obs:****@db:5432/obs", maskPassword("postgres://obs:secret@db:5432/obs"))
	assert.Equal(t, "****", maskPassword("short"))
}

func TestFeedbackRepository_UpdateResolutionKeepsAnonymization(t *testing.T) {
	db := testDB(t)
	repo := NewFeedbackRepository(db)
	ctx := context.Background()
	uid := "u-erased"

	rec := &models.FeedbackRecord{FeedbackType: models.FeedbackTypeBugReport, Message: "crash", UserID: &uid, Browser: "Firefox", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, rec))

	stale, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)

	n, err := repo.AnonymizeSubject(ctx, uid, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	stale.Resolve("op-1", "done", time.Now())
	require.NoError(t, repo.UpdateResolution(ctx, stale))

	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Nil(t, got.UserID)
	assert.Empty(t, got.Browser)
	assert.NotNil(t, got.AnonymizedAt)

	missing := &models.FeedbackRecord{ID: uuid.New().String()}
	assert.ErrorIs(t, repo.UpdateResolution(ctx, missing), gorm.ErrRecordNotFound)
}
