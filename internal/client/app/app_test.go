package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coachsync/internal/client/app"
	"github.com/iudanet/coachsync/internal/client/coaching"
	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/config"
	"github.com/iudanet/coachsync/internal/models"
	"github.com/iudanet/coachsync/internal/server"
	"github.com/iudanet/coachsync/internal/server/handlers"
	"github.com/iudanet/coachsync/internal/server/storage/sqlite"
)

const (
	testUser     = "coach_anna"
	testPassword = "correct-horse-battery"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)

	ts := httptest.NewServer(server.NewHandler(store, handlers.JWTConfig{
		Secret:         []byte("test-secret-key-that-is-long-enough"),
		AccessTokenTTL: time.Hour,
	}, nil, clock.New(), discardLogger()))
	t.Cleanup(func() {
		ts.Close()
		_ = store.Close()
	})
	return ts
}

func testConfig(t *testing.T, serverURL string) *config.Config {
	return &config.Config{
		ServerURL:             serverURL,
		DBPath:                filepath.Join(t.TempDir(), "client.db"),
		LogLevel:              "error",
		LogFormat:             "text",
		SyncRetryableStatuses: "408,429",
		SyncMaxRetries:        5,
		SyncBaseDelay:         time.Second,
		SyncMaxDelay:          time.Minute,
		SyncDebounce:          10 * time.Millisecond,
		SyncHeartbeat:         time.Hour,
		HTTPTimeout:           5 * time.Second,
	}
}

func openApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	a, err := app.Open(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://localhost")
	cfg.SyncMaxRetries = 0

	_, err := app.Open(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}

func TestApp_OfflineWorkIsReconciledOnSync(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)
	a := openApp(t, testConfig(t, ts.URL))

	_, err := a.Auth.Register(ctx, testUser, testPassword)
	require.NoError(t, err)
	_, err = a.Auth.Login(ctx, testUser, testPassword)
	require.NoError(t, err)

	// до первой проверки связи клиент считает себя offline
	schedule, err := a.Coaching.CreateSchedule(ctx, coaching.ScheduleInput{
		StartsAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		MemberID: "m1",
		Title:    "Legs",
		Duration: 60,
	})
	require.NoError(t, err)
	require.True(t, models.IsLocalID(schedule.ID))

	planned, err := a.Coaching.AddPlannedExercise(ctx, schedule.ID, coaching.PlannedExerciseInput{
		Name: "Squat",
		Sets: 5,
		Reps: 5,
	})
	require.NoError(t, err)

	res, err := a.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Reconciled)

	schedules, err := a.Coaching.ListSchedules(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	serverID := schedules[0].ID
	assert.True(t, strings.HasPrefix(serverID, "srv_"), serverID)

	_, err = a.Coaching.GetSchedule(ctx, schedule.ID)
	assert.ErrorIs(t, err, coaching.ErrNotFound)

	exercises, err := a.Coaching.ListPlannedExercises(ctx, serverID)
	require.NoError(t, err)
	require.Len(t, exercises, 1)
	assert.NotEqual(t, planned.ID, exercises[0].ID)
	assert.Equal(t, serverID, exercises[0].ScheduleID)

	snap := a.State.Snapshot()
	assert.True(t, snap.IsOnline)
	assert.Equal(t, 0, snap.PendingCount)
	assert.False(t, snap.LastSyncAt.IsZero())

	// сервер видит расписание под своим id
	token, ok := a.Auth.CurrentCredential(ctx)
	require.True(t, ok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/schedules", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var remote []models.Schedule
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&remote))
	require.Len(t, remote, 1)
	assert.Equal(t, serverID, remote[0].ID)
}

func TestApp_StateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)
	cfg := testConfig(t, ts.URL)

	a, err := app.Open(ctx, cfg, discardLogger())
	require.NoError(t, err)
	_, err = a.Auth.Register(ctx, testUser, testPassword)
	require.NoError(t, err)
	_, err = a.Auth.Login(ctx, testUser, testPassword)
	require.NoError(t, err)
	_, err = a.Coaching.CreateSchedule(ctx, coaching.ScheduleInput{
		StartsAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		MemberID: "m1",
		Title:    "Legs",
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	cfg.MasterPassword = testPassword
	b := openApp(t, cfg)
	assert.Equal(t, 1, b.State.Snapshot().PendingCount)

	// без разблокировки нет credential и проход пропускается
	res, err := b.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)

	require.NoError(t, b.Unlock(ctx, ""))
	res, err = b.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, b.State.Snapshot().PendingCount)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	ts := startServer(t)
	cfg := testConfig(t, ts.URL)
	cfg.SyncProbeInterval = time.Second
	a := openApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.State.IsOnline() }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestApp_RunGoesOnlineWithPeriodicChecksOff(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)
	cfg := testConfig(t, ts.URL)
	cfg.SyncProbeInterval = 0
	cfg.SyncHeartbeat = 20 * time.Millisecond
	a := openApp(t, cfg)

	_, err := a.Auth.Register(ctx, testUser, testPassword)
	require.NoError(t, err)
	_, err = a.Auth.Login(ctx, testUser, testPassword)
	require.NoError(t, err)

	_, err = a.Coaching.CreateSchedule(ctx, coaching.ScheduleInput{
		StartsAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		MemberID: "m1",
		Title:    "Legs",
		Duration: 60,
	})
	require.NoError(t, err)
	require.False(t, a.State.IsOnline())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	require.Eventually(t, func() bool {
		snap := a.State.Snapshot()
		return snap.IsOnline && snap.PendingCount == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
