package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flow-alert-service/internal/config"
	"github.com/couchcryptid/flow-alert-service/internal/fixture"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
	"github.com/couchcryptid/flow-alert-service/internal/pipeline"
)

const fixturePath = "../../internal/fixture/testdata/local.json"

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		StoreDriver:       config.DriverSQLite,
		SQLitePath:        filepath.Join(t.TempDir(), "flowalert.db"),
		ForecastBaseURL:   "http://127.0.0.1:1",
		ForecastTimeout:   time.Second,
		ForecastRateLimit: 100,
		ForecastCacheTTL:  30 * time.Minute,
		ThresholdCacheTTL: 7 * 24 * time.Hour,
		DedupWindow:       24 * time.Hour,
		AlertSchedule:     "*/30 * * * *",
		RunTimeout:        time.Minute,
		UserConcurrency:   2,
		HTTPAddr:          ":0",
		ShutdownTimeout:   time.Second,
	}
}

func TestNewApp_WiresSQLiteStore(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(ctx, testConfig(t), logger, observability.NewMetricsForTesting())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.NoError(t, a.CheckReadiness(ctx))
	assert.Nil(t, a.publisher)

	f, err := fixture.Load(fixturePath)
	require.NoError(t, err)
	_, err = fixture.Apply(ctx, a.store, f, time.Now().UTC())
	require.NoError(t, err)

	// u2 is disabled; u1 may be inside quiet hours depending on the wall
	// clock, so only the upper bound is fixed.
	result, err := a.pipeline.RunForUser(ctx, pipeline.AllUsers)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.UsersProcessed, 1)
	assert.Zero(t, result.Rejected())
}

func TestServe_StartupRunFinishesBeforeReturn(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, true) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
	// No run is left holding the store.
	a.Close()
}

func TestNewApp_PushEnabledWithoutEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.PushEnabled = true

	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	assert.ErrorContains(t, err, "empty endpoint")
}

func TestCheckCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := checkCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", fixturePath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"R1": "record_array (3 periods)"`)
}

func TestCheckCmd_RequiresFile(t *testing.T) {
	cmd := checkCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(nil)

	assert.Error(t, cmd.Execute())
}
