package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/mtgate/adapter/api"
	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	cli.SetApp(&cli.App{Client: api.NewClient(ts.URL, "", ts.Client())})
	t.Cleanup(func() { cli.SetApp(nil) })
}

func TestListCmd(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]scheduler.JobStats{
			{Name: "expiration", Schedule: "*/30 * * * *", Runs: 4},
			{Name: "health", Schedule: "@every 5m", Runs: 10, Failures: 1, LastError: "probe failed"},
		})
	})

	var output strings.Builder
	listCmd.SetContext(context.Background())
	listCmd.SetOut(&output)
	require.NoError(t, listCmd.RunE(listCmd, nil))

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "SCHEDULE")
	assert.Contains(t, lines[1], "expiration")
	assert.Contains(t, lines[2], "probe failed")
}

func TestRunCmd(t *testing.T) {
	var path string
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.Method + " " + r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job":"restart","status":"completed"}`))
	})

	var output strings.Builder
	runCmd.SetContext(context.Background())
	runCmd.SetOut(&output)
	require.NoError(t, runCmd.RunE(runCmd, []string{"restart"}))
	assert.Equal(t, "POST /api/v1/jobs/restart/run", path)
	assert.Equal(t, "Job restart completed.\n", output.String())
}

func TestRunCmd_UnknownJob(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found","message":"unknown job: backup"}`))
	})

	runCmd.SetContext(context.Background())
	err := runCmd.RunE(runCmd, []string{"backup"})
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(time.Time{}))
	assert.NotEqual(t, "-", formatTime(time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)))
}
