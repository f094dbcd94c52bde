package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enginesim/core/analyzer"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/core/simulator"
	"github.com/kilianp07/enginesim/infra/jsonl"
)

type fixedRandom struct{ frac float64 }

func (f fixedRandom) Uniform(min, max float64) float64 { return min + (max-min)*f.frac }
func (f fixedRandom) IntRange(min, max int) int        { return min + int(f.frac*float64(max-min)) }

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgPath = defaultConfigPath
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSimulatePrintsLinesAndSummary(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, simulate(&out, simulator.DefaultParams(), 100, 20, 4*time.Second, fixedRandom{0.5}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 21)
	assert.Equal(t, "Time: 4s | Speed: 12 km/h | RPM: 1320 | Fuel: 100.0%", lines[0])
	assert.True(t, strings.HasPrefix(lines[20], "Analysis: samples=20  "), lines[20])
}

func TestSimulateReportsEvents(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, simulate(&out, simulator.DefaultParams(), 100, 3, 1000*time.Hour, fixedRandom{0.5}))
	assert.Contains(t, out.String(), "[engine_shutdown] out of fuel, engine stopped")
	assert.Equal(t, 1, strings.Count(out.String(), "engine_shutdown"))
}

func TestSimulateZeroSteps(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, simulate(&out, simulator.DefaultParams(), 100, 0, time.Second, fixedRandom{0.5}))
	assert.Equal(t, "No samples available.\n", out.String())
}

func TestSimulateCommand(t *testing.T) {
	out, err := execute(t, "simulate", "--steps", "5", "--step", "2s", "--seed", "7")
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(out, "Time: "))
	assert.Contains(t, out, "Analysis: samples=5")
}

func TestHistoryCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/99/feeds.json", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("results"))
		_, _ = fmt.Fprint(w, `{"feeds": [
			{"created_at": "2024-01-01T10:00:00Z", "entry_id": 1, "field1": "90", "field2": "2000", "field3": "40", "field4": "40.00", "field5": "80.0"},
			{"created_at": "2024-01-01T10:00:15Z", "entry_id": 2, "field1": "91", "field2": "3200", "field3": "80", "field4": "39.50", "field5": "79.0"}
		]}`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := fmt.Sprintf("sinks:\n  - type: thingspeak\n    conf:\n      channel_id: \"99\"\n      base_url: %q\n", srv.URL)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	out, err := execute(t, "history", "-c", path, "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Analysis: samples=2  AvgSpeed=60.0 km/h  AvgRPM=2600  MaxSpeed=80 km/h  MaxRPM=3200  Fuel=39.50L (79.0%)  Temp=91°C")
}

func TestHistoryWithoutSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sinks: []\n"), 0o644))
	_, err := execute(t, "history", "-c", path)
	assert.ErrorContains(t, err, "no history sink configured")
}

func TestHistoryFromJSONL(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "trip.jsonl")
	st, err := jsonl.NewStore(jsonl.Config{Path: logPath})
	require.NoError(t, err)
	require.NoError(t, st.Send(context.Background(), model.NewSample(2000, 40, 40, 50, 90, 0, true)))
	require.NoError(t, st.Send(context.Background(), model.NewSample(3200, 80, 39.5, 50, 91, 15*time.Second, true)))
	require.NoError(t, st.Close())

	path := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("sinks:\n  - type: jsonl\n    conf:\n      path: %q\n", logPath)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	out, err := execute(t, "history", "-c", path, "-n", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Analysis: samples=2  AvgSpeed=60.0 km/h  AvgRPM=2600")
}

func TestHistoryFromEmptyJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("sinks:\n  - type: jsonl\n    conf:\n      path: %q\n", filepath.Join(dir, "none.jsonl"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	out, err := execute(t, "history", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, analyzer.NoSamplesMessage)
}
