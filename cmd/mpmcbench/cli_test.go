package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/OCAP2/mpmc/internal/config"
	"github.com/OCAP2/mpmc/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, cfg map[string]any) {
	t.Helper()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), data, 0644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunAndHistory(t *testing.T) {
	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/runs/add" {
			uploads.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	writeConfig(t, dir, map[string]any{
		"api": map[string]any{
			"enabled": true,
			"url":     server.URL,
		},
		"logsDir": filepath.Join(dir, "logs"),
		"db": map[string]any{
			"enabled":    true,
			"driver":     "sqlite",
			"sqlitePath": filepath.Join(dir, "bench.db"),
		},
		"influx": map[string]any{
			"enabled":    true,
			"host":       "127.0.0.1",
			"port":       "1",
			"backupPath": filepath.Join(dir, "influx.lp.gz"),
		},
	})

	out, err := execute(t, "run",
		"--config-dir", dir,
		"--backend", "mpmc",
		"--producers", "3",
		"--consumers", "2",
		"--items", "5000",
		"--sample-interval", "1ms",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "backend:      mpmc")
	assert.Contains(t, out, "received:     5000")
	assert.Contains(t, out, "violations:   0")

	logs, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	assert.Equal(t, int32(1), uploads.Load())

	backup, err := os.Stat(filepath.Join(dir, "influx.lp.gz"))
	require.NoError(t, err)
	assert.Positive(t, backup.Size())

	out, err = execute(t, "history", "--config-dir", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "#1 ")
	assert.Contains(t, out, "mpmc")
	assert.Contains(t, out, "violations=0")
}

func TestRun_BufferedBackendWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "run",
		"--config-dir", dir,
		"--logs-dir", filepath.Join(dir, "logs"),
		"--backend", "buffered",
		"--buffer-size", "4",
		"--items", "1000",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "backend:      buffered")
	assert.Contains(t, out, "received:     1000")
}

func TestRun_UnknownBackend(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "run",
		"--config-dir", dir,
		"--logs-dir", filepath.Join(dir, "logs"),
		"--backend", "carrier-pigeon",
	)
	assert.ErrorContains(t, err, "unknown channel kind")
}

func TestRoot_MalformedConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("{not json"), 0644))

	_, err := execute(t, "run", "--config-dir", dir)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestHistory_RequiresDatabase(t *testing.T) {
	_, err := execute(t, "history", "--config-dir", t.TempDir())
	assert.ErrorContains(t, err, "db.enabled is false")
}

func TestPrintHistory_Empty(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, nil)
	assert.Equal(t, "no runs recorded\n", out.String())

	out.Reset()
	printHistory(&out, []model.Run{{Backend: "mpmc", Samples: make([]model.RunSample, 2)}})
	assert.Contains(t, out.String(), "samples=2")
}
