package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"bench": { "backend": "buffered", "producers": 8 },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "buffered", viper.GetString("bench.backend"))
	assert.Equal(t, 8, viper.GetInt("bench.producers"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "mpmc", viper.GetString("bench.backend"))
	assert.Equal(t, false, viper.GetBool("db.enabled"))
	assert.Equal(t, "sqlite", viper.GetString("db.driver"))
	assert.Equal(t, "postgres", viper.GetString("db.username"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "mpmc_bench", viper.GetString("influx.bucket"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "mpmcbench", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetBenchConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := GetBenchConfig()
	assert.Equal(t, "mpmc", cfg.Backend)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, 4, cfg.Producers)
	assert.Equal(t, 4, cfg.Consumers)
	assert.Equal(t, 1_000_000, cfg.Items)
	assert.Equal(t, time.Second, cfg.SampleInterval)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
}

func TestGetBenchConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"bench": {
			"backend": "unbuffered",
			"consumers": 16,
			"items": 500,
			"sampleInterval": "250ms",
			"timeout": "10s"
		}
	}`)
	require.NoError(t, Load(dir))

	cfg := GetBenchConfig()
	assert.Equal(t, "unbuffered", cfg.Backend)
	assert.Equal(t, 16, cfg.Consumers)
	assert.Equal(t, 500, cfg.Items)
	assert.Equal(t, 250*time.Millisecond, cfg.SampleInterval)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestGetDBConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{ "db": { "enabled": true, "driver": "postgres", "database": "bench" } }`)
	require.NoError(t, Load(dir))

	cfg := GetDBConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "bench", cfg.Database)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "./mpmcbench.db", cfg.SqlitePath)
}

func TestGetInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("influx.org", "acme")

	cfg := GetInfluxConfig()
	assert.Equal(t, "acme", cfg.Org)
	assert.Equal(t, "http", cfg.Protocol)
	assert.Equal(t, "8086", cfg.Port)
	assert.Equal(t, "./logs/influx_backup.lp.gz", cfg.BackupPath)
}

func TestGetAPIConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"api": {"enabled": true, "secret": "pw"}}`)))

	cfg := GetAPIConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http://localhost:5000", cfg.URL)
	assert.Equal(t, "pw", cfg.Secret)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "mpmcbench", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)
	require.NoError(t, Load(dir))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}
