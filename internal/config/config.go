// Package config loads mpmcbench settings with viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "mpmcbench.cfg.json"

// BenchConfig holds workload settings.
type BenchConfig struct {
	Backend        string        `json:"backend" mapstructure:"backend"`
	BufferSize     int           `json:"bufferSize" mapstructure:"bufferSize"`
	Producers      int           `json:"producers" mapstructure:"producers"`
	Consumers      int           `json:"consumers" mapstructure:"consumers"`
	Items          int           `json:"items" mapstructure:"items"`
	SampleInterval time.Duration `json:"sampleInterval" mapstructure:"sampleInterval"`
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DBConfig holds result database settings.
type DBConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Driver     string `json:"driver" mapstructure:"driver"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"password" mapstructure:"password"`
	Database   string `json:"database" mapstructure:"database"`
	SqlitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// InfluxConfig holds time-series sink settings.
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// APIConfig holds results server settings.
type APIConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers default values for every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("bench.backend", "mpmc")
	viper.SetDefault("bench.bufferSize", 1024)
	viper.SetDefault("bench.producers", 4)
	viper.SetDefault("bench.consumers", 4)
	viper.SetDefault("bench.items", 1_000_000)
	viper.SetDefault("bench.sampleInterval", "1s")
	viper.SetDefault("bench.timeout", "5m")

	viper.SetDefault("db.enabled", false)
	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "mpmc")
	viper.SetDefault("db.sqlitePath", "./mpmcbench.db")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "mpmc")
	viper.SetDefault("influx.bucket", "mpmc_bench")
	viper.SetDefault("influx.backupPath", "./logs/influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.url", "http://localhost:5000")
	viper.SetDefault("api.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mpmcbench")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from the JSON file in configDir and sets default values.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetBenchConfig returns the workload settings.
func GetBenchConfig() BenchConfig {
	return BenchConfig{
		Backend:        viper.GetString("bench.backend"),
		BufferSize:     viper.GetInt("bench.bufferSize"),
		Producers:      viper.GetInt("bench.producers"),
		Consumers:      viper.GetInt("bench.consumers"),
		Items:          viper.GetInt("bench.items"),
		SampleInterval: viper.GetDuration("bench.sampleInterval"),
		Timeout:        viper.GetDuration("bench.timeout"),
	}
}

// GetDBConfig returns the result database settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Enabled:    viper.GetBool("db.enabled"),
		Driver:     viper.GetString("db.driver"),
		Host:       viper.GetString("db.host"),
		Port:       viper.GetString("db.port"),
		Username:   viper.GetString("db.username"),
		Password:   viper.GetString("db.password"),
		Database:   viper.GetString("db.database"),
		SqlitePath: viper.GetString("db.sqlitePath"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetAPIConfig returns the results server settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled: viper.GetBool("api.enabled"),
		URL:     viper.GetString("api.url"),
		Secret:  viper.GetString("api.secret"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
