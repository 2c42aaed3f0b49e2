package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/mpmc/internal/config"
	"github.com/OCAP2/mpmc/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(config.DBConfig{
		Driver:     "sqlite",
		SqlitePath: filepath.Join(t.TempDir(), "bench.db"),
	}, zerolog.Nop())
	require.NoError(t, m.Connect())
	require.NoError(t, m.Migrate())
	t.Cleanup(func() { m.Close() })
	return m
}

func TestConnect_SQLite(t *testing.T) {
	m := newTestManager(t)

	assert.True(t, m.IsValid)
	assert.True(t, m.IsSQLite)
	assert.True(t, m.DB.Migrator().HasTable(&model.Run{}))
	assert.True(t, m.DB.Migrator().HasTable(&model.RunSample{}))
}

func TestConnect_PostgresFallsBackToSQLite(t *testing.T) {
	m := NewManager(config.DBConfig{
		Driver:     "postgres",
		Host:       "127.0.0.1",
		Port:       "1",
		Username:   "nobody",
		Password:   "nothing",
		Database:   "none",
		SqlitePath: filepath.Join(t.TempDir(), "fallback.db"),
	}, zerolog.Nop())
	defer m.Close()

	require.NoError(t, m.Connect())
	assert.True(t, m.IsValid)
	assert.True(t, m.IsSQLite)
	assert.Equal(t, "sqlite", m.DB.Dialector.Name())
}

func TestWritesRequireConnection(t *testing.T) {
	m := NewManager(config.DBConfig{}, zerolog.Nop())

	assert.ErrorIs(t, m.Migrate(), ErrNotConnected)
	assert.ErrorIs(t, m.SaveRun(&model.Run{}), ErrNotConnected)
	assert.ErrorIs(t, m.SaveSamples([]model.RunSample{{}}), ErrNotConnected)
	_, err := m.RecentRuns(1)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, m.Close())
}

func TestSaveRunAndSamples(t *testing.T) {
	m := newTestManager(t)

	start := time.Now().UTC().Truncate(time.Second)
	run := &model.Run{
		Backend:    "mpmc",
		Producers:  2,
		Consumers:  3,
		Items:      100,
		Sent:       100,
		Received:   100,
		StartedAt:  start,
		EndedAt:    start.Add(time.Second),
		Duration:   time.Second,
		Throughput: 100,
		Config:     datatypes.JSON(`{"backend":"mpmc"}`),
	}
	require.NoError(t, m.SaveRun(run))
	require.NotZero(t, run.ID)

	samples := []model.RunSample{
		{RunID: run.ID, Time: start.Add(2 * time.Second), Sent: 80, Received: 70, QueueLen: 10},
		{RunID: run.ID, Time: start.Add(time.Second), Sent: 40, Received: 30, QueueLen: 10},
	}
	require.NoError(t, m.SaveSamples(samples))
	require.NoError(t, m.SaveSamples(nil))

	runs, err := m.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, "mpmc", got.Backend)
	assert.Equal(t, int64(100), got.Received)
	assert.JSONEq(t, `{"backend":"mpmc"}`, string(got.Config))
	require.Len(t, got.Samples, 2)
	assert.Equal(t, int64(40), got.Samples[0].Sent, "samples ordered by time")
	assert.Equal(t, int64(80), got.Samples[1].Sent)
}

func TestRecentRuns_NewestFirst(t *testing.T) {
	m := newTestManager(t)

	for _, backend := range []string{"mpmc", "buffered", "unbuffered"} {
		require.NoError(t, m.SaveRun(&model.Run{Backend: backend}))
	}

	runs, err := m.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "unbuffered", runs[0].Backend)
	assert.Equal(t, "buffered", runs[1].Backend)
}

func TestGetSqliteDBStandalone_InMemory(t *testing.T) {
	db, err := GetSqliteDBStandalone("")
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestGetSqliteDBStandalone_InMemoryIsPrivate(t *testing.T) {
	first, err := GetSqliteDBStandalone("")
	require.NoError(t, err)
	second, err := GetSqliteDBStandalone("")
	require.NoError(t, err)

	require.NoError(t, first.AutoMigrate(&model.Run{}))
	require.NoError(t, first.Create(&model.Run{Backend: "mpmc"}).Error)

	var count int64
	require.NoError(t, first.Model(&model.Run{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.False(t, second.Migrator().HasTable(&model.Run{}))
}

func TestConnect_PostgresFallbackReleasesPool(t *testing.T) {
	var pg *gorm.DB
	openPostgres = func(cfg config.DBConfig) (*gorm.DB, error) {
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{DisableAutomaticPing: true})
		pg = db
		return db, err
	}
	t.Cleanup(func() { openPostgres = GetPostgresDB })

	m := NewManager(config.DBConfig{
		Driver:   "postgres",
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "nobody",
		Password: "nothing",
		Database: "none",
	}, zerolog.Nop())
	defer m.Close()

	require.NoError(t, m.Connect())
	assert.True(t, m.IsSQLite)
	assert.NoError(t, m.SqlDB.Ping())

	require.NotNil(t, pg)
	pgSQL, err := pg.DB()
	require.NoError(t, err)
	err = pgSQL.Ping()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is closed")
}
