package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/OCAP2/mpmc/internal/config"
	"github.com/OCAP2/mpmc/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotConnected is returned by writes issued before a successful Connect.
var ErrNotConnected = errors.New("database not connected")

// Manager handles database connections and operations.
type Manager struct {
	DB       *gorm.DB
	SqlDB    *sql.DB
	IsValid  bool
	IsSQLite bool
	Config   config.DBConfig
	Logger   zerolog.Logger
}

// openPostgres is replaced in tests.
var openPostgres = GetPostgresDB

// NewManager creates a new database manager.
func NewManager(cfg config.DBConfig, log zerolog.Logger) *Manager {
	return &Manager{
		Config: cfg,
		Logger: log,
	}
}

// Connect establishes a database connection. A postgres driver that cannot be
// reached falls back to SQLite at the configured path.
func (m *Manager) Connect() error {
	var err error

	if m.Config.Driver == "postgres" {
		m.DB, err = openPostgres(m.Config)
		if err == nil {
			m.SqlDB, err = m.DB.DB()
		}
		if err == nil {
			err = m.SqlDB.Ping()
		}
		if err != nil {
			m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
			closePool(m.DB)
			m.SqlDB = nil
		}
	} else {
		err = fmt.Errorf("driver %q", m.Config.Driver)
	}

	if err != nil {
		m.IsSQLite = true
		m.DB, err = GetSqliteDBStandalone(m.Config.SqlitePath)
		if err != nil {
			m.IsValid = false
			return fmt.Errorf("failed to get local SQLite DB: %w", err)
		}
		m.SqlDB, err = m.DB.DB()
		if err != nil {
			m.IsValid = false
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if m.Config.SqlitePath == "" {
			m.Logger.Info().Msg("Using local SQLite DB in memory")
		} else {
			m.Logger.Info().Str("path", m.Config.SqlitePath).Msg("Using local SQLite DB")
		}
	} else {
		m.Logger.Info().Msg("Connected to database")
		m.SqlDB.SetMaxOpenConns(10)
	}

	m.IsValid = true
	return nil
}

// Migrate creates or updates the result tables.
func (m *Manager) Migrate() error {
	if !m.IsValid {
		return ErrNotConnected
	}

	m.Logger.Info().Msg("Migrating schema")
	if err := m.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	m.Logger.Info().Msg("Database setup complete")
	return nil
}

// SaveRun inserts the run and sets its ID.
func (m *Manager) SaveRun(run *model.Run) error {
	if !m.IsValid {
		return ErrNotConnected
	}
	if err := m.DB.Omit("Samples").Create(run).Error; err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	m.Logger.Debug().Uint("id", run.ID).Str("backend", run.Backend).Msg("Saved run")
	return nil
}

// SaveSamples inserts samples in batches.
func (m *Manager) SaveSamples(samples []model.RunSample) error {
	if !m.IsValid {
		return ErrNotConnected
	}
	if len(samples) == 0 {
		return nil
	}
	if err := m.DB.CreateInBatches(samples, 500).Error; err != nil {
		return fmt.Errorf("failed to save %d samples: %w", len(samples), err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, with their samples.
func (m *Manager) RecentRuns(limit int) ([]model.Run, error) {
	if !m.IsValid {
		return nil, ErrNotConnected
	}
	var runs []model.Run
	err := m.DB.Preload("Samples", func(db *gorm.DB) *gorm.DB {
		return db.Order("sampled_at ASC")
	}).Order("id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	return runs, nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	m.IsValid = false
	return m.SqlDB.Close()
}

// GetPostgresDB returns a connection to the Postgres database.
func GetPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		closePool(db)
		return nil, err
	}
	return db, nil
}

// closePool releases the connection pool behind a failed gorm handle.
func closePool(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// GetSqliteDBStandalone returns a connection to a SQLite database.
// If path is empty, uses a private in-memory database held on one connection.
func GetSqliteDBStandalone(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if path == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// every pooled connection would open its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}
