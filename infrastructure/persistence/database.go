package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/aurelisajuan/CourtVision/domain/persistence"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseManager implements the persistence.DatabaseManager interface
type DatabaseManager struct {
	db             *gorm.DB
	callRepo       persistence.CallRepository
	metricsRepo    persistence.MetricsRepository
	invocationRepo persistence.InvocationRepository
}

// NewDatabaseManager creates a new database manager instance
func NewDatabaseManager() *DatabaseManager {
	return &DatabaseManager{}
}

// Connect establishes database connection
func (dm *DatabaseManager) Connect(ctx context.Context, dsn string) error {
	logrus.Info("Connecting to PostgreSQL database...")

	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	dm.db = db

	dm.callRepo = NewCallRepository(db)
	dm.metricsRepo = NewMetricsRepository(db)
	dm.invocationRepo = NewInvocationRepository(db)

	logrus.Info("Successfully connected to PostgreSQL database")
	return nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db == nil {
		return nil
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB for close: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logrus.Info("Database connection closed successfully")
	return nil
}

// Migrate runs database migrations
func (dm *DatabaseManager) Migrate() error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	logrus.Info("Running database migrations...")

	if err := dm.db.Exec("CREATE EXTENSION IF NOT EXISTS \"pgcrypto\"").Error; err != nil {
		return fmt.Errorf("failed to create pgcrypto extension: %w", err)
	}

	if err := dm.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := dm.createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

// createTables creates database tables manually
func (dm *DatabaseManager) createTables() error {
	if err := dm.db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			request_data JSONB NOT NULL,
			response_data JSONB,
			model VARCHAR(255) NOT NULL,
			is_streaming BOOLEAN DEFAULT false,
			status VARCHAR(50) DEFAULT 'pending' NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create calls table: %w", err)
	}

	if err := dm.db.Exec(`
		CREATE TABLE IF NOT EXISTS call_metrics (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			call_id UUID NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			latency_ms BIGINT DEFAULT 0,
			frames_emitted INTEGER DEFAULT 0,
			tool_calls INTEGER DEFAULT 0,
			tokens_used INTEGER DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create call_metrics table: %w", err)
	}

	if err := dm.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_invocations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			call_id UUID NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			tool_name VARCHAR(255) NOT NULL,
			arguments JSONB,
			result JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create tool_invocations table: %w", err)
	}

	return nil
}

// createIndexes creates additional database indexes for performance
func (dm *DatabaseManager) createIndexes() error {
	indexes := []string{
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_calls_model_created ON calls (model, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_calls_status_created ON calls (status, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_call_metrics_created ON call_metrics (created_at DESC)",
		// One metrics row per call keeps CreateOrUpdate honest
		"CREATE UNIQUE INDEX CONCURRENTLY IF NOT EXISTS ux_call_metrics_call_id ON call_metrics (call_id)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tool_invocations_call_created ON tool_invocations (call_id, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tool_invocations_tool_created ON tool_invocations (tool_name, created_at DESC)",
	}

	for _, index := range indexes {
		if err := dm.db.Exec(index).Error; err != nil {
			logrus.WithError(err).Warnf("Failed to create index: %s", index)
			// Continue with other indexes even if one fails
		}
	}

	return nil
}

// Health checks database connectivity
func (dm *DatabaseManager) Health(ctx context.Context) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// GetRepositories returns initialized repositories
func (dm *DatabaseManager) GetRepositories() (persistence.CallRepository, persistence.MetricsRepository, persistence.InvocationRepository) {
	return dm.callRepo, dm.metricsRepo, dm.invocationRepo
}

// GetDB returns the underlying GORM database instance
func (dm *DatabaseManager) GetDB() *gorm.DB {
	return dm.db
}
