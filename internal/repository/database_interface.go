package repository

import (
	"context"

	"gorm.io/gorm"
)

// DatabaseProvider abstracts the connection for health checks and shutdown
type DatabaseProvider interface {
	GetDB() *gorm.DB
	Migrate(models ...interface{}) error
	Close() error
	Ping(ctx context.Context) error
}

// PostgreSQLProvider implements DatabaseProvider for PostgreSQL
type PostgreSQLProvider struct {
	db *gorm.DB
}

// NewPostgreSQLProvider wraps an open connection
func NewPostgreSQLProvider(db *gorm.DB) *PostgreSQLProvider {
	return &PostgreSQLProvider{db: db}
}

func (p *PostgreSQLProvider) GetDB() *gorm.DB {
	return p.db
}

func (p *PostgreSQLProvider) Migrate(models ...interface{}) error {
	return p.db.AutoMigrate(models...)
}

func (p *PostgreSQLProvider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *PostgreSQLProvider) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Ensure PostgreSQLProvider implements the interface
var _ DatabaseProvider = (*PostgreSQLProvider)(nil)
