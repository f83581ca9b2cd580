package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/dmitrijs2005/medsync/internal/server/migrations"
	"github.com/dmitrijs2005/medsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/medsync/internal/server/repositories/reference"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories.
type PostgresRepositoryManager struct {
	db *sql.DB
}

// migrate is a seam for tests that run against sqlmock.
var migrate = migrations.Up

// NewPostgresRepositoryManager connects to dsn and brings the schema up to
// date.
func NewPostgresRepositoryManager(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	m, err := newPostgresRepositoryManager(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func newPostgresRepositoryManager(ctx context.Context, db *sql.DB) (*PostgresRepositoryManager, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		return nil, err
	}
	return &PostgresRepositoryManager{db: db}, nil
}

func bind(db dbx.DBTX) Repositories {
	return Repositories{
		Records:   records.NewPostgresRepository(db),
		Reference: reference.NewPostgresRepository(db),
	}
}

func (m *PostgresRepositoryManager) Repos() Repositories {
	return bind(m.db)
}

func (m *PostgresRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, bind(tx))
	})
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
