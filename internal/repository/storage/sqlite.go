package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	// import the SQLite driver to register it with the database/sql package.
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Storage struct {
	Connection *sql.DB
}

func NewSQLiteStorage(path string) (*Storage, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	if err = conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	return &Storage{Connection: conn}, nil
}

// Init - applies pending schema migrations.
func (that *Storage) Init(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("can't set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, that.Connection, "migrations"); err != nil {
		return fmt.Errorf("can't apply migrations: %w", err)
	}

	return nil
}

// Ping - health probe.
func (that *Storage) Ping(ctx context.Context) error {
	return that.Connection.PingContext(ctx)
}

func (that *Storage) Close() error {
	return that.Connection.Close()
}
