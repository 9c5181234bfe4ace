package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tordrt/dbtlineage/internal/export"
)

// SQLiteClient manages the connection to SQLite
type SQLiteClient struct {
	db *sql.DB
}

// NewSQLiteClient opens the database file, creating it and the lineage tables if needed
func NewSQLiteClient(ctx context.Context, path string) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &SQLiteClient{db: db}
	if err := c.writer().migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteClient) writer() sqlWriter {
	return sqlWriter{db: c.db, dialect: dialectSQLite}
}

// Save replaces the stored lineage with doc
func (c *SQLiteClient) Save(ctx context.Context, doc *export.Document) error {
	return c.writer().save(ctx, doc)
}

// Summary counts stored rows
func (c *SQLiteClient) Summary(ctx context.Context) (Summary, error) {
	return c.writer().summary(ctx)
}

// Close closes the database connection
func (c *SQLiteClient) Close(context.Context) error {
	return c.db.Close()
}

// GetDB returns the underlying database connection
func (c *SQLiteClient) GetDB() *sql.DB {
	return c.db
}
