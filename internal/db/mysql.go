package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tordrt/dbtlineage/internal/export"
)

// MySQLClient manages the connection to MySQL
type MySQLClient struct {
	db *sql.DB
}

// NewMySQLClient connects and creates the lineage tables if needed
func NewMySQLClient(ctx context.Context, connString string) (*MySQLClient, error) {
	db, err := sql.Open("mysql", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &MySQLClient{db: db}
	if err := c.writer().migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *MySQLClient) writer() sqlWriter {
	return sqlWriter{db: c.db, dialect: dialectMySQL}
}

// Save replaces the stored lineage with doc
func (c *MySQLClient) Save(ctx context.Context, doc *export.Document) error {
	return c.writer().save(ctx, doc)
}

// Summary counts stored rows
func (c *MySQLClient) Summary(ctx context.Context) (Summary, error) {
	return c.writer().summary(ctx)
}

// Close closes the database connection
func (c *MySQLClient) Close(context.Context) error {
	return c.db.Close()
}

// GetDB returns the underlying database connection
func (c *MySQLClient) GetDB() *sql.DB {
	return c.db
}
