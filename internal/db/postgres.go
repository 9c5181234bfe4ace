package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tordrt/dbtlineage/internal/export"
)

// PostgresClient manages the connection to PostgreSQL
type PostgresClient struct {
	conn *pgx.Conn
}

// NewPostgresClient connects and creates the lineage tables if needed
func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range schemaStatements(dialectPostgres) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("failed to create lineage tables: %w", err)
		}
	}

	return &PostgresClient{conn: conn}, nil
}

// Save replaces the stored lineage with doc. Columns are bulk loaded with COPY.
func (c *PostgresClient) Save(ctx context.Context, doc *export.Document) error {
	return pgx.BeginFunc(ctx, c.conn, func(tx pgx.Tx) error {
		for _, table := range lineageTables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		models, columns, edges := rows(doc)

		batch := &pgx.Batch{}
		for _, m := range models {
			batch.Queue(`INSERT INTO lineage_models (id, project, original_name, description, position) VALUES ($1, $2, $3, $4, $5)`,
				m.ID, m.Project, m.OriginalName, m.Description, m.Position)
		}
		for _, e := range edges {
			batch.Queue(`INSERT INTO lineage_edges (source, target, position) VALUES ($1, $2, $3)`,
				e.Source, e.Target, e.Position)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert models and edges: %w", err)
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"lineage_columns"},
			[]string{"model_id", "name", "position", "data_type", "ai_description"},
			pgx.CopyFromSlice(len(columns), func(i int) ([]any, error) {
				col := columns[i]
				return []any{col.ModelID, col.Name, col.Position, col.DataType, col.AIDescription}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy columns: %w", err)
		}
		return nil
	})
}

// Summary counts stored rows
func (c *PostgresClient) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	if err := c.conn.QueryRow(ctx, summaryQuery).Scan(&s.Models, &s.Columns, &s.Edges); err != nil {
		return Summary{}, fmt.Errorf("failed to count lineage rows: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (c *PostgresClient) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// GetConnection returns the underlying connection
func (c *PostgresClient) GetConnection() *pgx.Conn {
	return c.conn
}
