package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tordrt/dbtlineage/internal/export"
)

// sqlWriter implements Save for database/sql drivers using ? placeholders.
type sqlWriter struct {
	db      *sql.DB
	dialect string
}

func (w sqlWriter) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(w.dialect) {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create lineage tables: %w", err)
		}
	}
	return nil
}

func (w sqlWriter) save(ctx context.Context, doc *export.Document) (err error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range lineageTables {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	models, columns, edges := rows(doc)

	modelStmt, err := tx.PrepareContext(ctx, `INSERT INTO lineage_models (id, project, original_name, description, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = modelStmt.Close() }()
	for _, m := range models {
		if _, err = modelStmt.ExecContext(ctx, m.ID, m.Project, m.OriginalName, m.Description, m.Position); err != nil {
			return fmt.Errorf("failed to insert model %s: %w", m.ID, err)
		}
	}

	columnStmt, err := tx.PrepareContext(ctx, `INSERT INTO lineage_columns (model_id, name, position, data_type, ai_description) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = columnStmt.Close() }()
	for _, c := range columns {
		if _, err = columnStmt.ExecContext(ctx, c.ModelID, c.Name, c.Position, c.DataType, c.AIDescription); err != nil {
			return fmt.Errorf("failed to insert column %s.%s: %w", c.ModelID, c.Name, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `INSERT INTO lineage_edges (source, target, position) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = edgeStmt.Close() }()
	for _, e := range edges {
		if _, err = edgeStmt.ExecContext(ctx, e.Source, e.Target, e.Position); err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", e.Source, e.Target, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lineage: %w", err)
	}
	return nil
}

func (w sqlWriter) summary(ctx context.Context) (Summary, error) {
	var s Summary
	if err := w.db.QueryRowContext(ctx, summaryQuery).Scan(&s.Models, &s.Columns, &s.Edges); err != nil {
		return Summary{}, fmt.Errorf("failed to count lineage rows: %w", err)
	}
	return s, nil
}
