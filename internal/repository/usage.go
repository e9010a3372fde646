package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rocketscienceinc/crictactoe/internal/selector"
)

// UsageRepository - per-label selection counters kept on the local machine.
type UsageRepository struct {
	conn *sql.DB
}

func NewUsageRepository(conn *sql.DB) *UsageRepository {
	return &UsageRepository{
		conn: conn,
	}
}

func (that *UsageRepository) Counts(ctx context.Context, category selector.Category) (map[string]int, error) {
	query := `SELECT label, uses FROM category_usage WHERE category = ?`

	rows, err := that.conn.QueryContext(ctx, query, string(category))
	if err != nil {
		return nil, fmt.Errorf("can't read usage counters: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			uses  int
		)
		if err = rows.Scan(&label, &uses); err != nil {
			return nil, fmt.Errorf("can't scan usage counter: %w", err)
		}
		counts[label] = uses
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read usage counters: %w", err)
	}

	return counts, nil
}

func (that *UsageRepository) Increment(ctx context.Context, category selector.Category, labels []string) error {
	query := `INSERT INTO category_usage (category, label, uses) VALUES (?, ?, 1)
		ON CONFLICT (category, label) DO UPDATE SET uses = uses + 1`

	tx, err := that.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("can't begin usage update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, label := range labels {
		if _, err = tx.ExecContext(ctx, query, string(category), label); err != nil {
			return fmt.Errorf("can't increment usage of %s: %w", label, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("can't commit usage update: %w", err)
	}

	return nil
}
