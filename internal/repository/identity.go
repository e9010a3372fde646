package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// IdentityRepository - the guest identifier of this machine.
type IdentityRepository struct {
	conn *sql.DB
}

func NewIdentityRepository(conn *sql.DB) *IdentityRepository {
	return &IdentityRepository{
		conn: conn,
	}
}

// GetOrCreate - the stored guest id, generating and saving one on first use.
func (that *IdentityRepository) GetOrCreate(ctx context.Context) (string, error) {
	var id string

	err := that.conn.QueryRowContext(ctx, `SELECT id FROM identity ORDER BY created_at LIMIT 1`).Scan(&id)
	if err == nil {
		return id, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("can't read identity: %w", err)
	}

	id = "guest-" + uuid.NewString()
	if _, err = that.conn.ExecContext(ctx, `INSERT INTO identity (id) VALUES (?)`, id); err != nil {
		return "", fmt.Errorf("can't save identity: %w", err)
	}

	return id, nil
}
