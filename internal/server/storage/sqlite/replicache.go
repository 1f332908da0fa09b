package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/internal/server/storage"
)

// GetClientGroup retrieves a client group record by ID
// Returns storage.ErrClientGroupNotFound if the record does not exist
func (t *sqlTx) GetClientGroup(ctx context.Context, id string) (*models.ClientGroup, error) {
	query := `
		SELECT id, user_id, cvr_version, created_at
		FROM replicache_client_groups
		WHERE id = ?
	`

	group := &models.ClientGroup{}
	var createdAt int64

	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&group.ID,
		&group.UserID,
		&group.CVRVersion,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrClientGroupNotFound
		}
		return nil, fmt.Errorf("failed to get client group: %w", err)
	}

	group.CreatedAt = time.Unix(createdAt, 0)
	return group, nil
}

// PutClientGroup inserts or updates a client group record (upsert by ID)
func (t *sqlTx) PutClientGroup(ctx context.Context, group *models.ClientGroup) error {
	query := `
		INSERT INTO replicache_client_groups (id, user_id, cvr_version, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			cvr_version = excluded.cvr_version
	`

	_, err := t.tx.ExecContext(ctx, query,
		group.ID,
		group.UserID,
		group.CVRVersion,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put client group: %w", err)
	}

	return nil
}

// GetClient retrieves a client record by ID within a client group
// Returns storage.ErrClientNotFound if the record does not exist
func (t *sqlTx) GetClient(ctx context.Context, id, clientGroupID string) (*models.Client, error) {
	query := `
		SELECT id, client_group_id, last_mutation_id, created_at
		FROM replicache_clients
		WHERE id = ? AND client_group_id = ?
	`

	client := &models.Client{}
	var createdAt int64

	err := t.tx.QueryRowContext(ctx, query, id, clientGroupID).Scan(
		&client.ID,
		&client.ClientGroupID,
		&client.LastMutationID,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	client.CreatedAt = time.Unix(createdAt, 0)
	return client, nil
}

// PutClient inserts or updates a client record (upsert by ID)
func (t *sqlTx) PutClient(ctx context.Context, client *models.Client) error {
	query := `
		INSERT INTO replicache_clients (id, client_group_id, last_mutation_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			client_group_id = excluded.client_group_id,
			last_mutation_id = excluded.last_mutation_id
	`

	_, err := t.tx.ExecContext(ctx, query,
		client.ID,
		client.ClientGroupID,
		client.LastMutationID,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put client: %w", err)
	}

	return nil
}

// SearchClients returns (clientID, lastMutationID) pairs for a client group.
// lastMutationID играет роль row version для коллекции client в CVR.
func (t *sqlTx) SearchClients(ctx context.Context, clientGroupID string) ([]storage.VersionRow, error) {
	query := `
		SELECT id, last_mutation_id
		FROM replicache_clients
		WHERE client_group_id = ?
	`

	rows, err := t.tx.QueryContext(ctx, query, clientGroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to search clients: %w", err)
	}
	defer rows.Close()

	return scanVersionRows(rows)
}
