package repository

import (
	"context"
	"fmt"

	"github.com/kkkkikiki/loyalty/internal/model"
)

// DirectoryRepository reads and refreshes the business and client records
// mirrored from the account system.
type DirectoryRepository struct{}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository() *DirectoryRepository {
	return &DirectoryRepository{}
}

// UpsertBusiness inserts or refreshes a business record.
func (r *DirectoryRepository) UpsertBusiness(ctx context.Context, db DBExecutor, b *model.Business) error {
	_, err := exec(ctx, db, `
		INSERT INTO businesses (id, name, logo_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, logo_url = excluded.logo_url, updated_at = excluded.updated_at
	`, b.ID, b.Name, b.LogoURL, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert business: %w", err)
	}
	return nil
}

// UpsertClient inserts or refreshes a client record.
func (r *DirectoryRepository) UpsertClient(ctx context.Context, db DBExecutor, c *model.Client) error {
	_, err := exec(ctx, db, `
		INSERT INTO clients (id, name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, email = excluded.email, updated_at = excluded.updated_at
	`, c.ID, c.Name, c.Email, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}
	return nil
}

// GetBusiness retrieves a business by id.
func (r *DirectoryRepository) GetBusiness(ctx context.Context, db DBExecutor, id string) (*model.Business, error) {
	var b model.Business
	err := get(ctx, db, &b, `SELECT id, name, logo_url, created_at, updated_at FROM businesses WHERE id = ?`, id)
	if err != nil {
		return nil, wrapGet("business", err)
	}
	return &b, nil
}

// GetClient retrieves a client by id.
func (r *DirectoryRepository) GetClient(ctx context.Context, db DBExecutor, id string) (*model.Client, error) {
	var c model.Client
	err := get(ctx, db, &c, `SELECT id, name, email, created_at, updated_at FROM clients WHERE id = ?`, id)
	if err != nil {
		return nil, wrapGet("client", err)
	}
	return &c, nil
}
