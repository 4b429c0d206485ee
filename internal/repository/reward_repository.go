package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kkkkikiki/loyalty/internal/model"
)

const rewardColumns = `id, business_id, name, description, point_cost, stock, active,
	expiration_date, created_at, updated_at`

// RewardRepository handles reward catalog data operations
type RewardRepository struct{}

// NewRewardRepository creates a new reward repository
func NewRewardRepository() *RewardRepository {
	return &RewardRepository{}
}

// CreateReward inserts a reward.
func (r *RewardRepository) CreateReward(ctx context.Context, db DBExecutor, rw *model.Reward) error {
	_, err := exec(ctx, db, `
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rw.ID, rw.BusinessID, rw.Name, rw.Description, rw.PointCost, rw.Stock, rw.Active,
		rw.ExpirationDate, rw.CreatedAt, rw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

// UpdateReward overwrites the mutable fields of a business's reward.
func (r *RewardRepository) UpdateReward(ctx context.Context, db DBExecutor, rw *model.Reward) error {
	err := execOne(ctx, db, `
		UPDATE rewards
		SET name = ?, description = ?, point_cost = ?, stock = ?, active = ?,
			expiration_date = ?, updated_at = ?
		WHERE id = ? AND business_id = ?
	`, rw.Name, rw.Description, rw.PointCost, rw.Stock, rw.Active,
		rw.ExpirationDate, rw.UpdatedAt, rw.ID, rw.BusinessID)
	if errors.Is(err, ErrNoRowsUpdated) {
		return fmt.Errorf("reward: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}
	return nil
}

// GetReward retrieves a reward by id.
func (r *RewardRepository) GetReward(ctx context.Context, db DBExecutor, id string) (*model.Reward, error) {
	return r.getReward(ctx, db, id, "")
}

// LockReward is GetReward with the row locked.
func (r *RewardRepository) LockReward(ctx context.Context, db DBExecutor, id string) (*model.Reward, error) {
	return r.getReward(ctx, db, id, forUpdate(db))
}

func (r *RewardRepository) getReward(ctx context.Context, db DBExecutor, id, lock string) (*model.Reward, error) {
	var rw model.Reward
	if err := get(ctx, db, &rw, `SELECT `+rewardColumns+` FROM rewards WHERE id = ?`+lock, id); err != nil {
		return nil, wrapGet("reward", err)
	}
	return &rw, nil
}

// DecrementStock takes one unit from a finite reward. It fails with
// ErrNoRowsUpdated when the stock is already zero.
func (r *RewardRepository) DecrementStock(ctx context.Context, db DBExecutor, id string) error {
	err := execOne(ctx, db, `
		UPDATE rewards SET stock = stock - 1
		WHERE id = ? AND stock IS NOT NULL AND stock > 0
	`, id)
	if err != nil && !errors.Is(err, ErrNoRowsUpdated) {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	return err
}

// IncrementStock returns one unit to a finite reward.
func (r *RewardRepository) IncrementStock(ctx context.Context, db DBExecutor, id string) error {
	_, err := exec(ctx, db, `
		UPDATE rewards SET stock = stock + 1
		WHERE id = ? AND stock IS NOT NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return nil
}

// ListRewardsByBusiness lists a business's rewards, optionally including
// disabled ones.
func (r *RewardRepository) ListRewardsByBusiness(ctx context.Context, db DBExecutor, businessID string, includeInactive bool) ([]model.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE business_id = ?`
	if !includeInactive {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY point_cost ASC, name ASC`

	rewards := []model.Reward{}
	if err := selectAll(ctx, db, &rewards, query, businessID); err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, nil
}
