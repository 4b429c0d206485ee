package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/loyalty/internal/model"
)

func validateRewardInput(in model.RewardInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("reward name is required")
	}
	if in.PointCost <= 0 {
		return invalid("point cost must be positive, got %d", in.PointCost)
	}
	if in.Stock != nil && *in.Stock < 0 {
		return invalid("stock must not be negative, got %d", *in.Stock)
	}
	return nil
}

// CreateReward adds a reward to the business's catalog. A nil stock makes
// the reward unlimited.
func (s *LoyaltyService) CreateReward(ctx context.Context, businessID string, in model.RewardInput) (*model.Reward, error) {
	if err := validateRewardInput(in); err != nil {
		return nil, err
	}
	if err := s.requireBusiness(ctx, businessID); err != nil {
		return nil, err
	}

	now := s.now()
	reward := &model.Reward{
		ID:             uuid.NewString(),
		BusinessID:     businessID,
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		PointCost:      in.PointCost,
		Stock:          in.Stock,
		Active:         in.Active == nil || *in.Active,
		ExpirationDate: in.ExpirationDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.rewardRepo.CreateReward(ctx, s.db, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// UpdateReward replaces the reward's editable fields. Stock and expiration
// are taken as given, so nil clears them; a nil Active keeps the current
// flag.
func (s *LoyaltyService) UpdateReward(ctx context.Context, businessID, rewardID string, in model.RewardInput) (*model.Reward, error) {
	if err := validateRewardInput(in); err != nil {
		return nil, err
	}

	var reward *model.Reward
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		reward, err = s.ownedReward(ctx, tx, businessID, rewardID)
		if err != nil {
			return err
		}
		reward.Name = strings.TrimSpace(in.Name)
		reward.Description = in.Description
		reward.PointCost = in.PointCost
		reward.Stock = in.Stock
		reward.ExpirationDate = in.ExpirationDate
		if in.Active != nil {
			reward.Active = *in.Active
		}
		reward.UpdatedAt = s.now()
		return s.rewardRepo.UpdateReward(ctx, tx, reward)
	})
	if err != nil {
		return nil, lookupErr(err, "reward")
	}
	return reward, nil
}

// DisableReward hides a reward from the catalog. Issued tickets stay valid.
func (s *LoyaltyService) DisableReward(ctx context.Context, businessID, rewardID string) (*model.Reward, error) {
	var reward *model.Reward
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		reward, err = s.ownedReward(ctx, tx, businessID, rewardID)
		if err != nil {
			return err
		}
		if !reward.Active {
			return nil
		}
		reward.Active = false
		reward.UpdatedAt = s.now()
		return s.rewardRepo.UpdateReward(ctx, tx, reward)
	})
	if err != nil {
		return nil, lookupErr(err, "reward")
	}
	return reward, nil
}

// GetReward returns one of the business's rewards, active or not.
func (s *LoyaltyService) GetReward(ctx context.Context, businessID, rewardID string) (*model.Reward, error) {
	if businessID == "" || rewardID == "" {
		return nil, invalid("business id and reward id are required")
	}
	reward, err := s.rewardRepo.GetReward(ctx, s.db, rewardID)
	if err != nil {
		return nil, lookupErr(err, "reward")
	}
	if reward.BusinessID != businessID {
		return nil, notFound("reward")
	}
	return reward, nil
}

// ListRewardsByBusiness lists the business's catalog. Disabled rewards are
// included only on request.
func (s *LoyaltyService) ListRewardsByBusiness(ctx context.Context, businessID string, includeInactive bool) ([]model.Reward, error) {
	if businessID == "" {
		return nil, invalid("business id is required")
	}
	return s.rewardRepo.ListRewardsByBusiness(ctx, s.db, businessID, includeInactive)
}

// ownedReward locks a reward and hides rewards of other businesses.
func (s *LoyaltyService) ownedReward(ctx context.Context, tx *sqlx.Tx, businessID, rewardID string) (*model.Reward, error) {
	if businessID == "" || rewardID == "" {
		return nil, invalid("business id and reward id are required")
	}
	reward, err := s.rewardRepo.LockReward(ctx, tx, rewardID)
	if err != nil {
		return nil, lookupErr(err, "reward")
	}
	if reward.BusinessID != businessID {
		return nil, notFound("reward")
	}
	return reward, nil
}
