package model

import (
	"time"
)

// Reward is a catalog item exchangeable for card points. A nil Stock means
// the reward is unlimited.
type Reward struct {
	ID             string     `db:"id" json:"id"`
	BusinessID     string     `db:"business_id" json:"business_id"`
	Name           string     `db:"name" json:"name"`
	Description    string     `db:"description" json:"description"`
	PointCost      int        `db:"point_cost" json:"point_cost"`
	Stock          *int       `db:"stock" json:"stock,omitempty"`
	Active         bool       `db:"active" json:"active"`
	ExpirationDate *time.Time `db:"expiration_date" json:"expiration_date,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Unlimited reports whether the reward has no stock ceiling.
func (r *Reward) Unlimited() bool {
	return r.Stock == nil
}

// InStock reports whether at least one unit can be handed out.
func (r *Reward) InStock() bool {
	return r.Stock == nil || *r.Stock > 0
}

// ExpiredAt reports whether the reward's validity window closed before now.
func (r *Reward) ExpiredAt(now time.Time) bool {
	return r.ExpirationDate != nil && r.ExpirationDate.Before(now)
}

// RewardInput carries the mutable fields of a reward.
type RewardInput struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	PointCost      int        `json:"point_cost"`
	Stock          *int       `json:"stock,omitempty"`
	Active         *bool      `json:"active,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}
