package model

import (
	"fmt"
	"time"
)

// StampsPerLevel is how many lifetime stamps move a card up one level.
const StampsPerLevel = 10

// LoyaltyCard is the per (client, business) running balance.
type LoyaltyCard struct {
	ID              string     `db:"id" json:"id"`
	ClientID        string     `db:"client_id" json:"client_id"`
	BusinessID      string     `db:"business_id" json:"business_id"`
	TotalStamps     int        `db:"total_stamps" json:"total_stamps"`
	AvailableStamps int        `db:"available_stamps" json:"available_stamps"`
	UsedStamps      int        `db:"used_stamps" json:"used_stamps"`
	Level           int        `db:"level" json:"level"`
	Version         int64      `db:"version" json:"version"`
	LastStampAt     *time.Time `db:"last_stamp_at" json:"last_stamp_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// LevelFor returns the level reached with total lifetime stamps.
func LevelFor(total int) int {
	return total/StampsPerLevel + 1
}

// CheckInvariant verifies the balance equations hold. A violation means the
// stored row is corrupt and must not be repaired silently.
func (c *LoyaltyCard) CheckInvariant() error {
	if c.TotalStamps != c.AvailableStamps+c.UsedStamps {
		return fmt.Errorf("card %s: total %d != available %d + used %d",
			c.ID, c.TotalStamps, c.AvailableStamps, c.UsedStamps)
	}
	if c.AvailableStamps < 0 || c.UsedStamps < 0 {
		return fmt.Errorf("card %s: negative balance (available %d, used %d)",
			c.ID, c.AvailableStamps, c.UsedStamps)
	}
	if c.Level != LevelFor(c.TotalStamps) {
		return fmt.Errorf("card %s: level %d does not match total %d", c.ID, c.Level, c.TotalStamps)
	}
	return nil
}

// Credit adds earned points to the card.
func (c *LoyaltyCard) Credit(amount int, at time.Time) {
	c.TotalStamps += amount
	c.AvailableStamps += amount
	c.Level = LevelFor(c.TotalStamps)
	c.LastStampAt = &at
	c.UpdatedAt = at
}

// Debit moves amount from available to used. It reports false and leaves the
// card untouched when the available balance is too small.
func (c *LoyaltyCard) Debit(amount int, at time.Time) bool {
	if amount < 0 || c.AvailableStamps < amount {
		return false
	}
	c.AvailableStamps -= amount
	c.UsedStamps += amount
	c.UpdatedAt = at
	return true
}

// Refund reverses a debit, returning amount from used to available.
func (c *LoyaltyCard) Refund(amount int, at time.Time) bool {
	if amount < 0 || c.UsedStamps < amount {
		return false
	}
	c.UsedStamps -= amount
	c.AvailableStamps += amount
	c.UpdatedAt = at
	return true
}
