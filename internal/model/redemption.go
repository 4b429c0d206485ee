package model

import "time"

// RedemptionStatus is the state of a reward redemption ticket.
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionDelivered RedemptionStatus = "delivered"
	RedemptionExpired   RedemptionStatus = "expired"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s RedemptionStatus) Terminal() bool {
	return s != RedemptionPending
}

// RewardRedemption is the ticket created when points are exchanged for a reward.
type RewardRedemption struct {
	ID           string           `db:"id" json:"id"`
	RewardID     string           `db:"reward_id" json:"reward_id"`
	ClientID     string           `db:"client_id" json:"client_id"`
	CardID       string           `db:"card_id" json:"card_id"`
	BusinessID   string           `db:"business_id" json:"business_id"`
	PointsSpent  int              `db:"points_spent" json:"points_spent"`
	PointsBefore int              `db:"points_before" json:"points_before"`
	PointsAfter  int              `db:"points_after" json:"points_after"`
	Code         string           `db:"code" json:"code"`
	Status       RedemptionStatus `db:"status" json:"status"`
	ExpiresAt    time.Time        `db:"expires_at" json:"expires_at"`
	DeliveredAt  *time.Time       `db:"delivered_at" json:"delivered_at,omitempty"`
	DeliveredBy  *string          `db:"delivered_by" json:"delivered_by,omitempty"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// IsExpiredAt reports whether the ticket's pickup window closed before now.
func (r *RewardRedemption) IsExpiredAt(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// Ticket is a redemption joined with the names shown to clients and staff.
type Ticket struct {
	RewardRedemption
	ClientName        string `db:"client_name" json:"client_name"`
	ClientEmail       string `db:"client_email" json:"client_email"`
	RewardName        string `db:"reward_name" json:"reward_name"`
	RewardDescription string `db:"reward_description" json:"reward_description"`
	BusinessName      string `db:"business_name" json:"business_name"`
	BusinessLogo      string `db:"business_logo" json:"business_logo"`
}

// TicketFilter narrows ticket listings. Zero values match everything.
type TicketFilter struct {
	Status RedemptionStatus `json:"status,omitempty"`
}

// DashboardCounts totals a business's tickets by status.
type DashboardCounts struct {
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
	Expired   int `json:"expired"`
	Cancelled int `json:"cancelled"`
}
