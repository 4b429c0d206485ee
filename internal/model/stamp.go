package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StampKind distinguishes purchase stamps from visit stamps.
type StampKind string

const (
	StampKindPurchase StampKind = "purchase"
	StampKindVisit    StampKind = "visit"
)

// Valid reports whether k is a known kind.
func (k StampKind) Valid() bool {
	return k == StampKindPurchase || k == StampKindVisit
}

// StampStatus is the lifecycle state of a stamp.
type StampStatus string

const (
	StampActive    StampStatus = "active"
	StampUsed      StampStatus = "used"
	StampExpired   StampStatus = "expired"
	StampCancelled StampStatus = "cancelled"
)

// Stamp values are bounded so a single purchase cannot flood a card.
const (
	MinStampValue = 1
	MaxStampValue = 10
)

// Stamp represents an issued stamp code in the database
type Stamp struct {
	ID             string              `db:"id" json:"id"`
	BusinessID     string              `db:"business_id" json:"business_id"`
	Code           string              `db:"code" json:"code"`
	Value          int                 `db:"value" json:"value"`
	Kind           StampKind           `db:"kind" json:"kind"`
	SaleAmount     decimal.NullDecimal `db:"sale_amount" json:"sale_amount"`
	Description    string              `db:"description" json:"description"`
	Status         StampStatus         `db:"status" json:"status"`
	ExpiresAt      time.Time           `db:"expires_at" json:"expires_at"`
	UsedAt         *time.Time          `db:"used_at" json:"used_at,omitempty"`
	UsedByClientID *string             `db:"used_by_client_id" json:"used_by_client_id,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// IsExpiredAt reports whether the stamp's validity window has passed at now.
func (s *Stamp) IsExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// UsedBy reports whether the stamp was consumed by clientID.
func (s *Stamp) UsedBy(clientID string) bool {
	return s.Status == StampUsed && s.UsedByClientID != nil && *s.UsedByClientID == clientID
}

// StampRedemption is the redemption fact recorded when a client consumes a stamp.
type StampRedemption struct {
	StampID    string    `db:"stamp_id" json:"stamp_id"`
	ClientID   string    `db:"client_id" json:"client_id"`
	CardID     string    `db:"card_id" json:"card_id"`
	Points     int       `db:"points" json:"points"`
	RedeemedAt time.Time `db:"redeemed_at" json:"redeemed_at"`
}

// StampFilter narrows stamp listings. Zero values match everything.
type StampFilter struct {
	Status StampStatus `json:"status,omitempty"`
	Kind   StampKind   `json:"kind,omitempty"`
}
