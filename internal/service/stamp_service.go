package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kkkkikiki/loyalty/internal/codegen"
	"github.com/kkkkikiki/loyalty/internal/metrics"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/tiers"
)

// IssueStampRequest describes a stamp a business hands out.
type IssueStampRequest struct {
	BusinessID  string
	Kind        model.StampKind
	Description string

	// Value is the number of points the stamp is worth. When zero, purchase
	// stamps derive it from SaleAmount through the business's tier table and
	// visit stamps are worth one point.
	Value      int
	SaleAmount *decimal.Decimal

	// TTL overrides the configured stamp lifetime when positive.
	TTL time.Duration
}

// StampRedemptionResult is the outcome of a successful stamp redemption.
type StampRedemptionResult struct {
	Stamp        *model.Stamp       `json:"stamp"`
	Card         *model.LoyaltyCard `json:"card"`
	PointsEarned int                `json:"points_earned"`
}

// IssueStamp creates a new active stamp with a fresh code.
func (s *LoyaltyService) IssueStamp(ctx context.Context, req IssueStampRequest) (stamp *model.Stamp, err error) {
	ctx, end := s.begin(ctx, "issue_stamp",
		attribute.String("business.id", req.BusinessID),
		attribute.String("stamp.kind", string(req.Kind)),
	)
	defer func() { end(err) }()

	if !req.Kind.Valid() {
		return nil, invalid("unknown stamp kind %q", req.Kind)
	}
	value, err := s.stampValue(req)
	if err != nil {
		return nil, err
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.opts.StampTTL
	}
	if err := s.requireBusiness(ctx, req.BusinessID); err != nil {
		return nil, err
	}

	now := s.now()
	stamp = &model.Stamp{
		ID:          uuid.NewString(),
		BusinessID:  req.BusinessID,
		Value:       value,
		Kind:        req.Kind,
		Description: req.Description,
		Status:      model.StampActive,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.SaleAmount != nil {
		stamp.SaleAmount = decimal.NewNullDecimal(*req.SaleAmount)
	}

	format := codegen.StampFormat(s.opts.StampCodeLength)
	inUse := func(ctx context.Context, code string) (bool, error) {
		return s.stampRepo.CodeInUse(ctx, s.db, code)
	}

	// The pre-check and the insert are not atomic; the partial unique index
	// on live codes settles races between concurrent issuers.
	for attempt := 0; attempt < s.opts.MaxCodeAttempts; attempt++ {
		code, collisions, err := codegen.Unique(ctx, format, s.opts.MaxCodeAttempts, inUse)
		metrics.RecordCollisions("stamp", collisions)
		if err != nil {
			return nil, err
		}

		stamp.Code = code
		err = s.stampRepo.CreateStamp(ctx, s.db, stamp)
		if err == nil {
			return stamp, nil
		}
		if !errors.Is(err, repository.ErrUniqueViolation) {
			return nil, err
		}
		metrics.RecordCollisions("stamp", 1)
	}
	return nil, fmt.Errorf("stamp code kept colliding on insert: %w", ErrConflict)
}

func (s *LoyaltyService) stampValue(req IssueStampRequest) (int, error) {
	if req.SaleAmount != nil && req.SaleAmount.IsNegative() {
		return 0, invalid("sale amount must not be negative")
	}

	value := req.Value
	switch {
	case value != 0:
	case req.Kind == model.StampKindVisit:
		value = 1
	case req.SaleAmount != nil:
		points, err := s.opts.Tiers.PointsFor(req.BusinessID, *req.SaleAmount)
		if errors.Is(err, tiers.ErrNoTier) {
			return 0, invalid("sale amount %s is below every tier", req.SaleAmount.String())
		}
		if err != nil {
			return 0, err
		}
		value = points
	default:
		return 0, invalid("purchase stamp needs a value or a sale amount")
	}

	if value < model.MinStampValue || value > model.MaxStampValue {
		return 0, invalid("stamp value %d outside [%d, %d]", value, model.MinStampValue, model.MaxStampValue)
	}
	return value, nil
}

// RedeemStamp credits the stamp's value to the client's card at the issuing
// business, creating the card on first use. The stamp flip, the redemption
// record and the card credit commit together or not at all.
func (s *LoyaltyService) RedeemStamp(ctx context.Context, clientID, code string) (res *StampRedemptionResult, err error) {
	ctx, end := s.begin(ctx, "redeem_stamp", attribute.String("client.id", clientID))
	defer func() { end(err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("stamp code is required")
	}
	if err := s.requireClient(ctx, clientID); err != nil {
		return nil, err
	}

	now := s.now()
	var staleID string
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		stamp, err := s.stampRepo.LockStampByCode(ctx, tx, code)
		if err != nil {
			return lookupErr(err, "stamp")
		}

		switch stamp.Status {
		case model.StampUsed:
			if stamp.UsedBy(clientID) {
				return ErrAlreadyRedeemed
			}
			return ErrAlreadyUsed
		case model.StampCancelled:
			return ErrAlreadyUsed
		case model.StampExpired:
			return fmt.Errorf("stamp %s: %w", code, ErrExpired)
		}
		if stamp.IsExpiredAt(now) {
			staleID = stamp.ID
			return fmt.Errorf("stamp %s: %w", code, ErrExpired)
		}

		card, err := s.cardRepo.GetOrCreateCard(ctx, tx, clientID, stamp.BusinessID, now)
		if err != nil {
			return err
		}
		if err := checkCard(card); err != nil {
			return err
		}

		if err := s.stampRepo.MarkStampAsUsed(ctx, tx, stamp.ID, clientID, now); err != nil {
			if errors.Is(err, repository.ErrNoRowsUpdated) {
				return ErrAlreadyUsed
			}
			return err
		}
		err = s.stampRepo.RecordRedemption(ctx, tx, &model.StampRedemption{
			StampID:    stamp.ID,
			ClientID:   clientID,
			CardID:     card.ID,
			Points:     stamp.Value,
			RedeemedAt: now,
		})
		if errors.Is(err, repository.ErrUniqueViolation) {
			return ErrAlreadyRedeemed
		}
		if err != nil {
			return err
		}

		card, err = s.cardRepo.Credit(ctx, tx, card.ID, stamp.Value, now)
		if err != nil {
			return balanceErr(err)
		}

		stamp.Status = model.StampUsed
		stamp.UsedAt = &now
		stamp.UsedByClientID = &clientID
		stamp.UpdatedAt = now
		res = &StampRedemptionResult{Stamp: stamp, Card: card, PointsEarned: stamp.Value}
		return nil
	})

	// The expiry flip runs after the rollback so it survives the failed
	// redemption.
	if staleID != "" {
		if ferr := s.expireStamp(ctx, staleID, now); ferr != nil {
			return nil, ferr
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *LoyaltyService) expireStamp(ctx context.Context, id string, now time.Time) error {
	err := s.stampRepo.MarkStampAsExpired(ctx, s.db, id, now)
	if errors.Is(err, repository.ErrNoRowsUpdated) {
		return nil
	}
	if err != nil {
		return err
	}
	metrics.RecordExpired("stamp", "lazy", 1)
	return nil
}

// CancelStamp withdraws an active stamp issued by businessID.
func (s *LoyaltyService) CancelStamp(ctx context.Context, businessID, stampID string) (stamp *model.Stamp, err error) {
	ctx, end := s.begin(ctx, "cancel_stamp", attribute.String("business.id", businessID))
	defer func() { end(err) }()

	if businessID == "" || stampID == "" {
		return nil, invalid("business id and stamp id are required")
	}

	err = s.stampRepo.CancelStamp(ctx, s.db, stampID, businessID, s.now())
	if err != nil && !errors.Is(err, repository.ErrNoRowsUpdated) {
		return nil, err
	}

	stamp, gerr := s.stampRepo.GetStamp(ctx, s.db, stampID)
	if gerr != nil {
		return nil, lookupErr(gerr, "stamp")
	}
	if stamp.BusinessID != businessID {
		return nil, notFound("stamp")
	}
	if err != nil {
		if stamp.Status == model.StampExpired {
			return nil, fmt.Errorf("stamp %s: %w", stamp.Code, ErrExpired)
		}
		return nil, ErrAlreadyUsed
	}
	return stamp, nil
}

// GetStampByCode returns the stamp holding code. An active stamp found past
// its expiry is flipped to expired before it is returned.
func (s *LoyaltyService) GetStampByCode(ctx context.Context, code string) (*model.Stamp, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("stamp code is required")
	}
	stamp, err := s.stampRepo.GetStampByCode(ctx, s.db, code)
	if err != nil {
		return nil, lookupErr(err, "stamp")
	}

	now := s.now()
	if stamp.Status == model.StampActive && stamp.IsExpiredAt(now) {
		if err := s.expireStamp(ctx, stamp.ID, now); err != nil {
			return nil, err
		}
		stamp.Status = model.StampExpired
		stamp.UpdatedAt = now
	}
	return stamp, nil
}

// ListStampsByBusiness pages through the stamps a business issued.
func (s *LoyaltyService) ListStampsByBusiness(ctx context.Context, businessID string, f model.StampFilter, p model.Page) ([]model.Stamp, error) {
	if businessID == "" {
		return nil, invalid("business id is required")
	}
	return s.stampRepo.ListStampsByBusiness(ctx, s.db, businessID, f, p.Normalize())
}

// ExpireStaleStamps flips every active stamp past its expiry to expired and
// returns how many changed.
func (s *LoyaltyService) ExpireStaleStamps(ctx context.Context) (n int64, err error) {
	ctx, end := s.begin(ctx, "expire_stale_stamps")
	defer func() { end(err) }()

	n, err = s.stampRepo.ExpireStaleStamps(ctx, s.db, s.now())
	if err != nil {
		return 0, err
	}
	metrics.RecordExpired("stamp", "sweep", n)
	return n, nil
}
