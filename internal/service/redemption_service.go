package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kkkkikiki/loyalty/internal/codegen"
	"github.com/kkkkikiki/loyalty/internal/metrics"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
)

// RedeemReward exchanges the client's points for a reward and issues a
// pending ticket. The debit, the stock decrement and the ticket insert
// commit together.
func (s *LoyaltyService) RedeemReward(ctx context.Context, businessID, rewardID, clientID string) (ticket *model.Ticket, err error) {
	ctx, end := s.begin(ctx, "redeem_reward",
		attribute.String("business.id", businessID),
		attribute.String("reward.id", rewardID),
		attribute.String("client.id", clientID),
	)
	defer func() { end(err) }()

	if businessID == "" || rewardID == "" || clientID == "" {
		return nil, invalid("business id, reward id and client id are required")
	}

	format := codegen.TicketFormat(s.opts.TicketCodeLength)
	exists := func(ctx context.Context, code string) (bool, error) {
		return s.redemptionRepo.CodeExists(ctx, s.db, code)
	}

	for attempt := 0; attempt < s.opts.MaxCodeAttempts; attempt++ {
		code, collisions, err := codegen.Unique(ctx, format, s.opts.MaxCodeAttempts, exists)
		metrics.RecordCollisions("ticket", collisions)
		if err != nil {
			return nil, err
		}

		id, err := s.exchange(ctx, businessID, rewardID, clientID, code)
		if errors.Is(err, repository.ErrUniqueViolation) {
			// Another ticket took the code between the check and the insert.
			// The whole exchange rolled back, so it is safe to run again.
			metrics.RecordCollisions("ticket", 1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.redemptionRepo.GetTicket(ctx, s.db, id)
	}
	return nil, fmt.Errorf("ticket code kept colliding on insert: %w", ErrConflict)
}

func (s *LoyaltyService) exchange(ctx context.Context, businessID, rewardID, clientID, code string) (string, error) {
	now := s.now()
	ticketID := uuid.NewString()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		reward, err := s.rewardRepo.LockReward(ctx, tx, rewardID)
		if err != nil {
			return lookupErr(err, "reward")
		}
		if reward.BusinessID != businessID || !reward.Active {
			return notFound("reward")
		}
		if !reward.InStock() {
			return ErrOutOfStock
		}
		if reward.ExpiredAt(now) {
			return ErrRewardExpired
		}

		card, err := s.cardRepo.LockCardByOwner(ctx, tx, clientID, businessID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoCard
		}
		if err != nil {
			return err
		}
		if err := checkCard(card); err != nil {
			return err
		}
		shortage := &InsufficientPointsError{
			CardID:    card.ID,
			Available: card.AvailableStamps,
			Requested: reward.PointCost,
		}
		if card.AvailableStamps < reward.PointCost {
			return shortage
		}

		before := card.AvailableStamps
		card, err = s.cardRepo.Debit(ctx, tx, card.ID, reward.PointCost, now)
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return shortage
		}
		if err != nil {
			return balanceErr(err)
		}

		if !reward.Unlimited() {
			err := s.rewardRepo.DecrementStock(ctx, tx, reward.ID)
			if errors.Is(err, repository.ErrNoRowsUpdated) {
				return ErrOutOfStock
			}
			if err != nil {
				return err
			}
		}

		return s.redemptionRepo.CreateRedemption(ctx, tx, &model.RewardRedemption{
			ID:           ticketID,
			RewardID:     reward.ID,
			ClientID:     clientID,
			CardID:       card.ID,
			BusinessID:   businessID,
			PointsSpent:  reward.PointCost,
			PointsBefore: before,
			PointsAfter:  card.AvailableStamps,
			Code:         code,
			Status:       model.RedemptionPending,
			ExpiresAt:    now.Add(s.opts.TicketTTL),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	})
	if err != nil {
		return "", err
	}
	return ticketID, nil
}

// pendingTicket locks a ticket that belongs to businessID and is still
// pending. Anything else reads as not found. An expired pending ticket is
// reported through stale so the caller can flip it after rolling back.
func (s *LoyaltyService) pendingTicket(ctx context.Context, tx *sqlx.Tx, businessID, ticketID string, now time.Time, stale *string) (*model.RewardRedemption, error) {
	t, err := s.redemptionRepo.LockRedemption(ctx, tx, ticketID)
	if err != nil {
		return nil, lookupErr(err, "ticket")
	}
	if t.BusinessID != businessID || t.Status != model.RedemptionPending {
		return nil, notFound("ticket")
	}
	if t.IsExpiredAt(now) {
		*stale = t.ID
		return nil, fmt.Errorf("ticket %s: %w", t.Code, ErrExpired)
	}
	return t, nil
}

func (s *LoyaltyService) expireTicket(ctx context.Context, id string, now time.Time) error {
	err := s.redemptionRepo.MarkExpired(ctx, s.db, id, now)
	if errors.Is(err, repository.ErrNoRowsUpdated) {
		return nil
	}
	if err != nil {
		return err
	}
	metrics.RecordExpired("ticket", "lazy", 1)
	return nil
}

// DeliverRedemption marks a pending ticket as handed over by staff member
// deliveredBy.
func (s *LoyaltyService) DeliverRedemption(ctx context.Context, businessID, ticketID, deliveredBy string, notes *string) (ticket *model.Ticket, err error) {
	ctx, end := s.begin(ctx, "deliver_redemption",
		attribute.String("business.id", businessID),
		attribute.String("ticket.id", ticketID),
	)
	defer func() { end(err) }()

	if businessID == "" || ticketID == "" {
		return nil, invalid("business id and ticket id are required")
	}
	if strings.TrimSpace(deliveredBy) == "" {
		return nil, invalid("delivered by is required")
	}

	now := s.now()
	var staleID string
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.pendingTicket(ctx, tx, businessID, ticketID, now, &staleID)
		if err != nil {
			return err
		}
		err = s.redemptionRepo.MarkDelivered(ctx, tx, t.ID, deliveredBy, notes, now)
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return notFound("ticket")
		}
		return err
	})
	if staleID != "" {
		if ferr := s.expireTicket(ctx, staleID, now); ferr != nil {
			return nil, ferr
		}
	}
	if err != nil {
		return nil, err
	}
	return s.redemptionRepo.GetTicket(ctx, s.db, ticketID)
}

// CancelRedemption voids a pending ticket, refunds the spent points and
// returns the unit to a finite stock.
func (s *LoyaltyService) CancelRedemption(ctx context.Context, businessID, ticketID string, notes *string) (ticket *model.Ticket, err error) {
	ctx, end := s.begin(ctx, "cancel_redemption",
		attribute.String("business.id", businessID),
		attribute.String("ticket.id", ticketID),
	)
	defer func() { end(err) }()

	if businessID == "" || ticketID == "" {
		return nil, invalid("business id and ticket id are required")
	}

	now := s.now()
	var staleID string
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.pendingTicket(ctx, tx, businessID, ticketID, now, &staleID)
		if err != nil {
			return err
		}

		if _, err := s.rewardRepo.LockReward(ctx, tx, t.RewardID); err != nil {
			return err
		}
		if err := s.rewardRepo.IncrementStock(ctx, tx, t.RewardID); err != nil {
			return err
		}

		card, err := s.cardRepo.LockCard(ctx, tx, t.CardID)
		if err != nil {
			return err
		}
		if err := checkCard(card); err != nil {
			return err
		}
		if !card.Refund(t.PointsSpent, now) {
			return fmt.Errorf("%w: card %s cannot refund %d points", ErrInvariantViolation, card.ID, t.PointsSpent)
		}
		if err := s.cardRepo.SaveBalance(ctx, tx, card); err != nil {
			return balanceErr(err)
		}

		err = s.redemptionRepo.MarkCancelled(ctx, tx, t.ID, notes, now)
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return notFound("ticket")
		}
		return err
	})
	if staleID != "" {
		if ferr := s.expireTicket(ctx, staleID, now); ferr != nil {
			return nil, ferr
		}
	}
	if err != nil {
		return nil, err
	}
	return s.redemptionRepo.GetTicket(ctx, s.db, ticketID)
}

// FindTicketByCode looks up one of the business's tickets by its code. A
// pending ticket found past its expiry is flipped to expired first.
func (s *LoyaltyService) FindTicketByCode(ctx context.Context, businessID, code string) (*model.Ticket, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if businessID == "" || code == "" {
		return nil, invalid("business id and ticket code are required")
	}
	t, err := s.redemptionRepo.GetTicketByCode(ctx, s.db, businessID, code)
	if err != nil {
		return nil, lookupErr(err, "ticket")
	}

	now := s.now()
	if t.Status == model.RedemptionPending && t.IsExpiredAt(now) {
		if err := s.expireTicket(ctx, t.ID, now); err != nil {
			return nil, err
		}
		t.Status = model.RedemptionExpired
		t.UpdatedAt = now
	}
	return t, nil
}

// ListTicketsByBusiness pages through a business's tickets, newest first.
func (s *LoyaltyService) ListTicketsByBusiness(ctx context.Context, businessID string, f model.TicketFilter, p model.Page) ([]model.Ticket, error) {
	if businessID == "" {
		return nil, invalid("business id is required")
	}
	return s.redemptionRepo.ListTicketsByBusiness(ctx, s.db, businessID, f, p.Normalize())
}

// ListTicketsByClient pages through a client's tickets, newest first.
func (s *LoyaltyService) ListTicketsByClient(ctx context.Context, clientID string, f model.TicketFilter, p model.Page) ([]model.Ticket, error) {
	if clientID == "" {
		return nil, invalid("client id is required")
	}
	return s.redemptionRepo.ListTicketsByClient(ctx, s.db, clientID, f, p.Normalize())
}

// DashboardCounts totals the business's tickets by status.
func (s *LoyaltyService) DashboardCounts(ctx context.Context, businessID string) (*model.DashboardCounts, error) {
	if businessID == "" {
		return nil, invalid("business id is required")
	}
	return s.redemptionRepo.CountByStatus(ctx, s.db, businessID)
}

// ExpireStale flips every pending ticket past its expiry to expired and
// returns how many changed.
func (s *LoyaltyService) ExpireStale(ctx context.Context) (n int64, err error) {
	ctx, end := s.begin(ctx, "expire_stale_tickets")
	defer func() { end(err) }()

	n, err = s.redemptionRepo.ExpireStale(ctx, s.db, s.now())
	if err != nil {
		return 0, err
	}
	metrics.RecordExpired("ticket", "sweep", n)
	return n, nil
}
