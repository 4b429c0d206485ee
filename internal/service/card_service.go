package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/loyalty/internal/model"
)

// GetOrCreateCard returns the client's card at the business, opening an
// empty one on first contact.
func (s *LoyaltyService) GetOrCreateCard(ctx context.Context, clientID, businessID string) (*model.LoyaltyCard, error) {
	if err := s.requireClient(ctx, clientID); err != nil {
		return nil, err
	}
	if err := s.requireBusiness(ctx, businessID); err != nil {
		return nil, err
	}

	var card *model.LoyaltyCard
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		card, err = s.cardRepo.GetOrCreateCard(ctx, tx, clientID, businessID, s.now())
		if err != nil {
			return err
		}
		return checkCard(card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// GetCard returns the client's card at the business.
func (s *LoyaltyService) GetCard(ctx context.Context, clientID, businessID string) (*model.LoyaltyCard, error) {
	if clientID == "" || businessID == "" {
		return nil, invalid("client id and business id are required")
	}
	card, err := s.cardRepo.GetCardByOwner(ctx, s.db, clientID, businessID)
	if err != nil {
		return nil, lookupErr(err, "card")
	}
	if err := checkCard(card); err != nil {
		return nil, err
	}
	return card, nil
}

// ListCardsByClient lists the client's cards across businesses.
func (s *LoyaltyService) ListCardsByClient(ctx context.Context, clientID string, p model.Page) ([]model.LoyaltyCard, error) {
	if clientID == "" {
		return nil, invalid("client id is required")
	}
	cards, err := s.cardRepo.ListCardsByClient(ctx, s.db, clientID, p.Normalize())
	if err != nil {
		return nil, err
	}
	return checkCards(cards)
}

// ListCardsByBusiness lists the cards held at a business.
func (s *LoyaltyService) ListCardsByBusiness(ctx context.Context, businessID string, p model.Page) ([]model.LoyaltyCard, error) {
	if businessID == "" {
		return nil, invalid("business id is required")
	}
	cards, err := s.cardRepo.ListCardsByBusiness(ctx, s.db, businessID, p.Normalize())
	if err != nil {
		return nil, err
	}
	return checkCards(cards)
}

func checkCards(cards []model.LoyaltyCard) ([]model.LoyaltyCard, error) {
	for i := range cards {
		if err := checkCard(&cards[i]); err != nil {
			return nil, err
		}
	}
	return cards, nil
}
