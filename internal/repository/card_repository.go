package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/loyalty/internal/model"
)

const cardColumns = `id, client_id, business_id, total_stamps, available_stamps, used_stamps,
	level, version, last_stamp_at, created_at, updated_at`

// ErrInsufficientBalance is returned by Debit when the card cannot cover the
// amount.
var ErrInsufficientBalance = errors.New("insufficient card balance")

// CardRepository handles loyalty card data operations. Balance mutations
// must run inside a transaction: the row is locked on read and written back
// with a version check.
type CardRepository struct{}

// NewCardRepository creates a new card repository
func NewCardRepository() *CardRepository {
	return &CardRepository{}
}

// EnsureCard creates the (client, business) card if it does not exist yet.
// Concurrent callers converge on the same row.
func (r *CardRepository) EnsureCard(ctx context.Context, db DBExecutor, clientID, businessID string, now time.Time) error {
	_, err := exec(ctx, db, `
		INSERT INTO loyalty_cards (id, client_id, business_id, total_stamps, available_stamps,
			used_stamps, level, version, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, 0, 1, 0, ?, ?)
		ON CONFLICT (client_id, business_id) DO NOTHING
	`, uuid.NewString(), clientID, businessID, now, now)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// GetOrCreateCard returns the card for the pair, creating it when missing.
// Inside a transaction the returned row is locked.
func (r *CardRepository) GetOrCreateCard(ctx context.Context, db DBExecutor, clientID, businessID string, now time.Time) (*model.LoyaltyCard, error) {
	if err := r.EnsureCard(ctx, db, clientID, businessID, now); err != nil {
		return nil, err
	}
	return r.LockCardByOwner(ctx, db, clientID, businessID)
}

// GetCardByOwner retrieves the card for a (client, business) pair.
func (r *CardRepository) GetCardByOwner(ctx context.Context, db DBExecutor, clientID, businessID string) (*model.LoyaltyCard, error) {
	return r.getCard(ctx, db, "client_id = ? AND business_id = ?", "", clientID, businessID)
}

// LockCardByOwner is GetCardByOwner with the row locked.
func (r *CardRepository) LockCardByOwner(ctx context.Context, db DBExecutor, clientID, businessID string) (*model.LoyaltyCard, error) {
	return r.getCard(ctx, db, "client_id = ? AND business_id = ?", forUpdate(db), clientID, businessID)
}

// GetCard retrieves a card by id.
func (r *CardRepository) GetCard(ctx context.Context, db DBExecutor, id string) (*model.LoyaltyCard, error) {
	return r.getCard(ctx, db, "id = ?", "", id)
}

// LockCard is GetCard with the row locked.
func (r *CardRepository) LockCard(ctx context.Context, db DBExecutor, id string) (*model.LoyaltyCard, error) {
	return r.getCard(ctx, db, "id = ?", forUpdate(db), id)
}

func (r *CardRepository) getCard(ctx context.Context, db DBExecutor, where, lock string, args ...interface{}) (*model.LoyaltyCard, error) {
	var c model.LoyaltyCard
	if err := get(ctx, db, &c, `SELECT `+cardColumns+` FROM loyalty_cards WHERE `+where+lock, args...); err != nil {
		return nil, wrapGet("card", err)
	}
	return &c, nil
}

// SaveBalance writes the card's balances back if nobody else changed the
// row since it was read, and bumps its version.
func (r *CardRepository) SaveBalance(ctx context.Context, db DBExecutor, c *model.LoyaltyCard) error {
	err := execOne(ctx, db, `
		UPDATE loyalty_cards
		SET total_stamps = ?, available_stamps = ?, used_stamps = ?, level = ?,
			last_stamp_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, c.TotalStamps, c.AvailableStamps, c.UsedStamps, c.Level,
		c.LastStampAt, c.UpdatedAt, c.ID, c.Version)
	if err != nil {
		if errors.Is(err, ErrNoRowsUpdated) {
			return err
		}
		return fmt.Errorf("failed to save card balance: %w", err)
	}
	c.Version++
	return nil
}

// Credit locks the card and adds amount to its total and available balance.
func (r *CardRepository) Credit(ctx context.Context, db DBExecutor, cardID string, amount int, at time.Time) (*model.LoyaltyCard, error) {
	c, err := r.LockCard(ctx, db, cardID)
	if err != nil {
		return nil, err
	}
	c.Credit(amount, at)
	if err := r.SaveBalance(ctx, db, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Debit locks the card and moves amount from available to used.
func (r *CardRepository) Debit(ctx context.Context, db DBExecutor, cardID string, amount int, at time.Time) (*model.LoyaltyCard, error) {
	c, err := r.LockCard(ctx, db, cardID)
	if err != nil {
		return nil, err
	}
	if !c.Debit(amount, at) {
		return nil, ErrInsufficientBalance
	}
	if err := r.SaveBalance(ctx, db, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCardsByClient lists a client's cards across businesses.
func (r *CardRepository) ListCardsByClient(ctx context.Context, db DBExecutor, clientID string, p model.Page) ([]model.LoyaltyCard, error) {
	return r.list(ctx, db, "client_id = ?", clientID, p)
}

// ListCardsByBusiness lists the cards held at a business.
func (r *CardRepository) ListCardsByBusiness(ctx context.Context, db DBExecutor, businessID string, p model.Page) ([]model.LoyaltyCard, error) {
	return r.list(ctx, db, "business_id = ?", businessID, p)
}

func (r *CardRepository) list(ctx context.Context, db DBExecutor, where, arg string, p model.Page) ([]model.LoyaltyCard, error) {
	cards := []model.LoyaltyCard{}
	err := selectAll(ctx, db, &cards, `
		SELECT `+cardColumns+` FROM loyalty_cards
		WHERE `+where+`
		ORDER BY updated_at DESC, id
		LIMIT ? OFFSET ?
	`, arg, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}
