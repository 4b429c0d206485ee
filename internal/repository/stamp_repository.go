package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kkkkikiki/loyalty/internal/model"
)

const stampColumns = `id, business_id, code, value, kind, sale_amount, description, status,
	expires_at, used_at, used_by_client_id, created_at, updated_at`

// StampRepository handles stamp data operations
type StampRepository struct{}

// NewStampRepository creates a new stamp repository
func NewStampRepository() *StampRepository {
	return &StampRepository{}
}

// CodeInUse reports whether a live (active or used) stamp holds code.
func (r *StampRepository) CodeInUse(ctx context.Context, db DBExecutor, code string) (bool, error) {
	var n int
	err := get(ctx, db, &n, `
		SELECT COUNT(*) FROM stamps
		WHERE code = ? AND status IN ('active', 'used')
	`, code)
	if err != nil {
		return false, fmt.Errorf("failed to check stamp code: %w", err)
	}
	return n > 0, nil
}

// CreateStamp inserts a new stamp. A code collision surfaces as
// ErrUniqueViolation.
func (r *StampRepository) CreateStamp(ctx context.Context, db DBExecutor, s *model.Stamp) error {
	_, err := exec(ctx, db, `
		INSERT INTO stamps (`+stampColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.BusinessID, s.Code, s.Value, s.Kind, s.SaleAmount, s.Description, s.Status,
		s.ExpiresAt, s.UsedAt, s.UsedByClientID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stamp: %w", err)
	}
	return nil
}

// GetStamp retrieves a stamp by id.
func (r *StampRepository) GetStamp(ctx context.Context, db DBExecutor, id string) (*model.Stamp, error) {
	var s model.Stamp
	if err := get(ctx, db, &s, `SELECT `+stampColumns+` FROM stamps WHERE id = ?`, id); err != nil {
		return nil, wrapGet("stamp", err)
	}
	return &s, nil
}

// GetStampByCode retrieves the stamp currently holding code. A live stamp
// wins over older expired or cancelled holders of the same code.
func (r *StampRepository) GetStampByCode(ctx context.Context, db DBExecutor, code string) (*model.Stamp, error) {
	return r.getByCode(ctx, db, code, "")
}

// LockStampByCode is GetStampByCode with the row locked for the rest of the
// transaction.
func (r *StampRepository) LockStampByCode(ctx context.Context, db DBExecutor, code string) (*model.Stamp, error) {
	return r.getByCode(ctx, db, code, forUpdate(db))
}

func (r *StampRepository) getByCode(ctx context.Context, db DBExecutor, code, lock string) (*model.Stamp, error) {
	var id string
	err := get(ctx, db, &id, `
		SELECT id FROM stamps
		WHERE code = ?
		ORDER BY CASE WHEN status IN ('active', 'used') THEN 0 ELSE 1 END, created_at DESC
		LIMIT 1
	`, code)
	if err != nil {
		return nil, wrapGet("stamp", err)
	}

	var s model.Stamp
	if err := get(ctx, db, &s, `SELECT `+stampColumns+` FROM stamps WHERE id = ?`+lock, id); err != nil {
		return nil, wrapGet("stamp", err)
	}
	return &s, nil
}

// MarkStampAsUsed flips an active stamp to used. It fails with
// ErrNoRowsUpdated when the stamp is no longer active.
func (r *StampRepository) MarkStampAsUsed(ctx context.Context, db DBExecutor, id, clientID string, at time.Time) error {
	err := execOne(ctx, db, `
		UPDATE stamps
		SET status = 'used', used_at = ?, used_by_client_id = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
	`, at, clientID, at, id)
	if err != nil && !errors.Is(err, ErrNoRowsUpdated) {
		return fmt.Errorf("failed to mark stamp as used: %w", err)
	}
	return err
}

// MarkStampAsExpired flips an active stamp to expired.
func (r *StampRepository) MarkStampAsExpired(ctx context.Context, db DBExecutor, id string, at time.Time) error {
	err := execOne(ctx, db, `
		UPDATE stamps SET status = 'expired', updated_at = ?
		WHERE id = ? AND status = 'active'
	`, at, id)
	if err != nil && !errors.Is(err, ErrNoRowsUpdated) {
		return fmt.Errorf("failed to mark stamp as expired: %w", err)
	}
	return err
}

// CancelStamp flips an active stamp owned by businessID to cancelled.
func (r *StampRepository) CancelStamp(ctx context.Context, db DBExecutor, id, businessID string, at time.Time) error {
	err := execOne(ctx, db, `
		UPDATE stamps SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND business_id = ? AND status = 'active'
	`, at, id, businessID)
	if err != nil && !errors.Is(err, ErrNoRowsUpdated) {
		return fmt.Errorf("failed to cancel stamp: %w", err)
	}
	return err
}

// ExpireStaleStamps flips every active stamp whose expiry passed before now.
func (r *StampRepository) ExpireStaleStamps(ctx context.Context, db DBExecutor, now time.Time) (int64, error) {
	res, err := exec(ctx, db, `
		UPDATE stamps SET status = 'expired', updated_at = ?
		WHERE status = 'active' AND expires_at < ?
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stamps: %w", err)
	}
	return res.RowsAffected()
}

// RecordRedemption stores the redemption fact. A second fact for the same
// stamp surfaces as ErrUniqueViolation.
func (r *StampRepository) RecordRedemption(ctx context.Context, db DBExecutor, red *model.StampRedemption) error {
	_, err := exec(ctx, db, `
		INSERT INTO stamp_redemptions (stamp_id, client_id, card_id, points, redeemed_at)
		VALUES (?, ?, ?, ?, ?)
	`, red.StampID, red.ClientID, red.CardID, red.Points, red.RedeemedAt)
	if err != nil {
		return fmt.Errorf("failed to record stamp redemption: %w", err)
	}
	return nil
}

// GetRedemption returns the redemption fact for a stamp.
func (r *StampRepository) GetRedemption(ctx context.Context, db DBExecutor, stampID string) (*model.StampRedemption, error) {
	var red model.StampRedemption
	err := get(ctx, db, &red, `
		SELECT stamp_id, client_id, card_id, points, redeemed_at
		FROM stamp_redemptions WHERE stamp_id = ?
	`, stampID)
	if err != nil {
		return nil, wrapGet("stamp redemption", err)
	}
	return &red, nil
}

// ListStampsByBusiness pages through a business's stamps, newest first.
func (r *StampRepository) ListStampsByBusiness(ctx context.Context, db DBExecutor, businessID string, f model.StampFilter, p model.Page) ([]model.Stamp, error) {
	where := []string{"business_id = ?"}
	args := []interface{}{businessID}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	args = append(args, p.Limit, p.Offset)

	stamps := []model.Stamp{}
	err := selectAll(ctx, db, &stamps, `
		SELECT `+stampColumns+` FROM stamps
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stamps: %w", err)
	}
	return stamps, nil
}

func wrapGet(what string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
