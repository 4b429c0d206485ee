package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kkkkikiki/loyalty/internal/model"
)

const redemptionColumns = `id, reward_id, client_id, card_id, business_id, points_spent,
	points_before, points_after, code, status, expires_at, delivered_at, delivered_by, notes,
	created_at, updated_at`

// ticketSelect joins a redemption with the display names of its client,
// reward and business.
const ticketSelect = `
	SELECT rr.id, rr.reward_id, rr.client_id, rr.card_id, rr.business_id, rr.points_spent,
		rr.points_before, rr.points_after, rr.code, rr.status, rr.expires_at, rr.delivered_at,
		rr.delivered_by, rr.notes, rr.created_at, rr.updated_at,
		c.name AS client_name, c.email AS client_email,
		rw.name AS reward_name, rw.description AS reward_description,
		b.name AS business_name, b.logo_url AS business_logo
	FROM reward_redemptions rr
	JOIN clients c ON c.id = rr.client_id
	JOIN rewards rw ON rw.id = rr.reward_id
	JOIN businesses b ON b.id = rr.business_id`

// RedemptionRepository handles reward redemption ticket data operations
type RedemptionRepository struct{}

// NewRedemptionRepository creates a new redemption repository
func NewRedemptionRepository() *RedemptionRepository {
	return &RedemptionRepository{}
}

// CodeExists reports whether any ticket, in any state or business, holds code.
func (r *RedemptionRepository) CodeExists(ctx context.Context, db DBExecutor, code string) (bool, error) {
	var n int
	if err := get(ctx, db, &n, `SELECT COUNT(*) FROM reward_redemptions WHERE code = ?`, code); err != nil {
		return false, fmt.Errorf("failed to check ticket code: %w", err)
	}
	return n > 0, nil
}

// CreateRedemption inserts a ticket. A code collision surfaces as
// ErrUniqueViolation.
func (r *RedemptionRepository) CreateRedemption(ctx context.Context, db DBExecutor, t *model.RewardRedemption) error {
	_, err := exec(ctx, db, `
		INSERT INTO reward_redemptions (`+redemptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.RewardID, t.ClientID, t.CardID, t.BusinessID, t.PointsSpent,
		t.PointsBefore, t.PointsAfter, t.Code, t.Status, t.ExpiresAt, t.DeliveredAt,
		t.DeliveredBy, t.Notes, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create redemption: %w", err)
	}
	return nil
}

// LockRedemption retrieves a ticket by id with the row locked.
func (r *RedemptionRepository) LockRedemption(ctx context.Context, db DBExecutor, id string) (*model.RewardRedemption, error) {
	var t model.RewardRedemption
	err := get(ctx, db, &t, `SELECT `+redemptionColumns+` FROM reward_redemptions WHERE id = ?`+forUpdate(db), id)
	if err != nil {
		return nil, wrapGet("redemption", err)
	}
	return &t, nil
}

// MarkDelivered flips a pending ticket to delivered.
func (r *RedemptionRepository) MarkDelivered(ctx context.Context, db DBExecutor, id, deliveredBy string, notes *string, at time.Time) error {
	return r.transition(ctx, db, `
		UPDATE reward_redemptions
		SET status = 'delivered', delivered_at = ?, delivered_by = ?, notes = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, at, deliveredBy, notes, at, id)
}

// MarkExpired flips a pending ticket to expired.
func (r *RedemptionRepository) MarkExpired(ctx context.Context, db DBExecutor, id string, at time.Time) error {
	return r.transition(ctx, db, `
		UPDATE reward_redemptions SET status = 'expired', updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, at, id)
}

// MarkCancelled flips a pending ticket to cancelled.
func (r *RedemptionRepository) MarkCancelled(ctx context.Context, db DBExecutor, id string, notes *string, at time.Time) error {
	return r.transition(ctx, db, `
		UPDATE reward_redemptions SET status = 'cancelled', notes = COALESCE(?, notes), updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, notes, at, id)
}

func (r *RedemptionRepository) transition(ctx context.Context, db DBExecutor, query string, args ...interface{}) error {
	err := execOne(ctx, db, query, args...)
	if err != nil && !errors.Is(err, ErrNoRowsUpdated) {
		return fmt.Errorf("failed to update redemption status: %w", err)
	}
	return err
}

// ExpireStale flips every pending ticket whose expiry passed before now.
// Tickets already in a terminal state are untouched, so repeated calls are
// harmless.
func (r *RedemptionRepository) ExpireStale(ctx context.Context, db DBExecutor, now time.Time) (int64, error) {
	res, err := exec(ctx, db, `
		UPDATE reward_redemptions SET status = 'expired', updated_at = ?
		WHERE status = 'pending' AND expires_at < ?
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire redemptions: %w", err)
	}
	return res.RowsAffected()
}

// GetTicket retrieves the ticket view by id.
func (r *RedemptionRepository) GetTicket(ctx context.Context, db DBExecutor, id string) (*model.Ticket, error) {
	var t model.Ticket
	if err := get(ctx, db, &t, ticketSelect+` WHERE rr.id = ?`, id); err != nil {
		return nil, wrapGet("ticket", err)
	}
	return &t, nil
}

// GetTicketByCode retrieves the ticket view by code, restricted to the
// owning business.
func (r *RedemptionRepository) GetTicketByCode(ctx context.Context, db DBExecutor, businessID, code string) (*model.Ticket, error) {
	var t model.Ticket
	if err := get(ctx, db, &t, ticketSelect+` WHERE rr.code = ? AND rr.business_id = ?`, code, businessID); err != nil {
		return nil, wrapGet("ticket", err)
	}
	return &t, nil
}

// ListTicketsByBusiness pages through a business's tickets, newest first.
func (r *RedemptionRepository) ListTicketsByBusiness(ctx context.Context, db DBExecutor, businessID string, f model.TicketFilter, p model.Page) ([]model.Ticket, error) {
	return r.listTickets(ctx, db, "rr.business_id = ?", businessID, f, p)
}

// ListTicketsByClient pages through a client's tickets, newest first.
func (r *RedemptionRepository) ListTicketsByClient(ctx context.Context, db DBExecutor, clientID string, f model.TicketFilter, p model.Page) ([]model.Ticket, error) {
	return r.listTickets(ctx, db, "rr.client_id = ?", clientID, f, p)
}

func (r *RedemptionRepository) listTickets(ctx context.Context, db DBExecutor, owner, ownerID string, f model.TicketFilter, p model.Page) ([]model.Ticket, error) {
	where := []string{owner}
	args := []interface{}{ownerID}
	if f.Status != "" {
		where = append(where, "rr.status = ?")
		args = append(args, f.Status)
	}
	args = append(args, p.Limit, p.Offset)

	tickets := []model.Ticket{}
	err := selectAll(ctx, db, &tickets, ticketSelect+`
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY rr.created_at DESC, rr.id
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// CountByStatus totals a business's tickets per status.
func (r *RedemptionRepository) CountByStatus(ctx context.Context, db DBExecutor, businessID string) (*model.DashboardCounts, error) {
	var rows []struct {
		Status model.RedemptionStatus `db:"status"`
		Total  int                    `db:"total"`
	}
	err := selectAll(ctx, db, &rows, `
		SELECT status, COUNT(*) AS total
		FROM reward_redemptions
		WHERE business_id = ?
		GROUP BY status
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}

	counts := &model.DashboardCounts{}
	for _, row := range rows {
		switch row.Status {
		case model.RedemptionPending:
			counts.Pending = row.Total
		case model.RedemptionDelivered:
			counts.Delivered = row.Total
		case model.RedemptionExpired:
			counts.Expired = row.Total
		case model.RedemptionCancelled:
			counts.Cancelled = row.Total
		}
	}
	return counts, nil
}
