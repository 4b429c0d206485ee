package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kkkkikiki/loyalty/internal/config"
	"github.com/kkkkikiki/loyalty/internal/metrics"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/tiers"
)

// Options tunes the core. Zero fields fall back to DefaultOptions.
type Options struct {
	StampTTL         time.Duration
	TicketTTL        time.Duration
	StampCodeLength  int
	TicketCodeLength int
	MaxCodeAttempts  int

	// Tiers maps sale amounts to stamp values per business.
	Tiers *tiers.Catalog

	// Clock returns the current time. Tests replace it to move past expiry.
	Clock func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		StampTTL:         5 * time.Minute,
		TicketTTL:        24 * time.Hour,
		StampCodeLength:  6,
		TicketCodeLength: 8,
		MaxCodeAttempts:  10,
		Tiers:            tiers.NewCatalog(),
		Clock:            time.Now,
	}
}

// OptionsFromConfig builds options from the LOYALTY_* settings.
func OptionsFromConfig(cfg config.LoyaltyConfig, catalog *tiers.Catalog) Options {
	return Options{
		StampTTL:         cfg.StampTTL,
		TicketTTL:        cfg.TicketTTL,
		StampCodeLength:  cfg.StampCodeLength,
		TicketCodeLength: cfg.TicketCodeLength,
		MaxCodeAttempts:  cfg.MaxCodeAttempts,
		Tiers:            catalog,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StampTTL <= 0 {
		o.StampTTL = d.StampTTL
	}
	if o.TicketTTL <= 0 {
		o.TicketTTL = d.TicketTTL
	}
	if o.StampCodeLength <= 0 {
		o.StampCodeLength = d.StampCodeLength
	}
	if o.TicketCodeLength <= 0 {
		o.TicketCodeLength = d.TicketCodeLength
	}
	if o.MaxCodeAttempts <= 0 {
		o.MaxCodeAttempts = d.MaxCodeAttempts
	}
	if o.Tiers == nil {
		o.Tiers = d.Tiers
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// LoyaltyService implements the stamp ledger, card store, reward catalog and
// redemption ticket manager on top of a relational store.
type LoyaltyService struct {
	db             *sqlx.DB
	stampRepo      *repository.StampRepository
	cardRepo       *repository.CardRepository
	rewardRepo     *repository.RewardRepository
	redemptionRepo *repository.RedemptionRepository
	directoryRepo  *repository.DirectoryRepository
	opts           Options
	tracer         trace.Tracer
}

// NewLoyaltyService creates a new LoyaltyService instance
func NewLoyaltyService(db *sqlx.DB, opts Options) *LoyaltyService {
	return &LoyaltyService{
		db:             db,
		stampRepo:      repository.NewStampRepository(),
		cardRepo:       repository.NewCardRepository(),
		rewardRepo:     repository.NewRewardRepository(),
		redemptionRepo: repository.NewRedemptionRepository(),
		directoryRepo:  repository.NewDirectoryRepository(),
		opts:           opts.withDefaults(),
		tracer:         otel.Tracer("github.com/kkkkikiki/loyalty/internal/service"),
	}
}

// now is truncated to microseconds, the precision Postgres keeps.
func (s *LoyaltyService) now() time.Time {
	return s.opts.Clock().UTC().Truncate(time.Microsecond)
}

// withTx runs fn in a transaction, committing only when fn returns nil.
func (s *LoyaltyService) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// begin opens a span for op and returns the function that closes it and
// records the operation's duration and outcome.
func (s *LoyaltyService) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "loyalty."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		result := resultLabel(err)
		metrics.RecordOperation(op, result, time.Since(start).Seconds())
		span.SetAttributes(attribute.String("result", result))
		if err != nil {
			span.RecordError(err)
			if !IsBusinessError(err) {
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
	}
}

// checkCard aborts on a card whose stored balances are inconsistent.
func checkCard(card *model.LoyaltyCard) error {
	if err := card.CheckInvariant(); err != nil {
		log.Printf("[Loyalty] FATAL card invariant broken: %v", err)
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return nil
}

// lookupErr turns a repository miss into the business ErrNotFound.
func lookupErr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(what)
	}
	return err
}

// balanceErr maps card write failures. A lost version check under a held
// row lock means another writer bypassed the lock.
func balanceErr(err error) error {
	if errors.Is(err, repository.ErrNoRowsUpdated) {
		return fmt.Errorf("card balance changed concurrently: %w", ErrConflict)
	}
	return err
}

// SyncBusiness mirrors a business record from the account system.
func (s *LoyaltyService) SyncBusiness(ctx context.Context, b model.Business) (*model.Business, error) {
	if b.ID == "" || b.Name == "" {
		return nil, invalid("business id and name are required")
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	if err := s.directoryRepo.UpsertBusiness(ctx, s.db, &b); err != nil {
		return nil, err
	}
	return s.directoryRepo.GetBusiness(ctx, s.db, b.ID)
}

// SyncClient mirrors a client record from the account system.
func (s *LoyaltyService) SyncClient(ctx context.Context, c model.Client) (*model.Client, error) {
	if c.ID == "" || c.Name == "" {
		return nil, invalid("client id and name are required")
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.directoryRepo.UpsertClient(ctx, s.db, &c); err != nil {
		return nil, err
	}
	return s.directoryRepo.GetClient(ctx, s.db, c.ID)
}

func (s *LoyaltyService) requireBusiness(ctx context.Context, id string) error {
	if id == "" {
		return invalid("business id is required")
	}
	if _, err := s.directoryRepo.GetBusiness(ctx, s.db, id); err != nil {
		return lookupErr(err, "business")
	}
	return nil
}

func (s *LoyaltyService) requireClient(ctx context.Context, id string) error {
	if id == "" {
		return invalid("client id is required")
	}
	if _, err := s.directoryRepo.GetClient(ctx, s.db, id); err != nil {
		return lookupErr(err, "client")
	}
	return nil
}
