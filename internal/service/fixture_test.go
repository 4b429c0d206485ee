package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/loyalty/internal/config"
	"github.com/kkkkikiki/loyalty/internal/database"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/service"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx   context.Context
	svc   *service.LoyaltyService
	db    *sqlx.DB
	clock *testClock

	business      string
	otherBusiness string
	ana           string
	ben           string
}

func newFixture(t *testing.T, tweaks ...func(*service.Options)) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDB(ctx, &config.Config{
		Database: config.DatabaseConfig{
			Driver: "sqlite3",
			Path:   filepath.Join(t.TempDir(), "loyalty.db"),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	opts := service.DefaultOptions()
	opts.Clock = clock.Now
	for _, tweak := range tweaks {
		tweak(&opts)
	}

	f := &fixture{
		ctx:           ctx,
		svc:           service.NewLoyaltyService(db.Conn, opts),
		db:            db.Conn,
		clock:         clock,
		business:      "biz-" + uuid.NewString(),
		otherBusiness: "biz-" + uuid.NewString(),
		ana:           "client-" + uuid.NewString(),
		ben:           "client-" + uuid.NewString(),
	}

	_, err = f.svc.SyncBusiness(ctx, model.Business{ID: f.business, Name: "Blue Door Coffee", LogoURL: "https://cdn.example/blue.png"})
	require.NoError(t, err)
	_, err = f.svc.SyncBusiness(ctx, model.Business{ID: f.otherBusiness, Name: "Corner Bakery"})
	require.NoError(t, err)
	_, err = f.svc.SyncClient(ctx, model.Client{ID: f.ana, Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	_, err = f.svc.SyncClient(ctx, model.Client{ID: f.ben, Name: "Ben", Email: "ben@example.com"})
	require.NoError(t, err)

	return f
}

// issue hands out an active stamp worth value points.
func (f *fixture) issue(t *testing.T, value int) *model.Stamp {
	t.Helper()
	stamp, err := f.svc.IssueStamp(f.ctx, service.IssueStampRequest{
		BusinessID: f.business,
		Kind:       model.StampKindPurchase,
		Value:      value,
	})
	require.NoError(t, err)
	return stamp
}

// earn credits points to the client's card through issued stamps.
func (f *fixture) earn(t *testing.T, clientID string, points int) *model.LoyaltyCard {
	t.Helper()
	var card *model.LoyaltyCard
	for points > 0 {
		value := min(points, model.MaxStampValue)
		res, err := f.svc.RedeemStamp(f.ctx, clientID, f.issue(t, value).Code)
		require.NoError(t, err)
		card = res.Card
		points -= value
	}
	return card
}

func (f *fixture) reward(t *testing.T, cost int, stock *int) *model.Reward {
	t.Helper()
	reward, err := f.svc.CreateReward(f.ctx, f.business, model.RewardInput{
		Name:        "Free latte",
		Description: "Any size",
		PointCost:   cost,
		Stock:       stock,
	})
	require.NoError(t, err)
	return reward
}

func intPtr(n int) *int { return &n }
