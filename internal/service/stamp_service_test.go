package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/service"
	"github.com/kkkkikiki/loyalty/internal/tiers"
)

// =============================================================================
// ISSUE
// =============================================================================

func TestIssueStamp_VisitStamp(t *testing.T) {
	f := newFixture(t)

	stamp, err := f.svc.IssueStamp(f.ctx, service.IssueStampRequest{
		BusinessID:  f.business,
		Kind:        model.StampKindVisit,
		Description: "Morning visit",
	})
	require.NoError(t, err)

	assert.Len(t, stamp.Code, 6)
	assert.NotEqual(t, byte('0'), stamp.Code[0])
	assert.Equal(t, 1, stamp.Value)
	assert.Equal(t, model.StampActive, stamp.Status)
	assert.True(t, stamp.ExpiresAt.Equal(f.clock.Now().Add(5*time.Minute)))

	stored, err := f.svc.GetStampByCode(f.ctx, stamp.Code)
	require.NoError(t, err)
	assert.Equal(t, stamp.ID, stored.ID)
	assert.Equal(t, "Morning visit", stored.Description)
}

func TestIssueStamp_CustomTTL(t *testing.T) {
	f := newFixture(t)

	stamp, err := f.svc.IssueStamp(f.ctx, service.IssueStampRequest{
		BusinessID: f.business,
		Kind:       model.StampKindVisit,
		TTL:        time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, stamp.ExpiresAt.Equal(f.clock.Now().Add(time.Minute)))
}

func TestIssueStamp_DerivesValueFromSaleAmount(t *testing.T) {
	catalog := tiers.NewCatalog()
	f := newFixture(t, func(o *service.Options) { o.Tiers = catalog })
	catalog.Businesses[f.business] = tiers.Table{
		{MinAmount: decimal.NewFromInt(0), Points: 1},
		{MinAmount: decimal.NewFromInt(10), Points: 2},
		{MinAmount: decimal.NewFromInt(20), Points: 3},
		{MinAmount: decimal.NewFromInt(20), Points: 4},
	}

	tests := []struct {
		amount string
		want   int
	}{
		{"5.00", 1},
		{"10.00", 2},
		{"19.99", 2},
		{"20.00", 4},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			stamp, err := f.svc.IssueStamp(f.ctx, service.IssueStampRequest{
				BusinessID: f.business,
				Kind:       model.StampKindPurchase,
				SaleAmount: &amount,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, stamp.Value)
			assert.True(t, stamp.SaleAmount.Valid)
			assert.True(t, amount.Equal(stamp.SaleAmount.Decimal))
		})
	}
}

func TestIssueStamp_RejectsBadInput(t *testing.T) {
	catalog := tiers.NewCatalog()
	catalog.Default = tiers.Table{{MinAmount: decimal.NewFromInt(5), Points: 1}}
	f := newFixture(t, func(o *service.Options) { o.Tiers = catalog })

	negative := decimal.NewFromInt(-1)
	small := decimal.RequireFromString("4.99")

	tests := map[string]service.IssueStampRequest{
		"unknown kind":        {BusinessID: f.business, Kind: "gift", Value: 1},
		"value too high":      {BusinessID: f.business, Kind: model.StampKindPurchase, Value: 11},
		"value negative":      {BusinessID: f.business, Kind: model.StampKindPurchase, Value: -2},
		"no value or amount":  {BusinessID: f.business, Kind: model.StampKindPurchase},
		"negative sale":       {BusinessID: f.business, Kind: model.StampKindPurchase, SaleAmount: &negative},
		"below every tier":    {BusinessID: f.business, Kind: model.StampKindPurchase, SaleAmount: &small},
		"missing business id": {Kind: model.StampKindVisit},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.IssueStamp(f.ctx, req)
			assert.ErrorIs(t, err, service.ErrInvalidArgument)
		})
	}

	_, err := f.svc.IssueStamp(f.ctx, service.IssueStampRequest{BusinessID: "biz-missing", Kind: model.StampKindVisit})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestIssueStamp_ConcurrentIssuesGetDistinctCodes(t *testing.T) {
	f := newFixture(t)

	const workers, perWorker = 50, 20
	codes := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				stamp, err := f.svc.IssueStamp(f.ctx, service.IssueStampRequest{
					BusinessID: f.business,
					Kind:       model.StampKindVisit,
				})
				if !assert.NoError(t, err) {
					return
				}
				codes <- stamp.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestIssueStamp_CodeSpaceExhausted(t *testing.T) {
	f := newFixture(t, func(o *service.Options) {
		o.StampCodeLength = 1 // nine codes: 1-9
		o.MaxCodeAttempts = 200
	})

	for i := 0; i < 9; i++ {
		f.issue(t, 1)
	}

	_, err := f.svc.IssueStamp(f.ctx, service.IssueStampRequest{BusinessID: f.business, Kind: model.StampKindVisit})
	assert.ErrorIs(t, err, service.ErrCodeSpaceExhausted)
}

func TestIssueStamp_ReusesCodesOfExpiredStamps(t *testing.T) {
	f := newFixture(t, func(o *service.Options) {
		o.StampCodeLength = 1
		o.MaxCodeAttempts = 200
	})

	for i := 0; i < 9; i++ {
		f.issue(t, 1)
	}
	f.clock.Advance(6 * time.Minute)
	n, err := f.svc.ExpireStaleStamps(f.ctx)
	require.NoError(t, err)
	require.Equal(t, int64(9), n)

	stamp := f.issue(t, 2)
	found, err := f.svc.GetStampByCode(f.ctx, stamp.Code)
	require.NoError(t, err)
	assert.Equal(t, stamp.ID, found.ID, "live stamp wins over expired holders of the code")
}

// =============================================================================
// REDEEM
// =============================================================================

func TestRedeemStamp_CreatesAndCreditsCard(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 3)

	res, err := f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	require.NoError(t, err)

	assert.Equal(t, 3, res.PointsEarned)
	assert.Equal(t, model.StampUsed, res.Stamp.Status)
	require.NotNil(t, res.Stamp.UsedByClientID)
	assert.Equal(t, f.ana, *res.Stamp.UsedByClientID)

	assert.Equal(t, 3, res.Card.TotalStamps)
	assert.Equal(t, 3, res.Card.AvailableStamps)
	assert.Equal(t, 0, res.Card.UsedStamps)
	assert.Equal(t, 1, res.Card.Level)
	assert.NotNil(t, res.Card.LastStampAt)

	card, err := f.svc.GetCard(f.ctx, f.ana, f.business)
	require.NoError(t, err)
	assert.Equal(t, res.Card.ID, card.ID)
	assert.Equal(t, 3, card.AvailableStamps)

	stored, err := f.svc.GetStampByCode(f.ctx, stamp.Code)
	require.NoError(t, err)
	assert.Equal(t, model.StampUsed, stored.Status)
	require.NotNil(t, stored.UsedAt)
}

func TestRedeemStamp_TenPointsReachesLevelTwo(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.RedeemStamp(f.ctx, f.ana, f.issue(t, 10).Code)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Card.TotalStamps)
	assert.Equal(t, 2, res.Card.Level)
}

func TestRedeemStamp_SameClientTwice(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 2)

	_, err := f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	require.NoError(t, err)

	_, err = f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	assert.ErrorIs(t, err, service.ErrAlreadyRedeemed)

	card, err := f.svc.GetCard(f.ctx, f.ana, f.business)
	require.NoError(t, err)
	assert.Equal(t, 2, card.TotalStamps, "no second credit")
}

func TestRedeemStamp_UsedByAnotherClient(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 2)

	_, err := f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	require.NoError(t, err)

	_, err = f.svc.RedeemStamp(f.ctx, f.ben, stamp.Code)
	assert.ErrorIs(t, err, service.ErrAlreadyUsed)

	_, err = f.svc.GetCard(f.ctx, f.ben, f.business)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestRedeemStamp_ExpiredFlipsStatus(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 2)

	f.clock.Advance(5*time.Minute + time.Second)

	_, err := f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	assert.ErrorIs(t, err, service.ErrExpired)

	var status string
	require.NoError(t, f.db.Get(&status, `SELECT status FROM stamps WHERE id = ?`, stamp.ID))
	assert.Equal(t, string(model.StampExpired), status)

	_, err = f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	assert.ErrorIs(t, err, service.ErrExpired)

	_, err = f.svc.GetCard(f.ctx, f.ana, f.business)
	assert.ErrorIs(t, err, service.ErrNotFound, "no card without a credit")
}

func TestRedeemStamp_AtExactExpiryStillValid(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 1)

	f.clock.Advance(5 * time.Minute)

	_, err := f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	assert.NoError(t, err)
}

func TestRedeemStamp_Cancelled(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 1)

	_, err := f.svc.CancelStamp(f.ctx, f.business, stamp.ID)
	require.NoError(t, err)

	_, err = f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	assert.ErrorIs(t, err, service.ErrAlreadyUsed)
}

func TestRedeemStamp_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RedeemStamp(f.ctx, f.ana, "999999")
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.svc.RedeemStamp(f.ctx, "client-missing", f.issue(t, 1).Code)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.svc.RedeemStamp(f.ctx, f.ana, "  ")
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}

func TestRedeemStamp_ConcurrentSameClient(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 4)

	const attempts = 20
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, service.ErrAlreadyRedeemed)
	}
	assert.Equal(t, 1, succeeded)

	card, err := f.svc.GetCard(f.ctx, f.ana, f.business)
	require.NoError(t, err)
	assert.Equal(t, 4, card.TotalStamps)
}

func TestRedeemStamp_ConcurrentDifferentClients(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 4)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, client := range []string{f.ana, f.ben} {
		wg.Add(1)
		go func(i int, client string) {
			defer wg.Done()
			_, errs[i] = f.svc.RedeemStamp(f.ctx, client, stamp.Code)
		}(i, client)
	}
	wg.Wait()

	if errs[0] == nil {
		assert.ErrorIs(t, errs[1], service.ErrAlreadyUsed)
	} else {
		assert.ErrorIs(t, errs[0], service.ErrAlreadyUsed)
		assert.NoError(t, errs[1])
	}
}

func TestRedeemStamp_CardsArePerBusiness(t *testing.T) {
	f := newFixture(t)
	f.earn(t, f.ana, 5)

	other, err := f.svc.IssueStamp(f.ctx, service.IssueStampRequest{
		BusinessID: f.otherBusiness,
		Kind:       model.StampKindVisit,
	})
	require.NoError(t, err)
	res, err := f.svc.RedeemStamp(f.ctx, f.ana, other.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Card.TotalStamps)

	cards, err := f.svc.ListCardsByClient(f.ctx, f.ana, model.Page{})
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

// =============================================================================
// CANCEL, LOOKUP, LIST, EXPIRE
// =============================================================================

func TestCancelStamp(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 1)

	_, err := f.svc.CancelStamp(f.ctx, f.otherBusiness, stamp.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	cancelled, err := f.svc.CancelStamp(f.ctx, f.business, stamp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StampCancelled, cancelled.Status)

	_, err = f.svc.CancelStamp(f.ctx, f.business, stamp.ID)
	assert.ErrorIs(t, err, service.ErrAlreadyUsed)

	_, err = f.svc.CancelStamp(f.ctx, f.business, "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestCancelStamp_UsedStampStays(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 1)
	_, err := f.svc.RedeemStamp(f.ctx, f.ana, stamp.Code)
	require.NoError(t, err)

	_, err = f.svc.CancelStamp(f.ctx, f.business, stamp.ID)
	assert.ErrorIs(t, err, service.ErrAlreadyUsed)

	stored, err := f.svc.GetStampByCode(f.ctx, stamp.Code)
	require.NoError(t, err)
	assert.Equal(t, model.StampUsed, stored.Status)
}

func TestGetStampByCode_FlipsExpired(t *testing.T) {
	f := newFixture(t)
	stamp := f.issue(t, 1)

	f.clock.Advance(10 * time.Minute)

	got, err := f.svc.GetStampByCode(f.ctx, stamp.Code)
	require.NoError(t, err)
	assert.Equal(t, model.StampExpired, got.Status)

	n, err := f.svc.ExpireStaleStamps(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already expired by the lookup")
}

func TestListStampsByBusiness(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.issue(t, 1)
	}
	used := f.issue(t, 2)
	_, err := f.svc.RedeemStamp(f.ctx, f.ana, used.Code)
	require.NoError(t, err)

	all, err := f.svc.ListStampsByBusiness(f.ctx, f.business, model.StampFilter{}, model.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	active, err := f.svc.ListStampsByBusiness(f.ctx, f.business, model.StampFilter{Status: model.StampActive}, model.Page{})
	require.NoError(t, err)
	assert.Len(t, active, 3)

	page, err := f.svc.ListStampsByBusiness(f.ctx, f.business, model.StampFilter{}, model.Page{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	none, err := f.svc.ListStampsByBusiness(f.ctx, f.otherBusiness, model.StampFilter{}, model.Page{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExpireStaleStamps_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.issue(t, 1)
	f.issue(t, 1)
	kept := f.issue(t, 1)
	_, err := f.svc.RedeemStamp(f.ctx, f.ana, kept.Code)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	n, err := f.svc.ExpireStaleStamps(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.svc.ExpireStaleStamps(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := f.svc.GetStampByCode(f.ctx, kept.Code)
	require.NoError(t, err)
	assert.Equal(t, model.StampUsed, stored.Status, "used stamps never expire")
}
