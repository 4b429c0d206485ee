package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/kkkkikiki/loyalty/internal/model"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 1, model.LevelFor(0))
	assert.Equal(t, 1, model.LevelFor(9))
	assert.Equal(t, 2, model.LevelFor(10))
	assert.Equal(t, 3, model.LevelFor(29))
}

func TestLoyaltyCard_Debit(t *testing.T) {
	now := time.Now()

	card := &model.LoyaltyCard{TotalStamps: 10, AvailableStamps: 10, Level: 2}
	assert.True(t, card.Debit(10, now))
	assert.Equal(t, 0, card.AvailableStamps)
	assert.Equal(t, 10, card.UsedStamps)
	assert.NoError(t, card.CheckInvariant())

	short := &model.LoyaltyCard{TotalStamps: 9, AvailableStamps: 9, Level: 1}
	assert.False(t, short.Debit(10, now))
	assert.Equal(t, 9, short.AvailableStamps)
	assert.Equal(t, 0, short.UsedStamps)
}

func TestLoyaltyCard_Refund(t *testing.T) {
	now := time.Now()
	card := &model.LoyaltyCard{TotalStamps: 10, AvailableStamps: 4, UsedStamps: 6, Level: 2}

	assert.False(t, card.Refund(7, now))
	assert.True(t, card.Refund(6, now))
	assert.Equal(t, 10, card.AvailableStamps)
	assert.Equal(t, 0, card.UsedStamps)
	assert.NoError(t, card.CheckInvariant())
}

func TestLoyaltyCard_CheckInvariant(t *testing.T) {
	assert.Error(t, (&model.LoyaltyCard{TotalStamps: 5, AvailableStamps: 3, UsedStamps: 1, Level: 1}).CheckInvariant())
	assert.Error(t, (&model.LoyaltyCard{TotalStamps: 12, AvailableStamps: 12, Level: 1}).CheckInvariant())
	assert.Error(t, (&model.LoyaltyCard{TotalStamps: 0, AvailableStamps: -1, UsedStamps: 1, Level: 1}).CheckInvariant())
	assert.NoError(t, (&model.LoyaltyCard{Level: 1}).CheckInvariant())
}

// Any sequence of credits and debits keeps the balance equations true.
func TestLoyaltyCard_InvariantProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		card := &model.LoyaltyCard{Level: 1}
		now := time.Now()

		ops := rapid.IntRange(1, 50).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			amount := rapid.IntRange(1, 10).Draw(t, "amount")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				card.Credit(amount, now)
			case 1:
				before := *card
				if !card.Debit(amount, now) && card.AvailableStamps != before.AvailableStamps {
					t.Fatalf("failed debit changed the card")
				}
			case 2:
				card.Refund(amount, now)
			}
			if err := card.CheckInvariant(); err != nil {
				t.Fatalf("after op %d: %v", i, err)
			}
		}
	})
}

func TestStamp_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stamp := &model.Stamp{ExpiresAt: now}

	assert.False(t, stamp.IsExpiredAt(now))
	assert.True(t, stamp.IsExpiredAt(now.Add(time.Nanosecond)))
}

func TestReward_Stock(t *testing.T) {
	zero, one := 0, 1

	assert.True(t, (&model.Reward{}).Unlimited())
	assert.True(t, (&model.Reward{}).InStock())
	assert.False(t, (&model.Reward{Stock: &zero}).InStock())
	assert.True(t, (&model.Reward{Stock: &one}).InStock())
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, model.Page{Limit: model.DefaultPageSize}, model.Page{}.Normalize())
	assert.Equal(t, model.Page{Limit: model.MaxPageSize, Offset: 0}, model.Page{Limit: 1000, Offset: -5}.Normalize())
}
