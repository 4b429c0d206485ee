package service_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/service"
)

func TestGetOrCreateCard(t *testing.T) {
	f := newFixture(t)

	card, err := f.svc.GetOrCreateCard(f.ctx, f.ana, f.business)
	require.NoError(t, err)
	assert.Equal(t, 0, card.TotalStamps)
	assert.Equal(t, 1, card.Level)
	assert.Nil(t, card.LastStampAt)

	again, err := f.svc.GetOrCreateCard(f.ctx, f.ana, f.business)
	require.NoError(t, err)
	assert.Equal(t, card.ID, again.ID)

	_, err = f.svc.GetOrCreateCard(f.ctx, "client-missing", f.business)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.svc.GetOrCreateCard(f.ctx, f.ana, "biz-missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestGetOrCreateCard_ConcurrentCallersShareOneCard(t *testing.T) {
	f := newFixture(t)

	const callers = 10
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			card, err := f.svc.GetOrCreateCard(f.ctx, f.ben, f.business)
			if assert.NoError(t, err) {
				ids[i] = card.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestGetCard_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetCard(f.ctx, f.ana, f.business)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.svc.GetCard(f.ctx, "", f.business)
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}

func TestGetCard_RejectsCorruptRow(t *testing.T) {
	f := newFixture(t)
	card := f.earn(t, f.ana, 4)

	_, err := f.db.Exec(`UPDATE loyalty_cards SET level = 5 WHERE id = ?`, card.ID)
	require.NoError(t, err)

	_, err = f.svc.GetCard(f.ctx, f.ana, f.business)
	assert.ErrorIs(t, err, service.ErrInvariantViolation)
	assert.True(t, service.IsFatal(err))
	assert.False(t, service.IsBusinessError(err))

	_, err = f.svc.RedeemStamp(f.ctx, f.ana, f.issue(t, 1).Code)
	assert.ErrorIs(t, err, service.ErrInvariantViolation, "writes refuse to build on a corrupt card")
}

func TestListCards(t *testing.T) {
	f := newFixture(t)
	f.earn(t, f.ana, 3)
	f.earn(t, f.ben, 12)

	cards, err := f.svc.ListCardsByBusiness(f.ctx, f.business, model.Page{})
	require.NoError(t, err)
	require.Len(t, cards, 2)

	total := 0
	for _, card := range cards {
		assert.NoError(t, card.CheckInvariant())
		total += card.TotalStamps
	}
	assert.Equal(t, 15, total)

	first, err := f.svc.ListCardsByBusiness(f.ctx, f.business, model.Page{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, first, 1)

	anas, err := f.svc.ListCardsByClient(f.ctx, f.ana, model.Page{})
	require.NoError(t, err)
	require.Len(t, anas, 1)
	assert.Equal(t, 3, anas[0].AvailableStamps)
}

func TestSyncDirectory(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.SyncBusiness(f.ctx, model.Business{ID: f.business, Name: "Blue Door Roasters"})
	require.NoError(t, err)
	assert.Equal(t, "Blue Door Roasters", b.Name)

	_, err = f.svc.SyncBusiness(f.ctx, model.Business{ID: "biz-x"})
	assert.ErrorIs(t, err, service.ErrInvalidArgument)

	c, err := f.svc.SyncClient(f.ctx, model.Client{ID: f.ana, Name: "Ana Lima", Email: "ana.lima@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ana.lima@example.com", c.Email)

	_, err = f.svc.SyncClient(f.ctx, model.Client{Name: "Nobody"})
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}
