package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ParthMishra20/pokedex/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	mintedAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	asset := storage.AssetRecord{
		ID: 1, Owner: "alice", SourceID: 25, Name: "pikachu",
		RarityTier: "rare", Shiny: true, Delegate: "market", MintedAt: mintedAt,
	}
	item := storage.ItemRecord{
		ItemID: 1, AssetID: 1, Seller: "alice",
		Price: decimal.RequireFromString("1.000"), ListedAt: mintedAt,
	}

	require.NoError(t, s.SaveAsset(ctx, asset))
	require.NoError(t, s.SaveItem(ctx, item))
	require.NoError(t, s.SaveFeeBasisPoints(ctx, 250))
	require.NoError(t, s.SaveTreasury(ctx, decimal.RequireFromString("0.025")))
	require.NoError(t, s.SaveProceeds(ctx, "alice", decimal.RequireFromString("0.975")))
	require.NoError(t, s.SaveCounter(ctx, storage.CounterAssetSeq, 1))
	require.NoError(t, s.SaveCounter(ctx, storage.CounterItemSeq, 1))

	snap, err := s.Load(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Assets, 1)
	assert.Equal(t, asset, snap.Assets[0])
	require.Len(t, snap.Items, 1)
	assert.Equal(t, item, snap.Items[0])
	assert.Equal(t, uint32(250), snap.FeeBasisPoints)
	assert.True(t, snap.FeeSet)
	assert.True(t, snap.Treasury.Equal(decimal.RequireFromString("0.025")))
	assert.True(t, snap.Proceeds["alice"].Equal(decimal.RequireFromString("0.975")))
	assert.Equal(t, uint64(1), snap.Counters[storage.CounterAssetSeq])
	assert.Equal(t, uint64(1), snap.Counters[storage.CounterItemSeq])
}

func TestFeePresenceDistinguishesZeroFromUnset(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, snap.FeeSet, "a fresh store has no persisted fee")

	require.NoError(t, s.SaveFeeBasisPoints(ctx, 0))
	snap, err = s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, snap.FeeSet)
	assert.Equal(t, uint32(0), snap.FeeBasisPoints)
}

func TestLoadReturnsRecordsInIDOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for _, id := range []uint64{3, 1, 2} {
		require.NoError(t, s.SaveAsset(ctx, storage.AssetRecord{ID: id, Owner: "alice", SourceID: id, Name: "eevee"}))
		require.NoError(t, s.SaveItem(ctx, storage.ItemRecord{ItemID: id, AssetID: id, Seller: "alice", Price: decimal.NewFromInt(1)}))
	}

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	for i := 1; i < len(snap.Assets); i++ {
		assert.Less(t, snap.Assets[i-1].ID, snap.Assets[i].ID)
	}
	for i := 1; i < len(snap.Items); i++ {
		assert.Less(t, snap.Items[i-1].ItemID, snap.Items[i].ItemID)
	}
}

func TestDeleteItem(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.SaveItem(ctx, storage.ItemRecord{ItemID: 1, AssetID: 1, Seller: "alice", Price: decimal.NewFromInt(1)}))
	require.NoError(t, s.DeleteItem(ctx, 1))
	assert.ErrorIs(t, s.DeleteItem(ctx, 1), storage.ErrNotFound)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}

func TestApplySaleWritesEveryRecord(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.SaveAsset(ctx, storage.AssetRecord{ID: 1, Owner: "market", SourceID: 25, Name: "pikachu"}))
	require.NoError(t, s.SaveItem(ctx, storage.ItemRecord{ItemID: 1, AssetID: 1, Seller: "alice", Price: decimal.NewFromInt(1)}))

	upd := storage.SaleUpdate{
		Item:     storage.ItemRecord{ItemID: 1, AssetID: 1, Seller: "alice", Owner: "bob", Price: decimal.NewFromInt(1), Sold: true},
		Asset:    storage.AssetRecord{ID: 1, Owner: "bob", SourceID: 25, Name: "pikachu"},
		Seller:   "alice",
		Proceeds: decimal.RequireFromString("0.975"),
		Treasury: decimal.RequireFromString("0.025"),
	}
	require.NoError(t, s.ApplySale(ctx, upd))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Items[0].Sold)
	assert.Equal(t, "bob", snap.Items[0].Owner)
	assert.Equal(t, "bob", snap.Assets[0].Owner)
	assert.True(t, snap.Proceeds["alice"].Equal(upd.Proceeds))
	assert.True(t, snap.Treasury.Equal(upd.Treasury))
}
