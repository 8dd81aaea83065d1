package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ParthMishra20/pokedex/internal/storage"
	"github.com/shopspring/decimal"
)

// Store is the in-memory storage backend. It is the default for development
// and tests; state lives for the life of the process only, but the write
// paths mirror the Postgres backend so the ledger behaves identically on
// either.
type Store struct {
	mu       sync.RWMutex
	assets   map[uint64]storage.AssetRecord
	items    map[uint64]storage.ItemRecord
	feeBps   uint32
	feeSet   bool
	treasury decimal.Decimal
	proceeds map[string]decimal.Decimal
	counters map[string]uint64
}

func NewStore() *Store {
	return &Store{
		assets:   make(map[uint64]storage.AssetRecord),
		items:    make(map[uint64]storage.ItemRecord),
		treasury: decimal.Zero,
		proceeds: make(map[string]decimal.Decimal),
		counters: make(map[string]uint64),
	}
}

func (s *Store) SaveAsset(ctx context.Context, rec storage.AssetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[rec.ID] = rec
	return nil
}

func (s *Store) SaveItem(ctx context.Context, rec storage.ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.ItemID] = rec
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, itemID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[itemID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.items, itemID)
	return nil
}

func (s *Store) ApplySale(ctx context.Context, upd storage.SaleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[upd.Item.ItemID] = upd.Item
	s.assets[upd.Asset.ID] = upd.Asset
	s.proceeds[upd.Seller] = upd.Proceeds
	s.treasury = upd.Treasury
	return nil
}

func (s *Store) SaveFeeBasisPoints(ctx context.Context, bps uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeBps = bps
	s.feeSet = true
	return nil
}

func (s *Store) SaveTreasury(ctx context.Context, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treasury = amount
	return nil
}

func (s *Store) SaveProceeds(ctx context.Context, identity string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proceeds[identity] = amount
	return nil
}

func (s *Store) SaveCounter(ctx context.Context, name string, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] = value
	return nil
}

func (s *Store) Load(ctx context.Context) (*storage.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &storage.Snapshot{
		FeeBasisPoints: s.feeBps,
		FeeSet:         s.feeSet,
		Treasury:       s.treasury,
		Proceeds:       make(map[string]decimal.Decimal, len(s.proceeds)),
		Counters:       make(map[string]uint64, len(s.counters)),
	}
	for _, rec := range s.assets {
		snap.Assets = append(snap.Assets, rec)
	}
	sort.Slice(snap.Assets, func(i, j int) bool { return snap.Assets[i].ID < snap.Assets[j].ID })
	for _, rec := range s.items {
		snap.Items = append(snap.Items, rec)
	}
	sort.Slice(snap.Items, func(i, j int) bool { return snap.Items[i].ItemID < snap.Items[j].ItemID })
	for k, v := range s.proceeds {
		snap.Proceeds[k] = v
	}
	for k, v := range s.counters {
		snap.Counters[k] = v
	}
	return snap, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }
