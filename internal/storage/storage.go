package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Counter names persisted alongside the entity tables. Sequences survive
// restarts even when the records that consumed them were deleted, so ids are
// never reused.
const (
	CounterAssetSeq = "asset_seq"
	CounterItemSeq  = "item_seq"
)

// AssetRecord is the persisted form of an asset, including its standing
// transfer delegate (empty when none is set).
type AssetRecord struct {
	ID         uint64
	Owner      string
	SourceID   uint64
	Name       string
	RarityTier string
	Shiny      bool
	Delegate   string
	MintedAt   time.Time
}

// ItemRecord is the persisted form of a marketplace listing.
type ItemRecord struct {
	ItemID   uint64
	AssetID  uint64
	Seller   string
	Owner    string
	Price    decimal.Decimal
	Sold     bool
	ListedAt time.Time
}

// Snapshot is the complete persisted marketplace state, sufficient to
// reconstruct the registry and ledger deterministically after a restart.
type Snapshot struct {
	Assets         []AssetRecord
	Items          []ItemRecord
	FeeBasisPoints uint32
	// FeeSet reports whether a fee value was ever persisted. Zero is a
	// legal fee, so absence cannot be encoded as zero.
	FeeSet   bool
	Treasury decimal.Decimal
	Proceeds map[string]decimal.Decimal
	Counters map[string]uint64
}

// SaleUpdate carries every record touched by one sale so backends can apply
// them atomically: the finalized item, the re-owned asset, the seller's new
// withdrawable balance and the new treasury total.
type SaleUpdate struct {
	Item     ItemRecord
	Asset    AssetRecord
	Seller   string
	Proceeds decimal.Decimal
	Treasury decimal.Decimal
}

// Store persists marketplace state. Every mutating ledger operation writes
// through before its in-memory effects become visible; a write error aborts
// the operation with no partial state.
type Store interface {
	SaveAsset(ctx context.Context, rec AssetRecord) error
	SaveItem(ctx context.Context, rec ItemRecord) error
	DeleteItem(ctx context.Context, itemID uint64) error
	ApplySale(ctx context.Context, upd SaleUpdate) error
	SaveFeeBasisPoints(ctx context.Context, bps uint32) error
	SaveTreasury(ctx context.Context, amount decimal.Decimal) error
	SaveProceeds(ctx context.Context, identity string, amount decimal.Decimal) error
	SaveCounter(ctx context.Context, name string, value uint64) error
	Load(ctx context.Context) (*Snapshot, error)
	Ping(ctx context.Context) error
	Close() error
}
