package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metadata is the immutable descriptive record attached to an asset at mint.
// It originates from the catalog collaborator and the ledger treats it as
// opaque beyond basic validation.
type Metadata struct {
	SourceID   uint64 `json:"sourceId"`
	Name       string `json:"name"`
	RarityTier string `json:"rarityTier"`
	Shiny      bool   `json:"shiny"`
}

// Validate rejects metadata that could not have come from the catalog.
func (m Metadata) Validate() error {
	if m.SourceID == 0 || m.Name == "" {
		return ErrInvalidMetadata
	}
	return nil
}

// Asset is a uniquely identified, non-fungible ownership record. The id is
// allocated once at mint and never reused; Owner is the only mutable field.
type Asset struct {
	ID       uint64    `json:"id"`
	Owner    Identity  `json:"owner"`
	Metadata Metadata  `json:"metadata"`
	MintedAt time.Time `json:"mintedAt"`
}

// MarketItem is a marketplace listing. Created unsold with no owner; a sale
// sets Owner and Sold (terminal), a cancellation deletes the record. Price is
// fixed at creation.
type MarketItem struct {
	ItemID   uint64          `json:"itemId"`
	AssetID  uint64          `json:"assetId"`
	Seller   Identity        `json:"seller"`
	Owner    Identity        `json:"owner,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Sold     bool            `json:"sold"`
	ListedAt time.Time       `json:"listedAt"`
}
