package api

import (
	"github.com/ParthMishra20/pokedex/internal/ledger"
)

type AssetDTO struct {
	ID         uint64 `json:"id"`
	Owner      string `json:"owner"`
	SourceID   uint64 `json:"sourceId"`
	Name       string `json:"name"`
	RarityTier string `json:"rarityTier"`
	Shiny      bool   `json:"shiny"`
	MintedAt   int64  `json:"mintedAt"`
}

type MarketItemDTO struct {
	ItemID   uint64 `json:"itemId"`
	AssetID  uint64 `json:"assetId"`
	Seller   string `json:"seller"`
	Owner    string `json:"owner,omitempty"`
	Price    string `json:"price"`
	Sold     bool   `json:"sold"`
	ListedAt int64  `json:"listedAt"`
}

type SaleDTO struct {
	ItemID         uint64 `json:"itemId"`
	AssetID        uint64 `json:"assetId"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Price          string `json:"price"`
	Fee            string `json:"fee"`
	SellerProceeds string `json:"sellerProceeds"`
}

type OwnerDTO struct {
	AssetID uint64 `json:"assetId"`
	Owner   string `json:"owner"`
}

type BalanceDTO struct {
	Identity string `json:"identity"`
	Amount   string `json:"amount"`
}

type FeeDTO struct {
	BasisPoints uint32 `json:"basisPoints"`
}

type WithdrawalDTO struct {
	Identity string `json:"identity"`
	Amount   string `json:"amount"`
}

type MintRequest struct {
	SourceID uint64 `json:"sourceId"`
}

type ApproveRequest struct {
	Delegate string `json:"delegate"`
}

type TransferRequest struct {
	To string `json:"to"`
}

type CreateListingRequest struct {
	AssetID uint64 `json:"assetId"`
	Price   string `json:"price"`
}

type PurchaseRequest struct {
	Payment string `json:"payment"`
}

type UpdateFeeRequest struct {
	BasisPoints uint32 `json:"basisPoints"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func assetDTO(a ledger.Asset) AssetDTO {
	return AssetDTO{
		ID:         a.ID,
		Owner:      a.Owner.String(),
		SourceID:   a.Metadata.SourceID,
		Name:       a.Metadata.Name,
		RarityTier: a.Metadata.RarityTier,
		Shiny:      a.Metadata.Shiny,
		MintedAt:   a.MintedAt.Unix(),
	}
}

func itemDTO(item ledger.MarketItem) MarketItemDTO {
	return MarketItemDTO{
		ItemID:   item.ItemID,
		AssetID:  item.AssetID,
		Seller:   item.Seller.String(),
		Owner:    item.Owner.String(),
		Price:    item.Price.String(),
		Sold:     item.Sold,
		ListedAt: item.ListedAt.Unix(),
	}
}

func itemDTOs(items []ledger.MarketItem) []MarketItemDTO {
	out := make([]MarketItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, itemDTO(item))
	}
	return out
}

func saleDTO(s *ledger.Sale) SaleDTO {
	return SaleDTO{
		ItemID:         s.ItemID,
		AssetID:        s.AssetID,
		Buyer:          s.Buyer.String(),
		Seller:         s.Seller.String(),
		Price:          s.Price.String(),
		Fee:            s.Fee.String(),
		SellerProceeds: s.SellerProceeds.String(),
	}
}
