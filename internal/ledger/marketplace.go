package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ParthMishra20/pokedex/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MarketplaceLedger owns listings, fee accounting and seller balances. It
// escrows assets through the registry while they are listed and settles
// sales atomically: a sale either fully completes (item finalized, asset
// moved, balances credited) or leaves no trace.
//
// All mutating operations are serialized by a single write lock. Outbound
// payment pushes happen only after ledger state is final and the lock is
// released, so caller-controlled code can never observe or corrupt a
// half-updated record.
type MarketplaceLedger struct {
	mu       sync.RWMutex
	items    map[uint64]*MarketItem
	lastID   uint64
	feeBps   uint32
	treasury decimal.Decimal
	proceeds map[Identity]decimal.Decimal

	registry *AssetRegistry
	identity Identity
	access   AccessControl
	store    storage.Store
	payments PaymentChannel
	events   Publisher
	logger   *zap.SugaredLogger
}

// Sale summarizes a completed purchase.
type Sale struct {
	ItemID         uint64
	AssetID        uint64
	Buyer          Identity
	Seller         Identity
	Price          decimal.Decimal
	Fee            decimal.Decimal
	SellerProceeds decimal.Decimal
}

func NewMarketplaceLedger(
	registry *AssetRegistry,
	store storage.Store,
	payments PaymentChannel,
	events Publisher,
	identity Identity,
	access AccessControl,
	feeBps uint32,
	logger *zap.SugaredLogger,
) *MarketplaceLedger {
	return &MarketplaceLedger{
		items:    make(map[uint64]*MarketItem),
		feeBps:   feeBps,
		treasury: decimal.Zero,
		proceeds: make(map[Identity]decimal.Decimal),
		registry: registry,
		identity: identity,
		access:   access,
		store:    store,
		payments: payments,
		events:   events,
		logger:   logger,
	}
}

// Restore rebuilds the ledger from a persisted snapshot. Must be called
// before the ledger serves requests.
func (m *MarketplaceLedger) Restore(snap *storage.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range snap.Items {
		item := &MarketItem{
			ItemID:   rec.ItemID,
			AssetID:  rec.AssetID,
			Seller:   Identity(rec.Seller),
			Owner:    Identity(rec.Owner),
			Price:    rec.Price,
			Sold:     rec.Sold,
			ListedAt: rec.ListedAt,
		}
		m.items[rec.ItemID] = item
		if rec.ItemID > m.lastID {
			m.lastID = rec.ItemID
		}
	}
	if seq := snap.Counters[storage.CounterItemSeq]; seq > m.lastID {
		m.lastID = seq
	}
	if snap.FeeSet {
		m.feeBps = snap.FeeBasisPoints
	}
	m.treasury = snap.Treasury
	for id, amount := range snap.Proceeds {
		m.proceeds[Identity(id)] = amount
	}
}

// Identity returns the marketplace escrow identity.
func (m *MarketplaceLedger) Identity() Identity { return m.identity }

// CreateListing escrows the asset with the marketplace and records an
// unsold item at a fixed price. Registry failures propagate with no ledger
// mutation.
func (m *MarketplaceLedger) CreateListing(ctx context.Context, seller Identity, assetID uint64, price decimal.Decimal) (uint64, error) {
	if !price.IsPositive() {
		return 0, ErrInvalidPrice
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.Transfer(ctx, assetID, seller, m.identity, seller); err != nil {
		return 0, err
	}

	itemID := m.lastID + 1
	item := &MarketItem{
		ItemID:   itemID,
		AssetID:  assetID,
		Seller:   seller,
		Price:    price,
		ListedAt: time.Now().UTC(),
	}

	err := m.store.SaveCounter(ctx, storage.CounterItemSeq, itemID)
	if err == nil {
		err = m.store.SaveItem(ctx, itemRecord(item))
	}
	if err != nil {
		// Undo the escrow so the seller keeps the asset.
		if rbErr := m.registry.Transfer(ctx, assetID, m.identity, seller, m.identity); rbErr != nil {
			m.logger.Errorw("Escrow rollback failed", "asset_id", assetID, "seller", seller, "error", rbErr)
		}
		return 0, fmt.Errorf("failed to persist listing: %w", err)
	}

	m.lastID = itemID
	m.items[itemID] = item

	m.logger.Infow("Listing created", "item_id", itemID, "asset_id", assetID, "seller", seller, "price", price)
	if err := publish(ctx, m.events, ChannelListed, newEvent("Listed", map[string]interface{}{
		"itemId":  itemID,
		"assetId": assetID,
		"seller":  seller.String(),
		"price":   price.String(),
	})); err != nil {
		m.logger.Warnw("Listed event publish failed", "item_id", itemID, "error", err)
	}
	return itemID, nil
}

// ExecuteSale settles a purchase. Payment must match the listing price
// exactly. The item record, asset ownership, seller proceeds and treasury
// credit are persisted in one atomic update before any in-memory state
// changes; settlement is pull-based, so nothing leaves the ledger during the
// call.
func (m *MarketplaceLedger) ExecuteSale(ctx context.Context, buyer Identity, itemID uint64, payment decimal.Decimal) (*Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	if item.Sold {
		return nil, ErrAlreadySold
	}
	if !payment.Equal(item.Price) {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrWrongPrice, item.Price, payment)
	}

	fee, sellerProceeds := SplitPrice(item.Price, m.feeBps)

	assetRec, err := m.registry.saleTransferRecord(item.AssetID, m.identity, buyer)
	if err != nil {
		return nil, fmt.Errorf("%w: escrow transfer rejected: %v", ErrTransferFailed, err)
	}

	finalized := itemRecord(item)
	finalized.Owner = buyer.String()
	finalized.Sold = true

	upd := storage.SaleUpdate{
		Item:     finalized,
		Asset:    assetRec,
		Seller:   item.Seller.String(),
		Proceeds: m.proceeds[item.Seller].Add(sellerProceeds),
		Treasury: m.treasury.Add(fee),
	}
	if err := m.store.ApplySale(ctx, upd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	// Persisted; now commit in the load-bearing order: finalize the item,
	// move the asset, credit the balances.
	item.Owner = buyer
	item.Sold = true
	m.registry.commitSaleTransfer(ctx, item.AssetID, m.identity, buyer)
	m.proceeds[item.Seller] = upd.Proceeds
	m.treasury = upd.Treasury

	sale := &Sale{
		ItemID:         itemID,
		AssetID:        item.AssetID,
		Buyer:          buyer,
		Seller:         item.Seller,
		Price:          item.Price,
		Fee:            fee,
		SellerProceeds: sellerProceeds,
	}
	m.logger.Infow("Sale executed",
		"item_id", itemID,
		"asset_id", item.AssetID,
		"buyer", buyer,
		"price", item.Price,
		"fee", fee,
	)
	if err := publish(ctx, m.events, ChannelSold, newEvent("Sold", map[string]interface{}{
		"itemId":  itemID,
		"assetId": item.AssetID,
		"buyer":   buyer.String(),
		"seller":  item.Seller.String(),
		"price":   item.Price.String(),
		"fee":     fee.String(),
	})); err != nil {
		m.logger.Warnw("Sold event publish failed", "item_id", itemID, "error", err)
	}
	return sale, nil
}

// CancelListing returns the asset to the seller and deletes the record.
func (m *MarketplaceLedger) CancelListing(ctx context.Context, caller Identity, itemID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if item.Seller != caller {
		return ErrNotSeller
	}
	if item.Sold {
		return ErrAlreadySold
	}

	if err := m.registry.Transfer(ctx, item.AssetID, m.identity, caller, m.identity); err != nil {
		return err
	}
	if err := m.store.DeleteItem(ctx, itemID); err != nil {
		// Re-escrow so the listing stays consistent with custody.
		if rbErr := m.registry.Transfer(ctx, item.AssetID, caller, m.identity, caller); rbErr != nil {
			m.logger.Errorw("Cancel rollback failed", "asset_id", item.AssetID, "error", rbErr)
		}
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	delete(m.items, itemID)

	m.logger.Infow("Listing cancelled", "item_id", itemID, "asset_id", item.AssetID, "seller", caller)
	if err := publish(ctx, m.events, ChannelCancelled, newEvent("Cancelled", map[string]interface{}{
		"itemId":  itemID,
		"assetId": item.AssetID,
		"seller":  caller.String(),
	})); err != nil {
		m.logger.Warnw("Cancelled event publish failed", "item_id", itemID, "error", err)
	}
	return nil
}

// UpdateFeeBasisPoints replaces the marketplace fee. Admin only, capped at
// 10%.
func (m *MarketplaceLedger) UpdateFeeBasisPoints(ctx context.Context, admin Identity, bps uint32) error {
	if err := m.access.Authorize(admin); err != nil {
		return err
	}
	if err := ValidateFeeBasisPoints(bps); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SaveFeeBasisPoints(ctx, bps); err != nil {
		return fmt.Errorf("failed to persist fee config: %w", err)
	}
	prev := m.feeBps
	m.feeBps = bps

	m.logger.Infow("Fee updated", "previous_bps", prev, "bps", bps, "admin", admin)
	if err := publish(ctx, m.events, ChannelFeeUpdated, newEvent("FeeUpdated", map[string]interface{}{
		"basisPoints": bps,
	})); err != nil {
		m.logger.Warnw("FeeUpdated event publish failed", "error", err)
	}
	return nil
}

// WithdrawTreasury drains the accumulated fees to the admin. The treasury is
// zeroed and persisted before the outbound push; if the payment channel
// rejects the push the balance is restored in full.
func (m *MarketplaceLedger) WithdrawTreasury(ctx context.Context, admin Identity) (decimal.Decimal, error) {
	if err := m.access.Authorize(admin); err != nil {
		return decimal.Zero, err
	}

	m.mu.Lock()
	if m.treasury.IsZero() {
		m.mu.Unlock()
		return decimal.Zero, ErrNothingToWithdraw
	}
	amount := m.treasury
	if err := m.store.SaveTreasury(ctx, decimal.Zero); err != nil {
		m.mu.Unlock()
		return decimal.Zero, fmt.Errorf("failed to persist treasury withdrawal: %w", err)
	}
	m.treasury = decimal.Zero
	m.mu.Unlock()

	// Ledger state is final; only now does value leave the system.
	if err := m.payments.Credit(ctx, admin, amount); err != nil {
		m.restoreTreasury(ctx, amount)
		return decimal.Zero, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	m.logger.Infow("Treasury withdrawn", "admin", admin, "amount", amount)
	if err := publish(ctx, m.events, ChannelWithdrawn, newEvent("TreasuryWithdrawn", map[string]interface{}{
		"admin":  admin.String(),
		"amount": amount.String(),
	})); err != nil {
		m.logger.Warnw("TreasuryWithdrawn event publish failed", "error", err)
	}
	return amount, nil
}

func (m *MarketplaceLedger) restoreTreasury(ctx context.Context, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	restored := m.treasury.Add(amount)
	if err := m.store.SaveTreasury(ctx, restored); err != nil {
		m.logger.Errorw("Treasury restore persistence failed", "amount", amount, "error", err)
	}
	m.treasury = restored
}

// WithdrawProceeds drains a seller's accumulated sale proceeds through the
// payment channel, with the same finalize-then-push discipline as the
// treasury withdrawal.
func (m *MarketplaceLedger) WithdrawProceeds(ctx context.Context, seller Identity) (decimal.Decimal, error) {
	m.mu.Lock()
	amount, ok := m.proceeds[seller]
	if !ok || amount.IsZero() {
		m.mu.Unlock()
		return decimal.Zero, ErrNothingToWithdraw
	}
	if err := m.store.SaveProceeds(ctx, seller.String(), decimal.Zero); err != nil {
		m.mu.Unlock()
		return decimal.Zero, fmt.Errorf("failed to persist withdrawal: %w", err)
	}
	m.proceeds[seller] = decimal.Zero
	m.mu.Unlock()

	if err := m.payments.Credit(ctx, seller, amount); err != nil {
		m.restoreProceeds(ctx, seller, amount)
		return decimal.Zero, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	m.logger.Infow("Proceeds withdrawn", "seller", seller, "amount", amount)
	if err := publish(ctx, m.events, ChannelWithdrawn, newEvent("ProceedsWithdrawn", map[string]interface{}{
		"seller": seller.String(),
		"amount": amount.String(),
	})); err != nil {
		m.logger.Warnw("ProceedsWithdrawn event publish failed", "error", err)
	}
	return amount, nil
}

func (m *MarketplaceLedger) restoreProceeds(ctx context.Context, seller Identity, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	restored := m.proceeds[seller].Add(amount)
	if err := m.store.SaveProceeds(ctx, seller.String(), restored); err != nil {
		m.logger.Errorw("Proceeds restore persistence failed", "seller", seller, "error", err)
	}
	m.proceeds[seller] = restored
}

// FeeBasisPoints returns the current fee.
func (m *MarketplaceLedger) FeeBasisPoints() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feeBps
}

// Treasury returns the accumulated fee balance.
func (m *MarketplaceLedger) Treasury() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.treasury
}

// ProceedsOf returns a seller's withdrawable balance.
func (m *MarketplaceLedger) ProceedsOf(seller Identity) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.proceeds[seller]
}

// Get returns a copy of a listing.
func (m *MarketplaceLedger) Get(itemID uint64) (MarketItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[itemID]
	if !ok {
		return MarketItem{}, ErrItemNotFound
	}
	return *item, nil
}

// FetchUnsold returns all live unsold listings, itemId-ascending.
func (m *MarketplaceLedger) FetchUnsold() []MarketItem {
	return m.fetch(func(item *MarketItem) bool { return !item.Sold })
}

// FetchOwnedBy returns the items an identity has purchased, itemId-ascending.
func (m *MarketplaceLedger) FetchOwnedBy(owner Identity) []MarketItem {
	return m.fetch(func(item *MarketItem) bool { return item.Sold && item.Owner == owner })
}

// FetchListedBy returns the items an identity listed, itemId-ascending.
func (m *MarketplaceLedger) FetchListedBy(seller Identity) []MarketItem {
	return m.fetch(func(item *MarketItem) bool { return item.Seller == seller })
}

func (m *MarketplaceLedger) fetch(keep func(*MarketItem) bool) []MarketItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MarketItem, 0)
	for _, item := range m.items {
		if keep(item) {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func itemRecord(item *MarketItem) storage.ItemRecord {
	return storage.ItemRecord{
		ItemID:   item.ItemID,
		AssetID:  item.AssetID,
		Seller:   item.Seller.String(),
		Owner:    item.Owner.String(),
		Price:    item.Price,
		Sold:     item.Sold,
		ListedAt: item.ListedAt,
	}
}
