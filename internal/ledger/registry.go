package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ParthMishra20/pokedex/internal/storage"
	"go.uber.org/zap"
)

// AssetRegistry is the sole source of truth for asset ownership, including
// assets escrowed by the marketplace. Ids are allocated from a sequence owned
// by the registry instance and are never reused.
type AssetRegistry struct {
	mu        sync.RWMutex
	lastID    uint64
	assets    map[uint64]*Asset
	delegates map[uint64]Identity
	byOwner   map[Identity][]uint64

	store  storage.Store
	events Publisher
	logger *zap.SugaredLogger
}

func NewAssetRegistry(store storage.Store, events Publisher, logger *zap.SugaredLogger) *AssetRegistry {
	return &AssetRegistry{
		assets:    make(map[uint64]*Asset),
		delegates: make(map[uint64]Identity),
		byOwner:   make(map[Identity][]uint64),
		store:     store,
		events:    events,
		logger:    logger,
	}
}

// Restore rebuilds the registry from a persisted snapshot. Must be called
// before the registry serves requests.
func (r *AssetRegistry) Restore(snap *storage.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range snap.Assets {
		asset := &Asset{
			ID:    rec.ID,
			Owner: Identity(rec.Owner),
			Metadata: Metadata{
				SourceID:   rec.SourceID,
				Name:       rec.Name,
				RarityTier: rec.RarityTier,
				Shiny:      rec.Shiny,
			},
			MintedAt: rec.MintedAt,
		}
		r.assets[rec.ID] = asset
		r.byOwner[asset.Owner] = insertSorted(r.byOwner[asset.Owner], rec.ID)
		if rec.Delegate != "" {
			r.delegates[rec.ID] = Identity(rec.Delegate)
		}
		if rec.ID > r.lastID {
			r.lastID = rec.ID
		}
	}
	if seq := snap.Counters[storage.CounterAssetSeq]; seq > r.lastID {
		r.lastID = seq
	}
}

// Mint allocates the next sequential id, records ownership and metadata, and
// emits a Minted notification.
func (r *AssetRegistry) Mint(ctx context.Context, owner Identity, md Metadata) (uint64, error) {
	if owner == "" {
		return 0, fmt.Errorf("%w: empty owner", ErrInvalidMetadata)
	}
	if err := md.Validate(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	id := r.lastID + 1
	asset := &Asset{ID: id, Owner: owner, Metadata: md, MintedAt: time.Now().UTC()}

	// Bump the sequence before writing the asset: a failure between the two
	// burns an id but can never reissue one.
	if err := r.store.SaveCounter(ctx, storage.CounterAssetSeq, id); err != nil {
		r.mu.Unlock()
		return 0, fmt.Errorf("failed to persist asset sequence: %w", err)
	}
	if err := r.store.SaveAsset(ctx, assetRecord(asset, "")); err != nil {
		r.mu.Unlock()
		return 0, fmt.Errorf("failed to persist asset: %w", err)
	}

	r.lastID = id
	r.assets[id] = asset
	r.byOwner[owner] = insertSorted(r.byOwner[owner], id)
	r.mu.Unlock()

	r.logger.Infow("Asset minted", "asset_id", id, "owner", owner, "source_id", md.SourceID, "shiny", md.Shiny)
	if err := publish(ctx, r.events, ChannelMinted, newEvent("Minted", map[string]interface{}{
		"assetId": id,
		"owner":   owner.String(),
		"name":    md.Name,
	})); err != nil {
		r.logger.Warnw("Minted event publish failed", "asset_id", id, "error", err)
	}
	return id, nil
}

// Approve records a single standing transfer delegate for one asset. Only
// the current owner may call; any prior delegate is overwritten.
func (r *AssetRegistry) Approve(ctx context.Context, assetID uint64, delegate, caller Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return ErrUnknownAsset
	}
	if asset.Owner != caller {
		return ErrNotOwner
	}
	if err := r.store.SaveAsset(ctx, assetRecord(asset, delegate.String())); err != nil {
		return fmt.Errorf("failed to persist approval: %w", err)
	}
	if delegate == "" {
		delete(r.delegates, assetID)
	} else {
		r.delegates[assetID] = delegate
	}
	return nil
}

// Transfer moves ownership from `from` to `to`. The authorizer must be the
// current owner or the recorded delegate; a successful transfer clears the
// delegate.
func (r *AssetRegistry) Transfer(ctx context.Context, assetID uint64, from, to, authorizer Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, err := r.checkTransfer(assetID, from, authorizer)
	if err != nil {
		return err
	}
	rec := assetRecord(asset, "")
	rec.Owner = to.String()
	if err := r.store.SaveAsset(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist transfer: %w", err)
	}
	r.applyTransfer(asset, to)

	r.logger.Infow("Asset transferred", "asset_id", assetID, "from", from, "to", to)
	if err := publish(ctx, r.events, ChannelTransferred, newEvent("Transferred", map[string]interface{}{
		"assetId": assetID,
		"from":    from.String(),
		"to":      to.String(),
	})); err != nil {
		r.logger.Warnw("Transferred event publish failed", "asset_id", assetID, "error", err)
	}
	return nil
}

// checkTransfer validates a transfer without mutating. Caller holds r.mu.
func (r *AssetRegistry) checkTransfer(assetID uint64, from, authorizer Identity) (*Asset, error) {
	asset, ok := r.assets[assetID]
	if !ok {
		return nil, ErrUnknownAsset
	}
	if asset.Owner != from {
		return nil, ErrNotOwner
	}
	if authorizer != from {
		delegate, ok := r.delegates[assetID]
		if !ok || authorizer == "" || delegate != authorizer {
			return nil, ErrNotApproved
		}
	}
	return asset, nil
}

// applyTransfer commits an already validated and persisted ownership change.
// Caller holds r.mu.
func (r *AssetRegistry) applyTransfer(asset *Asset, to Identity) {
	prev := asset.Owner
	r.byOwner[prev] = removeID(r.byOwner[prev], asset.ID)
	if len(r.byOwner[prev]) == 0 {
		delete(r.byOwner, prev)
	}
	asset.Owner = to
	r.byOwner[to] = insertSorted(r.byOwner[to], asset.ID)
	delete(r.delegates, asset.ID)
}

// saleTransferRecord validates the escrow→buyer leg of a sale and returns
// the record the marketplace persists atomically with the rest of the sale.
// The in-memory change is applied afterwards via commitSaleTransfer.
func (r *AssetRegistry) saleTransferRecord(assetID uint64, from, to Identity) (storage.AssetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, err := r.checkTransfer(assetID, from, from)
	if err != nil {
		return storage.AssetRecord{}, err
	}
	rec := assetRecord(asset, "")
	rec.Owner = to.String()
	return rec, nil
}

func (r *AssetRegistry) commitSaleTransfer(ctx context.Context, assetID uint64, from, to Identity) {
	r.mu.Lock()
	asset := r.assets[assetID]
	r.applyTransfer(asset, to)
	r.mu.Unlock()

	if err := publish(ctx, r.events, ChannelTransferred, newEvent("Transferred", map[string]interface{}{
		"assetId": assetID,
		"from":    from.String(),
		"to":      to.String(),
	})); err != nil {
		r.logger.Warnw("Transferred event publish failed", "asset_id", assetID, "error", err)
	}
}

// OwnerOf returns the current owner of an asset.
func (r *AssetRegistry) OwnerOf(assetID uint64) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[assetID]
	if !ok {
		return "", ErrUnknownAsset
	}
	return asset.Owner, nil
}

// Get returns a copy of the asset record.
func (r *AssetRegistry) Get(assetID uint64) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[assetID]
	if !ok {
		return Asset{}, ErrUnknownAsset
	}
	return *asset, nil
}

// Delegate returns the standing transfer delegate for an asset, if any.
func (r *AssetRegistry) Delegate(assetID uint64) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.delegates[assetID]
	return d, ok
}

// AssetsOwnedBy returns the ids currently owned by an identity, in mint
// order. The maintained index is updated on every mutation so the view never
// goes stale.
func (r *AssetRegistry) AssetsOwnedBy(owner Identity) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byOwner[owner]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// scanOwnedBy recomputes ownership by full scan; tests use it to verify the
// maintained index.
func (r *AssetRegistry) scanOwnedBy(owner Identity) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []uint64
	for id, asset := range r.assets {
		if asset.Owner == owner {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func assetRecord(a *Asset, delegate string) storage.AssetRecord {
	return storage.AssetRecord{
		ID:         a.ID,
		Owner:      a.Owner.String(),
		SourceID:   a.Metadata.SourceID,
		Name:       a.Metadata.Name,
		RarityTier: a.Metadata.RarityTier,
		Shiny:      a.Metadata.Shiny,
		Delegate:   delegate,
		MintedAt:   a.MintedAt,
	}
}

func insertSorted(ids []uint64, id uint64) []uint64 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
