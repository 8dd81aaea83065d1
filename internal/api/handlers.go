package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ParthMishra20/pokedex/internal/catalog"
	"github.com/ParthMishra20/pokedex/internal/ledger"
	"github.com/ParthMishra20/pokedex/internal/metrics"
	"github.com/ParthMishra20/pokedex/internal/store"
	"github.com/ParthMishra20/pokedex/internal/util"
	"github.com/ParthMishra20/pokedex/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// identityHeader carries the pre-authenticated caller. Wallet-side session
// handling happens upstream; the API trusts the header the way the rest of
// the stack trusts a terminated TLS connection.
const identityHeader = "X-User-Address"

type Handler struct {
	registry   *ledger.AssetRegistry
	market     *ledger.MarketplaceLedger
	catalogSvc *catalog.Service
	wsHub      *ws.Hub
	sseHandler *ws.SSEHandler
	cache      *store.Cache
	storePing  func(r *http.Request) error
	views      util.Group
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger
}

func NewHandler(
	registry *ledger.AssetRegistry,
	market *ledger.MarketplaceLedger,
	catalogSvc *catalog.Service,
	wsHub *ws.Hub,
	sseHandler *ws.SSEHandler,
	cache *store.Cache,
	storePing func(r *http.Request) error,
	metrics *metrics.Metrics,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		registry:   registry,
		market:     market,
		catalogSvc: catalogSvc,
		wsHub:      wsHub,
		sseHandler: sseHandler,
		cache:      cache,
		storePing:  storePing,
		metrics:    metrics,
		logger:     logger,
	}
}

// recordOp feeds the ledger-operation counter when metrics are wired.
func (h *Handler) recordOp(r *http.Request, op string, err error) {
	if h.metrics != nil {
		h.metrics.RecordLedgerOp(r.Context(), op, err)
	}
}

// Catalog endpoints

func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		var cached []catalog.Species
		if err := h.cache.GetCatalog(r.Context(), &cached); err == nil {
			h.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	species := h.catalogSvc.List()
	if h.cache != nil {
		if err := h.cache.SetCatalog(r.Context(), species); err != nil {
			h.logger.Warnw("Catalog cache write failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusOK, species)
}

// Asset endpoints

func (h *Handler) MintAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	md, ok := h.catalogSvc.MintMetadata(req.SourceID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "UNKNOWN_SPECIES", "species is not in the catalog")
		return
	}

	id, err := h.registry.Mint(r.Context(), caller, md)
	h.recordOp(r, "mint", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.InvalidateViews(r.Context(), caller.String())
	}

	asset, err := h.registry.Get(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, assetDTO(asset))
}

func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "assetID")
	if !ok {
		return
	}

	asset, err := h.registry.Get(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assetDTO(asset))
}

func (h *Handler) GetAssetOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "assetID")
	if !ok {
		return
	}

	owner, err := h.registry.OwnerOf(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OwnerDTO{AssetID: id, Owner: owner.String()})
}

func (h *Handler) ApproveAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := h.parseID(w, r, "assetID")
	if !ok {
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	err := h.registry.Approve(r.Context(), id, ledger.Identity(req.Delegate), caller)
	h.recordOp(r, "approve", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TransferAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := h.parseID(w, r, "assetID")
	if !ok {
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.To == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_RECIPIENT", "recipient is required")
		return
	}

	owner, err := h.registry.OwnerOf(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	// The caller authorizes the move: either as the owner or as the
	// recorded delegate.
	err = h.registry.Transfer(r.Context(), id, owner, ledger.Identity(req.To), caller)
	h.recordOp(r, "transfer", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.InvalidateViews(r.Context(), owner.String(), req.To)
	}
	h.writeJSON(w, http.StatusOK, OwnerDTO{AssetID: id, Owner: req.To})
}

// User views

func (h *Handler) GetUserAssets(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	if h.cache != nil {
		var cached []AssetDTO
		if err := h.cache.GetOwnerAssets(r.Context(), identity, &cached); err == nil {
			h.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	var version uint64
	if h.cache != nil {
		version = h.cache.ViewVersion()
	}
	v, _, _ := h.views.Do("owner-assets:"+identity, func() (interface{}, error) {
		ids := h.registry.AssetsOwnedBy(ledger.Identity(identity))
		out := make([]AssetDTO, 0, len(ids))
		for _, id := range ids {
			asset, err := h.registry.Get(id)
			if err != nil {
				continue
			}
			out = append(out, assetDTO(asset))
		}
		if h.cache != nil {
			if err := h.cache.SetOwnerAssets(r.Context(), identity, out, version); err != nil {
				h.logger.Warnw("Owner assets cache write failed", "identity", identity, "error", err)
			}
		}
		return out, nil
	})
	h.writeJSON(w, http.StatusOK, v.([]AssetDTO))
}

func (h *Handler) GetUserItems(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	items := h.market.FetchOwnedBy(ledger.Identity(identity))
	h.writeJSON(w, http.StatusOK, itemDTOs(items))
}

func (h *Handler) GetUserListings(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	items := h.market.FetchListedBy(ledger.Identity(identity))
	h.writeJSON(w, http.StatusOK, itemDTOs(items))
}

func (h *Handler) GetUserProceeds(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	amount := h.market.ProceedsOf(ledger.Identity(identity))
	h.writeJSON(w, http.StatusOK, BalanceDTO{Identity: identity, Amount: amount.String()})
}

func (h *Handler) WithdrawProceeds(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	amount, err := h.market.WithdrawProceeds(r.Context(), caller)
	h.recordOp(r, "withdraw_proceeds", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, WithdrawalDTO{Identity: caller.String(), Amount: amount.String()})
}

// Market endpoints

func (h *Handler) ListUnsoldItems(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		var cached []MarketItemDTO
		if err := h.cache.GetUnsoldItems(r.Context(), &cached); err == nil {
			h.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	var version uint64
	if h.cache != nil {
		version = h.cache.ViewVersion()
	}
	v, _, _ := h.views.Do("unsold-items", func() (interface{}, error) {
		out := itemDTOs(h.market.FetchUnsold())
		if h.cache != nil {
			if err := h.cache.SetUnsoldItems(r.Context(), out, version); err != nil {
				h.logger.Warnw("Unsold items cache write failed", "error", err)
			}
		}
		return out, nil
	})
	h.writeJSON(w, http.StatusOK, v.([]MarketItemDTO))
}

func (h *Handler) GetMarketItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "itemID")
	if !ok {
		return
	}

	item, err := h.market.Get(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, itemDTO(item))
}

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PRICE", "price is not a valid decimal")
		return
	}

	itemID, err := h.market.CreateListing(r.Context(), caller, req.AssetID, price)
	h.recordOp(r, "create_listing", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.InvalidateViews(r.Context(), caller.String())
	}

	item, err := h.market.Get(itemID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, itemDTO(item))
}

func (h *Handler) PurchaseItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := h.parseID(w, r, "itemID")
	if !ok {
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	payment, err := decimal.NewFromString(strings.TrimSpace(req.Payment))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAYMENT", "payment is not a valid decimal")
		return
	}

	sale, err := h.market.ExecuteSale(r.Context(), caller, id, payment)
	h.recordOp(r, "execute_sale", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordSale(r.Context(), sale.Price.InexactFloat64())
	}

	if h.cache != nil {
		h.cache.InvalidateViews(r.Context(), caller.String(), sale.Seller.String())
	}
	h.writeJSON(w, http.StatusOK, saleDTO(sale))
}

func (h *Handler) CancelListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := h.parseID(w, r, "itemID")
	if !ok {
		return
	}

	err := h.market.CancelListing(r.Context(), caller, id)
	h.recordOp(r, "cancel_listing", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.InvalidateViews(r.Context(), caller.String())
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin endpoints

func (h *Handler) GetFee(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, FeeDTO{BasisPoints: h.market.FeeBasisPoints()})
}

func (h *Handler) UpdateFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req UpdateFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	err := h.market.UpdateFeeBasisPoints(r.Context(), caller, req.BasisPoints)
	h.recordOp(r, "update_fee", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, FeeDTO{BasisPoints: req.BasisPoints})
}

func (h *Handler) GetTreasury(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, BalanceDTO{Identity: "treasury", Amount: h.market.Treasury().String()})
}

func (h *Handler) WithdrawTreasury(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	amount, err := h.market.WithdrawTreasury(r.Context(), caller)
	h.recordOp(r, "withdraw_treasury", err)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, WithdrawalDTO{Identity: caller.String(), Amount: amount.String()})
}

// Health endpoints

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.storePing != nil {
		if err := h.storePing(r); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Live updates

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleWebSocket(w, r)
}

func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseHandler.HandleSSE(w, r)
}

// Utility methods

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (ledger.Identity, bool) {
	identity := strings.TrimSpace(r.Header.Get(identityHeader))
	if identity == "" {
		h.writeError(w, http.StatusUnauthorized, "MISSING_IDENTITY", "X-User-Address header is required")
		return "", false
	}
	return ledger.Identity(identity), true
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}

// writeLedgerError maps domain errors onto HTTP statuses and stable codes.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"

	switch {
	case errors.Is(err, ledger.ErrInvalidPrice):
		status, code = http.StatusBadRequest, "INVALID_PRICE"
	case errors.Is(err, ledger.ErrFeeTooHigh):
		status, code = http.StatusBadRequest, "FEE_TOO_HIGH"
	case errors.Is(err, ledger.ErrInvalidMetadata):
		status, code = http.StatusBadRequest, "INVALID_METADATA"
	case errors.Is(err, ledger.ErrWrongPrice):
		status, code = http.StatusBadRequest, "WRONG_PRICE"
	case errors.Is(err, ledger.ErrNotOwner):
		status, code = http.StatusForbidden, "NOT_OWNER"
	case errors.Is(err, ledger.ErrNotApproved):
		status, code = http.StatusForbidden, "NOT_APPROVED"
	case errors.Is(err, ledger.ErrNotSeller):
		status, code = http.StatusForbidden, "NOT_SELLER"
	case errors.Is(err, ledger.ErrUnauthorized):
		status, code = http.StatusForbidden, "UNAUTHORIZED"
	case errors.Is(err, ledger.ErrUnknownAsset):
		status, code = http.StatusNotFound, "UNKNOWN_ASSET"
	case errors.Is(err, ledger.ErrItemNotFound):
		status, code = http.StatusNotFound, "ITEM_NOT_FOUND"
	case errors.Is(err, ledger.ErrAlreadySold):
		status, code = http.StatusConflict, "ALREADY_SOLD"
	case errors.Is(err, ledger.ErrNothingToWithdraw):
		status, code = http.StatusConflict, "NOTHING_TO_WITHDRAW"
	case errors.Is(err, ledger.ErrTransferFailed):
		status, code = http.StatusBadGateway, "TRANSFER_FAILED"
	}

	h.writeError(w, status, code, err.Error())
}
