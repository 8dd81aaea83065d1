package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ParthMishra20/pokedex/internal/catalog"
	"github.com/ParthMishra20/pokedex/internal/ledger"
	storemem "github.com/ParthMishra20/pokedex/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	handler *Handler
	router  http.Handler
	wallets *ledger.WalletBook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()
	st := storemem.NewStore()
	registry := ledger.NewAssetRegistry(st, nil, logger)
	wallets := ledger.NewWalletBook()
	market := ledger.NewMarketplaceLedger(
		registry, st, wallets, nil,
		"pokedex-market", ledger.NewAccessControl("pokedex-admin"), 250, logger,
	)

	handler := NewHandler(registry, market, catalog.NewService(1), nil, nil, nil, nil, nil, logger)
	router := handler.Routes(NewMiddleware(logger, nil), []string{"http://localhost:3000"}, 6000)
	return &testEnv{handler: handler, router: router, wallets: wallets}
}

func (e *testEnv) do(t *testing.T, method, path, identity string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if identity != "" {
		req.Header.Set("X-User-Address", identity)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func (e *testEnv) mint(t *testing.T, identity string, sourceID uint64) AssetDTO {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/assets/mint", identity, MintRequest{SourceID: sourceID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[AssetDTO](t, rec)
}

func (e *testEnv) list(t *testing.T, identity string, assetID uint64, price string) MarketItemDTO {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/market/items", identity, CreateListingRequest{AssetID: assetID, Price: price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[MarketItemDTO](t, rec)
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListCatalog(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/v1/catalog", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	species := decodeJSON[[]catalog.Species](t, rec)
	assert.NotEmpty(t, species)
}

func TestMintAsset(t *testing.T) {
	e := newTestEnv(t)

	t.Run("requires identity", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/assets/mint", "", MintRequest{SourceID: 25})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown species", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/assets/mint", "alice", MintRequest{SourceID: 999})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "UNKNOWN_SPECIES", decodeJSON[ErrorResponse](t, rec).Code)
	})

	t.Run("mints with catalog metadata", func(t *testing.T) {
		asset := e.mint(t, "alice", 25)
		assert.Equal(t, uint64(1), asset.ID)
		assert.Equal(t, "alice", asset.Owner)
		assert.Equal(t, "pikachu", asset.Name)
	})
}

func TestAssetViewsAndTransfer(t *testing.T) {
	e := newTestEnv(t)
	asset := e.mint(t, "alice", 7)

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/v1/assets/%d", asset.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "squirtle", decodeJSON[AssetDTO](t, rec).Name)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/v1/assets/%d/owner", asset.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeJSON[OwnerDTO](t, rec).Owner)

	rec = e.do(t, http.MethodGet, "/v1/assets/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	t.Run("owner transfers", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, fmt.Sprintf("/v1/assets/%d/transfer", asset.ID), "alice", TransferRequest{To: "bob"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "bob", decodeJSON[OwnerDTO](t, rec).Owner)
	})

	t.Run("non-owner cannot transfer", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, fmt.Sprintf("/v1/assets/%d/transfer", asset.ID), "mallory", TransferRequest{To: "mallory"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "NOT_APPROVED", decodeJSON[ErrorResponse](t, rec).Code)
	})

	t.Run("approved delegate transfers", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, fmt.Sprintf("/v1/assets/%d/approve", asset.ID), "bob", ApproveRequest{Delegate: "broker"})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = e.do(t, http.MethodPost, fmt.Sprintf("/v1/assets/%d/transfer", asset.ID), "broker", TransferRequest{To: "carol"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "carol", decodeJSON[OwnerDTO](t, rec).Owner)
	})
}

func TestMarketFlow(t *testing.T) {
	e := newTestEnv(t)
	asset := e.mint(t, "alice", 25)
	item := e.list(t, "alice", asset.ID, "1.000")

	t.Run("listing escrows the asset", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, fmt.Sprintf("/v1/assets/%d/owner", asset.ID), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pokedex-market", decodeJSON[OwnerDTO](t, rec).Owner)
	})

	t.Run("appears in unsold view", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/v1/market/items", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		items := decodeJSON[[]MarketItemDTO](t, rec)
		require.Len(t, items, 1)
		assert.Equal(t, item.ItemID, items[0].ItemID)
	})

	t.Run("wrong payment rejected", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, fmt.Sprintf("/v1/market/items/%d/buy", item.ItemID), "bob", PurchaseRequest{Payment: "0.5"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "WRONG_PRICE", decodeJSON[ErrorResponse](t, rec).Code)
	})

	t.Run("purchase settles", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, fmt.Sprintf("/v1/market/items/%d/buy", item.ItemID), "bob", PurchaseRequest{Payment: "1.000"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		sale := decodeJSON[SaleDTO](t, rec)
		assert.Equal(t, "0.025", sale.Fee)
		assert.Equal(t, "0.975", sale.SellerProceeds)

		// Asset now belongs to the buyer.
		rec = e.do(t, http.MethodGet, fmt.Sprintf("/v1/assets/%d/owner", asset.ID), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bob", decodeJSON[OwnerDTO](t, rec).Owner)

		// Unsold view is empty.
		rec = e.do(t, http.MethodGet, "/v1/market/items", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeJSON[[]MarketItemDTO](t, rec))
	})

	t.Run("second purchase conflicts", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, fmt.Sprintf("/v1/market/items/%d/buy", item.ItemID), "carol", PurchaseRequest{Payment: "1.000"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ALREADY_SOLD", decodeJSON[ErrorResponse](t, rec).Code)
	})

	t.Run("buyer portfolio shows the purchase", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/v1/users/bob/items", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		items := decodeJSON[[]MarketItemDTO](t, rec)
		require.Len(t, items, 1)
		assert.True(t, items[0].Sold)
	})

	t.Run("seller withdraws proceeds", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/v1/users/alice/proceeds", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0.975", decodeJSON[BalanceDTO](t, rec).Amount)

		rec = e.do(t, http.MethodPost, "/v1/market/proceeds/withdraw", "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "0.975", decodeJSON[WithdrawalDTO](t, rec).Amount)
		assert.Equal(t, "0.975", e.wallets.BalanceOf("alice").String())

		rec = e.do(t, http.MethodPost, "/v1/market/proceeds/withdraw", "alice", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestCancelListingEndpoint(t *testing.T) {
	e := newTestEnv(t)
	asset := e.mint(t, "alice", 4)
	item := e.list(t, "alice", asset.ID, "2.00")

	rec := e.do(t, http.MethodDelete, fmt.Sprintf("/v1/market/items/%d", item.ItemID), "mallory", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodDelete, fmt.Sprintf("/v1/market/items/%d", item.ItemID), "alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/v1/assets/%d/owner", asset.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeJSON[OwnerDTO](t, rec).Owner)
}

func TestCreateListingValidationCodes(t *testing.T) {
	e := newTestEnv(t)
	asset := e.mint(t, "alice", 1)

	tests := []struct {
		name     string
		identity string
		req      CreateListingRequest
		status   int
		code     string
	}{
		{name: "garbage price", identity: "alice", req: CreateListingRequest{AssetID: asset.ID, Price: "abc"}, status: http.StatusBadRequest, code: "INVALID_PRICE"},
		{name: "zero price", identity: "alice", req: CreateListingRequest{AssetID: asset.ID, Price: "0"}, status: http.StatusBadRequest, code: "INVALID_PRICE"},
		{name: "not the owner", identity: "mallory", req: CreateListingRequest{AssetID: asset.ID, Price: "1"}, status: http.StatusForbidden, code: "NOT_OWNER"},
		{name: "unknown asset", identity: "alice", req: CreateListingRequest{AssetID: 999, Price: "1"}, status: http.StatusNotFound, code: "UNKNOWN_ASSET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/v1/market/items", tt.identity, tt.req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeJSON[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAdminEndpoints(t *testing.T) {
	e := newTestEnv(t)

	t.Run("fee is readable", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/v1/market/fee", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, uint32(250), decodeJSON[FeeDTO](t, rec).BasisPoints)
	})

	t.Run("non-admin cannot update fee", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, "/v1/market/fee", "mallory", UpdateFeeRequest{BasisPoints: 100})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("fee cap enforced", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, "/v1/market/fee", "pokedex-admin", UpdateFeeRequest{BasisPoints: 1001})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "FEE_TOO_HIGH", decodeJSON[ErrorResponse](t, rec).Code)
	})

	t.Run("admin updates fee", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, "/v1/market/fee", "pokedex-admin", UpdateFeeRequest{BasisPoints: 500})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodGet, "/v1/market/fee", "", nil)
		assert.Equal(t, uint32(500), decodeJSON[FeeDTO](t, rec).BasisPoints)
	})

	t.Run("treasury withdrawal", func(t *testing.T) {
		asset := e.mint(t, "alice", 25)
		item := e.list(t, "alice", asset.ID, "1.000")
		rec := e.do(t, http.MethodPost, fmt.Sprintf("/v1/market/items/%d/buy", item.ItemID), "bob", PurchaseRequest{Payment: "1.000"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodGet, "/v1/market/treasury", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0.05", decodeJSON[BalanceDTO](t, rec).Amount)

		rec = e.do(t, http.MethodPost, "/v1/market/treasury/withdraw", "mallory", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = e.do(t, http.MethodPost, "/v1/market/treasury/withdraw", "pokedex-admin", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "0.05", decodeJSON[WithdrawalDTO](t, rec).Amount)
	})
}

func TestUserAssetsView(t *testing.T) {
	e := newTestEnv(t)
	e.mint(t, "alice", 1)
	e.mint(t, "alice", 4)
	e.mint(t, "bob", 7)

	rec := e.do(t, http.MethodGet, "/v1/users/alice/assets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assets := decodeJSON[[]AssetDTO](t, rec)
	require.Len(t, assets, 2)
	assert.Less(t, assets[0].ID, assets[1].ID, "assets come back in mint order")
}
