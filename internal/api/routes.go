package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(m.Timeout(15 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		// Catalog
		r.Get("/catalog", h.ListCatalog)

		// Assets
		r.Route("/assets", func(r chi.Router) {
			r.Post("/mint", h.MintAsset)
			r.Route("/{assetID}", func(r chi.Router) {
				r.Get("/", h.GetAsset)
				r.Get("/owner", h.GetAssetOwner)
				r.Post("/approve", h.ApproveAsset)
				r.Post("/transfer", h.TransferAsset)
			})
		})

		// Marketplace
		r.Route("/market", func(r chi.Router) {
			r.Get("/items", h.ListUnsoldItems)
			r.Post("/items", h.CreateListing)
			r.Route("/items/{itemID}", func(r chi.Router) {
				r.Get("/", h.GetMarketItem)
				r.Post("/buy", h.PurchaseItem)
				r.Delete("/", h.CancelListing)
			})
			r.Get("/fee", h.GetFee)
			r.Put("/fee", h.UpdateFee)
			r.Get("/treasury", h.GetTreasury)
			r.Post("/treasury/withdraw", h.WithdrawTreasury)
			r.Post("/proceeds/withdraw", h.WithdrawProceeds)
		})

		// User portfolio
		r.Route("/users/{identity}", func(r chi.Router) {
			r.Get("/assets", h.GetUserAssets)
			r.Get("/items", h.GetUserItems)
			r.Get("/listings", h.GetUserListings)
			r.Get("/proceeds", h.GetUserProceeds)
		})

		// Live updates
		r.Get("/stream", h.HandleSSE)
		r.Get("/ws", h.HandleWebSocket)
	})

	return r
}
