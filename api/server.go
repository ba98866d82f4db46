/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK (middleware.go):
  1. RealIP / RequestID:  Client address and a unique ID per request
  2. Logger:              Request logging
  3. Recoverer:           Panic recovery (500 instead of crash)
  4. Timeout:             APP_REQUEST_TIMEOUT per request
  5. Secure headers:      unrolled/secure
  6. CORS:                CORS_ORIGINS
  7. Rate limit:          RATE_LIMIT_PER_MINUTE per client IP (httprate)

ROUTE GROUPS:
  /healthz                 Store liveness
  /api/stays/*             Reservations and check-ins
  /api/reservations/*      Lookups by reservation number
  /api/advances/*          Ledger entries, one group per kind
  /api/charges/*
  /api/transactions/*
  /api/settlements/*
  /api/bills/*             Bills and their settlements
  /api/folios/{folioNo}/*  Balance, summary, payment, checkout
  /api/checkouts/*         Checkout history and front-desk summary
  /api/reports/*           Read-only projections
  /api/audits              Night audit runs and manual trigger
  /api/scenarios/*         Demo data loaders (not mounted in production)

SECURITY NOTE:
  No authentication middleware. Deploy behind an authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/warp/folio-engine/config"
	"github.com/warp/folio-engine/folio"
)

// NewRouter creates a new router with all routes configured. cfg may be
// nil, in which case middleware defaults apply.
func NewRouter(h *Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middlewareStack(cfg, h.Logger)...)

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/stays", func(r chi.Router) {
			r.Post("/", h.SaveStay)
			r.Get("/", h.ListStays)
			r.Get("/{folioNo}", h.GetStay)
		})

		r.Route("/reservations/{reservationNo}", func(r chi.Router) {
			r.Get("/", h.GetReservation)
			r.Get("/advances", h.ReservationAdvances)
		})

		// Ledger entry routes
		r.Route("/advances", h.entryRoutes(folio.KindAdvance))
		r.Route("/charges", h.entryRoutes(folio.KindCharge))
		r.Route("/transactions", h.entryRoutes(folio.KindTransaction))
		r.Route("/settlements", h.entryRoutes(folio.KindSettlement))

		r.Route("/bills", func(r chi.Router) {
			r.Post("/", h.CreateBill)
			r.Get("/", h.ListBills)
			r.Get("/{id}", h.GetBill)
			r.Put("/{id}", h.UpdateBill)
			r.Delete("/{id}", h.DeleteBill)
			r.Get("/{id}/settlements", h.BillSettlements)
		})

		r.Route("/folios/{folioNo}", func(r chi.Router) {
			r.Get("/outstanding", h.Outstanding)
			r.Get("/summary", h.Summary)
			r.Get("/eligibility", h.Eligibility)
			r.Get("/receipt", h.Receipt)
			r.Get("/advances", h.FolioAdvances)
			r.Get("/charges", h.FolioCharges)
			r.Get("/transactions", h.FolioTransactions)
			r.Get("/bills", h.FolioBills)
			r.Post("/payments", h.ProcessPayment)
			r.Post("/checkout", h.CheckoutFolio)
			r.Post("/checkout/cancel", h.CancelCheckout)
		})

		r.Route("/checkouts", func(r chi.Router) {
			r.Get("/history", h.CheckoutHistory)
			r.Get("/summary", h.CheckoutSummary)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/payments", h.PaymentReport)
			r.Get("/modes", h.ModeReport)
			r.Get("/charges", h.ChargeReport)
			r.Get("/daily", h.DailyReport)
			r.Get("/financial", h.FinancialReport)
			r.Get("/journey/{identifier}", h.GuestJourney)
			r.Get("/guest-payments/{identifier}", h.GuestPayments)
		})

		r.Route("/audits", func(r chi.Router) {
			r.Get("/", h.ListAudits)
			r.Post("/", h.RunAudit)
		})

		// Scenario routes reset the store
		if !cfg.IsProduction() {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
