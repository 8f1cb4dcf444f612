package httpserver

import (
	"net/http"
	"os"
	"path/filepath"

	"lv-tradedesk/internal/accounts"
	"lv-tradedesk/internal/admin"
	"lv-tradedesk/internal/auth"
	"lv-tradedesk/internal/funding"
	"lv-tradedesk/internal/health"
	"lv-tradedesk/internal/kyc"
	"lv-tradedesk/internal/marketdata"
	"lv-tradedesk/internal/orders"
	"lv-tradedesk/internal/portfolio"
	"lv-tradedesk/internal/positions"
	"lv-tradedesk/internal/trades"
	"lv-tradedesk/internal/watchlist"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Auth      *auth.Handler
	Accounts  *accounts.Handler
	Orders    *orders.Handler
	Positions *positions.Handler
	Trades    *trades.Handler
	Funding   *funding.Handler
	KYC       *kyc.Handler
	Watchlist *watchlist.Handler
	Portfolio *portfolio.Handler
	Quotes    *marketdata.Handler
	Admin     *admin.Handler
	Health    *health.Handler
	WS        http.Handler
	Metrics   http.Handler

	Tokens        TokenParser
	SessionCookie string
	Origin        string
	InternalToken string
	Limiter       *RateLimiter
	UIDist        string
	Log           *zap.Logger
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

type userResourceHandler func(w http.ResponseWriter, r *http.Request, userID, id string)

// user adapts a handler that needs the authenticated user id. It is only
// mounted behind WithAuth.
func user(fn userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserID(r)
		fn(w, r, id)
	}
}

// userParam also passes the named URL parameter.
func userParam(param string, fn userResourceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserID(r)
		fn(w, r, id, chi.URLParam(r, param))
	}
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(AccessLog(log))
	r.Use(CORS(d.Origin))
	r.Use(SecurityHeaders)
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}

	r.Get("/health", d.Health.Ready)
	r.Group(func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))
		r.Get("/internal/health", d.Health.Diagnostics)
		if d.Metrics != nil {
			r.Handle("/internal/metrics", d.Metrics)
		}
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.Auth.Register)
			r.Post("/login", d.Auth.Login)
			r.Post("/logout", d.Auth.Logout)
			r.With(WithAuth(d.Tokens, d.SessionCookie, log)).Get("/me", user(d.Auth.Me))
		})
		r.Get("/ws", d.WS.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Tokens, d.SessionCookie, log))

			r.Get("/accounts", user(d.Accounts.List))
			r.Post("/accounts/{id}/leverage", userParam("id", d.Accounts.UpdateLeverage))

			r.Get("/orders", user(d.Orders.List))
			r.Post("/orders", user(d.Orders.Place))
			r.Get("/orders/{id}", userParam("id", d.Orders.Get))
			r.Delete("/orders/{id}", userParam("id", d.Orders.Cancel))

			r.Get("/positions", user(d.Positions.List))
			r.Post("/positions/{id}/close", userParam("id", d.Positions.Close))
			r.Put("/positions/{id}/protection", userParam("id", d.Positions.UpdateProtection))

			r.Get("/trades", user(d.Trades.List))

			r.Get("/transactions", user(d.Funding.List))
			r.Get("/transactions/methods", d.Funding.Methods)
			r.Post("/transactions/deposit", user(d.Funding.Deposit))
			r.Post("/transactions/withdraw", user(d.Funding.Withdraw))
			r.Delete("/transactions/{id}", userParam("id", d.Funding.Cancel))

			r.Get("/kyc", user(d.KYC.Status))
			r.Post("/kyc", user(d.KYC.Submit))

			r.Get("/watchlist", user(d.Watchlist.List))
			r.Post("/watchlist", user(d.Watchlist.Add))
			r.Delete("/watchlist/{symbol}", userParam("symbol", d.Watchlist.Remove))

			r.Get("/portfolio", user(d.Portfolio.Summary))
			r.Get("/portfolio/risk", user(d.Portfolio.Risk))

			r.Get("/quotes", d.Quotes.Quotes)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin(log))
				r.Get("/users", d.Admin.Users)
				r.Get("/orders", d.Orders.ListAll)
				r.Get("/kyc", d.KYC.Queue)
				r.Post("/kyc/{id}/approve", userParam("id", d.KYC.Approve))
				r.Post("/kyc/{id}/reject", userParam("id", d.KYC.Reject))
				r.Get("/transactions", d.Funding.ListAll)
				r.Post("/accounts/{id}/status", userParam("id", d.Admin.SetAccountStatus))
				r.Get("/audit", d.Admin.AuditTrail)
			})
		})
	})

	if d.UIDist != "" {
		r.NotFound(spaHandler(d.UIDist).ServeHTTP)
	}
	return r
}

// spaHandler serves the built UI, falling back to index.html for client
// side routes.
func spaHandler(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index.html"
		}
		full := filepath.Join(dir, filepath.Clean("/"+path))
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			http.ServeFile(w, r, full)
			return
		}
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	})
}
