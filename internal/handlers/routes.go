package handlers

import (
	"net/http"

	"github.com/kubesec-bank/webbank/internal/middleware"
)

// Routes registers every endpoint on a new ServeMux. Public endpoints share
// the given rate limiter; authenticated routes go through JWTAuth and admin
// routes additionally through RequireAdmin.
func (h *Handler) Routes(limiter *middleware.RateLimiter) *http.ServeMux {
	mux := http.NewServeMux()

	authn := middleware.JWTAuth(h.svc)
	admin := func(next http.HandlerFunc) http.Handler {
		return authn(middleware.RequireAdmin(h.svc)(next))
	}
	protected := func(next http.HandlerFunc) http.Handler {
		return authn(next)
	}
	limited := func(next http.HandlerFunc) http.Handler {
		return limiter.Middleware(next)
	}

	mux.HandleFunc("GET /health", h.Health)

	// Public routes.
	mux.Handle("POST /api/v1/users/register", limited(h.Register))
	mux.Handle("POST /api/v1/users/verify", limited(h.Verify))
	mux.Handle("POST /api/v1/users/login", limited(h.Login))
	mux.Handle("POST /api/v1/joint/login", limited(h.JointLogin))

	// Account holder routes.
	mux.Handle("POST /api/v1/logout", protected(h.Logout))
	mux.Handle("GET /api/v1/dashboard", protected(h.Dashboard))
	mux.Handle("GET /api/v1/joint/dashboard", protected(h.JointDashboard))
	mux.Handle("POST /api/v1/joint/accounts", protected(h.CreateJointAccount))
	mux.Handle("POST /api/v1/accounts/{id}/deposit", protected(h.Deposit))
	mux.Handle("POST /api/v1/accounts/{id}/withdraw", protected(h.Withdraw))
	mux.Handle("POST /api/v1/accounts/{id}/transfer", protected(h.Transfer))
	mux.Handle("POST /api/v1/accounts/{id}/loans", protected(h.ApplyLoan))

	// Admin routes.
	mux.Handle("GET /api/v1/admin/loans", admin(h.ListLoans))
	mux.Handle("POST /api/v1/admin/loans/{id}/approve", admin(h.ApproveLoan))
	mux.Handle("POST /api/v1/admin/loans/{id}/reject", admin(h.RejectLoan))
	mux.Handle("GET /api/v1/admin/accounts/{number}", admin(h.AdminAccount))

	return mux
}
