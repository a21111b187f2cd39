package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/davmie/userbase/internal/auth"
	"github.com/davmie/userbase/internal/config"
	"github.com/davmie/userbase/internal/handlers"
	"github.com/davmie/userbase/internal/middleware"
	"github.com/davmie/userbase/internal/models"
	"github.com/davmie/userbase/internal/repo"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routePolicy maps protected routes to the role they require. Routes not
// listed here accept any authenticated user. One guard function
// (middleware.RequireRole) enforces the table; handlers never check roles
// themselves.
var routePolicy = map[string]string{
	"GET /users":         models.RoleAdmin,
	"POST /users":        models.RoleAdmin,
	"DELETE /users/{id}": models.RoleAdmin,
}

// guarded registers a protected route, applying the role guard when the
// policy table lists one for it.
func guarded(r chi.Router, method, pattern string, h http.HandlerFunc) {
	if role, ok := routePolicy[method+" "+pattern]; ok {
		r.With(middleware.RequireRole(role)).Method(method, pattern, h)
		return
	}
	r.Method(method, pattern, h)
}

func newRouter(database *sql.DB, cfg config.Config) http.Handler {
	userRepo := repo.NewUserRepo(database)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience,
		time.Duration(cfg.JWTExpireHours)*time.Hour)
	authService := auth.NewService(userRepo, issuer)

	authHandler := &handlers.AuthHandler{Auth: authService}
	userHandler := &handlers.UserHandler{Repo: userRepo}
	validator := middleware.NewTokenValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public auth endpoints, rate limited against brute force.
	authLimiter := middleware.AuthRateLimiter()
	r.Group(func(r chi.Router) {
		r.Use(authLimiter.Middleware)
		r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
	})

	// Everything below requires a valid bearer token.
	r.Group(func(r chi.Router) {
		r.Use(validator.Authenticator)
		r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))
		guarded(r, "GET", "/users", userHandler.ListUsers)
		guarded(r, "POST", "/users", userHandler.CreateUser)
		guarded(r, "GET", "/users/{id}", userHandler.GetUser)
		guarded(r, "PUT", "/users/{id}", userHandler.UpdateUser)
		guarded(r, "DELETE", "/users/{id}", userHandler.DeleteUser)
	})

	return r
}
