package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "membercheck/internal/api/context"
	"membercheck/internal/api/handlers"
	"membercheck/internal/api/middleware"
	"membercheck/internal/pkg/errors"
	"membercheck/internal/platform/auth"
)

type Dependencies struct {
	CheckHandler   *handlers.CheckHandler
	AuthHandler    *handlers.AuthHandler
	OrgHandler     *handlers.OrgHandler
	MemberHandler  *handlers.MemberHandler
	ImportHandler  *handlers.ImportHandler
	APIKeyHandler  *handlers.APIKeyHandler
	AuditHandler   *handlers.AuditHandler
	HealthHandler  *handlers.HealthHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Public lookup endpoint. All methods route to the same handler so that
	// unsupported verbs still pass through credential and rate-limit checks
	// and land in the activity log, instead of httprouter's bare 405.
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		router.Handle(method, "/api/v1/check-member", wrap(deps.CheckHandler.Handle))
	}

	// Health
	router.GET("/healthz", wrap(deps.HealthHandler.Check))

	// Admin authentication
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))

	authMid := deps.AuthMiddleware

	// Organisation management
	router.POST("/api/v1/organisations",
		chain(deps.OrgHandler.Create, authMid.Handle, requireRole("admin")))
	router.POST("/api/v1/admin/organisations/bulk",
		chain(deps.OrgHandler.BulkCreate, authMid.Handle, requireRole("admin")))
	router.GET("/api/v1/organisations",
		chain(deps.OrgHandler.List, authMid.Handle, requireRole("admin")))
	router.GET("/api/v1/organisations/:org_id",
		chain(deps.OrgHandler.Get, authMid.Handle, requireRole("admin")))
	router.DELETE("/api/v1/organisations/:org_id",
		chain(deps.OrgHandler.Delete, authMid.Handle, requireRole("admin")))

	// Member lists
	router.GET("/api/v1/organisations/:org_id/members",
		chain(deps.MemberHandler.List, authMid.Handle, requireRole("admin")))
	router.GET("/api/v1/organisations/:org_id/members/export",
		chain(deps.MemberHandler.Export, authMid.Handle, requireRole("admin")))

	// Member imports
	router.POST("/api/v1/organisations/:org_id/import",
		chain(deps.ImportHandler.Upload, authMid.Handle, requireRole("admin")))
	router.GET("/api/v1/organisations/:org_id/imports",
		chain(deps.ImportHandler.History, authMid.Handle, requireRole("admin")))

	// API key management
	router.POST("/api/v1/api-keys",
		chain(deps.APIKeyHandler.Create, authMid.Handle, requireRole("admin")))
	router.GET("/api/v1/api-keys",
		chain(deps.APIKeyHandler.List, authMid.Handle, requireRole("admin")))
	router.POST("/api/v1/api-keys/:key_id/activate",
		chain(deps.APIKeyHandler.Activate, authMid.Handle, requireRole("admin")))
	router.POST("/api/v1/api-keys/:key_id/deactivate",
		chain(deps.APIKeyHandler.Deactivate, authMid.Handle, requireRole("admin")))
	router.DELETE("/api/v1/api-keys/:key_id",
		chain(deps.APIKeyHandler.Delete, authMid.Handle, requireRole("admin")))

	// Activity log
	router.GET("/api/v1/admin/activity",
		chain(deps.AuditHandler.List, authMid.Handle, requireRole("admin")))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
			if !ok {
				errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authentication required", nil)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next(w, r)
					return
				}
			}
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
		}
	}
}
