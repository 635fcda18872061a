package api

import (
	"database/sql"
	"net/http"

	"github.com/Saisurya114/wardrobe-backend/internal/imagestore"
	"github.com/Saisurya114/wardrobe-backend/internal/intake"
	"github.com/Saisurya114/wardrobe-backend/internal/model"
	"github.com/Saisurya114/wardrobe-backend/internal/staging"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, pipeline *intake.Pipeline, staged *staging.Store, images *imagestore.Store) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	clothHandler := &ClothHandler{Pipeline: pipeline}
	stagingHandler := &StagingHandler{Pipeline: pipeline, Staged: staged}
	catalogHandler := &CatalogHandler{DB: db, Pipeline: pipeline, Images: images}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: health check and login.
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "service": "wardrobe"})
	})
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Intake (manager+).
	mux.Handle("POST /api/cloth/extract", authMW(requireManager(http.HandlerFunc(clothHandler.Extract))))

	// Staging queue: read (all roles), resolve (manager+).
	mux.Handle("GET /api/staging", authMW(http.HandlerFunc(stagingHandler.List)))
	mux.Handle("GET /api/staging/{tempID}", authMW(http.HandlerFunc(stagingHandler.Get)))
	mux.Handle("PUT /api/staging/{tempID}", authMW(requireManager(http.HandlerFunc(stagingHandler.Update))))
	mux.Handle("POST /api/staging/{tempID}/confirm", authMW(requireManager(http.HandlerFunc(stagingHandler.Confirm))))
	mux.Handle("DELETE /api/staging/{tempID}", authMW(requireManager(http.HandlerFunc(stagingHandler.Delete))))

	// Catalog: read (all roles), write (manager+).
	mux.Handle("GET /api/inventory", authMW(http.HandlerFunc(catalogHandler.List)))
	mux.Handle("GET /api/inventory/{id}", authMW(http.HandlerFunc(catalogHandler.Get)))
	mux.Handle("GET /api/inventory/{id}/image", authMW(http.HandlerFunc(catalogHandler.GetImage)))
	mux.Handle("PUT /api/inventory/{id}", authMW(requireManager(http.HandlerFunc(catalogHandler.Update))))
	mux.Handle("DELETE /api/inventory/{id}", authMW(requireManager(http.HandlerFunc(catalogHandler.Delete))))

	return mux
}
