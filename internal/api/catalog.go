package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/Saisurya114/wardrobe-backend/internal/imagestore"
	"github.com/Saisurya114/wardrobe-backend/internal/intake"
	"github.com/Saisurya114/wardrobe-backend/internal/model"
	"github.com/Saisurya114/wardrobe-backend/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// CatalogHandler handles the confirmed garment catalog.
type CatalogHandler struct {
	DB       *sql.DB
	Pipeline *intake.Pipeline
	Images   *imagestore.Store
}

// List handles GET /api/inventory with offset/limit pagination.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultPageSize)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	items, err := store.ListItems(r.Context(), h.DB, offset, limit)
	if err != nil {
		slog.Error("failed to list garments", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list garments")
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/inventory/{id}.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := store.GetItem(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		slog.Error("failed to get garment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get garment")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "garment not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/inventory/{id}. The ID and image path are
// frozen; classification fields may be corrected after confirmation.
func (h *CatalogHandler) Update(w http.ResponseWriter, r *http.Request) {
	var update model.InventoryUpdate
	if err := decodeJSON(r, &update); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.IsEmpty() {
		jsonError(w, http.StatusBadRequest, "no editable fields in request")
		return
	}

	item, err := store.UpdateItem(r.Context(), h.DB, r.PathValue("id"), update)
	if err != nil {
		slog.Error("failed to update garment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update garment")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "garment not found")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("garment updated", "user", claims.Username, "id", item.ID)
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/inventory/{id}.
func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Pipeline.DeleteItem(r.Context(), id); err != nil {
		if errors.Is(err, intake.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "garment not found")
			return
		}
		slog.Error("failed to delete garment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete garment")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("garment deleted", "user", claims.Username, "id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "garment deleted"})
}

// GetImage handles GET /api/inventory/{id}/image, serving the stored PNG.
func (h *CatalogHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get garment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get garment")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "garment not found")
		return
	}

	path := h.Images.PermanentPath(id)
	if _, err := os.Stat(path); err != nil {
		jsonError(w, http.StatusNotFound, "garment image not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
