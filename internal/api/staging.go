package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Saisurya114/wardrobe-backend/internal/intake"
	"github.com/Saisurya114/wardrobe-backend/internal/model"
	"github.com/Saisurya114/wardrobe-backend/internal/staging"
)

// StagingHandler handles the review queue of staged garments.
type StagingHandler struct {
	Pipeline *intake.Pipeline
	Staged   *staging.Store
}

// List handles GET /api/staging.
func (h *StagingHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.Staged.List()
	if err != nil {
		slog.Error("failed to list staged garments", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list staged garments")
		return
	}
	if records == nil {
		records = []model.StagedItem{}
	}
	jsonResponse(w, http.StatusOK, records)
}

// Get handles GET /api/staging/{tempID}.
func (h *StagingHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.Staged.Get(r.PathValue("tempID"))
	if err != nil {
		slog.Error("failed to get staged garment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get staged garment")
		return
	}
	if record == nil {
		jsonError(w, http.StatusNotFound, "staged garment not found")
		return
	}
	jsonResponse(w, http.StatusOK, record)
}

// Update handles PUT /api/staging/{tempID}. Only classification fields
// may be edited; the image and timestamps are immutable while staged.
func (h *StagingHandler) Update(w http.ResponseWriter, r *http.Request) {
	var update model.InventoryUpdate
	if err := decodeJSON(r, &update); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.IsEmpty() {
		jsonError(w, http.StatusBadRequest, "no editable fields in request")
		return
	}

	record, err := h.Staged.Update(r.PathValue("tempID"), update)
	if err != nil {
		slog.Error("failed to update staged garment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update staged garment")
		return
	}
	if record == nil {
		jsonError(w, http.StatusNotFound, "staged garment not found")
		return
	}

	jsonResponse(w, http.StatusOK, record)
}

// Confirm handles POST /api/staging/{tempID}/confirm.
func (h *StagingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	item, err := h.Pipeline.Confirm(r.Context(), r.PathValue("tempID"))
	if err != nil {
		if errors.Is(err, intake.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "staged garment not found")
			return
		}
		slog.Error("failed to confirm staged garment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to confirm staged garment")
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Delete handles DELETE /api/staging/{tempID}.
func (h *StagingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Pipeline.Discard(r.PathValue("tempID")); err != nil {
		if errors.Is(err, intake.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "staged garment not found")
			return
		}
		slog.Error("failed to discard staged garment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to discard staged garment")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "staged garment discarded"})
}
