package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Saisurya114/wardrobe-backend/internal/classify"
	"github.com/Saisurya114/wardrobe-backend/internal/intake"
	"github.com/Saisurya114/wardrobe-backend/internal/preprocess"
)

// maxUploadBytes caps garment photo uploads.
const maxUploadBytes = 10 << 20

// ClothHandler handles garment intake endpoints.
type ClothHandler struct {
	Pipeline *intake.Pipeline
}

type rejectionResponse struct {
	Error      string               `json:"error"`
	Reason     string               `json:"reason"`
	Candidates []classify.Candidate `json:"candidates,omitempty"`
}

// Extract handles POST /api/cloth/extract. It accepts a multipart photo
// upload, runs the intake pipeline, and returns the staged record.
func (h *ClothHandler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "multipart field 'file' required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	record, err := h.Pipeline.Process(r.Context(), raw)
	if err != nil {
		var mgErr *classify.MultiGarmentError
		if errors.As(err, &mgErr) {
			jsonResponse(w, http.StatusBadRequest, rejectionResponse{
				Error:      "multiple garments detected",
				Reason:     "upload a photo containing a single garment",
				Candidates: []classify.Candidate{mgErr.Top, mgErr.Second},
			})
			return
		}

		var procErr *preprocess.ProcessingError
		if errors.As(err, &procErr) {
			jsonResponse(w, http.StatusUnprocessableEntity, rejectionResponse{
				Error:  "image processing failed",
				Reason: procErr.Stage,
			})
			return
		}

		slog.Error("intake failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "intake failed")
		return
	}

	jsonResponse(w, http.StatusCreated, record)
}
