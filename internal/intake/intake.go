// Package intake orchestrates the garment pipeline: preprocess a raw
// photo, derive color and type metadata, stage the result for review,
// and later promote it into the permanent catalog or discard it.
package intake

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"sync"

	"github.com/Saisurya114/wardrobe-backend/internal/classify"
	"github.com/Saisurya114/wardrobe-backend/internal/colors"
	"github.com/Saisurya114/wardrobe-backend/internal/imagestore"
	"github.com/Saisurya114/wardrobe-backend/internal/model"
	"github.com/Saisurya114/wardrobe-backend/internal/preprocess"
	"github.com/Saisurya114/wardrobe-backend/internal/staging"
	"github.com/Saisurya114/wardrobe-backend/internal/store"
)

// ErrNotFound is returned when a staged or catalog ID is unknown.
var ErrNotFound = errors.New("not found")

// inferenceWorkers bounds the number of concurrent model calls so
// intake requests don't serialize each other but also don't pile onto
// the GPU.
const inferenceWorkers = 2

// Pipeline wires the intake stages together.
type Pipeline struct {
	db         *sql.DB
	pre        *preprocess.Preprocessor
	classifier *classify.Classifier
	staged     *staging.Store
	images     *imagestore.Store

	sem chan struct{}

	// allocMu serializes confirmations: the ID allocation read and the
	// catalog insert must not interleave between concurrent confirms.
	allocMu sync.Mutex
}

// NewPipeline creates an intake pipeline.
func NewPipeline(db *sql.DB, pre *preprocess.Preprocessor, classifier *classify.Classifier, staged *staging.Store, images *imagestore.Store) *Pipeline {
	return &Pipeline{
		db:         db,
		pre:        pre,
		classifier: classifier,
		staged:     staged,
		images:     images,
		sem:        make(chan struct{}, inferenceWorkers),
	}
}

// Process runs the full intake chain on a raw photo and stages the
// result. It returns the staged record for review. Ambiguous images
// surface as *classify.MultiGarmentError, broken ones as
// *preprocess.ProcessingError.
func (p *Pipeline) Process(ctx context.Context, raw []byte) (*model.StagedItem, error) {
	processed, err := p.withWorker(ctx, func() ([]byte, error) {
		return p.pre.Extract(ctx, raw)
	})
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(processed))
	if err != nil {
		return nil, &preprocess.ProcessingError{Stage: "analyze", Err: err}
	}

	rgb := colors.DominantRGB(img)
	color := model.Color{
		Name:  colors.MapName(rgb),
		RGB:   rgb,
		Group: colors.MapGroup(rgb),
	}

	var result *classify.Result
	_, err = p.withWorker(ctx, func() ([]byte, error) {
		var cerr error
		result, cerr = p.classifier.Classify(ctx, processed)
		return nil, cerr
	})
	if err != nil {
		return nil, err
	}

	confidence := result.Confidence
	inventory := model.InventoryItem{
		Category:       result.Category,
		Type:           result.Type,
		Subtype:        model.ValueUnknown,
		Color:          color,
		Fit:            model.ValueUnknown,
		Formality:      model.ValueUnknown,
		Season:         []string{},
		TypeConfidence: &confidence,
	}

	tempID := staging.NewTempID()
	path, err := p.images.SaveTemp(tempID, processed)
	if err != nil {
		// The inline base64 copy keeps the record usable; only log.
		slog.Warn("failed to save temp image to disk", "temp_id", tempID, "error", err)
		path = ""
	}

	record, err := p.staged.Put(tempID, inventory, model.StagedImage{
		Data:      base64.StdEncoding.EncodeToString(processed),
		Format:    "png",
		MediaType: "image/png",
		Path:      path,
	})
	if err != nil {
		p.images.DeleteTemp(tempID)
		return nil, fmt.Errorf("staging record: %w", err)
	}

	slog.Info("garment staged", "temp_id", tempID,
		"category", inventory.Category, "type", inventory.Type,
		"color", color.Name)
	return record, nil
}

// Confirm promotes a staged record into the permanent catalog. The
// catalog ID is allocated here, from the record's current category and
// type, so edits made during staging are always reflected. Image move
// and row insert commit together or not at all.
func (p *Pipeline) Confirm(ctx context.Context, tempID string) (*model.InventoryItem, error) {
	p.allocMu.Lock()
	defer p.allocMu.Unlock()

	// Read the staged record under the lock: a concurrent confirm of the
	// same temp ID must observe the winner's delete and resolve not-found
	// rather than inserting a second row.
	record, err := p.staged.Get(tempID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	item := record.Inventory
	existing, err := store.ListItemIDs(ctx, tx, item.Category+"_"+item.Type+"_")
	if err != nil {
		return nil, err
	}
	item.ID = NextSmartID(item.Category, item.Type, existing)

	// Relocate the image before inserting so the no-orphan-record
	// invariant holds the moment the row is visible.
	path, err := p.promoteImage(record, item.ID)
	if err != nil {
		return nil, err
	}
	item.ImagePath = path
	item.ImageURL = "/api/inventory/" + item.ID + "/image"

	if err := store.CreateItem(ctx, tx, &item); err != nil {
		p.rollbackImage(item.ID, tempID)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		p.rollbackImage(item.ID, tempID)
		return nil, fmt.Errorf("committing confirmation: %w", err)
	}

	// The staged slot is freed only after the catalog commit; a crash in
	// between leaves a resolved record behind, never a half-confirmed one.
	if _, err := p.staged.Delete(tempID); err != nil {
		slog.Warn("confirmed item left in staging store", "temp_id", tempID, "error", err)
	}

	slog.Info("garment confirmed", "temp_id", tempID, "id", item.ID)

	return store.GetItem(ctx, p.db, item.ID)
}

// Discard deletes a staged record and its temp image.
func (p *Pipeline) Discard(tempID string) error {
	found, err := p.staged.Delete(tempID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if _, err := p.images.DeleteTemp(tempID); err != nil {
		slog.Warn("failed to delete temp image", "temp_id", tempID, "error", err)
	}

	slog.Info("staged garment discarded", "temp_id", tempID)
	return nil
}

// DeleteItem removes a confirmed garment and its image.
func (p *Pipeline) DeleteItem(ctx context.Context, id string) error {
	found, err := store.DeleteItem(ctx, p.db, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if _, err := p.images.DeletePermanent(id); err != nil {
		slog.Warn("failed to delete permanent image", "id", id, "error", err)
	}
	return nil
}

// promoteImage moves the staged image to permanent storage, falling back
// to the inline base64 copy when the temp file is gone.
func (p *Pipeline) promoteImage(record *model.StagedItem, id string) (string, error) {
	path, err := p.images.Promote(record.TempID, id)
	if err == nil {
		return path, nil
	}

	data, decErr := base64.StdEncoding.DecodeString(record.Image.Data)
	if decErr != nil {
		return "", fmt.Errorf("staged image unavailable: %w", err)
	}
	return p.images.SavePermanent(id, data)
}

// rollbackImage tries to undo a promotion after a failed insert/commit.
func (p *Pipeline) rollbackImage(id, tempID string) {
	if err := p.images.Demote(id, tempID); err != nil {
		slog.Error("failed to roll back promoted image", "id", id, "error", err)
	}
}

// withWorker runs fn while holding one of the bounded inference slots.
func (p *Pipeline) withWorker(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn()
}
