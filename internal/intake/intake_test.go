package intake

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Saisurya114/wardrobe-backend/internal/classify"
	"github.com/Saisurya114/wardrobe-backend/internal/db"
	"github.com/Saisurya114/wardrobe-backend/internal/imagestore"
	"github.com/Saisurya114/wardrobe-backend/internal/model"
	"github.com/Saisurya114/wardrobe-backend/internal/preprocess"
	"github.com/Saisurya114/wardrobe-backend/internal/staging"
	"github.com/Saisurya114/wardrobe-backend/internal/store"
)

// testSegmenter returns the input with every pixel forced opaque blue and
// a transparent one-pixel border, mimicking a segmentation mask.
type testSegmenter struct{}

func (testSegmenter) RemoveBackground(_ context.Context, img []byte) ([]byte, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	bounds := decoded.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if x == bounds.Min.X || y == bounds.Min.Y {
				continue // leave transparent
			}
			out.SetNRGBA(x, y, color.NRGBA{R: 40, G: 80, B: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type testScorer struct {
	scores map[string]float64
}

func (s *testScorer) ScoreLabels(_ context.Context, _ []byte, labels []string) ([]classify.Candidate, error) {
	out := make([]classify.Candidate, 0, len(labels))
	for _, l := range labels {
		out = append(out, classify.Candidate{Label: l, Score: s.scores[l]})
	}
	return out, nil
}

func shirtScorer() *testScorer {
	return &testScorer{scores: map[string]float64{
		"a photo of a shirt": 0.9,
		"a photo of a pants": 0.05,
	}}
}

func testPipeline(t *testing.T, scorer classify.Scorer) *Pipeline {
	t.Helper()
	database := db.NewTestDB(t)
	root := t.TempDir()

	staged, err := staging.NewStore(filepath.Join(root, "staging.json"))
	if err != nil {
		t.Fatalf("staging store: %v", err)
	}
	images, err := imagestore.New(filepath.Join(root, "temp"), filepath.Join(root, "permanent"))
	if err != nil {
		t.Fatalf("image store: %v", err)
	}

	pre := preprocess.New(testSegmenter{}, nil)
	return NewPipeline(database, pre, classify.New(scorer), staged, images)
}

func rawPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for x := 0; x < 50; x++ {
		for y := 0; y < 50; y++ {
			img.Set(x, y, color.RGBA{40, 80, 180, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding raw photo: %v", err)
	}
	return buf.Bytes()
}

func TestProcessStagesClassifiedGarment(t *testing.T) {
	p := testPipeline(t, shirtScorer())

	record, err := p.Process(context.Background(), rawPhoto(t))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if record.Status != model.StagedStatusPending {
		t.Errorf("expected pending record, got %q", record.Status)
	}
	if record.Inventory.ID != "" {
		t.Errorf("no catalog ID before confirmation, got %q", record.Inventory.ID)
	}
	if record.Inventory.Category != model.CategoryTopwear || record.Inventory.Type != "shirt" {
		t.Errorf("expected topwear/shirt, got %s/%s", record.Inventory.Category, record.Inventory.Type)
	}
	if record.Inventory.Color.Group != "blue" {
		t.Errorf("expected blue color group, got %q", record.Inventory.Color.Group)
	}
	if record.Inventory.TypeConfidence == nil || *record.Inventory.TypeConfidence != 0.9 {
		t.Errorf("expected type confidence 0.9, got %v", record.Inventory.TypeConfidence)
	}
	if record.Image.Data == "" {
		t.Error("expected inline base64 image")
	}
	if _, err := os.Stat(record.Image.Path); err != nil {
		t.Errorf("temp image missing on disk: %v", err)
	}
}

func TestProcessRejectsMultiGarment(t *testing.T) {
	p := testPipeline(t, &testScorer{scores: map[string]float64{
		"a photo of a shirt": 0.55,
		"a photo of a pants": 0.35,
	}})

	_, err := p.Process(context.Background(), rawPhoto(t))

	var mgErr *classify.MultiGarmentError
	if !errors.As(err, &mgErr) {
		t.Fatalf("expected MultiGarmentError, got %v", err)
	}

	// Nothing may be staged after a rejection.
	records, _ := p.staged.List()
	if len(records) != 0 {
		t.Errorf("rejected image left %d staged records", len(records))
	}
}

func TestProcessSurfacesProcessingError(t *testing.T) {
	p := testPipeline(t, shirtScorer())

	_, err := p.Process(context.Background(), []byte("not an image"))

	var procErr *preprocess.ProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
}

func TestConfirmPromotesRoundTrip(t *testing.T) {
	p := testPipeline(t, shirtScorer())
	ctx := context.Background()

	record, err := p.Process(ctx, rawPhoto(t))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	stagedPNG, _ := base64.StdEncoding.DecodeString(record.Image.Data)

	item, err := p.Confirm(ctx, record.TempID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if item.ID != "topwear_shirt_01" {
		t.Errorf("expected topwear_shirt_01, got %q", item.ID)
	}
	if item.Category != record.Inventory.Category || item.Type != record.Inventory.Type {
		t.Error("confirmed item diverged from staged payload")
	}
	if item.Color != record.Inventory.Color {
		t.Errorf("color diverged: %+v vs %+v", item.Color, record.Inventory.Color)
	}

	// Staging slot is freed.
	if got, _ := p.staged.Get(record.TempID); got != nil {
		t.Error("staged record survived confirmation")
	}

	// Image bytes moved intact to the permanent path.
	permBytes, err := os.ReadFile(p.images.PermanentPath(item.ID))
	if err != nil {
		t.Fatalf("reading permanent image: %v", err)
	}
	if !bytes.Equal(permBytes, stagedPNG) {
		t.Error("promoted image bytes differ from staged image")
	}
}

func TestConfirmAllocatesFromEditedCategoryType(t *testing.T) {
	p := testPipeline(t, shirtScorer())
	ctx := context.Background()

	record, _ := p.Process(ctx, rawPhoto(t))

	// User reclassifies the garment while staged.
	category := model.CategoryBottomwear
	typ := "shorts"
	if _, err := p.staged.Update(record.TempID, model.InventoryUpdate{Category: &category, Type: &typ}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	item, err := p.Confirm(ctx, record.TempID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if item.ID != "bottomwear_shorts_01" {
		t.Errorf("ID must follow the edited category/type, got %q", item.ID)
	}
}

func TestConfirmUnknownID(t *testing.T) {
	p := testPipeline(t, shirtScorer())

	_, err := p.Confirm(context.Background(), "temp_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmTwiceFails(t *testing.T) {
	p := testPipeline(t, shirtScorer())
	ctx := context.Background()

	record, _ := p.Process(ctx, rawPhoto(t))
	if _, err := p.Confirm(ctx, record.TempID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := p.Confirm(ctx, record.TempID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second confirm, got %v", err)
	}
}

func TestConcurrentConfirmationsAllocateDistinctIDs(t *testing.T) {
	p := testPipeline(t, shirtScorer())
	ctx := context.Background()

	const n = 6
	tempIDs := make([]string, n)
	for i := range tempIDs {
		record, err := p.Process(ctx, rawPhoto(t))
		if err != nil {
			t.Fatalf("Process %d: %v", i, err)
		}
		tempIDs[i] = record.TempID
	}

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for _, tempID := range tempIDs {
		wg.Add(1)
		go func(tempID string) {
			defer wg.Done()
			item, err := p.Confirm(ctx, tempID)
			if err != nil {
				t.Errorf("Confirm(%s): %v", tempID, err)
				return
			}
			ids <- item.ID
		}(tempID)
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate catalog ID allocated: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct IDs, got %d", n, len(seen))
	}
}

func TestConcurrentConfirmsOfSameRecordResolveOnce(t *testing.T) {
	p := testPipeline(t, shirtScorer())
	ctx := context.Background()

	record, err := p.Process(ctx, rawPhoto(t))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	const n = 8
	var confirmed, notFound int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Confirm(ctx, record.TempID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, ErrNotFound):
				notFound++
			default:
				t.Errorf("Confirm: %v", err)
			}
		}()
	}
	wg.Wait()

	if confirmed != 1 || notFound != n-1 {
		t.Errorf("expected exactly one confirmation and %d not-found, got %d/%d",
			n-1, confirmed, notFound)
	}

	// Exactly one catalog row came out of the single staged record.
	items, err := store.ListItems(ctx, p.db, 0, 50)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("one staged record produced %d catalog rows", len(items))
	}
}

func TestDiscardRemovesRecordAndImage(t *testing.T) {
	p := testPipeline(t, shirtScorer())
	ctx := context.Background()

	record, _ := p.Process(ctx, rawPhoto(t))

	if err := p.Discard(record.TempID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if got, _ := p.staged.Get(record.TempID); got != nil {
		t.Error("staged record survived discard")
	}
	if _, err := os.Stat(p.images.TempPath(record.TempID)); !os.IsNotExist(err) {
		t.Error("temp image survived discard")
	}

	if err := p.Discard(record.TempID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double discard, got %v", err)
	}
}

func TestDeleteItemRemovesRowAndImage(t *testing.T) {
	p := testPipeline(t, shirtScorer())
	ctx := context.Background()

	record, _ := p.Process(ctx, rawPhoto(t))
	item, _ := p.Confirm(ctx, record.TempID)

	if err := p.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if got, _ := store.GetItem(ctx, p.db, item.ID); got != nil {
		t.Error("catalog row survived delete")
	}
	if _, err := os.Stat(p.images.PermanentPath(item.ID)); !os.IsNotExist(err) {
		t.Error("permanent image survived delete")
	}

	if err := p.DeleteItem(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}
