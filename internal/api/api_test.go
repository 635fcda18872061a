package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Saisurya114/wardrobe-backend/internal/auth"
	"github.com/Saisurya114/wardrobe-backend/internal/classify"
	"github.com/Saisurya114/wardrobe-backend/internal/db"
	"github.com/Saisurya114/wardrobe-backend/internal/imagestore"
	"github.com/Saisurya114/wardrobe-backend/internal/intake"
	"github.com/Saisurya114/wardrobe-backend/internal/model"
	"github.com/Saisurya114/wardrobe-backend/internal/preprocess"
	"github.com/Saisurya114/wardrobe-backend/internal/staging"
	"github.com/Saisurya114/wardrobe-backend/internal/store"
)

const testJWTSecret = "test-secret"

// opaqueSegmenter re-encodes the input as a fully opaque NRGBA PNG.
type opaqueSegmenter struct{}

func (opaqueSegmenter) RemoveBackground(_ context.Context, img []byte) ([]byte, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	bounds := decoded.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := decoded.At(x, y).RGBA()
			out.SetNRGBA(x, y, color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type fixedScorer struct {
	scores map[string]float64
}

func (s *fixedScorer) ScoreLabels(_ context.Context, _ []byte, labels []string) ([]classify.Candidate, error) {
	out := make([]classify.Candidate, 0, len(labels))
	for _, l := range labels {
		out = append(out, classify.Candidate{Label: l, Score: s.scores[l]})
	}
	return out, nil
}

type testEnv struct {
	server *httptest.Server
	token  string
	scorer *fixedScorer
}

func setupTestServer(t *testing.T) *testEnv {
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

	scorer := &fixedScorer{scores: map[string]float64{
		"a photo of a shirt": 0.9,
		"a photo of a pants": 0.05,
	}}
	pipeline := intake.NewPipeline(database,
		preprocess.New(opaqueSegmenter{}, nil),
		classify.New(scorer), staged, images)

	router := NewRouter(database, testJWTSecret, pipeline, staged, images)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	// Create admin user and log in.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	store.CreateUser(ctx, database, "admin", string(hash), model.RoleAdmin)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}

	return &testEnv{server: server, token: token, scorer: scorer}
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// uploadPhoto posts a solid blue JPEG to /api/cloth/extract and returns
// the response.
func uploadPhoto(t *testing.T, env *testEnv) *http.Response {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for x := 0; x < 40; x++ {
		for y := 0; y < 40; y++ {
			img.Set(x, y, color.RGBA{40, 80, 180, 255})
		}
	}
	var photo bytes.Buffer
	if err := jpeg.Encode(&photo, img, nil); err != nil {
		t.Fatalf("encoding photo: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "garment.jpg")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	io.Copy(part, &photo)
	writer.Close()

	req, err := http.NewRequest("POST", env.server.URL+"/api/cloth/extract", &body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	return resp
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestIntakeAndConfirmFlow(t *testing.T) {
	env := setupTestServer(t)

	// Upload a photo; it should land in staging.
	resp := uploadPhoto(t, env)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from extract, got %d", resp.StatusCode)
	}
	var record model.StagedItem
	json.NewDecoder(resp.Body).Decode(&record)
	resp.Body.Close()

	if record.TempID == "" || record.Status != model.StagedStatusPending {
		t.Fatalf("unexpected staged record: %+v", record)
	}
	if record.Inventory.Type != "shirt" {
		t.Errorf("expected shirt classification, got %q", record.Inventory.Type)
	}

	// It shows up in the staging list.
	req, _ := authRequest("GET", env.server.URL+"/api/staging", env.token, nil)
	resp, _ = http.DefaultClient.Do(req)
	var staged []model.StagedItem
	json.NewDecoder(resp.Body).Decode(&staged)
	resp.Body.Close()
	if len(staged) != 1 {
		t.Fatalf("expected 1 staged garment, got %d", len(staged))
	}

	// Edit the staged classification.
	req, _ = authRequest("PUT", env.server.URL+"/api/staging/"+record.TempID, env.token,
		map[string]string{"fit": "slim"})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from staging update, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Confirm into the catalog.
	req, _ = authRequest("POST", env.server.URL+"/api/staging/"+record.TempID+"/confirm", env.token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from confirm, got %d", resp.StatusCode)
	}
	var item model.InventoryItem
	json.NewDecoder(resp.Body).Decode(&item)
	resp.Body.Close()

	if item.ID != "topwear_shirt_01" {
		t.Errorf("expected topwear_shirt_01, got %q", item.ID)
	}
	if item.Fit != "slim" {
		t.Errorf("staged edit lost on confirm, fit = %q", item.Fit)
	}

	// The staged slot is gone.
	req, _ = authRequest("GET", env.server.URL+"/api/staging/"+record.TempID, env.token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for confirmed temp ID, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The garment and its image are served from the catalog.
	req, _ = authRequest("GET", env.server.URL+"/api/inventory/"+item.ID, env.token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from inventory get, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = authRequest("GET", env.server.URL+"/api/inventory/"+item.ID+"/image", env.token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from image get, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	resp.Body.Close()
}

func TestExtractRejectsAmbiguousPhoto(t *testing.T) {
	env := setupTestServer(t)
	env.scorer.scores = map[string]float64{
		"a photo of a shirt": 0.55,
		"a photo of a pants": 0.35,
	}

	resp := uploadPhoto(t, env)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for ambiguous photo, got %d", resp.StatusCode)
	}

	var rejection rejectionResponse
	json.NewDecoder(resp.Body).Decode(&rejection)
	if len(rejection.Candidates) != 2 {
		t.Errorf("expected both candidates in rejection, got %v", rejection.Candidates)
	}
}

func TestExtractRejectsNonImage(t *testing.T) {
	env := setupTestServer(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "notes.txt")
	part.Write([]byte("not an image"))
	writer.Close()

	req, _ := http.NewRequest("POST", env.server.URL+"/api/cloth/extract", &body)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for non-image upload, got %d", resp.StatusCode)
	}
}

func TestDiscardStagedGarment(t *testing.T) {
	env := setupTestServer(t)

	resp := uploadPhoto(t, env)
	var record model.StagedItem
	json.NewDecoder(resp.Body).Decode(&record)
	resp.Body.Close()

	req, _ := authRequest("DELETE", env.server.URL+"/api/staging/"+record.TempID, env.token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from discard, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = authRequest("DELETE", env.server.URL+"/api/staging/"+record.TempID, env.token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for second discard, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)

	req, _ := authRequest("POST", env.server.URL+"/api/auth/logout", env.token, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = authRequest("GET", env.server.URL+"/api/inventory", env.token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp, err := http.Get(env.server.URL + "/")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health check, got %d", resp.StatusCode)
	}
	var status map[string]string
	json.NewDecoder(resp.Body).Decode(&status)
	if status["status"] != "ok" {
		t.Errorf("unexpected health payload: %v", status)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := http.Get(env.server.URL + "/api/inventory")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)

	userToken, _ := auth.GenerateToken(testJWTSecret, 2, "user1", model.RoleUser)

	// Regular user can browse but not resolve staging.
	req, _ := authRequest("GET", env.server.URL+"/api/staging", userToken, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for user listing staging, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = authRequest("POST", env.server.URL+"/api/staging/temp_x/confirm", userToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user confirming, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Regular user should not access /api/users.
	req, _ = authRequest("GET", env.server.URL+"/api/users", userToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user accessing users, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
