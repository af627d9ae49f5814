package handlers

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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/repository"
	"github.com/moodi-org/pass-backend/internal/repository/repotest"
	"github.com/moodi-org/pass-backend/internal/services"
	"github.com/stretchr/testify/require"
)

const testFrontendOrigin = "http://localhost:2025"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	mu      sync.Mutex
	results map[string]*models.VerifierResult
	err     error
}

func (v *stubVerifier) register(email, miID, name, college string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.results[email] = &models.VerifierResult{
		UserExists: true,
		MIID:       models.LooseString(miID),
		Name:       models.LooseString(name),
		College:    models.LooseString(college),
	}
}

func (v *stubVerifier) CheckRegistration(_ context.Context, email string) (*models.VerifierResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	if r, ok := v.results[email]; ok {
		return r, nil
	}
	return &models.VerifierResult{}, nil
}

type testServer struct {
	router    *gin.Engine
	verifier  *stubVerifier
	tokens    *services.TokenService
	repo      *repository.ParticipantRepository
	uploadDir string
	passDir   string
}

// setupTestRouter wires the real pass service over a temp SQLite database
// and temp file directories.
func setupTestRouter(t *testing.T, checks ...HealthCheck) *testServer {
	t.Helper()

	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	passDir := filepath.Join(root, "passes")

	photos, err := services.NewFileStore(uploadDir, "photo")
	require.NoError(t, err)
	passes, err := services.NewFileStore(passDir, "pass")
	require.NoError(t, err)

	repo := repotest.NewRepository(t)
	verifier := &stubVerifier{results: map[string]*models.VerifierResult{}}
	tokens := services.NewTokenService("handler-secret", 7*24*time.Hour)

	svc := services.NewPassService(services.PassServiceDeps{
		Repository:        repo,
		Verifier:          verifier,
		Tokens:            tokens,
		Photos:            photos,
		Passes:            passes,
		Renderer:          services.NewPassRenderer(1200, 80),
		Logger:            logging.Logger,
		IDNumberMinLength: 4,
		MaxPhotoBytes:     5 << 20,
		MaxPassBytes:      10 << 20,
	})

	if len(checks) == 0 {
		checks = []HealthCheck{{Name: "database", Required: true, Check: svc.Ready}}
	}

	router := gin.New()
	RegisterRoutes(router, Routes{
		Pass:      NewPassHandlers(logging.Logger, svc, 5<<20, 10<<20),
		Health:    NewHealthHandlers(logging.Logger, checks...),
		Tokens:    tokens,
		UploadDir: uploadDir,
		PassDir:   passDir,
		CORS: cors.New(cors.Config{
			AllowOrigins:     []string{testFrontendOrigin},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
		}),
	})

	return &testServer{
		router:    router,
		verifier:  verifier,
		tokens:    tokens,
		repo:      repo,
		uploadDir: uploadDir,
		passDir:   passDir,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) getJSON(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

// checkIn registers email with the verifier and returns a bearer token for it
func (s *testServer) checkIn(t *testing.T, email, miNo, name string) string {
	t.Helper()
	s.verifier.register(email, miNo, name, "IIT X")
	w := s.postJSON("/api/accommodation/check", `{"email":"`+email+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.CheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

// multipartRequest builds a multipart POST with the given fields and files
func multipartRequest(t *testing.T, path, token string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(f.data))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
