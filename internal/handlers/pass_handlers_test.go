package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	s := setupTestRouter(t)
	s.verifier.register("asha@example.com", "MI042", "Asha Rao", "IIT X")

	formReq := httptest.NewRequest(http.MethodPost, "/api/accommodation/check", strings.NewReader("email=asha%40example.com"))
	formReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantError  string
	}{
		{
			name:       "json body",
			req:        jsonRequest(http.MethodPost, "/api/accommodation/check", `{"email":"asha@example.com"}`),
			wantStatus: http.StatusOK,
		},
		{
			name:       "mixed case email",
			req:        jsonRequest(http.MethodPost, "/api/accommodation/check", `{"email":"  Asha@Example.COM "}`),
			wantStatus: http.StatusOK,
		},
		{
			name:       "form body",
			req:        formReq,
			wantStatus: http.StatusOK,
		},
		{
			name:       "get with query",
			req:        httptest.NewRequest(http.MethodGet, "/api/accommodation/check?email=asha%40example.com", nil),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing email",
			req:        jsonRequest(http.MethodPost, "/api/accommodation/check", `{}`),
			wantStatus: http.StatusBadRequest,
			wantError:  "email required",
		},
		{
			name:       "empty body",
			req:        httptest.NewRequest(http.MethodPost, "/api/accommodation/check", nil),
			wantStatus: http.StatusBadRequest,
			wantError:  "email required",
		},
		{
			name:       "malformed json",
			req:        jsonRequest(http.MethodPost, "/api/accommodation/check", `{"email":`),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "not registered",
			req:        jsonRequest(http.MethodPost, "/api/accommodation/check", `{"email":"ghost@example.com"}`),
			wantStatus: http.StatusForbidden,
			wantError:  "not registered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.req)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeError(t, w).Error)
				return
			}

			var resp models.CheckResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.ImageUploaded)

			claims, err := s.tokens.Parse(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, "asha@example.com", claims.Email)
		})
	}

	_, err := s.repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCheck_VerifierFailure(t *testing.T) {
	s := setupTestRouter(t)
	s.verifier.err = errors.New("verifier unreachable: connection refused")

	w := s.postJSON("/api/accommodation/check", `{"email":"asha@example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"server error"}`, w.Body.String())
}

func TestGet(t *testing.T) {
	s := setupTestRouter(t)
	s.checkIn(t, "asha@example.com", "MI042", "Asha Rao")

	w := s.getJSON("/api/accommodation/get?email=ASHA%40example.com")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"miNo": "MI042",
		"name": "Asha Rao",
		"email": "asha@example.com",
		"college": "IIT X",
		"imageUploaded": false,
		"hasImage": false,
		"passImage": "",
		"idType": "",
		"idLast4": "",
		"hasIdDocument": false
	}`, w.Body.String())

	w = s.getJSON("/api/accommodation/get?email=ghost%40example.com")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", decodeError(t, w).Error)

	w = s.getJSON("/api/accommodation/get")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email required", decodeError(t, w).Error)
}

func TestUploadImage(t *testing.T) {
	s := setupTestRouter(t)
	token := s.checkIn(t, "asha@example.com", "MI042", "Asha Rao")
	photo := testJPEG(t, 64, 64)
	valid := map[string]string{"idType": "Passport", "idNumber": "A1234567"}

	t.Run("requires token", func(t *testing.T) {
		w := s.do(multipartRequest(t, "/api/accommodation/upload-image", "", valid,
			formFile{field: "photo", filename: "me.jpg", data: photo}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "no token", decodeError(t, w).Error)
	})

	t.Run("rejects forged token", func(t *testing.T) {
		w := s.do(multipartRequest(t, "/api/accommodation/upload-image", token+"x", valid,
			formFile{field: "photo", filename: "me.jpg", data: photo}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing photo", func(t *testing.T) {
		w := s.do(multipartRequest(t, "/api/accommodation/upload-image", token, valid))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "photo required", decodeError(t, w).Error)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := jsonRequest(http.MethodPost, "/api/accommodation/upload-image", `{}`)
		req.Header.Set("Authorization", "Bearer "+token)
		w := s.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("short id number", func(t *testing.T) {
		w := s.do(multipartRequest(t, "/api/accommodation/upload-image", token,
			map[string]string{"idType": "Passport", "idNumber": "A12"},
			formFile{field: "photo", filename: "me.jpg", data: photo}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "idNumber must be at least 4 characters", decodeError(t, w).Error)
		assertDirEmpty(t, s.uploadDir)
	})

	t.Run("success", func(t *testing.T) {
		w := s.do(multipartRequest(t, "/api/accommodation/upload-image", token, valid,
			formFile{field: "photo", filename: "me.jpg", data: photo}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())

		w = s.getJSON("/api/accommodation/get?email=asha%40example.com")
		require.Equal(t, http.StatusOK, w.Code)
		var record models.ParticipantResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
		assert.True(t, record.ImageUploaded)
		assert.True(t, record.HasImage)
		assert.Equal(t, "Passport", record.IDType)
		assert.Equal(t, "4567", record.IDLast4)
		assert.True(t, record.HasIDDocument)

		w = s.getJSON("/api/accommodation/get-image?email=asha%40example.com")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
		assert.Equal(t, photo, w.Body.Bytes())
	})
}

func TestUploadImage_TooLarge(t *testing.T) {
	s := setupTestRouter(t)
	token := s.checkIn(t, "asha@example.com", "MI042", "Asha Rao")

	big := append(testJPEG(t, 8, 8), make([]byte, 5<<20)...)
	w := s.do(multipartRequest(t, "/api/accommodation/upload-image", token,
		map[string]string{"idType": "Passport", "idNumber": "A1234567"},
		formFile{field: "photo", filename: "big.jpg", data: big}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assertDirEmpty(t, s.uploadDir)
}

func TestUploadImage_ParticipantGone(t *testing.T) {
	s := setupTestRouter(t)
	token, err := s.tokens.Issue(&models.Participant{ID: 99, Email: "ghost@example.com"})
	require.NoError(t, err)

	w := s.do(multipartRequest(t, "/api/accommodation/upload-image", token,
		map[string]string{"idType": "Passport", "idNumber": "A1234567"},
		formFile{field: "photo", filename: "me.jpg", data: testJPEG(t, 8, 8)}))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assertDirEmpty(t, s.uploadDir)
}

func TestGetImage_Errors(t *testing.T) {
	s := setupTestRouter(t)
	s.checkIn(t, "asha@example.com", "MI042", "Asha Rao")

	assert.Equal(t, http.StatusBadRequest, s.getJSON("/api/accommodation/get-image").Code)
	assert.Equal(t, http.StatusNotFound, s.getJSON("/api/accommodation/get-image?email=ghost%40example.com").Code)
	assert.Equal(t, http.StatusNotFound, s.getJSON("/api/accommodation/get-image?email=asha%40example.com").Code)
}

func TestSavePass(t *testing.T) {
	s := setupTestRouter(t)
	token := s.checkIn(t, "ravi@example.com", "MI123", "Ravi")

	var urls []string
	for i := 0; i < 2; i++ {
		w := s.do(multipartRequest(t, "/api/accommodation/save-pass", token, nil,
			formFile{field: "pass", filename: "pass.png", data: testPNG(t, 1800, 900)}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp models.SavePassResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.True(t, strings.HasPrefix(resp.URL, "/passes/MI123_"))
		urls = append(urls, resp.URL)
	}
	assert.NotEqual(t, urls[0], urls[1])

	entries, err := os.ReadDir(s.passDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	w := s.getJSON(urls[1])
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "cross-origin", w.Header().Get("Cross-Origin-Resource-Policy"))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1200, cfg.Width)
	assert.Equal(t, 600, cfg.Height)

	w = s.getJSON("/api/accommodation/get?email=ravi%40example.com")
	var record models.ParticipantResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, urls[1], record.PassImage)
}

func TestSavePass_Errors(t *testing.T) {
	s := setupTestRouter(t)
	token := s.checkIn(t, "ravi@example.com", "MI123", "Ravi")

	w := s.do(multipartRequest(t, "/api/accommodation/save-pass", "", nil,
		formFile{field: "pass", filename: "pass.jpg", data: testJPEG(t, 8, 8)}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(multipartRequest(t, "/api/accommodation/save-pass", token, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "pass required", decodeError(t, w).Error)

	w = s.do(multipartRequest(t, "/api/accommodation/save-pass", token, nil,
		formFile{field: "pass", filename: "pass.jpg", data: []byte("not an image")}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "failed to save pass", resp.Error)
	assert.NotEmpty(t, resp.Details)
	assertDirEmpty(t, s.passDir)
}

func TestStaticUploads(t *testing.T) {
	s := setupTestRouter(t)
	require.NoError(t, os.WriteFile(s.uploadDir+"/photo.jpg", testJPEG(t, 4, 4), 0o644))

	w := s.getJSON("/uploads/" + url.PathEscape("photo.jpg"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusNotFound, s.getJSON("/uploads/missing.jpg").Code)
}

func TestStaticFiles_AnyOrigin(t *testing.T) {
	s := setupTestRouter(t)
	require.NoError(t, os.WriteFile(s.passDir+"/MI1_1.jpg", testJPEG(t, 4, 4), 0o644))
	require.NoError(t, os.WriteFile(s.uploadDir+"/photo.jpg", testJPEG(t, 4, 4), 0o644))

	for _, path := range []string{"/passes/MI1_1.jpg", "/uploads/photo.jpg"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Origin", "https://partner.example")
		w := s.do(req)

		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
		assert.Equal(t, "cross-origin", w.Header().Get("Cross-Origin-Resource-Policy"), path)
	}
}

func TestStaticFiles_HideStagedUploads(t *testing.T) {
	s := setupTestRouter(t)
	require.NoError(t, os.WriteFile(s.uploadDir+"/.upload-123", testJPEG(t, 4, 4), 0o600))

	assert.Equal(t, http.StatusNotFound, s.getJSON("/uploads/.upload-123").Code)
}

func TestAPI_CORS(t *testing.T) {
	s := setupTestRouter(t)
	s.verifier.register("asha@example.com", "MI042", "Asha Rao", "IIT X")

	req := jsonRequest(http.MethodPost, "/api/accommodation/check", `{"email":"asha@example.com"}`)
	req.Header.Set("Origin", testFrontendOrigin)
	w := s.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testFrontendOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/accommodation/save-pass", nil)
	preflight.Header.Set("Origin", testFrontendOrigin)
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "Authorization")
	w = s.do(preflight)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, testFrontendOrigin, w.Header().Get("Access-Control-Allow-Origin"))

	foreign := jsonRequest(http.MethodPost, "/api/accommodation/check", `{"email":"asha@example.com"}`)
	foreign.Header.Set("Origin", "https://partner.example")
	assert.Equal(t, http.StatusForbidden, s.do(foreign).Code)
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
