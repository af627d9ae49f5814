package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/middleware"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/services"
)

// multipartOverhead is the slack allowed on top of a file limit for the
// multipart envelope and the other form fields.
const multipartOverhead = 1 << 20

// multipartMemory is how much of a multipart body is kept in memory
const multipartMemory = 1 << 20

// PassHandlers serves the access pass API
type PassHandlers struct {
	logger        *logging.SafeLogger
	passService   *services.PassService
	maxPhotoBytes int64
	maxPassBytes  int64
}

// NewPassHandlers creates the pass handlers. The byte limits bound request
// bodies before the service applies its exact checks.
func NewPassHandlers(logger *logging.SafeLogger, passService *services.PassService, maxPhotoBytes, maxPassBytes int64) *PassHandlers {
	return &PassHandlers{
		logger:        logger,
		passService:   passService,
		maxPhotoBytes: maxPhotoBytes,
		maxPassBytes:  maxPassBytes,
	}
}

// Check godoc
// @Summary Verify a participant and issue a pass token
// @Description Checks the email against the registration verifier, stores the participant and returns a bearer token.
// @Tags accommodation
// @Accept json
// @Produce json
// @Param data body models.CheckRequest true "Participant email"
// @Success 200 {object} models.CheckResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/accommodation/check [post]
func (h *PassHandlers) Check(c *gin.Context) {
	var req models.CheckRequest
	if c.Request.Method == http.MethodGet || c.Request.ContentLength != 0 {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
			return
		}
	}
	if req.Email == "" {
		req.Email = c.Query("email")
	}

	resp, err := h.passService.CheckAccommodation(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, h.logger, "check", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Get a participant record
// @Tags accommodation
// @Produce json
// @Param email query string true "Participant email"
// @Success 200 {object} models.ParticipantResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/accommodation/get [get]
func (h *PassHandlers) Get(c *gin.Context) {
	record, err := h.passService.GetRecord(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondError(c, h.logger, "get record", err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// UploadImage godoc
// @Summary Upload the participant photo and ID document
// @Tags accommodation
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param photo formData file true "Photo (JPEG, PNG or WebP)"
// @Param idType formData string true "Document type"
// @Param idNumber formData string true "Document number"
// @Success 200 {object} models.OKResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/accommodation/upload-image [post]
func (h *PassHandlers) UploadImage(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "no token"})
		return
	}

	defer cleanupMultipart(c.Request)
	file, err := h.formFile(c, "photo", h.maxPhotoBytes)
	if err != nil {
		respondError(c, h.logger, "upload image", err)
		return
	}
	defer file.Close()

	err = h.passService.UploadPhoto(c.Request.Context(), claims.Email, file,
		c.PostForm("idType"), c.PostForm("idNumber"))
	if err != nil {
		respondError(c, h.logger, "upload image", err)
		return
	}

	c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

// GetImage godoc
// @Summary Download the participant photo
// @Tags accommodation
// @Produce image/jpeg,image/png,image/webp
// @Param email query string true "Participant email"
// @Success 200 {file} file
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/accommodation/get-image [get]
func (h *PassHandlers) GetImage(c *gin.Context) {
	file, contentType, err := h.passService.GetPhoto(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondError(c, h.logger, "get image", err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		respondError(c, h.logger, "get image", err)
		return
	}

	c.Header("Content-Type", contentType)
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}

// SavePass godoc
// @Summary Store the generated pass image
// @Tags accommodation
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param pass formData file true "Rendered pass image"
// @Success 200 {object} models.SavePassResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/accommodation/save-pass [post]
func (h *PassHandlers) SavePass(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "no token"})
		return
	}

	defer cleanupMultipart(c.Request)
	file, err := h.formFile(c, "pass", h.maxPassBytes)
	if err != nil {
		respondError(c, h.logger, "save pass", err)
		return
	}
	defer file.Close()

	resp, err := h.passService.SavePass(c.Request.Context(), claims.Email, file)
	if err != nil {
		respondError(c, h.logger, "save pass", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// formFile bounds the request body and returns the named multipart file
func (h *PassHandlers) formFile(c *gin.Context, field string, maxBytes int64) (multipart.File, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, models.NewBadRequest("file too large")
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			return nil, models.NewBadRequest(field + " required")
		default:
			return nil, models.NewBadRequest("invalid multipart form")
		}
	}

	file, _, err := c.Request.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, models.NewBadRequest(field + " required")
		}
		return nil, models.NewBadRequest("invalid multipart form")
	}
	return file, nil
}

// cleanupMultipart removes temp files spilled by multipart parsing
func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
