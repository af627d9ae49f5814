package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/observability"
	"github.com/moodi-org/pass-backend/internal/utils"
	"go.uber.org/zap"
)

// PassURLPrefix is the public path generated passes are served under
const PassURLPrefix = "/passes/"

// readyTimeout bounds the readiness database ping
const readyTimeout = 800 * time.Millisecond

// ParticipantStore is the persistence the pass service depends on
type ParticipantStore interface {
	Ping(ctx context.Context) error
	FindByEmail(ctx context.Context, email string) (*models.Participant, error)
	Upsert(ctx context.Context, profile models.ParticipantProfile) (*models.Participant, error)
	UpdatePhoto(ctx context.Context, email, photoPath, idType, idLast4 string) error
	UpdatePassImage(ctx context.Context, email, passPath string) error
}

// TokenIssuer signs bearer tokens for verified participants
type TokenIssuer interface {
	Issue(p *models.Participant) (string, error)
}

// PassServiceDeps wires the pass service. Limiter and Auditor are optional.
type PassServiceDeps struct {
	Repository ParticipantStore
	Verifier   Verifier
	Tokens     TokenIssuer
	Photos     *FileStore
	Passes     *FileStore
	Renderer   *PassRenderer
	Limiter    *RateLimiter
	Auditor    Auditor
	Logger     *logging.SafeLogger

	IDNumberMinLength int
	MaxPhotoBytes     int64
	MaxPassBytes      int64
}

// PassService implements the participant pass lifecycle: verification,
// record lookup, photo upload and pass storage.
type PassService struct {
	repo     ParticipantStore
	verifier Verifier
	tokens   TokenIssuer
	photos   *FileStore
	passes   *FileStore
	renderer *PassRenderer
	limiter  *RateLimiter
	auditor  Auditor
	logger   *logging.SafeLogger

	idMinLength   int
	maxPhotoBytes int64
	maxPassBytes  int64
	now           func() time.Time
}

// NewPassService creates the pass service
func NewPassService(deps PassServiceDeps) *PassService {
	s := &PassService{
		repo:          deps.Repository,
		verifier:      deps.Verifier,
		tokens:        deps.Tokens,
		photos:        deps.Photos,
		passes:        deps.Passes,
		renderer:      deps.Renderer,
		limiter:       deps.Limiter,
		auditor:       deps.Auditor,
		logger:        deps.Logger,
		idMinLength:   deps.IDNumberMinLength,
		maxPhotoBytes: deps.MaxPhotoBytes,
		maxPassBytes:  deps.MaxPassBytes,
		now:           time.Now,
	}
	if s.auditor == nil {
		s.auditor = NopAuditor{}
	}
	if s.renderer == nil {
		s.renderer = NewPassRenderer(0, 0)
	}
	if s.idMinLength <= 0 {
		s.idMinLength = 4
	}
	if s.maxPhotoBytes <= 0 {
		s.maxPhotoBytes = 5 << 20
	}
	if s.maxPassBytes <= 0 {
		s.maxPassBytes = 10 << 20
	}
	return s
}

// PassURL maps a stored pass filename to its public path
func PassURL(name string) string {
	if name == "" {
		return ""
	}
	return PassURLPrefix + url.PathEscape(name)
}

func (s *PassService) observe(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		switch {
		case errors.Is(*err, models.ErrBadRequest):
			status = "bad_request"
		case errors.Is(*err, models.ErrUnauthorized):
			status = "unauthorized"
		case errors.Is(*err, models.ErrNotRegistered):
			status = "not_registered"
		case errors.Is(*err, models.ErrNotFound):
			status = "not_found"
		case errors.Is(*err, models.ErrTooManyRequests):
			status = "rate_limited"
		default:
			status = "error"
		}
	}
	observability.PassOperations.WithLabelValues(operation, status).Inc()
	observability.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// CheckAccommodation verifies email against the registration verifier,
// upserts the participant and issues a bearer token. Unknown emails fail with
// NotRegistered and are never written.
func (s *PassService) CheckAccommodation(ctx context.Context, email string) (_ *models.CheckResponse, err error) {
	start := time.Now()
	defer s.observe("check", start, &err)

	ctx, span := utils.TraceBusinessLogic(ctx, "check_accommodation")
	defer span.End()

	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, models.NewBadRequest("email required")
	}

	if err := s.limiter.Allow(ctx, "check", email); err != nil {
		return nil, err
	}

	result, err := s.verifier.CheckRegistration(ctx, email)
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, fmt.Errorf("check registration: %w", err)
	}
	if !result.UserExists {
		s.logger.Info("check for unregistered email",
			zap.String("email", observability.MaskEmail(email)))
		return nil, models.NewNotRegistered("not registered")
	}

	participant, err := s.repo.Upsert(ctx, models.ParticipantProfile{
		Email:   email,
		MINo:    result.MIID.String(),
		Name:    result.Name.String(),
		College: result.College.String(),
	})
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, fmt.Errorf("upsert participant: %w", err)
	}

	token, err := s.tokens.Issue(participant)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.auditor.Record(ctx, AuditEvent{
		Email:      participant.Email,
		Action:     AuditActionVerified,
		ResourceID: participant.MINo,
	})
	s.logger.Info("participant verified",
		zap.String("email", observability.MaskEmail(email)),
		zap.Int64("id", participant.ID),
		zap.Bool("image_uploaded", participant.ImageUploaded))

	return &models.CheckResponse{Token: token, ImageUploaded: participant.ImageUploaded}, nil
}

// GetRecord returns the public projection of a participant
func (s *PassService) GetRecord(ctx context.Context, email string) (*models.ParticipantResponse, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, models.NewBadRequest("email required")
	}

	participant, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	resp := models.NewParticipantResponse(participant, PassURL)
	return &resp, nil
}

// UploadPhoto stores a participant photo together with identity document
// details. The upload is staged first and removed on every failure path.
func (s *PassService) UploadPhoto(ctx context.Context, email string, photo io.Reader, idType, idNumber string) (err error) {
	start := time.Now()
	defer s.observe("upload_photo", start, &err)

	ctx, span := utils.TraceBusinessLogic(ctx, "upload_photo")
	defer span.End()

	if photo == nil {
		return models.NewBadRequest("photo required")
	}

	staged, err := s.photos.Stage(ctx, photo, s.maxPhotoBytes)
	if err != nil {
		return err
	}
	defer staged.Discard()

	ext, ok := PhotoExtension(staged.ContentType)
	if !ok {
		return models.NewBadRequest("photo must be a JPEG, PNG or WebP image")
	}

	if v := utils.ValidateIDDocument(idType, idNumber, s.idMinLength); !v.IsValid {
		return models.NewBadRequest(v.FirstMessage())
	}

	participant, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	name := utils.GenerateUUID() + ext
	if err := staged.Commit(name); err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return fmt.Errorf("store photo: %w", err)
	}

	idType = utils.SanitizeString(idType)
	if err := s.repo.UpdatePhoto(ctx, participant.Email, name, idType, models.IDLast4(idNumber)); err != nil {
		if rmErr := s.photos.Remove(name); rmErr != nil {
			s.logger.Warn("failed to remove photo after update error",
				zap.String("file", name), zap.Error(rmErr))
		}
		utils.RecordErrorInSpan(span, err, nil)
		return fmt.Errorf("record photo: %w", err)
	}

	// the previous photo is no longer referenced
	if participant.PhotoPath != "" && participant.PhotoPath != name {
		if err := s.photos.Remove(participant.PhotoPath); err != nil {
			s.logger.Warn("failed to remove previous photo",
				zap.String("file", participant.PhotoPath), zap.Error(err))
		}
	}

	s.auditor.Record(ctx, AuditEvent{
		Email:      participant.Email,
		Action:     AuditActionPhotoUploaded,
		ResourceID: participant.MINo,
		Metadata: map[string]string{
			"id_type":      idType,
			"content_type": staged.ContentType,
		},
	})
	s.logger.Info("photo uploaded",
		zap.String("email", observability.MaskEmail(participant.Email)),
		zap.String("id_type", idType),
		zap.String("id_number", observability.MaskIDNumber(idNumber)),
		zap.Int64("size", staged.Size))
	return nil
}

// GetPhoto opens the stored photo of a participant. The caller closes the
// returned file.
func (s *PassService) GetPhoto(ctx context.Context, email string) (*os.File, string, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, "", models.NewBadRequest("email required")
	}

	participant, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if participant.PhotoPath == "" {
		return nil, "", models.NewNotFound("not found")
	}

	f, contentType, err := s.photos.Open(participant.PhotoPath)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("photo file missing on disk",
				zap.String("email", observability.MaskEmail(email)),
				zap.String("file", participant.PhotoPath))
		}
		return nil, "", err
	}
	return f, contentType, nil
}

// SavePass normalizes the submitted pass image, stores it under a new unique
// name and records it on the participant. Earlier pass files are kept.
func (s *PassService) SavePass(ctx context.Context, email string, pass io.Reader) (_ *models.SavePassResponse, err error) {
	start := time.Now()
	defer s.observe("save_pass", start, &err)

	ctx, span := utils.TraceBusinessLogic(ctx, "save_pass")
	defer span.End()

	if pass == nil {
		return nil, models.NewBadRequest("pass image required")
	}
	data, err := io.ReadAll(io.LimitReader(pass, s.maxPassBytes+1))
	if err != nil {
		return nil, models.NewDetailedError("failed to save pass", err)
	}
	if int64(len(data)) > s.maxPassBytes {
		return nil, models.NewBadRequest(fmt.Sprintf("pass image too large (max %d bytes)", s.maxPassBytes))
	}
	if len(data) == 0 {
		return nil, models.NewBadRequest("pass image required")
	}

	participant, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := s.passes.EnsureDir(); err != nil {
		return nil, models.NewDetailedError("failed to save pass", err)
	}

	rendered, err := s.renderer.Render(data)
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, models.NewDetailedError("failed to save pass", err)
	}

	name := fmt.Sprintf("%s_%d_%s.jpg",
		utils.SafeFilenamePart(participant.MINo, "pass"),
		s.now().UnixMilli(),
		utils.ShortID(8))
	if err := s.passes.WriteFile(ctx, name, rendered); err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, models.NewDetailedError("failed to save pass", err)
	}

	if err := s.repo.UpdatePassImage(ctx, participant.Email, name); err != nil {
		if rmErr := s.passes.Remove(name); rmErr != nil {
			s.logger.Warn("failed to remove pass after update error",
				zap.String("file", name), zap.Error(rmErr))
		}
		utils.RecordErrorInSpan(span, err, nil)
		return nil, models.NewDetailedError("failed to save pass", err)
	}

	s.auditor.Record(ctx, AuditEvent{
		Email:      participant.Email,
		Action:     AuditActionPassSaved,
		ResourceID: participant.MINo,
		Metadata:   map[string]string{"file": name},
	})
	s.logger.Info("pass saved",
		zap.String("email", observability.MaskEmail(participant.Email)),
		zap.String("file", name),
		zap.Int("size", len(rendered)))

	return &models.SavePassResponse{OK: true, URL: PassURL(name)}, nil
}

// Ready pings the database within a short budget
func (s *PassService) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}
