package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/observability"
	"github.com/moodi-org/pass-backend/internal/utils"
	"github.com/moodi-org/pass-backend/internal/utils/httpclient"
	"go.uber.org/zap"
)

const verifierCheckPath = "/api/user/check"

// maxVerifierBody bounds how much of a verifier reply is read
const maxVerifierBody = 1 << 20

// Verifier confirms that an email belongs to a registered participant
type Verifier interface {
	CheckRegistration(ctx context.Context, email string) (*models.VerifierResult, error)
}

// VerifierClient queries the external registration verifier over HTTP
type VerifierClient struct {
	baseURL string
	client  *http.Client
	logger  *logging.SafeLogger
}

// NewVerifierClient creates a verifier client for baseURL
func NewVerifierClient(baseURL string, timeout time.Duration, logger *logging.SafeLogger) *VerifierClient {
	return &VerifierClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpclient.New(timeout),
		logger:  logger,
	}
}

// CheckRegistration asks the verifier whether email is registered. A reply
// with userExists=false is not an error; transport failures, unexpected
// statuses and undecodable bodies are.
func (c *VerifierClient) CheckRegistration(ctx context.Context, email string) (*models.VerifierResult, error) {
	ctx, span := utils.TraceExternalService(ctx, "registration_verifier", "check")
	defer span.End()

	endpoint := c.baseURL + verifierCheckPath + "?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verifier request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		observability.VerifierRequests.WithLabelValues("error").Inc()
		utils.RecordErrorInSpan(span, err, nil)
		c.logger.Error("verifier request failed",
			zap.String("email", observability.MaskEmail(email)),
			zap.Error(err))
		return nil, fmt.Errorf("verifier unreachable: %w", err)
	}
	defer resp.Body.Close()
	utils.AddSpanAttribute(span, "http.status_code", resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifierBody))
	if err != nil {
		observability.VerifierRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read verifier response: %w", err)
	}

	var result models.VerifierResult
	decodeErr := json.Unmarshal(body, &result)

	switch {
	case resp.StatusCode == http.StatusNotFound && decodeErr == nil && !result.UserExists:
		// some deployments answer unknown users with 404 and a normal body
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		observability.VerifierRequests.WithLabelValues("error").Inc()
		err := fmt.Errorf("verifier returned status %d", resp.StatusCode)
		utils.RecordErrorInSpan(span, err, nil)
		c.logger.Error("verifier returned unexpected status",
			zap.Int("status", resp.StatusCode),
			zap.String("email", observability.MaskEmail(email)))
		return nil, err
	case decodeErr != nil:
		observability.VerifierRequests.WithLabelValues("error").Inc()
		utils.RecordErrorInSpan(span, decodeErr, nil)
		return nil, fmt.Errorf("malformed verifier response: %w", decodeErr)
	}

	outcome := "not_registered"
	if result.UserExists {
		outcome = "registered"
	}
	observability.VerifierRequests.WithLabelValues(outcome).Inc()
	utils.AddSpanAttribute(span, "verifier.user_exists", result.UserExists)

	c.logger.Debug("verifier answered",
		zap.String("email", observability.MaskEmail(email)),
		zap.Bool("user_exists", result.UserExists))
	return &result, nil
}
