package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxErrorBody = 512

// WebhookGateway posts tag requests to a CRM tagging endpoint.
type WebhookGateway struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

type webhookPayload struct {
	LeadID       string `json:"lead_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Tag          string `json:"tag"`
	Subject      string `json:"subject,omitempty"`
	SequenceID   string `json:"sequence_id,omitempty"`
	AssignmentID string `json:"assignment_id,omitempty"`
	StepOrder    int    `json:"step_order,omitempty"`
}

// NewWebhookGateway creates a gateway posting to url. A non-empty token is
// sent as a bearer token. Timeout bounds each request.
func NewWebhookGateway(url, token string, timeout time.Duration, logger *slog.Logger) *WebhookGateway {
	return &WebhookGateway{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("module", "webhook_gateway"),
	}
}

func (g *WebhookGateway) ApplyTag(ctx context.Context, req TagRequest) error {
	if req.Lead == nil || req.Lead.Email == "" {
		return Permanent(errors.New("lead has no email"))
	}

	body, err := json.Marshal(webhookPayload{
		LeadID:       req.Lead.ID,
		Email:        req.Lead.Email,
		Name:         req.Lead.Name,
		Tag:          req.Tag,
		Subject:      req.Subject,
		SequenceID:   req.SequenceID,
		AssignmentID: req.AssignmentID,
		StepOrder:    req.StepOrder,
	})
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Transient(fmt.Errorf("request failed: %w", err))
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			g.logger.WarnContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)

		g.logger.DebugContext(ctx, "tag applied", "lead_id", req.Lead.ID, "tag", req.Tag, "status", resp.StatusCode)

		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &Error{
		Permanent:  isPermanentStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("tag %q rejected: %s", req.Tag, bytes.TrimSpace(respBody)),
	}
}

// isPermanentStatus treats client errors as permanent, except timeouts and throttling.
func isPermanentStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}

	return status >= http.StatusBadRequest && status < http.StatusInternalServerError
}
