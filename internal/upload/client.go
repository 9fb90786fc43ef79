// Package upload performs single-file calls against the remote extraction service.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// maxResponseBytes caps how much of a reply is read.
const maxResponseBytes = 1 << 20

// Client uploads one work item per Submit call. It never retries.
type Client struct {
	endpoint  string
	fieldName string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	schema    *jsonschema.Schema
	logger    *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit spaces out calls to at most perSec per second.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), max(burst, 1))
		}
	}
}

func NewClient(cfg common.UploadConfig, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileSchema(BuildResponseSchema())
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint:  cfg.Endpoint,
		fieldName: cfg.FieldName,
		timeout:   cfg.Timeout,
		http:      &http.Client{},
		schema:    schema,
		logger:    logger,
	}
	if c.fieldName == "" {
		c.fieldName = "file"
	}
	if c.timeout <= 0 {
		c.timeout = 60 * time.Second
	}
	WithRateLimit(cfg.RatePerSec, cfg.Burst)(c)
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Submit performs exactly one remote call for item and classifies the reply.
// A call that outlives the configured timeout resolves to a network failure.
func (c *Client) Submit(ctx context.Context, item *entity.WorkItem) entity.Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	log := common.LoggerFrom(ctx, c.logger).With("item_id", item.ID, "file", item.DisplayName)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("upload.rate_limit_wait", "error", err)
			return entity.Failed(constants.ErrorNetwork, fmt.Sprintf("waiting for rate limiter: %v", err))
		}
	}

	body, contentType, err := c.encode(item)
	if err != nil {
		log.Error("upload.encode_error", "error", err)
		return entity.Failed(constants.ErrorValidation, err.Error())
	}

	raw, code, err := c.send(ctx, log, body, contentType)
	if err != nil {
		return transportOutcome(ctx, err, c.timeout)
	}
	if code/100 != 2 {
		return statusOutcome(code, raw)
	}

	if err := validateResponse(c.schema, raw); err != nil {
		log.Warn("upload.response_invalid", "error", err)
		return entity.Failed(constants.ErrorUnknown, fmt.Sprintf("malformed response: %v", err))
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return entity.Failed(constants.ErrorUnknown, fmt.Sprintf("decode response: %v", err))
	}
	return resp.Outcome()
}

// encode builds the multipart body carrying the item's payload.
func (c *Client) encode(item *entity.WorkItem) (*bytes.Buffer, string, error) {
	if item.Source == nil {
		return nil, "", fmt.Errorf("%s: no payload attached", item.DisplayName)
	}
	rc, err := item.Source.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", item.DisplayName, err)
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(c.fieldName, item.DisplayName)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", item.DisplayName, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) send(ctx context.Context, log *slog.Logger, body *bytes.Buffer, contentType string) ([]byte, int, error) {
	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		log.Error("upload.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	log.Debug("upload.http.request", "req_id", reqID, "url", c.endpoint, "content_length", body.Len())

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("upload.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Warn("upload.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Warn("upload.http.read_error", "req_id", reqID, "error", err)
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	log.Info("upload.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, resp.StatusCode, nil
}

// transportOutcome classifies a call that never produced a usable reply.
func transportOutcome(ctx context.Context, err error, timeout time.Duration) entity.Outcome {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return entity.Failed(constants.ErrorNetwork, fmt.Sprintf("upload timed out after %s", timeout))
	case errors.Is(err, context.Canceled):
		return entity.Failed(constants.ErrorNetwork, "upload cancelled")
	}
	return entity.Failed(constants.ErrorNetwork, err.Error())
}
