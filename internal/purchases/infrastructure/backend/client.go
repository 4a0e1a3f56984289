// Package backend talks to the remote validation service over HTTP.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
	"github.com/go-resty/resty/v2"
)

// SDKVersion is reported to the backend with every request.
const SDKVersion = "1.0.0"

const (
	pathInit        = "v1/user/init"
	pathPurchase    = "v1/user/purchase"
	pathRestore     = "v1/user/restore"
	pathEligibility = "v1/products/get"
)

// Device describes the environment the requests originate from.
type Device struct {
	OS         string `json:"os"`
	OSVersion  string `json:"osVersion,omitempty"`
	Model      string `json:"model,omitempty"`
	Locale     string `json:"locale,omitempty"`
	Country    string `json:"country,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

// Config configures the HTTP client.
type Config struct {
	BaseURL    string
	ProjectKey string
	Timeout    time.Duration
	DebugMode  bool
	Device     Device
}

// APIError is a request the backend understood and refused.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend rejected request (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend rejected request (%d): %s", e.Status, e.Message)
}

// Client implements domain.Backend. Network failures, 5xx and 429 responses
// are returned as TransportFailed; every other refusal is an *APIError.
type Client struct {
	http    *resty.Client
	cfg     Config
	logger  *slog.Logger
	metrics observability.Metrics

	mu  sync.RWMutex
	uid string
}

// NewClient creates a backend client.
func NewClient(cfg Config, logger *slog.Logger, metrics observability.Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	if cfg.ProjectKey == "" {
		return nil, errors.New("project key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Device.OS == "" {
		cfg.Device.OS = "go"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "entitlekit/"+SDKVersion)

	return &Client{
		http:    c,
		cfg:     cfg,
		logger:  logger.With("component", "backend"),
		metrics: metrics,
	}, nil
}

// UID returns the user id assigned by the backend, once known.
func (c *Client) UID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

type baseRequest struct {
	InstallDate int64  `json:"install_date"`
	Device      Device `json:"device"`
	Version     string `json:"version"`
	AccessToken string `json:"access_token"`
	UID         string `json:"q_uid,omitempty"`
	DebugMode   string `json:"debug_mode"`
}

type initRequest struct {
	baseRequest
	AdvertisingID string                      `json:"advertiser_id,omitempty"`
	Purchases     []domain.NormalizedPurchase `json:"purchases,omitempty"`
}

type purchaseRequest struct {
	baseRequest
	Purchase domain.NormalizedPurchase `json:"purchase"`
}

type restoreRequest struct {
	baseRequest
	History []domain.NormalizedPurchase `json:"history"`
}

type storeID struct {
	StoreID string `json:"store_id"`
}

type eligibilityRequest struct {
	baseRequest
	Products []storeID `json:"products_local_data"`
}

type eligibilityResponse struct {
	Products []struct {
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
		Status domain.EligibilityStatus `json:"intro_eligibility_status"`
	} `json:"products_enriched"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type errorData struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) base(installDate int64) baseRequest {
	debug := "0"
	if c.cfg.DebugMode {
		debug = "1"
	}
	return baseRequest{
		InstallDate: installDate,
		Device:      c.cfg.Device,
		Version:     SDKVersion,
		AccessToken: c.cfg.ProjectKey,
		UID:         c.UID(),
		DebugMode:   debug,
	}
}

func (c *Client) InitSession(ctx context.Context, installDate int64, advertisingID string) (*domain.SessionResult, error) {
	return c.session(ctx, "init", pathInit, initRequest{
		baseRequest:   c.base(installDate),
		AdvertisingID: advertisingID,
	})
}

func (c *Client) InitSessionWithPurchases(ctx context.Context, installDate int64, advertisingID string, purchases []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return c.session(ctx, "init_with_purchases", pathInit, initRequest{
		baseRequest:   c.base(installDate),
		AdvertisingID: advertisingID,
		Purchases:     purchases,
	})
}

func (c *Client) ConfirmPurchase(ctx context.Context, installDate int64, purchase domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return c.session(ctx, "purchase", pathPurchase, purchaseRequest{
		baseRequest: c.base(installDate),
		Purchase:    purchase,
	})
}

func (c *Client) Restore(ctx context.Context, installDate int64, history []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	if history == nil {
		history = []domain.NormalizedPurchase{}
	}
	return c.session(ctx, "restore", pathRestore, restoreRequest{
		baseRequest: c.base(installDate),
		History:     history,
	})
}

func (c *Client) EligibilityForIDs(ctx context.Context, storeIDs []string, installDate int64) (map[string]domain.Eligibility, error) {
	req := eligibilityRequest{
		baseRequest: c.base(installDate),
		Products:    make([]storeID, 0, len(storeIDs)),
	}
	for _, id := range storeIDs {
		req.Products = append(req.Products, storeID{StoreID: id})
	}

	var resp eligibilityResponse
	if err := c.post(ctx, "eligibility", pathEligibility, req, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]domain.Eligibility, len(resp.Products))
	for _, p := range resp.Products {
		if p.Product.ID == "" {
			continue
		}
		status := p.Status
		if status == "" {
			status = domain.EligibilityUnknown
		}
		out[p.Product.ID] = domain.Eligibility{Status: status}
	}
	return out, nil
}

func (c *Client) session(ctx context.Context, op, path string, body any) (*domain.SessionResult, error) {
	var result domain.SessionResult
	if err := c.post(ctx, op, path, body, &result); err != nil {
		return nil, err
	}
	if result.UID != "" {
		c.mu.Lock()
		c.uid = result.UID
		c.mu.Unlock()
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	c.metrics.Timing(observability.MetricBackendDuration, time.Since(start), observability.T("op", op))

	if err != nil {
		c.record(op, "transport_error")
		c.logger.Warn("backend request failed", "op", op, "error", err)
		return domain.NewError(domain.CodeTransportFailed, fmt.Errorf("%s: %w", op, err))
	}

	status := resp.StatusCode()
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		c.record(op, "unavailable")
		c.logger.Warn("backend unavailable", "op", op, "status", status)
		return domain.NewError(domain.CodeTransportFailed, &APIError{Status: status, Message: http.StatusText(status)})
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		c.record(op, "bad_response")
		return domain.NewError(domain.CodeTransportFailed, fmt.Errorf("%s: decode response: %w", op, err))
	}

	if status >= http.StatusBadRequest || !env.Success {
		c.record(op, "rejected")
		apiErr := &APIError{Status: status}
		var data errorData
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
			apiErr.Message = data.Message
			if data.Code != nil {
				apiErr.Code = fmt.Sprint(data.Code)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		c.logger.Info("backend rejected request", "op", op, "status", status, "code", apiErr.Code)
		return apiErr
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		c.record(op, "bad_response")
		return domain.NewError(domain.CodeTransportFailed, fmt.Errorf("%s: decode payload: %w", op, err))
	}
	c.record(op, "success")
	c.logger.Debug("backend request completed", "op", op, "duration", time.Since(start))
	return nil
}

func (c *Client) record(op, outcome string) {
	c.metrics.Counter(observability.MetricBackendRequests, 1,
		observability.T("op", op),
		observability.T("outcome", outcome),
	)
}

var _ domain.Backend = (*Client)(nil)
