package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/session"
)

// Config holds backend connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the allocation backend's REST API.
type Client struct {
	baseURL    string
	tokens     session.Source
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, tokens session.Source, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if errors.Is(err, session.ErrUnreachable) {
		return transportError(err)
	}
	if err != nil {
		return unauthorizedError(err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return transportError(err)
	}
	defer resp.Body.Close()
	c.logger.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode,
		"duration", time.Since(start), "request_id", requestID)

	if resp.StatusCode >= 400 {
		var eb errorBody
		// An undecodable error body still maps to a status-derived message.
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if resp.StatusCode == http.StatusUnauthorized {
			session.Invalidate(c.tokens)
		}
		return statusError(resp.StatusCode, eb)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transportError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// CreateAllocation submits a wizard draft.
func (c *Client) CreateAllocation(ctx context.Context, req model.AllocationRequest) (*model.Allocation, error) {
	var a model.Allocation
	if err := c.do(ctx, http.MethodPost, "/api/allocations", nil, req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// AllocationCreatable reports whether a new allocation may be started.
func (c *Client) AllocationCreatable(ctx context.Context) (model.Creatable, error) {
	var cr model.Creatable
	err := c.do(ctx, http.MethodGet, "/api/allocations/creatable", nil, nil, &cr)
	return cr, err
}

func (c *Client) SearchAllocations(ctx context.Context, q model.PageQuery) (model.Page[model.Allocation], error) {
	var p model.Page[model.Allocation]
	err := c.do(ctx, http.MethodGet, "/api/allocations", q.Values(), nil, &p)
	return p, err
}

func (c *Client) GetAllocation(ctx context.Context, id int64) (*model.Allocation, error) {
	var a model.Allocation
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/allocations/%d", id), nil, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) SearchAllocationFamilies(ctx context.Context, allocationID int64, q model.PageQuery) (model.Page[model.AllocationFamily], error) {
	var p model.Page[model.AllocationFamily]
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/allocations/%d/families", allocationID), q.Values(), nil, &p)
	return p, err
}

func (c *Client) SearchAllocationInventories(ctx context.Context, allocationID int64, q model.PageQuery) (model.Page[model.AllocationInventory], error) {
	var p model.Page[model.AllocationInventory]
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/allocations/%d/inventories", allocationID), q.Values(), nil, &p)
	return p, err
}

func (c *Client) AcceptAllocationFamily(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/allocation-families/%d/accept", id), nil, nil, nil)
}

func (c *Client) RejectAllocationFamily(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/allocation-families/%d/reject", id), nil, nil, nil)
}

// SearchEligibleFamilies lists families that may be included in a new allocation.
func (c *Client) SearchEligibleFamilies(ctx context.Context, q model.PageQuery) (model.Page[model.Family], error) {
	var p model.Page[model.Family]
	err := c.do(ctx, http.MethodGet, "/api/families/eligible", q.Values(), nil, &p)
	return p, err
}

// SearchEligibleInventories lists unexpired inventory with stock available.
func (c *Client) SearchEligibleInventories(ctx context.Context, q model.PageQuery) (model.Page[model.Inventory], error) {
	var p model.Page[model.Inventory]
	err := c.do(ctx, http.MethodGet, "/api/inventories/eligible", q.Values(), nil, &p)
	return p, err
}
