package mediagen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alert-bulletin-service/internal/models"
)

// Chart kinds rendered for a bulletin.
const (
	KindMap   = "map"
	KindTable = "table"
)

// RegionValue is one row of chart input.
type RegionValue struct {
	RegionCode string            `json:"region_code"`
	RegionName string            `json:"region_name"`
	Value      float64           `json:"value"`
	Level      models.AlertLevel `json:"level"`
}

// ChartRequest describes a chart to render.
type ChartRequest struct {
	Kind        string            `json:"kind"`
	AlertType   models.AlertType  `json:"alert_type"`
	PeriodStart string            `json:"period_start"`
	Level       models.AlertLevel `json:"level"`
	Title       string            `json:"title"`
	Regions     []RegionValue     `json:"regions"`
}

// Client calls the external chart renderer. It treats the renderer as a
// black box that returns PNG bytes.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a renderer client. Each request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// maxImageBytes caps a rendered chart.
const maxImageBytes = 10 << 20

// Render returns the PNG bytes of the requested chart.
func (c *Client) Render(ctx context.Context, req ChartRequest) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: chart renderer URL is not set", models.ErrConfiguration)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/png")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: render %s chart: %v", models.ErrTransientTransport, req.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: renderer error: status %d: %s", models.ErrTransientTransport, resp.StatusCode, body)
		}
		return nil, fmt.Errorf("renderer error: status %d: %s", resp.StatusCode, body)
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s chart: %v", models.ErrTransientTransport, req.Kind, err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("renderer returned an empty %s chart", req.Kind)
	}
	if len(img) > maxImageBytes {
		return nil, fmt.Errorf("renderer returned a %s chart larger than %d bytes", req.Kind, maxImageBytes)
	}
	return img, nil
}
