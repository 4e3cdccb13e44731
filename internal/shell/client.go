package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Host is the boundary to the WebAssembly execution host ("Shell"). The
// registry consults it for liveness before retirement and nudges it to
// re-read bindings after a swap; it never opens physical connections itself.
type Host interface {
	ActiveTenants(ctx context.Context) ([]string, error)
	Healthy(ctx context.Context, tomain string, environment string) (bool, error)
	ReloadBindings(ctx context.Context) error
	// Reflect returns the OpenAPI document the Shell exposes for a tomain.
	Reflect(ctx context.Context, tomain string) (string, error)
}

// Client talks to the Shell admin API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs a Client for the given Shell base URL.
func New(base string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("empty shell base url")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid shell base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// ActiveTenants lists the tomains the Shell is currently hosting.
func (c *Client) ActiveTenants(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/tenants", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query shell tenants: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shell tenants returned status %d", resp.StatusCode)
	}
	var tenants []string
	if err := json.NewDecoder(resp.Body).Decode(&tenants); err != nil {
		return nil, fmt.Errorf("decode shell tenants: %w", err)
	}
	return tenants, nil
}

// Healthy probes the Shell for a tomain's health in one environment. Any
// 2xx answer counts as healthy.
func (c *Client) Healthy(ctx context.Context, tomain string, environment string) (bool, error) {
	endpoint := fmt.Sprintf("%s/admin/health/%s/%s", c.baseURL, url.PathEscape(tomain), url.PathEscape(environment))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("query shell health: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// ReloadBindings tells the Shell to re-read the binding registry.
func (c *Client) ReloadBindings(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/reload-bindings", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push shell reload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("shell reload returned status %d", resp.StatusCode)
	}
	return nil
}

// Reflect fetches the OpenAPI document the Shell serves for a tomain's live
// kernel. The body is returned verbatim for the docs explorer to render.
func (c *Client) Reflect(ctx context.Context, tomain string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reflect/"+url.PathEscape(tomain), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("query shell reflect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("shell reflect returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read shell reflect body: %w", err)
	}
	return string(body), nil
}

// NotifyReload pushes a hot-reload without blocking the caller. A Shell that
// is down is logged and otherwise ignored.
func NotifyReload(host Host, logger *slog.Logger) {
	if host == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := host.ReloadBindings(ctx); err != nil {
			if logger != nil {
				logger.Warn("shell not reachable for hot-reload", "error", err)
			}
			return
		}
		if logger != nil {
			logger.Info("shell hot-reload triggered")
		}
	}()
}
