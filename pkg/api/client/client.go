package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Client provides typed access to the registry API for interactive tools.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
	backoff    func() retry.Backoff
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAdminToken attaches the operator token to every request.
func WithAdminToken(token string) Option {
	return func(c *Client) {
		c.adminToken = strings.TrimSpace(token)
	}
}

// WithoutRetry disables the backoff on store-unavailable answers.
func WithoutRetry() Option {
	return func(c *Client) {
		c.backoff = nil
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d %s): %s", e.Status, e.Kind, e.Message)
}

// do performs one API call. A 503 answer means the registry store dropped
// out from under the API, so those are retried with backoff; every other
// failure surfaces immediately.
func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.backoff == nil {
		return c.doOnce(ctx, method, path, body, v)
	}
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := c.doOnce(ctx, method, path, body, v)
		var apiErr APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, v any) error {
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set("X-Admin-Token", c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		kind, msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Kind: kind, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) (string, string) {
	if body == nil {
		return "", ""
	}
	var payload struct {
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "", ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", strings.TrimSpace(string(data))
	}
	return payload.Kind, strings.TrimSpace(payload.Error)
}

// Tomain reflects API tomain payloads.
type Tomain struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Owner        string    `json:"owner"`
	Creator      string    `json:"creator"`
	Team         string    `json:"team"`
	Status       string    `json:"status"`
	HealthStatus string    `json:"health_status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Feature models a promotable unit of work.
type Feature struct {
	ID           string   `json:"id"`
	TomainID     string   `json:"tomain_id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Branch       string   `json:"branch"`
	ArtifactHash string   `json:"artifact_hash"`
	Environments []string `json:"environments"`
}

// TomainDetail is a tomain with its promotion state.
type TomainDetail struct {
	Tomain
	Features   []Feature         `json:"features"`
	WasmHashes map[string]string `json:"wasm_hashes"`
}

// ManifestResource declares one abstract resource need by alias.
type ManifestResource struct {
	Alias string `json:"alias"`
	Type  string `json:"type"`
}

// Manifest is a tomain's declared contract.
type Manifest struct {
	TomainID     string                      `json:"tomain_id"`
	Name         string                      `json:"name"`
	Resources    map[string]ManifestResource `json:"resources"`
	Capabilities []string                    `json:"capabilities"`
	VaultPath    string                      `json:"vault_path"`
	Features     []Feature                   `json:"features"`
}

// Binding maps a logical alias to a physical endpoint.
type Binding struct {
	ID          string `json:"id"`
	TomainID    string `json:"tomain_id"`
	Alias       string `json:"alias"`
	PhysicalURL string `json:"physical_url"`
	Environment string `json:"environment"`
	Kind        string `json:"kind"`
}

// Resolution is the binding set for one tomain in one environment.
type Resolution struct {
	TomainID    string            `json:"tomain_id"`
	Environment string            `json:"environment"`
	Bindings    map[string]string `json:"bindings"`
}

// PromotionResult reports the post-promotion state.
type PromotionResult struct {
	TomainID     string   `json:"tomain_id"`
	Feature      string   `json:"feature"`
	Environment  string   `json:"environment"`
	ArtifactHash string   `json:"artifact_hash"`
	Environments []string `json:"environments"`
}

// ListTomains returns every registered tomain with synced health.
func (c *Client) ListTomains(ctx context.Context) ([]Tomain, error) {
	var tomains []Tomain
	if err := c.do(ctx, http.MethodGet, "/api/v1/tomains", nil, &tomains); err != nil {
		return nil, err
	}
	return tomains, nil
}

// CreateTomainInput captures the payload for tomain registration.
type CreateTomainInput struct {
	Name    string `json:"name"`
	Owner   string `json:"owner"`
	Creator string `json:"creator"`
	Team    string `json:"team"`
}

// CreateTomain registers a new tomain.
func (c *Client) CreateTomain(ctx context.Context, input CreateTomainInput) (Tomain, error) {
	var tomain Tomain
	if err := c.do(ctx, http.MethodPost, "/api/v1/tomains", input, &tomain); err != nil {
		return Tomain{}, err
	}
	return tomain, nil
}

// GetTomain fetches one tomain with its features and artifact hashes.
func (c *Client) GetTomain(ctx context.Context, id string) (TomainDetail, error) {
	path := fmt.Sprintf("/api/v1/tomains/%s", url.PathEscape(id))
	var detail TomainDetail
	if err := c.do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return TomainDetail{}, err
	}
	return detail, nil
}

// DeleteTomain removes a tomain and everything bound to it.
func (c *Client) DeleteTomain(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/v1/tomains/%s", url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Resolve fetches the binding set for a tomain name in one environment.
func (c *Client) Resolve(ctx context.Context, name, environment string) (Resolution, error) {
	path := fmt.Sprintf("/api/v1/tomains/resolve/%s?color=%s", url.PathEscape(name), url.QueryEscape(environment))
	var resolution Resolution
	if err := c.do(ctx, http.MethodGet, path, nil, &resolution); err != nil {
		return Resolution{}, err
	}
	return resolution, nil
}

// ListFeatures returns a tomain's features, optionally filtered to one
// environment context.
func (c *Client) ListFeatures(ctx context.Context, tomainID, environment string) ([]Feature, error) {
	path := fmt.Sprintf("/api/v1/tomains/%s/features", url.PathEscape(tomainID))
	if strings.TrimSpace(environment) != "" {
		path += "?color=" + url.QueryEscape(environment)
	}
	var features []Feature
	if err := c.do(ctx, http.MethodGet, path, nil, &features); err != nil {
		return nil, err
	}
	return features, nil
}

// RegisterFeatureInput captures the payload for feature registration.
type RegisterFeatureInput struct {
	Name         string `json:"name"`
	Branch       string `json:"branch"`
	ArtifactHash string `json:"artifact_hash"`
}

// RegisterFeature creates a feature in DEV.
func (c *Client) RegisterFeature(ctx context.Context, tomainID string, input RegisterFeatureInput) (Feature, error) {
	path := fmt.Sprintf("/api/v1/tomains/%s/features", url.PathEscape(tomainID))
	var feature Feature
	if err := c.do(ctx, http.MethodPost, path, input, &feature); err != nil {
		return Feature{}, err
	}
	return feature, nil
}

// PromoteInput captures a ladder transition request.
type PromoteInput struct {
	Feature      string `json:"feature,omitempty"`
	From         string `json:"from"`
	To           string `json:"to"`
	ArtifactHash string `json:"artifact_hash,omitempty"`
}

// Promote moves a tomain one rung up the ladder.
func (c *Client) Promote(ctx context.Context, tomainID string, input PromoteInput) (PromotionResult, error) {
	path := fmt.Sprintf("/api/v1/tomains/%s/promote", url.PathEscape(tomainID))
	input.Feature = ""
	var result PromotionResult
	if err := c.do(ctx, http.MethodPost, path, input, &result); err != nil {
		return PromotionResult{}, err
	}
	return result, nil
}

// PromoteFeature moves a single feature one rung up the ladder.
func (c *Client) PromoteFeature(ctx context.Context, tomainID string, input PromoteInput) (PromotionResult, error) {
	path := fmt.Sprintf("/api/v1/tomains/%s/promote/feature", url.PathEscape(tomainID))
	var result PromotionResult
	if err := c.do(ctx, http.MethodPost, path, input, &result); err != nil {
		return PromotionResult{}, err
	}
	return result, nil
}

// GetManifest fetches a tomain's declared resource contract.
func (c *Client) GetManifest(ctx context.Context, tomainID string) (Manifest, error) {
	path := fmt.Sprintf("/api/v1/tomains/%s/manifest", url.PathEscape(tomainID))
	var manifest Manifest
	if err := c.do(ctx, http.MethodGet, path, nil, &manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// UpdateManifestInput captures the payload for a manifest replacement.
type UpdateManifestInput struct {
	Resources map[string]ManifestResource `json:"resources"`
	VaultPath string                      `json:"vault_path,omitempty"`
}

// UpdateManifest replaces a tomain's declared resource contract.
func (c *Client) UpdateManifest(ctx context.Context, tomainID string, input UpdateManifestInput) (Manifest, error) {
	path := fmt.Sprintf("/api/v1/tomains/%s/manifest", url.PathEscape(tomainID))
	var manifest Manifest
	if err := c.do(ctx, http.MethodPost, path, input, &manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// UploadFeatureWasm pushes a wasm binary for a feature; the server hashes it
// and records the hash on the feature's DEV rung.
func (c *Client) UploadFeatureWasm(ctx context.Context, tomainID, feature string, wasm []byte) (Feature, error) {
	path := fmt.Sprintf("/api/v1/tomains/%s/features/%s/wasm", url.PathEscape(tomainID), url.PathEscape(feature))
	body := map[string]string{"wasm_base64": base64.StdEncoding.EncodeToString(wasm)}
	var updated Feature
	if err := c.do(ctx, http.MethodPost, path, body, &updated); err != nil {
		return Feature{}, err
	}
	return updated, nil
}

// Retire removes a tomain (or one feature, when named) from an environment.
func (c *Client) Retire(ctx context.Context, tomainID, feature, environment string) error {
	path := fmt.Sprintf("/api/v1/tomains/%s/retire", url.PathEscape(tomainID))
	body := map[string]string{"environment": environment}
	if strings.TrimSpace(feature) != "" {
		body["feature"] = feature
	}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// ListBindings returns every binding record in the registry.
func (c *Client) ListBindings(ctx context.Context) ([]Binding, error) {
	var bindings []Binding
	if err := c.do(ctx, http.MethodGet, "/api/v1/bindings", nil, &bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

// UpsertBindingInput captures a bind request.
type UpsertBindingInput struct {
	TomainID    string `json:"tomain_id"`
	Alias       string `json:"alias"`
	PhysicalURL string `json:"physical_url"`
	Environment string `json:"environment"`
	Kind        string `json:"kind,omitempty"`
}

// UpsertBinding creates or replaces a binding.
func (c *Client) UpsertBinding(ctx context.Context, input UpsertBindingInput) (Binding, error) {
	var binding Binding
	if err := c.do(ctx, http.MethodPost, "/api/v1/bindings", input, &binding); err != nil {
		return Binding{}, err
	}
	return binding, nil
}

// DeleteBinding removes one binding by its unique triple.
func (c *Client) DeleteBinding(ctx context.Context, tomainID, alias, environment string) error {
	body := map[string]string{
		"tomain_id":   tomainID,
		"alias":       alias,
		"environment": environment,
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/bindings", body, nil)
}

// ResolveAlias answers a single-alias lookup.
func (c *Client) ResolveAlias(ctx context.Context, tomainID, alias, environment string) (Binding, error) {
	path := fmt.Sprintf("/api/v1/bindings/resolve?tomain_id=%s&alias=%s&environment=%s",
		url.QueryEscape(tomainID), url.QueryEscape(alias), url.QueryEscape(environment))
	var binding Binding
	if err := c.do(ctx, http.MethodGet, path, nil, &binding); err != nil {
		return Binding{}, err
	}
	return binding, nil
}
