package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axiom-os/ccp/internal/domain"
	"github.com/axiom-os/ccp/internal/service/binding"
	"github.com/axiom-os/ccp/internal/service/promotion"
	"github.com/axiom-os/ccp/internal/service/tomain"
	"github.com/axiom-os/ccp/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	tomains    tomain.Service
	bindings   binding.Service
	promotions promotion.Service
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	adminToken string
	dbHealth   func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	resolveTotal       *prometheus.CounterVec
	promotionTotal     *prometheus.CounterVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRead      = 240
	rateLimitResolve   = 600
	rateLimitWrite     = 60
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, tomainSvc tomain.Service, bindingSvc binding.Service, promotionSvc promotion.Service, hub *ws.Hub, limiter RateLimiter, adminToken string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:        http.NewServeMux(),
		logger:     logger,
		tomains:    tomainSvc,
		bindings:   bindingSvc,
		promotions: promotionSvc,
		hub:        hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    limiter,
		adminToken: strings.TrimSpace(adminToken),
		dbHealth:   dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/v1/tomains", r.audit("/api/v1/tomains", r.withRateLimit("/api/v1/tomains", rateLimitRead, rateWindowDefault, r.handleTomains)))
	r.mux.HandleFunc("/api/v1/tomains/", r.audit("/api/v1/tomains/", r.handleTomainSubroutes))
	r.mux.HandleFunc("/api/v1/bindings", r.audit("/api/v1/bindings", r.withRateLimit("/api/v1/bindings", rateLimitRead, rateWindowDefault, r.handleBindings)))
	r.mux.HandleFunc("/api/v1/bindings/resolve", r.audit("/api/v1/bindings/resolve", r.withRateLimit("/api/v1/bindings/resolve", rateLimitResolve, rateWindowRealtime, r.handleBindingResolve)))
	r.mux.HandleFunc("/ws/events", r.audit("/ws/events", r.withRateLimit("/ws/events", rateLimitWebsocket, rateWindowRealtime, r.handleEventsWS)))
	r.mux.HandleFunc("/docs/", r.audit("/docs/", r.withRateLimit("/docs/", rateLimitRead, rateWindowDefault, r.handleDocsRoute)))
}

func (r *Router) handleDocsRoute(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimPrefix(req.URL.Path, "/docs/")
	if name == "" || strings.Contains(name, "/") {
		r.notFound(w)
		return
	}
	r.handleDocs(w, req, name)
}

func (r *Router) handleTomains(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		summaries, err := r.tomains.List(req.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(summaries))
		for _, s := range summaries {
			payload = append(payload, tomainJSON(s.Tomain, s.HealthStatus))
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		if !r.verifyAdminToken(w, req) {
			return
		}
		var payload struct {
			Name    string `json:"name"`
			Owner   string `json:"owner"`
			Creator string `json:"creator"`
			Team    string `json:"team"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
			return
		}
		created, err := r.tomains.Create(req.Context(), tomain.CreateInput{
			Name:    payload.Name,
			Owner:   payload.Owner,
			Creator: payload.Creator,
			Team:    payload.Team,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tomainJSON(*created, created.Status))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTomainSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/v1/tomains/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	if parts[0] == "resolve" {
		if len(parts) != 2 || parts[1] == "" {
			r.notFound(w)
			return
		}
		r.withRateLimit("/api/v1/tomains/resolve", rateLimitResolve, rateWindowRealtime, func(w http.ResponseWriter, req *http.Request) {
			r.handleResolve(w, req, parts[1])
		})(w, req)
		return
	}
	tomainID := parts[0]
	rest := parts[1:]
	switch {
	case len(rest) == 0:
		r.withRateLimit("/api/v1/tomains/{id}", rateLimitRead, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleTomainByID(w, req, tomainID)
		})(w, req)
	case len(rest) == 1 && rest[0] == "features":
		r.withRateLimit("/api/v1/tomains/{id}/features", rateLimitRead, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleFeatures(w, req, tomainID)
		})(w, req)
	case len(rest) == 3 && rest[0] == "features" && rest[1] != "" && rest[2] == "wasm":
		feature := rest[1]
		r.withRateLimit("/api/v1/tomains/{id}/features/{name}/wasm", rateLimitWrite, rateWindowDefault, r.requireAdmin(func(w http.ResponseWriter, req *http.Request) {
			r.handleFeatureUpload(w, req, tomainID, feature)
		}))(w, req)
	case len(rest) == 1 && rest[0] == "manifest":
		r.withRateLimit("/api/v1/tomains/{id}/manifest", rateLimitRead, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleManifest(w, req, tomainID)
		})(w, req)
	case len(rest) == 1 && rest[0] == "promote":
		r.withRateLimit("/api/v1/tomains/{id}/promote", rateLimitWrite, rateWindowDefault, r.requireAdmin(func(w http.ResponseWriter, req *http.Request) {
			r.handlePromote(w, req, tomainID, false)
		}))(w, req)
	case len(rest) == 2 && rest[0] == "promote" && rest[1] == "feature":
		r.withRateLimit("/api/v1/tomains/{id}/promote/feature", rateLimitWrite, rateWindowDefault, r.requireAdmin(func(w http.ResponseWriter, req *http.Request) {
			r.handlePromote(w, req, tomainID, true)
		}))(w, req)
	case len(rest) == 1 && rest[0] == "retire":
		r.withRateLimit("/api/v1/tomains/{id}/retire", rateLimitWrite, rateWindowDefault, r.requireAdmin(func(w http.ResponseWriter, req *http.Request) {
			r.handleRetire(w, req, tomainID)
		}))(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleTomainByID(w http.ResponseWriter, req *http.Request, tomainID string) {
	switch req.Method {
	case http.MethodGet:
		detail, err := r.tomains.Get(req.Context(), tomainID)
		if err != nil {
			respondError(w, err)
			return
		}
		payload := tomainJSON(detail.Tomain, detail.HealthStatus)
		features := make([]map[string]any, 0, len(detail.Features))
		for _, f := range detail.Features {
			features = append(features, featureJSON(f))
		}
		payload["features"] = features
		hashes := make(map[string]string, len(detail.Artifacts))
		for env, hash := range detail.Artifacts {
			hashes[string(env)] = hash
		}
		payload["wasm_hashes"] = hashes
		writeJSON(w, http.StatusOK, payload)
	case http.MethodDelete:
		if !r.verifyAdminToken(w, req) {
			return
		}
		if err := r.tomains.Delete(req.Context(), tomainID); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

// handleResolve answers the hot-path query: the full binding set for one
// tomain in one environment, addressed by dotted name.
func (r *Router) handleResolve(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	color := req.URL.Query().Get("color")
	if color == "" {
		color = string(domain.EnvDev)
	}
	env, err := domain.ParseEnvironment(color)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	resolution, err := r.bindings.ResolveByName(req.Context(), name, env)
	if err != nil {
		respondError(w, err)
		return
	}
	r.recordResolve(string(env))
	writeJSON(w, http.StatusOK, resolution)
}

func (r *Router) handleFeatures(w http.ResponseWriter, req *http.Request, tomainID string) {
	switch req.Method {
	case http.MethodGet:
		var env domain.Environment
		filtered := false
		if color := req.URL.Query().Get("color"); color != "" {
			parsed, err := domain.ParseEnvironment(color)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", err.Error())
				return
			}
			env = parsed
			filtered = true
		}
		features, err := r.tomains.ListFeatures(req.Context(), tomainID, env, filtered)
		if err != nil {
			respondError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(features))
		for _, f := range features {
			payload = append(payload, featureJSON(f))
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		if !r.verifyAdminToken(w, req) {
			return
		}
		var payload struct {
			Name         string `json:"name"`
			Branch       string `json:"branch"`
			ArtifactHash string `json:"artifact_hash"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
			return
		}
		feature, err := r.tomains.RegisterFeature(req.Context(), tomain.FeatureInput{
			TomainID:     tomainID,
			Name:         payload.Name,
			Branch:       payload.Branch,
			ArtifactHash: payload.ArtifactHash,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, featureJSON(*feature))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleManifest(w http.ResponseWriter, req *http.Request, tomainID string) {
	switch req.Method {
	case http.MethodGet:
		view, err := r.tomains.GetManifest(req.Context(), tomainID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, manifestJSON(view))
	case http.MethodPost:
		if !r.verifyAdminToken(w, req) {
			return
		}
		var payload struct {
			Resources map[string]struct {
				Alias string `json:"alias"`
				Type  string `json:"type"`
			} `json:"resources"`
			VaultPath string `json:"vault_path"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
			return
		}
		resources := make(map[string]domain.ManifestResource, len(payload.Resources))
		for name, res := range payload.Resources {
			resources[name] = domain.ManifestResource{Alias: res.Alias, Type: res.Type}
		}
		manifest, err := r.tomains.UpdateManifest(req.Context(), tomain.ManifestInput{
			TomainID:  tomainID,
			Resources: resources,
			VaultPath: payload.VaultPath,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		view, err := r.tomains.GetManifest(req.Context(), manifest.TomainID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, manifestJSON(view))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleFeatureUpload(w http.ResponseWriter, req *http.Request, tomainID, feature string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		WasmBase64 string `json:"wasm_base64"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	updated, err := r.tomains.UploadFeatureArtifact(req.Context(), tomainID, feature, payload.WasmBase64)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, featureJSON(*updated))
}

func (r *Router) handlePromote(w http.ResponseWriter, req *http.Request, tomainID string, featureLevel bool) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Feature      string `json:"feature"`
		From         string `json:"from"`
		To           string `json:"to"`
		ArtifactHash string `json:"artifact_hash"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if featureLevel && strings.TrimSpace(payload.Feature) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "feature name is required")
		return
	}
	if !featureLevel {
		payload.Feature = ""
	}
	result, err := r.promotions.Promote(req.Context(), promotion.Input{
		TomainID:     tomainID,
		Feature:      payload.Feature,
		From:         payload.From,
		To:           payload.To,
		ArtifactHash: payload.ArtifactHash,
	})
	r.recordPromotion(strings.ToUpper(strings.TrimSpace(payload.To)), err)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleRetire(w http.ResponseWriter, req *http.Request, tomainID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Feature     string `json:"feature"`
		Environment string `json:"environment"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	var err error
	if strings.TrimSpace(payload.Feature) != "" {
		err = r.promotions.RetireFeature(req.Context(), tomainID, payload.Feature, payload.Environment)
	} else {
		err = r.promotions.RetireTomain(req.Context(), tomainID, payload.Environment)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retired"})
}

func (r *Router) handleBindings(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		bindings, err := r.bindings.List(req.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(bindings))
		for _, b := range bindings {
			payload = append(payload, bindingJSON(b))
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		if !r.verifyAdminToken(w, req) {
			return
		}
		var payload struct {
			TomainID    string `json:"tomain_id"`
			Alias       string `json:"alias"`
			PhysicalURL string `json:"physical_url"`
			Environment string `json:"environment"`
			Kind        string `json:"kind"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
			return
		}
		record, err := r.bindings.Upsert(req.Context(), binding.UpsertInput{
			TomainID:    payload.TomainID,
			Alias:       payload.Alias,
			PhysicalURL: payload.PhysicalURL,
			Environment: payload.Environment,
			Kind:        payload.Kind,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bindingJSON(*record))
	case http.MethodDelete:
		if !r.verifyAdminToken(w, req) {
			return
		}
		var payload struct {
			TomainID    string `json:"tomain_id"`
			Alias       string `json:"alias"`
			Environment string `json:"environment"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
			return
		}
		if err := r.bindings.Delete(req.Context(), payload.TomainID, payload.Alias, payload.Environment); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleBindingResolve(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	query := req.URL.Query()
	env, err := domain.ParseEnvironment(query.Get("environment"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	record, err := r.bindings.ResolveAlias(req.Context(), query.Get("tomain_id"), query.Get("alias"), env)
	if err != nil {
		respondError(w, err)
		return
	}
	r.recordResolve(string(env))
	writeJSON(w, http.StatusOK, bindingJSON(*record))
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event stream not enabled")
		return
	}
	topic := strings.TrimSpace(req.URL.Query().Get("tomain_id"))
	if topic == "" {
		topic = ws.TopicAll
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(topic, client)
	go func() {
		defer func() {
			r.hub.Unregister(topic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func tomainJSON(t domain.Tomain, healthStatus string) map[string]any {
	return map[string]any{
		"id":            t.ID,
		"name":          t.Name,
		"owner":         t.Owner,
		"creator":       t.Creator,
		"team":          t.Team,
		"status":        t.Status,
		"health_status": healthStatus,
		"created_at":    t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func featureJSON(f domain.Feature) map[string]any {
	envs := make([]string, 0, len(f.Environments))
	for _, env := range f.Environments {
		envs = append(envs, string(env))
	}
	return map[string]any{
		"id":            f.ID,
		"tomain_id":     f.TomainID,
		"name":          f.Name,
		"status":        f.Status,
		"branch":        f.Branch,
		"artifact_hash": f.ArtifactHash,
		"environments":  envs,
	}
}

func manifestJSON(view *tomain.ManifestView) map[string]any {
	resources := make(map[string]any, len(view.Resources))
	for name, res := range view.Resources {
		resources[name] = map[string]string{
			"alias": res.Alias,
			"type":  res.Type,
		}
	}
	features := make([]map[string]any, 0, len(view.Features))
	for _, f := range view.Features {
		features = append(features, featureJSON(f))
	}
	return map[string]any{
		"tomain_id":    view.TomainID,
		"name":         view.Name,
		"resources":    resources,
		"capabilities": view.Capabilities,
		"vault_path":   view.VaultPath,
		"features":     features,
	}
}

func bindingJSON(b domain.Binding) map[string]any {
	return map[string]any{
		"id":           b.ID,
		"tomain_id":    b.TomainID,
		"alias":        b.Alias,
		"physical_url": b.PhysicalURL,
		"environment":  string(b.Environment),
		"kind":         string(b.Kind),
	}
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not_found", "not found")
}
