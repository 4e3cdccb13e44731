package tomain

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/axiom-os/ccp/internal/domain"
	"github.com/axiom-os/ccp/internal/repository"
	"github.com/axiom-os/ccp/internal/shell"
)

// CreateInput encapsulates tomain registration attributes.
type CreateInput struct {
	Name    string
	Owner   string
	Creator string
	Team    string
}

// FeatureInput registers a named unit of promotable work. New features
// always start life in DEV.
type FeatureInput struct {
	TomainID     string
	Name         string
	Branch       string
	ArtifactHash string
}

// Detail is a tomain with its promotion state attached.
type Detail struct {
	Tomain       domain.Tomain
	HealthStatus string
	Features     []domain.Feature
	// Artifacts holds the hash live per environment (the wasm_hashes view).
	Artifacts map[domain.Environment]string
}

// Summary is the listing shape with Shell-synced health.
type Summary struct {
	Tomain       domain.Tomain
	HealthStatus string
}

const statusInactive = "Inactive"

// dotted namespace form: team.package.service
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*(\.[a-z0-9][a-z0-9-]*)+$`)

// Service orchestrates tomain lifecycle.
type Service struct {
	tomains   repository.TomainRepository
	features  repository.FeatureRepository
	manifests repository.ManifestRepository
	host      shell.Host
	logger    *slog.Logger
}

// New returns a tomain service.
func New(tomains repository.TomainRepository, features repository.FeatureRepository, manifests repository.ManifestRepository, host shell.Host, logger *slog.Logger) Service {
	return Service{tomains: tomains, features: features, manifests: manifests, host: host, logger: logger}
}

// Create registers a new tomain. Names are globally unique; a collision
// surfaces as repository.ErrConflict.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.Tomain, error) {
	name := strings.ToLower(strings.TrimSpace(input.Name))
	if name == "" {
		return nil, fmt.Errorf("%w: tomain name is required", domain.ErrValidation)
	}
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: tomain name must use dotted namespace form (team.package.service)", domain.ErrValidation)
	}
	if strings.TrimSpace(input.Owner) == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrValidation)
	}
	tomain := &domain.Tomain{
		ID:        uuid.NewString(),
		Name:      name,
		Owner:     strings.TrimSpace(input.Owner),
		Creator:   strings.TrimSpace(input.Creator),
		Team:      strings.TrimSpace(input.Team),
		Status:    "Active",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.tomains.CreateTomain(ctx, tomain); err != nil {
		return nil, err
	}
	s.logger.Info("tomain registered", "tomain_id", tomain.ID, "name", tomain.Name)
	return tomain, nil
}

// List returns all tomains with health synced against the Shell's active
// tenant set. An unreachable Shell degrades to the stored status.
func (s Service) List(ctx context.Context) ([]Summary, error) {
	tomains, err := s.tomains.ListTomains(ctx)
	if err != nil {
		return nil, err
	}
	active := s.activeTenants(ctx)
	summaries := make([]Summary, 0, len(tomains))
	for _, t := range tomains {
		summaries = append(summaries, Summary{
			Tomain:       t,
			HealthStatus: s.healthStatus(t, active),
		})
	}
	return summaries, nil
}

// Get returns a tomain with its features and per-environment artifacts.
func (s Service) Get(ctx context.Context, id string) (*Detail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	tomain, err := s.tomains.GetTomainByID(ctx, id)
	if err != nil {
		return nil, err
	}
	features, err := s.features.ListFeaturesByTomain(ctx, id)
	if err != nil {
		return nil, err
	}
	artifacts, err := s.tomains.ListTomainArtifacts(ctx, id)
	if err != nil {
		return nil, err
	}
	hashes := make(map[domain.Environment]string, len(artifacts))
	for _, a := range artifacts {
		hashes[a.Environment] = a.ArtifactHash
	}
	active := s.activeTenants(ctx)
	return &Detail{
		Tomain:       *tomain,
		HealthStatus: s.healthStatus(*tomain, active),
		Features:     features,
		Artifacts:    hashes,
	}, nil
}

// Delete removes a tomain; its bindings, features and artifacts cascade
// with it and no other tomain's records are touched.
func (s Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	if err := s.tomains.DeleteTomain(ctx, id); err != nil {
		return err
	}
	s.logger.Info("tomain deleted", "tomain_id", id)
	return nil
}

// RegisterFeature creates a feature in DEV.
func (s Service) RegisterFeature(ctx context.Context, input FeatureInput) (*domain.Feature, error) {
	tomainID := strings.TrimSpace(input.TomainID)
	name := strings.TrimSpace(input.Name)
	if tomainID == "" {
		return nil, fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: feature name is required", domain.ErrValidation)
	}
	if _, err := s.tomains.GetTomainByID(ctx, tomainID); err != nil {
		return nil, err
	}
	feature := &domain.Feature{
		ID:           uuid.NewString(),
		TomainID:     tomainID,
		Name:         name,
		Status:       "Active",
		Branch:       strings.TrimSpace(input.Branch),
		ArtifactHash: strings.TrimSpace(input.ArtifactHash),
		Environments: []domain.Environment{domain.EnvDev},
	}
	if err := s.features.CreateFeature(ctx, feature); err != nil {
		return nil, err
	}
	s.logger.Info("feature registered", "tomain_id", tomainID, "feature", name)
	return feature, nil
}

// ListFeatures returns a tomain's features, optionally filtered to those
// visible in one environment context. The visibility predicate lives here,
// not in each consumer.
func (s Service) ListFeatures(ctx context.Context, tomainID string, env domain.Environment, filtered bool) ([]domain.Feature, error) {
	tomainID = strings.TrimSpace(tomainID)
	if tomainID == "" {
		return nil, fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	if _, err := s.tomains.GetTomainByID(ctx, tomainID); err != nil {
		return nil, err
	}
	features, err := s.features.ListFeaturesByTomain(ctx, tomainID)
	if err != nil {
		return nil, err
	}
	if !filtered {
		return features, nil
	}
	if !env.Valid() {
		return nil, fmt.Errorf("%w: unknown environment %q", domain.ErrValidation, env)
	}
	visible := make([]domain.Feature, 0, len(features))
	for _, f := range features {
		if f.VisibleIn(env) {
			visible = append(visible, f)
		}
	}
	return visible, nil
}

// ManifestInput declares a tomain's resource needs by alias.
type ManifestInput struct {
	TomainID  string
	Resources map[string]domain.ManifestResource
	VaultPath string
}

// ManifestView is the declared contract served to tooling: the resource
// needs, the capabilities the host grants, and the features the tomain
// carries. Resolution to physical endpoints stays with the binding resolver.
type ManifestView struct {
	TomainID     string
	Name         string
	Resources    map[string]domain.ManifestResource
	Capabilities []string
	VaultPath    string
	Features     []domain.Feature
}

// Capabilities every hosted tomain gets from the Shell.
var hostCapabilities = []string{"http", "persistence", "tracing"}

// GetManifest returns a tomain's declared contract. A tomain that never
// published a manifest yields an empty resource set, not an error.
func (s Service) GetManifest(ctx context.Context, id string) (*ManifestView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	tomain, err := s.tomains.GetTomainByID(ctx, id)
	if err != nil {
		return nil, err
	}
	manifest, err := s.manifests.GetManifest(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		manifest = &domain.Manifest{TomainID: id, Resources: map[string]domain.ManifestResource{}}
	} else if err != nil {
		return nil, err
	}
	features, err := s.features.ListFeaturesByTomain(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ManifestView{
		TomainID:     id,
		Name:         tomain.Name,
		Resources:    manifest.Resources,
		Capabilities: hostCapabilities,
		VaultPath:    manifest.VaultPath,
		Features:     features,
	}, nil
}

// UpdateManifest replaces a tomain's declared resource contract and nudges
// the Shell to re-read it.
func (s Service) UpdateManifest(ctx context.Context, input ManifestInput) (*domain.Manifest, error) {
	tomainID := strings.TrimSpace(input.TomainID)
	if tomainID == "" {
		return nil, fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	resources := make(map[string]domain.ManifestResource, len(input.Resources))
	for name, res := range input.Resources {
		name = strings.TrimSpace(name)
		alias := strings.TrimSpace(res.Alias)
		if name == "" || alias == "" {
			return nil, fmt.Errorf("%w: every resource needs a name and an alias", domain.ErrValidation)
		}
		resources[name] = domain.ManifestResource{Alias: alias, Type: strings.TrimSpace(res.Type)}
	}
	if _, err := s.tomains.GetTomainByID(ctx, tomainID); err != nil {
		return nil, err
	}
	manifest := &domain.Manifest{
		TomainID:  tomainID,
		Resources: resources,
		VaultPath: strings.TrimSpace(input.VaultPath),
	}
	if err := s.manifests.UpsertManifest(ctx, manifest); err != nil {
		return nil, err
	}
	s.logger.Info("manifest updated", "tomain_id", tomainID, "resources", len(resources))
	shell.NotifyReload(s.host, s.logger)
	return manifest, nil
}

// UploadFeatureArtifact accepts a base64 wasm payload for a feature, hashes
// it, and records the hash on the feature's DEV rung. Uploads never promote;
// the hash climbs the ladder only through promotion steps.
func (s Service) UploadFeatureArtifact(ctx context.Context, tomainID, name, wasmBase64 string) (*domain.Feature, error) {
	tomainID = strings.TrimSpace(tomainID)
	name = strings.TrimSpace(name)
	if tomainID == "" || name == "" {
		return nil, fmt.Errorf("%w: tomain id and feature name are required", domain.ErrValidation)
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(wasmBase64))
	if err != nil {
		return nil, fmt.Errorf("%w: artifact payload is not valid base64", domain.ErrValidation)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: artifact payload is empty", domain.ErrValidation)
	}
	sum := sha256.Sum256(payload)
	hash := "sha256:" + hex.EncodeToString(sum[:])
	feature, err := s.features.UpdateFeatureArtifact(ctx, tomainID, name, hash)
	if err != nil {
		return nil, err
	}
	s.logger.Info("feature artifact uploaded",
		"tomain_id", tomainID,
		"feature", name,
		"artifact_hash", hash,
		"size_bytes", len(payload),
	)
	return feature, nil
}

// ReflectAPI fetches the live OpenAPI document the Shell exposes for a
// tomain's kernel.
func (s Service) ReflectAPI(ctx context.Context, name string) (string, error) {
	if s.host == nil {
		return "", fmt.Errorf("shell host not configured")
	}
	return s.host.Reflect(ctx, strings.TrimSpace(name))
}

func (s Service) activeTenants(ctx context.Context) map[string]struct{} {
	if s.host == nil {
		return nil
	}
	tenants, err := s.host.ActiveTenants(ctx)
	if err != nil {
		s.logger.Warn("shell tenant sync unavailable", "error", err)
		return nil
	}
	set := make(map[string]struct{}, len(tenants))
	for _, t := range tenants {
		set[t] = struct{}{}
	}
	return set
}

// healthStatus keeps the stored lifecycle status when the Shell reports the
// tomain active, and degrades to Inactive when it does not.
func (s Service) healthStatus(t domain.Tomain, active map[string]struct{}) string {
	if active == nil {
		return t.Status
	}
	if _, ok := active[t.Name]; ok {
		return t.Status
	}
	return statusInactive
}
