package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/axiom-os/ccp/internal/domain"
	"github.com/axiom-os/ccp/internal/repository"
	"github.com/axiom-os/ccp/internal/shell"
	"github.com/axiom-os/ccp/internal/ws"
)

var (
	// ErrPromotionBlocked marks a promotion refused by the safety gate:
	// a tomain must be healthy in STAGING before it reaches PROD.
	ErrPromotionBlocked = errors.New("promotion blocked: target is not healthy in the source environment")
	// ErrRetireBlocked marks an attempt to retire a target that is still
	// serving in the environment.
	ErrRetireBlocked = errors.New("retire blocked: target is not inactive in the environment")
)

// Input names a promotion request. Feature is empty for tomain-level moves.
type Input struct {
	TomainID     string
	Feature      string
	From         string
	To           string
	ArtifactHash string
}

// Result reports the post-promotion state.
type Result struct {
	TomainID     string               `json:"tomain_id"`
	Feature      string               `json:"feature,omitempty"`
	Environment  domain.Environment   `json:"environment"`
	ArtifactHash string               `json:"artifact_hash,omitempty"`
	Environments []domain.Environment `json:"environments,omitempty"`
}

// Service is the promotion engine. It validates ladder transitions, applies
// them atomically through the store, and never touches binding records:
// promotion changes visibility and artifact, endpoint swaps go through the
// binding resolver.
type Service struct {
	tomains  repository.TomainRepository
	features repository.FeatureRepository
	retire   repository.RetirementRepository
	host     shell.Host
	hub      *ws.Hub
	logger   *slog.Logger
}

// New returns a promotion service.
func New(tomains repository.TomainRepository, features repository.FeatureRepository, retire repository.RetirementRepository, host shell.Host, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{
		tomains:  tomains,
		features: features,
		retire:   retire,
		host:     host,
		hub:      hub,
		logger:   logger,
	}
}

// Promote executes one ladder step for a tomain or one of its features.
// Direct jumps are never back-filled: a request to STAGING while QA is
// missing fails the ladder check inside the store transaction.
func (s Service) Promote(ctx context.Context, input Input) (*Result, error) {
	tomainID := strings.TrimSpace(input.TomainID)
	if tomainID == "" {
		return nil, fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	from, err := domain.ParseEnvironment(input.From)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	to, err := domain.ParseEnvironment(input.To)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	tomain, err := s.tomains.GetTomainByID(ctx, tomainID)
	if err != nil {
		return nil, err
	}

	// Safety gate: nothing reaches PROD unless it is healthy in STAGING.
	if to == domain.EnvProd {
		if err := s.checkGate(ctx, tomain.Name, domain.EnvStaging); err != nil {
			return nil, err
		}
	}

	feature := strings.TrimSpace(input.Feature)
	if feature == "" {
		return s.promoteTomain(ctx, tomain, from, to, input.ArtifactHash)
	}
	return s.promoteFeature(ctx, tomain, feature, from, to, input.ArtifactHash)
}

func (s Service) promoteTomain(ctx context.Context, tomain *domain.Tomain, from, to domain.Environment, artifactHash string) (*Result, error) {
	artifact, err := s.tomains.PromoteTomain(ctx, tomain.ID, from, to, strings.TrimSpace(artifactHash))
	if err != nil {
		return nil, err
	}
	s.logger.Info("tomain promoted",
		"tomain_id", tomain.ID,
		"name", tomain.Name,
		"from", from,
		"to", to,
	)
	ws.Publish(s.hub, ws.Event{
		Type:        "tomain.promoted",
		TomainID:    tomain.ID,
		Environment: string(to),
	})
	artifacts, err := s.tomains.ListTomainArtifacts(ctx, tomain.ID)
	if err != nil {
		return nil, err
	}
	return &Result{
		TomainID:     tomain.ID,
		Environment:  to,
		ArtifactHash: artifact.ArtifactHash,
		Environments: sortedLadder(domain.ArtifactEnvironments(artifacts)),
	}, nil
}

func (s Service) promoteFeature(ctx context.Context, tomain *domain.Tomain, name string, from, to domain.Environment, artifactHash string) (*Result, error) {
	feature, err := s.features.PromoteFeature(ctx, tomain.ID, name, from, to, strings.TrimSpace(artifactHash))
	if errors.Is(err, repository.ErrNotFound) && from == domain.EnvDev {
		// First promotion out of DEV creates the feature implicitly.
		created := &domain.Feature{
			ID:           uuid.NewString(),
			TomainID:     tomain.ID,
			Name:         name,
			Status:       "Active",
			ArtifactHash: strings.TrimSpace(artifactHash),
			Environments: []domain.Environment{domain.EnvDev},
		}
		if createErr := s.features.CreateFeature(ctx, created); createErr != nil && !errors.Is(createErr, repository.ErrConflict) {
			return nil, createErr
		}
		feature, err = s.features.PromoteFeature(ctx, tomain.ID, name, from, to, strings.TrimSpace(artifactHash))
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("feature promoted",
		"tomain_id", tomain.ID,
		"feature", name,
		"from", from,
		"to", to,
	)
	ws.Publish(s.hub, ws.Event{
		Type:        "feature.promoted",
		TomainID:    tomain.ID,
		Feature:     name,
		Environment: string(to),
	})
	return &Result{
		TomainID:     tomain.ID,
		Feature:      feature.Name,
		Environment:  to,
		ArtifactHash: feature.ArtifactHash,
		Environments: sortedLadder(feature.Environments),
	}, nil
}

// RetireTomain removes a tomain's visibility and bindings for exactly one
// environment. The Shell must report the tomain inactive there first; this
// is not the inverse of promote and is never applied automatically.
func (s Service) RetireTomain(ctx context.Context, tomainID string, environment string) error {
	tomainID = strings.TrimSpace(tomainID)
	if tomainID == "" {
		return fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	env, err := domain.ParseEnvironment(environment)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	tomain, err := s.tomains.GetTomainByID(ctx, tomainID)
	if err != nil {
		return err
	}
	if s.host != nil {
		healthy, err := s.host.Healthy(ctx, tomain.Name, string(env))
		if err != nil {
			s.logger.Warn("shell health probe unavailable, allowing retirement", "error", err)
		} else if healthy {
			return fmt.Errorf("%w: %s is still serving in %s", ErrRetireBlocked, tomain.Name, env)
		}
	}
	if err := s.retire.RetireTomainEnvironment(ctx, tomainID, env); err != nil {
		return err
	}
	s.logger.Info("tomain retired", "tomain_id", tomainID, "environment", env)
	shell.NotifyReload(s.host, s.logger)
	ws.Publish(s.hub, ws.Event{
		Type:        "tomain.retired",
		TomainID:    tomainID,
		Environment: string(env),
	})
	return nil
}

// RetireFeature removes a feature's highest rung only; removing a middle
// rung would break the contiguous-prefix invariant.
func (s Service) RetireFeature(ctx context.Context, tomainID, feature string, environment string) error {
	tomainID = strings.TrimSpace(tomainID)
	feature = strings.TrimSpace(feature)
	if tomainID == "" || feature == "" {
		return fmt.Errorf("%w: tomain id and feature name are required", domain.ErrValidation)
	}
	env, err := domain.ParseEnvironment(environment)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.features.RetireFeatureEnvironment(ctx, tomainID, feature, env); err != nil {
		return err
	}
	s.logger.Info("feature retired", "tomain_id", tomainID, "feature", feature, "environment", env)
	ws.Publish(s.hub, ws.Event{
		Type:        "feature.retired",
		TomainID:    tomainID,
		Feature:     feature,
		Environment: string(env),
	})
	return nil
}

func (s Service) checkGate(ctx context.Context, tomainName string, env domain.Environment) error {
	if s.host == nil {
		return nil
	}
	healthy, err := s.host.Healthy(ctx, tomainName, string(env))
	if err != nil {
		s.logger.Warn("shell health probe unavailable, blocking PROD promotion", "error", err)
		return fmt.Errorf("%w: health unknown for %s in %s", ErrPromotionBlocked, tomainName, env)
	}
	if !healthy {
		return fmt.Errorf("%w: %s is unhealthy in %s", ErrPromotionBlocked, tomainName, env)
	}
	return nil
}

func sortedLadder(envs []domain.Environment) []domain.Environment {
	present := make(map[domain.Environment]bool, len(envs))
	for _, env := range envs {
		present[env] = true
	}
	ordered := make([]domain.Environment, 0, len(envs))
	for _, env := range domain.Ladder {
		if present[env] {
			ordered = append(ordered, env)
		}
	}
	return ordered
}
