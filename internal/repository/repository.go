package repository

import (
	"context"

	"github.com/axiom-os/ccp/internal/domain"
)

// TomainRepository persists tomains and their per-environment artifacts.
type TomainRepository interface {
	CreateTomain(ctx context.Context, tomain *domain.Tomain) error
	GetTomainByID(ctx context.Context, id string) (*domain.Tomain, error)
	GetTomainByName(ctx context.Context, name string) (*domain.Tomain, error)
	ListTomains(ctx context.Context) ([]domain.Tomain, error)
	DeleteTomain(ctx context.Context, id string) error
	UpsertTomainArtifact(ctx context.Context, artifact *domain.TomainArtifact) error
	ListTomainArtifacts(ctx context.Context, tomainID string) ([]domain.TomainArtifact, error)
	DeleteTomainArtifact(ctx context.Context, tomainID string, env domain.Environment) error
	// PromoteTomain adds the `to` rung to the tomain's promoted-environment
	// set and snapshots the artifact hash, serializing against competing
	// promotions the same way PromoteFeature does.
	PromoteTomain(ctx context.Context, tomainID string, from, to domain.Environment, artifactHash string) (*domain.TomainArtifact, error)
}

// BindingRepository persists alias-to-endpoint bindings.
type BindingRepository interface {
	UpsertBinding(ctx context.Context, binding *domain.Binding) error
	GetBinding(ctx context.Context, tomainID, alias string, env domain.Environment) (*domain.Binding, error)
	ListBindingsByEnvironment(ctx context.Context, tomainID string, env domain.Environment) ([]domain.Binding, error)
	ListBindings(ctx context.Context) ([]domain.Binding, error)
	DeleteBinding(ctx context.Context, tomainID, alias string, env domain.Environment) error
	DeleteBindingsByEnvironment(ctx context.Context, tomainID string, env domain.Environment) error
}

// FeatureRepository persists features and their promoted-environment sets.
// PromoteFeature must serialize competing promotions for the same feature and
// re-evaluate the ladder preconditions against the committed state; on a lost
// race it returns domain.ErrNonContiguousPromotion or ErrConflict, never a
// double-applied rung.
type FeatureRepository interface {
	CreateFeature(ctx context.Context, feature *domain.Feature) error
	GetFeature(ctx context.Context, tomainID, name string) (*domain.Feature, error)
	ListFeaturesByTomain(ctx context.Context, tomainID string) ([]domain.Feature, error)
	PromoteFeature(ctx context.Context, tomainID, name string, from, to domain.Environment, artifactHash string) (*domain.Feature, error)
	RetireFeatureEnvironment(ctx context.Context, tomainID, name string, env domain.Environment) error
	// UpdateFeatureArtifact stores a freshly uploaded artifact hash on the
	// feature and on its DEV rung, where the artifact starts its climb.
	UpdateFeatureArtifact(ctx context.Context, tomainID, name, artifactHash string) (*domain.Feature, error)
}

// ManifestRepository persists the resource contracts tomains declare.
type ManifestRepository interface {
	UpsertManifest(ctx context.Context, manifest *domain.Manifest) error
	GetManifest(ctx context.Context, tomainID string) (*domain.Manifest, error)
}

// RetireTomainEnvironment removes a tomain's visibility and bindings for one
// environment as a single transaction. Implemented alongside the other
// repositories by the postgres store.
type RetirementRepository interface {
	RetireTomainEnvironment(ctx context.Context, tomainID string, env domain.Environment) error
}
