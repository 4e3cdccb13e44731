package binding

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/axiom-os/ccp/internal/domain"
	"github.com/axiom-os/ccp/internal/repository"
	"github.com/axiom-os/ccp/internal/shell"
	"github.com/axiom-os/ccp/internal/ws"
)

// UpsertInput encapsulates a bind request.
type UpsertInput struct {
	TomainID    string
	Alias       string
	PhysicalURL string
	Environment string
	Kind        string
}

// Resolution is the answer to a resolve query: the binding set visible to
// one tomain in one environment.
type Resolution struct {
	TomainID    string             `json:"tomain_id"`
	Environment domain.Environment `json:"environment"`
	Bindings    domain.BindingSet  `json:"bindings"`
}

// Service is the binding resolver: it owns alias-to-endpoint reads and
// writes. Each environment's binding set is independently authoritative;
// resolution never borrows a lower environment's endpoint.
type Service struct {
	bindings repository.BindingRepository
	tomains  repository.TomainRepository
	host     shell.Host
	hub      *ws.Hub
	logger   *slog.Logger
}

// New returns a binding service.
func New(bindings repository.BindingRepository, tomains repository.TomainRepository, host shell.Host, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{bindings: bindings, tomains: tomains, host: host, hub: hub, logger: logger}
}

// Resolve returns the alias→endpoint map for (tomain, env). An unknown
// tomain is an error; a known tomain with nothing bound in env resolves to
// an empty map.
func (s Service) Resolve(ctx context.Context, tomainID string, env domain.Environment) (*Resolution, error) {
	tomainID = strings.TrimSpace(tomainID)
	if tomainID == "" {
		return nil, fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	if !env.Valid() {
		return nil, fmt.Errorf("%w: unknown environment %q", domain.ErrValidation, env)
	}
	if _, err := s.tomains.GetTomainByID(ctx, tomainID); err != nil {
		return nil, err
	}
	bindings, err := s.bindings.ListBindingsByEnvironment(ctx, tomainID, env)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		TomainID:    tomainID,
		Environment: env,
		Bindings:    domain.NewBindingSet(bindings),
	}, nil
}

// ResolveByName resolves via the tomain's dotted name, the form the Shell
// and CLI use.
func (s Service) ResolveByName(ctx context.Context, name string, env domain.Environment) (*Resolution, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tomain name is required", domain.ErrValidation)
	}
	tomain, err := s.tomains.GetTomainByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, tomain.ID, env)
}

// ResolveAlias answers a single-alias lookup.
func (s Service) ResolveAlias(ctx context.Context, tomainID, alias string, env domain.Environment) (*domain.Binding, error) {
	tomainID = strings.TrimSpace(tomainID)
	alias = strings.TrimSpace(alias)
	if tomainID == "" || alias == "" {
		return nil, fmt.Errorf("%w: tomain id and alias are required", domain.ErrValidation)
	}
	if !env.Valid() {
		return nil, fmt.Errorf("%w: unknown environment %q", domain.ErrValidation, env)
	}
	return s.bindings.GetBinding(ctx, tomainID, alias, env)
}

// Upsert creates or replaces the binding for (tomain, alias, env). This is
// the swap mechanism: promotion never rewrites endpoints, operators do, and
// consumers pick the new endpoint up on their next resolve.
func (s Service) Upsert(ctx context.Context, input UpsertInput) (*domain.Binding, error) {
	alias := strings.TrimSpace(input.Alias)
	physicalURL := strings.TrimSpace(input.PhysicalURL)
	tomainID := strings.TrimSpace(input.TomainID)
	if tomainID == "" {
		return nil, fmt.Errorf("%w: tomain id is required", domain.ErrValidation)
	}
	if alias == "" {
		return nil, fmt.Errorf("%w: alias is required", domain.ErrValidation)
	}
	if physicalURL == "" {
		return nil, fmt.Errorf("%w: physical endpoint is required", domain.ErrValidation)
	}
	env, err := domain.ParseEnvironment(input.Environment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	kind := domain.BindingKind(strings.ToLower(strings.TrimSpace(input.Kind)))
	if kind == "" {
		kind = domain.BindingAliased
	}
	if kind != domain.BindingAliased && kind != domain.BindingLegacy {
		return nil, fmt.Errorf("%w: unknown binding kind %q", domain.ErrValidation, input.Kind)
	}
	if _, err := s.tomains.GetTomainByID(ctx, tomainID); err != nil {
		return nil, err
	}

	record := &domain.Binding{
		ID:          uuid.NewString(),
		TomainID:    tomainID,
		Alias:       alias,
		PhysicalURL: physicalURL,
		Environment: env,
		Kind:        kind,
	}
	if err := s.bindings.UpsertBinding(ctx, record); err != nil {
		return nil, err
	}
	s.logger.Info("binding registered",
		"tomain_id", record.TomainID,
		"alias", record.Alias,
		"environment", record.Environment,
	)
	shell.NotifyReload(s.host, s.logger)
	ws.Publish(s.hub, ws.Event{
		Type:        "binding.upserted",
		TomainID:    record.TomainID,
		Alias:       record.Alias,
		Environment: string(record.Environment),
	})
	return record, nil
}

// Delete removes one binding by its unique triple.
func (s Service) Delete(ctx context.Context, tomainID, alias string, environment string) error {
	tomainID = strings.TrimSpace(tomainID)
	alias = strings.TrimSpace(alias)
	if tomainID == "" || alias == "" {
		return fmt.Errorf("%w: tomain id and alias are required", domain.ErrValidation)
	}
	env, err := domain.ParseEnvironment(environment)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.bindings.DeleteBinding(ctx, tomainID, alias, env); err != nil {
		return err
	}
	shell.NotifyReload(s.host, s.logger)
	ws.Publish(s.hub, ws.Event{
		Type:        "binding.deleted",
		TomainID:    tomainID,
		Alias:       alias,
		Environment: string(env),
	})
	return nil
}

// List returns every binding record in the registry.
func (s Service) List(ctx context.Context) ([]domain.Binding, error) {
	return s.bindings.ListBindings(ctx)
}
