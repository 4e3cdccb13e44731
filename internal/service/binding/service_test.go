package binding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/axiom-os/ccp/internal/domain"
	"github.com/axiom-os/ccp/internal/repository"
)

type bindingKey struct {
	tomainID string
	alias    string
	env      domain.Environment
}

type stubBindingRepo struct {
	records map[bindingKey]domain.Binding
}

func newStubBindingRepo() *stubBindingRepo {
	return &stubBindingRepo{records: make(map[bindingKey]domain.Binding)}
}

func (s *stubBindingRepo) UpsertBinding(ctx context.Context, binding *domain.Binding) error {
	key := bindingKey{binding.TomainID, binding.Alias, binding.Environment}
	if existing, ok := s.records[key]; ok {
		binding.ID = existing.ID
		binding.CreatedAt = existing.CreatedAt
	} else {
		binding.CreatedAt = time.Now().UTC()
	}
	binding.UpdatedAt = time.Now().UTC()
	s.records[key] = *binding
	return nil
}

func (s *stubBindingRepo) GetBinding(ctx context.Context, tomainID, alias string, env domain.Environment) (*domain.Binding, error) {
	if b, ok := s.records[bindingKey{tomainID, alias, env}]; ok {
		return &b, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubBindingRepo) ListBindingsByEnvironment(ctx context.Context, tomainID string, env domain.Environment) ([]domain.Binding, error) {
	out := make([]domain.Binding, 0)
	for key, b := range s.records {
		if key.tomainID == tomainID && key.env == env {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubBindingRepo) ListBindings(ctx context.Context) ([]domain.Binding, error) {
	out := make([]domain.Binding, 0, len(s.records))
	for _, b := range s.records {
		out = append(out, b)
	}
	return out, nil
}

func (s *stubBindingRepo) DeleteBinding(ctx context.Context, tomainID, alias string, env domain.Environment) error {
	key := bindingKey{tomainID, alias, env}
	if _, ok := s.records[key]; !ok {
		return repository.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *stubBindingRepo) DeleteBindingsByEnvironment(ctx context.Context, tomainID string, env domain.Environment) error {
	for key := range s.records {
		if key.tomainID == tomainID && key.env == env {
			delete(s.records, key)
		}
	}
	return nil
}

type stubTomainRepo struct {
	byID map[string]domain.Tomain
}

func (s *stubTomainRepo) CreateTomain(ctx context.Context, tomain *domain.Tomain) error { return nil }

func (s *stubTomainRepo) GetTomainByID(ctx context.Context, id string) (*domain.Tomain, error) {
	if t, ok := s.byID[id]; ok {
		return &t, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubTomainRepo) GetTomainByName(ctx context.Context, name string) (*domain.Tomain, error) {
	for _, t := range s.byID {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubTomainRepo) ListTomains(ctx context.Context) ([]domain.Tomain, error) { return nil, nil }
func (s *stubTomainRepo) DeleteTomain(ctx context.Context, id string) error        { return nil }
func (s *stubTomainRepo) UpsertTomainArtifact(ctx context.Context, artifact *domain.TomainArtifact) error {
	return nil
}
func (s *stubTomainRepo) ListTomainArtifacts(ctx context.Context, tomainID string) ([]domain.TomainArtifact, error) {
	return nil, nil
}
func (s *stubTomainRepo) DeleteTomainArtifact(ctx context.Context, tomainID string, env domain.Environment) error {
	return nil
}
func (s *stubTomainRepo) PromoteTomain(ctx context.Context, tomainID string, from, to domain.Environment, artifactHash string) (*domain.TomainArtifact, error) {
	return nil, nil
}

func newTestService(bindings *stubBindingRepo, tomains *stubTomainRepo) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(bindings, tomains, nil, nil, log)
}

func invoicesRepo() *stubTomainRepo {
	return &stubTomainRepo{byID: map[string]domain.Tomain{
		"t-1": {ID: "t-1", Name: "team.billing.invoices", Status: "Active"},
	}}
}

func TestResolveReturnsOnlyMatchingEnvironment(t *testing.T) {
	bindings := newStubBindingRepo()
	svc := newTestService(bindings, invoicesRepo())

	ctx := context.Background()
	if _, err := svc.Upsert(ctx, UpsertInput{TomainID: "t-1", Alias: "db", PhysicalURL: "postgres://dev-local/db", Environment: "DEV"}); err != nil {
		t.Fatalf("upsert dev: %v", err)
	}
	if _, err := svc.Upsert(ctx, UpsertInput{TomainID: "t-1", Alias: "db", PhysicalURL: "postgres://qa-db.internal/db", Environment: "QA"}); err != nil {
		t.Fatalf("upsert qa: %v", err)
	}

	res, err := svc.Resolve(ctx, "t-1", domain.EnvDev)
	if err != nil {
		t.Fatalf("resolve dev: %v", err)
	}
	if len(res.Bindings) != 1 || res.Bindings["db"] != "postgres://dev-local/db" {
		t.Fatalf("unexpected DEV bindings: %v", res.Bindings)
	}

	res, err = svc.Resolve(ctx, "t-1", domain.EnvQA)
	if err != nil {
		t.Fatalf("resolve qa: %v", err)
	}
	if res.Bindings["db"] != "postgres://qa-db.internal/db" {
		t.Fatalf("unexpected QA bindings: %v", res.Bindings)
	}
}

func TestResolveHasNoLowerEnvironmentFallback(t *testing.T) {
	bindings := newStubBindingRepo()
	svc := newTestService(bindings, invoicesRepo())

	ctx := context.Background()
	if _, err := svc.Upsert(ctx, UpsertInput{TomainID: "t-1", Alias: "db", PhysicalURL: "postgres://dev-local/db", Environment: "DEV"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	res, err := svc.Resolve(ctx, "t-1", domain.EnvProd)
	if err != nil {
		t.Fatalf("resolve prod: %v", err)
	}
	if len(res.Bindings) != 0 {
		t.Fatalf("expected empty PROD binding set, got %v", res.Bindings)
	}
}

func TestResolveUnknownTomainFails(t *testing.T) {
	svc := newTestService(newStubBindingRepo(), invoicesRepo())
	if _, err := svc.Resolve(context.Background(), "t-404", domain.EnvDev); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertLastWriteWins(t *testing.T) {
	bindings := newStubBindingRepo()
	svc := newTestService(bindings, invoicesRepo())

	ctx := context.Background()
	for _, url := range []string{"postgres://a/db", "postgres://b/db", "postgres://c/db"} {
		if _, err := svc.Upsert(ctx, UpsertInput{TomainID: "t-1", Alias: "db", PhysicalURL: url, Environment: "QA"}); err != nil {
			t.Fatalf("upsert %s: %v", url, err)
		}
	}

	res, err := svc.Resolve(ctx, "t-1", domain.EnvQA)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Bindings) != 1 || res.Bindings["db"] != "postgres://c/db" {
		t.Fatalf("expected last write to win, got %v", res.Bindings)
	}
}

func TestUpsertValidatesInput(t *testing.T) {
	svc := newTestService(newStubBindingRepo(), invoicesRepo())
	ctx := context.Background()

	cases := []UpsertInput{
		{TomainID: "t-1", Alias: " ", PhysicalURL: "postgres://x", Environment: "DEV"},
		{TomainID: "t-1", Alias: "db", PhysicalURL: "", Environment: "DEV"},
		{TomainID: "t-1", Alias: "db", PhysicalURL: "postgres://x", Environment: "GREEN"},
		{TomainID: "t-1", Alias: "db", PhysicalURL: "postgres://x", Environment: "DEV", Kind: "virtual"},
	}
	for i, input := range cases {
		if _, err := svc.Upsert(ctx, input); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestResolveByNameUsesDottedName(t *testing.T) {
	bindings := newStubBindingRepo()
	svc := newTestService(bindings, invoicesRepo())

	ctx := context.Background()
	if _, err := svc.Upsert(ctx, UpsertInput{TomainID: "t-1", Alias: "cache", PhysicalURL: "redis://dev:6379", Environment: "DEV"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	res, err := svc.ResolveByName(ctx, "team.billing.invoices", domain.EnvDev)
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	if res.Bindings["cache"] != "redis://dev:6379" {
		t.Fatalf("unexpected bindings: %v", res.Bindings)
	}

	if _, err := svc.ResolveByName(ctx, "team.unknown.service", domain.EnvDev); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLegacyKindResolvesThroughSamePath(t *testing.T) {
	bindings := newStubBindingRepo()
	svc := newTestService(bindings, invoicesRepo())

	ctx := context.Background()
	record, err := svc.Upsert(ctx, UpsertInput{TomainID: "t-1", Alias: "database", PhysicalURL: "postgres://legacy/db", Environment: "STAGING", Kind: "legacy"})
	if err != nil {
		t.Fatalf("upsert legacy: %v", err)
	}
	if record.Kind != domain.BindingLegacy {
		t.Fatalf("expected legacy kind, got %s", record.Kind)
	}

	res, err := svc.Resolve(ctx, "t-1", domain.EnvStaging)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Bindings["database"] != "postgres://legacy/db" {
		t.Fatalf("legacy binding missing from resolution: %v", res.Bindings)
	}
}
