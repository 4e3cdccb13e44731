package tomain

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

type stubTomainRepo struct {
	byID      map[string]domain.Tomain
	artifacts map[string][]domain.TomainArtifact
}

func newStubTomainRepo() *stubTomainRepo {
	return &stubTomainRepo{
		byID:      make(map[string]domain.Tomain),
		artifacts: make(map[string][]domain.TomainArtifact),
	}
}

func (s *stubTomainRepo) CreateTomain(ctx context.Context, tomain *domain.Tomain) error {
	for _, t := range s.byID {
		if t.Name == tomain.Name {
			return repository.ErrConflict
		}
	}
	s.byID[tomain.ID] = *tomain
	return nil
}

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

func (s *stubTomainRepo) ListTomains(ctx context.Context) ([]domain.Tomain, error) {
	out := make([]domain.Tomain, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	return out, nil
}

func (s *stubTomainRepo) DeleteTomain(ctx context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.artifacts, id)
	return nil
}

func (s *stubTomainRepo) UpsertTomainArtifact(ctx context.Context, artifact *domain.TomainArtifact) error {
	s.artifacts[artifact.TomainID] = append(s.artifacts[artifact.TomainID], *artifact)
	return nil
}

func (s *stubTomainRepo) ListTomainArtifacts(ctx context.Context, tomainID string) ([]domain.TomainArtifact, error) {
	return s.artifacts[tomainID], nil
}

func (s *stubTomainRepo) DeleteTomainArtifact(ctx context.Context, tomainID string, env domain.Environment) error {
	return nil
}

func (s *stubTomainRepo) PromoteTomain(ctx context.Context, tomainID string, from, to domain.Environment, artifactHash string) (*domain.TomainArtifact, error) {
	return nil, errors.New("not implemented")
}

type stubFeatureRepo struct {
	features map[string][]domain.Feature
}

func (s *stubFeatureRepo) CreateFeature(ctx context.Context, feature *domain.Feature) error {
	s.features[feature.TomainID] = append(s.features[feature.TomainID], *feature)
	return nil
}

func (s *stubFeatureRepo) GetFeature(ctx context.Context, tomainID, name string) (*domain.Feature, error) {
	for _, f := range s.features[tomainID] {
		if f.Name == name {
			return &f, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubFeatureRepo) ListFeaturesByTomain(ctx context.Context, tomainID string) ([]domain.Feature, error) {
	return s.features[tomainID], nil
}

func (s *stubFeatureRepo) PromoteFeature(ctx context.Context, tomainID, name string, from, to domain.Environment, artifactHash string) (*domain.Feature, error) {
	return nil, errors.New("not implemented")
}

func (s *stubFeatureRepo) RetireFeatureEnvironment(ctx context.Context, tomainID, name string, env domain.Environment) error {
	return nil
}

func (s *stubFeatureRepo) UpdateFeatureArtifact(ctx context.Context, tomainID, name, artifactHash string) (*domain.Feature, error) {
	for i := range s.features[tomainID] {
		if s.features[tomainID][i].Name == name {
			s.features[tomainID][i].ArtifactHash = artifactHash
			copied := s.features[tomainID][i]
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

type stubManifestRepo struct {
	byTomain map[string]domain.Manifest
}

func newStubManifestRepo() *stubManifestRepo {
	return &stubManifestRepo{byTomain: make(map[string]domain.Manifest)}
}

func (s *stubManifestRepo) UpsertManifest(ctx context.Context, manifest *domain.Manifest) error {
	s.byTomain[manifest.TomainID] = *manifest
	return nil
}

func (s *stubManifestRepo) GetManifest(ctx context.Context, tomainID string) (*domain.Manifest, error) {
	if m, ok := s.byTomain[tomainID]; ok {
		return &m, nil
	}
	return nil, repository.ErrNotFound
}

type stubHost struct {
	tenants []string
	err     error
	reflect string
}

func (s *stubHost) ActiveTenants(ctx context.Context) ([]string, error) {
	return s.tenants, s.err
}

func (s *stubHost) Healthy(ctx context.Context, tomain, environment string) (bool, error) {
	return false, nil
}

func (s *stubHost) ReloadBindings(ctx context.Context) error { return nil }

func (s *stubHost) Reflect(ctx context.Context, tomain string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reflect, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateValidatesDottedName(t *testing.T) {
	svc := New(newStubTomainRepo(), &stubFeatureRepo{features: map[string][]domain.Feature{}}, newStubManifestRepo(), nil, testLogger())
	ctx := context.Background()

	bad := []string{"", "invoices", "Team.Billing.", ".billing.invoices", "team..invoices", "team.billing.inv_oices"}
	for _, name := range bad {
		if _, err := svc.Create(ctx, CreateInput{Name: name, Owner: "billing"}); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("name %q: expected ErrValidation, got %v", name, err)
		}
	}

	created, err := svc.Create(ctx, CreateInput{Name: "Team.Billing.Invoices", Owner: "billing", Creator: "ops", Team: "billing"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Name != "team.billing.invoices" {
		t.Fatalf("expected lowercased name, got %q", created.Name)
	}
	if created.Status != "Active" {
		t.Fatalf("expected Active status, got %q", created.Status)
	}
}

func TestCreateDuplicateNameConflicts(t *testing.T) {
	svc := New(newStubTomainRepo(), &stubFeatureRepo{features: map[string][]domain.Feature{}}, newStubManifestRepo(), nil, testLogger())
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{Name: "team.billing.invoices", Owner: "billing"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Name: "team.billing.invoices", Owner: "billing"}); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListSyncsHealthFromShell(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}
	repo.byID["t-2"] = domain.Tomain{ID: "t-2", Name: "team.billing.ledger", Status: "Active"}

	host := &stubHost{tenants: []string{"team.billing.invoices"}}
	svc := New(repo, &stubFeatureRepo{features: map[string][]domain.Feature{}}, newStubManifestRepo(), host, testLogger())

	summaries, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byName := make(map[string]string, len(summaries))
	for _, s := range summaries {
		byName[s.Tomain.Name] = s.HealthStatus
	}
	if byName["team.billing.invoices"] != "Active" {
		t.Fatalf("hosted tomain should keep stored status, got %q", byName["team.billing.invoices"])
	}
	if byName["team.billing.ledger"] != "Inactive" {
		t.Fatalf("absent tomain should degrade to Inactive, got %q", byName["team.billing.ledger"])
	}
}

func TestListKeepsStoredStatusWhenShellUnreachable(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}

	host := &stubHost{err: errors.New("connection refused")}
	svc := New(repo, &stubFeatureRepo{features: map[string][]domain.Feature{}}, newStubManifestRepo(), host, testLogger())

	summaries, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if summaries[0].HealthStatus != "Active" {
		t.Fatalf("expected stored status on shell failure, got %q", summaries[0].HealthStatus)
	}
}

func TestGetReturnsFeaturesAndArtifacts(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active", CreatedAt: time.Now().UTC()}
	repo.artifacts["t-1"] = []domain.TomainArtifact{
		{TomainID: "t-1", Environment: domain.EnvDev, ArtifactHash: "sha256:aaa"},
		{TomainID: "t-1", Environment: domain.EnvQA, ArtifactHash: "sha256:bbb"},
	}
	features := &stubFeatureRepo{features: map[string][]domain.Feature{
		"t-1": {{ID: "f-1", TomainID: "t-1", Name: "dark-mode", Environments: []domain.Environment{domain.EnvDev}}},
	}}
	svc := New(repo, features, newStubManifestRepo(), nil, testLogger())

	detail, err := svc.Get(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Features) != 1 || detail.Features[0].Name != "dark-mode" {
		t.Fatalf("unexpected features: %v", detail.Features)
	}
	if detail.Artifacts[domain.EnvQA] != "sha256:bbb" {
		t.Fatalf("unexpected artifacts: %v", detail.Artifacts)
	}
}

func TestRegisterFeatureStartsInDev(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}
	features := &stubFeatureRepo{features: map[string][]domain.Feature{}}
	svc := New(repo, features, newStubManifestRepo(), nil, testLogger())

	feature, err := svc.RegisterFeature(context.Background(), FeatureInput{TomainID: "t-1", Name: "dark-mode", Branch: "feat/dark-mode"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(feature.Environments) != 1 || feature.Environments[0] != domain.EnvDev {
		t.Fatalf("expected new feature in DEV only, got %v", feature.Environments)
	}

	if _, err := svc.RegisterFeature(context.Background(), FeatureInput{TomainID: "t-404", Name: "x"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown tomain, got %v", err)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}
	features := &stubFeatureRepo{features: map[string][]domain.Feature{
		"t-1": {{ID: "f-1", TomainID: "t-1", Name: "dark-mode", Environments: []domain.Environment{domain.EnvDev}}},
	}}
	svc := New(repo, features, newStubManifestRepo(), nil, testLogger())
	ctx := context.Background()

	_, err := svc.UpdateManifest(ctx, ManifestInput{
		TomainID: "t-1",
		Resources: map[string]domain.ManifestResource{
			"db":    {Alias: "main-db", Type: "postgres"},
			"queue": {Alias: "work-queue", Type: "nats"},
		},
		VaultPath: "secret/billing/invoices",
	})
	if err != nil {
		t.Fatalf("update manifest: %v", err)
	}

	view, err := svc.GetManifest(ctx, "t-1")
	if err != nil {
		t.Fatalf("get manifest: %v", err)
	}
	if view.Resources["db"].Alias != "main-db" || view.Resources["queue"].Type != "nats" {
		t.Fatalf("unexpected resources: %v", view.Resources)
	}
	if view.VaultPath != "secret/billing/invoices" {
		t.Fatalf("unexpected vault path %q", view.VaultPath)
	}
	if len(view.Capabilities) == 0 {
		t.Fatal("expected host capabilities in the view")
	}
	if len(view.Features) != 1 || view.Features[0].Name != "dark-mode" {
		t.Fatalf("expected features in the view, got %v", view.Features)
	}
}

func TestManifestEmptyWhenNeverPublished(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}
	svc := New(repo, &stubFeatureRepo{features: map[string][]domain.Feature{}}, newStubManifestRepo(), nil, testLogger())

	view, err := svc.GetManifest(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("get manifest: %v", err)
	}
	if len(view.Resources) != 0 {
		t.Fatalf("expected empty resource set, got %v", view.Resources)
	}
}

func TestManifestRequiresResourceAlias(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}
	svc := New(repo, &stubFeatureRepo{features: map[string][]domain.Feature{}}, newStubManifestRepo(), nil, testLogger())

	_, err := svc.UpdateManifest(context.Background(), ManifestInput{
		TomainID:  "t-1",
		Resources: map[string]domain.ManifestResource{"db": {Alias: "  ", Type: "postgres"}},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for blank alias, got %v", err)
	}
}

func TestUploadFeatureArtifactHashesPayload(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}
	features := &stubFeatureRepo{features: map[string][]domain.Feature{
		"t-1": {{ID: "f-1", TomainID: "t-1", Name: "dark-mode", Environments: []domain.Environment{domain.EnvDev}}},
	}}
	svc := New(repo, features, newStubManifestRepo(), nil, testLogger())

	// base64("hello"); sha256 of the raw bytes is a fixed value.
	feature, err := svc.UploadFeatureArtifact(context.Background(), "t-1", "dark-mode", "aGVsbG8=")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	const want = "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if feature.ArtifactHash != want {
		t.Fatalf("expected %s, got %s", want, feature.ArtifactHash)
	}
	if features.features["t-1"][0].ArtifactHash != want {
		t.Fatal("stored feature hash was not updated")
	}
}

func TestUploadRejectsBadPayload(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}
	features := &stubFeatureRepo{features: map[string][]domain.Feature{
		"t-1": {{ID: "f-1", TomainID: "t-1", Name: "dark-mode"}},
	}}
	svc := New(repo, features, newStubManifestRepo(), nil, testLogger())
	ctx := context.Background()

	if _, err := svc.UploadFeatureArtifact(ctx, "t-1", "dark-mode", "not-base64!!"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad base64, got %v", err)
	}
	if _, err := svc.UploadFeatureArtifact(ctx, "t-1", "dark-mode", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty payload, got %v", err)
	}
	if _, err := svc.UploadFeatureArtifact(ctx, "t-1", "ghost", "aGVsbG8="); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown feature, got %v", err)
	}
}

func TestListFeaturesFiltersByEnvironment(t *testing.T) {
	repo := newStubTomainRepo()
	repo.byID["t-1"] = domain.Tomain{ID: "t-1", Name: "team.billing.invoices", Status: "Active"}
	features := &stubFeatureRepo{features: map[string][]domain.Feature{
		"t-1": {
			{ID: "f-1", TomainID: "t-1", Name: "dark-mode", Environments: []domain.Environment{domain.EnvDev, domain.EnvQA}},
			{ID: "f-2", TomainID: "t-1", Name: "new-ledger", Environments: []domain.Environment{domain.EnvDev}},
		},
	}}
	svc := New(repo, features, newStubManifestRepo(), nil, testLogger())
	ctx := context.Background()

	all, err := svc.ListFeatures(ctx, "t-1", "", false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 features, got %d", len(all))
	}

	qa, err := svc.ListFeatures(ctx, "t-1", domain.EnvQA, true)
	if err != nil {
		t.Fatalf("list qa: %v", err)
	}
	if len(qa) != 1 || qa[0].Name != "dark-mode" {
		t.Fatalf("expected only dark-mode visible in QA, got %v", qa)
	}
}
