package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/axiom-os/ccp/internal/domain"
	"github.com/axiom-os/ccp/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.TomainRepository     = (*Repository)(nil)
	_ repository.BindingRepository    = (*Repository)(nil)
	_ repository.FeatureRepository    = (*Repository)(nil)
	_ repository.ManifestRepository   = (*Repository)(nil)
	_ repository.RetirementRepository = (*Repository)(nil)
)

// mapPgError translates postgres error codes into repository sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrConflict
		case "23503":
			return repository.ErrNotFound
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
		if pgErr.Code[:2] == "08" || pgErr.Code == "57P01" {
			return repository.ErrUnavailable
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return repository.ErrUnavailable
	}
	return err
}

// CreateTomain inserts a tomain. A name collision returns ErrConflict.
func (r *Repository) CreateTomain(ctx context.Context, tomain *domain.Tomain) error {
	const query = `INSERT INTO tomains (id, name, owner, creator, team, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		tomain.ID,
		tomain.Name,
		tomain.Owner,
		tomain.Creator,
		tomain.Team,
		tomain.Status,
		tomain.CreatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// GetTomainByID fetches a tomain by identifier.
func (r *Repository) GetTomainByID(ctx context.Context, id string) (*domain.Tomain, error) {
	const query = `SELECT id, name, owner, creator, team, status, created_at
		FROM tomains WHERE id = $1`
	return r.scanTomain(r.pool.QueryRow(ctx, query, id))
}

// GetTomainByName fetches a tomain by its dotted namespace name.
func (r *Repository) GetTomainByName(ctx context.Context, name string) (*domain.Tomain, error) {
	const query = `SELECT id, name, owner, creator, team, status, created_at
		FROM tomains WHERE name = $1`
	return r.scanTomain(r.pool.QueryRow(ctx, query, name))
}

func (r *Repository) scanTomain(row pgx.Row) (*domain.Tomain, error) {
	var t domain.Tomain
	if err := row.Scan(&t.ID, &t.Name, &t.Owner, &t.Creator, &t.Team, &t.Status, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return &t, nil
}

// ListTomains returns all registered tomains, newest first.
func (r *Repository) ListTomains(ctx context.Context) ([]domain.Tomain, error) {
	const query = `SELECT id, name, owner, creator, team, status, created_at
		FROM tomains ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	tomains := make([]domain.Tomain, 0)
	for rows.Next() {
		var t domain.Tomain
		if err := rows.Scan(&t.ID, &t.Name, &t.Owner, &t.Creator, &t.Team, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		tomains = append(tomains, t)
	}
	return tomains, rows.Err()
}

// DeleteTomain removes a tomain; bindings, features and artifacts cascade.
func (r *Repository) DeleteTomain(ctx context.Context, id string) error {
	const query = `DELETE FROM tomains WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertTomainArtifact records the artifact hash live in one environment.
func (r *Repository) UpsertTomainArtifact(ctx context.Context, artifact *domain.TomainArtifact) error {
	const query = `INSERT INTO tomain_artifacts (tomain_id, environment, artifact_hash, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tomain_id, environment) DO UPDATE SET
			artifact_hash = EXCLUDED.artifact_hash,
			updated_at = NOW()
		RETURNING updated_at`
	if err := r.pool.QueryRow(ctx, query,
		artifact.TomainID,
		string(artifact.Environment),
		artifact.ArtifactHash,
	).Scan(&artifact.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

// ListTomainArtifacts returns per-environment artifact rows in ladder order.
func (r *Repository) ListTomainArtifacts(ctx context.Context, tomainID string) ([]domain.TomainArtifact, error) {
	const query = `SELECT tomain_id, environment, artifact_hash, updated_at
		FROM tomain_artifacts WHERE tomain_id = $1`
	rows, err := r.pool.Query(ctx, query, tomainID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	artifacts := make([]domain.TomainArtifact, 0)
	for rows.Next() {
		var a domain.TomainArtifact
		var env string
		if err := rows.Scan(&a.TomainID, &env, &a.ArtifactHash, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Environment = domain.Environment(env)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// DeleteTomainArtifact removes a tomain's visibility row for one environment.
func (r *Repository) DeleteTomainArtifact(ctx context.Context, tomainID string, env domain.Environment) error {
	const query = `DELETE FROM tomain_artifacts WHERE tomain_id = $1 AND environment = $2`
	_, err := r.pool.Exec(ctx, query, tomainID, string(env))
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// PromoteTomain moves a tomain up one rung in a single transaction. The
// tomain row is locked FOR UPDATE so a competing promotion re-reads the
// winner's committed artifact rows and fails the ladder check.
func (r *Repository) PromoteTomain(ctx context.Context, tomainID string, from, to domain.Environment, artifactHash string) (*domain.TomainArtifact, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgError(err)
	}
	defer tx.Rollback(ctx)

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM tomains WHERE id = $1 FOR UPDATE`, tomainID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}

	envRows, err := tx.Query(ctx, `SELECT environment FROM tomain_artifacts WHERE tomain_id = $1`, tomainID)
	if err != nil {
		return nil, mapPgError(err)
	}
	envs := make([]domain.Environment, 0, len(domain.Ladder))
	for envRows.Next() {
		var env string
		if err := envRows.Scan(&env); err != nil {
			envRows.Close()
			return nil, err
		}
		envs = append(envs, domain.Environment(env))
	}
	envRows.Close()
	if err := envRows.Err(); err != nil {
		return nil, err
	}

	if err := domain.ValidatePromotionStep(envs, from, to); err != nil {
		return nil, err
	}

	hash := artifactHash
	if hash == "" {
		// Carry the artifact currently live in the source environment.
		err := tx.QueryRow(ctx,
			`SELECT artifact_hash FROM tomain_artifacts WHERE tomain_id = $1 AND environment = $2`,
			tomainID, string(from)).Scan(&hash)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, mapPgError(err)
		}
	}

	const upsert = `INSERT INTO tomain_artifacts (tomain_id, environment, artifact_hash, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tomain_id, environment) DO UPDATE SET
			artifact_hash = EXCLUDED.artifact_hash,
			updated_at = NOW()
		RETURNING updated_at`

	// A tomain with no artifact rows enters the ladder at DEV on its first
	// promotion; the DEV rung is written alongside `to` so the reached set
	// stays a contiguous prefix.
	if len(envs) == 0 {
		var seededAt time.Time
		if err := tx.QueryRow(ctx, upsert, tomainID, string(from), hash).Scan(&seededAt); err != nil {
			return nil, mapPgError(err)
		}
	}

	artifact := &domain.TomainArtifact{TomainID: tomainID, Environment: to, ArtifactHash: hash}
	if err := tx.QueryRow(ctx, upsert, tomainID, string(to), hash).Scan(&artifact.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return artifact, nil
}

// UpsertBinding writes a binding keyed by (tomain, alias, environment).
// Concurrent upserts for the same triple serialize on the unique index; the
// last writer to commit wins and readers only ever see a whole record.
func (r *Repository) UpsertBinding(ctx context.Context, binding *domain.Binding) error {
	const query = `INSERT INTO bindings (id, tomain_id, alias, physical_url, environment, kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (tomain_id, alias, environment) DO UPDATE SET
			physical_url = EXCLUDED.physical_url,
			kind = EXCLUDED.kind,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, query,
		binding.ID,
		binding.TomainID,
		binding.Alias,
		binding.PhysicalURL,
		string(binding.Environment),
		string(binding.Kind),
	).Scan(&binding.ID, &binding.CreatedAt, &binding.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

// GetBinding fetches a single binding by its unique triple.
func (r *Repository) GetBinding(ctx context.Context, tomainID, alias string, env domain.Environment) (*domain.Binding, error) {
	const query = `SELECT id, tomain_id, alias, physical_url, environment, kind, created_at, updated_at
		FROM bindings WHERE tomain_id = $1 AND alias = $2 AND environment = $3`
	row := r.pool.QueryRow(ctx, query, tomainID, alias, string(env))
	binding, err := scanBinding(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return binding, nil
}

// ListBindingsByEnvironment returns the binding set visible to one
// (tomain, environment) pair. No other environment's rows ever match.
func (r *Repository) ListBindingsByEnvironment(ctx context.Context, tomainID string, env domain.Environment) ([]domain.Binding, error) {
	const query = `SELECT id, tomain_id, alias, physical_url, environment, kind, created_at, updated_at
		FROM bindings WHERE tomain_id = $1 AND environment = $2 ORDER BY alias`
	rows, err := r.pool.Query(ctx, query, tomainID, string(env))
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return collectBindings(rows)
}

// ListBindings returns every binding record in the registry.
func (r *Repository) ListBindings(ctx context.Context) ([]domain.Binding, error) {
	const query = `SELECT id, tomain_id, alias, physical_url, environment, kind, created_at, updated_at
		FROM bindings ORDER BY tomain_id, environment, alias`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return collectBindings(rows)
}

// DeleteBinding removes one binding by its unique triple.
func (r *Repository) DeleteBinding(ctx context.Context, tomainID, alias string, env domain.Environment) error {
	const query = `DELETE FROM bindings WHERE tomain_id = $1 AND alias = $2 AND environment = $3`
	cmdTag, err := r.pool.Exec(ctx, query, tomainID, alias, string(env))
	if err != nil {
		return mapPgError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteBindingsByEnvironment removes every binding a tomain holds in env.
func (r *Repository) DeleteBindingsByEnvironment(ctx context.Context, tomainID string, env domain.Environment) error {
	const query = `DELETE FROM bindings WHERE tomain_id = $1 AND environment = $2`
	_, err := r.pool.Exec(ctx, query, tomainID, string(env))
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func scanBinding(row pgx.Row) (*domain.Binding, error) {
	var b domain.Binding
	var env, kind string
	if err := row.Scan(&b.ID, &b.TomainID, &b.Alias, &b.PhysicalURL, &env, &kind, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Environment = domain.Environment(env)
	b.Kind = domain.BindingKind(kind)
	return &b, nil
}

func collectBindings(rows pgx.Rows) ([]domain.Binding, error) {
	bindings := make([]domain.Binding, 0)
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, *b)
	}
	return bindings, rows.Err()
}

// CreateFeature registers a feature with its DEV rung in one transaction.
func (r *Repository) CreateFeature(ctx context.Context, feature *domain.Feature) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx)

	const featureInsert = `INSERT INTO features (id, tomain_id, name, status, branch, artifact_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, featureInsert,
		feature.ID,
		feature.TomainID,
		feature.Name,
		feature.Status,
		feature.Branch,
		feature.ArtifactHash,
	).Scan(&feature.CreatedAt, &feature.UpdatedAt); err != nil {
		return mapPgError(err)
	}

	const envInsert = `INSERT INTO feature_environments (feature_id, environment, artifact_hash, promoted_at)
		VALUES ($1, $2, $3, NOW())`
	for _, env := range feature.Environments {
		if _, err := tx.Exec(ctx, envInsert, feature.ID, string(env), feature.ArtifactHash); err != nil {
			return mapPgError(err)
		}
	}
	return tx.Commit(ctx)
}

// GetFeature fetches a feature and its promoted-environment set.
func (r *Repository) GetFeature(ctx context.Context, tomainID, name string) (*domain.Feature, error) {
	features, err := r.queryFeatures(ctx,
		`WHERE f.tomain_id = $1 AND f.name = $2`, tomainID, name)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, repository.ErrNotFound
	}
	return &features[0], nil
}

// ListFeaturesByTomain returns all features of a tomain with their rungs.
func (r *Repository) ListFeaturesByTomain(ctx context.Context, tomainID string) ([]domain.Feature, error) {
	return r.queryFeatures(ctx, `WHERE f.tomain_id = $1`, tomainID)
}

func (r *Repository) queryFeatures(ctx context.Context, where string, args ...any) ([]domain.Feature, error) {
	query := `SELECT f.id, f.tomain_id, f.name, f.status, f.branch, f.artifact_hash, f.created_at, f.updated_at, fe.environment
		FROM features f
		LEFT JOIN feature_environments fe ON fe.feature_id = f.id
		` + where + `
		ORDER BY f.created_at ASC, f.id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.Feature)
	order := make([]string, 0)
	for rows.Next() {
		var (
			f   domain.Feature
			env sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.TomainID, &f.Name, &f.Status, &f.Branch, &f.ArtifactHash, &f.CreatedAt, &f.UpdatedAt, &env); err != nil {
			return nil, err
		}
		existing, ok := byID[f.ID]
		if !ok {
			f.Environments = make([]domain.Environment, 0, len(domain.Ladder))
			byID[f.ID] = &f
			order = append(order, f.ID)
			existing = &f
		}
		if env.Valid {
			existing.Environments = append(existing.Environments, domain.Environment(env.String))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	features := make([]domain.Feature, 0, len(order))
	for _, id := range order {
		features = append(features, *byID[id])
	}
	return features, nil
}

// PromoteFeature adds the `to` rung and snapshots the artifact hash in a
// single transaction. The feature row is locked FOR UPDATE so competing
// promotions serialize; the loser re-reads the winner's committed rungs and
// fails the ladder check instead of double-applying.
func (r *Repository) PromoteFeature(ctx context.Context, tomainID, name string, from, to domain.Environment, artifactHash string) (*domain.Feature, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgError(err)
	}
	defer tx.Rollback(ctx)

	const lockQuery = `SELECT id, artifact_hash FROM features
		WHERE tomain_id = $1 AND name = $2 FOR UPDATE`
	var featureID, currentHash string
	if err := tx.QueryRow(ctx, lockQuery, tomainID, name).Scan(&featureID, &currentHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}

	envRows, err := tx.Query(ctx, `SELECT environment FROM feature_environments WHERE feature_id = $1`, featureID)
	if err != nil {
		return nil, mapPgError(err)
	}
	envs := make([]domain.Environment, 0, len(domain.Ladder))
	for envRows.Next() {
		var env string
		if err := envRows.Scan(&env); err != nil {
			envRows.Close()
			return nil, err
		}
		envs = append(envs, domain.Environment(env))
	}
	envRows.Close()
	if err := envRows.Err(); err != nil {
		return nil, err
	}

	if err := domain.ValidatePromotionStep(envs, from, to); err != nil {
		return nil, err
	}

	hash := artifactHash
	if hash == "" {
		hash = currentHash
	}

	const rungInsert = `INSERT INTO feature_environments (feature_id, environment, artifact_hash, promoted_at)
		VALUES ($1, $2, $3, NOW())`
	if _, err := tx.Exec(ctx, rungInsert, featureID, string(to), hash); err != nil {
		return nil, mapPgError(err)
	}

	const featureUpdate = `UPDATE features SET artifact_hash = $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, featureUpdate, featureID, hash); err != nil {
		return nil, mapPgError(err)
	}

	// The promoted artifact is now what runs for the tomain in `to`.
	const artifactMirror = `INSERT INTO tomain_artifacts (tomain_id, environment, artifact_hash, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tomain_id, environment) DO UPDATE SET
			artifact_hash = EXCLUDED.artifact_hash,
			updated_at = NOW()`
	var mirrored int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tomain_artifacts WHERE tomain_id = $1`, tomainID).Scan(&mirrored); err != nil {
		return nil, mapPgError(err)
	}
	if mirrored == 0 {
		// Keep the tomain's own reached set a contiguous prefix: a fresh
		// tomain gets its DEV rung alongside the mirrored one.
		if _, err := tx.Exec(ctx, artifactMirror, tomainID, string(from), hash); err != nil {
			return nil, mapPgError(err)
		}
	}
	if _, err := tx.Exec(ctx, artifactMirror, tomainID, string(to), hash); err != nil {
		return nil, mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return r.GetFeature(ctx, tomainID, name)
}

// RetireFeatureEnvironment removes a feature's highest rung. Removing any
// other rung would break the contiguous-prefix invariant, so it is refused.
func (r *Repository) RetireFeatureEnvironment(ctx context.Context, tomainID, name string, env domain.Environment) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx)

	const lockQuery = `SELECT id FROM features WHERE tomain_id = $1 AND name = $2 FOR UPDATE`
	var featureID string
	if err := tx.QueryRow(ctx, lockQuery, tomainID, name).Scan(&featureID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return mapPgError(err)
	}

	envRows, err := tx.Query(ctx, `SELECT environment FROM feature_environments WHERE feature_id = $1`, featureID)
	if err != nil {
		return mapPgError(err)
	}
	envs := make([]domain.Environment, 0, len(domain.Ladder))
	for envRows.Next() {
		var e string
		if err := envRows.Scan(&e); err != nil {
			envRows.Close()
			return err
		}
		envs = append(envs, domain.Environment(e))
	}
	envRows.Close()
	if err := envRows.Err(); err != nil {
		return err
	}

	highest, ok := domain.Highest(envs)
	if !ok {
		return repository.ErrNotFound
	}
	if highest != env {
		return fmt.Errorf("%w: %s is not the highest reached environment", domain.ErrNonContiguousPromotion, env)
	}

	const rungDelete = `DELETE FROM feature_environments WHERE feature_id = $1 AND environment = $2`
	if _, err := tx.Exec(ctx, rungDelete, featureID, string(env)); err != nil {
		return mapPgError(err)
	}
	return tx.Commit(ctx)
}

// UpdateFeatureArtifact records an uploaded artifact on the feature row and
// on its DEV rung. The hash only climbs further through promotions.
func (r *Repository) UpdateFeatureArtifact(ctx context.Context, tomainID, name, artifactHash string) (*domain.Feature, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgError(err)
	}
	defer tx.Rollback(ctx)

	const lockQuery = `SELECT id FROM features WHERE tomain_id = $1 AND name = $2 FOR UPDATE`
	var featureID string
	if err := tx.QueryRow(ctx, lockQuery, tomainID, name).Scan(&featureID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}

	if _, err := tx.Exec(ctx, `UPDATE features SET artifact_hash = $2, updated_at = NOW() WHERE id = $1`, featureID, artifactHash); err != nil {
		return nil, mapPgError(err)
	}
	const rungUpsert = `INSERT INTO feature_environments (feature_id, environment, artifact_hash, promoted_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (feature_id, environment) DO UPDATE SET
			artifact_hash = EXCLUDED.artifact_hash,
			promoted_at = NOW()`
	if _, err := tx.Exec(ctx, rungUpsert, featureID, string(domain.EnvDev), artifactHash); err != nil {
		return nil, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return r.GetFeature(ctx, tomainID, name)
}

type manifestResourceRow struct {
	Alias string `json:"alias"`
	Type  string `json:"type"`
}

// UpsertManifest replaces a tomain's declared resource contract.
func (r *Repository) UpsertManifest(ctx context.Context, manifest *domain.Manifest) error {
	resources := make(map[string]manifestResourceRow, len(manifest.Resources))
	for name, res := range manifest.Resources {
		resources[name] = manifestResourceRow{Alias: res.Alias, Type: res.Type}
	}
	blob, err := json.Marshal(resources)
	if err != nil {
		return err
	}
	const query = `INSERT INTO tomain_manifests (tomain_id, resources, vault_path, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tomain_id) DO UPDATE SET
			resources = EXCLUDED.resources,
			vault_path = EXCLUDED.vault_path,
			updated_at = NOW()
		RETURNING updated_at`
	if err := r.pool.QueryRow(ctx, query, manifest.TomainID, blob, manifest.VaultPath).Scan(&manifest.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

// GetManifest fetches a tomain's declared resource contract.
func (r *Repository) GetManifest(ctx context.Context, tomainID string) (*domain.Manifest, error) {
	const query = `SELECT resources, vault_path, updated_at FROM tomain_manifests WHERE tomain_id = $1`
	var (
		blob      []byte
		vaultPath string
		updatedAt time.Time
	)
	if err := r.pool.QueryRow(ctx, query, tomainID).Scan(&blob, &vaultPath, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}
	rows := make(map[string]manifestResourceRow)
	if err := json.Unmarshal(blob, &rows); err != nil {
		return nil, err
	}
	resources := make(map[string]domain.ManifestResource, len(rows))
	for name, res := range rows {
		resources[name] = domain.ManifestResource{Alias: res.Alias, Type: res.Type}
	}
	return &domain.Manifest{
		TomainID:  tomainID,
		Resources: resources,
		VaultPath: vaultPath,
		UpdatedAt: updatedAt,
	}, nil
}

// RetireTomainEnvironment removes a tomain's artifact row and every binding
// it holds in env as one transaction, leaving other environments untouched.
func (r *Repository) RetireTomainEnvironment(ctx context.Context, tomainID string, env domain.Environment) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM bindings WHERE tomain_id = $1 AND environment = $2`, tomainID, string(env)); err != nil {
		return mapPgError(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tomain_artifacts WHERE tomain_id = $1 AND environment = $2`, tomainID, string(env)); err != nil {
		return mapPgError(err)
	}
	return tx.Commit(ctx)
}
