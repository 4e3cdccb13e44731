package domain

import "time"

// Tomain is a deployable unit tracked by the registry, analogous to a
// microservice. Its name uses dotted namespace form (team.package.service).
type Tomain struct {
	ID        string
	Name      string
	Owner     string
	Creator   string
	Team      string
	Status    string
	CreatedAt time.Time
}

// TomainArtifact records the artifact hash currently live for a tomain in
// one environment. The set of rows for a tomain is its promoted-environment
// set.
type TomainArtifact struct {
	TomainID     string
	Environment  Environment
	ArtifactHash string
	UpdatedAt    time.Time
}

// ArtifactEnvironments extracts the promoted-environment set from artifact rows.
func ArtifactEnvironments(artifacts []TomainArtifact) []Environment {
	envs := make([]Environment, 0, len(artifacts))
	for _, a := range artifacts {
		envs = append(envs, a.Environment)
	}
	return envs
}
