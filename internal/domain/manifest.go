package domain

import "time"

// ManifestResource declares one abstract resource need: the alias the
// tomain resolves at runtime and the kind of backend it expects there.
type ManifestResource struct {
	Alias string
	Type  string
}

// Manifest is a tomain's declared contract. It names the resources the
// tomain will resolve by alias per environment and where its secrets live;
// the binding registry supplies the physical endpoints.
type Manifest struct {
	TomainID  string
	Resources map[string]ManifestResource
	VaultPath string
	UpdatedAt time.Time
}
