package domain

import "time"

// BindingKind distinguishes the newer alias-based records from the legacy
// per-environment resource rows, which survive as a coarser binding variant
// behind the same resolution path.
type BindingKind string

const (
	BindingAliased BindingKind = "aliased"
	BindingLegacy  BindingKind = "legacy"
)

// Binding maps a logical alias to a physical endpoint for one tomain in one
// environment. The (TomainID, Alias, Environment) triple is unique: at most
// one endpoint answers a given alias in a given environment.
type Binding struct {
	ID          string
	TomainID    string
	Alias       string
	PhysicalURL string
	Environment Environment
	Kind        BindingKind
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BindingSet is the resolution result for one (tomain, environment) pair:
// alias → physical endpoint. Aliases are unique by construction.
type BindingSet map[string]string

// NewBindingSet keys bindings by alias.
func NewBindingSet(bindings []Binding) BindingSet {
	set := make(BindingSet, len(bindings))
	for _, b := range bindings {
		set[b.Alias] = b.PhysicalURL
	}
	return set
}
