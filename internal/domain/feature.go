package domain

import (
	"errors"
	"time"
)

// Promotion state machine errors. The valid states of a feature (or a tomain
// as a whole) are exactly the contiguous ladder prefixes; these errors mark
// the transitions that would leave that state space.
var (
	// ErrNonContiguousPromotion marks a promotion whose source rung is not
	// the target's current highest reached rung.
	ErrNonContiguousPromotion = errors.New("promotion source is not the highest reached environment")
	// ErrInvalidLadderStep marks a promotion to a rung that is not reachable
	// from the source on the ladder.
	ErrInvalidLadderStep = errors.New("target environment is not reachable from the source")
)

// Feature is a named unit of promotable work belonging to a tomain, distinct
// from the tomain's own environment state.
type Feature struct {
	ID           string
	TomainID     string
	Name         string
	Status       string
	Branch       string
	ArtifactHash string
	Environments []Environment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HighestEnvironment returns the topmost rung the feature has reached.
func (f Feature) HighestEnvironment() (Environment, bool) {
	return Highest(f.Environments)
}

// VisibleIn reports whether the feature has been promoted into env.
func (f Feature) VisibleIn(env Environment) bool {
	for _, e := range f.Environments {
		if e == env {
			return true
		}
	}
	return false
}

// ValidatePromotionStep checks that moving from `from` to `to` keeps envs a
// contiguous ladder prefix: `from` must be the current highest rung and `to`
// its immediate successor. An empty set only admits the DEV rung itself.
func ValidatePromotionStep(envs []Environment, from, to Environment) error {
	if !from.Valid() || !to.Valid() {
		return ErrInvalidLadderStep
	}
	next, ok := from.Next()
	if !ok || next != to {
		return ErrInvalidLadderStep
	}
	highest, reached := Highest(envs)
	if !reached {
		// Unpromoted targets enter the ladder at DEV before climbing.
		if from != EnvDev {
			return ErrNonContiguousPromotion
		}
		return nil
	}
	if highest != from {
		return ErrNonContiguousPromotion
	}
	return nil
}
