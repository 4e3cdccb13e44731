package domain

import (
	"fmt"
	"strings"
)

// Environment is one rung of the fixed deployment ladder. Every binding,
// promotion record and resolution query is scoped to exactly one Environment.
type Environment string

const (
	EnvDev     Environment = "DEV"
	EnvQA      Environment = "QA"
	EnvStaging Environment = "STAGING"
	EnvProd    Environment = "PROD"
)

// Ladder lists the environments in promotion order, lowest first.
var Ladder = []Environment{EnvDev, EnvQA, EnvStaging, EnvProd}

var ladderRank = map[Environment]int{
	EnvDev:     0,
	EnvQA:      1,
	EnvStaging: 2,
	EnvProd:    3,
}

// ParseEnvironment normalizes a token such as "qa" into a ladder value.
func ParseEnvironment(token string) (Environment, error) {
	env := Environment(strings.ToUpper(strings.TrimSpace(token)))
	if _, ok := ladderRank[env]; !ok {
		return "", fmt.Errorf("unknown environment %q", token)
	}
	return env, nil
}

// Valid reports whether e is a member of the ladder.
func (e Environment) Valid() bool {
	_, ok := ladderRank[e]
	return ok
}

// Rank returns the ladder position of e, DEV being 0. Callers must pass a
// valid environment; an out-of-enum value is a programming error.
func (e Environment) Rank() int {
	return ladderRank[e]
}

// Compare orders two environments along the ladder. It returns a negative
// value when a sits below b, zero when equal and positive when above.
func Compare(a, b Environment) int {
	return ladderRank[a] - ladderRank[b]
}

// Next returns the immediate successor of e. The second return value is
// false when e is the terminal rung.
func (e Environment) Next() (Environment, bool) {
	rank := ladderRank[e]
	if rank+1 >= len(Ladder) {
		return "", false
	}
	return Ladder[rank+1], true
}

// Highest returns the topmost rung present in envs. The second return value
// is false for an empty set.
func Highest(envs []Environment) (Environment, bool) {
	found := false
	var top Environment
	for _, env := range envs {
		if !env.Valid() {
			continue
		}
		if !found || Compare(env, top) > 0 {
			top = env
			found = true
		}
	}
	return top, found
}

// IsContiguousFromBase reports whether envs forms an unbroken ladder prefix
// starting at DEV. The empty set counts as contiguous (unpromoted).
func IsContiguousFromBase(envs []Environment) bool {
	present := make([]bool, len(Ladder))
	count := 0
	for _, env := range envs {
		if !env.Valid() {
			return false
		}
		if !present[env.Rank()] {
			present[env.Rank()] = true
			count++
		}
	}
	for i := 0; i < count; i++ {
		if !present[i] {
			return false
		}
	}
	return true
}
