package domain

import "errors"

// ErrValidation marks malformed caller input (empty alias, unknown
// environment token). Services wrap it with detail; the API boundary maps it
// to a 400 distinct from transition or store failures.
var ErrValidation = errors.New("validation error")
