package affinity

import "errors"

// Validation failures. A rejected operation never changes the set.
var (
	ErrDuplicateAffinity    = errors.New("affinity already unlocked")
	ErrEternalLimitExceeded = errors.New("an eternal affinity is already unlocked")
	ErrMissingBaseAffinity  = errors.New("deviant affinity requires its elemental base")
	ErrNothingToClear       = errors.New("no affinities to clear")
	ErrAffinityNotHeld      = errors.New("affinity not unlocked")
	ErrInvalidAffinity      = errors.New("invalid affinity")
	ErrCorruptSet           = errors.New("corrupt affinity set")
)
