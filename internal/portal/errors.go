package portal

import "errors"

var (
	ErrPortalOnCooldown      = errors.New("portal on cooldown")
	ErrUnresolvedDestination = errors.New("portal destination unresolved")
	ErrNoReturnPath          = errors.New("no return path")
	ErrPortalGone            = errors.New("portal gone")
	ErrInvalidPortal         = errors.New("invalid portal spec")
	ErrCorruptReturnPath     = errors.New("corrupt return path")
)
