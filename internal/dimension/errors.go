package dimension

import "errors"

var (
	ErrRealmCreation    = errors.New("realm creation failed")
	ErrPermanentRealm   = errors.New("realm is permanent")
	ErrUnknownRealm     = errors.New("realm has no generation center")
	ErrNoTemplates      = errors.New("no realm templates")
	ErrAnchorsExhausted = errors.New("no free generation center")
	ErrCorruptCenters   = errors.New("corrupt generation centers record")
)
