package protocol

import (
	"errors"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/dimension"
	"riftgate.ai/internal/portal"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Affinity ledger.
	ErrDuplicateAffinity   = "E_DUPLICATE_AFFINITY"
	ErrEternalLimit        = "E_ETERNAL_LIMIT"
	ErrMissingBaseAffinity = "E_MISSING_BASE_AFFINITY"
	ErrNothingToClear      = "E_NOTHING_TO_CLEAR"
	ErrAffinityNotHeld     = "E_AFFINITY_NOT_HELD"
	ErrInvalidAffinity     = "E_INVALID_AFFINITY"

	// Portal routing.
	ErrNoReturnPath          = "E_NO_RETURN_PATH"
	ErrPortalCooldown        = "E_PORTAL_COOLDOWN"
	ErrUnresolvedDestination = "E_UNRESOLVED_DESTINATION"
	ErrPortalGone            = "E_PORTAL_GONE"

	// Realm lifecycle.
	ErrRealmNotFound  = "E_REALM_NOT_FOUND"
	ErrPermanentRealm = "E_PERMANENT_REALM"
	ErrRealmCreation  = "E_REALM_CREATION"

	// Rule/action layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrUnknownItem = "E_UNKNOWN_ITEM"
	ErrBusy        = "E_BUSY"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:       {},
	ErrDuplicateAffinity:     {},
	ErrEternalLimit:          {},
	ErrMissingBaseAffinity:   {},
	ErrNothingToClear:        {},
	ErrAffinityNotHeld:       {},
	ErrInvalidAffinity:       {},
	ErrNoReturnPath:          {},
	ErrPortalCooldown:        {},
	ErrUnresolvedDestination: {},
	ErrPortalGone:            {},
	ErrRealmNotFound:         {},
	ErrPermanentRealm:        {},
	ErrRealmCreation:         {},
	ErrBadRequest:            {},
	ErrUnknownItem:           {},
	ErrBusy:                  {},
	ErrInternal:              {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

var sentinelCodes = []struct {
	err  error
	code string
}{
	{affinity.ErrDuplicateAffinity, ErrDuplicateAffinity},
	{affinity.ErrEternalLimitExceeded, ErrEternalLimit},
	{affinity.ErrMissingBaseAffinity, ErrMissingBaseAffinity},
	{affinity.ErrNothingToClear, ErrNothingToClear},
	{affinity.ErrAffinityNotHeld, ErrAffinityNotHeld},
	{affinity.ErrInvalidAffinity, ErrInvalidAffinity},
	{portal.ErrNoReturnPath, ErrNoReturnPath},
	{portal.ErrPortalOnCooldown, ErrPortalCooldown},
	{portal.ErrUnresolvedDestination, ErrUnresolvedDestination},
	{portal.ErrPortalGone, ErrPortalGone},
	{dimension.ErrUnknownRealm, ErrRealmNotFound},
	{dimension.ErrPermanentRealm, ErrPermanentRealm},
	{dimension.ErrRealmCreation, ErrRealmCreation},
}

// CodeFor maps an error from the core to its wire code. Unresolved destinations wrap the
// underlying creation error, so the routing sentinels are checked first.
func CodeFor(err error) string {
	if err == nil {
		return ""
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return ErrInternal
}
