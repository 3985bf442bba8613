package engine

import (
	"errors"

	"riftgate.ai/internal/protocol"
)

var (
	ErrNotLoggedIn = errors.New("player is not logged in")
	ErrUnknownItem = errors.New("unknown item")
	ErrBusy        = errors.New("engine busy")
	ErrBadRequest  = errors.New("bad request")
	ErrCasting     = errors.New("staff beam already in flight")
)

// CodeFor maps engine and core errors to wire codes.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownItem):
		return protocol.ErrUnknownItem
	case errors.Is(err, ErrBusy), errors.Is(err, ErrCasting):
		return protocol.ErrBusy
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrNotLoggedIn):
		return protocol.ErrBadRequest
	}
	return protocol.CodeFor(err)
}
