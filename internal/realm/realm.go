// Package realm names world instances. Fixed realms form a small closed set; dynamic realms
// are minted on demand by the dimension lifecycle manager.
package realm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type ID string

const (
	Overworld ID = "minecraft:overworld"
	Nether    ID = "minecraft:the_nether"
	End       ID = "minecraft:the_end"
	Hub       ID = "riftgate:arcane_hub"

	// Pending marks a portal whose destination realm is created on first use.
	Pending ID = "riftgate:pending"
)

const dynamicPrefix = "riftgate:rift_"

var ErrInvalidID = errors.New("invalid realm id")

var idPattern = regexp.MustCompile(`^[a-z0-9_.-]+:[a-z0-9_./-]+$`)

// Fixed lists the permanent realms in a stable order.
func Fixed() []ID {
	return []ID{Overworld, Nether, End, Hub}
}

// Dynamic returns the identity of the seq-th on-demand realm.
func Dynamic(seq uint64) ID {
	return ID(dynamicPrefix + strconv.FormatUint(seq, 10))
}

func (id ID) String() string { return string(id) }

func (id ID) IsFixed() bool {
	switch id {
	case Overworld, Nether, End, Hub:
		return true
	}
	return false
}

// IsVanillaLike reports whether the realm is one of the fixed realms a round trip starts from.
func (id ID) IsVanillaLike() bool { return id.IsFixed() }

func (id ID) IsDynamic() bool {
	_, ok := id.Seq()
	return ok
}

// Seq extracts the allocation sequence of a dynamic realm.
func (id ID) Seq() (uint64, bool) {
	s, ok := strings.CutPrefix(string(id), dynamicPrefix)
	if !ok || s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Resolved reports whether the id names a concrete realm.
func (id ID) Resolved() bool {
	return id != "" && id != Pending
}

// Parse validates an externally supplied realm name (admin commands, config files).
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if !idPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(s), nil
}
