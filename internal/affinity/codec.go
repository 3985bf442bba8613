package affinity

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// EncodeEntries writes a uvarint count followed by (uvarint ordinal, big-endian int32
// completion) pairs. This is the client wire format for affinity listings.
func EncodeEntries(entries []Entry) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(entries)*(1+4))
	buf = binary.AppendUvarint(buf, uint64(len(entries)))
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(e.Affinity))
		buf = binary.BigEndian.AppendUint32(buf, uint32(e.Completion))
	}
	return buf
}

func DecodeEntries(b []byte) ([]Entry, error) {
	n, k := binary.Uvarint(b)
	if k <= 0 {
		return nil, fmt.Errorf("%w: bad entry count", ErrCorruptSet)
	}
	b = b[k:]
	if n > uint64(numAffinities) {
		return nil, fmt.Errorf("%w: %d entries", ErrCorruptSet, n)
	}
	out := make([]Entry, 0, n)
	for i := uint64(0); i < n; i++ {
		ord, k := binary.Uvarint(b)
		if k <= 0 {
			return nil, fmt.Errorf("%w: bad ordinal at entry %d", ErrCorruptSet, i)
		}
		b = b[k:]
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: short completion at entry %d", ErrCorruptSet, i)
		}
		if ord >= uint64(numAffinities) {
			return nil, fmt.Errorf("%w: ordinal %d", ErrCorruptSet, ord)
		}
		out = append(out, Entry{Affinity: Affinity(ord), Completion: int32(binary.BigEndian.Uint32(b[:4]))})
		b = b[4:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSet, len(b))
	}
	return out, nil
}

// FromEntries rebuilds a set, replaying every entry through validation so a decoded set
// always satisfies the ledger invariants.
func FromEntries(entries []Entry) (*Set, error) {
	s := NewSet()
	for _, e := range entries {
		if e.Affinity == Void {
			if len(entries) != 1 {
				return nil, fmt.Errorf("%w: void mixed with other tags", ErrCorruptSet)
			}
			continue
		}
		if err := s.AddWithCompletion(e.Affinity, e.Completion); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSet, err)
		}
	}
	return s, nil
}

func (s *Set) MarshalBinary() ([]byte, error) {
	return EncodeEntries(s.entries), nil
}

func (s *Set) UnmarshalBinary(b []byte) error {
	entries, err := DecodeEntries(b)
	if err != nil {
		return err
	}
	out, err := FromEntries(entries)
	if err != nil {
		return err
	}
	s.entries = out.entries
	return nil
}

func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.entries)
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	out, err := FromEntries(entries)
	if err != nil {
		return err
	}
	s.entries = out.entries
	return nil
}
