package dimension

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

// RecordName is the durable record holding the generation centers and the realm sequence.
const RecordName = "generation_centers"

const recordVersion = 1

// Center binds a dynamic realm to its generation anchor.
type Center struct {
	Realm  realm.ID      `json:"realm"`
	Anchor geom.ChunkPos `json:"anchor"`
}

// Registry is the global set of generation centers. It also carries the realm sequence so both
// are written in the same durable record.
type Registry struct {
	mu      sync.Mutex
	nextSeq uint64
	byAnch  map[geom.ChunkPos]realm.ID
	byRealm map[realm.ID]geom.ChunkPos

	onDirty func()
}

func NewRegistry() *Registry {
	return &Registry{
		byAnch:  map[geom.ChunkPos]realm.ID{},
		byRealm: map[realm.ID]geom.ChunkPos{},
	}
}

// OnDirty installs the hook invoked after every mutation.
func (r *Registry) OnDirty(fn func()) {
	r.mu.Lock()
	r.onDirty = fn
	r.mu.Unlock()
}

func (r *Registry) markDirty() {
	r.mu.Lock()
	fn := r.onDirty
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Add registers anchor for owner. It returns false when the anchor is already taken or the
// owner already has one.
func (r *Registry) Add(anchor geom.ChunkPos, owner realm.ID) bool {
	r.mu.Lock()
	if _, ok := r.byAnch[anchor]; ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.byRealm[owner]; ok {
		r.mu.Unlock()
		return false
	}
	r.byAnch[anchor] = owner
	r.byRealm[owner] = anchor
	r.mu.Unlock()
	r.markDirty()
	return true
}

// Remove drops anchor. It returns false when the anchor is not registered.
func (r *Registry) Remove(anchor geom.ChunkPos) bool {
	r.mu.Lock()
	owner, ok := r.byAnch[anchor]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byAnch, anchor)
	delete(r.byRealm, owner)
	r.mu.Unlock()
	r.markDirty()
	return true
}

func (r *Registry) Contains(anchor geom.ChunkPos) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byAnch[anchor]
	return ok
}

func (r *Registry) AnchorOf(id realm.ID) (geom.ChunkPos, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byRealm[id]
	return a, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAnch)
}

// Centers returns all entries ordered by realm id.
func (r *Registry) Centers() []Center {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Center, 0, len(r.byRealm))
	for id, a := range r.byRealm {
		out = append(out, Center{Realm: id, Anchor: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Realm < out[j].Realm })
	return out
}

// Allocator hands out dynamic realm identities from the registry's durable sequence.
type Allocator struct {
	reg *Registry
}

func NewAllocator(reg *Registry) *Allocator { return &Allocator{reg: reg} }

// Next returns a realm identity never handed out before, including across restarts once the
// record has been flushed.
func (a *Allocator) Next() (realm.ID, uint64) {
	a.reg.mu.Lock()
	a.reg.nextSeq++
	seq := a.reg.nextSeq
	a.reg.mu.Unlock()
	a.reg.markDirty()
	return realm.Dynamic(seq), seq
}

// Last is the most recently allocated sequence number, 0 if none.
func (a *Allocator) Last() uint64 {
	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()
	return a.reg.nextSeq
}

type recordJSON struct {
	Version int      `json:"version"`
	NextSeq uint64   `json:"next_seq"`
	Centers []Center `json:"centers"`
}

func (r *Registry) RecordName() string { return RecordName }

func (r *Registry) MarshalBinary() ([]byte, error) {
	centers := r.Centers()
	r.mu.Lock()
	seq := r.nextSeq
	r.mu.Unlock()
	return json.Marshal(recordJSON{Version: recordVersion, NextSeq: seq, Centers: centers})
}

// UnmarshalBinary replaces the registry contents. Duplicate anchors or realms, non-dynamic
// realm ids and sequence numbers ahead of the stored counter are rejected.
func (r *Registry) UnmarshalBinary(b []byte) error {
	var rec recordJSON
	if err := json.Unmarshal(b, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptCenters, err)
	}
	if rec.Version != recordVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptCenters, rec.Version)
	}
	byAnch := make(map[geom.ChunkPos]realm.ID, len(rec.Centers))
	byRealm := make(map[realm.ID]geom.ChunkPos, len(rec.Centers))
	for _, c := range rec.Centers {
		seq, ok := c.Realm.Seq()
		if !ok {
			return fmt.Errorf("%w: %q is not a dynamic realm", ErrCorruptCenters, c.Realm)
		}
		if seq > rec.NextSeq {
			return fmt.Errorf("%w: %q ahead of sequence %d", ErrCorruptCenters, c.Realm, rec.NextSeq)
		}
		if _, dup := byAnch[c.Anchor]; dup {
			return fmt.Errorf("%w: duplicate anchor %v", ErrCorruptCenters, c.Anchor)
		}
		if _, dup := byRealm[c.Realm]; dup {
			return fmt.Errorf("%w: duplicate realm %q", ErrCorruptCenters, c.Realm)
		}
		byAnch[c.Anchor] = c.Realm
		byRealm[c.Realm] = c.Anchor
	}
	r.mu.Lock()
	r.nextSeq = rec.NextSeq
	r.byAnch = byAnch
	r.byRealm = byRealm
	r.mu.Unlock()
	return nil
}
