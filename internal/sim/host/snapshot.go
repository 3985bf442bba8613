package host

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"riftgate.ai/internal/persistence/snapshot"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/terrain"
)

// ExportRealms captures every loaded realm with its edited columns. Realms queued for removal
// are skipped.
func (h *Host) ExportRealms() []snapshot.RealmV1 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]snapshot.RealmV1, 0, len(h.realms))
	for id, rs := range h.realms {
		if _, gone := h.removing[id]; gone {
			continue
		}
		g := rs.store.Gen
		rv := snapshot.RealmV1{
			ID:          string(id),
			Seed:        g.Seed,
			BaseHeight:  g.BaseHeight,
			Amplitude:   g.Amplitude,
			RegionSize:  g.RegionSize,
			CenterCX:    g.Center.CX,
			CenterCZ:    g.Center.CZ,
			BoundChunks: g.BoundChunks,
			Border:      snapshot.BorderV1{CenterX: rs.border.CenterX, CenterZ: rs.border.CenterZ, Size: rs.border.Size},
		}
		for _, c := range rs.store.Edits() {
			rv.Edited = append(rv.Edited, snapshot.ColumnV1{X: c.X, Z: c.Z, H: c.H})
		}
		out = append(out, rv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ImportRealms recreates snapshot realms. Realms already loaded keep their generator and
// only receive border and edits, so fixed realms loaded from config stay permanent.
func (h *Host) ImportRealms(rs []snapshot.RealmV1) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rv := range rs {
		id, err := realm.Parse(rv.ID)
		if err != nil {
			return fmt.Errorf("snapshot realm: %w", err)
		}
		st, ok := h.realms[id]
		if !ok {
			gen := terrain.Generator{
				Seed:        rv.Seed,
				BaseHeight:  rv.BaseHeight,
				Amplitude:   rv.Amplitude,
				RegionSize:  rv.RegionSize,
				Center:      geom.ChunkPos{CX: rv.CenterCX, CZ: rv.CenterCZ},
				BoundChunks: rv.BoundChunks,
			}
			st = newRealm(id, gen, id.IsFixed())
			h.realms[id] = st
		}
		st.border = Border{CenterX: rv.Border.CenterX, CenterZ: rv.Border.CenterZ, Size: rv.Border.Size}
		for _, c := range rv.Edited {
			st.store.SetHeight(c.X, c.Z, c.H)
		}
	}
	return nil
}

// ExportPlayers captures every known player with attachments.
func (h *Host) ExportPlayers() []snapshot.PlayerV1 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]snapshot.PlayerV1, 0, len(h.players))
	for _, pl := range h.players {
		pv := snapshot.PlayerV1{
			ID:    pl.id.String(),
			Name:  pl.name,
			Realm: string(pl.realm),
			Pos:   [3]int{pl.pos.X, pl.pos.Y, pl.pos.Z},
		}
		if len(pl.attach) > 0 {
			pv.Attachments = make(map[string][]byte, len(pl.attach))
			for k, v := range pl.attach {
				pv.Attachments[k] = append([]byte(nil), v...)
			}
		}
		out = append(out, pv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ImportPlayers restores players offline; they come back online through Join.
func (h *Host) ImportPlayers(ps []snapshot.PlayerV1) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pv := range ps {
		id, err := uuid.Parse(pv.ID)
		if err != nil {
			return fmt.Errorf("snapshot player %q: %w", pv.ID, err)
		}
		r, err := realm.Parse(pv.Realm)
		if err != nil {
			return fmt.Errorf("snapshot player %s: %w", id, err)
		}
		pl := &player{
			id:     id,
			name:   pv.Name,
			realm:  r,
			pos:    geom.Vec3i{X: pv.Pos[0], Y: pv.Pos[1], Z: pv.Pos[2]},
			attach: map[string][]byte{},
		}
		for k, v := range pv.Attachments {
			pl.attach[k] = append([]byte(nil), v...)
		}
		h.players[id] = pl
	}
	return nil
}
