package portal

import (
	"github.com/google/uuid"

	"riftgate.ai/internal/dimension"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/geom"
)

// Entities is the host entity collaborator.
type Entities interface {
	SpawnPortal(home realm.ID, pos geom.Vec3i) (uint64, error)
	Discard(home realm.ID, id uint64)
	Alive(home realm.ID, id uint64) bool
}

// Players is the host player collaborator.
type Players interface {
	Location(player uuid.UUID) (realm.ID, geom.Vec3i, bool)
	Teleport(player uuid.UUID, to realm.ID, pos geom.Vec3i) error
	InBox(r realm.ID, box geom.AABB) []uuid.UUID
}

// Effects renders world effects; nothing here affects game state.
type Effects interface {
	AreaClear(r realm.ID, box geom.AABB)
	Disappear(r realm.ID, pos geom.Vec3i)
	Particles(r realm.ID, kind string, pos geom.Vec3i)
}

// Notifier shows a rejected action to the player.
type Notifier interface {
	Notify(player uuid.UUID, err error)
}

// Attachments are per-player persistent blobs.
type Attachments interface {
	Attachment(player uuid.UUID, key string) ([]byte, bool)
	SetAttachment(player uuid.UUID, key string, data []byte)
	DeleteAttachment(player uuid.UUID, key string)
}

// Lifecycle is the dimension manager as seen by portals.
type Lifecycle interface {
	ResolveOrCreate(b dimension.Binding, pool []dimension.Template) (realm.ID, error)
	Retire(b dimension.Binding) error
	SpawnPoint(id realm.ID) (geom.Vec3i, error)
}
