// Package engine drives the portal core on a single tick thread: affinity items, staff beams,
// guardians, portal contacts and realm lifecycle.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/dimension"
	tlog "riftgate.ai/internal/persistence/log"
	"riftgate.ai/internal/persistence/snapshot"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/beam"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/realms"
	"riftgate.ai/internal/sim/tuning"
)

// AffinityKey is the player attachment key holding the encoded affinity set.
const AffinityKey = "riftgate:affinities"

// Host is everything the engine needs from the world host.
type Host interface {
	dimension.Realms
	portal.Entities
	portal.Players
	portal.Effects
	portal.Attachments
	beam.Targets

	Connect(player uuid.UUID, name string) realm.ID
	Disconnect(player uuid.UUID)
	Move(player uuid.UUID, pos geom.Vec3i) error
	SpawnGuardian(home realm.ID, pos geom.Vec3i) (uint64, error)
	HasRealm(id realm.ID) bool
	// DrainRemovals unregisters realms queued by MarkForRemoval.
	DrainRemovals() []realm.ID
	UnloadIdle() int

	ExportRealms() []snapshot.RealmV1
	ImportRealms([]snapshot.RealmV1) error
	ExportPlayers() []snapshot.PlayerV1
	ImportPlayers([]snapshot.PlayerV1) error
	RestorePortal(home realm.ID, id uint64, pos geom.Vec3i) error
	NextEntityID() uint64
	SetNextEntityID(n uint64)
}

// Transport delivers client-bound notifications.
type Transport interface {
	AffinityChanged(player uuid.UUID, tick uint64, entries []affinity.Entry)
	AffinityUI(player uuid.UUID, reqID string, entries []affinity.Entry)
	Message(player uuid.UUID, code, text string)
}

// TravelSink records route outcomes.
type TravelSink interface {
	WriteTravel(e tlog.TravelEntry) error
}

type Config struct {
	Seed   int64
	Tuning tuning.Tuning
	Realms realms.Config
}

type guardian struct {
	mob      beam.Mob
	behavior beam.Behavior
}

type note struct {
	code string
	tick uint64
}

type Engine struct {
	cfg  Config
	log  zerolog.Logger
	host Host

	manager  *dimension.Manager
	registry *portal.Registry
	router   *portal.Router

	transport    Transport
	travel       TravelSink
	snapshotSink chan<- snapshot.SnapshotV1

	tick      atomic.Uint64
	sets      map[uuid.UUID]*affinity.Set
	beams     []*beam.Animation
	guardians map[uint64]*guardian
	notes     map[uuid.UUID]note
	rng       *rand.Rand
	stats     stats
	metrics   atomic.Value

	logins  chan loginReq
	logouts chan uuid.UUID
	inbox   chan Action
	spawns  chan spawnReq
	stop    chan struct{}
}

func New(ctx context.Context, cfg Config, h Host, store dimension.Store, logger zerolog.Logger) (*Engine, error) {
	t := cfg.Tuning
	dcfg := dimension.Config{
		Seed:          cfg.Seed,
		ChunkBound:    t.Dimension.ChunkBound,
		AnchorSpacing: t.Dimension.AnchorSpacing,
		AnchorGrid:    t.Dimension.AnchorGrid,
		FixedSpawns:   cfg.Realms.FixedSpawns(),
	}
	mgr, err := dimension.NewManager(ctx, dcfg, h, store, logger)
	if err != nil {
		return nil, fmt.Errorf("dimension manager: %w", err)
	}
	e := &Engine{
		cfg:       cfg,
		log:       logger.With().Str("component", "engine").Logger(),
		host:      h,
		manager:   mgr,
		transport: nopTransport{},
		sets:      map[uuid.UUID]*affinity.Set{},
		guardians: map[uint64]*guardian{},
		notes:     map[uuid.UUID]note{},
		rng:       rand.New(rand.NewPCG(uint64(cfg.Seed), 0x616666696e697479)),
		stats:     newStats(),
		logins:    make(chan loginReq, 64),
		logouts:   make(chan uuid.UUID, 64),
		inbox:     make(chan Action, 1024),
		spawns:    make(chan spawnReq, 16),
		stop:      make(chan struct{}),
	}
	e.registry = portal.NewRegistry(portal.Config{
		HalfExtent:    t.Portal.HalfExtent,
		ClearRadius:   t.Portal.ClearRadius,
		ParticleEvery: uint64(t.Portal.ParticleEvery),
	}, h, h, h, mgr, logger)
	e.registry.OnInit = e.onPortalInit
	e.router = portal.NewRouter(portal.RouterConfig{
		SearchRadius:     t.Portal.SearchRadius,
		ReturnOffset:     t.Portal.ReturnOffset,
		ReciprocalOffset: t.Portal.ReciprocalOffset,
		HubSpawn:         t.Portal.HubSpawn,
		CooldownTicks:    uint64(t.Portal.CooldownTicks),
		Templates:        cfg.Realms.Pool(cfg.Seed),
	}, e.registry, h, h, mgr, e, logger)
	e.publishMetrics(0)
	return e, nil
}

// SetTransport and the other setters must be called before Run.
func (e *Engine) SetTransport(t Transport) {
	if t == nil {
		t = nopTransport{}
	}
	e.transport = t
}

func (e *Engine) SetTravelSink(s TravelSink)                    { e.travel = s }
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { e.snapshotSink = ch }

func (e *Engine) Tick() uint64                  { return e.tick.Load() }
func (e *Engine) Config() Config                { return e.cfg }
func (e *Engine) Registry() *portal.Registry    { return e.registry }
func (e *Engine) Router() *portal.Router        { return e.router }
func (e *Engine) Manager() *dimension.Manager   { return e.manager }
func (e *Engine) Manifest() []protocol.RealmRef { return e.cfg.Realms.Manifest() }

type nopTransport struct{}

func (nopTransport) AffinityChanged(uuid.UUID, uint64, []affinity.Entry) {}
func (nopTransport) AffinityUI(uuid.UUID, string, []affinity.Entry)      {}
func (nopTransport) Message(uuid.UUID, string, string)                   {}
