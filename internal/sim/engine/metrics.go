package engine

// Metrics is a read-only view of engine counters, published once per tick.
type Metrics struct {
	Tick          uint64            `json:"tick"`
	Online        int               `json:"online"`
	Portals       int               `json:"portals"`
	DynamicRealms int               `json:"dynamic_realms"`
	Beams         int               `json:"beams"`
	Guardians     int               `json:"guardians"`
	Routes        map[string]uint64 `json:"routes"`
	StaffPortals  uint64            `json:"staff_portals"`
	LaserHits     uint64            `json:"laser_hits"`
	RealmsRemoved uint64            `json:"realms_removed"`
	StepMS        float64           `json:"step_ms"`
}

type stats struct {
	routes        map[string]uint64
	staffPortals  uint64
	laserHits     uint64
	realmsRemoved uint64
	stepMS        float64
}

func newStats() stats { return stats{routes: map[string]uint64{}} }

// route counts one routing outcome; "" is a completed teleport and is counted as "ok".
func (s *stats) route(code string) {
	if code == "" {
		code = "ok"
	}
	s.routes[code]++
}

func (e *Engine) publishMetrics(tick uint64) {
	routes := make(map[string]uint64, len(e.stats.routes))
	for k, v := range e.stats.routes {
		routes[k] = v
	}
	e.metrics.Store(Metrics{
		Tick:          tick,
		Online:        len(e.sets),
		Portals:       e.registry.Len(),
		DynamicRealms: e.manager.Centers().Len(),
		Beams:         len(e.beams),
		Guardians:     len(e.guardians),
		Routes:        routes,
		StaffPortals:  e.stats.staffPortals,
		LaserHits:     e.stats.laserHits,
		RealmsRemoved: e.stats.realmsRemoved,
		StepMS:        e.stats.stepMS,
	})
}

// Metrics is safe to call from any goroutine.
func (e *Engine) Metrics() Metrics {
	m, _ := e.metrics.Load().(Metrics)
	return m
}
