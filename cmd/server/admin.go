package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"riftgate.ai/internal/persistence/offsite"
	"riftgate.ai/internal/portal"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/engine"
	"riftgate.ai/internal/sim/geom"
	"riftgate.ai/internal/sim/host"
)

type portalSpawner interface {
	SpawnPortal(ctx context.Context, spec portal.Spec) (portal.Portal, error)
}

type spawnPortalRequest struct {
	Owner        string `json:"owner,omitempty"`
	Home         string `json:"home"`
	Target       string `json:"target,omitempty"`
	Pos          [3]int `json:"pos"`
	SingleUse    bool   `json:"single_use,omitempty"`
	DespawnTicks int    `json:"despawn_ticks,omitempty"`
	Primed       bool   `json:"primed,omitempty"`
}

func (r spawnPortalRequest) spec() (portal.Spec, error) {
	home, err := realm.Parse(r.Home)
	if err != nil {
		return portal.Spec{}, fmt.Errorf("home: %w", err)
	}
	s := portal.Spec{
		Home:         home,
		Pos:          geom.Vec3i{X: r.Pos[0], Y: r.Pos[1], Z: r.Pos[2]},
		SingleUse:    r.SingleUse,
		DespawnTicks: r.DespawnTicks,
		Primed:       r.Primed,
	}
	if strings.TrimSpace(r.Target) != "" {
		if s.Target, err = realm.Parse(r.Target); err != nil {
			return portal.Spec{}, fmt.Errorf("target: %w", err)
		}
	}
	if strings.TrimSpace(r.Owner) != "" {
		if s.Owner, err = uuid.Parse(r.Owner); err != nil {
			return portal.Spec{}, fmt.Errorf("owner: %w", err)
		}
	}
	if s.DespawnTicks < 0 {
		return portal.Spec{}, errors.New("despawn_ticks must be >= 0")
	}
	return s, nil
}

func spawnPortalHandler(sp portalSpawner) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var req spawnPortalRequest
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<16)).Decode(&req); err != nil {
			writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"ok": false, "code": protocol.ErrBadRequest, "error": err.Error()})
			return
		}
		spec, err := req.spec()
		if err != nil {
			writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"ok": false, "code": protocol.ErrBadRequest, "error": err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		p, err := sp.SpawnPortal(ctx, spec)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusServiceUnavailable
			}
			writeJSONStatus(rw, status, map[string]any{"ok": false, "code": engine.CodeFor(err), "error": err.Error()})
			return
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{"ok": true, "portal": p})
	}
}

func portalsHandler(list func(realm.ID) []portal.Portal) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var in realm.ID
		if q := strings.TrimSpace(r.URL.Query().Get("realm")); q != "" {
			id, err := realm.Parse(q)
			if err != nil {
				writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			in = id
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{"ok": true, "portals": list(in)})
	}
}

func realmsHandler(list func() []host.RealmInfo) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{"ok": true, "realms": list()})
	}
}

type metricsSource struct {
	Metrics  func() engine.Metrics
	Realms   func() []host.RealmInfo
	Sessions func() int
	// Offsite is optional.
	Offsite func() offsite.Stats
}

func metricsHandler(src metricsSource) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := src.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP riftgate_tick Current engine tick.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_tick gauge\n")
		fmt.Fprintf(rw, "riftgate_tick %d\n", m.Tick)

		fmt.Fprintf(rw, "# HELP riftgate_players_online Players currently online.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_players_online gauge\n")
		fmt.Fprintf(rw, "riftgate_players_online %d\n", m.Online)

		fmt.Fprintf(rw, "# HELP riftgate_sessions Open websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_sessions gauge\n")
		fmt.Fprintf(rw, "riftgate_sessions %d\n", src.Sessions())

		fmt.Fprintf(rw, "# HELP riftgate_portals Registered portals.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_portals gauge\n")
		fmt.Fprintf(rw, "riftgate_portals %d\n", m.Portals)

		fmt.Fprintf(rw, "# HELP riftgate_dynamic_realms Registered dynamic realms.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_dynamic_realms gauge\n")
		fmt.Fprintf(rw, "riftgate_dynamic_realms %d\n", m.DynamicRealms)

		fmt.Fprintf(rw, "# HELP riftgate_beams In-flight beam animations.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_beams gauge\n")
		fmt.Fprintf(rw, "riftgate_beams %d\n", m.Beams)

		fmt.Fprintf(rw, "# HELP riftgate_guardians Live portal guardians.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_guardians gauge\n")
		fmt.Fprintf(rw, "riftgate_guardians %d\n", m.Guardians)

		fmt.Fprintf(rw, "# HELP riftgate_routes_total Portal routing outcomes by code.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_routes_total counter\n")
		codes := make([]string, 0, len(m.Routes))
		for c := range m.Routes {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		for _, c := range codes {
			fmt.Fprintf(rw, "riftgate_routes_total{code=%q} %d\n", c, m.Routes[c])
		}

		fmt.Fprintf(rw, "# HELP riftgate_staff_portals_total Portals opened by staff casts.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_staff_portals_total counter\n")
		fmt.Fprintf(rw, "riftgate_staff_portals_total %d\n", m.StaffPortals)

		fmt.Fprintf(rw, "# HELP riftgate_laser_hits_total Guardian laser beams fired.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_laser_hits_total counter\n")
		fmt.Fprintf(rw, "riftgate_laser_hits_total %d\n", m.LaserHits)

		fmt.Fprintf(rw, "# HELP riftgate_realms_removed_total Dynamic realms retired.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_realms_removed_total counter\n")
		fmt.Fprintf(rw, "riftgate_realms_removed_total %d\n", m.RealmsRemoved)

		fmt.Fprintf(rw, "# HELP riftgate_realm_loaded_chunks Loaded chunk count per realm.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_realm_loaded_chunks gauge\n")
		for _, ri := range src.Realms() {
			fmt.Fprintf(rw, "riftgate_realm_loaded_chunks{realm=%q} %d\n", ri.ID, ri.Chunks)
		}

		if src.Offsite != nil {
			st := src.Offsite()
			fmt.Fprintf(rw, "# HELP riftgate_offsite_uploads_total Offsite mirror uploads by result.\n")
			fmt.Fprintf(rw, "# TYPE riftgate_offsite_uploads_total counter\n")
			fmt.Fprintf(rw, "riftgate_offsite_uploads_total{result=%q} %d\n", "ok", st.Uploaded)
			fmt.Fprintf(rw, "riftgate_offsite_uploads_total{result=%q} %d\n", "failed", st.Failed)
			fmt.Fprintf(rw, "riftgate_offsite_uploads_total{result=%q} %d\n", "dropped", st.Dropped)
			fmt.Fprintf(rw, "# HELP riftgate_offsite_queue_depth Offsite mirror queue depth.\n")
			fmt.Fprintf(rw, "# TYPE riftgate_offsite_queue_depth gauge\n")
			fmt.Fprintf(rw, "riftgate_offsite_queue_depth %d\n", st.QueueDepth)
		}

		fmt.Fprintf(rw, "# HELP riftgate_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE riftgate_step_ms gauge\n")
		fmt.Fprintf(rw, "riftgate_step_ms %.3f\n", m.StepMS)
	}
}

func writeJSONStatus(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
