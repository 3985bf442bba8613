package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"riftgate.ai/internal/config"
	"riftgate.ai/internal/logging"
	"riftgate.ai/internal/persistence/globaldb"
	persistlog "riftgate.ai/internal/persistence/log"
	"riftgate.ai/internal/persistence/offsite"
	"riftgate.ai/internal/persistence/snapshot"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/realm"
	"riftgate.ai/internal/sim/engine"
	"riftgate.ai/internal/sim/host"
	"riftgate.ai/internal/sim/realms"
	"riftgate.ai/internal/sim/tuning"
	"riftgate.ai/internal/transport/ws"
)

func main() {
	env, err := config.LoadServer()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	var (
		addr       = flag.String("addr", env.Addr, "http listen address")
		seed       = flag.Int64("seed", env.Seed, "world seed (used only when starting fresh)")
		configDir  = flag.String("configs", env.ConfigsDir, "config directory")
		dataDir    = flag.String("data", env.DataDir, "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		realmsPath = flag.String("realms", "", "path to realms.yaml (default: <configs>/realms.yaml)")
		logLevel   = flag.String("log_level", env.LogLevel, "log level")
		prettyLog  = flag.Bool("pretty_log", env.PrettyLog, "console log format")
		maxRealms  = flag.Int("max_realms", 0, "cap on loaded realms (0 = unlimited)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger, err := logging.NewWriter(os.Stdout, *logLevel, "server", *prettyLog)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal().Err(err).Msg("load tuning")
		}
		logger.Warn().Str("path", tp).Msg("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	rp := strings.TrimSpace(*realmsPath)
	if rp == "" {
		rp = filepath.Join(*configDir, "realms.yaml")
	}
	rc, err := realms.Load(rp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal().Err(err).Msg("load realms")
		}
		logger.Warn().Str("path", rp).Msg("realms config not found; using defaults")
		rc, _ = realms.Load("")
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("data dir")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(filepath.Join(*dataDir, "snapshots"))
	}
	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatal().Err(err).Str("path", snapshotToLoad).Msg("read snapshot")
		}
		snap = &s
		*seed = s.Header.Seed
	}

	h := buildHost(rc, *seed, *maxRealms, logger)

	store, err := globaldb.Open(filepath.Join(*dataDir, "global.sqlite"), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open global store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("close global store")
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	eng, err := engine.New(ctx, engine.Config{Seed: *seed, Tuning: tune, Realms: rc}, h, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine")
	}
	if snap != nil {
		if err := eng.Restore(*snap); err != nil {
			logger.Fatal().Err(err).Msg("restore snapshot")
		}
		logger.Info().Str("snapshot", filepath.Base(snapshotToLoad)).Uint64("tick", eng.Tick()).Msg("resumed")
	}

	mirror, err := buildMirror(env.Offsite, *dataDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("offsite mirror")
	}
	defer mirror.Close()

	travelLog := persistlog.NewTravelLoggerWithHook(*dataDir, mirror.Enqueue)
	defer travelLog.Close()
	eng.SetTravelSink(travelLog)

	wsSrv := ws.NewServer(eng, ws.Options{
		Params: protocol.WorldParams{
			TickRateHz: tune.TickRateHz,
			ChunkSize:  16,
			ChunkBound: tune.Dimension.ChunkBound,
			Seed:       *seed,
		},
		Manifest: eng.Manifest(),
	}, logger)
	eng.SetTransport(wsSrv)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	eng.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snapCh:
				writeSnapshot(*dataDir, s, mirror, logger)
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("engine stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(metricsSource{
		Metrics:  eng.Metrics,
		Realms:   h.Realms,
		Sessions: wsSrv.Sessions,
		Offsite:  mirror.Stats,
	}))

	if env.EnableAdminHTTP {
		mux.HandleFunc("/admin/v1/realms", realmsHandler(h.Realms))
		mux.HandleFunc("/admin/v1/portals", portalsHandler(eng.Registry().List))
		mux.HandleFunc("/admin/v1/portals/spawn", spawnPortalHandler(eng))
	} else {
		logger.Info().Msg("admin endpoints disabled (RIFTGATE_ENABLE_ADMIN_HTTP=false)")
	}
	if env.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", *addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("listen")
		cancel()
	}

	<-runDone
	<-snapDone
	// The tick loop is stopped; take a final snapshot on this goroutine.
	writeSnapshot(*dataDir, eng.Snapshot(), mirror, logger)
}

func buildHost(rc realms.Config, seed int64, maxRealms int, logger zerolog.Logger) *host.Host {
	def, _ := rc.FixedSpec(realm.ID(rc.DefaultRealm))
	h := host.New(host.Options{
		DefaultRealm: realm.ID(rc.DefaultRealm),
		DefaultSpawn: def.Spawn,
		MaxRealms:    maxRealms,
	}, logger)
	for _, f := range rc.Fixed {
		h.AddRealm(realm.ID(f.ID), f.Terrain.Generator(seed))
	}
	return h
}

func writeSnapshot(dataDir string, s snapshot.SnapshotV1, mirror *offsite.Mirror, logger zerolog.Logger) {
	path := filepath.Join(dataDir, "snapshots", snapshot.FileName(s.Header.Tick))
	if err := snapshot.WriteSnapshot(path, s); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("snapshot write")
		return
	}
	logger.Debug().Uint64("tick", s.Header.Tick).Msg("snapshot written")
	mirror.Enqueue(path)
}

// buildMirror returns nil when no offsite endpoint is configured.
func buildMirror(cfg config.Offsite, dataDir string, logger zerolog.Logger) (*offsite.Mirror, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := offsite.NewClient(offsite.Credentials{
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("bucket", cfg.Bucket).Str("prefix", cfg.Prefix).Msg("offsite mirror enabled")
	return offsite.NewMirror(client, dataDir, offsite.Options{Prefix: cfg.Prefix, Workers: cfg.Workers}, logger), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
