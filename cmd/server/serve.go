package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mobsim/internal/config"
	"mobsim/internal/persistence/archive"
	"mobsim/internal/persistence/indexdb"
	persistlog "mobsim/internal/persistence/log"
	"mobsim/internal/persistence/snapshot"
	"mobsim/internal/sim/catalogs"
	"mobsim/internal/sim/tuning"
	"mobsim/internal/sim/world"
	"mobsim/internal/transport/observer"
	"mobsim/internal/transport/player"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the world loop and its HTTP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg, a.log)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "http listen address")
	f.Int64("seed", 0, "world seed (used only when starting a fresh world)")
	f.String("snapshot", "", "snapshot to resume from")
	f.Bool("disable-db", false, "disable the sqlite read-model index")
	bindFlag(a.v, "server.addr", f.Lookup("addr"))
	bindFlag(a.v, "world.seed", f.Lookup("seed"))
	bindFlag(a.v, "world.snapshot", f.Lookup("snapshot"))
	bindFlag(a.v, "index.disable", f.Lookup("disable-db"))
	return cmd
}

// worldRuntime is everything a running world needs besides the loop itself.
type worldRuntime struct {
	cfg      config.Config
	log      *zap.Logger
	worldDir string

	world *world.World
	idx   *indexdb.SQLiteIndex
}

func runServe(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	rt, cleanup, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()
	w := rt.world

	tickLog := persistlog.NewTickLogger(rt.worldDir)
	auditLog := persistlog.NewAuditLogger(rt.worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	ticks := persistlog.TickFanout{tickLog}
	audits := persistlog.AuditFanout{auditLog}
	if rt.idx != nil {
		ticks = append(ticks, rt.idx)
		audits = append(audits, rt.idx)
	}
	w.SetTickLogger(ticks)
	w.SetAuditLogger(audits)

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           rt.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap := <-snapCh:
				rt.persistSnapshot(snap)
			}
		}
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("world", cfg.World.ID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()

	// The loop has returned, so reading world state here is safe.
	if tick := w.CurrentTick(); tick > 0 {
		rt.persistSnapshot(w.ExportSnapshot(tick - 1))
	}
	log.Info("stopped", zap.Uint64("tick", w.CurrentTick()))
	return err
}

// openRuntime loads catalogs and tuning, opens the index, then builds the
// world fresh or from the snapshot chosen by cfg.
func openRuntime(ctx context.Context, cfg config.Config, log *zap.Logger) (*worldRuntime, func(), error) {
	cats, err := catalogs.Load(cfg.Paths.ConfigsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalogs: %w", err)
	}
	worldDir := cfg.WorldDir()
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return nil, nil, err
	}

	snapPath, err := resolveSnapshot(cfg, worldDir)
	if err != nil {
		return nil, nil, err
	}

	tune, err := tuning.Load(cfg.TuningPath())
	if err != nil {
		// A resume can fall back to defaults since the snapshot carries the
		// world shape.
		if snapPath == "" || !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("load tuning: %w", err)
		}
		log.Warn("tuning not found, using defaults", zap.String("path", cfg.TuningPath()))
		tune = tuning.Defaults()
	}

	rt := &worldRuntime{cfg: cfg, log: log, worldDir: worldDir}
	cleanup := func() {}
	if !cfg.Index.Disable {
		idx, err := indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			return nil, nil, fmt.Errorf("open index: %w", err)
		}
		rt.idx = idx
		cleanup = func() {
			if err := idx.Close(); err != nil {
				log.Warn("index close", zap.Error(err))
			}
		}
		if err := idx.UpsertCatalogs(ctx, cats, tune); err != nil {
			log.Warn("index: upsert catalogs", zap.Error(err))
		}
	}

	w, err := world.New(world.ConfigFromTuning(cfg.World.ID, cfg.World.Seed, tune), cats, world.WithLogger(log.Named("world")))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("world: %w", err)
	}
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != cfg.World.ID {
			cleanup()
			return nil, nil, fmt.Errorf("snapshot world id mismatch: config=%s snapshot=%s", cfg.World.ID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("import snapshot: %w", err)
		}
		log.Info("resumed", zap.String("snapshot", filepath.Base(snapPath)), zap.Uint64("tick", w.CurrentTick()))
	}
	rt.world = w
	return rt, cleanup, nil
}

func resolveSnapshot(cfg config.Config, worldDir string) (string, error) {
	if cfg.World.Snapshot != "" {
		return cfg.World.Snapshot, nil
	}
	if !cfg.World.LoadLatest {
		return "", nil
	}
	path, _, ok, err := archive.LatestSnapshot(filepath.Join(worldDir, "snapshots"))
	if err != nil {
		return "", fmt.Errorf("find latest snapshot: %w", err)
	}
	if !ok {
		return "", nil
	}
	return path, nil
}

// persistSnapshot writes snap, indexes it, archives checkpoints and prunes
// old snapshots. Failures are logged; the world keeps running.
func (rt *worldRuntime) persistSnapshot(snap snapshot.SnapshotV1) {
	tick := snap.Header.Tick
	path := archive.SnapshotPath(rt.worldDir, tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		rt.log.Error("snapshot write", zap.Uint64("tick", tick), zap.Error(err))
		return
	}
	rt.idx.RecordSnapshot(path, snap)

	if archived, ok, err := archive.ArchiveCheckpoint(rt.worldDir, path, snap, rt.cfg.World.CheckpointEvery); err != nil {
		rt.log.Warn("archive checkpoint", zap.Uint64("tick", tick), zap.Error(err))
	} else if ok {
		rt.log.Info("checkpoint archived", zap.Uint64("tick", tick), zap.String("path", archived))
	}

	if rt.cfg.World.SnapshotKeep > 0 {
		removed, err := archive.PruneSnapshots(filepath.Dir(path), rt.cfg.World.SnapshotKeep)
		if err != nil {
			rt.log.Warn("prune snapshots", zap.Error(err))
		} else if len(removed) > 0 {
			rt.log.Debug("pruned snapshots", zap.Int("count", len(removed)))
		}
	}
}

func (rt *worldRuntime) mux() *http.ServeMux {
	w := rt.world
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, rt.cfg.World.ID, w.Metrics(), rt.idx.Stats(), rt.idx != nil)
	})
	mux.HandleFunc("/v1/player/ws", player.NewServer(w, rt.log).Handler())

	if rt.cfg.Server.Admin {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: rt.cfg.World.ID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			})
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			tick, err := w.RequestSnapshot(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})

		mux.HandleFunc("/admin/v1/spawn", adminPost(rt.handleSpawn))
		mux.HandleFunc("/admin/v1/drop", adminPost(rt.handleDrop))
		mux.HandleFunc("/admin/v1/equip", adminPost(rt.handleEquip))

		obs := observer.NewServer(w, rt.log)
		mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	} else {
		rt.log.Info("admin endpoints disabled")
	}

	if rt.cfg.Server.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}
