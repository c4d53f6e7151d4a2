// Command fusiontrack replays a frame file (or a synthetic scene) through
// the camera/lidar fusion tracker and reports, stores and renders the
// resulting tracks.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/eagerfusion/internal/config"
	"github.com/banshee-data/eagerfusion/internal/fusion/associate"
	"github.com/banshee-data/eagerfusion/internal/fusion/debug"
	"github.com/banshee-data/eagerfusion/internal/fusion/pipeline"
	"github.com/banshee-data/eagerfusion/internal/fusion/replay"
	"github.com/banshee-data/eagerfusion/internal/fusion/storage/sqlite"
	"github.com/banshee-data/eagerfusion/internal/fusion/tracks"
	"github.com/banshee-data/eagerfusion/internal/fusion/visualiser"
	"github.com/banshee-data/eagerfusion/internal/version"
)

type options struct {
	configPath string
	framesPath string
	synthetic  int
	seed       int64
	dbPath     string
	htmlPath   string
	pngPath    string
	listen     string
	jsonOut    bool
	activeOnly bool
	debugAssoc bool
	logOps     bool
	logDiag    bool
	logTrace   bool
	version    bool
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.StringVar(&o.configPath, "config", "", "Tuning config (.json); built-in defaults when empty")
	fs.StringVar(&o.framesPath, "frames", "", "Frame file (.json) to replay")
	fs.IntVar(&o.synthetic, "synthetic", 0, "Generate this many synthetic frames instead of reading -frames")
	fs.Int64Var(&o.seed, "seed", 1, "Seed for -synthetic")
	fs.StringVar(&o.dbPath, "db", "", "SQLite track store; empty disables persistence")
	fs.StringVar(&o.htmlPath, "html", "", "Write an HTML track chart to this path")
	fs.StringVar(&o.pngPath, "png", "", "Write a trail plot (.png/.svg/.pdf) to this path")
	fs.StringVar(&o.listen, "listen", "", "Serve /tracks and /debug/ on this address after the replay")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the final track set as JSON on stdout")
	fs.BoolVar(&o.activeOnly, "active-only", false, "Report only Active tracks")
	fs.BoolVar(&o.debugAssoc, "debug-assoc", false, "Collect every association decision and log the accepted ones")
	fs.BoolVar(&o.logOps, "log-ops", true, "Log actionable problems to stderr")
	fs.BoolVar(&o.logDiag, "log-diag", false, "Log per-frame summaries to stderr")
	fs.BoolVar(&o.logTrace, "log-trace", false, "Log per-pair association costs to stderr")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.version {
		return o, nil
	}
	if (o.framesPath == "") == (o.synthetic <= 0) {
		return o, errors.New("exactly one of -frames or -synthetic is required")
	}
	return o, nil
}

func main() {
	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if o.version {
		fmt.Println(version.String("fusiontrack"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func setLogWriters(o options, stderr io.Writer) {
	pick := func(on bool) io.Writer {
		if on {
			return stderr
		}
		return nil
	}
	ops, diag, trace := pick(o.logOps), pick(o.logDiag), pick(o.logTrace)
	associate.SetLogWriters(ops, diag, trace)
	tracks.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)
	sqlite.SetLogWriters(ops, diag, trace)
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func run(ctx context.Context, o options, stdout, stderr io.Writer) error {
	setLogWriters(o, stderr)
	logger := log.New(stderr, "[fusiontrack] ", log.LstdFlags)

	tuning, err := loadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := pipeline.ConfigFromTuning(tuning)
	tracker, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	var frames *replay.File
	if o.synthetic > 0 {
		gen := replay.NewSyntheticGenerator(*cfg.Fusion.Camera, o.seed)
		gen.Lidar = cfg.Fusion.Lidar
		frames = gen.Generate(o.synthetic)
	} else if frames, err = replay.Load(o.framesPath); err != nil {
		return err
	}

	var store *sqlite.TrackStore
	var runID string
	if o.dbPath != "" {
		if store, err = sqlite.Open(o.dbPath); err != nil {
			return fmt.Errorf("open track store: %w", err)
		}
		defer store.Close()
		source := o.framesPath
		if source == "" {
			source = fmt.Sprintf("synthetic:%d:%d", o.synthetic, o.seed)
		}
		if runID, err = store.StartRun(source, tuning); err != nil {
			return err
		}
	}

	var dc *debug.DebugCollector
	if o.debugAssoc {
		dc = debug.NewDebugCollector()
		dc.SetEnabled(true)
		tracker.SetDebugCollector(dc)
	}

	start := time.Now()
	nonFatal := 0
	for i, f := range frames.Frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := tracker.Update(ctx, f)
		if err != nil {
			logger.Printf("frame %d skipped: %v", i+1, err)
			continue
		}
		nonFatal += len(res.Errors)
		if res.Debug != nil {
			for _, rec := range res.Debug.AssociationCandidates {
				if rec.Accepted {
					logger.Printf("frame %d %s: row %d -> col %d cost=%.3f", res.Frame, rec.Stage, rec.RowID, rec.ColID, rec.Cost)
				}
			}
		}
		if store != nil {
			if err := store.RecordFrame(runID, res, tracker.GetTracks()); err != nil {
				return err
			}
		}
	}
	if store != nil {
		if err := store.FinishRun(runID); err != nil {
			return err
		}
	}

	snapshot := report(tracker, o.activeOnly)
	stats := tracker.Stats()
	total, tentative, active := tracker.GetTrackCount()
	logger.Printf("%d frames in %s: %d live tracks (%d tentative, %d active), created=%d promoted=%d retired=%d fragmentation=%.2f, %d detections dropped",
		len(frames.Frames), time.Since(start).Round(time.Millisecond), total, tentative, active,
		stats.Created, stats.Promoted, stats.Retired, stats.FragmentationRatio(tracker.GetTracks()), nonFatal)

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snapshot); err != nil {
			return err
		}
	} else {
		for _, t := range snapshot {
			x, y, space := t.Latest().Position()
			fmt.Fprintf(stdout, "track %d\t%s\thits=%d\tmisses=%d\tlen=%d\t%s=(%.1f, %.1f)\n",
				t.TrackID, t.State, t.Hits, t.Misses, len(t.History), space, x, y)
		}
	}

	if o.htmlPath != "" {
		if err := writeHTML(o.htmlPath, snapshot, frames.RunID); err != nil {
			return err
		}
	}
	if o.pngPath != "" {
		if err := visualiser.WriteTrailsPNG(o.pngPath, snapshot, visualiser.DominantSpace(snapshot)); err != nil {
			return err
		}
	}

	if o.listen != "" {
		return serve(ctx, o.listen, tracker, store, logger)
	}
	return nil
}

func report(t *pipeline.EagerFusionTracker, activeOnly bool) []tracks.Track {
	if activeOnly {
		return t.GetActiveTracks()
	}
	return t.GetTracks()
}

func writeHTML(path string, trks []tracks.Track, runID string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	opts := visualiser.ChartOptions{Title: "Fusion tracks", Subtitle: "run " + runID}
	if err := visualiser.RenderTracksHTML(fh, trks, opts); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func newMux(tracker *pipeline.EagerFusionTracker, store *sqlite.TrackStore) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.Handle("/tracks", visualiser.Handler(tracker.GetTracks, visualiser.ChartOptions{Title: "Fusion tracks"}))
	mux.HandleFunc("/tracks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tracker.GetTracks())
	})
	dbg := tsweb.Debugger(mux)
	dbg.Handle("stats", "Tracker statistics (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		total, tentative, active := tracker.GetTrackCount()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"stats":     tracker.Stats(),
			"live":      total,
			"tentative": tentative,
			"active":    active,
		})
	}))
	if store != nil {
		if err := store.AttachDebugRoutes(dbg); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func serve(ctx context.Context, addr string, tracker *pipeline.EagerFusionTracker, store *sqlite.TrackStore, logger *log.Logger) error {
	mux, err := newMux(tracker, store)
	if err != nil {
		return err
	}
	server := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		logger.Printf("serving on %s (/tracks, /debug/)", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
