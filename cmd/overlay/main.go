// Command overlay replays recorded host events through the radar overlay
// pipeline and serves its debug pages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/banshee-data/radar.overlay/internal/config"
	"github.com/banshee-data/radar.overlay/internal/eventmux"
	"github.com/banshee-data/radar.overlay/internal/hoststate"
	"github.com/banshee-data/radar.overlay/internal/monitor"
	"github.com/banshee-data/radar.overlay/internal/monitoring"
	"github.com/banshee-data/radar.overlay/internal/radar"
	"github.com/banshee-data/radar.overlay/internal/scheduler"
	"github.com/banshee-data/radar.overlay/internal/storage/sqlite"
	"github.com/banshee-data/radar.overlay/internal/timeutil"
	"github.com/banshee-data/radar.overlay/internal/version"
	"github.com/banshee-data/radar.overlay/internal/world"
)

var (
	configPath   = flag.String("config", "", "Overlay config JSON (default: config/overlay.defaults.json)")
	dbPath       = flag.String("db", "overlay.db", "Landmark database")
	snapshotDir  = flag.String("snapshots", "snapshots", "Directory of <area>.json or <area>.json.zst host snapshots")
	importPath   = flag.String("import-landmarks", "", "Store every landmark group of a YAML file and exit")
	exportPath   = flag.String("export-landmarks", "", "Write stored landmark groups as YAML (- for stdout) and exit")
	eventsPath   = flag.String("events", "-", "Newline-delimited JSON host events (.zst for zstd), - for stdin")
	listen       = flag.String("listen", "", "Debug HTTP listen address (disabled when empty)")
	debugDir     = flag.String("debug-dir", "", "Write terrain and landmark PNGs per area into this directory")
	trace        = flag.Bool("trace", false, "Log per-event and per-frame telemetry")
	printVersion = flag.Bool("version", false, "Print version and exit")

	addLandmarks []string
)

func init() {
	flag.Func("add-landmark", "Store a landmark group `area:tile:count[:display]` and exit (repeatable; count 0 uses the recorded tile count)", func(s string) error {
		addLandmarks = append(addLandmarks, s)
		return nil
	})
}

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

func main() {
	flag.Parse()

	if *printVersion {
		fmt.Println(version.String())
		return
	}

	writers := monitoring.LogWriters{Ops: os.Stderr, Diag: os.Stderr}
	if *trace {
		writers.Trace = os.Stderr
	}
	monitoring.SetLogWriters(writers)

	var cfg *config.OverlayConfig
	if *configPath == "" {
		cfg = config.MustLoadDefaultConfig()
	} else {
		var err error
		if cfg, err = config.LoadOverlayConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open landmark database: %v", err)
	}
	defer db.Close()
	store := sqlite.NewLandmarkStore(db)

	provider, err := hoststate.New(*snapshotDir)
	if err != nil {
		log.Fatalf("failed to open snapshots: %v", err)
	}

	count := func(area, tile string) (int, error) {
		snap, err := provider.Load(area)
		if err != nil {
			return 0, err
		}
		return len(snap.Tiles[tile]), nil
	}
	if len(addLandmarks) > 0 || *importPath != "" || *exportPath != "" {
		if err := manageLandmarks(store, count); err != nil {
			log.Fatal(err)
		}
		return
	}

	renderer, err := radar.NewRenderer(cfg, radar.TopDownProjector)
	if err != nil {
		log.Fatalf("invalid icon configuration: %v", err)
	}

	src, err := eventmux.OpenLog(*eventsPath)
	if err != nil {
		log.Fatalf("failed to open events: %v", err)
	}

	clock := timeutil.RealClock{}
	events := eventmux.New(src, clock)
	defer events.Close()

	var (
		sched    *scheduler.Scheduler
		commands atomic.Int64
		dumper   = &areaDumper{dir: *debugDir}
	)
	sched, err = scheduler.New(scheduler.Options{
		Provider:  provider,
		Landmarks: store,
		Config:    cfg,
		Clock:     clock,
		OnEvent: func(ev scheduler.Event) {
			if err := provider.Apply(ev); err != nil {
				monitoring.Opsf("overlay: %v", err)
			}
		},
		OnFrame: func(fc scheduler.FrameContext) {
			out := renderer.Render(fc)
			commands.Add(int64(len(out.Large) + len(out.Mini)))
			if out.EditCullWindow {
				monitoring.Opsf("overlay: cull window %v needs repositioning", out.CullWindow)
				sched.AcknowledgeCullWindow()
			}
			dumper.maybeDump(fc)
		},
	})
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	sched.Enable(provider.GameState() != world.GameNotLoaded)

	start := clock.Now()
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Subscribe before reading so no event is published without a reader.
	id, sub := events.Subscribe()

	// The mux closes every subscriber once the stream ends, which ends
	// the forwarder and then the scheduler loop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := events.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to read events: %v", err)
		}
		events.Close()
		log.Print("event monitor terminated")
	}()

	schedEvents := make(chan scheduler.Event)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(schedEvents)
		defer events.Unsubscribe(id)
		forward(ctx, sub, schedEvents)
	}()

	runDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(runDone)
		if err := sched.Run(ctx, schedEvents); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scheduler stopped: %v", err)
		}
		sched.Disable()
		if art, ok := sched.Artifacts(); ok {
			dumper.dump(art)
		}
	}()

	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := http.NewServeMux()
			events.AttachAdminRoutes(mux)
			db.AttachAdminRoutes(mux)
			monitor.NewServer(sched).AttachAdminRoutes(mux)

			server := &http.Server{
				Addr:    *listen,
				Handler: mux,
			}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			log.Printf("debug pages on http://%s/debug/", *listen)

			// Keep serving after a replay ends so the last area can be inspected.
			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
				if err := server.Close(); err != nil {
					log.Printf("HTTP server force close error: %v", err)
				}
			}
		}()
	} else {
		// Without a debug server there is nothing to wait for once the
		// scheduler has drained the stream.
		go func() {
			<-runDone
			stop()
		}()
	}

	wg.Wait()

	st := sched.Status()
	log.Printf("overlay ran %s: %s frames, %s draw commands, %d area changes, %d dropped recomputes",
		durafmt.Parse(clock.Since(start)).LimitFirstN(2).Format(shortUnits),
		humanize.Comma(int64(st.Frames)), humanize.Comma(commands.Load()), st.Epoch, st.DroppedCommits)
}

// manageLandmarks runs the landmark table flags: imports, then single
// additions, then the export.
func manageLandmarks(store *sqlite.LandmarkStore, count tileCounter) error {
	if *importPath != "" {
		f, err := os.Open(*importPath)
		if err != nil {
			return fmt.Errorf("failed to open landmark file: %w", err)
		}
		specs, err := importLandmarks(f, store, count)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to import landmarks: %w", err)
		}
		log.Printf("imported %d landmark groups from %s", len(specs), *importPath)
	}

	for _, s := range addLandmarks {
		spec, err := parseLandmarkSpec(s)
		if err != nil {
			return err
		}
		g, err := addLandmark(store, count, spec)
		if err != nil {
			return fmt.Errorf("failed to add landmark: %w", err)
		}
		log.Printf("stored landmark %q (%s) in %q with %d clusters", g.Name, g.Display, spec.Area, g.ExpectedClusterCount)
	}

	if *exportPath != "" {
		var w io.Writer = os.Stdout
		if *exportPath != "-" {
			f, err := os.Create(*exportPath)
			if err != nil {
				return fmt.Errorf("failed to create landmark file: %w", err)
			}
			defer f.Close()
			w = f
		}
		n, err := exportLandmarks(w, store)
		if err != nil {
			return fmt.Errorf("failed to export landmarks: %w", err)
		}
		log.Printf("exported %d landmark groups", n)
	}
	return nil
}

// forward relays events from in to out in order. Events are queued while
// out is busy so a fast replay never overflows the subscriber buffer. It
// returns once in is closed and drained, or ctx is done.
func forward(ctx context.Context, in <-chan scheduler.Event, out chan<- scheduler.Event) {
	var queue []scheduler.Event
	for in != nil || len(queue) > 0 {
		var send chan<- scheduler.Event
		var next scheduler.Event
		if len(queue) > 0 {
			send, next = out, queue[0]
		}
		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, ev)
		case send <- next:
			queue = queue[1:]
		case <-ctx.Done():
			return
		}
	}
}

// areaDumper writes one set of debug PNGs per area session.
type areaDumper struct {
	dir  string
	mu   sync.Mutex
	last uint64
}

// maybeDump dumps the frame's session once its artifacts have committed.
func (d *areaDumper) maybeDump(fc scheduler.FrameContext) {
	if d.dir == "" || fc.Session == nil {
		return
	}
	if fc.Bitmap == nil && len(fc.Landmarks) == 0 {
		return
	}
	d.dump(scheduler.Artifacts{
		Area:      fc.Session.Area,
		Epoch:     fc.Session.Epoch,
		Bitmap:    fc.Bitmap,
		Landmarks: fc.Landmarks,
		Tiles:     fc.Session.Tiles,
	})
}

func (d *areaDumper) dump(art scheduler.Artifacts) {
	if d.dir == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if art.Epoch == d.last {
		return
	}
	d.last = art.Epoch
	files, err := monitor.Dump(d.dir, art.Area, art.Bitmap, art.Landmarks, art.Tiles)
	if err != nil {
		monitoring.Opsf("overlay: debug dump for %q failed: %v", art.Area, err)
		return
	}
	monitoring.Diagf("overlay: dumped %q to %q %q", art.Area, files.Terrain, files.Landmarks)
}
