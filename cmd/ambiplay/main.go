package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/halolight/ambiplay/internal/amb"
	"github.com/halolight/ambiplay/internal/color"
	"github.com/halolight/ambiplay/internal/config"
	"github.com/halolight/ambiplay/internal/control"
	"github.com/halolight/ambiplay/internal/engine"
	"github.com/halolight/ambiplay/internal/journal"
	"github.com/halolight/ambiplay/internal/library"
	"github.com/halolight/ambiplay/internal/mediasync"
	"github.com/halolight/ambiplay/internal/monitor"
	"github.com/halolight/ambiplay/internal/sink"
	"github.com/halolight/ambiplay/internal/strip"
	"github.com/halolight/ambiplay/internal/version"
)

var (
	file        = flag.String("file", "", "Path to an .amb file (takes precedence over -item)")
	item        = flag.String("item", "", "Media item id, resolved against the library root")
	libraryDir  = flag.String("library", "", "Library root holding .amb files (default $AMBILIGHT_DATA_DIR)")
	ledHost     = flag.String("host", "", "LED controller hostname (default $WLED_HOST or wled.lan)")
	ledPort     = flag.Int("port", 0, "LED controller raw UDP port (default $WLED_UDP_RAW_PORT or 19446)")
	listen      = flag.String("listen", ":8420", "Monitor HTTP listen address (empty disables)")
	tuningPath  = flag.String("tuning", "", "Tuning JSON file (missing values use documented defaults)")
	journalPath = flag.String("journal", "ambiplay.db", "SQLite journal path (empty disables journaling)")
	migrateDir  = flag.String("migrations", "migrations", "Journal migrations directory (skipped when absent)")
	controlMode = flag.String("control", "stdin", "Control line source: stdin, serial or none")
	serialPath  = flag.String("serial-port", "/dev/ttyUSB0", "Serial device for -control serial")
	serialBaud  = flag.Int("baud", 115200, "Baud rate for -control serial")
	mirrorAddr  = flag.String("mirror", "", "host:port receiving a debug copy of every datagram")
	startAt     = flag.Float64("start", 0, "Start offset into the stream, media seconds")
	refEpoch    = flag.Float64("epoch", 0, "Unix time the video started; elapsed time since it is added to -start")
	rollupEvery = flag.Duration("rollup", 10*time.Second, "Journal tick rollup interval")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// lineMux is the slice of the control mux main wires up; all three port
// flavours (stdin, serial, disabled) satisfy it.
type lineMux interface {
	control.Subscriber
	Monitor(ctx context.Context) error
	Close() error
	AttachAdminRoutes(mux *http.ServeMux)
}

// loadTuning reads the tuning file when one is given. Unreadable or invalid
// files are soft errors: the daemon warns and plays with the defaults.
func loadTuning(path string) *config.TuningConfig {
	if path == "" {
		return config.EmptyTuningConfig()
	}
	tun, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Printf("config: %v; continuing with defaults", err)
		return config.EmptyTuningConfig()
	}
	log.Printf("config: loaded tuning from %s", path)
	return tun
}

// resolveSource picks the .amb path from the -file flag or the library.
func resolveSource(filePath, itemID, root string) (string, error) {
	if filePath != "" {
		return filePath, nil
	}
	if itemID == "" {
		return "", fmt.Errorf("a source is required: pass -file or -item")
	}
	if root == "" {
		return "", fmt.Errorf("-item needs a library root: pass -library or set AMBILIGHT_DATA_DIR")
	}
	return library.New(root, nil).Resolve(itemID)
}

// targetLayout builds the output strip from the tuning file, falling back
// to the container's own zone count (identity resample).
func targetLayout(tun *config.TuningConfig, sourceZones int) strip.Layout {
	layout := strip.Layout{
		Top:    tun.GetTargetTop(),
		Bottom: tun.GetTargetBottom(),
		Left:   tun.GetTargetLeft(),
		Right:  tun.GetTargetRight(),
		Count:  tun.GetTargetCount(),
	}
	if layout.Total() == 0 {
		layout.Count = sourceZones
	}
	return layout
}

// colorSettings maps the tuning accessors onto the pipeline settings.
// An unknown channel order warns and stays RGB.
func colorSettings(tun *config.TuningConfig) color.Settings {
	order, err := color.ParseOrder(tun.GetChannelOrder())
	if err != nil {
		log.Printf("config: %v; using RGB", err)
	}
	return color.Settings{
		BaseGamma:        tun.GetBaseGamma(),
		GammaR:           tun.GetGammaR(),
		GammaG:           tun.GetGammaG(),
		GammaB:           tun.GetGammaB(),
		Saturation:       tun.GetSaturation(),
		BrightnessTarget: tun.GetBrightnessTarget(),
		SmoothingTau:     tun.GetSmoothingTau(),
		FloorBase:        tun.GetFloorBase(),
		FloorBoostR:      tun.GetFloorBoostR(),
		FloorBoostG:      tun.GetFloorBoostG(),
		FloorBoostB:      tun.GetFloorBoostB(),
		Order:            order,
	}
}

// splitHostPort parses the -mirror address.
func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("ambiplay %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if err := config.LoadDotenv(); err != nil {
		log.Printf("config: .env load failed: %v", err)
	}

	host := *ledHost
	if host == "" {
		host = config.GetEnv("WLED_HOST", "wled.lan")
	}
	port := *ledPort
	if port == 0 {
		port = config.GetEnvInt("WLED_UDP_RAW_PORT", sink.DefaultPort)
	}
	libraryRoot := *libraryDir
	if libraryRoot == "" {
		libraryRoot = config.GetEnv("AMBILIGHT_DATA_DIR", "")
	}

	tun := loadTuning(*tuningPath)

	source, err := resolveSource(*file, *item, libraryRoot)
	if err != nil {
		log.Fatalf("resolve source: %v", err)
	}

	frames, err := amb.Load(source)
	if err != nil {
		log.Fatalf("load %s: %v", source, err)
	}
	log.Printf("loaded %s: schema=%s zones=%d frames=%d fps=%.2f format=%s duration=%s",
		source, frames.Schema, frames.Zones, len(frames.Frames), frames.FPS,
		frames.Format, frames.Duration().Round(time.Second))

	layout := targetLayout(tun, frames.Zones)
	rotation := frames.RotationOffset + tun.GetRotationOffset()
	resampler, err := strip.NewResampler(frames.Zones, layout.Total(), frames.BytesPerZone(), rotation)
	if err != nil {
		log.Fatalf("resampler: %v", err)
	}

	processor, err := color.NewProcessor(colorSettings(tun), layout.Total(), frames.BytesPerZone())
	if err != nil {
		log.Fatalf("color pipeline: %v", err)
	}

	udpSink, err := sink.NewUDPSink(host, port)
	if err != nil {
		log.Fatalf("dial %s:%d: %v", host, port, err)
	}
	defer udpSink.Close()
	log.Printf("transmitting %d zones (%d bytes/frame) to %s", layout.Total(), resampler.TargetSize(), udpSink.Address())

	var mirror *sink.Mirror
	if *mirrorAddr != "" {
		mh, mp, err := splitHostPort(*mirrorAddr)
		if err != nil {
			log.Fatalf("bad -mirror address %q: %v", *mirrorAddr, err)
		}
		mirror, err = sink.NewMirror(mh, mp, time.Minute)
		if err != nil {
			log.Fatalf("dial mirror %s: %v", *mirrorAddr, err)
		}
		defer mirror.Close()
		udpSink.AttachMirror(mirror)
	}

	// Journal setup. A missing migrations directory is fine: Open already
	// ensures the baseline schema.
	var (
		jdb  *journal.DB
		sess *journal.Session
		rec  control.EventRecorder
	)
	if *journalPath != "" {
		jdb, err = journal.Open(*journalPath)
		if err != nil {
			log.Fatalf("open journal %s: %v", *journalPath, err)
		}
		defer jdb.Close()

		if _, statErr := os.Stat(*migrateDir); statErr == nil {
			if err := jdb.MigrateUp(*migrateDir); err != nil {
				log.Fatalf("journal migrations: %v", err)
			}
		}

		sess = &journal.Session{
			SourcePath:  source,
			Destination: udpSink.Address(),
			Zones:       frames.Zones,
			Leds:        layout.Total(),
			FPS:         frames.FPS,
			Format:      frames.Format.String(),
		}
		if err := jdb.StartSession(sess); err != nil {
			log.Fatalf("start journal session: %v", err)
		}
		defer func() {
			if err := jdb.EndSession(sess.ID); err != nil {
				log.Printf("journal: end session: %v", err)
			}
		}()
		log.Printf("journal session %s -> %s", sess.ID, *journalPath)

		recorder := jdb.Recorder(sess.ID)
		rec = recorder
		if err := recorder.RecordEvent(journal.KindStart, *startAt, source); err != nil {
			log.Printf("journal: start event: %v", err)
		}
	}

	controlState := control.NewState()

	var mux lineMux
	switch *controlMode {
	case "stdin":
		mux = control.NewStdinLineMux()
	case "serial":
		serialMux, err := control.NewSerialLineMux(*serialPath, control.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			log.Fatalf("open serial control %s: %v", *serialPath, err)
		}
		mux = serialMux
	case "none":
		mux = control.NewDisabledLineMux()
	default:
		log.Fatalf("unknown -control mode %q (want stdin, serial or none)", *controlMode)
	}
	defer mux.Close()

	ring := monitor.NewTickRing(0)

	eng, err := engine.New(engine.Config{
		Frames:         frames,
		Resampler:      resampler,
		Processor:      processor,
		Sink:           udpSink,
		Control:        controlState,
		Ticks:          ring,
		StartOffset:    *startAt,
		ReferenceEpoch: *refEpoch,
		SyncLead:       tun.GetSyncLead(),
		PausePoll:      tun.GetPausePoll(),
		StopBlanks:     tun.GetStopBlankCount(),
	})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	if tun.GetDebug() {
		log.Printf("debug: layout=%+v rotation=%d lead=%v order=%s",
			layout, rotation, tun.GetSyncLead(), tun.GetChannelOrder())
	}

	// Create a wait group for the engine, control, sync, journal rollup and
	// HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mirror != nil {
		mirror.Start(ctx)
	}

	// run the monitor routine to manage IO on the control port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("control monitor: %v", err)
		}
		log.Print("control monitor routine terminated")
	}()

	// apply control lines to the shared state, journaling applied commands
	wg.Add(1)
	go func() {
		defer wg.Done()
		control.Dispatch(ctx, mux, controlState, rec)
		log.Print("control dispatch routine terminated")
	}()

	// media-server session poller, enabled by environment
	if baseURL := config.GetEnv("JELLYFIN_BASE_URL", ""); baseURL != "" {
		interval := time.Duration(config.GetEnvFloat("PLAYBACK_MONITOR_INTERVAL", 1.0) * float64(time.Second))
		syncer, err := mediasync.New(mediasync.Config{
			BaseURL:  baseURL,
			APIKey:   config.GetEnv("JELLYFIN_API_KEY", ""),
			ItemID:   *item,
			Device:   config.GetEnv("JELLYFIN_DEVICE_FILTER", ""),
			Interval: interval,
			SyncLead: tun.GetSyncLead(),
			Control:  controlState,
			Recorder: rec,
		})
		if err != nil {
			log.Fatalf("mediasync: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := syncer.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("mediasync: %v", err)
			}
			log.Print("mediasync routine terminated")
		}()
	}

	// periodic journal rollups of the tick window
	if jdb != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(*rollupEvery)
			defer ticker.Stop()

			var lastErrs uint64
			flush := func() {
				roll := ring.RollupAndReset()
				snap := eng.Snapshot()
				if snap.SendErrors > lastErrs && rec != nil {
					if err := rec.RecordEvent(journal.KindTransmitError, float64(snap.SendErrors-lastErrs), ""); err != nil {
						log.Printf("journal: transmit-error event: %v", err)
					}
				}
				lastErrs = snap.SendErrors
				if roll.Ticks == 0 {
					return
				}
				err := jdb.RecordTickStats(journal.TickStats{
					SessionID:     sess.ID,
					FramesSent:    int64(snap.FramesSent),
					SendErrors:    int64(snap.SendErrors),
					MeanLatencyUs: roll.MeanLatencyUs,
					MeanLuminance: roll.MeanLuminance,
				})
				if err != nil {
					log.Printf("journal: tick rollup: %v", err)
				}
			}

			for {
				select {
				case <-ticker.C:
					flush()
				case <-ctx.Done():
					flush()
					log.Print("rollup routine terminated")
					return
				}
			}
		}()
	}

	// monitor HTTP server
	if *listen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *listen,
			Engine:  eng,
			Sink:    udpSink,
			Ring:    ring,
			Journal: jdb,
			Control: mux,
			Source:  source,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("monitor server: %v", err)
			}
		}()
	}

	// playback engine; when it finishes (stop command or end of stream)
	// the whole daemon winds down
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("engine: %v", err)
		}
		stop()
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
