package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fieldsense/lux.report/internal/api"
	"github.com/fieldsense/lux.report/internal/config"
	"github.com/fieldsense/lux.report/internal/luxdb"
	"github.com/fieldsense/lux.report/internal/luxfeed"
	"github.com/fieldsense/lux.report/internal/luxnet"
	"github.com/fieldsense/lux.report/internal/monitor"
	"github.com/fieldsense/lux.report/internal/packetmux"
	"github.com/fieldsense/lux.report/internal/units"
	"github.com/fieldsense/lux.report/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode (mock packet feed, no sensor hardware)")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	feedSource    = flag.String("feed", "", "Packet feed: serial, udp, or none (default from config)")
	serialDevice  = flag.String("port", "", "Serial device for the photometer (default from config)")
	udpAddr       = flag.String("udp-addr", "", "UDP listen address for sensor datagrams (default from config)")
	dbFile        = flag.String("db", "", "Path to the SQLite database file (default from config)")
	displayUnits  = flag.String("units", "", "Display units: lux, fc, or klx (default from config)")
	sessionSource = flag.String("session-source", "boot", "Source label for the recording session started at boot")
	noSession     = flag.Bool("no-session", false, "Do not start a recording session at boot")
	rcvBuf        = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

// Main
func main() {
	// Subcommands dispatch before flag parsing so `luxmeter migrate up`
	// does not collide with the daemon flags.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		cfg := config.MustLoadDefaultConfig()
		luxdb.RunMigrateCommand(os.Args[2:], cfg.GetDBPath())
		return
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("luxmeter %s\n", version.String())
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	cfg := config.MustLoadDefaultConfig()

	// Flags override file values.
	feed := cfg.GetFeedSource()
	if *feedSource != "" {
		feed = *feedSource
	}
	device := cfg.GetSerialDevice()
	if *serialDevice != "" {
		device = *serialDevice
	}
	udpListenAddr := cfg.GetUDPListenAddr()
	if *udpAddr != "" {
		udpListenAddr = *udpAddr
	}
	dbPath := cfg.GetDBPath()
	if *dbFile != "" {
		dbPath = *dbFile
	}
	unitLabel := cfg.GetUnits()
	if *displayUnits != "" {
		unitLabel = *displayUnits
	}
	if !units.IsValid(unitLabel) {
		log.Fatalf("invalid units %q; valid values: %s", unitLabel, units.GetValidUnitsString())
	}

	log.Printf("luxmeter %s starting", version.Short())

	db, err := luxdb.OpenAndMigrate(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	proc := luxfeed.NewProcessor(luxfeed.ProcessorConfig{Store: db})

	// Bracket the daemon run with a recording session so stored evidence
	// carries a provenance id.
	if !*noSession {
		sess, err := db.StartSession(*sessionSource, "")
		if err != nil {
			log.Printf("failed to start recording session: %v", err)
		} else {
			proc.SetSession(sess.ID)
			log.Printf("recording session %s started", sess.ID)
			defer func() {
				if err := db.EndSession(sess.ID); err != nil {
					log.Printf("failed to end recording session: %v", err)
				} else {
					log.Printf("recording session %s ended", sess.ID)
				}
			}()
		}
	}

	// Create a wait group for the HTTP server, feed, and flusher routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Packet feed: a serial mux, a UDP listener, or neither.
	var pmux packetmux.PacketMuxInterface
	switch feed {
	case "serial":
		if *devMode {
			pmux = packetmux.NewMockPacketMux(packetmux.DefaultMockFrames())
		} else {
			pmux, err = packetmux.NewRealPacketMux(device, packetmux.PortOptions{
				BaudRate: cfg.GetSerialBaud(),
			})
			if err != nil {
				log.Fatalf("failed to open sensor port: %v", err)
			}
		}
		log.Printf("serial feed on %s", device)
	case "udp":
		log.Printf("UDP feed on %s", udpListenAddr)
	case "none":
		log.Print("packet feed disabled")
	default:
		log.Fatalf("unknown feed source %q (want serial, udp, or none)", feed)
	}

	if pmux != nil {
		defer pmux.Close()

		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pmux.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor sensor port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		// subscribe to the sensor frames and fold them into the estimate
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, frames := pmux.Subscribe()
			defer pmux.Unsubscribe(id)
			if err := proc.Run(ctx, frames); err != nil && err != context.Canceled {
				log.Printf("feed processor error: %v", err)
			}
			log.Print("feed routine terminated")
		}()
	}

	if feed == "udp" {
		listener := luxnet.NewUDPListener(luxnet.UDPListenerConfig{
			Address: udpListenAddr,
			RcvBuf:  *rcvBuf,
			Stats:   luxnet.NewPacketStats(),
			Sink:    proc,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP listener error: %v", err)
			}
			log.Print("UDP listener routine terminated")
		}()
	}

	// Periodic estimate flush into the database.
	flushInterval := cfg.GetEstimateInterval()
	if cfg.GetFlushDisable() {
		flushInterval = 0
	}
	flusher := luxfeed.NewEstimateFlusher(luxfeed.EstimateFlusherConfig{
		Recorder: proc,
		Interval: flushInterval,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := flusher.Run(ctx); err != nil {
			log.Printf("estimate flusher error: %v", err)
		}
		log.Print("flusher routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		db.AttachAdminRoutes(mux)
		if pmux != nil {
			pmux.AttachAdminRoutes(mux)
		}

		// debug chart pages and the PNG plotter
		plotter := monitor.NewLuxPlotter(nil, cfg.GetPlotOutputDir())
		monitor.NewChartServer(db, proc, plotter).AttachChartRoutes(mux)

		// API handlers register their full /api/... paths themselves
		mux.Handle("/api/", api.NewServer(proc, db, unitLabel).ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
