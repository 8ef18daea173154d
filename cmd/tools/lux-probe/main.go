// Command lux-probe inspects a running luxmeter daemon over its JSON
// API: current estimate, live bounds, and pipeline counters. Bench
// scripts also use it to bracket runs in recording sessions.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/fieldsense/lux.report/internal/api"
	"github.com/fieldsense/lux.report/internal/httputil"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Base URL of the luxmeter daemon")
	watch := flag.Duration("watch", 0, "Repeat every interval instead of printing once")
	showBounds := flag.Bool("bounds", false, "Also print the live floor and ceiling evidence")
	showStats := flag.Bool("stats", false, "Also print feed state and pipeline counters")
	startSession := flag.String("start-session", "", "Start a recording session with this source tag and exit")
	notes := flag.String("notes", "", "Notes to attach when starting a session")
	endSession := flag.Bool("end-session", false, "End the active recording session and exit")
	flag.Parse()

	client := api.NewClient(httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second}), *server)

	if *startSession != "" {
		sess, err := client.StartSession(*startSession, *notes)
		if err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}
		fmt.Printf("started session %s (source %s)\n", sess.ID, sess.Source)
		return
	}
	if *endSession {
		sess, err := client.EndSession()
		if err != nil {
			log.Fatalf("Failed to end session: %v", err)
		}
		fmt.Printf("ended session %s: %d samples, %d estimates\n", sess.ID, sess.SampleCount, sess.EstimateCount)
		return
	}

	for {
		if err := probe(client, *showBounds, *showStats); err != nil {
			if *watch <= 0 {
				log.Fatalf("Probe failed: %v", err)
			}
			// Transient failures must not kill a watch loop.
			log.Printf("Probe failed: %v", err)
		}
		if *watch <= 0 {
			return
		}
		time.Sleep(*watch)
	}
}

func probe(client *api.Client, showBounds, showStats bool) error {
	est, err := client.FetchEstimate()
	if err != nil {
		return err
	}
	fmt.Printf("%s  %.0f %s in [%.0f, %.0f] from %d samples\n",
		est.Time.Format("15:04:05"), est.Lux, est.Units, est.LowerLux, est.UpperLux, est.SampleCount)

	if showBounds {
		bounds, err := client.FetchBounds()
		if err != nil {
			return err
		}
		for _, b := range bounds.Lower {
			fmt.Printf("  lower %8.0f %s  conf %d  until %s\n", b.Lux, bounds.Units, b.Confidence, b.End.Format("15:04:05"))
		}
		for _, b := range bounds.Upper {
			fmt.Printf("  upper %8.0f %s  conf %d  until %s\n", b.Lux, bounds.Units, b.Confidence, b.End.Format("15:04:05"))
		}
	}

	if showStats {
		stats, err := client.FetchStats()
		if err != nil {
			return err
		}
		session := stats.Session
		if session == "" {
			session = "(none)"
		}
		fmt.Printf("  session %s  live samples %d\n", session, stats.LiveSamples)

		keys := make([]string, 0, len(stats.Counters))
		for k := range stats.Counters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-32s %d\n", k, stats.Counters[k])
		}
	}
	return nil
}
