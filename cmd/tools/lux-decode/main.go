// Command lux-decode prints the decoded contents of photometer frame
// logs. It accepts the hex line format written by gen-luxlog, raw
// binary captures, and packet captures (when built with the pcap tag),
// and replays every frame through the estimation engine so running
// bounds can be inspected offline.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fieldsense/lux.report/internal/luxfeed"
	"github.com/fieldsense/lux.report/internal/luxnet"
	"github.com/fieldsense/lux.report/internal/photometer"
)

func main() {
	format := flag.String("format", "auto", "Input format: auto, hex, bin, or pcap (auto sniffing cannot tell ambiguous binary from hex; force it here)")
	every := flag.Int("estimate-every", 10, "Print a running estimate every N frames (0 disables)")
	interval := flag.Duration("interval", 100*time.Millisecond, "Synthetic frame spacing for hex and bin inputs")
	udpPort := flag.Int("udp-port", 8089, "Sensor UDP port filter for pcap inputs (0 disables)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <capture-file>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	f := *format
	if f == "auto" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pcap", ".pcapng":
			f = "pcap"
		}
	}

	proc := luxfeed.NewProcessor(luxfeed.ProcessorConfig{})
	printer := &framePrinter{proc: proc, every: *every}

	var err error
	switch f {
	case "pcap":
		err = luxnet.ReplayPCAP(context.Background(), luxnet.NewRealPCAPReaderFactory(), path, luxnet.ReplayConfig{
			UDPPort: *udpPort,
			Sink:    printer,
		})
	case "hex", "bin", "auto":
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}
		if f == "auto" {
			f = "bin"
			if looksHex(data) {
				f = "hex"
			}
		}
		var frames [][photometer.PacketSize]byte
		frames, err = parseFrames(data, f)
		if err == nil {
			start := proc.Timebase().Epoch()
			for i, frame := range frames {
				if err = printer.HandleFrame(frame, start.Add(time.Duration(i)*(*interval))); err != nil {
					break
				}
			}
		}
	default:
		log.Fatalf("Unknown format %q (want auto, hex, bin, or pcap)", f)
	}
	if err != nil {
		log.Fatalf("Decode failed: %v", err)
	}
	if printer.frames == 0 {
		log.Fatalf("No frames found in %s", path)
	}

	printSummary(proc, printer)
}

// framePrinter decodes each frame to stdout and feeds it onward to the
// estimation engine. Implements luxnet.FrameSink so pcap replay can
// drive it directly.
type framePrinter struct {
	proc   *luxfeed.Processor
	every  int
	frames int
	last   time.Time
}

func (fp *framePrinter) HandleFrame(frame [photometer.PacketSize]byte, captured time.Time) error {
	raw := photometer.RawFromBytes(frame)
	fp.frames++
	fp.last = captured
	fmt.Printf("%6d  %04x  %s\n", fp.frames, uint16(raw), raw)
	if err := fp.proc.HandleFrame(frame, captured); err != nil {
		return err
	}
	if fp.every > 0 && fp.frames%fp.every == 0 {
		est := fp.proc.EstimateAt(captured)
		fmt.Printf("        -> %.0f lx in [%.0f, %.0f] from %d samples\n",
			est.Lux, est.LowerLux, est.UpperLux, est.SampleCount)
	}
	return nil
}

func printSummary(proc *luxfeed.Processor, fp *framePrinter) {
	est := proc.EstimateAt(fp.last)
	lower, upper := proc.Bounds()
	fmt.Printf("\n%d frames decoded\n", fp.frames)
	fmt.Printf("final estimate: %.0f lx in [%.0f, %.0f] from %d samples\n",
		est.Lux, est.LowerLux, est.UpperLux, est.SampleCount)
	fmt.Printf("live bounds: %d lower, %d upper\n", len(lower), len(upper))
	for _, b := range lower {
		fmt.Printf("  lower %8.0f lx  conf %d  until %s\n", b.Lux, b.Confidence, b.End.Format(time.RFC3339))
	}
	for _, b := range upper {
		fmt.Printf("  upper %8.0f lx  conf %d  until %s\n", b.Lux, b.Confidence, b.End.Format(time.RFC3339))
	}
}

// parseFrames decodes a capture file body into sensor frames.
func parseFrames(data []byte, format string) ([][photometer.PacketSize]byte, error) {
	if format == "bin" {
		if len(data)%photometer.PacketSize != 0 {
			return nil, fmt.Errorf("binary input is %d bytes, not a multiple of the %d-byte frame size", len(data), photometer.PacketSize)
		}
		frames := make([][photometer.PacketSize]byte, 0, len(data)/photometer.PacketSize)
		for i := 0; i < len(data); i += photometer.PacketSize {
			var frame [photometer.PacketSize]byte
			copy(frame[:], data[i:i+photometer.PacketSize])
			frames = append(frames, frame)
		}
		return frames, nil
	}

	var frames [][photometer.PacketSize]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word, err := strconv.ParseUint(line, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad frame %q: %w", lineNo, line, err)
		}
		frames = append(frames, photometer.RawSample(uint16(word)).Bytes())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

// looksHex reports whether data is the hex line format: every
// non-blank, non-comment line parses as a standalone 16-bit hex word.
func looksHex(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := strconv.ParseUint(line, 16, 16); err != nil {
			return false
		}
	}
	return true
}
