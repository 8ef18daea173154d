// Command gen-luxlog generates synthetic photometer frame logs for
// decoder tests, bench runs, and soak testing. Output is one 4-digit
// hex word per line; with -udp the same frames are also transmitted
// live so a running luxmeter can consume them.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fieldsense/lux.report/internal/photometer"
)

// scenarioFunc produces the i-th of n frames for one scripted scenario.
type scenarioFunc func(i, n int, rng *rand.Rand) photometer.RawSample

var scenarios = map[string]scenarioFunc{
	"steady":        steady,
	"ramp":          ramp,
	"contradiction": contradiction,
	"clears":        clears,
}

func main() {
	output := flag.String("o", "sample.luxlog", "Output file path")
	count := flag.Int("n", 240, "Number of frames to generate")
	scenario := flag.String("scenario", "steady", "Scenario to script: "+scenarioNames())
	seed := flag.Int64("seed", 0, "Random seed (0 seeds from the clock)")
	udpTarget := flag.String("udp", "", "Also transmit each frame to this UDP address")
	interval := flag.Duration("interval", 50*time.Millisecond, "Frame spacing for UDP transmission")
	flag.Parse()

	gen, ok := scenarios[*scenario]
	if !ok {
		log.Fatalf("Unknown scenario %q (want one of: %s)", *scenario, scenarioNames())
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s))

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	var conn net.Conn
	if *udpTarget != "" {
		conn, err = net.Dial("udp", *udpTarget)
		if err != nil {
			log.Fatalf("Failed to dial %s: %v", *udpTarget, err)
		}
		defer conn.Close()
		log.Printf("Transmitting %d frames to %s every %v", *count, *udpTarget, *interval)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# gen-luxlog scenario=%s n=%d seed=%d\n", *scenario, *count, s)

	for i := 0; i < *count; i++ {
		raw := gen(i, *count, rng)
		fmt.Fprintf(w, "%04x\n", uint16(raw))

		if conn != nil {
			b := raw.Bytes()
			if _, err := conn.Write(b[:]); err != nil {
				log.Fatalf("UDP write failed: %v", err)
			}
			time.Sleep(*interval)
		}

		if (i+1)%100 == 0 {
			log.Printf("Generated %d/%d frames...", i+1, *count)
		}
	}

	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to write output file: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames, scenario %s)", *output, *count, *scenario)
}

func scenarioNames() string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// quantize clamps an int onto the signed 8-bit value range carried in
// the frame payload.
func quantize(v int) int8 {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return int8(v)
}

// steady alternates floor and ceiling readings around a stable level,
// with a little quantization jitter. The estimate should settle near
// 50 klx and stay there.
func steady(i, _ int, rng *rand.Rand) photometer.RawSample {
	jitter := rng.Intn(7) - 3
	if i%2 == 0 {
		return photometer.PackRaw(2, false, quantize(-13+jitter), photometer.Lower, 8)
	}
	return photometer.PackRaw(2, false, quantize(13+jitter), photometer.Upper, 8)
}

// ramp walks lower bounds from the bottom of the scale to the top, with
// a weaker ceiling trailing above them. Earlier floors become stale as
// later ones subsume them, so the estimate climbs monotonically.
func ramp(i, n int, rng *rand.Rand) photometer.RawSample {
	den := n - 1
	if den < 1 {
		den = 1
	}
	v := -120 + 240*i/den
	if i%5 == 4 {
		return photometer.PackRaw(1, false, quantize(v+15), photometer.Upper, 10)
	}
	return photometer.PackRaw(2, false, quantize(v+rng.Intn(4)), photometer.Lower, 9)
}

// contradiction opens with a long-lived low-confidence ceiling, then
// sends high-confidence floors that sit above it. The floors must win:
// each one overrides the ceiling rather than averaging against it.
func contradiction(i, n int, rng *rand.Rand) photometer.RawSample {
	if i < n/3 {
		return photometer.PackRaw(1, false, -64, photometer.Upper, 12)
	}
	return photometer.PackRaw(3, false, quantize(10+rng.Intn(9)-4), photometer.Lower, 6)
}

// clears runs the steady scenario but drops a clear frame every 40
// frames, so accumulated evidence is wiped and rebuilt repeatedly.
func clears(i, n int, rng *rand.Rand) photometer.RawSample {
	if i%40 == 39 {
		return photometer.PackRaw(1, true, 0, photometer.Lower, 4)
	}
	return steady(i, n, rng)
}
