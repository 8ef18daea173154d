package monitor

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/fieldsense/lux.report/internal/fsutil"
	"github.com/fieldsense/lux.report/internal/luxdb"
)

// LuxPlotter renders PNG timelines of stored estimates. Rendering goes
// through a fsutil.FileSystem so tests can capture output in memory.
// Safe for concurrent use.
type LuxPlotter struct {
	mu        sync.Mutex
	fs        fsutil.FileSystem
	outputDir string
}

// NewLuxPlotter creates a plotter writing into outputDir. A nil fs
// falls back to the real filesystem.
func NewLuxPlotter(fs fsutil.FileSystem, outputDir string) *LuxPlotter {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &LuxPlotter{fs: fs, outputDir: outputDir}
}

// OutputDir returns the directory plots are written to.
func (lp *LuxPlotter) OutputDir() string {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.outputDir
}

// RenderTimeline plots the estimate and its bound envelope over time
// and writes <outputDir>/<name>.png. An empty name gets a timestamped
// one. Returns the written path.
func (lp *LuxPlotter) RenderTimeline(recs []luxdb.EstimateRecord, name string) (string, error) {
	if len(recs) == 0 {
		return "", fmt.Errorf("no estimates to plot")
	}

	ordered := make([]luxdb.EstimateRecord, len(recs))
	copy(ordered, recs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].WriteUnix < ordered[j].WriteUnix })

	t0 := ordered[0].WriteUnix
	estimatePts := make(plotter.XYs, 0, len(ordered))
	lowerPts := make(plotter.XYs, 0, len(ordered))
	upperPts := make(plotter.XYs, 0, len(ordered))
	for _, rec := range ordered {
		x := rec.WriteUnix - t0
		estimatePts = append(estimatePts, plotter.XY{X: x, Y: rec.EstimateLux})
		lowerPts = append(lowerPts, plotter.XY{X: x, Y: rec.LowerLux})
		upperPts = append(upperPts, plotter.XY{X: x, Y: rec.UpperLux})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Illuminance estimate (%s)", time.Unix(0, int64(t0*1e9)).Format(time.RFC3339))
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Lux"

	colors := generateColors(3)

	estimateLine, err := plotter.NewLine(estimatePts)
	if err != nil {
		return "", fmt.Errorf("failed to build estimate line: %w", err)
	}
	estimateLine.Color = colors[0]
	estimateLine.Width = vg.Points(2)
	p.Add(estimateLine)
	p.Legend.Add("estimate", estimateLine)

	lowerLine, err := plotter.NewLine(lowerPts)
	if err != nil {
		return "", fmt.Errorf("failed to build lower line: %w", err)
	}
	lowerLine.Color = colors[1]
	lowerLine.Width = vg.Points(1)
	lowerLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(lowerLine)
	p.Legend.Add("lower bound", lowerLine)

	upperLine, err := plotter.NewLine(upperPts)
	if err != nil {
		return "", fmt.Errorf("failed to build upper line: %w", err)
	}
	upperLine.Color = colors[2]
	upperLine.Width = vg.Points(1)
	upperLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(upperLine)
	p.Legend.Add("upper bound", upperLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if name == "" {
		name = "estimate_" + FormatTimestamp(time.Now())
	}
	return lp.save(p, name)
}

// RenderSessionOverlay plots one estimate line per session so runs can
// be compared side by side. Sessions get distinct colours; the empty
// session id is labelled "(no session)".
func (lp *LuxPlotter) RenderSessionOverlay(sessions map[string][]luxdb.EstimateRecord, name string) (string, error) {
	if len(sessions) == 0 {
		return "", fmt.Errorf("no sessions to plot")
	}

	ids := make([]string, 0, len(sessions))
	t0 := 0.0
	first := true
	for id, recs := range sessions {
		if len(recs) == 0 {
			continue
		}
		ids = append(ids, id)
		for _, rec := range recs {
			if first || rec.WriteUnix < t0 {
				t0 = rec.WriteUnix
				first = false
			}
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no estimates to plot")
	}
	sort.Strings(ids)

	p := plot.New()
	p.Title.Text = "Illuminance by session"
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Lux"

	colors := generateColors(len(ids))
	for i, id := range ids {
		recs := sessions[id]
		ordered := make([]luxdb.EstimateRecord, len(recs))
		copy(ordered, recs)
		sort.Slice(ordered, func(a, b int) bool { return ordered[a].WriteUnix < ordered[b].WriteUnix })

		pts := make(plotter.XYs, 0, len(ordered))
		for _, rec := range ordered {
			pts = append(pts, plotter.XY{X: rec.WriteUnix - t0, Y: rec.EstimateLux})
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("failed to build line for session %s: %w", id, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)

		label := id
		if label == "" {
			label = "(no session)"
		}
		p.Legend.Add(label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if name == "" {
		name = "sessions_" + FormatTimestamp(time.Now())
	}
	return lp.save(p, name)
}

// save renders p as a 14x6 inch PNG through the filesystem seam.
// plot.Save opens files with os.Create directly, so we go via WriterTo
// instead.
func (lp *LuxPlotter) save(p *plot.Plot, name string) (string, error) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("failed to render plot: %w", err)
	}

	path := filepath.Join(lp.outputDir, name+".png")
	f, err := lp.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

// ListPlots returns the rendered PNG paths in sorted order.
func (lp *LuxPlotter) ListPlots() ([]string, error) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.fs.Glob(filepath.Join(lp.outputDir, "*.png"))
}

// generateColors creates a palette of visually distinct colours.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for file naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir builds a timestamped output directory for plots.
// For replayed capture logs: <baseDir>/<log_basename>/<timestamp>.
// For live data: <baseDir>/live_<timestamp>.
func MakePlotOutputDir(baseDir, captureFile string) string {
	ts := FormatTimestamp(time.Now())
	if captureFile != "" {
		base := filepath.Base(captureFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
