// Package monitor serves debugging views of the running estimate:
// go-echarts HTML pages for quick inspection in a browser, and PNG
// timelines rendered through LuxPlotter for offline reports. These are
// unauthenticated debug endpoints; mount them on the debug mux, not the
// public API.
package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fieldsense/lux.report/internal/httputil"
	"github.com/fieldsense/lux.report/internal/luxdb"
	"github.com/fieldsense/lux.report/internal/luxfeed"
	"github.com/fieldsense/lux.report/internal/monitoring"
)

// echartsAssetsPrefix points chart pages at the public go-echarts asset
// bundle so the binary ships no JavaScript of its own.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// LiveFeed is the slice of the feed processor the chart pages read.
type LiveFeed interface {
	EstimateNow() luxfeed.Estimate
	Bounds() (lower, upper []luxfeed.Bound)
}

// ChartServer renders the debug chart pages. Any of db, feed and
// plotter may be nil; the handlers that need a missing piece report it
// instead of panicking.
type ChartServer struct {
	db      *luxdb.DB
	feed    LiveFeed
	plotter *LuxPlotter
}

// NewChartServer wires the chart handlers to their data sources.
func NewChartServer(db *luxdb.DB, feed LiveFeed, plotter *LuxPlotter) *ChartServer {
	return &ChartServer{db: db, feed: feed, plotter: plotter}
}

// AttachChartRoutes registers the chart endpoints on mux.
func (cs *ChartServer) AttachChartRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/charts", cs.handleDashboard)
	mux.HandleFunc("/charts/", cs.handleDashboard)
	mux.HandleFunc("/charts/estimates", cs.handleEstimateChart)
	mux.HandleFunc("/charts/bounds", cs.handleBoundsChart)
	mux.HandleFunc("/charts/counters", cs.handleCountersChart)
	mux.HandleFunc("/charts/plots", cs.handlePlots)
}

const chartDashboardHTML = `<!DOCTYPE html>
<html>
<head>
<title>lux.report debug charts</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; margin: 1em; }
h1 { font-size: 1.2em; }
iframe { border: 1px solid #333; width: 100%%; height: 660px; margin-bottom: 1em; background: #111; }
</style>
</head>
<body>
<h1>lux.report &mdash; live estimate: %s</h1>
<iframe src="/charts/estimates"></iframe>
<iframe src="/charts/bounds"></iframe>
<iframe src="/charts/counters"></iframe>
</body>
</html>
`

// handleDashboard renders a simple page with iframes to the debug charts.
func (cs *ChartServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/charts" && r.URL.Path != "/charts/" {
		http.NotFound(w, r)
		return
	}

	live := "feed not attached"
	if cs.feed != nil {
		est := cs.feed.EstimateNow()
		live = fmt.Sprintf("%.0f lx in [%.0f, %.0f] from %d samples",
			est.Lux, est.LowerLux, est.UpperLux, est.SampleCount)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, chartDashboardHTML, live)
}

// handleEstimateChart renders a line chart of stored estimates with the
// bound envelope around them.
// Query params:
//   - limit (optional; default 500, max 10000) newest points to chart
func (cs *ChartServer) handleEstimateChart(w http.ResponseWriter, r *http.Request) {
	if cs.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured for estimate history")
		return
	}

	limit := 500
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 10000 {
			limit = v
		}
	}

	recs, err := cs.db.RecentEstimates(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load estimates: %v", err))
		return
	}
	if len(recs) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no estimates recorded")
		return
	}

	// RecentEstimates returns newest first; flip so time runs left to right.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}

	xs := make([]string, 0, len(recs))
	estimate := make([]opts.LineData, 0, len(recs))
	lower := make([]opts.LineData, 0, len(recs))
	upper := make([]opts.LineData, 0, len(recs))
	for _, rec := range recs {
		ts := time.Unix(0, int64(rec.WriteUnix*1e9))
		xs = append(xs, ts.Format("15:04:05"))
		estimate = append(estimate, opts.LineData{Value: rec.EstimateLux})
		lower = append(lower, opts.LineData{Value: rec.LowerLux})
		upper = append(upper, opts.LineData{Value: rec.UpperLux})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lux Estimate", Theme: "dark", Width: "1400px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Illuminance Estimate", Subtitle: fmt.Sprintf("points=%d", len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Lux", NameLocation: "middle", NameGap: 45}),
	)

	line.SetXAxis(xs).
		AddSeries("estimate", estimate).
		AddSeries("lower bound", lower).
		AddSeries("upper bound", upper)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleBoundsChart renders a scatter of the live evidence: one point
// per unexpired bound, x = seconds until expiry, y = lux, coloured by
// confidence.
func (cs *ChartServer) handleBoundsChart(w http.ResponseWriter, r *http.Request) {
	if cs.feed == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no feed attached for live bounds")
		return
	}

	lowerBounds, upperBounds := cs.feed.Bounds()
	if len(lowerBounds)+len(upperBounds) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no live evidence to chart")
		return
	}

	now := time.Now()
	maxHorizon := 0.0
	maxLux := 0.0
	points := func(bounds []luxfeed.Bound) []opts.ScatterData {
		data := make([]opts.ScatterData, 0, len(bounds))
		for _, b := range bounds {
			remaining := b.End.Sub(now).Seconds()
			if remaining < 0 {
				remaining = 0
			}
			if remaining > maxHorizon {
				maxHorizon = remaining
			}
			if b.Lux > maxLux {
				maxLux = b.Lux
			}
			data = append(data, opts.ScatterData{Value: []interface{}{remaining, b.Lux, int(b.Confidence)}})
		}
		return data
	}
	lowerPts := points(lowerBounds)
	upperPts := points(upperBounds)

	// Pad the axes so edge points stay visible.
	xPad := maxHorizon * 1.05
	if xPad == 0 {
		xPad = 1.0
	}
	yPad := maxLux * 1.05
	if yPad == 0 {
		yPad = 1.0
	}

	est := cs.feed.EstimateNow()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Live Bounds", Theme: "dark", Width: "1400px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Live Evidence", Subtitle: fmt.Sprintf("estimate=%.0f lx samples=%d", est.Lux, est.SampleCount)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: xPad, Name: "Seconds until expiry", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: yPad, Name: "Lux", NameLocation: "middle", NameGap: 45}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        3,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)

	scatter.AddSeries("lower", lowerPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	scatter.AddSeries("upper", upperPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCountersChart renders a bar chart of the process counters.
func (cs *ChartServer) handleCountersChart(w http.ResponseWriter, r *http.Request) {
	snap := monitoring.Snapshot()

	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	x := make([]string, 0, len(keys))
	y := make([]opts.BarData, 0, len(keys))
	for _, k := range keys {
		x = append(x, strings.TrimPrefix(k, "luxmeter_"))
		y = append(y, opts.BarData{Value: snap[k]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Pipeline Counters", Subtitle: time.Now().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("counters", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePlots lists rendered PNG timelines (GET) or renders a new one
// from stored estimates (POST).
// POST query params:
//   - hours (optional; default 24, max 720) how far back to chart
//   - name (optional) output file name without extension
func (cs *ChartServer) handlePlots(w http.ResponseWriter, r *http.Request) {
	if cs.plotter == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no plotter configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		paths, err := cs.plotter.ListPlots()
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list plots: %v", err))
			return
		}
		if paths == nil {
			paths = []string{}
		}
		httputil.WriteJSONOK(w, paths)
	case http.MethodPost:
		cs.renderPlot(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (cs *ChartServer) renderPlot(w http.ResponseWriter, r *http.Request) {
	if cs.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured for estimate history")
		return
	}

	hours := 24.0
	if h := r.URL.Query().Get("hours"); h != "" {
		v, err := strconv.ParseFloat(h, 64)
		if err != nil || v <= 0 || v > 720 {
			httputil.BadRequest(w, "'hours' must be a number in (0, 720]")
			return
		}
		hours = v
	}

	name := r.URL.Query().Get("name")
	if name != "" && (name != filepath.Base(name) || strings.HasPrefix(name, ".")) {
		httputil.BadRequest(w, "'name' must be a bare file name")
		return
	}

	endUnix := float64(time.Now().UnixNano()) / 1e9
	startUnix := endUnix - hours*3600

	recs, err := cs.db.EstimatesRange(startUnix, endUnix, "", 100000)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load estimates: %v", err))
		return
	}
	if len(recs) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no estimates in range")
		return
	}

	path, err := cs.plotter.RenderTimeline(recs, name)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"path":   path,
		"points": len(recs),
	})
}
