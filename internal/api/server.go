// Package api serves the daemon's public JSON surface: the live
// estimate, the bound envelope, stored history, recording sessions and
// rollups. Admin and debugging routes live on the separate debug mux.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldsense/lux.report/internal/luxdb"
	"github.com/fieldsense/lux.report/internal/luxfeed"
	"github.com/fieldsense/lux.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// FeedProcessor is the slice of the feed processor the API serves.
// *luxfeed.Processor implements it.
type FeedProcessor interface {
	EstimateNow() luxfeed.Estimate
	EstimateAt(t time.Time) luxfeed.Estimate
	Bounds() (lower, upper []luxfeed.Bound)
	Session() string
	SetSession(id string)
	Size() int
}

type Server struct {
	feed  FeedProcessor
	db    *luxdb.DB
	units string
}

func NewServer(feed FeedProcessor, db *luxdb.DB, displayUnits string) *Server {
	return &Server{
		feed:  feed,
		db:    db,
		units: displayUnits,
	}
}

// convertEstimate rescales an estimate's illuminance fields from lux to
// the server's display units.
func (s *Server) convertEstimate(est luxfeed.Estimate) luxfeed.Estimate {
	est.Lux = units.ConvertIlluminance(est.Lux, s.units)
	est.LowerLux = units.ConvertIlluminance(est.LowerLux, s.units)
	est.UpperLux = units.ConvertIlluminance(est.UpperLux, s.units)
	return est
}

func (s *Server) convertBounds(bounds []luxfeed.Bound) []luxfeed.Bound {
	out := make([]luxfeed.Bound, len(bounds))
	for i, b := range bounds {
		b.Lux = units.ConvertIlluminance(b.Lux, s.units)
		out[i] = b
	}
	return out
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/estimate", s.showEstimate)
	mux.HandleFunc("/api/bounds", s.showBounds)
	mux.HandleFunc("/api/samples", s.listSamples)
	mux.HandleFunc("/api/estimates", s.listEstimates)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/end", s.endSessionHandler)
	mux.HandleFunc("/api/rollup", s.showRollup)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}
