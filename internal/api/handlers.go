package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldsense/lux.report/internal/httputil"
	"github.com/fieldsense/lux.report/internal/luxdb"
	"github.com/fieldsense/lux.report/internal/luxfeed"
	"github.com/fieldsense/lux.report/internal/monitoring"
	"github.com/fieldsense/lux.report/internal/units"
	"github.com/fieldsense/lux.report/internal/version"
)

// parseTimeParam accepts either an RFC3339 timestamp or unix seconds
// with an optional fractional part.
func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or unix seconds, got %q", v)
	}
	return time.Unix(0, int64(sec*1e9)), nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// EstimateResponse is the wire form of a point estimate.
type EstimateResponse struct {
	Time        time.Time `json:"time"`
	Lux         float64   `json:"lux"`
	LowerLux    float64   `json:"lower_lux"`
	UpperLux    float64   `json:"upper_lux"`
	SampleCount int       `json:"sample_count"`
	Units       string    `json:"units"`
}

func (s *Server) showEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	est := s.feed.EstimateNow()
	if tq := r.URL.Query().Get("t"); tq != "" {
		t, err := parseTimeParam(tq)
		if err != nil {
			httputil.BadRequest(w, "Invalid 't' parameter")
			return
		}
		est = s.feed.EstimateAt(t)
	}
	monitoring.EstimatesServed.Add(1)

	est = s.convertEstimate(est)
	httputil.WriteJSONOK(w, EstimateResponse{
		Time:        est.Time,
		Lux:         est.Lux,
		LowerLux:    est.LowerLux,
		UpperLux:    est.UpperLux,
		SampleCount: est.SampleCount,
		Units:       s.units,
	})
}

// BoundsResponse lists the live floor and ceiling samples.
type BoundsResponse struct {
	Lower []luxfeed.Bound `json:"lower"`
	Upper []luxfeed.Bound `json:"upper"`
	Units string          `json:"units"`
}

func (s *Server) showBounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	lower, upper := s.feed.Bounds()
	httputil.WriteJSONOK(w, BoundsResponse{
		Lower: s.convertBounds(lower),
		Upper: s.convertBounds(upper),
		Units: s.units,
	})
}

// historyParams holds the shared query parameters of the history
// endpoints. hasRange is false when no start/end was given.
type historyParams struct {
	start, end float64
	session    string
	limit      int
	hasRange   bool
}

func parseHistoryParams(r *http.Request) (historyParams, error) {
	q := r.URL.Query()
	var p historyParams
	p.session = q.Get("session")

	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 {
			return p, fmt.Errorf("invalid 'limit' parameter")
		}
		p.limit = limit
	}

	startQ, endQ := q.Get("start"), q.Get("end")
	if (startQ == "") != (endQ == "") {
		return p, fmt.Errorf("'start' and 'end' must be given together")
	}
	if startQ == "" {
		return p, nil
	}

	st, err := parseTimeParam(startQ)
	if err != nil {
		return p, fmt.Errorf("invalid 'start' parameter")
	}
	en, err := parseTimeParam(endQ)
	if err != nil {
		return p, fmt.Errorf("invalid 'end' parameter")
	}
	p.start, p.end, p.hasRange = unixSeconds(st), unixSeconds(en), true
	return p, nil
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	p, err := parseHistoryParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var recs []luxdb.SampleRecord
	if p.hasRange {
		recs, err = s.db.SamplesRange(p.start, p.end, p.session, p.limit)
	} else {
		recs, err = s.db.RecentSamples(p.limit)
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}

	for i := range recs {
		recs[i].Lux = units.ConvertIlluminance(recs[i].Lux, s.units)
	}
	httputil.WriteJSONOK(w, recs)
}

func (s *Server) listEstimates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	p, err := parseHistoryParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var recs []luxdb.EstimateRecord
	if p.hasRange {
		recs, err = s.db.EstimatesRange(p.start, p.end, p.session, p.limit)
	} else {
		recs, err = s.db.RecentEstimates(p.limit)
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve estimates: %v", err))
		return
	}

	for i := range recs {
		recs[i].EstimateLux = units.ConvertIlluminance(recs[i].EstimateLux, s.units)
		recs[i].LowerLux = units.ConvertIlluminance(recs[i].LowerLux, s.units)
		recs[i].UpperLux = units.ConvertIlluminance(recs[i].UpperLux, s.units)
	}
	httputil.WriteJSONOK(w, recs)
}

// startSessionRequest is the POST /api/sessions body.
type startSessionRequest struct {
	Source string `json:"source"`
	Notes  string `json:"notes"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSessions(w, r)
	case http.MethodPost:
		s.startSession(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	// An empty body starts an untagged session.
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.BadRequest(w, "Invalid session request body")
		return
	}

	active, err := s.db.ActiveSession()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to check active session: %v", err))
		return
	}
	if active != nil {
		httputil.WriteJSONError(w, http.StatusConflict,
			fmt.Sprintf("Session %s is already active; end it first", active.ID))
		return
	}

	sess, err := s.db.StartSession(req.Source, req.Notes)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to start session: %v", err))
		return
	}
	s.feed.SetSession(sess.ID)
	httputil.WriteJSON(w, http.StatusCreated, sess)
}

func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	active, err := s.db.ActiveSession()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to check active session: %v", err))
		return
	}
	if active == nil {
		httputil.NotFound(w, "No active session")
		return
	}

	if err := s.db.EndSession(active.ID); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to end session: %v", err))
		return
	}
	s.feed.SetSession("")

	ended, err := s.db.SessionByID(active.ID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to reload session: %v", err))
		return
	}
	httputil.WriteJSONOK(w, ended)
}

// RollupResponse is the wire form of an estimate rollup.
type RollupResponse struct {
	Metrics   []luxdb.RollupBucket `json:"metrics"`
	Histogram []luxdb.HistogramBin `json:"histogram,omitempty"`
	Units     string               `json:"units"`
}

func (s *Server) showRollup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	startQ, endQ := q.Get("start"), q.Get("end")
	if startQ == "" || endQ == "" {
		httputil.BadRequest(w, "'start' and 'end' parameters are required")
		return
	}
	st, err := parseTimeParam(startQ)
	if err != nil {
		httputil.BadRequest(w, "Invalid 'start' parameter")
		return
	}
	en, err := parseTimeParam(endQ)
	if err != nil {
		httputil.BadRequest(w, "Invalid 'end' parameter")
		return
	}

	interval := int64(60)
	if iv := q.Get("interval"); iv != "" {
		parsed, err := strconv.ParseInt(iv, 10, 64)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'interval' parameter")
			return
		}
		interval = parsed
	}

	var bucket, histMax float64
	if b := q.Get("bucket"); b != "" {
		if bucket, err = strconv.ParseFloat(b, 64); err != nil || bucket <= 0 {
			httputil.BadRequest(w, "Invalid 'bucket' parameter")
			return
		}
	}
	if hm := q.Get("hist_max"); hm != "" {
		if histMax, err = strconv.ParseFloat(hm, 64); err != nil || histMax <= 0 {
			httputil.BadRequest(w, "Invalid 'hist_max' parameter")
			return
		}
	}

	result, err := s.db.EstimateRollupRange(unixSeconds(st), unixSeconds(en), interval, bucket, histMax)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to compute rollup: %v", err))
		return
	}

	resp := RollupResponse{
		Metrics:   result.Metrics,
		Histogram: result.HistogramBins(),
		Units:     s.units,
	}
	for i := range resp.Metrics {
		m := &resp.Metrics[i]
		m.MeanLux = units.ConvertIlluminance(m.MeanLux, s.units)
		m.StddevLux = units.ConvertIlluminance(m.StddevLux, s.units)
		m.MinLux = units.ConvertIlluminance(m.MinLux, s.units)
		m.MaxLux = units.ConvertIlluminance(m.MaxLux, s.units)
		m.P50Lux = units.ConvertIlluminance(m.P50Lux, s.units)
		m.P95Lux = units.ConvertIlluminance(m.P95Lux, s.units)
	}
	for i := range resp.Histogram {
		resp.Histogram[i].BucketLux = units.ConvertIlluminance(resp.Histogram[i].BucketLux, s.units)
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units": s.units,
	})
}

// StatsResponse reports live feed state alongside stored totals.
type StatsResponse struct {
	Session     string           `json:"session,omitempty"`
	LiveSamples int              `json:"live_samples"`
	Counters    map[string]int64 `json:"counters"`
	Data        luxdb.DataRange  `json:"data"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	dataRange, err := s.db.LuxDataRange()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve data range: %v", err))
		return
	}
	httputil.WriteJSONOK(w, StatsResponse{
		Session:     s.feed.Session(),
		LiveSamples: s.feed.Size(),
		Counters:    monitoring.Snapshot(),
		Data:        *dataRange,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
