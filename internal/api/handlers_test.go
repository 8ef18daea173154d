package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldsense/lux.report/internal/luxdb"
	"github.com/fieldsense/lux.report/internal/photometer"
	"github.com/fieldsense/lux.report/internal/testutil"
	"github.com/fieldsense/lux.report/internal/units"
)

// floorFrame asserts lux >= 43760 for 0.528 s; with the universal
// ceiling the resulting estimate is 71880 lx.
func floorFrame() [photometer.PacketSize]byte {
	return photometer.PackRaw(2, false, -16, photometer.Lower, 5).Bytes()
}

func ceilingFrame() [photometer.PacketSize]byte {
	return photometer.PackRaw(2, false, 14, photometer.Upper, 15).Bytes()
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestShowEstimateEmpty(t *testing.T) {
	ts := setupTestServer(t)

	req := testutil.NewTestRequest(http.MethodGet, "/api/estimate")
	w := testutil.NewTestRecorder()
	ts.server.showEstimate(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var est EstimateResponse
	if err := json.NewDecoder(w.Body).Decode(&est); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !near(est.Lux, 50000, 1e-9) {
		t.Errorf("expected prior estimate 50000, got %v", est.Lux)
	}
	if est.SampleCount != 0 {
		t.Errorf("expected 0 samples, got %d", est.SampleCount)
	}
	if est.Units != units.LUX {
		t.Errorf("expected units lux, got %q", est.Units)
	}
}

func TestShowEstimateWithEvidence(t *testing.T) {
	ts := setupTestServer(t)

	if err := ts.proc.HandleFrame(floorFrame(), ts.clock.Now()); err != nil {
		t.Fatal(err)
	}

	req := testutil.NewTestRequest(http.MethodGet, "/api/estimate")
	w := testutil.NewTestRecorder()
	ts.server.showEstimate(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var est EstimateResponse
	if err := json.NewDecoder(w.Body).Decode(&est); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !near(est.Lux, 71880, 1e-9) {
		t.Errorf("expected estimate 71880, got %v", est.Lux)
	}
	if est.SampleCount != 1 {
		t.Errorf("expected 1 sample, got %d", est.SampleCount)
	}
}

func TestShowEstimateAsOf(t *testing.T) {
	ts := setupTestServer(t)

	if err := ts.proc.HandleFrame(floorFrame(), ts.clock.Now()); err != nil {
		t.Fatal(err)
	}

	// Inside the 0.528 s validity window the floor binds.
	inside := testEpoch.Add(100 * time.Millisecond).Format(time.RFC3339Nano)
	req := testutil.NewTestRequest(http.MethodGet, "/api/estimate?t="+inside)
	w := testutil.NewTestRecorder()
	ts.server.showEstimate(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var est EstimateResponse
	if err := json.NewDecoder(w.Body).Decode(&est); err != nil {
		t.Fatal(err)
	}
	if !near(est.Lux, 71880, 1e-9) {
		t.Errorf("expected 71880 inside window, got %v", est.Lux)
	}

	// Ten seconds later the evidence has expired.
	req = testutil.NewTestRequest(http.MethodGet, "/api/estimate?t=1700000010")
	w = testutil.NewTestRecorder()
	ts.server.showEstimate(w, req)
	if err := json.NewDecoder(w.Body).Decode(&est); err != nil {
		t.Fatal(err)
	}
	if !near(est.Lux, 50000, 1e-9) {
		t.Errorf("expected prior after expiry, got %v", est.Lux)
	}
}

func TestShowEstimateBadTimeParam(t *testing.T) {
	ts := setupTestServer(t)

	req := testutil.NewTestRequest(http.MethodGet, "/api/estimate?t=yesterday")
	w := testutil.NewTestRecorder()
	ts.server.showEstimate(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestShowEstimateUnitsConversion(t *testing.T) {
	ts := setupTestServerWithUnits(t, units.KLX)

	if err := ts.proc.HandleFrame(floorFrame(), ts.clock.Now()); err != nil {
		t.Fatal(err)
	}

	req := testutil.NewTestRequest(http.MethodGet, "/api/estimate")
	w := testutil.NewTestRecorder()
	ts.server.showEstimate(w, req)

	var est EstimateResponse
	if err := json.NewDecoder(w.Body).Decode(&est); err != nil {
		t.Fatal(err)
	}
	if !near(est.Lux, 71.880, 1e-9) {
		t.Errorf("expected 71.88 klx, got %v", est.Lux)
	}
	if est.Units != units.KLX {
		t.Errorf("expected units klx, got %q", est.Units)
	}
}

func TestShowBounds(t *testing.T) {
	ts := setupTestServer(t)

	if err := ts.proc.HandleFrame(floorFrame(), ts.clock.Now()); err != nil {
		t.Fatal(err)
	}
	if err := ts.proc.HandleFrame(ceilingFrame(), ts.clock.Now()); err != nil {
		t.Fatal(err)
	}

	req := testutil.NewTestRequest(http.MethodGet, "/api/bounds")
	w := testutil.NewTestRecorder()
	ts.server.showBounds(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var bounds BoundsResponse
	if err := json.NewDecoder(w.Body).Decode(&bounds); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(bounds.Lower) != 1 || len(bounds.Upper) != 1 {
		t.Fatalf("expected 1 bound per direction, got %d/%d", len(bounds.Lower), len(bounds.Upper))
	}
	if !near(bounds.Lower[0].Lux, 43760, 1e-9) {
		t.Errorf("expected floor 43760, got %v", bounds.Lower[0].Lux)
	}
	if !near(bounds.Upper[0].Lux, 55460, 1e-9) {
		t.Errorf("expected ceiling 55460, got %v", bounds.Upper[0].Lux)
	}
}

func TestListSamplesRecent(t *testing.T) {
	ts := setupTestServer(t)

	for i := 0; i < 3; i++ {
		captured := testEpoch.Add(time.Duration(i) * time.Second)
		if err := ts.proc.HandleFrame(floorFrame(), captured); err != nil {
			t.Fatal(err)
		}
	}

	req := testutil.NewTestRequest(http.MethodGet, "/api/samples")
	w := testutil.NewTestRecorder()
	ts.server.listSamples(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var recs []luxdb.SampleRecord
	if err := json.NewDecoder(w.Body).Decode(&recs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(recs))
	}
	// Newest first.
	if recs[0].WriteUnix < recs[1].WriteUnix {
		t.Error("expected samples ordered newest first")
	}
}

func TestListSamplesRange(t *testing.T) {
	ts := setupTestServer(t)

	for i := 0; i < 5; i++ {
		captured := testEpoch.Add(time.Duration(i) * time.Second)
		if err := ts.proc.HandleFrame(floorFrame(), captured); err != nil {
			t.Fatal(err)
		}
	}

	req := testutil.NewTestRequest(http.MethodGet, "/api/samples?start=1700000001&end=1700000003")
	w := testutil.NewTestRecorder()
	ts.server.listSamples(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var recs []luxdb.SampleRecord
	if err := json.NewDecoder(w.Body).Decode(&recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("expected 3 samples in range, got %d", len(recs))
	}
}

func TestListSamplesBadParams(t *testing.T) {
	ts := setupTestServer(t)

	cases := []string{
		"/api/samples?start=1700000001",
		"/api/samples?start=bad&end=1700000003",
		"/api/samples?limit=0",
		"/api/samples?limit=x",
	}
	for _, path := range cases {
		req := testutil.NewTestRequest(http.MethodGet, path)
		w := testutil.NewTestRecorder()
		ts.server.listSamples(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestListEstimates(t *testing.T) {
	ts := setupTestServer(t)

	if err := ts.proc.HandleFrame(ceilingFrame(), ts.clock.Now()); err != nil {
		t.Fatal(err)
	}
	if err := ts.proc.FlushEstimate(); err != nil {
		t.Fatal(err)
	}

	req := testutil.NewTestRequest(http.MethodGet, "/api/estimates")
	w := testutil.NewTestRecorder()
	ts.server.listEstimates(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var recs []luxdb.EstimateRecord
	if err := json.NewDecoder(w.Body).Decode(&recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 estimate, got %d", len(recs))
	}
	if !near(recs[0].EstimateLux, 55460.0/2, 1e-9) {
		t.Errorf("expected estimate %v, got %v", 55460.0/2, recs[0].EstimateLux)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	// Start a session.
	req := testutil.NewJSONRequest(http.MethodPost, "/api/sessions", `{"source":"serial","notes":"bench run"}`)
	w := httptest.NewRecorder()
	ts.server.handleSessions(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusCreated)

	var sess luxdb.Session
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if sess.ID == "" || sess.Source != "serial" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if got := ts.proc.Session(); got != sess.ID {
		t.Errorf("expected processor retargeted to %s, got %q", sess.ID, got)
	}

	// A second start conflicts.
	req = testutil.NewJSONRequest(http.MethodPost, "/api/sessions", `{}`)
	w = httptest.NewRecorder()
	ts.server.handleSessions(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusConflict)

	// Rows written now carry the session.
	if err := ts.proc.HandleFrame(floorFrame(), ts.clock.Now()); err != nil {
		t.Fatal(err)
	}

	// List shows it.
	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w = httptest.NewRecorder()
	ts.server.handleSessions(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var sessions []luxdb.Session
	if err := json.NewDecoder(w.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	// End it.
	req = httptest.NewRequest(http.MethodPost, "/api/sessions/end", nil)
	w = httptest.NewRecorder()
	ts.server.endSessionHandler(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var ended luxdb.Session
	if err := json.NewDecoder(w.Body).Decode(&ended); err != nil {
		t.Fatal(err)
	}
	if ended.EndedUnix == nil {
		t.Error("expected ended session to have an end time")
	}
	if ended.SampleCount != 1 {
		t.Errorf("expected 1 sample counted, got %d", ended.SampleCount)
	}
	if got := ts.proc.Session(); got != "" {
		t.Errorf("expected processor detached, got %q", got)
	}

	// Ending again finds nothing.
	req = httptest.NewRequest(http.MethodPost, "/api/sessions/end", nil)
	w = httptest.NewRecorder()
	ts.server.endSessionHandler(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
}

func TestShowRollup(t *testing.T) {
	ts := setupTestServer(t)

	base := 1700000000.0
	for i, lux := range []float64{100, 200, 300, 400} {
		rec := luxdb.EstimateRecord{
			WriteUnix:   base + float64(i*10),
			EstimateLux: lux,
			LowerLux:    lux - 50,
			UpperLux:    lux + 50,
			SampleCount: 2,
		}
		if err := ts.db.RecordEstimate(rec); err != nil {
			t.Fatal(err)
		}
	}

	req := testutil.NewTestRequest(http.MethodGet,
		"/api/rollup?start=1700000000&end=1700000060&interval=60&bucket=100&hist_max=300")
	w := testutil.NewTestRecorder()
	ts.server.showRollup(w, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var resp RollupResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Metrics) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(resp.Metrics))
	}
	if resp.Metrics[0].Count != 4 {
		t.Errorf("expected 4 estimates in bucket, got %d", resp.Metrics[0].Count)
	}
	if !near(resp.Metrics[0].MeanLux, 250, 1e-9) {
		t.Errorf("expected mean 250, got %v", resp.Metrics[0].MeanLux)
	}
	if len(resp.Histogram) != 3 {
		t.Errorf("expected 3 histogram bins, got %d", len(resp.Histogram))
	}
}

func TestShowRollupBadParams(t *testing.T) {
	ts := setupTestServer(t)

	cases := []string{
		"/api/rollup",
		"/api/rollup?start=1700000000",
		"/api/rollup?start=bad&end=1700000060",
		"/api/rollup?start=1700000000&end=1700000060&interval=0",
		"/api/rollup?start=1700000000&end=1700000060&bucket=-5",
		"/api/rollup?start=1700000000&end=1700000060&hist_max=0",
	}
	for _, path := range cases {
		req := testutil.NewTestRequest(http.MethodGet, path)
		w := testutil.NewTestRecorder()
		ts.server.showRollup(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestHistoryMethodNotAllowed(t *testing.T) {
	ts := setupTestServer(t)

	handlers := map[string]func(http.ResponseWriter, *http.Request){
		"/api/estimate": ts.server.showEstimate,
		"/api/bounds":   ts.server.showBounds,
		"/api/samples":  ts.server.listSamples,
		"/api/rollup":   ts.server.showRollup,
		"/api/stats":    ts.server.showStats,
	}
	for path, handler := range handlers {
		req := testutil.NewTestRequest(http.MethodDelete, path)
		w := testutil.NewTestRecorder()
		handler(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", path, w.Code)
		}
	}
}
