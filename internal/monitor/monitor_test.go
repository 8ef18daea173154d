package monitor

import (
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fieldsense/lux.report/internal/fsutil"
	"github.com/fieldsense/lux.report/internal/luxdb"
	"github.com/fieldsense/lux.report/internal/luxfeed"
	"github.com/fieldsense/lux.report/internal/photometer"
	"github.com/fieldsense/lux.report/internal/testutil"
	"github.com/fieldsense/lux.report/internal/timeutil"
)

var testEpoch = time.Unix(1700000000, 0).UTC()

type chartFixture struct {
	cs    *ChartServer
	mux   *http.ServeMux
	db    *luxdb.DB
	proc  *luxfeed.Processor
	clock *timeutil.MockClock
	mfs   *fsutil.MemoryFileSystem
}

func newChartFixture(t *testing.T) *chartFixture {
	t.Helper()

	db, err := luxdb.OpenAndMigrate(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := timeutil.NewMockClock(testEpoch)
	proc := luxfeed.NewProcessor(luxfeed.ProcessorConfig{
		Store: db,
		Clock: clock,
	})

	mfs := fsutil.NewMemoryFileSystem()
	cs := NewChartServer(db, proc, NewLuxPlotter(mfs, "plots"))
	mux := http.NewServeMux()
	cs.AttachChartRoutes(mux)

	return &chartFixture{cs: cs, mux: mux, db: db, proc: proc, clock: clock, mfs: mfs}
}

func (f *chartFixture) seedEstimates(t *testing.T, n int) {
	t.Helper()
	base := float64(testEpoch.Unix())
	for i := 0; i < n; i++ {
		err := f.db.RecordEstimate(luxdb.EstimateRecord{
			WriteUnix:   base + float64(i),
			EstimateLux: 50000 + float64(i)*100,
			LowerLux:    20000,
			UpperLux:    80000,
			SampleCount: 2,
		})
		if err != nil {
			t.Fatalf("RecordEstimate failed: %v", err)
		}
	}
}

func floorFrame() [photometer.PacketSize]byte {
	return photometer.PackRaw(2, false, -16, photometer.Lower, 5).Bytes()
}

func ceilingFrame() [photometer.PacketSize]byte {
	return photometer.PackRaw(2, false, 14, photometer.Upper, 15).Bytes()
}

func TestDashboard(t *testing.T) {
	f := newChartFixture(t)

	req := testutil.NewTestRequest(http.MethodGet, "/charts")
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"/charts/estimates", "/charts/bounds", "/charts/counters", "lx"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboardUnknownPath(t *testing.T) {
	f := newChartFixture(t)

	req := testutil.NewTestRequest(http.MethodGet, "/charts/unknown")
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestEstimateChartEmpty(t *testing.T) {
	f := newChartFixture(t)

	req := testutil.NewTestRequest(http.MethodGet, "/charts/estimates")
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	if !strings.Contains(rec.Body.String(), "no estimates recorded") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestEstimateChart(t *testing.T) {
	f := newChartFixture(t)
	f.seedEstimates(t, 3)

	req := testutil.NewTestRequest(http.MethodGet, "/charts/estimates")
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("chart page does not reference echarts")
	}
}

func TestBoundsChartNoEvidence(t *testing.T) {
	f := newChartFixture(t)

	req := testutil.NewTestRequest(http.MethodGet, "/charts/bounds")
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestBoundsChart(t *testing.T) {
	f := newChartFixture(t)
	if err := f.proc.HandleFrame(floorFrame(), f.clock.Now()); err != nil {
		t.Fatal(err)
	}
	if err := f.proc.HandleFrame(ceilingFrame(), f.clock.Now()); err != nil {
		t.Fatal(err)
	}

	req := testutil.NewTestRequest(http.MethodGet, "/charts/bounds")
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("chart page does not reference echarts")
	}
}

func TestCountersChart(t *testing.T) {
	f := newChartFixture(t)

	req := testutil.NewTestRequest(http.MethodGet, "/charts/counters")
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("chart page does not reference echarts")
	}
}

func TestPlotsLifecycle(t *testing.T) {
	f := newChartFixture(t)

	// Empty listing first.
	req := testutil.NewTestRequest(http.MethodGet, "/charts/plots")
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var paths []string
	testutil.DecodeJSON(t, rec, &paths)
	if len(paths) != 0 {
		t.Errorf("expected empty listing, got %v", paths)
	}

	// Rendering with no stored estimates fails.
	req = testutil.NewTestRequest(http.MethodPost, "/charts/plots")
	rec = testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	f.seedEstimates(t, 4)

	req = testutil.NewTestRequest(http.MethodPost, "/charts/plots?name=run1&hours=720")
	rec = testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp struct {
		Path   string `json:"path"`
		Points int    `json:"points"`
	}
	testutil.DecodeJSON(t, rec, &resp)
	if resp.Path != "plots/run1.png" || resp.Points != 4 {
		t.Errorf("render response = %+v", resp)
	}
	if !f.mfs.Exists(resp.Path) {
		t.Error("rendered plot missing from filesystem")
	}

	req = testutil.NewTestRequest(http.MethodGet, "/charts/plots")
	rec = testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	paths = nil
	testutil.DecodeJSON(t, rec, &paths)
	if len(paths) != 1 || paths[0] != "plots/run1.png" {
		t.Errorf("listing = %v", paths)
	}

	req = testutil.NewTestRequest(http.MethodDelete, "/charts/plots")
	rec = testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestPlotsBadParams(t *testing.T) {
	f := newChartFixture(t)
	f.seedEstimates(t, 2)

	for _, query := range []string{
		"?hours=0",
		"?hours=-3",
		"?hours=9001",
		"?hours=soon",
		"?name=../evil",
		"?name=.hidden",
	} {
		req := testutil.NewTestRequest(http.MethodPost, "/charts/plots"+query)
		rec := testutil.NewTestRecorder()
		f.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST /charts/plots%s status = %d, want 400", query, rec.Code)
		}
	}
}

func TestChartServerNilPieces(t *testing.T) {
	cs := NewChartServer(nil, nil, nil)
	mux := http.NewServeMux()
	cs.AttachChartRoutes(mux)

	cases := []struct {
		path string
		want int
	}{
		{"/charts", http.StatusOK},
		{"/charts/estimates", http.StatusInternalServerError},
		{"/charts/bounds", http.StatusInternalServerError},
		{"/charts/plots", http.StatusNotFound},
	}
	for _, c := range cases {
		req := testutil.NewTestRequest(http.MethodGet, c.path)
		rec := testutil.NewTestRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("GET %s status = %d, want %d", c.path, rec.Code, c.want)
		}
	}
}
