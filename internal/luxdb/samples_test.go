package luxdb

import (
	"strings"
	"testing"

	"github.com/fieldsense/lux.report/internal/photometer"
)

func TestRecordSample_RoundTrip(t *testing.T) {
	db := newTestDB(t)

	rec := SampleRecord{
		WriteUnix:  1700000100.5,
		StartUnix:  1700000100.25,
		EndUnix:    1700000100.778,
		Direction:  "lower",
		Lux:        43760,
		Confidence: 2,
		Clear:      false,
		RawWord:    0x5782,
	}
	if err := db.RecordSample(rec); err != nil {
		t.Fatalf("RecordSample failed: %v", err)
	}

	samples, err := db.RecentSamples(10)
	if err != nil {
		t.Fatalf("RecentSamples failed: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("Expected 1 sample, got %d", len(samples))
	}

	got := samples[0]
	if got.ID == 0 {
		t.Error("Expected autoincrement id to be assigned")
	}
	if got.SessionID != "" {
		t.Errorf("Expected empty session id, got %q", got.SessionID)
	}
	if !almostEqual(got.WriteUnix, rec.WriteUnix) ||
		!almostEqual(got.StartUnix, rec.StartUnix) ||
		!almostEqual(got.EndUnix, rec.EndUnix) {
		t.Errorf("Timestamps mangled: got %+v", got)
	}
	if got.Direction != "lower" || !almostEqual(got.Lux, 43760) {
		t.Errorf("Bound fields mangled: got %+v", got)
	}
	if got.Confidence != 2 || got.Clear || got.RawWord != 0x5782 {
		t.Errorf("Flag fields mangled: got %+v", got)
	}
}

func TestNewSampleRecord_TranslatesTimebase(t *testing.T) {
	raw := photometer.PackRaw(2, false, -16, photometer.Lower, 5)
	sample := raw.At(12.5) // monotonic seconds since daemon start

	const epoch = 1700000000.0
	rec := NewSampleRecord("sess-1", sample, raw, epoch+12.5, epoch)

	if rec.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", rec.SessionID)
	}
	if !almostEqual(rec.StartUnix, epoch+12.5) {
		t.Errorf("StartUnix = %f, want %f", rec.StartUnix, epoch+12.5)
	}
	wantEnd := epoch + 12.5 + raw.HorizonSeconds()
	if !almostEqual(rec.EndUnix, wantEnd) {
		t.Errorf("EndUnix = %f, want %f", rec.EndUnix, wantEnd)
	}
	if rec.Direction != "lower" {
		t.Errorf("Direction = %q, want lower", rec.Direction)
	}
	if !almostEqual(rec.Lux, 43760) {
		t.Errorf("Lux = %f, want 43760", rec.Lux)
	}
	if rec.Confidence != 2 || rec.Clear {
		t.Errorf("Confidence/Clear mangled: %+v", rec)
	}
	if rec.RawWord != uint16(raw) {
		t.Errorf("RawWord = %#04x, want %#04x", rec.RawWord, uint16(raw))
	}
}

func TestRecentSamples_NewestFirst(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		rec := SampleRecord{
			WriteUnix: 1700000000 + float64(i),
			StartUnix: 1700000000 + float64(i),
			EndUnix:   1700000001 + float64(i),
			Direction: "lower",
			Lux:       50000,
		}
		if err := db.RecordSample(rec); err != nil {
			t.Fatalf("RecordSample failed: %v", err)
		}
	}

	samples, err := db.RecentSamples(3)
	if err != nil {
		t.Fatalf("RecentSamples failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(samples))
	}
	if !almostEqual(samples[0].WriteUnix, 1700000004) {
		t.Errorf("Expected newest sample first, got write_unix %f", samples[0].WriteUnix)
	}
	if samples[0].WriteUnix < samples[1].WriteUnix || samples[1].WriteUnix < samples[2].WriteUnix {
		t.Error("Expected samples in descending write order")
	}
}

func TestSamplesRange(t *testing.T) {
	db := newTestDB(t)

	session, err := db.StartSession("udp", "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	base := 1700000000.0
	for i := 0; i < 10; i++ {
		rec := SampleRecord{
			WriteUnix: base + float64(i),
			StartUnix: base + float64(i),
			EndUnix:   base + float64(i) + 1,
			Direction: "upper",
			Lux:       55000,
		}
		// Half in the session, half loose
		if i%2 == 0 {
			rec.SessionID = session.ID
		}
		if err := db.RecordSample(rec); err != nil {
			t.Fatalf("RecordSample failed: %v", err)
		}
	}

	// Window [base+2, base+6] holds writes at 2,3,4,5,6
	got, err := db.SamplesRange(base+2, base+6, "", 0)
	if err != nil {
		t.Fatalf("SamplesRange failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("Expected 5 samples in window, got %d", len(got))
	}
	if !almostEqual(got[0].WriteUnix, base+2) {
		t.Errorf("Expected oldest first, got write_unix %f", got[0].WriteUnix)
	}

	// Session filter keeps only the even offsets: 2, 4, 6
	got, err = db.SamplesRange(base+2, base+6, session.ID, 0)
	if err != nil {
		t.Fatalf("SamplesRange with session failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 session samples in window, got %d", len(got))
	}
	for _, rec := range got {
		if rec.SessionID != session.ID {
			t.Errorf("Expected session %s, got %q", session.ID, rec.SessionID)
		}
	}
}

func TestSamplesRange_Empty(t *testing.T) {
	db := newTestDB(t)

	got, err := db.SamplesRange(0, 1, "", 0)
	if err != nil {
		t.Fatalf("SamplesRange failed: %v", err)
	}
	if got == nil {
		t.Error("Expected empty slice, not nil")
	}
	if len(got) != 0 {
		t.Errorf("Expected no samples, got %d", len(got))
	}
}

func TestRecordSample_UnknownSessionRejected(t *testing.T) {
	db := newTestDB(t)

	rec := SampleRecord{
		SessionID: "no-such-session",
		WriteUnix: 1700000000,
		StartUnix: 1700000000,
		EndUnix:   1700000001,
		Direction: "lower",
		Lux:       50000,
	}
	err := db.RecordSample(rec)
	if err == nil {
		t.Fatal("Expected foreign key violation for unknown session")
	}
	if !strings.Contains(strings.ToUpper(err.Error()), "FOREIGN KEY") {
		t.Errorf("Expected foreign key error, got: %v", err)
	}
}

func TestRecordEstimate_RoundTrip(t *testing.T) {
	db := newTestDB(t)

	rec := EstimateRecord{
		WriteUnix:   1700000042.0,
		EstimateLux: 49610,
		LowerLux:    43760,
		UpperLux:    55460,
		SampleCount: 2,
	}
	if err := db.RecordEstimate(rec); err != nil {
		t.Fatalf("RecordEstimate failed: %v", err)
	}

	estimates, err := db.RecentEstimates(10)
	if err != nil {
		t.Fatalf("RecentEstimates failed: %v", err)
	}
	if len(estimates) != 1 {
		t.Fatalf("Expected 1 estimate, got %d", len(estimates))
	}

	got := estimates[0]
	if !almostEqual(got.EstimateLux, 49610) ||
		!almostEqual(got.LowerLux, 43760) ||
		!almostEqual(got.UpperLux, 55460) {
		t.Errorf("Estimate fields mangled: %+v", got)
	}
	if got.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", got.SampleCount)
	}
}

func TestEstimatesRange(t *testing.T) {
	db := newTestDB(t)

	base := 1700000000.0
	for i := 0; i < 6; i++ {
		rec := EstimateRecord{
			WriteUnix:   base + float64(i)*10,
			EstimateLux: 50000 + float64(i),
		}
		if err := db.RecordEstimate(rec); err != nil {
			t.Fatalf("RecordEstimate failed: %v", err)
		}
	}

	got, err := db.EstimatesRange(base+10, base+40, "", 0)
	if err != nil {
		t.Fatalf("EstimatesRange failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Expected 4 estimates in window, got %d", len(got))
	}
	if !almostEqual(got[0].WriteUnix, base+10) || !almostEqual(got[3].WriteUnix, base+40) {
		t.Errorf("Window edges wrong: first %f last %f", got[0].WriteUnix, got[3].WriteUnix)
	}
}

func TestLuxDataRange(t *testing.T) {
	db := newTestDB(t)

	// Empty database: zero range, zero counts
	r, err := db.LuxDataRange()
	if err != nil {
		t.Fatalf("LuxDataRange failed: %v", err)
	}
	if r.Estimates != 0 || r.Samples != 0 {
		t.Errorf("Expected zero counts on empty database, got %+v", r)
	}
	if r.StartUnix != 0 || r.EndUnix != 0 {
		t.Errorf("Expected zero range on empty database, got %+v", r)
	}

	base := 1700000000.0
	for i := 0; i < 3; i++ {
		if err := db.RecordEstimate(EstimateRecord{WriteUnix: base + float64(i)*5, EstimateLux: 50000}); err != nil {
			t.Fatalf("RecordEstimate failed: %v", err)
		}
	}
	if err := db.RecordSample(SampleRecord{WriteUnix: base, StartUnix: base, EndUnix: base + 1, Direction: "lower", Lux: 50000}); err != nil {
		t.Fatalf("RecordSample failed: %v", err)
	}

	r, err = db.LuxDataRange()
	if err != nil {
		t.Fatalf("LuxDataRange failed: %v", err)
	}
	if !almostEqual(r.StartUnix, base) || !almostEqual(r.EndUnix, base+10) {
		t.Errorf("Range = [%f, %f], want [%f, %f]", r.StartUnix, r.EndUnix, base, base+10)
	}
	if r.Estimates != 3 || r.Samples != 1 {
		t.Errorf("Counts = %d estimates %d samples, want 3 and 1", r.Estimates, r.Samples)
	}
}
