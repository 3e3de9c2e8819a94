package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lamim/inqsweep/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", NewTracker(), testLogger())
	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(":0", NewTracker(), testLogger())
	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}

func TestSweepSnapshot(t *testing.T) {
	tracker := NewTracker()
	s := NewServer(":0", tracker, testLogger())

	if rec := get(t, s, "/sweep"); rec.Code != http.StatusNotFound {
		t.Errorf("before publish: status = %d, want 404", rec.Code)
	}

	cutoff := models.NewQuantity(10, "Ha")
	tracker.Publish(models.SweepSnapshot{
		SweepID:        "sweep-1",
		Phase:          models.PhaseKSpacing,
		Stage:          models.StageKSpacing,
		SelectedCutoff: &cutoff,
		Trials: []models.TrialHandle{
			{Label: "kspacing_0.2", Stage: models.StageKSpacing, Status: models.TrialRunning},
			{Label: "kspacing_0.1", Stage: models.StageKSpacing, Status: models.TrialSucceeded},
		},
	})

	rec := get(t, s, "/sweep")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.SweepSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SweepID != "sweep-1" || got.Phase != models.PhaseKSpacing || len(got.Trials) != 2 {
		t.Errorf("snapshot = %+v", got)
	}

	tests := []struct {
		path       string
		wantCode   int
		wantStatus models.TrialStatus
	}{
		{"/sweep/trials/kspacing_0.1", http.StatusOK, models.TrialSucceeded},
		{"/sweep/trials/kspacing_0.2", http.StatusOK, models.TrialRunning},
		{"/sweep/trials/cutoff_8_Ha", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, s, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var h models.TrialHandle
			if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if h.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", h.Status, tt.wantStatus)
			}
		})
	}
}

func TestListenAddressInUse(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	if second, err := Listen(ln.Addr().String()); err == nil {
		second.Close()
		t.Fatalf("Listen(%s) succeeded on a bound address", ln.Addr())
	}
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	s := NewServer(ln.Addr().String(), NewTracker(), testLogger())

	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve() after Shutdown error = %v, want nil", err)
	}
}

func TestTrackerCopiesTrials(t *testing.T) {
	tracker := NewTracker()
	trials := []models.TrialHandle{{Label: "cutoff_8_Ha", Status: models.TrialRunning}}
	tracker.Publish(models.SweepSnapshot{Trials: trials})

	trials[0].Status = models.TrialFailed

	got, ok := tracker.Latest()
	if !ok {
		t.Fatal("Latest() returned nothing")
	}
	want := []models.TrialHandle{{Label: "cutoff_8_Ha", Status: models.TrialRunning}}
	if diff := cmp.Diff(want, got.Trials); diff != "" {
		t.Errorf("Trials mismatch (-want +got):\n%s", diff)
	}
}
