package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fennerhome/batteryctl/domain"
)

type fakeSource struct {
	snap domain.SnapshotPayload
	ok   bool
	err  error
}

func (f fakeSource) LatestSnapshot(ctx context.Context) (domain.SnapshotPayload, bool, error) {
	return f.snap, f.ok, f.err
}

func TestHealthHandler_NoSnapshotIsUnhealthy(t *testing.T) {
	s := New(fakeSource{ok: false}, Location{Latitude: 52.5, Longitude: 13.4}, 1)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	s.healthHandler(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HasData {
		t.Fatal("HasData = true, want false")
	}
}

func TestHealthHandler_WithSnapshotIsHealthy(t *testing.T) {
	snap := domain.SnapshotPayload{Timestamp: time.Now(), Warnings: []string{"stale forecast"}}
	s := New(fakeSource{snap: snap, ok: true}, Location{Latitude: 52.5, Longitude: 13.4}, 1)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	s.healthHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.HasData || len(resp.Warnings) != 1 {
		t.Fatalf("resp = %+v, want HasData and one warning", resp)
	}
}

func TestReadinessHandler_RejectsPost(t *testing.T) {
	s := New(fakeSource{ok: true}, Location{}, 1)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ready", nil)
	s.readinessHandler(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestNew_NonPositivePortDisables(t *testing.T) {
	if s := New(fakeSource{}, Location{}, 0); s != nil {
		t.Fatal("New(port=0) should return nil")
	}
}
