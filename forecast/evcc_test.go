package forecast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEvccClient_FetchState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization header = %q, want Bearer secret", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"battery":{"soc":62.5},"pv":[{"power":1200},{"power":300}],"grid":{"power":-400},"homePower":1100}`))
	}))
	defer server.Close()

	client := NewEvccClient(EvccConfig{BaseURL: server.URL, Token: "secret"})
	state, err := client.FetchState(context.Background())
	if err != nil {
		t.Fatalf("FetchState: %v", err)
	}
	if state.BatterySocPercent != 62.5 {
		t.Errorf("BatterySocPercent = %v, want 62.5", state.BatterySocPercent)
	}
	if state.SolarPowerW != 1500 {
		t.Errorf("SolarPowerW = %v, want 1500 (sum of pv array)", state.SolarPowerW)
	}
	if state.GridPowerW != -400 {
		t.Errorf("GridPowerW = %v, want -400", state.GridPowerW)
	}
}

func TestEvccClient_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewEvccClient(EvccConfig{BaseURL: server.URL})
	_, err := client.FetchState(context.Background())
	if err == nil {
		t.Fatal("expected an error for a 401 response")
	}
	var apiErr *EvccAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *EvccAPIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
}
