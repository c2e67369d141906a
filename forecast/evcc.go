package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EvccAPIError mirrors the typed API error shape used across the pack's
// HTTP clients.
type EvccAPIError struct {
	StatusCode int
	Message    string
}

func (e *EvccAPIError) Error() string {
	return fmt.Sprintf("evcc API error %d: %s", e.StatusCode, e.Message)
}

// EvccConfig configures the home-energy-manager state client.
type EvccConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// EvccClient reads live battery/solar readings from an EVCC-shaped
// /api/state endpoint.
type EvccClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewEvccClient builds a client with a bounded timeout, matching the
// teacher's meteo.Client construction.
func NewEvccClient(cfg EvccConfig) *EvccClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EvccClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
	}
}

// evccState is the subset of EVCC's /api/state response this adapter
// consumes.
type evccState struct {
	Battery struct {
		Soc float64 `json:"soc"`
	} `json:"battery"`
	Pv []struct {
		Power float64 `json:"power"`
	} `json:"pv"`
	Grid struct {
		Power float64 `json:"power"`
	} `json:"grid"`
	HomePower float64 `json:"homePower"`
}

// LiveState is the normalized reading this adapter hands to the control
// loop: current battery SoC plus instantaneous solar/grid/home power.
type LiveState struct {
	BatterySocPercent float64
	SolarPowerW       float64
	GridPowerW        float64
	HomePowerW        float64
}

// FetchState gets the current /api/state and normalizes it.
func (c *EvccClient) FetchState(ctx context.Context) (LiveState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/state", nil)
	if err != nil {
		return LiveState{}, fmt.Errorf("build evcc request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LiveState{}, fmt.Errorf("evcc request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LiveState{}, &EvccAPIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var state evccState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return LiveState{}, fmt.Errorf("decode evcc state: %w", err)
	}

	var solar float64
	for _, pv := range state.Pv {
		solar += pv.Power
	}

	return LiveState{
		BatterySocPercent: state.Battery.Soc,
		SolarPowerW:       solar,
		GridPowerW:        state.Grid.Power,
		HomePowerW:        state.HomePower,
	}, nil
}
