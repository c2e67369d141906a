package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalJSON = `{
	"battery": {"capacity_kwh": 10, "max_charge_power_w": 3000, "max_discharge_power_w": 3000, "max_charge_soc_percent": 100},
	"logic": {"interval_seconds": 300, "house_load_w": 500}
}`

func TestLoadFromReader_AppliesDefaultsAndParsesDurations(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalJSON))
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Logic.IntervalSeconds)
	assert.Equal(t, 300*time.Second, cfg.Interval())
	assert.Equal(t, "UTC", cfg.Entsoe.TimeZone)
	assert.NotNil(t, cfg.Entsoe.Location)
	assert.Equal(t, 6, cfg.Inverter.TimeoutS)
}

func TestLoadFromReader_RejectsZeroCapacity(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`{"battery": {"capacity_kwh": 0}, "logic": {"interval_seconds": 60}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity_kwh")
}

func TestLoadFromReader_RejectsDuplicateMarketDataPriority(t *testing.T) {
	raw := `{
		"battery": {"capacity_kwh": 10, "max_charge_soc_percent": 100},
		"logic": {"interval_seconds": 300},
		"market_data": [{"name": "awattar", "priority": 0}, {"name": "tibber", "priority": 0}]
	}`
	_, err := LoadFromReader(strings.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share priority")
}

func TestLoadFromReader_RequiresEntsoeTokenWhenProviderConfigured(t *testing.T) {
	raw := `{
		"battery": {"capacity_kwh": 10, "max_charge_soc_percent": 100},
		"logic": {"interval_seconds": 300},
		"market_data": [{"name": "entsoe", "priority": 0}]
	}`
	_, err := LoadFromReader(strings.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entsoe.security_token")
}

func TestLoadFromReader_RejectsInverterEnabledWithoutCredentials(t *testing.T) {
	raw := `{
		"battery": {"capacity_kwh": 10, "max_charge_soc_percent": 100},
		"logic": {"interval_seconds": 300},
		"inverter": {"enabled": true}
	}`
	_, err := LoadFromReader(strings.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host/user/password")
}

func TestLoadFromReader_RejectsSolarEnabledWithoutCoordinates(t *testing.T) {
	raw := `{
		"battery": {"capacity_kwh": 10, "max_charge_soc_percent": 100},
		"logic": {"interval_seconds": 300},
		"solar": {"enabled": true}
	}`
	_, err := LoadFromReader(strings.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude/longitude")
}

func TestSimulationConfig_DerivesAllowGridChargeFromChargePower(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalJSON))
	require.NoError(t, err)

	sim := cfg.SimulationConfig()
	assert.True(t, sim.AllowGridCharge)
	assert.Equal(t, cfg.Battery.CapacityKwh, sim.CapacityKwh)
}

func TestEntsoeProvider_FindsByName(t *testing.T) {
	cfg := Default()
	cfg.MarketData = []MarketProvider{{Name: "awattar", Priority: 0}, {Name: "entsoe", Priority: 1}}

	provider, ok := cfg.EntsoeProvider()
	require.True(t, ok)
	assert.Equal(t, 1, provider.Priority)
}

func TestEntsoeProvider_NotFound(t *testing.T) {
	cfg := Default()
	_, ok := cfg.EntsoeProvider()
	assert.False(t, ok)
}
