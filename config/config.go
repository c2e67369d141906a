// Package config loads and validates the controller's static policy
// inputs from a JSON file, translating them into a domain.SimulationConfig
// plus the ambient settings (intervals, provider credentials) the control
// loop and its collaborators need.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fennerhome/batteryctl/domain"
)

// MarketProvider is one day-ahead price provider entry, tried in
// ascending Priority order; each priority must be unique.
type MarketProvider struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// Config is the root JSON document read at startup.
type Config struct {
	Battery struct {
		CapacityKwh        float64 `json:"capacity_kwh"`
		MaxChargePowerW    float64 `json:"max_charge_power_w"`
		MaxChargePowerSolarW float64 `json:"max_charge_power_solar_w"`
		MaxDischargePowerW float64 `json:"max_discharge_power_w"`
		AutoModeFloorSoc   float64 `json:"auto_mode_floor_soc"`
		MaxChargeSocPercent float64 `json:"max_charge_soc_percent"`
	} `json:"battery"`

	Price struct {
		GridFeeEurPerKwh      float64 `json:"grid_fee_eur_per_kwh"`
		FeedInTariffEurPerKwh float64 `json:"feed_in_tariff_eur_per_kwh"`
	} `json:"price"`

	Logic struct {
		IntervalSeconds   int           `json:"interval_seconds"`
		MinHoldMinutes    int           `json:"min_hold_minutes"`
		HouseLoadW        float64       `json:"house_load_w"`
		AllowBatteryExport bool         `json:"allow_battery_export"`
		WeatherCacheTTL   time.Duration `json:"-"`
		WeatherCacheTTLRaw string       `json:"weather_cache_ttl"`
	} `json:"logic"`

	Solar struct {
		Enabled        bool    `json:"enabled"`
		DirectUseRatio float64 `json:"direct_use_ratio"`
		Latitude       float64 `json:"latitude"`
		Longitude      float64 `json:"longitude"`
		PeakPowerKw    float64 `json:"peak_power_kw"`
		UserAgent      string  `json:"user_agent"`
	} `json:"solar"`

	MarketData []MarketProvider `json:"market_data"`

	Entsoe struct {
		SecurityToken string         `json:"security_token"`
		URLFormat     string         `json:"url_format"`
		TimeZone      string         `json:"time_zone"`
		Location      *time.Location `json:"-"`
	} `json:"entsoe"`

	EVCC struct {
		Enabled   bool          `json:"enabled"`
		BaseURL   string        `json:"base_url"`
		Token     string        `json:"token"`
		TimeoutMs int           `json:"timeout_ms"`
		Timeout   time.Duration `json:"-"`
	} `json:"evcc"`

	Inverter struct {
		Enabled   bool          `json:"enabled"`
		Host      string        `json:"host"`
		User      string        `json:"user"`
		Password  string        `json:"password"`
		VerifyTLS bool          `json:"verify_tls"`
		TimeoutS  int           `json:"timeout_s"`
		Timeout   time.Duration `json:"-"`
	} `json:"inverter"`

	Database struct {
		ConnectionString string `json:"connection_string"`
	} `json:"database"`

	Status struct {
		Port int `json:"port"`
	} `json:"status"`
}

// Default returns a configuration with the conservative defaults
// the control loop needs explicitly (interval and house load).
func Default() *Config {
	c := &Config{}
	c.Logic.IntervalSeconds = 300
	c.Logic.HouseLoadW = 1200
	c.Logic.WeatherCacheTTL = 2 * time.Hour
	c.Battery.AutoModeFloorSoc = 5
	c.Battery.MaxChargeSocPercent = 100
	c.Inverter.VerifyTLS = true
	c.Inverter.TimeoutS = 6
	c.EVCC.TimeoutMs = 15000
	c.Entsoe.TimeZone = "UTC"
	c.Status.Port = 8080
	return c
}

// Load reads and validates configuration from a JSON file.
func Load(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return LoadFromReader(file)
}

// LoadFromReader reads and validates configuration from an io.Reader.
func LoadFromReader(reader io.Reader) (*Config, error) {
	cfg := Default()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if cfg.Logic.WeatherCacheTTLRaw != "" {
		d, err := time.ParseDuration(cfg.Logic.WeatherCacheTTLRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid logic.weather_cache_ttl: %v", domain.ErrInvalidConfig, err)
		}
		cfg.Logic.WeatherCacheTTL = d
	}
	cfg.EVCC.Timeout = time.Duration(cfg.EVCC.TimeoutMs) * time.Millisecond
	cfg.Inverter.Timeout = time.Duration(cfg.Inverter.TimeoutS) * time.Second

	loc, err := time.LoadLocation(cfg.Entsoe.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid entsoe.time_zone: %v", domain.ErrInvalidConfig, err)
	}
	cfg.Entsoe.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the fatal-configuration-error taxonomy:
// capacity must be positive, an enabled inverter must carry credentials,
// and provider priorities must be unique.
func (c *Config) Validate() error {
	if c.Battery.CapacityKwh <= 0 {
		return fmt.Errorf("%w: battery.capacity_kwh must be > 0", domain.ErrInvalidConfig)
	}
	if c.Logic.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: logic.interval_seconds must be > 0", domain.ErrInvalidConfig)
	}
	if c.Inverter.Enabled && (c.Inverter.Host == "" || c.Inverter.User == "" || c.Inverter.Password == "") {
		return fmt.Errorf("%w: inverter is enabled but host/user/password is missing", domain.ErrInvalidConfig)
	}
	if c.Solar.Enabled && (c.Solar.Latitude == 0 && c.Solar.Longitude == 0) {
		return fmt.Errorf("%w: solar is enabled but latitude/longitude is missing", domain.ErrInvalidConfig)
	}
	for _, p := range c.MarketData {
		if p.Name == "entsoe" && c.Entsoe.SecurityToken == "" {
			return fmt.Errorf("%w: market_data provider %q configured but entsoe.security_token is missing", domain.ErrInvalidConfig, p.Name)
		}
	}

	seen := make(map[int]string, len(c.MarketData))
	for _, p := range c.MarketData {
		if existing, ok := seen[p.Priority]; ok {
			return fmt.Errorf("%w: market_data providers %q and %q share priority %d", domain.ErrInvalidConfig, existing, p.Name, p.Priority)
		}
		seen[p.Priority] = p.Name
	}

	return c.SimulationConfig().Validate()
}

// SimulationConfig projects the loaded config onto the core's static
// policy input type.
func (c *Config) SimulationConfig() domain.SimulationConfig {
	return domain.SimulationConfig{
		CapacityKwh:           c.Battery.CapacityKwh,
		MaxChargePowerW:       c.Battery.MaxChargePowerW,
		MaxChargeSolarW:       c.Battery.MaxChargePowerSolarW,
		MaxDischargePowerW:    c.Battery.MaxDischargePowerW,
		FloorSocPercent:       c.Battery.AutoModeFloorSoc,
		MaxChargeSocPercent:   c.Battery.MaxChargeSocPercent,
		GridFeeEurPerKwh:      c.Price.GridFeeEurPerKwh,
		FeedInTariffEurPerKwh: c.Price.FeedInTariffEurPerKwh,
		HouseLoadW:            c.Logic.HouseLoadW,
		DirectUseRatio:        c.Solar.DirectUseRatio,
		AllowBatteryExport:    c.Logic.AllowBatteryExport,
		AllowGridCharge:       c.Battery.MaxChargePowerW > 0,
	}
}

// Interval returns the control loop period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Logic.IntervalSeconds) * time.Second
}

// MinHold returns the advisory minimum time between command changes
// (advisory to the translator only).
func (c *Config) MinHold() time.Duration {
	return time.Duration(c.Logic.MinHoldMinutes) * time.Minute
}

// String renders the config as indented JSON, e.g. for startup logging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// EntsoeProvider returns the market_data entry named "entsoe", if any.
func (c *Config) EntsoeProvider() (MarketProvider, bool) {
	for _, p := range c.MarketData {
		if p.Name == "entsoe" {
			return p, true
		}
	}
	return MarketProvider{}, false
}
