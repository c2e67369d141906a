// Command batteryctl runs the battery control loop: it loads the static
// policy configuration, wires up the forecast, persistence, status and
// inverter collaborators, and then ticks the control loop on a
// phase-aligned interval until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fennerhome/batteryctl/config"
	"github.com/fennerhome/batteryctl/control"
	"github.com/fennerhome/batteryctl/forecast"
	"github.com/fennerhome/batteryctl/inverter"
	"github.com/fennerhome/batteryctl/statusapi"
	"github.com/fennerhome/batteryctl/store"
)

func main() {
	configFile := flag.String("config", "config.json", "path to the controller's JSON configuration file")
	dryRun := flag.Bool("dry-run", false, "compute and log plans but never send commands to the inverter")
	once := flag.Bool("once", false, "run a single control cycle and exit, instead of looping forever")
	help := flag.Bool("help", false, "show usage information")
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	logger := log.New(os.Stdout, "[batteryctl] ", log.LstdFlags)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := control.New(cfg.SimulationConfig(), cfg.Interval(), 48*time.Hour, logger)

	if provider, ok := cfg.EntsoeProvider(); ok {
		loop.CostSources = append(loop.CostSources, forecast.NewEntsoeSource(forecast.EntsoeConfig{
			SecurityToken: cfg.Entsoe.SecurityToken,
			URLFormat:     cfg.Entsoe.URLFormat,
			Location:      cfg.Entsoe.Location,
			Provider:      provider.Name,
			Priority:      provider.Priority,
		}))
	}

	if cfg.Solar.Enabled {
		cache := forecast.NewWeatherCache(cfg.Logic.WeatherCacheTTL)
		loop.SolarSources = append(loop.SolarSources, forecast.NewSolarSource(forecast.SolarConfig{
			Latitude:    cfg.Solar.Latitude,
			Longitude:   cfg.Solar.Longitude,
			UserAgent:   cfg.Solar.UserAgent,
			PeakPowerKw: cfg.Solar.PeakPowerKw,
			Provider:    "met-norway",
		}, cache))
	}

	if cfg.EVCC.Enabled {
		loop.LiveState = forecast.NewEvccClient(forecast.EvccConfig{
			BaseURL: cfg.EVCC.BaseURL,
			Token:   cfg.EVCC.Token,
			Timeout: cfg.EVCC.Timeout,
		})
	}

	if cfg.Database.ConnectionString != "" {
		db, err := store.Open(cfg.Database.ConnectionString)
		if err != nil {
			logger.Fatalf("open store: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatalf("migrate store: %v", err)
		}
		loop.Store = db
	}

	if *dryRun || !cfg.Inverter.Enabled {
		loop.Inverter = inverter.NullDriver{}
	} else {
		loop.Inverter = inverter.NewHTTPDriver(inverter.Config{
			Host:      cfg.Inverter.Host,
			User:      cfg.Inverter.User,
			Password:  cfg.Inverter.Password,
			VerifyTLS: cfg.Inverter.VerifyTLS,
			Timeout:   cfg.Inverter.Timeout,
		})
	}

	var status *statusapi.Server
	if loop.Store != nil && cfg.Status.Port > 0 {
		status = statusapi.New(loop.Store, statusapi.Location{
			Latitude:  cfg.Solar.Latitude,
			Longitude: cfg.Solar.Longitude,
		}, cfg.Status.Port)
		loop.Publisher = status
		if err := status.Start(); err != nil {
			logger.Fatalf("start status server: %v", err)
		}
		defer status.Stop(context.Background())
	}

	if *once {
		loop.RunOnce(ctx)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go loop.Run(ctx)

	<-sigChan
	logger.Print("shutting down")
	cancel()
}

func showHelp() {
	fmt.Println("batteryctl - optimal battery charge scheduler")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  batteryctl [options]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  batteryctl -config /etc/batteryctl/config.json")
	fmt.Println("  batteryctl -config config.json -dry-run")
	fmt.Println("  batteryctl -config config.json -once")
}
