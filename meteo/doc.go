// Package meteo is a small client for the MET Norway Location Forecast
// API's compact endpoint, carrying only the fields the solar estimator
// consumes (timestamps and cloud cover).
//
// Basic usage:
//
//	client := meteo.NewClient("batteryctl/1.0 (ops@example.com)")
//	forecast, err := client.GetCompact(meteo.QueryParams{
//		Location: meteo.Location{Latitude: 59.91, Longitude: 10.75},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	step := forecast.GetWeatherAtTime(time.Now())
//	cover := step.GetCloudCoverage()
package meteo
