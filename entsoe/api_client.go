package entsoe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// apiClient is the bare HTTP client used to fetch a day-ahead publication
// document; it carries nothing configurable beyond the user agent because
// the scheduler only ever calls DownloadPublicationMarketData.
type apiClient struct {
	httpClient *http.Client
	userAgent  string
}

func newAPIClient() *apiClient {
	return &apiClient{
		httpClient: &http.Client{},
		userAgent:  "batteryctl-entsoe/1.0",
	}
}

func (c *apiClient) downloadPublicationMarketData(ctx context.Context, apiURL string) (*PublicationMarketDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, resp.Status)
	}

	doc, err := DecodeEnergyPricesXML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode XML response: %w", err)
	}
	return doc, nil
}

// DownloadPublicationMarketData fetches the day-ahead publication document
// for the local day containing now (in location), and, once the next day's
// auction has cleared (from 13:00 local per ENTSO-E convention), also
// fetches and merges tomorrow's document into the same result.
func DownloadPublicationMarketData(ctx context.Context, securityToken, urlFormat string, location *time.Location) (*PublicationMarketDocument, error) {
	now := time.Now().In(location)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := newAPIClient()
	doc, err := client.downloadPublicationMarketData(ctx, buildPublicationMarketDataURL(securityToken, urlFormat, now))
	if err != nil {
		return nil, err
	}

	if now.Hour() >= 13 {
		tomorrow := now.AddDate(0, 0, 1)
		docNextDay, err := client.downloadPublicationMarketData(ctx, buildPublicationMarketDataURL(securityToken, urlFormat, tomorrow))
		if err != nil {
			return nil, err
		}
		doc = mergePublicationMarketData(doc, docNextDay)
	}

	return doc, nil
}

// buildPublicationMarketDataURL fills securityToken and the UTC
// YYYYMMDDHHmm period bounds for the local day containing now into
// urlFormat.
func buildPublicationMarketDataURL(securityToken, urlFormat string, now time.Time) string {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	periodStart := utcStamp(start)
	periodEnd := utcStamp(start.AddDate(0, 0, 1))
	return fmt.Sprintf(urlFormat, periodStart, periodEnd, securityToken)
}

// utcStamp formats t in the ENTSO-E API's YYYYMMDDHHmm period-boundary format.
func utcStamp(t time.Time) string {
	return t.UTC().Format("200601021504")
}

// mergePublicationMarketData combines two documents' TimeSeries, extending
// the period interval to cover both.
func mergePublicationMarketData(first, second *PublicationMarketDocument) *PublicationMarketDocument {
	if first == nil {
		return second
	}
	if second == nil {
		return first
	}

	merged := *first
	merged.TimeSeries = append(merged.TimeSeries, second.TimeSeries...)
	if len(second.TimeSeries) > 0 && second.PeriodTimeInterval.End.After(merged.PeriodTimeInterval.End) {
		merged.PeriodTimeInterval.End = second.PeriodTimeInterval.End
	}

	return &merged
}
