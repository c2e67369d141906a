// Package inverter drives the physical battery inverter over its local
// HTTP control API: basic-auth credentials, a bounded client timeout, a
// single JSON POST per command, no retries.
package inverter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/fennerhome/batteryctl/command"
)

// Config carries the credentials and network settings for one inverter.
type Config struct {
	Host      string
	User      string
	Password  string
	VerifyTLS bool
	Timeout   time.Duration
}

// Driver sends a translated command to the physical inverter.
type Driver interface {
	Apply(ctx context.Context, cmd command.Command) error
}

// HTTPDriver is the basic-auth HTTP implementation used against the
// inverter's local control API.
type HTTPDriver struct {
	client   *http.Client
	baseURL  string
	user     string
	password string
}

// NewHTTPDriver builds a driver from cfg. A non-verified TLS config is
// accepted for inverters reachable only by IP with a self-signed cert.
func NewHTTPDriver(cfg Config) *HTTPDriver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}

	transport := &http.Transport{}
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPDriver{
		client:   &http.Client{Timeout: timeout, Transport: transport},
		baseURL:  cfg.Host,
		user:     cfg.User,
		password: cfg.Password,
	}
}

type setModeRequest struct {
	Mode          string `json:"mode"`
	SocMinPercent int    `json:"soc_min_percent"`
}

// wireMode maps a command.Kind onto the inverter's two-value mode wire
// contract: Charge and Hold both request manual mode, distinguished by
// soc_min_percent; Auto requests automatic mode.
func wireMode(kind command.Kind) string {
	switch kind {
	case command.KindCharge, command.KindHold:
		return "manual"
	default:
		return "auto"
	}
}

type inverterResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Apply POSTs the command to the inverter's /api/mode endpoint and
// returns an error if the inverter rejects it or is unreachable. There is
// no retry: a failed cycle is logged and picked up again on the next
// control tick.
func (d *HTTPDriver) Apply(ctx context.Context, cmd command.Command) error {
	socMinPercent := cmd.SocMinPercent
	if cmd.Kind == command.KindCharge || cmd.Kind == command.KindHold {
		socMinPercent = cmd.TargetPercent
	}

	body := setModeRequest{
		Mode:          wireMode(cmd.Kind),
		SocMinPercent: socMinPercent,
	}

	req, err := d.newPostJSONRequest(ctx, "api/mode", body)
	if err != nil {
		return fmt.Errorf("build inverter request: %w", err)
	}

	slog.DebugContext(ctx, "dispatching inverter command",
		slog.String("kind", string(cmd.Kind)),
		slog.String("mode", body.Mode),
		slog.Int("soc_min_percent", body.SocMinPercent),
	)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("inverter request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read inverter response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inverter returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed inverterResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("decode inverter response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("inverter rejected command: %s", parsed.Message)
	}

	slog.InfoContext(ctx, "inverter command applied", slog.String("kind", string(cmd.Kind)))
	return nil
}

func (d *HTTPDriver) newPostJSONRequest(ctx context.Context, endpoint string, payload interface{}) (*http.Request, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(d.user, d.password)
	return req, nil
}

// NullDriver discards every command. Used when no inverter is configured
// or when running in dry-run mode.
type NullDriver struct{}

// Apply logs the command it would have sent and returns nil.
func (NullDriver) Apply(ctx context.Context, cmd command.Command) error {
	slog.InfoContext(ctx, "dry run: inverter command not sent",
		slog.String("kind", string(cmd.Kind)),
		slog.Int("soc_min_percent", cmd.SocMinPercent),
		slog.Int("target_percent", cmd.TargetPercent),
	)
	return nil
}
