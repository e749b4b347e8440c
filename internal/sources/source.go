// Package sources adapts upstream disaster feeds into models.NormalizedAlert.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"disaster-alerts-go/internal/config"
	"disaster-alerts-go/internal/models"
)

const defaultUserAgent = "disaster-alerts-go/1.0"

// Params carries the request-scoped inputs adapters may use.
type Params struct {
	Lat          string
	Lon          string
	MinMagnitude float64
}

// Source fetches one upstream feed. Fetch returns an empty slice, not an
// error, when the upstream has nothing matching.
type Source interface {
	Name() string
	Fetch(ctx context.Context, p Params) ([]models.NormalizedAlert, error)
}

// NewFromConfig builds the enabled adapters.
func NewFromConfig(cfg config.Config) []Source {
	client := NewHTTPClient(cfg.Alerts.FetchTimeout)
	sc := cfg.Sources

	var srcs []Source
	if !sc.GDACS.Disabled {
		srcs = append(srcs, NewGDACS(sc.GDACS.URL, userAgent(sc.GDACS), client))
	}
	if !sc.USGS.Disabled {
		srcs = append(srcs, NewUSGS(sc.USGS.URL, userAgent(sc.USGS), client))
	}
	if !sc.ReliefWeb.Disabled {
		srcs = append(srcs, NewReliefWeb(sc.ReliefWeb.URL, userAgent(sc.ReliefWeb), cfg.Alerts.ReliefWebLimit, client))
	}
	if !sc.OpenWeather.Disabled {
		srcs = append(srcs, NewOpenWeather(sc.OpenWeather.URL, userAgent(sc.OpenWeather), cfg.Alerts.OpenWeatherKey, client))
	}
	return srcs
}

func userAgent(sc config.SourceConfig) string {
	if sc.UserAgent != "" {
		return sc.UserAgent
	}
	return defaultUserAgent
}

// NewHTTPClient returns the client shared by all adapters. timeout bounds a
// whole request; dial and TLS handshakes are capped at five seconds.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// getJSON decodes the body of a GET to url into v. Non-2xx is an error.
func getJSON(ctx context.Context, client *http.Client, url, ua string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// isoTime normalizes t to UTC with millisecond precision.
func isoTime(t time.Time) *time.Time {
	u := t.UTC().Truncate(time.Millisecond)
	return &u
}

// parseTimeFlexible accepts RFC3339 and a few common layouts.
func parseTimeFlexible(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05-0700", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time: %s", s)
}

// idString renders a JSON scalar id as text.
func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
