package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"disaster-alerts-go/internal/models"
)

const (
	SourceOpenWeather     = "openweather"
	defaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/onecall"
)

type openWeatherResponse struct {
	Alerts []struct {
		SenderName  string   `json:"sender_name"`
		Event       string   `json:"event"`
		Start       int64    `json:"start"` // epoch seconds
		End         int64    `json:"end"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	} `json:"alerts"`
}

// OpenWeather reads severe-weather alerts around a point. Without an API key
// it contributes nothing.
type OpenWeather struct {
	url    string
	ua     string
	apiKey string
	client *http.Client
}

func NewOpenWeather(baseURL, ua, apiKey string, client *http.Client) *OpenWeather {
	if baseURL == "" {
		baseURL = defaultOpenWeatherURL
	}
	return &OpenWeather{url: baseURL, ua: ua, apiKey: strings.TrimSpace(apiKey), client: client}
}

func (s *OpenWeather) Name() string { return SourceOpenWeather }

func (s *OpenWeather) Fetch(ctx context.Context, p Params) ([]models.NormalizedAlert, error) {
	if s.apiKey == "" {
		return []models.NormalizedAlert{}, nil
	}

	u, err := url.Parse(s.url)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("lat", p.Lat)
	q.Set("lon", p.Lon)
	q.Set("exclude", "current,minutely,hourly,daily")
	q.Set("appid", s.apiKey)
	u.RawQuery = q.Encode()

	var resp openWeatherResponse
	if err := getJSON(ctx, s.client, u.String(), s.ua, &resp); err != nil {
		return nil, err
	}

	alerts := make([]models.NormalizedAlert, 0, len(resp.Alerts))
	for i, w := range resp.Alerts {
		a := models.NormalizedAlert{
			ID:          strings.Join([]string{SourceOpenWeather, p.Lat, p.Lon, strconv.Itoa(i), w.Event}, ":"),
			Source:      SourceOpenWeather,
			Type:        "weather",
			Title:       w.Event,
			Description: firstNonEmpty(w.Description, strings.Join(w.Tags, ", ")),
			Sender:      w.SenderName,
		}
		if w.Start > 0 {
			a.Start = isoTime(time.Unix(w.Start, 0))
		}
		if w.End > 0 {
			a.End = isoTime(time.Unix(w.End, 0))
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
