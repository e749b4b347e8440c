package sources

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"disaster-alerts-go/internal/models"
)

const (
	SourceUSGS     = "usgs"
	defaultUSGSURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_day.geojson"
)

type usgsFeed struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag    *float64 `json:"mag"`
		Place  string   `json:"place"`
		Title  string   `json:"title"`
		Detail string   `json:"detail"`
		URL    string   `json:"url"`
		Time   *int64   `json:"time"` // epoch ms
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// USGS reads the USGS earthquake catalog summary feed.
type USGS struct {
	url    string
	ua     string
	client *http.Client
}

func NewUSGS(url, ua string, client *http.Client) *USGS {
	if url == "" {
		url = defaultUSGSURL
	}
	return &USGS{url: url, ua: ua, client: client}
}

func (s *USGS) Name() string { return SourceUSGS }

// Fetch returns events at or above p.MinMagnitude. Events without a
// magnitude count as magnitude 0.
func (s *USGS) Fetch(ctx context.Context, p Params) ([]models.NormalizedAlert, error) {
	var feed usgsFeed
	if err := getJSON(ctx, s.client, s.url, s.ua, &feed); err != nil {
		return nil, err
	}

	alerts := []models.NormalizedAlert{}
	for _, f := range feed.Features {
		mag := 0.0
		if f.Properties.Mag != nil {
			mag = *f.Properties.Mag
		}
		if mag < p.MinMagnitude {
			continue
		}

		a := models.NormalizedAlert{
			ID:          SourceUSGS + ":" + f.ID,
			Source:      SourceUSGS,
			Type:        "earthquake",
			Title:       "M" + strconv.FormatFloat(mag, 'f', -1, 64) + " - " + f.Properties.Place,
			Description: firstNonEmpty(f.Properties.Title, f.Properties.Detail),
			Link:        f.Properties.URL,
			Magnitude:   f.Properties.Mag,
			Coords:      f.Geometry.Coordinates,
		}
		if f.Properties.Time != nil {
			a.Published = isoTime(time.UnixMilli(*f.Properties.Time))
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
