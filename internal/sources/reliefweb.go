package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"disaster-alerts-go/internal/models"
)

const (
	SourceReliefWeb     = "reliefweb"
	defaultReliefWebURL = "https://api.reliefweb.int/v1/disasters"
	reliefWebAppName    = "disaster-alerts-go"
)

type reliefWebResponse struct {
	Data []struct {
		ID     any `json:"id"`
		Fields struct {
			Name        string          `json:"name"`
			Title       string          `json:"title"`
			Description string          `json:"description"`
			URL         string          `json:"url"`
			Date        json.RawMessage `json:"date"`
		} `json:"fields"`
	} `json:"data"`
}

// ReliefWeb reads the most recent disasters from the ReliefWeb API.
type ReliefWeb struct {
	url    string
	ua     string
	limit  int
	client *http.Client
}

func NewReliefWeb(baseURL, ua string, limit int, client *http.Client) *ReliefWeb {
	if baseURL == "" {
		baseURL = defaultReliefWebURL
	}
	if limit <= 0 {
		limit = 10
	}
	return &ReliefWeb{url: baseURL, ua: ua, limit: limit, client: client}
}

func (s *ReliefWeb) Name() string { return SourceReliefWeb }

func (s *ReliefWeb) Fetch(ctx context.Context, _ Params) ([]models.NormalizedAlert, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("appname", reliefWebAppName)
	q.Set("sort[]", "date:desc")
	q.Set("limit", strconv.Itoa(s.limit))
	for _, f := range []string{"name", "description", "url", "date"} {
		q.Add("fields[include][]", f)
	}
	u.RawQuery = q.Encode()

	var resp reliefWebResponse
	if err := getJSON(ctx, s.client, u.String(), s.ua, &resp); err != nil {
		return nil, err
	}

	alerts := make([]models.NormalizedAlert, 0, len(resp.Data))
	for _, d := range resp.Data {
		id := idString(d.ID)
		link := d.Fields.URL
		if link == "" {
			link = "https://reliefweb.int/disaster/" + id
		}
		a := models.NormalizedAlert{
			ID:          SourceReliefWeb + ":" + id,
			Source:      SourceReliefWeb,
			Type:        "report",
			Title:       firstNonEmpty(d.Fields.Name, d.Fields.Title, "ReliefWeb item"),
			Description: d.Fields.Description,
			Link:        link,
		}
		if t, ok := reliefWebDate(d.Fields.Date); ok {
			a.Published = isoTime(t)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// reliefWebDate accepts either a plain timestamp string or the API's date
// object, preferring its "created" member.
func reliefWebDate(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		t, err := parseTimeFlexible(s)
		return t, err == nil
	}

	var obj map[string]any
	if json.Unmarshal(raw, &obj) == nil {
		for _, key := range []string{"created", "original", "event"} {
			if v, _ := obj[key].(string); v != "" {
				if t, err := parseTimeFlexible(v); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}
