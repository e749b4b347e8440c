package sources

import (
	"context"
	"net/http"

	"github.com/mmcdole/gofeed"

	"disaster-alerts-go/internal/models"
)

const (
	SourceGDACS     = "gdacs"
	defaultGDACSURL = "https://www.gdacs.org/xml/rss.xml"
)

// GDACS reads the Global Disaster Alert and Coordination System RSS feed.
type GDACS struct {
	url    string
	parser *gofeed.Parser
}

func NewGDACS(url, ua string, client *http.Client) *GDACS {
	if url == "" {
		url = defaultGDACSURL
	}
	p := gofeed.NewParser()
	p.Client = client
	p.UserAgent = ua
	return &GDACS{url: url, parser: p}
}

func (s *GDACS) Name() string { return SourceGDACS }

func (s *GDACS) Fetch(ctx context.Context, _ Params) ([]models.NormalizedAlert, error) {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.NormalizedAlert, 0, len(feed.Items))
	for _, it := range feed.Items {
		a := models.NormalizedAlert{
			ID:          SourceGDACS + ":" + firstNonEmpty(it.Link, it.GUID, it.Title),
			Source:      SourceGDACS,
			Type:        "disaster",
			Title:       it.Title,
			Description: firstNonEmpty(it.Description, it.Content),
			Link:        it.Link,
		}
		if it.PublishedParsed != nil {
			a.Published = isoTime(*it.PublishedParsed)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
