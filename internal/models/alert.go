package models

import (
	"strings"
	"time"
)

const externalCreatorPrefix = "external:"

// NormalizedAlert is the common shape every upstream source is mapped into.
// Source-specific attributes are optional and passed through as-is.
type NormalizedAlert struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Link        string     `json:"link,omitempty"`
	Published   *time.Time `json:"published"`

	Magnitude *float64   `json:"magnitude,omitempty"`
	Coords    []float64  `json:"coords,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Sender    string     `json:"sender,omitempty"`
}

// PublishedMillis returns the publish time in epoch milliseconds, 0 when unknown.
func (a NormalizedAlert) PublishedMillis() int64 {
	if a.Published == nil {
		return 0
	}
	return a.Published.UnixMilli()
}

// StoredAlert is the persisted alert record. Machine-ingested alerts carry an
// ExternalID; alerts created by staff carry their user id in CreatedBy.
type StoredAlert struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	CreatedBy   string     `json:"createdBy"`
	ExternalID  string     `json:"externalId,omitempty"`
	Source      string     `json:"source,omitempty"`
	Link        string     `json:"link,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewStoredAlert maps a fetched alert onto its persisted form.
func NewStoredAlert(a NormalizedAlert) StoredAlert {
	start := a.Start
	if start == nil {
		start = a.Published
	}
	return StoredAlert{
		Title:       a.Title,
		Description: a.Description,
		StartTime:   start,
		EndTime:     a.End,
		CreatedBy:   ExternalCreator(a.Source),
		ExternalID:  a.ID,
		Source:      a.Source,
		Link:        a.Link,
	}
}

// ExternalCreator returns the createdBy tag used for alerts ingested from source.
func ExternalCreator(source string) string {
	return externalCreatorPrefix + source
}

func (a StoredAlert) IsExternal() bool {
	return strings.HasPrefix(a.CreatedBy, externalCreatorPrefix)
}
