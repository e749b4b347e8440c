// Package ingest persists the aggregated external feed, skipping alerts that
// were stored by an earlier run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"disaster-alerts-go/internal/aggregator"
	"disaster-alerts-go/internal/metrics"
	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/sources"
	"disaster-alerts-go/internal/store"
)

// Feed is the aggregation the writer reads its batch from.
type Feed interface {
	Aggregate(ctx context.Context, p sources.Params) (aggregator.Result, error)
	Refresh(ctx context.Context, p sources.Params) (aggregator.Result, error)
}

// ItemError describes one alert that could not be stored.
type ItemError struct {
	ExternalID string `json:"externalId"`
	Error      string `json:"error"`
}

// Result is the ingestion response body. Alerts that were already stored are
// skipped silently.
type Result struct {
	InsertedCount int                  `json:"insertedCount"`
	Inserted      []models.StoredAlert `json:"inserted"`
	Failed        []ItemError          `json:"failed,omitempty"`
}

type Writer struct {
	feed    Feed
	store   store.AlertStore
	metrics *metrics.Metrics
}

func NewWriter(feed Feed, s store.AlertStore, m *metrics.Metrics) *Writer {
	return &Writer{feed: feed, store: s, metrics: m}
}

// Ingest persists whatever the feed currently reports. With refresh set the
// cache is bypassed first.
func (w *Writer) Ingest(ctx context.Context, p sources.Params, refresh bool) (Result, error) {
	var (
		batch aggregator.Result
		err   error
	)
	if refresh {
		batch, err = w.feed.Refresh(ctx, p)
	} else {
		batch, err = w.feed.Aggregate(ctx, p)
	}
	if err != nil {
		return Result{}, fmt.Errorf("load external alerts: %w", err)
	}
	return w.persist(ctx, batch.Alerts)
}

// persist runs lookup-then-insert one alert at a time so two copies of the
// same external id in one batch cannot both pass the lookup. A failed lookup
// stops the batch; the returned Result still lists what was stored before it.
func (w *Writer) persist(ctx context.Context, batch []models.NormalizedAlert) (Result, error) {
	res := Result{Inserted: []models.StoredAlert{}}

	for _, a := range batch {
		if a.ID == "" {
			continue
		}

		_, err := w.store.FindAlertByExternalID(ctx, a.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			res.InsertedCount = len(res.Inserted)
			return res, fmt.Errorf("lookup %s: %w", a.ID, err)
		}

		stored, err := w.store.InsertAlert(ctx, models.NewStoredAlert(a))
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			log.Printf("Failed to store alert %s: %v", a.ID, err)
			w.metrics.IngestFailed(a.Source)
			res.Failed = append(res.Failed, ItemError{ExternalID: a.ID, Error: err.Error()})
			continue
		}

		w.metrics.Ingested(a.Source)
		res.Inserted = append(res.Inserted, stored)
	}

	res.InsertedCount = len(res.Inserted)
	return res, nil
}
