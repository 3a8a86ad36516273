// Package export renders scoped indicator and collected-data extracts as
// CSV, either streamed to an HTTP response or archived to S3. Exports
// receive the caller's visibility filter and never widen it.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/platinummonkey/fieldwork/pkg/observability"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

// Exporter produces CSV extracts from the workflow store
type Exporter struct {
	store    *workflow.Store
	archiver *Archiver
	logger   *observability.Logger
}

// NewExporter creates a new Exporter. The archiver is optional; without
// it only streaming exports are available.
func NewExporter(store *workflow.Store, archiver *Archiver, logger *observability.Logger) *Exporter {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Exporter{store: store, archiver: archiver, logger: logger}
}

// WriteIndicatorsCSV writes the indicators matching the filter to w
func (e *Exporter) WriteIndicatorsCSV(ctx context.Context, f workflow.Filter, w io.Writer) error {
	indicators, err := e.store.ListIndicators(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to load indicators for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "program_id", "number", "name", "description", "created_at"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, ind := range indicators {
		record := []string{
			strconv.FormatInt(ind.ID, 10),
			strconv.FormatInt(ind.ProgramID, 10),
			ind.Number,
			ind.Name,
			ind.Description,
			ind.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCollectedDataCSV writes the data points matching the filter to w
func (e *Exporter) WriteCollectedDataCSV(ctx context.Context, f workflow.Filter, w io.Writer) error {
	data, err := e.store.ListCollectedData(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to load collected data for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "indicator_id", "achieved", "description", "collection_date", "created_at"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, d := range data {
		collectionDate := ""
		if d.CollectionDate != nil {
			collectionDate = d.CollectionDate.Format("2006-01-02")
		}
		record := []string{
			strconv.FormatInt(d.ID, 10),
			strconv.FormatInt(d.IndicatorID, 10),
			strconv.FormatFloat(d.Achieved, 'f', -1, 64),
			d.Description,
			collectionDate,
			d.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ArchiveIndicators renders the indicators matching the filter and
// uploads the CSV to the archive bucket. Returns the object key.
func (e *Exporter) ArchiveIndicators(ctx context.Context, f workflow.Filter) (string, error) {
	if e.archiver == nil {
		return "", fmt.Errorf("no archiver configured")
	}
	key := fmt.Sprintf("exports/indicators/%s.csv", time.Now().UTC().Format("2006-01-02T15-04-05"))
	if err := e.archiver.UploadCSV(ctx, key, func(w io.Writer) error {
		return e.WriteIndicatorsCSV(ctx, f, w)
	}); err != nil {
		return "", err
	}
	e.logger.WithField("key", key).Info("archived indicator export")
	return key, nil
}

// ArchiveCollectedData renders the data points matching the filter and
// uploads the CSV to the archive bucket. Returns the object key.
func (e *Exporter) ArchiveCollectedData(ctx context.Context, f workflow.Filter) (string, error) {
	if e.archiver == nil {
		return "", fmt.Errorf("no archiver configured")
	}
	key := fmt.Sprintf("exports/collected-data/%s.csv", time.Now().UTC().Format("2006-01-02T15-04-05"))
	if err := e.archiver.UploadCSV(ctx, key, func(w io.Writer) error {
		return e.WriteCollectedDataCSV(ctx, f, w)
	}); err != nil {
		return "", err
	}
	e.logger.WithField("key", key).Info("archived collected data export")
	return key, nil
}
