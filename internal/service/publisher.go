package service

import (
	"context"
	"fmt"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/resilience"
)

const DefaultSheetRange = "Conversions!A:G"

// SheetWriter writes rows to a spreadsheet.
type SheetWriter interface {
	ClearRange(ctx context.Context, spreadsheetID, rng string) error
	AppendRows(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
}

// RecordLister lists an account's stored jobs.
type RecordLister interface {
	FindByAccount(ctx context.Context, accountID string) ([]models.JobRecord, error)
}

// PublishStats summarizes one publish.
type PublishStats struct {
	Records int  `json:"records"`
	Rows    int  `json:"rows"`
	Skipped bool `json:"skipped,omitempty"`
}

func (s PublishStats) Details() models.JSONB {
	return models.JSONB{
		"records": s.Records,
		"rows":    s.Rows,
		"skipped": s.Skipped,
	}
}

// SheetPublisher rewrites an account's conversion sheet from the local
// collection.
type SheetPublisher struct {
	writer  SheetWriter
	records RecordLister
	retrier *resilience.Retrier
	rng     string
}

func NewSheetPublisher(writer SheetWriter, records RecordLister, retrier *resilience.Retrier, rng string) *SheetPublisher {
	if rng == "" {
		rng = DefaultSheetRange
	}
	return &SheetPublisher{
		writer:  writer,
		records: records,
		retrier: retrier,
		rng:     rng,
	}
}

// Publish clears the range and appends the current rows. Accounts without a
// sheet are skipped.
func (p *SheetPublisher) Publish(ctx context.Context, account *models.Account) (PublishStats, error) {
	if account.SheetID == "" {
		logging.Info().Str("account_id", account.ID).Msg("No sheet configured, skipping publish")
		return PublishStats{Skipped: true}, nil
	}

	records, err := p.records.FindByAccount(ctx, account.ID)
	if err != nil {
		return PublishStats{}, err
	}

	rows := BuildConversionRows(account, records)
	stats := PublishStats{Records: len(records), Rows: len(rows) - 1}

	_, err = resilience.Do(ctx, p.retrier, "sheets_clear", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.writer.ClearRange(ctx, account.SheetID, p.rng)
	})
	if err != nil {
		return stats, fmt.Errorf("failed to clear sheet: %w", err)
	}

	_, err = resilience.Do(ctx, p.retrier, "sheets_append", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.writer.AppendRows(ctx, account.SheetID, p.rng, rows)
	})
	if err != nil {
		return stats, fmt.Errorf("failed to append rows: %w", err)
	}

	logging.Info().
		Str("account_id", account.ID).
		Int("records", stats.Records).
		Int("rows", stats.Rows).
		Msg("Published conversions")

	return stats, nil
}
