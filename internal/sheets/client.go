// Package sheets writes conversion rows to Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/resilience"
)

const DefaultTimeout = 30 * time.Second

type Config struct {
	// CredentialsFile is a service account JSON key.
	CredentialsFile string
	Timeout         time.Duration

	// Endpoint and HTTPClient override the API location, for tests.
	Endpoint   string
	HTTPClient *http.Client
}

// Client is a thin Sheets v4 wrapper. Each call is bounded by the configured
// timeout and its failure is classified into the resilience kinds.
type Client struct {
	svc     *sheetsapi.Service
	timeout time.Duration
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
		if cfg.HTTPClient != nil {
			opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
		}
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sheets credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	default:
		logging.Warn().Msg("No sheets credentials file configured, using application default credentials")
	}

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return &Client{svc: svc, timeout: cfg.Timeout}, nil
}

// ClearRange clears all values in rng.
func (c *Client) ClearRange(ctx context.Context, spreadsheetID, rng string) error {
	return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.
			Clear(spreadsheetID, rng, &sheetsapi.ClearValuesRequest{}).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", rng, classify(err))
		}
		return nil
	})
}

// AppendRows appends rows after the last row of rng, values written as is.
func (c *Client) AppendRows(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
		resp, err := c.svc.Spreadsheets.Values.
			Append(spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to append to %s: %w", rng, classify(err))
		}

		if resp.Updates != nil {
			logging.Debug().
				Str("spreadsheet_id", spreadsheetID).
				Int64("rows", resp.Updates.UpdatedRows).
				Msg("Appended rows")
		}
		return nil
	})
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return resilience.NewStatusError(apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", resilience.ErrTransient, err)
}
