package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendlens/internal/ingest"
)

// Client reads raw expense tables from a Google spreadsheet using a
// service account. It never writes, so it asks for the readonly scope.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	readRange     string
}

// Ensure interface conformance
var _ ingest.TableSource = (*Client)(nil)

// Options configures the spreadsheet client. One of CredentialsJSON and
// CredentialsFile must be set; inline JSON wins when both are.
type Options struct {
	CredentialsJSON string
	CredentialsFile string
	SpreadsheetID   string
	ReadRange       string
}

// NewClient creates a Sheets client bound to one spreadsheet range.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	readRange := strings.TrimSpace(opts.ReadRange)
	if readRange == "" {
		return nil, errors.New("missing read range")
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
	}, nil
}

// newSheetsService initializes a Sheets service using service account
// credentials, inline JSON taking precedence over a credentials file.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON([]byte(opts.CredentialsJSON)),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	case strings.TrimSpace(opts.CredentialsFile) != "":
		return gsheet.NewService(ctx,
			goption.WithCredentialsFile(opts.CredentialsFile),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE)")
	}
}

// FetchTable downloads the configured range and converts it to a raw table.
func (c *Client) FetchTable(ctx context.Context) (ingest.Table, error) {
	if c.svc == nil {
		return ingest.Table{}, errors.New("sheets service not initialized")
	}

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).Context(ctx).Do()
	if err != nil {
		return ingest.Table{}, fmt.Errorf("read %s: %w", c.readRange, err)
	}

	table := tableFromValues(resp.Values)
	if table.Header == nil {
		return ingest.Table{}, fmt.Errorf("range %s has no header row", c.readRange)
	}

	slog.InfoContext(ctx, "Fetched spreadsheet range",
		"range", c.readRange,
		"rows", len(table.Rows))

	return table, nil
}
