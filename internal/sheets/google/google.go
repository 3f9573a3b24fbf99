package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bookkeeper/internal/core"
	"bookkeeper/internal/ledger"
	ports "bookkeeper/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client reads ledgers from Google Sheets with read-only scope.
type Client struct {
	svc *gsheet.Service
}

var _ ports.LedgerReader = (*Client)(nil)

// Credentials selects a service account. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, creds Credentials) (*Client, error) {
	credentialsJSON, err := creds.load()
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "component", "sheets", "scope", gsheet.SpreadsheetsReadonlyScope)
	return &Client{svc: svc}, nil
}

// NewWithOptions creates a client from explicit API options.
func NewWithOptions(ctx context.Context, opts ...goption.ClientOption) (*Client, error) {
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		data, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// ReadRows returns the formatted cell values of ref as strings.
func (c *Client) ReadRows(ctx context.Context, ref ports.Ref) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if strings.TrimSpace(ref.SpreadsheetID) == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	resp, err := c.svc.Spreadsheets.Values.Get(ref.SpreadsheetID, ref.RangeOrDefault()).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", ref.RangeOrDefault(), err)
	}
	return toRows(resp.Values), nil
}

// ReadLedger implements sheets.LedgerReader.
func (c *Client) ReadLedger(ctx context.Context, ref ports.Ref) (core.Ledger, ledger.Stats, error) {
	rows, err := c.ReadRows(ctx, ref)
	if err != nil {
		return nil, ledger.Stats{}, err
	}
	l, stats := ledger.FromRows(rows)

	slog.InfoContext(ctx, "Ledger read from spreadsheet",
		"component", "sheets",
		"spreadsheet_id", ref.SpreadsheetID,
		"range", ref.RangeOrDefault(),
		"rows", stats.Lines,
		"accepted", stats.Accepted,
		"dropped", stats.Dropped)

	if len(l) == 0 {
		return nil, stats, ledger.ErrEmptyLedger
	}
	return l, stats, nil
}

func toRows(values [][]interface{}) [][]string {
	rows := make([][]string, 0, len(values))
	for _, v := range values {
		rows = append(rows, toStrings(v))
	}
	return rows
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case string:
			out[i] = x
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case nil:
			out[i] = ""
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}
