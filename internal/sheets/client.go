// Package sheets fetches tabular data from Google Sheets, either through the
// values API (when an API key is configured) or through the public CSV export.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrSourceUnavailable indicates the sheet could not be fetched at all.
var ErrSourceUnavailable = errors.New("sheet source unavailable")

var sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractSheetID pulls the spreadsheet id out of a full Google Sheets URL.
func ExtractSheetID(sheetURL string) (string, error) {
	m := sheetURLPattern.FindStringSubmatch(sheetURL)
	if m == nil {
		return "", errors.New("invalid Google Sheet URL format")
	}
	return m[1], nil
}

// Client retrieves cell matrices from a spreadsheet.
type Client struct {
	APIBaseURL    string
	ExportBaseURL string
	APIKey        string
	HTTP          *http.Client
}

// New creates a client. With an empty apiKey the CSV export fallback is used,
// which only works for public sheets and only reads the first tab.
func New(apiKey string) *Client {
	return &Client{
		APIBaseURL:    "https://sheets.googleapis.com",
		ExportBaseURL: "https://docs.google.com",
		APIKey:        apiKey,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch returns the sheet contents as a matrix of trimmed string cells.
// Rows may be ragged: a row can be shorter than the header row.
func (c *Client) Fetch(ctx context.Context, sheetID, cellRange string) ([][]string, error) {
	if cellRange == "" {
		cellRange = "A1:Z1000"
	}
	if c.APIKey != "" {
		return c.fetchValues(ctx, sheetID, cellRange)
	}
	return c.fetchCSVExport(ctx, sheetID)
}

// fetchValues calls the Sheets v4 values endpoint.
func (c *Client) fetchValues(ctx context.Context, sheetID, cellRange string) ([][]string, error) {
	url := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?key=%s", c.APIBaseURL, sheetID, cellRange, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: sheets api %s: %s", ErrSourceUnavailable, resp.Status, string(body))
	}

	var out struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode values response: %v", ErrSourceUnavailable, err)
	}
	return out.Values, nil
}

// fetchCSVExport downloads the first tab as CSV and parses it.
func (c *Client) fetchCSVExport(ctx context.Context, sheetID string) ([][]string, error) {
	url := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv&gid=0", c.ExportBaseURL, sheetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: csv export %s: make sure the sheet is public or set GOOGLE_SHEETS_API_KEY", ErrSourceUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read csv export: %v", ErrSourceUnavailable, err)
	}
	return ParseCSV(string(body)), nil
}

// ParseCSV splits a CSV export into rows of trimmed cells. Blank lines are
// dropped. Quotes toggle field grouping; escaped quotes inside quoted fields
// are not supported.
func ParseCSV(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitCSVLine(line))
	}
	return rows
}

func splitCSVLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}
