// Package filings reads a company's public filing history from the
// Companies House API. Filings found here are not downloaded by the client;
// they are handed to the backend with backend.Client.UploadFiling.
package filings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/docchat/internal/logger"
	"github.com/zulandar/docchat/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("filings: api key is required")

// Opts holds parameters for creating a Client.
type Opts struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
	// Base is the transport the bearer token is added to. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper
}

// Client queries filing history.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// Query narrows a filing-history request. Zero values are omitted.
type Query struct {
	Category     string // e.g. "accounts", "confirmation-statement"
	ItemsPerPage int
	StartIndex   int
}

// New creates a Client. The API key is sent as a bearer token on every
// request.
func New(opts Opts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("filings: base url is required")
	}
	base := opts.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	rt := opts.Base
	if rt == nil {
		rt = http.DefaultTransport
	}
	hc := &http.Client{
		Timeout: opts.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"}),
			Base:   rt,
		},
	}
	return &Client{baseURL: base, http: hc, log: logger.OrNop(opts.Logger)}, nil
}

// FilingHistory returns one page of the filing history of companyNumber.
func (c *Client) FilingHistory(ctx context.Context, companyNumber string, q Query) (*models.FilingResponse, error) {
	companyNumber = strings.TrimSpace(companyNumber)
	if companyNumber == "" {
		return nil, fmt.Errorf("filings: company number is required")
	}

	params := url.Values{}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.ItemsPerPage > 0 {
		params.Set("items_per_page", strconv.Itoa(q.ItemsPerPage))
	}
	if q.StartIndex > 0 {
		params.Set("start_index", strconv.Itoa(q.StartIndex))
	}
	u := c.baseURL + "company/" + url.PathEscape(companyNumber) + "/filing-history"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("filings: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("filings: history for %s: %w", companyNumber, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("filings: company %s not found", companyNumber)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("filings: history for %s: HTTP error! status: %d", companyNumber, resp.StatusCode)
	}

	var out models.FilingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("filings: decode history for %s: %w", companyNumber, err)
	}
	c.log.Debug("filings: history fetched",
		zap.String("company", companyNumber),
		zap.Int("items", len(out.Items)),
		zap.Int("total", out.TotalCount))
	return &out, nil
}

// Find returns the filing with transactionID from the first page of history.
func (c *Client) Find(ctx context.Context, companyNumber, transactionID string) (models.FilingItem, error) {
	resp, err := c.FilingHistory(ctx, companyNumber, Query{ItemsPerPage: 100})
	if err != nil {
		return models.FilingItem{}, err
	}
	for _, item := range resp.Items {
		if item.TransactionID == transactionID {
			return item, nil
		}
	}
	return models.FilingItem{}, fmt.Errorf("filings: transaction %s not found for company %s", transactionID, companyNumber)
}
