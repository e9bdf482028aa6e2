package marketdata

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"stockpulse/config"
)

// ErrUpstreamUnavailable covers transport failures, non-200 responses and
// payloads whose status field is not "ok". Callers treat it as a
// skip-this-symbol condition, never as a fatal batch error.
var ErrUpstreamUnavailable = errors.New("upstream market data unavailable")

// TimeSeriesValue is one daily bar as delivered by TwelveData. All numeric
// fields arrive as text and are parsed downstream.
type TimeSeriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

// TimeSeriesResponse is the payload of the /time_series endpoint. Values are
// documented by the provider as most-recent-first, but the reconciliation
// engine re-sorts rather than trusting the order.
type TimeSeriesResponse struct {
	Status string            `json:"status"`
	Values []TimeSeriesValue `json:"values"`
}

// StockMeta is one entry of the /stocks reference listing.
type StockMeta struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Exchange string `json:"exchange"`
	Country  string `json:"country"`
	Type     string `json:"type"`
}

type stockListResponse struct {
	Data []StockMeta `json:"data"`
}

// Client wraps the TwelveData REST API.
type Client struct {
	http   *resty.Client
	apiKey string
}

// NewClient builds a client from the loaded application config.
func NewClient() *Client {
	return NewClientWith(config.AppConfig.TwelveDataApiUrl, config.AppConfig.TwelveDataApiKey,
		time.Duration(config.AppConfig.UpstreamTimeout)*time.Second)
}

// NewClientWith builds a client against an explicit base URL, used by tests.
func NewClientWith(baseUrl, apiKey string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseUrl).
		SetTimeout(timeout)

	return &Client{http: client, apiKey: apiKey}
}

// FetchTimeSeries returns the daily bars for a symbol. A timeout, transport
// error, non-200 status or non-"ok" payload status all map to
// ErrUpstreamUnavailable.
func (c *Client) FetchTimeSeries(symbol string) (*TimeSeriesResponse, error) {
	result := new(TimeSeriesResponse)

	resp, err := c.http.R().
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": "1day",
			"apikey":   c.apiKey,
		}).
		SetResult(result).
		Get("/time_series")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: http status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("%w: payload status %q", ErrUpstreamUnavailable, result.Status)
	}

	return result, nil
}

// LookupStock resolves a symbol against the provider's reference listing.
// Returns nil when the provider does not know the symbol.
func (c *Client) LookupStock(symbol string) (*StockMeta, error) {
	result := new(stockListResponse)

	resp, err := c.http.R().
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"apikey": c.apiKey,
		}).
		SetResult(result).
		Get("/stocks")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: http status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}
	if len(result.Data) == 0 {
		return nil, nil
	}

	meta := result.Data[0]
	return &meta, nil
}
