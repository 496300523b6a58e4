package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pulp-price-forecast/internal/curve"
	"pulp-price-forecast/internal/timeseries"
)

const quotesPath = "/quotes"

// ContractOptions parameterise the exchange quote fetcher.
type ContractOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Contracts fetches period-tagged contract quotes from the exchange API.
type Contracts struct {
	opts    ContractOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewContracts constructs an exchange quote fetcher.
func NewContracts(opts ContractOptions, logger zerolog.Logger) *Contracts {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://futures.norexco.com/api/v1"
	}

	return &Contracts{
		opts:    opts,
		logger:  logger.With().Str("component", "contract_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchContracts retrieves the current spot and contract quotes for a
// product.
func (c *Contracts) FetchContracts(ctx context.Context, product string) (MarketSnapshot, error) {
	if strings.TrimSpace(product) == "" {
		return MarketSnapshot{}, errors.New("product is required")
	}

	endpoint := c.baseURL + quotesPath + "?product=" + url.QueryEscape(product)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return MarketSnapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pulpwatcher/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return MarketSnapshot{}, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return MarketSnapshot{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return MarketSnapshot{}, parseHTTPError(resp.StatusCode, payloadBytes)
	}

	var payload quotesResponse
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return MarketSnapshot{}, err
	}

	asOf, err := time.Parse("2006-01-02", payload.AsOf)
	if err != nil {
		return MarketSnapshot{}, fmt.Errorf("parse asOf date: %w", err)
	}
	if payload.Spot.Price <= 0 {
		return MarketSnapshot{}, fmt.Errorf("spot price %.2f is not positive", payload.Spot.Price)
	}

	snapshot := MarketSnapshot{
		Product:   product,
		SpotDate:  timeseries.Day(asOf),
		SpotPrice: payload.Spot.Price,
		Quotes:    make([]curve.PeriodQuote, 0, len(payload.Contracts)),
	}

	for _, raw := range payload.Contracts {
		anchor, parseErr := time.Parse("2006-01-02", raw.AnchorDate)
		if parseErr != nil {
			c.logger.Warn().Str("ticker", raw.Ticker).Str("anchor_date", raw.AnchorDate).
				Msg("skipping quote with unparseable anchor date")
			continue
		}
		snapshot.Quotes = append(snapshot.Quotes, curve.PeriodQuote{
			Product:    product,
			AnchorDate: timeseries.Day(anchor),
			Period:     raw.Period,
			Price:      raw.Price,
			Ticker:     raw.Ticker,
		})
	}

	c.logger.Debug().Str("product", product).Int("quotes", len(snapshot.Quotes)).
		Float64("spot", snapshot.SpotPrice).Msg("fetched contract quotes")

	return snapshot, nil
}

type quotesResponse struct {
	Product string `json:"product"`
	AsOf    string `json:"asOf"`
	Spot    struct {
		Price float64 `json:"price"`
	} `json:"spot"`
	Contracts []contractQuote `json:"contracts"`
}

type contractQuote struct {
	Ticker     string  `json:"ticker"`
	Period     string  `json:"period"`
	AnchorDate string  `json:"anchorDate"`
	Price      float64 `json:"price"`
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("exchange api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("exchange api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("exchange api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("exchange api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("exchange api error (%d)", status)
}

var _ ContractFetcher = (*Contracts)(nil)
