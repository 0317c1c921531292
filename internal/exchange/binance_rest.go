package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/screener-back/pkg/config"
	"github.com/screener-back/pkg/models"
)

// BinanceRESTClient handles REST API calls to one Binance market segment
type BinanceRESTClient struct {
	client        *http.Client
	baseURL       string
	market        models.MarketType
	quoteAsset    string
	tickerTimeout time.Duration
	enrichTimeout time.Duration
	limiter       *rate.Limiter
	logger        *logrus.Entry
}

// NewBinanceRESTClient creates a client for the given market segment.
// Enrichment requests made through the client share one rate limiter.
func NewBinanceRESTClient(market models.MarketType, cfg *config.ExchangeConfig, logger *logrus.Logger) *BinanceRESTClient {
	baseURL := cfg.FuturesURL
	if market == models.MarketSpot {
		baseURL = cfg.SpotURL
	}

	every := rate.Inf
	if cfg.RateLimit > 0 {
		every = rate.Every(cfg.RateLimit)
	}

	return &BinanceRESTClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:       strings.TrimRight(baseURL, "/"),
		market:        market,
		quoteAsset:    cfg.QuoteAsset,
		tickerTimeout: cfg.TickerTimeout,
		enrichTimeout: cfg.EnrichTimeout,
		limiter:       rate.NewLimiter(every, 1),
		logger: logger.WithFields(logrus.Fields{
			"component": "binance-rest",
			"market":    market,
		}),
	}
}

// Market returns the market segment served by the client
func (b *BinanceRESTClient) Market() models.MarketType {
	return b.market
}

// FetchTickers fetches the 24hr ticker of every instrument quoted in the
// configured quote asset. Any failure is returned to the caller.
func (b *BinanceRESTClient) FetchTickers(ctx context.Context) ([]models.RawTicker, error) {
	path := futuresTickerPath
	if b.market == models.MarketSpot {
		path = spotTickerPath
	}

	ctx, cancel := withTimeout(ctx, b.tickerTimeout)
	defer cancel()

	var rows []binanceTicker24h
	if err := b.get(ctx, path, nil, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch %s tickers: %w", b.market, err)
	}

	tickers := make([]models.RawTicker, 0, len(rows))
	for _, row := range rows {
		if !strings.HasSuffix(row.Symbol, b.quoteAsset) {
			continue
		}
		volume := row.QuoteVolume
		if volume == "" {
			volume = row.Volume
		}
		tickers = append(tickers, models.RawTicker{
			Symbol:             row.Symbol,
			LastPrice:          row.LastPrice,
			PriceChangePercent: row.PriceChangePercent,
			Volume:             row.Volume,
			QuoteVolume:        volume,
		})
	}

	b.logger.WithFields(logrus.Fields{
		"total":    len(rows),
		"filtered": len(tickers),
	}).Debug("Fetched tickers")

	return tickers, nil
}

// FetchOpenInterest returns the symbol's open interest, or 0 when it is
// unavailable. Spot returns 0 without a request.
func (b *BinanceRESTClient) FetchOpenInterest(ctx context.Context, symbol string) float64 {
	if b.market != models.MarketFutures {
		return 0
	}

	var resp binanceOpenInterest
	if err := b.enrich(ctx, futuresOpenInterestPath, symbol, &resp); err != nil {
		b.logger.WithError(err).WithField("symbol", symbol).Debug("Open interest unavailable")
		return 0
	}
	return parseFloatSoft(resp.OpenInterest)
}

// FetchFundingRate returns the symbol's last funding rate, or 0 when it is
// unavailable. Spot returns 0 without a request.
func (b *BinanceRESTClient) FetchFundingRate(ctx context.Context, symbol string) float64 {
	if b.market != models.MarketFutures {
		return 0
	}

	var resp binancePremiumIndex
	if err := b.enrich(ctx, futuresPremiumIndexPath, symbol, &resp); err != nil {
		b.logger.WithError(err).WithField("symbol", symbol).Debug("Funding rate unavailable")
		return 0
	}
	return parseFloatSoft(resp.LastFundingRate)
}

func (b *BinanceRESTClient) enrich(ctx context.Context, path, symbol string, out interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := withTimeout(ctx, b.enrichTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("symbol", symbol)
	return b.get(ctx, path, params, out)
}

func (b *BinanceRESTClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	fullURL := b.baseURL + path
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr binanceError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return fmt.Errorf("API error: status=%d, code=%d, msg=%s", resp.StatusCode, apiErr.Code, apiErr.Msg)
		}
		return fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func parseFloatSoft(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
