package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/logging"
	"equity-scanner/internal/models"
	"equity-scanner/pkg/utils"
)

const (
	yahooChartURL   = "https://query1.finance.yahoo.com/v8/finance/chart/"
	yahooSummaryURL = "https://query2.finance.yahoo.com/v10/finance/quoteSummary/"
	yahooProvider   = "yahoo"
	summaryModules  = "financialData,defaultKeyStatistics,summaryDetail"
)

// YahooConfig configures the Yahoo Finance client.
type YahooConfig struct {
	ChartURL   string
	SummaryURL string
	Timeout    time.Duration
	UserAgent  string
	Retry      utils.RetryConfig
}

// DefaultYahooConfig returns the public endpoints with a 15 second timeout.
func DefaultYahooConfig() YahooConfig {
	return YahooConfig{
		ChartURL:   yahooChartURL,
		SummaryURL: yahooSummaryURL,
		Timeout:    15 * time.Second,
		UserAgent:  "Mozilla/5.0",
		Retry:      utils.DefaultRetryConfig(),
	}
}

// YahooClient implements Provider using the Yahoo Finance chart and
// quoteSummary endpoints. Transient failures are retried; not-found and
// malformed responses are not.
type YahooClient struct {
	cfg    YahooConfig
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewYahooClient creates a Yahoo Finance client.
func NewYahooClient(cfg YahooConfig, logger zerolog.Logger) *YahooClient {
	if cfg.ChartURL == "" {
		cfg.ChartURL = yahooChartURL
	}
	if cfg.SummaryURL == "" {
		cfg.SummaryURL = yahooSummaryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.Retry.Retryable = isTransient
	return &YahooClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
}

// yahooChart is the response structure from the chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// yahooValue is a quoteSummary number; Raw is absent when unavailable.
type yahooValue struct {
	Raw *float64 `json:"raw"`
}

type yahooSummary struct {
	QuoteSummary struct {
		Result []struct {
			FinancialData struct {
				ReturnOnEquity   yahooValue `json:"returnOnEquity"`
				ReturnOnAssets   yahooValue `json:"returnOnAssets"`
				ProfitMargins    yahooValue `json:"profitMargins"`
				OperatingMargins yahooValue `json:"operatingMargins"`
				DebtToEquity     yahooValue `json:"debtToEquity"`
				CurrentRatio     yahooValue `json:"currentRatio"`
				FreeCashflow     yahooValue `json:"freeCashflow"`
				RevenueGrowth    yahooValue `json:"revenueGrowth"`
				EarningsGrowth   yahooValue `json:"earningsGrowth"`
			} `json:"financialData"`
			DefaultKeyStatistics struct {
				ForwardPE   yahooValue `json:"forwardPE"`
				PegRatio    yahooValue `json:"pegRatio"`
				PriceToBook yahooValue `json:"priceToBook"`
			} `json:"defaultKeyStatistics"`
			SummaryDetail struct {
				TrailingPE    yahooValue `json:"trailingPE"`
				DividendYield yahooValue `json:"dividendYield"`
				PayoutRatio   yahooValue `json:"payoutRatio"`
			} `json:"summaryDetail"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"quoteSummary"`
}

type chartQuery struct {
	Interval string `url:"interval"`
	Period1  int64  `url:"period1"`
	Period2  int64  `url:"period2"`
}

type summaryQuery struct {
	Modules string `url:"modules"`
}

func yahooURL(base, symbol string, params interface{}) (string, error) {
	q, err := query.Values(params)
	if err != nil {
		return "", fmt.Errorf("encode query: %w", err)
	}
	return base + url.PathEscape(symbol) + "?" + q.Encode(), nil
}

// FetchOHLCV fetches daily bars covering the last lookbackDays calendar days.
func (c *YahooClient) FetchOHLCV(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error) {
	symbol = models.NormalizeSymbol(symbol)
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	end := c.now()
	start := end.AddDate(0, 0, -lookbackDays)

	u, err := yahooURL(c.cfg.ChartURL, symbol, chartQuery{
		Interval: "1d",
		Period1:  start.Unix(),
		Period2:  end.Unix(),
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	candles, err := utils.RetryWithResult(ctx, c.cfg.Retry, func() ([]models.Candle, error) {
		var chart yahooChart
		if err := c.getJSON(ctx, symbol, u, &chart); err != nil {
			return nil, err
		}
		return parseChart(symbol, &chart)
	})
	logging.LogFetch(c.logger, symbol, len(candles), time.Since(started), err)
	return candles, err
}

// FetchFundamentals fetches fundamental ratios. Percent-like fields are
// rendered with a percent sign; debt-to-equity is converted from Yahoo's
// percent form into a plain ratio.
func (c *YahooClient) FetchFundamentals(ctx context.Context, symbol string) (models.RawFundamentals, error) {
	symbol = models.NormalizeSymbol(symbol)
	u, err := yahooURL(c.cfg.SummaryURL, symbol, summaryQuery{Modules: summaryModules})
	if err != nil {
		return nil, err
	}

	return utils.RetryWithResult(ctx, c.cfg.Retry, func() (models.RawFundamentals, error) {
		var summary yahooSummary
		if err := c.getJSON(ctx, symbol, u, &summary); err != nil {
			return nil, err
		}
		return parseSummary(symbol, &summary)
	})
}

func (c *YahooClient) getJSON(ctx context.Context, symbol, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	started := time.Now()
	resp, err := c.client.Do(req)
	logging.LogAPICall(c.logger, http.MethodGet, req.URL.Path, time.Since(started), err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return apperrors.NewProviderError(yahooProvider, symbol, 0, apperrors.ErrTimeout)
		}
		return apperrors.NewProviderError(yahooProvider, symbol, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewProviderError(yahooProvider, symbol, resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewProviderError(yahooProvider, symbol, resp.StatusCode, apperrors.ErrSymbolNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewProviderError(yahooProvider, symbol, resp.StatusCode, apperrors.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return apperrors.NewProviderError(yahooProvider, symbol, resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewProviderError(yahooProvider, symbol, resp.StatusCode,
			fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err))
	}
	return nil
}

func parseChart(symbol string, chart *yahooChart) ([]models.Candle, error) {
	if e := chart.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, apperrors.NewProviderError(yahooProvider, symbol, 0, apperrors.ErrSymbolNotFound)
		}
		return nil, apperrors.NewProviderError(yahooProvider, symbol, 0,
			fmt.Errorf("%w: %s", apperrors.ErrMalformedPayload, e.Description))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, apperrors.NewProviderError(yahooProvider, symbol, 0, apperrors.ErrDataNotFound)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, apperrors.NewProviderError(yahooProvider, symbol, 0, apperrors.ErrMalformedPayload)
	}
	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(quote.Open) < n || len(quote.High) < n || len(quote.Low) < n || len(quote.Close) < n || len(quote.Volume) < n {
		return nil, apperrors.NewProviderError(yahooProvider, symbol, 0,
			fmt.Errorf("%w: quote arrays shorter than timestamps", apperrors.ErrMalformedPayload))
	}

	candles := make([]models.Candle, 0, n)
	for i, ts := range result.Timestamp {
		// skip null bars (holidays, halts)
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		var volume int64
		if quote.Volume[i] != nil {
			volume = int64(*quote.Volume[i])
		}
		candles = append(candles, models.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *quote.Open[i],
			High:      *quote.High[i],
			Low:       *quote.Low[i],
			Close:     *quote.Close[i],
			Volume:    volume,
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return dedupeTimestamps(candles), nil
}

// dedupeTimestamps keeps the last bar for each timestamp so the series is
// strictly increasing.
func dedupeTimestamps(candles []models.Candle) []models.Candle {
	if len(candles) < 2 {
		return candles
	}
	out := candles[:1]
	for _, c := range candles[1:] {
		if c.Timestamp.Equal(out[len(out)-1].Timestamp) {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

func parseSummary(symbol string, s *yahooSummary) (models.RawFundamentals, error) {
	if e := s.QuoteSummary.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, apperrors.NewProviderError(yahooProvider, symbol, 0, apperrors.ErrSymbolNotFound)
		}
		return nil, apperrors.NewProviderError(yahooProvider, symbol, 0,
			fmt.Errorf("%w: %s", apperrors.ErrMalformedPayload, e.Description))
	}
	if len(s.QuoteSummary.Result) == 0 {
		return nil, apperrors.NewProviderError(yahooProvider, symbol, 0, apperrors.ErrDataNotFound)
	}

	r := s.QuoteSummary.Result[0]
	fd, ks, sd := r.FinancialData, r.DefaultKeyStatistics, r.SummaryDetail

	raw := models.RawFundamentals{
		models.FieldROE:             percentValue(fd.ReturnOnEquity),
		models.FieldROA:             percentValue(fd.ReturnOnAssets),
		models.FieldProfitMargin:    percentValue(fd.ProfitMargins),
		models.FieldOperatingMargin: percentValue(fd.OperatingMargins),
		models.FieldPE:              numberValue(sd.TrailingPE, 1),
		models.FieldForwardPE:       numberValue(ks.ForwardPE, 1),
		models.FieldPEG:             numberValue(ks.PegRatio, 1),
		models.FieldPB:              numberValue(ks.PriceToBook, 1),
		models.FieldDebtToEquity:    numberValue(fd.DebtToEquity, 100),
		models.FieldCurrentRatio:    numberValue(fd.CurrentRatio, 1),
		models.FieldFreeCashFlow:    numberValue(fd.FreeCashflow, 1),
		models.FieldRevenueGrowth:   percentValue(fd.RevenueGrowth),
		models.FieldEarningsGrowth:  percentValue(fd.EarningsGrowth),
		models.FieldDividendYield:   percentValue(sd.DividendYield),
		models.FieldPayoutRatio:     percentValue(sd.PayoutRatio),
	}
	return raw, nil
}

// percentValue renders a fraction such as 0.185 as "18.50%".
func percentValue(v yahooValue) string {
	if v.Raw == nil {
		return models.NotAvailable
	}
	return strconv.FormatFloat(*v.Raw*100, 'f', 2, 64) + "%"
}

func numberValue(v yahooValue, divisor float64) string {
	if v.Raw == nil {
		return models.NotAvailable
	}
	return strconv.FormatFloat(*v.Raw/divisor, 'f', -1, 64)
}

// isTransient reports whether a provider error is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, apperrors.ErrSymbolNotFound) ||
		errors.Is(err, apperrors.ErrMalformedPayload) ||
		errors.Is(err, apperrors.ErrDataNotFound) {
		return false
	}
	var pe *apperrors.ProviderError
	if errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 && pe.StatusCode != http.StatusTooManyRequests {
		return false
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
