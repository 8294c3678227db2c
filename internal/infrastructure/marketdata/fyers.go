package marketdata

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

	"github.com/vitos/pivot_alert_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api-t1.fyers.in"

	// Pause between historical fetch strategies so a burst of fallbacks
	// does not hammer the API.
	strategyPause = 500 * time.Millisecond
)

// fallbackResolutions is the candle-resolution cascade tried when the
// preferred resolution returns nothing.
var fallbackResolutions = []string{"15S", "1", "3", "5"}

// Client is the rate-budgeted REST adapter for the Fyers market-data
// API. It starts on the generous initialization budget; callers switch
// to the steady monitoring budget once daily setup is done.
type Client struct {
	appID       string
	accessToken string
	baseURL     string
	httpc       *http.Client
	logger      *zap.Logger
	budget      *rateBudget

	sleep func(time.Duration)
}

// Config carries client construction parameters. BaseURL is overridable
// for tests; empty means the production endpoint.
type Config struct {
	AppID       string
	AccessToken string
	BaseURL     string
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		appID:       cfg.AppID,
		accessToken: cfg.AccessToken,
		baseURL:     strings.TrimRight(base, "/"),
		httpc:       &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		budget:      newRateBudget(initCallsPerMinute),
		sleep:       time.Sleep,
	}
}

// SetMonitoringMode switches from the initialization budget to the
// steady monitoring budget. One-way; called once after daily setup.
func (c *Client) SetMonitoringMode() {
	c.budget.setLimit(monitorCallsPerMinute)
	c.logger.Info("api budget switched to monitoring mode",
		zap.Int("calls_per_minute", monitorCallsPerMinute))
}

type historyResponse struct {
	S       string      `json:"s"`
	Candles [][]float64 `json:"candles"`
}

type quotesResponse struct {
	S string `json:"s"`
	D []struct {
		N string `json:"n"`
		V struct {
			PrevClosePrice float64 `json:"prev_close_price"`
		} `json:"v"`
	} `json:"d"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.appID+":"+c.accessToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) fetchHistory(ctx context.Context, symbol, resolution string, from, to string, epochRange bool) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", resolution)
	params.Set("range_from", from)
	params.Set("range_to", to)
	params.Set("cont_flag", "1")
	if epochRange {
		params.Set("date_format", "0")
	} else {
		params.Set("date_format", "1")
	}

	var resp historyResponse
	if err := c.get(ctx, "/data/history", params, &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, fmt.Errorf("history %s: upstream status %q", symbol, resp.S)
	}

	candles := make([]domain.Candle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		if len(row) < 6 {
			continue
		}
		ts := int64(row[0])
		candles = append(candles, domain.Candle{
			Timestamp: ts,
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    int64(row[5]),
			TimeStr:   time.Unix(ts, 0).Format("15:04:05"),
		})
	}
	return candles, nil
}

// GetHistoricalOHLC fetches the OHLC for the given session date,
// cascading through fetch strategies of decreasing fidelity. Each
// strategy costs one budget acquire; a denied acquire skips the
// strategy rather than waiting. The final fallback estimates the bar
// from the real-time quote's previous close and is flagged as such.
func (c *Client) GetHistoricalOHLC(ctx context.Context, symbol string, date time.Time) (*domain.OHLC, error) {
	day := date.Format("2006-01-02")

	type strategy struct {
		name string
		run  func() (*domain.OHLC, error)
	}
	strategies := []strategy{
		{"exact_date", func() (*domain.OHLC, error) {
			return c.historyOHLC(ctx, symbol, "D", day, day, date)
		}},
		{"date_range", func() (*domain.OHLC, error) {
			from := date.AddDate(0, 0, -5).Format("2006-01-02")
			return c.historyOHLC(ctx, symbol, "D", from, day, date)
		}},
		{"alt_resolution", func() (*domain.OHLC, error) {
			return c.historyOHLC(ctx, symbol, "1D", day, day, date)
		}},
		{"quotes_estimate", func() (*domain.OHLC, error) {
			return c.quoteEstimate(ctx, symbol, date)
		}},
	}

	var lastErr error
	for i, s := range strategies {
		if i > 0 {
			c.sleep(strategyPause)
		}
		if !c.budget.acquire() {
			c.logger.Warn("rate budget exhausted, skipping fetch strategy",
				zap.String("symbol", symbol), zap.String("strategy", s.name))
			continue
		}
		ohlc, err := s.run()
		if err != nil {
			lastErr = err
			c.logger.Debug("fetch strategy failed",
				zap.String("symbol", symbol),
				zap.String("strategy", s.name),
				zap.Error(err))
			continue
		}
		return ohlc, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("rate budget exhausted")
	}
	return nil, fmt.Errorf("historical OHLC for %s on %s: %w", symbol, day, lastErr)
}

// historyOHLC runs one daily-resolution history query and picks the bar
// closest to (but not after) the wanted date.
func (c *Client) historyOHLC(ctx context.Context, symbol, resolution, from, to string, want time.Time) (*domain.OHLC, error) {
	candles, err := c.fetchHistory(ctx, symbol, resolution, from, to, false)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("history %s: no candles in range", symbol)
	}

	wantTS := want.Unix()
	best := -1
	for i, cd := range candles {
		if cd.Timestamp > wantTS+86400 {
			continue
		}
		if best == -1 || cd.Timestamp > candles[best].Timestamp {
			best = i
		}
	}
	if best == -1 {
		return nil, fmt.Errorf("history %s: no candle at or before %s", symbol, want.Format("2006-01-02"))
	}
	cd := candles[best]
	return &domain.OHLC{
		Open:   cd.Open,
		High:   cd.High,
		Low:    cd.Low,
		Close:  cd.Close,
		Volume: cd.Volume,
		Date:   time.Unix(cd.Timestamp, 0),
		Source: domain.SourceHistorical,
	}, nil
}

// quoteEstimate synthesizes a session bar from the previous close, with
// a ±1% high/low band. Last-resort data; consumers see the source flag.
func (c *Client) quoteEstimate(ctx context.Context, symbol string, date time.Time) (*domain.OHLC, error) {
	params := url.Values{}
	params.Set("symbols", symbol)

	var resp quotesResponse
	if err := c.get(ctx, "/data/quotes", params, &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" || len(resp.D) == 0 {
		return nil, fmt.Errorf("quotes %s: upstream status %q", symbol, resp.S)
	}
	prevClose := resp.D[0].V.PrevClosePrice
	if prevClose <= 0 {
		return nil, fmt.Errorf("quotes %s: no previous close", symbol)
	}
	return &domain.OHLC{
		Open:   prevClose,
		High:   prevClose * 1.01,
		Low:    prevClose * 0.99,
		Close:  prevClose,
		Date:   date,
		Source: domain.SourceQuotesEstimate,
	}, nil
}

// GetLatestCandle returns the most recent candle for the symbol. One
// budget acquire covers the whole call; when the preferred resolution
// yields nothing the client cascades through coarser fallbacks without
// further charges.
func (c *Client) GetLatestCandle(ctx context.Context, symbol, resolution string) (*domain.Candle, error) {
	if !c.budget.acquire() {
		return nil, fmt.Errorf("latest candle %s: rate budget exhausted", symbol)
	}

	resolutions := make([]string, 0, len(fallbackResolutions)+1)
	resolutions = append(resolutions, resolution)
	for _, r := range fallbackResolutions {
		if r != resolution {
			resolutions = append(resolutions, r)
		}
	}

	var lastErr error
	for _, res := range resolutions {
		to := time.Now()
		from := to.Add(-lookbackFor(res))
		candles, err := c.fetchHistory(ctx, symbol, res,
			strconv.FormatInt(from.Unix(), 10),
			strconv.FormatInt(to.Unix(), 10),
			true)
		if err != nil {
			lastErr = err
			continue
		}
		if len(candles) == 0 {
			lastErr = fmt.Errorf("resolution %s: no candles", res)
			continue
		}
		latest := candles[len(candles)-1]
		return &latest, nil
	}
	return nil, fmt.Errorf("latest candle %s: %w", symbol, lastErr)
}

// lookbackFor sizes the query window: second resolutions need only a
// short window, minute resolutions a couple of hours.
func lookbackFor(resolution string) time.Duration {
	if strings.HasSuffix(strings.ToUpper(resolution), "S") {
		return 15 * time.Minute
	}
	return 2 * time.Hour
}
