package dataset

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
)

// Default retry delays of exchange calls
const (
	DefaultMinDelay = 500 * time.Millisecond
	DefaultMaxDelay = 5 * time.Second
)

// RetryConfig configures the retries of failed exchange calls
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ExchangeConfig configures the download of candles from an exchange
type ExchangeConfig struct {
	Market     string      `mapstructure:"market"`
	Timeframe  string      `mapstructure:"timeframe"`
	Limit      int64       `mapstructure:"limit"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// Validate checks the ExchangeConfig
func (c ExchangeConfig) Validate() error {
	switch {
	case c.Market == "":
		return errors.New("market must not be empty")
	case c.Timeframe == "":
		return errors.New("timeframe must not be empty")
	case c.Limit <= 0:
		return fmt.Errorf("limit must be > 0\n\thave(%v)", c.Limit)
	case c.Retry.MaxAttempts <= 0:
		return fmt.Errorf("retry.max_attempts must be > 0\n\thave(%v)",
			c.Retry.MaxAttempts)
	case c.Retry.MinDelay > c.Retry.MaxDelay && c.Retry.MaxDelay > 0:
		return fmt.Errorf("retry.min_delay must not exceed retry.max_delay")
	}
	return nil
}

// fetchFunc downloads at most limit candles of a market
type fetchFunc func(market, timeframe string, limit int64) ([]ccxt.OHLCV, error)

// Fetcher downloads candles from Binance USDⓈ-M futures, retrying
// transient failures with exponential backoff
type Fetcher struct {
	cfg    ExchangeConfig
	logger *zap.Logger
	fetch  fetchFunc

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher returns a new Fetcher
func NewFetcher(cfg ExchangeConfig, logger *zap.Logger) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("newfetcher: %v", err)
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	var mu sync.Mutex
	marketsLoaded := false
	fetch := func(market, timeframe string, limit int64) ([]ccxt.OHLCV, error) {
		mu.Lock()
		if !marketsLoaded {
			if _, err := ex.LoadMarkets(); err != nil {
				mu.Unlock()
				return nil, err
			}
			marketsLoaded = true
		}
		mu.Unlock()

		return ex.FetchOHLCV(
			market,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
	}

	return newFetcher(cfg, logger, fetch), nil
}

func newFetcher(cfg ExchangeConfig, logger *zap.Logger, fetch fetchFunc) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:    cfg,
		logger: logger,
		fetch:  fetch,
		sleep:  sleepContext,
	}
}

// Fetch downloads the most recent candles of the configured market
// and timeframe in chronological order
func (f *Fetcher) Fetch(ctx context.Context) ([]Candle, error) {
	var raw []ccxt.OHLCV
	op := fmt.Sprintf("fetch_ohlcv_%s", f.cfg.Timeframe)
	err := f.callWithRetry(ctx, op, func() error {
		result, err := f.fetch(f.cfg.Market, f.cfg.Timeframe, f.cfg.Limit)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		c := Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		}
		if !c.valid() {
			continue
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("fetch: %w: exchange returned no candles",
			ErrNoData)
	}

	f.logger.Info("candles fetched",
		zap.String("market", f.cfg.Market),
		zap.String("timeframe", f.cfg.Timeframe),
		zap.Int("candles", len(candles)),
	)
	return candles, nil
}

func (f *Fetcher) callWithRetry(ctx context.Context, operation string,
	fn func() error) error {
	attempt := 0
	delay := f.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = DefaultMinDelay
	}
	maxDelay := f.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				f.logger.Info("exchange call succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}

		if !retryable(err) || attempt >= f.cfg.Retry.MaxAttempts {
			f.logger.Error("exchange call failed",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}
		f.logger.Warn("exchange call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return err
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// retryable returns whether err is a transient network or exchange
// failure
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
