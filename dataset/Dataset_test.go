package dataset

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

const bitstamp = `Timestamp,Open,High,Low,Close,Volume_(BTC),Volume_(Currency),Weighted_Price
1325317920,4.39,4.39,4.39,4.39,0.45558087,2.0000000193,4.39
1325317980,NaN,NaN,NaN,NaN,NaN,NaN,NaN
1325318040,4.39,4.40,4.38,4.40,1.5,6.6,4.39
1325318100,4.41,4.42,4.40,4.42,0,0,4.41
`

func syntheticCandles(n int) []Candle {
	candles := make([]Candle, n)
	start := time.Unix(1600000000, 0).UTC()
	for i := range candles {
		p := 100 + 10*math.Sin(float64(i)/5) + float64(i)/10
		candles[i] = Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      p - 0.5,
			High:      p + 1,
			Low:       p - 1,
			Close:     p,
			Volume:    float64(10 + i%7),
		}
	}
	return candles
}

func TestLoadCSV(t *testing.T) {
	candles, err := LoadCSV(strings.NewReader(bitstamp))
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 3 {
		t.Fatalf("want(3) candles have(%v)", len(candles))
	}
	if candles[1].Close != 4.40 || candles[1].Volume != 1.5 {
		t.Errorf("invalid candle: %+v", candles[1])
	}
	if candles[2].Timestamp.Unix() != 1325318100 {
		t.Errorf("timestamp: want(1325318100) have(%v)",
			candles[2].Timestamp.Unix())
	}

	if _, err := LoadCSV(strings.NewReader("")); !errors.Is(err, ErrNoData) {
		t.Errorf("empty file: want ErrNoData have(%v)", err)
	}
	if _, err := LoadCSV(strings.NewReader("timestamp,open,high,low\n")); err == nil {
		t.Error("expected error for missing columns")
	}
	onlyNaN := "timestamp,open,high,low,close,volume\n1,NaN,NaN,NaN,NaN,NaN\n"
	if _, err := LoadCSV(strings.NewReader(onlyNaN)); !errors.Is(err, ErrNoData) {
		t.Errorf("no valid rows: want ErrNoData have(%v)", err)
	}
}

func TestWriteCSV(t *testing.T) {
	candles := syntheticCandles(5)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, candles); err != nil {
		t.Fatal(err)
	}
	read, err := LoadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(read) != len(candles) {
		t.Fatalf("want(%v) candles have(%v)", len(candles), len(read))
	}
	for i := range candles {
		r, c := read[i], candles[i]
		if !r.Timestamp.Equal(c.Timestamp) || r.Open != c.Open ||
			r.High != c.High || r.Low != c.Low || r.Close != c.Close ||
			r.Volume != c.Volume {
			t.Errorf("candle %v: want(%+v) have(%+v)", i, candles[i], read[i])
		}
	}

	path := filepath.Join(t.TempDir(), "candles.csv")
	if err := WriteFile(path, candles); err != nil {
		t.Fatal(err)
	}
	if read, err = ReadFile(path); err != nil || len(read) != len(candles) {
		t.Errorf("readfile: %v candles, err %v", len(read), err)
	}
}

func TestBuild(t *testing.T) {
	candles := syntheticCandles(100)

	tests := []struct {
		config Config
		ticks  int
	}{
		{Config{}, 99},
		{Config{Indicators: true}, 100 - indicatorLookback},
		{Config{Indicators: true, Normalize: true}, 100 - indicatorLookback},
		{Config{Limit: 50}, 49},
	}

	for _, test := range tests {
		s, err := Build(candles, test.config)
		if err != nil {
			t.Fatalf("%+v: %v", test.config, err)
		}
		if s.Len() != test.ticks || len(s.Frames) != test.ticks ||
			len(s.Timestamps) != test.ticks {
			t.Errorf("%+v: want(%v) ticks have(%v)", test.config, test.ticks,
				s.Len())
		}
		for i, frame := range s.Frames {
			if len(frame) != test.config.NumFeatures() {
				t.Fatalf("%+v: frame %v has %v features", test.config, i,
					len(frame))
			}
			for _, v := range frame {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("%+v: frame %v not finite: %v", test.config, i,
						frame)
				}
			}
		}
		if last := candles[len(candles)-1].Close; s.Prices[s.Len()-1] != last {
			t.Errorf("%+v: last price want(%v) have(%v)", test.config, last,
				s.Prices[s.Len()-1])
		}
	}

	s, _ := Build(candles, Config{})
	want := math.Log(candles[1].Close / candles[0].Close)
	if math.Abs(s.Frames[0][0]-want) > 1e-12 {
		t.Errorf("log return: want(%v) have(%v)", want, s.Frames[0][0])
	}

	if _, err := Build(candles[:10], Config{Indicators: true}); !errors.Is(err,
		ErrNoData) {
		t.Errorf("short series: want ErrNoData have(%v)", err)
	}
}

func TestNormalize(t *testing.T) {
	frames := [][]float64{{1, 5}, {2, 5}, {3, 5}}
	Normalize(frames)

	var sum float64
	for i := range frames {
		sum += frames[i][0]
		if frames[i][1] != 0 {
			t.Errorf("constant column: want(0) have(%v)", frames[i][1])
		}
	}
	if math.Abs(sum) > 1e-12 {
		t.Errorf("mean: want(0) have(%v)", sum/3)
	}
	if math.Abs(frames[2][0]-1) > 1e-12 {
		t.Errorf("want(1) have(%v)", frames[2][0])
	}
}

func testExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		Market:    "BTC/USDT:USDT",
		Timeframe: "1m",
		Limit:     3,
		Retry: RetryConfig{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
	}
}

func TestFetch(t *testing.T) {
	calls := 0
	fetch := func(market, timeframe string, limit int64) ([]ccxt.OHLCV, error) {
		calls++
		if calls == 1 {
			return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return []ccxt.OHLCV{
			{Timestamp: 1600000000000, Open: 1, High: 2, Low: 0.5, Close: 1.5,
				Volume: 10},
			{Timestamp: 1600000060000, Open: 0, High: 0, Low: 0, Close: 0},
			{Timestamp: 1600000120000, Open: 1.5, High: 2, Low: 1, Close: 1.8,
				Volume: 3},
		}, nil
	}

	var waits []time.Duration
	f := newFetcher(testExchangeConfig(), nil, fetch)
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	candles, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 || len(waits) != 1 {
		t.Errorf("want(2) calls and (1) wait have(%v, %v)", calls, len(waits))
	}
	if len(candles) != 2 {
		t.Fatalf("want(2) valid candles have(%v)", len(candles))
	}
	if candles[1].Timestamp.Unix() != 1600000120 {
		t.Errorf("timestamp: want(1600000120) have(%v)",
			candles[1].Timestamp.Unix())
	}
}

func TestFetchRetries(t *testing.T) {
	c := testExchangeConfig()

	// Transient errors are retried up to MaxAttempts with capped
	// exponential backoff
	calls := 0
	f := newFetcher(c, nil, func(string, string, int64) ([]ccxt.OHLCV, error) {
		calls++
		return nil, &net.OpError{Op: "read", Err: errors.New("reset")}
	})
	var waits []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Error("expected error after exhausting retries")
	}
	if calls != c.Retry.MaxAttempts {
		t.Errorf("want(%v) attempts have(%v)", c.Retry.MaxAttempts, calls)
	}
	wantWaits := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if len(waits) != len(wantWaits) {
		t.Fatalf("want(%v) waits have(%v)", wantWaits, waits)
	}
	for i := range waits {
		if waits[i] != wantWaits[i] {
			t.Errorf("wait %v: want(%v) have(%v)", i, wantWaits[i], waits[i])
		}
	}

	// Permanent errors are not retried
	calls = 0
	f = newFetcher(c, nil, func(string, string, int64) ([]ccxt.OHLCV, error) {
		calls++
		return nil, errors.New("bad symbol")
	})
	if _, err := f.Fetch(context.Background()); err == nil || calls != 1 {
		t.Errorf("permanent error: want 1 attempt have(%v), err %v", calls, err)
	}

	// Cancelled contexts stop retrying
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f = newFetcher(c, nil, func(string, string, int64) ([]ccxt.OHLCV, error) {
		t.Error("fetch called with cancelled context")
		return nil, nil
	})
	if _, err := f.Fetch(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled have(%v)", err)
	}
}

func TestExchangeConfigValidate(t *testing.T) {
	if err := testExchangeConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	tests := []func(*ExchangeConfig){
		func(c *ExchangeConfig) { c.Market = "" },
		func(c *ExchangeConfig) { c.Timeframe = "" },
		func(c *ExchangeConfig) { c.Limit = 0 },
		func(c *ExchangeConfig) { c.Retry.MaxAttempts = 0 },
		func(c *ExchangeConfig) { c.Retry.MinDelay = time.Second },
	}
	for i, modify := range tests {
		c := testExchangeConfig()
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("test %v: expected error", i)
		}
	}
}
