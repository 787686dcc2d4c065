package dataset

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Indicator periods
const (
	rsiPeriod  = 14
	emaPeriod  = 20
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	atrPeriod  = 14
)

const (
	numBase       = 3
	numIndicators = 4

	// indicatorLookback is the index of the first candle at which all
	// indicators are defined. The MACD signal line needs the longest
	// warm-up.
	indicatorLookback = macdSlow - 1 + macdSignal - 1
)

// Config configures how a price series is converted into frames
type Config struct {
	// Path of the candle CSV file
	Path string `mapstructure:"path"`

	// Limit keeps only the last Limit candles of the file, all candles
	// are kept if Limit is 0
	Limit int `mapstructure:"limit"`

	// Indicators adds the RSI, EMA, MACD and ATR indicators to each
	// frame
	Indicators bool `mapstructure:"indicators"`

	// Normalize standardizes each feature to zero mean and unit
	// variance over the series
	Normalize bool `mapstructure:"normalize"`
}

// NumFeatures returns the number of features in each frame
func (c Config) NumFeatures() int {
	if c.Indicators {
		return numBase + numIndicators
	}
	return numBase
}

// Validate checks the Config
func (c Config) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("limit must be >= 0\n\thave(%v)", c.Limit)
	}
	return nil
}

// lookback returns the number of leading candles consumed before the
// first frame can be computed
func (c Config) lookback() int {
	if c.Indicators {
		return indicatorLookback
	}
	return 1
}

// Series is a price series prepared for a trading environment. Frames
// and Prices are aligned: Frames[i] is observed at the tick whose
// price is Prices[i].
type Series struct {
	Frames     [][]float64
	Prices     []float64
	Timestamps []time.Time
}

// Len returns the number of ticks in the series
func (s Series) Len() int {
	return len(s.Prices)
}

// Build converts candles into a Series. Each frame holds the log
// return of the close price, the high-low range relative to the close
// and the log volume, followed by the indicators if enabled. Candles
// before all features are defined are dropped.
func Build(candles []Candle, c Config) (Series, error) {
	if err := c.Validate(); err != nil {
		return Series{}, fmt.Errorf("build: %v", err)
	}
	if c.Limit > 0 && len(candles) > c.Limit {
		candles = candles[len(candles)-c.Limit:]
	}

	start := c.lookback()
	if len(candles) <= start {
		return Series{}, fmt.Errorf("build: %w\n\twant(>%v) candles"+
			"\n\thave(%v)", ErrNoData, start, len(candles))
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, candle := range candles {
		closes[i] = candle.Close
		highs[i] = candle.High
		lows[i] = candle.Low
	}

	var rsi, ema, hist, atr []float64
	if c.Indicators {
		rsi = talib.Rsi(closes, rsiPeriod)
		ema = talib.Ema(closes, emaPeriod)
		_, _, hist = talib.Macd(closes, macdFast, macdSlow, macdSignal)
		atr = talib.Atr(highs, lows, closes, atrPeriod)
	}

	s := Series{
		Frames:     make([][]float64, 0, n-start),
		Prices:     make([]float64, 0, n-start),
		Timestamps: make([]time.Time, 0, n-start),
	}
	for i := start; i < n; i++ {
		candle := candles[i]
		frame := make([]float64, 0, c.NumFeatures())
		frame = append(frame,
			math.Log(candle.Close/closes[i-1]),
			(candle.High-candle.Low)/candle.Close,
			math.Log1p(candle.Volume),
		)
		if c.Indicators {
			frame = append(frame,
				rsi[i]/100,
				candle.Close/ema[i]-1,
				hist[i]/candle.Close,
				atr[i]/candle.Close,
			)
		}

		s.Frames = append(s.Frames, frame)
		s.Prices = append(s.Prices, candle.Close)
		s.Timestamps = append(s.Timestamps, candle.Timestamp)
	}

	if c.Normalize {
		Normalize(s.Frames)
	}
	return s, nil
}

// Normalize standardizes each column of frames in place to zero mean
// and unit variance. Constant columns are only centred.
func Normalize(frames [][]float64) {
	if len(frames) == 0 {
		return
	}

	col := make([]float64, len(frames))
	for j := range frames[0] {
		for i := range frames {
			col[i] = frames[i][j]
		}

		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i := range frames {
			frames[i][j] = (frames[i][j] - mean) / std
		}
	}
}
