// Package dataset loads historical OHLCV price data and converts it
// into the per-tick feature frames observed by trading agents.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNoData is returned when a price series holds too few candles
var ErrNoData = errors.New("not enough price data")

// Candle is a single OHLCV bar of a price series
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// valid returns whether all prices of the candle are positive and
// finite and its volume is finite and non-negative
func (c Candle) valid() bool {
	for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	return c.Volume >= 0 && !math.IsInf(c.Volume, 0)
}

// Columns of a candle CSV file. Bitstamp exports name the volume
// columns Volume_(BTC) and Volume_(Currency); the first column whose
// name starts with "volume" is used.
var columns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// ReadFile reads a candle CSV file. See LoadCSV.
func ReadFile(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("readfile: %v", err)
	}
	defer f.Close()

	candles, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("readfile %v: %w", path, err)
	}
	return candles, nil
}

// LoadCSV reads candles from CSV data with a header row. Timestamps are
// Unix seconds. Rows with missing or invalid prices, which are common
// in minute-level exchange exports, are skipped. Candles are returned
// in file order.
func LoadCSV(r io.Reader) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("loadcsv: %w: empty file", ErrNoData)
	} else if err != nil {
		return nil, fmt.Errorf("loadcsv: %v", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, fmt.Errorf("loadcsv: %v", err)
	}

	var candles []Candle
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("loadcsv: %v", err)
		}

		c, ok := parseRecord(record, index)
		if !ok {
			continue
		}
		candles = append(candles, c)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("loadcsv: %w: no valid rows", ErrNoData)
	}
	return candles, nil
}

// columnIndex returns the index in header of each of the columns
func columnIndex(header []string) ([]int, error) {
	index := make([]int, len(columns))
	for i, col := range columns {
		index[i] = -1
		for j, name := range header {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == col || (col == "volume" && strings.HasPrefix(name, col)) {
				index[i] = j
				break
			}
		}
		if index[i] < 0 {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	return index, nil
}

func parseRecord(record []string, index []int) (Candle, bool) {
	values := make([]float64, len(index))
	for i, j := range index {
		if j >= len(record) {
			return Candle{}, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64)
		if err != nil || math.IsNaN(v) {
			return Candle{}, false
		}
		values[i] = v
	}

	c := Candle{
		Timestamp: time.Unix(int64(values[0]), 0).UTC(),
		Open:      values[1],
		High:      values[2],
		Low:       values[3],
		Close:     values[4],
		Volume:    values[5],
	}
	return c, c.valid()
}

// WriteCSV writes candles as CSV data readable by LoadCSV
func WriteCSV(w io.Writer, candles []Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("writecsv: %v", err)
	}

	format := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	for _, c := range candles {
		record := []string{
			strconv.FormatInt(c.Timestamp.Unix(), 10),
			format(c.Open),
			format(c.High),
			format(c.Low),
			format(c.Close),
			format(c.Volume),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writecsv: %v", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("writecsv: %v", err)
	}
	return nil
}

// WriteFile writes candles to a CSV file at path
func WriteFile(path string, candles []Candle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writefile: %v", err)
	}
	if err := WriteCSV(f, candles); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
