package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/selivandex/trader-core/pkg/models"
)

// CSVSource reads daily bars from a date,open,high,low,close,volume file.
// The symbol argument of Candles is ignored; one file holds one symbol.
type CSVSource struct {
	path string
}

// NewCSVSource creates new CSV-backed market source
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Candles returns bars within [from, to]; zero times leave that side open
func (s *CSVSource) Candles(ctx context.Context, symbol string, from, to time.Time) (models.Series, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	all, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	out := make(models.Series, 0, len(all))
	for _, c := range all {
		if !from.IsZero() && c.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

var csvColumns = []string{"date", "open", "high", "low", "close", "volume"}

// ParseCSV decodes bars with a header row; rows may be in any order
func ParseCSV(r io.Reader) (models.Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range csvColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var series models.Series
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseDate(record[idx["date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		candle := models.Candle{Timestamp: ts}
		fields := []*decimal.Decimal{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume}
		for i, col := range csvColumns[1:] {
			v, err := decimal.NewFromString(strings.TrimSpace(record[idx[col]]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s %q", line, col, record[idx[col]])
			}
			*fields[i] = v
		}

		series = append(series, candle)
	}

	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})

	if len(series) > 0 {
		if err := series.Validate(); err != nil {
			return nil, err
		}
	}

	return series, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
