package feed

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/nebulatrade/tradesim/internal/entity"
)

const dateLayout = "2006-01-02"

// CSVFeed serves quotes from per-symbol CSV files with Date and Close
// columns. The newest row (the last one in the file) is the current quote.
// Files are re-read on every call so a refreshed file shows up immediately.
type CSVFeed struct {
	dir   string
	files map[string]string
}

// NewCSVFeed creates a feed over dir, with files mapping symbol to file name.
func NewCSVFeed(dir string, files map[string]string) *CSVFeed {
	return &CSVFeed{dir: dir, files: files}
}

func (f *CSVFeed) Quote(ctx context.Context, symbol string) (entity.Quote, error) {
	points, err := f.read(symbol)
	if err != nil {
		return entity.Quote{}, err
	}

	latest := points[len(points)-1]
	return entity.Quote{Symbol: symbol, Price: latest.Close, AsOf: latest.Date}, nil
}

// History returns the newest n price points for symbol, oldest first.
func (f *CSVFeed) History(ctx context.Context, symbol string, n int) ([]entity.PricePoint, error) {
	points, err := f.read(symbol)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}
	return points, nil
}

// Symbols returns the configured symbols, sorted for stable rendering.
func (f *CSVFeed) Symbols() []string {
	out := make([]string, 0, len(f.files))
	for symbol := range f.files {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (f *CSVFeed) read(symbol string) ([]entity.PricePoint, error) {
	file, ok := f.files[symbol]
	if !ok {
		return nil, errors.Wrap(entity.ErrUnknownSymbol, symbol)
	}

	fh, err := os.Open(filepath.Join(f.dir, file))
	if err != nil {
		return nil, errors.Wrapf(err, "open price file for %s", symbol)
	}
	defer fh.Close()

	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read price file for %s", symbol)
	}
	if len(records) < 2 {
		return nil, errors.Wrapf(entity.ErrUnknownSymbol, "%s: no price rows", symbol)
	}

	dateCol, closeCol := -1, -1
	for i, name := range records[0] {
		switch name {
		case "Date":
			dateCol = i
		case "Close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, errors.Errorf("price file for %s misses Date/Close columns", symbol)
	}

	points := make([]entity.PricePoint, 0, len(records)-1)
	for _, rec := range records[1:] {
		date, err := time.Parse(dateLayout, rec[dateCol])
		if err != nil {
			return nil, errors.Wrapf(err, "parse date in price file for %s", symbol)
		}
		price, err := decimal.NewFromString(rec[closeCol])
		if err != nil {
			return nil, errors.Wrapf(err, "parse close in price file for %s", symbol)
		}
		points = append(points, entity.PricePoint{Date: date, Close: price.Round(2)})
	}

	return points, nil
}
