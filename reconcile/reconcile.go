package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockpulse/marketdata"
	"stockpulse/models"
)

// ErrStockNotFound means the symbol is not in the registry. The symbol list
// normally comes from the registry itself, so hitting this indicates a data
// error upstream of the engine.
var ErrStockNotFound = errors.New("stock not found")

// ErrMalformedSample means a fetched sample failed date or numeric parsing.
// The whole fetch for that symbol is discarded; nothing is committed.
var ErrMalformedSample = errors.New("malformed upstream sample")

// MarketData is the upstream time-series source consumed by the engine.
type MarketData interface {
	FetchTimeSeries(symbol string) (*marketdata.TimeSeriesResponse, error)
}

// Publisher delivers fire-and-forget payloads to a live-connection group.
type Publisher interface {
	Publish(group string, payload interface{})
}

// Outcome describes a single reconciliation run.
type Outcome struct {
	Updated      bool
	Inserted     []models.StockPrice
	NewWatermark *datatypes.Date
}

// Engine runs the fetch-compare-merge-notify cycle for single stocks.
// Reconcile calls for different symbols are safe to run concurrently; calls
// for the same symbol serialize on the stock's row lock, and the unique
// (stock_id, recorded_date) index backstops duplicate inserts.
type Engine struct {
	db     *gorm.DB
	market MarketData
	pub    Publisher
}

// Default is the engine wired at startup, used by the HTTP layer and the
// batch scheduler.
var Default *Engine

func NewEngine(db *gorm.DB, market MarketData, pub Publisher) *Engine {
	return &Engine{db: db, market: market, pub: pub}
}

// Init wires the global engine.
func Init(db *gorm.DB, market MarketData, pub Publisher) {
	Default = NewEngine(db, market, pub)
}

// bar is a fully parsed daily sample.
type bar struct {
	date   time.Time
	open   float64
	high   float64
	low    float64
	close  float64
	volume int64
}

// Reconcile fetches the symbol's daily series, inserts the bars newer than
// the stock's watermark, advances the watermark, and notifies followers when
// anything changed. Inserts and the watermark update commit as one
// transaction; notification happens only after the commit.
func (e *Engine) Reconcile(symbol string) (*Outcome, error) {
	var stock models.Stock
	if err := e.db.Where("symbol = ?", symbol).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStockNotFound, symbol)
		}
		return nil, err
	}

	series, err := e.market.FetchTimeSeries(symbol)
	if err != nil {
		return nil, err
	}

	// Parse everything up front so a malformed sample aborts before any write.
	bars, err := parseSamples(series.Values)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		// Re-read under a row lock; a concurrent run for the same symbol may
		// have advanced the watermark since the first read.
		var locked models.Stock
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("symbol = ?", symbol).First(&locked).Error; err != nil {
			return err
		}

		fresh := bars
		if locked.LastUpdateDate != nil {
			fresh = barsAfter(bars, time.Time(*locked.LastUpdateDate))
		}
		if len(fresh) == 0 {
			return nil
		}

		inserted := make([]models.StockPrice, 0, len(fresh))
		for _, b := range fresh {
			record := models.StockPrice{
				StockID:      locked.ID,
				RecordedDate: datatypes.Date(b.date),
				Open:         b.open,
				High:         b.high,
				Low:          b.low,
				Close:        b.close,
				Volume:       b.volume,
			}
			// Duplicate key means another run already inserted this day; a
			// no-op, not an error.
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				inserted = append(inserted, record)
			}
		}
		if len(inserted) == 0 {
			return nil
		}

		// fresh is sorted most-recent-first, so its head is the new watermark.
		watermark := datatypes.Date(fresh[0].date)
		if err := tx.Model(&locked).Update("last_update_date", watermark).Error; err != nil {
			return err
		}

		outcome.Updated = true
		outcome.Inserted = inserted
		outcome.NewWatermark = &watermark
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.Updated {
		e.notifyFollowers(stock.ID)
	}

	return outcome, nil
}

// parseSamples converts raw upstream values into bars sorted date-descending.
// Upstream documents most-recent-first ordering but the engine does not rely
// on it.
func parseSamples(values []marketdata.TimeSeriesValue) ([]bar, error) {
	bars := make([]bar, 0, len(values))
	for _, v := range values {
		b, err := parseSample(v)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].date.After(bars[j].date)
	})
	return bars, nil
}

func parseSample(v marketdata.TimeSeriesValue) (bar, error) {
	date, err := time.Parse("2006-01-02", v.Datetime)
	if err != nil {
		return bar{}, fmt.Errorf("%w: bad datetime %q", ErrMalformedSample, v.Datetime)
	}

	b := bar{date: date}

	var parseErr error
	parsePrice := func(name, raw string) float64 {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("%w: bad %s %q", ErrMalformedSample, name, raw)
		}
		return value
	}
	b.open = parsePrice("open", v.Open)
	b.high = parsePrice("high", v.High)
	b.low = parsePrice("low", v.Low)
	b.close = parsePrice("close", v.Close)
	if parseErr != nil {
		return bar{}, parseErr
	}

	volume, err := strconv.ParseInt(v.Volume, 10, 64)
	if err != nil || volume < 0 {
		return bar{}, fmt.Errorf("%w: bad volume %q", ErrMalformedSample, v.Volume)
	}
	b.volume = volume

	return b, nil
}

// barsAfter keeps the bars strictly newer than the watermark date. A bar
// dated exactly at the watermark is already stored; this strict comparison is
// the engine's sole de-duplication mechanism.
func barsAfter(bars []bar, watermark time.Time) []bar {
	fresh := make([]bar, 0, len(bars))
	for _, b := range bars {
		if b.date.After(watermark) {
			fresh = append(fresh, b)
		}
	}
	return fresh
}
