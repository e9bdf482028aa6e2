package reconcile

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stockpulse/marketdata"
	"stockpulse/models"
	"stockpulse/ws"
)

type fakeMarket struct {
	resp  *marketdata.TimeSeriesResponse
	err   error
	calls int
}

func (f *fakeMarket) FetchTimeSeries(symbol string) (*marketdata.TimeSeriesResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type published struct {
	group   string
	payload interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(group string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{group: group, payload: payload})
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A fresh pooled connection would see an empty in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Stock{}, &models.StockPrice{}, &models.Follow{},
	))
	return db
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func watermarkOf(t *testing.T, db *gorm.DB, symbol string) *datatypes.Date {
	t.Helper()
	var stock models.Stock
	require.NoError(t, db.Where("symbol = ?", symbol).First(&stock).Error)
	return stock.LastUpdateDate
}

func createStock(t *testing.T, db *gorm.DB, symbol string, watermark string) models.Stock {
	t.Helper()
	stock := models.Stock{Symbol: symbol, Name: symbol + " Inc"}
	if watermark != "" {
		d := datatypes.Date(day(t, watermark))
		stock.LastUpdateDate = &d
	}
	require.NoError(t, db.Create(&stock).Error)
	return stock
}

func priceCount(t *testing.T, db *gorm.DB, stockID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.StockPrice{}).Where("stock_id = ?", stockID).Count(&count).Error)
	return count
}

// threeSamples is the canonical upstream response: 2023-08-08, 2023-08-07,
// 2023-08-04, most-recent-first.
func threeSamples() *marketdata.TimeSeriesResponse {
	return &marketdata.TimeSeriesResponse{
		Status: "ok",
		Values: []marketdata.TimeSeriesValue{
			{Datetime: "2023-08-08", Open: "181.27", High: "183.13", Low: "180.80", Close: "182.89", Volume: "51235900"},
			{Datetime: "2023-08-07", Open: "182.13", High: "183.39", Low: "179.69", Close: "178.85", Volume: "97576100"},
			{Datetime: "2023-08-04", Open: "185.52", High: "187.38", Low: "181.92", Close: "181.99", Volume: "115799700"},
		},
	}
}

func TestReconcileFirstRun(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "")
	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, &fakePublisher{})

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)

	assert.True(t, outcome.Updated)
	assert.Len(t, outcome.Inserted, 3)
	require.NotNil(t, outcome.NewWatermark)
	assert.Equal(t, "2023-08-08", models.DayString(*outcome.NewWatermark))

	assert.EqualValues(t, 3, priceCount(t, db, stock.ID))
	wm := watermarkOf(t, db, "AAPL")
	require.NotNil(t, wm)
	assert.Equal(t, "2023-08-08", models.DayString(*wm))
}

func TestReconcileNothingNew(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "2023-08-08")
	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, &fakePublisher{})

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)

	assert.False(t, outcome.Updated)
	assert.Empty(t, outcome.Inserted)
	assert.Nil(t, outcome.NewWatermark)
	assert.EqualValues(t, 0, priceCount(t, db, stock.ID))

	wm := watermarkOf(t, db, "AAPL")
	require.NotNil(t, wm)
	assert.Equal(t, "2023-08-08", models.DayString(*wm))
}

func TestReconcileOneNewDay(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "2023-08-07")
	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, &fakePublisher{})

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)

	assert.True(t, outcome.Updated)
	require.Len(t, outcome.Inserted, 1)
	assert.Equal(t, "2023-08-08", models.DayString(outcome.Inserted[0].RecordedDate))
	assert.EqualValues(t, 1, priceCount(t, db, stock.ID))

	wm := watermarkOf(t, db, "AAPL")
	require.NotNil(t, wm)
	assert.Equal(t, "2023-08-08", models.DayString(*wm))
}

func TestReconcileTwoNewDays(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "2023-08-04")
	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, &fakePublisher{})

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)

	assert.True(t, outcome.Updated)
	require.Len(t, outcome.Inserted, 2)
	assert.Equal(t, "2023-08-08", models.DayString(outcome.Inserted[0].RecordedDate))
	assert.Equal(t, "2023-08-07", models.DayString(outcome.Inserted[1].RecordedDate))
	assert.EqualValues(t, 2, priceCount(t, db, stock.ID))

	wm := watermarkOf(t, db, "AAPL")
	require.NotNil(t, wm)
	assert.Equal(t, "2023-08-08", models.DayString(*wm))
}

func TestReconcileUpstreamUnavailable(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "")
	pub := &fakePublisher{}
	engine := NewEngine(db, &fakeMarket{err: marketdata.ErrUpstreamUnavailable}, pub)

	_, err := engine.Reconcile("AAPL")
	assert.ErrorIs(t, err, marketdata.ErrUpstreamUnavailable)

	assert.EqualValues(t, 0, priceCount(t, db, stock.ID))
	assert.Nil(t, watermarkOf(t, db, "AAPL"))
	assert.Empty(t, pub.msgs)
}

func TestReconcileUnknownSymbol(t *testing.T) {
	db := setupDB(t)
	market := &fakeMarket{resp: threeSamples()}
	engine := NewEngine(db, market, &fakePublisher{})

	_, err := engine.Reconcile("NOPE")
	assert.ErrorIs(t, err, ErrStockNotFound)
	// The upstream is never consulted for an unknown symbol.
	assert.Zero(t, market.calls)
}

func TestReconcileIdempotent(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "")
	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, &fakePublisher{})

	first, err := engine.Reconcile("AAPL")
	require.NoError(t, err)
	assert.True(t, first.Updated)

	second, err := engine.Reconcile("AAPL")
	require.NoError(t, err)
	assert.False(t, second.Updated)
	assert.Empty(t, second.Inserted)

	assert.EqualValues(t, 3, priceCount(t, db, stock.ID))
}

func TestReconcileUnsortedUpstream(t *testing.T) {
	db := setupDB(t)
	createStock(t, db, "AAPL", "")

	// Oldest-first input must not poison the watermark.
	resp := threeSamples()
	resp.Values[0], resp.Values[2] = resp.Values[2], resp.Values[0]
	engine := NewEngine(db, &fakeMarket{resp: resp}, &fakePublisher{})

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)

	require.NotNil(t, outcome.NewWatermark)
	assert.Equal(t, "2023-08-08", models.DayString(*outcome.NewWatermark))

	wm := watermarkOf(t, db, "AAPL")
	require.NotNil(t, wm)
	assert.Equal(t, "2023-08-08", models.DayString(*wm))
}

func TestReconcileMalformedSampleAbortsRun(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "")

	resp := threeSamples()
	resp.Values[1].Close = "not-a-number"
	pub := &fakePublisher{}
	engine := NewEngine(db, &fakeMarket{resp: resp}, pub)

	_, err := engine.Reconcile("AAPL")
	assert.ErrorIs(t, err, ErrMalformedSample)

	// No partial batch: nothing committed, nobody notified.
	assert.EqualValues(t, 0, priceCount(t, db, stock.ID))
	assert.Nil(t, watermarkOf(t, db, "AAPL"))
	assert.Empty(t, pub.msgs)
}

func TestReconcileMalformedVolume(t *testing.T) {
	db := setupDB(t)
	createStock(t, db, "AAPL", "")

	resp := threeSamples()
	resp.Values[0].Volume = "-5"
	engine := NewEngine(db, &fakeMarket{resp: resp}, &fakePublisher{})

	_, err := engine.Reconcile("AAPL")
	assert.ErrorIs(t, err, ErrMalformedSample)
}

func TestReconcileDuplicateRowIsNoOp(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "2023-08-04")

	// Another run already landed 2023-08-08 but its watermark write is not
	// visible to us; the unique index turns our duplicate into a no-op.
	require.NoError(t, db.Create(&models.StockPrice{
		StockID:      stock.ID,
		RecordedDate: datatypes.Date(day(t, "2023-08-08")),
		Close:        182.89,
		Volume:       51235900,
	}).Error)

	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, &fakePublisher{})

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)

	assert.True(t, outcome.Updated)
	require.Len(t, outcome.Inserted, 1)
	assert.Equal(t, "2023-08-07", models.DayString(outcome.Inserted[0].RecordedDate))

	// Still exactly one row per trading day.
	assert.EqualValues(t, 2, priceCount(t, db, stock.ID))
	wm := watermarkOf(t, db, "AAPL")
	require.NotNil(t, wm)
	assert.Equal(t, "2023-08-08", models.DayString(*wm))
}

func TestReconcileWatermarkMonotonic(t *testing.T) {
	db := setupDB(t)
	createStock(t, db, "AAPL", "2023-08-08")

	// Upstream serving only stale days must not move the watermark backwards.
	resp := &marketdata.TimeSeriesResponse{
		Status: "ok",
		Values: []marketdata.TimeSeriesValue{
			{Datetime: "2023-08-04", Open: "185.52", High: "187.38", Low: "181.92", Close: "181.99", Volume: "115799700"},
		},
	}
	engine := NewEngine(db, &fakeMarket{resp: resp}, &fakePublisher{})

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)
	assert.False(t, outcome.Updated)

	wm := watermarkOf(t, db, "AAPL")
	require.NotNil(t, wm)
	assert.Equal(t, "2023-08-08", models.DayString(*wm))
}

func TestReconcileNotifiesEveryFollower(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "")
	other := createStock(t, db, "MSFT", "")

	follower1 := models.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "x"}
	follower2 := models.User{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Password: "x"}
	bystander := models.User{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Password: "x"}
	require.NoError(t, db.Create(&follower1).Error)
	require.NoError(t, db.Create(&follower2).Error)
	require.NoError(t, db.Create(&bystander).Error)

	require.NoError(t, db.Create(&models.Follow{UserID: follower1.ID, StockID: stock.ID}).Error)
	require.NoError(t, db.Create(&models.Follow{UserID: follower2.ID, StockID: stock.ID}).Error)
	require.NoError(t, db.Create(&models.Follow{UserID: bystander.ID, StockID: other.ID}).Error)

	pub := &fakePublisher{}
	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, pub)

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)
	require.True(t, outcome.Updated)

	require.Len(t, pub.msgs, 2)
	groups := []string{pub.msgs[0].group, pub.msgs[1].group}
	assert.Contains(t, groups, ws.GroupForUser(follower1.ID))
	assert.Contains(t, groups, ws.GroupForUser(follower2.ID))

	// Every payload carries the stock's newest bar.
	for _, msg := range pub.msgs {
		payload, ok := msg.payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "AAPL", payload["symbol"])
		latest, ok := payload["latest"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "2023-08-08", latest["date"])
	}
}

func TestReconcileNoFollowersNoPublish(t *testing.T) {
	db := setupDB(t)
	createStock(t, db, "AAPL", "")
	pub := &fakePublisher{}
	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, pub)

	outcome, err := engine.Reconcile("AAPL")
	require.NoError(t, err)
	assert.True(t, outcome.Updated)
	assert.Empty(t, pub.msgs)
}

func TestReconcileNoUpdateNoNotify(t *testing.T) {
	db := setupDB(t)
	stock := createStock(t, db, "AAPL", "2023-08-08")

	follower := models.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "x"}
	require.NoError(t, db.Create(&follower).Error)
	require.NoError(t, db.Create(&models.Follow{UserID: follower.ID, StockID: stock.ID}).Error)

	pub := &fakePublisher{}
	engine := NewEngine(db, &fakeMarket{resp: threeSamples()}, pub)

	_, err := engine.Reconcile("AAPL")
	require.NoError(t, err)
	assert.Empty(t, pub.msgs)
}

func TestParseSamplesSortsDescending(t *testing.T) {
	values := []marketdata.TimeSeriesValue{
		{Datetime: "2023-08-04", Open: "1", High: "1", Low: "1", Close: "1", Volume: "1"},
		{Datetime: "2023-08-08", Open: "1", High: "1", Low: "1", Close: "1", Volume: "1"},
		{Datetime: "2023-08-07", Open: "1", High: "1", Low: "1", Close: "1", Volume: "1"},
	}

	bars, err := parseSamples(values)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "2023-08-08", bars[0].date.Format("2006-01-02"))
	assert.Equal(t, "2023-08-07", bars[1].date.Format("2006-01-02"))
	assert.Equal(t, "2023-08-04", bars[2].date.Format("2006-01-02"))
}

func TestBarsAfterIsStrict(t *testing.T) {
	bars := []bar{
		{date: time.Date(2023, 8, 8, 0, 0, 0, 0, time.UTC)},
		{date: time.Date(2023, 8, 7, 0, 0, 0, 0, time.UTC)},
	}

	fresh := barsAfter(bars, time.Date(2023, 8, 7, 0, 0, 0, 0, time.UTC))
	require.Len(t, fresh, 1)
	assert.Equal(t, "2023-08-08", fresh[0].date.Format("2006-01-02"))
}
