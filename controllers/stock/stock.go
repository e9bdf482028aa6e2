package stockController

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"stockpulse/database"
	"stockpulse/marketdata"
	"stockpulse/middleware"
	"stockpulse/models"
	"stockpulse/reconcile"
)

const pricePageSize = 20

// latestVolumeOrder sorts stocks by the volume of their newest price bar.
const latestVolumeOrder = "(SELECT volume FROM stock_prices WHERE stock_prices.stock_id = stocks.id ORDER BY recorded_date DESC LIMIT 1) DESC"

// withLatest resolves each stock's newest bar and renders the public shape.
func withLatest(db *gorm.DB, stocks []models.Stock) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(stocks))
	for _, stock := range stocks {
		var latest models.StockPrice
		err := db.Where("stock_id = ?", stock.ID).
			Order("recorded_date DESC").First(&latest).Error
		if err != nil {
			out = append(out, models.PublicStock(stock, nil))
			continue
		}
		out = append(out, models.PublicStock(stock, &latest))
	}
	return out
}

// GetStockPrices returns a page of stocks that have price history, ordered by
// their latest daily volume, each with its newest bar.
func GetStockPrices(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	db := database.Database.Db

	var total int64
	if err := db.Model(&models.Stock{}).
		Where("last_update_date IS NOT NULL").Count(&total).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch stocks!", nil)
	}

	var stocks []models.Stock
	if err := db.Where("last_update_date IS NOT NULL").
		Order(latestVolumeOrder).
		Offset((page - 1) * pricePageSize).
		Limit(pricePageSize).
		Find(&stocks).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch stocks!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Stock prices fetched!", fiber.Map{
		"totalRecords": total,
		"totalPages":   (total + pricePageSize - 1) / pricePageSize,
		"currentPage":  page,
		"stocks":       withLatest(db, stocks),
	})
}

// GetFollowedStocks returns the caller's followed stocks with their latest bars.
func GetFollowedStocks(c *fiber.Ctx) error {
	userID := c.Locals("userId").(uint)
	db := database.Database.Db

	var stocks []models.Stock
	if err := db.Joins("JOIN follows ON follows.stock_id = stocks.id").
		Where("follows.user_id = ?", userID).
		Find(&stocks).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch followed stocks!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Followed stocks fetched!", withLatest(db, stocks))
}

// FollowStock subscribes the caller to a stock's live updates.
func FollowStock(c *fiber.Ctx) error {
	userID := c.Locals("userId").(uint)

	reqData := new(struct {
		StockID uint `json:"stockId"`
	})
	if err := c.BodyParser(reqData); err != nil || reqData.StockID == 0 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	db := database.Database.Db

	var stock models.Stock
	if err := db.First(&stock, reqData.StockID).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Stock not found!", nil)
	}

	var existing models.Follow
	if err := db.Where("user_id = ? AND stock_id = ?", userID, stock.ID).First(&existing).Error; err == nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Already following!", nil)
	}

	follow := models.Follow{UserID: userID, StockID: stock.ID}
	if err := db.Create(&follow).Error; err != nil {
		log.Printf("Error creating follow for user %d stock %d: %v", userID, stock.ID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to follow stock!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Now following "+stock.Symbol+".", fiber.Map{
		"stockId": stock.ID,
		"symbol":  stock.Symbol,
	})
}

// UnfollowStock removes the caller's subscription to a stock.
func UnfollowStock(c *fiber.Ctx) error {
	userID := c.Locals("userId").(uint)

	reqData := new(struct {
		StockID uint `json:"stockId"`
	})
	if err := c.BodyParser(reqData); err != nil || reqData.StockID == 0 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	db := database.Database.Db

	var follow models.Follow
	if err := db.Where("user_id = ? AND stock_id = ?", userID, reqData.StockID).First(&follow).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Not following.", nil)
	}

	if err := db.Delete(&follow).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to unfollow stock!", nil)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RequestStock looks a symbol up: if already tracked the stock is returned,
// otherwise it is resolved against the upstream reference listing, created,
// and scheduled for its first reconciliation.
func RequestStock(c *fiber.Ctx) error {
	reqData := new(struct {
		Symbol string `json:"symbol"`
	})
	if err := c.BodyParser(reqData); err != nil || reqData.Symbol == "" {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Symbol is required!", nil)
	}

	db := database.Database.Db

	var stock models.Stock
	if err := db.Where("symbol = ?", reqData.Symbol).First(&stock).Error; err == nil {
		return middleware.JsonResponse(c, fiber.StatusOK, true, "Stock already tracked!", models.PublicStock(stock, nil))
	}

	meta, err := marketdata.NewClient().LookupStock(reqData.Symbol)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Market data provider unavailable!", nil)
	}
	if meta == nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Unknown symbol!", nil)
	}

	stock = models.Stock{
		Symbol:       meta.Symbol,
		Name:         meta.Name,
		ExchangeName: meta.Exchange,
		Country:      meta.Country,
		Currency:     meta.Currency,
		TypeOfStock:  meta.Type,
	}
	if err := db.Create(&stock).Error; err != nil {
		log.Printf("Error creating stock %s: %v", meta.Symbol, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create stock!", nil)
	}

	// First reconciliation runs in the background; the price history shows up
	// once it lands.
	go func(symbol string) {
		if _, err := reconcile.Default.Reconcile(symbol); err != nil {
			log.Printf("Initial reconcile for %s failed: %v", symbol, err)
		}
	}(stock.Symbol)

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Stock added!", models.PublicStock(stock, nil))
}

// RefreshStock triggers a reconciliation for one symbol. Admin only.
func RefreshStock(c *fiber.Ctx) error {
	symbol := c.Params("symbol")
	if symbol == "" {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Symbol is required!", nil)
	}

	outcome, err := reconcile.Default.Reconcile(symbol)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrStockNotFound):
			return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Stock not found!", nil)
		case errors.Is(err, marketdata.ErrUpstreamUnavailable):
			return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Market data provider unavailable!", nil)
		case errors.Is(err, reconcile.ErrMalformedSample):
			log.Printf("Reconcile %s: %v", symbol, err)
			return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Malformed upstream data, refresh discarded!", nil)
		default:
			log.Printf("Reconcile %s: %v", symbol, err)
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Refresh failed!", nil)
		}
	}

	data := fiber.Map{
		"updated":  outcome.Updated,
		"inserted": len(outcome.Inserted),
	}
	if outcome.NewWatermark != nil {
		data["newWatermark"] = models.DayString(*outcome.NewWatermark)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Refresh complete.", data)
}
