package reconcile

import (
	"log"

	"stockpulse/models"
	"stockpulse/ws"
)

// notifyFollowers pushes the stock's current representation, including its
// now-latest bar, to every follower's connection group. Best-effort per
// user; a failed lookup or delivery never rolls back the committed
// reconciliation.
func (e *Engine) notifyFollowers(stockID uint) {
	var stock models.Stock
	if err := e.db.First(&stock, stockID).Error; err != nil {
		log.Printf("[RECONCILE] notify: stock %d vanished: %v", stockID, err)
		return
	}

	var latest models.StockPrice
	if err := e.db.Where("stock_id = ?", stockID).
		Order("recorded_date DESC").First(&latest).Error; err != nil {
		log.Printf("[RECONCILE] notify: no price records for %s: %v", stock.Symbol, err)
		return
	}

	var followerIDs []uint
	if err := e.db.Model(&models.Follow{}).
		Where("stock_id = ?", stockID).
		Pluck("user_id", &followerIDs).Error; err != nil {
		log.Printf("[RECONCILE] notify: failed to list followers of %s: %v", stock.Symbol, err)
		return
	}

	payload := models.PublicStock(stock, &latest)
	for _, userID := range followerIDs {
		e.pub.Publish(ws.GroupForUser(userID), payload)
	}
}
