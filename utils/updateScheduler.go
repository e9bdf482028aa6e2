package utils

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"stockpulse/config"
	"stockpulse/database"
	"stockpulse/models"
	"stockpulse/reconcile"
)

// logScheduler logs scheduler events with timestamp
func logScheduler(message string) {
	log.Printf("[PRICE-SCHEDULER %s] %s", time.Now().Format(time.RFC3339), message)
}

// RunTimeSeriesUpdate enumerates every tracked symbol and reconciles each on
// its own goroutine. Symbols are grouped into batches and each batch starts
// one delay later than the previous, to stay under the upstream rate limit.
// A symbol's failure is logged and never stops the rest of the batch.
func RunTimeSeriesUpdate(engine *reconcile.Engine) {
	var symbols []string
	if err := database.Database.Db.Model(&models.Stock{}).
		Pluck("symbol", &symbols).Error; err != nil {
		logScheduler("Error listing symbols: " + err.Error())
		return
	}

	batchSize := config.AppConfig.UpdateBatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	batchDelay := time.Duration(config.AppConfig.UpdateBatchDelay) * time.Second

	logScheduler("Dispatching time series update for " + time.Now().Format("2006-01-02"))

	for i, symbol := range symbols {
		delay := time.Duration(i/batchSize) * batchDelay
		go func(sym string, wait time.Duration) {
			time.Sleep(wait)
			if _, err := engine.Reconcile(sym); err != nil {
				log.Printf("[PRICE-SCHEDULER] reconcile %s failed: %v", sym, err)
			}
		}(symbol, delay)
	}
}

// InitializeUpdateScheduler starts the periodic price refresh cron.
func InitializeUpdateScheduler(engine *reconcile.Engine) *cron.Cron {
	logScheduler("Initializing price update scheduler...")

	c := cron.New()
	if _, err := c.AddFunc(config.AppConfig.UpdateCronSpec, func() {
		RunTimeSeriesUpdate(engine)
	}); err != nil {
		log.Fatalf("Invalid UPDATE_CRON_SPEC %q: %v", config.AppConfig.UpdateCronSpec, err)
	}
	c.Start()

	logScheduler("Price update scheduler started with spec " + config.AppConfig.UpdateCronSpec)
	return c
}
