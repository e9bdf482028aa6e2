package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Stock struct {
	gorm.Model
	Symbol       string `gorm:"unique;not null"`
	Name         string `gorm:"not null"`
	ExchangeName string
	Country      string
	Currency     string
	TypeOfStock  string `gorm:"default:'Common Stock'"`
	// LastUpdateDate is the most recent trading date for which the stock's
	// price history is confirmed complete. Nil until the first reconciliation.
	LastUpdateDate *datatypes.Date `gorm:"type:date"`
}

// DayString renders a calendar-date column as YYYY-MM-DD.
func DayString(d datatypes.Date) string {
	return time.Time(d).Format("2006-01-02")
}

// PublicStock is the stock's outward representation, including its latest
// price bar when one exists. Used by both the REST responses and the
// websocket update payloads.
func PublicStock(stock Stock, latest *StockPrice) map[string]interface{} {
	out := map[string]interface{}{
		"id":           stock.ID,
		"symbol":       stock.Symbol,
		"name":         stock.Name,
		"exchangeName": stock.ExchangeName,
		"country":      stock.Country,
		"currency":     stock.Currency,
		"typeOfStock":  stock.TypeOfStock,
	}
	if stock.LastUpdateDate != nil {
		out["lastUpdateDate"] = DayString(*stock.LastUpdateDate)
	} else {
		out["lastUpdateDate"] = nil
	}
	if latest != nil {
		out["latest"] = map[string]interface{}{
			"date":   DayString(latest.RecordedDate),
			"open":   latest.Open,
			"high":   latest.High,
			"low":    latest.Low,
			"close":  latest.Close,
			"volume": latest.Volume,
		}
	}
	return out
}
