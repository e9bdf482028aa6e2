package stockValidator

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"stockpulse/middleware"
)

// Symbols are upper-case tickers, optionally with a class suffix (BRK.B).
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,12}(\.[A-Z]{1,4})?$`)

// RequestStock validator middleware
func RequestStock() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			Symbol string `json:"symbol"`
		})
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		symbol := strings.TrimSpace(reqData.Symbol)
		if symbol == "" || !symbolPattern.MatchString(symbol) {
			errors["symbol"] = "Invalid symbol!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		return c.Next()
	}
}

// Follow validator middleware, shared by follow and unfollow
func Follow() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			StockID uint `json:"stockId"`
		})
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if reqData.StockID == 0 {
			return middleware.ValidationErrorResponse(c, map[string]string{
				"stockId": "Stock id is required!",
			})
		}

		return c.Next()
	}
}
