package telegram

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mymmrac/telego"
)

// SecretHeader carries the webhook secret Telegram echoes back on every delivery.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Webhook is the echo handler for Telegram webhook deliveries. Updates are acknowledged
// once decoded and processed in the background. Deliveries that arrive while the adapter is
// stopped are refused with 503 so Telegram retries them.
func (a *Adapter) Webhook(c echo.Context) error {
	if a.cfg.SecretToken != "" {
		got := c.Request().Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.cfg.SecretToken)) != 1 {
			a.log.Warn("Rejected webhook delivery with bad secret", "remote", c.RealIP())
			return c.NoContent(http.StatusForbidden)
		}
	}

	var update telego.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&update); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if !a.dispatch(update) {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}
