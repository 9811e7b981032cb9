package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Data returns the raw callback data with Telebot's "\f" marker stripped.
// Buttons built by this bot carry plain action strings in Data, so no
// unique/payload splitting is performed here.
func Data(c tele.Context) string {
	cb := c.Callback()
	if cb == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(cb.Data, "\f"))
}
