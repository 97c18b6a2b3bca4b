package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/bemechallenge/config"
	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/utils"
)

// ConfigController serves client-facing runtime configuration.
type ConfigController struct {
	cal *ledger.Calendar
}

func NewConfigController(cal *ledger.Calendar) *ConfigController {
	return &ConfigController{cal: cal}
}

// GetCalendar tells clients which day boundary the server counts streaks by.
func (c *ConfigController) GetCalendar(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"timezone":        c.cal.Now().Location().String(),
		"now":             c.cal.Now(),
		"start_of_today":  c.cal.StartOfToday(),
		"rate_limit":      cfg.RateLimitPerMinute,
		"challenge_types": []ledger.ChallengeType{ledger.Mandatory, ledger.Open},
	})
}
