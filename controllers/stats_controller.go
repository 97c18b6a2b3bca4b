package controllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/models"
	"github.com/cppla/bemechallenge/utils"
)

// StatsController provides aggregate counts.
type StatsController struct {
	db  *gorm.DB
	cal *ledger.Calendar
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, cal *ledger.Calendar) *StatsController {
	return &StatsController{db: db, cal: cal}
}

// GetStats returns user, challenge and post counts plus today's participations.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount, challengeCount, activeChallenges, postCount, today int64

	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		userCount = 0
	}
	if err := s.db.Model(&models.Challenge{}).Count(&challengeCount).Error; err != nil {
		challengeCount = 0
	}
	if err := s.db.Model(&models.Challenge{}).Where("closed = ?", false).Count(&activeChallenges).Error; err != nil {
		activeChallenges = 0
	}
	if err := s.db.Model(&models.Post{}).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := s.db.Model(&models.Participation{}).
		Where("timestamp >= ?", s.cal.StartOfToday().UTC()).
		Count(&today).Error; err != nil {
		today = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":           userCount,
		"challenge_count":      challengeCount,
		"active_challenges":    activeChallenges,
		"post_count":           postCount,
		"participations_today": today,
	})
}
