package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/models"
	"github.com/cppla/bemechallenge/utils"
)

// ChallengeController serves challenges and the participation ledger.
type ChallengeController struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

// NewChallengeController creates a new ChallengeController instance.
func NewChallengeController(db *gorm.DB, l *ledger.Ledger) *ChallengeController {
	return &ChallengeController{db: db, ledger: l}
}

// ListChallenges returns paginated challenges, newest first. ?active=true hides closed ones.
func (c *ChallengeController) ListChallenges(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	activeOnly := ctx.Query("active") == "true"

	cacheKey := fmt.Sprintf("%sactive=%t:page=%d:size=%d", utils.CacheChallengeListPrefix, activeOnly, page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	query := c.db.Model(&models.Challenge{})
	if activeOnly {
		query = query.Where("closed = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50046, "failed to count challenges")
		return
	}

	var items []models.Challenge
	if err := query.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50047, "failed to list challenges")
		return
	}

	resp := utils.Envelope(gin.H{
		"items":      items,
		"pagination": utils.NewPagination(page, pageSize, total),
	})
	utils.CacheSetJSON(cacheKey, resp, time.Minute)
	ctx.JSON(http.StatusOK, resp)
}

// GetChallenge returns a single challenge.
func (c *ChallengeController) GetChallenge(ctx *gin.Context) {
	challenge, ok := c.loadChallenge(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"challenge": challenge})
}

// CreateChallenge lets admins publish a new challenge.
func (c *ChallengeController) CreateChallenge(ctx *gin.Context) {
	var req struct {
		Title       string     `json:"title" binding:"required"`
		Description string     `json:"description"`
		Type        string     `json:"type"`
		EndDate     *time.Time `json:"end_date"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}

	title := utils.SanitizePlain(req.Title)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40041, "title cannot be empty")
		return
	}
	if req.Type == "" {
		req.Type = string(ledger.Mandatory)
	}
	typ, err := ledger.ParseChallengeType(strings.ToLower(req.Type))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "type must be mandatory or open")
		return
	}
	if req.EndDate != nil {
		if !req.EndDate.After(time.Now()) {
			utils.Error(ctx, http.StatusBadRequest, 40043, "end_date must be in the future")
			return
		}
		end := req.EndDate.UTC().Truncate(time.Millisecond)
		req.EndDate = &end
	}

	userID, _ := getUserID(ctx)
	challenge := models.Challenge{
		Title:       title,
		Description: utils.Sanitize(req.Description),
		Type:        string(typ),
		EndDate:     req.EndDate,
		CreatedBy:   userID,
	}
	if err := c.db.Create(&challenge).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to create challenge")
		return
	}

	utils.InvalidateByPrefix(utils.CacheChallengeListPrefix)
	utils.Success(ctx, gin.H{"challenge": challenge})
}

// CloseChallenge stops a challenge from accepting new participations.
func (c *ChallengeController) CloseChallenge(ctx *gin.Context) {
	res := c.db.Model(&models.Challenge{}).Where("id = ?", ctx.Param("id")).Update("closed", true)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to close challenge")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40440, "challenge not found")
		return
	}

	utils.InvalidateByPrefix(utils.CacheChallengeListPrefix)
	utils.Success(ctx, gin.H{"message": "challenge closed"})
}

// Join records the caller's participation in a challenge.
func (c *ChallengeController) Join(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	challenge, ok := c.loadChallenge(ctx)
	if !ok {
		return
	}
	typ, err := ledger.ParseChallengeType(challenge.Type)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}

	rec, err := c.ledger.Join(ctx.Request.Context(), userID, challenge.ID, typ)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}

	// The participation is committed; a failed streak refresh only leaves the
	// denormalized leaderboard value behind until the next join.
	status, err := c.ledger.Streak(ctx.Request.Context(), userID)
	if err != nil {
		utils.Sugar.Warnw("streak refresh failed", "user_id", userID, "err", err)
	} else if err := c.db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"consecutive_days":     status.Current,
		"last_participated_at": rec.Timestamp,
	}).Error; err != nil {
		utils.Sugar.Warnw("persist streak failed", "user_id", userID, "err", err)
	}

	utils.InvalidateByPrefix(utils.CacheChallengeListPrefix)
	utils.InvalidateByPrefix(utils.CacheLeaderboardPrefix)

	all, today := c.ledger.Snapshot(userID)
	utils.Success(ctx, gin.H{
		"participation":    rec,
		"streak":           status,
		"participated_ids": all,
		"today_ids":        today,
	})
}

// ParticipatedIDs returns every challenge id the caller ever joined.
func (c *ChallengeController) ParticipatedIDs(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	ids, err := c.ledger.FetchAllParticipatedChallengeIDs(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"challenge_ids": ids})
}

// TodayIDs returns the challenge ids the caller joined since local midnight.
func (c *ChallengeController) TodayIDs(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	ids, err := c.ledger.FetchTodayParticipatedChallengeIDs(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"challenge_ids": ids,
		"day_start":     c.ledger.Calendar().StartOfToday(),
	})
}

// ParticipationStatus tells whether the caller already joined this challenge today.
func (c *ChallengeController) ParticipationStatus(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	challenge, ok := c.loadChallenge(ctx)
	if !ok {
		return
	}
	joined, err := c.ledger.HasParticipatedToday(ctx.Request.Context(), userID, challenge.ID)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"challenge_id":           challenge.ID,
		"participated_today":     joined,
		"can_join":               !challenge.Closed && (challenge.Type == string(ledger.Open) || !joined),
		"challenge_type":         challenge.Type,
		"challenge_participants": challenge.ParticipantsCount,
	})
}

// Streak returns the caller's current streak across all challenges.
func (c *ChallengeController) Streak(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	status, err := c.ledger.Streak(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"streak": status})
}

// Leaderboard lists users by their last recorded streak.
func (c *ChallengeController) Leaderboard(ctx *gin.Context) {
	_, limit := parsePagination("1", ctx.Query("limit"))

	cacheKey := fmt.Sprintf("%slimit=%d", utils.CacheLeaderboardPrefix, limit)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var users []models.User
	if err := c.db.Where("consecutive_days > ?", 0).
		Order("consecutive_days DESC").Order("last_participated_at DESC").
		Limit(limit).Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50045, "failed to load leaderboard")
		return
	}

	cal := c.ledger.Calendar()
	now := cal.Now()
	items := make([]gin.H, 0, len(users))
	for i, u := range users {
		stale := u.LastParticipatedAt == nil || cal.DayDistance(*u.LastParticipatedAt, now) > 1
		items = append(items, gin.H{
			"rank":                 i + 1,
			"user_id":              u.ID,
			"username":             u.Username,
			"avatar_url":           u.AvatarURL,
			"streak":               u.ConsecutiveDays,
			"last_participated_at": u.LastParticipatedAt,
			"stale":                stale,
		})
	}

	resp := utils.Envelope(gin.H{"items": items})
	utils.CacheSetJSON(cacheKey, resp, time.Minute)
	ctx.JSON(http.StatusOK, resp)
}

func (c *ChallengeController) loadChallenge(ctx *gin.Context) (models.Challenge, bool) {
	var challenge models.Challenge
	if err := c.db.First(&challenge, "id = ?", ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "challenge not found")
			return challenge, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load challenge")
		return challenge, false
	}
	return challenge, true
}
