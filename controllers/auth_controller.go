package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/bemechallenge/config"
	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/middleware"
	"github.com/cppla/bemechallenge/models"
	"github.com/cppla/bemechallenge/utils"
)

// AuthController handles local account registration, login and profile endpoints.
type AuthController struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(db *gorm.DB, l *ledger.Ledger) *AuthController {
	return &AuthController{db: db, ledger: l}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if l := len(req.Username); l < 3 || l > 32 || !validUsername(req.Username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username must be 3-32 letters, digits, '-' or '_'")
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}

	var existing models.User
	if err := a.db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40901, "username already exists")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
	}
	if err := a.db.Create(&user).Error; err != nil {
		utils.Sugar.Errorw("create user failed", "username", user.Username, "err", err)
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, config.Get().TokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  userResponse(user, true),
	})
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, config.Get().TokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  userResponse(user, true),
	})
}

// Logout revokes the bearer token and drops cached participation state.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	claimsVal, _ := ctx.Get(middleware.ContextClaimsKey)
	claims, ok := claimsVal.(*utils.Claims)
	if token == "" || !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}

	expiresAt := time.Now().Add(config.Get().TokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(token, expiresAt)
	a.ledger.Forget(claims.UserID)

	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the authenticated user's profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.First(&user, "id = ?", userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	utils.Success(ctx, userResponse(user, true))
}

// UpdateProfile changes avatar and bio.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	var req struct {
		AvatarURL *string `json:"avatar_url"`
		Bio       *string `json:"bio"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, "invalid request payload")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	updates := map[string]interface{}{}
	if req.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
	}
	if req.Bio != nil {
		bio := utils.SanitizePlain(*req.Bio)
		if len([]rune(bio)) > 255 {
			utils.Error(ctx, http.StatusBadRequest, 40005, "bio too long")
			return
		}
		updates["bio"] = bio
	}
	if len(updates) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40006, "nothing to update")
		return
	}

	if err := a.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to update profile")
		return
	}

	var user models.User
	if err := a.db.First(&user, "id = ?", userID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to load profile")
		return
	}
	utils.Success(ctx, userResponse(user, true))
}

// GetUserPublic returns a public user profile including the live streak.
func (a *AuthController) GetUserPublic(ctx *gin.Context) {
	var user models.User
	if err := a.db.First(&user, "id = ?", ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50007, "failed to load user")
		return
	}

	status, err := a.ledger.Streak(ctx.Request.Context(), user.ID)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}

	resp := userResponse(user, false)
	resp["streak"] = status
	utils.Success(ctx, resp)
}

func validUsername(s string) bool {
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

func userResponse(user models.User, private bool) gin.H {
	m := gin.H{
		"id":                   user.ID,
		"username":             user.Username,
		"avatar_url":           user.AvatarURL,
		"bio":                  user.Bio,
		"consecutive_days":     user.ConsecutiveDays,
		"last_participated_at": user.LastParticipatedAt,
		"created_at":           user.CreatedAt,
	}
	if private {
		m["email"] = user.Email
		m["is_admin"] = config.Get().IsAdmin(user.Username)
	}
	return m
}
