package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/bemechallenge/config"
	"github.com/cppla/bemechallenge/controllers"
	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/middleware"
	"github.com/cppla/bemechallenge/utils"
)

// Setup wires routes, middlewares, and controllers.
func Setup(db *gorm.DB, l *ledger.Ledger) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db, l)
	challengeController := controllers.NewChallengeController(db, l)
	postController := controllers.NewPostController(db, l)
	statsController := controllers.NewStatsController(db, l.Calendar())
	configController := controllers.NewConfigController(l.Calendar())

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public reads
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/calendar", configController.GetCalendar)
	api.GET("/users/:id", authController.GetUserPublic)
	api.GET("/challenges", challengeController.ListChallenges)
	api.GET("/challenges/:id", challengeController.GetChallenge)
	api.GET("/challenges/:id/posts", postController.ListChallengePosts)
	api.GET("/posts/:id", postController.GetPost)
	api.GET("/leaderboard/streaks", challengeController.Leaderboard)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	protected.POST("/challenges/:id/join", challengeController.Join)
	protected.GET("/challenges/:id/participation", challengeController.ParticipationStatus)
	protected.GET("/participations/ids", challengeController.ParticipatedIDs)
	protected.GET("/participations/today", challengeController.TodayIDs)
	protected.GET("/streak", challengeController.Streak)
	protected.POST("/challenges/:id/posts", postController.CreatePost)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.POST("/posts/:id/comments", postController.CreateComment)
	protected.DELETE("/comments/:commentId", postController.DeleteComment)
	protected.PUT("/posts/:id/reactions", postController.React)
	protected.DELETE("/posts/:id/reactions", postController.Unreact)

	admin := protected.Group("")
	admin.Use(middleware.AdminRequired())
	admin.POST("/challenges", challengeController.CreateChallenge)
	admin.POST("/challenges/:id/close", challengeController.CloseChallenge)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
