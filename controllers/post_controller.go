package controllers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/models"
	"github.com/cppla/bemechallenge/utils"
)

const (
	maxCaptionRunes = 500
	maxEmojiRunes   = 4
)

// PostController manages challenge submissions, comments and reactions.
type PostController struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, l *ledger.Ledger) *PostController {
	return &PostController{db: db, ledger: l}
}

// CreatePost publishes a submission. Only users who joined the challenge may post.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		Caption  string `json:"caption"`
		MediaURL string `json:"media_url" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	mediaURL := strings.TrimSpace(req.MediaURL)
	if u, err := url.Parse(mediaURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "media_url must be an http(s) url")
		return
	}
	caption := utils.SanitizePlain(req.Caption)
	if utf8.RuneCountInString(caption) > maxCaptionRunes {
		utils.Error(ctx, http.StatusBadRequest, 40022, "caption too long")
		return
	}

	challengeID := ctx.Param("id")
	var challenge models.Challenge
	if err := p.db.First(&challenge, "id = ?", challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "challenge not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load challenge")
		return
	}

	joined, err := p.ledger.FetchAllParticipatedChallengeIDs(ctx.Request.Context(), userID)
	if err != nil {
		respondLedgerError(ctx, err)
		return
	}
	if !joined.Has(challenge.ID) {
		utils.Error(ctx, http.StatusForbidden, 40330, "join the challenge before posting")
		return
	}

	post := models.Post{
		ChallengeID: challenge.ID,
		UserID:      userID,
		Caption:     caption,
		MediaURL:    mediaURL,
	}
	if err := p.db.Create(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create post")
		return
	}
	if err := p.db.Preload("User").First(&post, "id = ?", post.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to load post")
		return
	}

	utils.Success(ctx, gin.H{"post": post})
}

// ListChallengePosts returns a challenge's submissions, newest first.
func (p *PostController) ListChallengePosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var posts []models.Post
	var total int64
	q := p.db.Where("challenge_id = ?", ctx.Param("id"))
	if err := q.Model(&models.Post{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to count posts")
		return
	}
	if err := q.Preload("User").Preload("Reactions").
		Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to list posts")
		return
	}

	utils.Page(ctx, posts, utils.NewPagination(page, pageSize, total))
}

// GetPost returns a post with its comments and reactions.
func (p *PostController) GetPost(ctx *gin.Context) {
	var post models.Post
	err := p.db.Preload("User").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Comments.User").
		Preload("Reactions").
		First(&post, "id = ?", ctx.Param("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load post")
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost removes a post. Authors delete their own; admins moderate any.
func (p *PostController) DeletePost(ctx *gin.Context) {
	post, ok := p.loadPost(ctx)
	if !ok {
		return
	}

	uid, _ := getUserID(ctx)
	if post.UserID != uid && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40321, "you can only delete your own post")
		return
	}

	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to delete post")
		return
	}
	if post.UserID != uid {
		utils.Sugar.Infow("post removed by moderator", "post_id", post.ID, "author_id", post.UserID, "moderator_id", uid)
	}
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// CreateComment allows authenticated users to comment on posts.
func (p *PostController) CreateComment(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid request payload")
		return
	}

	content := utils.Sanitize(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40024, "content cannot be empty")
		return
	}

	post, ok := p.loadPost(ctx)
	if !ok {
		return
	}
	userID, _ := getUserID(ctx)

	comment := models.Comment{
		PostID:  post.ID,
		UserID:  userID,
		Content: content,
	}
	if err := p.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to create comment")
		return
	}
	if err := p.db.Preload("User").First(&comment, "id = ?", comment.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to load comment")
		return
	}

	utils.Success(ctx, gin.H{"comment": comment})
}

// DeleteComment allows the comment owner or admin to delete a comment.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	cid := strings.TrimSpace(ctx.Param("commentId"))
	var cmt models.Comment
	if err := p.db.First(&cmt, "id = ?", cid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to load comment")
		return
	}

	uid, _ := getUserID(ctx)
	if cmt.UserID != uid && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40320, "you can only delete your own comment")
		return
	}
	if err := p.db.Delete(&cmt).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to delete comment")
		return
	}
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}

// React sets the caller's reaction on a post, replacing any previous emoji.
func (p *PostController) React(ctx *gin.Context) {
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, "invalid request payload")
		return
	}
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid emoji")
		return
	}

	post, ok := p.loadPost(ctx)
	if !ok {
		return
	}
	userID, _ := getUserID(ctx)

	reaction := models.Reaction{PostID: post.ID, UserID: userID, Emoji: emoji}
	if err := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
	}).Create(&reaction).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to save reaction")
		return
	}

	utils.Success(ctx, gin.H{"reaction": reaction})
}

// Unreact removes the caller's reaction from a post.
func (p *PostController) Unreact(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	res := p.db.Where("post_id = ? AND user_id = ?", ctx.Param("id"), userID).Delete(&models.Reaction{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to remove reaction")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40421, "reaction not found")
		return
	}
	utils.Success(ctx, gin.H{"message": "reaction removed"})
}

func (p *PostController) loadPost(ctx *gin.Context) (models.Post, bool) {
	var post models.Post
	if err := p.db.First(&post, "id = ?", ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
			return post, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load post")
		return post, false
	}
	return post, true
}
