package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/middleware"
	"github.com/cppla/bemechallenge/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (string, bool) {
	return middleware.UserID(ctx)
}

func isAdmin(ctx *gin.Context) bool {
	return middleware.IsAdmin(ctx)
}

// respondLedgerError maps ledger failures onto the response envelope.
// Duplicate joins get their own code so clients can show "already joined today"
// instead of a retry prompt.
func respondLedgerError(ctx *gin.Context, err error) {
	var storeErr *ledger.StoreError
	switch {
	case errors.Is(err, ledger.ErrNotAuthenticated):
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	case errors.Is(err, ledger.ErrAlreadyParticipatedToday):
		utils.Error(ctx, http.StatusConflict, 40930, "already participated today")
	case errors.Is(err, ledger.ErrChallengeClosed):
		utils.Error(ctx, http.StatusConflict, 40931, "challenge closed")
	case errors.Is(err, ledger.ErrChallengeNotFound):
		utils.Error(ctx, http.StatusNotFound, 40440, "challenge not found")
	case errors.Is(err, ledger.ErrUnknownChallengeType):
		utils.Error(ctx, http.StatusInternalServerError, 50041, "challenge has an invalid type")
	case errors.As(err, &storeErr):
		utils.Sugar.Errorw("participation store failure", "op", storeErr.Op, "err", storeErr.Err)
		utils.Error(ctx, http.StatusServiceUnavailable, 50340, "participation service unavailable, please retry")
	default:
		utils.Sugar.Errorw("participation failure", "err", err)
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to process participation")
	}
}
