package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/utils"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		page, size         string
		wantPage, wantSize int
	}{
		{"", "", 1, 20},
		{"3", "50", 3, 50},
		{"0", "0", 1, 20},
		{"-2", "101", 1, 20},
		{"abc", "100", 1, 100},
	}
	for _, tt := range tests {
		page, size := parsePagination(tt.page, tt.size)
		if page != tt.wantPage || size != tt.wantSize {
			t.Errorf("parsePagination(%q, %q) = %d, %d; want %d, %d", tt.page, tt.size, page, size, tt.wantPage, tt.wantSize)
		}
	}
}

func TestRespondLedgerError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"not authenticated", ledger.ErrNotAuthenticated, http.StatusUnauthorized, 40110},
		{"duplicate", fmt.Errorf("join: %w", ledger.ErrAlreadyParticipatedToday), http.StatusConflict, 40930},
		{"closed", ledger.ErrChallengeClosed, http.StatusConflict, 40931},
		{"not found", ledger.ErrChallengeNotFound, http.StatusNotFound, 40440},
		{"bad type", ledger.ErrUnknownChallengeType, http.StatusInternalServerError, 50041},
		{"store", &ledger.StoreError{Op: "record", Err: errors.New("deadlock")}, http.StatusServiceUnavailable, 50340},
		{"other", errors.New("boom"), http.StatusInternalServerError, 50040},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(w)
			respondLedgerError(ctx, tt.err)

			var resp utils.JSONResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if w.Code != tt.wantStatus || resp.Code != tt.wantCode {
				t.Fatalf("expected %d/%d, got %d/%d", tt.wantStatus, tt.wantCode, w.Code, resp.Code)
			}
		})
	}
}

func TestValidUsername(t *testing.T) {
	for _, ok := range []string{"alice", "Bob_99", "night-owl"} {
		if !validUsername(ok) {
			t.Errorf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"a b", "émile", "x@y", "semi;colon"} {
		if validUsername(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}
