package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/bemechallenge/config"
)

func init() {
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{JWTSecret: "test-secret"})
	SetRedis(nil)
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("u-1", "alice", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseTokenRejectsExpiredAndTampered(t *testing.T) {
	expired, err := GenerateToken("u-1", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	good, err := GenerateToken("u-1", "alice", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(good + "x"); err == nil {
		t.Fatal("expected tampered token to fail")
	}
}

func TestTokensAreUniquePerIssue(t *testing.T) {
	a, err := GenerateToken("u-9", "zoe", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := GenerateToken("u-9", "zoe", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Fatal("tokens minted back-to-back must differ")
	}

	BlacklistToken(a, time.Now().Add(time.Hour))
	if !IsTokenBlacklisted(a) {
		t.Fatal("expected revoked token to be blacklisted")
	}
	if IsTokenBlacklisted(b) {
		t.Fatal("revoking one session must not revoke another")
	}
	if _, err := ParseToken(b); err != nil {
		t.Fatalf("second token should still parse: %v", err)
	}
}

func TestBlacklistInMemory(t *testing.T) {
	if IsTokenBlacklisted("tok-a") {
		t.Fatal("fresh token must not be blacklisted")
	}
	BlacklistToken("tok-a", time.Now().Add(time.Hour))
	if !IsTokenBlacklisted("tok-a") {
		t.Fatal("expected token to be blacklisted")
	}
	BlacklistToken("tok-b", time.Now().Add(-time.Second))
	if IsTokenBlacklisted("tok-b") {
		t.Fatal("already expired token should not be stored")
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Fatal("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("expected mismatch")
	}
}

func TestSanitize(t *testing.T) {
	if got := SanitizePlain(`  <b>Sunrise</b><script>alert(1)</script> `); got != "Sunrise" {
		t.Fatalf("unexpected plain sanitize result %q", got)
	}
	if got := Sanitize(`<a href="javascript:alert(1)">x</a><p>ok</p>`); strings.Contains(got, "javascript") || !strings.Contains(got, "<p>ok</p>") {
		t.Fatalf("unexpected ugc sanitize result %q", got)
	}
}

func TestRecoveryWithZap(t *testing.T) {
	r := gin.New()
	r.Use(Ginzap(zap.NewNop(), time.RFC3339, true), RecoveryWithZap(zap.NewNop(), true))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":50000`) {
		t.Fatalf("expected error envelope, got %s", w.Body.String())
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		pw   string
		want error
	}{
		{"short", ErrPasswordLength},
		{"exactly8", nil},
		{strings.Repeat("x", MaxPasswordLength), nil},
		{strings.Repeat("x", MaxPasswordLength+1), ErrPasswordLength},
	}
	for _, tt := range tests {
		if err := ValidatePassword(tt.pw); err != tt.want {
			t.Errorf("ValidatePassword(len %d) = %v, want %v", len(tt.pw), err, tt.want)
		}
	}
	if _, err := HashPassword("short"); err != ErrPasswordLength {
		t.Fatalf("expected hash to reject short password, got %v", err)
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, size int
		total      int64
		wantPages  int
	}{
		{1, 20, 0, 0},
		{1, 20, 20, 1},
		{2, 20, 21, 2},
		{1, 0, 5, 0},
	}
	for _, tt := range tests {
		if got := NewPagination(tt.page, tt.size, tt.total); got.TotalPages != tt.wantPages {
			t.Errorf("NewPagination(%d, %d, %d).TotalPages = %d, want %d", tt.page, tt.size, tt.total, got.TotalPages, tt.wantPages)
		}
	}
}
